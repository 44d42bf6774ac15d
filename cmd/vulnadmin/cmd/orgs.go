package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vulnwarden/api/internal/infra/postgres"
	"github.com/vulnwarden/api/pkg/domain/tenant"
)

var orgsCmd = &cobra.Command{
	Use:   "orgs",
	Short: "Inspect organisations subscribed to the scanning service",
}

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active organisations with the scanning service",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := mustDB()
			defer db.Close()

			repo := postgres.NewTenantRepository(db)
			orgs, err := repo.ListActiveWithService(context.Background(), tenant.ServiceScanner)
			if err != nil {
				return err
			}

			if flagOutput == outputJSON {
				printJSON(orgs)
				return nil
			}
			if flagOutput == outputYAML {
				printYAML(orgs)
				return nil
			}

			if len(orgs) == 0 {
				fmt.Println("No organisations found.")
				return nil
			}

			t := newTable("ID", "NAME", "SLUG", "ACTIVE")
			for _, o := range orgs {
				t.AddRow(strconv.FormatInt(o.ID, 10), o.Name, o.Slug, boolToStr(o.Active))
			}
			t.Flush()
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check ID",
		Short: "Verify an organisation's stored credentials decrypt and parse",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid organisation id %q", args[0])
			}

			db := mustDB()
			defer db.Close()

			enc := mustEncryptor()
			repo := postgres.NewTenantRepository(db)

			blob, err := repo.GetEncryptedCredentials(context.Background(), orgID, tenant.ServiceScanner)
			if err != nil {
				return err
			}

			creds, err := tenant.DecryptCredentials(enc, blob)
			if err != nil {
				return err
			}

			// Secrets stay out of the report on purpose.
			fmt.Printf("Organisation %d credentials OK\n", orgID)
			fmt.Printf("  Scanner user:  %s\n", creds.Username)
			if creds.Host != "" {
				fmt.Printf("  Scanner host:  %s\n", creds.Host)
			}
			if creds.HasDatabase() {
				fmt.Printf("  Database:      %s (%d host(s))\n", creds.DBName, len(creds.DBHosts))
			} else {
				fmt.Printf("  Database:      not assigned\n")
			}
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	orgsCmd.AddCommand(listCmd, checkCmd)
}
