package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vulnwarden/api/internal/infra/postgres"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and repair the import job queue",
}

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued import jobs for an organisation",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, _ := cmd.Flags().GetInt64("org")
			if orgID == 0 {
				return fmt.Errorf("--org is required")
			}

			db := mustDB()
			defer db.Close()

			repo := postgres.NewJobQueueRepository(db)
			entries, err := repo.ListByOrganisation(context.Background(), orgID)
			if err != nil {
				return err
			}

			if flagOutput == outputJSON {
				printJSON(entries)
				return nil
			}
			if flagOutput == outputYAML {
				printYAML(entries)
				return nil
			}

			if len(entries) == 0 {
				fmt.Println("No jobs queued.")
				return nil
			}

			t := newTable("ID", "TYPE", "STATUS", "ATTEMPTS", "SCAN", "RESULT", "CREATED")
			for _, e := range entries {
				t.AddRow(
					strconv.FormatInt(e.ID, 10),
					e.Type,
					ptrStr(e.Status),
					strconv.Itoa(e.Attempts),
					e.Params.ScanID,
					e.Params.ScanResultID,
					shortTime(e.CreatedAt),
				)
			}
			t.Flush()
			return nil
		},
	}
	listCmd.Flags().Int64("org", 0, "Organisation id (required)")

	releaseCmd := &cobra.Command{
		Use:   "release ID",
		Short: "Return a stuck job to pending",
		Long: `Return a stuck job to pending so the next worker run picks it up.

Use this after confirming the worker that claimed the row is gone; the
attempt counter is preserved, so a row at the attempts ceiling stays
parked until deleted or the ceiling is raised.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			db := mustDB()
			defer db.Close()

			repo := postgres.NewJobQueueRepository(db)
			if err := repo.Release(context.Background(), id); err != nil {
				return err
			}

			fmt.Printf("Job %d released.\n", id)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a job row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}

			db := mustDB()
			defer db.Close()

			repo := postgres.NewJobQueueRepository(db)
			if err := repo.Delete(context.Background(), id); err != nil {
				return err
			}

			fmt.Printf("Job %d deleted.\n", id)
			return nil
		},
	}

	queueCmd.AddCommand(listCmd, releaseCmd, deleteCmd)
}
