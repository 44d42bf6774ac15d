// Package cmd implements the vulnadmin operator CLI. It talks directly to
// the relational collaborator, so it is meant to run from an operations
// host with database access, not from a customer workstation.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/internal/infra/postgres"
	"github.com/vulnwarden/api/pkg/crypto"
)

var (
	version string

	// Global flags
	flagConfig  string
	flagOutput  string
	flagVerbose bool

	// settings is resolved once per invocation by initSettings.
	settings *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vulnadmin",
	Short: "Vulnwarden operations CLI",
	Long: `vulnadmin is an operations CLI for the vulnwarden platform.

It inspects the import job queue, lists organisations subscribed to the
scanning service, and prepares encrypted credential blobs for onboarding.

Settings come from a YAML file (default ~/.vulnwarden/config.yaml) with
environment variables as fallback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func init() {
	cobra.OnInitialize(initSettings)

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config file (default ~/.vulnwarden/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(orgsCmd)
	rootCmd.AddCommand(credentialsCmd)
}

func initSettings() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load environment settings: %v\n", err)
		os.Exit(1)
	}

	if err := applyFileSettings(cfg, flagConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config file: %v\n", err)
		os.Exit(1)
	}

	settings = cfg
}

// mustDB opens the relational database or exits.
func mustDB() *postgres.DB {
	db, err := postgres.New(&settings.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect to database: %v\n", err)
		os.Exit(1)
	}
	if flagVerbose {
		fmt.Fprintf(os.Stderr, "connected to %s:%d/%s\n",
			settings.Database.Host, settings.Database.Port, settings.Database.Name)
	}
	return db
}

// mustEncryptor builds the credential cipher or exits. Unlike the server,
// the CLI never falls back to pass-through: an operator without the key
// has no business reading or writing credential blobs.
func mustEncryptor() crypto.Encryptor {
	if settings.Encryption.Key == "" {
		fmt.Fprintln(os.Stderr, "Error: no encryption key configured. Set encryption-key in the config file or CREDENTIAL_ENCRYPTION_KEY")
		os.Exit(1)
	}
	enc, err := crypto.NewCipherFromBase64(settings.Encryption.Key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid encryption key: %v\n", err)
		os.Exit(1)
	}
	return enc
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vulnadmin version %s\n", version)
		fmt.Printf("  Go:       %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
