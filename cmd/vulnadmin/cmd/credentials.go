package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vulnwarden/api/pkg/domain/tenant"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Prepare encrypted credential blobs for onboarding",
}

func init() {
	encryptCmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a credential JSON file for storage",
		Long: `Encrypt a credential JSON file for storage.

The input file holds the plaintext credential document:

  {
    "username": "scanner-svc",
    "password": "...",
    "db_hosts": ["mongo-1:27017", "mongo-2:27017"],
    "db_name": "tenant_acme",
    "replica_set": "rs0"
  }

The output is the base64 ciphertext to store on the organisation's
service row. The input is validated before encryption so a typo'd field
name surfaces here rather than as a runtime configuration error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			data, err := os.ReadFile(expandPath(file))
			if err != nil {
				return err
			}

			var creds tenant.Credentials
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&creds); err != nil {
				return fmt.Errorf("invalid credential document: %w", err)
			}
			if creds.Username == "" || creds.Password == "" {
				return fmt.Errorf("credential document must set username and password")
			}

			blob, err := tenant.EncryptCredentials(mustEncryptor(), &creds)
			if err != nil {
				return err
			}

			fmt.Println(blob)
			return nil
		},
	}
	encryptCmd.Flags().String("file", "", "Path to the plaintext credential JSON file")

	credentialsCmd.AddCommand(encryptCmd)
}
