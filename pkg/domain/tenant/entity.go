// Package tenant models organisations and their per-service credentials.
// Organisations live in the relational collaborator; the core only reads
// them to route work to the right tenant database and scanner account.
package tenant

import (
	"encoding/json"
	"fmt"

	"github.com/vulnwarden/api/pkg/crypto"
	"github.com/vulnwarden/api/pkg/domain/shared"
)

// ServiceName identifies an external service subscribed by an organisation.
type ServiceName string

// Known services.
const (
	ServiceScanner ServiceName = "tenable"
)

// Organisation is a customer account with its own isolated vulnerability
// database.
type Organisation struct {
	ID     int64
	Name   string
	Slug   string
	Active bool
}

// Credentials is the decrypted per-service credential blob. It carries both
// the scanner account and the tenant database connection secrets.
type Credentials struct {
	// Scanner account.
	Username string `json:"username"`
	Password string `json:"password"`
	// Host overrides the configured default scanner endpoint when set.
	Host string `json:"host,omitempty"`

	// Tenant document database.
	DBHosts    []string `json:"db_hosts"`
	DBName     string   `json:"db_name"`
	DBUsername string   `json:"db_username,omitempty"`
	DBPassword string   `json:"db_password,omitempty"`
	ReplicaSet string   `json:"replica_set,omitempty"`
}

// HasDatabase reports whether the blob carries a database assignment.
func (c *Credentials) HasDatabase() bool {
	return len(c.DBHosts) > 0 && c.DBName != ""
}

// DecryptCredentials decodes an encrypted credential blob.
func DecryptCredentials(enc crypto.Encryptor, blob string) (*Credentials, error) {
	plain, err := enc.DecryptString(blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return nil, shared.NewDomainError("CONFIGURATION", "malformed credential blob", shared.ErrConfiguration)
	}
	return &creds, nil
}

// EncryptCredentials encodes a credential blob for storage.
func EncryptCredentials(enc crypto.Encryptor, creds *Credentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	return enc.EncryptString(string(plain))
}
