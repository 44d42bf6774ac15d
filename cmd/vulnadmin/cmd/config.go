package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vulnwarden/api/internal/config"
)

// fileSettings is the YAML shape of the CLI config file. Every field is
// optional; unset fields keep their environment-derived values.
type fileSettings struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`
	EncryptionKey     string `yaml:"encryption-key"`
	EncryptionKeyFile string `yaml:"encryption-key-file"`
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vulnwarden", "config.yaml")
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[2:])
	}
	return p
}

// applyFileSettings overlays the YAML file onto the environment-derived
// configuration. A missing file at the default path is fine; a missing
// file given explicitly via --config is an error.
func applyFileSettings(cfg *config.Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	var fileCfg fileSettings
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	if fileCfg.Database.Host != "" {
		cfg.Database.Host = fileCfg.Database.Host
	}
	if fileCfg.Database.Port != 0 {
		cfg.Database.Port = fileCfg.Database.Port
	}
	if fileCfg.Database.User != "" {
		cfg.Database.User = fileCfg.Database.User
	}
	if fileCfg.Database.Password != "" {
		cfg.Database.Password = fileCfg.Database.Password
	}
	if fileCfg.Database.Name != "" {
		cfg.Database.Name = fileCfg.Database.Name
	}
	if fileCfg.Database.SSLMode != "" {
		cfg.Database.SSLMode = fileCfg.Database.SSLMode
	}

	if fileCfg.EncryptionKey != "" {
		cfg.Encryption.Key = fileCfg.EncryptionKey
	} else if fileCfg.EncryptionKeyFile != "" {
		key, err := os.ReadFile(expandPath(fileCfg.EncryptionKeyFile))
		if err != nil {
			return fmt.Errorf("read encryption key file: %w", err)
		}
		cfg.Encryption.Key = strings.TrimSpace(string(key))
	}

	return nil
}
