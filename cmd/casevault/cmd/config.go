package cmd

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/casevault/casevault/casekeys"
)

// passphraseEnv is the only channel for the system key passphrase. It is
// never accepted as a flag or config field so it cannot end up in shell
// history or a checked-in yaml file.
const passphraseEnv = "CASEVAULT_PASSPHRASE"

// Config is the server configuration file. Flags override file values.
type Config struct {
	Port            int                    `yaml:"port"`
	DataDir         string                 `yaml:"data_dir"`
	Store           string                 `yaml:"store"` // bbolt, postgres or memory
	PostgresDSN     string                 `yaml:"postgres_dsn"`
	RegistryRefresh time.Duration          `yaml:"registry_refresh"`
	TLSCert         string                 `yaml:"tls_cert"`
	TLSKey          string                 `yaml:"tls_key"`
	SystemKey       casekeys.SystemKeyPair `yaml:"system_key"`
}

func defaultConfig() Config {
	return Config{
		Port:            8443,
		DataDir:         "./data",
		Store:           "bbolt",
		RegistryRefresh: 5 * time.Minute,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func passphraseFromEnv() (string, error) {
	p := os.Getenv(passphraseEnv)
	if p == "" {
		return "", fmt.Errorf("%s is not set", passphraseEnv)
	}
	return p, nil
}
