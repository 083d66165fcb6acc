package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, VECSEG_CONFIG env, ./config.yaml, /etc/vecseg/config.yaml)
//  3. VECSEG_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path. Returns empty string if no
// config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("VECSEG_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/vecseg/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps VECSEG_* environment variables to config fields.
// Unparsable numeric values are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VECSEG_TOPOLOGY"); v != "" {
		cfg.Topology = v
	}
	if v := os.Getenv("VECSEG_PERSIST_DIRECTORY"); v != "" {
		cfg.Persistence.Enabled = true
		cfg.Persistence.Directory = v
	}
	if v := os.Getenv("VECSEG_MEMORY_LIMIT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MemoryLimitBytes = n
		}
	}
	if v := os.Getenv("VECSEG_MAX_FILE_HANDLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFileHandles = n
		}
	}
	if v := os.Getenv("VECSEG_SYSDB"); v != "" {
		cfg.SysDB.Type = v
	}
	if v := os.Getenv("VECSEG_POSTGRES_DSN"); v != "" {
		cfg.SysDB.Postgres.DSN = v
	}
	if v := os.Getenv("VECSEG_DIRECTORY_ENDPOINT"); v != "" {
		cfg.Directory.Endpoint = v
	}
	if v := os.Getenv("VECSEG_DIRECTORY_MEMBERS"); v != "" {
		cfg.Directory.Type = "rendezvous"
		cfg.Directory.Members = splitList(v)
	}
	if v := os.Getenv("VECSEG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VECSEG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VECSEG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
func resolveFileReferences(cfg *Config) error {
	// sysdb.postgres.dsn_file -> sysdb.postgres.dsn
	if cfg.SysDB.Postgres.DSNFile != "" && cfg.SysDB.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.SysDB.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("sysdb.postgres.dsn_file: %w", err)
		}
		cfg.SysDB.Postgres.DSN = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
