// Package config loads the configuration of the segment daemon.
package config

import "time"

// Config is the top-level daemon configuration.
type Config struct {
	// Topology is "local" or "distributed".
	Topology    string            `yaml:"topology"`
	Persistence PersistenceConfig `yaml:"persistence"`

	// MemoryLimitBytes is the footprint budget of resident persisted vector
	// segments. 0 disables footprint governance.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`

	// MaxFileHandles overrides the process file-descriptor limit. 0 uses the
	// platform limit.
	MaxFileHandles  int `yaml:"max_file_handles"`
	ScanConcurrency int `yaml:"scan_concurrency"`

	SysDB     SysDBConfig     `yaml:"sysdb"`
	Directory DirectoryConfig `yaml:"directory"`
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// PersistenceConfig selects persisted local segments.
type PersistenceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// SysDBConfig selects the system-of-record.
type SysDBConfig struct {
	// Type is "memory" or "postgres".
	Type     string         `yaml:"type"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// DirectoryConfig selects how remote segments map to endpoints
// (distributed topology only).
type DirectoryConfig struct {
	// Type is "static" or "rendezvous".
	Type     string   `yaml:"type"`
	Endpoint string   `yaml:"endpoint"`
	Members  []string `yaml:"members"`
}

// ServerConfig holds admin HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		Topology: "local",
		SysDB: SysDBConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns:        10,
				MinConns:        1,
				MaxConnLifetime: 5 * time.Minute,
			},
		},
		Directory: DirectoryConfig{
			Type: "static",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
