package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	switch c.Topology {
	case "local", "distributed":
	default:
		errs = append(errs, fmt.Errorf("topology must be \"local\" or \"distributed\", got %q", c.Topology))
	}

	if c.Persistence.Enabled && c.Persistence.Directory == "" {
		errs = append(errs, fmt.Errorf("persistence.directory is required when persistence.enabled is true"))
	}
	if c.MaxFileHandles < 0 {
		errs = append(errs, fmt.Errorf("max_file_handles must be >= 0, got %d", c.MaxFileHandles))
	}
	if c.ScanConcurrency < 0 {
		errs = append(errs, fmt.Errorf("scan_concurrency must be >= 0, got %d", c.ScanConcurrency))
	}

	switch c.SysDB.Type {
	case "memory":
	case "postgres":
		if c.SysDB.Postgres.DSN == "" && c.SysDB.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("sysdb.postgres.dsn or sysdb.postgres.dsn_file is required when sysdb.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sysdb.type must be \"memory\" or \"postgres\", got %q", c.SysDB.Type))
	}

	if c.Topology == "distributed" {
		switch c.Directory.Type {
		case "static":
			if c.Directory.Endpoint == "" {
				errs = append(errs, fmt.Errorf("directory.endpoint is required when directory.type is \"static\""))
			}
		case "rendezvous":
			if len(c.Directory.Members) == 0 {
				errs = append(errs, fmt.Errorf("directory.members is required when directory.type is \"rendezvous\""))
			}
		default:
			errs = append(errs, fmt.Errorf("directory.type must be \"static\" or \"rendezvous\", got %q", c.Directory.Type))
		}
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\" or \"error\", got %q", l.Level)
	}
	return level, nil
}
