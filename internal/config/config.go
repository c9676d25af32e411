package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Orchestration modes
const (
	ModePerService = "per-service"
	ModeGlobal     = "global"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Database holds the target database connection settings
type Database struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// Paths holds the migration source locations
type Paths struct {
	// ReposRoot contains one subdirectory per installed service
	ReposRoot string `yaml:"repos"`
	// Core contains cross-cutting migrations applied before any service
	Core string `yaml:"core"`
}

// Run holds the per-run orchestration options
type Run struct {
	Mode               string `yaml:"mode"`
	Service            string `yaml:"service"`
	IncludeMockdata    bool   `yaml:"include_mockdata"`
	CleanBeforeMigrate bool   `yaml:"clean_before_migrate"`
	DryRun             bool   `yaml:"dry_run"`
}

// Config holds the application configuration
type Config struct {
	Database Database `yaml:"database"`
	Paths    Paths    `yaml:"paths"`
	Run      Run      `yaml:"run"`
}

// Default returns the configuration defaults
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = DriverPostgres
	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.Username = "postgres"
	cfg.Database.Database = "corems"
	cfg.Database.SSLMode = "disable"
	cfg.Paths.ReposRoot = "../../repos"
	cfg.Paths.Core = "../core"
	cfg.Run.Mode = ModePerService
	return cfg
}

// LoadFile merges settings from a YAML configuration file
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges settings from COREMS_* environment variables
func (c *Config) LoadEnv() {
	c.Database.Driver = getEnvOrDefault("COREMS_DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnvOrDefault("COREMS_DB_HOST", c.Database.Host)
	c.Database.Port = getEnvOrDefault("COREMS_DB_PORT", c.Database.Port)
	c.Database.Username = getEnvOrDefault("COREMS_DB_USERNAME", c.Database.Username)
	c.Database.Password = getEnvOrDefault("COREMS_DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnvOrDefault("COREMS_DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnvOrDefault("COREMS_DB_SSLMODE", c.Database.SSLMode)

	c.Paths.ReposRoot = getEnvOrDefault("COREMS_REPOS_PATH", c.Paths.ReposRoot)
	c.Paths.Core = getEnvOrDefault("COREMS_CORE_PATH", c.Paths.Core)

	c.Run.Mode = getEnvOrDefault("COREMS_MODE", c.Run.Mode)
	c.Run.Service = getEnvOrDefault("COREMS_SERVICE", c.Run.Service)
	c.Run.IncludeMockdata = getEnvBool("COREMS_INCLUDE_MOCKDATA", c.Run.IncludeMockdata)
	c.Run.CleanBeforeMigrate = getEnvBool("COREMS_CLEAN_BEFORE_MIGRATE", c.Run.CleanBeforeMigrate)
}

// Validate checks the configuration for inconsistent settings
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: %s, %s)",
			c.Database.Driver, DriverPostgres, DriverMySQL)
	}

	switch c.Run.Mode {
	case ModePerService, ModeGlobal:
	default:
		return fmt.Errorf("unsupported mode: %s (supported: %s, %s)",
			c.Run.Mode, ModePerService, ModeGlobal)
	}

	// A service filter only makes sense when each service has its own scope
	if c.Run.Service != "" && c.Run.Mode == ModeGlobal {
		return fmt.Errorf("a service filter cannot be combined with %s mode", ModeGlobal)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "TRUE", "1", "yes":
		return true
	case "false", "FALSE", "0", "no":
		return false
	default:
		return defaultValue
	}
}
