package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnvOrDefault(t *testing.T) {
	key := "COREMS_TEST_ENV_VAR"

	tests := []struct {
		name         string
		envValue     string
		defaultValue string
		want         string
	}{
		{
			name:         "env var set",
			envValue:     "env-value",
			defaultValue: "default-value",
			want:         "env-value",
		},
		{
			name:         "env var not set",
			envValue:     "",
			defaultValue: "default-value",
			want:         "default-value",
		},
		{
			name:         "empty default",
			envValue:     "",
			defaultValue: "",
			want:         "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}

			got := getEnvOrDefault(key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	key := "COREMS_TEST_BOOL_VAR"

	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true", envValue: "true", defaultValue: false, want: true},
		{name: "one", envValue: "1", defaultValue: false, want: true},
		{name: "false", envValue: "false", defaultValue: true, want: false},
		{name: "zero", envValue: "0", defaultValue: true, want: false},
		{name: "unset keeps default", envValue: "", defaultValue: true, want: true},
		{name: "garbage keeps default", envValue: "maybe", defaultValue: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}

			got := getEnvBool(key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("default driver = %s, want %s", cfg.Database.Driver, DriverPostgres)
	}
	if cfg.Run.Mode != ModePerService {
		t.Errorf("default mode = %s, want %s", cfg.Run.Mode, ModePerService)
	}
	if cfg.Run.IncludeMockdata {
		t.Error("mockdata must never be included by default")
	}
	if cfg.Run.CleanBeforeMigrate {
		t.Error("clean must never be enabled by default")
	}
	if cfg.Paths.ReposRoot != "../../repos" {
		t.Errorf("default repos root = %s, want ../../repos", cfg.Paths.ReposRoot)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("COREMS_DB_DRIVER", "mysql")
	t.Setenv("COREMS_DB_HOST", "db.internal")
	t.Setenv("COREMS_REPOS_PATH", "/opt/repos")
	t.Setenv("COREMS_INCLUDE_MOCKDATA", "true")
	t.Setenv("COREMS_MODE", "global")

	cfg := Default()
	cfg.LoadEnv()

	if cfg.Database.Driver != "mysql" {
		t.Errorf("driver = %s, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("host = %s, want db.internal", cfg.Database.Host)
	}
	if cfg.Paths.ReposRoot != "/opt/repos" {
		t.Errorf("repos root = %s, want /opt/repos", cfg.Paths.ReposRoot)
	}
	if !cfg.Run.IncludeMockdata {
		t.Error("include mockdata = false, want true")
	}
	if cfg.Run.Mode != ModeGlobal {
		t.Errorf("mode = %s, want %s", cfg.Run.Mode, ModeGlobal)
	}
}

func TestLoadFile(t *testing.T) {
	content := `
database:
  driver: mysql
  host: file-host
  port: "3306"
paths:
  repos: /file/repos
run:
  mode: global
  include_mockdata: true
`
	path := filepath.Join(t.TempDir(), "corems-migrate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Database.Driver != "mysql" {
		t.Errorf("driver = %s, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Host != "file-host" {
		t.Errorf("host = %s, want file-host", cfg.Database.Host)
	}
	if cfg.Paths.ReposRoot != "/file/repos" {
		t.Errorf("repos root = %s, want /file/repos", cfg.Paths.ReposRoot)
	}
	if !cfg.Run.IncludeMockdata {
		t.Error("include mockdata = false, want true")
	}

	// Untouched keys keep their defaults
	if cfg.Database.Username != "postgres" {
		t.Errorf("username = %s, want postgres", cfg.Database.Username)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile() with a missing file should fail")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	content := "database:\n  host: file-host\n"
	path := filepath.Join(t.TempDir(), "corems-migrate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("COREMS_DB_HOST", "env-host")

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	cfg.LoadEnv()

	if cfg.Database.Host != "env-host" {
		t.Errorf("host = %s, want env-host", cfg.Database.Host)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "global mode is valid",
			mutate:  func(c *Config) { c.Run.Mode = ModeGlobal },
			wantErr: false,
		},
		{
			name:    "service filter in per-service mode",
			mutate:  func(c *Config) { c.Run.Service = "user-ms" },
			wantErr: false,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: true,
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Run.Mode = "parallel" },
			wantErr: true,
		},
		{
			name: "service filter in global mode",
			mutate: func(c *Config) {
				c.Run.Mode = ModeGlobal
				c.Run.Service = "user-ms"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
