package engine

import (
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "1", 0},
		{"1", "1.0.0", 0},
		{"1.0.9", "1.0.10", -1},
		{"1.0.10", "1.0.9", 1},
		{"2", "1.9.9", 1},
		{"0", "1", -1},
		{"0", "0.1", -1},
		{"10", "9", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			if got := CompareVersions(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestScanLocations(t *testing.T) {
	setup := filepath.Join(t.TempDir(), "setup")
	writeScript(t, setup, "V1.0.1__add_users.sql", "CREATE TABLE users (id INT);")
	writeScript(t, setup, "V1.0.0__init.sql", "CREATE TABLE a (id INT);")
	writeScript(t, setup, "V2__cleanup.sql", "DROP TABLE a;")
	writeScript(t, setup, "R__seed_roles.sql", "INSERT INTO roles VALUES (1);")
	writeScript(t, setup, "README.md", "not a migration")
	writeScript(t, setup, "V1_1__underscore_version.sql", "SELECT 1;")

	scripts, err := ScanLocations([]string{setup})
	if err != nil {
		t.Fatalf("ScanLocations() error = %v", err)
	}

	var got []string
	for _, s := range scripts {
		if s.Repeatable {
			got = append(got, "R:"+s.Description)
		} else {
			got = append(got, s.Version)
		}
	}

	want := []string{"1.0.0", "1.0.1", "1.1", "2", "R:seed roles"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("execution order = %v, want %v", got, want)
	}

	if scripts[0].Description != "init" {
		t.Errorf("description = %q, want %q", scripts[0].Description, "init")
	}
	if wantSum := crc32.ChecksumIEEE([]byte("CREATE TABLE a (id INT);")); scripts[0].Checksum != wantSum {
		t.Errorf("checksum = %d, want %d", scripts[0].Checksum, wantSum)
	}
}

func TestScanLocationsOrderAcrossLocations(t *testing.T) {
	core := filepath.Join(t.TempDir(), "core")
	setup := filepath.Join(t.TempDir(), "setup")
	// Later location holds an earlier version, execution order follows
	// versions, not locations
	writeScript(t, core, "V2__extensions.sql", "SELECT 2;")
	writeScript(t, setup, "V1__init.sql", "SELECT 1;")

	scripts, err := ScanLocations([]string{core, setup})
	if err != nil {
		t.Fatalf("ScanLocations() error = %v", err)
	}
	if len(scripts) != 2 || scripts[0].Version != "1" || scripts[1].Version != "2" {
		t.Errorf("unexpected order: %+v", scripts)
	}
}

func TestScanLocationsDuplicateVersion(t *testing.T) {
	a := filepath.Join(t.TempDir(), "a")
	b := filepath.Join(t.TempDir(), "b")
	writeScript(t, a, "V1.0.0__first.sql", "SELECT 1;")
	writeScript(t, b, "V1.0.0__second.sql", "SELECT 2;")

	_, err := ScanLocations([]string{a, b})
	if err == nil || !strings.Contains(err.Error(), "more than one migration with version") {
		t.Errorf("ScanLocations() error = %v, want duplicate version error", err)
	}
}

func TestScanLocationsMissingLocationSkipped(t *testing.T) {
	setup := filepath.Join(t.TempDir(), "setup")
	writeScript(t, setup, "V1__init.sql", "SELECT 1;")

	scripts, err := ScanLocations([]string{filepath.Join(t.TempDir(), "nope"), setup})
	if err != nil {
		t.Fatalf("ScanLocations() error = %v", err)
	}
	if len(scripts) != 1 {
		t.Errorf("got %d scripts, want 1", len(scripts))
	}
}

func TestPendingScripts(t *testing.T) {
	scripts := []Script{
		{Version: "1.0.0", Description: "init", Path: "V1.0.0__init.sql", Checksum: 100},
		{Version: "1.0.1", Description: "users", Path: "V1.0.1__users.sql", Checksum: 101},
		{Description: "seed", Path: "R__seed.sql", Checksum: 200, Repeatable: true},
	}

	t.Run("fresh schema applies everything", func(t *testing.T) {
		pending, err := pendingScripts(scripts, newAppliedState())
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 3 {
			t.Errorf("got %d pending, want 3", len(pending))
		}
	})

	t.Run("second run applies nothing", func(t *testing.T) {
		state := newAppliedState()
		state.versions["1.0.0"] = 100
		state.versions["1.0.1"] = 101
		state.repeatables["seed"] = 200

		pending, err := pendingScripts(scripts, state)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 0 {
			t.Errorf("got %d pending, want 0: %+v", len(pending), pending)
		}
	})

	t.Run("modified versioned file is fatal", func(t *testing.T) {
		state := newAppliedState()
		state.versions["1.0.0"] = 999

		_, err := pendingScripts(scripts, state)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("error = %v, want ErrChecksumMismatch", err)
		}
	})

	t.Run("modified repeatable is re-applied", func(t *testing.T) {
		state := newAppliedState()
		state.versions["1.0.0"] = 100
		state.versions["1.0.1"] = 101
		state.repeatables["seed"] = 999

		pending, err := pendingScripts(scripts, state)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 1 || !pending[0].Repeatable {
			t.Errorf("pending = %+v, want only the repeatable script", pending)
		}
	})

	t.Run("versions at or below baseline are skipped", func(t *testing.T) {
		state := newAppliedState()
		state.baseline = "1.0.0"

		pending, err := pendingScripts(scripts, state)
		if err != nil {
			t.Fatal(err)
		}
		if len(pending) != 2 {
			t.Fatalf("got %d pending, want 2: %+v", len(pending), pending)
		}
		if pending[0].Version != "1.0.1" {
			t.Errorf("pending[0].Version = %s, want 1.0.1", pending[0].Version)
		}
	})
}
