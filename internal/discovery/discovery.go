package discovery

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/corems/migrations/internal/logger"
)

// serviceSuffix is the naming convention for migratable service repositories.
// Directories without it (common-lib, frontend apps) are never migrated.
const serviceSuffix = "-ms"

// Source represents one discovered service and its migration directories
type Source struct {
	// Name is the service directory name, e.g. "user-ms"
	Name string
	// SetupPath contains the versioned schema migrations
	SetupPath string
	// MockdataPath contains repeatable seed data, empty if the service has none
	MockdataPath string
}

// Discover scans reposRoot for installed services with migration directories.
// A service is eligible when its directory name follows the *-ms convention
// and a migrations/setup subdirectory exists. A missing reposRoot is not an
// error: a fresh checkout may have zero services installed.
func Discover(reposRoot string) ([]Source, error) {
	info, err := os.Stat(reposRoot)
	if err != nil || !info.IsDir() {
		logger.Warnf("Repos directory does not exist: %s", reposRoot)
		return nil, nil
	}

	entries, err := os.ReadDir(reposRoot)
	if err != nil {
		return nil, err
	}

	var sources []Source
	for _, entry := range entries {
		if !isDir(filepath.Join(reposRoot, entry.Name())) {
			continue
		}
		if !strings.HasSuffix(entry.Name(), serviceSuffix) {
			continue
		}

		setupPath := filepath.Join(reposRoot, entry.Name(), "migrations", "setup")
		if !isDir(setupPath) {
			// Not a migratable service
			continue
		}

		source := Source{
			Name:      entry.Name(),
			SetupPath: setupPath,
		}

		mockdataPath := filepath.Join(reposRoot, entry.Name(), "migrations", "mockdata")
		if isDir(mockdataPath) {
			source.MockdataPath = mockdataPath
		}

		logger.Infof("Found migrations for: %s", source.Name)
		sources = append(sources, source)
	}

	if len(sources) == 0 {
		logger.Warnf("No migratable services found under %s", reposRoot)
	}

	return sources, nil
}

// isDir follows symlinks, unlike DirEntry.IsDir
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
