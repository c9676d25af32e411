package engine

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/corems/migrations/internal/logger"
)

// Migration file naming:
//   V{version}__{description}.sql  versioned, applied at most once
//   R__{description}.sql           repeatable, re-applied when the checksum changes
var (
	versionedPattern  = regexp.MustCompile(`^V([0-9][0-9._]*)__(.+)\.sql$`)
	repeatablePattern = regexp.MustCompile(`^R__(.+)\.sql$`)
)

// Script is one migration file found in a scope location
type Script struct {
	// Version is empty for repeatable scripts
	Version     string
	Description string
	Path        string
	Checksum    uint32
	Repeatable  bool
}

// ScanLocations reads all migration files from the given directories and
// returns them in execution order: versioned scripts ascending by version,
// then repeatable scripts ascending by description. Files not matching the
// naming convention are ignored. The same version appearing twice across
// locations is an error.
func ScanLocations(locations []string) ([]Script, error) {
	var versioned, repeatable []Script
	seenVersions := make(map[string]string)
	seenRepeatable := make(map[string]string)

	for _, location := range locations {
		entries, err := os.ReadDir(location)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warnf("Migration location does not exist: %s", location)
				continue
			}
			return nil, fmt.Errorf("failed to read migration location %s: %w", location, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			script, ok, err := parseScript(filepath.Join(location, entry.Name()))
			if err != nil {
				return nil, err
			}
			if !ok {
				logger.Debugf("Ignoring non-migration file: %s", entry.Name())
				continue
			}

			if script.Repeatable {
				if prev, dup := seenRepeatable[script.Description]; dup {
					return nil, fmt.Errorf("found more than one repeatable migration %q: %s and %s",
						script.Description, prev, script.Path)
				}
				seenRepeatable[script.Description] = script.Path
				repeatable = append(repeatable, script)
			} else {
				if prev, dup := seenVersions[script.Version]; dup {
					return nil, fmt.Errorf("found more than one migration with version %s: %s and %s",
						script.Version, prev, script.Path)
				}
				seenVersions[script.Version] = script.Path
				versioned = append(versioned, script)
			}
		}
	}

	sort.Slice(versioned, func(i, j int) bool {
		return CompareVersions(versioned[i].Version, versioned[j].Version) < 0
	})
	sort.Slice(repeatable, func(i, j int) bool {
		return repeatable[i].Description < repeatable[j].Description
	})

	return append(versioned, repeatable...), nil
}

// parseScript matches a filename against the migration naming convention and
// computes the content checksum
func parseScript(path string) (Script, bool, error) {
	filename := filepath.Base(path)

	var script Script
	if matches := versionedPattern.FindStringSubmatch(filename); len(matches) == 3 {
		script = Script{
			// Underscores are allowed as version separators, e.g. V1_2__x.sql
			Version:     strings.ReplaceAll(matches[1], "_", "."),
			Description: strings.ReplaceAll(matches[2], "_", " "),
			Path:        path,
		}
	} else if matches := repeatablePattern.FindStringSubmatch(filename); len(matches) == 2 {
		script = Script{
			Description: strings.ReplaceAll(matches[1], "_", " "),
			Path:        path,
			Repeatable:  true,
		}
	} else {
		return Script{}, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Script{}, false, fmt.Errorf("failed to read migration file %s: %w", path, err)
	}
	script.Checksum = crc32.ChecksumIEEE(content)

	return script, true, nil
}

// CompareVersions compares two dotted numeric versions, e.g. "1.0.10" > "1.0.9".
// Missing segments count as zero, so "1" equals "1.0.0".
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
