package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/corems/migrations/internal/logger"
)

// History row types
const (
	typeVersioned  = "versioned"
	typeRepeatable = "repeatable"
	typeBaseline   = "baseline"
)

// Dialect abstracts the driver-specific parts of schema management. Queries
// against information_schema are shared and written with ? placeholders,
// rebound per dialect.
type Dialect interface {
	// Name returns the dialect name
	Name() string

	// QuoteIdentifier quotes a schema or table identifier
	QuoteIdentifier(name string) string

	// Rebind converts ? placeholders to the driver's placeholder style
	Rebind(query string) string

	// CreateSchema creates the schema if it does not exist
	CreateSchema(ctx context.Context, db *sql.DB, schema string) error

	// DropSchema destructively drops the schema and everything in it
	DropSchema(ctx context.Context, db *sql.DB, schema string) error

	// UseSchema makes unqualified names in migration SQL resolve against the
	// schema for the duration of the transaction
	UseSchema(ctx context.Context, tx *sql.Tx, schema string) error
}

// SQLMigrator applies SQL migrations against a relational database and tracks
// them in a per-scope history table.
type SQLMigrator struct {
	db      *sql.DB
	dialect Dialect

	// DryRun reports what would be applied without touching the database
	DryRun bool
}

// NewSQLMigrator creates a migrator on an open database connection
func NewSQLMigrator(db *sql.DB, dialect Dialect) *SQLMigrator {
	return &SQLMigrator{db: db, dialect: dialect}
}

// appliedState is the successful history of one scope. Rows are read in rank
// order, so for repeatable scripts the latest run wins.
type appliedState struct {
	versions    map[string]uint32 // version -> checksum
	repeatables map[string]uint32 // description -> checksum
	baseline    string
	current     string
	nextRank    int
}

func newAppliedState() *appliedState {
	return &appliedState{
		versions:    make(map[string]uint32),
		repeatables: make(map[string]uint32),
		nextRank:    1,
	}
}

// Migrate scans the scope locations and applies everything pending
func (m *SQLMigrator) Migrate(ctx context.Context, scope Scope) (*Result, error) {
	scripts, err := ScanLocations(scope.Locations)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Found %d migration file(s) for schema %s", len(scripts), scope.SchemaName)

	if m.DryRun {
		return m.plan(ctx, scope, scripts)
	}

	if err := m.dialect.CreateSchema(ctx, m.db, scope.SchemaName); err != nil {
		return nil, fmt.Errorf("failed to create schema %s: %w", scope.SchemaName, err)
	}

	historyExists, err := m.tableExists(ctx, scope.SchemaName, scope.HistoryTable)
	if err != nil {
		return nil, err
	}
	if !historyExists {
		if err := m.createHistoryTable(ctx, scope); err != nil {
			return nil, err
		}
		if err := m.baselineIfNeeded(ctx, scope); err != nil {
			return nil, err
		}
	}

	state, err := m.loadApplied(ctx, scope)
	if err != nil {
		return nil, err
	}

	pending, err := pendingScripts(scripts, state)
	if err != nil {
		return nil, err
	}

	current := state.current
	for i, script := range pending {
		if err := m.apply(ctx, scope, script, state.nextRank+i); err != nil {
			return nil, err
		}
		if !script.Repeatable && CompareVersions(script.Version, current) > 0 {
			current = script.Version
		}
	}

	return &Result{
		MigrationsExecuted:  len(pending),
		TargetSchemaVersion: current,
	}, nil
}

// Clean drops the scope's target schema. The caller is responsible for
// warning about it first.
func (m *SQLMigrator) Clean(ctx context.Context, scope Scope) error {
	if err := m.dialect.DropSchema(ctx, m.db, scope.SchemaName); err != nil {
		return fmt.Errorf("failed to clean schema %s: %w", scope.SchemaName, err)
	}
	return nil
}

// plan reports what a migrate run would do without writing anything
func (m *SQLMigrator) plan(ctx context.Context, scope Scope, scripts []Script) (*Result, error) {
	state := newAppliedState()

	historyExists, err := m.tableExists(ctx, scope.SchemaName, scope.HistoryTable)
	if err != nil {
		return nil, err
	}
	if historyExists {
		state, err = m.loadApplied(ctx, scope)
		if err != nil {
			return nil, err
		}
	}

	pending, err := pendingScripts(scripts, state)
	if err != nil {
		return nil, err
	}

	current := state.current
	for _, script := range pending {
		logger.Infof("Would apply %s to schema %s (dry-run)", filepath.Base(script.Path), scope.SchemaName)
		if !script.Repeatable && CompareVersions(script.Version, current) > 0 {
			current = script.Version
		}
	}

	return &Result{
		MigrationsExecuted:  len(pending),
		TargetSchemaVersion: current,
	}, nil
}

// pendingScripts filters scripts against the applied state. A modified
// versioned file that was already applied is a fatal error.
func pendingScripts(scripts []Script, state *appliedState) ([]Script, error) {
	var pending []Script
	for _, script := range scripts {
		if script.Repeatable {
			checksum, applied := state.repeatables[script.Description]
			if applied && checksum == script.Checksum {
				continue
			}
			pending = append(pending, script)
			continue
		}

		if checksum, applied := state.versions[script.Version]; applied {
			if checksum != script.Checksum {
				return nil, fmt.Errorf("%w: version %s (%s) was modified after it was applied",
					ErrChecksumMismatch, script.Version, filepath.Base(script.Path))
			}
			continue
		}
		if state.baseline != "" && CompareVersions(script.Version, state.baseline) <= 0 {
			logger.Debugf("Skipping version %s, at or below baseline %s", script.Version, state.baseline)
			continue
		}
		pending = append(pending, script)
	}
	return pending, nil
}

// apply runs one migration file in its own transaction and records it in the
// history table within the same transaction.
func (m *SQLMigrator) apply(ctx context.Context, scope Scope, script Script, rank int) error {
	content, err := os.ReadFile(script.Path)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", script.Path, err)
	}

	start := time.Now()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := m.dialect.UseSchema(ctx, tx, scope.SchemaName); err != nil {
		return fmt.Errorf("failed to select schema %s: %w", scope.SchemaName, err)
	}

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		_ = tx.Rollback()
		// Best effort, the failed statement already rolled back
		m.recordRun(ctx, scope, script, rank, time.Since(start), false)
		return fmt.Errorf("migration %s failed: %w", filepath.Base(script.Path), err)
	}

	if err := m.insertHistoryRow(ctx, tx, scope, script, rank, time.Since(start), true); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", filepath.Base(script.Path), err)
	}

	logger.Infof("Applied %s to schema %s (%s)",
		filepath.Base(script.Path), scope.SchemaName, time.Since(start).Round(time.Millisecond))
	return nil
}

// execer covers *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (m *SQLMigrator) recordRun(ctx context.Context, scope Scope, script Script, rank int, elapsed time.Duration, success bool) {
	if err := m.insertHistoryRow(ctx, m.db, scope, script, rank, elapsed, success); err != nil {
		logger.Warnf("Failed to record migration history: %v", err)
	}
}

func (m *SQLMigrator) insertHistoryRow(ctx context.Context, db execer, scope Scope, script Script, rank int, elapsed time.Duration, success bool) error {
	scriptType := typeVersioned
	version := sql.NullString{String: script.Version, Valid: true}
	if script.Repeatable {
		scriptType = typeRepeatable
		version = sql.NullString{}
	}

	query := m.dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (installed_rank, version, description, type, script, checksum, execution_time_ms, success) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		m.historyRef(scope)))

	_, err := db.ExecContext(ctx, query,
		rank, version, script.Description, scriptType, filepath.Base(script.Path),
		int64(script.Checksum), elapsed.Milliseconds(), success)
	if err != nil {
		return fmt.Errorf("failed to record migration in history table: %w", err)
	}
	return nil
}

func (m *SQLMigrator) createHistoryTable(ctx context.Context, scope Scope) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			installed_rank INTEGER NOT NULL PRIMARY KEY,
			version VARCHAR(50),
			description VARCHAR(200) NOT NULL,
			type VARCHAR(20) NOT NULL,
			script VARCHAR(1000) NOT NULL,
			checksum BIGINT,
			installed_on TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			execution_time_ms INTEGER NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL
		)
	`, m.historyRef(scope))

	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// baselineIfNeeded inserts a synthetic baseline row when the schema already
// holds tables the engine never saw, so an early manually-created schema does
// not conflict with version 1.
func (m *SQLMigrator) baselineIfNeeded(ctx context.Context, scope Scope) error {
	if scope.BaselineVersion == "" {
		return nil
	}

	hasTables, err := m.schemaHasTables(ctx, scope.SchemaName, scope.HistoryTable)
	if err != nil {
		return err
	}
	if !hasTables {
		return nil
	}

	logger.Infof("Baselining pre-existing schema %s at version %s", scope.SchemaName, scope.BaselineVersion)

	query := m.dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (installed_rank, version, description, type, script, checksum, execution_time_ms, success) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		m.historyRef(scope)))

	_, err = m.db.ExecContext(ctx, query,
		1, scope.BaselineVersion, "baseline", typeBaseline, "", nil, 0, true)
	if err != nil {
		return fmt.Errorf("failed to record baseline: %w", err)
	}
	return nil
}

func (m *SQLMigrator) loadApplied(ctx context.Context, scope Scope) (*appliedState, error) {
	query := fmt.Sprintf(
		"SELECT installed_rank, version, description, type, checksum, success FROM %s ORDER BY installed_rank",
		m.historyRef(scope))

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read history table: %w", err)
	}
	defer rows.Close()

	state := newAppliedState()
	for rows.Next() {
		var (
			rank       int
			version    sql.NullString
			desc       string
			scriptType string
			checksum   sql.NullInt64
			success    bool
		)
		if err := rows.Scan(&rank, &version, &desc, &scriptType, &checksum, &success); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}

		if rank >= state.nextRank {
			state.nextRank = rank + 1
		}
		if !success {
			continue
		}

		switch scriptType {
		case typeBaseline:
			state.baseline = version.String
			if CompareVersions(version.String, state.current) > 0 {
				state.current = version.String
			}
		case typeVersioned:
			state.versions[version.String] = uint32(checksum.Int64)
			if CompareVersions(version.String, state.current) > 0 {
				state.current = version.String
			}
		case typeRepeatable:
			state.repeatables[desc] = uint32(checksum.Int64)
		}
	}

	return state, rows.Err()
}

func (m *SQLMigrator) tableExists(ctx context.Context, schema, table string) (bool, error) {
	query := m.dialect.Rebind(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?")

	var count int
	if err := m.db.QueryRowContext(ctx, query, schema, table).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// schemaHasTables reports whether the schema contains any table other than
// the history table itself
func (m *SQLMigrator) schemaHasTables(ctx context.Context, schema, historyTable string) (bool, error) {
	query := m.dialect.Rebind(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name <> ?")

	var count int
	if err := m.db.QueryRowContext(ctx, query, schema, historyTable).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return count > 0, nil
}

func (m *SQLMigrator) historyRef(scope Scope) string {
	return m.dialect.QuoteIdentifier(scope.SchemaName) + "." + m.dialect.QuoteIdentifier(scope.HistoryTable)
}
