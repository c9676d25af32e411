package engine

import (
	"context"
	"errors"
)

// ErrChecksumMismatch indicates a previously applied versioned migration file
// was modified after it was applied. The operator has to restore the file or
// repair the history table; re-applying is never attempted.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// Scope is one complete engine invocation: a target schema and history table
// plus an ordered list of directories to scan for migration files.
type Scope struct {
	// SchemaName is the schema the migrations and the history table live in
	SchemaName string
	// Locations are scanned in order; ordering only matters for discovery,
	// execution order is determined by migration versions
	Locations []string
	// HistoryTable is the bookkeeping table name, created inside SchemaName
	HistoryTable string
	// CleanBeforeMigrate destructively wipes the schema before migrating.
	// Local development only, the caller warns before acting on it.
	CleanBeforeMigrate bool
	// BaselineVersion is assumed for a pre-existing schema with no history
	BaselineVersion string
}

// Result reports the outcome of one scope execution
type Result struct {
	// MigrationsExecuted is the number of newly applied migration files
	MigrationsExecuted int
	// TargetSchemaVersion is the highest applied version, "" when the schema
	// only holds repeatable migrations
	TargetSchemaVersion string
}

// Migrator applies migrations for one scope at a time
type Migrator interface {
	// Migrate scans the scope locations and applies all pending migrations
	Migrate(ctx context.Context, scope Scope) (*Result, error)

	// Clean destructively drops the scope's target schema and everything in
	// it, including the history table. Intended for local development only.
	Clean(ctx context.Context, scope Scope) error
}

// ConnConfig holds database connection settings for a driver package
type ConnConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}
