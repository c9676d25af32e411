package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/corems/migrations/internal/engine"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to PostgreSQL and verifies the connection
func Open(config engine.ConnConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", BuildDSN(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	// Migrations run strictly sequentially on one connection
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return db, nil
}

// BuildDSN builds a pgx keyword/value connection string. Migration files may
// contain multiple statements, which requires the simple query protocol.
func BuildDSN(config engine.ConnConfig) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s default_query_exec_mode=simple_protocol",
		config.Host,
		config.Port,
		config.Username,
		config.Password,
		config.Database,
		config.SSLMode,
	)
}

// Dialect implements engine.Dialect for PostgreSQL
type Dialect struct{}

// Name returns the dialect name
func (Dialect) Name() string {
	return "postgres"
}

// QuoteIdentifier quotes a PostgreSQL identifier
func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Rebind converts ? placeholders to $1, $2, ...
func (Dialect) Rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateSchema creates the schema if it does not exist
func (d Dialect) CreateSchema(ctx context.Context, db *sql.DB, schema string) error {
	_, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+d.QuoteIdentifier(schema))
	return err
}

// DropSchema drops the schema and all objects in it
func (d Dialect) DropSchema(ctx context.Context, db *sql.DB, schema string) error {
	_, err := db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+d.QuoteIdentifier(schema)+" CASCADE")
	return err
}

// UseSchema sets the search_path for the transaction so unqualified names in
// migration files resolve against the target schema
func (d Dialect) UseSchema(ctx context.Context, tx *sql.Tx, schema string) error {
	_, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+d.QuoteIdentifier(schema)+", public")
	return err
}
