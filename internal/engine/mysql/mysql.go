package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/corems/migrations/internal/engine"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection
func Open(config engine.ConnConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", BuildDSN(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return db, nil
}

// BuildDSN builds a go-sql-driver DSN. multiStatements is required because
// migration files usually hold more than one statement.
func BuildDSN(config engine.ConnConfig) string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)
}

// Dialect implements engine.Dialect for MySQL, where a schema and a database
// are the same thing.
type Dialect struct{}

// Name returns the dialect name
func (Dialect) Name() string {
	return "mysql"
}

// QuoteIdentifier quotes a MySQL identifier
func (Dialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Rebind is a no-op, MySQL uses ? placeholders natively
func (Dialect) Rebind(query string) string {
	return query
}

// CreateSchema creates the schema if it does not exist
func (d Dialect) CreateSchema(ctx context.Context, db *sql.DB, schema string) error {
	_, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+d.QuoteIdentifier(schema))
	return err
}

// DropSchema drops the schema and all objects in it
func (d Dialect) DropSchema(ctx context.Context, db *sql.DB, schema string) error {
	_, err := db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+d.QuoteIdentifier(schema))
	return err
}

// UseSchema selects the schema as the default database for the transaction's
// connection
func (d Dialect) UseSchema(ctx context.Context, tx *sql.Tx, schema string) error {
	_, err := tx.ExecContext(ctx, "USE "+d.QuoteIdentifier(schema))
	return err
}
