package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/aretw0/aether/pkg/core"
)

// SchemaVersion is the current schema version of the database.
const SchemaVersion = 1

// Migrate ensures the schema exists and is at the current SchemaVersion.
func Migrate(ctx context.Context, db *sql.DB, schema core.Schema) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range schema {
		if _, err := tx.ExecContext(ctx, CreateTable(t)); err != nil {
			return fmt.Errorf("migrate: create %s table: %w", t.Name, err)
		}
		if t.HasColumn("user_id") {
			idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(user_id);`, quote("idx_"+t.Name+"_user_id"), quote(t.Name))
			if _, err := tx.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("migrate: create %s index: %w", t.Name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?);`, SchemaVersion); err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

// CreateTable renders the DDL of a table.
func CreateTable(t core.TableSchema) string {
	var defs []string
	for _, c := range t.Columns {
		def := quote(c.Name) + " " + string(c.Type)
		if c.Name == "id" {
			def += " PRIMARY KEY"
		}
		if c.NotNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	for _, group := range t.Unique {
		cols := make([]string, len(group))
		for i, c := range group {
			cols[i] = quote(c)
		}
		defs = append(defs, "UNIQUE("+strings.Join(cols, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);", quote(t.Name), strings.Join(defs, ",\n\t"))
}
