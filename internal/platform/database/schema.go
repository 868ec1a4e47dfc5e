package database

import (
	"context"
	"fmt"
)

type table struct {
	name    string
	ddl     string
	indexes []string
}

// tables lists every table in creation order; DropAll walks it backwards.
var tables = []table{
	{
		name: "key_value_store",
		ddl: `
			CREATE TABLE IF NOT EXISTS key_value_store (
				id BIGSERIAL PRIMARY KEY,
				installation_id TEXT NOT NULL,
				key TEXT NOT NULL,
				value TEXT NOT NULL,
				date_created TIMESTAMPTZ NOT NULL DEFAULT now(),
				date_modified TIMESTAMPTZ NOT NULL DEFAULT now(),
				CONSTRAINT uq_key_value_store_installation_key UNIQUE (installation_id, key)
			)`,
		indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_key_value_store_installation ON key_value_store(installation_id)",
		},
	},
	{
		name: "job_audit",
		ddl: `
			CREATE TABLE IF NOT EXISTS job_audit (
				job_id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				status TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				enqueued_at TIMESTAMPTZ NOT NULL,
				ended_at TIMESTAMPTZ
			)`,
		indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_job_audit_status ON job_audit(status)",
		},
	},
}

// TableNames returns the managed tables in creation order.
func TableNames() []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.name)
	}
	return names
}

// CreateAll creates the schema (when one is configured) and every table.
// It is idempotent.
func (d *DB) CreateAll(ctx context.Context) error {
	if d.schema != "" && d.schema != "public" {
		if _, err := d.pool.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", d.schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", d.schema, err)
		}
	}
	for _, t := range tables {
		if _, err := d.pool.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
		for _, idx := range t.indexes {
			if _, err := d.pool.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("create index on %s: %w", t.name, err)
			}
		}
	}
	return nil
}

// DropAll removes everything CreateAll made. A dedicated schema is dropped
// whole; otherwise tables are dropped in reverse creation order.
func (d *DB) DropAll(ctx context.Context) error {
	if d.schema != "" && d.schema != "public" {
		if _, err := d.pool.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %q CASCADE", d.schema)); err != nil {
			return fmt.Errorf("drop schema %s: %w", d.schema, err)
		}
		return nil
	}
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := d.pool.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", tables[i].name)); err != nil {
			return fmt.Errorf("drop table %s: %w", tables[i].name, err)
		}
	}
	return nil
}

// TableExists reports whether name is visible on the search_path.
func (d *DB) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := d.pool.QueryRowContext(ctx, "SELECT to_regclass($1) IS NOT NULL", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", name, err)
	}
	return exists, nil
}
