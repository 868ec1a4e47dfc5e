package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"busybeaver/internal/platform/database"
	"busybeaver/pkg/platform/sentinel"
)

// PostgresStore persists pairs in the key_value_store table. Statements run
// on whatever executor the database handle resolves, so writes made during a
// test session are rolled back with it.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, installationID, key, value string) error {
	query := `
		INSERT INTO key_value_store (installation_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (installation_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			date_modified = now()
	`
	if _, err := s.db.Executor(ctx).ExecContext(ctx, query, installationID, key, value); err != nil {
		return fmt.Errorf("upsert key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, installationID, key string) (string, error) {
	var value string
	err := s.db.Executor(ctx).QueryRowContext(ctx,
		"SELECT value FROM key_value_store WHERE installation_id = $1 AND key = $2",
		installationID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("query key: %w", err)
	}
	return value, nil
}

func (s *PostgresStore) Delete(ctx context.Context, installationID, key string) error {
	res, err := s.db.Executor(ctx).ExecContext(ctx,
		"DELETE FROM key_value_store WHERE installation_id = $1 AND key = $2",
		installationID, key,
	)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, installationID string) ([]string, error) {
	rows, err := s.db.Executor(ctx).QueryContext(ctx,
		"SELECT key FROM key_value_store WHERE installation_id = $1 ORDER BY key",
		installationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
