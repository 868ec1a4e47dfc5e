package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busybeaver/internal/platform/config"
)

func TestWithSearchPath(t *testing.T) {
	tests := []struct {
		name   string
		dsn    string
		schema string
		want   string
	}{
		{
			name: "no schema leaves dsn untouched",
			dsn:  "postgres://u:p@localhost:5432/db?sslmode=disable",
			want: "postgres://u:p@localhost:5432/db?sslmode=disable",
		},
		{
			name:   "url dsn gains query parameter",
			dsn:    "postgres://u:p@localhost:5432/db?sslmode=disable",
			schema: "test_abc",
			want:   "postgres://u:p@localhost:5432/db?search_path=test_abc&sslmode=disable",
		},
		{
			name:   "keyword dsn gains keyword",
			dsn:    "host=localhost dbname=db",
			schema: "test_abc",
			want:   "host=localhost dbname=db search_path=test_abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := withSearchPath(tt.dsn, tt.schema)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, config.DatabaseConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL is required")

	_, err = Open(ctx, config.DatabaseConfig{URL: "postgres://localhost/db", Schema: "Robert'); DROP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema name")
}

func TestTableNamesOrder(t *testing.T) {
	assert.Equal(t, []string{"key_value_store", "job_audit"}, TableNames())
}
