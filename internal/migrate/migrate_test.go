package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/earn-hire/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_documents.sql", "00002_claim_limiter.sql"}, files)

	for _, f := range files {
		raw, err := fs.ReadFile(migrations.FS, f)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(raw), "-- +goose Up"), f)
		require.Contains(t, string(raw), "-- +goose Down", f)
	}
}
