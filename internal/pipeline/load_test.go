package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gradsync/internal/batch"
	"github.com/sells-group/gradsync/internal/store"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := store.NewSQLite(filepath.Join(dir, "sync.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	path := filepath.Join(dir, "enriched.jsonl")
	require.NoError(t, batch.WriteFile(path, records()))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := Load(ctx, st, path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Read)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(3), res.Inserted)

	res, err = Load(ctx, st, path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Inserted)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), nil, filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
}
