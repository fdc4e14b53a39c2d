package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "clinic.db")

	b, err := Open(ctx, path, "clinicore:dataset")
	require.NoError(t, err)
	assert.Equal(t, path, b.Path())

	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Save(ctx, []byte(`{"v":1}`)))
	require.NoError(t, b.Save(ctx, []byte(`{"v":2}`)))
	require.NoError(t, b.Close())

	reopened, err := Open(ctx, path, "clinicore:dataset")
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	payload, ok, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(payload))

	var rows int
	require.NoError(t, reopened.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM state`).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestBackendKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := Open(ctx, path, "a")
	require.NoError(t, err)
	defer func() { _ = a.Close() }()
	require.NoError(t, a.Save(ctx, []byte("A")))

	b, err := Open(ctx, path, "b")
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
