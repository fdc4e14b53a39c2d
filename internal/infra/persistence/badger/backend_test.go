package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBackendInMemoryRoundTrip(t *testing.T) {
	b, err := Open(InMemoryConfig(), "clinicore:dataset")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	ctx := context.Background()

	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Save(ctx, []byte(`{"v":1}`)))
	require.NoError(t, b.Save(ctx, []byte(`{"v":2}`)))
	payload, ok, err := b.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"v":2}`, string(payload))
}

func TestBackendPersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "badger")
	cfg := DefaultConfig(dir)
	cfg.Logger = zap.NewNop()

	b, err := Open(cfg, "k")
	require.NoError(t, err)
	require.NoError(t, b.Save(context.Background(), []byte("snapshot")))
	require.NoError(t, b.Close())

	reopened, err := Open(cfg, "k")
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	payload, ok, err := reopened.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "snapshot", string(payload))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, "k")
	require.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	b, err := Open(InMemoryConfig(), "k")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Save(ctx, nil), context.Canceled)
	_, _, err = b.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
