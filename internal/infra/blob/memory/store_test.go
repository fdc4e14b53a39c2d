package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	assert.Equal(t, core.DriverMemory, s.Driver())

	meta := map[string]string{"k": "v"}
	info, err := s.Put(ctx, "b/2", strings.NewReader("two"), core.PutOptions{ContentType: "text/plain", Metadata: meta})
	require.NoError(t, err)
	meta["k"] = "mutated"
	assert.Equal(t, "v", info.Metadata["k"])

	_, err = s.Put(ctx, "a/1", strings.NewReader("one"), core.PutOptions{})
	require.NoError(t, err)
	_, err = s.Put(ctx, "a/1", strings.NewReader("again"), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	_, err = s.Put(ctx, "a/1", strings.NewReader("replaced"), core.PutOptions{Overwrite: true})
	require.NoError(t, err)
	_, rc, err := s.Get(ctx, "a/1")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(b))

	head, err := s.Head(ctx, "b/2")
	require.NoError(t, err)
	assert.Equal(t, "v", head.Metadata["k"])
	head.Metadata["k"] = "changed"
	again, err := s.Head(ctx, "b/2")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"])

	list, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a/1", list[0].Key)

	ok, err := s.Delete(ctx, "a/1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(ctx, "a/1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Get(ctx, "a/1")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.Head(ctx, "a/1")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.PresignURL(ctx, "b/2", core.SignedURLOptions{})
	require.ErrorIs(t, err, core.ErrUnsupported)
	_, err = s.Put(ctx, " ", strings.NewReader(""), core.PutOptions{})
	require.Error(t, err)
}
