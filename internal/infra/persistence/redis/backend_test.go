package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	values map[string]string
	setErr error
	getErr error
	ttls   []time.Duration
	closed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.ttls = append(f.ttls, expiration)
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestBackendLoadMissingKey(t *testing.T) {
	b := NewWithClient(newFakeClient(), "clinicore:dataset")
	payload, ok, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, payload)
}

func TestBackendSaveThenLoad(t *testing.T) {
	client := newFakeClient()
	b := NewWithClient(client, "clinicore:dataset")
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, []byte(`{"patients":[]}`)))
	require.NoError(t, b.Save(ctx, []byte(`{"patients":[{"id":"p1"}]}`)))

	payload, ok, err := b.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"patients":[{"id":"p1"}]}`, string(payload))
	assert.Equal(t, []time.Duration{0, 0}, client.ttls, "dataset must never expire")

	require.NoError(t, b.Close())
	assert.True(t, client.closed)
}

func TestBackendPropagatesErrors(t *testing.T) {
	client := newFakeClient()
	client.getErr = errors.New("connection reset")
	client.setErr = errors.New("READONLY")
	b := NewWithClient(client, "k")

	_, _, err := b.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	err = b.Save(context.Background(), []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set k")
}

func TestOpenFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, Config{Addr: "127.0.0.1:1"}, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
