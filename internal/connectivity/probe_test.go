package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReachable(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, HealthPath, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL+"/", time.Second)
	assert.Equal(t, srv.URL+HealthPath, p.URL())
	assert.True(t, p.Reachable(context.Background()))
	assert.Equal(t, 1, hits)
}

func TestUnreachableCases(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		assert.False(t, New(srv.URL, time.Second).Reachable(context.Background()))
	})
	t.Run("client error still reachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		assert.True(t, New(srv.URL, time.Second).Reachable(context.Background()))
	})
	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)
		start := time.Now()
		assert.False(t, New(srv.URL, 50*time.Millisecond).Reachable(context.Background()))
		assert.Less(t, time.Since(start), 2*time.Second)
	})
	t.Run("refused", func(t *testing.T) {
		assert.False(t, New("http://127.0.0.1:1", time.Second).Reachable(context.Background()))
	})
	t.Run("bad url", func(t *testing.T) {
		assert.False(t, New("://nope", time.Second).Reachable(context.Background()))
	})
}

func TestDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, New("http://x", 0).timeout)
}
