package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/cloudsync"
	"clinicore/internal/config"
	"clinicore/internal/core"
	"clinicore/internal/metrics"
	"clinicore/pkg/domain"
)

func newTestRouter(t *testing.T) (http.Handler, *core.Service) {
	t.Helper()
	m := metrics.New()
	svc := core.NewInMemoryService(core.WithMetrics(m))
	cfg := config.Default().Sync
	cfg.BaseURL = "http://127.0.0.1:1"
	cfg.ProbeTimeout = time.Second
	return newRouter(nil, m, svc.SyncEngine(cfg, "org-1", nil)), svc
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouterHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouterSyncStatus(t *testing.T) {
	h, svc := newTestRouter(t)
	sess := &domain.Session{ActorID: "u-1", OrganizationID: "org-1"}
	_, _, err := svc.CreateProduct(t.Context(), sess, domain.Product{OrganizationID: "org-1", Name: "ORS sachet"})
	require.NoError(t, err)

	rec := get(t, h, http.MethodGet, "/sync/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st cloudsync.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Pending)
	assert.Nil(t, st.LastSyncAt)
}

func TestRouterSyncRunOffline(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := get(t, h, http.MethodPost, "/sync/run")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}
