// Package connectivity checks whether the remote authority can be reached.
package connectivity

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"clinicore/internal/logger"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// HealthPath is appended to the base URL.
const HealthPath = "/health"

// Probe issues GET {base}/health. Any transport error, timeout or 5xx answer
// counts as unreachable.
type Probe struct {
	url     string
	timeout time.Duration
	client  *http.Client
	log     *zap.Logger
}

// Option configures a Probe.
type Option func(*Probe)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(p *Probe) { p.client = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Probe) { p.log = l } }

// New returns a probe for baseURL. A non-positive timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration, opts ...Option) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Probe{
		url:     strings.TrimRight(baseURL, "/") + HealthPath,
		timeout: timeout,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrNop(p.log).Named("connectivity")
	return p
}

// URL returns the probed endpoint.
func (p *Probe) URL() string { return p.url }

// Reachable reports whether the remote authority answered in time.
func (p *Probe) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.Debug("probe request invalid", zap.String("url", p.url), zap.Error(err))
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug("remote unreachable", zap.String("url", p.url), zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusInternalServerError {
		p.log.Debug("remote unhealthy", zap.String("url", p.url), zap.Int("status", resp.StatusCode))
		return false
	}
	return true
}
