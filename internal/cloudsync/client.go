// Package cloudsync mirrors tracked entities to the remote authority: it
// pushes the outbound change log and pulls remote modifications back with
// whole-record last-writer-wins merges.
package cloudsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"clinicore/pkg/domain"
)

// Client is the REST contract of the remote authority.
type Client interface {
	// Create posts a new row and returns the id the authority assigned.
	Create(ctx context.Context, kind domain.EntityType, payload json.RawMessage) (string, error)
	Update(ctx context.Context, kind domain.EntityType, remoteID string, payload json.RawMessage) error
	Delete(ctx context.Context, kind domain.EntityType, remoteID string) error
	// Pull returns rows modified after since. A zero since requests everything.
	Pull(ctx context.Context, kind domain.EntityType, since time.Time) ([]json.RawMessage, error)
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ClientConfig holds the remote authority settings.
type ClientConfig struct {
	BaseURL        string
	Token          string
	OrganizationID string
	Timeout        time.Duration
	// RatePerSecond caps outgoing requests; zero disables limiting.
	RatePerSecond float64
}

// DefaultRequestTimeout bounds one remote call.
const DefaultRequestTimeout = 30 * time.Second

var basePaths = map[domain.EntityType]string{
	domain.EntityPatient:      "/patients",
	domain.EntityEncounter:    "/encounters",
	domain.EntityPrescription: "/prescriptions",
	domain.EntitySale:         "/sales",
	domain.EntityProduct:      "/products",
}

// BasePath returns the collection path for kind.
func BasePath(kind domain.EntityType) string {
	if p, ok := basePaths[kind]; ok {
		return p
	}
	return "/" + string(kind) + "s"
}

// HTTPClient talks JSON over HTTP to the remote authority.
type HTTPClient struct {
	baseURL    string
	token      string
	orgID      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client. httpClient may be nil.
func NewHTTPClient(cfg ClientConfig, httpClient *http.Client) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		orgID:      cfg.OrganizationID,
		httpClient: httpClient,
	}
	if cfg.RatePerSecond > 0 {
		burst := int(cfg.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

// Create implements Client.
func (c *HTTPClient) Create(ctx context.Context, kind domain.EntityType, payload json.RawMessage) (string, error) {
	body, err := c.do(ctx, http.MethodPost, BasePath(kind), nil, payload)
	if err != nil {
		return "", err
	}
	for _, path := range []string{"id", "data.id"} {
		if id := gjson.GetBytes(body, path); id.Exists() && id.String() != "" {
			return id.String(), nil
		}
	}
	return "", nil
}

// Update implements Client.
func (c *HTTPClient) Update(ctx context.Context, kind domain.EntityType, remoteID string, payload json.RawMessage) error {
	_, err := c.do(ctx, http.MethodPut, BasePath(kind)+"/"+url.PathEscape(remoteID), nil, payload)
	return err
}

// Delete implements Client.
func (c *HTTPClient) Delete(ctx context.Context, kind domain.EntityType, remoteID string) error {
	_, err := c.do(ctx, http.MethodDelete, BasePath(kind)+"/"+url.PathEscape(remoteID), nil, nil)
	return err
}

// Pull implements Client. The response is either a bare array or an object
// with a data array.
func (c *HTTPClient) Pull(ctx context.Context, kind domain.EntityType, since time.Time) ([]json.RawMessage, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("modified_since", since.UTC().Format(time.RFC3339))
	}
	if c.orgID != "" {
		query.Set("org_id", c.orgID)
	}
	body, err := c.do(ctx, http.MethodGet, BasePath(kind), query, nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("pull %s: invalid JSON response", kind)
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsArray() {
		doc = doc.Get("data")
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("pull %s: response has no row array", kind)
	}
	var rows []json.RawMessage
	doc.ForEach(func(_, row gjson.Result) bool {
		if row.IsObject() {
			rows = append(rows, json.RawMessage(row.Raw))
		}
		return true
	})
	return rows, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, payload json.RawMessage) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.orgID != "" {
		req.Header.Set("X-Organization-ID", c.orgID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
