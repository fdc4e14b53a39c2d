// Package redis stores the serialized dataset under a single Redis key.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultAddr is used when no address is configured.
const DefaultAddr = "localhost:6379"

// Client is the subset of the go-redis API the backend needs. *redis.Client
// satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Backend persists the dataset document as a plain string value.
type Backend struct {
	client Client
	key    string
}

// Open dials Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, key string) (*Backend, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Backend{client: client, key: key}, nil
}

// NewWithClient wraps an existing client, which is useful when sharing a
// connection pool or in tests.
func NewWithClient(client Client, key string) *Backend {
	return &Backend{client: client, key: key}
}

// Load returns the stored document, or ok=false when the key does not exist.
func (b *Backend) Load(ctx context.Context) ([]byte, bool, error) {
	payload, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", b.key, err)
	}
	return payload, true, nil
}

// Save overwrites the stored document without expiry.
func (b *Backend) Save(ctx context.Context, payload []byte) error {
	if err := b.client.Set(ctx, b.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", b.key, err)
	}
	return nil
}

// Close releases the client.
func (b *Backend) Close() error { return b.client.Close() }
