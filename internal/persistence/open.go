package persistence

import (
	"context"
	"fmt"

	"clinicore/internal/blob"
	"clinicore/internal/config"
	"clinicore/internal/infra/persistence/badger"
	"clinicore/internal/infra/persistence/blobdoc"
	"clinicore/internal/infra/persistence/postgres"
	"clinicore/internal/infra/persistence/redis"
	"clinicore/internal/infra/persistence/sqlite"
	"clinicore/internal/logger"
	"clinicore/pkg/domain"
)

// Storage drivers selectable through storage.driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverBadger   = "badger"
	DriverBlob     = "blob"
)

// OpenBackend constructs the backend named by cfg.Storage.Driver.
func OpenBackend(ctx context.Context, cfg *config.Config, opts ...Option) (Backend, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	key := cfg.Storage.DatasetKey
	if key == "" {
		key = DatasetKey
	}
	switch cfg.Storage.Driver {
	case DriverMemory:
		return NewMemoryBackend(), nil
	case DriverSQLite, "":
		return sqlite.Open(ctx, cfg.Storage.SQLitePath, key)
	case DriverPostgres:
		return postgres.Open(ctx, cfg.Storage.PostgresDSN, key)
	case DriverRedis:
		return redis.Open(ctx, redis.Config{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		}, key)
	case DriverBadger:
		bcfg := badger.DefaultConfig(cfg.Storage.BadgerDir)
		bcfg.Logger = logger.OrNop(o.log)
		return badger.Open(bcfg, key)
	case DriverBlob:
		store, err := blob.Open(ctx, BlobConfig(cfg.Blob))
		if err != nil {
			return nil, err
		}
		return blobdoc.New(store, key), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Open selects the backend from configuration and loads the dataset.
func Open(ctx context.Context, cfg *config.Config, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	backend, err := OpenBackend(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(ctx, backend, engine, opts...)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}

// BlobConfig maps the [blob] configuration section onto blob.Config.
func BlobConfig(c config.BlobConfig) blob.Config {
	return blob.Config{
		Driver: c.Driver,
		FSRoot: c.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.S3Bucket,
			Region:          c.S3Region,
			Endpoint:        c.S3Endpoint,
			PathStyle:       c.S3PathStyle,
			AccessKeyID:     c.S3AccessKey,
			SecretAccessKey: c.S3SecretKey,
		},
	}
}
