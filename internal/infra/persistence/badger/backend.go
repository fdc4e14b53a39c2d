// Package badger stores the serialized dataset in an embedded BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Config holds configuration for the embedded database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *zap.Logger
}

// DefaultConfig returns durable defaults rooted at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a configuration without disk I/O.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// zapLogger adapts zap to BadgerDB's Logger interface.
type zapLogger struct {
	log *zap.SugaredLogger
}

func (l zapLogger) Errorf(format string, args ...any)   { l.log.Errorf(format, args...) }
func (l zapLogger) Warningf(format string, args ...any) { l.log.Warnf(format, args...) }
func (l zapLogger) Infof(format string, args ...any)    { l.log.Infof(format, args...) }
func (l zapLogger) Debugf(format string, args ...any)   { l.log.Debugf(format, args...) }

// Backend persists the dataset document under a single key.
type Backend struct {
	db  *badger.DB
	key []byte
}

// Open opens (creating if needed) the database described by cfg.
func Open(cfg Config, key string) (*Backend, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(zapLogger{log: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Backend{db: db, key: []byte(key)}, nil
}

// Load returns the stored document, or ok=false when nothing was saved yet.
func (b *Backend) Load(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var payload []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key)
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", b.key, err)
	}
	return payload, true, nil
}

// Save overwrites the stored document.
func (b *Backend) Save(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key, payload)
	}); err != nil {
		return fmt.Errorf("write %s: %w", b.key, err)
	}
	return nil
}

// Close flushes and closes the database.
func (b *Backend) Close() error { return b.db.Close() }
