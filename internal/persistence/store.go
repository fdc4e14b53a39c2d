// Package persistence makes the in-memory entity store durable. After every
// committed transaction the whole dataset is serialized to JSON and written to
// a Backend under a single key.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"clinicore/internal/infra/persistence/memory"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/pkg/domain"
)

// DatasetKey is the fixed key the dataset document is stored under.
const DatasetKey = "clinicore:dataset"

// Backend stores one opaque document.
type Backend interface {
	Load(ctx context.Context) ([]byte, bool, error)
	Save(ctx context.Context, payload []byte) error
	Close() error
}

var _ domain.PersistentStore = (*Store)(nil)

// Store wraps memory.Store and saves a snapshot after each commit. A save
// failure is returned to the caller even though the in-memory commit stands;
// the next successful save catches the backend up.
type Store struct {
	*memory.Store
	backend Backend
	mu      sync.Mutex
	dirty   atomic.Bool
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option customises a Store.
type Option func(*options)

type options struct {
	log       *zap.Logger
	metrics   *metrics.Metrics
	memoryOps []memory.Option
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithMetrics records transaction and save metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithMemoryOptions forwards options to the wrapped memory.Store.
func WithMemoryOptions(opts ...memory.Option) Option {
	return func(o *options) { o.memoryOps = append(o.memoryOps, opts...) }
}

// NewStore loads the dataset from backend once and returns the durable store.
func NewStore(ctx context.Context, backend Backend, engine *domain.RulesEngine, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	s := &Store{
		Store:   memory.NewStore(engine, o.memoryOps...),
		backend: backend,
		log:     logger.OrNop(o.log).Named("persistence"),
		metrics: o.metrics,
	}
	payload, ok, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if ok && len(payload) > 0 {
		var snapshot memory.Snapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, fmt.Errorf("decode dataset: %w", err)
		}
		s.ImportState(snapshot)
		s.log.Info("dataset loaded", zap.Int("bytes", len(payload)))
	}
	return s, nil
}

// RunInTransaction commits in memory, then saves the snapshot.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	s.metrics.ObserveTransaction(err)
	if err != nil {
		return res, err
	}
	if err := s.Flush(context.WithoutCancel(ctx)); err != nil {
		return res, err
	}
	return res, nil
}

// Flush serializes the current state and saves it.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	payload, err := json.Marshal(s.ExportState())
	if err == nil {
		err = s.backend.Save(ctx, payload)
	}
	s.metrics.ObservePersist(time.Since(start), err)
	if err != nil {
		s.dirty.Store(true)
		s.log.Error("dataset save failed; in-memory state is ahead of storage", zap.Error(err))
		return fmt.Errorf("persist dataset: %w", err)
	}
	s.dirty.Store(false)
	return nil
}

// Dirty reports whether the last save failed.
func (s *Store) Dirty() bool { return s.dirty.Load() }

// Close saves any unsaved state and releases the backend.
func (s *Store) Close(ctx context.Context) error {
	var flushErr error
	if s.Dirty() {
		flushErr = s.Flush(ctx)
	}
	if err := s.backend.Close(); err != nil {
		return err
	}
	return flushErr
}

// MemoryBackend keeps the document in process memory. It backs the memory
// storage driver and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	payload []byte
	saves   int
	// FailSaves makes Save return an error; used to exercise failure paths.
	FailSaves error
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

// Load implements Backend.
func (b *MemoryBackend) Load(context.Context) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.payload == nil {
		return nil, false, nil
	}
	return append([]byte(nil), b.payload...), true, nil
}

// Save implements Backend.
func (b *MemoryBackend) Save(_ context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailSaves != nil {
		return b.FailSaves
	}
	b.payload = append([]byte(nil), payload...)
	b.saves++
	return nil
}

// Close implements Backend.
func (b *MemoryBackend) Close() error { return nil }

// Saves returns how many saves succeeded.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}
