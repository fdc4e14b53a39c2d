package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"clinicore/internal/audit"
	"clinicore/internal/changes"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/pkg/domain"
)

var (
	// ErrSyncInProgress is returned when another cycle holds the in-flight flag.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrOffline is returned when the remote authority is unreachable.
	ErrOffline = errors.New("remote authority unreachable")
)

// LastSyncSetting is the dataset setting holding the last successful pull
// watermark.
const LastSyncSetting = "cloudsync.last_sync_at"

// DefaultInterval is the timer period used when none is configured.
const DefaultInterval = 5 * time.Minute

// DefaultMaxRetries is the attempt count after which a record is reported stuck.
const DefaultMaxRetries = 5

// SystemActor identifies sync activity in the audit log.
const SystemActor = "system:cloudsync"

// Prober reports remote reachability.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// Config tunes the engine.
type Config struct {
	Interval       time.Duration
	MaxRetries     int
	Entities       []domain.EntityType
	OrganizationID string
}

// Report summarises one sync cycle.
type Report struct {
	Pushed       int           `json:"pushed"`
	Failed       int           `json:"failed"`
	Pulled       int           `json:"pulled"`
	Inserted     int           `json:"inserted"`
	Overwritten  int           `json:"overwritten"`
	Unchanged    int           `json:"unchanged"`
	Skipped      int           `json:"skipped"`
	Deferred     int           `json:"deferred"`
	Held         int           `json:"held"`
	PendingAfter int           `json:"pending_after"`
	Stuck        int           `json:"stuck"`
	Complete     bool          `json:"complete"`
	Duration     time.Duration `json:"duration"`
}

// Status is the read-only view of the engine.
type Status struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	Pending    int        `json:"pending"`
	Stuck      int        `json:"stuck"`
	InFlight   bool       `json:"in_flight"`
	LastError  string     `json:"last_error,omitempty"`
}

// Engine pushes the change log and pulls remote modifications. At most one
// cycle runs at a time across the timer and SyncNow.
type Engine struct {
	store   domain.PersistentStore
	changes *changes.Log
	client  Client
	probe   Prober
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	audit   *audit.Logger

	inFlight atomic.Bool

	mu        sync.Mutex
	lastError string
	cron      *cron.Cron
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithAudit records a SYNC entry per completed cycle.
func WithAudit(a *audit.Logger) Option { return func(e *Engine) { e.audit = a } }

// NewEngine wires the engine. Entities defaults to changes.DefaultEntities.
func NewEngine(store domain.PersistentStore, client Client, probe Prober, cfg Config, opts ...Option) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if len(cfg.Entities) == 0 {
		cfg.Entities = changes.DefaultEntities
	}
	e := &Engine{
		store:   store,
		changes: changes.NewLog(store),
		client:  client,
		probe:   probe,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrNop(e.log).Named("cloudsync")
	return e
}

// SyncNow runs push then pull immediately.
func (e *Engine) SyncNow(ctx context.Context) (Report, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return Report{}, ErrSyncInProgress
	}
	defer e.inFlight.Store(false)

	if !e.probe.Reachable(ctx) {
		e.setLastError(ErrOffline.Error())
		return Report{}, ErrOffline
	}
	return e.cycle(ctx)
}

// tick is the timer body: it only syncs when reachable, idle and there is
// something to push.
func (e *Engine) tick(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.log.Debug("sync tick skipped: in flight")
		return
	}
	defer e.inFlight.Store(false)

	if !e.probe.Reachable(ctx) {
		e.log.Debug("sync tick skipped: offline")
		return
	}
	pending, _, err := e.changes.Counts(ctx, e.cfg.MaxRetries)
	if err != nil {
		e.log.Warn("sync tick: count pending", zap.Error(err))
		return
	}
	if pending == 0 {
		return
	}
	if _, err := e.cycle(ctx); err != nil {
		e.log.Warn("scheduled sync failed", zap.Error(err))
	}
}

func (e *Engine) cycle(ctx context.Context) (Report, error) {
	started := e.store.NowFunc()()
	clock := time.Now()
	var rep Report

	since, err := e.lastSyncAt(ctx)
	if err == nil {
		err = e.push(ctx, &rep)
	}
	if err == nil {
		err = e.pull(ctx, since, &rep)
		// Deferred rows are fetched again from the same watermark.
		if err == nil && rep.Deferred == 0 {
			err = e.setLastSyncAt(ctx, started)
		}
	}

	pending, stuck, cerr := e.changes.Counts(context.WithoutCancel(ctx), e.cfg.MaxRetries)
	if cerr == nil {
		rep.PendingAfter, rep.Stuck = pending, stuck
		rep.Complete = pending == 0
		e.metrics.SetBacklog(pending, stuck)
	} else if err == nil {
		err = cerr
	}
	rep.Duration = time.Since(clock)
	e.metrics.ObserveSyncCycle(rep.Duration, err)

	switch {
	case err != nil:
		e.setLastError(err.Error())
	case rep.Failed > 0:
		e.setLastError(fmt.Sprintf("%d change records failed to push", rep.Failed))
	default:
		e.setLastError("")
	}

	e.log.Info("sync cycle finished",
		zap.Int("pushed", rep.Pushed),
		zap.Int("failed", rep.Failed),
		zap.Int("pulled", rep.Pulled),
		zap.Int("pending", rep.PendingAfter),
		zap.Int("stuck", rep.Stuck),
		zap.Duration("duration", rep.Duration),
		zap.Error(err))

	if e.audit != nil {
		e.audit.Log(context.WithoutCancel(ctx), &domain.Session{
			ActorID:        SystemActor,
			ActorName:      "Cloud sync",
			OrganizationID: e.cfg.OrganizationID,
		}, audit.Entry{
			Action:      domain.AuditSync,
			EntityType:  domain.EntityChangeRecord,
			Automated:   true,
			Description: fmt.Sprintf("pushed %d, failed %d, pulled %d, pending %d", rep.Pushed, rep.Failed, rep.Pulled, rep.PendingAfter),
		})
	}
	return rep, err
}

// push dispatches every pending record in log order. Stuck records are still
// attempted; delivery is at-least-once. Once a record fails, later records of
// the same row are held back until the next cycle so the authority never
// sees them out of order.
func (e *Engine) push(ctx context.Context, rep *Report) error {
	pending, err := e.changes.Pending(ctx)
	if err != nil {
		return err
	}
	blocked := make(map[string]bool)
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind := string(rec.EntityKind)
		key := rowKey(rec.EntityKind, rec.EntityID)
		if blocked[key] {
			rep.Held++
			e.log.Debug("push held behind failed record",
				zap.String("entity", kind),
				zap.String("id", rec.EntityID),
				zap.Int64("seq", rec.Seq))
			continue
		}
		if cause := e.pushOne(ctx, rec); cause != nil {
			blocked[key] = true
			failed, err := e.changes.RecordFailure(context.WithoutCancel(ctx), rec.ID, cause)
			if err != nil {
				return fmt.Errorf("record push failure for %s: %w", rec.ID, err)
			}
			rep.Failed++
			e.metrics.PushFailed(kind)
			e.log.Warn("push failed",
				zap.String("entity", kind),
				zap.String("id", rec.EntityID),
				zap.Int("attempts", failed.Attempts),
				zap.Bool("stuck", changes.IsStuck(failed, e.cfg.MaxRetries)),
				zap.Error(cause))
			continue
		}
		rep.Pushed++
		e.metrics.Pushed(kind)
	}
	return nil
}

func rowKey(kind domain.EntityType, id string) string {
	return string(kind) + "/" + id
}

// detachedRemoteIDSetting holds the authority's id of a row deleted locally
// before its create was pushed, until the delete itself is pushed.
func detachedRemoteIDSetting(kind domain.EntityType, id string) string {
	return "cloudsync.remote_id." + rowKey(kind, id)
}

func (e *Engine) pushOne(ctx context.Context, rec domain.ChangeRecord) error {
	payload := rec.Payload.Raw()
	switch rec.Operation {
	case domain.ActionCreate:
		remoteID, err := e.client.Create(ctx, rec.EntityKind, payload)
		if err != nil {
			return err
		}
		if remoteID == "" {
			remoteID = rec.EntityID
		}
		return e.markSynced(ctx, rec, remoteID)
	case domain.ActionUpdate:
		remoteID, err := e.remoteIDFor(ctx, rec)
		if err != nil {
			return err
		}
		if err := e.client.Update(ctx, rec.EntityKind, remoteID, payload); err != nil {
			return err
		}
		return e.markSynced(ctx, rec, "")
	case domain.ActionDelete:
		remoteID, err := e.deleteTarget(ctx, rec)
		if err != nil {
			return err
		}
		if err := e.client.Delete(ctx, rec.EntityKind, remoteID); err != nil {
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
				return err
			}
		}
		return e.markSynced(ctx, rec, "")
	default:
		return fmt.Errorf("unsupported operation %q", rec.Operation)
	}
}

// markSynced flips the record and, for creates, stores the authority's id on
// the local row. The row write is tagged remote so it is not logged again.
// When the row is already gone the id is parked in a setting for the delete.
func (e *Engine) markSynced(ctx context.Context, rec domain.ChangeRecord, remoteID string) error {
	_, err := e.store.RunInTransaction(context.WithoutCancel(ctx), func(tx domain.Transaction) error {
		tx.SetOrigin(domain.OriginRemote)
		if m, ok := mergers[rec.EntityKind]; ok && remoteID != "" {
			err := m.setRemoteID(tx, rec.EntityID, remoteID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				tx.SetSetting(detachedRemoteIDSetting(rec.EntityKind, rec.EntityID), remoteID)
			case err != nil:
				return err
			}
		}
		if rec.Operation == domain.ActionDelete {
			tx.SetSetting(detachedRemoteIDSetting(rec.EntityKind, rec.EntityID), "")
		}
		_, err := changes.MarkSynced(tx, rec.ID)
		return err
	})
	return err
}

// deleteTarget prefers the remote id captured in the delete payload, then a
// parked id, then the local id.
func (e *Engine) deleteTarget(ctx context.Context, rec domain.ChangeRecord) (string, error) {
	if id := rec.Payload.Get("remote_id").String(); id != "" {
		return id, nil
	}
	target := rec.EntityID
	err := e.store.View(ctx, func(v domain.TransactionView) error {
		if id, ok := v.Setting(detachedRemoteIDSetting(rec.EntityKind, rec.EntityID)); ok && id != "" {
			target = id
		}
		return nil
	})
	return target, err
}

func (e *Engine) remoteIDFor(ctx context.Context, rec domain.ChangeRecord) (string, error) {
	remoteID := ""
	if m, ok := mergers[rec.EntityKind]; ok {
		err := e.store.View(ctx, func(v domain.TransactionView) error {
			remoteID, _ = m.remoteID(v, rec.EntityID)
			return nil
		})
		if err != nil {
			return "", err
		}
	}
	if remoteID != "" {
		return remoteID, nil
	}
	return payloadRemoteID(rec.Payload, rec.EntityID), nil
}

func payloadRemoteID(payload domain.ChangePayload, fallback string) string {
	if id := payload.Get("remote_id").String(); id != "" {
		return id
	}
	return fallback
}

// pull fetches every tracked kind concurrently and merges each kind in its
// own transaction, parents first.
func (e *Engine) pull(ctx context.Context, since time.Time, rep *Report) error {
	kinds := make([]domain.EntityType, 0, len(e.cfg.Entities))
	for _, kind := range e.cfg.Entities {
		if Mergeable(kind) {
			kinds = append(kinds, kind)
		}
	}
	sortForMerge(kinds)
	fetched := make([][]json.RawMessage, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			rows, err := e.client.Pull(gctx, kind, since)
			if err != nil {
				return fmt.Errorf("pull %s: %w", kind, err)
			}
			fetched[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, kind := range kinds {
		if len(fetched[i]) == 0 {
			continue
		}
		counts, err := e.mergeKind(ctx, kind, fetched[i])
		if err != nil {
			return err
		}
		for outcome, n := range counts {
			for range n {
				e.metrics.Pulled(string(kind), outcome)
			}
		}
		rep.Pulled += len(fetched[i])
		rep.Inserted += counts[OutcomeInserted]
		rep.Overwritten += counts[OutcomeOverwritten]
		rep.Unchanged += counts[OutcomeUnchanged]
		rep.Skipped += counts[OutcomeSkipped]
		rep.Deferred += counts[OutcomeDeferred]
	}
	return nil
}

func (e *Engine) mergeKind(ctx context.Context, kind domain.EntityType, rows []json.RawMessage) (map[string]int, error) {
	m := mergers[kind]
	var counts map[string]int
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		counts = make(map[string]int, 5)
		tx.SetOrigin(domain.OriginRemote)
		refs := newRefResolver(tx)
		for _, raw := range rows {
			outcome, err := m.merge(tx, refs, raw)
			if err != nil {
				return err
			}
			counts[outcome]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", kind, err)
	}
	if counts[OutcomeSkipped] > 0 {
		e.log.Warn("pulled rows skipped", zap.String("entity", string(kind)), zap.Int("count", counts[OutcomeSkipped]))
	}
	if counts[OutcomeDeferred] > 0 {
		e.log.Warn("pulled rows deferred until their parent is pulled",
			zap.String("entity", string(kind)), zap.Int("count", counts[OutcomeDeferred]))
	}
	return counts, nil
}

func (e *Engine) lastSyncAt(ctx context.Context) (time.Time, error) {
	var out time.Time
	err := e.store.View(ctx, func(v domain.TransactionView) error {
		raw, ok := v.Setting(LastSyncSetting)
		if !ok || raw == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", LastSyncSetting, err)
		}
		out = t
		return nil
	})
	return out, err
}

func (e *Engine) setLastSyncAt(ctx context.Context, t time.Time) error {
	_, err := e.store.RunInTransaction(context.WithoutCancel(ctx), func(tx domain.Transaction) error {
		tx.SetSetting(LastSyncSetting, t.UTC().Format(time.RFC3339Nano))
		return nil
	})
	return err
}

func (e *Engine) setLastError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.mu.Unlock()
}

// Status reports the backlog and the outcome of the last cycle.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, stuck, err := e.changes.Counts(ctx, e.cfg.MaxRetries)
	if err != nil {
		return Status{}, err
	}
	last, err := e.lastSyncAt(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Pending: pending, Stuck: stuck, InFlight: e.inFlight.Load()}
	if !last.IsZero() {
		st.LastSyncAt = &last
	}
	e.mu.Lock()
	st.LastError = e.lastError
	e.mu.Unlock()
	return st, nil
}

// Start schedules the timer. It is a no-op when already started.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cron != nil {
		return nil
	}
	cl := cronLogger{log: e.log.Sugar()}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc("@every "+e.cfg.Interval.String(), func() { e.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	c.Start()
	e.cron = c
	e.log.Info("sync scheduler started", zap.Duration("interval", e.cfg.Interval))
	return nil
}

// Stop cancels the timer and waits for a running tick to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	c := e.cron
	e.cron = nil
	e.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	e.log.Info("sync scheduler stopped")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
