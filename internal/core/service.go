// Package core composes the clinic data layer: the entity store, the audit
// log, the change tracker and the sale engine behind one Service. Every
// mutating call takes the acting Session explicitly.
package core

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"clinicore/internal/audit"
	"clinicore/internal/changes"
	"clinicore/internal/cloudsync"
	"clinicore/internal/config"
	"clinicore/internal/connectivity"
	"clinicore/internal/infra/persistence/memory"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/internal/persistence"
	"clinicore/internal/sales"
	"clinicore/pkg/domain"
)

// Store is the store surface the service needs: transactions plus observer
// registration for the change tracker.
type Store interface {
	domain.PersistentStore
	AddObserver(domain.ChangeObserver)
}

// Service exposes transactional, audited operations over the clinic schema.
type Service struct {
	store    Store
	audit    *audit.Logger
	sales    *sales.Engine
	changes  *changes.Log
	recorder *changes.Recorder
	lockout  audit.Lockout
	log      *zap.Logger
	metrics  *metrics.Metrics
	close    func(context.Context) error
}

type options struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	lockout  audit.Lockout
	policy   sales.StockPolicy
	entities []domain.EntityType
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger shared by all components.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithMetrics sets the metrics sink shared by all components.
func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithLockout overrides the login lockout policy.
func WithLockout(p audit.Lockout) Option { return func(o *options) { o.lockout = p } }

// WithStockPolicy selects the stock policy used by sales and dispensing.
func WithStockPolicy(p sales.StockPolicy) Option { return func(o *options) { o.policy = p } }

// WithTrackedEntities sets the change tracker allow-list.
func WithTrackedEntities(kinds []domain.EntityType) Option {
	return func(o *options) { o.entities = kinds }
}

// NewService wires the components around store and registers the change
// tracker on it.
func NewService(store Store, opts ...Option) *Service {
	o := options{lockout: audit.DefaultLockout(), policy: sales.PolicyClamp}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrNop(o.log)
	recorder := changes.NewRecorder(o.entities, log)
	store.AddObserver(recorder)

	auditLog := audit.NewLogger(store, log, o.metrics)
	return &Service{
		store:    store,
		audit:    auditLog,
		sales:    sales.NewEngine(store, auditLog, sales.WithStockPolicy(o.policy), sales.WithLogger(log), sales.WithMetrics(o.metrics)),
		changes:  changes.NewLog(store),
		recorder: recorder,
		lockout:  o.lockout,
		log:      log.Named("core"),
		metrics:  o.metrics,
		close:    func(context.Context) error { return nil },
	}
}

// NewInMemoryService creates a service over a volatile store with the
// default rules.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(NewDefaultRulesEngine()), opts...)
}

// Open loads the dataset from the configured backend and builds the
// service. Explicit options override values derived from cfg.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	policy, err := sales.ParseStockPolicy(cfg.Sales.StockPolicy)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithLockout(audit.Lockout{Threshold: cfg.Audit.LockoutThreshold, Duration: cfg.Audit.LockoutDuration}),
		WithStockPolicy(policy),
		WithTrackedEntities(changes.ParseEntities(cfg.Sync.Entities)),
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	store, err := persistence.Open(ctx, cfg, NewDefaultRulesEngine(),
		persistence.WithLogger(o.log), persistence.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}
	svc := NewService(store, append(base, opts...)...)
	svc.close = store.Close
	return svc, nil
}

// Close flushes and releases the storage backend.
func (s *Service) Close(ctx context.Context) error { return s.close(ctx) }

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Audit returns the audit logger.
func (s *Service) Audit() *audit.Logger { return s.audit }

// Sales returns the sale engine.
func (s *Service) Sales() *sales.Engine { return s.sales }

// Changes returns the outbound change log.
func (s *Service) Changes() *changes.Log { return s.changes }

// TrackedEntities returns the change tracker allow-list.
func (s *Service) TrackedEntities() []domain.EntityType { return s.recorder.Entities() }

// SyncEngine builds a cloud sync engine for this service's store using cfg.
// httpClient may be nil.
func (s *Service) SyncEngine(cfg config.SyncConfig, organizationID string, httpClient *http.Client) *cloudsync.Engine {
	client := cloudsync.NewHTTPClient(cloudsync.ClientConfig{
		BaseURL:        cfg.BaseURL,
		Token:          cfg.Token,
		OrganizationID: organizationID,
		Timeout:        cfg.RequestTimeout,
		RatePerSecond:  cfg.RatePerSecond,
	}, httpClient)
	probeOpts := []connectivity.Option{connectivity.WithLogger(s.log)}
	if httpClient != nil {
		probeOpts = append(probeOpts, connectivity.WithHTTPClient(httpClient))
	}
	probe := connectivity.New(cfg.BaseURL, cfg.ProbeTimeout, probeOpts...)
	return cloudsync.NewEngine(s.store, client, probe, cloudsync.Config{
		Interval:       cfg.Interval,
		MaxRetries:     cfg.MaxRetries,
		Entities:       s.recorder.Entities(),
		OrganizationID: organizationID,
	}, cloudsync.WithLogger(s.log), cloudsync.WithMetrics(s.metrics), cloudsync.WithAudit(s.audit))
}

// ProcessSale delegates to the sale engine.
func (s *Service) ProcessSale(ctx context.Context, sess *Session, cart sales.Cart) (domain.Sale, error) {
	return s.sales.ProcessSale(ctx, sess, cart)
}

// VoidSale delegates to the sale engine. A sale that is missing or not
// completed yields (zero, false, nil).
func (s *Service) VoidSale(ctx context.Context, sess *Session, id, reason string) (domain.Sale, bool, error) {
	return s.sales.VoidSale(ctx, sess, id, reason)
}

func (s *Service) logResult(op string, res Result) {
	for _, v := range res.Violations {
		s.log.Warn("rule violation",
			zap.String("op", op),
			zap.String("rule", v.Rule),
			zap.String("severity", string(v.Severity)),
			zap.String("entity", string(v.Entity)),
			zap.String("id", v.EntityID),
			zap.String("message", v.Message))
	}
}
