// Package memory provides the in-memory entity store. Durable backends wrap it
// and persist the exported snapshot after each committed transaction.
package memory

import (
	"context"
	"sync"
	"time"

	"clinicore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Organization aliases domain.Organization.
	Organization = domain.Organization
	// License aliases domain.License.
	License = domain.License
	// User aliases domain.User.
	User = domain.User
	// Patient aliases domain.Patient.
	Patient = domain.Patient
	// MedicalRecord aliases domain.MedicalRecord.
	MedicalRecord = domain.MedicalRecord
	// Encounter aliases domain.Encounter.
	Encounter = domain.Encounter
	// Prescription aliases domain.Prescription.
	Prescription = domain.Prescription
	// Product aliases domain.Product.
	Product = domain.Product
	// Supplier aliases domain.Supplier.
	Supplier = domain.Supplier
	// InventoryItem aliases domain.InventoryItem.
	InventoryItem = domain.InventoryItem
	// InventoryBatch aliases domain.InventoryBatch.
	InventoryBatch = domain.InventoryBatch
	// StockMovement aliases domain.StockMovement.
	StockMovement = domain.StockMovement
	// PurchaseOrder aliases domain.PurchaseOrder.
	PurchaseOrder = domain.PurchaseOrder
	// Sale aliases domain.Sale.
	Sale = domain.Sale
	// HospitalInvoice aliases domain.HospitalInvoice.
	HospitalInvoice = domain.HospitalInvoice
	// AuditEntry aliases domain.AuditEntry.
	AuditEntry = domain.AuditEntry
	// ChangeRecord aliases domain.ChangeRecord.
	ChangeRecord = domain.ChangeRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

// Store is the in-memory, clone-on-transaction implementation of
// domain.PersistentStore.
type Store struct {
	mu        sync.RWMutex
	state     memoryState
	engine    *RulesEngine
	observers []domain.ChangeObserver
	nowFn     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithObserver registers an observer invoked inside every transaction.
func WithObserver(observer domain.ChangeObserver) Option {
	return func(s *Store) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddObserver registers an observer after construction.
func (s *Store) AddObserver(observer domain.ChangeObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Observers run after fn and before rules; the copy replaces committed state
// only when neither returns an error and no blocking violation is reported.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		transactionView: transactionView{},
		state:           s.state.clone(),
		now:             s.nowFn(),
		origin:          domain.OriginLocal,
	}
	tx.transactionView.state = &tx.state

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	if len(tx.changes) > 0 {
		observed := append([]Change(nil), tx.changes...)
		for _, observer := range s.observers {
			if err := observer.ObserveChanges(tx, observed); err != nil {
				return Result{}, err
			}
		}
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, newTransactionView(&tx.state), tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
// Committed state is replaced wholesale on commit and never mutated in place,
// so holding the reference is enough.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}
