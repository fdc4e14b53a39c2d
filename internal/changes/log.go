package changes

import (
	"context"
	"time"

	"clinicore/pkg/domain"
)

// Log reads and maintains the change log. Only the sync engine calls the
// mutating methods.
type Log struct {
	store domain.PersistentStore
}

// NewLog wraps store.
func NewLog(store domain.PersistentStore) *Log {
	return &Log{store: store}
}

// All returns every record in log order.
func (l *Log) All(ctx context.Context) ([]domain.ChangeRecord, error) {
	var out []domain.ChangeRecord
	err := l.store.View(ctx, func(v domain.TransactionView) error {
		out = v.ListChangeRecords()
		return nil
	})
	return out, err
}

// Pending returns unsynced records in log order.
func (l *Log) Pending(ctx context.Context) ([]domain.ChangeRecord, error) {
	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, func(c domain.ChangeRecord) bool { return !c.Synced }), nil
}

// Stuck returns pending records that have failed at least maxAttempts times.
func (l *Log) Stuck(ctx context.Context, maxAttempts int) ([]domain.ChangeRecord, error) {
	pending, err := l.Pending(ctx)
	if err != nil {
		return nil, err
	}
	return filter(pending, func(c domain.ChangeRecord) bool { return IsStuck(c, maxAttempts) }), nil
}

// Counts returns the pending and stuck totals.
func (l *Log) Counts(ctx context.Context, maxAttempts int) (pending, stuck int, err error) {
	records, err := l.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range records {
		if IsStuck(c, maxAttempts) {
			stuck++
		}
	}
	return len(records), stuck, nil
}

// IsStuck reports whether a pending record exhausted its retry budget.
// A non-positive maxAttempts disables the check.
func IsStuck(c domain.ChangeRecord, maxAttempts int) bool {
	return !c.Synced && maxAttempts > 0 && c.Attempts >= maxAttempts
}

// MarkSynced flips the record to synced.
func (l *Log) MarkSynced(ctx context.Context, id string) (domain.ChangeRecord, error) {
	var out domain.ChangeRecord
	_, err := l.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		out, err = MarkSynced(tx, id)
		return err
	})
	return out, err
}

// RecordFailure bumps the attempt counter and stores the error text.
func (l *Log) RecordFailure(ctx context.Context, id string, cause error) (domain.ChangeRecord, error) {
	var out domain.ChangeRecord
	_, err := l.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		out, err = RecordFailure(tx, id, cause)
		return err
	})
	return out, err
}

// Compact removes synced records whose sync completed more than retention
// ago and returns how many were dropped.
func (l *Log) Compact(ctx context.Context, retention time.Duration) (int, error) {
	removed := 0
	_, err := l.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		cutoff := tx.Now().Add(-retention)
		for _, c := range tx.ListChangeRecords() {
			if !c.Synced || c.SyncedAt == nil || c.SyncedAt.After(cutoff) {
				continue
			}
			if err := tx.DeleteChangeRecord(c.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// MarkSynced flips a record to synced inside tx.
func MarkSynced(tx domain.Transaction, id string) (domain.ChangeRecord, error) {
	return tx.UpdateChangeRecord(id, func(c *domain.ChangeRecord) error {
		if c.Synced {
			return nil
		}
		now := tx.Now()
		c.Synced = true
		c.SyncedAt = &now
		c.LastError = ""
		return nil
	})
}

// RecordFailure bumps Attempts inside tx.
func RecordFailure(tx domain.Transaction, id string, cause error) (domain.ChangeRecord, error) {
	return tx.UpdateChangeRecord(id, func(c *domain.ChangeRecord) error {
		c.Attempts++
		if cause != nil {
			c.LastError = cause.Error()
		}
		return nil
	})
}

func filter(in []domain.ChangeRecord, keep func(domain.ChangeRecord) bool) []domain.ChangeRecord {
	out := make([]domain.ChangeRecord, 0, len(in))
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
