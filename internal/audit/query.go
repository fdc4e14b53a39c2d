package audit

import (
	"context"
	"time"

	"clinicore/pkg/domain"
)

// Filter narrows a query. Zero values disable a criterion; From and To are
// inclusive.
type Filter struct {
	ActorID        string
	OrganizationID string
	EntityType     domain.EntityType
	EntityID       string
	Action         domain.AuditAction
	From           *time.Time
	To             *time.Time
	SensitiveOnly  bool
	Limit          int
}

// Matches reports whether e satisfies the filter.
func (f Filter) Matches(e domain.AuditEntry) bool {
	switch {
	case f.ActorID != "" && e.ActorID != f.ActorID:
		return false
	case f.OrganizationID != "" && e.OrganizationID != f.OrganizationID:
		return false
	case f.EntityType != "" && e.EntityType != f.EntityType:
		return false
	case f.EntityID != "" && e.EntityID != f.EntityID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.From != nil && e.Timestamp.Before(*f.From):
		return false
	case f.To != nil && e.Timestamp.After(*f.To):
		return false
	case f.SensitiveOnly && !e.Sensitive:
		return false
	}
	return true
}

// Query returns matching entries newest-first, capped at f.Limit when set.
func (l *Logger) Query(ctx context.Context, f Filter) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := l.store.View(ctx, func(v domain.TransactionView) error {
		out = query(v.ListAuditEntries(), f)
		return nil
	})
	return out, err
}

func query(entries []domain.AuditEntry, f Filter) []domain.AuditEntry {
	out := make([]domain.AuditEntry, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		if !f.Matches(entries[i]) {
			continue
		}
		out = append(out, entries[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// At returns the entry appended at index i.
func (l *Logger) At(ctx context.Context, i int) (domain.AuditEntry, bool, error) {
	var (
		out domain.AuditEntry
		ok  bool
	)
	err := l.store.View(ctx, func(v domain.TransactionView) error {
		out, ok = v.AuditEntryAt(i)
		return nil
	})
	return out, ok, err
}

// Len returns the number of entries in the log.
func (l *Logger) Len(ctx context.Context) (int, error) {
	var n int
	err := l.store.View(ctx, func(v domain.TransactionView) error {
		n = len(v.ListAuditEntries())
		return nil
	})
	return n, err
}
