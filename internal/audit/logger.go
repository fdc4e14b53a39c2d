// Package audit keeps the append-only compliance log: who did what to which
// record, with field-level diffs for sensitive data. It also owns the login
// lockout state machine and compliance reporting.
package audit

import (
	"context"

	"go.uber.org/zap"

	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/pkg/domain"
)

// Entry describes one auditable event. Before and After are optional; when
// either is set the diff and the old/new snapshots are computed from them.
type Entry struct {
	Action      domain.AuditAction
	EntityType  domain.EntityType
	EntityID    string
	EntityName  string
	Before      domain.Auditable
	After       domain.Auditable
	Sensitive   bool
	Automated   bool
	Description string
}

// Logger appends audit entries. Logging never fails the operation being
// audited: a missing session or a sink error is logged and swallowed.
type Logger struct {
	store   domain.PersistentStore
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewLogger builds a Logger writing to store.
func NewLogger(store domain.PersistentStore, log *zap.Logger, m *metrics.Metrics) *Logger {
	return &Logger{store: store, log: logger.OrNop(log).Named("audit"), metrics: m}
}

// Log appends entry in its own transaction.
func (l *Logger) Log(ctx context.Context, sess *domain.Session, entry Entry) (domain.AuditEntry, bool) {
	if !sess.Valid() {
		l.warnNoSession(entry)
		return domain.AuditEntry{}, false
	}
	var out domain.AuditEntry
	var ok bool
	_, err := l.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		out, ok = l.Record(tx, sess, entry)
		return nil
	})
	if err != nil {
		l.log.Error("audit write failed",
			zap.String("action", string(entry.Action)),
			zap.String("entity", string(entry.EntityType)),
			zap.String("id", entry.EntityID),
			zap.Error(err))
		return out, false
	}
	return out, ok
}

// Record appends entry inside tx so it commits or rolls back with the
// business change it describes.
func (l *Logger) Record(tx domain.Transaction, sess *domain.Session, entry Entry) (domain.AuditEntry, bool) {
	if !sess.Valid() {
		l.warnNoSession(entry)
		return domain.AuditEntry{}, false
	}
	row := domain.AuditEntry{
		ActorID:        sess.ActorID,
		ActorName:      sess.ActorName,
		ActorRole:      sess.Role,
		OrganizationID: sess.OrganizationID,
		Action:         entry.Action,
		EntityType:     entry.EntityType,
		EntityID:       entry.EntityID,
		EntityName:     entry.EntityName,
		Sensitive:      entry.Sensitive || domain.IsSensitive(entry.EntityType),
		Automated:      entry.Automated,
		Description:    entry.Description,
	}
	if row.EntityName == "" {
		switch {
		case !isNil(entry.After):
			row.EntityName = entry.After.AuditName()
		case !isNil(entry.Before):
			row.EntityName = entry.Before.AuditName()
		}
	}
	if !isNil(entry.Before) || !isNil(entry.After) {
		row.Changes = Diff(entry.Before, entry.After)
		row.OldValues = snapshot(entry.Before)
		row.NewValues = snapshot(entry.After)
	}
	appended, err := tx.AppendAuditEntry(row)
	if err != nil {
		l.log.Error("audit append failed", zap.String("action", string(entry.Action)), zap.Error(err))
		return domain.AuditEntry{}, false
	}
	l.metrics.AuditEntry(string(appended.Action))
	return appended, true
}

func (l *Logger) warnNoSession(entry Entry) {
	l.log.Warn("audit skipped: no active session",
		zap.String("action", string(entry.Action)),
		zap.String("entity", string(entry.EntityType)),
		zap.String("id", entry.EntityID))
}

func snapshot(a domain.Auditable) domain.ChangePayload {
	fields := fieldMap(a)
	if fields == nil {
		return domain.UndefinedChangePayload()
	}
	payload, err := domain.NewChangePayloadFromValue(fields)
	if err != nil {
		return domain.UndefinedChangePayload()
	}
	return payload
}
