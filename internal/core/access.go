package core

import (
	"context"

	"go.uber.org/zap"

	"clinicore/internal/audit"
	"clinicore/pkg/domain"
)

type tracked[T any] interface {
	*T
	Tracking() *domain.AccessTracking
}

// readTracked returns a sensitive row and, for a valid session, records the
// read on the row and in the audit log. Tracking writes are bookkeeping: they
// keep UpdatedAt and are not replicated.
func readTracked[T record, P tracked[T]](ctx context.Context, s *Service, sess *Session, ops entityOps[T], id string) (T, bool) {
	if !sess.Valid() {
		row, ok := getRecord(ctx, s, ops, id)
		if ok {
			s.audit.Log(ctx, sess, audit.Entry{Action: domain.AuditView, EntityType: ops.kind, EntityID: id})
		}
		return row, ok
	}
	var row T
	var found bool
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := ops.find(tx, id); !ok {
			return nil
		}
		tx.SetOrigin(domain.OriginSystem)
		now := tx.Now()
		updated, err := ops.update(tx, id, func(r *T) error {
			P(r).Tracking().Touch(sess.ActorID, now)
			return nil
		})
		if err != nil {
			return err
		}
		s.audit.Record(tx, sess, audit.Entry{
			Action:     domain.AuditView,
			EntityType: ops.kind,
			EntityID:   id,
			EntityName: updated.AuditName(),
		})
		row, found = updated, true
		return nil
	})
	if err != nil {
		s.log.Warn("access tracking failed", zap.String("entity", string(ops.kind)), zap.String("id", id), zap.Error(err))
		return getRecord(ctx, s, ops, id)
	}
	return row, found
}

// GetPatient returns the patient and records the read.
func (s *Service) GetPatient(ctx context.Context, sess *Session, id string) (domain.Patient, bool) {
	return readTracked(ctx, s, sess, patientOps, id)
}

// GetEncounter returns the encounter and records the read.
func (s *Service) GetEncounter(ctx context.Context, sess *Session, id string) (domain.Encounter, bool) {
	return readTracked(ctx, s, sess, encounterOps, id)
}
