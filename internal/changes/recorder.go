// Package changes maintains the outbound change log consumed by cloud sync.
// A Recorder observes every store transaction and appends one ChangeRecord per
// mutation of a tracked entity kind, inside the same transaction.
package changes

import (
	"fmt"

	"go.uber.org/zap"

	"clinicore/internal/logger"
	"clinicore/pkg/domain"
)

// DefaultEntities lists the kinds mirrored to the remote authority.
var DefaultEntities = []domain.EntityType{
	domain.EntityPatient,
	domain.EntityEncounter,
	domain.EntityPrescription,
	domain.EntitySale,
	domain.EntityProduct,
}

var _ domain.ChangeObserver = (*Recorder)(nil)

// Recorder turns store changes into change records.
type Recorder struct {
	tracked map[domain.EntityType]bool
	kinds   []domain.EntityType
	log     *zap.Logger
}

// NewRecorder tracks kinds, or DefaultEntities when kinds is empty.
func NewRecorder(kinds []domain.EntityType, log *zap.Logger) *Recorder {
	if len(kinds) == 0 {
		kinds = DefaultEntities
	}
	r := &Recorder{
		tracked: make(map[domain.EntityType]bool, len(kinds)),
		log:     logger.OrNop(log).Named("changes"),
	}
	for _, kind := range kinds {
		if r.tracked[kind] {
			continue
		}
		r.tracked[kind] = true
		r.kinds = append(r.kinds, kind)
	}
	return r
}

// ParseEntities converts configured names into entity kinds.
func ParseEntities(names []string) []domain.EntityType {
	kinds := make([]domain.EntityType, 0, len(names))
	for _, name := range names {
		if name != "" {
			kinds = append(kinds, domain.EntityType(name))
		}
	}
	return kinds
}

// Tracks reports whether kind is on the allow-list.
func (r *Recorder) Tracks(kind domain.EntityType) bool { return r.tracked[kind] }

// Entities returns the allow-list in configuration order.
func (r *Recorder) Entities() []domain.EntityType {
	return append([]domain.EntityType(nil), r.kinds...)
}

// ObserveChanges implements domain.ChangeObserver. Only local edits are
// logged: rows applied from the remote authority are never pushed back and
// bookkeeping writes are not replicated.
func (r *Recorder) ObserveChanges(tx domain.Transaction, changes []domain.Change) error {
	for _, change := range changes {
		if !r.tracked[change.Entity] || !change.Origin.Local() {
			continue
		}
		value := change.After
		if change.Action == domain.ActionDelete {
			value = change.Before
		}
		payload, err := domain.NewChangePayloadFromValue(value)
		if err != nil {
			return fmt.Errorf("encode %s %s change: %w", change.Entity, change.EntityID, err)
		}
		record, err := tx.AppendChangeRecord(domain.ChangeRecord{
			EntityKind: change.Entity,
			EntityID:   change.EntityID,
			Operation:  change.Action,
			Payload:    payload,
		})
		if err != nil {
			return err
		}
		r.log.Debug("change recorded",
			zap.String("entity", string(record.EntityKind)),
			zap.String("id", record.EntityID),
			zap.String("operation", string(record.Operation)),
			zap.Int64("seq", record.Seq))
	}
	return nil
}
