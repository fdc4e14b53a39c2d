package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"clinicore/internal/audit"
	"clinicore/internal/sales"
	"clinicore/pkg/domain"
)

// ReferencePrescription tags stock movements issued for a prescription.
const ReferencePrescription = "prescription"

// DispenseLine selects what to hand out for one prescription item. A zero
// Quantity dispenses everything outstanding on the line.
type DispenseLine struct {
	ItemID          string
	Quantity        int64
	InventoryItemID string
	BatchID         string
}

// DispensePrescription issues stock for prescription lines and advances the
// prescription status. With no lines every outstanding item is dispensed.
// Stock shortfalls follow the service's stock policy: strict rejects the
// whole dispense with domain.ErrInsufficientStock, clamp records only the
// quantity actually deducted so short lines stay outstanding.
func (s *Service) DispensePrescription(ctx context.Context, sess *Session, prescriptionID string, lines []DispenseLine) (domain.Prescription, error) {
	var out domain.Prescription
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rx, ok := tx.FindPrescription(prescriptionID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityPrescription, ID: prescriptionID}
		}
		if rx.Status == domain.PrescriptionDispensed || rx.Status == domain.PrescriptionCancelled {
			return fmt.Errorf("dispense prescription %s in status %s: %w", rx.PrescriptionNumber, rx.Status, domain.ErrInvalidState)
		}
		if len(lines) == 0 {
			for _, item := range rx.Items {
				if item.Quantity > item.DispensedQuantity {
					lines = append(lines, DispenseLine{ItemID: item.ID})
				}
			}
		}
		facilityID := rx.FacilityID
		if sess.Valid() && sess.FacilityID != "" {
			facilityID = sess.FacilityID
		}
		actor := actorID(sess)

		dispensed := make(map[string]int64, len(lines))
		for _, line := range lines {
			item, ok := findRxItem(rx, line.ItemID)
			if !ok {
				return fmt.Errorf("prescription %s has no line %s: %w", rx.PrescriptionNumber, line.ItemID, domain.ErrNotFound)
			}
			outstanding := item.Quantity - item.DispensedQuantity - dispensed[item.ID]
			qty := line.Quantity
			if qty == 0 {
				qty = outstanding
			}
			if qty <= 0 || qty > outstanding {
				return fmt.Errorf("dispense %d of line %s: %d outstanding: %w", qty, item.ID, outstanding, domain.ErrInvalidState)
			}
			inventoryID := line.InventoryItemID
			if inventoryID == "" {
				position, ok := tx.FindInventoryItemFor(rx.OrganizationID, facilityID, item.ProductID)
				if !ok {
					return domain.NotFoundError{Entity: domain.EntityInventoryItem, ID: item.ProductID}
				}
				inventoryID = position.ID
			}
			issued, err := sales.IssueStock(tx, s.sales.Policy(), sales.Issue{
				InventoryItemID: inventoryID,
				BatchID:         line.BatchID,
				Quantity:        qty,
				Type:            domain.MovementDispense,
				ReferenceType:   ReferencePrescription,
				ReferenceID:     rx.ID,
				PerformedBy:     actor,
			})
			if err != nil {
				return err
			}
			if issued.Deducted < qty {
				s.log.Warn("dispense clamped at available stock",
					zap.String("prescription", rx.ID),
					zap.String("product", item.ProductID),
					zap.Int64("requested", qty),
					zap.Int64("deducted", issued.Deducted))
			}
			dispensed[item.ID] += issued.Deducted
		}

		updated, err := tx.UpdatePrescription(rx.ID, func(p *domain.Prescription) error {
			complete, started := true, false
			for i := range p.Items {
				p.Items[i].DispensedQuantity += dispensed[p.Items[i].ID]
				if p.Items[i].DispensedQuantity < p.Items[i].Quantity {
					complete = false
				}
				if p.Items[i].DispensedQuantity > 0 {
					started = true
				}
			}
			switch {
			case complete:
				now := tx.Now()
				p.Status = domain.PrescriptionDispensed
				p.DispensedAt = &now
				p.DispensedBy = actor
			case started:
				p.Status = domain.PrescriptionPartiallyDispensed
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.audit.Record(tx, sess, audit.Entry{
			Action:     domain.AuditDispenseMedication,
			EntityType: domain.EntityPrescription,
			EntityID:   rx.ID,
			Before:     rx,
			After:      updated,
		})
		out = updated
		return nil
	})
	if err != nil {
		return domain.Prescription{}, err
	}
	s.log.Info("prescription dispensed", zap.String("id", out.ID), zap.String("status", string(out.Status)))
	return out, nil
}

func findRxItem(rx domain.Prescription, id string) (domain.PrescriptionItem, bool) {
	for _, item := range rx.Items {
		if item.ID == id {
			return item, true
		}
	}
	return domain.PrescriptionItem{}, false
}

func actorID(sess *Session) string {
	if sess.Valid() {
		return sess.ActorID
	}
	return ""
}
