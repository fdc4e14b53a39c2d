package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"clinicore/internal/audit"
	"clinicore/pkg/domain"
)

// CreateHospitalInvoice stores a draft invoice. Tenant fields default to the
// session's organization and facility; totals are derived by the store.
func (s *Service) CreateHospitalInvoice(ctx context.Context, sess *Session, inv domain.HospitalInvoice) (domain.HospitalInvoice, Result, error) {
	if sess.Valid() {
		if inv.OrganizationID == "" {
			inv.OrganizationID = sess.OrganizationID
		}
		if inv.FacilityID == "" {
			inv.FacilityID = sess.FacilityID
		}
	}
	return createRecord(ctx, s, sess, invoiceOps, inv)
}

// UpdateHospitalInvoice applies mutator to the invoice.
func (s *Service) UpdateHospitalInvoice(ctx context.Context, sess *Session, id string, mutator func(*domain.HospitalInvoice) error) (domain.HospitalInvoice, bool, error) {
	return updateRecord(ctx, s, sess, invoiceOps, id, mutator)
}

// IssueHospitalInvoice moves a draft invoice to issued.
func (s *Service) IssueHospitalInvoice(ctx context.Context, sess *Session, id string) (domain.HospitalInvoice, bool, error) {
	return s.UpdateHospitalInvoice(ctx, sess, id, func(h *domain.HospitalInvoice) error {
		if h.Status != domain.InvoiceDraft {
			return fmt.Errorf("issue invoice %s in status %s: %w", h.InvoiceNumber, h.Status, domain.ErrInvalidState)
		}
		h.Status = domain.InvoiceIssued
		return nil
	})
}

// RecordInvoicePayment applies a payment. A fully settled invoice becomes paid.
func (s *Service) RecordInvoicePayment(ctx context.Context, sess *Session, id string, payment domain.Payment) (domain.HospitalInvoice, error) {
	if !payment.Amount.IsPositive() {
		return domain.HospitalInvoice{}, fmt.Errorf("payment amount must be positive, got %s", payment.Amount)
	}
	var out domain.HospitalInvoice
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		before, ok := tx.FindHospitalInvoice(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityHospitalInvoice, ID: id}
		}
		if before.Status == domain.InvoiceCancelled || before.Status == domain.InvoicePaid {
			return fmt.Errorf("pay invoice %s in status %s: %w", before.InvoiceNumber, before.Status, domain.ErrInvalidState)
		}
		if payment.ID == "" {
			payment.ID = uuid.NewString()
		}
		if payment.ReceivedAt.IsZero() {
			payment.ReceivedAt = tx.Now()
		}
		updated, err := tx.UpdateHospitalInvoice(id, func(h *domain.HospitalInvoice) error {
			h.Payments = append(h.Payments, payment)
			return nil
		})
		if err != nil {
			return err
		}
		if updated.PaymentStatus == domain.PaymentPaid && updated.Status != domain.InvoicePaid {
			if updated, err = tx.UpdateHospitalInvoice(id, func(h *domain.HospitalInvoice) error {
				h.Status = domain.InvoicePaid
				return nil
			}); err != nil {
				return err
			}
		}
		s.audit.Record(tx, sess, audit.Entry{
			Action:      domain.AuditUpdate,
			EntityType:  domain.EntityHospitalInvoice,
			EntityID:    id,
			Before:      before,
			After:       updated,
			Description: fmt.Sprintf("payment %s %s", payment.Method, payment.Amount.StringFixed(2)),
		})
		out = updated
		return nil
	})
	return out, err
}
