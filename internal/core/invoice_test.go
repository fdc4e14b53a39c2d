package core

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/pkg/domain"
)

func TestHospitalInvoiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	inv, _, err := f.svc.CreateHospitalInvoice(ctx, pharmacist, domain.HospitalInvoice{
		PatientID: p.ID,
		Items: []domain.InvoiceItem{
			{Description: "Consultation", Quantity: 1, UnitPrice: decimal.NewFromInt(150)},
			{Description: "Dressing", Quantity: 2, UnitPrice: decimal.NewFromInt(25)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "org-1", inv.OrganizationID)
	assert.Equal(t, "fac-1", inv.FacilityID)
	assert.NotEmpty(t, inv.InvoiceNumber)
	assert.Equal(t, domain.InvoiceDraft, inv.Status)
	assert.True(t, decimal.NewFromInt(200).Equal(inv.TotalAmount))

	inv, ok, err := f.svc.IssueHospitalInvoice(ctx, pharmacist, inv.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.InvoiceIssued, inv.Status)

	_, _, err = f.svc.IssueHospitalInvoice(ctx, pharmacist, inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.RecordInvoicePayment(ctx, pharmacist, inv.ID, domain.Payment{Method: domain.PaymentCash})
	assert.Error(t, err)

	inv, err = f.svc.RecordInvoicePayment(ctx, pharmacist, inv.ID, domain.Payment{Method: domain.PaymentCash, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPartial, inv.PaymentStatus)
	assert.Equal(t, domain.InvoiceIssued, inv.Status)
	assert.True(t, decimal.NewFromInt(150).Equal(inv.AmountDue))
	require.Len(t, inv.Payments, 1)
	assert.NotEmpty(t, inv.Payments[0].ID)
	assert.Equal(t, f.now, inv.Payments[0].ReceivedAt)

	inv, err = f.svc.RecordInvoicePayment(ctx, pharmacist, inv.ID, domain.Payment{Method: domain.PaymentMobileMoney, Amount: decimal.NewFromInt(150)})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, inv.PaymentStatus)
	assert.Equal(t, domain.InvoicePaid, inv.Status)

	_, err = f.svc.RecordInvoicePayment(ctx, pharmacist, inv.ID, domain.Payment{Method: domain.PaymentCash, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRecordPaymentUnknownInvoice(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RecordInvoicePayment(context.Background(), pharmacist, "missing", domain.Payment{Method: domain.PaymentCash, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
