package core

import (
	"context"
	"fmt"

	"clinicore/pkg/domain"
)

// NewDispenseQuantityRule blocks prescription lines dispensed beyond the
// prescribed quantity.
func NewDispenseQuantityRule() domain.Rule {
	return dispenseQuantityRule{}
}

type dispenseQuantityRule struct{}

func (dispenseQuantityRule) Name() string { return "dispense_quantity" }

func (r dispenseQuantityRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		rx, ok := change.After.(domain.Prescription)
		if !ok {
			continue
		}
		for _, item := range rx.Items {
			if item.DispensedQuantity < 0 || item.DispensedQuantity > item.Quantity {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("prescription %s line %s dispensed %d of %d", rx.PrescriptionNumber, item.ID, item.DispensedQuantity, item.Quantity),
					Entity:   domain.EntityPrescription,
					EntityID: rx.ID,
				})
			}
		}
	}
	return res, nil
}
