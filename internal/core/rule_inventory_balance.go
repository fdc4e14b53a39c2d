package core

import (
	"context"
	"fmt"

	"clinicore/pkg/domain"
)

// NewInventoryBalanceRule returns the in-transaction rule guarding stock
// positions: quantities never go negative and the available quantity always
// equals on-hand minus reserved.
func NewInventoryBalanceRule() domain.Rule {
	return inventoryBalanceRule{}
}

type inventoryBalanceRule struct{}

func (inventoryBalanceRule) Name() string { return "inventory_balance" }

func (r inventoryBalanceRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		switch after := change.After.(type) {
		case domain.InventoryItem:
			r.checkItem(&res, after)
		case domain.InventoryBatch:
			if after.Quantity < 0 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("batch %s quantity is negative: %d", after.BatchNumber, after.Quantity),
					Entity:   domain.EntityInventoryBatch,
					EntityID: after.ID,
				})
			}
		}
	}
	return res, nil
}

func (r inventoryBalanceRule) checkItem(res *domain.Result, item domain.InventoryItem) {
	block := func(format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityInventoryItem,
			EntityID: item.ID,
		})
	}
	switch {
	case item.QuantityOnHand < 0:
		block("inventory %s on hand is negative: %d", item.ID, item.QuantityOnHand)
	case item.QuantityReserved < 0:
		block("inventory %s reserved is negative: %d", item.ID, item.QuantityReserved)
	case item.QuantityAvailable != item.QuantityOnHand-item.QuantityReserved:
		block("inventory %s available %d != on hand %d - reserved %d", item.ID, item.QuantityAvailable, item.QuantityOnHand, item.QuantityReserved)
	case item.QuantityAvailable < 0:
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("inventory %s reserves %d but holds %d", item.ID, item.QuantityReserved, item.QuantityOnHand),
			Entity:   domain.EntityInventoryItem,
			EntityID: item.ID,
		})
	case item.BelowReorderLevel():
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityLog,
			Message:  fmt.Sprintf("inventory %s at or below reorder level %d", item.ID, item.ReorderLevel),
			Entity:   domain.EntityInventoryItem,
			EntityID: item.ID,
		})
	}
}
