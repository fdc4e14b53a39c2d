package sales

import (
	"fmt"

	"clinicore/pkg/domain"
)

// StockPolicy decides what happens when an issue exceeds stock on hand.
type StockPolicy string

// Stock policies.
const (
	// PolicyClamp deducts what is available and never fails.
	PolicyClamp StockPolicy = "clamp"
	// PolicyStrict rejects the whole operation with ErrInsufficientStock.
	PolicyStrict StockPolicy = "strict"
)

// ParseStockPolicy maps a configuration value to a policy. Empty selects clamp.
func ParseStockPolicy(s string) (StockPolicy, error) {
	switch StockPolicy(s) {
	case "", PolicyClamp:
		return PolicyClamp, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown stock policy %q", s)
}

// Issue describes stock leaving an inventory position.
type Issue struct {
	InventoryItemID string
	BatchID         string
	Quantity        int64
	Type            domain.MovementType
	ReferenceType   string
	ReferenceID     string
	PerformedBy     string
	Notes           string
}

// Issued reports what an Issue actually removed.
type Issued struct {
	Item          domain.InventoryItem
	Deducted      int64
	BatchDeducted int64
	Movement      domain.StockMovement
}

// IssueStock deducts stock inside tx and appends an OUT movement. Under
// PolicyClamp the deduction stops at zero; no movement is written when
// nothing was deducted.
func IssueStock(tx domain.Transaction, policy StockPolicy, in Issue) (Issued, error) {
	item, ok := tx.FindInventoryItem(in.InventoryItemID)
	if !ok {
		return Issued{}, domain.NotFoundError{Entity: domain.EntityInventoryItem, ID: in.InventoryItemID}
	}
	batch, err := batchOf(tx, item, in.BatchID)
	if err != nil {
		return Issued{}, err
	}
	if policy == PolicyStrict {
		if in.Quantity > item.QuantityOnHand {
			return Issued{}, domain.InsufficientStockError{ProductID: item.ProductID, Requested: in.Quantity, Available: item.QuantityOnHand}
		}
		if in.BatchID != "" && in.Quantity > batch.Quantity {
			return Issued{}, domain.InsufficientStockError{ProductID: item.ProductID, Requested: in.Quantity, Available: batch.Quantity}
		}
	}

	out := Issued{Deducted: min(in.Quantity, max(item.QuantityOnHand, 0))}
	previous := item.QuantityOnHand
	updated, err := tx.UpdateInventoryItem(item.ID, func(i *domain.InventoryItem) error {
		i.QuantityOnHand -= out.Deducted
		return nil
	})
	if err != nil {
		return Issued{}, err
	}
	out.Item = updated

	if in.BatchID != "" {
		out.BatchDeducted = min(in.Quantity, max(batch.Quantity, 0))
		if _, err := tx.UpdateInventoryBatch(batch.ID, func(b *domain.InventoryBatch) error {
			b.Quantity -= out.BatchDeducted
			return nil
		}); err != nil {
			return Issued{}, err
		}
	}

	if out.Deducted == 0 {
		return out, nil
	}
	out.Movement, err = tx.AppendStockMovement(domain.StockMovement{
		OrganizationID:  item.OrganizationID,
		FacilityID:      item.FacilityID,
		InventoryItemID: item.ID,
		ProductID:       item.ProductID,
		BatchID:         in.BatchID,
		Direction:       domain.DirectionOut,
		Type:            in.Type,
		Quantity:        out.Deducted,
		PreviousBalance: previous,
		NewBalance:      updated.QuantityOnHand,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		PerformedBy:     in.PerformedBy,
		Notes:           in.Notes,
	})
	return out, err
}

// batchOf loads batchID and checks that it is held by item. An empty id
// yields the zero batch.
func batchOf(tx domain.TransactionView, item domain.InventoryItem, batchID string) (domain.InventoryBatch, error) {
	if batchID == "" {
		return domain.InventoryBatch{}, nil
	}
	batch, ok := tx.FindInventoryBatch(batchID)
	if !ok {
		return domain.InventoryBatch{}, domain.NotFoundError{Entity: domain.EntityInventoryBatch, ID: batchID}
	}
	if batch.InventoryItemID != item.ID {
		return domain.InventoryBatch{}, fmt.Errorf("batch %s belongs to inventory item %s, not %s: %w",
			batchID, batch.InventoryItemID, item.ID, domain.ErrInvalidState)
	}
	return batch, nil
}

// Receipt describes stock entering an inventory position.
type Receipt struct {
	InventoryItemID string
	BatchID         string
	BatchQuantity   int64
	Quantity        int64
	Type            domain.MovementType
	ReferenceType   string
	ReferenceID     string
	PerformedBy     string
	Notes           string
}

// ReceiveStock adds stock inside tx and appends an IN movement. BatchQuantity
// is added to BatchID when both are set.
func ReceiveStock(tx domain.Transaction, in Receipt) (domain.InventoryItem, domain.StockMovement, error) {
	if in.Quantity <= 0 {
		return domain.InventoryItem{}, domain.StockMovement{}, fmt.Errorf("receipt quantity must be positive, got %d", in.Quantity)
	}
	item, ok := tx.FindInventoryItem(in.InventoryItemID)
	if !ok {
		return domain.InventoryItem{}, domain.StockMovement{}, domain.NotFoundError{Entity: domain.EntityInventoryItem, ID: in.InventoryItemID}
	}
	if _, err := batchOf(tx, item, in.BatchID); err != nil {
		return domain.InventoryItem{}, domain.StockMovement{}, err
	}
	previous := item.QuantityOnHand
	updated, err := tx.UpdateInventoryItem(item.ID, func(i *domain.InventoryItem) error {
		i.QuantityOnHand += in.Quantity
		return nil
	})
	if err != nil {
		return domain.InventoryItem{}, domain.StockMovement{}, err
	}
	if in.BatchID != "" && in.BatchQuantity > 0 {
		if _, err := tx.UpdateInventoryBatch(in.BatchID, func(b *domain.InventoryBatch) error {
			b.Quantity += in.BatchQuantity
			return nil
		}); err != nil {
			return domain.InventoryItem{}, domain.StockMovement{}, err
		}
	}
	movement, err := tx.AppendStockMovement(domain.StockMovement{
		OrganizationID:  item.OrganizationID,
		FacilityID:      item.FacilityID,
		InventoryItemID: item.ID,
		ProductID:       item.ProductID,
		BatchID:         in.BatchID,
		Direction:       domain.DirectionIn,
		Type:            in.Type,
		Quantity:        in.Quantity,
		PreviousBalance: previous,
		NewBalance:      updated.QuantityOnHand,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		PerformedBy:     in.PerformedBy,
		Notes:           in.Notes,
	})
	return updated, movement, err
}
