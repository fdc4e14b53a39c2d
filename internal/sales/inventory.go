package sales

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"clinicore/internal/audit"
	"clinicore/pkg/domain"
)

// Movement reference types for procurement and adjustments.
const (
	ReferencePurchaseOrder = "purchase_order"
	ReferenceAdjustment    = "adjustment"
)

// ReceiptLine receives part or all of one purchase order line.
type ReceiptLine struct {
	ItemID      string          `json:"item_id" validate:"required"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	BatchNumber string          `json:"batch_number,omitempty"`
	ExpiryDate  *time.Time      `json:"expiry_date,omitempty"`
	CostPrice   decimal.Decimal `json:"cost_price" validate:"gte=0"`
}

// ReceivePurchaseOrder books delivered stock against a purchase order. Each
// line increments the facility's stock position (created on first receipt),
// optionally opens a batch, and writes an IN/PURCHASE movement.
func (e *Engine) ReceivePurchaseOrder(ctx context.Context, sess *domain.Session, orderID string, lines []ReceiptLine) (domain.PurchaseOrder, error) {
	if len(lines) == 0 {
		return domain.PurchaseOrder{}, fmt.Errorf("receive purchase order %s: no lines", orderID)
	}
	for _, line := range lines {
		if err := validate.Struct(line); err != nil {
			return domain.PurchaseOrder{}, fmt.Errorf("invalid receipt line: %w", err)
		}
	}
	var received domain.PurchaseOrder
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		order, ok := tx.FindPurchaseOrder(orderID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityPurchaseOrder, ID: orderID}
		}
		switch order.Status {
		case domain.PurchaseOrderReceived, domain.PurchaseOrderCancelled:
			return fmt.Errorf("purchase order %s is %s: %w", order.OrderNumber, order.Status, domain.ErrInvalidState)
		}
		actor := actorID(sess)

		receivedQty := make(map[string]int64, len(lines))
		for _, line := range lines {
			idx := slices.IndexFunc(order.Items, func(it domain.PurchaseOrderItem) bool { return it.ID == line.ItemID })
			if idx < 0 {
				return fmt.Errorf("purchase order %s line %s: %w", order.OrderNumber, line.ItemID, domain.ErrNotFound)
			}
			orderLine := order.Items[idx]
			remaining := orderLine.Quantity - orderLine.ReceivedQuantity - receivedQty[line.ItemID]
			if line.Quantity > remaining {
				return fmt.Errorf("purchase order %s line %s: receiving %d exceeds outstanding %d: %w",
					order.OrderNumber, line.ItemID, line.Quantity, remaining, domain.ErrInvalidState)
			}
			receivedQty[line.ItemID] += line.Quantity

			item, ok := tx.FindInventoryItemFor(order.OrganizationID, order.FacilityID, orderLine.ProductID)
			if !ok {
				var err error
				item, err = tx.CreateInventoryItem(domain.InventoryItem{
					OrganizationID: order.OrganizationID,
					FacilityID:     order.FacilityID,
					ProductID:      orderLine.ProductID,
				})
				if err != nil {
					return err
				}
			}
			batchID := ""
			if line.BatchNumber != "" {
				cost := line.CostPrice
				if cost.IsZero() {
					cost = orderLine.UnitCost
				}
				batch, err := tx.CreateInventoryBatch(domain.InventoryBatch{
					InventoryItemID: item.ID,
					BatchNumber:     line.BatchNumber,
					ExpiryDate:      line.ExpiryDate,
					Quantity:        line.Quantity,
					CostPrice:       cost,
					SupplierID:      order.SupplierID,
				})
				if err != nil {
					return err
				}
				batchID = batch.ID
			}
			if _, _, err := ReceiveStock(tx, Receipt{
				InventoryItemID: item.ID,
				BatchID:         batchID,
				Quantity:        line.Quantity,
				Type:            domain.MovementPurchase,
				ReferenceType:   ReferencePurchaseOrder,
				ReferenceID:     order.ID,
				PerformedBy:     actor,
			}); err != nil {
				return err
			}
		}

		var err error
		received, err = tx.UpdatePurchaseOrder(order.ID, func(p *domain.PurchaseOrder) error {
			complete := true
			for i := range p.Items {
				p.Items[i].ReceivedQuantity += receivedQty[p.Items[i].ID]
				if p.Items[i].ReceivedQuantity < p.Items[i].Quantity {
					complete = false
				}
			}
			if complete {
				now := tx.Now()
				p.Status = domain.PurchaseOrderReceived
				p.ReceivedAt = &now
			} else {
				p.Status = domain.PurchaseOrderPartiallyReceived
			}
			return nil
		})
		if err != nil {
			return err
		}
		e.record(tx, sess, audit.Entry{
			Action:     domain.AuditUpdate,
			EntityType: domain.EntityPurchaseOrder,
			EntityID:   order.ID,
			Before:     order,
			After:      received,
		})
		return nil
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	e.log.Info("purchase order received", zap.String("id", received.ID), zap.String("status", string(received.Status)))
	return received, nil
}

// AdjustStock applies a manual correction to a stock position. A negative
// delta issues stock under the engine's policy; a positive one receives it.
func (e *Engine) AdjustStock(ctx context.Context, sess *domain.Session, inventoryItemID string, delta int64, reason string) (domain.InventoryItem, error) {
	if delta == 0 {
		return domain.InventoryItem{}, fmt.Errorf("stock adjustment of zero units")
	}
	var adjusted domain.InventoryItem
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		before, ok := tx.FindInventoryItem(inventoryItemID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityInventoryItem, ID: inventoryItemID}
		}
		actor := actorID(sess)
		if delta < 0 {
			issued, err := IssueStock(tx, e.policy, Issue{
				InventoryItemID: inventoryItemID,
				Quantity:        -delta,
				Type:            domain.MovementAdjustment,
				ReferenceType:   ReferenceAdjustment,
				ReferenceID:     inventoryItemID,
				PerformedBy:     actor,
				Notes:           reason,
			})
			if err != nil {
				return err
			}
			adjusted = issued.Item
		} else {
			item, _, err := ReceiveStock(tx, Receipt{
				InventoryItemID: inventoryItemID,
				Quantity:        delta,
				Type:            domain.MovementAdjustment,
				ReferenceType:   ReferenceAdjustment,
				ReferenceID:     inventoryItemID,
				PerformedBy:     actor,
				Notes:           reason,
			})
			if err != nil {
				return err
			}
			adjusted = item
		}
		e.record(tx, sess, audit.Entry{
			Action:      domain.AuditStockAdjustment,
			EntityType:  domain.EntityInventoryItem,
			EntityID:    inventoryItemID,
			Before:      before,
			After:       adjusted,
			Description: reason,
		})
		return nil
	})
	return adjusted, err
}

// FEFOBatches returns the product's batches at a facility that still hold
// stock and have not expired, nearest expiry first. Batches without an
// expiry date sort last.
func (e *Engine) FEFOBatches(ctx context.Context, organizationID, facilityID, productID string) ([]domain.InventoryBatch, error) {
	var out []domain.InventoryBatch
	err := e.store.View(ctx, func(v domain.TransactionView) error {
		now := e.store.NowFunc()()
		for _, b := range v.ListInventoryBatches(domain.ListFilter{OrganizationID: organizationID, FacilityID: facilityID, ProductID: productID}) {
			if b.Quantity > 0 && !b.Expired(now) {
				out = append(out, b)
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b domain.InventoryBatch) int {
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			return a.ReceivedAt.Compare(b.ReceivedAt)
		case a.ExpiryDate == nil:
			return 1
		case b.ExpiryDate == nil:
			return -1
		}
		return cmp.Or(a.ExpiryDate.Compare(*b.ExpiryDate), a.ReceivedAt.Compare(b.ReceivedAt))
	})
	return out, err
}

func actorID(sess *domain.Session) string {
	if sess.Valid() {
		return sess.ActorID
	}
	return ""
}
