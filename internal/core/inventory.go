package core

import (
	"context"

	"clinicore/internal/sales"
	"clinicore/pkg/domain"
)

// ListStockMovements returns the stock ledger, newest first.
func (s *Service) ListStockMovements(ctx context.Context, f ListFilter) ([]domain.StockMovement, error) {
	var out []domain.StockMovement
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		out = v.ListStockMovements(f)
		return nil
	})
	return out, err
}

// ReceivePurchaseOrder delegates to the sale engine.
func (s *Service) ReceivePurchaseOrder(ctx context.Context, sess *Session, orderID string, lines []sales.ReceiptLine) (domain.PurchaseOrder, error) {
	return s.sales.ReceivePurchaseOrder(ctx, sess, orderID, lines)
}

// AdjustStock delegates to the sale engine.
func (s *Service) AdjustStock(ctx context.Context, sess *Session, inventoryItemID string, delta int64, reason string) (domain.InventoryItem, error) {
	return s.sales.AdjustStock(ctx, sess, inventoryItemID, delta, reason)
}

// FEFOBatches delegates to the sale engine.
func (s *Service) FEFOBatches(ctx context.Context, organizationID, facilityID, productID string) ([]domain.InventoryBatch, error) {
	return s.sales.FEFOBatches(ctx, organizationID, facilityID, productID)
}
