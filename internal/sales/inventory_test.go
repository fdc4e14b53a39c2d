package sales

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/pkg/domain"
)

func TestReceivePurchaseOrder(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	var order domain.PurchaseOrder
	_, err := f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		order, err = tx.CreatePurchaseOrder(domain.PurchaseOrder{
			OrganizationID: "org-1",
			FacilityID:     "fac-1",
			Status:         domain.PurchaseOrderOrdered,
			Items: []domain.PurchaseOrderItem{
				{ProductID: f.product.ID, Quantity: 10, UnitCost: decimal.NewFromInt(40)},
			},
		})
		return err
	})
	require.NoError(t, err)
	lineID := order.Items[0].ID
	expiry := f.now.AddDate(1, 0, 0)

	partial, err := f.engine.ReceivePurchaseOrder(ctx, cashier, order.ID, []ReceiptLine{
		{ItemID: lineID, Quantity: 4, BatchNumber: "B-1", ExpiryDate: &expiry},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderPartiallyReceived, partial.Status)
	assert.Equal(t, int64(4), partial.Items[0].ReceivedQuantity)
	assert.Equal(t, int64(4), f.inventory(t).QuantityOnHand)

	_, err = f.engine.ReceivePurchaseOrder(ctx, cashier, order.ID, []ReceiptLine{{ItemID: lineID, Quantity: 7}})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	done, err := f.engine.ReceivePurchaseOrder(ctx, cashier, order.ID, []ReceiptLine{{ItemID: lineID, Quantity: 6}})
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseOrderReceived, done.Status)
	require.NotNil(t, done.ReceivedAt)
	assert.Equal(t, int64(10), f.inventory(t).QuantityOnHand)

	batches, err := f.engine.FEFOBatches(ctx, "org-1", "fac-1", f.product.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "B-1", batches[0].BatchNumber)
	assert.Equal(t, int64(4), batches[0].Quantity)
	assert.True(t, decimal.NewFromInt(40).Equal(batches[0].CostPrice))

	purchases := 0
	for _, m := range f.movements(t) {
		if m.Type == domain.MovementPurchase {
			purchases++
			assert.Equal(t, order.ID, m.ReferenceID)
		}
	}
	assert.Equal(t, 2, purchases)

	_, err = f.engine.ReceivePurchaseOrder(ctx, cashier, order.ID, []ReceiptLine{{ItemID: lineID, Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.engine.ReceivePurchaseOrder(ctx, cashier, "missing", []ReceiptLine{{ItemID: lineID, Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	item, err := f.engine.AdjustStock(ctx, cashier, f.item.ID, 3, "count correction")
	require.NoError(t, err)
	assert.Equal(t, int64(8), item.QuantityOnHand)

	item, err = f.engine.AdjustStock(ctx, cashier, f.item.ID, -2, "breakage")
	require.NoError(t, err)
	assert.Equal(t, int64(6), item.QuantityOnHand)

	_, err = f.engine.AdjustStock(ctx, cashier, f.item.ID, 0, "")
	require.Error(t, err)
	_, err = f.engine.AdjustStock(ctx, cashier, "missing", 1, "")
	require.ErrorIs(t, err, domain.ErrNotFound)

	moves := f.movements(t)
	require.Len(t, moves, 2)
	for _, m := range moves {
		assert.Equal(t, domain.MovementAdjustment, m.Type)
	}
}

func TestFEFOBatchesOrdering(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	soon, later, past := f.now.AddDate(0, 1, 0), f.now.AddDate(0, 6, 0), f.now.AddDate(0, -1, 0)
	_, err := f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, b := range []domain.InventoryBatch{
			{BatchNumber: "LATE", ExpiryDate: &later, Quantity: 5},
			{BatchNumber: "NOEXP", Quantity: 5},
			{BatchNumber: "SOON", ExpiryDate: &soon, Quantity: 5},
			{BatchNumber: "EXPIRED", ExpiryDate: &past, Quantity: 5},
			{BatchNumber: "EMPTY", ExpiryDate: &soon, Quantity: 0},
		} {
			b.InventoryItemID = f.item.ID
			if _, err := tx.CreateInventoryBatch(b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	batches, err := f.engine.FEFOBatches(ctx, "org-1", "fac-1", f.product.ID)
	require.NoError(t, err)
	var names []string
	for _, b := range batches {
		names = append(names, b.BatchNumber)
	}
	assert.Equal(t, []string{"SOON", "LATE", "NOEXP"}, names)
}

func TestSaleDeductsSelectedBatch(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	expiry := f.now.Add(90 * 24 * time.Hour)
	var batch domain.InventoryBatch
	_, err := f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		batch, err = tx.CreateInventoryBatch(domain.InventoryBatch{InventoryItemID: f.item.ID, BatchNumber: "B-7", ExpiryDate: &expiry, Quantity: 4})
		return err
	})
	require.NoError(t, err)

	cart := cashCart(f, 3, 300)
	cart.Lines[0].BatchID = batch.ID
	sale, err := f.engine.ProcessSale(ctx, cashier, cart)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sale.Items[0].BatchDeducted)

	batches, err := f.engine.FEFOBatches(ctx, "org-1", "fac-1", f.product.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, int64(1), batches[0].Quantity)

	_, ok, err := f.engine.VoidSale(ctx, cashier, sale.ID, "")
	require.NoError(t, err)
	require.True(t, ok)
	batches, err = f.engine.FEFOBatches(ctx, "org-1", "fac-1", f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), batches[0].Quantity)
}

func TestBatchMustBelongToInventoryItem(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	var foreign domain.InventoryBatch
	var ibuprofen domain.InventoryItem
	_, err := f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		product, err := tx.CreateProduct(domain.Product{OrganizationID: "org-1", Name: "Ibuprofen 400mg", UnitPrice: decimal.NewFromInt(20)})
		if err != nil {
			return err
		}
		ibuprofen, err = tx.CreateInventoryItem(domain.InventoryItem{
			OrganizationID: "org-1", FacilityID: "fac-1", ProductID: product.ID, QuantityOnHand: 50,
		})
		if err != nil {
			return err
		}
		foreign, err = tx.CreateInventoryBatch(domain.InventoryBatch{InventoryItemID: ibuprofen.ID, BatchNumber: "IB-1", Quantity: 50})
		return err
	})
	require.NoError(t, err)

	cart := cashCart(f, 3, 300)
	cart.Lines[0].BatchID = foreign.ID
	_, err = f.engine.ProcessSale(ctx, cashier, cart)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, _, err := ReceiveStock(tx, Receipt{
			InventoryItemID: f.item.ID,
			BatchID:         foreign.ID,
			BatchQuantity:   5,
			Quantity:        5,
			Type:            domain.MovementAdjustment,
		})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	assert.Equal(t, int64(10), f.inventory(t).QuantityOnHand)
	assert.Empty(t, f.movements(t))
	require.NoError(t, f.store.View(ctx, func(v domain.TransactionView) error {
		batch, ok := v.FindInventoryBatch(foreign.ID)
		require.True(t, ok)
		assert.Equal(t, int64(50), batch.Quantity)
		return nil
	}))
}
