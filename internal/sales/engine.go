// Package sales turns carts into sales. A sale, its stock deductions and its
// ledger lines commit in one store transaction.
package sales

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"clinicore/internal/audit"
	"clinicore/internal/logger"
	"clinicore/internal/metrics"
	"clinicore/pkg/domain"
)

// ReferenceSale tags stock movements caused by sales.
const ReferenceSale = "sale"

// errNoop rolls back a transaction that turned out to have nothing to do.
var errNoop = errors.New("no-op")

// Engine processes and voids sales.
type Engine struct {
	store   domain.PersistentStore
	audit   *audit.Logger
	policy  StockPolicy
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithStockPolicy sets the stock policy; the default is PolicyClamp.
func WithStockPolicy(p StockPolicy) Option { return func(e *Engine) { e.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics records processed and voided sales.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine builds an engine over store. auditLog may be nil.
func NewEngine(store domain.PersistentStore, auditLog *audit.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, audit: auditLog, policy: PolicyClamp}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrNop(e.log).Named("sales")
	return e
}

// Policy returns the configured stock policy.
func (e *Engine) Policy() StockPolicy { return e.policy }

// ProcessSale prices the cart, deducts stock, writes one movement per
// deducted line and stores the completed sale.
func (e *Engine) ProcessSale(ctx context.Context, sess *domain.Session, cart Cart) (domain.Sale, error) {
	if err := cart.Validate(); err != nil {
		return domain.Sale{}, err
	}
	var sale domain.Sale
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		sale, err = e.processSale(tx, sess, cart)
		return err
	})
	if err != nil {
		return domain.Sale{}, err
	}
	e.metrics.SaleProcessed()
	e.log.Info("sale processed",
		zap.String("id", sale.ID),
		zap.String("number", sale.SaleNumber),
		zap.String("total", sale.TotalAmount.StringFixed(2)),
		zap.String("payment_status", string(sale.PaymentStatus)))
	return sale, nil
}

func (e *Engine) processSale(tx domain.Transaction, sess *domain.Session, cart Cart) (domain.Sale, error) {
	sale := domain.Sale{
		Base:           domain.Base{ID: domain.NewID()},
		OrganizationID: cart.OrganizationID,
		FacilityID:     cart.FacilityID,
		CustomerID:     cart.CustomerID,
		CustomerName:   cart.CustomerName,
		PrescriptionID: cart.PrescriptionID,
		Notes:          cart.Notes,
		Status:         domain.SaleCompleted,
	}
	if sess.Valid() {
		sale.SoldBy, sale.SoldByName = sess.ActorID, sess.ActorName
		if sale.OrganizationID == "" {
			sale.OrganizationID = sess.OrganizationID
		}
		if sale.FacilityID == "" {
			sale.FacilityID = sess.FacilityID
		}
	}

	subtotal, discount, tax, total := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, line := range cart.Lines {
		product, ok := tx.FindProduct(line.ProductID)
		if !ok {
			return domain.Sale{}, domain.NotFoundError{Entity: domain.EntityProduct, ID: line.ProductID}
		}
		priced := priceLine(line, product)
		item := priced.item

		inventoryID := line.InventoryItemID
		if inventoryID == "" {
			if inv, ok := tx.FindInventoryItemFor(sale.OrganizationID, sale.FacilityID, product.ID); ok {
				inventoryID = inv.ID
			}
		}
		if inventoryID != "" {
			issued, err := IssueStock(tx, e.policy, Issue{
				InventoryItemID: inventoryID,
				BatchID:         line.BatchID,
				Quantity:        line.Quantity,
				Type:            domain.MovementSale,
				ReferenceType:   ReferenceSale,
				ReferenceID:     sale.ID,
				PerformedBy:     sale.SoldBy,
			})
			if err != nil {
				return domain.Sale{}, err
			}
			item.InventoryItemID = inventoryID
			item.DeductedQuantity = issued.Deducted
			item.BatchDeducted = issued.BatchDeducted
			if issued.Deducted < line.Quantity {
				e.log.Warn("sale line clamped at available stock",
					zap.String("product", product.ID),
					zap.Int64("requested", line.Quantity),
					zap.Int64("deducted", issued.Deducted))
			}
		}

		sale.Items = append(sale.Items, item)
		subtotal = subtotal.Add(priced.gross)
		discount = discount.Add(priced.discount)
		tax = tax.Add(item.TaxAmount)
		total = total.Add(item.LineTotal)
	}
	sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount = subtotal, discount, tax, total

	for _, p := range cart.Payments {
		if p.ReceivedAt.IsZero() {
			p.ReceivedAt = tx.Now()
		}
		sale.Payments = append(sale.Payments, p)
	}

	created, err := tx.CreateSale(sale)
	if err != nil {
		return domain.Sale{}, err
	}
	e.record(tx, sess, audit.Entry{
		Action:     domain.AuditProcessSale,
		EntityType: domain.EntitySale,
		EntityID:   created.ID,
		After:      created,
	})
	return created, nil
}

// VoidSale reverses a completed sale: stock actually deducted is returned
// with one CUSTOMER_RETURN movement per line and the sale becomes VOIDED.
// Unknown or non-completed sales report false without error.
func (e *Engine) VoidSale(ctx context.Context, sess *domain.Session, id, reason string) (domain.Sale, bool, error) {
	var voided domain.Sale
	_, err := e.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		sale, ok := tx.FindSale(id)
		if !ok || sale.Status != domain.SaleCompleted {
			return errNoop
		}
		actor := actorID(sess)
		for _, item := range sale.Items {
			if item.InventoryItemID == "" || item.DeductedQuantity <= 0 {
				continue
			}
			if _, _, err := ReceiveStock(tx, Receipt{
				InventoryItemID: item.InventoryItemID,
				BatchID:         item.BatchID,
				BatchQuantity:   item.BatchDeducted,
				Quantity:        item.DeductedQuantity,
				Type:            domain.MovementCustomerReturn,
				ReferenceType:   ReferenceSale,
				ReferenceID:     sale.ID,
				PerformedBy:     actor,
				Notes:           reason,
			}); err != nil {
				return err
			}
		}
		var err error
		voided, err = tx.UpdateSale(id, func(s *domain.Sale) error {
			now := tx.Now()
			s.Status = domain.SaleVoided
			s.VoidReason = reason
			s.VoidedBy = actor
			s.VoidedAt = &now
			return nil
		})
		if err != nil {
			return err
		}
		e.record(tx, sess, audit.Entry{
			Action:      domain.AuditVoidSale,
			EntityType:  domain.EntitySale,
			EntityID:    id,
			Before:      sale,
			After:       voided,
			Description: reason,
		})
		return nil
	})
	if errors.Is(err, errNoop) {
		return domain.Sale{}, false, nil
	}
	if err != nil {
		return domain.Sale{}, false, err
	}
	e.metrics.SaleVoided()
	e.log.Info("sale voided", zap.String("id", id), zap.String("reason", reason))
	return voided, true, nil
}

func (e *Engine) record(tx domain.Transaction, sess *domain.Session, entry audit.Entry) {
	if e.audit != nil {
		e.audit.Record(tx, sess, entry)
	}
}
