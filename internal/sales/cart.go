package sales

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"clinicore/pkg/domain"
)

// CartLine is one requested line. UnitPrice and TaxRate override the product
// master when set; discounts combine a percentage and a fixed amount.
type CartLine struct {
	ProductID       string           `json:"product_id" validate:"required"`
	Quantity        int64            `json:"quantity" validate:"gt=0"`
	UnitPrice       *decimal.Decimal `json:"unit_price,omitempty" validate:"omitempty,gte=0"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty" validate:"omitempty,gte=0"`
	DiscountPercent decimal.Decimal  `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountAmount  decimal.Decimal  `json:"discount_amount" validate:"gte=0"`
	InventoryItemID string           `json:"inventory_item_id,omitempty"`
	BatchID         string           `json:"batch_id,omitempty"`
}

// Cart is the input to ProcessSale.
type Cart struct {
	OrganizationID string           `json:"organization_id"`
	FacilityID     string           `json:"facility_id"`
	CustomerID     string           `json:"customer_id,omitempty"`
	CustomerName   string           `json:"customer_name,omitempty"`
	PrescriptionID string           `json:"prescription_id,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	Lines          []CartLine       `json:"lines" validate:"dive"`
	Payments       []domain.Payment `json:"payments" validate:"dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks the cart before any state is touched.
func (c Cart) Validate() error {
	if len(c.Lines) == 0 {
		return domain.ErrEmptyCart
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid cart: %w", err)
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// pricedLine is a cart line resolved against the product master.
type pricedLine struct {
	item     domain.SaleItem
	gross    decimal.Decimal
	discount decimal.Decimal
}

func priceLine(line CartLine, product domain.Product) pricedLine {
	price := product.UnitPrice
	if line.UnitPrice != nil {
		price = *line.UnitPrice
	}
	rate := product.TaxRate
	if line.TaxRate != nil {
		rate = *line.TaxRate
	}
	gross := price.Mul(decimal.NewFromInt(line.Quantity))
	discount := gross.Mul(line.DiscountPercent).Div(hundred).Add(line.DiscountAmount).Round(2)
	discount = decimal.Min(discount, gross)
	tax := gross.Sub(discount).Mul(rate).Div(hundred).Round(2)
	return pricedLine{
		gross:    gross,
		discount: discount,
		item: domain.SaleItem{
			ProductID:       product.ID,
			ProductName:     product.Name,
			SKU:             product.SKU,
			InventoryItemID: line.InventoryItemID,
			BatchID:         line.BatchID,
			Quantity:        line.Quantity,
			UnitPrice:       price,
			DiscountPercent: line.DiscountPercent,
			DiscountAmount:  discount,
			TaxRate:         rate,
			TaxAmount:       tax,
			LineTotal:       gross.Sub(discount).Add(tax),
		},
	}
}
