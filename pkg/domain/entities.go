// Package domain defines the persistent clinic and pharmacy entities, value
// types, and rule evaluation primitives used by clinicore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, audit entries and
// snapshot tables.
const (
	EntityOrganization    EntityType = "organization"
	EntityLicense         EntityType = "license"
	EntityUser            EntityType = "user"
	EntityPatient         EntityType = "patient"
	EntityMedicalRecord   EntityType = "medical_record"
	EntityEncounter       EntityType = "encounter"
	EntityPrescription    EntityType = "prescription"
	EntityProduct         EntityType = "product"
	EntitySupplier        EntityType = "supplier"
	EntityInventoryItem   EntityType = "inventory_item"
	EntityInventoryBatch  EntityType = "inventory_batch"
	EntityStockMovement   EntityType = "stock_movement"
	EntityPurchaseOrder   EntityType = "purchase_order"
	EntitySale            EntityType = "sale"
	EntityHospitalInvoice EntityType = "hospital_invoice"
	EntityAuditEntry      EntityType = "audit_entry"
	EntityChangeRecord    EntityType = "change_record"
)

// Base contains common fields for all domain records. RemoteID correlates the
// row with its identity at the remote authority; local ids are not globally
// unique across installations so the two are never conflated.
type Base struct {
	ID        string    `json:"id"`
	RemoteID  string    `json:"remote_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityID returns the local identifier.
func (b Base) EntityID() string { return b.ID }

// Created returns the creation timestamp.
func (b Base) Created() time.Time { return b.CreatedAt }

// Updated returns the last modification timestamp.
func (b Base) Updated() time.Time { return b.UpdatedAt }

// Remote returns the correlated remote identity, if any.
func (b Base) Remote() string { return b.RemoteID }

// BaseRef exposes the embedded base for generic store helpers.
func (b *Base) BaseRef() *Base { return b }

// Organization is a tenant: a clinic, pharmacy or hospital.
type Organization struct {
	Base
	Name    string `json:"name"`
	Code    string `json:"code"`
	Type    string `json:"type"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Active  bool   `json:"active"`
}

// LicenseStatus enumerates license validity states.
type LicenseStatus string

// License validity states.
const (
	LicenseActive    LicenseStatus = "active"
	LicenseExpired   LicenseStatus = "expired"
	LicenseSuspended LicenseStatus = "suspended"
)

// License records the product license held by an organization. Key format
// rules are owned by the licensing layer; the store only keeps the record.
type License struct {
	Base
	OrganizationID string        `json:"organization_id"`
	Key            string        `json:"key"`
	Plan           string        `json:"plan"`
	Status         LicenseStatus `json:"status"`
	IssuedAt       time.Time     `json:"issued_at"`
	ExpiresAt      *time.Time    `json:"expires_at"`
	MaxUsers       int           `json:"max_users"`
}

// Role is the actor role resolved by the auth layer.
type Role string

// Supported roles.
const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleNurse        Role = "nurse"
	RolePharmacist   Role = "pharmacist"
	RoleCashier      Role = "cashier"
	RoleReceptionist Role = "receptionist"
)

// User is a staff member able to sign in. Lockout state is kept on the row.
type User struct {
	Base
	OrganizationID      string     `json:"organization_id"`
	FacilityID          string     `json:"facility_id"`
	Name                string     `json:"name"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone"`
	Role                Role       `json:"role"`
	PasswordHash        string     `json:"password_hash,omitempty"`
	Active              bool       `json:"active"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockoutUntil        *time.Time `json:"lockout_until"`
	LastLoginAt         *time.Time `json:"last_login_at"`
}

// UserStatus is the sign-in state matched by ListFilter.Status for users.
type UserStatus string

// User sign-in states.
const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// Status reports whether the account is enabled.
func (u User) Status() UserStatus {
	if u.Active {
		return UserActive
	}
	return UserInactive
}

// PatientStatus enumerates patient registration states.
type PatientStatus string

// Patient registration states.
const (
	PatientActive   PatientStatus = "active"
	PatientInactive PatientStatus = "inactive"
	PatientDeceased PatientStatus = "deceased"
)

// AccessTracking records who last read a sensitive row and how often it was read.
type AccessTracking struct {
	LastAccessedBy string     `json:"last_accessed_by,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
	AccessCount    int64      `json:"access_count"`
}

// Touch records one read by actorID at now.
func (a *AccessTracking) Touch(actorID string, now time.Time) {
	a.LastAccessedBy = actorID
	a.LastAccessedAt = &now
	a.AccessCount++
}

// Tracking exposes the embedded tracking fields for in-place updates.
func (a *AccessTracking) Tracking() *AccessTracking { return a }

// Patient is a registered person receiving care.
type Patient struct {
	Base
	AccessTracking
	OrganizationID string        `json:"organization_id"`
	MRN            string        `json:"mrn"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	DateOfBirth    *time.Time    `json:"date_of_birth"`
	Gender         string        `json:"gender"`
	Phone          string        `json:"phone"`
	Email          string        `json:"email"`
	Address        string        `json:"address"`
	BloodGroup     string        `json:"blood_group"`
	Allergies      []string      `json:"allergies"`
	Status         PatientStatus `json:"status"`
}

// FullName joins first and last name.
func (p Patient) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// MedicalRecord is a clinical note or document attached to a patient.
type MedicalRecord struct {
	Base
	OrganizationID string `json:"organization_id"`
	PatientID      string `json:"patient_id"`
	EncounterID    string `json:"encounter_id,omitempty"`
	RecordType     string `json:"record_type"`
	Title          string `json:"title"`
	Notes          string `json:"notes"`
	RecordedBy     string `json:"recorded_by"`
}

// EncounterStatus enumerates visit workflow states.
type EncounterStatus string

// Encounter workflow states.
const (
	EncounterScheduled  EncounterStatus = "scheduled"
	EncounterInProgress EncounterStatus = "in_progress"
	EncounterCompleted  EncounterStatus = "completed"
	EncounterCancelled  EncounterStatus = "cancelled"
)

// Encounter is a single patient visit.
type Encounter struct {
	Base
	AccessTracking
	OrganizationID  string          `json:"organization_id"`
	FacilityID      string          `json:"facility_id"`
	PatientID       string          `json:"patient_id"`
	EncounterNumber string          `json:"encounter_number"`
	ProviderID      string          `json:"provider_id"`
	Type            string          `json:"type"`
	Status          EncounterStatus `json:"status"`
	ChiefComplaint  string          `json:"chief_complaint"`
	Diagnosis       string          `json:"diagnosis"`
	Notes           string          `json:"notes"`
	StartedAt       *time.Time      `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at"`
}

// PrescriptionStatus enumerates prescription fulfilment states.
type PrescriptionStatus string

// Prescription fulfilment states.
const (
	PrescriptionActive             PrescriptionStatus = "active"
	PrescriptionPartiallyDispensed PrescriptionStatus = "partially_dispensed"
	PrescriptionDispensed          PrescriptionStatus = "dispensed"
	PrescriptionCancelled          PrescriptionStatus = "cancelled"
)

// PrescriptionItem is one prescribed medication line.
type PrescriptionItem struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	MedicationName    string `json:"medication_name"`
	Dosage            string `json:"dosage"`
	Frequency         string `json:"frequency"`
	DurationDays      int    `json:"duration_days"`
	Quantity          int64  `json:"quantity"`
	DispensedQuantity int64  `json:"dispensed_quantity"`
	Instructions      string `json:"instructions"`
}

// Prescription is an order for medications issued during an encounter.
type Prescription struct {
	Base
	OrganizationID     string             `json:"organization_id"`
	FacilityID         string             `json:"facility_id"`
	PatientID          string             `json:"patient_id"`
	EncounterID        string             `json:"encounter_id,omitempty"`
	PrescriberID       string             `json:"prescriber_id"`
	PrescriptionNumber string             `json:"prescription_number"`
	Status             PrescriptionStatus `json:"status"`
	Items              []PrescriptionItem `json:"items"`
	Notes              string             `json:"notes"`
	DispensedAt        *time.Time         `json:"dispensed_at"`
	DispensedBy        string             `json:"dispensed_by,omitempty"`
}

// ProductStatus enumerates catalogue states.
type ProductStatus string

// Catalogue states.
const (
	ProductActive       ProductStatus = "active"
	ProductDiscontinued ProductStatus = "discontinued"
)

// Product is a sellable catalogue item (medication, consumable, service).
type Product struct {
	Base
	OrganizationID       string          `json:"organization_id"`
	Name                 string          `json:"name"`
	GenericName          string          `json:"generic_name"`
	SKU                  string          `json:"sku"`
	Barcode              string          `json:"barcode"`
	Category             string          `json:"category"`
	Unit                 string          `json:"unit"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	CostPrice            decimal.Decimal `json:"cost_price"`
	TaxRate              decimal.Decimal `json:"tax_rate"`
	RequiresPrescription bool            `json:"requires_prescription"`
	ReorderLevel         int64           `json:"reorder_level"`
	SupplierID           string          `json:"supplier_id,omitempty"`
	Status               ProductStatus   `json:"status"`
}

// Supplier is a vendor of stock.
type Supplier struct {
	Base
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Code           string `json:"code"`
	ContactName    string `json:"contact_name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	Active         bool   `json:"active"`
}

// InventoryItem is the stock position of one product at one facility.
// QuantityAvailable is derived: QuantityOnHand - QuantityReserved.
type InventoryItem struct {
	Base
	OrganizationID    string     `json:"organization_id"`
	FacilityID        string     `json:"facility_id"`
	ProductID         string     `json:"product_id"`
	QuantityOnHand    int64      `json:"quantity_on_hand"`
	QuantityReserved  int64      `json:"quantity_reserved"`
	QuantityAvailable int64      `json:"quantity_available"`
	ReorderLevel      int64      `json:"reorder_level"`
	Location          string     `json:"location"`
	LastCountedAt     *time.Time `json:"last_counted_at"`
}

// Normalize re-derives QuantityAvailable.
func (i *InventoryItem) Normalize() {
	i.QuantityAvailable = i.QuantityOnHand - i.QuantityReserved
}

// BelowReorderLevel reports whether available stock has dropped to the reorder threshold.
func (i InventoryItem) BelowReorderLevel() bool {
	return i.ReorderLevel > 0 && i.QuantityAvailable <= i.ReorderLevel
}

// InventoryBatch is a received lot of a product with its own expiry.
type InventoryBatch struct {
	Base
	OrganizationID  string          `json:"organization_id"`
	FacilityID      string          `json:"facility_id"`
	InventoryItemID string          `json:"inventory_item_id"`
	ProductID       string          `json:"product_id"`
	BatchNumber     string          `json:"batch_number"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	Quantity        int64           `json:"quantity"`
	InitialQuantity int64           `json:"initial_quantity"`
	CostPrice       decimal.Decimal `json:"cost_price"`
	SupplierID      string          `json:"supplier_id,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
}

// Expired reports whether the batch expiry date is at or before now.
func (b InventoryBatch) Expired(now time.Time) bool {
	return b.ExpiryDate != nil && !b.ExpiryDate.After(now)
}

// MovementDirection is IN for receipts and OUT for issues.
type MovementDirection string

// Movement directions.
const (
	DirectionIn  MovementDirection = "IN"
	DirectionOut MovementDirection = "OUT"
)

// MovementType classifies the business event behind a stock movement.
type MovementType string

// Movement types.
const (
	MovementSale           MovementType = "SALE"
	MovementCustomerReturn MovementType = "CUSTOMER_RETURN"
	MovementPurchase       MovementType = "PURCHASE"
	MovementAdjustment     MovementType = "ADJUSTMENT"
	MovementDispense       MovementType = "DISPENSE"
)

// StockMovement is an append-only ledger line describing a stock change.
type StockMovement struct {
	Base
	OrganizationID  string            `json:"organization_id"`
	FacilityID      string            `json:"facility_id"`
	InventoryItemID string            `json:"inventory_item_id"`
	ProductID       string            `json:"product_id"`
	BatchID         string            `json:"batch_id,omitempty"`
	Direction       MovementDirection `json:"direction"`
	Type            MovementType      `json:"type"`
	Quantity        int64             `json:"quantity"`
	PreviousBalance int64             `json:"previous_balance"`
	NewBalance      int64             `json:"new_balance"`
	ReferenceType   string            `json:"reference_type"`
	ReferenceID     string            `json:"reference_id"`
	PerformedBy     string            `json:"performed_by"`
	Notes           string            `json:"notes,omitempty"`
}

// PurchaseOrderStatus enumerates procurement states.
type PurchaseOrderStatus string

// Procurement states.
const (
	PurchaseOrderDraft             PurchaseOrderStatus = "draft"
	PurchaseOrderOrdered           PurchaseOrderStatus = "ordered"
	PurchaseOrderPartiallyReceived PurchaseOrderStatus = "partially_received"
	PurchaseOrderReceived          PurchaseOrderStatus = "received"
	PurchaseOrderCancelled         PurchaseOrderStatus = "cancelled"
)

// PurchaseOrderItem is one ordered product line.
type PurchaseOrderItem struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	Quantity         int64           `json:"quantity"`
	ReceivedQuantity int64           `json:"received_quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

// PurchaseOrder is a stock order placed with a supplier.
type PurchaseOrder struct {
	Base
	OrganizationID string              `json:"organization_id"`
	FacilityID     string              `json:"facility_id"`
	SupplierID     string              `json:"supplier_id"`
	OrderNumber    string              `json:"order_number"`
	Status         PurchaseOrderStatus `json:"status"`
	Items          []PurchaseOrderItem `json:"items"`
	TotalAmount    decimal.Decimal     `json:"total_amount"`
	ExpectedAt     *time.Time          `json:"expected_at"`
	ReceivedAt     *time.Time          `json:"received_at"`
}

// Normalize recomputes line and order totals.
func (p *PurchaseOrder) Normalize() {
	total := decimal.Zero
	for i := range p.Items {
		item := &p.Items[i]
		item.LineTotal = item.UnitCost.Mul(decimal.NewFromInt(item.Quantity))
		total = total.Add(item.LineTotal)
	}
	p.TotalAmount = total
}

// SaleStatus enumerates sale lifecycle states.
type SaleStatus string

// Sale lifecycle states.
const (
	SaleCompleted SaleStatus = "COMPLETED"
	SaleVoided    SaleStatus = "VOIDED"
)

// PaymentStatus describes settlement of a sale or invoice.
type PaymentStatus string

// Settlement states.
const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// PaymentMethod enumerates tender types.
type PaymentMethod string

// Tender types.
const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
	PaymentInsurance    PaymentMethod = "insurance"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// SaleItem is an immutable snapshot of a sold line. Product name, SKU and
// price are copied at sale time so later catalogue edits never alter history.
type SaleItem struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	ProductName      string          `json:"product_name"`
	SKU              string          `json:"sku"`
	InventoryItemID  string          `json:"inventory_item_id,omitempty"`
	BatchID          string          `json:"batch_id,omitempty"`
	Quantity         int64           `json:"quantity"`
	DeductedQuantity int64           `json:"deducted_quantity"`
	BatchDeducted    int64           `json:"batch_deducted"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

// Payment is one tender applied to a sale or invoice.
type Payment struct {
	ID         string          `json:"id"`
	Method     PaymentMethod   `json:"method" validate:"required"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Reference  string          `json:"reference,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Sale is a completed point-of-sale transaction.
type Sale struct {
	Base
	OrganizationID string          `json:"organization_id"`
	FacilityID     string          `json:"facility_id"`
	SaleNumber     string          `json:"sale_number"`
	CustomerID     string          `json:"customer_id,omitempty"`
	CustomerName   string          `json:"customer_name,omitempty"`
	PrescriptionID string          `json:"prescription_id,omitempty"`
	Items          []SaleItem      `json:"items"`
	Payments       []Payment       `json:"payments"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	ChangeGiven    decimal.Decimal `json:"change_given"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Status         SaleStatus      `json:"status"`
	SoldBy         string          `json:"sold_by"`
	SoldByName     string          `json:"sold_by_name"`
	Notes          string          `json:"notes,omitempty"`
	VoidReason     string          `json:"void_reason,omitempty"`
	VoidedBy       string          `json:"voided_by,omitempty"`
	VoidedAt       *time.Time      `json:"voided_at"`
}

// TotalPaid sums the attached payments.
func (s Sale) TotalPaid() decimal.Decimal {
	return sumPayments(s.Payments)
}

// Normalize re-derives the settlement fields from TotalAmount and Payments.
// AmountPaid is capped at the total; any excess is ChangeGiven.
func (s *Sale) Normalize() {
	paid := sumPayments(s.Payments)
	s.AmountPaid = decimal.Min(paid, s.TotalAmount)
	s.AmountDue = NonNegative(s.TotalAmount.Sub(paid))
	s.ChangeGiven = NonNegative(paid.Sub(s.TotalAmount))
	if paid.GreaterThanOrEqual(s.TotalAmount) {
		s.PaymentStatus = PaymentPaid
	} else {
		s.PaymentStatus = PaymentPartial
	}
}

// InvoiceStatus enumerates hospital invoice states.
type InvoiceStatus string

// Hospital invoice states.
const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoiceIssued    InvoiceStatus = "issued"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// InvoiceItem is a billed service or supply line.
type InvoiceItem struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	ServiceCode    string          `json:"service_code"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

// HospitalInvoice bills a patient for an encounter.
type HospitalInvoice struct {
	Base
	OrganizationID string          `json:"organization_id"`
	FacilityID     string          `json:"facility_id"`
	InvoiceNumber  string          `json:"invoice_number"`
	PatientID      string          `json:"patient_id"`
	EncounterID    string          `json:"encounter_id,omitempty"`
	Items          []InvoiceItem   `json:"items"`
	Payments       []Payment       `json:"payments"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Status         InvoiceStatus   `json:"status"`
	DueDate        *time.Time      `json:"due_date"`
}

// Normalize recomputes line totals, aggregates and settlement state.
func (h *HospitalInvoice) Normalize() {
	subtotal, discount, tax := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range h.Items {
		item := &h.Items[i]
		gross := item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))
		disc := decimal.Min(item.DiscountAmount, gross)
		lineTax := gross.Sub(disc).Mul(item.TaxRate).Div(hundred).Round(2)
		item.LineTotal = gross.Sub(disc).Add(lineTax)
		subtotal = subtotal.Add(gross)
		discount = discount.Add(disc)
		tax = tax.Add(lineTax)
	}
	h.Subtotal = subtotal
	h.DiscountAmount = discount
	h.TaxAmount = tax
	h.TotalAmount = subtotal.Sub(discount).Add(tax)
	paid := sumPayments(h.Payments)
	h.AmountPaid = paid
	h.AmountDue = NonNegative(h.TotalAmount.Sub(paid))
	switch {
	case paid.IsZero() && h.TotalAmount.IsPositive():
		h.PaymentStatus = PaymentUnpaid
	case paid.GreaterThanOrEqual(h.TotalAmount):
		h.PaymentStatus = PaymentPaid
		if h.Status == InvoiceIssued {
			h.Status = InvoicePaid
		}
	default:
		h.PaymentStatus = PaymentPartial
	}
}

var hundred = decimal.NewFromInt(100)

// NonNegative clamps a decimal at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func sumPayments(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
