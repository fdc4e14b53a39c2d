package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field is a named scalar value exposed for auditing. Each entity kind lists
// exactly the fields that are meaningful to diff; bookkeeping such as
// updated_at and access counters is never included.
type Field struct {
	Name  string
	Value any
}

// Auditable is implemented by every entity kind the audit subsystem can diff.
type Auditable interface {
	AuditFields() []Field
	AuditName() string
}

// SensitiveKinds are entity kinds holding protected health information.
var SensitiveKinds = map[EntityType]bool{
	EntityPatient:       true,
	EntityMedicalRecord: true,
	EntityEncounter:     true,
	EntityPrescription:  true,
}

// IsSensitive reports whether rows of kind carry protected health information.
func IsSensitive(kind EntityType) bool { return SensitiveKinds[kind] }

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

// AuditFields implements Auditable.
func (o Organization) AuditFields() []Field {
	return []Field{
		{"name", o.Name}, {"code", o.Code}, {"type", o.Type}, {"phone", o.Phone},
		{"email", o.Email}, {"address", o.Address}, {"active", o.Active},
	}
}

// AuditName implements Auditable.
func (o Organization) AuditName() string { return o.Name }

// AuditFields implements Auditable.
func (l License) AuditFields() []Field {
	return []Field{
		{"organization_id", l.OrganizationID}, {"plan", l.Plan}, {"status", string(l.Status)},
		{"expires_at", timeValue(l.ExpiresAt)}, {"max_users", l.MaxUsers},
	}
}

// AuditName implements Auditable.
func (l License) AuditName() string { return l.Plan }

// AuditFields implements Auditable. The password hash is reported only as a
// change marker, never as a value.
func (u User) AuditFields() []Field {
	return []Field{
		{"name", u.Name}, {"email", u.Email}, {"phone", u.Phone}, {"role", string(u.Role)},
		{"active", u.Active}, {"facility_id", u.FacilityID}, {"password_set", u.PasswordHash != ""},
	}
}

// AuditName implements Auditable.
func (u User) AuditName() string { return u.Name }

// AuditFields implements Auditable.
func (p Patient) AuditFields() []Field {
	return []Field{
		{"mrn", p.MRN}, {"first_name", p.FirstName}, {"last_name", p.LastName},
		{"date_of_birth", timeValue(p.DateOfBirth)}, {"gender", p.Gender}, {"phone", p.Phone},
		{"email", p.Email}, {"address", p.Address}, {"blood_group", p.BloodGroup},
		{"allergies", strings.Join(p.Allergies, ",")}, {"status", string(p.Status)},
	}
}

// AuditName implements Auditable.
func (p Patient) AuditName() string { return p.FullName() }

// AuditFields implements Auditable.
func (m MedicalRecord) AuditFields() []Field {
	return []Field{
		{"patient_id", m.PatientID}, {"encounter_id", m.EncounterID}, {"record_type", m.RecordType},
		{"title", m.Title}, {"notes", m.Notes}, {"recorded_by", m.RecordedBy},
	}
}

// AuditName implements Auditable.
func (m MedicalRecord) AuditName() string { return m.Title }

// AuditFields implements Auditable.
func (e Encounter) AuditFields() []Field {
	return []Field{
		{"patient_id", e.PatientID}, {"encounter_number", e.EncounterNumber}, {"provider_id", e.ProviderID},
		{"type", e.Type}, {"status", string(e.Status)}, {"chief_complaint", e.ChiefComplaint},
		{"diagnosis", e.Diagnosis}, {"notes", e.Notes}, {"started_at", timeValue(e.StartedAt)},
		{"ended_at", timeValue(e.EndedAt)},
	}
}

// AuditName implements Auditable.
func (e Encounter) AuditName() string { return e.EncounterNumber }

// AuditFields implements Auditable.
func (p Prescription) AuditFields() []Field {
	var qty, dispensed int64
	for _, item := range p.Items {
		qty += item.Quantity
		dispensed += item.DispensedQuantity
	}
	return []Field{
		{"patient_id", p.PatientID}, {"prescriber_id", p.PrescriberID},
		{"prescription_number", p.PrescriptionNumber}, {"status", string(p.Status)},
		{"item_count", len(p.Items)}, {"quantity", qty}, {"dispensed_quantity", dispensed},
		{"notes", p.Notes}, {"dispensed_by", p.DispensedBy},
	}
}

// AuditName implements Auditable.
func (p Prescription) AuditName() string { return p.PrescriptionNumber }

// AuditFields implements Auditable.
func (p Product) AuditFields() []Field {
	return []Field{
		{"name", p.Name}, {"generic_name", p.GenericName}, {"sku", p.SKU}, {"barcode", p.Barcode},
		{"category", p.Category}, {"unit", p.Unit}, {"unit_price", money(p.UnitPrice)},
		{"cost_price", money(p.CostPrice)}, {"tax_rate", p.TaxRate.String()},
		{"requires_prescription", p.RequiresPrescription}, {"reorder_level", p.ReorderLevel},
		{"status", string(p.Status)},
	}
}

// AuditName implements Auditable.
func (p Product) AuditName() string { return p.Name }

// AuditFields implements Auditable.
func (s Supplier) AuditFields() []Field {
	return []Field{
		{"name", s.Name}, {"code", s.Code}, {"contact_name", s.ContactName}, {"phone", s.Phone},
		{"email", s.Email}, {"address", s.Address}, {"active", s.Active},
	}
}

// AuditName implements Auditable.
func (s Supplier) AuditName() string { return s.Name }

// AuditFields implements Auditable.
func (i InventoryItem) AuditFields() []Field {
	return []Field{
		{"product_id", i.ProductID}, {"facility_id", i.FacilityID},
		{"quantity_on_hand", i.QuantityOnHand}, {"quantity_reserved", i.QuantityReserved},
		{"quantity_available", i.QuantityAvailable}, {"reorder_level", i.ReorderLevel},
		{"location", i.Location},
	}
}

// AuditName implements Auditable.
func (i InventoryItem) AuditName() string { return i.ProductID }

// AuditFields implements Auditable.
func (b InventoryBatch) AuditFields() []Field {
	return []Field{
		{"batch_number", b.BatchNumber}, {"product_id", b.ProductID},
		{"expiry_date", timeValue(b.ExpiryDate)}, {"quantity", b.Quantity},
		{"cost_price", money(b.CostPrice)},
	}
}

// AuditName implements Auditable.
func (b InventoryBatch) AuditName() string { return b.BatchNumber }

// AuditFields implements Auditable.
func (p PurchaseOrder) AuditFields() []Field {
	return []Field{
		{"order_number", p.OrderNumber}, {"supplier_id", p.SupplierID}, {"status", string(p.Status)},
		{"item_count", len(p.Items)}, {"total_amount", money(p.TotalAmount)},
	}
}

// AuditName implements Auditable.
func (p PurchaseOrder) AuditName() string { return p.OrderNumber }

// AuditFields implements Auditable.
func (s Sale) AuditFields() []Field {
	return []Field{
		{"sale_number", s.SaleNumber}, {"customer_id", s.CustomerID}, {"item_count", len(s.Items)},
		{"total_amount", money(s.TotalAmount)}, {"amount_paid", money(s.AmountPaid)},
		{"amount_due", money(s.AmountDue)}, {"payment_status", string(s.PaymentStatus)},
		{"status", string(s.Status)}, {"void_reason", s.VoidReason},
	}
}

// AuditName implements Auditable.
func (s Sale) AuditName() string { return s.SaleNumber }

// AuditFields implements Auditable.
func (h HospitalInvoice) AuditFields() []Field {
	return []Field{
		{"invoice_number", h.InvoiceNumber}, {"patient_id", h.PatientID}, {"item_count", len(h.Items)},
		{"total_amount", money(h.TotalAmount)}, {"amount_paid", money(h.AmountPaid)},
		{"payment_status", string(h.PaymentStatus)}, {"status", string(h.Status)},
	}
}

// AuditName implements Auditable.
func (h HospitalInvoice) AuditName() string { return h.InvoiceNumber }
