package memory

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"clinicore/pkg/domain"
)

// facets describes how a row kind answers each ListFilter criterion. A nil
// accessor means the kind has no such attribute and the criterion is ignored.
type facets[T entity[T]] struct {
	organization func(T) string
	facility     func(T) string
	patient      func(T) string
	product      func(T) string
	status       func(T) string
	role         func(T) string
	text         func(T) []string
	newestFirst  bool
}

func matchField[T any](get func(T) string, row T, want string) bool {
	if want == "" || get == nil {
		return true
	}
	return get(row) == want
}

func (f facets[T]) apply(rows []T, filter domain.ListFilter) []T {
	folder := cases.Fold()
	needle := folder.String(strings.TrimSpace(filter.Search))

	out := rows[:0]
	for _, row := range rows {
		if !matchField(f.organization, row, filter.OrganizationID) ||
			!matchField(f.facility, row, filter.FacilityID) ||
			!matchField(f.patient, row, filter.PatientID) ||
			!matchField(f.product, row, filter.ProductID) ||
			!matchField(f.status, row, filter.Status) ||
			!matchField(f.role, row, filter.Role) {
			continue
		}
		if !inRange(row.Created(), filter.From, filter.To) {
			continue
		}
		if needle != "" && !f.search(folder, row, needle) {
			continue
		}
		out = append(out, row)
	}
	if f.newestFirst {
		slices.Reverse(out)
		slices.SortStableFunc(out, func(a, b T) int { return b.Created().Compare(a.Created()) })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (f facets[T]) search(folder cases.Caser, row T, needle string) bool {
	if f.text == nil {
		return false
	}
	for _, field := range f.text(row) {
		if field != "" && strings.Contains(folder.String(field), needle) {
			return true
		}
	}
	return false
}

func inRange(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}

var (
	organizationFacets = facets[Organization]{
		text: func(o Organization) []string { return []string{o.Name, o.Code, o.Phone, o.Email} },
	}
	licenseFacets = facets[License]{
		organization: func(l License) string { return l.OrganizationID },
		status:       func(l License) string { return string(l.Status) },
		text:         func(l License) []string { return []string{l.Key, l.Plan} },
	}
	userFacets = facets[User]{
		organization: func(u User) string { return u.OrganizationID },
		facility:     func(u User) string { return u.FacilityID },
		status:       func(u User) string { return string(u.Status()) },
		role:         func(u User) string { return string(u.Role) },
		text:         func(u User) []string { return []string{u.Name, u.Email, u.Phone} },
	}
	patientFacets = facets[Patient]{
		organization: func(p Patient) string { return p.OrganizationID },
		status:       func(p Patient) string { return string(p.Status) },
		text: func(p Patient) []string {
			return []string{p.FullName(), p.MRN, p.Phone, p.Email}
		},
	}
	medicalRecordFacets = facets[MedicalRecord]{
		organization: func(m MedicalRecord) string { return m.OrganizationID },
		patient:      func(m MedicalRecord) string { return m.PatientID },
		status:       func(m MedicalRecord) string { return m.RecordType },
		text:         func(m MedicalRecord) []string { return []string{m.Title, m.RecordType} },
	}
	encounterFacets = facets[Encounter]{
		organization: func(e Encounter) string { return e.OrganizationID },
		facility:     func(e Encounter) string { return e.FacilityID },
		patient:      func(e Encounter) string { return e.PatientID },
		status:       func(e Encounter) string { return string(e.Status) },
		text: func(e Encounter) []string {
			return []string{e.EncounterNumber, e.ChiefComplaint, e.Diagnosis}
		},
	}
	prescriptionFacets = facets[Prescription]{
		organization: func(p Prescription) string { return p.OrganizationID },
		facility:     func(p Prescription) string { return p.FacilityID },
		patient:      func(p Prescription) string { return p.PatientID },
		status:       func(p Prescription) string { return string(p.Status) },
		text: func(p Prescription) []string {
			out := []string{p.PrescriptionNumber}
			for _, item := range p.Items {
				out = append(out, item.MedicationName)
			}
			return out
		},
	}
	productFacets = facets[Product]{
		organization: func(p Product) string { return p.OrganizationID },
		status:       func(p Product) string { return string(p.Status) },
		text: func(p Product) []string {
			return []string{p.Name, p.GenericName, p.SKU, p.Barcode, p.Category}
		},
	}
	supplierFacets = facets[Supplier]{
		organization: func(s Supplier) string { return s.OrganizationID },
		text: func(s Supplier) []string {
			return []string{s.Name, s.Code, s.ContactName, s.Phone, s.Email}
		},
	}
	inventoryFacets = facets[InventoryItem]{
		organization: func(i InventoryItem) string { return i.OrganizationID },
		facility:     func(i InventoryItem) string { return i.FacilityID },
		product:      func(i InventoryItem) string { return i.ProductID },
		text:         func(i InventoryItem) []string { return []string{i.Location} },
	}
	batchFacets = facets[InventoryBatch]{
		organization: func(b InventoryBatch) string { return b.OrganizationID },
		facility:     func(b InventoryBatch) string { return b.FacilityID },
		product:      func(b InventoryBatch) string { return b.ProductID },
		text:         func(b InventoryBatch) []string { return []string{b.BatchNumber} },
	}
	movementFacets = facets[StockMovement]{
		organization: func(m StockMovement) string { return m.OrganizationID },
		facility:     func(m StockMovement) string { return m.FacilityID },
		product:      func(m StockMovement) string { return m.ProductID },
		status:       func(m StockMovement) string { return string(m.Type) },
		text:         func(m StockMovement) []string { return []string{m.ReferenceID, m.Notes} },
		newestFirst:  true,
	}
	purchaseOrderFacets = facets[PurchaseOrder]{
		organization: func(p PurchaseOrder) string { return p.OrganizationID },
		facility:     func(p PurchaseOrder) string { return p.FacilityID },
		status:       func(p PurchaseOrder) string { return string(p.Status) },
		text:         func(p PurchaseOrder) []string { return []string{p.OrderNumber} },
	}
	saleFacets = facets[Sale]{
		organization: func(s Sale) string { return s.OrganizationID },
		facility:     func(s Sale) string { return s.FacilityID },
		patient:      func(s Sale) string { return s.CustomerID },
		status:       func(s Sale) string { return string(s.Status) },
		text:         func(s Sale) []string { return []string{s.SaleNumber, s.CustomerName} },
		newestFirst:  true,
	}
	invoiceFacets = facets[HospitalInvoice]{
		organization: func(h HospitalInvoice) string { return h.OrganizationID },
		facility:     func(h HospitalInvoice) string { return h.FacilityID },
		patient:      func(h HospitalInvoice) string { return h.PatientID },
		status:       func(h HospitalInvoice) string { return string(h.Status) },
		text:         func(h HospitalInvoice) []string { return []string{h.InvoiceNumber} },
	}
)
