package memory

import (
	"strings"

	"clinicore/pkg/domain"
)

// transactionView exposes a read-only snapshot of the transactional state to
// rules and callers of Store.View.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// FindOrganization retrieves an organization by ID.
func (v transactionView) FindOrganization(id string) (Organization, bool) {
	return v.state.organizations.get(id)
}

// FindLicense retrieves a license by ID.
func (v transactionView) FindLicense(id string) (License, bool) {
	return v.state.licenses.get(id)
}

// FindUser retrieves a user by ID.
func (v transactionView) FindUser(id string) (User, bool) {
	return v.state.users.get(id)
}

// FindUserByEmail matches email case-insensitively.
func (v transactionView) FindUserByEmail(email string) (User, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, false
	}
	return v.state.users.find(func(u User) bool { return strings.EqualFold(u.Email, email) })
}

// FindPatient retrieves a patient by ID.
func (v transactionView) FindPatient(id string) (Patient, bool) {
	return v.state.patients.get(id)
}

// FindMedicalRecord retrieves a medical record by ID.
func (v transactionView) FindMedicalRecord(id string) (MedicalRecord, bool) {
	return v.state.medicalRecords.get(id)
}

// FindEncounter retrieves an encounter by ID.
func (v transactionView) FindEncounter(id string) (Encounter, bool) {
	return v.state.encounters.get(id)
}

// FindPrescription retrieves a prescription by ID.
func (v transactionView) FindPrescription(id string) (Prescription, bool) {
	return v.state.prescriptions.get(id)
}

// FindProduct retrieves a product by ID.
func (v transactionView) FindProduct(id string) (Product, bool) {
	return v.state.products.get(id)
}

// FindSupplier retrieves a supplier by ID.
func (v transactionView) FindSupplier(id string) (Supplier, bool) {
	return v.state.suppliers.get(id)
}

// FindInventoryItem retrieves an inventory item by ID.
func (v transactionView) FindInventoryItem(id string) (InventoryItem, bool) {
	return v.state.inventory.get(id)
}

// FindInventoryItemFor resolves the stock position of a product at a facility.
// An empty facility matches the first position for the product in the organization.
func (v transactionView) FindInventoryItemFor(organizationID, facilityID, productID string) (InventoryItem, bool) {
	return v.state.inventory.find(func(i InventoryItem) bool {
		return i.ProductID == productID &&
			(organizationID == "" || i.OrganizationID == organizationID) &&
			(facilityID == "" || i.FacilityID == facilityID)
	})
}

// FindInventoryBatch retrieves a batch by ID.
func (v transactionView) FindInventoryBatch(id string) (InventoryBatch, bool) {
	return v.state.batches.get(id)
}

// FindPurchaseOrder retrieves a purchase order by ID.
func (v transactionView) FindPurchaseOrder(id string) (PurchaseOrder, bool) {
	return v.state.purchaseOrders.get(id)
}

// FindSale retrieves a sale by ID.
func (v transactionView) FindSale(id string) (Sale, bool) {
	return v.state.sales.get(id)
}

// FindHospitalInvoice retrieves an invoice by ID.
func (v transactionView) FindHospitalInvoice(id string) (HospitalInvoice, bool) {
	return v.state.invoices.get(id)
}

// FindChangeRecord retrieves a change record by ID.
func (v transactionView) FindChangeRecord(id string) (ChangeRecord, bool) {
	return v.state.changeLog.get(id)
}

// ListOrganizations returns organizations matching filter.
func (v transactionView) ListOrganizations(filter domain.ListFilter) []Organization {
	return organizationFacets.apply(v.state.organizations.all(), filter)
}

// ListLicenses returns licenses matching filter.
func (v transactionView) ListLicenses(filter domain.ListFilter) []License {
	return licenseFacets.apply(v.state.licenses.all(), filter)
}

// ListUsers returns users matching filter. Status matches active or inactive.
func (v transactionView) ListUsers(filter domain.ListFilter) []User {
	return userFacets.apply(v.state.users.all(), filter)
}

// ListPatients returns patients matching filter.
func (v transactionView) ListPatients(filter domain.ListFilter) []Patient {
	return patientFacets.apply(v.state.patients.all(), filter)
}

// ListMedicalRecords returns medical records matching filter. Status matches the record type.
func (v transactionView) ListMedicalRecords(filter domain.ListFilter) []MedicalRecord {
	return medicalRecordFacets.apply(v.state.medicalRecords.all(), filter)
}

// ListEncounters returns encounters matching filter.
func (v transactionView) ListEncounters(filter domain.ListFilter) []Encounter {
	return encounterFacets.apply(v.state.encounters.all(), filter)
}

// ListPrescriptions returns prescriptions matching filter.
func (v transactionView) ListPrescriptions(filter domain.ListFilter) []Prescription {
	return prescriptionFacets.apply(v.state.prescriptions.all(), filter)
}

// ListProducts returns products matching filter.
func (v transactionView) ListProducts(filter domain.ListFilter) []Product {
	return productFacets.apply(v.state.products.all(), filter)
}

// ListSuppliers returns suppliers matching filter.
func (v transactionView) ListSuppliers(filter domain.ListFilter) []Supplier {
	return supplierFacets.apply(v.state.suppliers.all(), filter)
}

// ListInventoryItems returns stock positions matching filter.
func (v transactionView) ListInventoryItems(filter domain.ListFilter) []InventoryItem {
	return inventoryFacets.apply(v.state.inventory.all(), filter)
}

// ListInventoryBatches returns batches matching filter.
func (v transactionView) ListInventoryBatches(filter domain.ListFilter) []InventoryBatch {
	return batchFacets.apply(v.state.batches.all(), filter)
}

// ListPurchaseOrders returns purchase orders matching filter.
func (v transactionView) ListPurchaseOrders(filter domain.ListFilter) []PurchaseOrder {
	return purchaseOrderFacets.apply(v.state.purchaseOrders.all(), filter)
}

// ListSales returns sales matching filter, newest first.
func (v transactionView) ListSales(filter domain.ListFilter) []Sale {
	return saleFacets.apply(v.state.sales.all(), filter)
}

// ListHospitalInvoices returns invoices matching filter.
func (v transactionView) ListHospitalInvoices(filter domain.ListFilter) []HospitalInvoice {
	return invoiceFacets.apply(v.state.invoices.all(), filter)
}

// ListStockMovements returns ledger lines matching filter, newest first.
// Status matches the movement type.
func (v transactionView) ListStockMovements(filter domain.ListFilter) []StockMovement {
	return movementFacets.apply(cloneSlice(v.state.movements), filter)
}

// ListAuditEntries returns the audit log in append order.
func (v transactionView) ListAuditEntries() []AuditEntry {
	return cloneSlice(v.state.audit)
}

// AuditEntryAt returns the entry at index i of the append-ordered log.
func (v transactionView) AuditEntryAt(i int) (AuditEntry, bool) {
	if i < 0 || i >= len(v.state.audit) {
		return AuditEntry{}, false
	}
	return v.state.audit[i].Clone(), true
}

// ListChangeRecords returns the change log in log order.
func (v transactionView) ListChangeRecords() []ChangeRecord {
	return v.state.changeLog.all()
}

// Setting reads a dataset-level setting.
func (v transactionView) Setting(key string) (string, bool) {
	value, ok := v.state.settings[key]
	return value, ok
}
