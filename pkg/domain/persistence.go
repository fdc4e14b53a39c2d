package domain

import (
	"context"
	"time"
)

// ListFilter narrows List* queries. Zero values disable a criterion. From and
// To bound CreatedAt inclusively. Search is a case-insensitive substring match
// over the kind's indexed text fields (names, codes, contacts).
type ListFilter struct {
	OrganizationID string
	FacilityID     string
	PatientID      string
	ProductID      string
	Status         string
	Role           string
	From           *time.Time
	To             *time.Time
	Search         string
	Limit          int
}

// TransactionView provides read-only access to a consistent snapshot. Inside a
// transaction it reflects the transaction's own uncommitted mutations.
type TransactionView interface {
	FindOrganization(id string) (Organization, bool)
	FindLicense(id string) (License, bool)
	FindUser(id string) (User, bool)
	FindUserByEmail(email string) (User, bool)
	FindPatient(id string) (Patient, bool)
	FindMedicalRecord(id string) (MedicalRecord, bool)
	FindEncounter(id string) (Encounter, bool)
	FindPrescription(id string) (Prescription, bool)
	FindProduct(id string) (Product, bool)
	FindSupplier(id string) (Supplier, bool)
	FindInventoryItem(id string) (InventoryItem, bool)
	FindInventoryItemFor(organizationID, facilityID, productID string) (InventoryItem, bool)
	FindInventoryBatch(id string) (InventoryBatch, bool)
	FindPurchaseOrder(id string) (PurchaseOrder, bool)
	FindSale(id string) (Sale, bool)
	FindHospitalInvoice(id string) (HospitalInvoice, bool)
	FindChangeRecord(id string) (ChangeRecord, bool)

	ListOrganizations(ListFilter) []Organization
	ListLicenses(ListFilter) []License
	ListUsers(ListFilter) []User
	ListPatients(ListFilter) []Patient
	ListMedicalRecords(ListFilter) []MedicalRecord
	ListEncounters(ListFilter) []Encounter
	ListPrescriptions(ListFilter) []Prescription
	ListProducts(ListFilter) []Product
	ListSuppliers(ListFilter) []Supplier
	ListInventoryItems(ListFilter) []InventoryItem
	ListInventoryBatches(ListFilter) []InventoryBatch
	ListPurchaseOrders(ListFilter) []PurchaseOrder
	ListSales(ListFilter) []Sale
	ListHospitalInvoices(ListFilter) []HospitalInvoice
	ListStockMovements(ListFilter) []StockMovement

	// Audit entries are returned in append order; index i is stable forever.
	ListAuditEntries() []AuditEntry
	AuditEntryAt(index int) (AuditEntry, bool)
	// Change records are returned in log order.
	ListChangeRecords() []ChangeRecord

	Setting(key string) (string, bool)
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Update helpers return an error wrapping
// ErrNotFound for unknown ids and leave state unchanged.
type Transaction interface {
	TransactionView

	Now() time.Time
	// SetOrigin tags subsequent changes; see Origin.
	SetOrigin(Origin)
	NextSequence(name string) int64
	// SetSetting stores a dataset-level setting; an empty value removes it.
	SetSetting(key, value string)

	CreateOrganization(Organization) (Organization, error)
	UpdateOrganization(id string, mutator func(*Organization) error) (Organization, error)
	DeleteOrganization(id string) error
	CreateLicense(License) (License, error)
	UpdateLicense(id string, mutator func(*License) error) (License, error)
	DeleteLicense(id string) error
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error
	CreatePatient(Patient) (Patient, error)
	UpdatePatient(id string, mutator func(*Patient) error) (Patient, error)
	DeletePatient(id string) error
	CreateMedicalRecord(MedicalRecord) (MedicalRecord, error)
	UpdateMedicalRecord(id string, mutator func(*MedicalRecord) error) (MedicalRecord, error)
	DeleteMedicalRecord(id string) error
	CreateEncounter(Encounter) (Encounter, error)
	UpdateEncounter(id string, mutator func(*Encounter) error) (Encounter, error)
	DeleteEncounter(id string) error
	CreatePrescription(Prescription) (Prescription, error)
	UpdatePrescription(id string, mutator func(*Prescription) error) (Prescription, error)
	DeletePrescription(id string) error
	CreateProduct(Product) (Product, error)
	UpdateProduct(id string, mutator func(*Product) error) (Product, error)
	DeleteProduct(id string) error
	CreateSupplier(Supplier) (Supplier, error)
	UpdateSupplier(id string, mutator func(*Supplier) error) (Supplier, error)
	DeleteSupplier(id string) error
	CreateInventoryItem(InventoryItem) (InventoryItem, error)
	UpdateInventoryItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error)
	DeleteInventoryItem(id string) error
	CreateInventoryBatch(InventoryBatch) (InventoryBatch, error)
	UpdateInventoryBatch(id string, mutator func(*InventoryBatch) error) (InventoryBatch, error)
	DeleteInventoryBatch(id string) error
	CreatePurchaseOrder(PurchaseOrder) (PurchaseOrder, error)
	UpdatePurchaseOrder(id string, mutator func(*PurchaseOrder) error) (PurchaseOrder, error)
	DeletePurchaseOrder(id string) error
	CreateSale(Sale) (Sale, error)
	UpdateSale(id string, mutator func(*Sale) error) (Sale, error)
	DeleteSale(id string) error
	CreateHospitalInvoice(HospitalInvoice) (HospitalInvoice, error)
	UpdateHospitalInvoice(id string, mutator func(*HospitalInvoice) error) (HospitalInvoice, error)
	DeleteHospitalInvoice(id string) error

	AppendStockMovement(StockMovement) (StockMovement, error)
	AppendAuditEntry(AuditEntry) (AuditEntry, error)
	AppendChangeRecord(ChangeRecord) (ChangeRecord, error)
	UpdateChangeRecord(id string, mutator func(*ChangeRecord) error) (ChangeRecord, error)
	// DeleteChangeRecord removes a synced record during compaction. Pending
	// records cannot be deleted.
	DeleteChangeRecord(id string) error
}

// ChangeObserver is invoked inside RunInTransaction after the caller's
// function succeeded and before rules run, so anything it appends commits
// atomically with the observed changes.
type ChangeObserver interface {
	ObserveChanges(tx Transaction, changes []Change) error
}

// PersistentStore is the abstraction higher layers depend on. Durable
// backends wrap the in-memory implementation and snapshot after commits.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	NowFunc() func() time.Time
}
