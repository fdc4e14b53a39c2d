package memory

import (
	"fmt"
	"time"

	"clinicore/pkg/domain"
)

// transaction represents a mutation set applied to a private copy of the
// store state.
type transaction struct {
	transactionView
	state   memoryState
	changes []Change
	now     time.Time
	origin  domain.Origin
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Now returns the timestamp shared by every write in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// SetOrigin tags subsequent changes.
func (tx *transaction) SetOrigin(origin domain.Origin) {
	if origin == "" {
		origin = domain.OriginLocal
	}
	tx.origin = origin
}

// NextSequence increments and returns the named counter.
func (tx *transaction) NextSequence(name string) int64 {
	tx.state.sequences[name]++
	return tx.state.sequences[name]
}

// SetSetting stores a dataset-level setting; an empty value removes it.
func (tx *transaction) SetSetting(key, value string) {
	if value == "" {
		delete(tx.state.settings, key)
		return
	}
	tx.state.settings[key] = value
}

func normalize(v any) {
	if n, ok := v.(normalizer); ok {
		n.Normalize()
	}
}

func createRow[T entity[T], P entityPtr[T]](tx *transaction, kind domain.EntityType, t *table[T], row T) (T, error) {
	var zero T
	base := P(&row).BaseRef()
	if base.ID == "" {
		base.ID = domain.NewID()
	}
	if t.has(base.ID) {
		return zero, fmt.Errorf("%s %q: %w", kind, base.ID, domain.ErrAlreadyExists)
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = tx.now
	}
	if base.UpdatedAt.IsZero() {
		base.UpdatedAt = base.CreatedAt
	}
	normalize(P(&row))
	t.put(row)
	tx.recordChange(Change{Entity: kind, Action: domain.ActionCreate, EntityID: base.ID, Origin: tx.origin, After: row.Clone()})
	return row.Clone(), nil
}

// updateRow applies mutator to a copy of the row. Identity fields are forced
// back afterwards; local writes stamp UpdatedAt while remote merges and
// system bookkeeping keep the existing timestamp.
func updateRow[T entity[T], P entityPtr[T]](tx *transaction, kind domain.EntityType, t *table[T], id string, mutator func(*T) error) (T, error) {
	var zero T
	current, ok := t.get(id)
	if !ok {
		return zero, domain.NotFoundError{Entity: kind, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return zero, err
	}
	base, prior := P(&current).BaseRef(), P(&before).BaseRef()
	base.ID = prior.ID
	base.CreatedAt = prior.CreatedAt
	if tx.origin.Local() || base.UpdatedAt.IsZero() {
		base.UpdatedAt = tx.now
	}
	normalize(P(&current))
	t.put(current)
	tx.recordChange(Change{Entity: kind, Action: domain.ActionUpdate, EntityID: id, Origin: tx.origin, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

func deleteRow[T entity[T]](tx *transaction, kind domain.EntityType, t *table[T], id string) error {
	current, ok := t.get(id)
	if !ok {
		return domain.NotFoundError{Entity: kind, ID: id}
	}
	t.remove(id)
	tx.recordChange(Change{Entity: kind, Action: domain.ActionDelete, EntityID: id, Origin: tx.origin, Before: current})
	return nil
}

// requireLocal enforces a reference only for local writes; rows merged from
// the remote authority may reference records not yet pulled.
func (tx *transaction) requireLocal(kind domain.EntityType, id string, exists func(string) bool) error {
	if tx.origin == domain.OriginRemote || exists(id) {
		return nil
	}
	return domain.NotFoundError{Entity: kind, ID: id}
}

func fillLineID(id *string) {
	if *id == "" {
		*id = domain.NewID()
	}
}

// CreateOrganization stores a new organization.
func (tx *transaction) CreateOrganization(o Organization) (Organization, error) {
	return createRow(tx, domain.EntityOrganization, tx.state.organizations, o)
}

// UpdateOrganization mutates an organization using the provided mutator function.
func (tx *transaction) UpdateOrganization(id string, mutator func(*Organization) error) (Organization, error) {
	return updateRow(tx, domain.EntityOrganization, tx.state.organizations, id, mutator)
}

// DeleteOrganization removes an organization.
func (tx *transaction) DeleteOrganization(id string) error {
	return deleteRow(tx, domain.EntityOrganization, tx.state.organizations, id)
}

// CreateLicense stores a new license.
func (tx *transaction) CreateLicense(l License) (License, error) {
	if l.Status == "" {
		l.Status = domain.LicenseActive
	}
	if l.IssuedAt.IsZero() {
		l.IssuedAt = tx.now
	}
	return createRow(tx, domain.EntityLicense, tx.state.licenses, l)
}

// UpdateLicense mutates a license.
func (tx *transaction) UpdateLicense(id string, mutator func(*License) error) (License, error) {
	return updateRow(tx, domain.EntityLicense, tx.state.licenses, id, mutator)
}

// DeleteLicense removes a license.
func (tx *transaction) DeleteLicense(id string) error {
	return deleteRow(tx, domain.EntityLicense, tx.state.licenses, id)
}

// CreateUser stores a new user. Email addresses are unique, ignoring case.
func (tx *transaction) CreateUser(u User) (User, error) {
	if existing, ok := tx.FindUserByEmail(u.Email); ok {
		return User{}, fmt.Errorf("user email %q used by %s: %w", u.Email, existing.ID, domain.ErrAlreadyExists)
	}
	return createRow(tx, domain.EntityUser, tx.state.users, u)
}

// UpdateUser mutates a user.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	return updateRow(tx, domain.EntityUser, tx.state.users, id, func(u *User) error {
		if err := mutator(u); err != nil {
			return err
		}
		if other, ok := tx.FindUserByEmail(u.Email); ok && other.ID != id {
			return fmt.Errorf("user email %q used by %s: %w", u.Email, other.ID, domain.ErrAlreadyExists)
		}
		return nil
	})
}

// DeleteUser removes a user.
func (tx *transaction) DeleteUser(id string) error {
	return deleteRow(tx, domain.EntityUser, tx.state.users, id)
}

// CreatePatient stores a new patient, issuing the next MRN when none is given.
func (tx *transaction) CreatePatient(p Patient) (Patient, error) {
	if p.MRN == "" {
		p.MRN = domain.SequenceNumber(domain.PrefixPatient, tx.NextSequence(seqPatient))
	}
	if p.Status == "" {
		p.Status = domain.PatientActive
	}
	return createRow(tx, domain.EntityPatient, tx.state.patients, p)
}

// UpdatePatient mutates a patient.
func (tx *transaction) UpdatePatient(id string, mutator func(*Patient) error) (Patient, error) {
	return updateRow(tx, domain.EntityPatient, tx.state.patients, id, mutator)
}

// DeletePatient removes a patient together with the patient's medical
// records, encounters and prescriptions.
func (tx *transaction) DeletePatient(id string) error {
	if !tx.state.patients.has(id) {
		return domain.NotFoundError{Entity: domain.EntityPatient, ID: id}
	}
	for _, rid := range tx.state.medicalRecords.ids(func(m MedicalRecord) bool { return m.PatientID == id }) {
		if err := tx.DeleteMedicalRecord(rid); err != nil {
			return err
		}
	}
	for _, eid := range tx.state.encounters.ids(func(e Encounter) bool { return e.PatientID == id }) {
		if err := tx.DeleteEncounter(eid); err != nil {
			return err
		}
	}
	for _, pid := range tx.state.prescriptions.ids(func(p Prescription) bool { return p.PatientID == id }) {
		if err := tx.DeletePrescription(pid); err != nil {
			return err
		}
	}
	return deleteRow(tx, domain.EntityPatient, tx.state.patients, id)
}

// CreateMedicalRecord stores a clinical record for an existing patient.
func (tx *transaction) CreateMedicalRecord(m MedicalRecord) (MedicalRecord, error) {
	if err := tx.requireLocal(domain.EntityPatient, m.PatientID, tx.state.patients.has); err != nil {
		return MedicalRecord{}, err
	}
	return createRow(tx, domain.EntityMedicalRecord, tx.state.medicalRecords, m)
}

// UpdateMedicalRecord mutates a medical record.
func (tx *transaction) UpdateMedicalRecord(id string, mutator func(*MedicalRecord) error) (MedicalRecord, error) {
	return updateRow(tx, domain.EntityMedicalRecord, tx.state.medicalRecords, id, mutator)
}

// DeleteMedicalRecord removes a medical record.
func (tx *transaction) DeleteMedicalRecord(id string) error {
	return deleteRow(tx, domain.EntityMedicalRecord, tx.state.medicalRecords, id)
}

// CreateEncounter stores a visit for an existing patient.
func (tx *transaction) CreateEncounter(e Encounter) (Encounter, error) {
	if err := tx.requireLocal(domain.EntityPatient, e.PatientID, tx.state.patients.has); err != nil {
		return Encounter{}, err
	}
	if e.EncounterNumber == "" {
		e.EncounterNumber = domain.SequenceNumber(domain.PrefixEncounter, tx.NextSequence(seqEncounter))
	}
	if e.Status == "" {
		e.Status = domain.EncounterScheduled
	}
	return createRow(tx, domain.EntityEncounter, tx.state.encounters, e)
}

// UpdateEncounter mutates an encounter.
func (tx *transaction) UpdateEncounter(id string, mutator func(*Encounter) error) (Encounter, error) {
	return updateRow(tx, domain.EntityEncounter, tx.state.encounters, id, mutator)
}

// DeleteEncounter removes an encounter.
func (tx *transaction) DeleteEncounter(id string) error {
	return deleteRow(tx, domain.EntityEncounter, tx.state.encounters, id)
}

// CreatePrescription stores a prescription for an existing patient.
func (tx *transaction) CreatePrescription(p Prescription) (Prescription, error) {
	if err := tx.requireLocal(domain.EntityPatient, p.PatientID, tx.state.patients.has); err != nil {
		return Prescription{}, err
	}
	if p.PrescriptionNumber == "" {
		p.PrescriptionNumber = domain.SequenceNumber(domain.PrefixPrescription, tx.NextSequence(seqPrescription))
	}
	if p.Status == "" {
		p.Status = domain.PrescriptionActive
	}
	for i := range p.Items {
		fillLineID(&p.Items[i].ID)
	}
	return createRow(tx, domain.EntityPrescription, tx.state.prescriptions, p)
}

// UpdatePrescription mutates a prescription.
func (tx *transaction) UpdatePrescription(id string, mutator func(*Prescription) error) (Prescription, error) {
	return updateRow(tx, domain.EntityPrescription, tx.state.prescriptions, id, func(p *Prescription) error {
		if err := mutator(p); err != nil {
			return err
		}
		for i := range p.Items {
			fillLineID(&p.Items[i].ID)
		}
		return nil
	})
}

// DeletePrescription removes a prescription and its items.
func (tx *transaction) DeletePrescription(id string) error {
	return deleteRow(tx, domain.EntityPrescription, tx.state.prescriptions, id)
}

// CreateProduct stores a catalogue product.
func (tx *transaction) CreateProduct(p Product) (Product, error) {
	if p.Status == "" {
		p.Status = domain.ProductActive
	}
	return createRow(tx, domain.EntityProduct, tx.state.products, p)
}

// UpdateProduct mutates a product. Historical sale lines keep their snapshot.
func (tx *transaction) UpdateProduct(id string, mutator func(*Product) error) (Product, error) {
	return updateRow(tx, domain.EntityProduct, tx.state.products, id, mutator)
}

// DeleteProduct removes a product that no stock position references.
func (tx *transaction) DeleteProduct(id string) error {
	if ids := tx.state.inventory.ids(func(i InventoryItem) bool { return i.ProductID == id }); len(ids) > 0 {
		return fmt.Errorf("product %q still referenced by inventory item %q", id, ids[0])
	}
	return deleteRow(tx, domain.EntityProduct, tx.state.products, id)
}

// CreateSupplier stores a supplier.
func (tx *transaction) CreateSupplier(s Supplier) (Supplier, error) {
	return createRow(tx, domain.EntitySupplier, tx.state.suppliers, s)
}

// UpdateSupplier mutates a supplier.
func (tx *transaction) UpdateSupplier(id string, mutator func(*Supplier) error) (Supplier, error) {
	return updateRow(tx, domain.EntitySupplier, tx.state.suppliers, id, mutator)
}

// DeleteSupplier removes a supplier.
func (tx *transaction) DeleteSupplier(id string) error {
	return deleteRow(tx, domain.EntitySupplier, tx.state.suppliers, id)
}

// CreateInventoryItem stores the stock position of a product at a facility.
// At most one position exists per organization, facility and product.
func (tx *transaction) CreateInventoryItem(i InventoryItem) (InventoryItem, error) {
	if err := tx.requireLocal(domain.EntityProduct, i.ProductID, tx.state.products.has); err != nil {
		return InventoryItem{}, err
	}
	if existing, ok := tx.state.inventory.find(func(o InventoryItem) bool {
		return o.OrganizationID == i.OrganizationID && o.FacilityID == i.FacilityID && o.ProductID == i.ProductID
	}); ok {
		return InventoryItem{}, fmt.Errorf("inventory for product %q at facility %q is %s: %w", i.ProductID, i.FacilityID, existing.ID, domain.ErrAlreadyExists)
	}
	return createRow(tx, domain.EntityInventoryItem, tx.state.inventory, i)
}

// UpdateInventoryItem mutates a stock position; QuantityAvailable is re-derived.
func (tx *transaction) UpdateInventoryItem(id string, mutator func(*InventoryItem) error) (InventoryItem, error) {
	return updateRow(tx, domain.EntityInventoryItem, tx.state.inventory, id, mutator)
}

// DeleteInventoryItem removes a stock position together with its batches.
// Stock movements stay in the ledger.
func (tx *transaction) DeleteInventoryItem(id string) error {
	if !tx.state.inventory.has(id) {
		return domain.NotFoundError{Entity: domain.EntityInventoryItem, ID: id}
	}
	for _, bid := range tx.state.batches.ids(func(b InventoryBatch) bool { return b.InventoryItemID == id }) {
		if err := tx.DeleteInventoryBatch(bid); err != nil {
			return err
		}
	}
	return deleteRow(tx, domain.EntityInventoryItem, tx.state.inventory, id)
}

// CreateInventoryBatch stores a received lot. Product, organization and
// facility are inherited from the stock position.
func (tx *transaction) CreateInventoryBatch(b InventoryBatch) (InventoryBatch, error) {
	item, ok := tx.state.inventory.get(b.InventoryItemID)
	if !ok {
		return InventoryBatch{}, domain.NotFoundError{Entity: domain.EntityInventoryItem, ID: b.InventoryItemID}
	}
	b.ProductID = item.ProductID
	b.OrganizationID = item.OrganizationID
	b.FacilityID = item.FacilityID
	if b.InitialQuantity == 0 {
		b.InitialQuantity = b.Quantity
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = tx.now
	}
	return createRow(tx, domain.EntityInventoryBatch, tx.state.batches, b)
}

// UpdateInventoryBatch mutates a batch.
func (tx *transaction) UpdateInventoryBatch(id string, mutator func(*InventoryBatch) error) (InventoryBatch, error) {
	return updateRow(tx, domain.EntityInventoryBatch, tx.state.batches, id, mutator)
}

// DeleteInventoryBatch removes a batch.
func (tx *transaction) DeleteInventoryBatch(id string) error {
	return deleteRow(tx, domain.EntityInventoryBatch, tx.state.batches, id)
}

// CreatePurchaseOrder stores a purchase order, issuing the next PO number
// when none is given.
func (tx *transaction) CreatePurchaseOrder(p PurchaseOrder) (PurchaseOrder, error) {
	if p.OrderNumber == "" {
		p.OrderNumber = domain.SequenceNumber(domain.PrefixPurchaseOrder, tx.NextSequence(seqPurchaseOrder))
	}
	if p.Status == "" {
		p.Status = domain.PurchaseOrderDraft
	}
	for i := range p.Items {
		fillLineID(&p.Items[i].ID)
	}
	return createRow(tx, domain.EntityPurchaseOrder, tx.state.purchaseOrders, p)
}

// UpdatePurchaseOrder mutates a purchase order; totals are re-derived.
func (tx *transaction) UpdatePurchaseOrder(id string, mutator func(*PurchaseOrder) error) (PurchaseOrder, error) {
	return updateRow(tx, domain.EntityPurchaseOrder, tx.state.purchaseOrders, id, mutator)
}

// DeletePurchaseOrder removes a purchase order.
func (tx *transaction) DeletePurchaseOrder(id string) error {
	return deleteRow(tx, domain.EntityPurchaseOrder, tx.state.purchaseOrders, id)
}

func (tx *transaction) saleNumberTaken(number string) bool {
	_, ok := tx.state.sales.find(func(s Sale) bool { return s.SaleNumber == number })
	return ok
}

func (tx *transaction) invoiceNumberTaken(number string) bool {
	_, ok := tx.state.invoices.find(func(h HospitalInvoice) bool { return h.InvoiceNumber == number })
	return ok
}

// CreateSale stores a sale, drawing a free sale number when none is given.
func (tx *transaction) CreateSale(s Sale) (Sale, error) {
	if s.SaleNumber == "" {
		number, err := domain.UniqueDocumentNumber(domain.PrefixSale, tx.now, tx.saleNumberTaken)
		if err != nil {
			return Sale{}, err
		}
		s.SaleNumber = number
	}
	if s.Status == "" {
		s.Status = domain.SaleCompleted
	}
	for i := range s.Items {
		fillLineID(&s.Items[i].ID)
	}
	for i := range s.Payments {
		fillLineID(&s.Payments[i].ID)
	}
	return createRow(tx, domain.EntitySale, tx.state.sales, s)
}

// UpdateSale mutates a sale; settlement fields are re-derived.
func (tx *transaction) UpdateSale(id string, mutator func(*Sale) error) (Sale, error) {
	return updateRow(tx, domain.EntitySale, tx.state.sales, id, mutator)
}

// DeleteSale removes a sale. Its stock movements stay in the ledger.
func (tx *transaction) DeleteSale(id string) error {
	return deleteRow(tx, domain.EntitySale, tx.state.sales, id)
}

// CreateHospitalInvoice stores an invoice, drawing a free invoice number when
// none is given.
func (tx *transaction) CreateHospitalInvoice(h HospitalInvoice) (HospitalInvoice, error) {
	if err := tx.requireLocal(domain.EntityPatient, h.PatientID, tx.state.patients.has); err != nil {
		return HospitalInvoice{}, err
	}
	if h.InvoiceNumber == "" {
		number, err := domain.UniqueDocumentNumber(domain.PrefixInvoice, tx.now, tx.invoiceNumberTaken)
		if err != nil {
			return HospitalInvoice{}, err
		}
		h.InvoiceNumber = number
	}
	if h.Status == "" {
		h.Status = domain.InvoiceDraft
	}
	for i := range h.Items {
		fillLineID(&h.Items[i].ID)
	}
	for i := range h.Payments {
		fillLineID(&h.Payments[i].ID)
	}
	return createRow(tx, domain.EntityHospitalInvoice, tx.state.invoices, h)
}

// UpdateHospitalInvoice mutates an invoice; totals and settlement are re-derived.
func (tx *transaction) UpdateHospitalInvoice(id string, mutator func(*HospitalInvoice) error) (HospitalInvoice, error) {
	return updateRow(tx, domain.EntityHospitalInvoice, tx.state.invoices, id, func(h *HospitalInvoice) error {
		if err := mutator(h); err != nil {
			return err
		}
		for i := range h.Items {
			fillLineID(&h.Items[i].ID)
		}
		for i := range h.Payments {
			fillLineID(&h.Payments[i].ID)
		}
		return nil
	})
}

// DeleteHospitalInvoice removes an invoice.
func (tx *transaction) DeleteHospitalInvoice(id string) error {
	return deleteRow(tx, domain.EntityHospitalInvoice, tx.state.invoices, id)
}

// AppendStockMovement adds a ledger line. Movements are never updated.
func (tx *transaction) AppendStockMovement(m StockMovement) (StockMovement, error) {
	if m.Quantity <= 0 {
		return StockMovement{}, fmt.Errorf("stock movement quantity must be positive, got %d", m.Quantity)
	}
	if m.Direction != domain.DirectionIn && m.Direction != domain.DirectionOut {
		return StockMovement{}, fmt.Errorf("stock movement direction %q is invalid", m.Direction)
	}
	if m.ID == "" {
		m.ID = domain.NewID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = tx.now
	}
	m.UpdatedAt = m.CreatedAt
	tx.state.movements = append(tx.state.movements, m.Clone())
	tx.recordChange(Change{Entity: domain.EntityStockMovement, Action: domain.ActionCreate, EntityID: m.ID, Origin: tx.origin, After: m.Clone()})
	return m, nil
}

// AppendAuditEntry adds an entry to the append-only audit log.
func (tx *transaction) AppendAuditEntry(e AuditEntry) (AuditEntry, error) {
	if e.Action == "" {
		return AuditEntry{}, fmt.Errorf("audit entry requires an action")
	}
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.now
	}
	e.Seq = tx.NextSequence(seqAudit)
	tx.state.audit = append(tx.state.audit, e.Clone())
	return e.Clone(), nil
}

// AppendChangeRecord adds a pending record to the outbound change log.
func (tx *transaction) AppendChangeRecord(c ChangeRecord) (ChangeRecord, error) {
	if c.EntityKind == "" || c.EntityID == "" {
		return ChangeRecord{}, fmt.Errorf("change record requires entity kind and id")
	}
	if c.ID == "" {
		c.ID = domain.NewID()
	}
	if tx.state.changeLog.has(c.ID) {
		return ChangeRecord{}, fmt.Errorf("change record %q: %w", c.ID, domain.ErrAlreadyExists)
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = tx.now
	}
	c.Seq = tx.NextSequence(seqChange)
	c.Synced = false
	c.SyncedAt = nil
	c.Attempts = 0
	c.LastError = ""
	tx.state.changeLog.put(c)
	return c.Clone(), nil
}

// UpdateChangeRecord mutates sync bookkeeping. The record's identity and
// payload are immutable, Synced never reverts and Attempts never decreases.
func (tx *transaction) UpdateChangeRecord(id string, mutator func(*ChangeRecord) error) (ChangeRecord, error) {
	current, ok := tx.state.changeLog.get(id)
	if !ok {
		return ChangeRecord{}, domain.NotFoundError{Entity: domain.EntityChangeRecord, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return ChangeRecord{}, err
	}
	if before.Synced && !current.Synced {
		return ChangeRecord{}, fmt.Errorf("change record %q: synced cannot revert: %w", id, domain.ErrInvalidState)
	}
	if current.Attempts < before.Attempts {
		return ChangeRecord{}, fmt.Errorf("change record %q: attempts cannot decrease: %w", id, domain.ErrInvalidState)
	}
	current.ID = before.ID
	current.Seq = before.Seq
	current.EntityKind = before.EntityKind
	current.EntityID = before.EntityID
	current.Operation = before.Operation
	current.Payload = before.Payload
	current.Timestamp = before.Timestamp
	tx.state.changeLog.put(current)
	return current.Clone(), nil
}

// DeleteChangeRecord removes a synced record.
func (tx *transaction) DeleteChangeRecord(id string) error {
	current, ok := tx.state.changeLog.get(id)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityChangeRecord, ID: id}
	}
	if !current.Synced {
		return fmt.Errorf("change record %q is pending: %w", id, domain.ErrInvalidState)
	}
	tx.state.changeLog.remove(id)
	return nil
}
