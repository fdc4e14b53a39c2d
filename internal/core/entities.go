package core

import (
	"context"

	"clinicore/pkg/domain"
)

// CreateOrganization stores a new organization.
func (s *Service) CreateOrganization(ctx context.Context, sess *Session, organization domain.Organization) (domain.Organization, Result, error) {
	return createRecord(ctx, s, sess, organizationOps, organization)
}

// GetOrganization returns the organization with id.
func (s *Service) GetOrganization(ctx context.Context, id string) (domain.Organization, bool) {
	return getRecord(ctx, s, organizationOps, id)
}

// ListOrganizations returns organizations matching f.
func (s *Service) ListOrganizations(ctx context.Context, f ListFilter) ([]domain.Organization, error) {
	return listRecords(ctx, s, organizationOps, f)
}

// UpdateOrganization applies mutator; an unknown id yields (zero, false, nil).
func (s *Service) UpdateOrganization(ctx context.Context, sess *Session, id string, mutator func(*domain.Organization) error) (domain.Organization, bool, error) {
	return updateRecord(ctx, s, sess, organizationOps, id, mutator)
}

// DeleteOrganization removes the organization.
func (s *Service) DeleteOrganization(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, organizationOps, id)
}

// CreateLicense stores a new license.
func (s *Service) CreateLicense(ctx context.Context, sess *Session, lic domain.License) (domain.License, Result, error) {
	return createRecord(ctx, s, sess, licenseOps, lic)
}

// GetLicense returns the license with id.
func (s *Service) GetLicense(ctx context.Context, id string) (domain.License, bool) {
	return getRecord(ctx, s, licenseOps, id)
}

// ListLicenses returns licenses matching f.
func (s *Service) ListLicenses(ctx context.Context, f ListFilter) ([]domain.License, error) {
	return listRecords(ctx, s, licenseOps, f)
}

// UpdateLicense applies mutator to the license.
func (s *Service) UpdateLicense(ctx context.Context, sess *Session, id string, mutator func(*domain.License) error) (domain.License, bool, error) {
	return updateRecord(ctx, s, sess, licenseOps, id, mutator)
}

// DeleteLicense removes the license.
func (s *Service) DeleteLicense(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, licenseOps, id)
}

// GetUser returns the user with id.
func (s *Service) GetUser(ctx context.Context, id string) (domain.User, bool) {
	return getRecord(ctx, s, userOps, id)
}

// ListUsers returns users matching f.
func (s *Service) ListUsers(ctx context.Context, f ListFilter) ([]domain.User, error) {
	return listRecords(ctx, s, userOps, f)
}

// UpdateUser applies mutator to the user.
func (s *Service) UpdateUser(ctx context.Context, sess *Session, id string, mutator func(*domain.User) error) (domain.User, bool, error) {
	return updateRecord(ctx, s, sess, userOps, id, mutator)
}

// DeleteUser removes the user.
func (s *Service) DeleteUser(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, userOps, id)
}

// CreatePatient stores a new patient.
func (s *Service) CreatePatient(ctx context.Context, sess *Session, patient domain.Patient) (domain.Patient, Result, error) {
	return createRecord(ctx, s, sess, patientOps, patient)
}

// ListPatients returns patients matching f.
func (s *Service) ListPatients(ctx context.Context, f ListFilter) ([]domain.Patient, error) {
	return listRecords(ctx, s, patientOps, f)
}

// UpdatePatient applies mutator; an unknown id yields (zero, false, nil).
func (s *Service) UpdatePatient(ctx context.Context, sess *Session, id string, mutator func(*domain.Patient) error) (domain.Patient, bool, error) {
	return updateRecord(ctx, s, sess, patientOps, id, mutator)
}

// DeletePatient removes the patient with its records, encounters and
// prescriptions. It reports false for an unknown id.
func (s *Service) DeletePatient(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, patientOps, id)
}

// CreateMedicalRecord stores a new medical record.
func (s *Service) CreateMedicalRecord(ctx context.Context, sess *Session, medicalRecord domain.MedicalRecord) (domain.MedicalRecord, Result, error) {
	return createRecord(ctx, s, sess, medicalRecordOps, medicalRecord)
}

// GetMedicalRecord returns the medical record with id.
func (s *Service) GetMedicalRecord(ctx context.Context, id string) (domain.MedicalRecord, bool) {
	return getRecord(ctx, s, medicalRecordOps, id)
}

// ListMedicalRecords returns medical records matching f.
func (s *Service) ListMedicalRecords(ctx context.Context, f ListFilter) ([]domain.MedicalRecord, error) {
	return listRecords(ctx, s, medicalRecordOps, f)
}

// UpdateMedicalRecord applies mutator to the medical record.
func (s *Service) UpdateMedicalRecord(ctx context.Context, sess *Session, id string, mutator func(*domain.MedicalRecord) error) (domain.MedicalRecord, bool, error) {
	return updateRecord(ctx, s, sess, medicalRecordOps, id, mutator)
}

// DeleteMedicalRecord removes the medical record.
func (s *Service) DeleteMedicalRecord(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, medicalRecordOps, id)
}

// CreateEncounter stores a new encounter.
func (s *Service) CreateEncounter(ctx context.Context, sess *Session, encounter domain.Encounter) (domain.Encounter, Result, error) {
	return createRecord(ctx, s, sess, encounterOps, encounter)
}

// ListEncounters returns encounters matching f.
func (s *Service) ListEncounters(ctx context.Context, f ListFilter) ([]domain.Encounter, error) {
	return listRecords(ctx, s, encounterOps, f)
}

// UpdateEncounter applies mutator to the encounter.
func (s *Service) UpdateEncounter(ctx context.Context, sess *Session, id string, mutator func(*domain.Encounter) error) (domain.Encounter, bool, error) {
	return updateRecord(ctx, s, sess, encounterOps, id, mutator)
}

// DeleteEncounter removes the encounter.
func (s *Service) DeleteEncounter(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, encounterOps, id)
}

// CreatePrescription stores a new prescription.
func (s *Service) CreatePrescription(ctx context.Context, sess *Session, prescription domain.Prescription) (domain.Prescription, Result, error) {
	return createRecord(ctx, s, sess, prescriptionOps, prescription)
}

// GetPrescription returns the prescription with id.
func (s *Service) GetPrescription(ctx context.Context, id string) (domain.Prescription, bool) {
	return getRecord(ctx, s, prescriptionOps, id)
}

// ListPrescriptions returns prescriptions matching f.
func (s *Service) ListPrescriptions(ctx context.Context, f ListFilter) ([]domain.Prescription, error) {
	return listRecords(ctx, s, prescriptionOps, f)
}

// UpdatePrescription applies mutator to the prescription.
func (s *Service) UpdatePrescription(ctx context.Context, sess *Session, id string, mutator func(*domain.Prescription) error) (domain.Prescription, bool, error) {
	return updateRecord(ctx, s, sess, prescriptionOps, id, mutator)
}

// DeletePrescription removes the prescription.
func (s *Service) DeletePrescription(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, prescriptionOps, id)
}

// CreateProduct stores a new product.
func (s *Service) CreateProduct(ctx context.Context, sess *Session, product domain.Product) (domain.Product, Result, error) {
	return createRecord(ctx, s, sess, productOps, product)
}

// GetProduct returns the product with id.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, bool) {
	return getRecord(ctx, s, productOps, id)
}

// ListProducts returns products matching f.
func (s *Service) ListProducts(ctx context.Context, f ListFilter) ([]domain.Product, error) {
	return listRecords(ctx, s, productOps, f)
}

// UpdateProduct applies mutator to the product.
func (s *Service) UpdateProduct(ctx context.Context, sess *Session, id string, mutator func(*domain.Product) error) (domain.Product, bool, error) {
	return updateRecord(ctx, s, sess, productOps, id, mutator)
}

// DeleteProduct removes the product.
func (s *Service) DeleteProduct(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, productOps, id)
}

// CreateSupplier stores a new supplier.
func (s *Service) CreateSupplier(ctx context.Context, sess *Session, supplier domain.Supplier) (domain.Supplier, Result, error) {
	return createRecord(ctx, s, sess, supplierOps, supplier)
}

// GetSupplier returns the supplier with id.
func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, bool) {
	return getRecord(ctx, s, supplierOps, id)
}

// ListSuppliers returns suppliers matching f.
func (s *Service) ListSuppliers(ctx context.Context, f ListFilter) ([]domain.Supplier, error) {
	return listRecords(ctx, s, supplierOps, f)
}

// UpdateSupplier applies mutator to the supplier.
func (s *Service) UpdateSupplier(ctx context.Context, sess *Session, id string, mutator func(*domain.Supplier) error) (domain.Supplier, bool, error) {
	return updateRecord(ctx, s, sess, supplierOps, id, mutator)
}

// DeleteSupplier removes the supplier.
func (s *Service) DeleteSupplier(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, supplierOps, id)
}

// CreateInventoryItem stores a new stock position.
func (s *Service) CreateInventoryItem(ctx context.Context, sess *Session, inventoryItem domain.InventoryItem) (domain.InventoryItem, Result, error) {
	return createRecord(ctx, s, sess, inventoryItemOps, inventoryItem)
}

// GetInventoryItem returns the stock position with id.
func (s *Service) GetInventoryItem(ctx context.Context, id string) (domain.InventoryItem, bool) {
	return getRecord(ctx, s, inventoryItemOps, id)
}

// ListInventoryItems returns stock positions matching f.
func (s *Service) ListInventoryItems(ctx context.Context, f ListFilter) ([]domain.InventoryItem, error) {
	return listRecords(ctx, s, inventoryItemOps, f)
}

// UpdateInventoryItem applies mutator to the stock position.
func (s *Service) UpdateInventoryItem(ctx context.Context, sess *Session, id string, mutator func(*domain.InventoryItem) error) (domain.InventoryItem, bool, error) {
	return updateRecord(ctx, s, sess, inventoryItemOps, id, mutator)
}

// DeleteInventoryItem removes the stock position.
func (s *Service) DeleteInventoryItem(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, inventoryItemOps, id)
}

// GetInventoryBatch returns the batch with id.
func (s *Service) GetInventoryBatch(ctx context.Context, id string) (domain.InventoryBatch, bool) {
	return getRecord(ctx, s, inventoryBatchOps, id)
}

// ListInventoryBatches returns batchs matching f.
func (s *Service) ListInventoryBatches(ctx context.Context, f ListFilter) ([]domain.InventoryBatch, error) {
	return listRecords(ctx, s, inventoryBatchOps, f)
}

// CreatePurchaseOrder stores a new purchase order.
func (s *Service) CreatePurchaseOrder(ctx context.Context, sess *Session, purchaseOrder domain.PurchaseOrder) (domain.PurchaseOrder, Result, error) {
	return createRecord(ctx, s, sess, purchaseOrderOps, purchaseOrder)
}

// GetPurchaseOrder returns the purchase order with id.
func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, bool) {
	return getRecord(ctx, s, purchaseOrderOps, id)
}

// ListPurchaseOrders returns purchase orders matching f.
func (s *Service) ListPurchaseOrders(ctx context.Context, f ListFilter) ([]domain.PurchaseOrder, error) {
	return listRecords(ctx, s, purchaseOrderOps, f)
}

// UpdatePurchaseOrder applies mutator to the purchase order.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, sess *Session, id string, mutator func(*domain.PurchaseOrder) error) (domain.PurchaseOrder, bool, error) {
	return updateRecord(ctx, s, sess, purchaseOrderOps, id, mutator)
}

// DeletePurchaseOrder removes the purchase order.
func (s *Service) DeletePurchaseOrder(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, purchaseOrderOps, id)
}

// GetSale returns the sale with id.
func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, bool) {
	return getRecord(ctx, s, saleOps, id)
}

// ListSales returns sales matching f.
func (s *Service) ListSales(ctx context.Context, f ListFilter) ([]domain.Sale, error) {
	return listRecords(ctx, s, saleOps, f)
}

// GetHospitalInvoice returns the invoice with id.
func (s *Service) GetHospitalInvoice(ctx context.Context, id string) (domain.HospitalInvoice, bool) {
	return getRecord(ctx, s, invoiceOps, id)
}

// ListHospitalInvoices returns invoices matching f.
func (s *Service) ListHospitalInvoices(ctx context.Context, f ListFilter) ([]domain.HospitalInvoice, error) {
	return listRecords(ctx, s, invoiceOps, f)
}

// DeleteHospitalInvoice removes the invoice.
func (s *Service) DeleteHospitalInvoice(ctx context.Context, sess *Session, id string) (bool, error) {
	return deleteRecord(ctx, s, sess, invoiceOps, id)
}
