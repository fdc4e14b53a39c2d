package core

import (
	"context"
	"errors"

	"clinicore/internal/audit"
	"clinicore/pkg/domain"
)

type record interface {
	domain.Auditable
	EntityID() string
}

// entityOps binds the store methods of one entity kind.
type entityOps[T record] struct {
	kind   domain.EntityType
	create func(domain.Transaction, T) (T, error)
	find   func(domain.TransactionView, string) (T, bool)
	list   func(domain.TransactionView, domain.ListFilter) []T
	update func(domain.Transaction, string, func(*T) error) (T, error)
	delete func(domain.Transaction, string) error
}

func createRecord[T record](ctx context.Context, s *Service, sess *Session, ops entityOps[T], row T) (T, Result, error) {
	var created T
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = ops.create(tx, row)
		if err != nil {
			return err
		}
		s.audit.Record(tx, sess, audit.Entry{
			Action:     domain.AuditCreate,
			EntityType: ops.kind,
			EntityID:   created.EntityID(),
			After:      created,
		})
		return nil
	})
	s.logResult("create "+string(ops.kind), res)
	return created, res, err
}

func getRecord[T record](ctx context.Context, s *Service, ops entityOps[T], id string) (T, bool) {
	var out T
	var ok bool
	_ = s.store.View(ctx, func(v domain.TransactionView) error {
		out, ok = ops.find(v, id)
		return nil
	})
	return out, ok
}

func listRecords[T record](ctx context.Context, s *Service, ops entityOps[T], f ListFilter) ([]T, error) {
	var out []T
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		out = ops.list(v, f)
		return nil
	})
	return out, err
}

// updateRecord returns (zero, false, nil) when id does not exist.
func updateRecord[T record](ctx context.Context, s *Service, sess *Session, ops entityOps[T], id string, mutator func(*T) error) (T, bool, error) {
	var updated T
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		before, ok := ops.find(tx, id)
		if !ok {
			return domain.NotFoundError{Entity: ops.kind, ID: id}
		}
		var err error
		updated, err = ops.update(tx, id, mutator)
		if err != nil {
			return err
		}
		s.audit.Record(tx, sess, audit.Entry{
			Action:     domain.AuditUpdate,
			EntityType: ops.kind,
			EntityID:   id,
			Before:     before,
			After:      updated,
		})
		return nil
	})
	if isMissing(err, ops.kind, id) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	s.logResult("update "+string(ops.kind), res)
	return updated, true, nil
}

// deleteRecord returns false when id does not exist.
func deleteRecord[T record](ctx context.Context, s *Service, sess *Session, ops entityOps[T], id string) (bool, error) {
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		before, ok := ops.find(tx, id)
		if !ok {
			return domain.NotFoundError{Entity: ops.kind, ID: id}
		}
		if err := ops.delete(tx, id); err != nil {
			return err
		}
		s.audit.Record(tx, sess, audit.Entry{
			Action:     domain.AuditDelete,
			EntityType: ops.kind,
			EntityID:   id,
			Before:     before,
		})
		return nil
	})
	if isMissing(err, ops.kind, id) {
		return false, nil
	}
	return err == nil, err
}

func isMissing(err error, kind domain.EntityType, id string) bool {
	var nf domain.NotFoundError
	return errors.As(err, &nf) && nf.Entity == kind && nf.ID == id
}

var (
	organizationOps = entityOps[domain.Organization]{
		kind:   domain.EntityOrganization,
		create: domain.Transaction.CreateOrganization,
		find:   domain.TransactionView.FindOrganization,
		list:   domain.TransactionView.ListOrganizations,
		update: domain.Transaction.UpdateOrganization,
		delete: domain.Transaction.DeleteOrganization,
	}
	licenseOps = entityOps[domain.License]{
		kind:   domain.EntityLicense,
		create: domain.Transaction.CreateLicense,
		find:   domain.TransactionView.FindLicense,
		list:   domain.TransactionView.ListLicenses,
		update: domain.Transaction.UpdateLicense,
		delete: domain.Transaction.DeleteLicense,
	}
	userOps = entityOps[domain.User]{
		kind:   domain.EntityUser,
		create: domain.Transaction.CreateUser,
		find:   domain.TransactionView.FindUser,
		list:   domain.TransactionView.ListUsers,
		update: domain.Transaction.UpdateUser,
		delete: domain.Transaction.DeleteUser,
	}
	patientOps = entityOps[domain.Patient]{
		kind:   domain.EntityPatient,
		create: domain.Transaction.CreatePatient,
		find:   domain.TransactionView.FindPatient,
		list:   domain.TransactionView.ListPatients,
		update: domain.Transaction.UpdatePatient,
		delete: domain.Transaction.DeletePatient,
	}
	medicalRecordOps = entityOps[domain.MedicalRecord]{
		kind:   domain.EntityMedicalRecord,
		create: domain.Transaction.CreateMedicalRecord,
		find:   domain.TransactionView.FindMedicalRecord,
		list:   domain.TransactionView.ListMedicalRecords,
		update: domain.Transaction.UpdateMedicalRecord,
		delete: domain.Transaction.DeleteMedicalRecord,
	}
	encounterOps = entityOps[domain.Encounter]{
		kind:   domain.EntityEncounter,
		create: domain.Transaction.CreateEncounter,
		find:   domain.TransactionView.FindEncounter,
		list:   domain.TransactionView.ListEncounters,
		update: domain.Transaction.UpdateEncounter,
		delete: domain.Transaction.DeleteEncounter,
	}
	prescriptionOps = entityOps[domain.Prescription]{
		kind:   domain.EntityPrescription,
		create: domain.Transaction.CreatePrescription,
		find:   domain.TransactionView.FindPrescription,
		list:   domain.TransactionView.ListPrescriptions,
		update: domain.Transaction.UpdatePrescription,
		delete: domain.Transaction.DeletePrescription,
	}
	productOps = entityOps[domain.Product]{
		kind:   domain.EntityProduct,
		create: domain.Transaction.CreateProduct,
		find:   domain.TransactionView.FindProduct,
		list:   domain.TransactionView.ListProducts,
		update: domain.Transaction.UpdateProduct,
		delete: domain.Transaction.DeleteProduct,
	}
	supplierOps = entityOps[domain.Supplier]{
		kind:   domain.EntitySupplier,
		create: domain.Transaction.CreateSupplier,
		find:   domain.TransactionView.FindSupplier,
		list:   domain.TransactionView.ListSuppliers,
		update: domain.Transaction.UpdateSupplier,
		delete: domain.Transaction.DeleteSupplier,
	}
	inventoryItemOps = entityOps[domain.InventoryItem]{
		kind:   domain.EntityInventoryItem,
		create: domain.Transaction.CreateInventoryItem,
		find:   domain.TransactionView.FindInventoryItem,
		list:   domain.TransactionView.ListInventoryItems,
		update: domain.Transaction.UpdateInventoryItem,
		delete: domain.Transaction.DeleteInventoryItem,
	}
	inventoryBatchOps = entityOps[domain.InventoryBatch]{
		kind:   domain.EntityInventoryBatch,
		create: domain.Transaction.CreateInventoryBatch,
		find:   domain.TransactionView.FindInventoryBatch,
		list:   domain.TransactionView.ListInventoryBatches,
		update: domain.Transaction.UpdateInventoryBatch,
		delete: domain.Transaction.DeleteInventoryBatch,
	}
	purchaseOrderOps = entityOps[domain.PurchaseOrder]{
		kind:   domain.EntityPurchaseOrder,
		create: domain.Transaction.CreatePurchaseOrder,
		find:   domain.TransactionView.FindPurchaseOrder,
		list:   domain.TransactionView.ListPurchaseOrders,
		update: domain.Transaction.UpdatePurchaseOrder,
		delete: domain.Transaction.DeletePurchaseOrder,
	}
	saleOps = entityOps[domain.Sale]{
		kind:   domain.EntitySale,
		create: domain.Transaction.CreateSale,
		find:   domain.TransactionView.FindSale,
		list:   domain.TransactionView.ListSales,
		update: domain.Transaction.UpdateSale,
		delete: domain.Transaction.DeleteSale,
	}
	invoiceOps = entityOps[domain.HospitalInvoice]{
		kind:   domain.EntityHospitalInvoice,
		create: domain.Transaction.CreateHospitalInvoice,
		find:   domain.TransactionView.FindHospitalInvoice,
		list:   domain.TransactionView.ListHospitalInvoices,
		update: domain.Transaction.UpdateHospitalInvoice,
		delete: domain.Transaction.DeleteHospitalInvoice,
	}
)
