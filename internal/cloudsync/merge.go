package cloudsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/gjson"

	"clinicore/pkg/domain"
)

// Merge outcomes, also used as metric labels.
const (
	OutcomeInserted    = "inserted"
	OutcomeOverwritten = "overwritten"
	OutcomeUnchanged   = "unchanged"
	OutcomeSkipped     = "skipped"
	OutcomeDeferred    = "deferred"
)

// errParentMissing marks a pulled row whose required parent is not known
// locally yet.
var errParentMissing = errors.New("parent not pulled yet")

// merger applies remote rows of one entity kind. Transactions passed to it
// must carry domain.OriginRemote.
type merger interface {
	merge(tx domain.Transaction, refs *refResolver, raw json.RawMessage) (string, error)
	index(v domain.TransactionView) kindIndex
	remoteID(v domain.TransactionView, id string) (string, bool)
	setRemoteID(tx domain.Transaction, id, remoteID string) error
}

type row[T any] interface {
	*T
	BaseRef() *domain.Base
}

// kindIndex maps the authority's ids and local ids of one kind onto local ids.
type kindIndex struct {
	remote map[string]string
	local  map[string]bool
}

// refResolver translates references in pulled rows to local ids. Each kind
// is indexed at most once per merge transaction.
type refResolver struct {
	view    domain.TransactionView
	indexes map[domain.EntityType]kindIndex
	lookup  func(domain.EntityType) (merger, bool)
}

func newRefResolver(v domain.TransactionView) *refResolver {
	return &refResolver{
		view:    v,
		indexes: map[domain.EntityType]kindIndex{},
		lookup: func(kind domain.EntityType) (merger, bool) {
			m, ok := mergers[kind]
			return m, ok
		},
	}
}

func (r *refResolver) index(kind domain.EntityType) kindIndex {
	idx, ok := r.indexes[kind]
	if !ok {
		if m, found := r.lookup(kind); found {
			idx = m.index(r.view)
		} else {
			idx = kindIndex{remote: map[string]string{}, local: map[string]bool{}}
		}
		r.indexes[kind] = idx
	}
	return idx
}

// add registers a row inserted during the transaction.
func (r *refResolver) add(kind domain.EntityType, id, remoteID string) {
	idx := r.index(kind)
	idx.local[id] = true
	if remoteID != "" {
		idx.remote[remoteID] = id
	}
}

// resolve rewrites *ref to a local id. It reports false when ref is set but
// matches no local row.
func (r *refResolver) resolve(kind domain.EntityType, ref *string) bool {
	if *ref == "" {
		return true
	}
	idx := r.index(kind)
	if id, ok := idx.remote[*ref]; ok {
		*ref = id
		return true
	}
	return idx.local[*ref]
}

func (r *refResolver) optional(kind domain.EntityType, ref *string) {
	r.resolve(kind, ref)
}

func (r *refResolver) required(kind domain.EntityType, ref *string) error {
	if *ref == "" || !r.resolve(kind, ref) {
		return fmt.Errorf("%s %q: %w", kind, *ref, errParentMissing)
	}
	return nil
}

// typedMerger implements whole-record last-writer-wins for one kind.
type typedMerger[T any, P row[T]] struct {
	kind   domain.EntityType
	find   func(domain.TransactionView, string) (T, bool)
	list   func(domain.TransactionView, domain.ListFilter) []T
	create func(domain.Transaction, T) (T, error)
	update func(domain.Transaction, string, func(*T) error) (T, error)
	refs   func(*refResolver, *T) error
}

func (m typedMerger[T, P]) index(v domain.TransactionView) kindIndex {
	rows := m.list(v, domain.ListFilter{})
	idx := kindIndex{remote: make(map[string]string, len(rows)), local: make(map[string]bool, len(rows))}
	for i := range rows {
		base := P(&rows[i]).BaseRef()
		idx.local[base.ID] = true
		if base.RemoteID != "" {
			idx.remote[base.RemoteID] = base.ID
		}
	}
	return idx
}

func (m typedMerger[T, P]) merge(tx domain.Transaction, refs *refResolver, raw json.RawMessage) (string, error) {
	remoteID := gjson.GetBytes(raw, "id").String()
	if remoteID == "" {
		return OutcomeSkipped, nil
	}
	var incoming T
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return OutcomeSkipped, nil
	}
	in := P(&incoming).BaseRef()
	in.RemoteID = remoteID
	if m.refs != nil {
		if err := m.refs(refs, &incoming); err != nil {
			if errors.Is(err, errParentMissing) {
				return OutcomeDeferred, nil
			}
			return "", err
		}
	}

	localID, ok := refs.index(m.kind).remote[remoteID]
	if !ok {
		in.ID = ""
		created, err := m.create(tx, incoming)
		if err != nil {
			return "", fmt.Errorf("insert %s %s: %w", m.kind, remoteID, err)
		}
		refs.add(m.kind, P(&created).BaseRef().ID, remoteID)
		return OutcomeInserted, nil
	}
	local, ok := m.find(tx, localID)
	if !ok {
		return "", fmt.Errorf("overwrite %s %s: %w", m.kind, localID, domain.ErrNotFound)
	}
	current := P(&local).BaseRef()
	if !in.UpdatedAt.After(current.UpdatedAt) {
		return OutcomeUnchanged, nil
	}
	in.ID = current.ID
	if _, err := m.update(tx, current.ID, func(dst *T) error {
		*dst = incoming
		return nil
	}); err != nil {
		return "", fmt.Errorf("overwrite %s %s: %w", m.kind, current.ID, err)
	}
	return OutcomeOverwritten, nil
}

func (m typedMerger[T, P]) remoteID(v domain.TransactionView, id string) (string, bool) {
	current, ok := m.find(v, id)
	if !ok {
		return "", false
	}
	remote := P(&current).BaseRef().RemoteID
	return remote, remote != ""
}

func (m typedMerger[T, P]) setRemoteID(tx domain.Transaction, id, remoteID string) error {
	_, err := m.update(tx, id, func(dst *T) error {
		P(dst).BaseRef().RemoteID = remoteID
		return nil
	})
	return err
}

var mergers = map[domain.EntityType]merger{
	domain.EntityPatient: typedMerger[domain.Patient, *domain.Patient]{
		kind:   domain.EntityPatient,
		find:   domain.TransactionView.FindPatient,
		list:   domain.TransactionView.ListPatients,
		create: domain.Transaction.CreatePatient,
		update: domain.Transaction.UpdatePatient,
	},
	domain.EntityMedicalRecord: typedMerger[domain.MedicalRecord, *domain.MedicalRecord]{
		kind:   domain.EntityMedicalRecord,
		find:   domain.TransactionView.FindMedicalRecord,
		list:   domain.TransactionView.ListMedicalRecords,
		create: domain.Transaction.CreateMedicalRecord,
		update: domain.Transaction.UpdateMedicalRecord,
		refs: func(r *refResolver, m *domain.MedicalRecord) error {
			r.optional(domain.EntityEncounter, &m.EncounterID)
			return r.required(domain.EntityPatient, &m.PatientID)
		},
	},
	domain.EntityEncounter: typedMerger[domain.Encounter, *domain.Encounter]{
		kind:   domain.EntityEncounter,
		find:   domain.TransactionView.FindEncounter,
		list:   domain.TransactionView.ListEncounters,
		create: domain.Transaction.CreateEncounter,
		update: domain.Transaction.UpdateEncounter,
		refs: func(r *refResolver, e *domain.Encounter) error {
			return r.required(domain.EntityPatient, &e.PatientID)
		},
	},
	domain.EntityPrescription: typedMerger[domain.Prescription, *domain.Prescription]{
		kind:   domain.EntityPrescription,
		find:   domain.TransactionView.FindPrescription,
		list:   domain.TransactionView.ListPrescriptions,
		create: domain.Transaction.CreatePrescription,
		update: domain.Transaction.UpdatePrescription,
		refs: func(r *refResolver, p *domain.Prescription) error {
			r.optional(domain.EntityEncounter, &p.EncounterID)
			for i := range p.Items {
				r.optional(domain.EntityProduct, &p.Items[i].ProductID)
			}
			return r.required(domain.EntityPatient, &p.PatientID)
		},
	},
	domain.EntityProduct: typedMerger[domain.Product, *domain.Product]{
		kind:   domain.EntityProduct,
		find:   domain.TransactionView.FindProduct,
		list:   domain.TransactionView.ListProducts,
		create: domain.Transaction.CreateProduct,
		update: domain.Transaction.UpdateProduct,
		refs: func(r *refResolver, p *domain.Product) error {
			r.optional(domain.EntitySupplier, &p.SupplierID)
			return nil
		},
	},
	domain.EntitySupplier: typedMerger[domain.Supplier, *domain.Supplier]{
		kind:   domain.EntitySupplier,
		find:   domain.TransactionView.FindSupplier,
		list:   domain.TransactionView.ListSuppliers,
		create: domain.Transaction.CreateSupplier,
		update: domain.Transaction.UpdateSupplier,
	},
	domain.EntityPurchaseOrder: typedMerger[domain.PurchaseOrder, *domain.PurchaseOrder]{
		kind:   domain.EntityPurchaseOrder,
		find:   domain.TransactionView.FindPurchaseOrder,
		list:   domain.TransactionView.ListPurchaseOrders,
		create: domain.Transaction.CreatePurchaseOrder,
		update: domain.Transaction.UpdatePurchaseOrder,
		refs: func(r *refResolver, p *domain.PurchaseOrder) error {
			r.optional(domain.EntitySupplier, &p.SupplierID)
			for i := range p.Items {
				r.optional(domain.EntityProduct, &p.Items[i].ProductID)
			}
			return nil
		},
	},
	domain.EntitySale: typedMerger[domain.Sale, *domain.Sale]{
		kind:   domain.EntitySale,
		find:   domain.TransactionView.FindSale,
		list:   domain.TransactionView.ListSales,
		create: domain.Transaction.CreateSale,
		update: domain.Transaction.UpdateSale,
		refs: func(r *refResolver, s *domain.Sale) error {
			r.optional(domain.EntityPatient, &s.CustomerID)
			r.optional(domain.EntityPrescription, &s.PrescriptionID)
			for i := range s.Items {
				r.optional(domain.EntityProduct, &s.Items[i].ProductID)
			}
			return nil
		},
	},
	domain.EntityHospitalInvoice: typedMerger[domain.HospitalInvoice, *domain.HospitalInvoice]{
		kind:   domain.EntityHospitalInvoice,
		find:   domain.TransactionView.FindHospitalInvoice,
		list:   domain.TransactionView.ListHospitalInvoices,
		create: domain.Transaction.CreateHospitalInvoice,
		update: domain.Transaction.UpdateHospitalInvoice,
		refs: func(r *refResolver, h *domain.HospitalInvoice) error {
			r.optional(domain.EntityEncounter, &h.EncounterID)
			return r.required(domain.EntityPatient, &h.PatientID)
		},
	},
}

// Mergeable reports whether pulled rows of kind can be applied locally.
func Mergeable(kind domain.EntityType) bool {
	_, ok := mergers[kind]
	return ok
}

// mergeOrder applies parents before the rows that reference them.
var mergeOrder = []domain.EntityType{
	domain.EntitySupplier,
	domain.EntityProduct,
	domain.EntityPatient,
	domain.EntityEncounter,
	domain.EntityMedicalRecord,
	domain.EntityPrescription,
	domain.EntityPurchaseOrder,
	domain.EntityHospitalInvoice,
	domain.EntitySale,
}

// sortForMerge orders kinds by mergeOrder.
func sortForMerge(kinds []domain.EntityType) {
	slices.SortStableFunc(kinds, func(a, b domain.EntityType) int {
		return slices.Index(mergeOrder, a) - slices.Index(mergeOrder, b)
	})
}
