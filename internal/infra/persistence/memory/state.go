package memory

import (
	"fmt"
	"maps"
	"strings"

	"clinicore/pkg/domain"
)

// Sequence counters persisted with the dataset.
const (
	seqPatient       = "patient"
	seqEncounter     = "encounter"
	seqPrescription  = "prescription"
	seqPurchaseOrder = "purchase_order"
	seqAudit         = "audit_entry"
	seqChange        = "change_record"
)

type memoryState struct {
	organizations  *table[Organization]
	licenses       *table[License]
	users          *table[User]
	patients       *table[Patient]
	medicalRecords *table[MedicalRecord]
	encounters     *table[Encounter]
	prescriptions  *table[Prescription]
	products       *table[Product]
	suppliers      *table[Supplier]
	inventory      *table[InventoryItem]
	batches        *table[InventoryBatch]
	purchaseOrders *table[PurchaseOrder]
	sales          *table[Sale]
	invoices       *table[HospitalInvoice]
	changeLog      *table[ChangeRecord]
	// movements and audit are append-only; clones share the backing array up
	// to len, so appends in a transaction never leak into committed state.
	movements []StockMovement
	audit     []AuditEntry
	sequences map[string]int64
	settings  map[string]string
}

// Snapshot captures a point-in-time clone of the store state. Tables are
// serialized as arrays in insertion order.
type Snapshot struct {
	Organizations    []Organization    `json:"organizations"`
	Licenses         []License         `json:"licenses"`
	Users            []User            `json:"users"`
	Patients         []Patient         `json:"patients"`
	MedicalRecords   []MedicalRecord   `json:"medical_records"`
	Encounters       []Encounter       `json:"encounters"`
	Prescriptions    []Prescription    `json:"prescriptions"`
	Products         []Product         `json:"products"`
	Suppliers        []Supplier        `json:"suppliers"`
	InventoryItems   []InventoryItem   `json:"inventory_items"`
	InventoryBatches []InventoryBatch  `json:"inventory_batches"`
	StockMovements   []StockMovement   `json:"stock_movements"`
	PurchaseOrders   []PurchaseOrder   `json:"purchase_orders"`
	Sales            []Sale            `json:"sales"`
	HospitalInvoices []HospitalInvoice `json:"hospital_invoices"`
	AuditEntries     []AuditEntry      `json:"audit_entries"`
	ChangeRecords    []ChangeRecord    `json:"change_records"`
	Sequences        map[string]int64  `json:"sequences"`
	Settings         map[string]string `json:"settings"`
}

func newMemoryState() memoryState {
	return memoryState{
		organizations:  newEntityTable[Organization](),
		licenses:       newEntityTable[License](),
		users:          newEntityTable[User](),
		patients:       newEntityTable[Patient](),
		medicalRecords: newEntityTable[MedicalRecord](),
		encounters:     newEntityTable[Encounter](),
		prescriptions:  newEntityTable[Prescription](),
		products:       newEntityTable[Product](),
		suppliers:      newEntityTable[Supplier](),
		inventory:      newEntityTable[InventoryItem](),
		batches:        newEntityTable[InventoryBatch](),
		purchaseOrders: newEntityTable[PurchaseOrder](),
		sales:          newEntityTable[Sale](),
		invoices:       newEntityTable[HospitalInvoice](),
		changeLog: newTable(
			func(c ChangeRecord) string { return c.ID },
			func(c ChangeRecord) ChangeRecord { return c.Clone() },
		),
		sequences: make(map[string]int64),
		settings:  make(map[string]string),
	}
}

func (s memoryState) clone() memoryState {
	return memoryState{
		organizations:  s.organizations.copy(),
		licenses:       s.licenses.copy(),
		users:          s.users.copy(),
		patients:       s.patients.copy(),
		medicalRecords: s.medicalRecords.copy(),
		encounters:     s.encounters.copy(),
		prescriptions:  s.prescriptions.copy(),
		products:       s.products.copy(),
		suppliers:      s.suppliers.copy(),
		inventory:      s.inventory.copy(),
		batches:        s.batches.copy(),
		purchaseOrders: s.purchaseOrders.copy(),
		sales:          s.sales.copy(),
		invoices:       s.invoices.copy(),
		changeLog:      s.changeLog.copy(),
		movements:      s.movements[:len(s.movements):len(s.movements)],
		audit:          s.audit[:len(s.audit):len(s.audit)],
		sequences:      maps.Clone(s.sequences),
		settings:       maps.Clone(s.settings),
	}
}

func cloneSlice[T interface{ Clone() T }](in []T) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		out = append(out, v.Clone())
	}
	return out
}

func snapshotFromMemoryState(s memoryState) Snapshot {
	return Snapshot{
		Organizations:    s.organizations.all(),
		Licenses:         s.licenses.all(),
		Users:            s.users.all(),
		Patients:         s.patients.all(),
		MedicalRecords:   s.medicalRecords.all(),
		Encounters:       s.encounters.all(),
		Prescriptions:    s.prescriptions.all(),
		Products:         s.products.all(),
		Suppliers:        s.suppliers.all(),
		InventoryItems:   s.inventory.all(),
		InventoryBatches: s.batches.all(),
		StockMovements:   cloneSlice(s.movements),
		PurchaseOrders:   s.purchaseOrders.all(),
		Sales:            s.sales.all(),
		HospitalInvoices: s.invoices.all(),
		AuditEntries:     cloneSlice(s.audit),
		ChangeRecords:    s.changeLog.all(),
		Sequences:        maps.Clone(s.sequences),
		Settings:         maps.Clone(s.settings),
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.organizations.load(s.Organizations)
	state.licenses.load(s.Licenses)
	state.users.load(s.Users)
	state.patients.load(s.Patients)
	state.medicalRecords.load(s.MedicalRecords)
	state.encounters.load(s.Encounters)
	state.prescriptions.load(s.Prescriptions)
	state.products.load(s.Products)
	state.suppliers.load(s.Suppliers)
	state.inventory.load(s.InventoryItems)
	state.batches.load(s.InventoryBatches)
	state.purchaseOrders.load(s.PurchaseOrders)
	state.sales.load(s.Sales)
	state.invoices.load(s.HospitalInvoices)
	state.changeLog.load(s.ChangeRecords)
	state.movements = cloneSlice(s.StockMovements)
	state.audit = cloneSlice(s.AuditEntries)
	for k, v := range s.Sequences {
		state.sequences[k] = v
	}
	for k, v := range s.Settings {
		state.settings[k] = v
	}
	return state
}

// migrateSnapshot repairs snapshots written by older builds or by hand:
// derived fields are recomputed, clinical rows orphaned from their patient are
// dropped, and sequence counters are raised past every number already issued.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Sequences == nil {
		snapshot.Sequences = map[string]int64{}
	}
	if snapshot.Settings == nil {
		snapshot.Settings = map[string]string{}
	}

	patients := make(map[string]string, 2*len(snapshot.Patients))
	for _, p := range snapshot.Patients {
		if p.RemoteID != "" {
			patients[p.RemoteID] = p.ID
		}
	}
	for _, p := range snapshot.Patients {
		patients[p.ID] = p.ID
	}
	// orphan re-points a reference held as the authority's id and reports
	// whether no patient matches it at all.
	orphan := func(patientID *string) bool {
		id, ok := patients[*patientID]
		if ok {
			*patientID = id
		}
		return !ok
	}
	snapshot.MedicalRecords = dropOrphans(snapshot.MedicalRecords, func(m *MedicalRecord) bool { return orphan(&m.PatientID) })
	snapshot.Encounters = dropOrphans(snapshot.Encounters, func(e *Encounter) bool { return orphan(&e.PatientID) })
	snapshot.Prescriptions = dropOrphans(snapshot.Prescriptions, func(p *Prescription) bool { return orphan(&p.PatientID) })
	for i := range snapshot.HospitalInvoices {
		orphan(&snapshot.HospitalInvoices[i].PatientID)
	}

	for i := range snapshot.InventoryItems {
		snapshot.InventoryItems[i].Normalize()
	}
	for i := range snapshot.PurchaseOrders {
		snapshot.PurchaseOrders[i].Normalize()
	}
	for i := range snapshot.Sales {
		snapshot.Sales[i].Normalize()
	}
	for i := range snapshot.HospitalInvoices {
		snapshot.HospitalInvoices[i].Normalize()
	}

	raise := func(name string, n int64) {
		if n > snapshot.Sequences[name] {
			snapshot.Sequences[name] = n
		}
	}
	for _, p := range snapshot.Patients {
		raise(seqPatient, parseSequence(domain.PrefixPatient, p.MRN))
	}
	for _, e := range snapshot.Encounters {
		raise(seqEncounter, parseSequence(domain.PrefixEncounter, e.EncounterNumber))
	}
	for _, p := range snapshot.Prescriptions {
		raise(seqPrescription, parseSequence(domain.PrefixPrescription, p.PrescriptionNumber))
	}
	for _, p := range snapshot.PurchaseOrders {
		raise(seqPurchaseOrder, parseSequence(domain.PrefixPurchaseOrder, p.OrderNumber))
	}
	for _, a := range snapshot.AuditEntries {
		raise(seqAudit, a.Seq)
	}
	for _, c := range snapshot.ChangeRecords {
		raise(seqChange, c.Seq)
	}
	return snapshot
}

// dropOrphans keeps rows in order, letting orphan rewrite each row in place.
func dropOrphans[T any](rows []T, orphan func(*T) bool) []T {
	out := rows[:0]
	for i := range rows {
		if !orphan(&rows[i]) {
			out = append(out, rows[i])
		}
	}
	return out
}

func parseSequence(prefix, value string) int64 {
	rest, ok := strings.CutPrefix(value, prefix+"-")
	if !ok {
		return 0
	}
	var n int64
	if _, err := fmt.Sscanf(rest, "%d", &n); err != nil {
		return 0
	}
	return n
}
