package domain

import "time"

// Clone methods return deep copies so rows handed out of the store never
// share slices or pointers with committed state.

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func (a AccessTracking) clone() AccessTracking {
	a.LastAccessedAt = cloneTime(a.LastAccessedAt)
	return a
}

// Clone returns a deep copy.
func (o Organization) Clone() Organization { return o }

// Clone returns a deep copy.
func (l License) Clone() License {
	l.ExpiresAt = cloneTime(l.ExpiresAt)
	return l
}

// Clone returns a deep copy.
func (u User) Clone() User {
	u.LockoutUntil = cloneTime(u.LockoutUntil)
	u.LastLoginAt = cloneTime(u.LastLoginAt)
	return u
}

// Clone returns a deep copy.
func (p Patient) Clone() Patient {
	p.AccessTracking = p.AccessTracking.clone()
	p.DateOfBirth = cloneTime(p.DateOfBirth)
	if p.Allergies != nil {
		p.Allergies = append([]string(nil), p.Allergies...)
	}
	return p
}

// Clone returns a deep copy.
func (m MedicalRecord) Clone() MedicalRecord { return m }

// Clone returns a deep copy.
func (e Encounter) Clone() Encounter {
	e.AccessTracking = e.AccessTracking.clone()
	e.StartedAt = cloneTime(e.StartedAt)
	e.EndedAt = cloneTime(e.EndedAt)
	return e
}

// Clone returns a deep copy.
func (p Prescription) Clone() Prescription {
	p.Items = append([]PrescriptionItem(nil), p.Items...)
	p.DispensedAt = cloneTime(p.DispensedAt)
	return p
}

// Clone returns a deep copy.
func (p Product) Clone() Product { return p }

// Clone returns a deep copy.
func (s Supplier) Clone() Supplier { return s }

// Clone returns a deep copy.
func (i InventoryItem) Clone() InventoryItem {
	i.LastCountedAt = cloneTime(i.LastCountedAt)
	return i
}

// Clone returns a deep copy.
func (b InventoryBatch) Clone() InventoryBatch {
	b.ExpiryDate = cloneTime(b.ExpiryDate)
	return b
}

// Clone returns a deep copy.
func (m StockMovement) Clone() StockMovement { return m }

// Clone returns a deep copy.
func (p PurchaseOrder) Clone() PurchaseOrder {
	p.Items = append([]PurchaseOrderItem(nil), p.Items...)
	p.ExpectedAt = cloneTime(p.ExpectedAt)
	p.ReceivedAt = cloneTime(p.ReceivedAt)
	return p
}

// Clone returns a deep copy.
func (s Sale) Clone() Sale {
	s.Items = append([]SaleItem(nil), s.Items...)
	s.Payments = append([]Payment(nil), s.Payments...)
	s.VoidedAt = cloneTime(s.VoidedAt)
	return s
}

// Clone returns a deep copy.
func (h HospitalInvoice) Clone() HospitalInvoice {
	h.Items = append([]InvoiceItem(nil), h.Items...)
	h.Payments = append([]Payment(nil), h.Payments...)
	h.DueDate = cloneTime(h.DueDate)
	return h
}

// Clone returns a deep copy.
func (a AuditEntry) Clone() AuditEntry {
	a.Changes = append([]FieldChange(nil), a.Changes...)
	return a
}

// Clone returns a deep copy.
func (c ChangeRecord) Clone() ChangeRecord {
	c.SyncedAt = cloneTime(c.SyncedAt)
	return c
}
