package audit

import (
	"reflect"

	"clinicore/pkg/domain"
)

// bookkeeping fields never appear in a diff even if an entity lists them.
var bookkeeping = map[string]bool{
	"created_at":       true,
	"updated_at":       true,
	"access_count":     true,
	"last_accessed_at": true,
	"last_accessed_by": true,
}

// Diff compares the audit fields of two versions of an entity. A nil before
// reports every field of after as a change from nil; a nil after reports
// every field of before as a change to nil. Otherwise only differing fields
// are returned, in the entity's field order.
func Diff(before, after domain.Auditable) []domain.FieldChange {
	switch {
	case isNil(before) && isNil(after):
		return nil
	case isNil(before):
		return allFields(after.AuditFields(), true)
	case isNil(after):
		return allFields(before.AuditFields(), false)
	}

	old := make(map[string]any)
	for _, f := range before.AuditFields() {
		old[f.Name] = f.Value
	}
	var out []domain.FieldChange
	for _, f := range after.AuditFields() {
		if bookkeeping[f.Name] {
			continue
		}
		prev, seen := old[f.Name]
		if seen && reflect.DeepEqual(prev, f.Value) {
			continue
		}
		out = append(out, domain.FieldChange{Field: f.Name, OldValue: prev, NewValue: f.Value})
	}
	return out
}

func allFields(fields []domain.Field, created bool) []domain.FieldChange {
	out := make([]domain.FieldChange, 0, len(fields))
	for _, f := range fields {
		if bookkeeping[f.Name] {
			continue
		}
		change := domain.FieldChange{Field: f.Name}
		if created {
			change.NewValue = f.Value
		} else {
			change.OldValue = f.Value
		}
		out = append(out, change)
	}
	return out
}

// fieldMap renders the audit fields as the snapshot stored on an entry.
func fieldMap(a domain.Auditable) map[string]any {
	if isNil(a) {
		return nil
	}
	out := make(map[string]any)
	for _, f := range a.AuditFields() {
		if !bookkeeping[f.Name] {
			out[f.Name] = f.Value
		}
	}
	return out
}

func isNil(a domain.Auditable) bool {
	if a == nil {
		return true
	}
	v := reflect.ValueOf(a)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
