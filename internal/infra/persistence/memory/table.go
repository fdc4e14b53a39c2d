package memory

import (
	"slices"
	"time"

	"clinicore/pkg/domain"
)

// entity is satisfied by every stored row kind that embeds domain.Base.
type entity[T any] interface {
	Clone() T
	EntityID() string
	Created() time.Time
}

// entityPtr lets generic helpers reach the embedded base of a row.
type entityPtr[T any] interface {
	*T
	BaseRef() *domain.Base
}

type normalizer interface {
	Normalize()
}

// table keeps rows keyed by id while remembering insertion order, which is
// the default list order.
type table[T any] struct {
	key   func(T) string
	clone func(T) T
	rows  map[string]T
	order []string
}

func newTable[T any](key func(T) string, clone func(T) T) *table[T] {
	return &table[T]{key: key, clone: clone, rows: make(map[string]T)}
}

func newEntityTable[T entity[T]]() *table[T] {
	return newTable(func(v T) string { return v.EntityID() }, func(v T) T { return v.Clone() })
}

func (t *table[T]) copy() *table[T] {
	cp := &table[T]{
		key:   t.key,
		clone: t.clone,
		rows:  make(map[string]T, len(t.rows)),
		order: slices.Clone(t.order),
	}
	for id, row := range t.rows {
		cp.rows[id] = t.clone(row)
	}
	return cp
}

func (t *table[T]) len() int { return len(t.rows) }

func (t *table[T]) has(id string) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table[T]) get(id string) (T, bool) {
	row, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, false
	}
	return t.clone(row), true
}

func (t *table[T]) put(row T) {
	id := t.key(row)
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = t.clone(row)
}

func (t *table[T]) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	if idx := slices.Index(t.order, id); idx >= 0 {
		t.order = slices.Delete(t.order, idx, idx+1)
	}
	return true
}

// all returns clones in insertion order.
func (t *table[T]) all() []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.clone(t.rows[id]))
	}
	return out
}

// find returns the first row in insertion order satisfying match.
func (t *table[T]) find(match func(T) bool) (T, bool) {
	for _, id := range t.order {
		if row := t.rows[id]; match(row) {
			return t.clone(row), true
		}
	}
	var zero T
	return zero, false
}

// ids returns the ids of rows satisfying match, in insertion order.
func (t *table[T]) ids(match func(T) bool) []string {
	var out []string
	for _, id := range t.order {
		if match(t.rows[id]) {
			out = append(out, id)
		}
	}
	return out
}

// load replaces the contents from an ordered slice; later duplicates win but
// keep the first position.
func (t *table[T]) load(rows []T) {
	t.rows = make(map[string]T, len(rows))
	t.order = t.order[:0]
	for _, row := range rows {
		if t.key(row) == "" {
			continue
		}
		t.put(row)
	}
}
