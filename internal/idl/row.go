package idl

import (
	"sort"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/schema"
)

// RefValue holds the resolved row ids for one reference column: a scalar
// (n_max==1), an ordered list, or a key/value map keyed by a typed, stringified
// key, per spec.md §4.5's reference column semantics.
type RefValue struct {
	Scalar *uuid.UUID
	List   []uuid.UUID
	KV     map[string]uuid.UUID
	// KVOrder preserves insertion order for deterministic serialization.
	KVOrder []string
}

// Row is one addressable row of a table in the replica.
type Row struct {
	Table *schema.Table
	ID    uuid.UUID

	values    map[string]Value
	mapValues map[string]map[string]Value
	refs      map[string]*RefValue
	fetched   map[string]bool

	tracking *trackingRecord
}

func newRow(t *schema.Table, id uuid.UUID) *Row {
	return &Row{
		Table:     t,
		ID:        id,
		values:    make(map[string]Value),
		mapValues: make(map[string]map[string]Value),
		refs:      make(map[string]*RefValue),
		fetched:   make(map[string]bool),
		tracking:  &trackingRecord{Columns: make(map[string]bool)},
	}
}

// StringValue implements schema.RowValues for dynamic-category resolution.
func (r *Row) StringValue(column string) (string, bool) {
	if v, ok := r.values[column]; ok {
		return v.String(), true
	}
	return "", false
}

// Get returns the scalar value of a column. ok is false if the column is an
// on-demand readonly column that has not been fetched yet, or does not exist.
func (r *Row) Get(column string) (Value, bool) {
	if r.isPendingFetch(column) {
		return Value{}, false
	}
	if v, ok := r.values[column]; ok {
		return v, true
	}
	if col, ok := r.Table.Columns[column]; ok {
		return Empty(col.Type), true
	}
	return Value{}, false
}

// GetMap returns a map column's current value.
func (r *Row) GetMap(column string) (map[string]Value, bool) {
	if r.isPendingFetch(column) {
		return nil, false
	}
	if m, ok := r.mapValues[column]; ok {
		return m, true
	}
	if _, ok := r.Table.MapColumns[column]; ok {
		return map[string]Value{}, true
	}
	return nil, false
}

// GetRef returns a reference column's current value.
func (r *Row) GetRef(column string) (*RefValue, bool) {
	if r.isPendingFetch(column) {
		return nil, false
	}
	if ref, ok := r.refs[column]; ok {
		return ref, true
	}
	if _, ok := r.Table.Refs[column]; ok {
		return &RefValue{}, true
	}
	return nil, false
}

func (r *Row) isPendingFetch(column string) bool {
	if r.Table.OnDemand == schema.OnDemandNone {
		return false
	}
	for _, c := range r.Table.OnDemandReadonly {
		if c == column {
			return !r.fetched[column]
		}
	}
	return false
}

// ChangedColumns returns the set of columns touched by every commit that
// modified this row since the last ClearTracking, sorted for determinism.
func (r *Row) ChangedColumns() []string {
	cols := make([]string, 0, len(r.tracking.Columns))
	for c := range r.tracking.Columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Tracking exposes the row's change-tracking record.
func (r *Row) Tracking() Tracking {
	return Tracking{
		CreateSeqno: r.tracking.CreateSeqno,
		UpdateSeqno: r.tracking.UpdateSeqno,
		DeleteSeqno: r.tracking.DeleteSeqno,
	}
}

// Tracking is the read-only view of a row's change-tracking sequence
// numbers, per spec.md §4.2.
type Tracking struct {
	CreateSeqno uint64
	UpdateSeqno uint64
	DeleteSeqno uint64
}

type trackingRecord struct {
	CreateSeqno uint64
	UpdateSeqno uint64
	DeleteSeqno uint64
	Columns     map[string]bool
}
