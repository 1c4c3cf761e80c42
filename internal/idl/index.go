package idl

import (
	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/schema"
)

// IndexToRow resolves a URI-index tuple to a row, per spec.md §4.2. Tables
// with no declared index columns are only addressable by UUID (the
// "only-child under a parent" case from spec.md §3's addressability
// invariant).
func (db *DB) IndexToRow(table *schema.Table, indexValues []string) (*Row, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts, ok := db.tables[table.Name]
	if !ok {
		return nil, false
	}
	if len(table.IndexColumns) == 0 {
		if len(indexValues) != 1 {
			return nil, false
		}
		id, err := uuid.Parse(indexValues[0])
		if err != nil {
			return nil, false
		}
		row, ok := ts.rows[id]
		return row, ok
	}
	if len(indexValues) != len(table.IndexColumns) {
		return nil, false
	}
	for _, row := range ts.rows {
		if rowMatchesIndex(row, table.IndexColumns, indexValues) {
			return row, true
		}
	}
	return nil, false
}

func rowMatchesIndex(row *Row, cols []string, values []string) bool {
	for i, col := range cols {
		v, ok := row.values[col]
		if !ok || v.String() != values[i] {
			return false
		}
	}
	return true
}

// RowToIndex is the reverse of IndexToRow: the URI-index tuple that
// addresses row.
func RowToIndex(table *schema.Table, row *Row) []string {
	if len(table.IndexColumns) == 0 {
		return []string{row.ID.String()}
	}
	values := make([]string, len(table.IndexColumns))
	for i, col := range table.IndexColumns {
		if v, ok := row.values[col]; ok {
			values[i] = v.String()
		}
	}
	return values
}

// RowsMatchingRef returns every row of childTable whose reference column
// refColumn (relation=parent, i.e. a back-reference) points at parent.
func (db *DB) RowsMatchingRef(childTable, refColumn string, parent uuid.UUID) []*Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts, ok := db.tables[childTable]
	if !ok {
		return nil
	}
	var out []*Row
	for _, row := range ts.rows {
		ref, ok := row.refs[refColumn]
		if !ok || ref.Scalar == nil {
			continue
		}
		if *ref.Scalar == parent {
			out = append(out, row)
		}
	}
	return out
}
