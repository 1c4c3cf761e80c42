package resource

import (
	"context"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

// PathOf computes the absolute REST path of an arbitrary row, walking up
// the schema hierarchy to System. This is the Reference column "emit a
// URI" case of spec.md §4.4 step 4 and the row_to_index reverse mapping of
// §4.2, generalized to the whole ancestor chain rather than one hop.
//
// A row anywhere along the walk may belong to an on-demand table whose own
// back-reference column isn't fetched yet, so PathOf fetches as it goes
// rather than assuming the caller already did.
func PathOf(ctx context.Context, s *schema.Schema, db *idl.DB, table *schema.Table, row *idl.Row) string {
	if row == nil {
		return ""
	}
	if table.Name == s.Root {
		return ""
	}
	_ = db.EnsureRowFetched(ctx, row)

	if col, parentTable, ok := ownBackReference(s, table); ok {
		refVal, ok := row.GetRef(col)
		if ok && refVal.Scalar != nil {
			parentRow := db.Row(parentTable.Name, *refVal.Scalar)
			parentPath := PathOf(ctx, s, db, parentTable, parentRow)
			index := idl.RowToIndex(table, row)
			return parentPath + "/" + url.PathEscape(table.PluralName) + indexSuffix(index)
		}
	}

	if table.Parent != nil {
		colName := forwardColumnInto(table.Parent, table.Name)
		parentRow := findContainingRow(ctx, db, table.Parent, colName, row.ID)
		parentPath := PathOf(ctx, s, db, table.Parent, parentRow)
		var index []string
		if len(table.IndexColumns) > 0 {
			index = idl.RowToIndex(table, row)
		} else if parentRow != nil {
			index = indexWithinForward(parentRow, colName, row.ID)
		}
		return parentPath + "/" + url.PathEscape(colName) + indexSuffix(index)
	}

	index := idl.RowToIndex(table, row)
	return "/" + url.PathEscape(table.PluralName) + indexSuffix(index)
}

func indexSuffix(index []string) string {
	out := ""
	for _, seg := range index {
		out += "/" + url.PathEscape(seg)
	}
	return out
}

// ownBackReference reports whether table carries its own parent-pointer
// reference column (the back-reference case), returning that column's
// name and the referenced parent table.
func ownBackReference(s *schema.Schema, table *schema.Table) (string, *schema.Table, bool) {
	for _, ref := range table.Refs {
		if ref.RelKind == schema.RelationParent {
			return ref.Name, s.Table(ref.RefTable), true
		}
	}
	return "", nil, false
}

func forwardColumnInto(parent *schema.Table, childName string) string {
	for _, ref := range parent.Refs {
		if ref.RelKind == schema.RelationChild && ref.RefTable == childName {
			return ref.Name
		}
	}
	return ""
}

func findContainingRow(ctx context.Context, db *idl.DB, parent *schema.Table, column string, childID uuid.UUID) *idl.Row {
	for _, row := range db.Rows(parent.Name) {
		_ = db.EnsureRowFetched(ctx, row)
		refVal, ok := row.GetRef(column)
		if !ok {
			continue
		}
		if refVal.Scalar != nil && *refVal.Scalar == childID {
			return row
		}
		for _, id := range refVal.List {
			if id == childID {
				return row
			}
		}
		for _, id := range refVal.KV {
			if id == childID {
				return row
			}
		}
	}
	return nil
}

func indexWithinForward(parentRow *idl.Row, column string, childID uuid.UUID) []string {
	refVal, ok := parentRow.GetRef(column)
	if !ok {
		return nil
	}
	for i, id := range refVal.List {
		if id == childID {
			return []string{strconv.Itoa(i)}
		}
	}
	for _, k := range refVal.KVOrder {
		if refVal.KV[k] == childID {
			return []string{k}
		}
	}
	return nil
}
