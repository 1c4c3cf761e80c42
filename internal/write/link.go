package write

import (
	"context"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
)

// linkIntoParent establishes the new row's place in the tree, dispatching
// on how the collection URI that created it reached tail's table, per
// spec.md §4.3's three relation kinds. RelationChild appends the new row's
// id into the parent's own forward reference column; RelationBackReference
// sets the new row's own back-pointer column to the parent's id;
// RelationTopLevel needs no structural link here (its wiring, if any, comes
// from the body's "referenced_by" entries instead).
func (e *Engine) linkIntoParent(ctx context.Context, txn *idl.Transaction, parent *resource.Resource, tail *resource.Resource, row *idl.Row, config map[string]any) error {
	switch tail.Relation {
	case resource.RelationChild:
		if parent == nil || parent.Row == nil {
			return apierr.New(apierr.DataValidationFailed, "cannot create %s without a parent row", tail.Table.Name)
		}
		ref, ok := parent.Table.Refs[tail.Column]
		if !ok {
			return apierr.New(apierr.TransactionFailed, "schema missing forward reference %q on %q", tail.Column, parent.Table.Name)
		}
		return appendForwardRef(txn, parent.Row, ref, row.ID, config)

	case resource.RelationBackReference:
		if parent == nil || parent.Row == nil {
			return apierr.New(apierr.DataValidationFailed, "cannot create %s without a parent row", tail.Table.Name)
		}
		col, ok := schema.BackReferenceColumn(tail.Table, parent.Table.Name)
		if !ok {
			return apierr.New(apierr.TransactionFailed, "schema missing back-reference column on %q for parent %q", tail.Table.Name, parent.Table.Name)
		}
		id := parent.Row.ID
		txn.SetRef(row, col, &idl.RefValue{Scalar: &id})
		return nil

	case resource.RelationTopLevel:
		return nil
	}
	return nil
}

// appendForwardRef adds childID into parent's forward reference column,
// preserving any ids already present, per the reference's scalar/list/kv
// shape.
func appendForwardRef(txn *idl.Transaction, parentRow *idl.Row, ref *schema.Reference, childID uuid.UUID, config map[string]any) error {
	current, _ := parentRow.GetRef(ref.Name)
	if current == nil {
		current = &idl.RefValue{}
	}

	switch {
	case ref.Scalar():
		id := childID
		txn.SetRef(parentRow, ref.Name, &idl.RefValue{Scalar: &id})
		return nil

	case ref.KVType:
		key, ok := forwardRefKey(ref, config)
		if !ok {
			return apierr.New(apierr.DataValidationFailed, "reference %q requires key %q in the body", ref.Name, ref.KeyName).WithField(ref.KeyName, "required")
		}
		merged := make(map[string]uuid.UUID, len(current.KV)+1)
		for k, v := range current.KV {
			merged[k] = v
		}
		order := current.KVOrder
		if _, exists := merged[key]; !exists {
			order = append(append([]string{}, current.KVOrder...), key)
		}
		merged[key] = childID
		txn.SetRef(parentRow, ref.Name, &idl.RefValue{KV: merged, KVOrder: order})
		return nil

	default: // ordered list
		list := append(append([]uuid.UUID{}, current.List...), childID)
		txn.SetRef(parentRow, ref.Name, &idl.RefValue{List: list})
		return nil
	}
}

// forwardRefKey extracts the k/v key a new child must be filed under, from
// the child's own configuration body (the column named by ref.KeyName).
func forwardRefKey(ref *schema.Reference, config map[string]any) (string, bool) {
	v, ok := config[ref.KeyName]
	if !ok {
		return "", false
	}
	return stringifyNative(v), true
}
