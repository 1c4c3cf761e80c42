package write

import (
	"context"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/validate"
)

// Delete removes an instance and, recursively, every child/back-reference
// row required to remove along with it, per spec.md §4.5. The cascade is
// planned (walked read-only) first; DELETE validators then run over every
// row the plan collects, reading their still-live pre-delete state, before
// any row is actually staged for removal — this gets spec.md §4.6's
// "DELETE validators see the pre-state of the row being removed" for free,
// since nothing is applied to the replica until Commit regardless of when
// txn.Delete is called (internal/idl/txn.go).
func (e *Engine) Delete(ctx context.Context, head *resource.Resource) error {
	tail := head.Tail()
	if tail.IsCollection() || tail.Row == nil {
		return apierr.New(apierr.MethodNotAllowed, "delete requires an instance uri")
	}
	if e.Schema.Immutable(tail.Table) {
		return apierr.New(apierr.MethodNotAllowed, "table %q is immutable", tail.Table.Name)
	}

	plan := &deletePlan{}
	ok, err := e.planDelete(ctx, plan, tail.Table, tail.Row, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.New(apierr.MethodNotAllowed, "cannot delete %q: a required child row could not be deleted", tail.Table.Name)
	}

	ledger := validate.NewLedger()
	for _, item := range plan.items {
		ledger.Record(validate.Mutation{Op: validate.OpDelete, Row: item.Row, Table: item.Table, ParentRow: item.ParentRow, ParentTable: item.ParentTable})
	}
	if err := e.validateLedger(ctx, ledger); err != nil {
		return err
	}

	txn := e.DB.OpenTransaction(ctx)
	for _, item := range plan.items {
		txn.Delete(item.Row)
	}

	if tail.Relation == resource.RelationTopLevel {
		e.unlinkFromEveryReference(txn, tail.Table.Name, tail.Row.ID)
	}

	if _, err := txn.Wait(ctx); err != nil {
		return apierr.New(apierr.TransactionFailed, "commit: %v", err)
	}
	return nil
}

type deleteItem struct {
	Table       *schema.Table
	Row         *idl.Row
	ParentTable *schema.Table
	ParentRow   *idl.Row
}

type deletePlan struct {
	items []deleteItem
}

// planDelete walks row's required children first, collecting every row
// that must be removed (children before parents) into plan, returning
// false (row retained, nothing added for it) if any required child could
// not be planned for removal. Children reached through a non-
// configuration-category edge, or whose table is immutable, are skipped
// entirely (spec.md §4.5 step 1) — they are neither collected nor counted
// against row's own deletion.
func (e *Engine) planDelete(ctx context.Context, plan *deletePlan, table *schema.Table, row *idl.Row, parentTable *schema.Table, parentRow *idl.Row) (bool, error) {
	if err := e.DB.EnsureRowFetched(ctx, row); err != nil {
		return false, apierr.New(apierr.TransactionFailed, "fetching %q: %v", table.Name, err)
	}

	allDeleted := true
	for _, child := range e.requiredChildren(table, row) {
		ok, err := e.planDelete(ctx, plan, child.Table, child.Row, table, row)
		if err != nil {
			return false, err
		}
		if !ok {
			allDeleted = false
		}
	}
	if !allDeleted {
		return false, nil
	}

	plan.items = append(plan.items, deleteItem{Table: table, Row: row, ParentTable: parentTable, ParentRow: parentRow})
	return true, nil
}

type childCandidate struct {
	Table *schema.Table
	Row   *idl.Row
}

// requiredChildren collects every child row reachable from row via a
// forward child reference or a back-reference, excluding rows whose table
// is immutable or whose parent-edge category is not configuration.
func (e *Engine) requiredChildren(table *schema.Table, row *idl.Row) []childCandidate {
	var out []childCandidate

	for _, ref := range table.Refs {
		if ref.RelKind != schema.RelationChild {
			continue
		}
		childTable := e.Schema.Table(ref.RefTable)
		if childTable == nil || !requiredEdge(e.Schema, childTable) {
			continue
		}
		refVal, ok := row.GetRef(ref.Name)
		if !ok {
			continue
		}
		for _, id := range refValueIDs(refVal) {
			if childRow := e.DB.Row(childTable.Name, id); childRow != nil {
				out = append(out, childCandidate{Table: childTable, Row: childRow})
			}
		}
	}

	for _, childTable := range e.Schema.Tables {
		col, ok := schema.BackReferenceColumn(childTable, table.Name)
		if !ok || !requiredEdge(e.Schema, childTable) {
			continue
		}
		for _, childRow := range e.DB.RowsMatchingRef(childTable.Name, col, row.ID) {
			out = append(out, childCandidate{Table: childTable, Row: childRow})
		}
	}

	return out
}

// refValueIDs flattens a RefValue's scalar/list/kv ids into one slice.
func refValueIDs(v *idl.RefValue) []uuid.UUID {
	if v == nil {
		return nil
	}
	if v.Scalar != nil {
		return []uuid.UUID{*v.Scalar}
	}
	if len(v.List) > 0 {
		return v.List
	}
	ids := make([]uuid.UUID, 0, len(v.KV))
	for _, k := range v.KVOrder {
		ids = append(ids, v.KV[k])
	}
	return ids
}

// requiredEdge reports whether childTable must be cascaded into: its table
// is not immutable and the edge that reaches it from its parent carries
// configuration category.
func requiredEdge(s *schema.Schema, childTable *schema.Table) bool {
	if s.Immutable(childTable) {
		return false
	}
	cat, ok := s.ParentReferenceCategory(childTable)
	if !ok {
		return true
	}
	return cat == schema.Configuration
}

// unlinkFromEveryReference removes id from every reference column across
// the DB that points at it, per spec.md §4.5 step 3 ("for top-level
// reference terminal nodes... remove the row from every other reference
// column pointing to it").
func (e *Engine) unlinkFromEveryReference(txn *idl.Transaction, tableName string, id uuid.UUID) {
	for _, site := range e.Schema.ReferenceMap[tableName] {
		for _, candidate := range e.DB.Rows(site.Table) {
			refVal, ok := candidate.GetRef(site.Column)
			if !ok {
				continue
			}
			if trimmed, changed := removeFromRefValue(refVal, id); changed {
				txn.SetRef(candidate, site.Column, trimmed)
			}
		}
	}
}

// removeFromRefValue returns a copy of v with id removed, and whether it
// was actually present.
func removeFromRefValue(v *idl.RefValue, id uuid.UUID) (*idl.RefValue, bool) {
	if v.Scalar != nil {
		if *v.Scalar == id {
			return &idl.RefValue{}, true
		}
		return v, false
	}
	if len(v.List) > 0 {
		idx := -1
		for i, existing := range v.List {
			if existing == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return v, false
		}
		list := make([]uuid.UUID, 0, len(v.List)-1)
		list = append(list, v.List[:idx]...)
		list = append(list, v.List[idx+1:]...)
		return &idl.RefValue{List: list}, true
	}
	if len(v.KV) > 0 {
		var key string
		found := false
		for k, existing := range v.KV {
			if existing == id {
				key, found = k, true
				break
			}
		}
		if !found {
			return v, false
		}
		kv := make(map[string]uuid.UUID, len(v.KV)-1)
		order := make([]string, 0, len(v.KVOrder)-1)
		for _, k := range v.KVOrder {
			if k == key {
				continue
			}
			kv[k] = v.KV[k]
			order = append(order, k)
		}
		return &idl.RefValue{KV: kv, KVOrder: order}, true
	}
	return v, false
}
