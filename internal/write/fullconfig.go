package write

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/validate"
)

// FullConfigTarget selects which declarative full-configuration namespace a
// request addresses, per spec.md §4.8's "/system/full-configuration?type=".
type FullConfigTarget string

const (
	Running FullConfigTarget = "running"
	Startup FullConfigTarget = "startup"
)

// startupStore holds the last-written startup configuration document,
// per-schema. A startup full-configuration write never touches the running
// replica directly; only an explicit PromoteStartup call applies it,
// mirroring the source's two-namespace persisted/running split without
// requiring a second in-memory IDL replica.
type startupStore struct {
	mu  sync.Mutex
	doc map[string]any
}

var startupDocs sync.Map // *schema.Schema -> *startupStore

func startupFor(s *schema.Schema) *startupStore {
	v, _ := startupDocs.LoadOrStore(s, &startupStore{})
	return v.(*startupStore)
}

// ApplyFullConfiguration replaces the subtree rooted at System with doc's
// "configuration" tree, per spec.md §4.5. A startup-target write is staged
// only in the snapshot store; use PromoteStartup to apply it to running.
func (e *Engine) ApplyFullConfiguration(ctx context.Context, target FullConfigTarget, doc map[string]any) error {
	if target == Startup {
		store := startupFor(e.Schema)
		store.mu.Lock()
		store.doc = doc
		store.mu.Unlock()
		return nil
	}
	return e.applyFullConfigurationToRunning(ctx, doc)
}

// PromoteStartup applies the most recently written startup document to the
// running replica, the "explicit copy operation" of spec.md §4.8.
func (e *Engine) PromoteStartup(ctx context.Context) error {
	store := startupFor(e.Schema)
	store.mu.Lock()
	doc := store.doc
	store.mu.Unlock()
	if doc == nil {
		return nil
	}
	return e.applyFullConfigurationToRunning(ctx, doc)
}

// StartupDocument returns the most recently written startup
// full-configuration document, or nil if none has been written yet. The
// Front Door uses this to serve GET .../full-configuration?type=startup,
// which has no running-replica counterpart to read through read.Engine.
func (e *Engine) StartupDocument() map[string]any {
	store := startupFor(e.Schema)
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.doc
}

type fullConfigCtx struct {
	txn      *idl.Transaction
	rowIndex map[string]*idl.Row // "table/synthetic-path" -> created/updated row
	rollback []*idl.Row
	ledger   *validate.Ledger
}

func (e *Engine) applyFullConfigurationToRunning(ctx context.Context, doc map[string]any) error {
	root := e.Schema.Table(e.Schema.Root)
	if root == nil {
		return apierr.New(apierr.TransactionFailed, "schema has no root table")
	}
	rootRows := e.DB.Rows(root.Name)
	if len(rootRows) == 0 {
		return apierr.New(apierr.TransactionFailed, "replica has no System row")
	}
	rootRow := rootRows[0]

	config, _ := doc["configuration"].(map[string]any)
	if config == nil {
		config = map[string]any{}
	}

	txn := e.DB.OpenTransaction(ctx)
	fc := &fullConfigCtx{txn: txn, rowIndex: make(map[string]*idl.Row), ledger: validate.NewLedger()}

	if err := e.applyConfiguration(ctx, txn, root, rootRow, childOwnConfig(e.Schema, root, config), rootRow, false); err != nil {
		return err
	}
	fc.rowIndex[root.Name+"/"] = rootRow
	fc.ledger.Record(validate.Mutation{Op: validate.OpUpdate, Row: rootRow, Table: root, Body: config})

	if err := e.fullConfigPass1(ctx, fc, root, rootRow, "", config); err != nil {
		e.rollbackInserts(txn, fc)
		return err
	}
	if err := e.fullConfigPass2(ctx, fc, root, rootRow, "", config); err != nil {
		e.rollbackInserts(txn, fc)
		return err
	}

	if err := e.validateLedger(ctx, fc.ledger); err != nil {
		e.rollbackInserts(txn, fc)
		return err
	}

	if _, err := txn.Wait(ctx); err != nil {
		return apierr.New(apierr.TransactionFailed, "commit: %v", err)
	}
	return nil
}

// fullConfigPass1 creates or updates every descendant row with
// configuration-only columns (pass 1 of spec.md §4.5's bootstrap-cycle
// break), keyed by a synthetic path so pass 2 can find siblings that did
// not exist yet when this node was being built. Per spec.md §4.5 "present
// rows are created or updated... absent rows are deleted": each item is
// first matched against row's current children (by index-column value, or
// by position for index-less tables); a match is updated in place, a miss
// is inserted, and any previously-existing child left unmatched once the
// whole list has been processed is deleted (_examples/original_source/
// ops/_write.py's setup_table/setup_row do the same match-or-insert plus
// delete-the-rest).
func (e *Engine) fullConfigPass1(ctx context.Context, fc *fullConfigCtx, table *schema.Table, row *idl.Row, path string, config map[string]any) error {
	for _, childName := range table.Children {
		child := e.Schema.Table(childName)
		if child == nil {
			continue
		}
		ref := forwardChildRefOf(table, childName)
		key := child.PluralName
		if ref != nil {
			key = ref.Name
		}
		raw, present := config[key]
		existing := e.existingFullConfigChildren(table, row, child, ref)
		used := make(map[uuid.UUID]bool, len(existing))

		if !present {
			if err := e.deleteAbsentChildren(ctx, fc, table, row, child, existing, used); err != nil {
				return err
			}
			continue
		}

		items, kvKeys := flattenConfigItems(ref, raw)
		for i, item := range items {
			itemConfig, _ := item.(map[string]any)
			if itemConfig == nil {
				continue
			}
			childPath := path + "/" + key + "/" + indexLabel(i, kvKeys)

			childRow := matchExistingChild(child, itemConfig, existing, used)
			isCreate := childRow == nil
			if isCreate {
				childRow = fc.txn.Insert(child)
				if backCol, ok := schema.BackReferenceColumn(child, table.Name); ok {
					id := row.ID
					fc.txn.SetRef(childRow, backCol, &idl.RefValue{Scalar: &id})
				}
			} else {
				used[childRow.ID] = true
			}

			var existingRow *idl.Row
			if !isCreate {
				existingRow = childRow
			}
			if err := e.applyConfiguration(ctx, fc.txn, child, childRow, childOwnConfig(e.Schema, child, itemConfig), existingRow, isCreate); err != nil {
				return err
			}
			fc.rowIndex[child.Name+childPath] = childRow
			if isCreate {
				fc.rollback = append(fc.rollback, childRow)
				fc.ledger.Record(validate.Mutation{Op: validate.OpCreate, Row: childRow, Table: child, ParentRow: row, ParentTable: table, Body: itemConfig})
			} else {
				fc.ledger.Record(validate.Mutation{Op: validate.OpUpdate, Row: childRow, Table: child, ParentRow: row, ParentTable: table, Body: itemConfig})
			}

			if err := e.fullConfigPass1(ctx, fc, child, childRow, childPath, itemConfig); err != nil {
				return err
			}
		}

		if err := e.deleteAbsentChildren(ctx, fc, table, row, child, existing, used); err != nil {
			return err
		}
	}
	return nil
}

// existingFullConfigChildren returns row's current children of table child,
// reached the same way fullConfigPass1 reaches them for writing: through
// parent's own forward reference column, or through child's back-reference
// column when there is none. Returned rows reflect only already-committed
// state (fc.txn's staged inserts are never visible through the Row API
// until Commit, internal/idl/txn.go), which is exactly the "before" snapshot
// matching needs.
func (e *Engine) existingFullConfigChildren(table *schema.Table, row *idl.Row, child *schema.Table, ref *schema.Reference) []*idl.Row {
	if ref != nil {
		refVal, _ := row.GetRef(ref.Name)
		var out []*idl.Row
		for _, id := range refValueIDs(refVal) {
			if r := e.DB.Row(child.Name, id); r != nil {
				out = append(out, r)
			}
		}
		return out
	}
	backCol, ok := schema.BackReferenceColumn(child, table.Name)
	if !ok {
		return nil
	}
	return e.DB.RowsMatchingRef(child.Name, backCol, row.ID)
}

// matchExistingChild finds the candidate row itemConfig describes, by
// comparing child's own index-column values (tables with no index columns
// have no business key to match on, so the first unused candidate is taken
// positionally — the "only addressable by UUID" case of spec.md §3).
func matchExistingChild(child *schema.Table, itemConfig map[string]any, candidates []*idl.Row, used map[uuid.UUID]bool) *idl.Row {
	if len(child.IndexColumns) == 0 {
		for _, c := range candidates {
			if !used[c.ID] {
				return c
			}
		}
		return nil
	}
	for _, c := range candidates {
		if used[c.ID] {
			continue
		}
		if childMatchesIndex(c, child.IndexColumns, itemConfig) {
			return c
		}
	}
	return nil
}

func childMatchesIndex(row *idl.Row, indexColumns []string, itemConfig map[string]any) bool {
	for _, col := range indexColumns {
		want, ok := itemConfig[col]
		if !ok {
			return false
		}
		got, ok := row.StringValue(col)
		if !ok || got != stringifyNative(want) {
			return false
		}
	}
	return true
}

// deleteAbsentChildren removes every row in existing not marked used,
// per spec.md §4.5 "absent rows are deleted". Deletion reuses planDelete's
// required-children cascade and retention gating (internal/write/delete.go)
// — the same rule an explicit DELETE request applies — so a row with a
// required child that itself could not be removed is retained rather than
// orphaned.
func (e *Engine) deleteAbsentChildren(ctx context.Context, fc *fullConfigCtx, table *schema.Table, row *idl.Row, child *schema.Table, existing []*idl.Row, used map[uuid.UUID]bool) error {
	for _, candidate := range existing {
		if used[candidate.ID] {
			continue
		}
		plan := &deletePlan{}
		ok, err := e.planDelete(ctx, plan, child, candidate, table, row)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, item := range plan.items {
			fc.txn.Delete(item.Row)
			fc.ledger.Record(validate.Mutation{Op: validate.OpDelete, Row: item.Row, Table: item.Table, ParentRow: item.ParentRow, ParentTable: item.ParentTable})
		}
	}
	return nil
}

// fullConfigPass2 now that every row in the subtree exists, sets the
// forward reference columns linking parents to their freshly-created
// children, completing the bootstrap-cycle break.
func (e *Engine) fullConfigPass2(ctx context.Context, fc *fullConfigCtx, table *schema.Table, row *idl.Row, path string, config map[string]any) error {
	for _, childName := range table.Children {
		child := e.Schema.Table(childName)
		if child == nil {
			continue
		}
		ref := forwardChildRefOf(table, childName)
		key := child.PluralName
		if ref != nil {
			key = ref.Name
		}
		raw, present := config[key]
		if !present {
			// The key is entirely absent from the submitted document: pass 1
			// already deleted every row this column used to point at, so the
			// column itself must be cleared too, or it would keep referencing
			// now-deleted rows.
			if ref != nil {
				setForwardRefAll(fc.txn, row, ref, nil)
			}
			continue
		}
		items, kvKeys := flattenConfigItems(ref, raw)

		if ref != nil {
			ids := make([]idChild, 0, len(items))
			for i := range items {
				childPath := path + "/" + key + "/" + indexLabel(i, kvKeys)
				childRow := fc.rowIndex[child.Name+childPath]
				if childRow == nil {
					continue
				}
				label := ""
				if i < len(kvKeys) {
					label = kvKeys[i]
				}
				ids = append(ids, idChild{id: childRow.ID, key: label})
			}
			setForwardRefAll(fc.txn, row, ref, ids)
		}

		for i, item := range items {
			itemConfig, _ := item.(map[string]any)
			if itemConfig == nil {
				continue
			}
			childPath := path + "/" + key + "/" + indexLabel(i, kvKeys)
			childRow := fc.rowIndex[child.Name+childPath]
			if childRow == nil {
				continue
			}
			if err := e.fullConfigPass2(ctx, fc, child, childRow, childPath, itemConfig); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) rollbackInserts(txn *idl.Transaction, fc *fullConfigCtx) {
	for _, row := range fc.rollback {
		txn.Delete(row)
	}
}

// childOwnConfig strips from config every key that names one of table's own
// Children (the back-reference plural name, or the forward child ref's own
// name) before it is handed to applyConfiguration. Those keys address rows
// nested one level deeper in the document — fullConfigPass1's recursive
// call into each child table consumes them directly from the unfiltered
// config — and are never themselves a column, map-column or non-parent
// reference of table. A forward child ref (declared on table itself, e.g.
// system's own "vrfs") is already a legitimate table.Refs entry and would
// pass applyConfiguration's validation unfiltered, but a back-reference
// child (declared only on the child's side, e.g. route's "vrf") has no
// such entry on table and would otherwise be rejected as an unknown key.
func childOwnConfig(s *schema.Schema, table *schema.Table, config map[string]any) map[string]any {
	if len(table.Children) == 0 {
		return config
	}
	var strip map[string]bool
	for _, childName := range table.Children {
		child := s.Table(childName)
		if child == nil {
			continue
		}
		key := child.PluralName
		if ref := forwardChildRefOf(table, childName); ref != nil {
			key = ref.Name
		}
		if _, ok := table.Refs[key]; ok {
			continue // a legitimate column on table itself; keep it
		}
		if _, present := config[key]; !present {
			continue
		}
		if strip == nil {
			strip = make(map[string]bool, len(table.Children))
		}
		strip[key] = true
	}
	if strip == nil {
		return config
	}
	filtered := make(map[string]any, len(config))
	for k, v := range config {
		if strip[k] {
			continue
		}
		filtered[k] = v
	}
	return filtered
}

func forwardChildRefOf(table *schema.Table, childName string) *schema.Reference {
	for _, ref := range table.Refs {
		if ref.RelKind == schema.RelationChild && ref.RefTable == childName {
			return ref
		}
	}
	return nil
}

// flattenConfigItems normalizes a forward-child-ref value (list/kv/scalar)
// or a plural back-reference collection (always a list) into a flat slice
// of item documents, plus the kv keys in the same order when applicable.
func flattenConfigItems(ref *schema.Reference, raw any) ([]any, []string) {
	if ref == nil {
		list, _ := raw.([]any)
		return list, nil
	}
	switch {
	case ref.Scalar():
		if raw == nil {
			return nil, nil
		}
		return []any{raw}, nil
	case ref.KVType:
		m, _ := raw.(map[string]any)
		items := make([]any, 0, len(m))
		keys := make([]string, 0, len(m))
		for k, v := range m {
			items = append(items, v)
			keys = append(keys, k)
		}
		return items, keys
	default:
		list, _ := raw.([]any)
		return list, nil
	}
}

func indexLabel(i int, kvKeys []string) string {
	if i < len(kvKeys) {
		return kvKeys[i]
	}
	return strconv.Itoa(i)
}

type idChild struct {
	id  uuid.UUID
	key string
}

func setForwardRefAll(txn *idl.Transaction, row *idl.Row, ref *schema.Reference, ids []idChild) {
	switch {
	case ref.Scalar():
		if len(ids) == 0 {
			txn.SetRef(row, ref.Name, &idl.RefValue{})
			return
		}
		id := ids[0].id
		txn.SetRef(row, ref.Name, &idl.RefValue{Scalar: &id})
	case ref.KVType:
		kv := make(map[string]uuid.UUID, len(ids))
		order := make([]string, 0, len(ids))
		for _, c := range ids {
			kv[c.key] = c.id
			order = append(order, c.key)
		}
		txn.SetRef(row, ref.Name, &idl.RefValue{KV: kv, KVOrder: order})
	default:
		list := make([]uuid.UUID, 0, len(ids))
		for _, c := range ids {
			list = append(list, c.id)
		}
		txn.SetRef(row, ref.Name, &idl.RefValue{List: list})
	}
}
