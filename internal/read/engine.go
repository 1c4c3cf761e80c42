// Package read implements the Read Engine: it serializes a resolved
// Resource to JSON at a requested depth, applying the selector, sort,
// filter, keys and pagination query parameters, and triggering on-demand
// column fetches before a row becomes visible, per spec.md §4.4.
package read

import (
	"context"
	"sort"
	"strings"

	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
)

// Engine is the Read Engine.
type Engine struct {
	Schema *schema.Schema
	DB     *idl.DB
}

// New builds a Read Engine over one schema/replica pair.
func New(s *schema.Schema, db *idl.DB) *Engine {
	return &Engine{Schema: s, DB: db}
}

// Serialize computes the JSON value for head's terminal resource, applying
// p (already validated by ParseParams against head.Tail().IsCollection()).
func (e *Engine) Serialize(ctx context.Context, head *resource.Resource, p *Params) (any, error) {
	tail := head.Tail()

	if tail.IsCollection() {
		value, err := e.serializeCollection(ctx, head, tail, p.Depth, p.Selector, p)
		return value, err
	}

	if err := e.ensureFetched(ctx, tail.Row); err != nil {
		return nil, err
	}
	value, err := e.serializeRow(ctx, tail.Table, tail.Row, p.Depth, p.Selector)
	if err != nil {
		return nil, err
	}
	if len(p.Keys) > 0 {
		value = projectKeys(value, p.Keys)
	}
	return value, nil
}

func (e *Engine) ensureFetched(ctx context.Context, row *idl.Row) error {
	if len(row.Table.OnDemandReadonly) == 0 {
		return nil
	}
	if err := e.DB.EnsureRowFetched(ctx, row); err != nil {
		return apierr.New(apierr.TransactionFailed, "fetching on-demand columns: %v", err)
	}
	return nil
}

func (e *Engine) ensureTableFetched(ctx context.Context, table *schema.Table) error {
	if len(table.OnDemandReadonly) == 0 {
		return nil
	}
	if err := e.DB.EnsureTableFetched(ctx, table.Name); err != nil {
		return apierr.New(apierr.TransactionFailed, "fetching on-demand columns: %v", err)
	}
	return nil
}

// serializeRow builds the {"configuration":..,"status":..,"statistics":..}
// document for one row (or just the selected bucket, if selector is set).
func (e *Engine) serializeRow(ctx context.Context, table *schema.Table, row *idl.Row, depth int, selector schema.Category) (map[string]any, error) {
	buckets := map[schema.Category]map[string]any{}
	bucketFor := func(cat schema.Category) map[string]any {
		if cat == schema.Reference {
			cat = schema.Configuration
		}
		if selector != "" && cat != selector {
			return nil
		}
		m, ok := buckets[cat]
		if !ok {
			m = map[string]any{}
			buckets[cat] = m
		}
		return m
	}

	for name, col := range table.Columns {
		cat := schema.EffectiveCategory(col, row)
		m := bucketFor(cat)
		if m == nil {
			continue
		}
		v, ok := row.Get(name)
		if !ok {
			continue
		}
		if !v.IsSet() {
			continue
		}
		m[name] = v.Native()
	}

	for name, col := range table.MapColumns {
		cat := schema.EffectiveCategoryMap(col, row)
		m := bucketFor(cat)
		if m == nil {
			continue
		}
		values, ok := row.GetMap(name)
		if !ok || len(values) == 0 {
			continue
		}
		obj := make(map[string]any, len(values))
		for k, v := range values {
			obj[k] = v.Native()
		}
		m[name] = obj
	}

	for name, ref := range table.Refs {
		m := bucketFor(ref.Category)
		if m == nil {
			continue
		}
		value, err := e.serializeReference(ctx, table, row, ref, depth)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		m[name] = value
	}

	out := make(map[string]any, 3)
	if selector != "" {
		out[string(selector)] = orEmpty(buckets[selector])
		return out, nil
	}
	out["configuration"] = orEmpty(buckets[schema.Configuration])
	out["status"] = orEmpty(buckets[schema.Status])
	out["statistics"] = orEmpty(buckets[schema.Statistics])
	return out, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// serializeReference emits the URI form (depth==0) or recurses (depth>0)
// for one reference column. Parent back-references (relation=parent,
// pointing back up the tree) are always emitted as a URI to avoid cycles.
func (e *Engine) serializeReference(ctx context.Context, owner *schema.Table, row *idl.Row, ref *schema.Reference, depth int) (any, error) {
	refVal, ok := row.GetRef(ref.Name)
	if !ok {
		return nil, nil
	}
	child := e.Schema.Table(ref.RefTable)
	if child == nil {
		return nil, nil
	}
	recurse := depth > 0 && ref.RelKind != schema.RelationParent

	switch {
	case ref.Scalar():
		if refVal.Scalar == nil {
			return nil, nil
		}
		r := e.DB.Row(child.Name, *refVal.Scalar)
		if r == nil {
			return nil, nil
		}
		return e.referenceValue(ctx, child, r, recurse, depth)
	case ref.KVType:
		out := map[string]any{}
		for _, k := range refVal.KVOrder {
			id, ok := refVal.KV[k]
			if !ok {
				continue
			}
			r := e.DB.Row(child.Name, id)
			if r == nil {
				continue
			}
			v, err := e.referenceValue(ctx, child, r, recurse, depth)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		var out []any
		for _, id := range refVal.List {
			r := e.DB.Row(child.Name, id)
			if r == nil {
				continue
			}
			v, err := e.referenceValue(ctx, child, r, recurse, depth)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	}
}

func (e *Engine) referenceValue(ctx context.Context, table *schema.Table, row *idl.Row, recurse bool, depth int) (any, error) {
	if !recurse {
		return resource.PathOf(ctx, e.Schema, e.DB, table, row), nil
	}
	if err := e.ensureFetched(ctx, row); err != nil {
		return nil, err
	}
	return e.serializeRow(ctx, table, row, depth-1, "")
}

// serializeCollection gathers the rows matching tail (a collection node),
// applies query-parameter post-processing, and serializes them.
func (e *Engine) serializeCollection(ctx context.Context, head, tail *resource.Resource, depth int, selector schema.Category, p *Params) (any, error) {
	parent := predecessor(head, tail)

	if err := e.ensureTableFetched(ctx, tail.Table); err != nil {
		return nil, err
	}

	rows, indexes := e.membersOf(tail, parent)

	if depth == 0 {
		uris := make([]string, 0, len(rows))
		for i, row := range rows {
			uris = append(uris, memberURI(head, tail, row, indexes[i]))
		}
		sort.Strings(uris)
		return uris, nil
	}

	members, err := e.applyQueryParams(tail.Table, rows, p)
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(members))
	for _, row := range members {
		if err := e.ensureFetched(ctx, row); err != nil {
			return nil, err
		}
		v, err := e.serializeRow(ctx, tail.Table, row, depth, selector)
		if err != nil {
			return nil, err
		}
		if len(p.Keys) > 0 {
			v = projectKeys(v, p.Keys)
		}
		out = append(out, v)
	}
	return out, nil
}

// membersOf returns the rows belonging to a collection resource node, and
// the URI-index segments selecting each (nil entries when the table has no
// declared index columns).
func (e *Engine) membersOf(tail, parent *resource.Resource) ([]*idl.Row, [][]string) {
	var rows []*idl.Row
	switch tail.Relation {
	case resource.RelationChild:
		if parent == nil || parent.Row == nil {
			return nil, nil
		}
		refVal, ok := parent.Row.GetRef(tail.Column)
		if !ok {
			return nil, nil
		}
		if refVal.Scalar != nil {
			if r := e.DB.Row(tail.Table.Name, *refVal.Scalar); r != nil {
				rows = append(rows, r)
			}
		}
		for _, id := range refVal.List {
			if r := e.DB.Row(tail.Table.Name, id); r != nil {
				rows = append(rows, r)
			}
		}
		for _, k := range refVal.KVOrder {
			if id, ok := refVal.KV[k]; ok {
				if r := e.DB.Row(tail.Table.Name, id); r != nil {
					rows = append(rows, r)
				}
			}
		}
	case resource.RelationTopLevel:
		rows = e.DB.Rows(tail.Table.Name)
	case resource.RelationBackReference:
		if parent == nil || parent.Row == nil {
			return nil, nil
		}
		refColumn := backRefColumn(tail.Table, parent.Table.Name)
		if refColumn == "" {
			return nil, nil
		}
		rows = e.DB.RowsMatchingRef(tail.Table.Name, refColumn, parent.Row.ID)
	}

	indexes := make([][]string, len(rows))
	for i, r := range rows {
		indexes[i] = idl.RowToIndex(tail.Table, r)
	}
	return rows, indexes
}

func backRefColumn(child *schema.Table, parentTable string) string {
	col, _ := schema.BackReferenceColumn(child, parentTable)
	return col
}

// predecessor returns the node preceding tail in head's chain, or nil if
// tail is head itself.
func predecessor(head, tail *resource.Resource) *resource.Resource {
	if head == tail {
		return nil
	}
	for node := head; node != nil; node = node.Next {
		if node.Next == tail {
			return node
		}
	}
	return nil
}

// memberURI renders the URI of one collection member by cloning head's
// chain and replacing the tail node with a concrete instance node.
func memberURI(head, tail *resource.Resource, row *idl.Row, index []string) string {
	var cloneHead, cloneTail *resource.Resource
	for node := head; node != nil; node = node.Next {
		c := &resource.Resource{
			Table: node.Table, Row: node.Row, Column: node.Column,
			Relation: node.Relation, Index: node.Index,
		}
		if node == tail {
			c.Row = row
			c.Index = index
		}
		if cloneHead == nil {
			cloneHead = c
		} else {
			cloneTail.Next = c
		}
		cloneTail = c
	}
	return resource.URI(cloneHead)
}

func projectKeys(value any, keys []string) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	keep := make(map[string]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}
	for _, bucketName := range []string{"configuration", "status", "statistics"} {
		bucket, ok := m[bucketName].(map[string]any)
		if !ok {
			continue
		}
		for col := range bucket {
			if !keep[col] {
				delete(bucket, col)
			}
		}
	}
	return m
}

// applyQueryParams filters, sorts and paginates the matching rows of a
// collection, per spec.md §4.4.
func (e *Engine) applyQueryParams(table *schema.Table, rows []*idl.Row, p *Params) ([]*idl.Row, error) {
	filtered := rows[:0:0]
	for _, row := range rows {
		ok, err := matchesFilters(table, row, p.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, row)
		}
	}

	if len(p.Sort) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			return lessBySort(filtered[i], filtered[j], p.Sort)
		})
	}

	start := 0
	if p.Offset != nil {
		start = *p.Offset
	}
	if start > len(filtered) {
		start = len(filtered)
	}
	end := len(filtered)
	if p.Limit != nil && start+*p.Limit < end {
		end = start + *p.Limit
	}
	return filtered[start:end], nil
}

func matchesFilters(table *schema.Table, row *idl.Row, filters map[string]string) (bool, error) {
	for col, want := range filters {
		c, ok := table.Columns[col]
		if !ok {
			return false, apierr.New(apierr.ParameterNotAllowed, "unknown filter column %q", col)
		}
		wantValue, err := idl.ValueFromNative(c.Type, want)
		if err != nil {
			return false, apierr.New(apierr.DataValidationFailed, "filter %q: %v", col, err)
		}
		v, ok := row.Get(col)
		if !ok || v.String() != wantValue.String() {
			return false, nil
		}
	}
	return true, nil
}

func lessBySort(a, b *idl.Row, keys []SortKey) bool {
	for _, key := range keys {
		av, _ := a.Get(key.Column)
		bv, _ := b.Get(key.Column)
		as, bs := strings.ToLower(av.String()), strings.ToLower(bv.String())
		if as == bs {
			continue
		}
		if key.Desc {
			return as > bs
		}
		return as < bs
	}
	return false
}
