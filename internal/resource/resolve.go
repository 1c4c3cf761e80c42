package resource

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

// ErrNotFound is returned when a path cannot be resolved to a Resource.
var ErrNotFound = fmt.Errorf("resource not found")

// Resolver parses REST paths against one schema/replica pair.
type Resolver struct {
	Schema *schema.Schema
	DB     *idl.DB
}

// New creates a Resolver.
func New(s *schema.Schema, db *idl.DB) *Resolver {
	return &Resolver{Schema: s, DB: db}
}

// Resolve parses path (already stripped of the "/rest/v1" prefix, leading
// slash removed) into a Resource chain rooted at the schema's root table,
// per spec.md §4.3.
func (rz *Resolver) Resolve(ctx context.Context, path string) (*Resource, error) {
	segments, err := splitSegments(path)
	if err != nil {
		return nil, err
	}
	root := rz.Schema.Table(rz.Schema.Root)
	if root == nil {
		return nil, ErrNotFound
	}

	head := &Resource{Table: root}
	// A singleton root table has exactly one row; resolve it immediately so
	// the first path segment (if any) is interpreted as a child of that row.
	rows := rz.DB.Rows(root.Name)
	if len(rows) > 0 {
		head.Row = rows[0]
	}
	if err := rz.ensureFetched(ctx, head.Row); err != nil {
		return nil, err
	}

	// spec.md §4.3: every REST path has the fixed literal form
	// /rest/v1/system[/…] — "system" names the root table and is never
	// itself a dynamically-resolved segment. A URI value embedded in a
	// request body (a reference column, a subscription's "resource" field)
	// carries that same literal prefix, so a leading segment matching the
	// root table's own name is swallowed here rather than at every call
	// site that might see either form.
	if len(segments) > 0 && segments[0] == root.Name {
		segments = segments[1:]
	}

	if len(segments) == 0 {
		return head, nil
	}
	return rz.resolveSegments(ctx, head, segments)
}

// ensureFetched pre-fetches row's on-demand readonly columns so that
// traversal decisions below (reading GetRef on this row to find the next
// segment's child) never see a pending-fetch column as "not set", per
// spec.md §4.2: on-demand columns are excluded from the replica until
// explicitly fetched.
func (rz *Resolver) ensureFetched(ctx context.Context, row *idl.Row) error {
	if row == nil {
		return nil
	}
	return rz.DB.EnsureRowFetched(ctx, row)
}

func splitSegments(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	raw := strings.Split(path, "/")
	segments := make([]string, len(raw))
	for i, s := range raw {
		decoded, err := url.PathUnescape(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid path segment %q", ErrNotFound, s)
		}
		segments[i] = decoded
	}
	return segments, nil
}

func (rz *Resolver) resolveSegments(ctx context.Context, current *Resource, segments []string) (*Resource, error) {
	if len(segments) == 0 {
		return current, nil
	}
	segment := segments[0]
	rest := segments[1:]
	table := current.Table

	// Step 1: forward child reference column named by this segment.
	if ref, ok := forwardChildRef(table, segment); ok {
		return rz.resolveForwardChild(ctx, current, ref, rest)
	}

	// Step 2: back-reference or top-level reference by plural table name.
	if child, relation, ok := matchByPlural(rz.Schema, table, segment); ok {
		return rz.resolveByPlural(ctx, current, child, relation, rest)
	}

	return nil, ErrNotFound
}

// forwardChildRef finds a reference column on table, named exactly segment,
// whose relation is "child" (a forward reference down the tree).
func forwardChildRef(table *schema.Table, segment string) (*schema.Reference, bool) {
	ref, ok := table.Refs[segment]
	if !ok || ref.RelKind != schema.RelationChild {
		return nil, false
	}
	return ref, true
}

// matchByPlural finds a table reachable from the current table by its
// plural name, either as a back-reference child or (from the root only) a
// top-level reference.
func matchByPlural(s *schema.Schema, table *schema.Table, segment string) (*schema.Table, Relation, bool) {
	for _, childName := range table.Children {
		child := s.Table(childName)
		if child == nil || child.PluralName != segment {
			continue
		}
		// if there is also a forward column for this child, step 1 already
		// handles it; a back-reference child has no such column.
		if hasForwardRefTo(table, childName) {
			continue
		}
		return child, RelationBackReference, true
	}
	if table.IsRoot {
		for _, ref := range table.Refs {
			if ref.RelKind != schema.RelationReference {
				continue
			}
			target := s.Table(ref.RefTable)
			if target != nil && target.ParentName == "" && target.PluralName == segment {
				return target, RelationTopLevel, true
			}
		}
	}
	return nil, "", false
}

func hasForwardRefTo(table *schema.Table, childName string) bool {
	for _, ref := range table.Refs {
		if ref.RelKind == schema.RelationChild && ref.RefTable == childName {
			return true
		}
	}
	return false
}

func (rz *Resolver) resolveForwardChild(ctx context.Context, current *Resource, ref *schema.Reference, rest []string) (*Resource, error) {
	childTable := rz.Schema.Table(ref.RefTable)
	if childTable == nil {
		return nil, ErrNotFound
	}
	node := &Resource{Table: childTable, Column: ref.Name, Relation: RelationChild}
	current.Next = node

	if ref.Scalar() {
		if current.Row == nil {
			return nil, ErrNotFound
		}
		refVal, ok := current.Row.GetRef(ref.Name)
		if !ok || refVal.Scalar == nil {
			return nil, ErrNotFound
		}
		row := rz.DB.Row(childTable.Name, *refVal.Scalar)
		if row == nil {
			return nil, ErrNotFound
		}
		node.Row = row
		if err := rz.ensureFetched(ctx, node.Row); err != nil {
			return nil, err
		}
		return rz.resolveSegments(ctx, node, rest)
	}

	// list or kv reference: consume index segment(s). A child table with no
	// declared index columns is only addressable by its position/key within
	// this very reference (list index or kv key), per spec.md §3's
	// addressability invariant for only-child-under-parent tables.
	if len(childTable.IndexColumns) == 0 {
		if len(rest) == 0 || current.Row == nil {
			return node, nil // collection URI
		}
		refVal, ok := current.Row.GetRef(ref.Name)
		if !ok {
			return nil, ErrNotFound
		}
		key := rest[0]
		var id uuid.UUID
		if ref.KVType {
			rowID, ok := refVal.KV[key]
			if !ok {
				return nil, ErrNotFound
			}
			id = rowID
		} else {
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(refVal.List) {
				return nil, ErrNotFound
			}
			id = refVal.List[idx]
		}
		row := rz.DB.Row(childTable.Name, id)
		if row == nil {
			return nil, ErrNotFound
		}
		node.Row = row
		node.Index = []string{key}
		if err := rz.ensureFetched(ctx, node.Row); err != nil {
			return nil, err
		}
		return rz.resolveSegments(ctx, node, rest[1:])
	}

	n := len(childTable.IndexColumns)
	if len(rest) < n {
		return node, nil // collection URI
	}
	keyParts := rest[:n]
	row, ok := rz.DB.IndexToRow(childTable, keyParts)
	if !ok {
		return nil, ErrNotFound
	}
	node.Row = row
	node.Index = keyParts
	if err := rz.ensureFetched(ctx, node.Row); err != nil {
		return nil, err
	}
	return rz.resolveSegments(ctx, node, rest[n:])
}

func (rz *Resolver) resolveByPlural(ctx context.Context, current *Resource, child *schema.Table, relation Relation, rest []string) (*Resource, error) {
	node := &Resource{Table: child, Relation: relation}
	current.Next = node

	if len(child.IndexColumns) == 0 {
		if len(rest) == 0 {
			return node, nil
		}
		row, ok := rz.DB.IndexToRow(child, rest[:1])
		if !ok {
			return nil, ErrNotFound
		}
		if err := rz.ensureFetched(ctx, row); err != nil {
			return nil, err
		}
		if relation == RelationBackReference && !backReferencesParent(child, current.Row, row) {
			return nil, ErrNotFound
		}
		node.Row = row
		node.Index = rest[:1]
		return rz.resolveSegments(ctx, node, rest[1:])
	}

	n := len(child.IndexColumns)
	if len(rest) < n {
		return node, nil
	}
	row, ok := rz.DB.IndexToRow(child, rest[:n])
	if !ok {
		return nil, ErrNotFound
	}
	if err := rz.ensureFetched(ctx, row); err != nil {
		return nil, err
	}
	if relation == RelationBackReference && !backReferencesParent(child, current.Row, row) {
		return nil, ErrNotFound
	}
	node.Row = row
	node.Index = rest[:n]
	return rz.resolveSegments(ctx, node, rest[n:])
}

// backReferencesParent verifies that row's back-reference column (the
// relation=parent reference on child pointing up) equals parent's id, so a
// back-reference URI cannot be used to address a row under the wrong
// parent.
func backReferencesParent(child *schema.Table, parent *idl.Row, row *idl.Row) bool {
	if parent == nil {
		return true
	}
	for _, ref := range child.Refs {
		if ref.RelKind != schema.RelationParent || ref.RefTable != parent.Table.Name {
			continue
		}
		refVal, ok := row.GetRef(ref.Name)
		if !ok || refVal.Scalar == nil {
			return false
		}
		return *refVal.Scalar == parent.ID
	}
	return true
}
