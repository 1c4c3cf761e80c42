package notify

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/read"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
)

// kind distinguishes the two subscription shapes of spec.md §4.7.
type kind int

const (
	rowKind kind = iota
	collectionKind
)

// subscription is the Engine's live, in-memory tracking state for one
// Subscription row: which resource URI it watches, and (for a collection)
// which rows currently belong to it. Rebuilt from the Subscription row's
// own {name, resource} the moment the row is first seen, per spec.md §4.7
// step 1 ("new subscription ⇒ resolve URI, compute initial state, emit
// added").
type subscription struct {
	subRowID       uuid.UUID // this Subscription row's own id
	subscriberName string
	name           string
	uri            string // this subscription's own resource URI
	table          *schema.Table
	kind           kind

	watchedRowID   uuid.UUID             // rowKind: the single row being watched
	resourceURI    string                // rowKind: its resource URI
	membersURI     map[uuid.UUID]string  // collectionKind: row id -> resource uri
	collectionRoot string                // collectionKind: the subscribed collection's own URI
}

// newSubscription resolves subscriptionRow's "resource" column against rz
// and builds the tracking state plus the initial "added" messages, per
// spec.md §4.7 step 1.
func newSubscription(ctx context.Context, s *schema.Schema, db *idl.DB, rz *resource.Resolver, re *read.Engine, subscriberName string, subRow *idl.Row) (*subscription, []AddedMsg, error) {
	name, _ := subRow.StringValue("name")
	resourceURI, ok := subRow.StringValue("resource")
	if !ok || resourceURI == "" {
		return nil, nil, apierr.New(apierr.DataValidationFailed, "subscription %q has no resource uri", name)
	}

	ownURI := resource.PathOf(ctx, s, db, subRow.Table, subRow)

	head, err := rz.Resolve(ctx, resourceURI)
	if err != nil {
		return nil, nil, err
	}
	tail := head.Tail()

	if !tail.IsCollection() {
		values, err := rowValues(ctx, re, head)
		if err != nil {
			return nil, nil, err
		}
		sub := &subscription{
			subRowID: subRow.ID, subscriberName: subscriberName, name: name, uri: ownURI,
			table: tail.Table, kind: rowKind, watchedRowID: tail.Row.ID, resourceURI: resourceURI,
		}
		return sub, []AddedMsg{{Subscription: ownURI, Resource: resourceURI, Values: values}}, nil
	}

	sub := &subscription{
		subRowID: subRow.ID, subscriberName: subscriberName, name: name, uri: ownURI,
		table: tail.Table, kind: collectionKind, membersURI: map[uuid.UUID]string{}, collectionRoot: resourceURI,
	}

	var added []AddedMsg
	for _, row := range collectionMembers(db, head) {
		memberURI := resource.PathOf(ctx, s, db, tail.Table, row)
		sub.membersURI[row.ID] = memberURI
		memberHead, err := rz.Resolve(ctx, memberURI)
		if err != nil {
			continue
		}
		values, err := rowValues(ctx, re, memberHead)
		if err != nil {
			continue
		}
		added = append(added, AddedMsg{Subscription: ownURI, Resource: memberURI, Values: values})
	}
	return sub, added, nil
}

// rowValues reads an instance resource's configuration/status/statistics
// columns flattened into a single map, the shape spec.md §4.7's "added"
// and "modified" messages carry.
func rowValues(ctx context.Context, re *read.Engine, head *resource.Resource) (map[string]any, error) {
	doc, err := re.Serialize(ctx, head, &read.Params{})
	if err != nil {
		return nil, err
	}
	m, _ := doc.(map[string]any)
	flat := map[string]any{}
	for _, bucket := range []string{"configuration", "status", "statistics"} {
		sub, _ := m[bucket].(map[string]any)
		for k, v := range sub {
			flat[k] = v
		}
	}
	return flat, nil
}

// collectionMembers returns the rows currently belonging to a resolved
// collection resource, mirroring internal/read's membersOf technique.
func collectionMembers(db *idl.DB, head *resource.Resource) []*idl.Row {
	tail := head.Tail()
	chain := head.Chain()
	var parent *resource.Resource
	for i, node := range chain {
		if node == tail && i > 0 {
			parent = chain[i-1]
		}
	}

	switch tail.Relation {
	case resource.RelationChild:
		if parent == nil || parent.Row == nil {
			return nil
		}
		refVal, ok := parent.Row.GetRef(tail.Column)
		if !ok {
			return nil
		}
		var rows []*idl.Row
		for _, id := range refValueIDs(refVal) {
			if r := db.Row(tail.Table.Name, id); r != nil {
				rows = append(rows, r)
			}
		}
		return rows
	case resource.RelationBackReference:
		if parent == nil || parent.Row == nil {
			return nil
		}
		col, ok := schema.BackReferenceColumn(tail.Table, parent.Table.Name)
		if !ok {
			return nil
		}
		return db.RowsMatchingRef(tail.Table.Name, col, parent.Row.ID)
	default: // top-level
		return db.Rows(tail.Table.Name)
	}
}

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

// matchesNewRow reports whether a newly created row's computed URI falls
// under this collection subscription's own root, the "URI prefix matches
// ... segment-by-segment" test of spec.md §4.7 step 2.
func (sub *subscription) matchesNewRow(table *schema.Table, newRowURI string) bool {
	if sub.kind != collectionKind || table != sub.table {
		return false
	}
	prefix := strings.TrimSuffix(sub.collectionRoot, "/") + "/"
	return strings.HasPrefix(newRowURI, prefix)
}
