package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/read"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/validate"
)

// Dispatcher delivers one batched tick envelope to a named subscriber's
// WebSocket session. Kept separate from the transport so this package
// never imports gorilla/websocket directly; internal/restapi implements it
// against the live *websocket.Conn registered for each subscriber.
type Dispatcher interface {
	Send(ctx context.Context, subscriberName string, env Envelope) error
}

// Engine is the Notification Engine, per spec.md §4.7: it owns the live
// per-subscriber subscription registry and runs one change-tick pass per
// call to Tick.
type Engine struct {
	Schema     *schema.Schema
	DB         *idl.DB
	Resolver   *resource.Resolver
	Read       *read.Engine
	Dispatcher Dispatcher

	lastSeqno uint64
	subs      map[uuid.UUID]*subscription // subscription row id -> live state
}

// New builds an Engine over one schema/replica/resolver, dispatching
// through d.
func New(s *schema.Schema, db *idl.DB, rz *resource.Resolver, d Dispatcher) *Engine {
	return &Engine{
		Schema: s, DB: db, Resolver: rz, Read: read.New(s, db), Dispatcher: d,
		subs: make(map[uuid.UUID]*subscription),
	}
}

// Tick runs one change-tick pass: CM calls this after every IDL change
// (spec.md §4.7, §4.10). It scans the Subscription table first, then every
// other table carrying at least one live subscription, batches the result
// per subscriber, dispatches one frame per subscriber with something to
// say, and clears change-tracking state for the next tick.
func (e *Engine) Tick(ctx context.Context) error {
	since := e.lastSeqno
	batches := map[string]*Notifications{}
	emit := func(subscriberName string, f func(*Notifications)) {
		b, ok := batches[subscriberName]
		if !ok {
			b = &Notifications{}
			batches[subscriberName] = b
		}
		f(b)
	}

	subTable := e.Schema.Table(validate.SubscriptionTable)
	subscriberTable := e.Schema.Table(validate.SubscriberTable)
	if subTable != nil && subscriberTable != nil {
		e.processSubscriptionChanges(ctx, subTable, subscriberTable, since, emit)
	}

	for tableName := range e.tablesWithSubscriptions() {
		if subTable != nil && tableName == subTable.Name {
			continue
		}
		table := e.Schema.Table(tableName)
		if table == nil {
			continue
		}
		for _, change := range e.DB.ChangesSince(tableName, since) {
			e.processRowChange(ctx, table, change, since, emit)
		}
	}

	for name, batch := range batches {
		if batch.Empty() {
			continue
		}
		if e.Dispatcher == nil {
			continue
		}
		_ = e.Dispatcher.Send(ctx, name, Envelope{Notifications: *batch})
	}

	e.DB.ClearTracking()
	e.lastSeqno = e.DB.Seqno()
	return nil
}

// processSubscriptionChanges handles spec.md §4.7 step 1: a new Subscription
// row resolves its URI, computes initial state, and emits "added"; a
// deleted one is simply dropped from the registry.
func (e *Engine) processSubscriptionChanges(ctx context.Context, subTable, subscriberTable *schema.Table, since uint64, emit func(string, func(*Notifications))) {
	backCol, ok := schema.BackReferenceColumn(subTable, subscriberTable.Name)
	if !ok {
		return
	}
	for _, change := range e.DB.ChangesSince(subTable.Name, since) {
		id, err := uuid.Parse(change.ID)
		if err != nil {
			continue
		}
		if change.Row == nil || change.DeleteSeqno > since {
			delete(e.subs, id)
			continue
		}
		if change.CreateSeqno <= since {
			continue
		}
		refVal, ok := change.Row.GetRef(backCol)
		if !ok || refVal.Scalar == nil {
			continue
		}
		subscriberRow := e.DB.Row(subscriberTable.Name, *refVal.Scalar)
		if subscriberRow == nil {
			continue
		}
		subscriberName, _ := subscriberRow.StringValue("name")

		sub, added, err := newSubscription(ctx, e.Schema, e.DB, e.Resolver, e.Read, subscriberName, change.Row)
		if err != nil {
			continue
		}
		e.subs[id] = sub
		emit(subscriberName, func(n *Notifications) {
			n.Added = append(n.Added, added...)
		})
	}
}

// processRowChange handles spec.md §4.7 step 2 for one changed row of one
// tracked table.
func (e *Engine) processRowChange(ctx context.Context, table *schema.Table, change idl.Change, since uint64, emit func(string, func(*Notifications))) {
	rowID, err := uuid.Parse(change.ID)
	if err != nil {
		return
	}

	if change.CreateSeqno > since && change.Row != nil {
		newURI := resource.PathOf(ctx, e.Schema, e.DB, table, change.Row)
		for _, sub := range e.subs {
			if !sub.matchesNewRow(table, newURI) {
				continue
			}
			if _, seen := sub.membersURI[rowID]; seen {
				continue // already reported in the subscription's initial snapshot
			}
			sub.membersURI[rowID] = newURI
			head, err := e.Resolver.Resolve(ctx, newURI)
			if err != nil {
				continue
			}
			values, err := rowValues(ctx, e.Read, head)
			if err != nil {
				continue
			}
			emit(sub.subscriberName, func(n *Notifications) {
				n.Added = append(n.Added, AddedMsg{Subscription: sub.uri, Resource: newURI, Values: values})
			})
		}
	}

	if change.UpdateSeqno > since && change.Row != nil {
		for _, sub := range e.subs {
			if sub.kind != rowKind || sub.table != table || sub.watchedRowID != rowID {
				continue
			}
			head, err := e.Resolver.Resolve(ctx, sub.resourceURI)
			if err != nil {
				continue
			}
			values, err := rowValues(ctx, e.Read, head)
			if err != nil {
				continue
			}
			newValues := map[string]any{}
			for _, col := range change.ChangedColumns {
				if v, ok := values[col]; ok {
					newValues[col] = v
				}
			}
			emit(sub.subscriberName, func(n *Notifications) {
				n.Modified = append(n.Modified, ModifiedMsg{Subscription: sub.uri, Resource: sub.resourceURI, NewValues: newValues})
			})
		}
	}

	if change.DeleteSeqno > since {
		for _, sub := range e.subs {
			if sub.table != table {
				continue
			}
			switch sub.kind {
			case rowKind:
				if sub.watchedRowID != rowID {
					continue
				}
				emit(sub.subscriberName, func(n *Notifications) {
					n.Deleted = append(n.Deleted, DeletedMsg{Subscription: sub.uri, Resource: sub.resourceURI})
				})
			case collectionKind:
				memberURI, ok := sub.membersURI[rowID]
				if !ok {
					continue
				}
				delete(sub.membersURI, rowID)
				emit(sub.subscriberName, func(n *Notifications) {
					n.Deleted = append(n.Deleted, DeletedMsg{Subscription: sub.uri, Resource: memberURI})
				})
			}
		}
	}
}

func (e *Engine) tablesWithSubscriptions() map[string]bool {
	out := map[string]bool{}
	for _, sub := range e.subs {
		out[sub.table.Name] = true
	}
	return out
}
