package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/validate"
)

// SubscriberType is the value the Subscriber row's "type" column carries.
// Spec.md §4.9 only ever creates WebSocket subscribers; the column exists
// so a future transport can share the table.
const SubscriberType = "ws"

// OpenSubscriber inserts a new Subscriber row, per spec.md §4.9: generate a
// UUID4, collision-check it against existing subscriber names, insert
// {name, type=ws}, commit (waiting through INCOMPLETE retries). It bypasses
// the Write Engine/Validator Adapter entirely — the WS lifecycle is the one
// caller the "no explicit subscriber mutation" builtin validator
// (internal/validate/builtin.go) exists to wall off everyone else from.
func OpenSubscriber(ctx context.Context, s *schema.Schema, db *idl.DB) (*idl.Row, string, error) {
	table := s.Table(validate.SubscriberTable)
	if table == nil {
		return nil, "", apierr.New(apierr.TransactionFailed, "schema has no %q table", validate.SubscriberTable)
	}

	name := uniqueSubscriberName(db, table)

	txn := db.OpenTransaction(ctx)
	row := txn.Insert(table)
	txn.SetColumn(row, "name", idl.StringValue(name))
	txn.SetColumn(row, "type", idl.StringValue(SubscriberType))
	if _, err := txn.Wait(ctx); err != nil {
		return nil, "", apierr.New(apierr.TransactionFailed, "opening subscriber: %v", err)
	}
	return row, name, nil
}

// CloseSubscriber deletes a Subscriber row, cascading to its Subscription
// rows via their back-reference, per spec.md §4.9's close handler
// ("delete the subscriber row (cascades to subscriptions via
// back-reference delete)"). The idl.Transaction itself never cascades
// (internal/idl/txn.go's opDelete only ever removes the one row named),
// so the children are collected and staged for deletion explicitly here,
// the same technique internal/write/delete.go uses for the Write Engine's
// own cascades.
func CloseSubscriber(ctx context.Context, s *schema.Schema, db *idl.DB, row *idl.Row) error {
	txn := db.OpenTransaction(ctx)
	for _, sub := range subscriptionsOf(s, db, row) {
		txn.Delete(sub)
	}
	txn.Delete(row)
	if _, err := txn.Wait(ctx); err != nil {
		return apierr.New(apierr.TransactionFailed, "closing subscriber: %v", err)
	}
	return nil
}

func subscriptionsOf(s *schema.Schema, db *idl.DB, subscriberRow *idl.Row) []*idl.Row {
	subTable := s.Table(validate.SubscriptionTable)
	if subTable == nil {
		return nil
	}
	col, ok := schema.BackReferenceColumn(subTable, subscriberRow.Table.Name)
	if !ok {
		return nil
	}
	return db.RowsMatchingRef(subTable.Name, col, subscriberRow.ID)
}

func uniqueSubscriberName(db *idl.DB, table *schema.Table) string {
	for {
		candidate := uuid.New().String()
		collides := false
		for _, row := range db.Rows(table.Name) {
			if v, ok := row.StringValue("name"); ok && v == candidate {
				collides = true
				break
			}
		}
		if !collides {
			return candidate
		}
	}
}
