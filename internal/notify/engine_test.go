package notify_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/notify"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	doc := []byte(`{
		"root": "system",
		"tables": {
			"system": {
				"is_root": true,
				"references": {
					"subscribers": {"relation":"child","ref_table":"subscriber","n_min":0,"n_max":0}
				}
			},
			"subscriber": {
				"index_columns": ["name"],
				"columns": {
					"name": {"category":"configuration","type":"string","mutable":true},
					"type": {"category":"configuration","type":"string","mutable":true}
				},
				"references": {
					"subscriptions": {"relation":"child","ref_table":"subscription","n_min":0,"n_max":0}
				}
			},
			"subscription": {
				"index_columns": ["name"],
				"columns": {
					"name":     {"category":"configuration","type":"string","mutable":true},
					"resource": {"category":"configuration","type":"string","mutable":true}
				},
				"references": {
					"subscriber": {"relation":"parent","ref_table":"subscriber","n_min":1,"n_max":1}
				}
			},
			"widget": {
				"index_columns": ["name"],
				"columns": {
					"name":  {"category":"configuration","type":"string","mutable":true},
					"value": {"category":"configuration","type":"string","mutable":true}
				},
				"references": {
					"system": {"relation":"parent","ref_table":"system","n_min":1,"n_max":1}
				}
			}
		}
	}`)
	s, err := schema.Load(doc)
	require.NoError(t, err)
	return s
}

func setup(t *testing.T) (*schema.Schema, *idl.DB, *resource.Resolver, *idl.Row) {
	t.Helper()
	s := testSchema(t)
	db := idl.New(s)
	ctx := context.Background()

	txn := db.OpenTransaction(ctx)
	systemRow := txn.Insert(s.Table("system"))
	_, err := txn.Commit(ctx)
	require.NoError(t, err)

	return s, db, resource.New(s, db), systemRow
}

func insertWidget(t *testing.T, s *schema.Schema, db *idl.DB, systemRow *idl.Row, name, value string) *idl.Row {
	t.Helper()
	ctx := context.Background()
	txn := db.OpenTransaction(ctx)
	row := txn.Insert(s.Table("widget"))
	txn.SetColumn(row, "name", idl.StringValue(name))
	txn.SetColumn(row, "value", idl.StringValue(value))
	id := systemRow.ID
	txn.SetRef(row, "system", &idl.RefValue{Scalar: &id})
	_, err := txn.Commit(ctx)
	require.NoError(t, err)
	return row
}

func subscribe(t *testing.T, s *schema.Schema, db *idl.DB, subscriberRow *idl.Row, name, resourceURI string) {
	t.Helper()
	ctx := context.Background()
	txn := db.OpenTransaction(ctx)
	row := txn.Insert(s.Table("subscription"))
	txn.SetColumn(row, "name", idl.StringValue(name))
	txn.SetColumn(row, "resource", idl.StringValue(resourceURI))
	id := subscriberRow.ID
	txn.SetRef(row, "subscriber", &idl.RefValue{Scalar: &id})
	_, err := txn.Commit(ctx)
	require.NoError(t, err)
}

func TestRowSubscriptionEmitsAddedModifiedDeleted(t *testing.T) {
	s, db, rz, systemRow := setup(t)
	ctx := context.Background()

	w1 := insertWidget(t, s, db, systemRow, "w1", "v1")

	subscriberRow, subscriberName, err := notify.OpenSubscriber(ctx, s, db)
	require.NoError(t, err)

	subscribe(t, s, db, subscriberRow, "sub1", "/widgets/w1")

	dispatcher := newRecordingDispatcher()
	engine := notify.New(s, db, rz, dispatcher)
	require.NoError(t, engine.Tick(ctx))

	env, ok := dispatcher.last(subscriberName)
	require.True(t, ok)
	require.Len(t, env.Notifications.Added, 1)
	require.Equal(t, "/widgets/w1", env.Notifications.Added[0].Resource)
	require.Equal(t, "v1", env.Notifications.Added[0].Values["value"])

	txn := db.OpenTransaction(ctx)
	txn.SetColumn(w1, "value", idl.StringValue("v2"))
	_, err = txn.Commit(ctx)
	require.NoError(t, err)

	require.NoError(t, engine.Tick(ctx))
	env, ok = dispatcher.last(subscriberName)
	require.True(t, ok)
	require.Len(t, env.Notifications.Modified, 1)
	require.Equal(t, "v2", env.Notifications.Modified[0].NewValues["value"])

	txn = db.OpenTransaction(ctx)
	txn.Delete(w1)
	_, err = txn.Commit(ctx)
	require.NoError(t, err)

	require.NoError(t, engine.Tick(ctx))
	env, ok = dispatcher.last(subscriberName)
	require.True(t, ok)
	require.Len(t, env.Notifications.Deleted, 1)
	require.Equal(t, "/widgets/w1", env.Notifications.Deleted[0].Resource)
}

func TestCollectionSubscriptionTracksMembership(t *testing.T) {
	s, db, rz, systemRow := setup(t)
	ctx := context.Background()

	insertWidget(t, s, db, systemRow, "w1", "v1")

	subscriberRow, subscriberName, err := notify.OpenSubscriber(ctx, s, db)
	require.NoError(t, err)
	subscribe(t, s, db, subscriberRow, "sub1", "/widgets")

	dispatcher := newRecordingDispatcher()
	engine := notify.New(s, db, rz, dispatcher)
	require.NoError(t, engine.Tick(ctx))

	env, ok := dispatcher.last(subscriberName)
	require.True(t, ok)
	require.Len(t, env.Notifications.Added, 1)
	require.Equal(t, "/widgets/w1", env.Notifications.Added[0].Resource)

	w2 := insertWidget(t, s, db, systemRow, "w2", "v2")
	require.NoError(t, engine.Tick(ctx))
	env, ok = dispatcher.last(subscriberName)
	require.True(t, ok)
	require.Len(t, env.Notifications.Added, 1)
	require.Equal(t, "/widgets/w2", env.Notifications.Added[0].Resource)

	txn := db.OpenTransaction(ctx)
	txn.Delete(w2)
	_, err = txn.Commit(ctx)
	require.NoError(t, err)

	require.NoError(t, engine.Tick(ctx))
	env, ok = dispatcher.last(subscriberName)
	require.True(t, ok)
	require.Len(t, env.Notifications.Deleted, 1)
	require.Equal(t, "/widgets/w2", env.Notifications.Deleted[0].Resource)
}

func TestSubscriberCloseCascadesToSubscriptions(t *testing.T) {
	s, db, _, _ := setup(t)
	ctx := context.Background()

	subscriberRow, _, err := notify.OpenSubscriber(ctx, s, db)
	require.NoError(t, err)
	subscribe(t, s, db, subscriberRow, "sub1", "/widgets")

	require.NoError(t, notify.CloseSubscriber(ctx, s, db, subscriberRow))

	require.Nil(t, db.Row("subscriber", subscriberRow.ID))
	require.Empty(t, db.Rows("subscription"))
}
