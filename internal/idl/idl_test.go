package idl_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	doc := []byte(`{
		"root": "system",
		"tables": {
			"system": {"is_root": true, "columns": {"hostname": {"category":"configuration","type":"string","mutable":true}}},
			"vrf": {"columns": {"name": {"category":"configuration","type":"string","mutable":true}}, "index_columns": ["name"]}
		}
	}`)
	s, err := schema.Load(doc)
	require.NoError(t, err)
	return s
}

func TestTransactionCommitAndTracking(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	ctx := context.Background()

	txn := db.OpenTransaction(ctx)
	row := txn.Insert(s.Table("vrf"))
	txn.SetColumn(row, "name", idl.StringValue("default"))
	result, err := txn.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, idl.Success, result)
	require.EqualValues(t, 1, db.Seqno())

	found, ok := db.IndexToRow(s.Table("vrf"), []string{"default"})
	require.True(t, ok)
	require.Equal(t, row.ID, found.ID)

	changes := db.ChangesSince("vrf", 0)
	require.Len(t, changes, 1)
	require.EqualValues(t, 1, changes[0].CreateSeqno)
}

func TestCommitIncompleteWhenDisconnected(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	db.SetConnected(false)
	ctx := context.Background()

	txn := db.OpenTransaction(ctx)
	row := txn.Insert(s.Table("vrf"))
	txn.SetColumn(row, "name", idl.StringValue("default"))
	result, err := txn.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, idl.Incomplete, result)

	db.SetConnected(true)
	result, err = txn.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, idl.Success, result)
}

func TestEnsureRowFetched(t *testing.T) {
	doc := []byte(`{
		"root": "system",
		"tables": {
			"system": {"is_root": true},
			"route": {
				"on_demand_fetch_kind": "partial",
				"index_columns": ["prefix"],
				"columns": {
					"prefix": {"category":"configuration","type":"string","mutable":true},
					"metric": {"category":"status","type":"int"}
				}
			}
		}
	}`)
	s, err := schema.Load(doc)
	require.NoError(t, err)
	db := idl.New(s)
	ctx := context.Background()

	txn := db.OpenTransaction(ctx)
	row := txn.Insert(s.Table("route"))
	txn.SetColumn(row, "prefix", idl.StringValue("10.0.0.0/8"))
	_, err = txn.Commit(ctx)
	require.NoError(t, err)

	_, ok := row.Get("metric")
	require.False(t, ok, "readonly on-demand column must not be visible before fetch")

	require.NoError(t, db.EnsureRowFetched(ctx, row))
	_, ok = row.Get("metric")
	require.True(t, ok)
}
