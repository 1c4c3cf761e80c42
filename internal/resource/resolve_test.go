package resource_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/idl"
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
					"vrfs": {"relation":"child","ref_table":"vrf","n_min":0,"n_max":0},
					"subsystem": {"relation":"child","ref_table":"subsystem","n_min":0,"n_max":1},
					"management_interfaces": {"relation":"reference","ref_table":"interface","n_min":0,"n_max":0}
				}
			},
			"vrf": {
				"index_columns": ["name"],
				"columns": {"name": {"category":"configuration","type":"string","mutable":true}}
			},
			"subsystem": {
				"columns": {"name": {"category":"configuration","type":"string","mutable":true}}
			},
			"route": {
				"index_columns": ["prefix"],
				"columns": {"prefix": {"category":"configuration","type":"string","mutable":true}},
				"references": {
					"vrf": {"relation":"parent","ref_table":"vrf","n_min":1,"n_max":1}
				}
			},
			"interface": {
				"index_columns": ["name"],
				"columns": {"name": {"category":"configuration","type":"string","mutable":true}}
			}
		}
	}`)
	s, err := schema.Load(doc)
	require.NoError(t, err)
	return s
}

func setup(t *testing.T) (*schema.Schema, *idl.DB) {
	t.Helper()
	s := testSchema(t)
	db := idl.New(s)
	ctx := context.Background()

	txn := db.OpenTransaction(ctx)
	sysRow := txn.Insert(s.Table("system"))
	vrfRow := txn.Insert(s.Table("vrf"))
	txn.SetColumn(vrfRow, "name", idl.StringValue("default"))
	subRow := txn.Insert(s.Table("subsystem"))
	txn.SetColumn(subRow, "name", idl.StringValue("base"))
	routeRow := txn.Insert(s.Table("route"))
	txn.SetColumn(routeRow, "prefix", idl.StringValue("10.0.0.0"))
	ifaceRow := txn.Insert(s.Table("interface"))
	txn.SetColumn(ifaceRow, "name", idl.StringValue("eth0"))

	txn.SetRef(sysRow, "vrfs", &idl.RefValue{List: []uuid.UUID{vrfRow.ID}})
	txn.SetRef(sysRow, "subsystem", &idl.RefValue{Scalar: &subRow.ID})
	txn.SetRef(sysRow, "management_interfaces", &idl.RefValue{List: []uuid.UUID{ifaceRow.ID}})
	txn.SetRef(routeRow, "vrf", &idl.RefValue{Scalar: &vrfRow.ID})

	_, err := txn.Commit(ctx)
	require.NoError(t, err)
	return s, db
}

func TestResolveForwardScalarChild(t *testing.T) {
	s, db := setup(t)
	rz := resource.New(s, db)
	ctx := context.Background()

	head, err := rz.Resolve(ctx, "/subsystem")
	require.NoError(t, err)
	tail := head.Tail()
	require.Equal(t, "subsystem", tail.Table.Name)
	require.False(t, tail.IsCollection())
	require.Equal(t, "/subsystem", resource.URI(head))
}

func TestResolveForwardListChildByCompositeKey(t *testing.T) {
	s, db := setup(t)
	rz := resource.New(s, db)
	ctx := context.Background()

	head, err := rz.Resolve(ctx, "/vrfs/default")
	require.NoError(t, err)
	tail := head.Tail()
	require.Equal(t, "vrf", tail.Table.Name)
	require.False(t, tail.IsCollection())
	require.Equal(t, "/vrfs/default", resource.URI(head))
}

func TestResolveCollectionURI(t *testing.T) {
	s, db := setup(t)
	rz := resource.New(s, db)
	ctx := context.Background()

	head, err := rz.Resolve(ctx, "/vrfs")
	require.NoError(t, err)
	tail := head.Tail()
	require.True(t, tail.IsCollection())
}

func TestResolveBackReference(t *testing.T) {
	s, db := setup(t)
	rz := resource.New(s, db)
	ctx := context.Background()

	head, err := rz.Resolve(ctx, "/vrfs/default/routes/10.0.0.0")
	require.NoError(t, err)
	tail := head.Tail()
	require.Equal(t, "route", tail.Table.Name)
	require.Equal(t, resource.RelationBackReference, tail.Relation)
	require.Equal(t, "/vrfs/default/routes/10.0.0.0", resource.URI(head))
}

func TestResolveTopLevelReference(t *testing.T) {
	s, db := setup(t)
	rz := resource.New(s, db)
	ctx := context.Background()

	head, err := rz.Resolve(ctx, "/interfaces/eth0")
	require.NoError(t, err)
	tail := head.Tail()
	require.Equal(t, "interface", tail.Table.Name)
	require.Equal(t, resource.RelationTopLevel, tail.Relation)
	require.Equal(t, "/interfaces/eth0", resource.URI(head))
}

func TestResolveNotFound(t *testing.T) {
	s, db := setup(t)
	rz := resource.New(s, db)
	ctx := context.Background()

	_, err := rz.Resolve(ctx, "/vrfs/no-such-vrf")
	require.ErrorIs(t, err, resource.ErrNotFound)

	_, err = rz.Resolve(ctx, "/bogus")
	require.ErrorIs(t, err, resource.ErrNotFound)
}

func TestResolveRoot(t *testing.T) {
	s, db := setup(t)
	rz := resource.New(s, db)
	ctx := context.Background()

	head, err := rz.Resolve(ctx, "/")
	require.NoError(t, err)
	require.Equal(t, "system", head.Table.Name)
	require.Equal(t, "", resource.URI(head))
}
