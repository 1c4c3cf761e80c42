package write_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/write"
)

// vrfsDoc builds a full-configuration document the way the JSON decoder
// would: list values as []any, each item as map[string]any.
func vrfsDoc(items ...map[string]any) map[string]any {
	list := make([]any, len(items))
	for i, item := range items {
		list[i] = item
	}
	return map[string]any{"configuration": map[string]any{"vrfs": list}}
}

func TestApplyFullConfigurationCreatesChildren(t *testing.T) {
	_, _, e, rz := setup(t)
	ctx := context.Background()

	doc := vrfsDoc(map[string]any{"name": "default", "tag": "a"})
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, doc))

	head, err := rz.Resolve(ctx, "/vrfs/default")
	require.NoError(t, err)
	require.NotNil(t, head.Tail().Row)
	v, ok := head.Tail().Row.Get("tag")
	require.True(t, ok)
	require.Equal(t, "a", v.Str())
}

// Resubmitting the identical document must update the existing row in
// place rather than insert a duplicate, per spec.md §4.5's "present rows
// are created or updated".
func TestApplyFullConfigurationResubmitDoesNotDuplicate(t *testing.T) {
	s, db, e, rz := setup(t)
	ctx := context.Background()

	doc := vrfsDoc(map[string]any{"name": "default", "tag": "a"})
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, doc))
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, vrfsDoc(map[string]any{"name": "default", "tag": "b"})))

	rows := db.Rows(s.Table("vrf").Name)
	require.Len(t, rows, 1)

	head, err := rz.Resolve(ctx, "/vrfs/default")
	require.NoError(t, err)
	v, ok := head.Tail().Row.Get("tag")
	require.True(t, ok)
	require.Equal(t, "b", v.Str(), "second pass should update the matched row in place")
}

// An item dropped from a resubmitted document must have its row (and any
// of its own back-referencing descendants) deleted, per spec.md §4.5's
// "absent rows are deleted".
func TestApplyFullConfigurationDeletesAbsentChildren(t *testing.T) {
	s, db, e, rz := setup(t)
	ctx := context.Background()

	doc := vrfsDoc(
		map[string]any{"name": "default", "tag": "a"},
		map[string]any{"name": "other", "tag": "b"},
	)
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, doc))

	head, err := rz.Resolve(ctx, "/vrfs/default")
	require.NoError(t, err)
	defaultID := head.Tail().Row.ID

	otherHead, err := rz.Resolve(ctx, "/vrfs/other")
	require.NoError(t, err)
	otherID := otherHead.Tail().Row.ID

	// drop "other" from the resubmitted document
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, vrfsDoc(map[string]any{"name": "default", "tag": "a"})))

	require.NotNil(t, db.Row(s.Table("vrf").Name, defaultID), "matched row must survive")
	require.Nil(t, db.Row(s.Table("vrf").Name, otherID), "row absent from the resubmitted document must be deleted")

	rows := db.Rows(s.Table("vrf").Name)
	require.Len(t, rows, 1)
}

// An entirely absent key (the whole "vrfs" list missing from the document)
// must delete every previously-existing row under it and clear any
// dangling forward reference the deleted rows used to occupy.
func TestApplyFullConfigurationAbsentKeyDeletesAllAndClearsForwardRef(t *testing.T) {
	s, db, e, rz := setup(t)
	ctx := context.Background()

	doc := vrfsDoc(map[string]any{"name": "default", "tag": "a"})
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, doc))

	head, err := rz.Resolve(ctx, "/vrfs/default")
	require.NoError(t, err)
	defaultID := head.Tail().Row.ID

	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, map[string]any{"configuration": map[string]any{}}))

	require.Nil(t, db.Row(s.Table("vrf").Name, defaultID))

	systemRow := db.Rows(s.Table("system").Name)[0]
	refVal, _ := systemRow.GetRef("vrfs")
	require.True(t, refVal == nil || len(refVal.List) == 0, "forward reference column must be cleared, not left dangling")

	_, err = rz.Resolve(ctx, "/vrfs")
	require.NoError(t, err)
}

// A back-referencing child (routes under a vrf) matched by its own index
// column survives a resubmission that otherwise re-creates its parent's
// configuration, and an item dropped from its own list is deleted too.
func TestApplyFullConfigurationMatchesBackReferenceChildrenByIndex(t *testing.T) {
	s, db, e, rz := setup(t)
	ctx := context.Background()

	doc := map[string]any{"configuration": map[string]any{"vrfs": []any{
		map[string]any{
			"name": "default", "tag": "a",
			"routes": []any{
				map[string]any{"prefix": "10.0.0.0/8", "metric": float64(1)},
				map[string]any{"prefix": "192.168.0.0/16", "metric": float64(2)},
			},
		},
	}}}
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, doc))

	r1, err := rz.Resolve(ctx, "/vrfs/default/routes/10.0.0.0%2F8")
	require.NoError(t, err)
	route1ID := r1.Tail().Row.ID
	r2, err := rz.Resolve(ctx, "/vrfs/default/routes/192.168.0.0%2F16")
	require.NoError(t, err)
	route2ID := r2.Tail().Row.ID

	// resubmit with route1's metric changed and route2 dropped entirely
	doc2 := map[string]any{"configuration": map[string]any{"vrfs": []any{
		map[string]any{
			"name": "default", "tag": "a",
			"routes": []any{
				map[string]any{"prefix": "10.0.0.0/8", "metric": float64(9)},
			},
		},
	}}}
	require.NoError(t, e.ApplyFullConfiguration(ctx, write.Running, doc2))

	require.NotNil(t, db.Row(s.Table("route").Name, route1ID), "matched route must survive and be updated, not recreated")
	require.Nil(t, db.Row(s.Table("route").Name, route2ID), "route absent from the resubmitted list must be deleted")

	updated, err := rz.Resolve(ctx, "/vrfs/default/routes/10.0.0.0%2F8")
	require.NoError(t, err)
	v, ok := updated.Tail().Row.Get("metric")
	require.True(t, ok)
	require.Equal(t, int64(9), v.Int())

	rows := db.Rows(s.Table("route").Name)
	require.Len(t, rows, 1)
}
