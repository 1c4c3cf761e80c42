package write

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

// bodyOverlay implements schema.RowValues by preferring a decoded request
// body's own column values and falling back to an existing row's committed
// values. Needed because staged transaction ops are invisible through the
// Row API until Commit runs (internal/idl/txn.go), so a dynamic-category
// rule evaluated while still building the transaction (e.g. the Route
// table's columns "following" its own "from" column, spec.md S3/S4) must
// read the value being written in this very request, not the row.
type bodyOverlay struct {
	body map[string]any
	row  *idl.Row
}

func (o *bodyOverlay) StringValue(column string) (string, bool) {
	if v, ok := o.body[column]; ok {
		return stringifyNative(v), true
	}
	if o.row != nil {
		return o.row.StringValue(column)
	}
	return "", false
}

func stringifyNative(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return ""
	}
}

// applyConfiguration stages writes for every configuration-category column,
// map-column and non-parent reference column of table, per spec.md §4.5's
// POST/PUT body handling. existingRow is nil for POST (create) and the
// current row for PUT (full replace); isCreate selects POST's "fill
// defaults for missing columns" behavior over PUT's "absent mutable keys
// reset to empty" behavior.
func (e *Engine) applyConfiguration(ctx context.Context, txn *idl.Transaction, table *schema.Table, row *idl.Row, config map[string]any, existingRow *idl.Row, isCreate bool) error {
	for key := range config {
		if _, ok := table.Columns[key]; ok {
			continue
		}
		if _, ok := table.MapColumns[key]; ok {
			continue
		}
		if _, ok := table.Refs[key]; ok {
			continue
		}
		return apierr.New(apierr.DataValidationFailed, "unknown configuration key %q on %q", key, table.Name).WithField(key, "unknown column")
	}

	overlay := &bodyOverlay{body: config, row: existingRow}

	for _, col := range table.Columns {
		if schema.EffectiveCategory(col, overlay) != schema.Configuration {
			continue
		}
		raw, present := config[col.Name]
		if !present {
			if isCreate {
				txn.SetColumn(row, col.Name, emptyColumnValue(col))
				continue
			}
			if col.Mutable {
				txn.SetColumn(row, col.Name, emptyColumnValue(col))
			}
			continue
		}
		value, err := idl.ValueFromNative(col.Type, raw)
		if err != nil {
			return apierr.New(apierr.DataValidationFailed, "column %q: %v", col.Name, err).WithField(col.Name, err.Error())
		}
		txn.SetColumn(row, col.Name, value)
	}

	for _, mc := range table.MapColumns {
		if schema.EffectiveCategoryMap(mc, overlay) != schema.Configuration {
			continue
		}
		raw, present := config[mc.Name]
		if !present {
			if isCreate || mc.Mutable {
				txn.SetMap(row, mc.Name, map[string]idl.Value{})
			}
			continue
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return apierr.New(apierr.DataValidationFailed, "column %q: expected an object", mc.Name).WithField(mc.Name, "expected object")
		}
		values := make(map[string]idl.Value, len(m))
		for k, v := range m {
			val, err := idl.ValueFromNative(mc.ValueType, v)
			if err != nil {
				return apierr.New(apierr.DataValidationFailed, "column %q key %q: %v", mc.Name, k, err).WithField(mc.Name, err.Error())
			}
			values[k] = val
		}
		txn.SetMap(row, mc.Name, values)
	}

	for _, ref := range table.Refs {
		if ref.RelKind == schema.RelationParent {
			continue // set by linkIntoParent, not by a body reference value
		}
		if schema.EffectiveCategory(&ref.Column, overlay) != schema.Configuration {
			continue
		}
		raw, present := config[ref.Name]
		if !present {
			if isCreate || ref.Mutable {
				txn.SetRef(row, ref.Name, &idl.RefValue{})
			}
			continue
		}
		refVal, err := e.resolveRefValue(ctx, ref, raw)
		if err != nil {
			return err
		}
		txn.SetRef(row, ref.Name, refVal)
	}

	return nil
}

// emptyColumnValue is the value a missing configuration column resets to:
// the schema's declared empty_value if set, else the type's zero value.
func emptyColumnValue(col *schema.Column) idl.Value {
	if col.Empty != nil {
		if v, err := idl.ValueFromNative(col.Type, col.Empty); err == nil {
			return v
		}
	}
	return idl.Empty(col.Type)
}

// resolveRefValue decodes a reference column's body value (a URI string, a
// list of URIs, or a key/value object of URIs) into a RefValue, resolving
// every URI through the URI Resolver per spec.md §4.5 ("unresolved => 400").
func (e *Engine) resolveRefValue(ctx context.Context, ref *schema.Reference, raw any) (*idl.RefValue, error) {
	switch {
	case ref.Scalar():
		uri, ok := raw.(string)
		if !ok {
			return nil, apierr.New(apierr.DataValidationFailed, "column %q: expected a uri string", ref.Name).WithField(ref.Name, "expected uri string")
		}
		id, err := e.resolveURIToID(ctx, ref, uri)
		if err != nil {
			return nil, err
		}
		return &idl.RefValue{Scalar: &id}, nil

	case ref.KVType:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, apierr.New(apierr.DataValidationFailed, "column %q: expected an object of uris", ref.Name).WithField(ref.Name, "expected object of uris")
		}
		kv := make(map[string]uuid.UUID, len(m))
		order := make([]string, 0, len(m))
		for k, v := range m {
			uri, ok := v.(string)
			if !ok {
				return nil, apierr.New(apierr.DataValidationFailed, "column %q key %q: expected a uri string", ref.Name, k).WithField(ref.Name, "expected uri string")
			}
			id, err := e.resolveURIToID(ctx, ref, uri)
			if err != nil {
				return nil, err
			}
			kv[k] = id
			order = append(order, k)
		}
		return &idl.RefValue{KV: kv, KVOrder: order}, nil

	default: // ordered list
		list, ok := raw.([]any)
		if !ok {
			return nil, apierr.New(apierr.DataValidationFailed, "column %q: expected a list of uris", ref.Name).WithField(ref.Name, "expected list of uris")
		}
		ids := make([]uuid.UUID, 0, len(list))
		for _, v := range list {
			uri, ok := v.(string)
			if !ok {
				return nil, apierr.New(apierr.DataValidationFailed, "column %q: expected a uri string", ref.Name).WithField(ref.Name, "expected uri string")
			}
			id, err := e.resolveURIToID(ctx, ref, uri)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return &idl.RefValue{List: ids}, nil
	}
}

func (e *Engine) resolveURIToID(ctx context.Context, ref *schema.Reference, uri string) (uuid.UUID, error) {
	res, err := e.Resolver.Resolve(ctx, trimRestPrefix(uri))
	if err != nil || res.Tail().Row == nil {
		return uuid.UUID{}, apierr.New(apierr.DataValidationFailed, "column %q: unresolved uri %q", ref.Name, uri).WithField(ref.Name, "unresolved uri")
	}
	if res.Tail().Table.Name != ref.RefTable {
		return uuid.UUID{}, apierr.New(apierr.DataValidationFailed, "column %q: uri %q does not address a %s", ref.Name, uri, ref.RefTable).WithField(ref.Name, "wrong table")
	}
	return res.Tail().Row.ID, nil
}

func trimRestPrefix(uri string) string {
	const prefix = "/rest/v1"
	if len(uri) >= len(prefix) && uri[:len(prefix)] == prefix {
		uri = uri[len(prefix):]
	}
	for len(uri) > 0 && uri[0] == '/' {
		uri = uri[1:]
	}
	return uri
}
