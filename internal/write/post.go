package write

import (
	"context"

	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
)

// applyReferencedBy processes a top-level resource's "referenced_by" body
// entries, per spec.md §4.5: for each entry, the new row's id is appended
// to the referencing row's forward reference column named by the entry's
// uri, and every column named in the entry's "attributes" is copied from
// the new row's own configuration onto the referencing row (Open Question
// 3 in SPEC_FULL.md §5 — the only reading under which "attributes" does
// useful work, since the reference itself carries no other payload).
func (e *Engine) applyReferencedBy(ctx context.Context, txn *idl.Transaction, body map[string]any, config map[string]any, row *idl.Row) error {
	entries, ok := body["referenced_by"].([]any)
	if !ok {
		return nil
	}
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			return apierr.New(apierr.DataValidationFailed, "referenced_by: expected an object")
		}
		uri, _ := entry["uri"].(string)
		if uri == "" {
			return apierr.New(apierr.DataValidationFailed, "referenced_by: missing uri")
		}

		res, err := e.Resolver.Resolve(ctx, trimRestPrefix(uri))
		if err != nil {
			return apierr.New(apierr.DataValidationFailed, "referenced_by: unresolved uri %q", uri).WithCode(apierr.CodeNoReferencedBy)
		}
		tail := res.Tail()
		owner := predecessor(res, tail)
		if owner == nil || owner.Row == nil {
			return apierr.New(apierr.DataValidationFailed, "referenced_by: uri %q does not address a reference collection", uri).WithCode(apierr.CodeNoReferencedBy)
		}
		ref, ok := owner.Table.Refs[tail.Column]
		if !ok {
			return apierr.New(apierr.DataValidationFailed, "referenced_by: uri %q is not a reference", uri).WithCode(apierr.CodeNoReferencedBy)
		}

		if err := appendForwardRef(txn, owner.Row, ref, row.ID, config); err != nil {
			return apierr.New(apierr.DataValidationFailed, "referenced_by: %v", err).WithCode(apierr.CodeFailedReferencedBy)
		}

		attrs, _ := entry["attributes"].([]any)
		for _, a := range attrs {
			name, _ := a.(string)
			if name == "" {
				continue
			}
			col, ok := owner.Table.Columns[name]
			if !ok {
				return apierr.New(apierr.DataValidationFailed, "referenced_by: unknown attribute %q on %q", name, owner.Table.Name).WithCode(apierr.CodeFailedReferencedBy)
			}
			native, ok := config[name]
			if !ok {
				continue
			}
			value, err := idl.ValueFromNative(col.Type, native)
			if err != nil {
				return apierr.New(apierr.DataValidationFailed, "referenced_by attribute %q: %v", name, err).WithCode(apierr.CodeFailedReferencedBy)
			}
			txn.SetColumn(owner.Row, name, value)
		}
	}
	return nil
}
