package write

import (
	"context"

	jsonpatch "gopkg.in/evanphx/json-patch.v4"

	"github.com/goccy/go-json"
	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/read"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/validate"
)

// Patch applies an RFC 6902 JSON Patch document to an instance's
// configuration view, per spec.md §4.5: semantically a read-modify-write,
// recorded as UPDATE. PATCH on an immutable table is refused with 405, as
// POST and DELETE are (SPEC_FULL.md §5 Open Question 2); Put does not
// refuse immutable tables.
func (e *Engine) Patch(ctx context.Context, head *resource.Resource, patchDoc []byte) error {
	tail := head.Tail()
	if tail.IsCollection() || tail.Row == nil {
		return apierr.New(apierr.MethodNotAllowed, "patch requires an instance uri")
	}
	if e.Schema.Immutable(tail.Table) {
		return apierr.New(apierr.MethodNotAllowed, "table %q is immutable", tail.Table.Name)
	}

	patch, err := jsonpatch.DecodePatch(patchDoc)
	if err != nil {
		return apierr.New(apierr.DataValidationFailed, "invalid json patch: %v", err)
	}

	current, err := read.New(e.Schema, e.DB).Serialize(ctx, head, &read.Params{Selector: "configuration"})
	if err != nil {
		return err
	}
	currentDoc, ok := current.(map[string]any)
	if !ok {
		return apierr.New(apierr.TransactionFailed, "unexpected serialization shape")
	}
	currentJSON, err := json.Marshal(currentDoc["configuration"])
	if err != nil {
		return apierr.New(apierr.TransactionFailed, "marshal current configuration: %v", err)
	}

	patchedJSON, err := patch.Apply(currentJSON)
	if err != nil {
		return apierr.New(apierr.DataValidationFailed, "applying json patch: %v", err)
	}

	var patched map[string]any
	if err := json.Unmarshal(patchedJSON, &patched); err != nil {
		return apierr.New(apierr.DataValidationFailed, "patched document is not an object: %v", err)
	}

	txn := e.DB.OpenTransaction(ctx)
	if err := e.applyConfiguration(ctx, txn, tail.Table, tail.Row, patched, tail.Row, false); err != nil {
		return err
	}

	ledger := validate.NewLedger()
	ledger.Record(validate.Mutation{Op: validate.OpUpdate, Row: tail.Row, Table: tail.Table, Body: patched})
	if err := e.validateLedger(ctx, ledger); err != nil {
		return err
	}

	if _, err := txn.Wait(ctx); err != nil {
		return apierr.New(apierr.TransactionFailed, "commit: %v", err)
	}
	return nil
}
