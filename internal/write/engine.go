// Package write implements the Write Engine: POST/PUT/PATCH/DELETE against
// a resolved Resource, plus the declarative full-configuration apply, per
// spec.md §4.5. Every write runs inside one idl.Transaction; validators are
// deferred to the Validator Adapter, which runs against the pending-
// mutation ledger this package builds (internal/validate).
package write

import (
	"context"

	"github.com/switchdb/restd/internal/apierr"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/resource"
	"github.com/switchdb/restd/internal/schema"
	"github.com/switchdb/restd/internal/validate"
)

// Engine is the Write Engine.
type Engine struct {
	Schema     *schema.Schema
	DB         *idl.DB
	Resolver   *resource.Resolver
	Validators *validate.Adapter // nil runs no validators
}

// New builds a Write Engine over one schema/replica pair.
func New(s *schema.Schema, db *idl.DB, rz *resource.Resolver) *Engine {
	return &Engine{Schema: s, DB: db, Resolver: rz}
}

// WithValidators attaches the Validator Adapter every write runs its
// pending-mutation ledger through before commit, per spec.md §4.6.
func (e *Engine) WithValidators(a *validate.Adapter) *Engine {
	e.Validators = a
	return e
}

// validate runs l through the Validator Adapter if one is attached.
func (e *Engine) validateLedger(ctx context.Context, l *validate.Ledger) error {
	if e.Validators == nil {
		return nil
	}
	return e.Validators.Run(ctx, l, e.Schema, e.DB)
}

// Create implements POST on a collection_uri: insert one row under the
// resolved collection's parent, per spec.md §4.5.
func (e *Engine) Create(ctx context.Context, head *resource.Resource, body map[string]any) (string, error) {
	tail := head.Tail()
	if !tail.IsCollection() {
		return "", apierr.New(apierr.MethodNotAllowed, "create requires a collection uri")
	}
	table := tail.Table
	if e.Schema.Immutable(table) {
		return "", apierr.New(apierr.MethodNotAllowed, "table %q is immutable", table.Name)
	}

	config, _ := body["configuration"].(map[string]any)
	if config == nil {
		config = map[string]any{}
	}

	txn := e.DB.OpenTransaction(ctx)
	row := txn.Insert(table)

	if err := e.applyConfiguration(ctx, txn, table, row, config, nil, true); err != nil {
		return "", err
	}

	parent := predecessor(head, tail)
	if err := e.linkIntoParent(ctx, txn, parent, tail, row, config); err != nil {
		return "", err
	}

	if tail.Relation == resource.RelationTopLevel {
		if err := e.applyReferencedBy(ctx, txn, body, config, row); err != nil {
			return "", err
		}
	}

	ledger := validate.NewLedger()
	var parentRow *idl.Row
	var parentTable *schema.Table
	if parent != nil {
		parentRow, parentTable = parent.Row, parent.Table
	}
	ledger.Record(validate.Mutation{Op: validate.OpCreate, Row: row, Table: table, ParentRow: parentRow, ParentTable: parentTable, Body: config})
	if err := e.validateLedger(ctx, ledger); err != nil {
		return "", err
	}

	if _, err := txn.Wait(ctx); err != nil {
		return "", apierr.New(apierr.TransactionFailed, "commit: %v", err)
	}
	return resource.PathOf(ctx, e.Schema, e.DB, table, row), nil
}

// Put implements PUT on an instance_uri: full replace of the configuration
// view, per spec.md §4.5.
func (e *Engine) Put(ctx context.Context, head *resource.Resource, body map[string]any) error {
	tail := head.Tail()
	if tail.IsCollection() || tail.Row == nil {
		return apierr.New(apierr.MethodNotAllowed, "update requires an instance uri")
	}
	config, _ := body["configuration"].(map[string]any)
	if config == nil {
		config = map[string]any{}
	}

	txn := e.DB.OpenTransaction(ctx)
	if err := e.applyConfiguration(ctx, txn, tail.Table, tail.Row, config, tail.Row, false); err != nil {
		return err
	}

	ledger := validate.NewLedger()
	ledger.Record(validate.Mutation{Op: validate.OpUpdate, Row: tail.Row, Table: tail.Table, Body: config})
	if err := e.validateLedger(ctx, ledger); err != nil {
		return err
	}

	if _, err := txn.Wait(ctx); err != nil {
		return apierr.New(apierr.TransactionFailed, "commit: %v", err)
	}
	return nil
}

// predecessor returns the node preceding tail in head's chain, or nil if
// tail is head itself.
func predecessor(head, tail *resource.Resource) *resource.Resource {
	if head == tail {
		return nil
	}
	for node := head; node != nil; node = node.Next {
		if node.Next == tail {
			return node
		}
	}
	return nil
}
