// Package validate implements the Validator Adapter: the pending-mutation
// ledger a write transaction assembles as it runs, and the pluggable
// per-table validators that approve or reject it before commit, per
// spec.md §4.6.
package validate

import (
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

// Op classifies a recorded mutation.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

// Mutation is one entry of the pending-mutation ledger: "(op, row, table,
// parent_row, parent_table)" per spec.md §4.6. Body carries the request's
// staged column values for CREATE/UPDATE (nil for DELETE): validators run
// before the enclosing idl.Transaction commits, so a just-created row's own
// columns are not yet visible through the Row API (internal/idl/txn.go
// applies ops only at Commit) — a validator that needs to see "the value
// being written in this request" reads Body instead of Row.
type Mutation struct {
	Op          Op
	Row         *idl.Row
	Table       *schema.Table
	ParentRow   *idl.Row
	ParentTable *schema.Table
	Body        map[string]any
}

// Ledger accumulates mutations during one write as the Write Engine
// assembles them, for the Validator Adapter to run over before commit.
type Ledger struct {
	entries []Mutation
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Record appends one mutation.
func (l *Ledger) Record(m Mutation) {
	l.entries = append(l.entries, m)
}

// ByOp returns every recorded mutation with the given op, in record order.
func (l *Ledger) ByOp(op Op) []Mutation {
	var out []Mutation
	for _, m := range l.entries {
		if m.Op == op {
			out = append(out, m)
		}
	}
	return out
}

// Empty reports whether nothing was recorded.
func (l *Ledger) Empty() bool {
	return len(l.entries) == 0
}
