package idl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/schema"
)

// watchdogInterval is the retry cadence Wait uses when Commit reports
// Incomplete, mirroring the Connection Manager's fixed-timeout watchdog
// from spec.md §4.10.
const watchdogInterval = 50 * time.Millisecond

// Result is the outcome of a transaction commit attempt, per spec.md §4.2.
type Result string

// The four commit outcomes.
const (
	Success    Result = "SUCCESS"
	Incomplete Result = "INCOMPLETE"
	Aborted    Result = "ABORTED"
	ErrorState Result = "ERROR"
)

type opKind int

const (
	opInsert opKind = iota
	opSetColumn
	opSetMap
	opSetRef
	opDelete
	opFetchColumn
	opFetchTableColumn
)

type op struct {
	kind      opKind
	table     string
	id        uuid.UUID // target row, or zero for opInsert/opFetchTableColumn
	column    string
	value     Value
	mapValue  map[string]Value
	refValue  *RefValue
}

// Transaction is a single unit of work against the replica. Callers stage
// mutations with Insert/SetColumn/SetMap/SetRef/Delete/FetchColumn, then
// call Commit. A Transaction must not be reused after a non-INCOMPLETE
// commit.
type Transaction struct {
	db      *DB
	id      uint64
	ops     []op
	newRows map[uuid.UUID]*Row // rows created in this txn, not yet in db.tables

	event  chan struct{}
	result Result
	err    error
	done   bool
}

// OpenTransaction begins a new transaction against the replica.
func (db *DB) OpenTransaction(_ context.Context) *Transaction {
	db.mu.Lock()
	db.nextTxnID++
	id := db.nextTxnID
	db.mu.Unlock()
	return &Transaction{db: db, id: id, newRows: make(map[uuid.UUID]*Row), event: make(chan struct{}, 1)}
}

// ID returns the transaction's identifier, useful for log correlation.
func (t *Transaction) ID() uint64 { return t.id }

// Insert stages the creation of a new row in table and returns the row
// (visible to subsequent staged operations within the same transaction,
// but not to other transactions until Commit succeeds).
func (t *Transaction) Insert(table *schema.Table) *Row {
	id := uuid.New()
	row := newRow(table, id)
	t.newRows[id] = row
	t.ops = append(t.ops, op{kind: opInsert, table: table.Name, id: id})
	return row
}

// SetColumn stages a scalar column write.
func (t *Transaction) SetColumn(row *Row, column string, value Value) {
	t.ops = append(t.ops, op{kind: opSetColumn, table: row.Table.Name, id: row.ID, column: column, value: value})
}

// SetMap stages a map-column write, replacing the entire map.
func (t *Transaction) SetMap(row *Row, column string, value map[string]Value) {
	t.ops = append(t.ops, op{kind: opSetMap, table: row.Table.Name, id: row.ID, column: column, mapValue: value})
}

// SetRef stages a reference-column write, replacing the entire reference
// value (scalar/list/kv), per spec.md §4.5.
func (t *Transaction) SetRef(row *Row, column string, value *RefValue) {
	t.ops = append(t.ops, op{kind: opSetRef, table: row.Table.Name, id: row.ID, column: column, refValue: value})
}

// Delete stages the removal of row.
func (t *Transaction) Delete(row *Row) {
	t.ops = append(t.ops, op{kind: opDelete, table: row.Table.Name, id: row.ID})
}

// FetchColumn stages an on-demand fetch of one column on one row, per
// spec.md §4.2's fetch_column.
func (t *Transaction) FetchColumn(row *Row, column string) {
	t.ops = append(t.ops, op{kind: opFetchColumn, table: row.Table.Name, id: row.ID, column: column})
}

// FetchTableColumn stages an on-demand fetch of one column across every row
// of a table, per spec.md §4.2's fetch_table_column.
func (t *Transaction) FetchTableColumn(table *schema.Table, column string) {
	t.ops = append(t.ops, op{kind: opFetchTableColumn, table: table.Name, column: column})
}

// Commit attempts to apply every staged operation atomically. If the
// replica is currently disconnected (SetConnected(false)), Commit returns
// Incomplete without applying anything and without consuming the staged
// ops; the caller (normally the Connection Manager's watchdog) must call
// Commit again later.
func (t *Transaction) Commit(ctx context.Context) (Result, error) {
	if t.done {
		return t.result, t.err
	}
	db := t.db
	db.mu.Lock()
	if !db.connected {
		db.mu.Unlock()
		return Incomplete, nil
	}

	for _, o := range t.ops {
		if db.tables[o.table] == nil {
			db.mu.Unlock()
			t.finish(ErrorState, fmt.Errorf("unknown table %q", o.table))
			return t.result, t.err
		}
	}

	newSeqno := db.seqno + 1
	for _, o := range t.ops {
		ts := db.tables[o.table]
		switch o.kind {
		case opInsert:
			row := t.newRows[o.id]
			ts.rows[o.id] = row
			row.tracking.CreateSeqno = newSeqno
		case opSetColumn:
			row := t.resolveRow(ts, o.id)
			if row == nil {
				continue
			}
			row.values[o.column] = o.value
			row.fetched[o.column] = true
			markUpdated(row, o.column, newSeqno)
		case opSetMap:
			row := t.resolveRow(ts, o.id)
			if row == nil {
				continue
			}
			row.mapValues[o.column] = o.mapValue
			row.fetched[o.column] = true
			markUpdated(row, o.column, newSeqno)
		case opSetRef:
			row := t.resolveRow(ts, o.id)
			if row == nil {
				continue
			}
			row.refs[o.column] = o.refValue
			row.fetched[o.column] = true
			markUpdated(row, o.column, newSeqno)
		case opDelete:
			row := ts.rows[o.id]
			if row == nil {
				continue
			}
			delete(ts.rows, o.id)
			row.tracking.DeleteSeqno = newSeqno
			ts.tombstone = append(ts.tombstone, row)
		case opFetchColumn:
			row := t.resolveRow(ts, o.id)
			if row == nil {
				continue
			}
			row.fetched[o.column] = true
		case opFetchTableColumn:
			for _, row := range ts.rows {
				row.fetched[o.column] = true
			}
		}
	}
	if len(t.ops) > 0 {
		db.seqno = newSeqno
	}
	db.mu.Unlock()

	t.finish(Success, nil)
	return t.result, t.err
}

// resolveRow finds a row either among rows newly inserted by this same
// transaction or already committed to the table.
func (t *Transaction) resolveRow(ts *tableStore, id uuid.UUID) *Row {
	if row, ok := t.newRows[id]; ok {
		return row
	}
	return ts.rows[id]
}

func markUpdated(row *Row, column string, seqno uint64) {
	if row.tracking.CreateSeqno != seqno {
		row.tracking.UpdateSeqno = seqno
	}
	row.tracking.Columns[column] = true
}

func (t *Transaction) finish(result Result, err error) {
	t.result, t.err, t.done = result, err, true
	select {
	case t.event <- struct{}{}:
	default:
	}
}

// Wait blocks until the transaction reaches a terminal Commit result,
// re-attempting Commit whenever the replica reports INCOMPLETE. This is the
// "callers block on a per-transaction completion event" behavior from
// spec.md §4.2; in production the Connection Manager's watchdog drives the
// retries, but callers that just want an answer can use Wait directly.
func (t *Transaction) Wait(ctx context.Context) (Result, error) {
	for {
		result, err := t.Commit(ctx)
		if result != Incomplete {
			return result, err
		}
		select {
		case <-ctx.Done():
			return Incomplete, ctx.Err()
		case <-time.After(watchdogInterval):
		}
	}
}
