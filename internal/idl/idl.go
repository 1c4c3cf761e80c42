// Package idl is a thin façade over the switch's configuration/state
// database, standing in for the external IDL wire protocol that spec.md §1
// explicitly treats as an out-of-scope collaborator. It keeps an in-memory,
// transactional replica with row-level change tracking, exactly the surface
// spec.md §4.2 requires of the DB Adapter: index_to_row/row_to_index,
// open_transaction/commit with an INCOMPLETE retry state, on-demand column
// fetch, and a monotonically increasing change-tracking seqno.
package idl

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/switchdb/restd/internal/schema"
)

// DB is the in-memory transactional replica.
type DB struct {
	mu     sync.Mutex
	schema *schema.Schema

	tables map[string]*tableStore

	seqno     uint64
	connected bool

	nextTxnID uint64
}

type tableStore struct {
	rows           map[uuid.UUID]*Row
	tombstone      []*Row // rows deleted since the last ClearTracking
	tableFetchDone bool   // whether EnsureTableFetched has already run once
}

// New creates a replica for the given schema. The replica starts connected;
// tests and the Connection Manager toggle connectivity with SetConnected to
// exercise the INCOMPLETE retry path.
func New(s *schema.Schema) *DB {
	db := &DB{
		schema:    s,
		tables:    make(map[string]*tableStore),
		connected: true,
	}
	for name := range s.Tables {
		db.tables[name] = &tableStore{rows: make(map[uuid.UUID]*Row)}
	}
	return db
}

// Schema returns the schema this replica was built from.
func (db *DB) Schema() *schema.Schema { return db.schema }

// Seqno returns the current change-tracking sequence number.
func (db *DB) Seqno() uint64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.seqno
}

// Connected reports whether the simulated IDL connection is up. Used by the
// Connection Manager's reconnect loop and by handlers that must fail fast
// per SPEC_FULL.md §4 ("REST daemon lost its OVSDB connection").
func (db *DB) Connected() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.connected
}

// SetConnected sets the simulated connection state.
func (db *DB) SetConnected(up bool) {
	db.mu.Lock()
	db.connected = up
	db.mu.Unlock()
}

// Row looks up a row by table and id, regardless of index. Returns nil if
// not found.
func (db *DB) Row(table string, id uuid.UUID) *Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts, ok := db.tables[table]
	if !ok {
		return nil
	}
	return ts.rows[id]
}

// Rows returns every live row of a table, in an arbitrary but stable-within-
// a-call order (sorted by id).
func (db *DB) Rows(table string) []*Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts, ok := db.tables[table]
	if !ok {
		return nil
	}
	rows := make([]*Row, 0, len(ts.rows))
	for _, r := range ts.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID.String() < rows[j].ID.String() })
	return rows
}
