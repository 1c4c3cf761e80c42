package idl

// Change is one row's change-tracking state as observed by a change tick,
// mirroring the per-table track_get result from spec.md §4.7.
type Change struct {
	Row            *Row // for a deleted row, the tombstoned row, no longer in the replica
	ID             string
	CreateSeqno    uint64
	UpdateSeqno    uint64
	DeleteSeqno    uint64
	ChangedColumns []string
}

// ChangesSince returns every row of table whose create/update/delete seqno
// exceeds since, including rows deleted since the last ClearTracking call.
// This is the data the Notification Engine's change-tick loop scans
// (spec.md §4.7).
func (db *DB) ChangesSince(table string, since uint64) []Change {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts, ok := db.tables[table]
	if !ok {
		return nil
	}
	var changes []Change
	for _, row := range ts.rows {
		tr := row.tracking
		if tr.CreateSeqno > since || tr.UpdateSeqno > since || tr.DeleteSeqno > since {
			changes = append(changes, rowChange(row))
		}
	}
	for _, row := range ts.tombstone {
		if row.tracking.DeleteSeqno > since {
			changes = append(changes, rowChange(row))
		}
	}
	return changes
}

func rowChange(row *Row) Change {
	return Change{
		Row:            row,
		ID:             row.ID.String(),
		CreateSeqno:    row.tracking.CreateSeqno,
		UpdateSeqno:    row.tracking.UpdateSeqno,
		DeleteSeqno:    row.tracking.DeleteSeqno,
		ChangedColumns: row.ChangedColumns(),
	}
}

// ClearTracking resets the per-tick changed-columns bookkeeping and
// forgets tombstones, after a change tick has been fully dispatched to
// subscribers ("after dispatch, change-tracking state is cleared for the
// next tick", spec.md §4.7).
func (db *DB) ClearTracking() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, ts := range db.tables {
		for _, row := range ts.rows {
			row.tracking.Columns = make(map[string]bool)
		}
		ts.tombstone = nil
	}
}
