package idl

import "context"

// EnsureRowFetched fetches every on-demand readonly column of row that has
// not been fetched yet, committing a single transaction if any fetch is
// needed. It is a no-op for tables with OnDemandNone or rows whose readonly
// columns are already resolved.
func (db *DB) EnsureRowFetched(ctx context.Context, row *Row) error {
	var pending []string
	for _, col := range row.Table.OnDemandReadonly {
		if !row.fetched[col] {
			pending = append(pending, col)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	txn := db.OpenTransaction(ctx)
	for _, col := range pending {
		txn.FetchColumn(row, col)
	}
	_, err := txn.Wait(ctx)
	return err
}

// EnsureTableFetched triggers a one-time fetch_table_column for every
// readonly column of table, per spec.md §4.4's on-demand fetch policy for
// depth>0 collection reads. Subsequent calls are no-ops once the table's
// readonly columns have been subscribed.
func (db *DB) EnsureTableFetched(ctx context.Context, tableName string) error {
	db.mu.Lock()
	ts, ok := db.tables[tableName]
	if !ok {
		db.mu.Unlock()
		return nil
	}
	if ts.tableFetchDone {
		db.mu.Unlock()
		return nil
	}
	db.mu.Unlock()

	table := db.schema.Table(tableName)
	if table == nil || len(table.OnDemandReadonly) == 0 {
		return nil
	}
	txn := db.OpenTransaction(ctx)
	for _, col := range table.OnDemandReadonly {
		txn.FetchTableColumn(table, col)
	}
	if _, err := txn.Wait(ctx); err != nil {
		return err
	}
	db.mu.Lock()
	ts.tableFetchDone = true
	db.mu.Unlock()
	return nil
}
