package conn_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/switchdb/restd/internal/conn"
	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.Load([]byte(`{"root":"system","tables":{"system":{"is_root":true}}}`))
	require.NoError(t, err)
	return s
}

func TestManagerFiresEstablishedOnce(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	m := conn.New(db, 5*time.Millisecond, 5*time.Millisecond)

	var established int32
	m.OnEstablished(func(ctx context.Context) { atomic.AddInt32(&established, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Run(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&established) >= 1 }, 200*time.Millisecond, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 1, atomic.LoadInt32(&established))
}

func TestManagerFiresChangesOnSeqnoAdvance(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	m := conn.New(db, 5*time.Millisecond, 5*time.Millisecond)

	var changes int32
	m.OnChanges(func(ctx context.Context) { atomic.AddInt32(&changes, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, atomic.LoadInt32(&changes))

	txn := db.OpenTransaction(ctx)
	txn.Insert(s.Table("system"))
	_, err := txn.Commit(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&changes) >= 1 }, 200*time.Millisecond, 2*time.Millisecond)
}

type fakeConnector struct {
	mu       sync.Mutex
	attempts int
	succeedAt int
}

func (c *fakeConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts < c.succeedAt {
		return errConnectFailed
	}
	return nil
}

var errConnectFailed = &connectError{}

type connectError struct{}

func (*connectError) Error() string { return "connect failed" }

func TestManagerReconnectsAfterFailures(t *testing.T) {
	s := testSchema(t)
	db := idl.New(s)
	db.SetConnected(false)

	connector := &fakeConnector{succeedAt: 3}
	m := conn.New(db, 5*time.Millisecond, 5*time.Millisecond).WithConnector(connector)

	var established int32
	m.OnEstablished(func(ctx context.Context) { atomic.AddInt32(&established, 1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.False(t, m.Ready())
	m.Run(ctx)

	require.Eventually(t, func() bool { return m.Ready() }, 500*time.Millisecond, 2*time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&established) >= 1 }, 200*time.Millisecond, 2*time.Millisecond)
}
