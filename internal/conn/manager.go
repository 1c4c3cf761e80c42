// Package conn implements the Connection Manager, per spec.md §4.10: the
// single event loop that watches the IDL replica for forward progress and
// connectivity changes, firing "established" callbacks once after each new
// connection and "changes" callbacks whenever the replica's seqno advances.
//
// The shape mirrors core/backend/jobs.go's ProcessJobsAsync: a background
// goroutine started once, woken on a fixed heartbeat, that must never be
// started twice. Unlike jobs.go's job queue, there is nothing to dequeue
// here — internal/idl.Transaction.Wait already self-drives the per-
// transaction INCOMPLETE retry spec.md §4.10 calls the "pending transaction
// list" watchdog, so the Manager's own job is purely the IDL-level establish/
// changes dispatch and the reconnect loop.
package conn

import (
	"context"
	"sync"
	"time"

	"github.com/switchdb/restd/internal/idl"
	"github.com/switchdb/restd/internal/obslog"
)

// Connector attempts to (re-)establish the underlying IDL connection. In
// production this would dial the switch's management socket; tests and the
// in-memory internal/idl.DB exercise it by flipping DB.SetConnected.
type Connector interface {
	Connect(ctx context.Context) error
}

// Manager is the Connection Manager's single event loop over one replica.
type Manager struct {
	db                *idl.DB
	tickInterval      time.Duration
	reconnectInterval time.Duration
	connector         Connector

	mu              sync.Mutex
	lastSeqno       uint64
	everEstablished bool
	established     []func(ctx context.Context)
	changes         []func(ctx context.Context)

	running bool
}

// New builds a Manager. tickInterval governs how often it checks for IDL
// progress while connected; reconnectInterval governs the retry cadence
// while disconnected, per spec.md §4.10's "schedule reconnect at a fixed
// timeout, retry indefinitely".
func New(db *idl.DB, tickInterval, reconnectInterval time.Duration) *Manager {
	return &Manager{db: db, tickInterval: tickInterval, reconnectInterval: reconnectInterval}
}

// WithConnector registers the reconnect strategy. Optional: a Manager with
// no connector simply waits for something else (a test, an operator) to
// call DB.SetConnected(true) again.
func (m *Manager) WithConnector(c Connector) *Manager {
	m.connector = c
	return m
}

// OnEstablished registers a callback run once every time the replica
// transitions into the connected state (including the very first tick, per
// spec.md §4.10's "established ... on first successful connection").
func (m *Manager) OnEstablished(f func(ctx context.Context)) {
	m.established = append(m.established, f)
}

// OnChanges registers a callback run on every tick where the replica's
// seqno advanced since the previous tick. The Notification Engine's Tick
// method is the canonical subscriber of this callback.
func (m *Manager) OnChanges(f func(ctx context.Context)) {
	m.changes = append(m.changes, f)
}

// Ready reports whether the replica is currently connected, the signal
// internal/restapi's top-level middleware uses to fail fast with 503
// (SPEC_FULL.md §4, "REST daemon lost its OVSDB connection").
func (m *Manager) Ready() bool {
	return m.db.Connected()
}

// Run starts the event loop goroutine and returns immediately. Must only be
// called once, mirroring core/backend/jobs.go's ProcessJobsAsync contract.
func (m *Manager) Run(ctx context.Context) {
	if m.running {
		panic("conn: Manager.Run called twice")
	}
	m.running = true
	go m.loop(ctx)
}

func (m *Manager) loop(ctx context.Context) {
	for {
		interval := m.tickInterval
		if !m.db.Connected() {
			interval = m.reconnectInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		m.tick(ctx)
	}
}

func (m *Manager) tick(ctx context.Context) {
	if !m.db.Connected() {
		m.attemptReconnect(ctx)
		return
	}

	if !m.everEstablished {
		m.everEstablished = true
		m.fire(ctx, m.established, "established")
	}

	seqno := m.db.Seqno()
	m.mu.Lock()
	advanced := seqno != m.lastSeqno
	m.lastSeqno = seqno
	m.mu.Unlock()
	if advanced {
		m.fire(ctx, m.changes, "changes")
	}
}

func (m *Manager) attemptReconnect(ctx context.Context) {
	if m.connector == nil {
		return
	}
	if err := m.connector.Connect(ctx); err != nil {
		obslog.FromContext(ctx).WithField("error", err.Error()).Warn("conn: reconnect attempt failed")
		return
	}
	m.db.SetConnected(true)
	m.everEstablished = false
}

func (m *Manager) fire(ctx context.Context, callbacks []func(ctx context.Context), label string) {
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					obslog.FromContext(ctx).WithField("panic", r).Errorf("conn: %s callback panicked", label)
				}
			}()
			cb(ctx)
		}()
	}
}
