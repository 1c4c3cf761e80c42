package notify_test

import (
	"context"
	"sync"

	"github.com/switchdb/restd/internal/notify"
)

// recordingDispatcher collects every envelope sent to it, keyed by
// subscriber name, for assertions in tests.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent map[string][]notify.Envelope
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{sent: make(map[string][]notify.Envelope)}
}

func (d *recordingDispatcher) Send(ctx context.Context, subscriberName string, env notify.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[subscriberName] = append(d.sent[subscriberName], env)
	return nil
}

func (d *recordingDispatcher) last(subscriberName string) (notify.Envelope, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs := d.sent[subscriberName]
	if len(msgs) == 0 {
		return notify.Envelope{}, false
	}
	return msgs[len(msgs)-1], true
}
