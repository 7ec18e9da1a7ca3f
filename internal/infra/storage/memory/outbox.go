package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "kisaanconnect/internal/app/outbox"
	infraoutbox "kisaanconnect/internal/infra/outbox"
)

// Outbox keeps events in memory until the worker relays them. Sent events
// are dropped.
type Outbox struct {
	mu      sync.Mutex
	order   []string
	records map[string]*outboxEntry
}

type outboxEntry struct {
	record   appoutbox.EventRecord
	state    string
	attempts int
	next     time.Time
	lastErr  string
}

func NewOutbox() *Outbox {
	return &Outbox{records: make(map[string]*outboxEntry)}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records[record.ID] = &outboxEntry{record: record, state: infraoutbox.StateNew}
	o.order = append(o.order, record.ID)
	return nil
}

func (o *Outbox) Flush(ctx context.Context) error {
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.Envelope, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	for _, id := range o.order {
		entry := o.records[id]
		if entry.state != infraoutbox.StateNew && entry.state != infraoutbox.StateFailed {
			continue
		}
		if entry.next.After(now) {
			continue
		}
		entry.state = infraoutbox.StateClaimed
		rec := entry.record
		return &infraoutbox.Envelope{
			ID:         rec.ID,
			Name:       rec.Name,
			Payload:    append([]byte(nil), rec.Payload...),
			OccurredAt: rec.OccurredAt,
			Aggregate:  rec.Aggregate,
			Headers:    rec.Headers,
			Attempts:   entry.attempts,
		}, nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.records, id)
	for i, existing := range o.order {
		if existing == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if entry, ok := o.records[id]; ok {
		entry.state = infraoutbox.StateFailed
		entry.attempts++
		entry.next = next
		entry.lastErr = errMsg
	}
	return nil
}

// Pending reports how many events still wait for delivery.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

// Names lists pending event names in insertion order.
func (o *Outbox) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.records[id].record.Name)
	}
	return out
}

var (
	_ appoutbox.Outbox  = (*Outbox)(nil)
	_ infraoutbox.Queue = (*Outbox)(nil)
)
