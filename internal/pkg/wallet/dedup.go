package wallet

import (
	"sync"
	"time"
)

// DefaultTrackerCapacity bounds the in-memory dedup index.
const DefaultTrackerCapacity = 1000

// ProcessedEvent records that a (payment, event type) pair was handled.
type ProcessedEvent struct {
	PaymentID string
	EventType string
	SeenAt    time.Time
}

// EventTracker is a bounded, concurrency-safe index of recently processed
// webhook events keyed by "paymentID:eventType". It is advisory only: a miss
// does not prove the event was never handled (cold start, eviction, another
// instance). The unique index on payment_transactions.payment_id is the
// correctness backstop; this tracker just short-circuits obvious replays
// before they reach the database.
type EventTracker struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]ProcessedEvent
	order    []string
}

// NewEventTracker creates a tracker holding at most capacity entries.
func NewEventTracker(capacity int) *EventTracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	return &EventTracker{
		capacity: capacity,
		entries:  make(map[string]ProcessedEvent, capacity),
	}
}

func trackerKey(paymentID, eventType string) string {
	return paymentID + ":" + eventType
}

// IsProcessed reports whether the pair was seen recently.
func (t *EventTracker) IsProcessed(paymentID, eventType string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[trackerKey(paymentID, eventType)]
	return ok
}

// MarkProcessed records the pair, evicting the oldest tenth of the tracker in
// one batch once capacity is exceeded. Batch eviction keeps the common insert
// path cheap compared to strict LRU bookkeeping.
func (t *EventTracker) MarkProcessed(paymentID, eventType string) {
	key := trackerKey(paymentID, eventType)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[key]; !ok {
		t.order = append(t.order, key)
	}
	t.entries[key] = ProcessedEvent{
		PaymentID: paymentID,
		EventType: eventType,
		SeenAt:    time.Now(),
	}

	if len(t.entries) <= t.capacity {
		return
	}

	evict := t.capacity / 10
	if evict < 1 {
		evict = 1
	}
	for _, old := range t.order[:evict] {
		delete(t.entries, old)
	}
	t.order = t.order[evict:]
}

// Len returns the number of tracked entries.
func (t *EventTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
