package keystore

import (
	"sync"
	"time"
)

// OfflineQueueTTL is the retention window for queued envelopes.
const OfflineQueueTTL = 24 * time.Hour

// QueuedEnvelope is one entry of the optional offline queue: an
// already-encrypted envelope bound for a recipient, queued while that
// recipient was unreachable. The queue never stores plaintext.
type QueuedEnvelope struct {
	RecipientID int64
	Envelope    []byte
	QueuedAt    time.Time
}

// OfflineQueue is an optional client-side convenience store. The relay
// never consults it - delivery stays strictly real-time - it exists
// purely so a client can retry a send later without re-running the
// envelope codec.
type OfflineQueue struct {
	mu    sync.Mutex
	items []QueuedEnvelope
}

// NewOfflineQueue constructs an empty OfflineQueue.
func NewOfflineQueue() *OfflineQueue {
	return &OfflineQueue{}
}

// Enqueue records an already-sealed envelope for later delivery.
func (q *OfflineQueue) Enqueue(recipientID int64, envelope []byte, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, QueuedEnvelope{
		RecipientID: recipientID,
		Envelope:    append([]byte(nil), envelope...),
		QueuedAt:    now,
	})
}

// Prune drops entries older than OfflineQueueTTL, returning the number
// removed. Callers run this at startup and on a 5-minute periodic
// timer.
func (q *OfflineQueue) Prune(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	removed := 0
	for _, item := range q.items {
		if now.Sub(item.QueuedAt) > OfflineQueueTTL {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	q.items = kept
	return removed
}

// Pending returns a snapshot of all currently queued envelopes.
func (q *OfflineQueue) Pending() []QueuedEnvelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedEnvelope, len(q.items))
	copy(out, q.items)
	return out
}
