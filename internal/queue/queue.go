// Package queue holds the pending utterances waiting to be spoken.
//
// The [Queue] is a strict FIFO: insertion order is consumption order, and the
// utterance id is only used to remove an entry once its playback attempt has
// concluded. Producers call [Queue.Enqueue] from any goroutine; the playback
// worker is the only consumer and uses [Queue.Oldest] and [Queue.Remove].
package queue

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Utterance is one unit of text queued for speech.
type Utterance struct {
	// ID is assigned by [Queue.Enqueue]. It is only used for removal.
	ID string

	// Text is the non-empty text to speak.
	Text string

	// SpeakerName is the display name of the originator.
	SpeakerName string

	// SpeakerID is the stable identity of the originator.
	SpeakerID string

	// ImageDerived is true when Text is a caption for visual content rather
	// than literal chat text.
	ImageDerived bool

	// EnqueuedAt is set by [Queue.Enqueue]. It is informational only and never
	// used for ordering.
	EnqueuedAt time.Time
}

// Queue is an unbounded FIFO of utterances.
//
// Queue is safe for concurrent use. Enqueue never blocks on the consumer.
type Queue struct {
	mu    sync.Mutex
	items []Utterance

	// wake is signalled (non-blocking) on every enqueue so a polling
	// consumer can skip the rest of its sleep.
	wake chan struct{}

	newID func() string
	now   func() time.Time

	// depth is told about every length change, under mu.
	depth func(delta int)
}

// Option configures a [Queue].
type Option func(*Queue)

// WithDepthHook registers fn to receive +1 on every accepted enqueue and -1
// on every effective removal. fn runs with the queue locked, so the running
// sum never goes negative; it must not call back into the queue.
func WithDepthHook(fn func(delta int)) Option {
	return func(q *Queue) { q.depth = fn }
}

// New returns an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		wake:  make(chan struct{}, 1),
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue assigns a fresh id and enqueue time to u and appends it to the
// tail. Utterances whose text is empty after trimming are dropped. The
// assigned id is returned for observability; producers may ignore it.
func (q *Queue) Enqueue(u Utterance) string {
	if strings.TrimSpace(u.Text) == "" {
		return ""
	}
	u.ID = q.newID()
	u.EnqueuedAt = q.now()

	q.mu.Lock()
	q.items = append(q.items, u)
	q.changed(1)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return u.ID
}

// Oldest returns the head of the queue without removing it. The boolean is
// false when the queue is empty.
func (q *Queue) Oldest() (Utterance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Utterance{}, false
	}
	return q.items[0], true
}

// Remove deletes the utterance with the given id. It reports whether an
// entry was removed; removing an absent id is a no-op.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		if q.items[i].ID != id {
			continue
		}
		copy(q.items[i:], q.items[i+1:])
		q.items[len(q.items)-1] = Utterance{}
		q.items = q.items[:len(q.items)-1]
		q.changed(-1)
		return true
	}
	return false
}

// changed reports a length change. Callers hold mu.
func (q *Queue) changed(delta int) {
	if q.depth != nil {
		q.depth(delta)
	}
}

// Len returns the number of pending utterances.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake returns a channel that receives a value after an enqueue. At most one
// signal is buffered, so a consumer must re-check [Queue.Oldest] after waking.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
