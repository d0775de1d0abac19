package updates

import (
	"sync"

	"github.com/google/uuid"

	"github.com/courseflow/video-server-go/pkg/metrics"
	"github.com/courseflow/video-server-go/pkg/types"
)

// LessonUpdate is the event fanned out to every subscriber of a course when
// one of its lessons changes processing state.
type LessonUpdate struct {
	LessonID        uuid.UUID         `json:"lessonId"`
	Status          types.AssetStatus `json:"status"`
	PlaybackID      string            `json:"playbackId,omitempty"`
	ThumbnailURL    string            `json:"thumbnailUrl,omitempty"`
	DurationSeconds int               `json:"durationSeconds,omitempty"`
	Reason          string            `json:"reason,omitempty"`
}

type subscriber struct {
	ch chan LessonUpdate
}

// Broadcaster is an in-memory registry of live course subscriptions.
// Delivery is best-effort: events fired while a course has no subscribers
// are dropped, and a subscriber whose buffer is full misses the event.
// Clients reconcile through the lesson status point-query after reconnect.
type Broadcaster struct {
	mu      sync.RWMutex
	courses map[uuid.UUID]map[*subscriber]struct{}
	buffer  int
}

// NewBroadcaster creates an empty registry. Buffer is the per-subscriber
// channel capacity; values below 1 fall back to 16.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 16
	}
	return &Broadcaster{
		courses: make(map[uuid.UUID]map[*subscriber]struct{}),
		buffer:  buffer,
	}
}

// Subscribe registers a new connection for a course and returns its event
// channel together with the unsubscribe function. The channel is never
// closed by the broadcaster; the caller stops reading and unsubscribes.
func (b *Broadcaster) Subscribe(courseID uuid.UUID) (<-chan LessonUpdate, func()) {
	sub := &subscriber{ch: make(chan LessonUpdate, b.buffer)}

	b.mu.Lock()
	set, ok := b.courses[courseID]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.courses[courseID] = set
	}
	set[sub] = struct{}{}
	total := b.total()
	b.mu.Unlock()

	metrics.SetActiveSubscribers(total)

	return sub.ch, func() { b.unsubscribe(courseID, sub) }
}

func (b *Broadcaster) unsubscribe(courseID uuid.UUID, sub *subscriber) {
	b.mu.Lock()
	if set, ok := b.courses[courseID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.courses, courseID)
		}
	}
	total := b.total()
	b.mu.Unlock()

	metrics.SetActiveSubscribers(total)
}

// Publish fans an event out to every subscriber currently registered for
// the course. Sends never block: a full channel drops the event for that
// subscriber only. Per-subscriber order matches publish order.
func (b *Broadcaster) Publish(courseID uuid.UUID, event LessonUpdate) int {
	b.mu.RLock()
	set := b.courses[courseID]
	targets := make([]*subscriber, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range targets {
		select {
		case sub.ch <- event:
			delivered++
		default:
		}
	}

	metrics.RecordBroadcastDeliveries(delivered)

	return delivered
}

// SubscriberCount reports how many connections are registered for a course.
func (b *Broadcaster) SubscriberCount(courseID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.courses[courseID])
}

// total counts all subscribers. Callers hold the lock.
func (b *Broadcaster) total() int {
	n := 0
	for _, set := range b.courses {
		n += len(set)
	}
	return n
}
