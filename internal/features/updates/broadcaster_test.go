package updates

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseflow/video-server-go/pkg/types"
)

func TestPublishReachesAllCourseSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	courseID := uuid.New()
	otherCourse := uuid.New()

	first, stopFirst := b.Subscribe(courseID)
	defer stopFirst()
	second, stopSecond := b.Subscribe(courseID)
	defer stopSecond()
	unrelated, stopUnrelated := b.Subscribe(otherCourse)
	defer stopUnrelated()

	event := LessonUpdate{LessonID: uuid.New(), Status: types.AssetStatusReady, PlaybackID: "pb1"}
	delivered := b.Publish(courseID, event)

	assert.Equal(t, 2, delivered)
	assert.Equal(t, event, <-first)
	assert.Equal(t, event, <-second)

	select {
	case <-unrelated:
		t.Fatal("subscriber of another course must not receive the event")
	default:
	}
}

func TestPerSubscriberDeliveryOrderIsFIFO(t *testing.T) {
	b := NewBroadcaster(16)
	courseID := uuid.New()

	events, stop := b.Subscribe(courseID)
	defer stop()

	lessonID := uuid.New()
	for i := 0; i < 5; i++ {
		b.Publish(courseID, LessonUpdate{LessonID: lessonID, Reason: fmt.Sprintf("n%d", i)})
	}

	for i := 0; i < 5; i++ {
		event := <-events
		assert.Equal(t, fmt.Sprintf("n%d", i), event.Reason)
	}
}

func TestPublishWithoutSubscribersDropsEvent(t *testing.T) {
	b := NewBroadcaster(4)

	delivered := b.Publish(uuid.New(), LessonUpdate{LessonID: uuid.New()})
	assert.Equal(t, 0, delivered)
}

func TestUnsubscribeDropsEmptyCourseSet(t *testing.T) {
	b := NewBroadcaster(4)
	courseID := uuid.New()

	_, stopFirst := b.Subscribe(courseID)
	_, stopSecond := b.Subscribe(courseID)
	require.Equal(t, 2, b.SubscriberCount(courseID))

	stopFirst()
	assert.Equal(t, 1, b.SubscriberCount(courseID))

	stopSecond()
	assert.Equal(t, 0, b.SubscriberCount(courseID))

	b.mu.RLock()
	_, exists := b.courses[courseID]
	b.mu.RUnlock()
	assert.False(t, exists, "empty sets must not accumulate")
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster(1)
	courseID := uuid.New()

	events, stop := b.Subscribe(courseID)
	defer stop()

	// First event fills the buffer, the second is dropped for this subscriber.
	require.Equal(t, 1, b.Publish(courseID, LessonUpdate{Reason: "first"}))
	assert.Equal(t, 0, b.Publish(courseID, LessonUpdate{Reason: "second"}))

	event := <-events
	assert.Equal(t, "first", event.Reason)

	select {
	case <-events:
		t.Fatal("dropped event must not arrive")
	default:
	}
}
