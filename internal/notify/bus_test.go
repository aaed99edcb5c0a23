package notify

import (
	"testing"

	"github.com/praxishq/coursesync/internal/logger"
)

func TestPublishDeliversToKindOnly(t *testing.T) {
	b := NewBus(logger.New("notify-test"))

	var complete, failed []string
	b.Subscribe(UpdateComplete, func(itemID string) { complete = append(complete, itemID) })
	b.Subscribe(UpdateFailed, func(itemID string) { failed = append(failed, itemID) })

	b.Publish(UpdateComplete, "course-1")
	b.Publish(UpdateComplete, "course-2")

	if len(complete) != 2 || complete[0] != "course-1" || complete[1] != "course-2" {
		t.Fatalf("complete deliveries = %v", complete)
	}
	if len(failed) != 0 {
		t.Fatalf("failed subscriber should see nothing, got %v", failed)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(logger.New("notify-test"))

	calls := 0
	unsub := b.Subscribe(OwnershipReady, func(string) { calls++ })
	b.Publish(OwnershipReady, "a")
	unsub()
	unsub() // second call must be harmless
	b.Publish(OwnershipReady, "b")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBus(logger.New("notify-test"))

	var got []string
	b.Subscribe(UpdateComplete, func(string) { panic("subscriber bug") })
	b.Subscribe(UpdateComplete, func(itemID string) { got = append(got, itemID) })

	b.Publish(UpdateComplete, "course-1")

	if len(got) != 1 || got[0] != "course-1" {
		t.Fatalf("second subscriber deliveries = %v", got)
	}
}

func TestSubscribeDuringDelivery(t *testing.T) {
	b := NewBus(logger.New("notify-test"))

	lateCalls := 0
	b.Subscribe(UpdateComplete, func(string) {
		// Subscribing mid-delivery must not deadlock; the new subscriber
		// sees only subsequent publishes.
		b.Subscribe(UpdateComplete, func(string) { lateCalls++ })
	})

	b.Publish(UpdateComplete, "x")
	if lateCalls != 0 {
		t.Fatalf("late subscriber ran during the publish that registered it")
	}
	b.Publish(UpdateComplete, "y")
	if lateCalls != 1 {
		t.Fatalf("late subscriber calls = %d, want 1", lateCalls)
	}
}
