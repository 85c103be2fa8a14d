package eventbus

import (
	"sync"
	"testing"
)

func TestFIFOPerTopic(t *testing.T) {
	b := New(0)
	var got []string
	b.Subscribe(TopicNodeDirty, func(ev Event) {
		got = append(got, ev.Data.(string))
	})
	b.Publish(Event{Topic: TopicNodeDirty, Data: "a"})
	b.Publish(Event{Topic: TopicNodeDirty, Data: "b"})
	b.Publish(Event{Topic: TopicNodeDirty, Data: "c"})
	b.Drain()

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDrainClearsQueue(t *testing.T) {
	b := New(0)
	b.Publish(Event{Topic: TopicFrameStart})
	b.Drain()
	if b.Pending(TopicFrameStart) != 0 {
		t.Fatalf("expected queue to be empty after drain")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(0)
	count := 0
	tok := b.Subscribe(TopicFrameEnd, func(Event) { count++ })
	b.Unsubscribe(TopicFrameEnd, tok)
	b.Publish(Event{Topic: TopicFrameEnd})
	b.Drain()
	if count != 0 {
		t.Fatalf("expected 0 deliveries after unsubscribe, got %d", count)
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New(0)
	var mu sync.Mutex
	n := 0
	for i := 0; i < 5; i++ {
		b.Subscribe(TopicShaderReloaded, func(Event) {
			mu.Lock()
			n++
			mu.Unlock()
		})
	}
	b.Publish(Event{Topic: TopicShaderReloaded})
	b.Drain()
	if n != 5 {
		t.Fatalf("expected 5 deliveries, got %d", n)
	}
}

func TestPublishIsNonBlockingUnderCap(t *testing.T) {
	b := New(2)
	b.Publish(Event{Topic: TopicNodeDirty, Data: 1})
	b.Publish(Event{Topic: TopicNodeDirty, Data: 2})
	b.Publish(Event{Topic: TopicNodeDirty, Data: 3})
	var got []int
	b.Subscribe(TopicNodeDirty, func(ev Event) { got = append(got, ev.Data.(int)) })
	b.Drain()
	// Oldest event (1) should have been evicted once the cap of 2 was exceeded.
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("got %v, want [2 3]", got)
	}
}
