package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := NewBus(BusConfig{})
	received := make(chan Event, 1)
	id := b.Subscribe(SinkFunc(func(e Event) { received <- e }))
	defer b.Unsubscribe(id)

	b.Publish(Event{Kind: Created, Path: "/a.txt"})

	select {
	case e := <-received:
		require.Equal(t, Created, e.Kind)
		require.Equal(t, "/a.txt", e.Path)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishOverflowsAndCounts(t *testing.T) {
	block := make(chan struct{})
	b := NewBus(BusConfig{QueueSize: 1})
	id := b.Subscribe(SinkFunc(func(e Event) { <-block }))

	b.Publish(Event{Kind: Created, Path: "/1"})
	b.Publish(Event{Kind: Created, Path: "/2"})
	b.Publish(Event{Kind: Created, Path: "/3"})

	require.Eventually(t, func() bool { return b.OverflowCount(id) >= 1 }, time.Second, time.Millisecond)
	close(block)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBus(BusConfig{})
	id := b.Subscribe(SinkFunc(func(Event) {}))
	b.Unsubscribe(id)
	require.NotPanics(t, func() { b.Unsubscribe(id) })
}
