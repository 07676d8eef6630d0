package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFlow(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := broker.Subscribe(ctx)
	broker.Publish(CreatedEvent, "hello")
	broker.Publish(FinishedEvent, "bye")

	select {
	case ev := <-events:
		assert.Equal(t, CreatedEvent, ev.Type)
		assert.Equal(t, "hello", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	ev := <-events
	assert.Equal(t, FinishedEvent, ev.Type)
}

func TestAutoUnsubscribe(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	events := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.GetSubscriberCount())

	cancel()

	assert.Eventually(t, func() bool { return broker.GetSubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-events
	assert.False(t, ok)
}

func TestNonBlockingPublish(t *testing.T) {
	broker := NewBrokerWithOptions[int](4)
	defer broker.Shutdown()

	_ = broker.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			broker.Publish(UpdatedEvent, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, 6, broker.Dropped())
}

func TestBrokerShutdown(t *testing.T) {
	broker := NewBroker[string]()
	events := broker.Subscribe(context.Background())

	broker.Shutdown()
	broker.Shutdown()

	_, ok := <-events
	assert.False(t, ok)

	late := broker.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok)

	broker.Publish(CreatedEvent, "ignored")
	assert.Zero(t, broker.GetSubscriberCount())
}
