package pubsub

import "context"

const (
	// CreatedEvent a new item, such as a user turn, was added
	CreatedEvent EventType = "created"
	// RetrievedEvent context passages were selected
	RetrievedEvent EventType = "retrieved"
	// UpdatedEvent an item in progress changed, such as a streamed fragment
	UpdatedEvent EventType = "updated"
	// DeletedEvent items were removed
	DeletedEvent EventType = "deleted"
	// FinishedEvent an item completed
	FinishedEvent EventType = "finished"
	// FailedEvent an item ended with an error
	FailedEvent EventType = "failed"
)

// Subscriber hands out event channels that close when the context ends
type Subscriber[T any] interface {
	Subscribe(context.Context) <-chan Event[T]
}

type (
	// EventType identifies the kind of event
	EventType string

	// Event is one lifecycle event with its payload
	Event[T any] struct {
		Type    EventType
		Payload T
	}

	// Publisher publishes events to all subscribers
	Publisher[T any] interface {
		Publish(EventType, T)
	}
)
