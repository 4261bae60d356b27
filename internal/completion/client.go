// Package completion abstracts the remote model exchange. A Client executes
// exactly one request and reports progress as a stream of events: zero or
// more fragments followed by exactly one terminal event, after which the
// channel is closed.
package completion

import (
	"context"

	"ichatgo/backend/internal/models"
)

type EventType string

const (
	// EventFragment carries incremental answer text during a streamed exchange.
	EventFragment EventType = "fragment"
	// EventDone ends the exchange. Content holds the full answer for
	// non-streamed requests and is empty for streamed ones.
	EventDone EventType = "done"
	// EventError ends the exchange with a failure. Content holds the
	// human-readable error description.
	EventError EventType = "error"
)

// Event is one delivery from an in-flight exchange.
type Event struct {
	Type    EventType
	Content string
}

// Request is the provider-independent shape of one completion request.
type Request struct {
	Model       string
	Messages    []models.ChatMessage
	Temperature float64
	Stream      bool
}

// Client executes a single completion request. The returned channel delivers
// fragments in order on an unspecified goroutine; consumers re-marshal them
// onto their own control loop.
type Client interface {
	Complete(ctx context.Context, req Request) <-chan Event
}
