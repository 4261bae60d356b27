package handler

import (
	"encoding/json"
	"testing"
	"time"

	"ichatgo/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventMessage(t *testing.T, event models.TranscriptEvent) *redis.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return &redis.Message{Payload: string(payload)}
}

func TestEventStreamForwardsEvents(t *testing.T) {
	stream := &eventStream{
		RoomID: "room1",
		Send:   make(chan models.TranscriptEvent, 4),
		Done:   make(chan struct{}),
	}
	msgs := make(chan *redis.Message, 4)
	msgs <- eventMessage(t, models.TranscriptEvent{Type: models.EventFragment, RoomID: "room1", Content: "Hel"})
	msgs <- &redis.Message{Payload: "not json"} // skipped, never forwarded
	msgs <- eventMessage(t, models.TranscriptEvent{Type: models.EventComplete, RoomID: "room1", Content: "Hello"})
	close(msgs)

	stream.forward(msgs)

	require.Len(t, stream.Send, 2)
	first := <-stream.Send
	assert.Equal(t, models.EventFragment, first.Type)
	assert.Equal(t, "Hel", first.Content)
	second := <-stream.Send
	assert.Equal(t, models.EventComplete, second.Type)
}

func TestEventStreamForwardUnblocksOnTeardown(t *testing.T) {
	stream := &eventStream{
		RoomID: "room1",
		Send:   make(chan models.TranscriptEvent, 1),
		Done:   make(chan struct{}),
	}

	// More messages than Send can hold, and nothing draining it: the pump
	// must park on the send until teardown, then return instead of leaking.
	msgs := make(chan *redis.Message, 2)
	msgs <- eventMessage(t, models.TranscriptEvent{Type: models.EventFragment, RoomID: "room1", Content: "a"})
	msgs <- eventMessage(t, models.TranscriptEvent{Type: models.EventFragment, RoomID: "room1", Content: "b"})

	returned := make(chan struct{})
	go func() {
		stream.forward(msgs)
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("forward returned while blocked send should still be pending")
	case <-time.After(50 * time.Millisecond):
	}

	close(stream.Done)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("forward did not return after teardown")
	}
}
