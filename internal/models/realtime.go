package models

// Message roles understood by completion providers. Several providers treat
// message order as priority, so the builder controls ordering, not roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one role-tagged message of a completion request payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript event types published on every transcript mutation.
const (
	EventPending  = "pending"  // a new turn was appended, awaiting its answer
	EventFragment = "fragment" // incremental answer text arrived
	EventComplete = "complete" // the exchange finished, success or failure
	EventDeleted  = "deleted"  // a single turn was removed
	EventCleared  = "cleared"  // the whole transcript was removed
)

// TranscriptEvent is broadcast over Redis pub/sub and forwarded to websocket
// subscribers so callers can observe transcript changes as they happen.
type TranscriptEvent struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id"`
	TurnKey string `json:"turn_key,omitempty"`
	Content string `json:"content,omitempty"`
}
