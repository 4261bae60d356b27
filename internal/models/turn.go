package models

import (
	"fmt"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
)

// turnSeq disambiguates keys generated within the same display-resolution tick.
var turnSeq uint64

// Turn represents one question/answer exchange saved in the database.
// The embedded gorm.Model provides the row id and timestamps; the logical
// identity of a turn inside its room is TurnKey.
type Turn struct {
	gorm.Model `json:"-"`

	// RoomID is the identifier of the room the turn belongs to.
	RoomID string `gorm:"type:text;not null;index:idx_room_turn" json:"room_id"`
	// TurnKey is unique within a room and doubles as the turn's display
	// timestamp. It is the sort and lookup key for fragment delivery.
	TurnKey string `gorm:"type:text;not null;index:idx_room_turn" json:"turn_key"`
	// Question is the submitted prompt. Immutable once created.
	Question string `gorm:"type:text;not null" json:"question"`
	// Answer is nil while the exchange is in flight and set (possibly to an
	// empty string) once resolved. Fragments are appended, never replaced.
	Answer *string `gorm:"type:text" json:"answer"`
	// IsComplete is false while awaiting or streaming an answer.
	IsComplete bool `json:"is_complete"`
	// ModelID is the model identifier used for this specific turn.
	ModelID string `gorm:"type:text" json:"model"`
	// AvatarURL is an opaque reference to the requester's avatar.
	AvatarURL string `gorm:"type:text" json:"avatar_url"`
	// Seq is the turn's position inside the transcript snapshot write.
	Seq int `gorm:"not null" json:"-"`
}

// NewTurnKey generates a unique, monotonically increasing turn key. The
// wall-clock prefix keeps the key usable as a display timestamp; the counter
// suffix keeps two submissions within the same second apart.
func NewTurnKey() string {
	seq := atomic.AddUint64(&turnSeq, 1)
	return fmt.Sprintf("%s#%06d", time.Now().Format("2006-01-02 15:04:05"), seq)
}

// AnswerText returns the answer accumulated so far, empty while none arrived.
func (t *Turn) AnswerText() string {
	if t.Answer == nil {
		return ""
	}
	return *t.Answer
}

// AppendAnswer appends text to the running answer.
func (t *Turn) AppendAnswer(text string) {
	s := t.AnswerText() + text
	t.Answer = &s
}
