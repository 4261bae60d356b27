package models

import (
	"strconv"
	"time"
)

// Room represents one named conversation context. It owns a transcript of
// Turns (keyed by RoomID in the turns table) and carries the generation
// settings used for every new request in the room.
type Room struct {
	// RoomID is the unique identifier for the room. New rooms get a
	// unix-seconds string, which also derives the default display label.
	RoomID string `gorm:"primaryKey" json:"room_id"`
	// Name is the user-assigned room name. Empty means "derive from RoomID".
	Name string `gorm:"type:text" json:"name"`
	// Model is the default model for new turns in this room.
	Model string `gorm:"type:text" json:"model"`
	// Prompt, when non-empty, is sent as a system-role message on every request.
	Prompt string `gorm:"type:text" json:"prompt"`
	// Temperature is the sampling temperature, between 0 and 2.
	Temperature float64 `json:"temperature"`
	// HistoryCount is how many prior turns are carried as context.
	HistoryCount int `json:"history_count"`
	// LastActiveAt orders the room list by most recent activity.
	LastActiveAt time.Time `gorm:"index" json:"last_active_at"`
}

// NewRoomID synthesizes a room id from the current time, matching the
// display label derivation in DisplayLabel.
func NewRoomID() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// DisplayLabel returns the room name, falling back to the creation time
// encoded in the RoomID when no name has been set.
func (r *Room) DisplayLabel() string {
	if r.Name != "" {
		return r.Name
	}
	if secs, err := strconv.ParseInt(r.RoomID, 10, 64); err == nil {
		return time.Unix(secs, 0).Format("2006-01-02 15:04:05")
	}
	return r.RoomID
}
