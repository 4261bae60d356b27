package handler

import (
	"net/http"

	"ichatgo/backend/internal/models"
	"ichatgo/backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// roomSummary is one row of the room list: the room record plus the preview
// data the history list shows (last question, message count).
type roomSummary struct {
	models.Room
	Label        string `json:"label"`
	MessageCount int64  `json:"message_count"`
	LastQuestion string `json:"last_question,omitempty"`
	LastTurnKey  string `json:"last_turn_key,omitempty"`
}

// ListRooms returns all rooms, most recently active first.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.Store.RoomsByRecency()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rooms"})
		return
	}
	summaries := make([]roomSummary, 0, len(rooms))
	for i := range rooms {
		summary := roomSummary{Room: rooms[i], Label: rooms[i].DisplayLabel()}
		if count, err := h.Store.CountTurns(rooms[i].RoomID); err == nil {
			summary.MessageCount = count
		}
		if last, err := h.Store.LastTurn(rooms[i].RoomID); err == nil && last != nil {
			summary.LastQuestion = last.Question
			summary.LastTurnKey = last.TurnKey
		}
		summaries = append(summaries, summary)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": summaries})
}

// CreateRoom starts a fresh room and makes it the active one.
func (h *Handler) CreateRoom(c *gin.Context) {
	roomID, err := h.Session.SwitchRoom("")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"room_id": roomID})
}

// SwitchRoom makes an existing (or new) room the active one and returns its
// transcript.
func (h *Handler) SwitchRoom(c *gin.Context) {
	roomID, err := h.Session.SwitchRoom(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to switch room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "messages": h.Session.Snapshot()})
}

type roomSettingsRequest struct {
	Name         string  `json:"name"`
	Model        string  `json:"model"`
	Prompt       string  `json:"prompt"`
	Temperature  float64 `json:"temperature"`
	HistoryCount int     `json:"history_count"`
}

// UpdateRoom saves per-room generation settings. Validation failures are
// reported to the caller and never reach the engine.
func (h *Handler) UpdateRoom(c *gin.Context) {
	var req roomSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	room := models.Room{
		RoomID:       c.Param("id"),
		Name:         req.Name,
		Model:        req.Model,
		Prompt:       req.Prompt,
		Temperature:  req.Temperature,
		HistoryCount: req.HistoryCount,
	}
	if err := h.Session.UpdateRoomSettings(room); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": room.RoomID})
}

// DeleteRoom removes a room and its transcript. Deleting the active room
// switches the session to the most recent remaining room, or a fresh one.
func (h *Handler) DeleteRoom(c *gin.Context) {
	roomID := c.Param("id")

	activeID := ""
	if room, err := h.Session.ActiveRoom(); err == nil {
		activeID = room.RoomID
	}
	if err := h.Store.DeleteRoom(roomID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}
	if roomID == activeID {
		nextID, err := h.Store.MostRecentRoomID()
		if err != nil {
			log.Error().Err(err).Msg("failed to pick next room after deletion")
		}
		if _, err := h.Session.SwitchRoom(nextID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to switch room"})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// GetMessages returns a room's stored transcript in order.
func (h *Handler) GetMessages(c *gin.Context) {
	turns, err := h.Store.GetTranscript(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transcript"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": turns})
}

// ensureActiveRoom rejects transcript mutations aimed at a room the session
// is not currently holding in memory.
func (h *Handler) ensureActiveRoom(c *gin.Context, roomID string) bool {
	room, err := h.Session.ActiveRoom()
	if err != nil || room.RoomID != roomID {
		c.JSON(http.StatusConflict, gin.H{"error": "Room is not the active room"})
		return false
	}
	return true
}

// DeleteMessage removes a single turn from the active room's transcript.
func (h *Handler) DeleteMessage(c *gin.Context) {
	if !h.ensureActiveRoom(c, c.Param("id")) {
		return
	}
	if err := h.Session.DeleteTurn(c.Param("key")); err != nil {
		if errors.Is(err, session.ErrTurnNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Turn not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete turn"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllMessages clears the active room's transcript. Refused while an
// exchange is still in flight.
func (h *Handler) DeleteAllMessages(c *gin.Context) {
	if !h.ensureActiveRoom(c, c.Param("id")) {
		return
	}
	if err := h.Session.DeleteAllTurns(); err != nil {
		if errors.Is(err, session.ErrExchangeInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear transcript"})
		return
	}
	c.Status(http.StatusNoContent)
}
