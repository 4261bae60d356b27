package handler

import (
	"net/http"

	"ichatgo/backend/internal/config"
	"ichatgo/backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type submitRequest struct {
	Prompt string `json:"prompt"`
}

// Submit appends a pending turn to the active room and starts the exchange.
// The answer arrives through the websocket event stream, not this response.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	turnKey, err := h.Session.Submit(req.Prompt)
	if err != nil {
		if errors.Is(err, session.ErrEmptyPrompt) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit prompt"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"turn_key": turnKey})
}

// Resubmit re-asks the active room's last question as a new turn.
func (h *Handler) Resubmit(c *gin.Context) {
	turnKey, err := h.Session.ResubmitLast()
	if err != nil {
		if errors.Is(err, session.ErrTurnNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No question to re-ask"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resubmit"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"turn_key": turnKey})
}

// RefreshConfiguration reloads the configuration from the environment and
// applies it, rebuilding the completion client before the next exchange.
func (h *Handler) RefreshConfiguration(c *gin.Context) {
	cfg := config.Load()
	if err := h.Session.ApplyConfiguration(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
