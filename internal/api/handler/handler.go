package handler

import (
	"ichatgo/backend/internal/config"
	"ichatgo/backend/internal/session"
	"ichatgo/backend/internal/storage"
)

// Handler exposes the conversation engine over HTTP and WebSocket.
type Handler struct {
	Session *session.Session
	Store   *storage.Service
	Cfg     config.Config
}

func NewHandler(s *session.Session, store *storage.Service, cfg config.Config) *Handler {
	return &Handler{Session: s, Store: store, Cfg: cfg}
}
