package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"ichatgo/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten for production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventStream pushes one room's transcript events to a websocket subscriber.
// Done is closed on teardown so the subscribe pump never stays parked on a
// send into a full Send buffer after the writer is gone.
type eventStream struct {
	RoomID string
	Conn   *websocket.Conn
	Sub    *redis.PubSub
	Send   chan models.TranscriptEvent
	Done   chan struct{}
}

// ServeWebSocket upgrades the connection and streams transcript events for
// the requested room (the active room's id must be passed as room_id).
func (h *Handler) ServeWebSocket(c *gin.Context) {
	tokenString, ok := bearerToken(c)
	if !ok {
		tokenString = c.Query("token")
	}
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}
	if _, err := h.validateAndGetAnonID(tokenString); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	roomID := c.Query("room_id")
	if roomID == "" {
		room, err := h.Session.ActiveRoom()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "No active room"})
			return
		}
		roomID = room.RoomID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
		return
	}

	stream := &eventStream{
		RoomID: roomID,
		Conn:   conn,
		Sub:    h.Store.SubscribeRoomEvents(roomID),
		Send:   make(chan models.TranscriptEvent, 256),
		Done:   make(chan struct{}),
	}
	stream.Run()
}

// Run starts the pumps for this subscriber.
func (s *eventStream) Run() {
	go s.subscribePump()
	go s.writePump()
	go s.readPump()
}

// subscribePump forwards Redis pub/sub payloads into the Send channel.
func (s *eventStream) subscribePump() {
	defer close(s.Send)
	s.forward(s.Sub.Channel())
}

// forward decodes messages into Send until the source closes or the stream
// is torn down. The Done case matters when Send is full: a plain send would
// block past Sub.Close and leak the pump.
func (s *eventStream) forward(msgs <-chan *redis.Message) {
	for msg := range msgs {
		var event models.TranscriptEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Error().Err(err).Msg("failed to decode transcript event")
			continue
		}
		select {
		case s.Send <- event:
		case <-s.Done:
			return
		}
	}
}

// readPump discards client frames and tears the stream down on close.
func (s *eventStream) readPump() {
	defer func() {
		close(s.Done)
		if err := s.Sub.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close room subscription")
		}
		_ = s.Conn.Close()
	}()

	s.Conn.SetReadLimit(maxMessageSize)
	_ = s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		return s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("room_id", s.RoomID).Msg("websocket closed")
			}
			return
		}
	}
}

// writePump sends queued events to the websocket, keeping the connection
// alive with pings.
func (s *eventStream) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-s.Send:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.Conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
