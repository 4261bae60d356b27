// Package session implements the conversation engine: one active room's
// transcript, the per-turn exchange state machine, and write-through
// persistence. All mutations are serialized onto a single run-loop
// goroutine; completion events arrive on their own goroutines and are
// marshaled back through an internal channel before they touch state.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"ichatgo/backend/internal/completion"
	"ichatgo/backend/internal/config"
	"ichatgo/backend/internal/models"
	"ichatgo/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyPrompt      = errors.New("prompt must not be empty")
	ErrExchangeInFlight = errors.New("an exchange is still in flight")
	ErrTurnNotFound     = errors.New("turn not found in the active transcript")
	ErrNoActiveRoom     = errors.New("no active room")
	ErrSessionStopped   = errors.New("session has been stopped")
)

// ClientFactory rebuilds the completion client after a configuration change.
type ClientFactory func(cfg config.Config) completion.Client

// Session mediates one active room at a time. Exactly one instance is active
// per process; it exclusively owns the in-memory transcript.
type Session struct {
	cfg     config.Config
	store   storage.Storage
	factory ClientFactory
	client  completion.Client

	roomID     string
	room       *models.Room
	transcript []models.Turn

	commandCh chan func()
	eventCh   chan exchangeEvent
	quitCh    chan struct{}
	stopOnce  sync.Once
}

// exchangeEvent is a completion event stamped with the exchange it belongs
// to, so late deliveries for a switched or deleted turn can be dropped.
type exchangeEvent struct {
	exchangeID uuid.UUID
	roomID     string
	turnKey    string
	event      completion.Event
}

// NewSession wires the engine. Call Run in its own goroutine before using
// any other method.
func NewSession(cfg config.Config, store storage.Storage, factory ClientFactory) *Session {
	return &Session{
		cfg:       cfg,
		store:     store,
		factory:   factory,
		client:    factory(cfg),
		commandCh: make(chan func()),
		eventCh:   make(chan exchangeEvent, 64),
		quitCh:    make(chan struct{}),
	}
}

// Run is the single dispatcher loop. Every transcript mutation, whether a
// caller command or an exchange delivery, executes here.
func (s *Session) Run() {
	for {
		select {
		case cmd := <-s.commandCh:
			cmd()
		case ev := <-s.eventCh:
			s.handleExchangeEvent(ev)
		case <-s.quitCh:
			return
		}
	}
}

// Stop terminates the run loop. Outstanding exchanges are not cancelled;
// their late events are simply never consumed. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.quitCh) })
}

// do runs cmd on the loop goroutine and waits for it. After Stop the
// command never runs and ErrSessionStopped is returned instead.
func (s *Session) do(cmd func()) error {
	done := make(chan struct{})
	select {
	case s.commandCh <- func() {
		cmd()
		close(done)
	}:
		<-done
		return nil
	case <-s.quitCh:
		return ErrSessionStopped
	}
}

// Submit appends a pending turn for the prompt, persists it, and starts the
// exchange. It returns the new turn's key immediately; progress is observed
// through transcript events, not a return value.
func (s *Session) Submit(prompt string) (string, error) {
	var key string
	var err error
	if derr := s.do(func() { key, err = s.handleSubmit(prompt) }); derr != nil {
		return "", derr
	}
	return key, err
}

// ResubmitLast re-asks the active room's last question as a brand new turn.
func (s *Session) ResubmitLast() (string, error) {
	var key string
	var err error
	derr := s.do(func() {
		if len(s.transcript) == 0 {
			err = ErrTurnNotFound
			return
		}
		key, err = s.handleSubmit(s.transcript[len(s.transcript)-1].Question)
	})
	if derr != nil {
		return "", derr
	}
	return key, err
}

// SwitchRoom discards the in-memory transcript and loads the target room,
// creating a default room record when none exists. An empty id switches to a
// brand new room. Returns the active room id.
func (s *Session) SwitchRoom(roomID string) (string, error) {
	var active string
	var err error
	derr := s.do(func() {
		err = s.handleSwitchRoom(roomID)
		active = s.roomID
	})
	if derr != nil {
		return "", derr
	}
	return active, err
}

// DeleteTurn removes one turn from the transcript and persists the change.
// An outstanding exchange for the turn is not cancelled; its late events are
// dropped.
func (s *Session) DeleteTurn(turnKey string) error {
	var err error
	if derr := s.do(func() { err = s.handleDeleteTurn(turnKey) }); derr != nil {
		return derr
	}
	return err
}

// DeleteAllTurns clears the transcript. Refused while any turn is still in
// flight.
func (s *Session) DeleteAllTurns() error {
	var err error
	if derr := s.do(func() { err = s.handleDeleteAll() }); derr != nil {
		return derr
	}
	return err
}

// UpdateRoomSettings validates and saves per-room generation settings,
// updating the in-memory room when it is the active one.
func (s *Session) UpdateRoomSettings(room models.Room) error {
	var err error
	if derr := s.do(func() { err = s.handleUpdateRoomSettings(room) }); derr != nil {
		return derr
	}
	return err
}

// ApplyConfiguration swaps the configuration and rebuilds the completion
// client so edited credentials, host and timeout take effect on the next
// exchange.
func (s *Session) ApplyConfiguration(cfg config.Config) error {
	var err error
	derr := s.do(func() {
		if err = cfg.Validate(); err != nil {
			return
		}
		s.cfg = cfg
		s.client = s.factory(cfg)
	})
	if derr != nil {
		return derr
	}
	return err
}

// Snapshot returns a copy of the active transcript, or nil once stopped.
func (s *Session) Snapshot() []models.Turn {
	var turns []models.Turn
	if err := s.do(func() {
		turns = make([]models.Turn, len(s.transcript))
		copy(turns, s.transcript)
	}); err != nil {
		return nil
	}
	return turns
}

// ActiveRoom returns a copy of the active room record.
func (s *Session) ActiveRoom() (models.Room, error) {
	var room models.Room
	var err error
	derr := s.do(func() {
		if s.room == nil {
			err = ErrNoActiveRoom
			return
		}
		room = *s.room
	})
	if derr != nil {
		return models.Room{}, derr
	}
	return room, err
}

func (s *Session) handleSubmit(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if s.room == nil {
		return "", ErrNoActiveRoom
	}

	model := s.room.Model
	if model == "" {
		model = s.cfg.Model
	}
	turn := models.Turn{
		RoomID:    s.roomID,
		TurnKey:   models.NewTurnKey(),
		Question:  prompt,
		ModelID:   model,
		AvatarURL: s.cfg.AvatarURL,
	}
	s.transcript = append(s.transcript, turn)
	s.persist(models.TranscriptEvent{
		Type:    models.EventPending,
		RoomID:  s.roomID,
		TurnKey: turn.TurnKey,
		Content: prompt,
	})

	messages, err := BuildContext(s.transcript, s.room, s.cfg.SendContext)
	if err != nil {
		return "", err
	}
	req := completion.Request{
		Model:       model,
		Messages:    messages,
		Temperature: s.room.Temperature,
		Stream:      s.cfg.Stream,
	}

	exchangeID := uuid.New()
	events := s.client.Complete(context.Background(), req)
	go s.pumpExchange(exchangeID, s.roomID, turn.TurnKey, events)

	log.Info().
		Str("room_id", s.roomID).
		Str("turn_key", turn.TurnKey).
		Str("model", model).
		Bool("stream", req.Stream).
		Msg("exchange started")
	return turn.TurnKey, nil
}

// pumpExchange forwards completion events onto the run loop. It runs on its
// own goroutine, one per exchange, and preserves delivery order.
func (s *Session) pumpExchange(exchangeID uuid.UUID, roomID, turnKey string, events <-chan completion.Event) {
	for ev := range events {
		select {
		case s.eventCh <- exchangeEvent{exchangeID: exchangeID, roomID: roomID, turnKey: turnKey, event: ev}:
		case <-s.quitCh:
			return
		}
	}
}

func (s *Session) handleExchangeEvent(ev exchangeEvent) {
	if ev.roomID != s.roomID {
		log.Debug().
			Str("exchange_id", ev.exchangeID.String()).
			Str("room_id", ev.roomID).
			Msg("dropping event for inactive room")
		return
	}
	idx := s.findTurn(ev.turnKey)
	if idx < 0 {
		log.Debug().
			Str("exchange_id", ev.exchangeID.String()).
			Str("turn_key", ev.turnKey).
			Msg("dropping event for deleted turn")
		return
	}

	turn := &s.transcript[idx]
	switch ev.event.Type {
	case completion.EventFragment:
		turn.AppendAnswer(ev.event.Content)
		s.persist(models.TranscriptEvent{
			Type:    models.EventFragment,
			RoomID:  s.roomID,
			TurnKey: turn.TurnKey,
			Content: ev.event.Content,
		})
	case completion.EventDone:
		if ev.event.Content != "" {
			turn.AppendAnswer(ev.event.Content)
		}
		s.finalizeTurn(turn)
	case completion.EventError:
		// Failures land in the transcript itself: the error text becomes the
		// terminal answer content and the turn still completes.
		turn.AppendAnswer(ev.event.Content)
		s.finalizeTurn(turn)
	}
}

func (s *Session) finalizeTurn(turn *models.Turn) {
	if turn.Answer == nil {
		empty := ""
		turn.Answer = &empty
	}
	turn.IsComplete = true
	s.persist(models.TranscriptEvent{
		Type:    models.EventComplete,
		RoomID:  s.roomID,
		TurnKey: turn.TurnKey,
		Content: turn.AnswerText(),
	})
}

func (s *Session) handleSwitchRoom(roomID string) error {
	if roomID == "" {
		roomID = models.NewRoomID()
	}
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room == nil {
		room = &models.Room{
			RoomID:       roomID,
			Model:        s.cfg.Model,
			Temperature:  config.DefaultTemperature,
			HistoryCount: config.DefaultHistoryCount,
			LastActiveAt: time.Now(),
		}
		if err := s.store.SaveRoom(room); err != nil {
			return err
		}
	}
	transcript, err := s.store.GetTranscript(roomID)
	if err != nil {
		return err
	}

	s.roomID = roomID
	s.room = room
	s.transcript = transcript
	if err := s.store.TouchRoom(roomID, time.Now()); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to bump room recency")
	}
	log.Info().Str("room_id", roomID).Int("turns", len(transcript)).Msg("switched room")
	return nil
}

func (s *Session) handleDeleteTurn(turnKey string) error {
	idx := s.findTurn(turnKey)
	if idx < 0 {
		return ErrTurnNotFound
	}
	s.transcript = append(s.transcript[:idx], s.transcript[idx+1:]...)
	s.persist(models.TranscriptEvent{
		Type:    models.EventDeleted,
		RoomID:  s.roomID,
		TurnKey: turnKey,
	})
	return nil
}

func (s *Session) handleDeleteAll() error {
	for i := range s.transcript {
		if !s.transcript[i].IsComplete {
			return ErrExchangeInFlight
		}
	}
	s.transcript = nil
	s.persist(models.TranscriptEvent{
		Type:   models.EventCleared,
		RoomID: s.roomID,
	})
	return nil
}

func (s *Session) handleUpdateRoomSettings(room models.Room) error {
	if err := config.ValidateRoomSettings(room.Temperature, room.HistoryCount); err != nil {
		return err
	}
	existing, err := s.store.GetRoom(room.RoomID)
	if err != nil {
		return err
	}
	if existing == nil {
		room.LastActiveAt = time.Now()
	} else {
		room.LastActiveAt = existing.LastActiveAt
	}
	if err := s.store.SaveRoom(&room); err != nil {
		return err
	}
	if room.RoomID == s.roomID {
		updated := room
		s.room = &updated
	}
	return nil
}

func (s *Session) findTurn(turnKey string) int {
	for i := range s.transcript {
		if s.transcript[i].TurnKey == turnKey {
			return i
		}
	}
	return -1
}

// persist writes the full in-memory transcript snapshot through to storage
// and broadcasts the triggering event. A failed write is logged but never
// drops in-memory state; the next successful write carries the corrected
// snapshot.
func (s *Session) persist(event models.TranscriptEvent) {
	snapshot := make([]models.Turn, len(s.transcript))
	copy(snapshot, s.transcript)
	if err := s.store.ReplaceTranscript(s.roomID, snapshot); err != nil {
		log.Error().Err(err).Str("room_id", s.roomID).Msg("failed to persist transcript")
	}
	if err := s.store.TouchRoom(s.roomID, time.Now()); err != nil {
		log.Error().Err(err).Str("room_id", s.roomID).Msg("failed to bump room recency")
	}
	if err := s.store.PublishEvent(event); err != nil {
		log.Error().Err(err).Str("room_id", s.roomID).Msg("failed to broadcast transcript event")
	}
}
