package session_test

import (
	"context"
	"sync"
	"time"

	"ichatgo/backend/internal/completion"
	"ichatgo/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify/mock implementation of the storage.Storage
// interface. It records every transcript snapshot written through it so
// tests can assert on persistence behavior.
type MockStorage struct {
	mock.Mock

	mu        sync.Mutex
	snapshots map[string][][]models.Turn
	events    []models.TranscriptEvent
}

func newMockStorage() *MockStorage {
	return &MockStorage{snapshots: make(map[string][][]models.Turn)}
}

func (m *MockStorage) GetRoom(roomID string) (*models.Room, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *MockStorage) SaveRoom(room *models.Room) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockStorage) DeleteRoom(roomID string) error {
	args := m.Called(roomID)
	return args.Error(0)
}

func (m *MockStorage) RoomsByRecency() ([]models.Room, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Room), args.Error(1)
}

func (m *MockStorage) MostRecentRoomID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockStorage) TouchRoom(roomID string, at time.Time) error {
	args := m.Called(roomID, at)
	return args.Error(0)
}

func (m *MockStorage) GetTranscript(roomID string) ([]models.Turn, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Turn), args.Error(1)
}

func (m *MockStorage) ReplaceTranscript(roomID string, turns []models.Turn) error {
	m.mu.Lock()
	snapshot := make([]models.Turn, len(turns))
	copy(snapshot, turns)
	m.snapshots[roomID] = append(m.snapshots[roomID], snapshot)
	m.mu.Unlock()

	args := m.Called(roomID, turns)
	return args.Error(0)
}

func (m *MockStorage) LastTurn(roomID string) (*models.Turn, error) {
	args := m.Called(roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Turn), args.Error(1)
}

func (m *MockStorage) CountTurns(roomID string) (int64, error) {
	args := m.Called(roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) PublishEvent(event models.TranscriptEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()

	args := m.Called(event)
	return args.Error(0)
}

// LastSnapshot returns the most recent transcript written for a room.
func (m *MockStorage) LastSnapshot(roomID string) []models.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	writes := m.snapshots[roomID]
	if len(writes) == 0 {
		return nil
	}
	return writes[len(writes)-1]
}

// SnapshotCount returns how many transcript writes a room received.
func (m *MockStorage) SnapshotCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots[roomID])
}

// allowPersistence installs permissive expectations for the write-through
// calls every mutation performs.
func (m *MockStorage) allowPersistence() {
	m.On("ReplaceTranscript", mock.AnythingOfType("string"), mock.Anything).Return(nil)
	m.On("TouchRoom", mock.AnythingOfType("string"), mock.Anything).Return(nil)
	m.On("PublishEvent", mock.Anything).Return(nil)
}

// scriptedClient is a completion.Client double that replays a fixed event
// sequence. When gate is non-nil the events are held back until the gate is
// closed, which lets tests switch rooms or delete turns while an exchange is
// still "in flight".
type scriptedClient struct {
	mu       sync.Mutex
	script   []completion.Event
	gate     chan struct{}
	requests []completion.Request
}

func (c *scriptedClient) Complete(_ context.Context, req completion.Request) <-chan completion.Event {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	script := make([]completion.Event, len(c.script))
	copy(script, c.script)
	gate := c.gate
	c.mu.Unlock()

	events := make(chan completion.Event, len(script))
	go func() {
		defer close(events)
		if gate != nil {
			<-gate
		}
		for _, ev := range script {
			events <- ev
		}
	}()
	return events
}

func (c *scriptedClient) Requests() []completion.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]completion.Request, len(c.requests))
	copy(out, c.requests)
	return out
}
