package storage

import (
	"context"
	"encoding/json"
	"time"

	"ichatgo/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Storage is the durable side of the conversation engine: a keyed registry
// of rooms, a keyed transcript table, and a pub/sub channel for transcript
// events. Rooms and transcripts are independent keyed stores with no
// cross-key invariants; callers must not interleave two writers for the same
// room key.
type Storage interface {
	// Room registry
	GetRoom(roomID string) (*models.Room, error)
	SaveRoom(room *models.Room) error
	DeleteRoom(roomID string) error
	RoomsByRecency() ([]models.Room, error)
	MostRecentRoomID() (string, error)
	TouchRoom(roomID string, at time.Time) error

	// Transcript store
	GetTranscript(roomID string) ([]models.Turn, error)
	ReplaceTranscript(roomID string, turns []models.Turn) error
	LastTurn(roomID string) (*models.Turn, error)
	CountTurns(roomID string) (int64, error)

	// Event fan-out
	PublishEvent(event models.TranscriptEvent) error
}

// Service implements Storage over PostgreSQL (gorm) and Redis pub/sub.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// GetRoom returns the room record, or nil without error when none exists.
func (s *Service) GetRoom(roomID string) (*models.Room, error) {
	var room models.Room
	err := s.DB.Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get room %s", roomID)
	}
	return &room, nil
}

func (s *Service) SaveRoom(room *models.Room) error {
	if err := s.DB.Save(room).Error; err != nil {
		return errors.Wrapf(err, "save room %s", room.RoomID)
	}
	return nil
}

// DeleteRoom removes the room record and its transcript in one transaction.
// Rooms and turns live in independent tables, so the cascade is explicit.
func (s *Service) DeleteRoom(roomID string) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("room_id = ?", roomID).Delete(&models.Turn{}).Error; err != nil {
			return err
		}
		return tx.Where("room_id = ?", roomID).Delete(&models.Room{}).Error
	})
	if err != nil {
		return errors.Wrapf(err, "delete room %s", roomID)
	}
	return nil
}

// RoomsByRecency returns all rooms, most recently active first.
func (s *Service) RoomsByRecency() ([]models.Room, error) {
	var rooms []models.Room
	if err := s.DB.Order("last_active_at desc").Find(&rooms).Error; err != nil {
		return nil, errors.Wrap(err, "list rooms")
	}
	return rooms, nil
}

// MostRecentRoomID returns the id of the most recently active room, or an
// empty string when no room exists yet.
func (s *Service) MostRecentRoomID() (string, error) {
	var room models.Room
	err := s.DB.Order("last_active_at desc").First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "most recent room")
	}
	return room.RoomID, nil
}

// TouchRoom bumps the room's recency timestamp.
func (s *Service) TouchRoom(roomID string, at time.Time) error {
	err := s.DB.Model(&models.Room{}).
		Where("room_id = ?", roomID).
		Update("last_active_at", at).Error
	if err != nil {
		return errors.Wrapf(err, "touch room %s", roomID)
	}
	return nil
}

// GetTranscript loads the room's ordered turn list. A room with no saved
// turns yields an empty slice, not an error.
func (s *Service) GetTranscript(roomID string) ([]models.Turn, error) {
	var turns []models.Turn
	if err := s.DB.Where("room_id = ?", roomID).Order("seq asc").Find(&turns).Error; err != nil {
		return nil, errors.Wrapf(err, "get transcript for room %s", roomID)
	}
	return turns, nil
}

// ReplaceTranscript overwrites the room's transcript wholesale: the full
// in-memory snapshot is written each time, never a delta, so a delayed
// earlier write can never leave a mixed state behind a later one.
func (s *Service) ReplaceTranscript(roomID string, turns []models.Turn) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("room_id = ?", roomID).Delete(&models.Turn{}).Error; err != nil {
			return err
		}
		for i := range turns {
			turn := turns[i]
			turn.ID = 0
			turn.RoomID = roomID
			turn.Seq = i
			if err := tx.Create(&turn).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "replace transcript for room %s", roomID)
	}
	return nil
}

// LastTurn returns the newest turn of a room, or nil when the room is empty.
func (s *Service) LastTurn(roomID string) (*models.Turn, error) {
	var turn models.Turn
	err := s.DB.Where("room_id = ?", roomID).Order("seq desc").First(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "last turn for room %s", roomID)
	}
	return &turn, nil
}

func (s *Service) CountTurns(roomID string) (int64, error) {
	var count int64
	if err := s.DB.Model(&models.Turn{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return 0, errors.Wrapf(err, "count turns for room %s", roomID)
	}
	return count, nil
}

// PublishEvent broadcasts a transcript event on the room's pub/sub channel.
// With no Redis configured (admin CLI) this is a no-op.
func (s *Service) PublishEvent(event models.TranscriptEvent) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal transcript event")
	}
	if err := s.Redis.Publish(s.Ctx, eventChannel(event.RoomID), payload).Err(); err != nil {
		log.Error().Err(err).Str("room_id", event.RoomID).Msg("failed to publish transcript event")
		return errors.Wrap(err, "publish transcript event")
	}
	return nil
}

// SubscribeRoomEvents subscribes to a single room's transcript events.
func (s *Service) SubscribeRoomEvents(roomID string) *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, eventChannel(roomID))
}

func eventChannel(roomID string) string {
	return "transcript:" + roomID
}
