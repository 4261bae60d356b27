package models_test

import (
	"strings"
	"testing"
	"time"

	"ichatgo/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTurnKey_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		key := models.NewTurnKey()
		assert.False(t, seen[key], "turn keys must be unique even within one clock tick")
		seen[key] = true
	}
}

func TestNewTurnKey_CarriesDisplayTimestamp(t *testing.T) {
	key := models.NewTurnKey()
	parts := strings.SplitN(key, "#", 2)
	require.Len(t, parts, 2)

	stamp, err := time.Parse("2006-01-02 15:04:05", parts[0])
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), stamp, 2*time.Second)
}

func TestTurnAnswerAppend(t *testing.T) {
	turn := models.Turn{Question: "Hi"}
	assert.Equal(t, "", turn.AnswerText())
	assert.Nil(t, turn.Answer)

	turn.AppendAnswer("Hel")
	turn.AppendAnswer("lo")
	require.NotNil(t, turn.Answer)
	assert.Equal(t, "Hello", turn.AnswerText())
}

func TestRoomDisplayLabel(t *testing.T) {
	named := models.Room{RoomID: "1700000000", Name: "My Room"}
	assert.Equal(t, "My Room", named.DisplayLabel())

	timestamped := models.Room{RoomID: "1709296200"}
	assert.Equal(t, time.Unix(1709296200, 0).Format("2006-01-02 15:04:05"), timestamped.DisplayLabel())

	opaque := models.Room{RoomID: "not-a-timestamp"}
	assert.Equal(t, "not-a-timestamp", opaque.DisplayLabel())
}

func TestNewRoomID_IsUnixSeconds(t *testing.T) {
	id := models.NewRoomID()
	room := models.Room{RoomID: id}
	_, err := time.Parse("2006-01-02 15:04:05", room.DisplayLabel())
	assert.NoError(t, err)
}
