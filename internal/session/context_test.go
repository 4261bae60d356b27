package session_test

import (
	"strings"
	"testing"

	"ichatgo/backend/internal/models"
	"ichatgo/backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTranscript builds n completed turns followed by one pending turn.
func makeTranscript(n int) []models.Turn {
	turns := make([]models.Turn, 0, n+1)
	for i := 0; i < n; i++ {
		answer := "answer-" + string(rune('a'+i))
		turns = append(turns, models.Turn{
			TurnKey:    models.NewTurnKey(),
			Question:   "question-" + string(rune('a'+i)),
			Answer:     &answer,
			IsComplete: true,
		})
	}
	turns = append(turns, models.Turn{
		TurnKey:  models.NewTurnKey(),
		Question: "pending-question",
	})
	return turns
}

func TestBuildContext_HistoryWindow(t *testing.T) {
	room := &models.Room{RoomID: "room1", HistoryCount: 3}
	turns := makeTranscript(5)

	messages, err := session.BuildContext(turns, room, true)
	require.NoError(t, err)

	// 3 prior exchanges as user/assistant pairs plus the bare final question.
	require.Len(t, messages, 7)
	for i := 0; i < 6; i += 2 {
		assert.Equal(t, models.RoleUser, messages[i].Role)
		assert.Equal(t, models.RoleAssistant, messages[i+1].Role)
	}
	assert.Equal(t, models.RoleUser, messages[6].Role)
	assert.Equal(t, "pending-question", messages[6].Content)
	// The oldest included turn is the fourth from the end.
	assert.Equal(t, turns[2].Question, messages[0].Content)
}

func TestBuildContext_SystemPromptAppended(t *testing.T) {
	room := &models.Room{RoomID: "room1", HistoryCount: 3, Prompt: "You are terse."}
	messages, err := session.BuildContext(makeTranscript(5), room, true)
	require.NoError(t, err)

	// The prompt trails the conversation; order is a provider contract.
	require.Len(t, messages, 8)
	assert.Equal(t, models.RoleSystem, messages[7].Role)
	assert.Equal(t, "You are terse.", messages[7].Content)
}

func TestBuildContext_TruncatesStoredAnswers(t *testing.T) {
	long := strings.Repeat("x", 250)
	turns := makeTranscript(1)
	turns[0].Answer = &long

	room := &models.Room{RoomID: "room1", HistoryCount: 3}
	messages, err := session.BuildContext(turns, room, true)
	require.NoError(t, err)

	require.Len(t, messages, 3)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)
	assert.Len(t, messages[1].Content, 100)
}

func TestBuildContext_WithoutContext(t *testing.T) {
	room := &models.Room{RoomID: "room1", HistoryCount: 3}
	messages, err := session.BuildContext(makeTranscript(5), room, false)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "pending-question"}, messages[0])
}

func TestBuildContext_ShortTranscript(t *testing.T) {
	room := &models.Room{RoomID: "room1", HistoryCount: 3}
	messages, err := session.BuildContext(makeTranscript(0), room, true)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, "pending-question", messages[0].Content)
}

func TestBuildContext_ZeroHistoryWindow(t *testing.T) {
	room := &models.Room{RoomID: "room1", HistoryCount: 0}
	messages, err := session.BuildContext(makeTranscript(5), room, true)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, "pending-question", messages[0].Content)
}

func TestBuildContext_EmptyTranscript(t *testing.T) {
	_, err := session.BuildContext(nil, &models.Room{RoomID: "room1"}, true)
	assert.ErrorIs(t, err, session.ErrEmptyTranscript)
}

func TestBuildContext_PendingAnswerIgnored(t *testing.T) {
	// A prior turn with no answer yet contributes an empty assistant message,
	// never a nil dereference.
	turns := makeTranscript(1)
	turns[0].Answer = nil

	room := &models.Room{RoomID: "room1", HistoryCount: 3}
	messages, err := session.BuildContext(turns, room, true)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "", messages[1].Content)
}
