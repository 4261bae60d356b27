package session

import (
	"ichatgo/backend/internal/config"
	"ichatgo/backend/internal/models"

	"github.com/pkg/errors"
)

// ErrEmptyTranscript is returned when context is requested for an empty
// transcript. Submit always appends the pending turn first, so hitting this
// is a programming error, not a runtime condition.
var ErrEmptyTranscript = errors.New("cannot build request context from an empty transcript")

// BuildContext produces the ordered role-tagged message list for one
// completion request. The last turn is the pending question; prior turns
// inside the room's history window contribute their question plus the first
// MaxContextAnswerLen characters of their stored answer. A non-empty room
// prompt is appended as a trailing system message: message order is a
// compatibility contract, several providers treat it as priority.
func BuildContext(turns []models.Turn, room *models.Room, sendContext bool) ([]models.ChatMessage, error) {
	if len(turns) == 0 {
		return nil, ErrEmptyTranscript
	}

	var messages []models.ChatMessage
	if sendContext {
		historyCount := config.DefaultHistoryCount
		if room != nil {
			historyCount = room.HistoryCount
		}
		window := turns
		if len(window) > historyCount+1 {
			window = window[len(window)-historyCount-1:]
		}
		for i := range window {
			if i == len(window)-1 {
				messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: window[i].Question})
				break
			}
			messages = append(messages,
				models.ChatMessage{Role: models.RoleUser, Content: window[i].Question},
				models.ChatMessage{Role: models.RoleAssistant, Content: truncate(window[i].AnswerText(), config.MaxContextAnswerLen)},
			)
		}
	} else {
		messages = append(messages, models.ChatMessage{Role: models.RoleUser, Content: turns[len(turns)-1].Question})
	}

	if room != nil && room.Prompt != "" {
		messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: room.Prompt})
	}
	return messages, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
