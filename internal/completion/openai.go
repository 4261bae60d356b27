package completion

import (
	"context"
	"io"
	"net/http"
	"time"

	"ichatgo/backend/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient configures a client for the given key, API host (bare
// hostname) and request timeout. Rebuild the client to pick up edited
// credentials; an instance never re-reads configuration.
func NewOpenAIClient(apiKey, apiHost string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if apiHost != "" {
		cfg.BaseURL = "https://" + apiHost + "/v1"
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Complete runs one exchange in its own goroutine and reports progress on
// the returned channel. Exactly one terminal event is delivered, then the
// channel is closed.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		if req.Stream {
			c.completeStream(ctx, req, events)
			return
		}
		c.completeOnce(ctx, req, events)
	}()
	return events
}

func (c *OpenAIClient) completeOnce(ctx context.Context, req Request, events chan<- Event) {
	resp, err := c.client.CreateChatCompletion(ctx, makeChatRequest(req, false))
	if err != nil {
		events <- Event{Type: EventError, Content: err.Error()}
		return
	}
	if len(resp.Choices) == 0 {
		events <- Event{Type: EventError, Content: errors.New("provider returned no choices").Error()}
		return
	}
	events <- Event{Type: EventDone, Content: resp.Choices[0].Message.Content}
}

func (c *OpenAIClient) completeStream(ctx context.Context, req Request, events chan<- Event) {
	stream, err := c.client.CreateChatCompletionStream(ctx, makeChatRequest(req, true))
	if err != nil {
		events <- Event{Type: EventError, Content: err.Error()}
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close completion stream")
		}
	}()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			events <- Event{Type: EventDone}
			return
		}
		if err != nil {
			events <- Event{Type: EventError, Content: err.Error()}
			return
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			events <- Event{Type: EventFragment, Content: delta}
		}
	}
}

func makeChatRequest(req Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    providerRole(m.Role),
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		Stream:      stream,
	}
}

func providerRole(role string) string {
	switch role {
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

var _ Client = (*OpenAIClient)(nil)
