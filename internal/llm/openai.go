package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/pkg/utils"
)

const backendOpenAI = "openai"

// OpenAIClient calls an OpenAI-compatible chat completions API through openai-go.
// Ollama is served through the same client at its /v1 root.
type OpenAIClient struct {
	client      openai.Client
	backend     string
	temperature float64
	logger      *zap.Logger
}

// NewOpenAIClient returns a client for baseURL (the official API when empty). apiKey must be set.
func NewOpenAIClient(baseURL, apiKey string, temperature float64, httpClient *http.Client, logger *zap.Logger) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai provider requires an API key", models.ErrConfiguration)
	}
	return newCompatibleClient(backendOpenAI, baseURL, apiKey, temperature, httpClient, logger), nil
}

func newCompatibleClient(backend, baseURL, apiKey string, temperature float64, httpClient *http.Client, logger *zap.Logger) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		backend:     backend,
		temperature: temperature,
		logger:      utils.OrNop(logger),
	}
}

// Backend names the server behind the client, "openai" or "ollama".
func (c *OpenAIClient) Backend() string { return c.backend }

// Chat runs a chat completion and returns the first choice.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []models.ChatMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(c.temperature),
	}
	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", models.NewBackendError(c.backend, "chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", models.NewBackendError(c.backend, "chat", errors.New("malformed response: no choices"))
	}
	c.logger.Debug("llm call", zap.String("backend", c.backend), zap.String("op", "chat"),
		zap.String("model", model), zap.Duration("duration", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// Generate sends prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	return c.Chat(ctx, model, []models.ChatMessage{{Role: models.RoleUser, Content: prompt}})
}

// ListModels returns the IDs of the models the backend serves. For Ollama these are the
// locally installed models.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	iter := c.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		names = append(names, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, models.NewBackendError(c.backend, "models", err)
	}
	return names, nil
}

func toOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
