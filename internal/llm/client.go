// Package llm talks to the language-model backend: a local Ollama server or an OpenAI-compatible API.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// Client is a chat-style language-model backend. Failures are returned as *models.BackendError.
type Client interface {
	Chat(ctx context.Context, model string, messages []models.ChatMessage) (string, error)
	Generate(ctx context.Context, model, prompt string) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// Option configures clients built by New.
type Option func(*options)

// WithLogger sets the logger for call timings.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the client for cfg.Provider.
func New(cfg config.LLMConfig, opts ...Option) (Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = utils.OrNop(o.logger)
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg.BaseURL, cfg.Temperature, o.httpClient, o.logger), nil
	case "openai":
		return NewOpenAIClient(cfg.BaseURL, cfg.APIKey(), cfg.Temperature, o.httpClient, o.logger)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", models.ErrConfiguration, cfg.Provider)
	}
}
