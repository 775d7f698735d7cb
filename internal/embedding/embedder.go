// Package embedding maps passage text to fixed-length vectors via Ollama, OpenAI, ONNX, or a local mock.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// Embedder produces vector embeddings for text. Identical input yields identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
}

// Option configures the embedder built by New.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient overrides the HTTP client used by the Ollama and OpenAI embedders.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache when cfg.CacheSize > 0.
// apiKey is used only by the openai provider.
func New(cfg config.EmbeddingConfig, apiKey string, opts ...Option) (Embedder, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = utils.OrNop(o.logger)
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}

	var (
		emb Embedder
		err error
	)
	switch cfg.Provider {
	case "ollama":
		emb = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, o.httpClient)
	case "openai":
		emb, err = NewOpenAIEmbedder(cfg.BaseURL, apiKey, cfg.Model, cfg.Dimensions, o.httpClient)
	case "onnx":
		emb, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "mock":
		emb = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	o.logger.Info("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", emb.Dimensions()))
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(emb, cfg.CacheSize), nil
	}
	return emb, nil
}

// embedEach calls embed for every text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
