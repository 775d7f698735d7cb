package embedding

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/pkg/utils"
)

const (
	openAIMaxBatch = 100
	backendOpenAI  = "openai"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint through openai-go.
type OpenAIEmbedder struct {
	client     openai.Client
	backend    string
	model      string
	dimensions int
}

// NewOpenAIEmbedder returns an embedder for model at baseURL. apiKey must be non-empty.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, httpClient *http.Client) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai embedder requires an API key", models.ErrConfiguration)
	}
	return newCompatibleEmbedder(backendOpenAI, baseURL, apiKey, model, dimensions, httpClient), nil
}

func newCompatibleEmbedder(backend, baseURL, apiKey, model string, dimensions int, httpClient *http.Client) *OpenAIEmbedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		backend:    backend,
		model:      model,
		dimensions: dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of up to 100. Vectors are L2-normalized.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += openAIMaxBatch {
		end := min(start+openAIMaxBatch, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, models.NewBackendError(e.backend, "embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, models.NewBackendError(e.backend, "embed",
			fmt.Errorf("malformed response: %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, models.NewBackendError(e.backend, "embed", fmt.Errorf("malformed response: index %d", d.Index))
		}
		if e.dimensions > 0 && len(d.Embedding) != e.dimensions {
			return nil, models.NewBackendError(e.backend, "embed",
				fmt.Errorf("malformed response: got %d dimensions, want %d", len(d.Embedding), e.dimensions))
		}
		v := utils.Float64sToFloat32s(d.Embedding)
		utils.NormalizeL2(v)
		out[d.Index] = v
	}
	return out, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

func (e *OpenAIEmbedder) Close() error { return nil }
