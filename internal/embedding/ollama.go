package embedding

import (
	"net/http"

	"github.com/hyperjump/ragchat/pkg/utils"
)

const (
	backendOllama = "ollama"
	ollamaAPIKey  = "ollama"
)

// NewOllamaEmbedder returns an embedder for model served by Ollama at baseURL
// (http://localhost:11434 when empty), using its OpenAI-compatible /v1 API.
func NewOllamaEmbedder(baseURL, model string, dimensions int, httpClient *http.Client) *OpenAIEmbedder {
	return newCompatibleEmbedder(backendOllama, utils.OllamaV1URL(baseURL), ollamaAPIKey, model, dimensions, httpClient)
}
