package llm

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/pkg/utils"
)

const backendOllama = "ollama"

// Ollama ignores the key but the OpenAI client sends one.
const ollamaAPIKey = "ollama"

// NewOllamaClient returns a client for the Ollama server at baseURL (default http://localhost:11434),
// using its OpenAI-compatible API.
func NewOllamaClient(baseURL string, temperature float64, httpClient *http.Client, logger *zap.Logger) *OpenAIClient {
	return newCompatibleClient(backendOllama, utils.OllamaV1URL(baseURL), ollamaAPIKey, temperature, httpClient, logger)
}
