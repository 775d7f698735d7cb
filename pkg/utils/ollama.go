package utils

import "strings"

// DefaultOllamaURL is the address of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaV1URL returns the OpenAI-compatible API root of the Ollama server at baseURL.
// "http://host:11434", "http://host:11434/" and "http://host:11434/v1" all yield "http://host:11434/v1".
func OllamaV1URL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if strings.HasSuffix(baseURL, "/v1") {
		return baseURL
	}
	return baseURL + "/v1"
}
