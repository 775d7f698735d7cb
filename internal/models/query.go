package models

import (
	"fmt"
	"strings"
)

// Ask modes. AskModeRAG answers from indexed documents, AskModeDirect chats with the model alone.
const (
	AskModeRAG    = "rag"
	AskModeDirect = "direct"
)

// AskRequest is the body of POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	Model    string `json:"model,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// ParseAskMode normalizes mode. Empty selects AskModeRAG.
func ParseAskMode(mode string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "", AskModeRAG:
		return AskModeRAG, nil
	case AskModeDirect:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, mode)
	}
}

// Validate trims the question and rejects an empty one. An empty model selects the configured default.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	r.Model = strings.TrimSpace(r.Model)
	if r.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidArgument)
	}
	return nil
}

// Chunk search modes.
const (
	ChunkSearchSubstring = "substring"
	ChunkSearchKeyword   = "keyword"
)

// ChunkQuery selects passages for listing or search. Mode is substring (default) or keyword.
type ChunkQuery struct {
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// Normalize applies the default limit and caps it at maxLimit.
func (q *ChunkQuery) Normalize(defaultLimit, maxLimit int) {
	q.Query = strings.TrimSpace(q.Query)
	q.Mode = strings.ToLower(strings.TrimSpace(q.Mode))
	if q.Mode != ChunkSearchKeyword {
		q.Mode = ChunkSearchSubstring
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
}
