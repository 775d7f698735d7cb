package rag

import (
	"strings"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/models"
)

const fallbackPlaceholder = "{fallback}"

// BuildContext joins passage contents, most similar first, separated by blank lines.
func BuildContext(passages []models.ScoredPassage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, p.Passage.Content())
	}
	return strings.Join(parts, "\n\n")
}

// SystemInstructions returns the configured system message with the fallback answer filled in.
func SystemInstructions(cfg config.PromptConfig) string {
	msg := cfg.SystemMessage
	if msg == "" {
		msg = config.DefaultSystemMessage
	}
	fallback := cfg.FallbackAnswer
	if fallback == "" {
		fallback = config.DefaultFallbackAnswer
	}
	return strings.ReplaceAll(msg, fallbackPlaceholder, fallback)
}

// BuildMessages returns the system message carrying the context verbatim followed by the
// instructions, and the user's question.
func BuildMessages(contextText, question string, cfg config.PromptConfig) []models.ChatMessage {
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: contextText + "\n\n" + SystemInstructions(cfg)},
		{Role: models.RoleUser, Content: question},
	}
}

// BuildDirectMessages returns the persona system message and the user's question.
func BuildDirectMessages(system, question string) []models.ChatMessage {
	return []models.ChatMessage{
		{Role: models.RoleSystem, Content: system},
		{Role: models.RoleUser, Content: question},
	}
}
