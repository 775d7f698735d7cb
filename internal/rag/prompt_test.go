package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/models"
)

func TestBuildMessages(t *testing.T) {
	cfg := config.PromptConfig{
		SystemMessage:  "Use only the context. Otherwise say '{fallback}'.",
		FallbackAnswer: "I don't know.",
	}
	msgs := BuildMessages("Paris is the capital of France.", "What is the capital of France?", cfg)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.True(t, strings.HasPrefix(msgs[0].Content, "Paris is the capital of France.\n\n"))
	assert.Contains(t, msgs[0].Content, "Otherwise say 'I don't know.'.")
	assert.NotContains(t, msgs[0].Content, "{fallback}")
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "What is the capital of France?"}, msgs[1])
}

func TestSystemInstructions_defaults(t *testing.T) {
	got := SystemInstructions(config.PromptConfig{})
	assert.Contains(t, got, config.DefaultFallbackAnswer)
	assert.NotContains(t, got, "{fallback}")
}

func TestBuildContext(t *testing.T) {
	a := titled(t, "", "first")
	b := titled(t, "", "second")
	got := BuildContext([]models.ScoredPassage{{Passage: a, Score: 0.9}, {Passage: b, Score: 0.5}})
	assert.Equal(t, "first\n\nsecond", got)
	assert.Equal(t, "", BuildContext(nil))
}

func TestBuildDirectMessages(t *testing.T) {
	msgs := BuildDirectMessages("You are a robot.", "Who made you?")
	assert.Equal(t, []models.ChatMessage{
		{Role: models.RoleSystem, Content: "You are a robot."},
		{Role: models.RoleUser, Content: "Who made you?"},
	}, msgs)
}
