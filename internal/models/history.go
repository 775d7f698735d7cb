package models

import "time"

// ChatMessage is one role-tagged message sent to a chat-style model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one logged question and answer.
type HistoryEntry struct {
	ID        uint64     `json:"id"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Kind      AnswerKind `json:"kind"`
	Model     string     `json:"model"`
	Seconds   float64    `json:"seconds"`
	CreatedAt time.Time  `json:"created_at"`
}
