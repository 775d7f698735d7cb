package models

import "time"

// AnswerKind tells callers whether an Answer carries model output or a degraded message.
type AnswerKind string

const (
	AnswerOK            AnswerKind = "ok"
	AnswerRecited       AnswerKind = "recited"
	AnswerNotIndexed    AnswerKind = "not_indexed"
	AnswerNoMatch       AnswerKind = "no_match"
	AnswerBackendError  AnswerKind = "backend_error"
	AnswerEmptyQuestion AnswerKind = "empty_question"
)

// Answer is the outcome of one question. Text is always displayable; Err is set for backend failures.
type Answer struct {
	Kind     AnswerKind    `json:"kind"`
	Text     string        `json:"answer"`
	Model    string        `json:"model,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	Sources  []*Passage    `json:"sources,omitempty"`
	Duration time.Duration `json:"-"`
	Err      error         `json:"-"`
}

// OK reports whether the answer is model output or a recited passage.
func (a Answer) OK() bool {
	return a.Kind == AnswerOK || a.Kind == AnswerRecited
}

// Display returns the user-visible string.
func (a Answer) Display() string { return a.Text }

// Seconds returns the elapsed time rounded to two decimals, as reported by the ask endpoints.
func (a Answer) Seconds() float64 {
	return float64(a.Duration.Milliseconds()/10) / 100
}

// IngestResult reports how many passages were created from the ingested paths.
type IngestResult struct {
	Count    int        `json:"count"`
	Passages []*Passage `json:"passages"`
	Files    []string   `json:"files"`
	Skipped  []string   `json:"skipped,omitempty"`
}

// ScoredPassage is a retrieval hit.
type ScoredPassage struct {
	Passage *Passage `json:"passage"`
	Score   float64  `json:"score"`
}
