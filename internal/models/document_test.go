package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPassage(t *testing.T) {
	p, err := NewPassage("Paris is the capital of France.", map[string]any{
		MetaSource:  "geo.pdf",
		MetaOrdinal: int64(3),
		MetaTitle:   "Capitals",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID())
	assert.Equal(t, "geo.pdf", p.Source())
	assert.Equal(t, 3, p.Ordinal())
	assert.Equal(t, "Capitals", p.Title())

	meta := p.Metadata()
	meta[MetaSource] = "changed"
	assert.Equal(t, "geo.pdf", p.Source(), "Metadata must return a copy")
}

func TestNewPassage_Rejects(t *testing.T) {
	_, err := NewPassage("  ", nil)
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = NewPassage("text", map[string]any{"bad": []string{"x"}})
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestPassage_OrdinalUnset(t *testing.T) {
	p, err := NewPassage("text", nil)
	require.NoError(t, err)
	assert.Equal(t, -1, p.Ordinal())
	assert.Equal(t, "", p.Title())
}

func TestRestorePassage_JSONNumbers(t *testing.T) {
	p, err := RestorePassage("id-1", "body", map[string]any{
		MetaOrdinal: json.Number("7"),
		"score":     json.Number("0.5"),
	}, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 7, p.Ordinal())
	v, _ := p.Meta("score")
	assert.Equal(t, 0.5, v)
}

func TestPassage_WholeFloatStaysFloat(t *testing.T) {
	p, err := RestorePassage("id-1", "body", map[string]any{
		"weight": 2.0,
		"count":  2,
		"big":    1e21,
	}, time.Unix(0, 0).UTC())
	require.NoError(t, err)
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"weight":2.0`)

	var back Passage
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.Metadata(), back.Metadata())

	raw, err := MarshalMetadata(map[string]any{"weight": 2.0, "ratio": 0.25})
	require.NoError(t, err)
	assert.JSONEq(t, `{"weight":2.0,"ratio":0.25}`, string(raw))

	restored, err := RestorePassage("id-2", "body", map[string]any{"weight": json.Number("2.0"), "exp": json.Number("3e2")}, time.Unix(0, 0))
	require.NoError(t, err)
	v, _ := restored.Meta("weight")
	assert.Equal(t, 2.0, v)
	v, _ = restored.Meta("exp")
	assert.Equal(t, 300.0, v)
}

func TestPassage_MarshalJSON(t *testing.T) {
	p, err := RestorePassage("id-1", "body", map[string]any{MetaSource: "a.pdf"}, time.Unix(0, 0).UTC())
	require.NoError(t, err)
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"id-1"`)
	assert.Contains(t, string(data), `"source":"a.pdf"`)
}

func TestPassage_UnmarshalJSON(t *testing.T) {
	p, err := RestorePassage("id-1", "body", map[string]any{MetaSource: "a.pdf", MetaOrdinal: 4}, time.Unix(0, 0).UTC())
	require.NoError(t, err)
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back Passage
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "id-1", back.ID())
	assert.Equal(t, "a.pdf", back.Source())
	assert.Equal(t, 4, back.Ordinal())

	assert.Error(t, json.Unmarshal([]byte(`{"id":"x","content":"  "}`), &back))
}

func TestSourceDocument(t *testing.T) {
	_, err := NewSourceDocument("", []string{"x"})
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	d, err := NewSourceDocument("a.pdf", []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", d.Text())
}

func TestBackendError(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := error(&BackendError{Backend: "ollama", Op: "chat", Err: base})
	assert.True(t, errors.Is(err, base))
	assert.False(t, errors.Is(err, ErrBackendTimeout))
	assert.True(t, IsBackendError(err))

	timeout := &BackendError{Backend: "ollama", Op: "chat", Err: base, Timeout: true}
	wrapped := error(timeout)
	assert.True(t, errors.Is(wrapped, ErrBackendTimeout))
	assert.True(t, timeout.Retryable())
	assert.Contains(t, timeout.Error(), "timed out")
}

func TestAnswer(t *testing.T) {
	a := Answer{Kind: AnswerRecited, Text: "x", Duration: 1234 * time.Millisecond}
	assert.True(t, a.OK())
	assert.Equal(t, 1.23, a.Seconds())
	assert.False(t, Answer{Kind: AnswerNotIndexed}.OK())
}

func TestNewBackendError_timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	be := NewBackendError("ollama", "chat", fmt.Errorf("post: %w", ctx.Err()))
	assert.True(t, be.Timeout)
	assert.True(t, errors.Is(be, ErrBackendTimeout))

	be = NewBackendError("ollama", "chat", errors.New("status 500"))
	assert.False(t, be.Timeout)
}
