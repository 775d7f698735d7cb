// Package models defines core data structures for passages, answers, and the error taxonomy.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata keys set by the chunkers.
const (
	MetaSource    = "source"
	MetaSourceID  = "source_id"
	MetaOrdinal   = "ordinal"
	MetaTitle     = "title"
	MetaType      = "type"
	MetaPageCount = "page_count"
)

// Passage is an immutable unit of retrievable text. Its embedding is owned by the vector index.
type Passage struct {
	id        string
	content   string
	metadata  map[string]any
	createdAt time.Time
}

// NewPassage validates content and metadata and returns a passage with a fresh ID.
// Content must be non-blank; metadata values must be scalars (string, bool, integer, float).
func NewPassage(content string, metadata map[string]any) (*Passage, error) {
	return RestorePassage(uuid.NewString(), content, metadata, time.Now().UTC())
}

// RestorePassage rebuilds a passage read back from storage, keeping its ID and creation time.
func RestorePassage(id, content string, metadata map[string]any, createdAt time.Time) (*Passage, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: passage id is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: passage content is empty", ErrInvalidArgument)
	}
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		norm, err := normalizeScalar(v)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata %q: %v", ErrInvalidArgument, k, err)
		}
		meta[k] = norm
	}
	return &Passage{id: id, content: content, metadata: meta, createdAt: createdAt}, nil
}

// MarshalMetadata encodes metadata so that whole floats keep a fractional part ("2.0")
// and decode back as float64 rather than int.
func MarshalMetadata(meta map[string]any) ([]byte, error) {
	return json.Marshal(floatsAsNumbers(meta))
}

func floatsAsNumbers(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		f, ok := v.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			out[k] = v
			continue
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		out[k] = json.Number(s)
	}
	return out
}

// normalizeScalar maps every integer kind to int so values survive a JSON round trip unchanged.
func normalizeScalar(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case json.Number:
		if !strings.ContainsAny(string(x), ".eE") {
			if i, err := x.Int64(); err == nil {
				return int(i), nil
			}
		}
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func (p *Passage) ID() string           { return p.id }
func (p *Passage) Content() string      { return p.content }
func (p *Passage) CreatedAt() time.Time { return p.createdAt }

// Metadata returns a copy of the passage metadata.
func (p *Passage) Metadata() map[string]any {
	out := make(map[string]any, len(p.metadata))
	for k, v := range p.metadata {
		out[k] = v
	}
	return out
}

// Meta returns a single metadata value.
func (p *Passage) Meta(key string) (any, bool) {
	v, ok := p.metadata[key]
	return v, ok
}

// Source returns the source document name, or "" when unset.
func (p *Passage) Source() string { return p.metaString(MetaSource) }

// Title returns the extracted title, or "" when unset.
func (p *Passage) Title() string { return p.metaString(MetaTitle) }

// Ordinal returns the position of the passage within its source, or -1 when unset.
func (p *Passage) Ordinal() int {
	if v, ok := p.metadata[MetaOrdinal].(int); ok {
		return v
	}
	return -1
}

func (p *Passage) metaString(key string) string {
	if v, ok := p.metadata[key].(string); ok {
		return v
	}
	return ""
}

type passageJSON struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// MarshalJSON exposes the passage fields to the HTTP and CLI layers.
func (p *Passage) MarshalJSON() ([]byte, error) {
	return json.Marshal(passageJSON{ID: p.id, Content: p.content, Metadata: floatsAsNumbers(p.metadata), CreatedAt: p.createdAt})
}

// UnmarshalJSON restores a passage encoded by MarshalJSON, validating it like RestorePassage.
func (p *Passage) UnmarshalJSON(data []byte) error {
	var pj passageJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&pj); err != nil {
		return err
	}
	restored, err := RestorePassage(pj.ID, pj.Content, pj.Metadata, pj.CreatedAt)
	if err != nil {
		return err
	}
	*p = *restored
	return nil
}

// SourceDocument is the Document Loader output: a named source and its ordered page texts.
type SourceDocument struct {
	Source   string
	SourceID string
	Pages    []string
}

// NewSourceDocument validates that the source is named. Zero pages is allowed.
func NewSourceDocument(source string, pages []string) (SourceDocument, error) {
	if strings.TrimSpace(source) == "" {
		return SourceDocument{}, fmt.Errorf("%w: source name is empty", ErrInvalidArgument)
	}
	return SourceDocument{Source: source, Pages: pages}, nil
}

// Text joins the pages with newline separators.
func (d SourceDocument) Text() string {
	return strings.Join(d.Pages, "\n")
}
