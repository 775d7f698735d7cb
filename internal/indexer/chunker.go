// Package indexer turns loaded documents into passages and ingests them into the vector store.
package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// Passage type tags written to metadata.
const (
	TypeWindow  = "window"
	TypeSection = "section"
)

// Chunker splits source documents into passage candidates. Output order follows input order and is
// deterministic for identical input.
type Chunker interface {
	Chunk(docs []models.SourceDocument) ([]*models.Passage, error)
}

// ChunkerOption configures chunkers built by NewChunker.
type ChunkerOption func(*StructuredChunker)

// WithChunkerLogger sets the logger used to report sources without markers.
func WithChunkerLogger(l *zap.Logger) ChunkerOption {
	return func(c *StructuredChunker) { c.logger = l }
}

// NewChunker builds the chunker selected by cfg.Mode.
func NewChunker(cfg config.ChunkingConfig, opts ...ChunkerOption) (Chunker, error) {
	switch cfg.Mode {
	case "", TypeWindow:
		return NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	case "structured":
		var fallback *WindowChunker
		if cfg.FallbackToWindow {
			w, err := NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap)
			if err != nil {
				return nil, err
			}
			fallback = w
		}
		return NewStructuredChunker(cfg.MarkerPrefix, cfg.MinLines, cfg.MinChars, fallback, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown chunking mode %q", models.ErrConfiguration, cfg.Mode)
	}
}

// WindowChunker splits each document's text into fixed-size character windows that overlap.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates size >= 1 and 0 <= overlap < size.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk size must be at least 1, got %d", models.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", models.ErrConfiguration, overlap, size)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunk concatenates each document's pages and splits the result into windows.
func (c *WindowChunker) Chunk(docs []models.SourceDocument) ([]*models.Passage, error) {
	var out []*models.Passage
	for _, doc := range docs {
		ps, err := c.chunkDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

func (c *WindowChunker) chunkDoc(doc models.SourceDocument) ([]*models.Passage, error) {
	var out []*models.Passage
	for _, w := range c.Split(Preprocess(doc.Text())) {
		p, err := models.NewPassage(w, sourceMeta(doc, len(out), TypeWindow))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Split returns the non-blank windows of text. Windows are measured in runes; each starts
// size-overlap runes after the previous one.
func (c *WindowChunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		if w := strings.TrimSpace(string(runes[start:end])); w != "" {
			out = append(out, w)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// Section is one unit found by StructuredChunker.Extract.
type Section struct {
	Title   string
	Content string
}

// StructuredChunker splits text on marker lines. A section runs from its marker line up to the
// line before the next marker; text before the first marker is ignored.
type StructuredChunker struct {
	prefix   string
	minLines int
	minChars int
	fallback *WindowChunker
	logger   *zap.Logger
}

// NewStructuredChunker returns a chunker for marker prefix. Sections with fewer than minLines
// non-blank lines or fewer than minChars characters are dropped. When fallback is non-nil, sources
// without any marker are window-chunked instead of yielding nothing.
func NewStructuredChunker(prefix string, minLines, minChars int, fallback *WindowChunker, opts ...ChunkerOption) (*StructuredChunker, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, fmt.Errorf("%w: marker prefix is empty", models.ErrConfiguration)
	}
	if minLines < 0 || minChars < 0 {
		return nil, fmt.Errorf("%w: minimum lines and characters must not be negative", models.ErrConfiguration)
	}
	c := &StructuredChunker{prefix: prefix, minLines: minLines, minChars: minChars, fallback: fallback}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c, nil
}

// Chunk extracts sections from every document.
func (c *StructuredChunker) Chunk(docs []models.SourceDocument) ([]*models.Passage, error) {
	var out []*models.Passage
	for _, doc := range docs {
		text := Preprocess(doc.Text())
		sections := c.Extract(text)
		if len(sections) == 0 && text != "" {
			c.logger.Warn("no sections found in source",
				zap.String("source", doc.Source),
				zap.String("marker", c.prefix),
				zap.Bool("fallback", c.fallback != nil))
			if c.fallback != nil {
				ps, err := c.fallback.chunkDoc(doc)
				if err != nil {
					return nil, err
				}
				out = append(out, ps...)
			}
			continue
		}
		for i, s := range sections {
			meta := sourceMeta(doc, i, TypeSection)
			if s.Title != "" {
				meta[models.MetaTitle] = s.Title
			}
			p, err := models.NewPassage(s.Content, meta)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

// Extract returns the sections of text that pass the size filters, in order.
func (c *StructuredChunker) Extract(text string) []Section {
	var (
		out     []Section
		current []string
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		if s, ok := c.section(current); ok {
			out = append(out, s)
		}
		current = nil
	}
	for _, line := range strings.Split(text, "\n") {
		if c.isMarker(line) {
			flush()
			current = []string{line}
			continue
		}
		if current != nil {
			current = append(current, line)
		}
	}
	flush()
	return out
}

func (c *StructuredChunker) isMarker(line string) bool {
	line = strings.TrimSpace(line)
	return len(line) >= len(c.prefix) && strings.EqualFold(line[:len(c.prefix)], c.prefix)
}

func (c *StructuredChunker) section(lines []string) (Section, bool) {
	content := strings.TrimSpace(strings.Join(lines, "\n"))
	nonBlank := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonBlank++
		}
	}
	if nonBlank < c.minLines || utf8.RuneCountInString(content) < c.minChars {
		return Section{}, false
	}
	title := strings.TrimSpace(lines[0])[len(c.prefix):]
	title = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(title), ":-"))
	return Section{Title: title, Content: content}, true
}

func sourceMeta(doc models.SourceDocument, ordinal int, typ string) map[string]any {
	meta := map[string]any{
		models.MetaSource:    doc.Source,
		models.MetaOrdinal:   ordinal,
		models.MetaType:      typ,
		models.MetaPageCount: len(doc.Pages),
	}
	if doc.SourceID != "" {
		meta[models.MetaSourceID] = doc.SourceID
	}
	return meta
}
