package indexer

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/models"
)

func doc(source string, pages ...string) models.SourceDocument {
	return models.SourceDocument{Source: source, SourceID: "src:" + source, Pages: pages}
}

func meta(p *models.Passage, key string) any {
	v, _ := p.Meta(key)
	return v
}

func TestNewWindowChunker_validation(t *testing.T) {
	tests := []struct {
		size, overlap int
		wantErr       bool
	}{
		{10, 10, true},
		{10, 11, true},
		{0, 0, true},
		{10, -1, true},
		{1, 0, false},
		{500, 50, false},
	}
	for _, tt := range tests {
		_, err := NewWindowChunker(tt.size, tt.overlap)
		if tt.wantErr {
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("NewWindowChunker(%d, %d) err = %v, want ErrConfiguration", tt.size, tt.overlap, err)
			}
		} else if err != nil {
			t.Errorf("NewWindowChunker(%d, %d): %v", tt.size, tt.overlap, err)
		}
	}
}

func TestWindowChunker_Split(t *testing.T) {
	c, err := NewWindowChunker(10, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := c.Split("abcdefghijklmnopqrstuvwxyz")
	want := []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxyz"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}
	if c.Split("") != nil {
		t.Error("empty text should produce no windows")
	}
}

func TestWindowChunker_Split_runes(t *testing.T) {
	c, _ := NewWindowChunker(3, 1)
	got := c.Split("àèìòù")
	want := []string{"àèì", "ìòù"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}
}

func TestWindowChunker_Chunk(t *testing.T) {
	c, _ := NewWindowChunker(20, 5)
	passages, err := c.Chunk([]models.SourceDocument{
		doc("a.pdf", "first page has some words", "second page"),
		doc("b.pdf", "tiny"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) < 3 {
		t.Fatalf("expected at least 3 passages, got %d", len(passages))
	}
	last := passages[len(passages)-1]
	if last.Source() != "b.pdf" || last.Content() != "tiny" || last.Ordinal() != 0 {
		t.Errorf("last passage = %q from %q ordinal %d", last.Content(), last.Source(), last.Ordinal())
	}
	for i, p := range passages[:len(passages)-1] {
		if p.Source() != "a.pdf" {
			t.Errorf("passage %d source = %q", i, p.Source())
		}
		if p.Ordinal() != i {
			t.Errorf("passage %d ordinal = %d", i, p.Ordinal())
		}
		if meta(p, models.MetaType) != TypeWindow {
			t.Errorf("passage %d type = %v", i, meta(p, models.MetaType))
		}
		if meta(p, models.MetaSourceID) != "src:a.pdf" {
			t.Errorf("passage %d source_id = %v", i, meta(p, models.MetaSourceID))
		}
	}
}

func TestWindowChunker_Chunk_empty(t *testing.T) {
	c, _ := NewWindowChunker(10, 2)
	passages, err := c.Chunk(nil)
	if err != nil || len(passages) != 0 {
		t.Errorf("Chunk(nil) = %v, %v", passages, err)
	}
	passages, err = c.Chunk([]models.SourceDocument{doc("blank.pdf", "   ", "")})
	if err != nil || len(passages) != 0 {
		t.Errorf("blank pages = %v, %v", passages, err)
	}
}

func TestWindowChunker_deterministic(t *testing.T) {
	c, _ := NewWindowChunker(16, 4)
	in := []models.SourceDocument{doc("a.pdf", strings.Repeat("lorem ipsum dolor sit amet ", 20))}
	first, err := c.Chunk(in)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := c.Chunk(in)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Content() != second[i].Content() || !reflect.DeepEqual(first[i].Metadata(), second[i].Metadata()) {
			t.Errorf("passage %d differs between runs", i)
		}
	}
}

const sectionText = `Preamble that is not part of any section
Section A
line one of a
line two of a
line three of a
Section B
line one of b
line two of b
line three of b`

func TestStructuredChunker_Extract(t *testing.T) {
	c, err := NewStructuredChunker("Section", 3, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := c.Extract(sectionText)
	if len(got) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(got), got)
	}
	for i, name := range []string{"A", "B"} {
		if !strings.HasPrefix(got[i].Content, "Section "+name) {
			t.Errorf("section %d content starts %q", i, got[i].Content)
		}
		if got[i].Title != name {
			t.Errorf("section %d title = %q, want %q", i, got[i].Title, name)
		}
	}
	if strings.Contains(got[0].Content, "Section B") || strings.Contains(got[0].Content, "of b") {
		t.Errorf("section A bleeds into B: %q", got[0].Content)
	}
	if strings.Contains(got[0].Content, "Preamble") {
		t.Errorf("preamble should be dropped: %q", got[0].Content)
	}
}

func TestStructuredChunker_Extract_filters(t *testing.T) {
	c, _ := NewStructuredChunker("Poem:", 3, 40, nil)
	text := "POEM: The Raven\nOnce upon a midnight dreary\nwhile I pondered weak and weary\n" +
		"Poem: Stub\nonly one line\n" +
		"Poem: Short\na\nb"
	got := c.Extract(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 section, got %d: %+v", len(got), got)
	}
	if got[0].Title != "The Raven" {
		t.Errorf("title = %q", got[0].Title)
	}
}

func TestStructuredChunker_Chunk_metadata(t *testing.T) {
	c, _ := NewStructuredChunker("Section", 3, 10, nil)
	passages, err := c.Chunk([]models.SourceDocument{doc("s.pdf", sectionText)})
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}
	if passages[1].Title() != "B" || passages[1].Ordinal() != 1 || meta(passages[1], models.MetaType) != TypeSection {
		t.Errorf("unexpected metadata %v", passages[1].Metadata())
	}
}

func TestStructuredChunker_noMarkers(t *testing.T) {
	in := []models.SourceDocument{doc("plain.pdf", "just some ordinary text without markers")}

	strict, _ := NewStructuredChunker("Section", 1, 1, nil)
	passages, err := strict.Chunk(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 0 {
		t.Errorf("expected no passages without fallback, got %d", len(passages))
	}

	window, _ := NewWindowChunker(500, 50)
	lenient, _ := NewStructuredChunker("Section", 1, 1, window)
	passages, err = lenient.Chunk(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(passages) != 1 || meta(passages[0], models.MetaType) != TypeWindow {
		t.Errorf("expected one window passage from fallback, got %d", len(passages))
	}
}

func TestNewStructuredChunker_validation(t *testing.T) {
	if _, err := NewStructuredChunker("  ", 1, 1, nil); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("empty prefix err = %v", err)
	}
	if _, err := NewStructuredChunker("X", -1, 1, nil); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("negative min lines err = %v", err)
	}
}

func TestNewChunker(t *testing.T) {
	c, err := NewChunker(config.ChunkingConfig{Mode: "window", ChunkSize: 100, ChunkOverlap: 10})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*WindowChunker); !ok {
		t.Errorf("window mode gave %T", c)
	}
	c, err = NewChunker(config.ChunkingConfig{Mode: "structured", MarkerPrefix: "Poem:", MinLines: 3, MinChars: 40, ChunkSize: 100, ChunkOverlap: 10, FallbackToWindow: true})
	if err != nil {
		t.Fatal(err)
	}
	if sc, ok := c.(*StructuredChunker); !ok || sc.fallback == nil {
		t.Errorf("structured mode gave %T", c)
	}
	if _, err := NewChunker(config.ChunkingConfig{Mode: "window", ChunkSize: 10, ChunkOverlap: 10}); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("bad overlap err = %v", err)
	}
	if _, err := NewChunker(config.ChunkingConfig{Mode: "semantic"}); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("unknown mode err = %v", err)
	}
}

func TestPreprocess(t *testing.T) {
	got := Preprocess("  a   b  \r\n\n\n\n  c\td  \n")
	if got != "a b\n\nc d" {
		t.Errorf("Preprocess = %q", got)
	}
}
