// Package cli provides output helpers for the ragchat commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/internal/storage"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const separator = "─────────────────────────────────────────────────────────"

// ParseFormat returns the format named by s. Anything but "json" is text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

type answerOutput struct {
	Answer  string            `json:"answer"`
	Kind    models.AnswerKind `json:"kind"`
	Model   string            `json:"model,omitempty"`
	Mode    string            `json:"mode,omitempty"`
	Time    float64           `json:"time"`
	Sources []*models.Passage `json:"sources,omitempty"`
}

// WriteAnswer writes an answer. In text mode verbose adds the sources used.
func WriteAnswer(w io.Writer, ans models.Answer, format OutputFormat, verbose bool) error {
	if format == OutputJSON {
		return writeJSON(w, answerOutput{
			Answer:  ans.Text,
			Kind:    ans.Kind,
			Model:   ans.Model,
			Mode:    ans.Mode,
			Time:    ans.Seconds(),
			Sources: ans.Sources,
		})
	}
	fmt.Fprintln(w, ans.Display())
	if !verbose {
		return nil
	}
	fmt.Fprintf(w, "\n[%s] model=%s mode=%s %.2fs\n", ans.Kind, ans.Model, ans.Mode, ans.Seconds())
	for _, p := range ans.Sources {
		fmt.Fprintf(w, "  - %s #%d: %s\n", p.Source(), p.Ordinal(), TruncateWords(p.Content(), 12))
	}
	return nil
}

// WriteChunks writes passages. Text mode prints each one in full between separators.
func WriteChunks(w io.Writer, passages []*models.Passage, format OutputFormat) error {
	if format == OutputJSON {
		if passages == nil {
			passages = []*models.Passage{}
		}
		return writeJSON(w, passages)
	}
	fmt.Fprintf(w, "%d chunk(s)\n", len(passages))
	for _, p := range passages {
		fmt.Fprintln(w, separator)
		header := fmt.Sprintf("%s #%d", p.Source(), p.Ordinal())
		if title := p.Title(); title != "" {
			header += " | " + title
		}
		fmt.Fprintln(w, header)
		fmt.Fprintf(w, "\n%s\n\n", p.Content())
	}
	return nil
}

// ExportChunks writes every passage's content separated by blank lines.
func ExportChunks(w io.Writer, passages []*models.Passage) error {
	contents := make([]string, len(passages))
	for i, p := range passages {
		contents[i] = p.Content()
	}
	_, err := io.WriteString(w, strings.Join(contents, "\n\n"))
	return err
}

// WriteIngestResult reports an ingestion run.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Indexed %d chunk(s) from %d file(s)\n", res.Count, len(res.Files))
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "  skipped: %s\n", s)
	}
	for i, p := range res.Passages {
		if i == 5 {
			break
		}
		fmt.Fprintf(w, "[CHUNK %d] %s...\n", i, utils.Prefix(p.Content(), 80))
	}
	return nil
}

// WriteModels lists model names, marking the default.
func WriteModels(w io.Writer, names []string, defaultModel string, format OutputFormat) error {
	if format == OutputJSON {
		if names == nil {
			names = []string{}
		}
		return writeJSON(w, map[string]interface{}{"models": names, "default": defaultModel})
	}
	for _, n := range names {
		mark := " "
		if n == defaultModel || strings.TrimSuffix(n, ":latest") == defaultModel {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, n)
	}
	return nil
}

// WriteHistory writes history entries, newest first.
func WriteHistory(w io.Writer, entries []models.HistoryEntry, format OutputFormat) error {
	if format == OutputJSON {
		if entries == nil {
			entries = []models.HistoryEntry{}
		}
		return writeJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(w, separator)
		fmt.Fprintf(w, "#%d %s [%s] %s %.2fs\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Model, e.Seconds)
		fmt.Fprintf(w, "Q: %s\nA: %s\n", e.Question, Truncate(e.Answer, 200))
	}
	return nil
}

// WriteSources lists ingested documents.
func WriteSources(w io.Writer, sources []storage.SourceInfo, format OutputFormat) error {
	if format == OutputJSON {
		if sources == nil {
			sources = []storage.SourceInfo{}
		}
		return writeJSON(w, sources)
	}
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%d page(s)\t%d chunk(s)\t%s\n",
			s.Name, s.PageCount, s.Passages, s.IngestedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Truncate shortens s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
