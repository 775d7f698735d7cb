// Package extract loads PDF documents as ordered page texts.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/fileid"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// Loader converts PDF files into per-page UTF-8 text.
type Loader struct {
	logger *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger for page counts and skipped pages.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// NewLoader returns a new Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = utils.OrNop(l.logger)
	return l
}

// LoadPages reads the PDF at path and returns one text per page, in page order.
// Pages without a content object yield empty strings so page numbering is preserved.
func (l *Loader) LoadPages(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	pages, err := l.LoadPagesBytes(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	l.logger.Info("loaded PDF", zap.String("path", path), zap.Int("pages", len(pages)))
	return pages, nil
}

// LoadPagesBytes extracts pages from an in-memory PDF.
func (l *Loader) LoadPagesBytes(content []byte) ([]string, error) {
	return extractPDFPages(content)
}

// Load reads the PDF at path into a SourceDocument named by the file's base name.
func (l *Loader) Load(path string) (models.SourceDocument, error) {
	pages, err := l.LoadPages(path)
	if err != nil {
		return models.SourceDocument{}, err
	}
	doc, err := models.NewSourceDocument(filepath.Base(path), pages)
	if err != nil {
		return models.SourceDocument{}, err
	}
	doc.SourceID = fileid.SourceID(path)
	return doc, nil
}

// IsPDF reports whether name has a ".pdf" suffix, case-insensitively.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
