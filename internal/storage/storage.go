// Package storage persists passages and their sources, and manages uploaded PDF files.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/ragchat/internal/models"
)

// ErrNotFound is returned when a passage or file does not exist.
var ErrNotFound = errors.New("not found")

// SourceInfo summarizes one ingested source document.
type SourceInfo struct {
	Name       string    `json:"name"`
	PageCount  int       `json:"page_count"`
	Passages   int       `json:"passages"`
	IngestedAt time.Time `json:"ingested_at"`
}

// PassageStore persists passages in insertion order.
type PassageStore interface {
	SavePassages(ctx context.Context, passages []*models.Passage) error
	GetPassage(ctx context.Context, id string) (*models.Passage, error)
	GetPassages(ctx context.Context, ids []string) (map[string]*models.Passage, error)
	ListPassages(ctx context.Context, offset, limit int) ([]*models.Passage, error)
	SearchContent(ctx context.Context, substr string, limit int) ([]*models.Passage, error)
	DeleteBySource(ctx context.Context, source string) ([]string, error)
	CountPassages(ctx context.Context) (int64, error)

	RecordSource(ctx context.Context, info SourceInfo) error
	ListSources(ctx context.Context) ([]SourceInfo, error)

	Close() error
}
