package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/extract"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/internal/storage"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// Store is the part of the vector store the indexer writes to.
type Store interface {
	AddAndPersist(ctx context.Context, passages []*models.Passage) error
	RecordSource(ctx context.Context, info storage.SourceInfo) error
}

// Indexer loads PDFs, chunks them, and adds the passages to the store.
type Indexer struct {
	loader   *extract.Loader
	chunker  Chunker
	store    Store
	logger   *zap.Logger
	progress func(path string)
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithProgress registers a callback invoked after each input path is handled, skipped or not.
func WithProgress(fn func(path string)) IndexerOption {
	return func(idx *Indexer) { idx.progress = fn }
}

// NewIndexer creates an indexer. loader may be nil, in which case a default Loader is used.
func NewIndexer(loader *extract.Loader, chunker Chunker, store Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{loader: loader, chunker: chunker, store: store}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	if idx.loader == nil {
		idx.loader = extract.NewLoader(extract.WithLogger(idx.logger))
	}
	return idx
}

// Ingest loads every PDF in paths, chunks it, and appends the passages to the store, which is then
// persisted. Paths without a .pdf suffix are skipped and reported in Skipped. A run that produces
// no passages leaves the store untouched.
func (idx *Indexer) Ingest(ctx context.Context, paths []string) (*models.IngestResult, error) {
	result := &models.IngestResult{}
	var (
		all     []*models.Passage
		sources []storage.SourceInfo
	)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !extract.IsPDF(path) {
			idx.logger.Debug("skipping non-PDF input", zap.String("path", path))
			result.Skipped = append(result.Skipped, path)
			idx.report(path)
			continue
		}
		doc, err := idx.loader.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
		}
		passages, err := idx.chunker.Chunk([]models.SourceDocument{doc})
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", doc.Source, err)
		}
		idx.logger.Info("generated passages",
			zap.String("source", doc.Source),
			zap.Int("pages", len(doc.Pages)),
			zap.Int("passages", len(passages)))
		all = append(all, passages...)
		result.Files = append(result.Files, path)
		sources = append(sources, storage.SourceInfo{
			Name:       doc.Source,
			PageCount:  len(doc.Pages),
			Passages:   len(passages),
			IngestedAt: time.Now().UTC(),
		})
		idx.report(path)
	}

	result.Passages = all
	result.Count = len(all)
	if len(all) == 0 {
		return result, nil
	}
	if err := idx.store.AddAndPersist(ctx, all); err != nil {
		return nil, fmt.Errorf("add passages: %w", err)
	}
	for _, info := range sources {
		if err := idx.store.RecordSource(ctx, info); err != nil {
			idx.logger.Warn("record source failed", zap.String("source", info.Name), zap.Error(err))
		}
	}
	return result, nil
}

// IngestFile ingests a single path.
func (idx *Indexer) IngestFile(ctx context.Context, path string) (*models.IngestResult, error) {
	return idx.Ingest(ctx, []string{path})
}

func (idx *Indexer) report(path string) {
	if idx.progress != nil {
		idx.progress(path)
	}
}
