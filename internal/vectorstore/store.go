// Package vectorstore owns the persisted passage index: embeddings, passage records, and the
// keyword index, all kept under one directory.
//
// A Store is either uninitialized (nothing on disk, or cleared) or ready. Loading a directory
// without an index file leaves it uninitialized; that is not an error.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/embedding"
	"github.com/hyperjump/ragchat/internal/keyword"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/internal/storage"
	"github.com/hyperjump/ragchat/internal/vector"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// File layout inside the store directory.
const (
	IndexFile    = "index.vec"
	PassagesFile = "passages.db"
	KeywordDir   = "keyword"
)

// Store is the vector index wrapper. It is safe for concurrent use: mutations take a write lock,
// searches a read lock.
type Store struct {
	dir      string
	embedder embedding.Embedder
	logger   *zap.Logger

	mu       sync.RWMutex
	ready    bool
	dirty    bool
	vectors  *vector.MemoryIndex
	passages *storage.SQLiteStorage
	keywords *keyword.BleveIndex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an uninitialized store rooted at dir. Call Load to open existing data.
func New(dir string, embedder embedding.Embedder, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: vector directory is empty", models.ErrConfiguration)
	}
	vectors, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	s := &Store{dir: dir, embedder: embedder, vectors: vectors}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Initialized reports whether the store holds a loaded or newly created index.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Size returns the number of indexed passages, 0 when uninitialized.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return 0
	}
	return s.vectors.Size()
}

// Load opens the persisted index. A missing index file leaves the store uninitialized and returns nil.
// Passages recorded without a saved vector are re-embedded; vectors without a passage are dropped.
// Vectors added since the last Persist are written out before reloading.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready && s.dirty {
		if err := s.persistLocked(); err != nil {
			return err
		}
	}
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {
	s.closeLocked()
	indexPath := filepath.Join(s.dir, IndexFile)
	if _, err := os.Stat(indexPath); errors.Is(err, os.ErrNotExist) {
		s.logger.Info("no persisted index found", zap.String("dir", s.dir))
		return nil
	}
	if err := s.vectors.Load(indexPath); err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	if err := s.reconcileLocked(ctx); err != nil {
		s.closeLocked()
		return err
	}
	s.ready = true
	s.logger.Info("loaded index", zap.String("dir", s.dir), zap.Int("passages", s.vectors.Size()))
	return nil
}

// reconcileLocked makes the vector index match the passage records.
func (s *Store) reconcileLocked(ctx context.Context) error {
	all, err := s.passages.ListPassages(ctx, 0, 0)
	if err != nil {
		return fmt.Errorf("list passages: %w", err)
	}
	known := make(map[string]bool, len(all))
	for _, p := range all {
		known[p.ID()] = true
	}
	var orphans []string
	present := make(map[string]bool)
	for _, id := range s.vectors.IDs() {
		if !known[id] {
			orphans = append(orphans, id)
		}
		present[id] = true
	}
	if len(orphans) > 0 {
		s.logger.Warn("dropping vectors without passages", zap.Int("count", len(orphans)))
		if err := s.vectors.Remove(ctx, orphans); err != nil {
			return err
		}
	}
	var missing []*models.Passage
	for _, p := range all {
		if !present[p.ID()] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	s.logger.Warn("re-embedding passages without saved vectors", zap.Int("count", len(missing)))
	vecs, err := s.embed(ctx, missing)
	if err != nil {
		return err
	}
	return s.vectors.Add(ctx, ids(missing), vecs)
}

func (s *Store) openLocked() error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	var err error
	if s.passages, err = storage.NewSQLiteStorage(filepath.Join(s.dir, PassagesFile)); err != nil {
		return err
	}
	if s.keywords, err = keyword.NewBleveIndex(filepath.Join(s.dir, KeywordDir)); err != nil {
		_ = s.passages.Close()
		s.passages = nil
		return err
	}
	return nil
}

// Add embeds and appends passages. Repeated calls append; nothing is deduplicated.
// On an uninitialized store the persisted index is loaded first, and if none exists a new index
// is created from passages; adding zero passages then fails with ErrEmptyInput.
// Add does not write the vector file; call Persist, or use AddAndPersist.
func (s *Store) Add(ctx context.Context, passages []*models.Passage) error {
	vecs, err := s.embedAll(ctx, passages)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ctx, passages, vecs)
}

// AddAndPersist is Add followed by Persist under one write lock, so no reload can run between them.
func (s *Store) AddAndPersist(ctx context.Context, passages []*models.Passage) error {
	vecs, err := s.embedAll(ctx, passages)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addLocked(ctx, passages, vecs); err != nil {
		return err
	}
	return s.persistLocked()
}

func (s *Store) embedAll(ctx context.Context, passages []*models.Passage) ([][]float32, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	return s.embed(ctx, passages)
}

func (s *Store) addLocked(ctx context.Context, passages []*models.Passage, vecs [][]float32) error {
	if !s.ready {
		if err := s.loadLocked(ctx); err != nil {
			return err
		}
	}
	if len(passages) == 0 {
		if !s.ready {
			return fmt.Errorf("%w: no passages to create the index from", models.ErrEmptyInput)
		}
		return nil
	}
	if !s.ready {
		if err := s.createLocked(); err != nil {
			return err
		}
	}

	if err := s.passages.SavePassages(ctx, passages); err != nil {
		return fmt.Errorf("save passages: %w", err)
	}
	if err := s.vectors.Add(ctx, ids(passages), vecs); err != nil {
		return err
	}
	s.dirty = true
	if err := s.keywords.Index(ctx, passages); err != nil {
		s.logger.Warn("keyword indexing failed", zap.Error(err))
	}
	return nil
}

// createLocked starts a fresh index, discarding stale files left without an index file.
func (s *Store) createLocked() error {
	_ = os.Remove(filepath.Join(s.dir, PassagesFile))
	_ = os.Remove(filepath.Join(s.dir, PassagesFile+"-wal"))
	_ = os.Remove(filepath.Join(s.dir, PassagesFile+"-shm"))
	_ = os.RemoveAll(filepath.Join(s.dir, KeywordDir))
	s.vectors.Reset()
	if err := s.openLocked(); err != nil {
		return err
	}
	s.ready = true
	s.logger.Info("created index", zap.String("dir", s.dir))
	return nil
}

// Persist writes the vector file. Passage records are already durable. No-op when uninitialized.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	if !s.ready {
		return nil
	}
	if err := s.vectors.Save(filepath.Join(s.dir, IndexFile)); err != nil {
		return err
	}
	s.dirty = false
	s.logger.Info("saved index", zap.String("dir", s.dir), zap.Int("passages", s.vectors.Size()))
	return nil
}

// Search embeds query and returns up to k passages by descending similarity.
// It fails with ErrInvalidArgument when k <= 0. On an uninitialized store it returns no passages
// and ErrNotIndexed, which callers treat as "no index" rather than "no matches".
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrInvalidArgument, k)
	}
	if !s.Initialized() {
		return nil, models.ErrNotIndexed
	}
	qv, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, models.ErrNotIndexed
	}
	hits, err := s.vectors.Search(ctx, qv, k)
	if err != nil {
		return nil, err
	}
	hitIDs := make([]string, len(hits))
	for i, h := range hits {
		hitIDs[i] = h.ID
	}
	byID, err := s.passages.GetPassages(ctx, hitIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch passages: %w", err)
	}
	out := make([]models.ScoredPassage, 0, len(hits))
	for _, h := range hits {
		if p, ok := byID[h.ID]; ok {
			out = append(out, models.ScoredPassage{Passage: p, Score: h.Score})
		}
	}
	return out, nil
}

// List returns up to limit passages in insertion order (limit <= 0 means all).
// An uninitialized store lists nothing.
func (s *Store) List(ctx context.Context, limit int) ([]*models.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, nil
	}
	return s.passages.ListPassages(ctx, 0, limit)
}

// Contains returns passages whose content contains substr.
func (s *Store) Contains(ctx context.Context, substr string, limit int) ([]*models.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, nil
	}
	return s.passages.SearchContent(ctx, substr, limit)
}

// Find runs a keyword search over passage content and titles, best match first.
func (s *Store) Find(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) ([]*models.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, nil
	}
	hits, err := s.keywords.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	hitIDs := make([]string, len(hits))
	for i, h := range hits {
		hitIDs[i] = h.ID
	}
	byID, err := s.passages.GetPassages(ctx, hitIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Passage, 0, len(hits))
	for _, id := range hitIDs {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Sources lists the ingested source documents.
func (s *Store) Sources(ctx context.Context) ([]storage.SourceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil, nil
	}
	return s.passages.ListSources(ctx)
}

// RecordSource notes an ingested source document.
func (s *Store) RecordSource(ctx context.Context, info storage.SourceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return models.ErrNotIndexed
	}
	return s.passages.RecordSource(ctx, info)
}

// RemoveSource deletes every passage of source and persists the vector file.
// It returns the number of passages removed.
func (s *Store) RemoveSource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0, nil
	}
	removed, err := s.passages.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.vectors.Remove(ctx, removed); err != nil {
		return 0, err
	}
	if err := s.keywords.Delete(ctx, removed); err != nil {
		s.logger.Warn("keyword delete failed", zap.Error(err))
	}
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return len(removed), nil
}

// Clear deletes the store directory, recreates it empty, and resets to uninitialized.
// Clearing an uninitialized store is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove vector dir: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create vector dir: %w", err)
	}
	s.logger.Info("cleared index", zap.String("dir", s.dir))
	return nil
}

// Close releases open files and leaves the store uninitialized.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Store) closeLocked() {
	if s.keywords != nil {
		if err := s.keywords.Close(); err != nil {
			s.logger.Warn("close keyword index", zap.Error(err))
		}
		s.keywords = nil
	}
	if s.passages != nil {
		if err := s.passages.Close(); err != nil {
			s.logger.Warn("close passage db", zap.Error(err))
		}
		s.passages = nil
	}
	s.vectors.Reset()
	s.ready = false
	s.dirty = false
}

func (s *Store) embed(ctx context.Context, passages []*models.Passage) ([][]float32, error) {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content()
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed passages: %w", err)
	}
	return vecs, nil
}

func ids(passages []*models.Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.ID()
	}
	return out
}
