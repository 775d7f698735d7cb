package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ragchat/internal/models"
)

// SQLiteStorage implements PassageStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS passages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT '',
		ordinal INTEGER NOT NULL DEFAULT -1,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source, ordinal);

	CREATE TABLE IF NOT EXISTS sources (
		name TEXT PRIMARY KEY,
		page_count INTEGER NOT NULL DEFAULT 0,
		passages INTEGER NOT NULL DEFAULT 0,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const passageColumns = `id, content, metadata, created_at`

// SavePassages inserts passages in a single transaction, keeping slice order.
func (s *SQLiteStorage) SavePassages(ctx context.Context, passages []*models.Passage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO passages (id, source, ordinal, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range passages {
		metadataJSON, err := models.MarshalMetadata(p.Metadata())
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, p.ID(), p.Source(), p.Ordinal(), p.Content(), string(metadataJSON), p.CreatedAt()); err != nil {
			return fmt.Errorf("insert passage %s: %w", p.ID(), err)
		}
	}
	return tx.Commit()
}

// GetPassage returns a passage by ID, or ErrNotFound.
func (s *SQLiteStorage) GetPassage(ctx context.Context, id string) (*models.Passage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+passageColumns+` FROM passages WHERE id = ?`, id)
	p, err := scanPassage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("passage %s: %w", id, ErrNotFound)
	}
	return p, err
}

// GetPassages returns the passages with the given IDs. Missing IDs are absent from the map.
func (s *SQLiteStorage) GetPassages(ctx context.Context, ids []string) (map[string]*models.Passage, error) {
	out := make(map[string]*models.Passage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+passageColumns+` FROM passages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID()] = p
	}
	return out, rows.Err()
}

// ListPassages returns passages in insertion order. limit <= 0 means no limit.
func (s *SQLiteStorage) ListPassages(ctx context.Context, offset, limit int) ([]*models.Passage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+passageColumns+` FROM passages ORDER BY seq LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectPassages(rows)
}

// SearchContent returns passages whose content contains substr, case-insensitively for ASCII,
// in insertion order.
func (s *SQLiteStorage) SearchContent(ctx context.Context, substr string, limit int) ([]*models.Passage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+passageColumns+` FROM passages WHERE content LIKE ? ESCAPE '\' ORDER BY seq LIMIT ?`,
		"%"+escapeLike(substr)+"%", limit)
	if err != nil {
		return nil, err
	}
	return collectPassages(rows)
}

// DeleteBySource removes all passages of a source and its source record, returning the removed IDs.
func (s *SQLiteStorage) DeleteBySource(ctx context.Context, source string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM passages WHERE source = ? ORDER BY seq`, source)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE source = ?`, source); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE name = ?`, source); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

// CountPassages returns the total number of passages.
func (s *SQLiteStorage) CountPassages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	return count, err
}

// RecordSource adds the passage count of a new ingest to the source record, creating it if needed.
func (s *SQLiteStorage) RecordSource(ctx context.Context, info SourceInfo) error {
	if info.IngestedAt.IsZero() {
		info.IngestedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, page_count, passages, ingested_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   page_count = excluded.page_count,
		   passages = sources.passages + excluded.passages,
		   ingested_at = excluded.ingested_at`,
		info.Name, info.PageCount, info.Passages, info.IngestedAt)
	return err
}

// ListSources returns all source records ordered by name.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, page_count, passages, ingested_at FROM sources ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceInfo
	for rows.Next() {
		var si SourceInfo
		if err := rows.Scan(&si.Name, &si.PageCount, &si.Passages, &si.IngestedAt); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPassage(row rowScanner) (*models.Passage, error) {
	var (
		id, content  string
		metadataJSON sql.NullString
		createdAt    time.Time
	)
	if err := row.Scan(&id, &content, &metadataJSON, &createdAt); err != nil {
		return nil, err
	}
	var meta map[string]any
	if metadataJSON.Valid && metadataJSON.String != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(metadataJSON.String)))
		dec.UseNumber()
		if err := dec.Decode(&meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", id, err)
		}
	}
	return models.RestorePassage(id, content, meta, createdAt)
}

func collectPassages(rows *sql.Rows) ([]*models.Passage, error) {
	defer rows.Close()
	var out []*models.Passage
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
