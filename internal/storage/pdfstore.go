package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PDFInfo describes one stored PDF.
type PDFInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// PDFStore keeps uploaded PDFs in a flat directory. Names are reduced to their base name.
type PDFStore struct {
	dir string
}

// NewPDFStore creates dir if needed.
func NewPDFStore(dir string) (*PDFStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create pdf dir: %w", err)
	}
	return &PDFStore{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *PDFStore) Dir() string { return s.dir }

// CleanName strips any directory part of name and rejects empty, dot, and non-PDF names.
func CleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if !strings.EqualFold(filepath.Ext(base), ".pdf") {
		return "", fmt.Errorf("not a PDF: %q", name)
	}
	return base, nil
}

// Save writes r to the store under the cleaned name, replacing any existing file,
// and returns the absolute path.
func (s *PDFStore) Save(name string, r io.Reader) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, clean)
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store %s: %w", clean, err)
	}
	return filepath.Abs(path)
}

// List returns the stored PDFs sorted by name.
func (s *PDFStore) List() ([]PDFInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []PDFInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, PDFInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Path returns the path of a stored PDF, or ErrNotFound.
func (s *PDFStore) Path(name string) (string, error) {
	clean, err := CleanName(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", err.Error(), ErrNotFound)
	}
	path := filepath.Join(s.dir, clean)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", clean, ErrNotFound)
		}
		return "", err
	}
	return path, nil
}

// Delete removes a stored PDF. It reports false when the file did not exist.
func (s *PDFStore) Delete(name string) (bool, error) {
	path, err := s.Path(name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}
