package extract

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandPaths resolves ingest arguments into file paths. Glob patterns (including "**")
// and directories expand to the PDFs they contain; plain file paths pass through unchanged
// so the caller can report non-PDF inputs as skipped. Duplicates are removed, order is kept.
func ExpandPaths(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, pattern := range patterns {
		if hasMeta(pattern) {
			matches, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			for _, m := range matches {
				if IsPDF(m) {
					add(m)
				}
			}
			continue
		}
		info, err := os.Stat(pattern)
		if err == nil && info.IsDir() {
			pdfs, err := pdfsUnder(pattern)
			if err != nil {
				return nil, err
			}
			for _, p := range pdfs {
				add(p)
			}
			continue
		}
		add(pattern)
	}
	return out, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func pdfsUnder(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsPDF(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return out, nil
}
