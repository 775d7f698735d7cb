// Package fileid derives stable source identifiers from file paths.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "src:"

// SourceID returns a stable identifier for the file at path. Paths are cleaned and made absolute
// first, so "./a.pdf" and its absolute form share an ID. Re-ingesting the same file yields the
// same source ID on new passages.
func SourceID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(hash[:8])
}
