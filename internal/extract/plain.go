package extract

import (
	"strings"
	"unicode/utf8"
)

// sanitizeText replaces invalid UTF-8 sequences with the replacement character.
func sanitizeText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "\ufffd")
}
