package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("città di Roma", 5); got != "città..." {
		t.Errorf("multibyte: got %q", got)
	}
}

func TestPrefix(t *testing.T) {
	if Prefix("abcdef", 3) != "abc" {
		t.Errorf("got %q", Prefix("abcdef", 3))
	}
	if Prefix("ab", 3) != "ab" {
		t.Error("short string unchanged")
	}
	if Prefix("abc", 0) != "" {
		t.Error("n=0 yields empty")
	}
	if Prefix("perché", 5) != "perch" {
		t.Errorf("multibyte: got %q", Prefix("perché", 5))
	}
}
