package utils

import "testing"

func TestOllamaV1URL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "http://localhost:11434/v1"},
		{"http://gpu:11434", "http://gpu:11434/v1"},
		{"http://gpu:11434/", "http://gpu:11434/v1"},
		{"http://gpu:11434/v1", "http://gpu:11434/v1"},
		{"http://gpu:11434/v1/", "http://gpu:11434/v1"},
	}
	for _, tt := range tests {
		if got := OllamaV1URL(tt.in); got != tt.want {
			t.Errorf("OllamaV1URL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
