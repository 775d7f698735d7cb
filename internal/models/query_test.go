package models

import (
	"errors"
	"testing"
)

func TestAskRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     *AskRequest
		wantErr bool
		wantQ   string
	}{
		{"empty question", &AskRequest{Question: ""}, true, ""},
		{"blank question", &AskRequest{Question: "   \n"}, true, ""},
		{"valid question", &AskRequest{Question: "hello"}, false, "hello"},
		{"trims question", &AskRequest{Question: "  why?  ", Model: " llama3 "}, false, "why?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if !tt.wantErr && tt.req.Question != tt.wantQ {
				t.Errorf("Question = %q, want %q", tt.req.Question, tt.wantQ)
			}
		})
	}
}

func TestChunkQuery_Normalize(t *testing.T) {
	q := &ChunkQuery{Query: " cats ", Limit: 0}
	q.Normalize(100, 1000)
	if q.Query != "cats" || q.Limit != 100 {
		t.Errorf("got %+v", q)
	}
	q = &ChunkQuery{Limit: 5000}
	q.Normalize(100, 1000)
	if q.Limit != 1000 {
		t.Errorf("limit not capped: %d", q.Limit)
	}
	if q.Mode != ChunkSearchSubstring {
		t.Errorf("default mode = %q", q.Mode)
	}
	q = &ChunkQuery{Mode: " Keyword "}
	q.Normalize(100, 1000)
	if q.Mode != ChunkSearchKeyword {
		t.Errorf("mode = %q", q.Mode)
	}
}

func TestParseAskMode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", AskModeRAG, false},
		{"rag", AskModeRAG, false},
		{" Direct ", AskModeDirect, false},
		{"psychic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAskMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseAskMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if got != tt.want {
			t.Errorf("ParseAskMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
