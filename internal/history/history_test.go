package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ragchat/internal/models"
)

func TestStore_AppendRecent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "logs", "history.db")
	s, err := Open(path)
	require.NoError(t, err)

	for i, q := range []string{"first?", "second?", "third?"} {
		e, err := s.Append(ctx, models.HistoryEntry{Question: q, Answer: "a", Kind: models.AnswerOK, Model: "mistral"})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	}

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third?", recent[0].Question)
	assert.Equal(t, "second?", recent[1].Question)

	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, models.AnswerOK, all[2].Kind)

	e, err := s.Append(ctx, models.HistoryEntry{Question: "fourth?"})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), e.ID)
}

func TestStore_RecentEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
