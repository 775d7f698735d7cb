package rag

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/embedding"
	"github.com/hyperjump/ragchat/internal/indexer"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/internal/testutil"
	"github.com/hyperjump/ragchat/internal/vectorstore"
)

// fakeLLM counts calls and records the last conversation.
type fakeLLM struct {
	calls     atomic.Int64
	generated atomic.Int64
	reply string
	err   error
	block bool

	mu   sync.Mutex
	last []models.ChatMessage
	seen []string
}

func (f *fakeLLM) Chat(ctx context.Context, model string, messages []models.ChatMessage) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = messages
	f.seen = append(f.seen, model)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", models.NewBackendError("fake", "chat", ctx.Err())
	}
	return f.reply, f.err
}

func (f *fakeLLM) Generate(ctx context.Context, model, prompt string) (string, error) {
	f.generated.Add(1)
	return f.Chat(ctx, model, []models.ChatMessage{{Role: models.RoleUser, Content: prompt}})
}

func (f *fakeLLM) ListModels(context.Context) ([]string, error) {
	return []string{"mistral", "llama3"}, nil
}

func (f *fakeLLM) messages() []models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// countingIndex counts reloads of the wrapped store.
type countingIndex struct {
	*vectorstore.Store
	loads atomic.Int64
}

func (c *countingIndex) Load(ctx context.Context) error {
	c.loads.Add(1)
	return c.Store.Load(ctx)
}

type memHistory struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
}

func (h *memHistory) Append(_ context.Context, e models.HistoryEntry) (models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.ID = uint64(len(h.entries) + 1)
	h.entries = append(h.entries, e)
	return e, nil
}

func (h *memHistory) Recent(_ context.Context, limit int) ([]models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.HistoryEntry
	for i := len(h.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, h.entries[i])
	}
	return out, nil
}

type fixture struct {
	cfg     *config.Config
	store   *vectorstore.Store
	index   *countingIndex
	llm     *fakeLLM
	history *memHistory
	session *Session
}

func newFixture(t *testing.T, opts ...SessionOption) *fixture {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.VectorDir = filepath.Join(t.TempDir(), "vectors")

	store, err := vectorstore.New(cfg.Storage.VectorDir, embedding.NewMockEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	chunker, err := indexer.NewChunker(cfg.Chunking)
	require.NoError(t, err)
	f := &fixture{
		cfg:     cfg,
		store:   store,
		index:   &countingIndex{Store: store},
		llm:     &fakeLLM{reply: "It is Paris."},
		history: &memHistory{},
	}
	idx := indexer.NewIndexer(nil, chunker, store)
	opts = append([]SessionOption{WithHistory(f.history)}, opts...)
	f.session = NewSession(f.index, idx, f.llm, cfg, opts...)
	return f
}

func (f *fixture) seed(t *testing.T, passages ...*models.Passage) {
	t.Helper()
	require.NoError(t, f.store.Add(context.Background(), passages))
	require.NoError(t, f.store.Persist())
}

func TestSession_AskWithoutIndex(t *testing.T) {
	f := newFixture(t)
	ans := f.session.Ask(context.Background(), "What is the capital of France?", "")

	assert.Equal(t, models.AnswerNotIndexed, ans.Kind)
	assert.Equal(t, config.DefaultNotIndexedMessage, ans.Text)
	assert.False(t, ans.OK())
	assert.Equal(t, int64(0), f.llm.calls.Load())
}

func TestSession_AskGroundsAnswerInContext(t *testing.T) {
	f := newFixture(t)
	f.seed(t, titled(t, "", "Paris is the capital of France."))

	ans := f.session.Ask(context.Background(), "What is the capital of France?", "")
	require.Equal(t, models.AnswerOK, ans.Kind, ans.Text)
	assert.Equal(t, "It is Paris.", ans.Text)
	assert.Equal(t, "mistral", ans.Model)
	assert.Equal(t, ModeGeneric, ans.Mode)
	require.Len(t, ans.Sources, 1)

	assert.Equal(t, int64(1), f.llm.calls.Load())
	msgs := f.llm.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Paris is the capital of France.")
	assert.Contains(t, msgs[0].Content, config.DefaultFallbackAnswer)
	assert.Equal(t, "What is the capital of France?", msgs[1].Content)
	assert.Equal(t, "mistral", f.session.ActiveModel())
}

func TestSession_ContextLimitedToTopPassages(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		titled(t, "", "alpha one"),
		titled(t, "", "alpha two"),
		titled(t, "", "alpha three"),
		titled(t, "", "alpha four"),
	)
	ans := f.session.Ask(context.Background(), "alpha", "")
	require.Equal(t, models.AnswerOK, ans.Kind)
	assert.Len(t, ans.Sources, f.cfg.Retrieval.ContextK)
}

func TestSession_EmptyQuestion(t *testing.T) {
	f := newFixture(t)
	ans := f.session.Ask(context.Background(), "   ", "mistral")
	assert.Equal(t, models.AnswerEmptyQuestion, ans.Kind)
	assert.ErrorIs(t, ans.Err, models.ErrInvalidArgument)
	assert.Equal(t, int64(0), f.llm.calls.Load())
	assert.Empty(t, f.history.entries)
}

func TestSession_BackendErrorBecomesAnswer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, titled(t, "", "Paris is the capital of France."))
	f.llm.err = models.NewBackendError("ollama", "chat", errors.New("connection refused"))

	ans := f.session.Ask(context.Background(), "capital?", "")
	assert.Equal(t, models.AnswerBackendError, ans.Kind)
	assert.Contains(t, ans.Text, "[ERROR]")
	assert.Contains(t, ans.Text, "connection refused")
	assert.True(t, models.IsBackendError(ans.Err))
}

func TestSession_Timeout(t *testing.T) {
	f := newFixture(t, WithTimeout(50*time.Millisecond))
	f.seed(t, titled(t, "", "Paris is the capital of France."))
	f.llm.block = true

	ans := f.session.Ask(context.Background(), "capital?", "")
	assert.Equal(t, models.AnswerBackendError, ans.Kind)
	assert.Equal(t, timeoutMessage, ans.Text)
	assert.ErrorIs(t, ans.Err, models.ErrBackendTimeout)
	var be *models.BackendError
	require.ErrorAs(t, ans.Err, &be)
	assert.True(t, be.Retryable())
}

func TestSession_EmptyModelOutput(t *testing.T) {
	f := newFixture(t)
	f.seed(t, titled(t, "", "Paris is the capital of France."))
	f.llm.reply = "  \n "
	ans := f.session.Ask(context.Background(), "capital?", "")
	assert.Equal(t, models.AnswerOK, ans.Kind)
	assert.Equal(t, EmptyModelOutput, ans.Text)
}

func TestSession_ReciteVerbatim(t *testing.T) {
	f := newFixture(t)
	cats := titled(t, "Title About Cats", "Title About Cats\nSoft paws on a windowsill\nwatching rain")
	f.seed(t,
		titled(t, "Title About Dogs", "Title About Dogs\nA loyal friend at a door\nwaiting all day"),
		cats,
	)

	ans := f.session.Ask(context.Background(), "Recite the poem about cats", "")
	require.Equal(t, models.AnswerRecited, ans.Kind, ans.Text)
	assert.Equal(t, cats.Content(), ans.Text)
	assert.Equal(t, ModeRecite, ans.Mode)
	assert.Equal(t, int64(0), f.llm.calls.Load())

	ans = f.session.Ask(context.Background(), "recite the xylophone", "")
	assert.Equal(t, models.AnswerNoMatch, ans.Kind)
	assert.Equal(t, config.DefaultNoMatchMessage, ans.Text)
}

func TestSession_ReciteThroughModel(t *testing.T) {
	verbatim := false
	f := newFixture(t)
	f.session.retrieval.ReciteVerbatim = &verbatim
	cats := titled(t, "Title About Cats", "Title About Cats\nSoft paws on the windowsill")
	f.seed(t, cats)

	ans := f.session.Ask(context.Background(), "recite cats", "")
	require.Equal(t, models.AnswerOK, ans.Kind)
	assert.Equal(t, int64(1), f.llm.calls.Load())
	assert.Contains(t, f.llm.messages()[0].Content, cats.Content())
}

func TestSession_ModelChangeReloads(t *testing.T) {
	f := newFixture(t)
	f.seed(t, titled(t, "", "Paris is the capital of France."))
	ctx := context.Background()

	f.session.Ask(ctx, "capital?", "mistral")
	f.session.Ask(ctx, "capital?", "mistral")
	assert.Equal(t, int64(1), f.index.loads.Load())

	ans := f.session.Ask(ctx, "capital?", "llama3")
	assert.Equal(t, models.AnswerOK, ans.Kind)
	assert.Equal(t, int64(2), f.index.loads.Load())
	assert.Equal(t, "llama3", f.session.ActiveModel())
	assert.Equal(t, []string{"mistral", "mistral", "llama3"}, f.llm.seen)
}

func TestSession_ClearIndex(t *testing.T) {
	f := newFixture(t)
	f.seed(t, titled(t, "", "Paris is the capital of France."))
	ctx := context.Background()
	require.Equal(t, models.AnswerOK, f.session.Ask(ctx, "capital?", "").Kind)

	require.NoError(t, f.session.ClearIndex(ctx))
	require.NoError(t, f.session.ClearIndex(ctx))

	ans := f.session.Ask(ctx, "capital?", "")
	assert.Equal(t, models.AnswerNotIndexed, ans.Kind)
	assert.Equal(t, int64(1), f.llm.calls.Load())

	chunks, err := f.session.ListChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSession_IngestThenAsk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	pdf := testutil.WritePDF(t, dir, "france.pdf", "Paris is the capital of France")

	res, err := f.session.Ingest(ctx, []string{pdf, filepath.Join(dir, "notes.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Len(t, res.Skipped, 1)

	ans := f.session.Ask(ctx, "What is the capital of France?", "")
	require.Equal(t, models.AnswerOK, ans.Kind, ans.Text)
	assert.Contains(t, f.llm.messages()[0].Content, "Paris is the capital of France")

	st, err := f.session.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Initialized)
	assert.Equal(t, 1, st.Passages)
	assert.Equal(t, 1, st.Sources)
}

func TestSession_ChunksAndSearch(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		titled(t, "", "The quick brown fox jumps."),
		titled(t, "", "A lazy dog sleeps all day."),
	)
	ctx := context.Background()

	chunks, err := f.session.ListChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"The quick brown fox jumps.", "A lazy dog sleeps all day."}, chunks)

	found, err := f.session.SearchChunks(ctx, models.ChunkQuery{Query: "lazy"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].Content(), "lazy")

	found, err = f.session.SearchChunks(ctx, models.ChunkQuery{Query: "quik", Mode: models.ChunkSearchKeyword})
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Contains(t, found[0].Content(), "quick")

	all, err := f.session.SearchChunks(ctx, models.ChunkQuery{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSession_HistoryAndModels(t *testing.T) {
	f := newFixture(t)
	f.seed(t, titled(t, "", "Paris is the capital of France."))
	ctx := context.Background()
	f.session.Ask(ctx, "capital?", "")
	f.session.Ask(ctx, "recite nothing", "")

	entries, err := f.session.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "recite nothing", entries[0].Question)
	assert.Equal(t, models.AnswerNoMatch, entries[0].Kind)
	assert.Equal(t, "It is Paris.", entries[1].Answer)

	names, err := f.session.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mistral", "llama3"}, names)
}

func TestSession_ConcurrentAsk(t *testing.T) {
	f := newFixture(t)
	f.seed(t, titled(t, "", "Paris is the capital of France."))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ans := f.session.Ask(context.Background(), "capital?", "")
			assert.Equal(t, models.AnswerOK, ans.Kind)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8), f.llm.calls.Load())
}

func TestSession_IngestWhileModelsAlternate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	var pdfs []string
	for i := 0; i < 6; i++ {
		pdfs = append(pdfs, testutil.WritePDF(t, dir, fmt.Sprintf("river%d.pdf", i), fmt.Sprintf("River number %d flows to the sea.", i)))
	}

	var (
		wg       sync.WaitGroup
		ingested atomic.Int64
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, p := range pdfs {
			res, err := f.session.Ingest(ctx, []string{p})
			if assert.NoError(t, err) {
				ingested.Add(int64(res.Count))
			}
		}
	}()
	go func() {
		defer wg.Done()
		names := []string{"mistral", "llama3"}
		for i := 0; i < 40; i++ {
			ans := f.session.Ask(ctx, "Where do rivers flow?", names[i%2])
			assert.NotEqual(t, models.AnswerBackendError, ans.Kind, ans.Text)
		}
	}()
	wg.Wait()
	require.Equal(t, int64(len(pdfs)), ingested.Load())
	require.NoError(t, f.store.Close())

	fresh, err := vectorstore.New(f.cfg.Storage.VectorDir, embedding.NewMockEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fresh.Close() })
	require.NoError(t, fresh.Load(ctx))
	require.True(t, fresh.Initialized())
	assert.Equal(t, len(pdfs), fresh.Size())
}

func TestSession_ChatSkipsRetrieval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ans := f.session.Chat(ctx, "Who are you?", "llama3")
	require.Equal(t, models.AnswerOK, ans.Kind, ans.Text)
	assert.Equal(t, "It is Paris.", ans.Text)
	assert.Equal(t, ModeDirect, ans.Mode)
	assert.Equal(t, "llama3", ans.Model)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, int64(0), f.index.loads.Load())
	assert.Equal(t, int64(0), f.llm.generated.Load())
	assert.Equal(t, []models.ChatMessage{
		{Role: models.RoleSystem, Content: config.DefaultDirectSystemMessage},
		{Role: models.RoleUser, Content: "Who are you?"},
	}, f.llm.messages())

	entries, err := f.session.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Who are you?", entries[0].Question)
}

func TestSession_ChatWithoutPersonaGenerates(t *testing.T) {
	f := newFixture(t)
	empty := ""
	f.cfg.Prompt.DirectSystemMessage = &empty
	session := NewSession(f.index, nil, f.llm, f.cfg)

	ans := session.Chat(context.Background(), "Tell me a joke", "")
	require.Equal(t, models.AnswerOK, ans.Kind)
	assert.Equal(t, f.cfg.LLM.DefaultModel, ans.Model)
	assert.Equal(t, int64(1), f.llm.generated.Load())
	assert.Equal(t, []models.ChatMessage{{Role: models.RoleUser, Content: "Tell me a joke"}}, f.llm.messages())
}

func TestSession_ChatFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ans := f.session.Chat(ctx, "  ", "")
	assert.Equal(t, models.AnswerEmptyQuestion, ans.Kind)
	assert.Equal(t, int64(0), f.llm.calls.Load())

	f.llm.err = models.NewBackendError("fake", "chat", errors.New("connection refused"))
	ans = f.session.Chat(ctx, "hello", "")
	assert.Equal(t, models.AnswerBackendError, ans.Kind)
	assert.Equal(t, ModeDirect, ans.Mode)
	assert.Contains(t, ans.Text, "connection refused")

	f.llm.err = nil
	f.llm.reply = "   "
	ans = f.session.Chat(ctx, "hello", "")
	assert.Equal(t, EmptyModelOutput, ans.Text)
}
