package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/keyword"
	"github.com/hyperjump/ragchat/internal/llm"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/internal/storage"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// EmptyModelOutput replaces a blank model response.
const EmptyModelOutput = "(error in model response)"

const (
	emptyQuestionMessage = "[ERROR] Please enter a question."
	timeoutMessage       = "[ERROR] The language model did not answer in time. Try again."
)

// Index is the persisted passage index a Session queries.
type Index interface {
	Searcher
	Load(ctx context.Context) error
	Initialized() bool
	Size() int
	Clear() error
	List(ctx context.Context, limit int) ([]*models.Passage, error)
	Contains(ctx context.Context, substr string, limit int) ([]*models.Passage, error)
	Find(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) ([]*models.Passage, error)
	Sources(ctx context.Context) ([]storage.SourceInfo, error)
	RemoveSource(ctx context.Context, source string) (int, error)
}

// Ingester turns files into indexed passages.
type Ingester interface {
	Ingest(ctx context.Context, paths []string) (*models.IngestResult, error)
}

// History records answered questions.
type History interface {
	Append(ctx context.Context, e models.HistoryEntry) (models.HistoryEntry, error)
	Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// Status describes the session for status endpoints.
type Status struct {
	Initialized  bool   `json:"initialized"`
	Passages     int    `json:"passages"`
	Sources      int    `json:"sources"`
	ActiveModel  string `json:"active_model,omitempty"`
	DefaultModel string `json:"default_model"`
}

// Session owns the index handle and the last used model. A question arriving while the index is
// not loaded, or with a different model than the previous one, reloads the index from disk first.
// It is safe for concurrent use.
type Session struct {
	index     Index
	ingester  Ingester
	client    llm.Client
	retriever *Retriever
	history   History
	logger    *zap.Logger

	defaultModel string
	timeout      time.Duration
	retrieval    config.RetrievalConfig
	prompt       config.PromptConfig

	mu          sync.Mutex
	ready       bool
	activeModel string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithHistory records every answer in h.
func WithHistory(h History) SessionOption {
	return func(s *Session) { s.history = h }
}

// WithTimeout bounds each question, retrieval and model call included.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// NewSession wires a session from cfg. The index is loaded lazily by the first question.
func NewSession(index Index, ingester Ingester, client llm.Client, cfg *config.Config, opts ...SessionOption) *Session {
	s := &Session{
		index:        index,
		ingester:     ingester,
		client:       client,
		retriever:    NewRetriever(index, cfg.Retrieval),
		defaultModel: cfg.LLM.DefaultModel,
		retrieval:    cfg.Retrieval,
		prompt:       cfg.Prompt,
	}
	if cfg.LLM.TimeoutSeconds > 0 {
		s.timeout = time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	if s.prompt.NotIndexedMessage == "" {
		s.prompt.NotIndexedMessage = config.DefaultNotIndexedMessage
	}
	if s.prompt.NoMatchMessage == "" {
		s.prompt.NoMatchMessage = config.DefaultNoMatchMessage
	}
	if s.prompt.FallbackAnswer == "" {
		s.prompt.FallbackAnswer = config.DefaultFallbackAnswer
	}
	return s
}

// ActiveModel returns the model used by the last question, or "" before the first one.
func (s *Session) ActiveModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeModel
}

// DefaultModel returns the model used when a question names none.
func (s *Session) DefaultModel() string { return s.defaultModel }

// Ask answers question with model (the default model when empty). It never returns an error:
// failures become an Answer whose Kind says what went wrong and whose Text is displayable.
func (s *Session) Ask(ctx context.Context, question, model string) models.Answer {
	return s.respond(ctx, question, model, s.answer)
}

// Chat sends question straight to model with the direct chat persona. No index is needed and
// nothing is retrieved. Errors are reported in the Answer as with Ask.
func (s *Session) Chat(ctx context.Context, question, model string) models.Answer {
	return s.respond(ctx, question, model, s.chat)
}

func (s *Session) respond(ctx context.Context, question, model string,
	fn func(context.Context, models.AskRequest) models.Answer) (ans models.Answer) {
	start := time.Now()
	req := models.AskRequest{Question: question, Model: model}
	if req.Model == "" {
		req.Model = s.defaultModel
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while answering", zap.Any("panic", r))
			ans = models.Answer{Kind: models.AnswerBackendError, Text: "[ERROR] internal error", Model: req.Model,
				Err: fmt.Errorf("panic: %v", r)}
		}
		ans.Duration = time.Since(start)
		s.logger.Info("answered",
			zap.String("model", ans.Model),
			zap.String("kind", string(ans.Kind)),
			zap.String("mode", ans.Mode),
			zap.Duration("duration", ans.Duration))
		s.record(ctx, req.Question, ans)
	}()

	if err := req.Validate(); err != nil {
		return models.Answer{Kind: models.AnswerEmptyQuestion, Text: emptyQuestionMessage, Err: err}
	}
	ans = fn(ctx, req)
	ans.Model = req.Model
	return ans
}

func (s *Session) chat(ctx context.Context, req models.AskRequest) models.Answer {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var (
		out string
		err error
	)
	if system := s.prompt.DirectSystemMessageOrDefault(); system != "" {
		out, err = s.client.Chat(ctx, req.Model, BuildDirectMessages(system, req.Question))
	} else {
		out, err = s.client.Generate(ctx, req.Model, req.Question)
	}
	if err != nil {
		ans := s.failure(err)
		ans.Mode = ModeDirect
		return ans
	}
	return models.Answer{Kind: models.AnswerOK, Text: modelOutput(out), Mode: ModeDirect}
}

// modelOutput trims out and substitutes EmptyModelOutput for a blank response.
func modelOutput(out string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		return EmptyModelOutput
	}
	return out
}

func (s *Session) answer(ctx context.Context, req models.AskRequest) models.Answer {
	ready, err := s.ensureIndex(ctx, req.Model)
	if err != nil {
		return s.failure(err)
	}
	if !ready {
		return s.notIndexed()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ret, err := s.retriever.Retrieve(ctx, req.Question)
	if errors.Is(err, models.ErrNotIndexed) {
		return s.notIndexed()
	}
	if err != nil {
		return s.failure(err)
	}

	var (
		contextText string
		sources     []*models.Passage
	)
	switch ret.Mode {
	case ModeRecite:
		if ret.Match == nil {
			return models.Answer{Kind: models.AnswerNoMatch, Text: s.prompt.NoMatchMessage, Mode: ModeRecite}
		}
		sources = []*models.Passage{ret.Match}
		if s.retrieval.ReciteVerbatimOrDefault() {
			return models.Answer{Kind: models.AnswerRecited, Text: ret.Match.Content(), Mode: ModeRecite, Sources: sources}
		}
		contextText = ret.Match.Content()
	default:
		if len(ret.Passages) == 0 {
			return models.Answer{Kind: models.AnswerNoMatch, Text: s.prompt.FallbackAnswer, Mode: ModeGeneric}
		}
		for _, p := range ret.Passages {
			sources = append(sources, p.Passage)
		}
		contextText = BuildContext(ret.Passages)
	}

	out, err := s.client.Chat(ctx, req.Model, BuildMessages(contextText, req.Question, s.prompt))
	if err != nil {
		ans := s.failure(err)
		ans.Mode = ret.Mode
		return ans
	}
	return models.Answer{Kind: models.AnswerOK, Text: modelOutput(out), Mode: ret.Mode, Sources: sources}
}

// ensureIndex loads the index when it is not ready or the model changed since the last question.
func (s *Session) ensureIndex(ctx context.Context, model string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready && model == s.activeModel && s.index.Initialized() {
		return true, nil
	}
	if s.activeModel != "" && model != s.activeModel {
		s.logger.Info("model changed, reloading index", zap.String("from", s.activeModel), zap.String("to", model))
	}
	if err := s.index.Load(ctx); err != nil {
		s.ready = false
		return false, fmt.Errorf("load index: %w", err)
	}
	s.activeModel = model
	s.ready = s.index.Initialized()
	return s.ready, nil
}

func (s *Session) notIndexed() models.Answer {
	return models.Answer{Kind: models.AnswerNotIndexed, Text: s.prompt.NotIndexedMessage, Err: models.ErrNotIndexed}
}

func (s *Session) failure(err error) models.Answer {
	s.logger.Warn("question failed", zap.Error(err))
	text := "[ERROR] " + err.Error()
	if errors.Is(err, models.ErrBackendTimeout) || errors.Is(err, context.DeadlineExceeded) {
		text = timeoutMessage
	}
	return models.Answer{Kind: models.AnswerBackendError, Text: text, Err: err}
}

func (s *Session) record(ctx context.Context, question string, ans models.Answer) {
	if s.history == nil || ans.Kind == models.AnswerEmptyQuestion {
		return
	}
	_, err := s.history.Append(context.WithoutCancel(ctx), models.HistoryEntry{
		Question: question,
		Answer:   ans.Text,
		Kind:     ans.Kind,
		Model:    ans.Model,
		Seconds:  ans.Seconds(),
	})
	if err != nil {
		s.logger.Warn("failed to record history", zap.Error(err))
	}
}

// Ingest indexes paths and marks the index ready when passages were added.
func (s *Session) Ingest(ctx context.Context, paths []string) (*models.IngestResult, error) {
	res, err := s.ingester.Ingest(ctx, paths)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.index.Initialized() {
		s.ready = true
	}
	s.mu.Unlock()
	return res, nil
}

// ListChunks returns the contents of up to the configured list limit of passages, oldest first.
func (s *Session) ListChunks(ctx context.Context) ([]string, error) {
	passages, err := s.Passages(ctx, s.retrieval.ListLimit)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Content()
	}
	return out, nil
}

// Passages returns up to limit passages in insertion order (limit <= 0 means all), loading the
// index from disk if needed.
func (s *Session) Passages(ctx context.Context, limit int) ([]*models.Passage, error) {
	if err := s.loadIfNeeded(ctx); err != nil {
		return nil, err
	}
	return s.index.List(ctx, limit)
}

// SearchChunks finds passages by substring or keyword search.
func (s *Session) SearchChunks(ctx context.Context, q models.ChunkQuery) ([]*models.Passage, error) {
	q.Normalize(s.retrieval.ListLimit, 0)
	if q.Query == "" {
		return s.Passages(ctx, q.Limit)
	}
	if err := s.loadIfNeeded(ctx); err != nil {
		return nil, err
	}
	if q.Mode == models.ChunkSearchKeyword {
		return s.index.Find(ctx, q.Query, q.Limit, &keyword.SearchOptions{TitleBoost: 2, Fuzziness: 1})
	}
	return s.index.Contains(ctx, q.Query, q.Limit)
}

func (s *Session) loadIfNeeded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index.Initialized() {
		return nil
	}
	if err := s.index.Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	s.ready = s.index.Initialized()
	return nil
}

// ClearIndex deletes the persisted index. The next question finds nothing indexed.
func (s *Session) ClearIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Clear(); err != nil {
		return err
	}
	s.ready = false
	s.logger.Info("index cleared")
	return nil
}

// RemoveSource drops every passage ingested from source.
func (s *Session) RemoveSource(ctx context.Context, source string) (int, error) {
	if err := s.loadIfNeeded(ctx); err != nil {
		return 0, err
	}
	return s.index.RemoveSource(ctx, source)
}

// Sources lists ingested documents.
func (s *Session) Sources(ctx context.Context) ([]storage.SourceInfo, error) {
	if err := s.loadIfNeeded(ctx); err != nil {
		return nil, err
	}
	return s.index.Sources(ctx)
}

// Models lists the models available on the backend.
func (s *Session) Models(ctx context.Context) ([]string, error) {
	return s.client.ListModels(ctx)
}

// History returns up to limit recorded answers, newest first. Without a history store it is empty.
func (s *Session) History(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, limit)
}

// Status reports index and model state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	if err := s.loadIfNeeded(ctx); err != nil {
		return Status{}, err
	}
	st := Status{
		Initialized:  s.index.Initialized(),
		Passages:     s.index.Size(),
		ActiveModel:  s.ActiveModel(),
		DefaultModel: s.defaultModel,
	}
	sources, err := s.index.Sources(ctx)
	if err != nil {
		return st, err
	}
	st.Sources = len(sources)
	return st, nil
}
