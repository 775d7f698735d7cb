package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/extract"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/internal/rag"
	"github.com/hyperjump/ragchat/internal/storage"
	"github.com/hyperjump/ragchat/pkg/utils"
)

const (
	uploadField         = "pdfs"
	uploadPreviewChunks = 5
	uploadPreviewRunes  = 80
	defaultHistoryLimit = 50
	exportFileName      = "chunks_export.txt"
)

// askResponse is the JSON body of POST /api/v1/ask.
type askResponse struct {
	models.Answer
	Time float64 `json:"time"`
}

type uploadResponse struct {
	Uploaded []string `json:"uploaded"`
	Skipped  []string `json:"skipped,omitempty"`
	Count    int      `json:"count"`
	Preview  []string `json:"preview,omitempty"`
}

type statusResponse struct {
	rag.Status
	DiskUsageBytes int64    `json:"disk_usage_bytes"`
	PDFDir         string   `json:"pdf_dir"`
	WatchDirs      []string `json:"watch_directories,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statusResponse{Status: st, PDFDir: s.pdfs.Dir()}
	diskBytes, err := storage.DiskUsageBytes(s.config.Storage.PDFDir, s.config.Storage.VectorDir)
	if err == nil {
		resp.DiskUsageBytes = diskBytes
	}
	if s.watch != nil {
		resp.WatchDirs = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question), zap.String("model", req.Model),
		zap.String("mode", req.Mode))
	ans, err := s.reply(r, req.Question, req.Model, req.Mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, answerStatus(ans), askResponse{Answer: ans, Time: ans.Seconds()})
}

// handleChat answers without retrieval using the direct chat persona.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ans := s.session.Chat(r.Context(), req.Question, req.Model)
	s.respondJSON(w, answerStatus(ans), askResponse{Answer: ans, Time: ans.Seconds()})
}

// reply answers question in mode ("rag" when empty, or "direct").
func (s *Server) reply(r *http.Request, question, model, mode string) (models.Answer, error) {
	mode, err := models.ParseAskMode(mode)
	if err != nil {
		return models.Answer{}, err
	}
	if mode == models.AskModeDirect {
		return s.session.Chat(r.Context(), question, model), nil
	}
	return s.session.Ask(r.Context(), question, model), nil
}

// handleGet answers ?msg= with the bare answer text.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ans, err := s.reply(r, q.Get("msg"), q.Get("model"), q.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeText(w, ans)
}

// handleBot answers ?query= by direct chat with the bare answer text.
func (s *Server) handleBot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.writeText(w, s.session.Chat(r.Context(), q.Get("query"), q.Get("model")))
}

func (s *Server) writeText(w http.ResponseWriter, ans models.Answer) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(answerStatus(ans))
	_, _ = w.Write([]byte(ans.Display()))
}

// handleJSON answers ?query= as {"response": ..., "action": "ok"}.
func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ans, err := s.reply(r, q.Get("query"), q.Get("model"), q.Get("mode"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"response": ans.Display(), "action": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.Server.MaxUploadMB) << 20
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var (
		resp  uploadResponse
		paths []string
	)
	for _, fh := range r.MultipartForm.File[uploadField] {
		if !extract.IsPDF(fh.Filename) {
			resp.Skipped = append(resp.Skipped, fh.Filename)
			continue
		}
		f, err := fh.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		path, err := s.pdfs.Save(fh.Filename, f)
		_ = f.Close()
		if err != nil {
			s.logger.Error("save upload failed", zap.String("name", fh.Filename), zap.Error(err))
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Info("uploaded", zap.String("path", path))
		paths = append(paths, path)
		resp.Uploaded = append(resp.Uploaded, fh.Filename)
	}
	if len(paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "no PDF files uploaded")
		return
	}

	res, err := s.session.Ingest(r.Context(), paths)
	if err != nil {
		s.logger.Error("ingest failed", zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	resp.Count = res.Count
	resp.Skipped = append(resp.Skipped, res.Skipped...)
	for i, p := range res.Passages {
		if i == uploadPreviewChunks {
			break
		}
		resp.Preview = append(resp.Preview, utils.Prefix(p.Content(), uploadPreviewRunes))
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListPDFs(w http.ResponseWriter, r *http.Request) {
	files, err := s.pdfs.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []storage.PDFInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"pdfs": files})
}

func (s *Server) handleDeletePDF(w http.ResponseWriter, r *http.Request) {
	name, err := storage.CleanName(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("delete pdf request", zap.String("name", name))
	ok, err := s.pdfs.Delete(name)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		s.respondError(w, http.StatusNotFound, "pdf not found")
		return
	}
	removed, err := s.session.RemoveSource(r.Context(), name)
	if err != nil {
		s.logger.Error("remove source failed", zap.String("name", name), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": name, "passages_removed": removed})
}

func (s *Server) handleServePDF(w http.ResponseWriter, r *http.Request) {
	path, err := s.pdfs.Path(chi.URLParam(r, "name"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "pdf not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.ChunkQuery{Query: q.Get("q"), Mode: q.Get("mode")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = n
	}
	passages, err := s.session.SearchChunks(r.Context(), query)
	if err != nil {
		s.logger.Error("chunk search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if passages == nil {
		passages = []*models.Passage{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"query":  strings.TrimSpace(query.Query),
		"count":  len(passages),
		"chunks": passages,
	})
}

func (s *Server) handleExportChunks(w http.ResponseWriter, r *http.Request) {
	passages, err := s.session.Passages(r.Context(), 0)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	contents := make([]string, len(passages))
	for i, p := range passages {
		contents[i] = p.Content()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", exportFileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strings.Join(contents, "\n\n")))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ClearIndex(r.Context()); err != nil {
		s.logger.Error("clear failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	names, err := s.session.Models(r.Context())
	if err != nil {
		s.logger.Warn("list models failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"models":  names,
		"default": s.session.DefaultModel(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.session.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// answerStatus maps an answer kind to an HTTP status. Degraded answers that still carry a
// message for the user are 200.
func answerStatus(ans models.Answer) int {
	switch ans.Kind {
	case models.AnswerEmptyQuestion:
		return http.StatusBadRequest
	case models.AnswerBackendError:
		if errors.Is(ans.Err, models.ErrBackendTimeout) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
