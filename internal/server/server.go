// Package server provides the HTTP API for ragchat.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/rag"
	"github.com/hyperjump/ragchat/internal/storage"
	"github.com/hyperjump/ragchat/pkg/utils"
)

// WatchService reports the drop folders being watched.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the ragchat API.
type Server struct {
	session *rag.Session
	pdfs    *storage.PDFStore
	watch   WatchService
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. watch may be nil.
func NewServer(
	session *rag.Session,
	pdfs *storage.PDFStore,
	watch WatchService,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		session: session,
		pdfs:    pdfs,
		watch:   watch,
		config:  cfg,
		logger:  utils.OrNop(logger),
	}
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	timeout := time.Duration(s.config.Server.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)

	// Legacy query endpoints.
	r.Get("/get", s.handleGet)
	r.Get("/json", s.handleJSON)
	r.Get("/bot", s.handleBot)
	r.Get("/pdfs/{name}", s.handleServePDF)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/ask", s.handleAsk)
		r.Post("/chat", s.handleChat)
		r.Post("/upload", s.handleUpload)
		r.Get("/pdfs", s.handleListPDFs)
		r.Delete("/pdfs/{name}", s.handleDeletePDF)
		r.Get("/chunks", s.handleChunks)
		r.Get("/chunks/export", s.handleExportChunks)
		r.Post("/clear", s.handleClear)
		r.Get("/models", s.handleModels)
		r.Get("/history", s.handleHistory)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
