// Package main is the ragchat CLI entry point.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/embedding"
	"github.com/hyperjump/ragchat/internal/history"
	"github.com/hyperjump/ragchat/internal/indexer"
	"github.com/hyperjump/ragchat/internal/llm"
	"github.com/hyperjump/ragchat/internal/rag"
	"github.com/hyperjump/ragchat/internal/storage"
	"github.com/hyperjump/ragchat/internal/vectorstore"
	"github.com/hyperjump/ragchat/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ragchat/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default file falls back to built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// loadEnv reads .env from the working directory when present. Existing variables win.
func loadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// buildQuestion joins positional args so multi-word questions work with or without quotes.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Store    *vectorstore.Store
	History  *history.Store
	PDFs     *storage.PDFStore
	Indexer  *indexer.Indexer
	Session  *rag.Session
	Embedder embedding.Embedder
}

// Close releases the index, history and embedder.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents wires the session from cfg. Components log only when debug is set,
// except for the server which passes its logger with debug forced on.
func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool, idxOpts ...indexer.IndexerOption) (*Components, error) {
	logger = utils.OrNop(logger)
	var compLogger *zap.Logger
	if debug {
		compLogger = logger
	}
	compLogger = utils.OrNop(compLogger)

	embedder, err := embedding.New(cfg.Embedding, cfg.LLM.APIKey(), embedding.WithLogger(compLogger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c := &Components{Config: cfg, Embedder: embedder}

	c.Store, err = vectorstore.New(cfg.Storage.VectorDir, embedder, vectorstore.WithLogger(compLogger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	c.PDFs, err = storage.NewPDFStore(cfg.Storage.PDFDir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize pdf store: %w", err)
	}

	client, err := llm.New(cfg.LLM, llm.WithLogger(compLogger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	chunker, err := indexer.NewChunker(cfg.Chunking, indexer.WithChunkerLogger(compLogger))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize chunker: %w", err)
	}
	idxOpts = append([]indexer.IndexerOption{indexer.WithLogger(compLogger)}, idxOpts...)
	c.Indexer = indexer.NewIndexer(nil, chunker, c.Store, idxOpts...)

	sessionOpts := []rag.SessionOption{rag.WithLogger(compLogger)}
	if cfg.Storage.HistoryPath != "" {
		c.History, err = history.Open(cfg.Storage.HistoryPath)
		if err != nil {
			// bbolt locks the file; a running server keeps other processes out.
			logger.Warn("history disabled", zap.String("path", cfg.Storage.HistoryPath), zap.Error(err))
		} else {
			sessionOpts = append(sessionOpts, rag.WithHistory(c.History))
		}
	}
	c.Session = rag.NewSession(c.Store, c.Indexer, client, cfg, sessionOpts...)
	return c, nil
}
