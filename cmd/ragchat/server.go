package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/server"
	"github.com/hyperjump/ragchat/internal/watcher"
)

func newServerCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, debug, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			components, err := initializeComponents(cfg, logger, true)
			if err != nil {
				logger.Error("Failed to initialize components", zap.Error(err))
				return err
			}
			defer components.Close()
			session := components.Session

			watchOpts := []watcher.Option{}
			if debug {
				watchOpts = append(watchOpts, watcher.WithLogger(logger))
			}
			watchSvc := watcher.New(cfg.Watch,
				func(ctx context.Context, path string) error {
					res, err := session.Ingest(ctx, []string{path})
					if err != nil {
						return err
					}
					logger.Info("watch ingested", zap.String("path", path), zap.Int("chunks", res.Count))
					return nil
				},
				func(ctx context.Context, path string) error {
					n, err := session.RemoveSource(ctx, filepath.Base(path))
					if err != nil {
						return err
					}
					logger.Info("watch removed", zap.String("path", path), zap.Int("chunks", n))
					return nil
				},
				watchOpts...,
			)
			watchCtx, watchCancel := context.WithCancel(context.Background())
			defer watchCancel()
			if watchSvc.Enabled() {
				if err := watchSvc.Start(watchCtx); err != nil {
					logger.Error("Failed to start watcher", zap.Error(err))
					return err
				}
				defer watchSvc.Stop()
				indexed := indexedSources(watchCtx, components, logger)
				go watchSvc.SyncExisting(watchCtx, func(path string) bool {
					return indexed[filepath.Base(path)]
				})
			}

			srv := server.NewServer(session, components.PDFs, watchSvc, cfg, logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigChan:
			case err := <-errCh:
				logger.Error("Server failed", zap.Error(err))
				return err
			}

			logger.Info("Shutting down...")
			watchCancel()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

// indexedSources returns the names of documents already in the index so the initial
// drop-folder sync does not ingest them twice.
func indexedSources(ctx context.Context, c *Components, logger *zap.Logger) map[string]bool {
	out := make(map[string]bool)
	sources, err := c.Session.Sources(ctx)
	if err != nil {
		logger.Warn("list sources failed", zap.Error(err))
		return out
	}
	for _, s := range sources {
		out[s.Name] = true
	}
	return out
}
