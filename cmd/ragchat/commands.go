package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/ragchat/internal/cli"
	"github.com/hyperjump/ragchat/internal/config"
	"github.com/hyperjump/ragchat/internal/extract"
	"github.com/hyperjump/ragchat/internal/indexer"
	"github.com/hyperjump/ragchat/internal/models"
	"github.com/hyperjump/ragchat/internal/tui"
	"github.com/hyperjump/ragchat/pkg/utils"
)

type rootOptions struct {
	configPath string
	debug      bool
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Chat with your PDFs through a local language model",
		Long: `ragchat indexes PDF documents into a local vector store and answers questions
grounded in their content, using Ollama or an OpenAI-compatible backend.

Example usage:
  ragchat ingest docs/**/*.pdf          # Index PDFs
  ragchat ask What is the refund policy? # Ask a question
  ragchat server                         # Start the HTTP server
  ragchat chat                           # Interactive terminal chat`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", string(cli.OutputText), "output format: text or json")

	root.AddCommand(
		newServerCmd(opts),
		newAskCmd(opts),
		newIngestCmd(opts),
		newChunksCmd(opts),
		newClearCmd(opts),
		newModelsCmd(opts),
		newHistoryCmd(opts),
		newSourcesCmd(opts),
		newChatCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) format() cli.OutputFormat {
	return cli.ParseFormat(o.output)
}

// setup loads the config and creates the logger. The returned debug flag combines the
// config file and the --debug flag.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, bool, error) {
	cfg, resolved, err := loadConfig(o.configPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || o.debug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, debug, nil
}

// withComponents runs fn with initialized components and releases them afterwards.
func (o *rootOptions) withComponents(fn func(c *Components) error, idxOpts ...indexer.IndexerOption) error {
	cfg, logger, debug, err := o.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	c, err := initializeComponents(cfg, logger, debug, idxOpts...)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		model     string
		verbose   bool
		direct    bool
		serverURL string
	)
	cmd := &cobra.Command{
		Use:   "ask [flags] <question>",
		Short: "Answer a question from the indexed documents",
		Long: `Answer a question from the indexed documents.

The question is all remaining arguments joined by spaces. Questions asking to recite
a titled item (e.g. "recite the poem Rain") return the matching passage verbatim.
Use --direct to chat with the model without retrieval.
Use --server to ask a running server instead of opening the index directly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := buildQuestion(args)
			if question == "" {
				return fmt.Errorf("question cannot be empty")
			}
			var ans models.Answer
			if serverURL != "" {
				var err error
				mode := models.AskModeRAG
				if direct {
					mode = models.AskModeDirect
				}
				ans, err = askViaHTTP(cmd.Context(), serverURL, models.AskRequest{Question: question, Model: model, Mode: mode})
				if err != nil {
					return err
				}
			} else {
				err := opts.withComponents(func(c *Components) error {
					if direct {
						ans = c.Session.Chat(cmd.Context(), question, model)
					} else {
						ans = c.Session.Ask(cmd.Context(), question, model)
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), ans, opts.format(), verbose)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model name (default from config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show answer kind, timing and sources")
	cmd.Flags().BoolVar(&direct, "direct", false, "chat with the model directly, without retrieval")
	cmd.Flags().StringVar(&serverURL, "server", "", "ask a running server at this URL")
	return cmd
}

// askViaHTTP posts the question to a running server.
func askViaHTTP(ctx context.Context, serverURL string, ask models.AskRequest) (models.Answer, error) {
	body, err := json.Marshal(ask)
	if err != nil {
		return models.Answer{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/v1/ask", bytes.NewReader(body))
	if err != nil {
		return models.Answer{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.Answer{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var out struct {
		models.Answer
		Time  float64 `json:"time"`
		Error string  `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Answer{}, fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	if out.Error != "" {
		return models.Answer{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	}
	out.Answer.Duration = time.Duration(out.Time * float64(time.Second))
	return out.Answer, nil
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "ingest [flags] <file|dir|glob>...",
		Short: "Index PDF files",
		Long: `Index PDF files. Arguments may be files, directories (searched recursively)
or glob patterns, including "**".

Examples:
  ragchat ingest manual.pdf
  ragchat ingest ./docs
  ragchat ingest 'archive/**/*.pdf'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := extract.ExpandPaths(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no PDF files match %s", strings.Join(args, " "))
			}
			format := opts.format()
			var idxOpts []indexer.IndexerOption
			if !noProgress && format == cli.OutputText {
				bar := newProgressBar(cmd.ErrOrStderr(), len(paths))
				defer func() { _ = bar.Finish() }()
				idxOpts = append(idxOpts, indexer.WithProgress(func(string) { _ = bar.Add(1) }))
			}
			return opts.withComponents(func(c *Components) error {
				res, err := c.Session.Ingest(cmd.Context(), paths)
				if err != nil {
					return err
				}
				return cli.WriteIngestResult(cmd.OutOrStdout(), res, format)
			}, idxOpts...)
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

func newChunksCmd(opts *rootOptions) *cobra.Command {
	var (
		query  string
		mode   string
		limit  int
		export string
	)
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "List, search or export indexed chunks",
		Long: `List, search or export indexed chunks.

--query filters by case-insensitive substring, or with --mode keyword by
typo-tolerant keyword search. --export writes every chunk's text separated by
blank lines to a file ("-" for stdout).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(func(c *Components) error {
				ctx := cmd.Context()
				if export != "" {
					passages, err := c.Session.Passages(ctx, 0)
					if err != nil {
						return err
					}
					if export == "-" {
						return cli.ExportChunks(cmd.OutOrStdout(), passages)
					}
					f, err := os.Create(export)
					if err != nil {
						return err
					}
					if err := cli.ExportChunks(f, passages); err != nil {
						_ = f.Close()
						return err
					}
					if err := f.Close(); err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d chunk(s) to %s\n", len(passages), export)
					return nil
				}
				passages, err := c.Session.SearchChunks(ctx, models.ChunkQuery{Query: query, Mode: mode, Limit: limit})
				if err != nil {
					return err
				}
				return cli.WriteChunks(cmd.OutOrStdout(), passages, opts.format())
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter chunks by text")
	cmd.Flags().StringVar(&mode, "mode", models.ChunkSearchSubstring, "search mode: substring or keyword")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum chunks to show (default from config)")
	cmd.Flags().StringVar(&export, "export", "", "export all chunks to this file")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(func(c *Components) error {
				if err := c.Session.ClearIndex(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Index cleared.")
				return nil
			})
		},
	}
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(func(c *Components) error {
				names, err := c.Session.Models(cmd.Context())
				if err != nil {
					return err
				}
				return cli.WriteModels(cmd.OutOrStdout(), names, c.Session.DefaultModel(), opts.format())
			})
		},
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(func(c *Components) error {
				entries, err := c.Session.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return cli.WriteHistory(cmd.OutOrStdout(), entries, opts.format())
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	var remove string
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List ingested documents, or remove one from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withComponents(func(c *Components) error {
				ctx := cmd.Context()
				if remove != "" {
					n, err := c.Session.RemoveSource(ctx, remove)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %d chunk(s) of %s\n", n, remove)
					return nil
				}
				sources, err := c.Session.Sources(ctx)
				if err != nil {
					return err
				}
				return cli.WriteSources(cmd.OutOrStdout(), sources, opts.format())
			})
		},
	}
	cmd.Flags().StringVar(&remove, "remove", "", "remove every chunk of this document")
	return cmd
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logs would draw over the TUI, so components stay quiet here.
			opts.debug = false
			return opts.withComponents(func(c *Components) error {
				m := tui.New(cmd.Context(), c.Session, model)
				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "model name (default from config)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ragchat version %s\n", version)
		},
	}
}
