// Package config provides configuration loading and structs for the ragchat server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadMB    int    `yaml:"max_upload_mb"`
	RequestTimeout int    `yaml:"request_timeout_seconds"`
}

// StorageConfig holds the directories for uploaded PDFs and the persisted index.
type StorageConfig struct {
	PDFDir      string `yaml:"pdf_dir"`
	VectorDir   string `yaml:"vector_dir"`
	HistoryPath string `yaml:"history_path"`
}

// LLMConfig selects the chat backend.
type LLMConfig struct {
	Provider       string  `yaml:"provider"` // ollama | openai
	BaseURL        string  `yaml:"base_url"`
	DefaultModel   string  `yaml:"default_model"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	APIKeyEnv      string  `yaml:"api_key_env"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama | openai | onnx | mock
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	Dimensions     int    `yaml:"dimensions"`
	ModelPath      string `yaml:"model_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ChunkingConfig selects and parameterizes the chunker.
type ChunkingConfig struct {
	Mode             string `yaml:"mode"` // window | structured
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	MarkerPrefix     string `yaml:"marker_prefix"`
	MinLines         int    `yaml:"min_lines"`
	MinChars         int    `yaml:"min_chars"`
	FallbackToWindow bool   `yaml:"fallback_to_window"`
}

// RetrievalConfig holds retriever settings.
type RetrievalConfig struct {
	CandidateK     int      `yaml:"candidate_k"`
	ContextK       int      `yaml:"context_k"`
	ReciteTriggers []string `yaml:"recite_triggers"`
	// ReciteVerbatim returns the matched passage without calling the model. Defaults to true.
	ReciteVerbatim *bool `yaml:"recite_verbatim"`
	ListLimit      int   `yaml:"list_limit"`
}

// ReciteVerbatimOrDefault returns whether recitation matches skip the model; defaults to true when unset.
func (r *RetrievalConfig) ReciteVerbatimOrDefault() bool {
	if r.ReciteVerbatim != nil {
		return *r.ReciteVerbatim
	}
	return true
}

// PromptConfig holds the instructions sent with every grounded question.
type PromptConfig struct {
	SystemMessage     string `yaml:"system_message"`
	FallbackAnswer    string `yaml:"fallback_answer"`
	NotIndexedMessage string `yaml:"not_indexed_message"`
	NoMatchMessage    string `yaml:"no_match_message"`
	// DirectSystemMessage is the persona for direct chat without retrieval. An explicit empty
	// string sends the question alone as a prompt.
	DirectSystemMessage *string `yaml:"direct_system_message"`
}

// DirectSystemMessageOrDefault returns the direct chat persona; DefaultDirectSystemMessage when unset.
func (p *PromptConfig) DirectSystemMessageOrDefault() string {
	if p.DirectSystemMessage != nil {
		return *p.DirectSystemMessage
	}
	return DefaultDirectSystemMessage
}

// WatchConfig holds drop-folder settings. No directories disables the watcher.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// Load reads and parses the config file at path, expands paths, applies defaults and env overrides.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	expandPaths(&cfg, filepath.Dir(path))

	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
// Relative default paths resolve against the home directory.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	expandPaths(&cfg, wd)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides backend URLs from RAGCHAT_LLM_BASE_URL and RAGCHAT_EMBEDDING_BASE_URL.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("RAGCHAT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("RAGCHAT_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
}

// APIKey returns the OpenAI-compatible API key from the configured environment variable.
func (c *LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

func expandPaths(cfg *Config, configDir string) {
	cfg.Storage.PDFDir = expandPath(cfg.Storage.PDFDir, configDir)
	cfg.Storage.VectorDir = expandPath(cfg.Storage.VectorDir, configDir)
	if cfg.Storage.HistoryPath != "" {
		cfg.Storage.HistoryPath = expandPath(cfg.Storage.HistoryPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
