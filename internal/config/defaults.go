package config

// Default prompt strings. "{fallback}" in the system message is replaced by the fallback answer.
const (
	DefaultSystemMessage = "Answer exclusively using the information provided in the context. " +
		"If the answer is not present in the documents, reply: '{fallback}' " +
		"If the question is only indirectly related to the context, try to answer by inference from the content. " +
		"Do not use outside knowledge."
	DefaultFallbackAnswer    = "I am not able to answer with the information available."
	DefaultNotIndexedMessage = "[ERROR] No documents indexed. Upload a PDF."
	DefaultNoMatchMessage    = "No matching item was found in the indexed documents."
)

// DefaultDirectSystemMessage is the persona used for direct chat.
const DefaultDirectSystemMessage = "You are a friendly assistant for the people using this service. " +
	"Answer briefly and clearly. When asked who you are, say you are the ragchat assistant."


// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 64
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 180
	}
	if cfg.Storage.PDFDir == "" {
		cfg.Storage.PDFDir = ".ragchat/data/pdfs"
	}
	if cfg.Storage.VectorDir == "" {
		cfg.Storage.VectorDir = ".ragchat/data/vectors"
	}
	if cfg.Storage.HistoryPath == "" {
		cfg.Storage.HistoryPath = ".ragchat/data/history.db"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.BaseURL == "" {
		if cfg.LLM.Provider == "openai" {
			cfg.LLM.BaseURL = "https://api.openai.com/v1"
		} else {
			cfg.LLM.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.LLM.DefaultModel == "" {
		cfg.LLM.DefaultModel = "mistral"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.3
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 120
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		case "ollama":
			cfg.Embedding.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		default:
			cfg.Embedding.Model = "all-minilm"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == "openai" {
			cfg.Embedding.Dimensions = 1536
		} else {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 60
	}
	if cfg.Chunking.Mode == "" {
		cfg.Chunking.Mode = "window"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 500
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 50
	}
	if cfg.Chunking.MarkerPrefix == "" {
		cfg.Chunking.MarkerPrefix = "Poem:"
	}
	if cfg.Chunking.MinLines == 0 {
		cfg.Chunking.MinLines = 3
	}
	if cfg.Chunking.MinChars == 0 {
		cfg.Chunking.MinChars = 40
	}
	if cfg.Retrieval.CandidateK == 0 {
		cfg.Retrieval.CandidateK = 10
	}
	if cfg.Retrieval.ContextK == 0 {
		cfg.Retrieval.ContextK = 3
	}
	if cfg.Retrieval.ReciteTriggers == nil {
		cfg.Retrieval.ReciteTriggers = []string{"recite", "recita", "poem", "poesia"}
	}
	if cfg.Retrieval.ReciteVerbatim == nil {
		t := true
		cfg.Retrieval.ReciteVerbatim = &t
	}
	if cfg.Retrieval.ListLimit == 0 {
		cfg.Retrieval.ListLimit = 100
	}
	if cfg.Prompt.FallbackAnswer == "" {
		cfg.Prompt.FallbackAnswer = DefaultFallbackAnswer
	}
	if cfg.Prompt.SystemMessage == "" {
		cfg.Prompt.SystemMessage = DefaultSystemMessage
	}
	if cfg.Prompt.NotIndexedMessage == "" {
		cfg.Prompt.NotIndexedMessage = DefaultNotIndexedMessage
	}
	if cfg.Prompt.NoMatchMessage == "" {
		cfg.Prompt.NoMatchMessage = DefaultNoMatchMessage
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf"}
	}
}
