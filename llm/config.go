package llm

import (
	"os"
	"strings"
	"time"
)

// DefaultConfig returns backend defaults with no provider selected
func DefaultConfig() Config {
	return Config{
		Embedding: EmbeddingConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
		RequestsPerMinute: 600,
		RetryCount:        2,
		RetryBackoff:      500 * time.Millisecond,
		Timeout:           30 * time.Second,
		AuditLevel:        "standard",
	}
}

// ApplyEnv fills empty fields of config from the environment. Values already set in
// config take precedence.
func ApplyEnv(config *Config) {
	setIfEmpty := func(field *string, keys ...string) {
		if *field != "" {
			return
		}
		for _, key := range keys {
			if v := strings.TrimSpace(os.Getenv(key)); v != "" {
				*field = v
				return
			}
		}
	}

	setIfEmpty(&config.Embedding.Provider, "FAIRPROP_EMBEDDING_PROVIDER")
	setIfEmpty(&config.Embedding.APIKey, "FAIRPROP_GENAI_API_KEY", "GEMINI_API_KEY")
	setIfEmpty(&config.Embedding.Model, "FAIRPROP_EMBEDDING_MODEL")
	setIfEmpty(&config.Embedding.Endpoint, "OLLAMA_HOST")

	setIfEmpty(&config.Intent.Provider, "FAIRPROP_INTENT_PROVIDER")
	setIfEmpty(&config.Intent.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setIfEmpty(&config.Intent.APIKey, "AZURE_OPENAI_API_KEY")
	setIfEmpty(&config.Intent.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	setIfEmpty(&config.Intent.ServerPath, "MCP_SERVER_PATH")
	setIfEmpty(&config.Intent.ToolName, "MCP_TOOL_NAME")
	setIfEmpty(&config.Intent.RewriteTool, "MCP_REWRITE_TOOL_NAME")

	config.Embedding.Provider = strings.ToLower(config.Embedding.Provider)
	config.Intent.Provider = strings.ToLower(config.Intent.Provider)
}
