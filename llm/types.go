package llm

import (
	"time"
)

// Config holds configuration for the model backends behind the optional layers
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Intent    IntentConfig    `yaml:"intent"`

	RequestsPerMinute int           `yaml:"requests_per_minute"` // Max backend calls per minute, zero disables limiting
	RetryCount        int           `yaml:"retry_count"`         // Number of retries on failure
	RetryBackoff      time.Duration `yaml:"retry_backoff"`       // Backoff duration before the first retry
	Timeout           time.Duration `yaml:"timeout"`             // Per-call timeout
	AuditLevel        string        `yaml:"audit_level"`         // Call logging level: "minimal", "standard", "verbose"
}

// EmbeddingConfig selects and configures the embedding backend
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "genai", "ollama" or empty for none
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
	TaskType string `yaml:"task_type"`
}

// IntentConfig selects and configures the zero-shot classifier backend
type IntentConfig struct {
	Provider string `yaml:"provider"` // "azure", "mcp" or empty for none

	// Azure OpenAI
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Deployment string `yaml:"deployment"`

	// MCP tool server
	ServerPath string   `yaml:"server_path"`
	ServerArgs []string `yaml:"server_args"`
	ServerEnv  []string `yaml:"server_env"`
	ToolName   string   `yaml:"tool_name"`

	// RewriteTool is the MCP tool asked for neutral rewrites
	RewriteTool string `yaml:"rewrite_tool"`
}

// Backend names used in errors and logs
const (
	BackendGenAI  = "genai"
	BackendOllama = "ollama"
	BackendAzure  = "azure"
	BackendMCP    = "mcp"
)
