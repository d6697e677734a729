package llm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearBackendEnv(t *testing.T) {
	for _, key := range []string{
		"FAIRPROP_EMBEDDING_PROVIDER", "FAIRPROP_GENAI_API_KEY", "GEMINI_API_KEY",
		"FAIRPROP_EMBEDDING_MODEL", "OLLAMA_HOST", "FAIRPROP_INTENT_PROVIDER",
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_DEPLOYMENT",
		"MCP_SERVER_PATH", "MCP_SERVERS", "MCP_TOOL_NAME", "MCP_REWRITE_TOOL_NAME",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Embedding.Provider)
	assert.Empty(t, cfg.Intent.Provider)
	assert.Equal(t, 2, cfg.RetryCount)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, "SEMANTIC_SIMILARITY", cfg.Embedding.TaskType)
}

func TestApplyEnv(t *testing.T) {
	clearBackendEnv(t)
	t.Setenv("FAIRPROP_EMBEDDING_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("FAIRPROP_INTENT_PROVIDER", "AZURE")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "from-env")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT", "gpt-4o")

	cfg := DefaultConfig()
	cfg.Intent.APIKey = "from-file"
	ApplyEnv(&cfg)

	assert.Equal(t, "gemini", cfg.Embedding.Provider)
	assert.Equal(t, "gemini-key", cfg.Embedding.APIKey)
	assert.Equal(t, "azure", cfg.Intent.Provider)
	assert.Equal(t, "https://example.openai.azure.com", cfg.Intent.Endpoint)
	assert.Equal(t, "from-file", cfg.Intent.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Intent.Deployment)
}

func TestGetMCPServerConfig(t *testing.T) {
	clearBackendEnv(t)

	server, err := GetMCPServerConfig(IntentConfig{
		ServerPath: "/opt/classifier",
		ServerArgs: []string{"--quiet"},
		ServerEnv:  []string{"MODEL=small"},
	})
	require.NoError(t, err)
	assert.Equal(t, &MCPServerConfig{Path: "/opt/classifier", Args: []string{"--quiet"}, Env: []string{"MODEL=small"}}, server)

	_, err = GetMCPServerConfig(IntentConfig{ServerPath: "https://classifier.example.com"})
	assert.Error(t, err)

	t.Setenv("MCP_SERVER_PATH", "/usr/bin/from-env")
	server, err = GetMCPServerConfig(IntentConfig{ServerArgs: []string{"-v"}})
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/from-env", server.Path)
	assert.Equal(t, []string{"-v"}, server.Args)
}

func TestDiscoverMCPServers(t *testing.T) {
	clearBackendEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	t.Setenv("MCP_SERVERS", "/bin/a, http://remote:8080, ,/bin/b")
	servers, err := DiscoverMCPServers()
	require.NoError(t, err)
	assert.Equal(t, []MCPServerConfig{{Path: "/bin/a"}, {Path: "/bin/b"}}, servers)

	local := filepath.Join(home, ".local", "bin", "fairprop-classifier")
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0755))
	require.NoError(t, os.WriteFile(local, []byte("#!/bin/sh\n"), 0755))
	t.Setenv("MCP_SERVERS", "")
	servers, err = DiscoverMCPServers()
	require.NoError(t, err)
	assert.Contains(t, servers, MCPServerConfig{Path: local})
}
