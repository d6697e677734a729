package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MCPServerConfig holds configuration for launching an MCP classifier server
type MCPServerConfig struct {
	// Path to the MCP server executable
	Path string

	// Args passed to the executable
	Args []string

	// Env entries ("KEY=value") added to the server environment
	Env []string
}

// DiscoverMCPServers tries to discover available MCP servers using various methods
func DiscoverMCPServers() ([]MCPServerConfig, error) {
	servers := []MCPServerConfig{}

	// 1. Check environment variables
	if serverPath := os.Getenv("MCP_SERVER_PATH"); serverPath != "" {
		servers = append(servers, MCPServerConfig{Path: serverPath})
	}

	// 2. Parse MCP_SERVERS environment variable (comma-separated list)
	if serverList := os.Getenv("MCP_SERVERS"); serverList != "" {
		for _, server := range strings.Split(serverList, ",") {
			server = strings.TrimSpace(server)
			if server == "" {
				continue
			}
			if strings.HasPrefix(server, "http://") || strings.HasPrefix(server, "https://") {
				// only stdio servers can be launched
				continue
			}
			servers = append(servers, MCPServerConfig{Path: server})
		}
	}

	// 3. Check common installation locations
	commonPaths := []string{
		"./fairprop-classifier",
		filepath.Join(os.Getenv("HOME"), ".local/bin/fairprop-classifier"),
		"/usr/local/bin/fairprop-classifier",
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			servers = append(servers, MCPServerConfig{Path: path})
		}
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf("no MCP servers discovered; please set MCP_SERVER_PATH or MCP_SERVERS: %w", ErrBackendNotConfigured)
	}

	return servers, nil
}

// GetMCPServerConfig returns the server to launch for cfg. An explicit ServerPath takes
// precedence over discovery.
func GetMCPServerConfig(cfg IntentConfig) (*MCPServerConfig, error) {
	if cfg.ServerPath != "" {
		if strings.HasPrefix(cfg.ServerPath, "http://") || strings.HasPrefix(cfg.ServerPath, "https://") {
			return nil, fmt.Errorf("HTTP transport not supported for MCP classifier: %s", cfg.ServerPath)
		}
		return &MCPServerConfig{
			Path: cfg.ServerPath,
			Args: cfg.ServerArgs,
			Env:  cfg.ServerEnv,
		}, nil
	}

	servers, err := DiscoverMCPServers()
	if err != nil {
		return nil, err
	}

	server := servers[0]
	server.Args = cfg.ServerArgs
	server.Env = cfg.ServerEnv
	return &server, nil
}
