package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

type toolCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// MCPClassifier scores spans by calling a classification tool on an MCP stdio server
type MCPClassifier struct {
	server      *MCPServerConfig
	toolName    string
	rewriteTool string
	config      Config
	limiter     *RateLimiter
	log         *RequestLogger
	logger      *zap.Logger

	mu     sync.Mutex
	caller toolCaller
	stdio  *client.StdioMCPClient
}

// NewMCPClassifier configures a classifier; the server process starts on first use
func NewMCPClassifier(config Config, logger *zap.Logger) (*MCPClassifier, error) {
	server, err := GetMCPServerConfig(config.Intent)
	if err != nil {
		return nil, newBackendError(BackendMCP, ErrorCategoryConfig, fmt.Errorf("failed to configure MCP server: %w", err), "")
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	toolName := config.Intent.ToolName
	if toolName == "" {
		toolName = "fairprop.intent.classify"
	}

	return &MCPClassifier{
		server:      server,
		toolName:    toolName,
		rewriteTool: rewriteToolName(config),
		config:      config,
		limiter:     NewRateLimiter(config.RequestsPerMinute),
		log:         NewRequestLogger(logger, config.AuditLevel),
		logger:      logger,
	}, nil
}

func newMCPClassifierWithCaller(caller toolCaller, toolName string, config Config) *MCPClassifier {
	return &MCPClassifier{
		server:      &MCPServerConfig{},
		toolName:    toolName,
		rewriteTool: rewriteToolName(config),
		config:      config,
		limiter:     NewRateLimiter(config.RequestsPerMinute),
		log:         NewRequestLogger(nil, config.AuditLevel),
		logger:      zap.NewNop(),
		caller:      caller,
	}
}

// connect starts and initializes the server once. A failed start is retried on the next call.
func (c *MCPClassifier) connect(ctx context.Context) (toolCaller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.caller != nil {
		return c.caller, nil
	}

	stdio, err := client.NewStdioMCPClient(c.server.Path, c.server.Env, c.server.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP stdio client: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "fairprop",
		Version: "1.0.0",
	}
	if _, err := stdio.Initialize(ctx, initRequest); err != nil {
		stdio.Close()
		return nil, fmt.Errorf("failed to initialize MCP server: %w", err)
	}

	c.logger.Info("MCP classifier connected",
		zap.String("server", c.server.Path),
		zap.String("tool", c.toolName))

	c.stdio = stdio
	c.caller = stdio
	return c.caller, nil
}

// Classify returns a score per label for text
func (c *MCPClassifier) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	requestID := generateRequestID()
	start := time.Now()
	c.log.LogRequest(BackendMCP, requestID, map[string]interface{}{
		"tool":   c.toolName,
		"text":   text,
		"labels": labels,
	})

	caller, err := c.connect(ctx)
	if err != nil {
		berr := newBackendError(BackendMCP, "", err, requestID)
		c.log.LogResponse(BackendMCP, requestID, time.Since(start), berr)
		return nil, berr
	}

	var scores map[string]float64
	err = c.call(ctx, caller, c.toolName, map[string]interface{}{
		"text":       text,
		"labels":     labels,
		"request_id": requestID,
	}, func(output string) error {
		var err error
		scores, err = parseLabelScores(output, labels)
		return err
	})
	if err != nil {
		berr := newBackendError(BackendMCP, "", err, requestID)
		c.log.LogResponse(BackendMCP, requestID, time.Since(start), berr)
		return nil, berr
	}

	c.log.LogResponse(BackendMCP, requestID, time.Since(start), nil)
	return scores, nil
}

// Rewrite asks the server's rewrite tool for a neutral version of text
func (c *MCPClassifier) Rewrite(ctx context.Context, text string, notes []string) (string, error) {
	requestID := generateRequestID()
	start := time.Now()
	c.log.LogRequest(BackendMCP, requestID, map[string]interface{}{
		"tool":  c.rewriteTool,
		"text":  text,
		"notes": notes,
	})

	caller, err := c.connect(ctx)
	if err != nil {
		berr := newBackendError(BackendMCP, "", err, requestID)
		c.log.LogResponse(BackendMCP, requestID, time.Since(start), berr)
		return "", berr
	}

	var rewritten string
	err = c.call(ctx, caller, c.rewriteTool, map[string]interface{}{
		"text":       text,
		"notes":      notes,
		"prompt":     rewritePrompt(text, notes),
		"request_id": requestID,
	}, func(output string) error {
		var err error
		rewritten, err = cleanRewrite(output)
		return err
	})
	if err != nil {
		berr := newBackendError(BackendMCP, "", err, requestID)
		c.log.LogResponse(BackendMCP, requestID, time.Since(start), berr)
		return "", berr
	}

	c.log.LogResponse(BackendMCP, requestID, time.Since(start), nil)
	return rewritten, nil
}

// call invokes tool with retries and hands its text output to parse
func (c *MCPClassifier) call(ctx context.Context, caller toolCaller, tool string, args map[string]interface{}, parse func(string) error) error {
	request := mcp.CallToolRequest{}
	request.Params.Name = tool
	request.Params.Arguments = args

	return withRetry(ctx, c.config.RetryCount, c.config.RetryBackoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := callContext(ctx, c.config.Timeout)
		defer cancel()

		result, err := caller.CallTool(callCtx, request)
		if err != nil {
			return err
		}

		output := toolOutput(result)
		if result.IsError {
			return fmt.Errorf("MCP tool returned an error: %s", output)
		}
		return parse(output)
	})
}

func rewriteToolName(config Config) string {
	if config.Intent.RewriteTool != "" {
		return config.Intent.RewriteTool
	}
	return "fairprop.fix.rewrite"
}

// toolOutput concatenates the text content of a tool result
func toolOutput(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var output string
	for _, content := range result.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			output += tc.Text
		case *mcp.TextContent:
			output += tc.Text
		}
	}
	if output != "" {
		return output
	}

	if raw, err := json.Marshal(result.Result); err == nil {
		return string(raw)
	}
	return ""
}

// Name returns the classifier name
func (c *MCPClassifier) Name() string {
	return fmt.Sprintf("mcp:%s", c.toolName)
}

// Close stops the server process if one was started
func (c *MCPClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stdio == nil {
		return nil
	}
	err := c.stdio.Close()
	c.stdio = nil
	c.caller = nil
	return err
}
