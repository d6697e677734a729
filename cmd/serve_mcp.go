package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fairprop/fairprop-go"
	"github.com/fairprop/fairprop-go/core"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve listing screening as MCP tools over stdio",
	Long: `Run an MCP server on stdin/stdout exposing the tools scan_listing, reload_rules
and list_jurisdictions. Logs go to stderr. With --rules the directory is watched and
rules reload on change.`,
	RunE: runServeMCP,
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	auditor, err := newAuditor()
	if err != nil {
		return err
	}
	defer auditor.Close()

	if err := auditor.Watch(cmd.Context()); err != nil {
		logger.Warn("Rule watching disabled", zap.Error(err))
	}

	s := newMCPServer(auditor)
	logger.Info("Serving MCP over stdio",
		zap.Int("rules", auditor.Store().Count()),
		zap.Int("jurisdictions", len(auditor.Store().Jurisdictions())))

	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("MCP server stopped: %w", err)
	}
	return nil
}

// newMCPServer registers the screening tools on a new MCP server
func newMCPServer(auditor *fairprop.Auditor) *server.MCPServer {
	s := server.NewMCPServer(
		"fairprop",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	h := &toolHandlers{auditor: auditor}

	s.AddTool(mcp.NewTool("scan_listing",
		mcp.WithDescription("Screen real-estate listing text for fair housing violations and return the audit report as JSON"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Listing text to screen"),
		),
		mcp.WithString("jurisdictions",
			mcp.Description("Comma separated jurisdictions added to the federal rules, e.g. \"california,nyc\""),
		),
		mcp.WithString("language",
			mcp.Description("ISO 639-1 language code of the listing"),
		),
	), h.scanListing)

	s.AddTool(mcp.NewTool("suggest_fix",
		mcp.WithDescription("Screen listing text and, when anything is flagged, propose a compliant rewrite with its own report"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Listing text to rewrite"),
		),
		mcp.WithString("jurisdictions",
			mcp.Description("Comma separated jurisdictions added to the federal rules"),
		),
	), h.suggestFix)

	s.AddTool(mcp.NewTool("reload_rules",
		mcp.WithDescription("Reload the rule library from its source"),
	), h.reloadRules)

	s.AddTool(mcp.NewTool("list_jurisdictions",
		mcp.WithDescription("List the jurisdictions the rule library covers"),
	), h.listJurisdictions)

	return s
}

type toolHandlers struct {
	auditor *fairprop.Auditor
}

func (h *toolHandlers) scanListing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, _ := request.Params.Arguments["text"].(string)
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	language, _ := request.Params.Arguments["language"].(string)
	list, _ := request.Params.Arguments["jurisdictions"].(string)

	report, err := h.auditor.Scan(ctx, core.ScanRequest{
		Text:          text,
		Jurisdictions: splitList(list),
		Language:      language,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}
	return jsonResult(report)
}

func (h *toolHandlers) suggestFix(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, _ := request.Params.Arguments["text"].(string)
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("text is required"), nil
	}
	list, _ := request.Params.Arguments["jurisdictions"].(string)

	fix, err := h.auditor.SuggestFix(ctx, core.ScanRequest{Text: text, Jurisdictions: splitList(list)})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}
	return jsonResult(fix)
}

func (h *toolHandlers) reloadRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.auditor.Reload()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reload failed, previous rules kept: %v", err)), nil
	}
	return jsonResult(result)
}

func (h *toolHandlers) listJurisdictions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := h.auditor.Store()
	return jsonResult(map[string]interface{}{
		"jurisdictions": store.Jurisdictions(),
		"aliases":       store.Aliases(),
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
