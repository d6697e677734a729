package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// FixUnavailableMessage is returned in place of a rewrite when no fixer backend is configured
const FixUnavailableMessage = "AI fixer not available. Please revise the listing manually using the suggestions."

// Fixer rewrites listing text into neutral language. Notes describe what was flagged.
type Fixer interface {
	Rewrite(ctx context.Context, text string, notes []string) (string, error)
	Name() string
}

// FixSuggestion is a proposed rewrite of a listing together with the reports before and after
type FixSuggestion struct {
	Original  string `json:"original"`
	Rewritten string `json:"rewritten,omitempty"`
	Fixer     string `json:"fixer"`

	// Message explains why no rewrite was produced
	Message string `json:"message,omitempty"`

	Report  *AuditReport `json:"report"`
	Revised *AuditReport `json:"revised,omitempty"`
}

// WithFixer installs a rewrite backend for SuggestFix
func WithFixer(f Fixer) EngineOption {
	return func(e *Engine) {
		e.fixer = f
	}
}

// SuggestFix screens req.Text and, when anything was flagged, asks the fixer for a neutral
// rewrite and screens that too. A missing or failing fixer yields a message, not an error.
func (e *Engine) SuggestFix(ctx context.Context, req ScanRequest) (*FixSuggestion, error) {
	report, err := e.Scan(ctx, req)
	if err != nil {
		return nil, err
	}

	fix := &FixSuggestion{Original: req.Text, Fixer: "none", Report: report}
	if len(report.FlaggedItems) == 0 {
		fix.Message = "No issues found; nothing to rewrite."
		return fix, nil
	}
	if e.fixer == nil {
		fix.Message = FixUnavailableMessage
		return fix, nil
	}
	fix.Fixer = e.fixer.Name()

	notes := fixNotes(report)
	rewritten, err := withDeadline(ctx, e.config.Intent.Timeout, func(fctx context.Context) (string, error) {
		return e.fixer.Rewrite(fctx, req.Text, notes)
	})
	if err == nil && strings.TrimSpace(rewritten) == "" {
		err = fmt.Errorf("fixer returned no text")
	}
	if err != nil {
		e.logger.Warn("rewrite failed", zap.String("fixer", fix.Fixer), zap.Error(err))
		fix.Message = fmt.Sprintf("AI fix failed: %v", err)
		return fix, nil
	}
	fix.Rewritten = strings.TrimSpace(rewritten)

	revisedReq := req
	revisedReq.Text = fix.Rewritten
	revised, err := e.Scan(ctx, revisedReq)
	if err != nil {
		// the rewrite stands even if it cannot be screened, e.g. it grew past the length limit
		e.logger.Warn("failed to screen rewrite", zap.Error(err))
		return fix, nil
	}
	fix.Revised = revised
	return fix, nil
}

// fixNotes lists each flagged phrase with its category and suggestion
func fixNotes(report *AuditReport) []string {
	notes := make([]string, 0, len(report.FlaggedItems))
	for _, item := range report.FlaggedItems {
		note := fmt.Sprintf("%q (%s)", item.FoundWord, item.Category)
		if item.Suggestion != "" {
			note += ": " + item.Suggestion
		}
		notes = append(notes, note)
	}
	return notes
}
