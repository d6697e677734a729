package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fairprop/fairprop-go"
	"github.com/fairprop/fairprop-go/core"
)

var (
	scanFile          string
	scanJurisdictions []string
	scanLanguage      string
	scanNoCache       bool
	scanJSON          bool
	scanHighlight     bool
	scanUser          string
	scanFailOnUnsafe  bool
	scanFix           bool
)

// errUnsafe makes the process exit non-zero without printing a usage error
var errUnsafe = errors.New("listing is not compliant")

var scanCmd = &cobra.Command{
	Use:   "scan [text]",
	Short: "Screen one listing",
	Long: `Screen listing text read from the arguments, --file, or stdin.

Federal rules always apply; add state, city or country rules with -j.`,
	Example: `  fairprop scan "Perfect for young professionals"
  fairprop scan -j california "No vouchers or programs accepted"
  cat listing.txt | fairprop scan --json -j nyc
  fairprop scan --fix "Adults only, no kids"`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanFile, "file", "f", "", "Read listing text from a file")
	scanCmd.Flags().StringSliceVarP(&scanJurisdictions, "jurisdiction", "j", nil, "Jurisdictions to screen against (repeatable)")
	scanCmd.Flags().StringVar(&scanLanguage, "lang", "", "Listing language as an ISO 639-1 code")
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "Bypass the report cache")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the report as JSON")
	scanCmd.Flags().BoolVar(&scanHighlight, "highlight", false, "Print the text with flagged phrases marked")
	scanCmd.Flags().StringVar(&scanUser, "user", "", "User id recorded in the audit trail")
	scanCmd.Flags().BoolVar(&scanFailOnUnsafe, "fail-on-unsafe", false, "Exit non-zero when the listing is not safe")
	scanCmd.Flags().BoolVar(&scanFix, "fix", false, "Suggest a compliant rewrite using the configured model backend")
}

func runScan(cmd *cobra.Command, args []string) error {
	text, err := readListing(cmd, args)
	if err != nil {
		return err
	}

	auditor, err := newAuditor()
	if err != nil {
		return err
	}
	defer auditor.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	req := core.ScanRequest{
		Text:          text,
		Jurisdictions: scanJurisdictions,
		Language:      scanLanguage,
		NoCache:       scanNoCache,
		UserID:        scanUser,
	}

	if scanFix {
		return runFix(ctx, cmd, auditor, req)
	}

	report, err := auditor.Scan(ctx, req)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	logger.Debug("Scan complete",
		zap.Int("score", report.Score),
		zap.Bool("safe", report.IsSafe),
		zap.Int("flagged", len(report.FlaggedItems)))

	out := cmd.OutOrStdout()
	if scanJSON {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}
	if scanHighlight {
		fmt.Fprintln(out)
		fmt.Fprintln(out, fairprop.Highlight(text, report))
	}

	if scanFailOnUnsafe && !report.IsSafe {
		return errUnsafe
	}
	return nil
}

func runFix(ctx context.Context, cmd *cobra.Command, auditor *fairprop.Auditor, req core.ScanRequest) error {
	fix, err := auditor.SuggestFix(ctx, req)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	logger.Debug("Fix suggestion complete",
		zap.String("fixer", fix.Fixer),
		zap.Bool("rewritten", fix.Rewritten != ""))

	out := cmd.OutOrStdout()
	if scanJSON {
		if err := writeJSON(out, fix); err != nil {
			return err
		}
	} else {
		printFix(out, fix)
	}

	if scanFailOnUnsafe && !fix.Report.IsSafe {
		return errUnsafe
	}
	return nil
}

func printFix(w io.Writer, fix *core.FixSuggestion) {
	printReport(w, fix.Report)
	fmt.Fprintln(w)
	if fix.Rewritten == "" {
		fmt.Fprintln(w, fix.Message)
		return
	}

	fmt.Fprintf(w, "Suggested rewrite (%s):\n%s\n", fix.Fixer, fix.Rewritten)
	if fix.Revised != nil {
		status := "SAFE"
		if !fix.Revised.IsSafe {
			status = "UNSAFE"
		}
		fmt.Fprintf(w, "Rewrite score: %d/100 (%s)\n", fix.Revised.Score, status)
	}
}

func readListing(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case scanFile != "":
		data, err := os.ReadFile(scanFile)
		if err != nil {
			return "", fmt.Errorf("failed to read listing: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
}

func printReport(w io.Writer, report *core.AuditReport) {
	status := "SAFE"
	if !report.IsSafe {
		status = "UNSAFE"
	}
	fmt.Fprintf(w, "Score: %d/100 (%s)\n", report.Score, status)
	fmt.Fprintf(w, "Jurisdictions: %s\n", strings.Join(report.Metadata.Jurisdictions, ", "))
	if len(report.Metadata.UnknownJurisdictions) > 0 {
		fmt.Fprintf(w, "Unknown jurisdictions ignored: %s\n", strings.Join(report.Metadata.UnknownJurisdictions, ", "))
	}
	for _, d := range report.Metadata.Degraded {
		fmt.Fprintf(w, "Degraded: %s layer unavailable (%s)\n", d.Layer, d.Reason)
	}

	if len(report.FlaggedItems) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return
	}

	fmt.Fprintf(w, "\n%d issue(s):\n", len(report.FlaggedItems))
	for _, item := range report.FlaggedItems {
		fmt.Fprintf(w, "  [%s] %s  %s\n", item.Severity, item.ID, item.Category)
		fmt.Fprintf(w, "      found %q via %s (%.2f)\n", item.FoundWord, item.Layer, item.Confidence)
		if item.Suggestion != "" {
			fmt.Fprintf(w, "      suggestion: %s\n", item.Suggestion)
		}
		if item.LegalBasis != "" {
			fmt.Fprintf(w, "      basis: %s\n", item.LegalBasis)
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
