package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fairprop/fairprop-go/core"
)

var batchJurisdictions []string

var batchCmd = &cobra.Command{
	Use:   "batch FILE",
	Short: "Screen many listings from a JSON or JSONL file",
	Long: `Screen every request in FILE ("-" for stdin). The file is either a JSON array of
requests or one request object per line:

  {"text": "...", "jurisdictions": ["california"], "language": "en"}

Results are printed as JSON in input order. A failing entry does not stop the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringSliceVarP(&batchJurisdictions, "jurisdiction", "j", nil, "Jurisdictions added to requests that name none")
}

func runBatch(cmd *cobra.Command, args []string) error {
	var r io.Reader
	if args[0] == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open batch file: %w", err)
		}
		defer f.Close()
		r = f
	}

	reqs, err := decodeRequests(r)
	if err != nil {
		return err
	}
	for i := range reqs {
		if len(reqs[i].Jurisdictions) == 0 {
			reqs[i].Jurisdictions = batchJurisdictions
		}
	}

	auditor, err := newAuditor()
	if err != nil {
		return err
	}
	defer auditor.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := auditor.ScanBatch(ctx, reqs)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}

	logger.Info("Batch complete",
		zap.Int("scanned", result.TotalScanned),
		zap.Int("violations", result.TotalViolations),
		zap.Int("failed", result.TotalFailed))

	return writeJSON(cmd.OutOrStdout(), result)
}

// decodeRequests accepts a JSON array or JSON lines
func decodeRequests(r io.Reader) ([]core.ScanRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []core.ScanRequest
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, fmt.Errorf("failed to parse batch array: %w", err)
		}
		return reqs, nil
	}

	var reqs []core.ScanRequest
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var req core.ScanRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("failed to parse batch line %d: %w", line, err)
		}
		reqs = append(reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	return reqs, nil
}
