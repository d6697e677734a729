package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// generateRequestID creates a unique ID for request tracking
func generateRequestID() string {
	return uuid.NewString()
}

// withRetry calls fn until it succeeds, fails permanently, or attempts run out. The wait
// before attempt n doubles from backoff.
func withRetry(ctx context.Context, retries int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			wait := backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", retries+1, err)
}

// parseLabelScores extracts a label to score object from model output. The object may be
// wrapped in prose or a code fence. Scores for labels not asked about are dropped and the
// rest are clamped to [0,1].
func parseLabelScores(output string, labels []string) (map[string]float64, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("invalid classifier output: no JSON object")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(output[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid classifier output: %w", err)
	}

	// {"labels": [...], "scores": [...]} as returned by zero-shot pipelines
	if ls, ok := raw["labels"].([]interface{}); ok {
		if ss, ok := raw["scores"].([]interface{}); ok && len(ls) == len(ss) {
			flat := make(map[string]interface{}, len(ls))
			for i := range ls {
				if name, ok := ls[i].(string); ok {
					flat[name] = ss[i]
				}
			}
			raw = flat
		}
	}

	wanted := make(map[string]bool, len(labels))
	for _, l := range labels {
		wanted[strings.ToLower(l)] = true
	}

	scores := make(map[string]float64, len(labels))
	for k, v := range raw {
		label := strings.ToLower(strings.TrimSpace(k))
		if !wanted[label] {
			continue
		}
		f, ok := v.(float64)
		if !ok {
			continue
		}
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		scores[label] = f
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("invalid classifier output: no scores for requested labels")
	}
	return scores, nil
}

// classificationPrompt asks a chat model for a zero-shot label distribution
func classificationPrompt(text string, labels []string) string {
	var b strings.Builder
	b.WriteString("You review housing advertisements for fair housing compliance.\n")
	b.WriteString("Score how well each label describes the advertisement text below, from 0 to 1.\n")
	b.WriteString("Labels: ")
	b.WriteString(strings.Join(labels, ", "))
	b.WriteString("\nRespond with only a JSON object mapping each label to its score.\n\n")
	b.WriteString("Text:\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n")
	return b.String()
}

func rewritePrompt(text string, notes []string) string {
	var b strings.Builder
	b.WriteString("Rewrite the following real estate listing to comply with the US Fair Housing Act.\n")
	b.WriteString("Remove any language that implies a preference, limitation or discrimination based on race, color, ")
	b.WriteString("religion, sex, disability, familial status, national origin or source of income. ")
	b.WriteString("Keep the appealing tone and describe the property, not the people who should live there.\n")
	if len(notes) > 0 {
		b.WriteString("Flagged phrases:\n")
		for _, note := range notes {
			b.WriteString("- ")
			b.WriteString(note)
			b.WriteString("\n")
		}
	}
	b.WriteString("Respond with only the rewritten listing.\n\n")
	b.WriteString("Listing:\n\"\"\"\n")
	b.WriteString(text)
	b.WriteString("\n\"\"\"\n")
	return b.String()
}

// cleanRewrite strips code fences and quoting a model may wrap its answer in
func cleanRewrite(output string) (string, error) {
	out := strings.TrimSpace(output)
	if strings.HasPrefix(out, "```") {
		out = strings.TrimPrefix(out, "```")
		if nl := strings.IndexByte(out, '\n'); nl >= 0 {
			out = out[nl+1:]
		}
		out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	}
	out = strings.TrimSpace(out)
	if len(out) >= 2 && out[0] == '"' && out[len(out)-1] == '"' {
		out = strings.TrimSpace(out[1 : len(out)-1])
	}
	if out == "" {
		return "", fmt.Errorf("model returned an empty rewrite")
	}
	return out, nil
}
