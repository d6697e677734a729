package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLabels = []string{"exclusionary", "restrictive", "welcoming"}

func TestParseLabelScores(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    map[string]float64
		wantErr bool
	}{
		{
			name:   "plain object",
			output: `{"exclusionary": 0.8, "restrictive": 0.1, "welcoming": 0.1}`,
			want:   map[string]float64{"exclusionary": 0.8, "restrictive": 0.1, "welcoming": 0.1},
		},
		{
			name:   "code fence and prose",
			output: "Here you go:\n```json\n{\"Welcoming\": 0.95}\n```",
			want:   map[string]float64{"welcoming": 0.95},
		},
		{
			name:   "pipeline shape",
			output: `{"sequence": "x", "labels": ["restrictive", "welcoming"], "scores": [0.7, 0.3]}`,
			want:   map[string]float64{"restrictive": 0.7, "welcoming": 0.3},
		},
		{
			name:   "clamped and filtered",
			output: `{"exclusionary": 1.4, "welcoming": -0.2, "neutral": 0.5, "restrictive": "high"}`,
			want:   map[string]float64{"exclusionary": 1, "welcoming": 0},
		},
		{name: "no object", output: "I cannot help with that", wantErr: true},
		{name: "broken json", output: `{"exclusionary": }`, wantErr: true},
		{name: "no requested labels", output: `{"neutral": 0.9}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLabelScores(tt.output, testLabels)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), 1, time.Millisecond, func(context.Context) error {
			attempts++
			return errors.New("service overloaded")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed after 2 attempts")
		assert.Equal(t, 2, attempts)
	})

	t.Run("permanent failure stops immediately", func(t *testing.T) {
		attempts := 0
		err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
			attempts++
			return errors.New("401 unauthorized")
		})
		assert.EqualError(t, err, "401 unauthorized")
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := withRetry(ctx, 3, time.Hour, func(context.Context) error {
			cancel()
			return errors.New("connection refused")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{context.DeadlineExceeded, ErrorCategoryTimeout},
		{ErrBackendNotConfigured, ErrorCategoryConfig},
		{errors.New("401 Unauthorized"), ErrorCategoryAuthentication},
		{errors.New("access denied for deployment"), ErrorCategoryAuthorization},
		{errors.New("429 Too Many Requests"), ErrorCategoryRateLimit},
		{errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{errors.New("invalid classifier output"), ErrorCategoryValidation},
		{errors.New("something odd"), ErrorCategorySystem},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, categorizeError(tt.err))
		})
	}

	assert.True(t, retryable(errors.New("429 Too Many Requests")))
	assert.False(t, retryable(errors.New("invalid request")))
	assert.False(t, retryable(context.Canceled))
}

func TestBackendError(t *testing.T) {
	err := newBackendError(BackendMCP, "", errors.New("dial tcp: connection refused"), "req-1")
	assert.Equal(t, ErrorCategoryNetwork, err.Category)
	assert.Equal(t, "[network] mcp: dial tcp: connection refused (request: req-1)", err.Error())

	wrapped := newBackendError(BackendAzure, ErrorCategoryConfig, ErrBackendNotConfigured, "")
	assert.ErrorIs(t, wrapped, ErrBackendNotConfigured)
	assert.Equal(t, "[config] azure: backend not configured", wrapped.Error())
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestClassificationPrompt(t *testing.T) {
	prompt := classificationPrompt("Adults only", testLabels)
	assert.Contains(t, prompt, "Labels: exclusionary, restrictive, welcoming")
	assert.Contains(t, prompt, "\"\"\"\nAdults only\n\"\"\"")
}

func TestRateLimiter(t *testing.T) {
	var disabled *RateLimiter = NewRateLimiter(0)
	assert.Nil(t, disabled)
	assert.NoError(t, disabled.Wait(context.Background()))

	limiter := NewRateLimiter(60)
	short, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	for i := 0; i < 6; i++ {
		assert.NoError(t, limiter.Wait(short), "call %d within burst", i)
	}
	// the next token is a second away, past the deadline
	assert.Error(t, limiter.Wait(short))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := limiter.Wait(ctx)
	var berr *BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, ErrorCategoryRateLimit, berr.Category)
}

func TestRewritePrompt(t *testing.T) {
	prompt := rewritePrompt("No kids please", []string{`"No kids" (Familial Status)`})
	assert.Contains(t, prompt, "Fair Housing Act")
	assert.Contains(t, prompt, `- "No kids" (Familial Status)`)
	assert.Contains(t, prompt, "No kids please")
	assert.NotContains(t, rewritePrompt("x", nil), "Flagged phrases")
}

func TestCleanRewrite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sunny loft.", "Sunny loft."},
		{"  \"Sunny loft.\"\n", "Sunny loft."},
		{"```\nSunny loft.\n```", "Sunny loft."},
		{"```markdown\nSunny \"loft\".\n```", `Sunny "loft".`},
		{`A "cozy" nook`, `A "cozy" nook`},
	}
	for _, tt := range tests {
		got, err := cleanRewrite(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := cleanRewrite(" ``` ``` ")
	assert.Error(t, err)
}
