package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fairprop/fairprop-go/core"
)

// GenAIEmbedder generates embeddings using Google's Gemini API
type GenAIEmbedder struct {
	apiKey   string
	model    string
	taskType string
	config   Config
	limiter  *RateLimiter
	log      *RequestLogger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGenAIEmbedder creates an embedder; the client is created on first use
func NewGenAIEmbedder(config Config, logger *zap.Logger) (*GenAIEmbedder, error) {
	if config.Embedding.APIKey == "" {
		return nil, newBackendError(BackendGenAI, ErrorCategoryConfig,
			fmt.Errorf("GenAI API key is required: %w", ErrBackendNotConfigured), "")
	}

	model := config.Embedding.Model
	if model == "" {
		model = "gemini-embedding-001"
	}
	taskType := config.Embedding.TaskType
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	return &GenAIEmbedder{
		apiKey:   config.Embedding.APIKey,
		model:    model,
		taskType: taskType,
		config:   config,
		limiter:  NewRateLimiter(config.RequestsPerMinute),
		log:      NewRequestLogger(logger, config.AuditLevel),
	}, nil
}

func (e *GenAIEmbedder) getClient(ctx context.Context) (*genai.Client, error) {
	e.once.Do(func() {
		e.client, e.clientErr = genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
			APIKey: e.apiKey,
		})
	})
	if e.clientErr != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", e.clientErr)
	}
	return e.client, nil
}

// EmbedBatch generates embeddings for multiple texts in one request
func (e *GenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	requestID := generateRequestID()
	start := time.Now()
	e.log.LogRequest(BackendGenAI, requestID, map[string]interface{}{
		"model": e.model,
		"texts": len(texts),
	})

	client, err := e.getClient(ctx)
	if err != nil {
		berr := newBackendError(BackendGenAI, ErrorCategoryConfig, err, requestID)
		e.log.LogResponse(BackendGenAI, requestID, time.Since(start), berr)
		return nil, berr
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var embeddings [][]float32
	err = withRetry(ctx, e.config.RetryCount, e.config.RetryBackoff, func(ctx context.Context) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := callContext(ctx, e.config.Timeout)
		defer cancel()

		result, err := client.Models.EmbedContent(callCtx, e.model, contents, &genai.EmbedContentConfig{
			TaskType: e.taskType,
		})
		if err != nil {
			return fmt.Errorf("GenAI batch embed failed: %w", err)
		}
		if len(result.Embeddings) != len(texts) {
			return fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
		}

		embeddings = make([][]float32, len(result.Embeddings))
		for i, emb := range result.Embeddings {
			embeddings[i] = emb.Values
		}
		return nil
	})
	if err != nil {
		berr := newBackendError(BackendGenAI, "", err, requestID)
		e.log.LogResponse(BackendGenAI, requestID, time.Since(start), berr)
		return nil, berr
	}

	e.log.LogResponse(BackendGenAI, requestID, time.Since(start), nil)
	return embeddings, nil
}

// Name returns the engine name
func (e *GenAIEmbedder) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}

// OllamaEmbedder generates embeddings using a local Ollama server
type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
	config   Config
	limiter  *RateLimiter
	log      *RequestLogger
}

// NewOllamaEmbedder creates an embedder for the Ollama endpoint in config
func NewOllamaEmbedder(config Config, logger *zap.Logger) *OllamaEmbedder {
	endpoint := config.Embedding.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	model := config.Embedding.Model
	if model == "" {
		model = "embeddinggemma"
	}

	return &OllamaEmbedder{
		endpoint: endpoint,
		model:    model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		config:  config,
		limiter: NewRateLimiter(config.RequestsPerMinute),
		log:     NewRequestLogger(logger, config.AuditLevel),
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// embed generates an embedding for a single text
func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}

	return result.Embedding, nil
}

// EmbedBatch embeds texts one request at a time; Ollama has no batch endpoint
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requestID := generateRequestID()
	start := time.Now()
	e.log.LogRequest(BackendOllama, requestID, map[string]interface{}{
		"model": e.model,
		"texts": len(texts),
	})

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		err := withRetry(ctx, e.config.RetryCount, e.config.RetryBackoff, func(ctx context.Context) error {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
			callCtx, cancel := callContext(ctx, e.config.Timeout)
			defer cancel()

			vec, err := e.embed(callCtx, text)
			if err != nil {
				return err
			}
			embeddings[i] = vec
			return nil
		})
		if err != nil {
			berr := newBackendError(BackendOllama, "", fmt.Errorf("failed to embed text %d: %w", i, err), requestID)
			e.log.LogResponse(BackendOllama, requestID, time.Since(start), berr)
			return nil, berr
		}
	}

	e.log.LogResponse(BackendOllama, requestID, time.Since(start), nil)
	return embeddings, nil
}

// Name returns the engine name
func (e *OllamaEmbedder) Name() string {
	return fmt.Sprintf("ollama:%s", e.model)
}

// NewEmbedder builds the embedder selected by config. It returns nil when no provider is set.
func NewEmbedder(config Config, logger *zap.Logger) (core.Embedder, error) {
	switch config.Embedding.Provider {
	case "", "none":
		return nil, nil
	case BackendGenAI, "gemini":
		e, err := NewGenAIEmbedder(config, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	case BackendOllama:
		return NewOllamaEmbedder(config, logger), nil
	default:
		return nil, newBackendError(config.Embedding.Provider, ErrorCategoryConfig,
			fmt.Errorf("unknown embedding provider %q", config.Embedding.Provider), "")
	}
}

func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
