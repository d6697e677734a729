package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"go.uber.org/zap"
)

type chatCompleter interface {
	GetChatCompletions(ctx context.Context, body azopenai.ChatCompletionsOptions, options *azopenai.GetChatCompletionsOptions) (azopenai.GetChatCompletionsResponse, error)
}

// AzureClassifier scores spans against intent labels with an Azure OpenAI chat deployment
type AzureClassifier struct {
	client       chatCompleter
	deploymentID string
	config       Config
	limiter      *RateLimiter
	log          *RequestLogger
}

// NewAzureClassifier creates a classifier using the endpoint, key and deployment in config
func NewAzureClassifier(config Config, logger *zap.Logger) (*AzureClassifier, error) {
	ic := config.Intent
	if ic.Endpoint == "" || ic.APIKey == "" || ic.Deployment == "" {
		return nil, newBackendError(BackendAzure, ErrorCategoryConfig,
			fmt.Errorf("endpoint, api key and deployment are required: %w", ErrBackendNotConfigured), "")
	}

	keyCredential := azcore.NewKeyCredential(ic.APIKey)
	client, err := azopenai.NewClientWithKeyCredential(ic.Endpoint, keyCredential, nil)
	if err != nil {
		return nil, newBackendError(BackendAzure, ErrorCategoryConfig,
			fmt.Errorf("error creating Azure OpenAI client: %w", err), "")
	}

	return newAzureClassifier(client, ic.Deployment, config, logger), nil
}

func newAzureClassifier(client chatCompleter, deploymentID string, config Config, logger *zap.Logger) *AzureClassifier {
	return &AzureClassifier{
		client:       client,
		deploymentID: deploymentID,
		config:       config,
		limiter:      NewRateLimiter(config.RequestsPerMinute),
		log:          NewRequestLogger(logger, config.AuditLevel),
	}
}

// Classify returns a score per label for text
func (c *AzureClassifier) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	requestID := generateRequestID()
	start := time.Now()
	c.log.LogRequest(BackendAzure, requestID, map[string]interface{}{
		"deployment": c.deploymentID,
		"text":       text,
		"labels":     labels,
	})

	var scores map[string]float64
	err := c.complete(ctx, classificationPrompt(text, labels), func(content string) error {
		var err error
		scores, err = parseLabelScores(content, labels)
		return err
	})
	if err != nil {
		berr := newBackendError(BackendAzure, "", err, requestID)
		c.log.LogResponse(BackendAzure, requestID, time.Since(start), berr)
		return nil, berr
	}

	c.log.LogResponse(BackendAzure, requestID, time.Since(start), nil)
	return scores, nil
}

// Rewrite asks the deployment for a neutral version of text
func (c *AzureClassifier) Rewrite(ctx context.Context, text string, notes []string) (string, error) {
	requestID := generateRequestID()
	start := time.Now()
	c.log.LogRequest(BackendAzure, requestID, map[string]interface{}{
		"deployment": c.deploymentID,
		"operation":  "rewrite",
		"text":       text,
		"notes":      notes,
	})

	var rewritten string
	err := c.complete(ctx, rewritePrompt(text, notes), func(content string) error {
		var err error
		rewritten, err = cleanRewrite(content)
		return err
	})
	if err != nil {
		berr := newBackendError(BackendAzure, "", err, requestID)
		c.log.LogResponse(BackendAzure, requestID, time.Since(start), berr)
		return "", berr
	}

	c.log.LogResponse(BackendAzure, requestID, time.Since(start), nil)
	return rewritten, nil
}

// complete sends prompt as a single user message and hands the reply to parse, retrying both
func (c *AzureClassifier) complete(ctx context.Context, prompt string, parse func(string) error) error {
	return withRetry(ctx, c.config.RetryCount, c.config.RetryBackoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := callContext(ctx, c.config.Timeout)
		defer cancel()

		resp, err := c.client.GetChatCompletions(
			callCtx,
			azopenai.ChatCompletionsOptions{
				DeploymentName: to.Ptr(c.deploymentID),
				Messages: []azopenai.ChatRequestMessageClassification{
					&azopenai.ChatRequestUserMessage{
						Content: azopenai.NewChatRequestUserMessageContent(prompt),
					},
				},
				Temperature: to.Ptr[float32](0),
			},
			nil,
		)
		if err != nil {
			return err
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
			return fmt.Errorf("no completion received from model")
		}
		return parse(*resp.Choices[0].Message.Content)
	})
}

// Name returns the classifier name
func (c *AzureClassifier) Name() string {
	return fmt.Sprintf("azure:%s", c.deploymentID)
}
