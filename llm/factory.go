package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fairprop/fairprop-go/core"
)

var (
	_ core.Fixer = (*AzureClassifier)(nil)
	_ core.Fixer = (*MCPClassifier)(nil)
)

// NewClassifier builds the intent classifier selected by config. It returns nil when no
// provider is set. Both classifier backends also implement core.Fixer.
func NewClassifier(config Config, logger *zap.Logger) (core.Classifier, error) {
	switch config.Intent.Provider {
	case "", "none":
		return nil, nil
	case BackendAzure, "azure_openai":
		c, err := NewAzureClassifier(config, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendMCP:
		c, err := NewMCPClassifier(config, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, newBackendError(config.Intent.Provider, ErrorCategoryConfig,
			fmt.Errorf("unknown intent provider %q", config.Intent.Provider), "")
	}
}
