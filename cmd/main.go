package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fairprop/fairprop-go"
)

var (
	// Global flags
	verbose    bool
	configPath string
	rulesDir   string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fairprop",
	Short: "Screen real-estate advertising text for fair housing violations",
	Long: `fairprop checks listing text against federal, state, city and international
fair housing rules and reports a compliance score with every flagged phrase.

Rules come from the bundled library unless --rules points at a directory
containing a manifest.yaml.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a fairprop.yaml config file")
	rootCmd.PersistentFlags().StringVar(&rulesDir, "rules", "", "Rules directory (default: bundled rules)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(jurisdictionsCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(rulesCmd)
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (fairprop.Config, error) {
	cfg, err := fairprop.LoadConfig(configPath)
	if err != nil {
		return fairprop.Config{}, err
	}
	if rulesDir != "" {
		cfg.Rules.Dir = rulesDir
	}
	return cfg, nil
}

// newAuditor builds the screening service from flags and config
func newAuditor() (*fairprop.Auditor, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return fairprop.New(cfg, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
