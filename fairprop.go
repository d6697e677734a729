package fairprop

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fairprop/fairprop-go/core"
	"github.com/fairprop/fairprop-go/llm"
	"github.com/fairprop/fairprop-go/rules"
)

// RulesConfig says where the rule library comes from
type RulesConfig struct {
	// Dir is a directory holding manifest.yaml; empty uses the bundled library
	Dir string `yaml:"dir"`

	// Manifest overrides the manifest file name inside Dir
	Manifest string `yaml:"manifest"`

	// Watch reloads rules when files under Dir change
	Watch bool `yaml:"watch"`
}

// LoggingConfig controls the zap logger built by the CLI
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the full configuration of a screening service
type Config struct {
	Rules    RulesConfig       `yaml:"rules"`
	Engine   core.EngineConfig `yaml:"engine"`
	Backends llm.Config        `yaml:"backends"`
	Audit    core.AuditConfig  `yaml:"audit"`
	Logging  LoggingConfig     `yaml:"logging"`
}

// DefaultConfig returns a configuration that screens with the bundled rules and no model backends
func DefaultConfig() Config {
	return Config{
		Engine:   core.DefaultEngineConfig(),
		Backends: llm.DefaultConfig(),
		Audit:    core.DefaultAuditConfig(),
		Logging:  LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML config over the defaults and fills backend credentials from
// the environment. An empty path yields the defaults plus environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &core.ConfigError{Source: path, OriginalErr: err}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &core.ConfigError{Source: path, OriginalErr: fmt.Errorf("failed to parse config: %w", err)}
		}
	}

	llm.ApplyEnv(&cfg.Backends)
	if key := os.Getenv("FAIRPROP_AUDIT_KEY"); key != "" && cfg.Audit.SigningKey == "" {
		cfg.Audit.SigningKey = key
	}

	if err := cfg.Engine.Validate(); err != nil {
		return Config{}, &core.ConfigError{Source: path, OriginalErr: err}
	}
	return cfg, nil
}

// Auditor is a ready-to-use screening service: the engine plus the resources it owns
type Auditor struct {
	*core.Engine

	config  Config
	logger  *zap.Logger
	trail   *core.AuditTrail
	watcher *core.Watcher
	closers []func() error
}

// New wires a rule store, optional model layers and the audit trail into an Auditor
func New(cfg Config, logger *zap.Logger) (*Auditor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := newStore(cfg.Rules, logger)
	if err != nil {
		return nil, err
	}
	if _, err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	a := &Auditor{config: cfg, logger: logger}
	opts := []core.EngineOption{core.WithLogger(logger)}

	if cfg.Engine.Semantic.Enabled {
		embedder, err := llm.NewEmbedder(cfg.Backends, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure embedding backend: %w", err)
		}
		if embedder != nil {
			opts = append(opts, core.WithSemantic(core.NewSemanticLayer(embedder, cfg.Engine.Semantic, logger)))
		} else {
			logger.Warn("semantic layer enabled without an embedding provider; layer disabled")
		}
	}

	if cfg.Engine.Intent.Enabled {
		classifier, err := llm.NewClassifier(cfg.Backends, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure intent backend: %w", err)
		}
		if classifier != nil {
			opts = append(opts, core.WithIntent(core.NewIntentLayer(classifier, cfg.Engine.Intent, logger)))
			if f, ok := classifier.(core.Fixer); ok {
				opts = append(opts, core.WithFixer(f))
			}
			if c, ok := classifier.(interface{ Close() error }); ok {
				a.closers = append(a.closers, c.Close)
			}
		} else {
			logger.Warn("intent layer enabled without a classifier provider; layer disabled")
		}
	}

	if cfg.Audit.Enabled {
		trail, err := core.NewAuditTrail(cfg.Audit)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit trail: %w", err)
		}
		a.trail = trail
		a.closers = append(a.closers, trail.Close)
		opts = append(opts, core.WithAuditTrail(trail))
	}

	engine, err := core.NewEngine(store, cfg.Engine, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = engine

	return a, nil
}

func newStore(cfg RulesConfig, logger *zap.Logger) (*core.RuleStore, error) {
	opts := []core.StoreOption{core.WithStoreLogger(logger)}
	if cfg.Manifest != "" {
		opts = append(opts, core.WithManifestPath(cfg.Manifest))
	}

	if cfg.Dir == "" {
		return core.NewRuleStore(rules.FS, opts...), nil
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, &core.ConfigError{Source: cfg.Dir, OriginalErr: err}
	}
	if !info.IsDir() {
		return nil, &core.ConfigError{Source: cfg.Dir, OriginalErr: errors.New("rules path is not a directory")}
	}
	return core.NewRuleStoreFromDir(cfg.Dir, opts...), nil
}

// Watch reloads rules whenever files under the configured rules directory change, until
// ctx is done or Close is called. It is a no-op for the bundled library.
func (a *Auditor) Watch(ctx context.Context) error {
	if a.config.Rules.Dir == "" {
		return nil
	}
	if a.watcher != nil {
		return nil
	}

	w, err := core.NewWatcher(a.config.Rules.Dir, a.Engine, core.WithWatcherLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to watch rules: %w", err)
	}
	a.watcher = w
	return nil
}

// AuditTrail returns the trail scans are recorded in, or nil when auditing is disabled
func (a *Auditor) AuditTrail() *core.AuditTrail {
	return a.trail
}

// Close stops the watcher and releases backends and the audit trail
func (a *Auditor) Close() error {
	if a.watcher != nil {
		a.watcher.Stop()
		a.watcher = nil
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

var (
	defaultOnce    sync.Once
	defaultAuditor *Auditor
	defaultErr     error
)

// Default returns a shared Auditor built from LoadConfig("") on first use
func Default() (*Auditor, error) {
	defaultOnce.Do(func() {
		cfg, err := LoadConfig("")
		if err != nil {
			defaultErr = err
			return
		}
		defaultAuditor, defaultErr = New(cfg, nil)
	})
	return defaultAuditor, defaultErr
}

// Scan screens text against the bundled federal rules plus the given jurisdictions
func Scan(ctx context.Context, text string, jurisdictions ...string) (*core.AuditReport, error) {
	a, err := Default()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auditor: %w", err)
	}
	return a.Scan(ctx, core.ScanRequest{Text: text, Jurisdictions: jurisdictions})
}

// ScanBatch screens several texts with the shared Auditor
func ScanBatch(ctx context.Context, reqs []core.ScanRequest) (*core.BatchResult, error) {
	a, err := Default()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auditor: %w", err)
	}
	return a.ScanBatch(ctx, reqs)
}

// Reload re-reads the rules of the shared Auditor
func Reload() (core.ReloadResult, error) {
	a, err := Default()
	if err != nil {
		return core.ReloadResult{}, fmt.Errorf("failed to initialize auditor: %w", err)
	}
	return a.Reload()
}

// Highlight marks the flagged spans of a report in the text it was produced from
func Highlight(text string, report *core.AuditReport) string {
	return core.Highlight(text, report)
}

// BundledRules exposes the embedded rule library, e.g. to copy it out for editing
func BundledRules() fs.FS {
	return rules.FS
}
