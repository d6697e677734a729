package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fairprop/fairprop-go/utils"
)

// ScanRequest is one text to screen
type ScanRequest struct {
	Text          string   `json:"text"`
	Jurisdictions []string `json:"jurisdictions,omitempty"`
	Language      string   `json:"language,omitempty"`

	// NoCache bypasses the report cache for this request
	NoCache bool `json:"no_cache,omitempty"`

	// UserID is recorded in the audit trail when one is configured
	UserID string `json:"user_id,omitempty"`
}

// BatchItem is the outcome of one batch entry; exactly one of Report and Error is set
type BatchItem struct {
	Report *AuditReport `json:"report,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// BatchResult holds batch outcomes in input order plus totals
type BatchResult struct {
	Results         []BatchItem `json:"results"`
	TotalScanned    int         `json:"total_scanned"`
	TotalViolations int         `json:"total_violations"`
	TotalFlagged    int         `json:"total_flagged"`
	TotalFailed     int         `json:"total_failed"`
}

// EngineStats are usage counters since the engine was created
type EngineStats struct {
	Scans         uint64     `json:"scans"`
	Unsafe        uint64     `json:"unsafe"`
	Flagged       uint64     `json:"flagged"`
	DegradedScans uint64     `json:"degraded_scans"`
	Reloads       uint64     `json:"reloads"`
	Rules         int        `json:"rules"`
	RuleVersion   uint64     `json:"rule_version"`
	Cache         CacheStats `json:"cache"`
}

// HealthInfo summarises what the engine is able to do right now
type HealthInfo struct {
	Status        string `json:"status"`
	Rules         int    `json:"rules"`
	RuleVersion   uint64 `json:"rule_version"`
	Jurisdictions int    `json:"jurisdictions"`
	Semantic      string `json:"semantic"`
	Intent        string `json:"intent"`
	Fixer         string `json:"fixer"`
	Error         string `json:"error,omitempty"`
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSemantic installs a semantic layer
func WithSemantic(s SemanticMatcher) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.semantic = s
		}
	}
}

// WithIntent installs an intent layer
func WithIntent(i IntentClassifier) EngineOption {
	return func(e *Engine) {
		if i != nil {
			e.intent = i
		}
	}
}

// WithAuditTrail records every completed scan
func WithAuditTrail(trail *AuditTrail) EngineOption {
	return func(e *Engine) {
		e.audit = trail
	}
}

// WithClock overrides the time source stamped into reports
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine screens advertising text against the rule library
type Engine struct {
	store      *RuleStore
	config     EngineConfig
	keyword    *KeywordMatcher
	semantic   SemanticMatcher
	intent     IntentClassifier
	fixer      Fixer
	aggregator *Aggregator
	cache      *ResultCache
	audit      *AuditTrail
	logger     *zap.Logger
	now        func() time.Time

	flights singleflight.Group

	scans    atomic.Uint64
	unsafe   atomic.Uint64
	flagged  atomic.Uint64
	degraded atomic.Uint64
	reloads  atomic.Uint64
}

// NewEngine wires the layers around store. Layers not supplied through options are disabled.
func NewEngine(store *RuleStore, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, &ConfigError{Source: "engine", OriginalErr: fmt.Errorf("rule store is required")}
	}
	if err := config.Validate(); err != nil {
		return nil, &ConfigError{Source: "engine", OriginalErr: err}
	}

	e := &Engine{
		store:      store,
		config:     config,
		keyword:    NewKeywordMatcher(config.Keyword),
		semantic:   NullSemantic{},
		intent:     NullIntent{},
		aggregator: NewAggregator(config.Scoring),
		logger:     zap.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if config.Cache.Enabled {
		e.cache = NewResultCache(config.Cache.Size)
	}

	store.OnReload(func(r ReloadResult) {
		e.reloads.Add(1)
		if e.cache != nil {
			e.cache.InvalidateAll()
		}
		e.semantic.Reset()
		e.logger.Info("report cache invalidated after reload",
			zap.Int("old_count", r.OldCount),
			zap.Int("new_count", r.NewCount))
	})

	return e, nil
}

// Store returns the rule store behind the engine
func (e *Engine) Store() *RuleStore {
	return e.store
}

func (e *Engine) validate(req ScanRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return newValidationError("text", "must not be empty")
	}
	if len(req.Text) > e.config.Limits.MaxTextLength {
		return newValidationError("text", "length %d exceeds maximum of %d bytes", len(req.Text), e.config.Limits.MaxTextLength)
	}
	return nil
}

// Scan screens one text. Identical concurrent requests share a single evaluation; each
// caller can still give up on its own context without affecting the others.
func (e *Engine) Scan(ctx context.Context, req ScanRequest) (*AuditReport, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	rs, err := e.store.Resolve(req.Jurisdictions, req.Language)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules: %w", err)
	}

	var report *AuditReport
	if e.cache == nil || req.NoCache {
		report = e.evaluate(ctx, req.Text, rs)
	} else {
		report, err = e.cachedEvaluate(ctx, req.Text, rs)
		if err != nil {
			return nil, err
		}
	}

	e.scans.Add(1)
	e.flagged.Add(uint64(len(report.FlaggedItems)))
	if !report.IsSafe {
		e.unsafe.Add(1)
	}

	if e.audit != nil {
		if _, err := e.audit.Record(req.UserID, req.Text, report); err != nil {
			e.logger.Warn("failed to record audit entry", zap.Error(err))
		}
	}

	return report, nil
}

func (e *Engine) cacheKey(text string, rs *RuleSet) string {
	keys := append([]string{}, rs.Jurisdictions...)
	for _, u := range rs.Unknown {
		keys = append(keys, "?"+u)
	}
	return CacheKey(text, keys, rs.Language, rs.Version)
}

func (e *Engine) cachedEvaluate(ctx context.Context, text string, rs *RuleSet) (*AuditReport, error) {
	key := e.cacheKey(text, rs)
	if report, ok := e.cache.Get(key); ok {
		return report, nil
	}

	ch := e.flights.DoChan(key, func() (interface{}, error) {
		report := e.evaluate(context.WithoutCancel(ctx), text, rs)
		e.cache.Put(key, report)
		return report, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val.(*AuditReport).Clone(), nil
	}
}

// evaluate runs every layer and aggregates. Optional layers that fail are recorded as
// degraded and contribute nothing.
func (e *Engine) evaluate(ctx context.Context, text string, rs *RuleSet) *AuditReport {
	meta := ReportMetadata{
		Jurisdictions:        rs.Jurisdictions,
		UnknownJurisdictions: rs.Unknown,
		Language:             rs.Language,
		RuleVersion:          rs.Version,
		RulesEvaluated:       rs.Len(),
		Layers:               []utils.Layer{utils.LayerKeyword},
	}
	if meta.Jurisdictions == nil {
		meta.Jurisdictions = []string{}
	}
	if e.config.Keyword.EnableFuzzy {
		meta.Layers = append(meta.Layers, utils.LayerFuzzy)
	}

	matches := e.keyword.Match(text, rs)

	degrade := func(layer utils.Layer, err error) {
		meta.Degraded = append(meta.Degraded, DegradedLayer{Layer: layer, Reason: err.Error()})
		e.logger.Warn("layer degraded", zap.String("layer", string(layer)), zap.Error(err))
	}

	var sem SemanticResult
	if e.semantic.Enabled() {
		prior := matches[:len(matches):len(matches)]
		res, err := withDeadline(ctx, e.config.Semantic.Timeout, func(sctx context.Context) (SemanticResult, error) {
			return e.semantic.Match(sctx, text, rs, prior)
		})
		if err != nil {
			degrade(utils.LayerSemantic, err)
		} else {
			sem = res
			matches = append(matches, res.Matches...)
			meta.Layers = append(meta.Layers, utils.LayerSemantic)
		}
	}

	if e.intent.Enabled() {
		prior, irs := matches[:len(matches):len(matches)], rs
		res, err := withDeadline(ctx, e.config.Intent.Timeout, func(ictx context.Context) (IntentResult, error) {
			return e.intent.Classify(ictx, text, irs, prior, sem)
		})
		if err != nil {
			degrade(utils.LayerIntent, err)
		} else {
			matches = append(matches, res.Matches...)
			rs = rs.WithExtra(res.Synthetic...)
			meta.Layers = append(meta.Layers, utils.LayerIntent)
		}
	}

	if len(meta.Degraded) > 0 {
		e.degraded.Add(1)
	}

	meta.ScannedAt = e.now()
	return e.aggregator.Aggregate(matches, rs, meta)
}

// withDeadline runs fn under a timeout and stops waiting once it expires, even when fn
// ignores its context. A late result is dropped.
func withDeadline[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := fn(lctx)
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-lctx.Done():
		var zero T
		return zero, lctx.Err()
	}
}

// ScanBatch screens every request with bounded concurrency. Results keep input order and
// a failing item does not fail the batch.
func (e *Engine) ScanBatch(ctx context.Context, reqs []ScanRequest) (*BatchResult, error) {
	if len(reqs) == 0 {
		return nil, newValidationError("batch", "must contain at least one item")
	}
	if limit := e.config.Limits.MaxBatchSize; limit > 0 && len(reqs) > limit {
		return nil, newValidationError("batch", "size %d exceeds maximum of %d", len(reqs), limit)
	}

	result := &BatchResult{Results: make([]BatchItem, len(reqs))}

	var g errgroup.Group
	if n := e.config.Limits.BatchConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i := range reqs {
		g.Go(func() error {
			report, err := e.Scan(ctx, reqs[i])
			if err != nil {
				result.Results[i] = BatchItem{Error: err.Error()}
				return nil
			}
			result.Results[i] = BatchItem{Report: report}
			return nil
		})
	}
	_ = g.Wait()

	result.TotalScanned = len(reqs)
	for _, item := range result.Results {
		if item.Report == nil {
			result.TotalFailed++
			continue
		}
		result.TotalFlagged += len(item.Report.FlaggedItems)
		if !item.Report.IsSafe {
			result.TotalViolations++
		}
	}

	return result, nil
}

// Reload re-reads the rule library; the cache is invalidated through the store hook
func (e *Engine) Reload() (ReloadResult, error) {
	return e.store.Reload()
}

// Stats returns usage counters
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		Scans:         e.scans.Load(),
		Unsafe:        e.unsafe.Load(),
		Flagged:       e.flagged.Load(),
		DegradedScans: e.degraded.Load(),
		Reloads:       e.reloads.Load(),
		Rules:         e.store.Count(),
		RuleVersion:   e.store.Version(),
	}
	if e.cache != nil {
		stats.Cache = e.cache.Stats()
	}
	return stats
}

// Health reports whether rules are loaded and which optional layers are active
func (e *Engine) Health() HealthInfo {
	info := HealthInfo{
		Status:   "ok",
		Semantic: e.semantic.Name(),
		Intent:   e.intent.Name(),
		Fixer:    "none",
	}
	if e.fixer != nil {
		info.Fixer = e.fixer.Name()
	}
	if _, err := e.store.Load(); err != nil {
		info.Status = "unavailable"
		info.Error = err.Error()
		return info
	}
	info.Rules = e.store.Count()
	info.RuleVersion = e.store.Version()
	info.Jurisdictions = len(e.store.Jurisdictions())
	return info
}
