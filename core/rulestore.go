package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultManifest is the manifest file name looked up at the root of a rule source
const DefaultManifest = "manifest.yaml"

// Manifest describes where the rule files of every jurisdiction live
type Manifest struct {
	// Version of the rule library
	Version string `yaml:"version"`

	// Files always loaded; the federal baseline
	Base []string `yaml:"base"`

	// Canonical jurisdiction name to its overlay files
	Jurisdictions map[string][]string `yaml:"jurisdictions"`

	// Alternative spellings mapped to canonical names
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

// LoadResult summarises what a load accepted and rejected
type LoadResult struct {
	Version  uint64
	Rules    int
	Files    int
	Warnings []string
	Hash     string
}

// ReloadResult reports rule counts before and after a reload
type ReloadResult struct {
	OldCount int `json:"old_count"`
	NewCount int `json:"new_count"`
}

// ruleSnapshot is an immutable, fully indexed generation of the rule library
type ruleSnapshot struct {
	version   uint64
	manifest  Manifest
	rules     []Rule
	index     map[string]int
	base      []int
	overlays  map[string][]int
	aliases   map[string]string
	automaton *phraseAutomaton
	loadedAt  time.Time
	result    LoadResult
}

// StoreOption configures a RuleStore
type StoreOption func(*RuleStore)

// WithStoreLogger sets the logger used for load warnings
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *RuleStore) {
		s.logger = logger
	}
}

// WithManifestPath overrides the manifest location inside the rule source
func WithManifestPath(name string) StoreOption {
	return func(s *RuleStore) {
		s.manifestPath = name
	}
}

// RuleStore loads jurisdiction rule files and serves immutable rule snapshots
type RuleStore struct {
	fsys         fs.FS
	manifestPath string
	logger       *zap.Logger

	current atomic.Pointer[ruleSnapshot]
	version atomic.Uint64

	once    sync.Once
	initErr error

	reloadMu sync.Mutex
	hooksMu  sync.RWMutex
	hooks    []func(ReloadResult)
}

// NewRuleStore creates a store over fsys. Nothing is read until first use.
func NewRuleStore(fsys fs.FS, opts ...StoreOption) *RuleStore {
	s := &RuleStore{
		fsys:         fsys,
		manifestPath: DefaultManifest,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRuleStoreFromDir creates a store reading rule files from a directory on disk
func NewRuleStoreFromDir(dir string, opts ...StoreOption) *RuleStore {
	return NewRuleStore(os.DirFS(dir), opts...)
}

// Load forces the initial load and reports its outcome. Calling it more than once
// returns the result of the first load.
func (s *RuleStore) Load() (LoadResult, error) {
	snap, err := s.snapshot()
	if err != nil {
		return LoadResult{}, err
	}
	return snap.result, nil
}

func (s *RuleStore) snapshot() (*ruleSnapshot, error) {
	s.once.Do(func() {
		snap, err := s.build()
		if err != nil {
			s.initErr = err
			return
		}
		s.current.Store(snap)
	})

	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	if s.initErr != nil {
		return nil, s.initErr
	}
	return nil, &ConfigError{Source: s.manifestPath, OriginalErr: errors.New("no rules loaded")}
}

// Reload rebuilds the rule library off to the side and swaps it in. On failure the
// previous snapshot keeps serving.
func (s *RuleStore) Reload() (ReloadResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	// make sure a lazy first load cannot race the swap below
	s.once.Do(func() {})

	old := s.current.Load()
	oldCount := 0
	if old != nil {
		oldCount = len(old.rules)
	}

	snap, err := s.build()
	if err != nil {
		s.logger.Warn("rule reload failed, keeping previous rules",
			zap.Int("rules", oldCount), zap.Error(err))
		return ReloadResult{OldCount: oldCount, NewCount: oldCount}, err
	}
	s.current.Store(snap)

	result := ReloadResult{OldCount: oldCount, NewCount: len(snap.rules)}
	s.logger.Info("rules reloaded",
		zap.Int("old_count", result.OldCount),
		zap.Int("new_count", result.NewCount),
		zap.Uint64("version", snap.version))

	s.hooksMu.RLock()
	hooks := append([]func(ReloadResult){}, s.hooks...)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(result)
	}

	return result, nil
}

// OnReload registers fn to run after every successful reload
func (s *RuleStore) OnReload(fn func(ReloadResult)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Count returns the number of rules in the current snapshot
func (s *RuleStore) Count() int {
	snap, err := s.snapshot()
	if err != nil {
		return 0
	}
	return len(snap.rules)
}

// Version returns the generation number of the current snapshot
func (s *RuleStore) Version() uint64 {
	snap, err := s.snapshot()
	if err != nil {
		return 0
	}
	return snap.version
}

// Jurisdictions lists the canonical jurisdiction names known to the current snapshot
func (s *RuleStore) Jurisdictions() []string {
	snap, err := s.snapshot()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(snap.overlays))
	for name := range snap.overlays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns a copy of the alias table of the current snapshot
func (s *RuleStore) Aliases() map[string]string {
	snap, err := s.snapshot()
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(snap.aliases))
	for k, v := range snap.aliases {
		out[k] = v
	}
	return out
}

// Resolve builds the effective rule set for the requested jurisdictions: the base rules
// plus every known overlay. Unknown names are ignored and reported on the result.
func (s *RuleStore) Resolve(jurisdictions []string, language string) (*RuleSet, error) {
	snap, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.resolve(jurisdictions, language), nil
}

// CanonicalJurisdiction normalises a user supplied jurisdiction name
func CanonicalJurisdiction(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_", ".", "").Replace(name)
}

func (snap *ruleSnapshot) canonical(name string) (string, bool) {
	key := CanonicalJurisdiction(name)
	if alias, ok := snap.aliases[key]; ok {
		key = alias
	}
	_, ok := snap.overlays[key]
	return key, ok
}

func (snap *ruleSnapshot) resolve(requested []string, language string) *RuleSet {
	language = normalizeLanguage(language)

	known := map[string]bool{}
	unknown := map[string]bool{}
	for _, name := range requested {
		if strings.TrimSpace(name) == "" {
			continue
		}
		key, ok := snap.canonical(name)
		if ok {
			known[key] = true
		} else {
			unknown[key] = true
		}
	}

	rs := &RuleSet{
		snap:          snap,
		member:        make([]bool, len(snap.rules)),
		Jurisdictions: sortedKeys(known),
		Unknown:       sortedKeys(unknown),
		Language:      language,
		Version:       snap.version,
	}

	include := func(idx int) {
		if rs.member[idx] {
			return
		}
		rule := &snap.rules[idx]
		if rule.Language != "" && normalizeLanguage(rule.Language) != language {
			return
		}
		rs.member[idx] = true
		rs.rules = append(rs.rules, rule)
	}

	for _, idx := range snap.base {
		include(idx)
	}
	for _, name := range rs.Jurisdictions {
		for _, idx := range snap.overlays[name] {
			include(idx)
		}
	}

	return rs
}

func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return "en"
	}
	return language
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// build reads the manifest and every rule file into a new snapshot
func (s *RuleStore) build() (*ruleSnapshot, error) {
	data, err := fs.ReadFile(s.fsys, s.manifestPath)
	if err != nil {
		return nil, &ConfigError{Source: s.manifestPath, OriginalErr: err}
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, &ConfigError{Source: s.manifestPath, OriginalErr: fmt.Errorf("failed to parse manifest: %w", err)}
	}

	if len(manifest.Base) == 0 && len(manifest.Jurisdictions) == 0 {
		return nil, &ConfigError{Source: s.manifestPath, OriginalErr: fmt.Errorf("manifest lists no rule files")}
	}

	snap := &ruleSnapshot{
		version:  s.version.Add(1),
		manifest: manifest,
		index:    make(map[string]int),
		overlays: make(map[string][]int),
		aliases:  make(map[string]string),
		loadedAt: time.Now().UTC(),
	}

	hasher := sha256.New()
	hasher.Write(data)

	loaded := map[string][]int{}
	var warnings []string
	warn := func(file, ruleID, reason string) {
		warnings = append(warnings, fmt.Sprintf("%s: %s", file, reason))
		s.logger.Warn("rule rejected",
			zap.String("file", file),
			zap.String("rule_id", ruleID),
			zap.String("reason", reason))
	}

	loadFile := func(file, jurisdiction string) []int {
		if idx, ok := loaded[file]; ok {
			return idx
		}
		loaded[file] = nil

		raw, err := fs.ReadFile(s.fsys, path.Clean(file))
		if err != nil {
			warn(file, "", fmt.Sprintf("unreadable rule file: %v", err))
			return nil
		}
		hasher.Write(raw)

		rules, problems, err := decodeRuleFile(raw)
		if err != nil {
			warn(file, "", err.Error())
			return nil
		}
		for _, problem := range problems {
			warn(file, "", problem.Error())
		}

		var idx []int
		for _, rule := range rules {
			if err := validateRule(rule); err != nil {
				warn(file, rule.ID, err.Error())
				continue
			}
			if _, dup := snap.index[rule.ID]; dup {
				warn(file, rule.ID, fmt.Sprintf("duplicate rule id %s", rule.ID))
				continue
			}

			rule.TriggerWords = cleanTriggers(rule.TriggerWords)
			rule.Jurisdiction = jurisdiction
			snap.rules = append(snap.rules, rule)
			snap.index[rule.ID] = len(snap.rules) - 1
			idx = append(idx, len(snap.rules)-1)
		}

		loaded[file] = idx
		return idx
	}

	for _, file := range manifest.Base {
		snap.base = append(snap.base, loadFile(file, "federal")...)
	}

	names := make([]string, 0, len(manifest.Jurisdictions))
	for name := range manifest.Jurisdictions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := CanonicalJurisdiction(name)
		overlay := []int{}
		for _, file := range manifest.Jurisdictions[name] {
			overlay = append(overlay, loadFile(file, key)...)
		}
		snap.overlays[key] = overlay
	}

	for alias, target := range manifest.Aliases {
		target = CanonicalJurisdiction(target)
		if _, ok := snap.overlays[target]; !ok {
			warn(s.manifestPath, "", fmt.Sprintf("alias %s points at unknown jurisdiction %s", alias, target))
			continue
		}
		snap.aliases[CanonicalJurisdiction(alias)] = target
	}

	snap.automaton = buildAutomaton(snap.rules)
	snap.result = LoadResult{
		Version:  snap.version,
		Rules:    len(snap.rules),
		Files:    len(loaded),
		Warnings: warnings,
		Hash:     hex.EncodeToString(hasher.Sum(nil)),
	}

	s.logger.Debug("rule snapshot built",
		zap.Uint64("version", snap.version),
		zap.Int("rules", len(snap.rules)),
		zap.Int("jurisdictions", len(snap.overlays)),
		zap.Int("warnings", len(warnings)))

	return snap, nil
}

func buildAutomaton(rules []Rule) *phraseAutomaton {
	a := newPhraseAutomaton()
	seen := map[string]int32{}
	for i, rule := range rules {
		for j, trigger := range rule.TriggerWords {
			a.add(normalizePhrase(trigger), phraseOwner{rule: i, trigger: j}, seen)
		}
	}
	a.build()
	return a
}
