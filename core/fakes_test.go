package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fairprop/fairprop-go/utils"
)

// fakeEmbedder returns fixed vectors per text; unknown texts get a zero vector
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	batches [][]string
	err     error
	short   bool
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]string{}, texts...))
	if f.err != nil {
		return nil, f.err
	}

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out = append(out, v)
		} else {
			out = append(out, []float32{0, 0, 0})
		}
	}
	if f.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// fakeClassifier returns fixed label scores per text
type fakeClassifier struct {
	mu     sync.Mutex
	scores map[string]map[string]float64
	texts  []string
	err    error
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.scores[text]; ok {
		return s, nil
	}
	return map[string]float64{"welcoming": 0.9, "exclusionary": 0.05}, nil
}

func (f *fakeClassifier) Name() string { return "fake-classifier" }

// failingSemantic is an enabled semantic layer whose backend is down
type failingSemantic struct{}

func (failingSemantic) Match(context.Context, string, *RuleSet, []utils.Match) (SemanticResult, error) {
	return SemanticResult{}, errors.New("embedding backend unavailable")
}
func (failingSemantic) Reset()        {}
func (failingSemantic) Name() string  { return "failing" }
func (failingSemantic) Enabled() bool { return true }

// blockingSemantic holds every evaluation until release is closed
type blockingSemantic struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSemantic() *blockingSemantic {
	return &blockingSemantic{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSemantic) Match(context.Context, string, *RuleSet, []utils.Match) (SemanticResult, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return SemanticResult{}, nil
}
func (b *blockingSemantic) Reset()        {}
func (b *blockingSemantic) Name() string  { return "blocking" }
func (b *blockingSemantic) Enabled() bool { return true }

// stalledIntent ignores its context and holds until release is closed
type stalledIntent struct {
	release chan struct{}
}

func (s stalledIntent) Classify(context.Context, string, *RuleSet, []utils.Match, SemanticResult) (IntentResult, error) {
	<-s.release
	return IntentResult{}, nil
}
func (stalledIntent) Name() string  { return "stalled" }
func (stalledIntent) Enabled() bool { return true }
