package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nulzo/omni-router/pkg/api"
)

// DefaultLengthThreshold is the word count at which the heuristic picks ensemble.
const DefaultLengthThreshold = 50

// ModeClassifier decides between a single model and an ensemble.
type ModeClassifier interface {
	Classify(ctx context.Context, query string) (api.Mode, error)
}

// Features are the three query statistics the learned router consumes.
type Features [3]float64

// ExtractFeatures returns word count, mean word length (0 when there are no words)
// and question mark count. Words are whitespace separated.
func ExtractFeatures(query string) Features {
	words := strings.Fields(query)

	var mean float64
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		mean = float64(total) / float64(len(words))
	}

	return Features{
		float64(len(words)),
		mean,
		float64(strings.Count(query, "?")),
	}
}

// HeuristicClassifier picks ensemble when the query has at least Threshold words.
type HeuristicClassifier struct {
	Threshold int
}

func NewHeuristicClassifier(threshold int) *HeuristicClassifier {
	if threshold <= 0 {
		threshold = DefaultLengthThreshold
	}
	return &HeuristicClassifier{Threshold: threshold}
}

func (h *HeuristicClassifier) Classify(_ context.Context, query string) (api.Mode, error) {
	if len(strings.Fields(query)) < h.Threshold {
		return api.ModeSingle, nil
	}
	return api.ModeEnsemble, nil
}

// LogisticArtifact is the on-disk form of a trained logistic regression router.
type LogisticArtifact struct {
	Weights   []float64 `yaml:"weights" json:"weights"`
	Bias      float64   `yaml:"bias" json:"bias"`
	Threshold float64   `yaml:"threshold" json:"threshold"`
}

// LogisticClassifier predicts ensemble when sigmoid(w.x + b) >= threshold.
type LogisticClassifier struct {
	weights   Features
	bias      float64
	threshold float64
}

func NewLogisticClassifier(a LogisticArtifact) (*LogisticClassifier, error) {
	if len(a.Weights) != len(Features{}) {
		return nil, fmt.Errorf("router artifact: expected %d weights, got %d", len(Features{}), len(a.Weights))
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		a.Threshold = 0.5
	}

	c := &LogisticClassifier{bias: a.Bias, threshold: a.Threshold}
	copy(c.weights[:], a.Weights)
	return c, nil
}

// LoadLogisticClassifier reads a YAML or JSON artifact, chosen by file extension.
func LoadLogisticClassifier(path string) (*LogisticClassifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var a LogisticArtifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &a)
	default:
		err = yaml.Unmarshal(raw, &a)
	}
	if err != nil {
		return nil, fmt.Errorf("decode router artifact %s: %w", path, err)
	}

	return NewLogisticClassifier(a)
}

// Probability returns P(ensemble | features).
func (c *LogisticClassifier) Probability(f Features) float64 {
	z := c.bias
	for i := range f {
		z += c.weights[i] * f[i]
	}
	return 1 / (1 + math.Exp(-z))
}

func (c *LogisticClassifier) Classify(_ context.Context, query string) (api.Mode, error) {
	if c.Probability(ExtractFeatures(query)) >= c.threshold {
		return api.ModeEnsemble, nil
	}
	return api.ModeSingle, nil
}

// BinaryRouter uses the learned classifier when one is loaded, the heuristic otherwise.
type BinaryRouter struct {
	learned   ModeClassifier
	heuristic *HeuristicClassifier
}

// NewBinaryRouter loads the artifact at classifierPath if it exists. A missing path
// or unreadable artifact falls back to the heuristic and is logged once here.
func NewBinaryRouter(classifierPath string, threshold int, logger *zap.Logger) *BinaryRouter {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &BinaryRouter{heuristic: NewHeuristicClassifier(threshold)}
	if classifierPath == "" {
		logger.Info("no router classifier configured, using length heuristic", zap.Int("threshold", b.heuristic.Threshold))
		return b
	}

	learned, err := LoadLogisticClassifier(classifierPath)
	if err != nil {
		logger.Warn("router classifier unavailable, using length heuristic",
			zap.String("path", classifierPath),
			zap.Int("threshold", b.heuristic.Threshold),
			zap.Error(err),
		)
		return b
	}

	logger.Info("loaded router classifier", zap.String("path", classifierPath))
	b.learned = learned
	return b
}

// WithClassifier replaces the learned classifier. Passing nil restores the heuristic.
func (b *BinaryRouter) WithClassifier(c ModeClassifier) *BinaryRouter {
	b.learned = c
	return b
}

// Learned reports whether decisions come from a trained classifier.
func (b *BinaryRouter) Learned() bool {
	return b.learned != nil
}

func (b *BinaryRouter) Decide(ctx context.Context, query string) (api.Mode, error) {
	if b.learned != nil {
		mode, err := b.learned.Classify(ctx, query)
		if err != nil {
			return "", NewStageError(KindBackendUnavailable, StageMode, err)
		}
		return mode, nil
	}
	return b.heuristic.Classify(ctx, query)
}
