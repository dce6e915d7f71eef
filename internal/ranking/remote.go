package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/httpclient"
)

// RemoteScorer calls a sequence-classification endpoint in the text-embeddings-inference
// /predict shape and turns its two logits into a probability.
type RemoteScorer struct {
	config config.RankerConfig
	client httpclient.HTTPClient
}

func NewRemoteScorer(cfg config.RankerConfig, client httpclient.HTTPClient) *RemoteScorer {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RemoteScorer{config: cfg, client: client}
}

type predictRequest struct {
	Inputs    string `json:"inputs"`
	RawScores bool   `json:"raw_scores"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (s *RemoteScorer) Score(ctx context.Context, prompt, candidate string) (float64, error) {
	headers := map[string]string{}
	if s.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.config.APIKey
	}

	var raw json.RawMessage
	req := predictRequest{Inputs: PairText(prompt, candidate), RawScores: true}
	if err := httpclient.SendRequest(ctx, s.client, "POST", s.config.URL, headers, req, &raw); err != nil {
		return 0, err
	}

	labels, err := decodeLabels(raw)
	if err != nil {
		return 0, err
	}
	return PositiveProbability(labels, s.config.PositiveLabel)
}

// decodeLabels accepts both the flat TEI shape and the nested per-input shape.
func decodeLabels(raw json.RawMessage) ([]labelScore, error) {
	var flat []labelScore
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}

	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(nested) == 0 {
		return nil, fmt.Errorf("classifier returned no predictions")
	}
	return nested[0], nil
}

// PositiveProbability applies softmax over the logits and returns the mass on the
// positive class: the configured label, else LABEL_1 or POSITIVE, else index 1.
func PositiveProbability(labels []labelScore, positive string) (float64, error) {
	if len(labels) < 2 {
		return 0, fmt.Errorf("classifier returned %d labels, need at least 2", len(labels))
	}

	logits := make([]float64, len(labels))
	pos := -1
	for i, l := range labels {
		logits[i] = l.Score
		if pos < 0 && matchesPositive(l.Label, positive) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 1
	}

	lse := floats.LogSumExp(logits)
	return math.Exp(logits[pos] - lse), nil
}

func matchesPositive(label, configured string) bool {
	if configured != "" && strings.EqualFold(label, configured) {
		return true
	}
	return strings.EqualFold(label, "LABEL_1") || strings.EqualFold(label, "POSITIVE")
}
