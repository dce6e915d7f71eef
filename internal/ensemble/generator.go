package ensemble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/internal/llm/processing"
	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

// SamplingTemperature keeps repeated samples from one model diverse.
const SamplingTemperature = 0.7

// Resolver finds the provider serving a registry model and the upstream id to send it.
type Resolver interface {
	Resolve(modelID string) (llm.Provider, string, error)
}

// Candidate is one generated answer and the model that wrote it.
type Candidate struct {
	ModelID string
	Text    string
}

// Result is the joined output of a fan-out.
type Result struct {
	Candidates []Candidate
	Queried    []string
	Failed     map[string]error
}

// Texts returns candidate texts in model then sample order.
func (r *Result) Texts() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Text
	}
	return out
}

// FailedModels lists the models that produced nothing, in query order.
func (r *Result) FailedModels() []string {
	var out []string
	for _, id := range r.Queried {
		if _, ok := r.Failed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Generator fans a prompt out to several models concurrently.
type Generator struct {
	resolver Resolver
	parallel int
	logger   *zap.Logger
}

func NewGenerator(resolver Resolver, parallel int, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{resolver: resolver, parallel: parallel, logger: logger}
}

// Generate asks every model for n completions. A model that fails is logged and
// skipped; only when every model fails is an error returned.
func (g *Generator) Generate(ctx context.Context, modelIDs []string, prompt string, n, maxTokens int) (*Result, error) {
	if len(modelIDs) == 0 {
		return nil, routing.NewStageError(routing.KindEmptyInput, routing.StageGenerate, routing.ErrEmptyInput)
	}
	if n <= 0 {
		n = 1
	}

	perModel := make([][]string, len(modelIDs))
	errs := make([]error, len(modelIDs))

	var eg errgroup.Group
	if g.parallel > 0 {
		eg.SetLimit(g.parallel)
	}
	for i, id := range modelIDs {
		eg.Go(func() error {
			start := time.Now()
			texts, err := g.sample(ctx, id, prompt, n, maxTokens)
			if err != nil {
				g.logger.Warn("candidate generation failed, skipping model",
					zap.String("model", id),
					zap.Duration("latency", time.Since(start)),
					zap.Error(err),
				)
				errs[i] = &routing.StageError{Kind: routing.KindProviderGeneration, Stage: routing.StageGenerate, Model: id, Err: err}
				return nil
			}
			g.logger.Debug("generated candidates",
				zap.String("model", id),
				zap.Int("count", len(texts)),
				zap.Duration("latency", time.Since(start)),
			)
			perModel[i] = texts
			return nil
		})
	}
	_ = eg.Wait()

	res := &Result{Queried: append([]string(nil), modelIDs...), Failed: map[string]error{}}
	for i, id := range modelIDs {
		if errs[i] != nil {
			res.Failed[id] = errs[i]
			continue
		}
		for _, t := range perModel[i] {
			res.Candidates = append(res.Candidates, Candidate{ModelID: id, Text: t})
		}
	}

	if len(res.Candidates) == 0 {
		return res, &routing.StageError{
			Kind:  routing.KindAllModelsFailed,
			Stage: routing.StageGenerate,
			Err:   errors.Join(errs...),
		}
	}
	return res, nil
}

// sample collects up to n non-empty answers. Providers that ignore n are called
// again until n answers arrive or a call fails after the first succeeded.
func (g *Generator) sample(ctx context.Context, modelID, prompt string, n, maxTokens int) ([]string, error) {
	provider, upstreamID, err := g.resolver.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	var texts []string
	for calls := 0; len(texts) < n && calls < n; calls++ {
		resp, err := provider.Chat(ctx, &api.ChatRequest{
			Model:       upstreamID,
			Messages:    []api.ChatMessage{{Role: string(api.User), Content: prompt}},
			N:           n - len(texts),
			MaxTokens:   maxTokens,
			Temperature: SamplingTemperature,
		})
		if err != nil {
			if len(texts) > 0 {
				g.logger.Debug("partial sampling", zap.String("model", modelID), zap.Int("got", len(texts)), zap.Error(err))
				break
			}
			return nil, err
		}
		for _, t := range resp.Texts() {
			if a := processing.Answer(t); a != "" && len(texts) < n {
				texts = append(texts, a)
			}
		}
	}

	if len(texts) == 0 {
		return nil, fmt.Errorf("model %s returned no usable text", modelID)
	}
	return texts, nil
}
