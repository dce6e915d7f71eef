package routing

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nulzo/omni-router/pkg/api"
)

// Embedder turns text into a fixed-size vector. Identical input must yield identical output.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Ceilings maps a benchmark name to the score used as 1.0 when normalizing.
type Ceilings map[string]float64

// DefaultCeilings are the best published scores per benchmark.
func DefaultCeilings() Ceilings {
	return Ceilings{
		"MMLU":      0.90,
		"GPQA":      0.72,
		"HumanEval": 0.95,
		"MATH":      0.91,
		"BFCL":      0.95,
		"MGSM":      0.93,
	}
}

// Normalize divides raw by the benchmark ceiling, which defaults to 1.0 when unknown.
func (c Ceilings) Normalize(benchmark string, raw float64) float64 {
	ceiling, ok := c[benchmark]
	if !ok || ceiling <= 0 {
		ceiling = 1.0
	}
	return raw / ceiling
}

// ModelProfile is an immutable registry entry.
type ModelProfile struct {
	ID            string
	Name          string
	Provider      string
	UpstreamID    string
	Description   string
	ContextLength int

	// Benchmarks holds raw scores; Normalized holds raw / ceiling.
	Benchmarks map[string]float64
	Normalized map[string]float64
	Embedding  []float64
}

// RecordedBenchmarks counts benchmark entries carrying a value. A 0.0 entry is
// the "not available" sentinel and is not counted.
func (p *ModelProfile) RecordedBenchmarks() int {
	n := 0
	for _, v := range p.Benchmarks {
		if v != 0 {
			n++
		}
	}
	return n
}

// Registry is the read-only model catalogue. Iteration order is load order.
type Registry struct {
	profiles []*ModelProfile
	index    map[string]int
}

// LoadRegistry builds profiles from the definitions and embeds every description once.
// Disabled and non-chat models are skipped.
func LoadRegistry(ctx context.Context, defs []api.ModelDefinition, ceilings Ceilings, embedder Embedder) (*Registry, error) {
	if ceilings == nil {
		ceilings = DefaultCeilings()
	}

	r := &Registry{index: make(map[string]int, len(defs))}
	for _, d := range defs {
		if d.Disabled || (d.Capability != "" && d.Capability != api.CapabilityChat) {
			continue
		}
		if d.ID == "" {
			return nil, NewStageError(KindInvalidInput, StageRegistry, fmt.Errorf("model definition without id"))
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, NewStageError(KindInvalidInput, StageRegistry, fmt.Errorf("duplicate model id %q", d.ID))
		}

		p := &ModelProfile{
			ID:            d.ID,
			Name:          d.Name,
			Provider:      d.ProviderID,
			UpstreamID:    d.UpstreamID,
			Description:   d.Description,
			ContextLength: d.ContextLength,
			Benchmarks:    make(map[string]float64, len(d.Benchmarks)),
			Normalized:    make(map[string]float64, len(d.Benchmarks)),
		}
		if p.Name == "" {
			p.Name = d.ID
		}
		if p.UpstreamID == "" {
			p.UpstreamID = d.ID
		}
		for b, raw := range d.Benchmarks {
			p.Benchmarks[b] = raw
			p.Normalized[b] = ceilings.Normalize(b, raw)
		}

		r.index[d.ID] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}

	if embedder == nil || len(r.profiles) == 0 {
		return r, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, p := range r.profiles {
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, p.Description)
			if err != nil {
				return &StageError{Kind: KindBackendUnavailable, Stage: StageEmbedding, Model: p.ID, Err: err}
			}
			p.Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return r, nil
}

// Profiles returns the profiles in registry order. Callers must not mutate them.
func (r *Registry) Profiles() []*ModelProfile {
	return r.profiles
}

func (r *Registry) Len() int {
	return len(r.profiles)
}

// Get returns the profile for id or a MissingModel error.
func (r *Registry) Get(id string) (*ModelProfile, error) {
	i, ok := r.index[id]
	if !ok {
		return nil, &StageError{Kind: KindMissingModel, Stage: StageRegistry, Model: id, Err: ErrMissingModel}
	}
	return r.profiles[i], nil
}

// IDs returns model ids in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		ids[i] = p.ID
	}
	return ids
}
