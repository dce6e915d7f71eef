package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

// registry joins the routing catalogue and the image models with the live
// providers. It is thread-safe.
type registry struct {
	models    *routing.Registry
	images    []api.ModelDefinition
	providers map[string]llm.Provider
	mu        sync.RWMutex
}

func newRegistry(models *routing.Registry, images []api.ModelDefinition) *registry {
	r := &registry{
		models:    models,
		providers: make(map[string]llm.Provider),
	}
	for _, d := range images {
		if d.Disabled || d.Capability != api.CapabilityImage {
			continue
		}
		if d.UpstreamID == "" {
			d.UpstreamID = d.ID
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		r.images = append(r.images, d)
	}
	return r
}

func (r *registry) addProvider(p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *registry) provider(id string) (llm.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

func (r *registry) providerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve returns the provider serving modelID and the id to send upstream.
func (r *registry) Resolve(modelID string) (llm.Provider, string, error) {
	profile, err := r.models.Get(modelID)
	if err != nil {
		return nil, "", err
	}
	p, ok := r.provider(profile.Provider)
	if !ok {
		return nil, "", fmt.Errorf("%w: '%s' (model %s)", ErrProviderNotFound, profile.Provider, modelID)
	}
	return p, profile.UpstreamID, nil
}

// ResolveImage returns the image-capable provider for modelID and the id to send upstream.
func (r *registry) ResolveImage(modelID string) (llm.ImageProvider, string, error) {
	var def *api.ModelDefinition
	for i := range r.images {
		if r.images[i].ID == modelID {
			def = &r.images[i]
			break
		}
	}
	if def == nil {
		return nil, "", &routing.StageError{Kind: routing.KindMissingModel, Stage: routing.StageRegistry, Model: modelID, Err: routing.ErrMissingModel}
	}

	p, ok := r.provider(def.ProviderID)
	if !ok {
		return nil, "", fmt.Errorf("%w: '%s' (model %s)", ErrProviderNotFound, def.ProviderID, modelID)
	}
	ip, ok := p.(llm.ImageProvider)
	if !ok {
		return nil, "", fmt.Errorf("provider %s (%s) cannot generate images", p.Name(), p.Type())
	}
	return ip, def.UpstreamID, nil
}

// servedModels counts the catalogue entries a provider can serve.
func (r *registry) servedModels(providerID string) int {
	n := 0
	for _, p := range r.models.Profiles() {
		if p.Provider == providerID {
			n++
		}
	}
	for _, d := range r.images {
		if d.ProviderID == providerID {
			n++
		}
	}
	return n
}

// ListModels lists chat models in registry order, then image models, applying the filter.
func (s *service) ListModels(ctx context.Context, filter api.ModelFilter) ([]api.Model, error) {
	results := []api.Model{}

	for _, p := range s.registry.models.Profiles() {
		if !matches(filter, p.ID, p.Provider, api.CapabilityChat) {
			continue
		}
		_, available := s.registry.provider(p.Provider)
		results = append(results, api.Model{
			ID:            p.ID,
			Object:        "model",
			Name:          p.Name,
			Provider:      p.Provider,
			Description:   p.Description,
			Capability:    api.CapabilityChat,
			ContextLength: p.ContextLength,
			Benchmarks:    p.Benchmarks,
			Normalized:    p.Normalized,
			Available:     available,
		})
	}

	for _, d := range s.registry.images {
		if !matches(filter, d.ID, d.ProviderID, api.CapabilityImage) {
			continue
		}
		p, ok := s.registry.provider(d.ProviderID)
		_, canDraw := p.(llm.ImageProvider)
		results = append(results, api.Model{
			ID:          d.ID,
			Object:      "model",
			Name:        d.Name,
			Provider:    d.ProviderID,
			Description: d.Description,
			Capability:  api.CapabilityImage,
			Available:   ok && canDraw,
		})
	}

	return results, nil
}

func matches(f api.ModelFilter, id, provider, capability string) bool {
	if f.Provider != "" && !strings.EqualFold(provider, f.Provider) {
		return false
	}
	if f.ID != "" && !strings.Contains(strings.ToLower(id), strings.ToLower(f.ID)) {
		return false
	}
	return f.Capability == "" || strings.EqualFold(f.Capability, capability)
}
