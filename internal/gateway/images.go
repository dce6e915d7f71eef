package gateway

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

// GenerateImage sends an image request to the provider serving req.Model.
func (s *service) GenerateImage(ctx context.Context, req *api.ImageRequest) (*api.ImageResponse, error) {
	ctx, span := tracer.Start(ctx, "gateway.image", trace.WithAttributes(attribute.String("image.model", req.Model)))
	defer span.End()

	rec := s.newRecord(ctx, "images", req.Prompt)
	rec.TopModel = req.Model
	rec.QueriedModels = req.Model

	resp, err := s.generateImage(ctx, req)
	if err != nil {
		rec.FailedModels = req.Model
		failSpan(span, err)
	} else {
		rec.CandidateCount = len(resp.Data)
	}
	s.finish(rec, err)

	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = rec.ID
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	resp.Model = req.Model
	return resp, nil
}

func (s *service) generateImage(ctx context.Context, req *api.ImageRequest) (*api.ImageResponse, error) {
	provider, upstreamID, err := s.registry.ResolveImage(req.Model)
	if err != nil {
		return nil, directFailure(req.Model, err)
	}

	upstream := *req
	upstream.Model = upstreamID
	if upstream.N <= 0 {
		upstream.N = 1
	}

	resp, err := provider.GenerateImage(ctx, &upstream)
	if err != nil {
		return nil, directFailure(req.Model, err)
	}
	if len(resp.Data) == 0 {
		return nil, &routing.StageError{Kind: routing.KindProviderGeneration, Stage: routing.StageGenerate, Model: req.Model, Err: errors.New("provider returned no images")}
	}
	resp.Provider = provider.Name()
	return resp, nil
}
