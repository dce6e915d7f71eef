package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/nulzo/omni-router/internal/store"
	"github.com/nulzo/omni-router/internal/store/model"
	"github.com/nulzo/omni-router/pkg/api"
)

const (
	defaultDays = 7
	maxDays     = 90
)

type Service interface {
	GetUsageOverview(ctx context.Context, days int) (*api.UsageResponse, error)
	GetRoute(ctx context.Context, id string) (*api.RouteLogResponse, error)
}

type service struct {
	repo store.Repository
	now  func() time.Time
}

func NewService(repo store.Repository) Service {
	return &service{
		repo: repo,
		now:  time.Now,
	}
}

func (s *service) GetUsageOverview(ctx context.Context, days int) (*api.UsageResponse, error) {
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		days = maxDays
	}
	since := s.now().AddDate(0, 0, -days)

	daily, err := s.repo.Routes().GetDailyStats(ctx, since)
	if err != nil {
		return nil, api.InternalError("failed to load usage", api.WithLog(err))
	}
	models, err := s.repo.Routes().GetModelUsage(ctx, since)
	if err != nil {
		return nil, api.InternalError("failed to load model usage", api.WithLog(err))
	}

	resp := &api.UsageResponse{
		Days:   days,
		Daily:  make([]api.DailyUsage, 0, len(daily)),
		Models: make([]api.ModelUsage, 0, len(models)),
	}
	for _, d := range daily {
		resp.Daily = append(resp.Daily, api.DailyUsage{
			Date:             d.Date,
			Requests:         d.TotalRequests,
			EnsembleRequests: d.EnsembleRequests,
			FailedRequests:   d.FailedRequests,
			Candidates:       d.TotalCandidates,
			AvgLatencyMS:     d.AverageLatency,
		})
	}
	for _, m := range models {
		resp.Models = append(resp.Models, api.ModelUsage{ModelID: m.ModelID, Selected: m.Selected, AvgScore: m.AvgScore})
	}
	return resp, nil
}

func (s *service) GetRoute(ctx context.Context, id string) (*api.RouteLogResponse, error) {
	log, err := s.repo.Routes().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, api.NotFoundError("route log '" + id + "' not found")
	}
	if err != nil {
		return nil, api.InternalError("failed to load route log", api.WithLog(err))
	}
	return ToResponse(log), nil
}

// ToResponse converts a stored run to its API view.
func ToResponse(log *model.RouteLog) *api.RouteLogResponse {
	return &api.RouteLogResponse{
		ID:             log.ID,
		TaskType:       log.TaskType,
		Mode:           api.Mode(log.Mode),
		TopModel:       log.TopModel,
		TopScore:       log.TopScore,
		QueriedModels:  model.SplitIDs(log.QueriedModels),
		FailedModels:   model.SplitIDs(log.FailedModels),
		CandidateCount: log.CandidateCount,
		Fused:          log.Fused,
		Endpoint:       log.Endpoint,
		Status:         log.Status,
		ErrorKind:      log.ErrorKind,
		LatencyMS:      log.LatencyMS,
		AppName:        log.AppName,
		CreatedAt:      log.CreatedAt,
	}
}
