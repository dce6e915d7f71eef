package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/analytics"
	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/ensemble"
	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/internal/ranking"
	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/internal/store"
	"github.com/nulzo/omni-router/internal/store/model"
	"github.com/nulzo/omni-router/pkg/api"
)

var ErrProviderNotFound = errors.New("provider not registered")

var tracer = otel.Tracer("github.com/nulzo/omni-router/internal/gateway")

// Service defines the business logic of the routing pipeline.
type Service interface {
	// RegisterProvider makes a provider available to the models that name it.
	RegisterProvider(ctx context.Context, p llm.Provider) error
	Providers() []string

	Route(ctx context.Context, query, task string) (*api.RoutingDecision, error)
	DecideMode(ctx context.Context, query string) (api.Mode, error)
	Rank(ctx context.Context, prompt string, candidates []string) ([]api.RankedCandidate, error)
	Complete(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error)
	ListModels(ctx context.Context, filter api.ModelFilter) ([]api.Model, error)

	// Chat sends a request for a named registry model straight to its provider.
	Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error)
	GenerateImage(ctx context.Context, req *api.ImageRequest) (*api.ImageResponse, error)

	// Health checks every registered provider. Values are "ok" or the failure.
	Health(ctx context.Context) map[string]string
}

// Settings are the pipeline knobs from the routing config section.
type Settings struct {
	NumModelsToQuery      int
	NumCandidatesPerModel int
	TopKFusion            int
	MaxGenerationTokens   int
	MaxParallel           int
	FuserModel            string
}

func SettingsFromConfig(c config.RoutingConfig) Settings {
	return Settings{
		NumModelsToQuery:      c.NumModelsToQuery,
		NumCandidatesPerModel: c.NumCandidatesPerModel,
		TopKFusion:            c.TopKFusion,
		MaxGenerationTokens:   c.MaxGenerationTokens,
		MaxParallel:           c.MaxParallel,
		FuserModel:            c.FuserModel,
	}
}

func (s Settings) withDefaults() Settings {
	if s.NumModelsToQuery <= 0 {
		s.NumModelsToQuery = 3
	}
	if s.NumCandidatesPerModel <= 0 {
		s.NumCandidatesPerModel = 5
	}
	if s.TopKFusion <= 0 {
		s.TopKFusion = 3
	}
	if s.MaxGenerationTokens <= 0 {
		s.MaxGenerationTokens = 50
	}
	return s
}

// Options wires the pipeline stages. Router, Modes and Ranker are required.
type Options struct {
	Router   *routing.Router
	Modes    *routing.BinaryRouter
	Ranker   *ranking.Ranker
	Fuser    ensemble.Fuser     // defaults to an LLMFuser on Settings.FuserModel
	Ingestor analytics.Ingestor // optional
	Images   []api.ModelDefinition // image models; they never take part in routing
	Settings Settings
}

type service struct {
	logger    *zap.Logger
	router    *routing.Router
	modes     *routing.BinaryRouter
	ranker    *ranking.Ranker
	generator *ensemble.Generator
	fuser     ensemble.Fuser
	ingestor  analytics.Ingestor
	settings  Settings
	registry  *registry
}

func NewService(logger *zap.Logger, opts Options) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &service{
		logger:   logger,
		router:   opts.Router,
		modes:    opts.Modes,
		ranker:   opts.Ranker,
		fuser:    opts.Fuser,
		ingestor: opts.Ingestor,
		settings: opts.Settings.withDefaults(),
		registry: newRegistry(opts.Router.Registry(), opts.Images),
	}
	s.generator = ensemble.NewGenerator(s.registry, s.settings.MaxParallel, logger)
	if s.fuser == nil {
		s.fuser = ensemble.NewLLMFuser(s.registry, s.settings.FuserModel, logger)
	}
	return s
}

func (s *service) RegisterProvider(ctx context.Context, p llm.Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider")
	}
	s.registry.addProvider(p)

	if n := s.registry.servedModels(p.Name()); n == 0 {
		s.logger.Warn("Provider serves no catalogue model", zap.String("provider", p.Name()))
	} else {
		s.logger.Debug("Provider registered", zap.String("provider", p.Name()), zap.Int("models", n))
	}
	return nil
}

func (s *service) Providers() []string {
	return s.registry.providerIDs()
}

func (s *service) Health(ctx context.Context) map[string]string {
	out := make(map[string]string)
	for _, id := range s.registry.providerIDs() {
		p, _ := s.registry.provider(id)
		hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := p.Health(hctx); err != nil {
			out[id] = err.Error()
		} else {
			out[id] = "ok"
		}
		cancel()
	}
	return out
}

func (s *service) Route(ctx context.Context, query, task string) (*api.RoutingDecision, error) {
	rec := s.newRecord(ctx, "route", query)

	decision, err := s.route(ctx, query, task)
	if err == nil {
		rec.recordDecision(decision)
	}
	s.finish(rec, err)

	if err != nil {
		return nil, err
	}
	return decision, nil
}

func (s *service) DecideMode(ctx context.Context, query string) (api.Mode, error) {
	return s.modes.Decide(ctx, query)
}

func (s *service) Rank(ctx context.Context, prompt string, candidates []string) ([]api.RankedCandidate, error) {
	ctx, span := tracer.Start(ctx, "gateway.rank", trace.WithAttributes(attribute.Int("rank.candidates", len(candidates))))
	defer span.End()

	ranked, err := s.ranker.Rank(ctx, prompt, candidates)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return ranked, nil
}

// Complete runs the whole pipeline: pick a mode, route, then either answer from
// the best model or generate, rank and fuse candidates from the top models.
func (s *service) Complete(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "gateway.complete")
	defer span.End()

	rec := s.newRecord(ctx, "completions", req.Query)
	resp, err := s.complete(ctx, req, rec)
	if err != nil {
		failSpan(span, err)
	} else {
		span.SetAttributes(
			attribute.String("route.mode", string(resp.Mode)),
			attribute.String("route.task", resp.Decision.TaskType),
		)
	}
	s.finish(rec, err)

	if err != nil {
		return nil, err
	}
	resp.LatencyMS = rec.LatencyMS
	return resp, nil
}

func (s *service) complete(ctx context.Context, req *api.CompletionRequest, rec *routeRecord) (*api.CompletionResponse, error) {
	mode := req.Mode
	if mode == "" {
		m, err := s.DecideMode(ctx, req.Query)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	rec.Mode = string(mode)

	decision, err := s.route(ctx, req.Query, req.Task)
	if err != nil {
		return nil, err
	}
	rec.recordDecision(decision)

	if len(decision.Models) == 0 {
		return nil, routing.NewStageError(routing.KindMissingModel, routing.StageRouter, fmt.Errorf("%w: the registry is empty", routing.ErrMissingModel))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.settings.MaxGenerationTokens
	}

	resp := &api.CompletionResponse{
		ID:        rec.ID,
		Mode:      mode,
		Decision:  decision,
		CreatedAt: rec.CreatedAt,
	}

	if mode == api.ModeEnsemble {
		err = s.ensemble(ctx, req.Query, decision, maxTokens, resp)
	} else {
		err = s.single(ctx, req.Query, decision, maxTokens, resp)
	}

	rec.QueriedModels = model.JoinIDs(resp.Queried)
	rec.FailedModels = model.JoinIDs(resp.Failed)
	rec.CandidateCount = len(resp.Candidates)
	rec.Fused = resp.Fused
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// single answers from the best model, falling through the ranking when a provider fails.
func (s *service) single(ctx context.Context, query string, decision *api.RoutingDecision, maxTokens int, resp *api.CompletionResponse) error {
	ctx, span := tracer.Start(ctx, "gateway.single")
	defer span.End()

	var errs []error
	for _, m := range decision.Models {
		resp.Queried = append(resp.Queried, m.ModelID)

		res, err := s.generator.Generate(ctx, []string{m.ModelID}, query, 1, maxTokens)
		if err == nil {
			resp.Answer = res.Candidates[0].Text
			span.SetAttributes(attribute.String("route.answered_by", m.ModelID))
			return nil
		}

		resp.Failed = append(resp.Failed, m.ModelID)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		s.logger.Info("Falling through to next model", zap.String("failed", m.ModelID), zap.Error(err))
	}

	err := &routing.StageError{Kind: routing.KindAllModelsFailed, Stage: routing.StageGenerate, Err: errors.Join(errs...)}
	failSpan(span, err)
	return err
}

func (s *service) ensemble(ctx context.Context, query string, decision *api.RoutingDecision, maxTokens int, resp *api.CompletionResponse) error {
	models := decision.Top(s.settings.NumModelsToQuery)

	genCtx, span := tracer.Start(ctx, "gateway.generate", trace.WithAttributes(
		attribute.StringSlice("generate.models", models),
		attribute.Int("generate.per_model", s.settings.NumCandidatesPerModel),
	))
	res, err := s.generator.Generate(genCtx, models, query, s.settings.NumCandidatesPerModel, maxTokens)
	if res != nil {
		resp.Queried = res.Queried
		resp.Failed = res.FailedModels()
	}
	if err != nil {
		failSpan(span, err)
		span.End()
		return err
	}
	span.SetAttributes(attribute.Int("generate.candidates", len(res.Candidates)))
	span.End()

	ranked, err := s.Rank(ctx, query, res.Texts())
	if err != nil {
		return err
	}
	resp.Candidates = ranked

	top := ranking.Top(ranked, s.settings.TopKFusion)

	fuseCtx, span := tracer.Start(ctx, "gateway.fuse", trace.WithAttributes(attribute.Int("fuse.inputs", len(top))))
	defer span.End()

	answer, err := s.fuser.Fuse(fuseCtx, query, top, maxTokens)
	if err != nil {
		failSpan(span, err)
		return err
	}
	resp.Answer = answer
	resp.Fused = len(top) > 1
	return nil
}

func (s *service) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "gateway.chat", trace.WithAttributes(attribute.String("chat.model", req.Model)))
	defer span.End()

	rec := s.newRecord(ctx, "chat", lastUserText(req.Messages))
	rec.TopModel = req.Model
	rec.QueriedModels = req.Model

	resp, err := s.chat(ctx, req)
	if err != nil {
		rec.FailedModels = req.Model
		failSpan(span, err)
	}
	s.finish(rec, err)

	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = rec.ID
	}
	resp.Model = req.Model
	return resp, nil
}

func (s *service) chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	provider, upstreamID, err := s.registry.Resolve(req.Model)
	if err != nil {
		return nil, directFailure(req.Model, err)
	}

	upstream := *req
	upstream.Model = upstreamID
	upstream.Stream = false

	resp, err := provider.Chat(ctx, &upstream)
	if err != nil {
		return nil, directFailure(req.Model, err)
	}
	return resp, nil
}

// directFailure classifies errors of calls that name their model. Registry
// misses stay MissingModel and upstream problems keep their status (a provider
// 429 stays a 429). Anything else is a generation failure.
func directFailure(modelID string, err error) error {
	if routing.KindOf(err) == routing.KindMissingModel {
		return err
	}
	var problem *api.Problem
	if errors.As(err, &problem) {
		return err
	}
	return &routing.StageError{Kind: routing.KindProviderGeneration, Stage: routing.StageGenerate, Model: modelID, Err: err}
}

func lastUserText(msgs []api.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == string(api.User) {
			return msgs[i].Content
		}
	}
	return ""
}

// route scores the query against the registry. Every call is a fresh pass: a
// decision never outlives its request.
func (s *service) route(ctx context.Context, query, task string) (*api.RoutingDecision, error) {
	ctx, span := tracer.Start(ctx, "gateway.route")
	defer span.End()

	decision, err := s.router.Route(ctx, query, task)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("route.task", decision.TaskType),
		attribute.Int("route.models", len(decision.Models)),
	)
	return decision, nil
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// routeRecord is a RouteLog under construction.
type routeRecord struct {
	*model.RouteLog
}

func (r *routeRecord) recordDecision(d *api.RoutingDecision) {
	r.TaskType = d.TaskType
	if len(d.Models) > 0 {
		r.TopModel = d.Models[0].ModelID
		r.TopScore = d.Models[0].Score
	}
}

func (s *service) newRecord(ctx context.Context, endpoint, query string) *routeRecord {
	var userID, apiKeyID, appName string

	if val, ok := ctx.Value(store.ContextKeyAppName).(string); ok {
		appName = val
	}

	if apiKey, ok := ctx.Value(store.ContextKeyAPIKey).(*model.APIKey); ok {
		userID = apiKey.UserID
		apiKeyID = apiKey.ID
	} else if appName != "" {
		userID = string(api.Anonymous)
		apiKeyID = string(api.Anonymous)
	} else {
		userID = string(api.System)
		apiKeyID = string(api.System)
	}

	prefix := "route-"
	switch endpoint {
	case "completions":
		prefix = "cmpl-"
	case "chat":
		prefix = "chatcmpl-"
	case "images":
		prefix = "img-"
	}

	return &routeRecord{&model.RouteLog{
		ID:         prefix + uuid.NewString(),
		UserID:     userID,
		APIKeyID:   apiKeyID,
		AppName:    appName,
		Endpoint:   endpoint,
		QueryChars: utf8.RuneCountInString(query),
		CreatedAt:  time.Now().UTC(),
	}}
}

func (s *service) finish(rec *routeRecord, err error) {
	rec.LatencyMS = time.Since(rec.CreatedAt).Milliseconds()
	rec.Status = model.StatusOK
	if err != nil {
		rec.Status = model.StatusFailed
		rec.ErrorKind = routing.KindOf(err).String()
		s.logger.Warn("Pipeline run failed",
			zap.String("id", rec.ID),
			zap.String("endpoint", rec.Endpoint),
			zap.String("stage", routing.StageOf(err)),
			zap.Error(err),
		)
	}

	if s.ingestor != nil {
		s.ingestor.Log(rec.RouteLog)
	}
}
