package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/internal/server/middleware"
	"github.com/nulzo/omni-router/internal/server/validator"
	"github.com/nulzo/omni-router/pkg/api"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) RegisterProvider(ctx context.Context, p llm.Provider) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockService) Providers() []string {
	return m.Called().Get(0).([]string)
}

func (m *MockService) Route(ctx context.Context, query, task string) (*api.RoutingDecision, error) {
	args := m.Called(ctx, query, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.RoutingDecision), args.Error(1)
}

func (m *MockService) DecideMode(ctx context.Context, query string) (api.Mode, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(api.Mode), args.Error(1)
}

func (m *MockService) Rank(ctx context.Context, prompt string, candidates []string) ([]api.RankedCandidate, error) {
	args := m.Called(ctx, prompt, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.RankedCandidate), args.Error(1)
}

func (m *MockService) Complete(ctx context.Context, req *api.CompletionRequest) (*api.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.CompletionResponse), args.Error(1)
}

func (m *MockService) ListModels(ctx context.Context, filter api.ModelFilter) ([]api.Model, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.Model), args.Error(1)
}

func (m *MockService) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ChatResponse), args.Error(1)
}

func (m *MockService) GenerateImage(ctx context.Context, req *api.ImageRequest) (*api.ImageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ImageResponse), args.Error(1)
}

func (m *MockService) Health(ctx context.Context) map[string]string {
	return m.Called(ctx).Get(0).(map[string]string)
}

type MockAnalytics struct {
	mock.Mock
}

func (m *MockAnalytics) GetUsageOverview(ctx context.Context, days int) (*api.UsageResponse, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.UsageResponse), args.Error(1)
}

func (m *MockAnalytics) GetRoute(ctx context.Context, id string) (*api.RouteLogResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.RouteLogResponse), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	validator.InitValidator()
	r := gin.New()
	r.Use(middleware.ErrorHandler(zap.NewNop()))
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRoutingHandler_Route(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewRoutingHandler(svc)
	r.POST("/v1/route", h.Route)

	decision := &api.RoutingDecision{
		TaskType:    "coding",
		Models:      []api.ModelScore{{ModelID: "claude-3-5-sonnet", Score: 0.81}},
		Explanation: "Top model: claude-3-5-sonnet",
	}
	svc.On("Route", mock.Anything, "fix this stack trace", "").Return(decision, nil)

	w := do(r, http.MethodPost, "/v1/route", api.RouteRequest{Query: "fix this stack trace"})
	require.Equal(t, http.StatusOK, w.Code)

	var got api.RoutingDecision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "coding", got.TaskType)
	assert.Equal(t, "claude-3-5-sonnet", got.Models[0].ModelID)
	svc.AssertExpectations(t)
}

func TestRoutingHandler_Route_Errors(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewRoutingHandler(svc)
	r.POST("/v1/route", h.Route)

	t.Run("missing query", func(t *testing.T) {
		w := do(r, http.MethodPost, "/v1/route", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Validation Error", body["title"])
		assert.Contains(t, body["errors"], "query")
	})

	t.Run("malformed body", func(t *testing.T) {
		w := do(r, http.MethodPost, "/v1/route", `{"query":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown task", func(t *testing.T) {
		svc.On("Route", mock.Anything, "hi", "poetry").
			Return(nil, routing.NewStageError(routing.KindInvalidInput, routing.StageClassify, routing.ErrUnknownTask)).Once()

		w := do(r, http.MethodPost, "/v1/route", api.RouteRequest{Query: "hi", Task: "poetry"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "classify", body["stage"])
		assert.Equal(t, "invalid_input", body["kind"])
	})

	t.Run("embedding backend down", func(t *testing.T) {
		svc.On("Route", mock.Anything, "down", "").
			Return(nil, routing.NewStageError(routing.KindBackendUnavailable, routing.StageEmbedding, errors.New("dial tcp"))).Once()

		w := do(r, http.MethodPost, "/v1/route", api.RouteRequest{Query: "down"})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestRoutingHandler_Mode(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewRoutingHandler(svc)
	r.POST("/v1/mode", h.Mode)

	svc.On("DecideMode", mock.Anything, "prove it").Return(api.ModeEnsemble, nil)

	w := do(r, http.MethodPost, "/v1/mode", api.ModeRequest{Query: "prove it"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"mode":"ensemble"}`, w.Body.String())
}

func TestRoutingHandler_Rank(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewRoutingHandler(svc)
	r.POST("/v1/rank", h.Rank)

	ranked := []api.RankedCandidate{{Text: "b", Score: 0.9}, {Text: "a", Score: 0.2}}
	svc.On("Rank", mock.Anything, "q", []string{"a", "b"}).Return(ranked, nil)

	w := do(r, http.MethodPost, "/v1/rank", api.RankRequest{Prompt: "q", Candidates: []string{"a", "b"}})
	require.Equal(t, http.StatusOK, w.Code)

	var got api.RankResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "list", got.Object)
	assert.Equal(t, ranked, got.Data)
}

func TestRoutingHandler_Complete(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewRoutingHandler(svc)
	r.POST("/v1/completions", h.Complete)

	t.Run("success", func(t *testing.T) {
		svc.On("Complete", mock.Anything, mock.MatchedBy(func(req *api.CompletionRequest) bool {
			return req.Query == "2+2" && req.Mode == api.ModeSingle
		})).Return(&api.CompletionResponse{ID: "cmpl-1", Mode: api.ModeSingle, Answer: "4"}, nil).Once()

		w := do(r, http.MethodPost, "/v1/completions", api.CompletionRequest{Query: "2+2", Mode: api.ModeSingle})
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "4", body["answer"])
	})

	t.Run("invalid mode", func(t *testing.T) {
		w := do(r, http.MethodPost, "/v1/completions", `{"query":"x","mode":"both"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("all models failed", func(t *testing.T) {
		svc.On("Complete", mock.Anything, mock.MatchedBy(func(req *api.CompletionRequest) bool {
			return req.Query == "fail"
		})).Return(nil, routing.NewStageError(routing.KindAllModelsFailed, routing.StageGenerate, routing.ErrAllModelsFailed)).Once()

		w := do(r, http.MethodPost, "/v1/completions", api.CompletionRequest{Query: "fail"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "all_models_failed", decode(t, w)["kind"])
	})
}

func TestChatHandler(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewChatHandler(svc)
	r.POST("/v1/chat/completions", h.CreateCompletion)

	t.Run("ensemble model maps to ensemble mode", func(t *testing.T) {
		svc.On("Complete", mock.Anything, mock.MatchedBy(func(req *api.CompletionRequest) bool {
			return req.Query == "second question" && req.Mode == api.ModeEnsemble && req.MaxTokens == 20
		})).Return(&api.CompletionResponse{
			ID:        "cmpl-9",
			Mode:      api.ModeEnsemble,
			Answer:    "fused",
			Decision:  &api.RoutingDecision{Models: []api.ModelScore{{ModelID: "gpt-4o"}}},
			CreatedAt: time.Unix(1700000000, 0),
		}, nil).Once()

		w := do(r, http.MethodPost, "/v1/chat/completions", api.ChatRequest{
			Model: ModelEnsemble,
			Messages: []api.ChatMessage{
				{Role: "user", Content: "first question"},
				{Role: "assistant", Content: "first answer"},
				{Role: "user", Content: "second question"},
			},
			MaxTokens: 20,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ensemble", w.Header().Get("X-Omni-Mode"))
		assert.Equal(t, "gpt-4o", w.Header().Get("X-Omni-Top-Model"))

		var got api.ChatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "chat.completion", got.Object)
		assert.Equal(t, int64(1700000000), got.Created)
		require.Len(t, got.Choices, 1)
		assert.Equal(t, "fused", got.Choices[0].Message.Content)
		assert.Equal(t, "assistant", got.Choices[0].Message.Role)
	})

	t.Run("named model goes straight to its provider", func(t *testing.T) {
		svc.On("Chat", mock.Anything, mock.MatchedBy(func(req *api.ChatRequest) bool {
			return req.Model == "gpt-4o" && len(req.Messages) == 1 && req.Temperature == 0.2
		})).Return(&api.ChatResponse{
			ID:      "chatcmpl-abc",
			Model:   "gpt-4o",
			Choices: []api.Choice{{Message: &api.ChatMessage{Role: "assistant", Content: "hello"}, FinishReason: "stop"}},
		}, nil).Once()

		w := do(r, http.MethodPost, "/v1/chat/completions", api.ChatRequest{
			Model:       "gpt-4o",
			Messages:    []api.ChatMessage{{Role: "user", Content: "hi"}},
			Temperature: 0.2,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "direct", w.Header().Get("X-Omni-Mode"))
		assert.Equal(t, "gpt-4o", w.Header().Get("X-Omni-Top-Model"))

		var got api.ChatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "chatcmpl-abc", got.ID)
		assert.Equal(t, "chat.completion", got.Object)
		assert.Equal(t, []string{"hello"}, got.Texts())
	})

	t.Run("unregistered model is not found", func(t *testing.T) {
		svc.On("Chat", mock.Anything, mock.MatchedBy(func(req *api.ChatRequest) bool {
			return req.Model == "gpt-9"
		})).Return(nil, &routing.StageError{Kind: routing.KindMissingModel, Stage: routing.StageRegistry, Model: "gpt-9", Err: routing.ErrMissingModel}).Once()

		w := do(r, http.MethodPost, "/v1/chat/completions", api.ChatRequest{
			Model:    "gpt-9",
			Messages: []api.ChatMessage{{Role: "user", Content: "hi"}},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		body := decode(t, w)
		assert.Equal(t, "missing_model", body["kind"])
		assert.Equal(t, "gpt-9", body["model"])
	})

	t.Run("streaming rejected", func(t *testing.T) {
		w := do(r, http.MethodPost, "/v1/chat/completions", api.ChatRequest{
			Model:    ModelAuto,
			Messages: []api.ChatMessage{{Role: "user", Content: "hi"}},
			Stream:   true,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no user message", func(t *testing.T) {
		w := do(r, http.MethodPost, "/v1/chat/completions", api.ChatRequest{
			Model:    ModelAuto,
			Messages: []api.ChatMessage{{Role: "system", Content: "be brief"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	svc.AssertExpectations(t)
}

func TestModelHandler_ListModels(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewModelHandler(svc)
	r.GET("/v1/models", h.ListModels)

	svc.On("ListModels", mock.Anything, api.ModelFilter{Provider: "openai"}).
		Return([]api.Model{{ID: "gpt-4o", Object: "model", Available: true}}, nil).Once()
	svc.On("ListModels", mock.Anything, api.ModelFilter{ID: "boom"}).
		Return(nil, errors.New("registry closed")).Once()

	w := do(r, http.MethodGet, "/v1/models?provider=openai", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "list", body["object"])
	assert.Len(t, body["data"], 1)

	w = do(r, http.MethodGet, "/v1/models?id=boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	svc.On("ListModels", mock.Anything, api.ModelFilter{Capability: "image"}).
		Return([]api.Model{{ID: "dall-e-3", Object: "model", Capability: "image"}}, nil).Once()
	w = do(r, http.MethodGet, "/v1/models?capability=image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"capability":"image"`)

	w = do(r, http.MethodGet, "/v1/models?capability=audio", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestImageHandler_Generate(t *testing.T) {
	svc := new(MockService)
	r := newRouter()
	h := NewImageHandler(svc)
	r.POST("/v1/images/generations", h.Generate)

	t.Run("generates", func(t *testing.T) {
		svc.On("GenerateImage", mock.Anything, &api.ImageRequest{Model: "dall-e-3", Prompt: "a lighthouse", Size: "1024x1024"}).
			Return(&api.ImageResponse{
				ID:       "img-1",
				Created:  1700000000,
				Model:    "dall-e-3",
				Provider: "openai",
				Data:     []api.ImageData{{URL: "https://images.example.com/1.png"}},
			}, nil).Once()

		w := do(r, http.MethodPost, "/v1/images/generations", `{"model": "dall-e-3", "prompt": "a lighthouse", "size": "1024x1024"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "dall-e-3", w.Header().Get("X-Omni-Top-Model"))

		var got api.ImageResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, []string{"https://images.example.com/1.png"}, got.URLs())
		assert.Equal(t, "openai", got.Provider)
	})

	t.Run("validation", func(t *testing.T) {
		for _, body := range []string{
			`{"prompt": "no model"}`,
			`{"model": "dall-e-3"}`,
			`{"model": "dall-e-3", "prompt": "x", "size": "10x10"}`,
			`{"model": "dall-e-3", "prompt": "x", "n": 11}`,
			`{"model": "dall-e-3", "prompt": "x", "quality": "ultra"}`,
		} {
			w := do(r, http.MethodPost, "/v1/images/generations", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		svc.On("GenerateImage", mock.Anything, mock.MatchedBy(func(req *api.ImageRequest) bool { return req.Model == "gpt-4o" })).
			Return(nil, &routing.StageError{Kind: routing.KindMissingModel, Stage: routing.StageRegistry, Model: "gpt-4o", Err: routing.ErrMissingModel}).Once()

		w := do(r, http.MethodPost, "/v1/images/generations", `{"model": "gpt-4o", "prompt": "x"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	svc.AssertExpectations(t)
}

func TestAnalyticsHandler(t *testing.T) {
	svc := new(MockAnalytics)
	r := newRouter()
	h := NewAnalyticsHandler(svc)
	r.GET("/v1/analytics/usage", h.GetUsage)
	r.GET("/v1/routes/:id", h.GetRoute)

	svc.On("GetUsageOverview", mock.Anything, 7).Return(&api.UsageResponse{Days: 7}, nil).Once()
	svc.On("GetUsageOverview", mock.Anything, 30).Return(&api.UsageResponse{Days: 30}, nil).Once()
	svc.On("GetRoute", mock.Anything, "route-1").Return(&api.RouteLogResponse{ID: "route-1", TopModel: "gpt-4o"}, nil).Once()
	svc.On("GetRoute", mock.Anything, "missing").Return(nil, api.NotFoundError("Route log not found")).Once()

	w := do(r, http.MethodGet, "/v1/analytics/usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7, decode(t, w)["days"])

	w = do(r, http.MethodGet, "/v1/analytics/usage?days=30", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/v1/analytics/usage?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/v1/routes/route-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gpt-4o", decode(t, w)["top_model"])

	w = do(r, http.MethodGet, "/v1/routes/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.AssertExpectations(t)
}

func TestConfigHandler_Redacts(t *testing.T) {
	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "8080", APIKeys: []string{"sk-static"}},
		Redis:     config.RedisConfig{Password: "hunter2"},
		Embedding: config.EmbeddingConfig{Backend: "openai", APIKey: "sk-embed"},
		Providers: []config.ProviderConfig{
			{ID: "openai", Type: "openai", APIKey: "sk-openai"},
			{ID: "ollama", Type: "ollama"},
		},
	}

	r := newRouter()
	r.GET("/v1/config", NewConfigHandler(cfg).Get)

	w := do(r, http.MethodGet, "/v1/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-static")
	assert.NotContains(t, w.Body.String(), "sk-openai")
	assert.NotContains(t, w.Body.String(), "hunter2")

	out := Redact(cfg)
	assert.Equal(t, redacted, out.Providers[0].APIKey)
	assert.Empty(t, out.Providers[1].APIKey)
	assert.Equal(t, "sk-openai", cfg.Providers[0].APIKey, "original config is untouched")
	assert.Equal(t, "sk-static", cfg.Server.APIKeys[0])
}

func TestHealthHandler(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Health", mock.Anything).Return(map[string]string{"openai": "ok", "ollama": "connection refused"})

		r := newRouter()
		h := NewHealthHandler(svc, pingFunc(func(context.Context) error { return nil }))
		r.GET("/health", h.Health)
		r.GET("/ready", h.Ready)

		w := do(r, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", decode(t, w)["status"])

		w = do(r, http.MethodGet, "/ready", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", decode(t, w)["status"])
	})

	t.Run("degraded", func(t *testing.T) {
		svc := new(MockService)
		svc.On("Health", mock.Anything).Return(map[string]string{})

		r := newRouter()
		h := NewHealthHandler(svc, pingFunc(func(context.Context) error { return errors.New("disk I/O error") }))
		r.GET("/ready", h.Ready)

		w := do(r, http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		body := decode(t, w)
		assert.Equal(t, "degraded", body["status"])
		checks := body["checks"].(map[string]interface{})
		assert.Equal(t, "disk I/O error", checks["database"])
	})
}
