package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/internal/store"
	"github.com/nulzo/omni-router/internal/store/model"
	"github.com/nulzo/omni-router/pkg/api"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeKeys struct {
	store.APIKeyRepository
	keys  map[string]*model.APIKey
	stamp chan string
}

func (f *fakeKeys) GetByHash(_ context.Context, hash string) (*model.APIKey, error) {
	k, ok := f.keys[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return k, nil
}

func (f *fakeKeys) UpdateUsage(_ context.Context, id string) error {
	f.stamp <- id
	return nil
}

type fakeRepo struct {
	store.Repository
	keys *fakeKeys
}

func (f *fakeRepo) APIKeys() store.APIKeyRepository { return f.keys }

func TestToProblem(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"empty input", routing.NewStageError(routing.KindEmptyInput, routing.StageRanker, routing.ErrEmptyInput), http.StatusBadRequest, "empty_input"},
		{"invalid input", routing.NewStageError(routing.KindInvalidInput, routing.StageClassify, routing.ErrUnknownTask), http.StatusBadRequest, "invalid_input"},
		{"missing model", routing.NewStageError(routing.KindMissingModel, routing.StageRegistry, routing.ErrMissingModel), http.StatusNotFound, "missing_model"},
		{"backend", routing.NewStageError(routing.KindBackendUnavailable, routing.StageEmbedding, errors.New("refused")), http.StatusServiceUnavailable, "backend_unavailable"},
		{"generation", routing.NewStageError(routing.KindProviderGeneration, routing.StageFuse, errors.New("500")), http.StatusBadGateway, "provider_generation"},
		{"all failed", routing.NewStageError(routing.KindAllModelsFailed, routing.StageGenerate, routing.ErrAllModelsFailed), http.StatusBadGateway, "all_models_failed"},
		{"wrapped stage", fmt.Errorf("route: %w", routing.NewStageError(routing.KindEmptyInput, routing.StageEmbedding, routing.ErrEmptyInput)), http.StatusBadRequest, "empty_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ToProblem(tt.err)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.kind, p.Extensions["kind"])
			assert.NotEmpty(t, p.Extensions["stage"])
		})
	}

	t.Run("stage model", func(t *testing.T) {
		se := &routing.StageError{Kind: routing.KindProviderGeneration, Stage: routing.StageGenerate, Model: "gpt-4o", Err: errors.New("boom")}
		assert.Equal(t, "gpt-4o", ToProblem(se).Extensions["model"])
	})

	t.Run("problem passes through", func(t *testing.T) {
		p := api.NotFoundError("nope")
		assert.Same(t, p, ToProblem(fmt.Errorf("wrap: %w", p)))
	})

	t.Run("bare sentinel", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, ToProblem(routing.ErrMissingModel).Status)
	})

	t.Run("deadline", func(t *testing.T) {
		assert.Equal(t, http.StatusGatewayTimeout, ToProblem(context.DeadlineExceeded).Status)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, ToProblem(errors.New("?")).Status)
	})
}

func TestErrorHandler_SetsInstance(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(zap.NewNop()))
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(routing.NewStageError(routing.KindMissingModel, routing.StageRegistry, routing.ErrMissingModel))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"instance":"/fail"`)
	assert.Contains(t, w.Body.String(), `"stage":"registry"`)
}

func newAuthRouter(repo store.Repository, static []string, allowAnonymousApps bool) *gin.Engine {
	r := gin.New()
	r.Use(Identity())
	r.Use(Auth(repo, static, allowAnonymousApps, zap.NewNop()))
	r.GET("/v1/x", func(c *gin.Context) {
		key, _ := c.Request.Context().Value(store.ContextKeyAPIKey).(*model.APIKey)
		if key != nil {
			c.String(http.StatusOK, key.ID)
			return
		}
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestAuth(t *testing.T) {
	past := sql.NullTime{Time: time.Now().Add(-time.Hour), Valid: true}
	keys := &fakeKeys{
		keys: map[string]*model.APIKey{
			HashKey("sk-live"):    {ID: "key-1", IsActive: true},
			HashKey("sk-expired"): {ID: "key-2", IsActive: true, ExpiresAt: past},
		},
		stamp: make(chan string, 1),
	}
	r := newAuthRouter(&fakeRepo{keys: keys}, []string{"sk-static"}, false)

	call := func(header map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
		for k, v := range header {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("missing", func(t *testing.T) {
		w := call(nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), `"instance":"/v1/x"`)
	})

	t.Run("app name only is refused by default", func(t *testing.T) {
		w := call(map[string]string{AppHeader: "notebook"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Missing Authorization header")
	})

	t.Run("app name only when anonymous apps are allowed", func(t *testing.T) {
		r := newAuthRouter(&fakeRepo{keys: keys}, nil, true)
		req := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
		req.Header.Set(AppHeader, "notebook")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		// a bad key is still refused
		req = httptest.NewRequest(http.MethodGet, "/v1/x", nil)
		req.Header.Set(AppHeader, "notebook")
		req.Header.Set("Authorization", "Bearer sk-nope")
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad format", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call(map[string]string{"Authorization": "Token abc"}).Code)
	})

	t.Run("static key", func(t *testing.T) {
		w := call(map[string]string{"Authorization": "Bearer sk-static"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})

	t.Run("database key", func(t *testing.T) {
		w := call(map[string]string{"Authorization": "Bearer sk-live"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "key-1", w.Body.String())

		select {
		case id := <-keys.stamp:
			assert.Equal(t, "key-1", id)
		case <-time.After(time.Second):
			t.Fatal("usage was not stamped")
		}
	})

	t.Run("expired key", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call(map[string]string{"Authorization": "Bearer sk-expired"}).Code)
	})

	t.Run("unknown key", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, call(map[string]string{"Authorization": "Bearer sk-nope"}).Code)
	})

	t.Run("no repository", func(t *testing.T) {
		r := newAuthRouter(nil, nil, false)
		req := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
		req.Header.Set("Authorization", "Bearer sk-live")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, 0, rl.Sweep())
	rl.idle = -time.Second
	assert.Equal(t, 2, rl.Sweep())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}
