package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/omni-router/internal/config"
	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/internal/llm/openai"
	"github.com/nulzo/omni-router/pkg/api"
)

func TestOpenAIChat(t *testing.T) {
	// Mock Server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body api.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 2, body.N)
		assert.False(t, body.Stream)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"object": "chat.completion",
			"created": 1677652288,
			"model": "gpt-4o-mini",
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": "Hello there!"}, "finish_reason": "stop"},
				{"index": 1, "message": {"role": "assistant", "content": "Hi!"}, "finish_reason": "stop"}
			],
			"usage": {"prompt_tokens": 9, "completion_tokens": 12, "total_tokens": 21}
		}`))
	}))
	defer server.Close()

	adapter, err := openai.NewAdapter(config.ProviderConfig{
		ID:      "openai-test",
		Type:    "openai",
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
	})
	require.NoError(t, err)

	resp, err := adapter.Chat(context.Background(), &api.ChatRequest{
		Model:    "gpt-4o-mini",
		N:        2,
		Messages: []api.ChatMessage{{Role: "user", Content: "Hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hello there!", "Hi!"}, resp.Texts())
	assert.Equal(t, 21, resp.Usage.TotalTokens)
	assert.Equal(t, "openai-test", adapter.Name())
	assert.Equal(t, "openai", adapter.Type())
}

func TestOpenAIChat_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests", "code": "rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	adapter, _ := openai.NewAdapter(config.ProviderConfig{ID: "oa", BaseURL: server.URL})
	_, err := adapter.Chat(context.Background(), &api.ChatRequest{Model: "m"})

	var problem *api.Problem
	require.True(t, errors.As(err, &problem))
	assert.Equal(t, http.StatusTooManyRequests, problem.Status)
	assert.Equal(t, "Rate limit reached", problem.Detail)
	assert.Equal(t, "rate_limit_exceeded", problem.Extensions["upstream_code"])
}

func TestOpenAIGenerateImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body api.ImageRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dall-e-3", body.Model)
		assert.Equal(t, "a lighthouse at dusk", body.Prompt)
		assert.Equal(t, "1792x1024", body.Size)
		assert.Equal(t, "hd", body.Quality)

		_, _ = w.Write([]byte(`{
			"created": 1700000000,
			"data": [{"url": "https://images.example.com/1.png", "revised_prompt": "a lighthouse at dusk, oil painting"}]
		}`))
	}))
	defer server.Close()

	adapter, err := openai.NewAdapter(config.ProviderConfig{ID: "openai", APIKey: "test-key", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)
	drawer, ok := adapter.(llm.ImageProvider)
	require.True(t, ok)

	resp, err := drawer.GenerateImage(context.Background(), &api.ImageRequest{
		Model:   "dall-e-3",
		Prompt:  "a lighthouse at dusk",
		Size:    "1792x1024",
		Quality: "hd",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), resp.Created)
	assert.Equal(t, []string{"https://images.example.com/1.png"}, resp.URLs())
	assert.Equal(t, "a lighthouse at dusk, oil painting", resp.Data[0].RevisedPrompt)
}

func TestOpenAIGenerateImage_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "Your request was rejected by the safety system.", "type": "invalid_request_error", "code": "content_policy_violation"}}`))
	}))
	defer server.Close()

	adapter, _ := openai.NewAdapter(config.ProviderConfig{ID: "openai", BaseURL: server.URL})
	_, err := adapter.(llm.ImageProvider).GenerateImage(context.Background(), &api.ImageRequest{Model: "dall-e-2", Prompt: "x"})

	var problem *api.Problem
	require.ErrorAs(t, err, &problem)
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	assert.Equal(t, "content_policy_violation", problem.Extensions["upstream_code"])
}

func TestOpenAIHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	good, _ := openai.NewAdapter(config.ProviderConfig{BaseURL: server.URL, APIKey: "good"})
	assert.NoError(t, good.Health(context.Background()))

	bad, _ := openai.NewAdapter(config.ProviderConfig{BaseURL: server.URL, APIKey: "bad"})
	assert.Error(t, bad.Health(context.Background()))
}
