package ensemble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/nulzo/omni-router/internal/llm"
	"github.com/nulzo/omni-router/pkg/api"
)

// MockProvider is a testify mock of llm.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string { return "mock" }
func (m *MockProvider) Type() string { return "mock" }

func (m *MockProvider) Chat(ctx context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*api.ChatResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) Health(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// scriptedProvider answers every call with the next scripted reply.
type scriptedProvider struct {
	mu      sync.Mutex
	replies [][]string
	err     error
	calls   []*api.ChatRequest
}

func (p *scriptedProvider) Name() string                 { return "scripted" }
func (p *scriptedProvider) Type() string                 { return "scripted" }
func (p *scriptedProvider) Health(context.Context) error { return nil }

func (p *scriptedProvider) Chat(_ context.Context, req *api.ChatRequest) (*api.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	texts := p.replies[0]
	p.replies = p.replies[1:]
	return chatResponse(texts...), nil
}

func chatResponse(texts ...string) *api.ChatResponse {
	resp := &api.ChatResponse{Object: "chat.completion"}
	for i, t := range texts {
		resp.Choices = append(resp.Choices, api.Choice{
			Index:   i,
			Message: &api.ChatMessage{Role: string(api.Assistant), Content: t},
		})
	}
	return resp
}

type mapResolver map[string]llm.Provider

func (m mapResolver) Resolve(id string) (llm.Provider, string, error) {
	p, ok := m[id]
	if !ok {
		return nil, "", fmt.Errorf("no provider for %s", id)
	}
	return p, "upstream-" + id, nil
}
