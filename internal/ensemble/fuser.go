package ensemble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/llm/processing"
	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

// DefaultFuserModel composes the final answer unless configured otherwise.
const DefaultFuserModel = "gpt-4o-mini"

// ErrEmptyFusion is returned when the fusion model answers with nothing.
var ErrEmptyFusion = errors.New("fusion model returned an empty answer")

// Fuser merges ranked candidates, best first, into one answer. It never returns
// an empty string together with a nil error.
type Fuser interface {
	Fuse(ctx context.Context, prompt string, candidates []string, maxTokens int) (string, error)
}

// LLMFuser asks a single chat model to synthesize the candidates.
type LLMFuser struct {
	resolver Resolver
	model    string
	logger   *zap.Logger
}

func NewLLMFuser(resolver Resolver, model string, logger *zap.Logger) *LLMFuser {
	if model == "" {
		model = DefaultFuserModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMFuser{resolver: resolver, model: model, logger: logger}
}

func (f *LLMFuser) Model() string {
	return f.model
}

func (f *LLMFuser) Fuse(ctx context.Context, prompt string, candidates []string, maxTokens int) (string, error) {
	switch len(candidates) {
	case 0:
		return "", routing.NewStageError(routing.KindEmptyInput, routing.StageFuse, routing.ErrEmptyInput)
	case 1:
		if strings.TrimSpace(candidates[0]) == "" {
			return "", routing.NewStageError(routing.KindEmptyInput, routing.StageFuse, ErrEmptyFusion)
		}
		return candidates[0], nil
	}

	provider, upstreamID, err := f.resolver.Resolve(f.model)
	if err != nil {
		return "", &routing.StageError{Kind: routing.KindProviderGeneration, Stage: routing.StageFuse, Model: f.model, Err: err}
	}

	resp, err := provider.Chat(ctx, &api.ChatRequest{
		Model: upstreamID,
		Messages: []api.ChatMessage{
			{Role: string(api.System), Content: fusionInstructions},
			{Role: string(api.User), Content: FusionPrompt(prompt, candidates)},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", &routing.StageError{Kind: routing.KindProviderGeneration, Stage: routing.StageFuse, Model: f.model, Err: err}
	}

	for _, t := range resp.Texts() {
		if answer := processing.Answer(t); answer != "" {
			return answer, nil
		}
	}

	f.logger.Warn("fusion model returned no text", zap.String("model", f.model), zap.Int("candidates", len(candidates)))
	return "", &routing.StageError{Kind: routing.KindProviderGeneration, Stage: routing.StageFuse, Model: f.model, Err: ErrEmptyFusion}
}

const fusionInstructions = "You merge several candidate answers into one response. " +
	"Candidates are ordered from most to least relevant. Keep facts the candidates agree on, " +
	"drop claims that contradict the stronger candidates, and answer the question directly without mentioning the candidates."

// FusionPrompt lists the candidates, best first, under the original question.
func FusionPrompt(prompt string, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", prompt)
	for i, c := range candidates {
		fmt.Fprintf(&b, "Candidate %d:\n%s\n\n", i+1, strings.TrimSpace(c))
	}
	b.WriteString("Final answer:")
	return b.String()
}
