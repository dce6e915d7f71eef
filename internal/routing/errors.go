package routing

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so transports can map them without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingModel
	KindEmptyInput
	KindInvalidInput
	KindBackendUnavailable
	KindProviderGeneration
	KindAllModelsFailed
)

func (k Kind) String() string {
	switch k {
	case KindMissingModel:
		return "missing_model"
	case KindEmptyInput:
		return "empty_input"
	case KindInvalidInput:
		return "invalid_input"
	case KindBackendUnavailable:
		return "backend_unavailable"
	case KindProviderGeneration:
		return "provider_generation"
	case KindAllModelsFailed:
		return "all_models_failed"
	default:
		return "unknown"
	}
}

var (
	ErrMissingModel       = errors.New("model not found in registry")
	ErrEmptyInput         = errors.New("empty input")
	ErrUnknownTask        = errors.New("unknown task type")
	ErrBackendUnavailable = errors.New("scoring backend unavailable")
	ErrProviderGeneration = errors.New("provider generation failed")
	ErrAllModelsFailed    = errors.New("no candidates generated: all models failed")
)

var sentinels = map[Kind]error{
	KindMissingModel:       ErrMissingModel,
	KindEmptyInput:         ErrEmptyInput,
	KindBackendUnavailable: ErrBackendUnavailable,
	KindProviderGeneration: ErrProviderGeneration,
	KindAllModelsFailed:    ErrAllModelsFailed,
}

// Stages reported by StageError.
const (
	StageClassify  = "classify"
	StageEmbedding = "embedding"
	StageRegistry  = "registry"
	StageRouter    = "router"
	StageMode      = "mode"
	StageRanker    = "ranker"
	StageGenerate  = "generate"
	StageFuse      = "fuse"
)

// StageError identifies which stage of the pipeline failed and why.
type StageError struct {
	Kind  Kind
	Stage string
	Model string
	Err   error
}

func NewStageError(kind Kind, stage string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	if e.Model != "" {
		msg += fmt.Sprintf(" (model %s)", e.Model)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrBackendUnavailable) match any StageError of that kind.
func (e *StageError) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf extracts the Kind of err, falling back to the sentinels.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrUnknownTask) {
		return KindInvalidInput
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}

// StageOf returns the failing stage, or "" when err carries none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
