package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Problem implements RFC 9457
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`

	Log error `json:"-"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

// Unwrap exposes the internal error so callers can still match on it.
func (p *Problem) Unwrap() error {
	return p.Log
}

func (p *Problem) MarshalJSON() ([]byte, error) {
	type alias Problem

	data := make(map[string]interface{}, len(p.Extensions)+5)
	for k, v := range p.Extensions {
		data[k] = v
	}

	raw, err := json.Marshal(alias(*p))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}

	return json.Marshal(data)
}

type ProblemOption func(*Problem)

// NewError creates a generic Problem
func NewError(status int, title, detail string, opts ...ProblemOption) *Problem {
	p := &Problem{
		Type:       "about:blank",
		Title:      title,
		Status:     status,
		Detail:     detail,
		Extensions: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithExtension adds a custom key-value pair to the response
func WithExtension(key string, value interface{}) ProblemOption {
	return func(p *Problem) {
		p.Extensions[key] = value
	}
}

// WithLog attaches an internal error for server-side logging
func WithLog(err error) ProblemOption {
	return func(p *Problem) {
		p.Log = err
	}
}

// WithType sets the RFC "type" URI
func WithType(uri string) ProblemOption {
	return func(p *Problem) {
		p.Type = uri
	}
}

// ValidationError creates a rich validation error
func ValidationError(validationErrors map[string]string) *Problem {
	return NewError(
		http.StatusBadRequest,
		"Validation Error",
		"One or more fields failed validation",
		WithExtension("errors", validationErrors),
	)
}

func BadRequestError(detail string, opts ...ProblemOption) *Problem {
	return NewError(http.StatusBadRequest, "Bad Request", detail, opts...)
}

func NotFoundError(detail string, opts ...ProblemOption) *Problem {
	return NewError(http.StatusNotFound, "Not Found", detail, opts...)
}

func UnauthorizedError(detail string) *Problem {
	return NewError(http.StatusUnauthorized, "Unauthorized", detail)
}

func InternalError(detail string, opts ...ProblemOption) *Problem {
	return NewError(http.StatusInternalServerError, "Internal Server Error", detail, opts...)
}

// ProviderError is a 502, used when upstream model providers fail.
func ProviderError(detail string, err error) *Problem {
	return NewError(http.StatusBadGateway, "Upstream Provider Error", detail, WithLog(err))
}

// UnavailableError is a 503, used when a scoring backend cannot be reached.
func UnavailableError(detail string, err error) *Problem {
	return NewError(http.StatusServiceUnavailable, "Backend Unavailable", detail, WithLog(err))
}

func RateLimitError(detail string) *Problem {
	return NewError(http.StatusTooManyRequests, "Too Many Requests", detail)
}
