package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/omni-router/internal/routing"
	"github.com/nulzo/omni-router/pkg/api"
)

// ErrorHandler renders the last error attached by a handler as an RFC 9457 problem.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		problem := ToProblem(err)
		problem.Instance = c.Request.URL.Path

		// if there is an internal log attached, log it
		if problem.Status >= http.StatusInternalServerError {
			logger.Error("Request failed",
				zap.Int("status", problem.Status),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
		}

		// RFC 9457 dictates the json is at the root
		c.JSON(problem.Status, problem)
		c.Abort()
	}
}

// ToProblem maps pipeline errors onto HTTP problems. Stage errors take priority
// over any problem they wrap, since the stage decides the status.
func ToProblem(err error) *api.Problem {
	var se *routing.StageError
	if errors.As(err, &se) {
		p := stageProblem(se.Kind, err)
		p.Extensions["stage"] = se.Stage
		p.Extensions["kind"] = se.Kind.String()
		if se.Model != "" {
			p.Extensions["model"] = se.Model
		}
		return p
	}

	var problem *api.Problem
	if errors.As(err, &problem) {
		return problem
	}

	if kind := routing.KindOf(err); kind != routing.KindUnknown {
		return stageProblem(kind, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return api.NewError(http.StatusGatewayTimeout, "Gateway Timeout", "The request took too long to complete.", api.WithLog(err))
	}

	// at this point it's an unknown error.
	return api.InternalError("An unexpected error occurred.", api.WithLog(err))
}

func stageProblem(kind routing.Kind, err error) *api.Problem {
	switch kind {
	case routing.KindInvalidInput, routing.KindEmptyInput:
		return api.BadRequestError(err.Error(), api.WithLog(err))
	case routing.KindMissingModel:
		return api.NotFoundError(err.Error(), api.WithLog(err))
	case routing.KindBackendUnavailable:
		return api.UnavailableError("A scoring backend is unavailable.", err)
	case routing.KindAllModelsFailed, routing.KindProviderGeneration:
		return api.ProviderError("No model produced an answer.", err)
	default:
		return api.InternalError("An unexpected error occurred.", api.WithLog(err))
	}
}
