// Package httputil holds the HTTP response conventions internal/pixelingress
// and internal/adminapi both build on: RFC 7807 problem responses and the
// correlation-id-aware error writer.
package httputil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pixeljoin/logjoin/internal/httpmiddleware"
)

// ProblemDetail is an RFC 7807 Problem Details document.
// See https://www.rfc-editor.org/rfc/rfc7807.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// NewProblemDetail builds a ProblemDetail with a type URI scoped to this
// service's own problem namespace.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://logjoin.internal/problems/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WithInstance sets the instance URI.
func (p *ProblemDetail) WithInstance(instance string) *ProblemDetail {
	p.Instance = instance

	return p
}

// WriteError writes problem as an application/problem+json response,
// filling in Instance and CorrelationID from r if not already set.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := httpmiddleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("failed to encode problem response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)

		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// BadRequest builds a 400 problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

// NotFound builds a 404 problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

// TooManyRequests builds a 429 problem.
func TooManyRequests(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusTooManyRequests, "Too Many Requests", detail)
}

// Unauthorized builds a 401 problem.
func Unauthorized(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusUnauthorized, "Unauthorized", detail)
}

// InternalServerError builds a 500 problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}
