// Package api serves coffeechain reports over HTTP. Errors use RFC 7807
// Problem Details.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

const problemTypeBase = "https://coffeechain.dev/errors/"

// StatusClientClosedRequest is the nginx convention for a request the client
// abandoned before the response was ready.
const StatusClientClosedRequest = 499

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	// Type is a URI reference that identifies the problem type.
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is the request path that failed.
	Instance string `json:"instance,omitempty"`
	// TraceID echoes X-Request-ID.
	TraceID string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:   fmt.Sprintf("%s%d", problemTypeBase, status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteErrorR writes an RFC 7807 response enriched with request context.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:     fmt.Sprintf("%s%d", problemTypeBase, status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	})
}

func writeProblem(w http.ResponseWriter, p *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}

// WriteDomainError maps an engine failure to its Problem Detail. Structured
// domain errors carry their message to the client; anything else is a 500.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		WriteErrorR(w, r, http.StatusGatewayTimeout, "Gateway Timeout", "The report did not complete in time.")
		return
	case errors.Is(err, context.Canceled):
		slog.DebugContext(r.Context(), "request canceled by client", "path", r.URL.Path)
		WriteErrorR(w, r, StatusClientClosedRequest, "Client Closed Request", "The request was canceled.")
		return
	}
	derr, ok := domain.AsError(err)
	if !ok {
		slog.ErrorContext(r.Context(), "internal server error", "path", r.URL.Path, "error", err)
		WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
		return
	}

	status, title := StatusFor(derr.Kind)
	WriteErrorR(w, r, status, title, derr.Error())
}

// StatusFor returns the HTTP status and title for a domain error kind.
func StatusFor(kind error) (int, string) {
	switch {
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(kind, domain.ErrInvalidGraph):
		return http.StatusUnprocessableEntity, "Invalid Graph"
	case errors.Is(kind, domain.ErrInconsistentCurrency):
		return http.StatusConflict, "Inconsistent Currency"
	case errors.Is(kind, domain.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(kind, domain.ErrInvalid):
		return http.StatusBadRequest, "Bad Request"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
