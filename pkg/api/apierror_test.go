package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coffeechain/pkg/api"
	"github.com/Mindburn-Labs/coffeechain/pkg/domain"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) api.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var problem api.ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&problem))
	return problem
}

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteError(w, http.StatusBadRequest, "Bad Request", "field is missing")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, 400, problem.Status)
	assert.Equal(t, "Bad Request", problem.Title)
	assert.Equal(t, "field is missing", problem.Detail)
	assert.Contains(t, problem.Type, "/errors/400")
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	problem := decodeProblem(t, w)
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
	assert.NotContains(t, problem.Detail, "10.0.0.1", "internal error details leaked to client")
}

func TestWriteTooManyRequests_RetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, 5)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestWriteDomainError_Mapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", domain.NotFound("product", "P9"), http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("report: %w", domain.NotFound("actor", "a")), http.StatusNotFound},
		{"invalid graph", domain.InvalidGraph("P1", "cycle through P2"), http.StatusUnprocessableEntity},
		{"currency", domain.InconsistentCurrency("ana", "USD", "COP"), http.StatusConflict},
		{"conflict", domain.Conflict("sale", "s1", "already confirmed"), http.StatusConflict},
		{"invalid", domain.Invalid("transformation", "t1", "no outputs"), http.StatusBadRequest},
		{"deadline", fmt.Errorf("resolve: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"client gone", fmt.Errorf("resolve: %w", context.Canceled), api.StatusClientClosedRequest},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/product/P9", nil)
			api.WriteDomainError(w, r, tc.err)

			assert.Equal(t, tc.status, w.Code)
			problem := decodeProblem(t, w)
			assert.Equal(t, "/api/product/P9", problem.Instance)
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, problem.Detail, "disk on fire")
			}
		})
	}
}

func TestWriteDomainError_DetailNamesEntity(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteDomainError(w, httptest.NewRequest(http.MethodGet, "/api/product/P9", nil), domain.NotFound("product", "P9"))
	assert.Equal(t, "product P9: not found", decodeProblem(t, w).Detail)
}

func TestWriteDomainError_CanceledIsNotLoggedAsError(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo})))
	defer slog.SetDefault(prev)

	w := httptest.NewRecorder()
	api.WriteDomainError(w, httptest.NewRequest(http.MethodGet, "/api/product/P9", nil), context.Canceled)

	assert.Equal(t, api.StatusClientClosedRequest, w.Code)
	assert.Empty(t, logs.String())
}
