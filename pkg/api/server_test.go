package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/coffeechain/pkg/api"
	"github.com/Mindburn-Labs/coffeechain/pkg/archive"
	"github.com/Mindburn-Labs/coffeechain/pkg/ledger"
	"github.com/Mindburn-Labs/coffeechain/pkg/report"
	"github.com/Mindburn-Labs/coffeechain/pkg/seed"
)

func newTestServer(t *testing.T, checks map[string]api.HealthCheck) *httptest.Server {
	t.Helper()
	store := ledger.NewMemoryStore()
	fx, err := seed.Demo()
	require.NoError(t, err)
	_, err = seed.Run(context.Background(), store, fx)
	require.NoError(t, err)

	srv := api.NewServer(report.NewService(store, report.Options{}), checks)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestServer_ProductReport(t *testing.T) {
	ts := newTestServer(t, nil)

	var rep report.ProductReport
	resp := get(t, ts, "/api/product/GREEN-001", &rep)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	assert.Equal(t, "GREEN-001", rep.Product.ID)
	assert.Len(t, rep.Provenance, 3)
	assert.Len(t, rep.Producers, 3)
	assert.NotEmpty(t, rep.Digest)
}

func TestServer_ProductNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	var problem api.ProblemDetail
	resp := get(t, ts, "/api/product/NOPE", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "product NOPE: not found", problem.Detail)
	assert.Equal(t, resp.Header.Get("X-Request-ID"), problem.TraceID)
}

func TestServer_ActorReport(t *testing.T) {
	ts := newTestServer(t, nil)

	var rep report.ActorReport
	resp := get(t, ts, "/api/actor/farmer-bruno", &rep)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bruno Díaz", rep.Actor.Name)
	assert.Len(t, rep.Practices, 2)
	assert.NotNil(t, rep.PendingShipments)
	assert.NotNil(t, rep.Inventory)
	assert.NotNil(t, rep.Ownership)

	resp = get(t, ts, "/api/actor/almacafe", &rep)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rep.Inventory, 1)
	assert.Equal(t, "GREEN-001", rep.Inventory[0].ID)
}

func TestServer_ArchivedReport(t *testing.T) {
	store := ledger.NewMemoryStore()
	fx, err := seed.Demo()
	require.NoError(t, err)
	_, err = seed.Run(context.Background(), store, fx)
	require.NoError(t, err)
	files, err := archive.NewFileStore(t.TempDir())
	require.NoError(t, err)

	svc := report.NewService(store, report.Options{}).WithArchive(archive.New(files))
	ts := httptest.NewServer(api.NewServer(svc, nil).Handler())
	defer ts.Close()

	var rep report.ProductReport
	get(t, ts, "/api/product/GREEN-001", &rep)
	require.NotEmpty(t, rep.ArchiveHash)

	var env archive.Envelope
	resp := get(t, ts, "/api/report/"+rep.ArchiveHash, &env)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, archive.KindProductReport, env.Kind)
	assert.Equal(t, "GREEN-001", env.SubjectID)
	assert.Equal(t, rep.Digest, env.Digest)

	missing := "sha256:" + strings.Repeat("0", 64)
	resp = get(t, ts, "/api/report/"+missing, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var problem api.ProblemDetail
	resp = get(t, ts, "/api/report/not-a-hash", &problem)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, problem.Detail, "sha256")
}

func TestServer_ArchivedReportWithoutArchive(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := get(t, ts, "/api/report/sha256:"+strings.Repeat("a", 64), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.Client().Post(ts.URL+"/api/product/GREEN-001", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, HEAD", resp.Header.Get("Allow"))
	var problem api.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "Method Not Allowed", problem.Title)
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, map[string]api.HealthCheck{
		"ledger": func(context.Context) error { return nil },
	})
	var status api.HealthStatus
	resp := get(t, ts, "/health", &status)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "up", status.Checks["ledger"])
}

func TestServer_HealthDegraded(t *testing.T) {
	ts := newTestServer(t, map[string]api.HealthCheck{
		"ledger": func(context.Context) error { return nil },
		"redis":  func(context.Context) error { return errors.New("connection refused") },
	})
	var status api.HealthStatus
	resp := get(t, ts, "/health", &status)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "down", status.Checks["redis"])
}

func TestServer_UnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	var problem api.ProblemDetail
	resp := get(t, ts, "/nowhere", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "/nowhere", problem.Instance)
}

func TestServer_RateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := api.NewServer(report.NewService(ledger.NewMemoryStore(), report.Options{}), nil).
		WithRateLimit(api.NewGlobalRateLimiter(ctx, 0.001, 1))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := get(t, ts, "/api/actor/a", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = get(t, ts, "/api/actor/a", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = get(t, ts, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is not rate limited")
}
