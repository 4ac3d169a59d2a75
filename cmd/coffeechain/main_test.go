package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"coffeechain"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func useDriver(t *testing.T, driver, url string) {
	t.Helper()
	t.Setenv("DB_DRIVER", driver)
	t.Setenv("DATABASE_URL", url)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("ARCHIVE_BACKEND", "")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("ENGINE_PROFILE", "")
	t.Setenv("LOG_LEVEL", "ERROR")
}

func TestRun_Help(t *testing.T) {
	code, out, _ := run(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "USAGE:")
	assert.Contains(t, out, "report")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := run(t, "brew")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: brew")
}

func TestRun_DefaultsToServe(t *testing.T) {
	orig := startServer
	defer func() { startServer = orig }()

	var got []string
	startServer = func(args []string, _, _ io.Writer) int {
		got = args
		return 7
	}

	code, _, _ := run(t)
	assert.Equal(t, 7, code)
	assert.Empty(t, got)

	code, _, _ = run(t, "--port", "9000")
	assert.Equal(t, 7, code)
	assert.Equal(t, []string{"--port", "9000"}, got)
}

func TestSeedThenReport_FileDriver(t *testing.T) {
	useDriver(t, "file", filepath.Join(t.TempDir(), "ledger.json"))

	code, out, errOut := run(t, "seed")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Seeded 3 farmers, 3 lots")
	assert.Contains(t, out, "green: GREEN-001")

	code, out, errOut = run(t, "report", "GREEN-001")
	require.Equal(t, 0, code, errOut)

	var rep struct {
		Provenance []struct {
			ProductID string  `json:"id"`
			Fraction  float64 `json:"fraction"`
		} `json:"provenance"`
		Producers []struct {
			ID string `json:"id"`
		} `json:"producers"`
		Digest string `json:"digest"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Len(t, rep.Provenance, 3)
	assert.Len(t, rep.Producers, 3)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, rep.Digest)
}

func TestReport_Actor(t *testing.T) {
	useDriver(t, "memory", "")

	code, out, errOut := run(t, "report", "--actor", "farmer-ana")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `"farmer-ana"`)
	assert.Contains(t, out, `"pending_shipments"`)
}

func TestReport_NotFound(t *testing.T) {
	useDriver(t, "memory", "")

	code, _, errOut := run(t, "report", "NOPE")
	assert.Equal(t, 3, code)
	assert.Contains(t, errOut, "NOPE")
}

func TestReport_Usage(t *testing.T) {
	code, _, errOut := run(t, "report")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage:")
}

func TestSeed_RejectsMemoryDriver(t *testing.T) {
	useDriver(t, "memory", "")
	code, _, _ := run(t, "seed")
	assert.Equal(t, 2, code)
}

func TestMigrate_SQLiteReset(t *testing.T) {
	useDriver(t, "sqlite", filepath.Join(t.TempDir(), "ledger.db"))

	code, out, errOut := run(t, "migrate")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "sqlite ledger migrated")

	code, _, errOut = run(t, "seed")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = run(t, "migrate", "--reset")
	require.Equal(t, 0, code, errOut)

	code, _, _ = run(t, "report", "GREEN-001")
	assert.Equal(t, 3, code, "reset drops seeded records")
}

func TestMigrate_FileResetFlushesCache(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	defer func() { _ = client.Close() }()
	require.NoError(t, client.FlushDB(ctx).Err())

	path := filepath.Join(t.TempDir(), "ledger.json")
	useDriver(t, "file", path)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "15")

	code, _, errOut := run(t, "seed")
	require.Equal(t, 0, code, errOut)
	code, _, errOut = run(t, "report", "GREEN-001")
	require.Equal(t, 0, code, errOut)

	keys, err := client.Keys(ctx, "coffeechain:*").Result()
	require.NoError(t, err)
	require.NotEmpty(t, keys, "report reads populate the cache")

	code, _, errOut = run(t, "migrate", "--reset")
	require.Equal(t, 0, code, errOut)
	assert.NoFileExists(t, path)

	keys, err = client.Keys(ctx, "coffeechain:*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)

	code, _, _ = run(t, "report", "GREEN-001")
	assert.Equal(t, 3, code, "no cached product survives the reset")
}

func TestMigrate_UnsupportedDriver(t *testing.T) {
	useDriver(t, "oracle", "")
	code, _, errOut := run(t, "migrate")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unsupported DB_DRIVER")
}

func TestHealth(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	code, out, _ := run(t, "health", "--url", ok.URL)
	assert.Equal(t, 0, code)
	assert.Equal(t, "OK\n", out)

	code, _, errOut := run(t, "health", "--url", down.URL)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "status 503")
}
