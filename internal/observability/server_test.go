package observability_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/vigil/internal/config"
	"github.com/rafaeljc/vigil/internal/observability"
)

type stubChecker struct {
	name string
	err  error
	wait time.Duration
}

func (c stubChecker) Name() string { return c.name }

func (c stubChecker) Check(ctx context.Context) error {
	if c.wait > 0 {
		select {
		case <-time.After(c.wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.err
}

func newTestServer(t *testing.T, checkers ...observability.Checker) *httptest.Server {
	t.Helper()

	// Non-default paths prove the configuration is honoured.
	cfg := &config.ObservabilityConfig{
		Port:          "9999",
		Timeout:       200 * time.Millisecond,
		LivenessPath:  "/alive",
		ReadinessPath: "/check-deps",
		MetricsPath:   "/telemetry",
	}

	srv := httptest.NewServer(observability.NewServer(nil, cfg, checkers...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getReadiness(t *testing.T, url string) (int, observability.ReadinessResponse) {
	t.Helper()

	resp, err := http.Get(url + "/check-deps")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body observability.ReadinessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestServer_Probes(t *testing.T) {
	t.Parallel()

	t.Run("Should report liveness regardless of checkers", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, stubChecker{name: "rule-cache", err: errors.New("no rules loaded")})

		resp, err := http.Get(srv.URL + "/alive")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "no-cache, no-store, no-transform, must-revalidate, private, max-age=0", resp.Header.Get("Cache-Control"))
	})

	t.Run("Should be ready when every checker passes", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, stubChecker{name: "rule-cache"}, stubChecker{name: "postgres"})

		code, body := getReadiness(t, srv.URL)

		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, observability.StatusUp, body.Status)
		assert.Equal(t, observability.StatusUp, body.Components["rule-cache"].Status)
		assert.Equal(t, observability.StatusUp, body.Components["postgres"].Status)
	})

	t.Run("Should answer 503 and name the failing checker", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t,
			stubChecker{name: "rule-cache", err: errors.New("rules loaded but none compiled successfully")},
			stubChecker{name: "redis"},
		)

		code, body := getReadiness(t, srv.URL)

		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, observability.StatusDown, body.Status)
		assert.Equal(t, observability.ComponentStatus{
			Status: observability.StatusDown,
			Error:  "rules loaded but none compiled successfully",
		}, body.Components["rule-cache"])
		assert.Equal(t, observability.StatusUp, body.Components["redis"].Status)
	})

	t.Run("Should bound slow checkers by the configured timeout", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, stubChecker{name: "nats", wait: 5 * time.Second})

		start := time.Now()
		code, body := getReadiness(t, srv.URL)

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, body.Components["nats"].Error, context.DeadlineExceeded.Error())
	})

	t.Run("Should be ready with no checkers", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t)

		code, body := getReadiness(t, srv.URL)

		assert.Equal(t, http.StatusOK, code)
		assert.Empty(t, body.Components)
	})

	t.Run("Should expose prometheus metrics", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t)

		resp, err := http.Get(srv.URL + "/telemetry")
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(raw), "go_goroutines")
	})
}
