package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/observability"
	"github.com/helixir/research-feed-service/internal/pipeline"
)

// mockRefresher implements RefreshTrigger for handler tests.
type mockRefresher struct {
	tryRefreshFn func(ctx context.Context, trigger string) (*pipeline.Result, error)
	last         *pipeline.Result
}

func (m *mockRefresher) TryRefresh(ctx context.Context, trigger string) (*pipeline.Result, error) {
	if m.tryRefreshFn != nil {
		return m.tryRefreshFn(ctx, trigger)
	}
	return nil, errors.New("not configured")
}

func (m *mockRefresher) Last() *pipeline.Result {
	return m.last
}

func newTestServer(t *testing.T, snapshotPath string, refresher RefreshTrigger) (*Server, *prometheus.Registry, *observability.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	s := NewServer(Config{
		Address:      "127.0.0.1:0",
		SnapshotPath: snapshotPath,
		MetricsPath:  "/metrics",
		Categories: []domain.Category{
			{ID: "diagnosis", Title: "Diagnosis", Summary: "Screening and assessment.", Query: "q1"},
			{ID: "treatment", Title: "Treatment", Summary: "Interventions.", Query: "q2"},
		},
	}, refresher, reg, metrics, zerolog.New(io.Discard))
	return s, reg, metrics
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestSnapshotHandler_ServesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research.json")
	body := `{"lastUpdated":"2026-01-01T00:00:00.000Z","categories":[],"sources":[]}` + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	s, _, metrics := newTestServer(t, path, nil)

	// Consumers add a cache-busting query parameter.
	rr := do(s, http.MethodGet, SnapshotRoute+"?t=1767225600000")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Body.String(); got != body {
		t.Errorf("expected snapshot body %q, got %q", body, got)
	}
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("expected Cache-Control no-store, got %q", got)
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("expected JSON content type, got %q", got)
	}
	if got := testutil.ToFloat64(metrics.SnapshotRequests.WithLabelValues("200")); got != 1 {
		t.Errorf("expected one served snapshot, got %v", got)
	}
}

func TestSnapshotHandler_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t, filepath.Join(t.TempDir(), "missing.json"), nil)

	rr := do(s, http.MethodGet, SnapshotRoute)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var resp snapshotUnavailableResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error != "snapshot not available" {
		t.Errorf("unexpected error message %q", resp.Error)
	}
	if len(resp.Categories) != 2 {
		t.Fatalf("expected 2 fallback categories, got %d", len(resp.Categories))
	}
	for i, id := range []string{"diagnosis", "treatment"} {
		c := resp.Categories[i]
		if c.ID != id {
			t.Errorf("expected category %d to be %q, got %q", i, id, c.ID)
		}
		if c.Articles == nil || len(c.Articles) != 0 {
			t.Errorf("expected empty article list for %q, got %v", id, c.Articles)
		}
	}
	if strings.Contains(rr.Body.String(), "q1") {
		t.Error("fallback categories must not expose search queries")
	}
}

func TestHealthAndReadiness(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research.json")
	s, _, _ := newTestServer(t, path, nil)

	if rr := do(s, http.MethodGet, "/healthz"); rr.Code != http.StatusOK {
		t.Errorf("expected healthz 200, got %d", rr.Code)
	}
	if rr := do(s, http.MethodGet, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected readyz 503 before first snapshot, got %d", rr.Code)
	}

	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if rr := do(s, http.MethodGet, "/readyz"); rr.Code != http.StatusOK {
		t.Errorf("expected readyz 200 after snapshot, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, metrics := newTestServer(t, filepath.Join(t.TempDir(), "x.json"), nil)
	metrics.RecordRefreshStarted()

	rr := do(s, http.MethodGet, "/metrics")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "test_refresh_runs_started_total 1") {
		t.Errorf("expected refresh counter in metrics output")
	}
}

func TestRefreshHandler(t *testing.T) {
	snap := domain.NewSnapshot(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	snap.AddCategory(domain.Category{ID: "diagnosis", Title: "Diagnosis"}, []domain.Article{{ID: "1", Title: "T", URL: domain.ArticleURL("1")}})

	t.Run("success", func(t *testing.T) {
		var gotTrigger string
		refresher := &mockRefresher{tryRefreshFn: func(ctx context.Context, trigger string) (*pipeline.Result, error) {
			gotTrigger = trigger
			return &pipeline.Result{RunID: "run-9", Snapshot: snap, Duration: 2 * time.Second}, nil
		}}
		s, _, _ := newTestServer(t, "unused.json", refresher)

		rr := do(s, http.MethodPost, "/refresh")

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if gotTrigger != pipeline.TriggerManual {
			t.Errorf("expected manual trigger, got %q", gotTrigger)
		}
		var resp refreshResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.RunID != "run-9" || resp.TotalArticles != 1 || resp.ArticleCounts["diagnosis"] != 1 {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("already running", func(t *testing.T) {
		refresher := &mockRefresher{tryRefreshFn: func(context.Context, string) (*pipeline.Result, error) {
			return nil, pipeline.ErrRefreshInProgress
		}}
		s, _, _ := newTestServer(t, "unused.json", refresher)

		if rr := do(s, http.MethodPost, "/refresh"); rr.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rr.Code)
		}
	})

	t.Run("upstream failure does not leak details", func(t *testing.T) {
		refresher := &mockRefresher{tryRefreshFn: func(context.Context, string) (*pipeline.Result, error) {
			return nil, domain.NewUpstreamHTTPError("PubMed", "esearch.fcgi", 500, "internal stack trace")
		}}
		s, _, _ := newTestServer(t, "unused.json", refresher)

		rr := do(s, http.MethodPost, "/refresh")
		if rr.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rr.Code)
		}
		if strings.Contains(rr.Body.String(), "stack trace") {
			t.Errorf("response leaked upstream body: %s", rr.Body.String())
		}
	})

	t.Run("not mounted without refresher", func(t *testing.T) {
		s, _, _ := newTestServer(t, "unused.json", nil)

		if rr := do(s, http.MethodPost, "/refresh"); rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected refresh route to be absent, got %d", rr.Code)
		}
	})
}
