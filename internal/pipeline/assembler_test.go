package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/observability"
	"github.com/helixir/research-feed-service/internal/papersources"
	"github.com/helixir/research-feed-service/internal/papersources/pubmed"
)

// fakeSource is an in-memory LiteratureSource that records stage calls.
type fakeSource struct {
	ids       map[string][]domain.RecordID
	summaries map[domain.RecordID]papersources.Summary
	abstracts map[domain.RecordID]string

	searchErr   error
	summaryErr  error
	abstractErr error

	calls []string
}

func (f *fakeSource) Search(_ context.Context, query string, maxResults int) ([]domain.RecordID, error) {
	f.calls = append(f.calls, "search:"+query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	ids := f.ids[query]
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (f *fakeSource) Summaries(_ context.Context, ids []domain.RecordID) (map[domain.RecordID]papersources.Summary, error) {
	f.calls = append(f.calls, "summaries:"+strings.Join(ids, ","))
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	out := make(map[domain.RecordID]papersources.Summary)
	for _, id := range ids {
		if s, ok := f.summaries[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeSource) Abstracts(_ context.Context, ids []domain.RecordID) (map[domain.RecordID]string, error) {
	f.calls = append(f.calls, "abstracts:"+strings.Join(ids, ","))
	if f.abstractErr != nil {
		return nil, f.abstractErr
	}
	out := make(map[domain.RecordID]string)
	for _, id := range ids {
		if a, ok := f.abstracts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (f *fakeSource) Name() string { return "fake" }

var testCategories = []domain.Category{
	{ID: "diagnosis", Title: "Diagnosis", Summary: "Early signs.", Query: "q-diagnosis"},
	{ID: "treatment", Title: "Treatment", Summary: "Therapies.", Query: "q-treatment"},
}

func newTestAssembler(source papersources.LiteratureSource, categories []domain.Category, metrics *observability.Metrics) (*Assembler, *[]time.Duration) {
	a := NewAssembler(source, categories, AssemblerConfig{MaxResults: 5, StageDelay: 350 * time.Millisecond}, zerolog.New(io.Discard), metrics)
	a.now = func() time.Time { return time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC) }

	var waits []time.Duration
	a.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return a, &waits
}

func TestNewAssembler_Defaults(t *testing.T) {
	a := NewAssembler(&fakeSource{}, testCategories, AssemblerConfig{StageDelay: -time.Second}, zerolog.New(io.Discard), nil)

	assert.Equal(t, DefaultFallbackSnippet, a.cfg.FallbackSnippet)
	assert.Equal(t, time.Duration(0), a.cfg.StageDelay)
}

func TestAssembler_Run(t *testing.T) {
	source := &fakeSource{
		ids: map[string][]domain.RecordID{
			"q-diagnosis": {"30", "20", "10"},
		},
		summaries: map[domain.RecordID]papersources.Summary{
			"30": {ID: "30", Title: "Newest", Journal: "J One", Published: "2026 Mar", Authors: []string{"A"}},
			"10": {ID: "10", Title: "Oldest", Journal: "J Two", Published: "2025"},
		},
		abstracts: map[domain.RecordID]string{
			"10": "Oldest abstract.",
		},
	}
	a, waits := newTestAssembler(source, testCategories, nil)

	snap, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC), snap.LastUpdated)
	assert.Equal(t, []domain.Source{domain.PubMedSource}, snap.Sources)
	require.Len(t, snap.Categories, 2)

	diagnosis := snap.Categories[0]
	assert.Equal(t, "diagnosis", diagnosis.ID)
	assert.Equal(t, "Early signs.", diagnosis.Summary)
	require.Len(t, diagnosis.Articles, 2, "record 20 has no summary and is dropped")

	assert.Equal(t, domain.Article{
		ID:        "30",
		Title:     "Newest",
		Journal:   "J One",
		Published: "2026 Mar",
		URL:       "https://pubmed.ncbi.nlm.nih.gov/30/",
		Authors:   []string{"A"},
		Snippet:   DefaultFallbackSnippet,
	}, diagnosis.Articles[0])
	assert.Equal(t, "10", diagnosis.Articles[1].ID)
	assert.Equal(t, "Oldest abstract.", diagnosis.Articles[1].Snippet)

	treatment := snap.Categories[1]
	assert.Equal(t, "treatment", treatment.ID)
	assert.NotNil(t, treatment.Articles)
	assert.Empty(t, treatment.Articles)

	assert.Equal(t, []string{
		"search:q-diagnosis",
		"summaries:30,20,10",
		"abstracts:30,20,10",
		"search:q-treatment",
	}, source.calls)
	assert.Equal(t, []time.Duration{350 * time.Millisecond, 350 * time.Millisecond}, *waits,
		"pacing only happens for categories with ids")
}

func TestAssembler_Run_RespectsMaxResults(t *testing.T) {
	source := &fakeSource{
		ids: map[string][]domain.RecordID{"q-diagnosis": {"1", "2", "3", "4", "5", "6", "7"}},
	}
	a, _ := newTestAssembler(source, testCategories[:1], nil)
	a.cfg.MaxResults = 3

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, source.calls, "summaries:1,2,3")
}

func TestAssembler_Run_StageErrors(t *testing.T) {
	upstream := domain.NewUpstreamHTTPError("PubMed", "esummary.fcgi", 500, "boom")

	tests := []struct {
		name      string
		source    *fakeSource
		stage     string
		wantCalls int
	}{
		{
			name:      "search failure",
			source:    &fakeSource{searchErr: upstream},
			stage:     StageSearch,
			wantCalls: 1,
		},
		{
			name: "summary failure",
			source: &fakeSource{
				ids:        map[string][]domain.RecordID{"q-diagnosis": {"1"}},
				summaryErr: upstream,
			},
			stage:     StageSummaries,
			wantCalls: 2,
		},
		{
			name: "abstract failure",
			source: &fakeSource{
				ids:         map[string][]domain.RecordID{"q-diagnosis": {"1"}},
				summaries:   map[domain.RecordID]papersources.Summary{"1": {ID: "1", Title: "T"}},
				abstractErr: domain.NewMalformedResponseError("PubMed", "efetch.fcgi", "bad", nil),
			},
			stage:     StageAbstracts,
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAssembler(tt.source, testCategories, nil)

			snap, err := a.Run(context.Background())
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.Contains(t, err.Error(), tt.stage+" stage for category diagnosis")
			assert.Len(t, tt.source.calls, tt.wantCalls, "the run aborts at the first failure")
		})
	}

	t.Run("errors keep their sentinel", func(t *testing.T) {
		a, _ := newTestAssembler(&fakeSource{searchErr: upstream}, testCategories, nil)
		_, err := a.Run(context.Background())
		assert.ErrorIs(t, err, domain.ErrUpstream)

		var httpErr *domain.UpstreamHTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, 500, httpErr.StatusCode)
	})
}

func TestAssembler_Run_CancelledDuringWait(t *testing.T) {
	source := &fakeSource{ids: map[string][]domain.RecordID{"q-diagnosis": {"1"}}}
	a := NewAssembler(source, testCategories, AssemblerConfig{MaxResults: 5, StageDelay: time.Hour}, zerolog.New(io.Discard), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"search:q-diagnosis"}, source.calls)
}

func TestAssembler_Run_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	source := &fakeSource{
		ids:       map[string][]domain.RecordID{"q-diagnosis": {"1", "2"}},
		summaries: map[domain.RecordID]papersources.Summary{"1": {ID: "1", Title: "T"}},
	}
	a, _ := newTestAssembler(source, testCategories, metrics)

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ArticlesPerCategory.WithLabelValues("diagnosis")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.ArticlesPerCategory.WithLabelValues("treatment")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SummariesMissing.WithLabelValues("diagnosis")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AbstractsMissing.WithLabelValues("diagnosis")))
}

func TestWait(t *testing.T) {
	t.Run("zero duration returns immediately", func(t *testing.T) {
		assert.NoError(t, wait(context.Background(), 0))
	})

	t.Run("waits for the duration", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, wait(context.Background(), 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
	})
}

func TestAssembler_EndToEnd(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
			assert.Equal(t, "pubmed", r.URL.Query().Get("db"))
			assert.Equal(t, "5", r.URL.Query().Get("retmax"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"esearchresult": {"count": "2", "idlist": ["1", "2"]}}`))
		case strings.HasSuffix(r.URL.Path, "/esummary.fcgi"):
			assert.Equal(t, "1,2", r.URL.Query().Get("id"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result": {"uids": ["1"], "1": {
				"uid": "1",
				"title": "Only summarized record.",
				"fulljournalname": "Journal of Tests",
				"pubdate": "2026 Jan",
				"authors": [{"name": "Tester T"}]
			}}}`))
		case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
			assert.Equal(t, "1,2", r.URL.Query().Get("id"))
			w.Header().Set("Content-Type", "text/xml")
			_, _ = w.Write([]byte(`<?xml version="1.0" ?>
<PubmedArticleSet>
<PubmedArticle><MedlineCitation><PMID Version="1">1</PMID><Article><Abstract>
<AbstractText>Record one abstract.</AbstractText>
</Abstract></Article></MedlineCitation></PubmedArticle>
<PubmedArticle><MedlineCitation><PMID Version="1">2</PMID><Article></Article></MedlineCitation></PubmedArticle>
</PubmedArticleSet>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := pubmed.New(pubmed.Config{BaseURL: server.URL, RateLimit: 100, BurstSize: 10})
	category := domain.Category{ID: "diagnosis", Title: "Diagnosis", Summary: "Early signs.", Query: "schizophrenia[Title]"}
	a := NewAssembler(client, []domain.Category{category}, AssemblerConfig{MaxResults: 5}, zerolog.New(io.Discard), nil)

	snap, err := a.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Categories, 1)
	require.Len(t, snap.Categories[0].Articles, 1)
	article := snap.Categories[0].Articles[0]
	assert.Equal(t, "1", article.ID)
	assert.Equal(t, "Only summarized record.", article.Title)
	assert.Equal(t, "Journal of Tests", article.Journal)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/1/", article.URL)
	assert.Equal(t, []string{"Tester T"}, article.Authors)
	assert.Equal(t, "Record one abstract.", article.Snippet)

	assert.Equal(t, []string{"/esearch.fcgi", "/esummary.fcgi", "/efetch.fcgi"}, paths)
}
