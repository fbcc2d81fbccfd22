// Package pipeline turns the category catalog into a research feed snapshot by
// driving a literature source through its search, summary and abstract stages.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/observability"
	"github.com/helixir/research-feed-service/internal/papersources"
)

// Stage names used in logs, metrics and wrapped errors.
const (
	StageSearch    = "search"
	StageSummaries = "summaries"
	StageAbstracts = "abstracts"
)

const (
	// DefaultStageDelay is the pause between upstream API families within a category.
	DefaultStageDelay = 350 * time.Millisecond

	// DefaultFallbackSnippet is shown for articles without an abstract.
	DefaultFallbackSnippet = "Abstract not available. Open the PubMed record for details."
)

// AssemblerConfig holds the tunables of a refresh run.
type AssemblerConfig struct {
	// MaxResults caps the ids requested per category.
	MaxResults int

	// StageDelay is waited after Search and after Summaries whenever a category
	// produced ids. Zero disables pacing.
	StageDelay time.Duration

	// FallbackSnippet replaces a missing abstract.
	FallbackSnippet string
}

// Assembler builds a complete snapshot from a catalog. It holds no state
// between runs.
type Assembler struct {
	source     papersources.LiteratureSource
	categories []domain.Category
	cfg        AssemblerConfig
	logger     zerolog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewAssembler creates an Assembler. metrics may be nil.
func NewAssembler(
	source papersources.LiteratureSource,
	categories []domain.Category,
	cfg AssemblerConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Assembler {
	if cfg.FallbackSnippet == "" {
		cfg.FallbackSnippet = DefaultFallbackSnippet
	}
	if cfg.StageDelay < 0 {
		cfg.StageDelay = 0
	}

	cats := make([]domain.Category, len(categories))
	copy(cats, categories)

	return &Assembler{
		source:     source,
		categories: cats,
		cfg:        cfg,
		logger:     observability.WithComponent(logger, "assembler"),
		metrics:    metrics,
		now:        time.Now,
		sleep:      wait,
	}
}

// Run processes every category in catalog order and returns the assembled
// snapshot. The first stage error aborts the run and no snapshot is returned.
func (a *Assembler) Run(ctx context.Context) (*domain.Snapshot, error) {
	snapshot := domain.NewSnapshot(a.now())

	for _, category := range a.categories {
		articles, err := a.assembleCategory(observability.WithCategory(ctx, category.ID), category)
		if err != nil {
			return nil, err
		}
		snapshot.AddCategory(category, articles)
	}

	return snapshot, nil
}

func (a *Assembler) assembleCategory(ctx context.Context, category domain.Category) ([]domain.Article, error) {
	logger := observability.WithCategoryContext(a.logger, category.ID, category.Query)

	var ids []domain.RecordID
	err := a.stage(ctx, category, StageSearch, 0, func(ctx context.Context) error {
		var err error
		ids, err = a.source.Search(ctx, category.Query, a.cfg.MaxResults)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		logger.Info().Msg("no records found")
		a.recordCategory(category.ID, 0, 0, 0)
		return []domain.Article{}, nil
	}

	if err := a.sleep(ctx, a.cfg.StageDelay); err != nil {
		return nil, fmt.Errorf("category %s: %w", category.ID, err)
	}

	var summaries map[domain.RecordID]papersources.Summary
	err = a.stage(ctx, category, StageSummaries, len(ids), func(ctx context.Context) error {
		var err error
		summaries, err = a.source.Summaries(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := a.sleep(ctx, a.cfg.StageDelay); err != nil {
		return nil, fmt.Errorf("category %s: %w", category.ID, err)
	}

	var abstracts map[domain.RecordID]string
	err = a.stage(ctx, category, StageAbstracts, len(ids), func(ctx context.Context) error {
		var err error
		abstracts, err = a.source.Abstracts(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	articles, missingSummaries, missingAbstracts := a.merge(ids, summaries, abstracts)

	logger.Info().
		Int("ids", len(ids)).
		Int("articles", len(articles)).
		Int("missing_summaries", missingSummaries).
		Int("missing_abstracts", missingAbstracts).
		Msg("category assembled")
	a.recordCategory(category.ID, len(articles), missingSummaries, missingAbstracts)

	return articles, nil
}

// stage runs fn with timing and wraps its error with the stage and category.
func (a *Assembler) stage(ctx context.Context, category domain.Category, name string, ids int, fn func(context.Context) error) error {
	logger := observability.WithStageContext(a.logger, name, ids)
	logger.Debug().Str("category", category.ID).Msg("stage started")

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		rc := observability.RunContextFromContext(ctx)
		logger.Error().Err(err).
			Str("run_id", rc.RunID).
			Str("category", rc.Category).
			Msg("stage failed")
		if a.metrics != nil {
			a.metrics.RecordStageFailed(name, elapsed)
		}
		return fmt.Errorf("%s stage for category %s: %w", name, category.ID, err)
	}
	if a.metrics != nil {
		a.metrics.RecordStageCompleted(name, elapsed)
	}
	return nil
}

// merge builds articles in search order. Ids without a summary are dropped;
// ids without an abstract get the fallback snippet.
func (a *Assembler) merge(
	ids []domain.RecordID,
	summaries map[domain.RecordID]papersources.Summary,
	abstracts map[domain.RecordID]string,
) (articles []domain.Article, missingSummaries, missingAbstracts int) {
	articles = make([]domain.Article, 0, len(ids))
	for _, id := range ids {
		summary, ok := summaries[id]
		if !ok {
			missingSummaries++
			continue
		}

		snippet, ok := abstracts[id]
		if !ok || snippet == "" {
			snippet = a.cfg.FallbackSnippet
			missingAbstracts++
		}

		articles = append(articles, domain.Article{
			ID:        id,
			Title:     summary.Title,
			Journal:   summary.Journal,
			Published: summary.Published,
			URL:       domain.ArticleURL(id),
			Authors:   summary.Authors,
			Snippet:   snippet,
		})
	}
	return articles, missingSummaries, missingAbstracts
}

func (a *Assembler) recordCategory(id string, articles, missingSummaries, missingAbstracts int) {
	if a.metrics != nil {
		a.metrics.RecordCategory(id, articles, missingSummaries, missingAbstracts)
	}
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
