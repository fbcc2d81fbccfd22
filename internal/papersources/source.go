// Package papersources provides the rate-limited HTTP plumbing and the stage
// contract used to pull literature from an upstream index.
//
// A refresh run drives one LiteratureSource through three dependent stages per
// category:
//
//	ids, err := source.Search(ctx, category.Query, maxResults)
//	summaries, err := source.Summaries(ctx, ids)
//	abstracts, err := source.Abstracts(ctx, ids)
//
// Stages are called strictly in that order; each consumes the ids produced by
// Search.
package papersources

import (
	"context"

	"github.com/helixir/research-feed-service/internal/domain"
)

// Summary is the bibliographic metadata one record carries upstream. Optional
// fields are empty strings when upstream omitted them.
type Summary struct {
	ID        domain.RecordID
	Title     string
	Journal   string
	Published string
	Authors   []string
}

// LiteratureSource defines the three stages a literature index must provide.
type LiteratureSource interface {
	// Search resolves a search expression to record ids, most recent first,
	// returning at most maxResults ids. Zero matches is an empty slice, not an error.
	Search(ctx context.Context, query string, maxResults int) ([]domain.RecordID, error)

	// Summaries fetches metadata for all ids in one batch. Ids upstream does not
	// return are absent from the map. An empty input returns an empty map
	// without issuing a request.
	Summaries(ctx context.Context, ids []domain.RecordID) (map[domain.RecordID]Summary, error)

	// Abstracts fetches abstract text for all ids in one batch. Records with no
	// abstract are absent from the map. An empty input returns an empty map
	// without issuing a request.
	Abstracts(ctx context.Context, ids []domain.RecordID) (map[domain.RecordID]string, error)

	// Name returns a human-readable name for logs and metrics.
	Name() string
}
