// Package domain provides domain models and business logic for the research feed service.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// RecordID is an upstream PubMed identifier (PMID). It is kept as a string even
// though it looks numeric so no precision is ever lost.
type RecordID = string

// TimestampLayout renders lastUpdated as UTC with exactly three fractional digits.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// PubMedArticleBaseURL is the prefix of a PubMed record's public detail page.
const PubMedArticleBaseURL = "https://pubmed.ncbi.nlm.nih.gov/"

// ArticleURL returns the detail-page URL for a record. The URL is derived from
// the id alone, so every article with an id has a URL.
func ArticleURL(id RecordID) string {
	return PubMedArticleBaseURL + strings.TrimSpace(id) + "/"
}

// Category is a fixed topical bucket with its own upstream search expression.
// Categories are defined at build time (or loaded once from a catalog file) and
// never mutated while the pipeline runs.
type Category struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Summary string `json:"summary" yaml:"summary"`
	Query   string `json:"query" yaml:"query"`
}

// Article is the assembled unit of display: summary fields plus a snippet.
type Article struct {
	ID        RecordID `json:"id"`
	Title     string   `json:"title"`
	Journal   string   `json:"journal,omitempty"`
	Published string   `json:"published,omitempty"`
	URL       string   `json:"url"`
	Authors   []string `json:"authors,omitempty"`
	Snippet   string   `json:"snippet,omitempty"`
}

// CategoryArticles is a category as persisted in the snapshot: the catalog
// fields without the query, plus its article list. Articles is never nil so it
// always serializes as a JSON array.
type CategoryArticles struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Articles []Article `json:"articles"`
}

// Source describes where the snapshot's data came from.
type Source struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PubMedSource is the provenance entry written into every snapshot.
var PubMedSource = Source{
	Name:        "PubMed",
	URL:         PubMedArticleBaseURL,
	Description: "Search provided by the National Library of Medicine (NIH).",
}

// Snapshot is the complete payload consumed by the presentation layer.
type Snapshot struct {
	LastUpdated time.Time          `json:"lastUpdated"`
	Categories  []CategoryArticles `json:"categories"`
	Sources     []Source           `json:"sources"`
}

// MarshalJSON encodes LastUpdated with TimestampLayout so whole seconds keep
// their ".000" fraction.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	return json.Marshal(struct {
		LastUpdated string `json:"lastUpdated"`
		plain
	}{
		LastUpdated: s.LastUpdated.UTC().Format(TimestampLayout),
		plain:       plain(s),
	})
}

// NewSnapshot returns an empty snapshot stamped with the given time in UTC,
// truncated to millisecond precision.
func NewSnapshot(at time.Time) *Snapshot {
	return &Snapshot{
		LastUpdated: at.UTC().Truncate(time.Millisecond),
		Categories:  []CategoryArticles{},
		Sources:     []Source{PubMedSource},
	}
}

// AddCategory appends a category with its articles. A nil article list is
// stored as an empty one.
func (s *Snapshot) AddCategory(c Category, articles []Article) {
	if articles == nil {
		articles = []Article{}
	}
	s.Categories = append(s.Categories, CategoryArticles{
		ID:       c.ID,
		Title:    c.Title,
		Summary:  c.Summary,
		Articles: articles,
	})
}

// TotalArticles returns the number of articles across all categories.
func (s *Snapshot) TotalArticles() int {
	total := 0
	for _, c := range s.Categories {
		total += len(c.Articles)
	}
	return total
}

// ArticleCounts returns the article count keyed by category id.
func (s *Snapshot) ArticleCounts() map[string]int {
	counts := make(map[string]int, len(s.Categories))
	for _, c := range s.Categories {
		counts[c.ID] = len(c.Articles)
	}
	return counts
}
