package pubmed

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/research-feed-service/internal/domain"
	"github.com/helixir/research-feed-service/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	DefaultRateLimit = 3.0

	// KeyedRateLimit is the rate limit NCBI grants to requests carrying an API key.
	KeyedRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum ids per search.
	DefaultMaxResults = 5

	// MaxResultsLimit is the maximum results allowed per request by the API.
	MaxResultsLimit = 10000

	// MaxAuthors is the number of author names kept per record.
	MaxAuthors = 5

	// UnknownJournal labels records that carry neither a full journal name nor a source.
	UnknownJournal = "Unknown journal"

	// DefaultUserAgent identifies the service to NCBI.
	DefaultUserAgent = "research-feed-service/1.0 (contact: data-maintainer@example.com)"

	sourceName = "PubMed"

	endpointSearch  = "esearch.fcgi"
	endpointSummary = "esummary.fcgi"
	endpointFetch   = "efetch.fcgi"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits. Surrounding
	// whitespace is trimmed; an empty key is never sent.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to
	// DefaultRateLimit, or KeyedRateLimit when an API key is set.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults caps Search when the caller passes a non-positive limit.
	MaxResults int

	// UserAgent is sent with every request.
	UserAgent string

	// Recorder receives per-request telemetry. Optional.
	Recorder papersources.RequestRecorder
}

func (c *Config) applyDefaults() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
		if c.APIKey != "" {
			c.RateLimit = KeyedRateLimit
		}
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.MaxResults > MaxResultsLimit {
		c.MaxResults = MaxResultsLimit
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Client implements papersources.LiteratureSource against NCBI E-utilities.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

// Compile-time check that Client implements LiteratureSource.
var _ papersources.LiteratureSource = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := papersources.HTTPClientConfig{
		BaseURL:    cfg.BaseURL,
		SourceName: sourceName,
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		UserAgent:  cfg.UserAgent,
		APIKey:     cfg.APIKey,
		Recorder:   cfg.Recorder,
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// Search returns up to maxResults record ids matching query, most recently
// published first. A non-positive maxResults uses the configured cap.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.RecordID, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "json")
	params.Set("sort", "pub_date")
	params.Set("retmax", strconv.Itoa(maxResults))
	params.Set("term", query)

	var resp ESearchResponse
	if err := c.httpClient.GetJSON(ctx, endpointSearch, params, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, domain.NewMalformedResponseError(sourceName, endpointSearch, "missing esearchresult object", nil)
	}

	ids := make([]domain.RecordID, 0, len(resp.Result.IDList))
	for _, id := range resp.Result.IDList {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Summaries fetches bibliographic metadata for ids in a single request.
// Ids upstream does not return, or returns with an error marker, are absent
// from the result.
func (c *Client) Summaries(ctx context.Context, ids []domain.RecordID) (map[domain.RecordID]papersources.Summary, error) {
	summaries := make(map[domain.RecordID]papersources.Summary, len(ids))
	if len(ids) == 0 {
		return summaries, nil
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "json")
	params.Set("id", strings.Join(ids, ","))

	var resp ESummaryResponse
	if err := c.httpClient.GetJSON(ctx, endpointSummary, params, &resp); err != nil {
		return nil, err
	}
	if resp.Result == nil {
		return nil, domain.NewMalformedResponseError(sourceName, endpointSummary, "missing result object", nil)
	}

	for key, raw := range resp.Result {
		if key == "uids" {
			continue
		}
		var doc DocSummary
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if doc.Error != "" {
			continue
		}
		id := doc.UID
		if id == "" {
			id = key
		}
		summaries[id] = toSummary(id, doc)
	}

	return summaries, nil
}

// Abstracts fetches abstract text for ids in a single request. Records
// without an abstract are absent from the result.
func (c *Client) Abstracts(ctx context.Context, ids []domain.RecordID) (map[domain.RecordID]string, error) {
	if len(ids) == 0 {
		return map[domain.RecordID]string{}, nil
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")
	params.Set("id", strings.Join(ids, ","))

	body, err := c.httpClient.GetText(ctx, endpointFetch, params)
	if err != nil {
		return nil, err
	}

	return ExtractAbstracts(body), nil
}

func toSummary(id domain.RecordID, doc DocSummary) papersources.Summary {
	journal := doc.FullJournalName
	if journal == "" {
		journal = doc.Source
	}
	if journal == "" {
		journal = UnknownJournal
	}

	authors := make([]string, 0, min(len(doc.Authors), MaxAuthors))
	for _, a := range doc.Authors {
		if len(authors) == MaxAuthors {
			break
		}
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	return papersources.Summary{
		ID:        id,
		Title:     doc.Title,
		Journal:   journal,
		Published: doc.PubDate,
		Authors:   authors,
	}
}
