package papersources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/research-feed-service/internal/domain"
)

// maxBodyBytes caps how much of an upstream response body is read.
const maxBodyBytes = 10 << 20

// RequestRecorder receives per-request telemetry. observability.Metrics implements it.
type RequestRecorder interface {
	RecordSourceRequest(source, endpoint string, durationSeconds float64)
	RecordSourceRequestFailed(source, endpoint, errorType string)
}

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// BaseURL is the API root that endpoint names are appended to.
	BaseURL string

	// SourceName labels errors and metrics (e.g. "PubMed").
	SourceName string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional credential. When non-empty after trimming it is
	// sent as the APIKeyParam query parameter.
	APIKey string

	// APIKeyParam is the query parameter name for the API key (default "api_key").
	APIKeyParam string

	// Recorder is optional; nil disables request telemetry.
	Recorder RequestRecorder
}

// HTTPClient wraps http.Client with rate limiting, a fixed identifying header,
// and optional credential injection. Each call performs exactly one round trip;
// there are no retries. It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 3
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "research-feed-service/1.0"
	}
	if cfg.APIKeyParam == "" {
		cfg.APIKeyParam = "api_key"
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "upstream"
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// BuildURL returns the fully-qualified request URL for an endpoint, including
// the API key parameter when one is configured.
func (c *HTTPClient) BuildURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(c.config.BaseURL + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if c.config.APIKey != "" {
		q.Set(c.config.APIKeyParam, c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Do executes an HTTP request after waiting for the rate limiter. It sets the
// User-Agent header when the request has none.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get performs a GET against endpoint and returns the body of a 2xx response.
// Any other status yields a *domain.UpstreamHTTPError carrying the status code
// and the response text.
func (c *HTTPClient) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	rawURL, err := c.BuildURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		c.recordFailure(endpoint, "transport")
		return nil, err
	}
	defer resp.Body.Close()
	c.recordRequest(endpoint, time.Since(start))

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.recordFailure(endpoint, statusClass(resp.StatusCode))
		return nil, domain.NewUpstreamHTTPError(c.config.SourceName, endpoint, resp.StatusCode, string(body))
	}
	if readErr != nil {
		c.recordFailure(endpoint, "read")
		return nil, fmt.Errorf("failed to read response: %w", readErr)
	}

	return body, nil
}

// GetJSON performs Get and decodes the body into v. A body that is not valid
// JSON for v yields a *domain.MalformedResponseError.
func (c *HTTPClient) GetJSON(ctx context.Context, endpoint string, params url.Values, v any) error {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.recordFailure(endpoint, "decode")
		return domain.NewMalformedResponseError(c.config.SourceName, endpoint, "decode JSON body", err)
	}
	return nil
}

// GetText performs Get and returns the body as a string.
func (c *HTTPClient) GetText(ctx context.Context, endpoint string, params url.Values) (string, error) {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// SourceName returns the label used in errors and metrics.
func (c *HTTPClient) SourceName() string {
	return c.config.SourceName
}

func (c *HTTPClient) recordRequest(endpoint string, d time.Duration) {
	if c.config.Recorder != nil {
		c.config.Recorder.RecordSourceRequest(c.config.SourceName, endpoint, d.Seconds())
	}
}

func (c *HTTPClient) recordFailure(endpoint, errorType string) {
	if c.config.Recorder != nil {
		c.config.Recorder.RecordSourceRequestFailed(c.config.SourceName, endpoint, errorType)
	}
}

// statusClass buckets a status code for metric labels ("4xx", "5xx", ...).
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return fmt.Sprintf("%dxx", code/100)
}
