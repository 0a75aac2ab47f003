// Package client provides the GitHub API client used by the census: the
// cursor-paginated repository listing, the GraphQL nodes lookup, the
// search-based population estimate and the existence probe.
package client

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/repo-star-census/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for GitHub API calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_requests_total",
		Help: "Total GitHub API requests by API and status",
	}, []string{"api", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "census_request_duration_seconds",
		Help:    "GitHub API request duration in seconds by API",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"api"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "census_errors_total",
		Help: "Total GitHub API errors by class",
	}, []string{"class"})
)

// API names used in metrics and errors.
const (
	APIListing = "listing"
	APILookup  = "lookup"
	APISearch  = "search"
)

// Default endpoints.
const (
	DefaultRESTBaseURL = "https://api.github.com"
	DefaultGraphQLURL  = "https://api.github.com/graphql"
	DefaultUserAgent   = "repo-star-census/0.1.0"
)

// Client is the GitHub API client. It is safe to share but the census
// drives it from a single goroutine.
type Client struct {
	httpClient *http.Client
	backoff    *ratelimit.Backoff
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration. Endpoints are injected here
// rather than read from globals.
type Config struct {
	// Token is the GitHub credential (REQUIRED).
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// Endpoints
	RESTBaseURL string
	GraphQLURL  string

	// Timeout per request. A stalled call fails after this and is
	// treated as end-of-data by the caller.
	Timeout time.Duration

	// Backoff applied to throttled responses (nil = default).
	Backoff *ratelimit.Backoff
}

// DefaultConfig returns a default configuration for the public GitHub API.
func DefaultConfig(token string) Config {
	return Config{
		Token:       token,
		UserAgent:   DefaultUserAgent,
		RESTBaseURL: DefaultRESTBaseURL,
		GraphQLURL:  DefaultGraphQLURL,
		Timeout:     30 * time.Second,
	}
}

// New creates a new GitHub client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrTokenRequired
	}

	if cfg.RESTBaseURL == "" {
		cfg.RESTBaseURL = DefaultRESTBaseURL
	}
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = DefaultGraphQLURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	cfg.RESTBaseURL = strings.TrimRight(cfg.RESTBaseURL, "/")

	logger := log.With().Str("component", "github-client").Logger()

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = ratelimit.NewBackoff(ratelimit.DefaultBackoffConfig(),
			log.With().Str("component", "ratelimit").Logger())
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		backoff: backoff,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Do performs an authenticated request. On success the caller owns the
// response body. Any other outcome is returned as an *APIError; throttled
// responses are only returned after the backoff has slept.
func (c *Client) Do(req *http.Request, api string) (*http.Response, error) {
	ctx := req.Context()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(api).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	c.logger.Debug().
		Str("api", api).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("Executing GitHub request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(api, "network_error").Inc()
		c.logger.Warn().Err(err).Str("api", api).Msg("GitHub request failed")
		return nil, &APIError{
			API:        api,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(api, strconv.Itoa(resp.StatusCode)).Inc()

	// Blocks on throttled responses.
	c.backoff.Observe(ctx, resp)

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	resp.Body.Close()

	errClass := classifyStatus(resp.StatusCode)
	errorsTotal.WithLabelValues(string(errClass)).Inc()

	c.logger.Warn().
		Str("api", api).
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Msg("GitHub request error")

	return nil, &APIError{
		API:        api,
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    resp.Status,
	}
}

// classifyStatus categorizes a non-200 status code.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case ratelimit.IsThrottleStatus(statusCode):
		return ErrorClassRateLimit
	case statusCode >= 500:
		return ErrorClassServer
	default:
		// Other 2xx/3xx are unexpected for these APIs; treat them like 4xx.
		return ErrorClassClient
	}
}

// decodeError wraps a body decoding failure.
func decodeError(api string, statusCode int, err error) error {
	errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
	return &APIError{
		API:        api,
		StatusCode: statusCode,
		ErrorClass: ErrorClassDecode,
		Message:    "decode response body",
		Err:        err,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
