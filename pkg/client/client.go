// Package client provides the paginated ShipStation HTTP client with rate
// limit compliance, pagination continuation, and error classification.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/helmsync/shipstation-tap/pkg/ratelimit"
)

// Prometheus metrics for upstream API operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipstation_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipstation_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipstation_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipstation_pages_total",
		Help: "Total pages fetched by endpoint",
	}, []string{"endpoint"})
)

// Record is one raw upstream record as decoded from a response body.
type Record map[string]any

// Params are the query parameters for one paginated request, window-bound
// filters included. The page counter itself is managed by the iterator.
type Params map[string]string

// AuthMode identifies how requests are authenticated. The mode is chosen
// once per client instance; the two modes are mutually exclusive.
type AuthMode string

const (
	// AuthModeAPIKey sends the key in an API-Key header.
	AuthModeAPIKey AuthMode = "api-key-header"

	// AuthModeBasic sends key and secret as HTTP basic auth credentials.
	// Selected when a secondary secret credential is configured.
	AuthModeBasic AuthMode = "basic"
)

// DefaultBaseURL is the current API generation's base path.
const DefaultBaseURL = "https://api.shipstation.com/v2"

// endpointPaths maps resource names to their primary base paths. The
// response body keys its record array by the same resource name.
var endpointPaths = map[string]string{
	"shipments": "/shipments",
	"orders":    "/orders",
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the upstream API base path (default: DefaultBaseURL).
	BaseURL string

	// APIKey is the primary credential (required).
	APIKey string

	// APISecret is the secondary credential. When set, the client switches
	// from header auth to basic auth for every request.
	APISecret string

	// PageSize is the number of records requested per page (default: 100).
	PageSize int

	// PageSizeParam is the query parameter name for the page size. The
	// current generation expects "page_size"; legacy generations used
	// "pageSize".
	PageSizeParam string

	// UserAgent is sent with every request when set.
	UserAgent string

	// Timeout bounds a single HTTP request (default: 30s).
	Timeout time.Duration

	// FallbackDelay is the wait applied after a 429 that advertises no
	// reset delay (default: 60s).
	FallbackDelay time.Duration
}

// DefaultConfig returns a configuration with upstream-appropriate defaults.
func DefaultConfig(apiKey, apiSecret string) Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		APIKey:        apiKey,
		APISecret:     apiSecret,
		PageSize:      100,
		PageSizeParam: "page_size",
		Timeout:       30 * time.Second,
		FallbackDelay: 60 * time.Second,
	}
}

// Client issues authenticated, rate-limit-compliant requests against the
// upstream API and walks paginated endpoints to exhaustion.
type Client struct {
	httpClient *http.Client
	config     Config
	authMode   AuthMode
	limiter    *ratelimit.Observer
	logger     zerolog.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new client. The auth mode is fixed here: basic auth when a
// secret is configured, header auth otherwise.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.PageSizeParam == "" {
		cfg.PageSizeParam = "page_size"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FallbackDelay <= 0 {
		cfg.FallbackDelay = 60 * time.Second
	}

	authMode := AuthModeAPIKey
	if cfg.APISecret != "" {
		authMode = AuthModeBasic
	}

	logger := log.With().Str("component", "shipstation-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:   cfg,
		authMode: authMode,
		limiter:  ratelimit.NewObserver(logger),
		logger:   logger,
		sleep:    sleepCtx,
	}, nil
}

// AuthMode returns the authentication mode chosen at construction.
func (c *Client) AuthMode() AuthMode {
	return c.authMode
}

// get performs one authenticated GET against path with the given query.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) (*http.Response, int, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	switch c.authMode {
	case AuthModeBasic:
		req.SetBasicAuth(c.config.APIKey, c.config.APISecret)
	default:
		req.Header.Set("API-Key", c.config.APIKey)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("path", path).
		Str("query", req.URL.RawQuery).
		Msg("Requesting page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, 0, &APIError{
			Endpoint: endpoint,
			Class:    ErrorClassNetwork,
			Message:  "request failed",
			Err:      err,
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, resp.StatusCode, nil
}

// waitAfterTooManyRequests blocks after a 429 response. The advertised
// reset delay is honored when present; otherwise the fixed fallback delay
// applies. The same page is requested again afterwards.
func (c *Client) waitAfterTooManyRequests(ctx context.Context, headers http.Header) error {
	delay := c.config.FallbackDelay
	advertised := false

	if resetStr := headers.Get(ratelimit.HeaderReset); resetStr != "" {
		if v, err := strconv.Atoi(resetStr); err == nil {
			delay = time.Duration(v)*time.Second + ratelimit.ResetBuffer
			advertised = true
		}
	}

	c.logger.Warn().
		Dur("delay", delay).
		Bool("advertised_reset", advertised).
		Msg("Received 429, waiting before retrying the same page")

	return c.sleep(ctx, delay)
}

// sleepCtx sleeps for d, returning early if the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
