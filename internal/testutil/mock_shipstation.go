// Package testutil provides testing utilities for the ShipStation tap.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"
)

// MockResponse defines the behavior for a mock upstream endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

// MockShipStation is a configurable mock upstream API server for testing.
type MockShipStation struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	LastQuery    url.Values
	LastHeader   http.Header
	LastPath     string
}

// NewMockShipStation creates a new mock upstream server.
func NewMockShipStation() *MockShipStation {
	mock := &MockShipStation{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		mock.LastHeader = r.Header.Clone()
		mock.LastPath = r.URL.Path
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockShipStation) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockShipStation) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockShipStation) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
	m.LastHeader = nil
	m.LastPath = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockShipStation) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockShipStation) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockShipStation) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Query returns the most recent request's query parameters.
func (m *MockShipStation) Query() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// SetPagedEndpoint installs a handler that serves records page by page
// from recordsPerPage, with page/pages counters and a total when
// withCounters is true, and bare record arrays otherwise (exercising the
// size-heuristic continuation).
func (m *MockShipStation) SetPagedEndpoint(path, resource string, recordsPerPage [][]map[string]any, withCounters bool) {
	total := 0
	for _, page := range recordsPerPage {
		total += len(page)
	}
	pages := len(recordsPerPage)

	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}

		var records []map[string]any
		if page <= pages {
			records = recordsPerPage[page-1]
		} else {
			records = []map[string]any{}
		}

		envelope := map[string]any{resource: records}
		if withCounters {
			envelope["total"] = total
			envelope["page"] = page
			envelope["pages"] = pages
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Rate-Limit-Remaining", "39")
		w.Header().Set("X-Rate-Limit-Reset", "30")
		w.WriteHeader(http.StatusOK)
		body, _ := json.Marshal(envelope)
		w.Write(body)
	})
}

// PagedBody renders one page envelope as a response body.
func PagedBody(resource string, records []map[string]any, total, page, pages int) string {
	envelope := map[string]any{
		resource: records,
		"total":  total,
		"page":   page,
		"pages":  pages,
	}
	body, _ := json.Marshal(envelope)
	return string(body)
}

// Records builds n trivial records with sequential identifiers.
func Records(idField string, start, n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, map[string]any{
			idField:      fmt.Sprintf("%d", start+i),
			"created_at": "2024-01-01T10:00:00Z",
		})
	}
	return records
}

// NewHealthyResponse creates a 200 response with rate limit headers.
func NewHealthyResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type":           "application/json",
			"X-Rate-Limit-Remaining": "40",
			"X-Rate-Limit-Reset":     "30",
		},
	}
}

// NewRateLimitResponse creates a 429 response. When resetSeconds is
// negative no reset header is set, forcing the fixed fallback delay.
func NewRateLimitResponse(resetSeconds int) MockResponse {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if resetSeconds >= 0 {
		headers["X-Rate-Limit-Remaining"] = "0"
		headers["X-Rate-Limit-Reset"] = strconv.Itoa(resetSeconds)
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers:    headers,
	}
}

// NewAuthErrorResponse creates a 401 plain-text response, the shape the
// upstream actually serves when credentials are rejected.
func NewAuthErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       "401 Unauthorized",
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}
}

// NewHTMLErrorResponse creates a 200 response carrying an HTML error page,
// the disguised-failure case.
func NewHTMLErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html><body><h1>Service error</h1></body></html>",
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}
