package client

import (
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			config:      DefaultConfig("key-123", ""),
			expectError: false,
		},
		{
			name:        "missing api key",
			config:      Config{},
			expectError: true,
			errorMsg:    "api key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got nil")
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c == nil {
				t.Fatal("Client is nil")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{APIKey: "key-123"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if c.config.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.config.BaseURL, DefaultBaseURL)
	}
	if c.config.PageSize != 100 {
		t.Errorf("PageSize = %d, want 100", c.config.PageSize)
	}
	if c.config.PageSizeParam != "page_size" {
		t.Errorf("PageSizeParam = %q, want %q", c.config.PageSizeParam, "page_size")
	}
	if c.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", c.config.Timeout)
	}
	if c.config.FallbackDelay != 60*time.Second {
		t.Errorf("FallbackDelay = %v, want 60s", c.config.FallbackDelay)
	}
}

func TestNew_AuthModeSelection(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		secret   string
		expected AuthMode
	}{
		{
			name:     "key only selects header auth",
			apiKey:   "key-123",
			expected: AuthModeAPIKey,
		},
		{
			name:     "secret switches to basic auth",
			apiKey:   "key-123",
			secret:   "secret-456",
			expected: AuthModeBasic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(DefaultConfig(tt.apiKey, tt.secret))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if c.AuthMode() != tt.expected {
				t.Errorf("AuthMode() = %q, want %q", c.AuthMode(), tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected ErrorClass
	}{
		{"unauthorized", 401, ErrorClassAuth},
		{"forbidden", 403, ErrorClassAuth},
		{"too many requests", 429, ErrorClassRateLimit},
		{"not found", 404, ErrorClassNotFound},
		{"other client error", 400, ErrorClassClient},
		{"server error", 500, ErrorClassServer},
		{"bad gateway", 502, ErrorClassServer},
		{"success", 200, ErrorClass("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.expected {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{
		StatusCode:  500,
		Class:       ErrorClassServer,
		Endpoint:    "shipments",
		Message:     "unexpected status",
		BodyExcerpt: "boom",
	}

	msg := err.Error()
	if msg != "shipstation server error on shipments (status 500): unexpected status" {
		t.Errorf("Error() = %q", msg)
	}
}

func TestExcerpt_Truncation(t *testing.T) {
	long := make([]byte, bodyExcerptLimit+500)
	for i := range long {
		long[i] = 'x'
	}

	if got := excerpt(long); len(got) != bodyExcerptLimit {
		t.Errorf("excerpt() length = %d, want %d", len(got), bodyExcerptLimit)
	}
	if got := excerpt([]byte("short")); got != "short" {
		t.Errorf("excerpt() = %q, want %q", got, "short")
	}
}
