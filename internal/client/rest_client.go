// Package client talks to the identity server REST API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RequestObserver records identity server calls, typically as metrics
type RequestObserver interface {
	ObserveIdentityRequest(operation string, statusCode int, duration time.Duration)
}

// Options configures a RestClient
type Options struct {
	BaseURL     string
	AccessToken string
	Username    string
	Password    string
	Timeout     time.Duration
	Retry       *RetryConfig
	Logger      *slog.Logger
	Observer    RequestObserver
}

// RestClient provides a generic HTTP client for identity server API
// operations with bearer or basic authentication, retry logic and error
// mapping
type RestClient struct {
	HTTPClient *http.Client
	BaseURL    string

	accessToken string
	username    string
	password    string
	retry       *RetryConfig
	logger      *slog.Logger
	observer    RequestObserver
}

// NewRestClient creates a REST client
func NewRestClient(opts Options) (*RestClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &RestClient{
		HTTPClient:  &http.Client{Timeout: opts.Timeout},
		BaseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		accessToken: opts.AccessToken,
		username:    opts.Username,
		password:    opts.Password,
		retry:       opts.Retry,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}, nil
}

// Get performs a GET, retrying transient failures
func (c *RestClient) Get(ctx context.Context, operation, path string, responseData interface{}) error {
	return RetryWithBackoff(ctx, c.retry, func() error {
		return c.do(ctx, operation, http.MethodGet, path, nil, responseData)
	})
}

// Send performs a state changing request exactly once
func (c *RestClient) Send(ctx context.Context, operation, method, path string, requestBody, responseData interface{}) error {
	return c.do(ctx, operation, method, path, requestBody, responseData)
}

func (c *RestClient) do(
	ctx context.Context,
	operation string,
	method string,
	path string,
	requestBody interface{},
	responseData interface{},
) error {
	url := c.BaseURL + path

	var bodyReader io.Reader
	if requestBody != nil {
		bodyBytes, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	switch {
	case c.accessToken != "":
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Request bodies may carry connection passwords; only method and path are logged
	c.logger.DebugContext(ctx, "identity API request", "operation", operation, "method", method, "path", path)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.observe(operation, 0, start)
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	c.observe(operation, resp.StatusCode, start)

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, respBodyBytes)
		c.logger.WarnContext(ctx, "identity API error",
			"operation", operation,
			"status_code", resp.StatusCode,
			"code", apiErr.Code,
			"trace_id", apiErr.TraceID,
		)
		return apiErr
	}

	c.logger.DebugContext(ctx, "identity API response", "operation", operation, "status_code", resp.StatusCode)

	if responseData != nil && len(respBodyBytes) > 0 {
		if err := json.Unmarshal(respBodyBytes, responseData); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func (c *RestClient) observe(operation string, statusCode int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveIdentityRequest(operation, statusCode, time.Since(start))
	}
}
