// Package clients holds the plumbing shared by the switch collaborator
// clients: JSON request/response handling and the typed error surfaced when a
// collaborator answers with a non-2xx status.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// APIError is a non-success response from a collaborator service.
type APIError struct {
	Service string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.Status, e.Body)
}

// HTTPDoer is the subset of http.Client the clients need; swapped for a
// double in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// JSONClient issues JSON-over-HTTP requests against one collaborator service.
type JSONClient struct {
	service string
	baseURL string
	doer    HTTPDoer
	logger  *slog.Logger
}

// NewJSONClient builds a client for the named service. A nil doer falls back
// to http.DefaultClient.
func NewJSONClient(logger *slog.Logger, service, baseURL string, doer HTTPDoer) *JSONClient {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &JSONClient{
		service: service,
		baseURL: baseURL,
		doer:    doer,
		logger:  logger,
	}
}

// Call issues one request. A non-nil body is JSON-encoded; a non-nil out has
// the response decoded into it. Non-2xx statuses become *APIError.
func (c *JSONClient) Call(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request body: %w", c.service, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", c.service, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("Collaborator returned non-success status",
			"service", c.service,
			"method", method,
			"path", path,
			"status", resp.StatusCode,
		)
		return &APIError{Service: c.service, Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", c.service, err)
		}
	}
	return nil
}
