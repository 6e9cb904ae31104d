// Package platform looks up dataset descriptions on an external data platform.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 16 << 20
)

var (
	// ErrNotFound is returned when the platform does not answer 200 for a URL.
	ErrNotFound = errors.New("platform resource not found")

	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid platform URL")
)

// Client fetches platform metadata in the platform's own schema.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient

	return c
}

// Resolve fetches the JSON description behind rawURL with schema=aiod added to
// the query. Any answer other than 200 is ErrNotFound.
func (c *Client) Resolve(ctx context.Context, rawURL string) (json.RawMessage, error) {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	query := target.Query()
	query.Set("schema", "aiod")
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build platform request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach platform: %w", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close platform response", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.logger.DebugContext(ctx, "platform lookup missed", "url", rawURL, "status", resp.StatusCode)

		return nil, fmt.Errorf("%w: %s answered %d", ErrNotFound, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read platform response: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s did not return JSON", ErrNotFound, rawURL)
	}

	return json.RawMessage(body), nil
}
