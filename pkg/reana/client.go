package reana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const defaultTimeout = 30 * time.Second

// Client is an ExecutionService backed by the REANA REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the server at baseURL authenticating with token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient

	return c
}

// Submit creates a remote workflow from a CWL specification in JSON form.
func (c *Client) Submit(ctx context.Context, name string, spec []byte, parameters map[string]any) (*Handle, error) {
	if parameters == nil {
		parameters = map[string]any{}
	}

	body, err := json.Marshal(map[string]any{
		"version": "0.9.3",
		"workflow": map[string]any{
			"type":          "cwl",
			"specification": json.RawMessage(spec),
		},
		"inputs": map[string]any{
			"parameters": parameters,
		},
	})
	if err != nil {
		return nil, &RemoteError{Op: "Submit", Err: err}
	}

	data, err := c.do(ctx, "Submit", http.MethodPost, "/api/workflows", url.Values{"workflow_name": {name}}, "application/json", body)
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(data, "workflow_id").String()
	if id == "" {
		return nil, &RemoteError{Op: "Submit", Err: fmt.Errorf("%w: missing workflow_id", ErrUnexpectedResponse)}
	}

	return &Handle{ID: id, Name: gjson.GetBytes(data, "workflow_name").String()}, nil
}

// Start starts a submitted workflow.
func (c *Client) Start(ctx context.Context, id string) (*Run, error) {
	data, err := c.do(ctx, "Start", http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/start", nil, "application/json", []byte("{}"))
	if err != nil {
		return nil, err
	}

	return &Run{
		ID:        id,
		Name:      gjson.GetBytes(data, "workflow_name").String(),
		RunNumber: int(gjson.GetBytes(data, "run_number").Int()),
		Status:    TranslateStatus(gjson.GetBytes(data, "status").String()),
	}, nil
}

// Status fetches the current status and step of a workflow.
func (c *Client) Status(ctx context.Context, id string) (*Status, error) {
	data, err := c.do(ctx, "Status", http.MethodGet, "/api/workflows/"+url.PathEscape(id)+"/status", nil, "", nil)
	if err != nil {
		return nil, err
	}

	raw := gjson.GetBytes(data, "status").String()

	return &Status{
		Status:      TranslateStatus(raw),
		CurrentStep: gjson.GetBytes(data, "progress.current_step_name").String(),
		RawStatus:   raw,
	}, nil
}

// ListArtifacts lists every file in the workflow workspace.
func (c *Client) ListArtifacts(ctx context.Context, id string) ([]Artifact, error) {
	data, err := c.do(ctx, "ListArtifacts", http.MethodGet, "/api/workflows/"+url.PathEscape(id)+"/workspace", url.Values{"size": {"10000"}}, "", nil)
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(data, "items")
	if !items.IsArray() {
		return nil, &RemoteError{Op: "ListArtifacts", Err: fmt.Errorf("%w: missing items", ErrUnexpectedResponse)}
	}

	artifacts := make([]Artifact, 0, len(items.Array()))

	for _, item := range items.Array() {
		artifact := Artifact{
			Name: item.Get("name").String(),
			Size: item.Get("size.human_readable").String(),
		}

		if artifact.Size == "" {
			artifact.Size = item.Get("size.raw").String()
		}

		if modified := item.Get("last-modified").String(); modified != "" {
			parsed, err := parseTimestamp(modified)
			if err == nil {
				artifact.LastModified = &parsed
			}
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, nil
}

// Download fetches one workspace file.
func (c *Client) Download(ctx context.Context, id, name string) ([]byte, error) {
	return c.do(ctx, "Download", http.MethodGet, "/api/workflows/"+url.PathEscape(id)+"/workspace/"+escapePath(name), nil, "", nil)
}

// Upload writes one file into the workflow workspace.
func (c *Client) Upload(ctx context.Context, id, name string, content []byte) error {
	_, err := c.do(ctx, "Upload", http.MethodPost, "/api/workflows/"+url.PathEscape(id)+"/workspace", url.Values{"file_name": {name}}, "application/octet-stream", content)

	return err
}

// Delete deletes the workflow together with its workspace.
func (c *Client) Delete(ctx context.Context, id string) error {
	body := []byte(`{"all_runs":true,"workspace":true}`)

	_, err := c.do(ctx, "Delete", http.MethodPut, "/api/workflows/"+url.PathEscape(id)+"/status", url.Values{"status": {"deleted"}}, "application/json", body)

	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, contentType string, body []byte) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}

	query.Set("access_token", c.token)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+query.Encode(), reader)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}

	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, &RemoteError{Op: op, Err: err}
	}

	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &RemoteError{Op: op, StatusCode: response.StatusCode, Err: err}
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		message := gjson.GetBytes(data, "message").String()
		if message == "" {
			message = http.StatusText(response.StatusCode)
		}

		return nil, &RemoteError{Op: op, StatusCode: response.StatusCode, Message: message}
	}

	return data, nil
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}

	return strings.Join(parts, "/")
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrUnexpectedResponse, value)
}
