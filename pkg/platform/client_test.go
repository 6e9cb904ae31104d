package platform

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/v1/42", r.URL.Path)
		assert.Equal(t, "aiod", r.URL.Query().Get("schema"))
		assert.Equal(t, "x", r.URL.Query().Get("keep"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "iris.csv", "identifier": 42}`))
	}))
	defer server.Close()

	data, err := newTestClient().Resolve(t.Context(), server.URL+"/datasets/v1/42?keep=x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "iris.csv", "identifier": 42}`, string(data))
}

func TestClient_Resolve_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient().Resolve(t.Context(), server.URL+"/datasets/v1/404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Resolve_NonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	_, err := newTestClient().Resolve(t.Context(), server.URL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Resolve_InvalidURL(t *testing.T) {
	_, err := newTestClient().Resolve(t.Context(), "ftp://example.org/x")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = newTestClient().Resolve(t.Context(), "relative/path")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
