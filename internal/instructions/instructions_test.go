package instructions

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/x.txt":
			io.WriteString(w, " Be kind. \n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL+"/", server.Client())

	text, ok := fetcher.Resolve(context.Background(), "x.txt")
	assert.True(t, ok)
	assert.Equal(t, "Be kind.", text)

	text, ok = fetcher.Resolve(context.Background(), "missing.txt")
	assert.False(t, ok)
	assert.Equal(t, Fallback, text)
}

func TestResolveTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL + "/"
	server.Close()

	text, ok := NewFetcher(url, nil).Resolve(context.Background(), "x.txt")
	assert.False(t, ok)
	assert.Equal(t, Fallback, text)
}

func TestNewFetcherDefaults(t *testing.T) {
	fetcher := NewFetcher("", nil)
	assert.Equal(t, DefaultBaseURL, fetcher.baseURL)
	assert.Equal(t, http.DefaultClient, fetcher.client)
}
