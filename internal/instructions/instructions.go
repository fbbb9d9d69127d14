// Package instructions resolves the system instruction for a conversation.
package instructions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultBaseURL is the location instruction documents are fetched from.
const DefaultBaseURL = "https://localhost/"

// Fallback is used whenever the instruction document cannot be fetched.
const Fallback = "You are a helpful assistant."

// Fetcher fetches instruction documents over HTTP.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

// NewFetcher returns a Fetcher reading documents relative to baseURL.
// An empty baseURL falls back to DefaultBaseURL, a nil client to
// http.DefaultClient.
func NewFetcher(baseURL string, client *http.Client) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		client:  client,
		baseURL: baseURL,
	}
}

// Resolve returns the trimmed instruction document named file, or Fallback
// if the fetch fails for any reason. The bool reports whether the document
// was used.
func (f *Fetcher) Resolve(ctx context.Context, file string) (string, bool) {
	text, err := f.fetch(ctx, file)
	if err != nil {
		slog.Warn("Failed to fetch instruction, using default instruction", slog.String("file", file), slog.Any("error", err))
		return Fallback, false
	}

	slog.Debug("Fetched instruction", slog.String("file", file), slog.Int("length", len(text)))
	return text, true
}

func (f *Fetcher) fetch(ctx context.Context, file string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+file, nil)
	if err != nil {
		return "", err
	}

	res, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("got unexpected status: %s", res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}
