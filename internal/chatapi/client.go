package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/AlexGustafsson/relay/internal/llm"
)

// APIVersion is sent in the anthropic-version header of every request.
const APIVersion = "2023-06-01"

var (
	ErrStreamUnsupported = errors.New("stream mode is unsupported")
	ErrNoChoices         = errors.New("completion response contains no choices")
	ErrInvalidChoice     = errors.New("completion response contains an invalid first choice")
)

var _ llm.Client = (*Client)(nil)

// Client performs requests towards chat completion APIs.
type Client struct {
	client *http.Client
}

// NewClient returns a new Client. A nil http client falls back to
// http.DefaultClient.
func NewClient(client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}

	return &Client{
		client: client,
	}
}

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	// Body holds the response body. When the body is JSON it is compacted,
	// not re-serialized, so escapes and number spellings are kept as sent.
	// A bare JSON string is unquoted.
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.StatusCode, e.Body)
}

type completionResponse struct {
	Choices []*completionChoice `json:"choices"`
}

type completionChoice struct {
	Message json.RawMessage `json:"message"`
}

// Complete implements llm.Client.
// Payloads asking for a stream are rejected, as only complete responses are
// parsed. The completion handler never streams; this guards other callers.
func (c *Client) Complete(ctx context.Context, r *llm.Request) (json.RawMessage, error) {
	if r.Payload.Stream {
		return nil, ErrStreamUnsupported
	}

	body, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("x-api-key", r.Token)
	req.Header.Set("anthropic-version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Calling completion API", slog.String("endpoint", r.Endpoint), slog.String("model", r.Payload.Model), slog.Int("messages", len(r.Payload.Messages)))
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("read error response: %w", err)
		}

		apiErr := &APIError{StatusCode: res.StatusCode, Body: errorBody(raw)}
		slog.Error("Completion API returned an error", slog.Int("status", res.StatusCode), slog.String("body", apiErr.Body))
		return nil, apiErr
	}

	var response completionResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, ErrNoChoices
	}

	if response.Choices[0] == nil {
		return nil, ErrInvalidChoice
	}

	return response.Choices[0].Message, nil
}

// errorBody renders an error response body. JSON bodies are compacted
// (escapes and number spellings are kept, not normalized) and JSON strings
// are unquoted, anything else is kept as raw text.
func errorBody(raw []byte) string {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}

	if s, ok := value.(string); ok {
		return s
	}

	var buffer bytes.Buffer
	if err := json.Compact(&buffer, raw); err != nil {
		return string(raw)
	}
	return buffer.String()
}
