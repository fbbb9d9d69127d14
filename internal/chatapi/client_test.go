package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AlexGustafsson/relay/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(endpoint string) *llm.Request {
	return &llm.Request{
		Endpoint: endpoint,
		Token:    "tok",
		Payload: &llm.Payload{
			Model:       "model-a",
			MaxTokens:   4096,
			Temperature: 1,
			Messages: []json.RawMessage{
				llm.Message{Role: llm.RoleSystem, Content: "Be kind."}.JSON(),
				llm.Message{Role: llm.RoleUser, Content: "hi"}.JSON(),
			},
			ResponseFormat: llm.ResponseFormat{Type: "text"},
		},
	}
}

func TestComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "model-a", payload["model"])
		assert.Equal(t, map[string]any{"type": "text"}, payload["response_format"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Claude"}},{"message":{"role":"assistant","content":"Other"}}]}`)
	}))
	defer server.Close()

	client := NewClient(server.Client())
	message, err := client.Complete(context.Background(), newRequest(server.URL))
	require.NoError(t, err)

	assert.JSONEq(t, `{"role":"assistant","content":"Claude"}`, string(message))
}

func TestCompleteKeepsMessageVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"hello"}],"extra":1}}]}`)
	}))
	defer server.Close()

	message, err := NewClient(nil).Complete(context.Background(), newRequest(server.URL))
	require.NoError(t, err)

	assert.JSONEq(t, `{"role":"assistant","content":[{"type":"text","text":"hello"}],"extra":1}`, string(message))
}

func TestCompleteAPIError(t *testing.T) {
	testCases := []struct {
		Name     string
		Body     string
		Expected string
	}{
		{
			Name:     "json",
			Body:     "{\"error\": \"rate limited\"}\n",
			Expected: `API Error: 429 - {"error":"rate limited"}`,
		},
		{
			Name:     "text",
			Body:     "slow down",
			Expected: `API Error: 429 - slow down`,
		},
		{
			Name:     "json keeps escapes",
			Body:     `{"error": "caf\u00e9", "retry": 1.0}`,
			Expected: `API Error: 429 - {"error":"caf\u00e9","retry":1.0}`,
		},
		{
			Name:     "json string",
			Body:     `"slow down"`,
			Expected: `API Error: 429 - slow down`,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				io.WriteString(w, testCase.Body)
			}))
			defer server.Close()

			_, err := NewClient(nil).Complete(context.Background(), newRequest(server.URL))
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
			assert.Equal(t, testCase.Expected, err.Error())
		})
	}
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer server.Close()

	_, err := NewClient(nil).Complete(context.Background(), newRequest(server.URL))
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestCompleteNullChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[null]}`)
	}))
	defer server.Close()

	_, err := NewClient(nil).Complete(context.Background(), newRequest(server.URL))
	assert.ErrorIs(t, err, ErrInvalidChoice)
}

func TestCompleteInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer server.Close()

	_, err := NewClient(nil).Complete(context.Background(), newRequest(server.URL))
	assert.Error(t, err)
}

func TestCompleteStreamUnsupported(t *testing.T) {
	request := newRequest("http://127.0.0.1:0")
	request.Payload.Stream = true

	_, err := NewClient(nil).Complete(context.Background(), request)
	assert.ErrorIs(t, err, ErrStreamUnsupported)
}
