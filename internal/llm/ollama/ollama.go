package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AlexGustafsson/relay/internal/llm"
	ollama "github.com/ollama/ollama/api"
)

var _ llm.Client = (*Client)(nil)

// Client completes conversations using an Ollama server. The request's
// endpoint is used as the server's base URL.
type Client struct {
	client    *http.Client
	keepAlive time.Duration
}

type Options struct {
	KeepAlive time.Duration
}

func NewClient(client *http.Client, options *Options) *Client {
	keepAlive := time.Duration(0)
	if options != nil {
		keepAlive = options.KeepAlive
	}
	if client == nil {
		client = &http.Client{}
	}

	return &Client{
		client:    client,
		keepAlive: keepAlive,
	}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, r *llm.Request) (json.RawMessage, error) {
	base, err := url.Parse(r.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama endpoint: %w", err)
	}

	// Ollama only accepts plain text messages
	messages := make([]ollama.Message, len(r.Payload.Messages))
	for i, raw := range r.Payload.Messages {
		var m llm.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("unsupported message %d for ollama: %w", i, err)
		}

		messages[i] = ollama.Message{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}

	stream := false
	keepAlive := ollama.Duration{Duration: 0}
	if c.keepAlive > 0 {
		keepAlive = ollama.Duration{Duration: c.keepAlive}
	}

	req := &ollama.ChatRequest{
		Model:     r.Payload.Model,
		Messages:  messages,
		Stream:    &stream,
		KeepAlive: &keepAlive,
		Options:   options(r.Payload),
	}

	var builder strings.Builder
	err = ollama.NewClient(base, c.client).Chat(ctx, req, func(res ollama.ChatResponse) error {
		builder.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(llm.Message{
		// Assume assistant role
		Role:    llm.RoleAssistant,
		Content: builder.String(),
	})
}

// options maps payload parameters onto Ollama's model options.
func options(p *llm.Payload) map[string]any {
	options := map[string]any{
		"num_predict":       p.MaxTokens,
		"temperature":       p.Temperature,
		"top_p":             p.TopP,
		"top_k":             p.TopK,
		"frequency_penalty": p.FrequencyPenalty,
		"presence_penalty":  p.PresencePenalty,
		"repeat_penalty":    p.RepetitionPenalty,
	}
	if p.Stop != "" {
		options["stop"] = []string{p.Stop}
	}
	return options
}
