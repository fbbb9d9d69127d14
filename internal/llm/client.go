package llm

import (
	"context"
	"encoding/json"
)

// Client performs a single chat completion towards a remote model.
// The returned message is the first choice's message, kept verbatim.
type Client interface {
	Complete(context.Context, *Request) (json.RawMessage, error)
}

// Request is a completion request towards a specific endpoint.
type Request struct {
	// Endpoint is the URL of the API to call.
	Endpoint string
	// Token is the caller's credential, forwarded as is.
	Token   string
	Payload *Payload
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// JSON returns the message's wire form.
func (m Message) JSON() json.RawMessage {
	// Marshalling a role and a string cannot fail
	data, _ := json.Marshal(m)
	return data
}

type Role string

const (
	// RoleSystem specifies that the message is from the system iteself.
	RoleSystem Role = "system"
	// RoleAssistant specifies that the message is from the assistant / LLM.
	RoleAssistant Role = "assistant"
	// RoleUser specifies that the message is from an end-user.
	RoleUser Role = "user"
)

// Payload is the body of a chat completion request.
type Payload struct {
	// Model controls the model to use.
	Model string `json:"model"`
	// MaxTokens to generate.
	MaxTokens int `json:"max_tokens"`
	// PromptTruncateLen is the length, in tokens, the prompt is truncated to
	// when it exceeds the model's context.
	PromptTruncateLen int `json:"prompt_truncate_len"`
	// Temperature controls randomness.
	// Lowering results in less random completions.
	Temperature float64 `json:"temperature"`
	// TopP controls diversity via nucleus sampling: 0.5 means half of all
	// likelihood-weighted options are considered.
	TopP float64 `json:"top_p"`
	// TopK limits sampling to the K most likely tokens.
	TopK int `json:"top_k"`
	// FrequencyPenalty controls how much the penalize new tokens based on their
	// existing frequency in the text so far.
	FrequencyPenalty float64 `json:"frequency_penalty"`
	// Controls how much to penalize new tokens based on whether they appear in
	// the text so far.
	PresencePenalty   float64 `json:"presence_penalty"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	// N is the number of choices to generate.
	N                             int            `json:"n"`
	IgnoreEOS                     bool           `json:"ignore_eos"`
	Stop                          string         `json:"stop"`
	ResponseFormat                ResponseFormat `json:"response_format"`
	Stream                        bool           `json:"stream"`
	ContextLengthExceededBehavior string         `json:"context_length_exceeded_behavior"`
	// Messages contains messages / conversation history to use for completion.
	// Messages are forwarded verbatim.
	Messages []json.RawMessage `json:"messages"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}
