package completion

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Activation is the inbound message starting one invocation.
type Activation struct {
	Config   MachineConfig `json:"config"`
	Settings Settings      `json:"settings"`
	// Messages holds the conversation. Anything but a non-empty array is
	// treated as absent. Elements are forwarded verbatim.
	Messages json.RawMessage `json:"messages,omitempty"`
}

// MachineConfig describes the machine the conversation is held with.
type MachineConfig struct {
	// InstructionsFile names the system instruction document.
	InstructionsFile string `json:"instructions_file"`
	// LLM is the default model id.
	LLM    string `json:"llm"`
	APIURL string `json:"apiUrl"`
	// Provider selects the client used for the call. Empty selects the
	// default chat completion API.
	Provider string `json:"provider,omitempty"`
}

// Settings holds the caller's LLM settings. Unset values are nil.
type Settings struct {
	Token             string    `json:"token"`
	Model             *string   `json:"model,omitempty"`
	MaxTokens         *int      `json:"max_tokens,omitempty"`
	PromptTruncateLen *int      `json:"prompt_truncate_len,omitempty"`
	Temperature       *float64  `json:"temperature,omitempty"`
	TopP              *float64  `json:"top_p,omitempty"`
	TopK              *int      `json:"top_k,omitempty"`
	MergeMode         MergeMode `json:"merge_mode,omitempty"`
}

// ResultType tags a Result.
type ResultType string

const (
	ResultTypeSuccess ResultType = "success"
	ResultTypeError   ResultType = "error"
)

// Result is the outbound message ending one invocation.
type Result struct {
	Type ResultType `json:"type"`
	// Data holds the model's reply message, verbatim, on success.
	Data json.RawMessage `json:"data,omitempty"`
	// Error holds a human-readable description on error.
	Error string `json:"error,omitempty"`
}

func Success(message json.RawMessage) Result {
	if message == nil {
		message = json.RawMessage("null")
	}
	return Result{Type: ResultTypeSuccess, Data: message}
}

func Failure(err error) Result {
	return Result{Type: ResultTypeError, Error: err.Error()}
}

// MergeMode controls how caller settings override defaults.
type MergeMode string

const (
	// MergeTruthy overrides a default only with a truthy value. Zero, false
	// and empty values fall back to the default.
	MergeTruthy MergeMode = "truthy"
	// MergePresence overrides a default with any value that is set, zero
	// included.
	MergePresence MergeMode = "presence"
)

// ParseMergeMode parses a merge mode. The empty string is MergeTruthy.
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(strings.ToLower(s)) {
	case "", MergeTruthy:
		return MergeTruthy, nil
	case MergePresence:
		return MergePresence, nil
	default:
		return "", fmt.Errorf("unknown merge mode: %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty value is kept
// empty, leaving the choice to the handler.
func (m *MergeMode) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*m = ""
		return nil
	}

	mode, err := ParseMergeMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// conversation splits the raw messages into their elements. Values that are
// not a JSON array yield nil.
func (a *Activation) conversation() []json.RawMessage {
	raw := a.Messages
	if len(raw) == 0 {
		return nil
	}

	var messages []json.RawMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil
	}
	return messages
}
