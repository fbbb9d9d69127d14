package completion

import (
	"encoding/json"

	"github.com/AlexGustafsson/relay/internal/llm"
)

const (
	DefaultMaxTokens         = 4096
	DefaultPromptTruncateLen = 10000
	DefaultTemperature       = 1
	DefaultTopP              = 0.9
	DefaultTopK              = 50
)

// DefaultUserPrompt is sent when the caller provides no conversation.
const DefaultUserPrompt = "What model are you?"

// Conversation returns the effective conversation: the system instruction
// followed by messages, or followed by DefaultUserPrompt when messages is
// empty. Messages are kept verbatim.
func Conversation(instruction string, messages []json.RawMessage) []json.RawMessage {
	system := llm.Message{Role: llm.RoleSystem, Content: instruction}.JSON()

	if len(messages) == 0 {
		return []json.RawMessage{
			system,
			llm.Message{Role: llm.RoleUser, Content: DefaultUserPrompt}.JSON(),
		}
	}

	conversation := make([]json.RawMessage, 0, len(messages)+1)
	conversation = append(conversation, system)
	return append(conversation, messages...)
}

// Payload builds the API payload, layering settings over the defaults
// according to mode.
func Payload(config MachineConfig, settings Settings, mode MergeMode, conversation []json.RawMessage) *llm.Payload {
	return &llm.Payload{
		Model:                         merge(mode, settings.Model, config.LLM),
		MaxTokens:                     merge(mode, settings.MaxTokens, DefaultMaxTokens),
		PromptTruncateLen:             merge(mode, settings.PromptTruncateLen, DefaultPromptTruncateLen),
		Temperature:                   merge(mode, settings.Temperature, DefaultTemperature),
		TopP:                          merge(mode, settings.TopP, DefaultTopP),
		TopK:                          merge(mode, settings.TopK, DefaultTopK),
		FrequencyPenalty:              0,
		PresencePenalty:               0,
		RepetitionPenalty:             1,
		N:                             1,
		IgnoreEOS:                     false,
		Stop:                          "stop",
		ResponseFormat:                llm.ResponseFormat{Type: "text"},
		Stream:                        false,
		ContextLengthExceededBehavior: "truncate",
		Messages:                      conversation,
	}
}

func merge[T comparable](mode MergeMode, value *T, fallback T) T {
	if value == nil {
		return fallback
	}

	var zero T
	if mode != MergePresence && *value == zero {
		return fallback
	}

	return *value
}
