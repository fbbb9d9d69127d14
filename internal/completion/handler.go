// Package completion relays a conversation to a remote chat completion API.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AlexGustafsson/relay/internal/chatapi"
	"github.com/AlexGustafsson/relay/internal/instructions"
	"github.com/AlexGustafsson/relay/internal/llm"
)

// Resolver resolves the system instruction named by a machine config.
// It never fails; the bool reports whether the named document was used.
type Resolver interface {
	Resolve(ctx context.Context, file string) (string, bool)
}

// Observer is notified about finished invocations.
type Observer interface {
	ObserveInstruction(fetched bool)
	ObserveResult(provider string, result Result, err *Error, duration time.Duration)
}

// Handler handles invocations. It holds no invocation state and is safe for
// concurrent use.
type Handler struct {
	instructions Resolver
	clients      map[string]llm.Client
	mergeMode    MergeMode
	observer     Observer
}

type Options struct {
	// Instructions defaults to an instructions.Fetcher reading from
	// instructions.DefaultBaseURL.
	Instructions Resolver
	// Clients maps provider names to clients. The empty name is the default
	// provider and defaults to a chatapi.Client.
	Clients map[string]llm.Client
	// MergeMode is used for activations not specifying one. Defaults to
	// MergeTruthy.
	MergeMode MergeMode
	Observer  Observer
}

func NewHandler(options *Options) *Handler {
	if options == nil {
		options = &Options{}
	}

	handler := &Handler{
		instructions: options.Instructions,
		clients:      make(map[string]llm.Client),
		mergeMode:    options.MergeMode,
		observer:     options.Observer,
	}

	if handler.instructions == nil {
		handler.instructions = instructions.NewFetcher(instructions.DefaultBaseURL, nil)
	}
	if handler.mergeMode == "" {
		handler.mergeMode = MergeTruthy
	}

	for name, client := range options.Clients {
		handler.clients[name] = client
	}
	if _, ok := handler.clients[""]; !ok {
		handler.clients[""] = chatapi.NewClient(nil)
	}

	return handler
}

// Go handles the activation in the background. The returned channel receives
// exactly one Result and is then closed.
func (h *Handler) Go(ctx context.Context, activation *Activation) <-chan Result {
	results := make(chan Result, 1)
	go func() {
		defer close(results)
		results <- h.Handle(ctx, activation)
	}()
	return results
}

// Handle handles the activation and returns its result.
func (h *Handler) Handle(ctx context.Context, activation *Activation) (result Result) {
	start := time.Now()

	if activation == nil {
		return Failure(&Error{Kind: ErrorKindInvalid, Err: ErrMissingActivation})
	}

	var failure *Error
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic while handling invocation", slog.Any("panic", r))
			failure = &Error{Kind: ErrorKindInternal, Err: fmt.Errorf("%v", r)}
			result = Failure(failure)
		}

		if h.observer != nil {
			h.observer.ObserveResult(activation.Config.Provider, result, failure, time.Since(start))
		}
	}()

	message, err := h.complete(ctx, activation)
	if err != nil {
		failure = err
		slog.Error("Invocation failed", slog.String("kind", string(err.Kind)), slog.Any("error", err))
		return Failure(err)
	}

	return Success(message)
}

func (h *Handler) complete(ctx context.Context, activation *Activation) (json.RawMessage, *Error) {
	instruction, fetched := h.instructions.Resolve(ctx, activation.Config.InstructionsFile)
	if h.observer != nil {
		h.observer.ObserveInstruction(fetched)
	}

	conversation := Conversation(instruction, activation.conversation())

	mode := activation.Settings.MergeMode
	if mode == "" {
		mode = h.mergeMode
	}

	payload := Payload(activation.Config, activation.Settings, mode, conversation)
	slog.Debug("Assembled payload",
		slog.String("model", payload.Model),
		slog.String("mergeMode", string(mode)),
		slog.Int("maxTokens", payload.MaxTokens),
		slog.Float64("temperature", payload.Temperature),
		slog.Int("messages", len(payload.Messages)),
	)

	client, ok := h.clients[activation.Config.Provider]
	if !ok {
		return nil, &Error{Kind: ErrorKindInvalid, Err: fmt.Errorf("%w: %q", ErrUnknownProvider, activation.Config.Provider)}
	}

	if activation.Config.APIURL == "" {
		return nil, &Error{Kind: ErrorKindInvalid, Err: ErrMissingEndpoint}
	}

	message, err := client.Complete(ctx, &llm.Request{
		Endpoint: activation.Config.APIURL,
		Token:    activation.Settings.Token,
		Payload:  payload,
	})
	if err != nil {
		return nil, classify(err)
	}

	slog.Debug("Invocation succeeded", slog.String("model", payload.Model))
	return message, nil
}
