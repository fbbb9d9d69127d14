package completion

import (
	"errors"
	"fmt"

	"github.com/AlexGustafsson/relay/internal/chatapi"
)

var (
	ErrMissingActivation = errors.New("missing activation")
	ErrMissingEndpoint   = errors.New("missing apiUrl")
	ErrUnknownProvider   = errors.New("unknown provider")
)

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	// ErrorKindInvalid is an activation that cannot be acted upon.
	ErrorKindInvalid ErrorKind = "invalid"
	// ErrorKindAPI is a non-2xx response from the completion API.
	ErrorKindAPI ErrorKind = "api"
	// ErrorKindCall is any other failure while calling the completion API.
	ErrorKindCall ErrorKind = "call"
	// ErrorKindInternal is an unexpected failure such as a recovered panic.
	ErrorKindInternal ErrorKind = "internal"
)

// Error describes why an invocation failed.
type Error struct {
	Kind ErrorKind
	// StatusCode and Body are set for ErrorKindAPI.
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == ErrorKindAPI {
		return fmt.Sprintf("API Error: %d - %s", e.StatusCode, e.Body)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify wraps an error returned by an llm.Client.
func classify(err error) *Error {
	var apiErr *chatapi.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: ErrorKindAPI, StatusCode: apiErr.StatusCode, Body: apiErr.Body, Err: err}
	}
	return &Error{Kind: ErrorKindCall, Err: err}
}
