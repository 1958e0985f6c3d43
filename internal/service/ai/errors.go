package ai

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind discriminates completion failures into the categories a caller
// can handle exhaustively, without matching provider error strings.
type ErrorKind int

const (
	// KindProvider covers any provider-side failure not classified below.
	KindProvider ErrorKind = iota
	// KindRateLimited means the provider rejected the request for quota.
	KindRateLimited
	// KindConnection means the provider could not be reached.
	KindConnection
	// KindAuthentication means the credential was rejected.
	KindAuthentication
	// KindEmptyResponse means the call succeeded but carried no usable
	// content. Callers must not persist anything for this exchange.
	KindEmptyResponse
)

// Error is a classified completion failure.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("completion: %s: %v", e.Message, e.cause)
	}
	return "completion: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// UserMessage returns a user-safe description for the failure. Raw provider
// detail stays in logs only.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindRateLimited:
		return "The request limit has been reached. Please try again later."
	case KindConnection:
		return "Could not reach the AI service. Please check back shortly."
	case KindAuthentication:
		return "The AI service rejected the configured credentials. Please contact the administrator."
	case KindEmptyResponse:
		return "Sorry, no reply was produced. Please try again."
	default:
		return "The AI service reported an error. Please try again later."
	}
}

// errEmptyResponse is the shared empty-completion signal.
var errEmptyResponse = &Error{Kind: KindEmptyResponse, Message: "provider returned no choices"}

// IsEmptyResponse reports whether err is an empty-completion signal.
func IsEmptyResponse(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindEmptyResponse
}

// classify maps a go-openai error onto the taxonomy using the HTTP status
// the provider returned; anything without a status is a connectivity
// failure.
func classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return &Error{Kind: KindConnection, Message: "request failed", cause: err}
}

func classifyStatus(status int, message string, cause error) *Error {
	switch status {
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Message: message, cause: cause}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &Error{Kind: KindAuthentication, Message: message, cause: cause}
	default:
		return &Error{Kind: KindProvider, Message: message, cause: cause}
	}
}
