// Package apierr maps the handler error taxonomy onto HTTP responses.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies an error by who has to act on it.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindAuthorization
	KindRateLimit
	KindMethod
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindRateLimit:
		return "rate_limit"
	case KindMethod:
		return "method"
	case KindUpstream:
		return "upstream"
	default:
		return "unexpected"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindMethod:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error with a caller-facing message.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	RetryAfter time.Duration
	Allow      []string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad or missing input for field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// Authorization reports a failed CSRF or credential check.
func Authorization(message string, err error) *Error {
	return &Error{Kind: KindAuthorization, Message: message, Err: err}
}

// RateLimited reports a rejected request and when the caller may retry.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: "Too many requests, please try again later", RetryAfter: retryAfter}
}

// MethodNotAllowed reports a request using an unsupported HTTP method.
func MethodNotAllowed(allow ...string) *Error {
	return &Error{Kind: KindMethod, Message: "Method not allowed", Allow: allow}
}

// Upstream reports an unreachable downstream dependency.
func Upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Message: "Internal server error", Err: err}
}

// Unexpected wraps an error whose details must stay server-side.
func Unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: "Internal server error", Err: err}
}

// From converts any error into an *Error, treating unknown errors as unexpected.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Unexpected(err)
}

type body struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Write renders err as a JSON error body. Only the public message is sent;
// wrapped causes are never exposed.
func Write(w http.ResponseWriter, err error) {
	apiErr := From(err)
	if apiErr.Kind == KindRateLimit && apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(apiErr.RetryAfter)))
	}
	if len(apiErr.Allow) > 0 {
		w.Header().Set("Allow", strings.Join(apiErr.Allow, ", "))
	}
	WriteJSON(w, apiErr.Kind.Status(), body{Error: apiErr.Message, Field: apiErr.Field})
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
