package api

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError is a non-success response from the auth endpoint. Message is
// the server's error text, suitable for showing to the user.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Unauthorized reports whether the server rejected the credentials or
// token, as opposed to rejecting the input.
func (e *AuthError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// RequestError is any other failed call: a non-success status from the
// messaging endpoint, a transport failure, or an undecodable body.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ErrEmptyText is returned by SendMessage before any request is made.
var ErrEmptyText = errors.New("message text is empty")

// ErrorText extracts the user-facing text from an API error, falling back
// to err.Error() for anything else.
func ErrorText(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Message
	}
	return err.Error()
}
