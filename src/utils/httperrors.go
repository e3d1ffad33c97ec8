package utils

import (
	"net/http"
)

// HTTPError carries the response status for an error surfaced by a handler.
type HTTPError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(code int, message string) error {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// WrapHTTPError attaches a status code to an underlying error, keeping it reachable through errors.Is/As.
func WrapHTTPError(code int, err error) error {
	return &HTTPError{
		Code:    code,
		Message: err.Error(),
		Err:     err,
	}
}

// BadRequest creates a 400 Bad Request error
func BadRequest(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}
