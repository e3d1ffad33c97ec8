package treasuries

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamTransport = errors.New("upstream transport failure")
	ErrUpstreamShape     = errors.New("upstream shape failure")
)

type FailureKind string

const (
	TransportFailure FailureKind = "transport"
	ShapeFailure     FailureKind = "shape"
)

// UpstreamError reports a failed fetch. Status is set for non-2xx responses, Message for `success:false` payloads.
type UpstreamError struct {
	Kind     FailureKind
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("upstream %s failure on %s: status %d %s", e.Kind, e.Endpoint, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s failure on %s: %v", e.Kind, e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("upstream %s failure on %s: %s", e.Kind, e.Endpoint, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamTransport:
		return e.Kind == TransportFailure
	case ErrUpstreamShape:
		return e.Kind == ShapeFailure
	}
	return false
}

// IsUpstreamFailure reports whether err came from the upstream API rather than local storage.
func IsUpstreamFailure(err error) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr)
}
