package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure.
type Kind int

const (
	// KindTransport covers unreachable hosts, DNS failures, resets and
	// cancelled requests.
	KindTransport Kind = iota
	// KindProtocol covers non-2xx answers and 2xx bodies without the
	// expected field.
	KindProtocol
	// KindTimeout is a request that did not finish within the client timeout.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// GatewayError is returned by every failed backend call. Message is meant to
// be shown to the user as is.
type GatewayError struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a GatewayError of the given kind.
func IsKind(err error, kind Kind) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && gerr.Kind == kind
}

func transportError(op string, err error) *GatewayError {
	return &GatewayError{
		Kind:    KindTransport,
		Op:      op,
		Message: fmt.Sprintf("%s: cannot reach backend: %v", op, err),
		Err:     err,
	}
}

func timeoutError(op string, err error) *GatewayError {
	return &GatewayError{
		Kind:    KindTimeout,
		Op:      op,
		Message: fmt.Sprintf("%s: request timed out", op),
		Err:     err,
	}
}

func protocolError(op string, status int, format string, args ...interface{}) *GatewayError {
	return &GatewayError{
		Kind:       KindProtocol,
		Op:         op,
		Message:    fmt.Sprintf("%s: %s", op, fmt.Sprintf(format, args...)),
		StatusCode: status,
	}
}
