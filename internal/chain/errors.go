// internal/chain/errors.go
package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound marks an address with no account data on chain.
	ErrNotFound = errors.New("account not found")

	// ErrUnreachable marks a data source that cannot serve any request.
	// It is the only chain error fatal to a run.
	ErrUnreachable = errors.New("data source unreachable")
)

// Error carries the node and method context of an RPC failure.
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether an operation is worth retrying on another
// attempt or node.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "Too many requests")
}

// IsFatal reports whether the failure indicates the data source itself is
// unusable (authentication, authorization), terminating the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key")
}
