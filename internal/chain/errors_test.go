package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("read tcp: connection reset by peer")))
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("lookup rpc.example: no such host")))
	assert.True(t, IsRetryable(errors.New("context deadline exceeded (timeout)")))
	assert.True(t, IsRetryable(errors.New("server responded with 429 Too many requests")))

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("invalid param: WrongSize")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(errors.New("401 unauthorized")))
	assert.True(t, IsFatal(errors.New("403 forbidden")))
	assert.True(t, IsFatal(errors.New("invalid api key provided")))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", ErrUnreachable)))

	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("connection reset")))
}

func TestErrorWrapping(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Err: inner, NodeURL: "https://rpc.example", Method: "getTransaction"}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "getTransaction")
	assert.Contains(t, err.Error(), "rpc.example")
}
