package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(t *testing.T, urls []string, retries int) *Client {
	t.Helper()
	c, err := NewClient(urls, retries, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestWithRetryAppliesPerAttemptTimeout(t *testing.T) {
	c := testClient(t, []string{"http://127.0.0.1:1"}, 1)

	before := time.Now()
	_, err := withRetry(context.Background(), c, "test", func(callCtx context.Context, _ *rpc.Client) (int, error) {
		deadline, ok := callCtx.Deadline()
		require.True(t, ok, "attempt context must carry a deadline")
		assert.LessOrEqual(t, deadline.Sub(before), rpcTimeout+time.Second)
		return 42, nil
	})
	require.NoError(t, err)
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	c := testClient(t, []string{"http://127.0.0.1:1"}, 5)

	calls := 0
	_, err := withRetry(context.Background(), c, "test", func(_ context.Context, _ *rpc.Client) (int, error) {
		calls++
		return 0, errors.New("invalid param: WrongSize")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesAndRotatesNodes(t *testing.T) {
	c := testClient(t, []string{"http://127.0.0.1:1", "http://127.0.0.1:2"}, 2)

	seen := make(map[*rpc.Client]struct{})
	calls := 0
	_, err := withRetry(context.Background(), c, "test", func(_ context.Context, client *rpc.Client) (int, error) {
		calls++
		seen[client] = struct{}{}
		return 0, errors.New("connection reset by peer")
	})

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, seen, 2)
}

// multiAccountsServer speaks just enough JSON-RPC to serve
// getMultipleAccounts, recording the account count of each call and
// answering the first account of every batch with one byte of data.
func multiAccountsServer(t *testing.T) (*httptest.Server, func() []int) {
	t.Helper()

	var mu sync.Mutex
	var batchSizes []int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     interface{}       `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var addresses []string
		require.NoError(t, json.Unmarshal(req.Params[0], &addresses))

		mu.Lock()
		batchSizes = append(batchSizes, len(addresses))
		mu.Unlock()

		values := make([]string, len(addresses))
		for i := range values {
			if i == 0 {
				values[i] = `{"data":["AQ==","base64"],"executable":false,"lamports":1,"owner":"11111111111111111111111111111111","rentEpoch":0}`
			} else {
				values[i] = "null"
			}
		}
		body := `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":1},"value":[`
		for i, v := range values {
			if i > 0 {
				body += ","
			}
			body += v
		}
		body += `]}}`

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, body)
	}))

	return server, func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), batchSizes...)
	}
}

func TestMultipleAccountDataSplitsLargeBatches(t *testing.T) {
	server, batches := multiAccountsServer(t)
	defer server.Close()

	c := testClient(t, []string{server.URL}, 1)

	addresses := make([]solana.PublicKey, 250)
	for i := range addresses {
		addresses[i][0] = byte(i)
		addresses[i][1] = byte(i >> 8)
	}

	data, err := c.MultipleAccountData(context.Background(), addresses)
	require.NoError(t, err)
	require.Len(t, data, 250)

	assert.Equal(t, []int{100, 100, 50}, batches())

	// The first account of each batch answered with data; alignment must
	// map it back to the right global index.
	assert.Equal(t, []byte{0x01}, data[0])
	assert.Equal(t, []byte{0x01}, data[100])
	assert.Equal(t, []byte{0x01}, data[200])
	assert.Nil(t, data[1])
	assert.Nil(t, data[249])
}

func TestMultipleAccountDataEmptyInput(t *testing.T) {
	c := testClient(t, []string{"http://127.0.0.1:1"}, 1)

	data, err := c.MultipleAccountData(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}
