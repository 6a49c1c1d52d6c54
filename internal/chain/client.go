// internal/chain/client.go
package chain

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/whirlpool"
)

const rpcTimeout = 15 * time.Second

// Client reads chain data through one or more RPC nodes, rotating to the
// next node on retryable failures.
type Client struct {
	nodes   []*node
	retries int
	logger  *zap.Logger
	nodeIdx atomic.Uint64
}

type node struct {
	client *rpc.Client
	url    string
}

func NewClient(urls []string, retries int, logger *zap.Logger) (*Client, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}

	c := &Client{
		retries: retries,
		logger:  logger.Named("chain"),
	}
	for _, url := range urls {
		c.nodes = append(c.nodes, &node{client: rpc.New(url), url: url})
	}
	return c, nil
}

// withRetry runs an RPC operation with exponential backoff, rotating
// through nodes between attempts. Each attempt is bounded by rpcTimeout.
// Fatal errors (authentication) abort immediately.
func withRetry[T any](ctx context.Context, c *Client, method string, op func(context.Context, *rpc.Client) (T, error)) (T, error) {
	attempt := func() (T, error) {
		n := c.nodes[c.nodeIdx.Add(1)%uint64(len(c.nodes))]

		callCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
		defer cancel()

		out, err := op(callCtx, n.client)
		if err == nil {
			return out, nil
		}

		wrapped := &Error{Err: err, NodeURL: n.url, Method: method}
		if IsFatal(err) || !IsRetryable(err) {
			var zero T
			return zero, backoff.Permanent(error(wrapped))
		}
		var zero T
		return zero, wrapped
	}

	notify := func(err error, duration time.Duration) {
		c.logger.Debug("Retrying RPC call",
			zap.String("method", method),
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = 500 * time.Millisecond
	backoffPolicy.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(uint(c.retries)),
		backoff.WithNotify(notify))
}

// SignatureHistory pages through an address's signature history,
// newest-first, up to cycles pages of pageLen signatures each.
func (c *Client) SignatureHistory(ctx context.Context, address solana.PublicKey, pageLen, cycles int) ([]solana.Signature, error) {
	var (
		signatures []solana.Signature
		before     solana.Signature
	)

	for cycle := 0; cycle < cycles; cycle++ {
		opts := &rpc.GetSignaturesForAddressOpts{
			Limit:      &pageLen,
			Commitment: rpc.CommitmentFinalized,
		}
		if !before.IsZero() {
			opts.Before = before
		}

		page, err := withRetry(ctx, c, "getSignaturesForAddress", func(callCtx context.Context, client *rpc.Client) ([]*rpc.TransactionSignature, error) {
			return client.GetSignaturesForAddressWithOpts(callCtx, address, opts)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch signature history for %s: %w", address, err)
		}
		if len(page) == 0 {
			break
		}

		for _, sig := range page {
			if sig.Err != nil {
				continue // failed transactions carry no decodable events
			}
			signatures = append(signatures, sig.Signature)
		}
		before = page[len(page)-1].Signature

		if len(page) < pageLen {
			break
		}
	}

	return signatures, nil
}

// TransactionInstructions fetches one transaction and flattens it into
// the decoder's raw instruction form.
func (c *Client) TransactionInstructions(ctx context.Context, signature solana.Signature) ([]whirlpool.RawInstruction, error) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	result, err := withRetry(ctx, c, "getTransaction", func(callCtx context.Context, client *rpc.Client) (*rpc.GetTransactionResult, error) {
		return client.GetTransaction(callCtx, signature, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", signature, err)
	}
	if result == nil {
		return nil, fmt.Errorf("transaction %s: %w", signature, ErrNotFound)
	}

	return flattenTransaction(signature, result)
}

// AccountData fetches one account's binary content and owner.
func (c *Client) AccountData(ctx context.Context, address solana.PublicKey) ([]byte, solana.PublicKey, error) {
	result, err := withRetry(ctx, c, "getAccountInfo", func(callCtx context.Context, client *rpc.Client) (*rpc.GetAccountInfoResult, error) {
		return client.GetAccountInfo(callCtx, address)
	})
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to fetch account %s: %w", address, err)
	}
	if result == nil || result.Value == nil {
		return nil, solana.PublicKey{}, fmt.Errorf("account %s: %w", address, ErrNotFound)
	}
	return result.Value.Data.GetBinary(), result.Value.Owner, nil
}

// multipleAccountsBatch is the RPC cap on getMultipleAccounts.
const multipleAccountsBatch = 100

// MultipleAccountData fetches binary content for a batch of accounts,
// splitting requests that exceed the RPC's per-call account cap.
// Missing accounts yield nil entries, preserving index alignment.
func (c *Client) MultipleAccountData(ctx context.Context, addresses []solana.PublicKey) ([][]byte, error) {
	data := make([][]byte, len(addresses))

	for start := 0; start < len(addresses); start += multipleAccountsBatch {
		end := start + multipleAccountsBatch
		if end > len(addresses) {
			end = len(addresses)
		}
		batch := addresses[start:end]

		result, err := withRetry(ctx, c, "getMultipleAccounts", func(callCtx context.Context, client *rpc.Client) (*rpc.GetMultipleAccountsResult, error) {
			return client.GetMultipleAccounts(callCtx, batch...)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch accounts: %w", err)
		}

		for i, info := range result.Value {
			if info != nil {
				data[start+i] = info.Data.GetBinary()
			}
		}
	}

	return data, nil
}

// PoolPositions lists position accounts belonging to one whirlpool via a
// program-account scan filtered on the discriminator and pool field.
func (c *Client) PoolPositions(ctx context.Context, pool solana.PublicKey) ([]KeyedAccount, error) {
	opts := &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentFinalized,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: whirlpool.PositionDiscriminator[:]}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 8, Bytes: pool.Bytes()}},
		},
	}

	accounts, err := withRetry(ctx, c, "getProgramAccounts", func(callCtx context.Context, client *rpc.Client) (rpc.GetProgramAccountsResult, error) {
		return client.GetProgramAccountsWithOpts(callCtx, whirlpool.ProgramID, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for pool %s: %w", pool, err)
	}

	out := make([]KeyedAccount, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, KeyedAccount{
			Address: acc.Pubkey,
			Data:    acc.Account.Data.GetBinary(),
		})
	}
	return out, nil
}

// KeyedAccount pairs an account address with its binary content.
type KeyedAccount struct {
	Address solana.PublicKey
	Data    []byte
}
