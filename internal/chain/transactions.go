// internal/chain/transactions.go
package chain

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/whirlpool-pnl/internal/whirlpool"
)

// flattenTransaction turns a fetched transaction into the decoder's flat
// instruction list: top-level instructions in call order, with each
// inner-instruction group spliced in immediately after its parent. Token
// account mints are resolved from the post token balances so the decoder
// never needs another fetch.
func flattenTransaction(signature solana.Signature, result *rpc.GetTransactionResult) ([]whirlpool.RawInstruction, error) {
	if result.Meta == nil {
		return nil, fmt.Errorf("transaction %s has no meta", signature)
	}

	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", signature, err)
	}

	// Versioned transactions reference accounts loaded from lookup
	// tables; they index past the static key list, writable first.
	keys := make([]solana.PublicKey, 0,
		len(tx.Message.AccountKeys)+len(result.Meta.LoadedAddresses.Writable)+len(result.Meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, result.Meta.LoadedAddresses.Writable...)
	keys = append(keys, result.Meta.LoadedAddresses.ReadOnly...)

	var blockTime time.Time
	if result.BlockTime != nil {
		blockTime = result.BlockTime.Time().UTC()
	}

	mints := make(map[solana.PublicKey]solana.PublicKey)
	for _, balance := range result.Meta.PostTokenBalances {
		if int(balance.AccountIndex) < len(keys) {
			mints[keys[balance.AccountIndex]] = balance.Mint
		}
	}

	inner := make(map[int][]solana.CompiledInstruction, len(result.Meta.InnerInstructions))
	for _, group := range result.Meta.InnerInstructions {
		inner[int(group.Index)] = group.Instructions
	}

	var out []whirlpool.RawInstruction
	appendInstruction := func(compiled solana.CompiledInstruction) {
		raw, ok := resolveInstruction(compiled, keys)
		if !ok {
			return // malformed index, skip just this instruction
		}
		raw.Signature = signature
		raw.BlockTime = blockTime
		raw.TxFee = result.Meta.Fee
		raw.TokenAccountMints = mints
		out = append(out, raw)
	}

	for i, compiled := range tx.Message.Instructions {
		appendInstruction(compiled)
		for _, innerCompiled := range inner[i] {
			appendInstruction(innerCompiled)
		}
	}

	return out, nil
}

func resolveInstruction(compiled solana.CompiledInstruction, keys []solana.PublicKey) (whirlpool.RawInstruction, bool) {
	if int(compiled.ProgramIDIndex) >= len(keys) {
		return whirlpool.RawInstruction{}, false
	}

	accounts := make([]solana.PublicKey, 0, len(compiled.Accounts))
	for _, idx := range compiled.Accounts {
		if int(idx) >= len(keys) {
			return whirlpool.RawInstruction{}, false
		}
		accounts = append(accounts, keys[idx])
	}

	return whirlpool.RawInstruction{
		ProgramID: keys[compiled.ProgramIDIndex],
		Accounts:  accounts,
		Data:      []byte(compiled.Data),
	}, true
}
