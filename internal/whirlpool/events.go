// internal/whirlpool/events.go
package whirlpool

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventMeta carries the transaction context shared by every decoded event.
type EventMeta struct {
	Signature solana.Signature
	BlockTime time.Time
	TxFee     uint64 // lamports
}

// Event is the closed set of decoded Whirlpool position events. The ledger
// switches over the concrete types; adding a variant without handling it
// there is a compile-visible omission in the decoder, not a silent skip.
type Event interface {
	Meta() EventMeta
	Position() solana.PublicKey
	isEvent()
}

// OpenPositionEvent records the creation of a position account.
type OpenPositionEvent struct {
	EventMeta
	Whirlpool    solana.PublicKey
	PositionAddr solana.PublicKey
	PositionMint solana.PublicKey
	Owner        solana.PublicKey
	TickLower    int32
	TickUpper    int32
	RentFee      uint64 // lamports, constant estimate per open variant
}

// IncreaseLiquidityEvent records a deposit into a position.
type IncreaseLiquidityEvent struct {
	EventMeta
	Whirlpool      solana.PublicKey
	PositionAddr   solana.PublicKey
	LiquidityDelta *big.Int
	TokenAIn       uint64 // raw units
	TokenBIn       uint64
	TokenAMint     solana.PublicKey
	TokenBMint     solana.PublicKey
}

// DecreaseLiquidityEvent records a (possibly partial) withdrawal.
type DecreaseLiquidityEvent struct {
	EventMeta
	Whirlpool      solana.PublicKey
	PositionAddr   solana.PublicKey
	LiquidityDelta *big.Int
	TokenAOut      uint64
	TokenBOut      uint64
	TokenAMint     solana.PublicKey
	TokenBMint     solana.PublicKey
}

// CollectFeesEvent records a fee collection.
type CollectFeesEvent struct {
	EventMeta
	Whirlpool    solana.PublicKey
	PositionAddr solana.PublicKey
	TokenAFee    uint64
	TokenBFee    uint64
	TokenAMint   solana.PublicKey
	TokenBMint   solana.PublicKey
}

// CollectRewardEvent records collection from one reward slot.
type CollectRewardEvent struct {
	EventMeta
	Whirlpool    solana.PublicKey
	PositionAddr solana.PublicKey
	RewardIndex  uint8
	RewardMint   solana.PublicKey
	RewardAmount uint64
}

// ClosePositionEvent records the close and its rent refund.
type ClosePositionEvent struct {
	EventMeta
	PositionAddr  solana.PublicKey
	ReclaimedRent uint64 // lamports
}

func (e *OpenPositionEvent) Meta() EventMeta      { return e.EventMeta }
func (e *IncreaseLiquidityEvent) Meta() EventMeta { return e.EventMeta }
func (e *DecreaseLiquidityEvent) Meta() EventMeta { return e.EventMeta }
func (e *CollectFeesEvent) Meta() EventMeta       { return e.EventMeta }
func (e *CollectRewardEvent) Meta() EventMeta     { return e.EventMeta }
func (e *ClosePositionEvent) Meta() EventMeta     { return e.EventMeta }

func (e *OpenPositionEvent) Position() solana.PublicKey      { return e.PositionAddr }
func (e *IncreaseLiquidityEvent) Position() solana.PublicKey { return e.PositionAddr }
func (e *DecreaseLiquidityEvent) Position() solana.PublicKey { return e.PositionAddr }
func (e *CollectFeesEvent) Position() solana.PublicKey       { return e.PositionAddr }
func (e *CollectRewardEvent) Position() solana.PublicKey     { return e.PositionAddr }
func (e *ClosePositionEvent) Position() solana.PublicKey     { return e.PositionAddr }

func (e *OpenPositionEvent) isEvent()      {}
func (e *IncreaseLiquidityEvent) isEvent() {}
func (e *DecreaseLiquidityEvent) isEvent() {}
func (e *CollectFeesEvent) isEvent()       {}
func (e *CollectRewardEvent) isEvent()     {}
func (e *ClosePositionEvent) isEvent()     {}

// RawInstruction is one on-chain instruction call flattened out of its
// transaction. Inner instructions are spliced in immediately after their
// parent, preserving call order. TokenAccountMints maps token account
// addresses referenced by the transaction to their mints, resolved from
// the transaction's post token balances.
type RawInstruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte

	Signature         solana.Signature
	BlockTime         time.Time
	TxFee             uint64 // lamports
	TokenAccountMints map[solana.PublicKey]solana.PublicKey
}
