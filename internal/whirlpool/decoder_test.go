package whirlpool

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pk(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	return key
}

func sig(b byte) solana.Signature {
	var s solana.Signature
	s[0] = b
	return s
}

func u128LE(v uint64) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out, v)
	return out
}

func transferIx(amount uint64, source, dest solana.PublicKey) RawInstruction {
	data := make([]byte, 9)
	data[0] = tokenIxTransfer
	binary.LittleEndian.PutUint64(data[1:], amount)
	return RawInstruction{
		ProgramID: TokenProgramID,
		Accounts:  []solana.PublicKey{source, dest, pk(0xEE)},
		Data:      data,
	}
}

func transferCheckedIx(amount uint64, source, mint, dest solana.PublicKey) RawInstruction {
	data := make([]byte, 10)
	data[0] = tokenIxTransferChecked
	binary.LittleEndian.PutUint64(data[1:], amount)
	return RawInstruction{
		ProgramID: Token2022ProgramID,
		Accounts:  []solana.PublicKey{source, mint, dest, pk(0xEE)},
		Data:      data,
	}
}

func TestDecodeOpenPosition(t *testing.T) {
	data := append([]byte{}, ixOpenPosition[:]...)
	data = append(data, 0xFF) // position bump
	data = append(data, 0x9C, 0xFF, 0xFF, 0xFF)
	data = append(data, 0x64, 0x00, 0x00, 0x00)

	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts: []solana.PublicKey{
			pk(1), pk(2), pk(3), pk(4), pk(5), pk(6),
		},
		Data:      data,
		Signature: sig(1),
		BlockTime: time.Unix(1_700_000_000, 0).UTC(),
		TxFee:     5000,
	}

	events := NewDecoder(zap.NewNop()).Decode([][]RawInstruction{{ix}})
	require.Len(t, events, 1)

	list := events[pk(3)]
	require.Len(t, list, 1)

	open, ok := list[0].(*OpenPositionEvent)
	require.True(t, ok)
	assert.Equal(t, pk(6), open.Whirlpool)
	assert.Equal(t, pk(3), open.PositionAddr)
	assert.Equal(t, pk(4), open.PositionMint)
	assert.Equal(t, pk(2), open.Owner)
	assert.Equal(t, int32(-100), open.TickLower)
	assert.Equal(t, int32(100), open.TickUpper)
	assert.Equal(t, uint64(RentOpenPosition), open.RentFee)
	assert.Equal(t, uint64(5000), open.TxFee)
}

func TestDecodeOpenPositionWithMetadata(t *testing.T) {
	data := append([]byte{}, ixOpenPositionWithMetadata[:]...)
	data = append(data, 0xFF, 0xFE) // two bumps
	data = append(data, 0x00, 0x00, 0x00, 0x00)
	data = append(data, 0x80, 0x00, 0x00, 0x00)

	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts: []solana.PublicKey{
			pk(1), pk(2), pk(3), pk(4), pk(5), pk(6), pk(7),
		},
		Data: data,
	}

	events := NewDecoder(zap.NewNop()).Decode([][]RawInstruction{{ix}})
	require.Len(t, events, 1)

	open := events[pk(3)][0].(*OpenPositionEvent)
	assert.Equal(t, pk(7), open.Whirlpool)
	assert.Equal(t, int32(0), open.TickLower)
	assert.Equal(t, int32(128), open.TickUpper)
	assert.Equal(t, uint64(RentOpenPositionWithMetadata), open.RentFee)
}

func TestDecodeIncreaseLiquidityV1(t *testing.T) {
	mintA, mintB := pk(0xA1), pk(0xB1)
	ownerA, ownerB := pk(0x51), pk(0x61)
	vaultA, vaultB := pk(0x71), pk(0x81)

	data := append([]byte{}, ixIncreaseLiquidity[:]...)
	data = append(data, u128LE(100)...)
	data = append(data, make([]byte, 16)...) // token max amounts

	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts: []solana.PublicKey{
			pk(1), TokenProgramID, pk(2), pk(3), pk(4),
			ownerA, ownerB, vaultA, vaultB, pk(9), pk(10),
		},
		Data: data,
		TokenAccountMints: map[solana.PublicKey]solana.PublicKey{
			vaultA: mintA,
			vaultB: mintB,
		},
	}

	tx := []RawInstruction{
		ix,
		transferIx(10_000_000, ownerA, vaultA),
		transferIx(5_000_000, ownerB, vaultB),
	}

	events := NewDecoder(zap.NewNop()).Decode([][]RawInstruction{tx})
	require.Len(t, events, 1)

	inc := events[pk(3)][0].(*IncreaseLiquidityEvent)
	assert.Equal(t, pk(1), inc.Whirlpool)
	assert.Equal(t, "100", inc.LiquidityDelta.String())
	assert.Equal(t, uint64(10_000_000), inc.TokenAIn)
	assert.Equal(t, uint64(5_000_000), inc.TokenBIn)
	assert.Equal(t, mintA, inc.TokenAMint)
	assert.Equal(t, mintB, inc.TokenBMint)
}

func TestDecodeDecreaseLiquidityV2(t *testing.T) {
	mintA, mintB := pk(0xA2), pk(0xB2)

	data := append([]byte{}, ixDecreaseLiquidityV2[:]...)
	data = append(data, u128LE(40)...)
	data = append(data, make([]byte, 16)...)

	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts: []solana.PublicKey{
			pk(1), TokenProgramID, Token2022ProgramID, pk(2), pk(3),
			pk(4), pk(5), mintA, mintB,
			pk(6), pk(7), pk(8), pk(9),
		},
		Data: data,
	}

	tx := []RawInstruction{
		ix,
		transferCheckedIx(4_000_000, pk(8), mintA, pk(6)),
		transferCheckedIx(2_000_000, pk(9), mintB, pk(7)),
	}

	events := NewDecoder(zap.NewNop()).Decode([][]RawInstruction{tx})
	require.Len(t, events, 1)

	dec := events[pk(4)][0].(*DecreaseLiquidityEvent)
	assert.Equal(t, "40", dec.LiquidityDelta.String())
	assert.Equal(t, uint64(4_000_000), dec.TokenAOut)
	assert.Equal(t, uint64(2_000_000), dec.TokenBOut)
	assert.Equal(t, mintA, dec.TokenAMint)
	assert.Equal(t, mintB, dec.TokenBMint)
}

func TestDecodeCollectFeesResolvesMintsFromBalances(t *testing.T) {
	mintA, mintB := pk(0xA3), pk(0xB3)
	ownerA, vaultA := pk(0x41), pk(0x51)
	ownerB, vaultB := pk(0x61), pk(0x71)

	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts: []solana.PublicKey{
			pk(1), pk(2), pk(3), pk(4),
			ownerA, vaultA, ownerB, vaultB, TokenProgramID,
		},
		Data: ixCollectFees[:],
		TokenAccountMints: map[solana.PublicKey]solana.PublicKey{
			ownerA: mintA,
			ownerB: mintB,
		},
	}

	tx := []RawInstruction{
		ix,
		transferIx(111, vaultA, ownerA),
		transferIx(222, vaultB, ownerB),
	}

	events := NewDecoder(zap.NewNop()).Decode([][]RawInstruction{tx})
	require.Len(t, events, 1)

	fees := events[pk(3)][0].(*CollectFeesEvent)
	assert.Equal(t, uint64(111), fees.TokenAFee)
	assert.Equal(t, uint64(222), fees.TokenBFee)
	assert.Equal(t, mintA, fees.TokenAMint)
	assert.Equal(t, mintB, fees.TokenBMint)
}

func TestDecodeCollectRewardV2(t *testing.T) {
	rewardMint := pk(0xC1)

	data := append([]byte{}, ixCollectRewardV2[:]...)
	data = append(data, 2) // reward index

	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts: []solana.PublicKey{
			pk(1), pk(2), pk(3), pk(4), pk(5), rewardMint, pk(6),
		},
		Data: data,
	}

	tx := []RawInstruction{
		ix,
		transferIx(777, pk(6), pk(5)),
	}

	events := NewDecoder(zap.NewNop()).Decode([][]RawInstruction{tx})
	require.Len(t, events, 1)

	reward := events[pk(3)][0].(*CollectRewardEvent)
	assert.Equal(t, uint8(2), reward.RewardIndex)
	assert.Equal(t, rewardMint, reward.RewardMint)
	assert.Equal(t, uint64(777), reward.RewardAmount)
}

func TestDecodeClosePosition(t *testing.T) {
	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts:  []solana.PublicKey{pk(1), pk(2), pk(3), pk(4), pk(5), TokenProgramID},
		Data:      ixClosePosition[:],
	}

	events := NewDecoder(zap.NewNop()).Decode([][]RawInstruction{{ix}})
	require.Len(t, events, 1)

	closeEv := events[pk(3)][0].(*ClosePositionEvent)
	assert.Equal(t, uint64(RentReclaimOnClose), closeEv.ReclaimedRent)
}

func TestDecodeSkipsUnrelatedAndMalformed(t *testing.T) {
	txs := [][]RawInstruction{
		{
			// Wrong program entirely.
			{ProgramID: pk(0xDD), Data: ixClosePosition[:], Accounts: []solana.PublicKey{pk(1)}},
			// Right program, data shorter than a discriminator.
			{ProgramID: ProgramID, Data: []byte{1, 2, 3}},
			// Close with too few accounts.
			{ProgramID: ProgramID, Data: ixClosePosition[:], Accounts: []solana.PublicKey{pk(1), pk(2)}},
		},
	}

	events := NewDecoder(zap.NewNop()).Decode(txs)
	assert.Empty(t, events)
}

func TestTransferScanStopsAtTransactionBoundary(t *testing.T) {
	data := append([]byte{}, ixIncreaseLiquidity[:]...)
	data = append(data, u128LE(100)...)
	data = append(data, make([]byte, 16)...)

	ix := RawInstruction{
		ProgramID: ProgramID,
		Accounts: []solana.PublicKey{
			pk(1), TokenProgramID, pk(2), pk(3), pk(4),
			pk(5), pk(6), pk(7), pk(8), pk(9), pk(10),
		},
		Data: data,
		TokenAccountMints: map[solana.PublicKey]solana.PublicKey{
			pk(7): pk(0xA1),
			pk(8): pk(0xB1),
		},
	}

	// The trailing transfers live in the NEXT transaction; the scan must
	// not reach into it, so the increase is skipped.
	txs := [][]RawInstruction{
		{ix},
		{transferIx(1, pk(5), pk(7)), transferIx(2, pk(6), pk(8))},
	}

	events := NewDecoder(zap.NewNop()).Decode(txs)
	assert.Empty(t, events)
}

func TestSortEventsStable(t *testing.T) {
	t1 := time.Unix(1000, 0)
	t2 := time.Unix(2000, 0)

	open := &OpenPositionEvent{EventMeta: EventMeta{BlockTime: t2, Signature: sig(1)}, PositionAddr: pk(1)}
	inc := &IncreaseLiquidityEvent{EventMeta: EventMeta{BlockTime: t1, Signature: sig(2)}, PositionAddr: pk(1)}
	fees := &CollectFeesEvent{EventMeta: EventMeta{BlockTime: t2, Signature: sig(3)}, PositionAddr: pk(1)}

	events := []Event{open, inc, fees}
	SortEvents(events)

	require.Equal(t, inc, events[0])
	// Same block time keeps discovery order.
	require.Equal(t, open, events[1])
	require.Equal(t, fees, events[2])
}
