// internal/whirlpool/decoder.go
package whirlpool

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	bin "github.com/rovshanmuradov/whirlpool-pnl/internal/utils/binary"
)

// Decoder turns raw program instructions into typed position events.
// Instructions not addressed to the Whirlpool program, or failing a
// shape check, are skipped: most instructions in a transaction are
// unrelated to the program.
type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger.Named("decoder")}
}

// Decode walks every instruction of every transaction and groups the
// recognized events by position address. Each position's event list keeps
// discovery order; callers must run SortEvents before accounting.
func (d *Decoder) Decode(transactions [][]RawInstruction) map[solana.PublicKey][]Event {
	events := make(map[solana.PublicKey][]Event)

	for _, siblings := range transactions {
		for i := range siblings {
			ev, err := d.decodeInstruction(siblings, i)
			if err != nil {
				d.logger.Debug("Skipping instruction",
					zap.String("signature", siblings[i].Signature.String()),
					zap.Int("index", i),
					zap.Error(err))
				continue
			}
			if ev == nil {
				continue
			}
			events[ev.Position()] = append(events[ev.Position()], ev)
		}
	}

	return events
}

// SortEvents orders one position's events by block time. The sort is
// stable so same-second events keep their discovery order.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Meta().BlockTime.Before(events[j].Meta().BlockTime)
	})
}

// decodeInstruction dispatches on the instruction discriminator. A nil
// event with nil error means the instruction is simply not a Whirlpool
// position instruction.
func (d *Decoder) decodeInstruction(siblings []RawInstruction, idx int) (Event, error) {
	raw := &siblings[idx]
	if !raw.ProgramID.Equals(ProgramID) {
		return nil, nil
	}
	if len(raw.Data) < 8 {
		return nil, nil
	}

	var disc [8]byte
	copy(disc[:], raw.Data[:8])

	switch disc {
	case ixOpenPosition:
		return d.decodeOpenPosition(raw, false)
	case ixOpenPositionWithMetadata:
		return d.decodeOpenPosition(raw, true)
	case ixIncreaseLiquidity:
		return d.decodeIncreaseLiquidity(siblings, idx, false)
	case ixIncreaseLiquidityV2:
		return d.decodeIncreaseLiquidity(siblings, idx, true)
	case ixDecreaseLiquidity:
		return d.decodeDecreaseLiquidity(siblings, idx, false)
	case ixDecreaseLiquidityV2:
		return d.decodeDecreaseLiquidity(siblings, idx, true)
	case ixCollectFees:
		return d.decodeCollectFees(siblings, idx, false)
	case ixCollectFeesV2:
		return d.decodeCollectFees(siblings, idx, true)
	case ixCollectReward:
		return d.decodeCollectReward(siblings, idx, false)
	case ixCollectRewardV2:
		return d.decodeCollectReward(siblings, idx, true)
	case ixClosePosition:
		return d.decodeClosePosition(raw)
	}

	return nil, nil
}

func (d *Decoder) decodeOpenPosition(raw *RawInstruction, withMetadata bool) (Event, error) {
	// openPosition:             funder, owner, position, positionMint,
	//                           positionTokenAccount, whirlpool, ...
	// openPositionWithMetadata: funder, owner, position, positionMint,
	//                           positionMetadataAccount, positionTokenAccount,
	//                           whirlpool, ...
	whirlpoolIdx := 5
	bumpLen := 1
	rent := uint64(RentOpenPosition)
	if withMetadata {
		whirlpoolIdx = 6
		bumpLen = 2
		rent = uint64(RentOpenPositionWithMetadata)
	}

	if len(raw.Accounts) <= whirlpoolIdx {
		return nil, fmt.Errorf("openPosition: want >%d accounts, got %d", whirlpoolIdx, len(raw.Accounts))
	}
	if len(raw.Data) < 8+bumpLen+8 {
		return nil, fmt.Errorf("openPosition: data too short: %d", len(raw.Data))
	}

	tickOffset := 8 + bumpLen
	return &OpenPositionEvent{
		EventMeta:    raw.meta(),
		Whirlpool:    raw.Accounts[whirlpoolIdx],
		PositionAddr: raw.Accounts[2],
		PositionMint: raw.Accounts[3],
		Owner:        raw.Accounts[1],
		TickLower:    bin.ReadInt32LittleEndian(raw.Data, tickOffset),
		TickUpper:    bin.ReadInt32LittleEndian(raw.Data, tickOffset+4),
		RentFee:      rent,
	}, nil
}

func (d *Decoder) decodeIncreaseLiquidity(siblings []RawInstruction, idx int, v2 bool) (Event, error) {
	raw := &siblings[idx]
	positionIdx, mintA, mintB, err := liquidityAccounts(raw, v2, "increaseLiquidity")
	if err != nil {
		return nil, err
	}
	if len(raw.Data) < 8+16 {
		return nil, fmt.Errorf("increaseLiquidity: data too short: %d", len(raw.Data))
	}

	amountA, amountB, err := nextTransferPair(siblings, idx)
	if err != nil {
		return nil, fmt.Errorf("increaseLiquidity: %w", err)
	}

	return &IncreaseLiquidityEvent{
		EventMeta:      raw.meta(),
		Whirlpool:      raw.Accounts[0],
		PositionAddr:   raw.Accounts[positionIdx],
		LiquidityDelta: bin.ReadUint128LittleEndian(raw.Data, 8),
		TokenAIn:       amountA,
		TokenBIn:       amountB,
		TokenAMint:     mintA,
		TokenBMint:     mintB,
	}, nil
}

func (d *Decoder) decodeDecreaseLiquidity(siblings []RawInstruction, idx int, v2 bool) (Event, error) {
	raw := &siblings[idx]
	positionIdx, mintA, mintB, err := liquidityAccounts(raw, v2, "decreaseLiquidity")
	if err != nil {
		return nil, err
	}
	if len(raw.Data) < 8+16 {
		return nil, fmt.Errorf("decreaseLiquidity: data too short: %d", len(raw.Data))
	}

	amountA, amountB, err := nextTransferPair(siblings, idx)
	if err != nil {
		return nil, fmt.Errorf("decreaseLiquidity: %w", err)
	}

	return &DecreaseLiquidityEvent{
		EventMeta:      raw.meta(),
		Whirlpool:      raw.Accounts[0],
		PositionAddr:   raw.Accounts[positionIdx],
		LiquidityDelta: bin.ReadUint128LittleEndian(raw.Data, 8),
		TokenAOut:      amountA,
		TokenBOut:      amountB,
		TokenAMint:     mintA,
		TokenBMint:     mintB,
	}, nil
}

func (d *Decoder) decodeCollectFees(siblings []RawInstruction, idx int, v2 bool) (Event, error) {
	raw := &siblings[idx]

	// collectFees:   whirlpool, positionAuthority, position, positionTokenAccount,
	//                tokenOwnerAccountA, tokenVaultA, tokenOwnerAccountB, tokenVaultB, ...
	// collectFeesV2: whirlpool, positionAuthority, position, positionTokenAccount,
	//                tokenMintA, tokenMintB, tokenOwnerAccountA, tokenVaultA, ...
	var mintA, mintB solana.PublicKey
	if v2 {
		if len(raw.Accounts) < 10 {
			return nil, fmt.Errorf("collectFeesV2: want >=10 accounts, got %d", len(raw.Accounts))
		}
		mintA, mintB = raw.Accounts[4], raw.Accounts[5]
	} else {
		if len(raw.Accounts) < 9 {
			return nil, fmt.Errorf("collectFees: want >=9 accounts, got %d", len(raw.Accounts))
		}
		var err error
		if mintA, err = raw.mintFor(raw.Accounts[5], raw.Accounts[4]); err != nil {
			return nil, fmt.Errorf("collectFees: token A: %w", err)
		}
		if mintB, err = raw.mintFor(raw.Accounts[7], raw.Accounts[6]); err != nil {
			return nil, fmt.Errorf("collectFees: token B: %w", err)
		}
	}

	amountA, amountB, err := nextTransferPair(siblings, idx)
	if err != nil {
		return nil, fmt.Errorf("collectFees: %w", err)
	}

	return &CollectFeesEvent{
		EventMeta:    raw.meta(),
		Whirlpool:    raw.Accounts[0],
		PositionAddr: raw.Accounts[2],
		TokenAFee:    amountA,
		TokenBFee:    amountB,
		TokenAMint:   mintA,
		TokenBMint:   mintB,
	}, nil
}

func (d *Decoder) decodeCollectReward(siblings []RawInstruction, idx int, v2 bool) (Event, error) {
	raw := &siblings[idx]

	// collectReward:   whirlpool, positionAuthority, position, positionTokenAccount,
	//                  rewardOwnerAccount, rewardVault, ...
	// collectRewardV2: whirlpool, positionAuthority, position, positionTokenAccount,
	//                  rewardOwnerAccount, rewardMint, rewardVault, ...
	var rewardMint solana.PublicKey
	if v2 {
		if len(raw.Accounts) < 7 {
			return nil, fmt.Errorf("collectRewardV2: want >=7 accounts, got %d", len(raw.Accounts))
		}
		rewardMint = raw.Accounts[5]
	} else {
		if len(raw.Accounts) < 6 {
			return nil, fmt.Errorf("collectReward: want >=6 accounts, got %d", len(raw.Accounts))
		}
		var err error
		if rewardMint, err = raw.mintFor(raw.Accounts[5], raw.Accounts[4]); err != nil {
			return nil, fmt.Errorf("collectReward: %w", err)
		}
	}
	if len(raw.Data) < 9 {
		return nil, fmt.Errorf("collectReward: data too short: %d", len(raw.Data))
	}

	cursor := transferCursor{siblings: siblings, next: idx + 1}
	transfer, ok := cursor.nextTransfer()
	if !ok {
		return nil, fmt.Errorf("collectReward: no trailing token transfer")
	}

	return &CollectRewardEvent{
		EventMeta:    raw.meta(),
		Whirlpool:    raw.Accounts[0],
		PositionAddr: raw.Accounts[2],
		RewardIndex:  raw.Data[8],
		RewardMint:   rewardMint,
		RewardAmount: transfer.amount,
	}, nil
}

func (d *Decoder) decodeClosePosition(raw *RawInstruction) (Event, error) {
	// closePosition: positionAuthority, receiver, position, positionMint,
	//                positionTokenAccount, tokenProgram
	if len(raw.Accounts) < 6 {
		return nil, fmt.Errorf("closePosition: want >=6 accounts, got %d", len(raw.Accounts))
	}

	return &ClosePositionEvent{
		EventMeta:     raw.meta(),
		PositionAddr:  raw.Accounts[2],
		ReclaimedRent: RentReclaimOnClose,
	}, nil
}

// liquidityAccounts resolves the position index and token mints for the
// increase/decrease shapes, which share an account layout.
//
// v1: whirlpool, tokenProgram, positionAuthority, position, positionTokenAccount,
//     tokenOwnerAccountA, tokenOwnerAccountB, tokenVaultA, tokenVaultB, ...
// v2: whirlpool, tokenProgramA, tokenProgramB, memoProgram, positionAuthority,
//     position, positionTokenAccount, tokenMintA, tokenMintB,
//     tokenOwnerAccountA, tokenOwnerAccountB, tokenVaultA, tokenVaultB, ...
func liquidityAccounts(raw *RawInstruction, v2 bool, name string) (int, solana.PublicKey, solana.PublicKey, error) {
	if v2 {
		if len(raw.Accounts) < 13 {
			return 0, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("%s: want >=13 accounts, got %d", name, len(raw.Accounts))
		}
		return 5, raw.Accounts[7], raw.Accounts[8], nil
	}

	if len(raw.Accounts) < 11 {
		return 0, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("%s: want >=11 accounts, got %d", name, len(raw.Accounts))
	}
	mintA, err := raw.mintFor(raw.Accounts[7], raw.Accounts[5])
	if err != nil {
		return 0, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("%s: token A: %w", name, err)
	}
	mintB, err := raw.mintFor(raw.Accounts[8], raw.Accounts[6])
	if err != nil {
		return 0, solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("%s: token B: %w", name, err)
	}
	return 3, mintA, mintB, nil
}

func (r *RawInstruction) meta() EventMeta {
	return EventMeta{Signature: r.Signature, BlockTime: r.BlockTime, TxFee: r.TxFee}
}

// mintFor resolves a token account to its mint, trying the given accounts
// in order against the transaction's post-balance mapping.
func (r *RawInstruction) mintFor(accounts ...solana.PublicKey) (solana.PublicKey, error) {
	for _, acc := range accounts {
		if mint, ok := r.TokenAccountMints[acc]; ok {
			return mint, nil
		}
	}
	return solana.PublicKey{}, fmt.Errorf("no mint resolved for token account %s", accounts[0])
}

// SPL token instruction tags recognized by the transfer scan.
const (
	tokenIxTransfer        = 3
	tokenIxTransferChecked = 12
)

type tokenTransfer struct {
	amount      uint64
	source      solana.PublicKey
	destination solana.PublicKey
}

// transferCursor is a lookahead over the sibling instruction sequence.
// Whirlpool amount-bearing instructions do not encode the moved token
// amounts; the amounts live in the SPL transfers the program issues right
// after, so the cursor takes the next transfer in program order. If the
// transaction interleaves an unrelated transfer first, that one wins —
// there is no way to tell them apart from the wire encoding alone. The
// cursor never crosses the transaction boundary: running out of siblings
// yields not-found and the caller skips the instruction.
type transferCursor struct {
	siblings []RawInstruction
	next     int
}

func (c *transferCursor) nextTransfer() (tokenTransfer, bool) {
	for ; c.next < len(c.siblings); c.next++ {
		ins := &c.siblings[c.next]
		if !ins.ProgramID.Equals(TokenProgramID) && !ins.ProgramID.Equals(Token2022ProgramID) {
			continue
		}
		if len(ins.Data) < 9 {
			continue
		}

		switch ins.Data[0] {
		case tokenIxTransfer:
			// source, destination, authority
			if len(ins.Accounts) < 3 {
				continue
			}
			c.next++
			return tokenTransfer{
				amount:      bin.ReadUint64LittleEndian(ins.Data, 1),
				source:      ins.Accounts[0],
				destination: ins.Accounts[1],
			}, true
		case tokenIxTransferChecked:
			// source, mint, destination, authority
			if len(ins.Accounts) < 4 {
				continue
			}
			c.next++
			return tokenTransfer{
				amount:      bin.ReadUint64LittleEndian(ins.Data, 1),
				source:      ins.Accounts[0],
				destination: ins.Accounts[2],
			}, true
		}
	}
	return tokenTransfer{}, false
}

// nextTransferPair consumes the two transfers trailing a dual-token
// instruction, token A before token B.
func nextTransferPair(siblings []RawInstruction, idx int) (uint64, uint64, error) {
	cursor := transferCursor{siblings: siblings, next: idx + 1}

	a, ok := cursor.nextTransfer()
	if !ok {
		return 0, 0, fmt.Errorf("no trailing token A transfer")
	}
	b, ok := cursor.nextTransfer()
	if !ok {
		return 0, 0, fmt.Errorf("no trailing token B transfer")
	}
	return a.amount, b.amount, nil
}

// discEqual reports whether the data begins with the given discriminator.
func discEqual(data []byte, disc [8]byte) bool {
	return len(data) >= 8 && bytes.Equal(data[:8], disc[:])
}
