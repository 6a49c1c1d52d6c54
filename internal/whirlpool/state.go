// internal/whirlpool/state.go
package whirlpool

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"

	bin "github.com/rovshanmuradov/whirlpool-pnl/internal/utils/binary"
)

const (
	positionAccountLen  = 216
	whirlpoolAccountLen = 653
)

// Position mirrors the on-chain position account.
type Position struct {
	Whirlpool    solana.PublicKey
	PositionMint solana.PublicKey
	Liquidity    *big.Int
	TickLower    int32
	TickUpper    int32
	FeeOwedA     uint64
	FeeOwedB     uint64

	FeeGrowthCheckpointA *big.Int
	FeeGrowthCheckpointB *big.Int

	RewardInfos [NumRewards]PositionRewardInfo
}

type PositionRewardInfo struct {
	GrowthInsideCheckpoint *big.Int
	AmountOwed             uint64
}

// ParsePosition parses the binary content of a position account.
func ParsePosition(data []byte) (*Position, error) {
	if len(data) < positionAccountLen {
		return nil, fmt.Errorf("data too short for Position: %d", len(data))
	}
	if !discEqual(data, PositionDiscriminator) {
		return nil, fmt.Errorf("invalid discriminator for Position")
	}

	p := &Position{
		Whirlpool:            bin.ReadPubKey(data, 8),
		PositionMint:         bin.ReadPubKey(data, 40),
		Liquidity:            bin.ReadUint128LittleEndian(data, 72),
		TickLower:            bin.ReadInt32LittleEndian(data, 88),
		TickUpper:            bin.ReadInt32LittleEndian(data, 92),
		FeeGrowthCheckpointA: bin.ReadUint128LittleEndian(data, 96),
		FeeOwedA:             bin.ReadUint64LittleEndian(data, 112),
		FeeGrowthCheckpointB: bin.ReadUint128LittleEndian(data, 120),
		FeeOwedB:             bin.ReadUint64LittleEndian(data, 136),
	}

	pos := 144
	for i := 0; i < NumRewards; i++ {
		p.RewardInfos[i] = PositionRewardInfo{
			GrowthInsideCheckpoint: bin.ReadUint128LittleEndian(data, pos),
			AmountOwed:             bin.ReadUint64LittleEndian(data, pos+16),
		}
		pos += 24
	}

	return p, nil
}

// Whirlpool mirrors the fields of the pool account the analyzer needs.
type Whirlpool struct {
	TickSpacing      uint16
	FeeRate          uint16
	Liquidity        *big.Int
	SqrtPrice        *big.Int
	TickCurrentIndex int32
	TokenMintA       solana.PublicKey
	TokenVaultA      solana.PublicKey
	TokenMintB       solana.PublicKey
	TokenVaultB      solana.PublicKey
	FeeGrowthGlobalA *big.Int
	FeeGrowthGlobalB *big.Int

	RewardInfos [NumRewards]WhirlpoolRewardInfo
}

type WhirlpoolRewardInfo struct {
	Mint                  solana.PublicKey
	Vault                 solana.PublicKey
	EmissionsPerSecondX64 *big.Int
	GrowthGlobalX64       *big.Int
}

// ParseWhirlpool parses the binary content of a whirlpool account.
func ParseWhirlpool(data []byte) (*Whirlpool, error) {
	if len(data) < whirlpoolAccountLen {
		return nil, fmt.Errorf("data too short for Whirlpool: %d", len(data))
	}
	if !discEqual(data, WhirlpoolDiscriminator) {
		return nil, fmt.Errorf("invalid discriminator for Whirlpool")
	}

	w := &Whirlpool{
		TickSpacing:      bin.ReadUint16LittleEndian(data, 41),
		FeeRate:          bin.ReadUint16LittleEndian(data, 45),
		Liquidity:        bin.ReadUint128LittleEndian(data, 49),
		SqrtPrice:        bin.ReadUint128LittleEndian(data, 65),
		TickCurrentIndex: bin.ReadInt32LittleEndian(data, 81),
		TokenMintA:       bin.ReadPubKey(data, 101),
		TokenVaultA:      bin.ReadPubKey(data, 133),
		FeeGrowthGlobalA: bin.ReadUint128LittleEndian(data, 165),
		TokenMintB:       bin.ReadPubKey(data, 181),
		TokenVaultB:      bin.ReadPubKey(data, 213),
		FeeGrowthGlobalB: bin.ReadUint128LittleEndian(data, 245),
	}

	pos := 269
	for i := 0; i < NumRewards; i++ {
		w.RewardInfos[i] = WhirlpoolRewardInfo{
			Mint:                  bin.ReadPubKey(data, pos),
			Vault:                 bin.ReadPubKey(data, pos+32),
			EmissionsPerSecondX64: bin.ReadUint128LittleEndian(data, pos+96),
			GrowthGlobalX64:       bin.ReadUint128LittleEndian(data, pos+112),
		}
		pos += 128
	}

	return w, nil
}

// DerivePositionAddress derives the position PDA for a position mint.
func DerivePositionAddress(positionMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("position"), positionMint.Bytes()},
		ProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive position address: %w", err)
	}
	return addr, nil
}
