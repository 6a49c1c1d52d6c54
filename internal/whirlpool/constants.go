// internal/whirlpool/constants.go
package whirlpool

import "github.com/gagliardetto/solana-go"

var (
	// ProgramID is the Orca Whirlpool program
	ProgramID = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")

	// WrappedSOLMint prices transaction fees and rent
	WrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	TokenProgramID     = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// Anchor instruction discriminators: first 8 bytes of sha256("global:<name>")
var (
	ixOpenPosition             = [8]byte{135, 128, 47, 77, 15, 152, 240, 49}
	ixOpenPositionWithMetadata = [8]byte{242, 29, 134, 48, 58, 110, 14, 60}
	ixIncreaseLiquidity        = [8]byte{46, 156, 243, 118, 13, 205, 251, 178}
	ixIncreaseLiquidityV2      = [8]byte{133, 29, 89, 223, 69, 238, 176, 10}
	ixDecreaseLiquidity        = [8]byte{160, 38, 208, 111, 104, 91, 44, 1}
	ixDecreaseLiquidityV2      = [8]byte{58, 127, 188, 62, 79, 82, 196, 96}
	ixCollectFees              = [8]byte{164, 152, 207, 99, 30, 186, 19, 182}
	ixCollectFeesV2            = [8]byte{207, 117, 95, 191, 229, 180, 226, 15}
	ixCollectReward            = [8]byte{70, 5, 132, 87, 86, 235, 177, 34}
	ixCollectRewardV2          = [8]byte{177, 107, 37, 180, 160, 19, 49, 209}
	ixClosePosition            = [8]byte{123, 134, 81, 0, 49, 68, 98, 98}
)

// Anchor account discriminators: first 8 bytes of sha256("account:<name>")
var (
	PositionDiscriminator  = [8]byte{170, 188, 143, 228, 122, 64, 247, 208}
	WhirlpoolDiscriminator = [8]byte{63, 149, 209, 12, 225, 128, 99, 9}
)

// Rent-exempt minimums of the accounts each open variant allocates, in
// lamports. The metadata variant additionally funds the Metaplex metadata
// account. Closing reclaims the position and token account rent.
const (
	rentPositionAccount = 2_394_240 // 216 bytes
	rentMintAccount     = 1_461_600 // 82 bytes
	rentTokenAccount    = 2_039_280 // 165 bytes
	rentMetadataAccount = 5_616_720 // 679 bytes

	RentOpenPosition             = rentPositionAccount + rentMintAccount + rentTokenAccount
	RentOpenPositionWithMetadata = RentOpenPosition + rentMetadataAccount
	RentReclaimOnClose           = rentPositionAccount + rentTokenAccount
)

const (
	// LamportsPerSOL converts lamport-denominated fees and rent to SOL
	LamportsPerSOL = 1_000_000_000

	// NumRewards is the fixed reward slot count per whirlpool
	NumRewards = 3
)
