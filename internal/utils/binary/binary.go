// internal/utils/binary/binary.go
package binary

import (
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// ReadUint64LittleEndian reads a uint64 from a byte slice in little-endian format
func ReadUint64LittleEndian(data []byte, offset int) uint64 {
	return binary.LittleEndian.Uint64(data[offset : offset+8])
}

// ReadUint32LittleEndian reads a uint32 from a byte slice in little-endian format
func ReadUint32LittleEndian(data []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(data[offset : offset+4])
}

// ReadInt32LittleEndian reads an int32 from a byte slice in little-endian format
func ReadInt32LittleEndian(data []byte, offset int) int32 {
	return int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
}

// ReadUint16LittleEndian reads a uint16 from a byte slice in little-endian format
func ReadUint16LittleEndian(data []byte, offset int) uint16 {
	return binary.LittleEndian.Uint16(data[offset : offset+2])
}

// ReadUint8 reads a uint8 (byte) from a byte slice
func ReadUint8(data []byte, offset int) uint8 {
	return data[offset]
}

// ReadUint128LittleEndian reads an unsigned 128-bit little-endian integer
// into a big.Int. The result is always non-negative.
func ReadUint128LittleEndian(data []byte, offset int) *big.Int {
	be := make([]byte, 16)
	for i := 0; i < 16; i++ {
		be[15-i] = data[offset+i]
	}
	return new(big.Int).SetBytes(be)
}

// ReadPubKey reads a Solana public key from a byte slice
func ReadPubKey(data []byte, offset int) solana.PublicKey {
	keyBytes := make([]byte, 32)
	copy(keyBytes, data[offset:offset+32])
	return solana.PublicKeyFromBytes(keyBytes)
}
