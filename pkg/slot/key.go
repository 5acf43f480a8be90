// Package slot derives Solidity mapping storage keys.
package slot

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Derive returns keccak256( pad32(holder) ‖ pad32(index) ), the storage key of
// mapping(address => …) entry holder when the mapping sits at slot index.
func Derive(holder common.Address, index uint64) common.Hash {
	return crypto.Keccak256Hash(Preimage(holder, index))
}

// Preimage is the 64-byte Keccak input used by Derive.
func Preimage(holder common.Address, index uint64) []byte {
	buf := make([]byte, 64)

	// first 32 bytes = address, left-padded
	copy(buf[12:32], holder.Bytes())

	// last 32 bytes = slot index (big-endian)
	putIndex(buf[32:], index)
	return buf
}

func putIndex(dst []byte, index uint64) {
	for i := 0; i < 8; i++ { // write into the LAST 8 bytes of the field
		dst[24+i] = byte(index >> (8 * (7 - i)))
	}
}
