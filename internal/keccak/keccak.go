// Package keccak wraps gnark's legacy Keccak-256 gadget, the hash Ethereum
// uses for storage keys.
package keccak

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/sha3"
	"github.com/consensys/gnark/std/math/uints"
)

// Sum256 returns the 32 digest bytes of data.
func Sum256(api frontend.API, data []uints.U8) ([]uints.U8, error) {
	h, err := sha3.NewLegacyKeccak256(api)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(), nil
}
