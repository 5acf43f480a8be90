// Package mpt verifies Merkle-Patricia inclusion proofs as returned by
// eth_getProof.
package mpt

import (
	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"

	"github.com/yourorg/zkmint/pkg/errs"
)

// ProofDB indexes proof nodes by their Keccak hash, the layout
// trie.VerifyProof walks.
func ProofDB(nodes [][]byte) *memorydb.Database {
	db := memorydb.New()
	for _, n := range nodes {
		_ = db.Put(crypto.Keccak256(n), n) // memorydb.Put only fails once closed
	}
	return db
}

// VerifyAccount proves the account of address under the state root. An
// account the proof shows to be absent is returned empty.
func VerifyAccount(root common.Hash, address common.Address, nodes [][]byte) (*types.StateAccount, error) {
	if len(nodes) == 0 {
		return nil, errorsmod.Wrap(errs.ErrDecode, "empty account proof")
	}
	val, err := trie.VerifyProof(root, crypto.Keccak256(address.Bytes()), ProofDB(nodes))
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "account proof for %s: %v", address, err)
	}
	if len(val) == 0 {
		return types.NewEmptyStateAccount(), nil
	}

	var acc types.StateAccount
	if err := rlp.DecodeBytes(val, &acc); err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "account %s: %v", address, err)
	}
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	return &acc, nil
}

// VerifyStorage proves the value of key under a contract's storage root.
// Absent slots are zero.
func VerifyStorage(storageRoot common.Hash, key common.Hash, nodes [][]byte) (*uint256.Int, error) {
	if len(nodes) == 0 {
		if storageRoot == types.EmptyRootHash {
			return new(uint256.Int), nil
		}
		return nil, errorsmod.Wrapf(errs.ErrDecode, "empty storage proof for %s", key)
	}
	val, err := trie.VerifyProof(storageRoot, crypto.Keccak256(key.Bytes()), ProofDB(nodes))
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "storage proof for %s: %v", key, err)
	}
	if len(val) == 0 {
		return new(uint256.Int), nil
	}

	_, content, _, err := rlp.Split(val)
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "storage value for %s: %v", key, err)
	}
	if len(content) > 32 {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "storage value for %s is %d bytes", key, len(content))
	}
	return new(uint256.Int).SetBytes(content), nil
}
