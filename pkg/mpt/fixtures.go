package mpt

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
)

// Fixture is an in-memory secure trie (keys are hashed before insertion)
// used to fabricate proofs for local runs and tests.
type Fixture struct {
	tr    *trie.Trie
	empty bool
}

func NewFixture() *Fixture {
	db := triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil)
	return &Fixture{tr: trie.NewEmpty(db), empty: true}
}

// Put stores value under keccak(key).
func (f *Fixture) Put(key, value []byte) error {
	f.empty = false
	return f.tr.Update(crypto.Keccak256(key), value)
}

func (f *Fixture) Root() common.Hash {
	if f.empty {
		return types.EmptyRootHash
	}
	return f.tr.Hash()
}

// Prove returns the proof nodes for key, root first.
func (f *Fixture) Prove(key []byte) ([][]byte, error) {
	if f.empty {
		return nil, nil
	}
	f.tr.Hash()
	db := memorydb.New()
	if err := f.tr.Prove(crypto.Keccak256(key), db); err != nil {
		return nil, err
	}

	var nodes [][]byte
	it := db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		nodes = append(nodes, common.CopyBytes(it.Value()))
	}
	return nodes, it.Error()
}

// EncodeAccount is the account trie leaf value.
func EncodeAccount(acc *types.StateAccount) ([]byte, error) {
	return rlp.EncodeToBytes(acc)
}

// EncodeStorage is the storage trie leaf value: the RLP of the trimmed
// big-endian slot value.
func EncodeStorage(v *uint256.Int) ([]byte, error) {
	return rlp.EncodeToBytes(v.Bytes())
}
