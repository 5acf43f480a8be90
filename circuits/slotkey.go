package circuits

import (
	"encoding/binary"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/math/uints"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/zkmint/internal/keccak"
)

// SlotKeyCircuit proves that Key is the storage key of Holder's entry in
// the mapping at slot Index: keccak256(pad32(holder) || uint256(index)).
type SlotKeyCircuit struct {
	Holder [20]uints.U8
	Index  [8]uints.U8            // big-endian
	Key    [32]frontend.Variable `gnark:",public"`
}

func (c *SlotKeyCircuit) Define(api frontend.API) error {
	zero := uints.NewU8(0)

	pre := make([]uints.U8, 0, 64)
	for i := 0; i < 12; i++ {
		pre = append(pre, zero)
	}
	pre = append(pre, c.Holder[:]...)
	for i := 0; i < 24; i++ {
		pre = append(pre, zero)
	}
	pre = append(pre, c.Index[:]...)

	out, err := keccak.Sum256(api, pre)
	if err != nil {
		return err
	}
	for i := 0; i < 32; i++ {
		api.AssertIsEqual(out[i].Val, c.Key[i])
	}
	return nil
}

// SlotKeyAssignment fills a full witness for holder, index and key.
func SlotKeyAssignment(holder common.Address, index uint64, key common.Hash) *SlotKeyCircuit {
	var w SlotKeyCircuit
	for i, b := range holder {
		w.Holder[i] = uints.NewU8(b)
	}
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	for i, b := range idx {
		w.Index[i] = uints.NewU8(b)
	}
	for i, b := range key {
		w.Key[i] = b
	}
	return &w
}
