package mpt

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/zkmint/pkg/errs"
)

func account(balance uint64, storageRoot common.Hash) *types.StateAccount {
	return &types.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(balance),
		Root:     storageRoot,
		CodeHash: types.EmptyCodeHash.Bytes(),
	}
}

func putAccount(t *testing.T, f *Fixture, addr common.Address, acc *types.StateAccount) {
	t.Helper()
	enc, err := EncodeAccount(acc)
	require.NoError(t, err)
	require.NoError(t, f.Put(addr.Bytes(), enc))
}

func TestVerifyAccount(t *testing.T) {
	holder := common.HexToAddress("0x8d41bb082C6050893d1eC113A104cc4C087F2a2a")
	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	f := NewFixture()
	putAccount(t, f, holder, account(500_000_000_000_000_000, types.EmptyRootHash))
	putAccount(t, f, other, account(7, types.EmptyRootHash))

	nodes, err := f.Prove(holder.Bytes())
	require.NoError(t, err)
	require.NotEmpty(t, nodes)

	acc, err := VerifyAccount(f.Root(), holder, nodes)
	require.NoError(t, err)
	require.Equal(t, uint64(500_000_000_000_000_000), acc.Balance.Uint64())
	require.Equal(t, uint64(1), acc.Nonce)
}

func TestVerifyAccountAbsent(t *testing.T) {
	f := NewFixture()
	putAccount(t, f, common.HexToAddress("0x01"), account(1, types.EmptyRootHash))
	putAccount(t, f, common.HexToAddress("0x02"), account(2, types.EmptyRootHash))

	missing := common.HexToAddress("0x03")
	nodes, err := f.Prove(missing.Bytes())
	require.NoError(t, err)

	acc, err := VerifyAccount(f.Root(), missing, nodes)
	require.NoError(t, err)
	require.True(t, acc.Balance.IsZero())
}

func TestVerifyAccountWrongRoot(t *testing.T) {
	holder := common.HexToAddress("0x01")
	f := NewFixture()
	putAccount(t, f, holder, account(1, types.EmptyRootHash))

	nodes, err := f.Prove(holder.Bytes())
	require.NoError(t, err)

	_, err = VerifyAccount(common.HexToHash("0xdead"), holder, nodes)
	require.ErrorIs(t, err, errs.ErrDecode)

	_, err = VerifyAccount(f.Root(), holder, nil)
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestVerifyStorage(t *testing.T) {
	key := common.HexToHash("0x92e85d02570a8092d09a6e3a57665bc3815a2699a4074001bf1ccabf660f5a36")
	val := uint256.MustFromDecimal("500000000000000000")

	st := NewFixture()
	enc, err := EncodeStorage(val)
	require.NoError(t, err)
	require.NoError(t, st.Put(key.Bytes(), enc))
	enc, err = EncodeStorage(uint256.NewInt(3))
	require.NoError(t, err)
	require.NoError(t, st.Put(common.HexToHash("0x01").Bytes(), enc))

	nodes, err := st.Prove(key.Bytes())
	require.NoError(t, err)

	got, err := VerifyStorage(st.Root(), key, nodes)
	require.NoError(t, err)
	require.Equal(t, val, got)

	// a value proven under one key is not accepted for another
	got, err = VerifyStorage(st.Root(), common.HexToHash("0x02"), nodes)
	if err == nil {
		require.True(t, got.IsZero())
	}
}

func TestVerifyStorageEmptyRoot(t *testing.T) {
	got, err := VerifyStorage(types.EmptyRootHash, common.HexToHash("0x01"), nil)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	_, err = VerifyStorage(common.HexToHash("0x01"), common.HexToHash("0x01"), nil)
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestFixtureEmptyRoot(t *testing.T) {
	require.Equal(t, types.EmptyRootHash, NewFixture().Root())
}
