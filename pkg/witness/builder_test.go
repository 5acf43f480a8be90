package witness_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/zkmint/internal/ethsim"
	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/slot"
	"github.com/yourorg/zkmint/pkg/witness"
)

var (
	holder = common.HexToAddress("0x8d41bb082C6050893d1eC113A104cc4C087F2a2a")
	token  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

const balanceSlot = 9

func newBuilder(st *ethsim.State, v witness.Variant) *witness.Builder {
	return &witness.Builder{
		Oracle:      st,
		Provider:    st,
		Variant:     v,
		BalanceSlot: balanceSlot,
		Logger:      zerolog.Nop(),
	}
}

func TestBuildNative(t *testing.T) {
	st := ethsim.New(witness.DefaultDomain, 100)
	st.SetBalance(holder, uint256.NewInt(500_000_000_000_000_000))

	b := newBuilder(st, witness.NativeBalance)
	bundle, root, err := b.Build(context.Background(), witness.Request{Holder: holder, Destination: "neutron1abc"})
	require.NoError(t, err)
	require.Len(t, bundle.Witnesses, 2)
	require.Equal(t, uint64(100), root.Number)

	want, err := st.Root()
	require.NoError(t, err)
	require.Equal(t, want, root.Root)

	sp, err := bundle.StateProof()
	require.NoError(t, err)
	require.Equal(t, witness.DefaultDomain, sp.Domain)
	require.Equal(t, want, sp.Root)
	require.Empty(t, sp.Payload)

	var proof witness.AccountProof
	require.NoError(t, json.Unmarshal(sp.Proof, &proof))
	require.Equal(t, holder, proof.Address)
	require.Empty(t, proof.StorageProof)
	require.Equal(t, "500000000000000000", proof.BalanceBig().String())

	dest, err := bundle.Destination()
	require.NoError(t, err)
	require.Equal(t, "neutron1abc", dest)
}

func TestBuildStorageSlot(t *testing.T) {
	key := slot.Derive(holder, balanceSlot)

	st := ethsim.New(witness.DefaultDomain, 7)
	st.SetStorage(token, key, uint256.NewInt(42))

	b := newBuilder(st, witness.StorageSlot)
	bundle, _, err := b.Build(context.Background(), witness.Request{
		Holder:      holder,
		Destination: "neutron1abc",
		Token:       &token,
	})
	require.NoError(t, err)
	require.NoError(t, bundle.Check(witness.StorageSlot))

	sp, err := bundle.StateProof()
	require.NoError(t, err)
	require.Equal(t, holder.Bytes(), sp.Payload)

	var proof witness.AccountProof
	require.NoError(t, json.Unmarshal(sp.Proof, &proof))
	require.Equal(t, token, proof.Address)
	require.Len(t, proof.StorageProof, 1)
	require.Equal(t, key, proof.StorageProof[0].KeyHash())
	require.Equal(t, "42", proof.StorageProof[0].ValueBig().String())

	got, ok, err := bundle.Token()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, token, got)
}

func TestDeriveStorageKey(t *testing.T) {
	b := &witness.Builder{}
	require.Equal(t,
		"0xb1de6ac3bca41bb358699e340ae313f38ab8e03d5b03210607f6dbd96e93cb84",
		b.DeriveStorageKey(holder, 9).Hex())
}

func TestBuildDomainUnavailable(t *testing.T) {
	st := ethsim.New("ethereum-other", 1)
	b := newBuilder(st, witness.NativeBalance)

	_, _, err := b.Build(context.Background(), witness.Request{Holder: holder, Destination: "neutron1abc"})
	require.ErrorIs(t, err, errs.ErrDomainUnavailable)
	require.Zero(t, st.ProofCalls())

	st = ethsim.New(witness.DefaultDomain, 1)
	st.OracleErr = errors.New("connection refused")
	_, _, err = newBuilder(st, witness.NativeBalance).Build(context.Background(), witness.Request{Holder: holder, Destination: "neutron1abc"})
	require.ErrorIs(t, err, errs.ErrDomainUnavailable)
	require.True(t, errs.Retryable(err))
}

type wrongDomainOracle struct{}

func (wrongDomainOracle) LatestBlock(context.Context, string) (*witness.BlockRoot, error) {
	return &witness.BlockRoot{Domain: "ethereum-other", Number: 1}, nil
}

func TestResolveBlockRootDomainMismatch(t *testing.T) {
	b := &witness.Builder{Oracle: wrongDomainOracle{}}
	_, err := b.ResolveBlockRoot(context.Background(), witness.DefaultDomain)
	require.ErrorIs(t, err, errs.ErrDomainMismatch)
	require.Equal(t, errs.ClassConfiguration, errs.ClassOf(err))
}

func TestBuildProviderFailure(t *testing.T) {
	st := ethsim.New(witness.DefaultDomain, 1)
	st.ProviderErr = errors.New("502 bad gateway")

	bundle, _, err := newBuilder(st, witness.NativeBalance).Build(context.Background(),
		witness.Request{Holder: holder, Destination: "neutron1abc"})
	require.ErrorIs(t, err, errs.ErrProofProvider)
	require.Nil(t, bundle)
	require.Equal(t, 1, st.ProofCalls())
}

func TestBuildRejectsBadRequests(t *testing.T) {
	st := ethsim.New(witness.DefaultDomain, 1)

	_, _, err := newBuilder(st, witness.StorageSlot).Build(context.Background(),
		witness.Request{Holder: holder, Destination: "neutron1abc"})
	require.ErrorIs(t, err, errs.ErrConfiguration)

	_, _, err = newBuilder(st, witness.NativeBalance).Build(context.Background(),
		witness.Request{Holder: holder})
	require.ErrorIs(t, err, errs.ErrConfiguration)

	_, _, err = newBuilder(st, witness.Variant(9)).Build(context.Background(),
		witness.Request{Holder: holder, Destination: "neutron1abc"})
	require.ErrorIs(t, err, errs.ErrConfiguration)
	require.Zero(t, st.ProofCalls())
}

func TestBuildFetchesFreshRootEveryTime(t *testing.T) {
	st := ethsim.New(witness.DefaultDomain, 1)
	st.SetBalance(holder, uint256.NewInt(1))
	b := newBuilder(st, witness.NativeBalance)
	req := witness.Request{Holder: holder, Destination: "neutron1abc"}

	_, first, err := b.Build(context.Background(), req)
	require.NoError(t, err)

	st.SetBalance(holder, uint256.NewInt(2))
	_, second, err := b.Build(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, first.Root, second.Root)
	require.Equal(t, 2, st.ProofCalls())
}

func TestAssembleRejectsMissingInputs(t *testing.T) {
	root := &witness.BlockRoot{Domain: witness.DefaultDomain, Number: 1}
	req := witness.Request{Holder: holder, Destination: "neutron1abc"}

	b := &witness.Builder{Variant: witness.StorageSlot}
	bundle, err := b.Assemble(root, &witness.AccountProof{}, req)
	require.ErrorIs(t, err, errs.ErrConfiguration)
	require.Nil(t, bundle)

	req.Token = &token
	_, err = b.Assemble(nil, &witness.AccountProof{}, req)
	require.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = b.Assemble(root, nil, req)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}
