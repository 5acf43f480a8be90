package stateproof_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/zkmint/internal/ethsim"
	"github.com/yourorg/zkmint/pkg/authz"
	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/slot"
	"github.com/yourorg/zkmint/pkg/stateproof"
	"github.com/yourorg/zkmint/pkg/witness"
)

const (
	domain      = "eth-mainnet"
	cw20        = "neutron1cw20tokencontract"
	destination = "neutron1abcdefghijklmnopqrstuvwxyz0123456789"
	balanceSlot = 9
)

var (
	holder = common.HexToAddress("0x8d41bb082C6050893d1eC113A104cc4C087F2a2a")
	token  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

type fixture struct {
	state   *ethsim.State
	builder *witness.Builder
	circuit *stateproof.Circuit
}

func newFixture(t *testing.T, v witness.Variant) *fixture {
	t.Helper()
	st := ethsim.New(domain, 100)
	c, err := stateproof.New(stateproof.Config{
		Variant:       v,
		Domain:        domain,
		TokenContract: cw20,
		BalanceSlot:   balanceSlot,
	})
	require.NoError(t, err)
	return &fixture{
		state: st,
		builder: &witness.Builder{
			Oracle:      st,
			Provider:    st,
			Domain:      domain,
			Variant:     v,
			BalanceSlot: balanceSlot,
			Logger:      zerolog.Nop(),
		},
		circuit: c,
	}
}

func (f *fixture) encode(t *testing.T, req witness.Request) []byte {
	t.Helper()
	bundle, _, err := f.builder.Build(context.Background(), req)
	require.NoError(t, err)
	enc, err := bundle.Encode()
	require.NoError(t, err)
	return enc
}

func mints(t *testing.T, out []byte) []authz.MintCall {
	t.Helper()
	msg, err := authz.DecodeZkMessage(out)
	require.NoError(t, err)
	calls, err := msg.Mints()
	require.NoError(t, err)
	return calls
}

func TestScenarioANative(t *testing.T) {
	f := newFixture(t, witness.NativeBalance)
	f.state.SetBalance(holder, uint256.NewInt(500_000_000_000_000_000))

	out, err := f.circuit.Run(f.encode(t, witness.Request{Holder: holder, Destination: destination}))
	require.NoError(t, err)

	calls := mints(t, out)
	require.Len(t, calls, 1)
	require.Equal(t, cw20, calls[0].Contract)
	require.Equal(t, destination, calls[0].Recipient)
	require.Equal(t, "500000000000000000", calls[0].Amount.String())

	msg, err := authz.DecodeZkMessage(out)
	require.NoError(t, err)
	require.Equal(t, uint64(authz.Unconstrained), msg.Registry)
	require.Equal(t, uint64(authz.Unconstrained), msg.BlockNumber)
	require.Equal(t, authz.PriorityMedium, msg.Message.EnqueueMsgs.Priority)
	require.Nil(t, msg.Message.EnqueueMsgs.ExpirationTime)
}

func TestScenarioAStorageSlot(t *testing.T) {
	f := newFixture(t, witness.StorageSlot)
	f.state.SetStorage(token, slot.Derive(holder, balanceSlot), uint256.NewInt(500_000_000_000_000_000))
	// another holder's balance lives in the same trie
	f.state.SetStorage(token, slot.Derive(common.HexToAddress("0x01"), balanceSlot), uint256.NewInt(1))

	out, err := f.circuit.Run(f.encode(t, witness.Request{Holder: holder, Destination: destination, Token: &token}))
	require.NoError(t, err)

	calls := mints(t, out)
	require.Len(t, calls, 1)
	require.Equal(t, destination, calls[0].Recipient)
	require.Equal(t, "500000000000000000", calls[0].Amount.String())
}

func TestScenarioBOverflow(t *testing.T) {
	f := newFixture(t, witness.NativeBalance)
	f.state.SetBalance(holder, new(uint256.Int).Lsh(uint256.NewInt(1), 128))

	out, err := f.circuit.Run(f.encode(t, witness.Request{Holder: holder, Destination: destination}))
	require.ErrorIs(t, err, errs.ErrOverflow)
	require.Nil(t, out)
	require.Equal(t, errs.ClassOverflow, errs.ClassOf(err))
}

func TestMaxUint128Accepted(t *testing.T) {
	f := newFixture(t, witness.NativeBalance)
	max := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	f.state.SetBalance(holder, max)

	out, err := f.circuit.Run(f.encode(t, witness.Request{Holder: holder, Destination: destination}))
	require.NoError(t, err)
	require.Equal(t, max.Dec(), mints(t, out)[0].Amount.String())
}

func TestRunIsDeterministic(t *testing.T) {
	f := newFixture(t, witness.StorageSlot)
	f.state.SetStorage(token, slot.Derive(holder, balanceSlot), uint256.NewInt(77))
	enc := f.encode(t, witness.Request{Holder: holder, Destination: destination, Token: &token})

	first, err := f.circuit.Run(enc)
	require.NoError(t, err)
	second, err := f.circuit.Run(enc)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestSharedEncoding(t *testing.T) {
	f := newFixture(t, witness.StorageSlot)
	f.state.SetStorage(token, slot.Derive(holder, balanceSlot), uint256.NewInt(5))

	bundle, root, err := f.builder.Build(context.Background(),
		witness.Request{Holder: holder, Destination: destination, Token: &token})
	require.NoError(t, err)
	enc, err := bundle.Encode()
	require.NoError(t, err)

	decoded, err := witness.DecodeFor(enc, witness.StorageSlot)
	require.NoError(t, err)

	sp, err := decoded.StateProof()
	require.NoError(t, err)
	require.Equal(t, domain, sp.Domain)
	require.Equal(t, root.Root, sp.Root)
	require.Equal(t, holder.Bytes(), sp.Payload)
	require.Equal(t, bundle.Witnesses[0].StateProof.Proof, sp.Proof)

	dest, err := decoded.Destination()
	require.NoError(t, err)
	require.Equal(t, destination, dest)

	got, ok, err := decoded.Token()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, token, got)
}

func TestArityCheckedBeforeDecoding(t *testing.T) {
	// a native bundle whose proof body is garbage
	bundle := &witness.Bundle{
		Version: witness.SchemaVersion,
		Witnesses: []witness.Witness{
			witness.NewStateProofWitness(witness.StateProof{Domain: domain, Proof: []byte("garbage")}),
			witness.NewDestinationWitness(destination),
		},
	}
	enc, err := bundle.Encode()
	require.NoError(t, err)

	storage := newFixture(t, witness.StorageSlot)
	_, err = storage.circuit.Run(enc)
	require.ErrorIs(t, err, errs.ErrWitnessArity)

	native := newFixture(t, witness.NativeBalance)
	_, err = native.circuit.Run(enc)
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestMalformedProofFailsClosed(t *testing.T) {
	f := newFixture(t, witness.NativeBalance)
	f.state.SetBalance(holder, uint256.NewInt(10))

	inflate := func(sp *witness.StateProof) {
		var p witness.AccountProof
		require.NoError(t, json.Unmarshal(sp.Proof, &p))
		p.Balance = (*hexutil.Big)(big.NewInt(11))
		body, err := json.Marshal(p)
		require.NoError(t, err)
		sp.Proof = body
	}

	cases := map[string]func(sp *witness.StateProof){
		"empty body":       func(sp *witness.StateProof) { sp.Proof = nil },
		"not json":         func(sp *witness.StateProof) { sp.Proof = []byte("{") },
		"no nodes":         func(sp *witness.StateProof) { sp.Proof = []byte(`{"accountProof":[]}`) },
		"wrong root":       func(sp *witness.StateProof) { sp.Root = common.HexToHash("0xbad") },
		"inflated balance": inflate,
	}
	for name, mutate := range cases {
		bundle, _, err := f.builder.Build(context.Background(), witness.Request{Holder: holder, Destination: destination})
		require.NoError(t, err)
		mutate(bundle.Witnesses[0].StateProof)
		enc, err := bundle.Encode()
		require.NoError(t, err)

		out, err := f.circuit.Run(enc)
		require.ErrorIs(t, err, errs.ErrDecode, name)
		require.Nil(t, out, name)
	}
}

func TestDomainMismatch(t *testing.T) {
	f := newFixture(t, witness.NativeBalance)
	f.state.SetBalance(holder, uint256.NewInt(10))

	bundle, _, err := f.builder.Build(context.Background(), witness.Request{Holder: holder, Destination: destination})
	require.NoError(t, err)
	bundle.Witnesses[0].StateProof.Domain = witness.DefaultDomain
	enc, err := bundle.Encode()
	require.NoError(t, err)

	_, err = f.circuit.Run(enc)
	require.ErrorIs(t, err, errs.ErrDomainMismatch)
}

func TestStorageSlotBindsHolderAndToken(t *testing.T) {
	f := newFixture(t, witness.StorageSlot)
	other := common.HexToAddress("0x01")
	f.state.SetStorage(token, slot.Derive(holder, balanceSlot), uint256.NewInt(5))
	f.state.SetStorage(other, slot.Derive(holder, balanceSlot), uint256.NewInt(500))

	build := func() *witness.Bundle {
		bundle, _, err := f.builder.Build(context.Background(),
			witness.Request{Holder: holder, Destination: destination, Token: &token})
		require.NoError(t, err)
		return bundle
	}
	run := func(b *witness.Bundle) error {
		enc, err := b.Encode()
		require.NoError(t, err)
		_, err = f.circuit.Run(enc)
		return err
	}

	// claiming someone else's balance with the holder's proof
	b := build()
	b.Witnesses[0].StateProof.Payload = other.Bytes()
	require.ErrorIs(t, run(b), errs.ErrDecode)

	// pointing the token witness at a different contract
	b = build()
	b.Witnesses[2] = witness.NewTokenWitness(other)
	require.ErrorIs(t, run(b), errs.ErrDecode)

	require.NoError(t, run(build()))
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := stateproof.New(stateproof.Config{Variant: witness.NativeBalance})
	require.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = stateproof.New(stateproof.Config{TokenContract: cw20})
	require.ErrorIs(t, err, errs.ErrConfiguration)

	c, err := stateproof.New(stateproof.Config{Variant: witness.NativeBalance, TokenContract: cw20})
	require.NoError(t, err)
	require.Equal(t, witness.DefaultDomain, c.Config().Domain)
}
