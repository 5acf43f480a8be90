package authz

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/zkmint/pkg/errs"
)

const cw20 = "neutron1cw20contract"

func TestUint128Boundaries(t *testing.T) {
	two128 := new(big.Int).Lsh(big.NewInt(1), 128)
	max := new(big.Int).Sub(two128, big.NewInt(1))

	for _, ok := range []*big.Int{big.NewInt(0), big.NewInt(1), big.NewInt(500000000000000000), max} {
		u, err := Uint128FromBig(ok)
		require.NoError(t, err, ok.String())
		require.Equal(t, ok.String(), u.String())
		require.Zero(t, ok.Cmp(u.Big()))
	}

	for _, bad := range []*big.Int{two128, new(big.Int).Add(two128, big.NewInt(1)), new(big.Int).Lsh(big.NewInt(1), 255)} {
		_, err := Uint128FromBig(bad)
		require.ErrorIs(t, err, errs.ErrOverflow, bad.String())
	}

	_, err := Uint128FromBig(big.NewInt(-1))
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestUint128FromUint256Overflow(t *testing.T) {
	v := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	u, err := Uint128FromUint256(v)
	require.ErrorIs(t, err, errs.ErrOverflow)
	require.True(t, u.IsZero(), "overflow must not yield a wrapped value")
}

func TestUint128Add(t *testing.T) {
	max, err := ParseUint128("340282366920938463463374607431768211455")
	require.NoError(t, err)

	_, err = max.Add(NewUint128(1))
	require.ErrorIs(t, err, errs.ErrOverflow)

	sum, err := NewUint128(40).Add(NewUint128(2))
	require.NoError(t, err)
	require.Equal(t, "42", sum.String())
}

func TestUint128JSON(t *testing.T) {
	b, err := json.Marshal(NewUint128(12345))
	require.NoError(t, err)
	require.Equal(t, `"12345"`, string(b))

	var u Uint128
	require.NoError(t, json.Unmarshal([]byte(`"98765"`), &u))
	require.Equal(t, "98765", u.String())

	require.Error(t, json.Unmarshal([]byte(`98765`), &u))
	require.ErrorIs(t, json.Unmarshal([]byte(`"340282366920938463463374607431768211456"`), &u), errs.ErrOverflow)
}

func TestBuildMintMessageShape(t *testing.T) {
	msg, err := BuildMintMessage(MintParams{TokenContract: cw20}, "neutron1abc", NewUint128(7))
	require.NoError(t, err)

	b, err := msg.Encode()
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(b, &generic))
	require.EqualValues(t, 0, generic["registry"])
	require.EqualValues(t, 0, generic["block_number"])
	require.Equal(t, "main", generic["domain"])
	require.Nil(t, generic["authorization_contract"])

	enq := generic["message"].(map[string]any)["enqueue_msgs"].(map[string]any)
	require.Equal(t, "medium", enq["priority"])
	require.Nil(t, enq["expiration_time"])

	atomic := enq["subroutine"].(map[string]any)["atomic"].(map[string]any)
	require.Nil(t, atomic["retry_logic"])
	require.Nil(t, atomic["expiration_time"])
	fns := atomic["functions"].([]any)
	require.Len(t, fns, 1)
	fn := fns[0].(map[string]any)
	require.Equal(t, cw20, fn["contract_address"].(map[string]any)["|library_account_addr|"])
	require.Equal(t, "mint", fn["message_details"].(map[string]any)["message"].(map[string]any)["name"])

	mints, err := msg.Mints()
	require.NoError(t, err)
	require.Equal(t, []MintCall{{Contract: cw20, Mint: Mint{Recipient: "neutron1abc", Amount: NewUint128(7)}}}, mints)
}

func TestBuildMintMessageDeterministic(t *testing.T) {
	a, err := BuildMintMessage(MintParams{TokenContract: cw20, Registry: 3, BlockNumber: 99}, "neutron1abc", NewUint128(1))
	require.NoError(t, err)
	b, err := BuildMintMessage(MintParams{TokenContract: cw20, Registry: 3, BlockNumber: 99}, "neutron1abc", NewUint128(1))
	require.NoError(t, err)

	ab, _ := a.Encode()
	bb, _ := b.Encode()
	require.Equal(t, ab, bb)
}

func TestBuildMintMessageRequiresToken(t *testing.T) {
	_, err := BuildMintMessage(MintParams{}, "neutron1abc", NewUint128(1))
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestDecodeZkMessage(t *testing.T) {
	auth := "neutron1auth"
	msg, err := BuildMintMessage(MintParams{TokenContract: cw20, AuthorizationContract: &auth}, "neutron1abc", NewUint128(5))
	require.NoError(t, err)
	b, err := msg.Encode()
	require.NoError(t, err)

	got, err := DecodeZkMessage(b)
	require.NoError(t, err)
	require.Equal(t, auth, *got.AuthorizationContract)
	again, err := got.Encode()
	require.NoError(t, err)
	require.JSONEq(t, string(b), string(again))

	_, err = DecodeZkMessage([]byte(`{"registry":0,"bogus":1}`))
	require.ErrorIs(t, err, errs.ErrDecode)
	_, err = DecodeZkMessage([]byte(`{"registry":0,"block_number":0,"domain":"main","authorization_contract":null,"message":{}}`))
	require.ErrorIs(t, err, errs.ErrDecode)
}

func TestDomainJSON(t *testing.T) {
	b, err := json.Marshal(Domain{External: "ethereum"})
	require.NoError(t, err)
	require.Equal(t, `{"external":"ethereum"}`, string(b))

	var d Domain
	require.NoError(t, json.Unmarshal(b, &d))
	require.Equal(t, "ethereum", d.External)
	require.NoError(t, json.Unmarshal([]byte(`"main"`), &d))
	require.True(t, d.IsMain())
	require.Error(t, json.Unmarshal([]byte(`"side"`), &d))
}

func TestTickMsg(t *testing.T) {
	b, err := json.Marshal(TickMsg())
	require.NoError(t, err)
	require.Equal(t, `{"permissionless_action":{"tick":{}}}`, string(b))
}
