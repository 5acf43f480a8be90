package authz

import (
	"encoding/json"
	"fmt"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/holiman/uint256"

	"github.com/yourorg/zkmint/pkg/errs"
)

// Uint128 is an unsigned 128-bit amount. It marshals as a decimal string,
// matching cosmwasm_std::Uint128.
type Uint128 struct {
	v uint256.Int // invariant: BitLen() <= 128
}

// NewUint128 returns x as a Uint128.
func NewUint128(x uint64) Uint128 {
	var u Uint128
	u.v.SetUint64(x)
	return u
}

// Uint128FromUint256 narrows x to 128 bits. Values that do not fit fail with
// errs.ErrOverflow; nothing is ever truncated.
func Uint128FromUint256(x *uint256.Int) (Uint128, error) {
	if x == nil {
		return Uint128{}, nil
	}
	if x.BitLen() > 128 {
		return Uint128{}, errorsmod.Wrapf(errs.ErrOverflow, "value %s", x.Dec())
	}
	var u Uint128
	u.v.Set(x)
	return u, nil
}

// Uint128FromBig narrows a non-negative big integer to 128 bits.
func Uint128FromBig(x *big.Int) (Uint128, error) {
	if x == nil {
		return Uint128{}, nil
	}
	if x.Sign() < 0 {
		return Uint128{}, errorsmod.Wrapf(errs.ErrDecode, "negative amount %s", x)
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return Uint128{}, errorsmod.Wrapf(errs.ErrOverflow, "value %s", x)
	}
	return Uint128FromUint256(v)
}

// ParseUint128 parses a base-10 amount.
func ParseUint128(s string) (Uint128, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Uint128{}, errorsmod.Wrapf(errs.ErrDecode, "amount %q: %v", s, err)
	}
	return Uint128FromUint256(v)
}

func (u Uint128) String() string { return u.v.Dec() }

// Big returns a copy of u as a big integer.
func (u Uint128) Big() *big.Int { return u.v.ToBig() }

func (u Uint128) IsZero() bool { return u.v.IsZero() }

func (u Uint128) Cmp(o Uint128) int { return u.v.Cmp(&o.v) }

// Add returns u+o, failing with errs.ErrOverflow past 2^128-1.
func (u Uint128) Add(o Uint128) (Uint128, error) {
	var sum uint256.Int
	sum.Add(&u.v, &o.v)
	return Uint128FromUint256(&sum)
}

func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *Uint128) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("uint128 must be a decimal string: %w", err)
	}
	v, err := ParseUint128(s)
	if err != nil {
		return err
	}
	*u = v
	return nil
}
