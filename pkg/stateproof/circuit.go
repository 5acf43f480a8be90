// Package stateproof is the guest program of the proving environment: it
// checks a witness bundle against the state root it is bound to and turns
// the proven amount into a CW20 mint authorization.
//
// Run is pure. It does no I/O and reads neither clock nor randomness, so the
// same bundle always yields the same bytes.
package stateproof

import (
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/yourorg/zkmint/pkg/authz"
	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/mpt"
	"github.com/yourorg/zkmint/pkg/slot"
	"github.com/yourorg/zkmint/pkg/witness"
)

// Config is fixed per deployment.
type Config struct {
	Variant witness.Variant
	// Domain the state proof must be bound to.
	Domain string
	// TokenContract is the CW20 contract that receives the mint.
	TokenContract string
	// Registry and BlockNumber are copied into the message; 0 means
	// unconstrained.
	Registry              uint64
	BlockNumber           uint64
	AuthorizationContract *string
	// BalanceSlot is the ERC-20 balances mapping slot (StorageSlot only).
	BalanceSlot uint64
}

type Circuit struct {
	cfg Config
}

// New validates cfg.
func New(cfg Config) (*Circuit, error) {
	if cfg.Variant.Arity() == 0 {
		return nil, errorsmod.Wrapf(errs.ErrConfiguration, "invalid circuit variant %d", cfg.Variant)
	}
	if cfg.TokenContract == "" {
		return nil, errorsmod.Wrap(errs.ErrConfiguration, "token contract not set")
	}
	if cfg.Domain == "" {
		cfg.Domain = witness.DefaultDomain
	}
	return &Circuit{cfg: cfg}, nil
}

func (c *Circuit) Config() Config { return c.cfg }

// Run returns the canonical encoding of the authorization message for the
// encoded bundle.
func (c *Circuit) Run(encoded []byte) ([]byte, error) {
	msg, err := c.Message(encoded)
	if err != nil {
		return nil, err
	}
	return msg.Encode()
}

// Message is Run without the final encoding.
func (c *Circuit) Message(encoded []byte) (*authz.ZkMessage, error) {
	bundle, err := witness.DecodeFor(encoded, c.cfg.Variant)
	if err != nil {
		return nil, err
	}

	sp, err := bundle.StateProof()
	if err != nil {
		return nil, err
	}
	if sp.Domain != c.cfg.Domain {
		return nil, errorsmod.Wrapf(errs.ErrDomainMismatch, "state proof is for %q, circuit expects %q", sp.Domain, c.cfg.Domain)
	}

	proof, err := decodeProof(sp.Proof)
	if err != nil {
		return nil, err
	}

	var value *uint256.Int
	switch c.cfg.Variant {
	case witness.NativeBalance:
		value, err = c.nativeBalance(sp, proof)
	case witness.StorageSlot:
		value, err = c.storageBalance(bundle, sp, proof)
	}
	if err != nil {
		return nil, err
	}

	amount, err := authz.Uint128FromUint256(value)
	if err != nil {
		return nil, err
	}
	recipient, err := bundle.Destination()
	if err != nil {
		return nil, err
	}

	return authz.BuildMintMessage(authz.MintParams{
		TokenContract:         c.cfg.TokenContract,
		Registry:              c.cfg.Registry,
		BlockNumber:           c.cfg.BlockNumber,
		AuthorizationContract: c.cfg.AuthorizationContract,
	}, recipient, amount)
}

func decodeProof(body []byte) (*witness.AccountProof, error) {
	var p witness.AccountProof
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "inclusion proof: %v", err)
	}
	if len(p.AccountProof) == 0 {
		return nil, errorsmod.Wrap(errs.ErrDecode, "inclusion proof has no account nodes")
	}
	return &p, nil
}

// nativeBalance proves the account and returns its balance.
func (c *Circuit) nativeBalance(sp *witness.StateProof, p *witness.AccountProof) (*uint256.Int, error) {
	acc, err := mpt.VerifyAccount(sp.Root, p.Address, p.Nodes())
	if err != nil {
		return nil, err
	}
	if acc.Balance.ToBig().Cmp(p.BalanceBig()) != 0 {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "claimed balance %s, proven %s", p.BalanceBig(), acc.Balance)
	}
	return acc.Balance, nil
}

// storageBalance proves the token account, then the holder's entry of its
// balances mapping.
func (c *Circuit) storageBalance(b *witness.Bundle, sp *witness.StateProof, p *witness.AccountProof) (*uint256.Int, error) {
	token, _, err := b.Token()
	if err != nil {
		return nil, err
	}
	if p.Address != token {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "proof is for %s, token is %s", p.Address, token)
	}
	if len(sp.Payload) != common.AddressLength {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "holder payload is %d bytes", len(sp.Payload))
	}
	if len(p.StorageProof) == 0 {
		return nil, errorsmod.Wrap(errs.ErrDecode, "inclusion proof has no storage proof")
	}

	holder := common.BytesToAddress(sp.Payload)
	key := slot.Derive(holder, c.cfg.BalanceSlot)
	sproof := p.StorageProof[0]
	if sproof.KeyHash() != key {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "storage key %s, balance of %s is at %s", sproof.Key, holder, key)
	}

	acc, err := mpt.VerifyAccount(sp.Root, p.Address, p.Nodes())
	if err != nil {
		return nil, err
	}
	if acc.Root != p.StorageHash {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "claimed storage root %s, proven %s", p.StorageHash, acc.Root)
	}
	value, err := mpt.VerifyStorage(acc.Root, key, sproof.Nodes())
	if err != nil {
		return nil, err
	}
	if value.ToBig().Cmp(sproof.ValueBig()) != 0 {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "claimed slot value %s, proven %s", sproof.ValueBig(), value)
	}
	return value, nil
}
