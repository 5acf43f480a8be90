// Package witness turns a mint request into the ordered, labelled witness
// bundle the state-proof circuit consumes.
package witness

import (
	"context"
	"encoding/json"
	"fmt"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/slot"
)

const (
	DefaultNetwork = "eth-mainnet"
	DefaultDomain  = "ethereum-electra-alpha"
)

// BlockOracle returns the latest block trusted for a domain.
type BlockOracle interface {
	LatestBlock(ctx context.Context, domain string) (*BlockRoot, error)
}

// ProofProvider answers eth_getProof style requests.
type ProofProvider interface {
	InclusionProof(ctx context.Context, network string, address common.Address, keys []common.Hash, block uint64) (*AccountProof, error)
}

// Builder contains everything needed to build a bundle for one request.
// Nothing is cached: every Build resolves a fresh root and proof.
type Builder struct {
	Oracle   BlockOracle
	Provider ProofProvider

	Network     string
	Domain      string
	Variant     Variant
	BalanceSlot uint64 // mapping slot of the token's balances, StorageSlot only

	Logger zerolog.Logger
}

// ResolveBlockRoot returns the trusted block for domain.
func (b *Builder) ResolveBlockRoot(ctx context.Context, domain string) (*BlockRoot, error) {
	root, err := b.Oracle.LatestBlock(ctx, domain)
	if err != nil {
		if errs.ClassOf(err) != errs.ClassUnknown {
			return nil, err
		}
		return nil, errorsmod.Wrapf(errs.ErrDomainUnavailable, "domain %q: %v", domain, err)
	}
	if root == nil {
		return nil, errorsmod.Wrapf(errs.ErrDomainUnavailable, "domain %q: no valid domain block", domain)
	}
	if root.Domain != "" && root.Domain != domain {
		return nil, errorsmod.Wrapf(errs.ErrDomainMismatch, "oracle answered for %q, asked %q", root.Domain, domain)
	}
	root.Domain = domain
	return root, nil
}

// DeriveStorageKey returns the balance-mapping key of holder.
func (b *Builder) DeriveStorageKey(holder common.Address, slotIndex uint64) common.Hash {
	return slot.Derive(holder, slotIndex)
}

// FetchInclusionProof asks the provider for an account (and storage) proof at
// block. Any failure is reported as errs.ErrProofProvider.
func (b *Builder) FetchInclusionProof(
	ctx context.Context,
	network string,
	address common.Address,
	keys []common.Hash,
	block uint64,
) (*AccountProof, error) {
	proof, err := b.Provider.InclusionProof(ctx, network, address, keys, block)
	if err != nil {
		if errs.ClassOf(err) != errs.ClassUnknown {
			return nil, err
		}
		return nil, errorsmod.Wrapf(errs.ErrProofProvider, "%s %s@%d: %v", network, address, block, err)
	}
	if proof == nil {
		return nil, errorsmod.Wrapf(errs.ErrProofProvider, "%s %s@%d: empty response", network, address, block)
	}
	if len(keys) > 0 && len(proof.StorageProof) < len(keys) {
		return nil, errorsmod.Wrapf(errs.ErrProofProvider, "asked for %d storage proofs, got %d", len(keys), len(proof.StorageProof))
	}
	return proof, nil
}

// Assemble lays out the bundle: state proof, destination, then token for
// storage-slot deployments.
func (b *Builder) Assemble(root *BlockRoot, proof *AccountProof, req Request) (*Bundle, error) {
	if root == nil || proof == nil {
		return nil, errorsmod.Wrap(errs.ErrConfiguration, "assemble needs a block root and a proof")
	}
	if b.Variant == StorageSlot && req.Token == nil {
		return nil, errorsmod.Wrap(errs.ErrConfiguration, "storage variant needs a token address")
	}
	body, err := json.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}

	sp := StateProof{Domain: root.Domain, Root: root.Root, Proof: body}
	if b.Variant == StorageSlot {
		sp.Payload = req.Holder.Bytes()
	}

	bundle := &Bundle{
		Version: SchemaVersion,
		Witnesses: []Witness{
			// witness 0: account state proof
			NewStateProofWitness(sp),
			// witness 1: destination address
			NewDestinationWitness(req.Destination),
		},
	}
	if b.Variant == StorageSlot {
		// witness 2: token contract
		bundle.Witnesses = append(bundle.Witnesses, NewTokenWitness(*req.Token))
	}
	return bundle, bundle.Check(b.Variant)
}

// Build resolves the block, fetches the proof and assembles the bundle.
func (b *Builder) Build(ctx context.Context, req Request) (*Bundle, *BlockRoot, error) {
	if b.Variant.Arity() == 0 {
		return nil, nil, errorsmod.Wrapf(errs.ErrConfiguration, "invalid variant %d", b.Variant)
	}
	if req.Destination == "" {
		return nil, nil, errorsmod.Wrap(errs.ErrConfiguration, "request has no destination")
	}
	if b.Variant == StorageSlot && req.Token == nil {
		return nil, nil, errorsmod.Wrap(errs.ErrConfiguration, "storage variant needs a token address")
	}

	log := b.Logger.With().Str("holder", req.Holder.Hex()).Str("destination", req.Destination).Logger()

	root, err := b.ResolveBlockRoot(ctx, b.domain())
	if err != nil {
		return nil, nil, err
	}
	log.Debug().Uint64("block", root.Number).Str("root", root.Root.Hex()).Msg("resolved block root")

	target, keys := req.Holder, []common.Hash(nil)
	if b.Variant == StorageSlot {
		target = *req.Token
		keys = []common.Hash{b.DeriveStorageKey(req.Holder, b.BalanceSlot)}
	}

	proof, err := b.FetchInclusionProof(ctx, b.network(), target, keys, root.Number)
	if err != nil {
		return nil, nil, err
	}
	log.Debug().
		Int("account_nodes", len(proof.AccountProof)).
		Int("storage_proofs", len(proof.StorageProof)).
		Msg("received inclusion proof")

	bundle, err := b.Assemble(root, proof, req)
	if err != nil {
		return nil, nil, err
	}
	return bundle, root, nil
}

func (b *Builder) network() string {
	if b.Network == "" {
		return DefaultNetwork
	}
	return b.Network
}

func (b *Builder) domain() string {
	if b.Domain == "" {
		return DefaultDomain
	}
	return b.Domain
}
