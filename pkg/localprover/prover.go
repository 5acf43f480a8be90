// Package localprover is an in-process proving service. It builds the
// witness bundle, runs the state-proof circuit and proves commitments to the
// resulting message and to the state root it was checked against.
package localprover

import (
	"context"
	"encoding/json"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/yourorg/zkmint/circuits"
	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/prover"
	"github.com/yourorg/zkmint/pkg/stateproof"
	"github.com/yourorg/zkmint/pkg/witness"
)

// DomainMessage is the public input of the domain proof.
type DomainMessage struct {
	Domain string      `json:"domain"`
	Number uint64      `json:"number"`
	Root   common.Hash `json:"root"`
}

func (m *DomainMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeDomainMessage(b []byte) (*DomainMessage, error) {
	var m DomainMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "domain message: %v", err)
	}
	return &m, nil
}

type controller struct {
	builder *witness.Builder
	circuit *stateproof.Circuit
}

// Prover implements the proving service for registered controllers.
type Prover struct {
	keys   *circuits.Keys
	logger zerolog.Logger

	mu          sync.RWMutex
	controllers map[string]controller
}

func New(keys *circuits.Keys, logger zerolog.Logger) *Prover {
	return &Prover{
		keys:        keys,
		logger:      logger.With().Str("component", "localprover").Logger(),
		controllers: make(map[string]controller),
	}
}

// Register deploys a controller under appID. The builder and circuit must
// agree on the witness variant and domain.
func (p *Prover) Register(appID string, b *witness.Builder, c *stateproof.Circuit) error {
	cfg := c.Config()
	if b.Variant != cfg.Variant {
		return errorsmod.Wrapf(errs.ErrConfiguration, "builder variant %s, circuit variant %s", b.Variant, cfg.Variant)
	}
	domain := b.Domain
	if domain == "" {
		domain = witness.DefaultDomain
	}
	if domain != cfg.Domain {
		return errorsmod.Wrapf(errs.ErrDomainMismatch, "builder domain %q, circuit domain %q", domain, cfg.Domain)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controllers[appID] = controller{builder: b, circuit: c}
	return nil
}

// Prove runs the controller registered under appID for req.
func (p *Prover) Prove(ctx context.Context, appID string, req witness.Request) (*prover.Response, error) {
	p.mu.RLock()
	ctrl, ok := p.controllers[appID]
	p.mu.RUnlock()
	if !ok {
		return nil, errorsmod.Wrapf(errs.ErrProvingService, "no controller registered under %q", appID)
	}
	logger := p.logger.With().Str("app_id", appID).Str("eth_addr", req.Holder.Hex()).Logger()

	bundle, root, err := ctrl.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	encoded, err := bundle.Encode()
	if err != nil {
		return nil, err
	}
	message, err := ctrl.circuit.Run(encoded)
	if err != nil {
		return nil, err
	}
	logger.Debug().Uint64("block", root.Number).Str("root", root.Root.Hex()).Msg("circuit accepted witnesses")

	domain, err := (&DomainMessage{Domain: root.Domain, Number: root.Number, Root: root.Root}).Encode()
	if err != nil {
		return nil, err
	}

	programProof, err := p.keys.Prove(message)
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrProvingService, "program proof: %v", err)
	}
	domainProof, err := p.keys.Prove(domain)
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrProvingService, "domain proof: %v", err)
	}
	logger.Info().Int("message_bytes", len(message)).Msg("proved")

	return prover.Encode(&prover.Artifact{
		Program: prover.Decoded{Proof: programProof, Inputs: message},
		Domain:  prover.Decoded{Proof: domainProof, Inputs: domain},
	}), nil
}
