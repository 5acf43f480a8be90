package localnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/yourorg/zkmint/pkg/authz"
	"github.com/yourorg/zkmint/pkg/ledger"
	"github.com/yourorg/zkmint/pkg/localprover"
)

// ProofVerifier checks a proof against its public input bytes.
type ProofVerifier interface {
	Verify(inputs, proof []byte) error
}

// ZKAuthorization is a proof-gated authorization.
type ZKAuthorization struct {
	// Registry, when non-zero, must match the message's registry.
	Registry uint64
	// Domains lists the accepted domain tags. Empty accepts any.
	Domains []string
}

var (
	errUnknownLabel  = errors.New("authorization not found")
	errProofConsumed = errors.New("proof already consumed")
)

// Authorization verifies proof-gated messages and enqueues them in the
// processor. Every accepted artifact is consumed in Ledger, so it runs
// at most once.
type Authorization struct {
	Processor string
	Verifier  ProofVerifier
	Ledger    ledger.Ledger

	authorizations map[string]ZKAuthorization
	lastBlock      map[string]uint64
	nextID         uint64
}

func NewAuthorization(processor string, v ProofVerifier, l ledger.Ledger) *Authorization {
	return &Authorization{
		Processor:      processor,
		Verifier:       v,
		Ledger:         l,
		authorizations: make(map[string]ZKAuthorization),
		lastBlock:      make(map[string]uint64),
	}
}

func (a *Authorization) Add(label string, z ZKAuthorization) {
	a.authorizations[label] = z
}

// processorMsg extends the permissionless processor messages with the
// authorization module's entrypoint.
type processorMsg struct {
	authz.ProcessorExecuteMsg
	AuthorizationModuleAction *authz.AuthorizationMsg `json:"authorization_module_action,omitempty"`
}

func (a *Authorization) Execute(env *Env, sender string, raw []byte) error {
	var msg authz.AuthorizationExecuteMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse authorization msg: %w", err)
	}
	zk := msg.ExecuteZKAuthorization
	if zk == nil {
		return errors.New("unsupported authorization msg")
	}

	auth, ok := a.authorizations[zk.Label]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownLabel, zk.Label)
	}
	if err := a.Verifier.Verify(zk.Message, zk.Proof); err != nil {
		return fmt.Errorf("program proof verification failed: %w", err)
	}
	if err := a.Verifier.Verify(zk.DomainMessage, zk.DomainProof); err != nil {
		return fmt.Errorf("domain proof verification failed: %w", err)
	}

	dm, err := localprover.DecodeDomainMessage(zk.DomainMessage)
	if err != nil {
		return err
	}
	if len(auth.Domains) > 0 && !slices.Contains(auth.Domains, dm.Domain) {
		return fmt.Errorf("domain %q is not accepted by %s", dm.Domain, zk.Label)
	}

	zm, err := authz.DecodeZkMessage(zk.Message)
	if err != nil {
		return err
	}
	if zm.Registry != authz.Unconstrained && zm.Registry != auth.Registry {
		return fmt.Errorf("registry %d does not match %d", zm.Registry, auth.Registry)
	}
	if zm.AuthorizationContract != nil && *zm.AuthorizationContract != env.Self {
		return fmt.Errorf("message is bound to authorization contract %s", *zm.AuthorizationContract)
	}
	if zm.BlockNumber != authz.Unconstrained {
		if zm.BlockNumber <= a.lastBlock[zk.Label] {
			return fmt.Errorf("block %d is not newer than the last executed block %d", zm.BlockNumber, a.lastBlock[zk.Label])
		}
		a.lastBlock[zk.Label] = zm.BlockNumber
	}

	enqueue := *zm.Message.EnqueueMsgs
	enqueue.ID = a.nextID
	a.nextID++
	call, err := json.Marshal(processorMsg{AuthorizationModuleAction: &authz.AuthorizationMsg{EnqueueMsgs: &enqueue}})
	if err != nil {
		return err
	}
	if err := env.Call(a.Processor, call); err != nil {
		return err
	}

	fresh, err := a.Ledger.Consume(context.Background(), ledger.ArtifactID(zk.Proof, zk.DomainProof))
	if err != nil {
		return err
	}
	if !fresh {
		return errProofConsumed
	}
	return nil
}

func (a *Authorization) Query([]byte) ([]byte, error) {
	return nil, errors.New("unsupported query")
}

func (a *Authorization) snapshot() func() {
	last, next := maps.Clone(a.lastBlock), a.nextID
	return func() { a.lastBlock, a.nextID = last, next }
}

// Execution is the outcome of one dequeued message.
type Execution struct {
	ID    uint64
	Error string
}

// Processor queues messages from its authorization contract and runs one
// per tick, high priority first.
type Processor struct {
	Authorization string

	queues  map[authz.Priority][]authz.EnqueueMsgs
	history []Execution
}

func NewProcessor(authorization string) *Processor {
	return &Processor{Authorization: authorization, queues: make(map[authz.Priority][]authz.EnqueueMsgs)}
}

func (p *Processor) Execute(env *Env, sender string, raw []byte) error {
	var msg processorMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse processor msg: %w", err)
	}
	switch {
	case msg.AuthorizationModuleAction != nil && msg.AuthorizationModuleAction.EnqueueMsgs != nil:
		if sender != p.Authorization {
			return fmt.Errorf("unauthorized: %s is not the authorization contract", sender)
		}
		enq := *msg.AuthorizationModuleAction.EnqueueMsgs
		if enq.Subroutine.Atomic == nil {
			return errors.New("only atomic subroutines are supported")
		}
		if len(enq.Subroutine.Atomic.Functions) != len(enq.Msgs) {
			return fmt.Errorf("%d functions for %d messages", len(enq.Subroutine.Atomic.Functions), len(enq.Msgs))
		}
		p.queues[enq.Priority] = append(p.queues[enq.Priority], enq)
		return nil
	case msg.PermissionlessAction != nil && msg.PermissionlessAction.Tick != nil:
		p.tick(env)
		return nil
	}
	return errors.New("unsupported processor msg")
}

func (p *Processor) next() (authz.EnqueueMsgs, bool) {
	for _, prio := range []authz.Priority{authz.PriorityHigh, authz.PriorityMedium} {
		if q := p.queues[prio]; len(q) > 0 {
			p.queues[prio] = q[1:]
			return q[0], true
		}
	}
	return authz.EnqueueMsgs{}, false
}

// tick runs the next message. Failures are recorded, the tick itself
// always succeeds.
func (p *Processor) tick(env *Env) {
	enq, ok := p.next()
	if !ok {
		return
	}
	exec := Execution{ID: enq.ID}
	if exp := enq.ExpirationTime; exp != nil && exp.AtHeight != nil && uint64(env.Height) > *exp.AtHeight {
		exec.Error = "expired"
		p.history = append(p.history, exec)
		return
	}

	err := env.Atomic(func() error {
		for i, fn := range enq.Subroutine.Atomic.Functions {
			if !fn.Domain.IsMain() {
				return fmt.Errorf("function %d targets external domain %q", i, fn.Domain.External)
			}
			pm := enq.Msgs[i].CosmwasmExecuteMsg
			if pm == nil {
				return fmt.Errorf("function %d has no cosmwasm message", i)
			}
			if err := env.Call(fn.ContractAddress.Addr, pm.Msg); err != nil {
				return fmt.Errorf("function %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		exec.Error = err.Error()
	}
	p.history = append(p.history, exec)
}

// Queued returns the number of messages waiting at priority.
func (p *Processor) Queued(priority authz.Priority) int {
	return len(p.queues[priority])
}

// History returns the executed messages, oldest first.
func (p *Processor) History() []Execution {
	return slices.Clone(p.history)
}

func (p *Processor) Query([]byte) ([]byte, error) {
	return nil, errors.New("unsupported query")
}

func (p *Processor) snapshot() func() {
	queues := make(map[authz.Priority][]authz.EnqueueMsgs, len(p.queues))
	for k, q := range p.queues {
		queues[k] = slices.Clone(q)
	}
	history := slices.Clone(p.history)
	return func() { p.queues, p.history = queues, history }
}

// CW20 is a mintable token.
type CW20 struct {
	Minter string

	balances map[string]authz.Uint128
}

func NewCW20(minter string) *CW20 {
	return &CW20{Minter: minter, balances: make(map[string]authz.Uint128)}
}

func (t *CW20) Execute(_ *Env, sender string, raw []byte) error {
	var msg authz.Cw20ExecuteMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse cw20 msg: %w", err)
	}
	if msg.Mint == nil {
		return errors.New("unsupported cw20 msg")
	}
	if sender != t.Minter {
		return errors.New("unauthorized")
	}
	if msg.Mint.Amount.IsZero() {
		return errors.New("invalid zero amount")
	}
	next, err := t.balances[msg.Mint.Recipient].Add(msg.Mint.Amount)
	if err != nil {
		return err
	}
	t.balances[msg.Mint.Recipient] = next
	return nil
}

func (t *CW20) Query(raw []byte) ([]byte, error) {
	var q authz.Cw20QueryMsg
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("parse cw20 query: %w", err)
	}
	if q.Balance == nil {
		return nil, errors.New("unsupported cw20 query")
	}
	return json.Marshal(authz.BalanceResponse{Balance: t.balances[q.Balance.Address]})
}

func (t *CW20) snapshot() func() {
	balances := maps.Clone(t.balances)
	return func() { t.balances = balances }
}

// ArtifactConsumed reports whether the authorization contract has already
// accepted the artifact.
func (a *Authorization) ArtifactConsumed(ctx context.Context, programProof, domainProof []byte) (bool, error) {
	return a.Ledger.Consumed(ctx, ledger.ArtifactID(programProof, domainProof))
}
