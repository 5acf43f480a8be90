// Package coordinator drives one proof through the proving service and the
// destination chain: request, prove, verify on chain, execute.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yourorg/zkmint/pkg/authz"
	"github.com/yourorg/zkmint/pkg/debugstore"
	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/ledger"
	"github.com/yourorg/zkmint/pkg/prover"
)

const (
	DefaultPollInterval       = 3 * time.Second
	DefaultInclusionTimeout   = time.Minute
	DefaultMaxSequenceRetries = 3
)

type Config struct {
	// Label is the authorization label the proof is posted under.
	Label string
	// AppID is the controller id on the proving service.
	AppID string
	// Signer submits every transaction of the cycle.
	Signer string

	Authorizations string
	Processor      string
	CW20           string

	// Request is proven every cycle. An empty Destination mints to Signer.
	Request ProofRequest

	PollInterval     time.Duration
	InclusionTimeout time.Duration
	// MaxSequenceRetries bounds resubmissions after a sequence mismatch.
	// Negative selects the default.
	MaxSequenceRetries int
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Label == "":
		return errorsmod.Wrap(errs.ErrConfiguration, "authorization label not set")
	case cfg.AppID == "":
		return errorsmod.Wrap(errs.ErrConfiguration, "coprocessor app id not set")
	case cfg.Signer == "":
		return errorsmod.Wrap(errs.ErrConfiguration, "signer not set")
	case cfg.Authorizations == "" || cfg.Processor == "" || cfg.CW20 == "":
		return errorsmod.Wrap(errs.ErrConfiguration, "authorizations, processor and cw20 contracts are required")
	case cfg.Request.Holder == (common.Address{}):
		return errorsmod.Wrap(errs.ErrConfiguration, "holder address not set")
	}
	if cfg.Request.Destination == "" {
		cfg.Request.Destination = cfg.Signer
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.InclusionTimeout <= 0 {
		cfg.InclusionTimeout = DefaultInclusionTimeout
	}
	if cfg.MaxSequenceRetries < 0 {
		cfg.MaxSequenceRetries = DefaultMaxSequenceRetries
	}
	return nil
}

// Report describes one cycle.
type Report struct {
	ID       string
	States   []State
	Artifact common.Hash

	AuthTxHash string
	TickTxHash string

	// Expected is the amount the authorization message mints to the
	// destination; Before and After are its CW20 balances around the cycle.
	Expected authz.Uint128
	Before   *authz.Uint128
	After    *authz.Uint128
	Matched  bool

	Duration time.Duration
}

type Option func(*Coordinator)

// WithSignerLock holds lock for the duration of every cycle.
func WithSignerLock(lock SignerLock) Option {
	return func(c *Coordinator) { c.lock = lock }
}

// WithLedger skips artifacts already recorded in l and records every
// artifact that was broadcast.
func WithLedger(l ledger.Ledger) Option {
	return func(c *Coordinator) { c.ledger = l }
}

func WithDebugStore(s debugstore.Store) Option {
	return func(c *Coordinator) { c.debug = s }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithObserver calls fn on every state transition.
func WithObserver(fn func(from, to State)) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// Coordinator runs cycles for a single signer. Cycles never overlap.
type Coordinator struct {
	cfg    Config
	chain  Chain
	prover ProvingService

	lock    SignerLock
	ledger  ledger.Ledger
	debug   debugstore.Store
	metrics *Metrics
	observe func(from, to State)
	logger  zerolog.Logger

	mtx          sync.Mutex
	sequence     uint64
	haveSequence bool
}

func New(cfg Config, chain Chain, svc ProvingService, logger zerolog.Logger, opts ...Option) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:    cfg,
		chain:  chain,
		prover: svc,
		debug:  debugstore.Nop{},
	}
	c.logger = logger.With().Str("component", "coordinator").Str("name", c.Name()).Logger()
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) Name() string {
	return fmt.Sprintf("Valence X-Vault: %s", c.cfg.Label)
}

// cycle carries the per-cycle state.
type cycle struct {
	report *Report
	state  State
	logger zerolog.Logger
}

func (c *Coordinator) enter(cy *cycle, to State) {
	from := cy.state
	cy.state = to
	cy.report.States = append(cy.report.States, to)
	cy.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state transition")
	if c.observe != nil {
		c.observe(from, to)
	}
}

// Cycle runs one full cycle. Failures are returned as *StageError.
func (c *Coordinator) Cycle(ctx context.Context) (*Report, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.resetSequence()

	start := time.Now()
	cy := &cycle{report: &Report{ID: uuid.NewString()}, state: Idle}
	cy.logger = c.logger.With().Str("cycle", cy.report.ID).Logger()
	cy.logger.Info().Msg("starting cycle")

	err := c.run(ctx, cy)
	cy.report.Duration = time.Since(start)

	if err != nil {
		stage := cy.state
		c.enter(cy, Failed)
		class := errs.ClassOf(err)
		cy.logger.Error().Err(err).
			Str("stage", stage.String()).
			Str("class", class.String()).
			Bool("retryable", errs.Retryable(err)).
			Msg("cycle failed")
		c.record("failure", stage, class, cy.report.Duration)
		return cy.report, &StageError{Stage: stage, Err: err}
	}

	c.enter(cy, Idle)
	cy.logger.Info().Dur("took", cy.report.Duration).Msg("cycle done")
	c.record("success", Idle, errs.ClassUnknown, cy.report.Duration)
	return cy.report, nil
}

func (c *Coordinator) record(outcome string, stage State, class errs.Class, took time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.Cycles.WithLabelValues(outcome).Inc()
	if outcome != "success" {
		c.metrics.Failures.WithLabelValues(stage.String(), class.String()).Inc()
	}
	c.metrics.CycleSeconds.Observe(took.Seconds())
}

func (c *Coordinator) run(ctx context.Context, cy *cycle) error {
	if c.lock != nil {
		if err := c.lock.LockContext(ctx); err != nil {
			return errorsmod.Wrapf(errs.ErrSignerLocked, "%s: %v", c.cfg.Signer, err)
		}
		defer func() {
			// the lock expires on its own if this fails
			if _, err := c.lock.UnlockContext(context.WithoutCancel(ctx)); err != nil {
				cy.logger.Warn().Err(err).Msg("releasing signer lock")
			}
		}()
	}

	// RequestingProof
	c.enter(cy, RequestingProof)
	req := c.cfg.Request
	c.store(ctx, cy, "request.json", req)
	cy.logger.Info().
		Str("eth_addr", req.Holder.Hex()).
		Str("neutron_addr", req.Destination).
		Msg("posting proof request")
	res, err := c.prover.Prove(ctx, c.cfg.AppID, req)
	if err != nil {
		if errs.ClassOf(err) == errs.ClassUnknown {
			err = errorsmod.Wrapf(errs.ErrProvingService, "%v", err)
		}
		return err
	}
	c.store(ctx, cy, "response.json", res)

	// AwaitingProofResult
	c.enter(cy, AwaitingProofResult)
	artifact, err := res.Decode()
	if err != nil {
		return err
	}
	cy.report.Artifact = ledger.ArtifactID(artifact.Program.Proof, artifact.Domain.Proof)
	cy.logger.Info().Str("artifact", cy.report.Artifact.Hex()).Msg("received zkp")
	if c.ledger != nil {
		used, err := c.ledger.Consumed(ctx, cy.report.Artifact)
		if err != nil {
			return errorsmod.Wrapf(errs.ErrChain, "artifact ledger: %v", err)
		}
		if used {
			return errorsmod.Wrapf(errs.ErrVerificationRejected, "artifact %s was already submitted", cy.report.Artifact)
		}
	}
	cy.report.Expected = c.expectedMint(cy, artifact)
	cy.report.Before = c.balance(ctx, cy, "pre-proof")

	// SubmittingAuthorization
	c.enter(cy, SubmittingAuthorization)
	msg, err := json.Marshal(authz.AuthorizationExecuteMsg{
		ExecuteZKAuthorization: &authz.ZKAuthorization{
			Label:         c.cfg.Label,
			Message:       artifact.Program.Inputs,
			Proof:         artifact.Program.Proof,
			DomainMessage: artifact.Domain.Inputs,
			DomainProof:   artifact.Domain.Proof,
		},
	})
	if err != nil {
		return err
	}
	hash, err := c.submit(ctx, cy, c.cfg.Authorizations, msg)
	if err != nil {
		return err
	}
	cy.report.AuthTxHash = hash
	if c.ledger != nil {
		if _, err := c.ledger.Consume(ctx, cy.report.Artifact); err != nil {
			cy.logger.Warn().Err(err).Msg("recording artifact")
		}
	}

	// AwaitingInclusion
	c.enter(cy, AwaitingInclusion)
	if _, err := c.confirm(ctx, hash); err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			return errorsmod.Wrapf(errs.ErrVerificationRejected, "%v", execErr)
		}
		return err
	}
	cy.logger.Info().Str("tx", hash).Msg("authorization included")

	// TickingExecutor
	c.enter(cy, TickingExecutor)
	tick, err := json.Marshal(authz.TickMsg())
	if err != nil {
		return err
	}
	hash, err = c.submit(ctx, cy, c.cfg.Processor, tick)
	if err != nil {
		return err
	}
	cy.report.TickTxHash = hash

	// AwaitingTickInclusion
	c.enter(cy, AwaitingTickInclusion)
	if _, err := c.confirm(ctx, hash); err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			return errorsmod.Wrapf(errs.ErrChain, "%v", execErr)
		}
		return err
	}
	cy.logger.Info().Str("tx", hash).Msg("processor ticked")

	// Verifying
	c.enter(cy, Verifying)
	cy.report.After = c.balance(ctx, cy, "post-proof")
	c.verify(cy)
	return nil
}

// store writes to the debug side channel. Failures are only logged.
func (c *Coordinator) store(ctx context.Context, cy *cycle, name string, v any) {
	if err := c.debug.Put(ctx, cy.report.ID+"/"+name, v); err != nil {
		cy.logger.Warn().Err(err).Str("name", name).Msg("debug store")
	}
}

// expectedMint sums the CW20 mints the program inputs authorize to the
// destination.
func (c *Coordinator) expectedMint(cy *cycle, a *prover.Artifact) authz.Uint128 {
	var total authz.Uint128
	msg, err := authz.DecodeZkMessage(a.Program.Inputs)
	if err != nil {
		cy.logger.Warn().Err(err).Msg("program inputs are not an authorization message")
		return total
	}
	mints, err := msg.Mints()
	if err != nil {
		cy.logger.Warn().Err(err).Msg("program inputs carry no mints")
		return total
	}
	for _, m := range mints {
		if m.Contract != c.cfg.CW20 || m.Recipient != c.cfg.Request.Destination {
			continue
		}
		if total, err = total.Add(m.Amount); err != nil {
			cy.logger.Warn().Err(err).Msg("summing expected mints")
			return authz.Uint128{}
		}
	}
	return total
}

func (c *Coordinator) balance(ctx context.Context, cy *cycle, when string) *authz.Uint128 {
	q, err := json.Marshal(authz.Cw20QueryMsg{Balance: &authz.BalanceQuery{Address: c.cfg.Request.Destination}})
	if err != nil {
		return nil
	}
	raw, err := c.chain.QuerySmart(ctx, c.cfg.CW20, q)
	if err != nil {
		cy.logger.Warn().Err(err).Str("when", when).Msg("cw20 balance query")
		return nil
	}
	var res authz.BalanceResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		cy.logger.Warn().Err(err).Str("when", when).Msg("cw20 balance response")
		return nil
	}
	cy.logger.Info().Str("balance", res.Balance.String()).Str("when", when).Msg("cw20 balance")
	return &res.Balance
}

// verify compares the balance change with the expected mint. A mismatch
// is logged, never returned.
func (c *Coordinator) verify(cy *cycle) {
	r := cy.report
	if r.Before == nil || r.After == nil {
		cy.logger.Warn().Msg("cw20 balance unavailable, skipping verification")
		return
	}
	want, err := r.Before.Add(r.Expected)
	if err == nil && want.Cmp(*r.After) == 0 {
		r.Matched = true
		cy.logger.Info().Str("minted", r.Expected.String()).Msg("mint verified")
		return
	}
	cy.logger.Warn().
		Str("before", r.Before.String()).
		Str("after", r.After.String()).
		Str("expected", r.Expected.String()).
		Msg("cw20 balance change does not match the authorized mint")
}
