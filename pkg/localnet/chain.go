// Package localnet is an in-process stand-in for the destination chain:
// accounts with sequences, one block per transaction, and the
// authorization, processor and CW20 contracts the mint pipeline talks to.
package localnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/yourorg/zkmint/pkg/coordinator"
)

// CodeExecuteFailed is the wasm module code of a failed contract call.
const CodeExecuteFailed = 5

// Contract is a contract instance on the chain.
type Contract interface {
	Execute(env *Env, sender string, msg []byte) error
	Query(msg []byte) ([]byte, error)
}

// snapshotter is implemented by contracts with state that must be rolled
// back when the transaction fails.
type snapshotter interface {
	snapshot() (restore func())
}

// Env is what an executing contract sees of the chain.
type Env struct {
	chain  *Chain
	Height int64
	Self   string
}

// Call executes msg on contract with the calling contract as sender.
func (e *Env) Call(contract string, msg []byte) error {
	return e.chain.dispatch(e.Height, e.Self, contract, msg)
}

// Atomic runs fn and rolls every contract back if it fails.
func (e *Env) Atomic(fn func() error) error {
	restore := e.chain.snapshot()
	if err := fn(); err != nil {
		restore()
		return err
	}
	return nil
}

type txRecord struct {
	result coordinator.TxResult
	polls  int
}

// Chain implements coordinator.Chain.
type Chain struct {
	// InclusionPolls is the number of TxStatus calls that report a new
	// transaction as pending.
	InclusionPolls int

	logger zerolog.Logger

	mu        sync.Mutex
	height    int64
	sequences map[string]uint64
	contracts map[string]Contract
	txs       map[string]*txRecord
}

func New(logger zerolog.Logger) *Chain {
	return &Chain{
		logger:    logger.With().Str("component", "localnet").Logger(),
		sequences: make(map[string]uint64),
		contracts: make(map[string]Contract),
		txs:       make(map[string]*txRecord),
	}
}

// Deploy instantiates c at addr.
func (c *Chain) Deploy(addr string, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[addr] = contract
}

func (c *Chain) Height() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *Chain) AccountSequence(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequences[address], nil
}

func txHash(tx coordinator.ExecuteTx) string {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], tx.Sequence)
	h := crypto.Keccak256Hash([]byte(tx.Sender), seq[:], []byte(tx.Contract), tx.Msg)
	return strings.ToUpper(h.Hex()[2:])
}

// Execute checks the sequence and runs tx in a block of its own. Contract
// failures are committed with CodeExecuteFailed and roll back all state.
func (c *Chain) Execute(ctx context.Context, tx coordinator.ExecuteTx) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := txHash(tx)
	if want := c.sequences[tx.Sender]; tx.Sequence != want {
		return "", &coordinator.BroadcastError{
			TxHash: hash,
			Code:   coordinator.CodeSequenceMismatch,
			ErrorLog: fmt.Sprintf("account sequence mismatch, expected %d, got %d: incorrect account sequence",
				want, tx.Sequence),
		}
	}
	if _, ok := c.contracts[tx.Contract]; !ok {
		return "", &coordinator.BroadcastError{TxHash: hash, Code: 1, ErrorLog: fmt.Sprintf("contract %s not found", tx.Contract)}
	}
	c.sequences[tx.Sender]++
	c.height++

	rec := &txRecord{result: coordinator.TxResult{Status: coordinator.TxCommitted, Height: c.height}}
	restore := c.snapshot()
	if err := c.dispatch(c.height, tx.Sender, tx.Contract, tx.Msg); err != nil {
		restore()
		rec.result.Code = CodeExecuteFailed
		rec.result.Log = err.Error()
		c.logger.Debug().Err(err).Str("tx", hash).Str("contract", tx.Contract).Msg("execution failed")
	}
	c.txs[hash] = rec
	return hash, nil
}

// Evict drops a transaction from the chain's view, as if the mempool had
// discarded it.
func (c *Chain) Evict(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.txs[hash]; ok {
		rec.result = coordinator.TxResult{Status: coordinator.TxEvicted}
	}
}

func (c *Chain) TxStatus(_ context.Context, hash string) (*coordinator.TxResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.txs[hash]
	if !ok {
		return &coordinator.TxResult{Status: coordinator.TxUnknown}, nil
	}
	if rec.result.Status == coordinator.TxCommitted && rec.polls < c.InclusionPolls {
		rec.polls++
		return &coordinator.TxResult{Status: coordinator.TxPending}, nil
	}
	res := rec.result
	return &res, nil
}

func (c *Chain) QuerySmart(_ context.Context, contract string, query []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target, ok := c.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("contract %s not found", contract)
	}
	return target.Query(query)
}

// dispatch runs with c.mu held.
func (c *Chain) dispatch(height int64, sender, contract string, msg []byte) error {
	target, ok := c.contracts[contract]
	if !ok {
		return fmt.Errorf("contract %s not found", contract)
	}
	return target.Execute(&Env{chain: c, Height: height, Self: contract}, sender, msg)
}

func (c *Chain) snapshot() func() {
	var restores []func()
	for _, contract := range c.contracts {
		if s, ok := contract.(snapshotter); ok {
			restores = append(restores, s.snapshot())
		}
	}
	return func() {
		for _, r := range restores {
			r()
		}
	}
}
