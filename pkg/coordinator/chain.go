package coordinator

import (
	"context"
	"fmt"

	"github.com/yourorg/zkmint/pkg/prover"
	"github.com/yourorg/zkmint/pkg/witness"
)

// CodeSequenceMismatch is the cosmos-sdk ErrWrongSequence code.
const CodeSequenceMismatch = 32

// ProofRequest is what the proving service is asked to prove.
type ProofRequest = witness.Request

// ProvingService produces proof artifacts for a registered controller.
type ProvingService interface {
	Prove(ctx context.Context, appID string, req ProofRequest) (*prover.Response, error)
}

// ExecuteTx is a signed wasm execute of Msg against Contract.
type ExecuteTx struct {
	Sender   string
	Sequence uint64
	Contract string
	Msg      []byte
}

type TxStatus int

const (
	TxUnknown TxStatus = iota
	TxPending
	TxCommitted
	TxEvicted
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxCommitted:
		return "committed"
	case TxEvicted:
		return "evicted"
	}
	return "unknown"
}

type TxResult struct {
	Status TxStatus
	Height int64
	Code   uint32
	Log    string
}

// Chain is the destination chain as seen by one signer.
type Chain interface {
	AccountSequence(ctx context.Context, address string) (uint64, error)
	// Execute broadcasts tx and returns its hash. Mempool rejections are
	// returned as *BroadcastError.
	Execute(ctx context.Context, tx ExecuteTx) (string, error)
	TxStatus(ctx context.Context, hash string) (*TxResult, error)
	QuerySmart(ctx context.Context, contract string, query []byte) ([]byte, error)
}

// BroadcastError is a transaction refused before entering the mempool.
type BroadcastError struct {
	TxHash string
	Code   uint32
	// ErrorLog is the error output of the app's logger
	ErrorLog string
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast tx error: %s", e.ErrorLog)
}

// ExecutionError is a committed transaction whose execution failed.
type ExecutionError struct {
	TxHash string
	Code   uint32
	// ErrorLog is the error output of the app's logger
	ErrorLog string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tx execution failed with code %d: %s", e.Code, e.ErrorLog)
}

// SignerLock serializes a signer across processes. *redsync.Mutex
// satisfies it.
type SignerLock interface {
	LockContext(ctx context.Context) error
	UnlockContext(ctx context.Context) (bool, error)
}
