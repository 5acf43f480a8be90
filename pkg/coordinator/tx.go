package coordinator

import (
	"context"
	"errors"
	"time"

	errorsmod "cosmossdk.io/errors"

	"github.com/yourorg/zkmint/pkg/errs"
)

func (c *Coordinator) nextSequence(ctx context.Context) (uint64, error) {
	if c.haveSequence {
		return c.sequence, nil
	}
	seq, err := c.chain.AccountSequence(ctx, c.cfg.Signer)
	if err != nil {
		return 0, errorsmod.Wrapf(errs.ErrChain, "account sequence of %s: %v", c.cfg.Signer, err)
	}
	c.sequence, c.haveSequence = seq, true
	return seq, nil
}

func (c *Coordinator) resetSequence() {
	c.haveSequence = false
}

// submit broadcasts msg to contract. A sequence mismatch refreshes the
// sequence from the chain and resubmits, at most MaxSequenceRetries times.
func (c *Coordinator) submit(ctx context.Context, cy *cycle, contract string, msg []byte) (string, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		seq, err := c.nextSequence(ctx)
		if err != nil {
			return "", err
		}

		hash, err := c.chain.Execute(ctx, ExecuteTx{
			Sender:   c.cfg.Signer,
			Sequence: seq,
			Contract: contract,
			Msg:      msg,
		})
		if err == nil {
			c.sequence = seq + 1
			cy.logger.Debug().Str("contract", contract).Uint64("sequence", seq).Str("tx", hash).Msg("broadcast tx")
			return hash, nil
		}

		var broadcastErr *BroadcastError
		if !errors.As(err, &broadcastErr) {
			if errs.ClassOf(err) != errs.ClassUnknown {
				return "", err
			}
			return "", errorsmod.Wrapf(errs.ErrChain, "broadcast to %s: %v", contract, err)
		}
		if broadcastErr.Code != CodeSequenceMismatch {
			return "", errorsmod.Wrapf(errs.ErrChain, "broadcast to %s: %v", contract, broadcastErr)
		}

		c.resetSequence()
		if attempt >= c.cfg.MaxSequenceRetries {
			return "", errorsmod.Wrapf(errs.ErrSequenceMismatch, "gave up after %d attempts: %v", attempt+1, broadcastErr)
		}
		cy.logger.Warn().Uint64("sequence", seq).Int("attempt", attempt+1).Msg("sequence mismatch, refreshing")
	}
}

// confirm polls the status of hash every PollInterval until it is committed,
// dropped or InclusionTimeout passes.
func (c *Coordinator) confirm(parent context.Context, hash string) (*TxResult, error) {
	ctx, cancel := context.WithTimeout(parent, c.cfg.InclusionTimeout)
	defer cancel()

	timedOut := func() error {
		if err := parent.Err(); err != nil {
			return err
		}
		return errorsmod.Wrapf(errs.ErrInclusionTimeout, "tx %s after %s", hash, c.cfg.InclusionTimeout)
	}

	pollTicker := time.NewTicker(c.cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		res, err := c.chain.TxStatus(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, timedOut()
			}
			return nil, errorsmod.Wrapf(errs.ErrChain, "tx status %s: %v", hash, err)
		}
		if res == nil {
			return nil, errorsmod.Wrapf(errs.ErrChain, "tx status %s: empty result", hash)
		}

		switch res.Status {
		case TxPending:
			select {
			case <-ctx.Done():
				return nil, timedOut()
			case <-pollTicker.C:
				continue
			}
		case TxCommitted:
			if res.Code != 0 {
				return nil, &ExecutionError{TxHash: hash, Code: res.Code, ErrorLog: res.Log}
			}
			return res, nil
		case TxEvicted:
			// later sequences are dropped with it
			c.resetSequence()
			return nil, errorsmod.Wrapf(errs.ErrTxDropped, "tx %s was evicted from the mempool", hash)
		default:
			c.resetSequence()
			return nil, errorsmod.Wrapf(errs.ErrTxDropped, "tx %s not found; it was likely rejected", hash)
		}
	}
}
