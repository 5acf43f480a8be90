// Package errs holds the pipeline's error taxonomy. Every error a stage can
// return wraps exactly one of the registered errors below, and every
// registered error belongs to exactly one Class.
package errs

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// Codespace is the errorsmod codespace all pipeline errors are registered under.
const Codespace = "zkmint"

var (
	ErrConfiguration  = errorsmod.Register(Codespace, 2, "configuration error")
	ErrWitnessArity   = errorsmod.Register(Codespace, 3, "unexpected witness count")
	ErrDomainMismatch = errorsmod.Register(Codespace, 4, "domain mismatch")

	ErrDomainUnavailable = errorsmod.Register(Codespace, 10, "no trusted block for domain")
	ErrProofProvider     = errorsmod.Register(Codespace, 11, "inclusion proof provider failure")
	ErrProvingService    = errorsmod.Register(Codespace, 12, "proving service failure")
	ErrInclusionTimeout  = errorsmod.Register(Codespace, 13, "timed out waiting for inclusion")
	ErrTxDropped         = errorsmod.Register(Codespace, 14, "transaction dropped")
	ErrSequenceMismatch  = errorsmod.Register(Codespace, 15, "account sequence mismatch")
	ErrChain             = errorsmod.Register(Codespace, 16, "chain client failure")
	ErrSignerLocked      = errorsmod.Register(Codespace, 17, "signer is held by another coordinator")

	ErrDecode = errorsmod.Register(Codespace, 20, "malformed input")

	ErrOverflow = errorsmod.Register(Codespace, 30, "amount exceeds 128 bits")

	ErrVerificationRejected = errorsmod.Register(Codespace, 40, "authorization rejected")
)

// Class is the coarse failure category used to decide what happens to a
// cycle and to the artifact it carried.
type Class int

const (
	ClassUnknown Class = iota
	ClassConfiguration
	ClassTransientIO
	ClassDecode
	ClassOverflow
	ClassVerificationRejected
)

func (c Class) String() string {
	switch c {
	case ClassConfiguration:
		return "configuration"
	case ClassTransientIO:
		return "transient_io"
	case ClassDecode:
		return "decode"
	case ClassOverflow:
		return "overflow"
	case ClassVerificationRejected:
		return "verification_rejected"
	default:
		return "unknown"
	}
}

var classes = []struct {
	class Class
	errs  []error
}{
	{ClassConfiguration, []error{ErrConfiguration, ErrWitnessArity, ErrDomainMismatch}},
	{ClassTransientIO, []error{
		ErrDomainUnavailable, ErrProofProvider, ErrProvingService,
		ErrInclusionTimeout, ErrTxDropped, ErrSequenceMismatch, ErrChain, ErrSignerLocked,
	}},
	{ClassDecode, []error{ErrDecode}},
	{ClassOverflow, []error{ErrOverflow}},
	{ClassVerificationRejected, []error{ErrVerificationRejected}},
}

// ClassOf returns the taxonomy class of err. Errors that wrap none of the
// registered errors are ClassUnknown.
func ClassOf(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	for _, c := range classes {
		if errorsmod.IsOf(err, c.errs...) {
			return c.class
		}
	}
	return ClassUnknown
}

// Retryable reports whether the failure may be retried by running a fresh
// cycle. Nothing is ever retried inside a cycle.
func Retryable(err error) bool {
	return ClassOf(err) == ClassTransientIO
}

// Terminal reports whether the artifact that caused err must be discarded.
func Terminal(err error) bool {
	switch ClassOf(err) {
	case ClassDecode, ClassOverflow, ClassVerificationRejected:
		return true
	}
	return false
}

// Is is errors.Is, re-exported so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }
