package domain

import (
	"errors"
	"fmt"
)

// Request-path error taxonomy. Callers distinguish retryable (RPCError,
// ErrUnavailable) from terminal (ErrNotFound, ErrConflict, ErrInvalidState)
// classes with errors.Is / errors.As.
var (
	// ErrNotFound: the referenced reward/airdrop/asset does not exist for
	// the given key.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the reward is not in PENDING state.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyClaimed is a conflict: the reward has been claimed on-chain.
	ErrAlreadyClaimed = fmt.Errorf("%w: reward already claimed", ErrConflict)

	// ErrInvalidState: the owning airdrop is inactive or outside its
	// validity window.
	ErrInvalidState = errors.New("invalid airdrop state")

	// ErrUnavailable: chain communication failed after bounded retries.
	ErrUnavailable = errors.New("chain unavailable")

	// ErrSigning: the signing key is unavailable or misconfigured. An
	// operational fault, not a user error.
	ErrSigning = errors.New("signing failed")
)

// RPCError wraps a transient chain-communication failure.
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// Is makes RPCError match ErrUnavailable so API callers map it to a
// retryable status without inspecting the concrete type.
func (e *RPCError) Is(target error) bool { return target == ErrUnavailable }
