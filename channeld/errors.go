package channeld

import (
	"fmt"

	"github.com/go-errors/errors"
	"github.com/roasbeef/btcd/btcec"
)

// ErrorKind distinguishes the disposition a dispatcher takes in response to
// a failure encountered while driving a channel.
type ErrorKind int

const (
	// ErrKindProtocolViolation covers a bad message, a bad signature, a
	// mismatched channel id, or a message received out of order. The
	// channel is poisoned: we notify the peer with a wire error and
	// exit. No message is sent to the master for this kind; the master
	// only sees the process exit.
	ErrKindProtocolViolation ErrorKind = iota

	// ErrKindFallenBehind is raised once data-loss-protect proves the
	// remote party holds a more advanced commitment than we do.
	ErrKindFallenBehind

	// ErrKindInternal covers a signer returning an invalid signature,
	// the commitment library reporting an impossible state transition,
	// or an I/O error talking to master or signer. These indicate bugs
	// or a compromised trust boundary and are never retried.
	ErrKindInternal

	// ErrKindTransientHTLC covers a rejected offer_htlc: bad expiry,
	// capacity exceeded, amount below minimum, too many HTLCs in
	// flight. The channel is left untouched; only the requester is
	// told no.
	ErrKindTransientHTLC
)

// ChannelError wraps an error with the disposition the dispatcher should
// take in response to it.
type ChannelError struct {
	Kind ErrorKind
	Err  error
}

func (e *ChannelError) Error() string {
	return e.Err.Error()
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// NewProtocolError builds a ChannelError signalling a protocol violation.
// The stack trace carried by go-errors lets the master log exactly where in
// the dispatcher the violation was detected.
func NewProtocolError(format string, args ...interface{}) *ChannelError {
	return &ChannelError{
		Kind: ErrKindProtocolViolation,
		Err:  errors.Errorf(format, args...),
	}
}

// FallenBehindError is raised when the remote party's reestablish message
// proves, via a validated last_per_commitment_secret, that we've lost state
// relative to them. CommitPoint is the remote's current per-commitment
// point, handed to the master so it can attempt to sweep our balance from
// their broadcast commitment.
type FallenBehindError struct {
	CommitPoint *btcec.PublicKey
}

func (e *FallenBehindError) Error() string {
	return "fallen behind remote commitment chain"
}

// NewInternalError builds a ChannelError signalling an internal invariant
// violation: a bug, or a compromised trust boundary. Never recovered from.
func NewInternalError(format string, args ...interface{}) *ChannelError {
	return &ChannelError{
		Kind: ErrKindInternal,
		Err:  errors.Errorf(format, args...),
	}
}

// HTLCFailError is a transient failure at offer_htlc time: invalid expiry,
// capacity exceeded, amount below minimum, or too many HTLCs in flight. The
// code is reported back to the master verbatim so it can construct the
// correct on-wire failure message toward the offering hop.
type HTLCFailError struct {
	Code   FailReason
	Detail string
}

func (e *HTLCFailError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// FailReason enumerates the concrete reasons an offer_htlc request from the
// master can be rejected before ever touching channel state.
type FailReason int

const (
	FailIncorrectCltvExpiry FailReason = iota
	FailExpiryTooSoon
	FailAmountBelowMinimum
	FailTemporaryChannelFailure
	FailTooManyHTLCs
)

func (r FailReason) String() string {
	switch r {
	case FailIncorrectCltvExpiry:
		return "incorrect_cltv_expiry"
	case FailExpiryTooSoon:
		return "expiry_too_soon"
	case FailAmountBelowMinimum:
		return "amount_below_minimum"
	case FailTemporaryChannelFailure:
		return "temporary_channel_failure"
	case FailTooManyHTLCs:
		return "temporary_channel_failure"
	default:
		return "unknown"
	}
}
