package channeld

import (
	"time"

	"github.com/lightningnetwork/channeld/lnwallet"
	"github.com/lightningnetwork/channeld/lnwire"
	"github.com/roasbeef/btcd/btcec"
	sphinx "github.com/lightningnetwork/lightning-onion"
)

// Side tags one of the two commitment chains a channel maintains.
type Side int

const (
	// Local is our own commitment chain.
	Local Side = iota

	// Remote is the commitment chain held by our peer.
	Remote
)

func (s Side) String() string {
	if s == Local {
		return "local"
	}
	return "remote"
}

// sideState is the subset of per-channel bookkeeping that is tracked
// independently for each of the two commitment chains.
type sideState struct {
	// fundingLocked is set once this side has confirmed the funding
	// transaction has reached the required depth. Monotone: never
	// reverts to false.
	fundingLocked bool

	// shutdownSent is set once this side has sent or received a
	// shutdown message. Monotone.
	shutdownSent bool

	// haveAnnouncementSigs is set once this side's announcement_
	// signatures are in hand: for Local, once our signer has produced
	// them; for Remote, once the peer's have been received (they are not
	// validated on receipt). Monotone.
	haveAnnouncementSigs bool

	// shortChanID is the locator this side believes identifies the
	// channel on-chain, once known.
	shortChanID lnwire.ShortChannelID

	// nextIndex is the next commitment height this side expects to
	// produce or consume on its own chain.
	nextIndex uint64
}

// commitTimer models the one-shot, arm-once commit_timer described for the
// dispatcher's send_commit gating: once armed it must fire exactly once
// before being rearmed, and a pending fire is drained before rearming so a
// stale tick can never leak into the next round.
type commitTimer struct {
	timer   *time.Timer
	armed   bool
	timeout time.Duration
}

func newCommitTimer(timeout time.Duration) *commitTimer {
	t := time.NewTimer(timeout)
	if !t.Stop() {
		<-t.C
	}
	return &commitTimer{timer: t, timeout: timeout}
}

// Arm schedules the timer to fire once, timeout from now, if it isn't
// already armed. Calling Arm while already armed is a no-op: the timer
// fires at most once per send_commit round.
func (c *commitTimer) Arm() {
	if c.armed {
		return
	}
	c.armed = true
	c.timer.Reset(c.timeout)
}

// Disarm cancels a pending fire, draining the channel if the timer had
// already ticked.
func (c *commitTimer) Disarm() {
	if !c.armed {
		return
	}
	if !c.timer.Stop() {
		select {
		case <-c.timer.C:
		default:
		}
	}
	c.armed = false
}

// C returns the channel to select on. It only yields once Arm has been
// called.
func (c *commitTimer) C() <-chan time.Time {
	return c.timer.C
}

// htlcBookkeeping tracks the master-facing disposition of an HTLC that has
// been added to the remote update log but not yet resolved. It bridges the
// commitment engine's log-index view of the world with the onion-processing
// and master-reply machinery that sits above it.
type htlcBookkeeping struct {
	// circuit holds the processed onion packet for an HTLC that must be
	// forwarded to the next hop once irrevocably committed.
	circuit *sphinx.ProcessedPacket

	// malformed is set when the onion could not be processed: its
	// ephemeral key failed to parse, or decoding failed (a bad HMAC, for
	// instance). The HTLC
	// is still added to bookkeeping (it must still reach resolution on
	// the commitment chain); whyBad records why it can never be settled.
	malformed bool
	whyBad    lnwire.FailCode
	shaOnion  [32]byte

	// settlePreimage, when non-nil, is the preimage the master has
	// supplied to settle this HTLC once it next transitions.
	settlePreimage *[32]byte

	// failReason, when non-nil, is the opaque onion failure blob to
	// relay upstream once this HTLC next transitions, already wrapped by
	// whatever hop is relaying a remote failure. Mutually exclusive with
	// failCode.
	failReason []byte

	// failCode and failShort, when failCode is non-zero, describe a
	// failure this node originated locally rather than one forwarded
	// from upstream: sendFailOrFulfill builds the reason itself via
	// makeFailMsg, embedding a fresh channel_update for the codes that
	// require one.
	failCode  lnwire.FailCode
	failShort lnwire.ShortChannelID
}

// pendingOffer is a locally-originated HTLC sitting in the current batch,
// awaiting the next commitment_signed round-trip before it is considered
// cleared from the dispatcher's point of view.
type pendingOffer struct {
	htlc  *lnwire.UpdateAddHTLC
	index uint64
}

// deferredMsg is a message that arrived while the dispatcher was in a
// bounded re-entrant wait for a reply of a specific type (see
// masterConn.waitFor). It is replayed, in order, once the wait concludes.
type deferredMsg struct {
	msg lnwire.Message
}

// ChannelHandle is the immutable identity of a channel as known to the
// dispatcher: the commitment engine, the peer-visible chan id, and our
// funding multisig public key.
type ChannelHandle struct {
	Channel *lnwallet.LightningChannel
	ChanID  lnwire.ChannelID

	// LocalMultiSigKey is our public key in the funding output's 2-of-2
	// multisig script.
	LocalMultiSigKey *btcec.PublicKey
}
