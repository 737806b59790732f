package channeld

import (
	"github.com/lightningnetwork/channeld/lnwire"
)

// handleChannelReestablish implements spec §4.4: the two independent
// decision tables that reconcile each side's view of the commitment and
// revocation counters after a reconnect, followed by the data-loss-protect
// check and the retransmission this side owes as a result.
func (d *Dispatcher) handleChannelReestablish(m *lnwire.ChannelReestablish) {
	c := d.channel

	if err := d.checkDataLossProtect(m); err != nil {
		d.fail(err)
		return
	}

	// Revoke-side table: compare what the peer says it still expects a
	// revocation for against our own local commitment counter.
	switch {
	case m.RemoteCommitTailHeight == c.side[Local].nextIndex:
		// In sync: peer has already applied our last revocation.

	case m.RemoteCommitTailHeight == c.side[Local].nextIndex-1:
		// Peer missed our last revoke_and_ack; it will be resent
		// below alongside the commitment retransmission, ordered by
		// lastWasRevoke.

	default:
		d.fail(NewProtocolError(
			"peer's remote_commit_tail_height %d is inconsistent "+
				"with our next_local_commit_height %d",
			m.RemoteCommitTailHeight, c.side[Local].nextIndex))
		return
	}

	// Commit-side table: compare what the peer says it next expects a
	// commitment_signed for against our own remote-chain counter.
	switch {
	case m.NextLocalCommitHeight == c.side[Remote].nextIndex:
		// In sync: nothing outstanding to retransmit.

	case m.NextLocalCommitHeight == c.side[Remote].nextIndex-1:
		// Peer never got (or never acked) our last commitment_signed;
		// it is retransmitted below.

	default:
		d.fail(NewProtocolError(
			"peer's next_local_commit_height %d is inconsistent "+
				"with our next_remote_commit_height %d",
			m.NextLocalCommitHeight, c.side[Remote].nextIndex))
		return
	}

	d.retransmit(m)

	d.reestablished = true
	stashed := d.prematureMsgs
	d.prematureMsgs = nil
	for _, msg := range stashed {
		d.HandlePeerMessage(msg)
	}

	d.resendOutboundResolutions()
	d.maybeSendShutdown()
	c.commitTimer.Arm()
}

// checkDataLossProtect validates the peer's claim about our current
// commitment point against what we last saw, per spec §4.4's data-loss-
// protect check. A mismatch here means the peer is behind us by more than
// the protocol tolerates, and must not be trusted with a fresh commitment.
func (d *Dispatcher) checkDataLossProtect(m *lnwire.ChannelReestablish) error {
	c := d.channel

	if m.LocalUnrevokedCommitPoint == nil {
		// Peer doesn't speak data-loss-protect; nothing to check.
		return nil
	}

	if m.NextLocalCommitHeight < c.side[Remote].nextIndex {
		// The peer is behind us and is telling us its current point;
		// it must match what we recorded for that height.
		if c.remotePerCommit != nil &&
			!m.LocalUnrevokedCommitPoint.IsEqual(c.remotePerCommit) &&
			(c.oldRemotePerCommit == nil || !m.LocalUnrevokedCommitPoint.IsEqual(c.oldRemotePerCommit)) {

			return NewProtocolError("peer's unrevoked commit point doesn't match our records")
		}
		return nil
	}

	// The peer claims a commitment height beyond what we believe we've
	// sent: either it knows a future state we lost (in which case we
	// must fail the channel and let the master attempt the data-loss
	// recovery branch) or it is lying.
	if m.NextLocalCommitHeight > c.side[Remote].nextIndex {
		ok, err := d.signer.CheckFutureSecret(m.NextLocalCommitHeight-2, m.LastRemoteCommitSecret)
		if err != nil {
			return NewInternalError("checking future secret: %v", err)
		}
		if ok {
			return &FallenBehindError{CommitPoint: m.LocalUnrevokedCommitPoint}
		}
		return NewProtocolError("peer claims a future commitment height we cannot verify")
	}

	return nil
}

// retransmit resends whatever this side owes the peer after a reconnect,
// in the order lastWasRevoke dictates: if our last completed transition
// ended by sending revoke_and_ack, any owed commitment_signed is newer and
// goes second; if it ended by sending commitment_signed, the revocation
// (if any) for the commitment *before* that one goes first.
func (d *Dispatcher) retransmit(m *lnwire.ChannelReestablish) {
	c := d.channel

	owesRevoke := m.RemoteCommitTailHeight == c.side[Local].nextIndex-1
	owesCommit := m.NextLocalCommitHeight == c.side[Remote].nextIndex-1

	sendRevoke := func() {
		if !owesRevoke {
			return
		}
		revoke, err := c.Engine.RevokeCurrentCommitment()
		if err != nil {
			d.fail(NewInternalError("rebuilding revoke_and_ack for retransmit: %v", err))
			return
		}
		if err := d.peer.SendMessage(revoke); err != nil {
			d.fail(NewInternalError("retransmitting revoke_and_ack: %v", err))
		}
	}

	sendCommit := func() {
		if !owesCommit {
			return
		}
		commitSig, htlcSigs, err := c.Engine.SignNextCommitment()
		if err != nil {
			d.fail(NewInternalError("rebuilding commitment_signed for retransmit: %v", err))
			return
		}
		if err := d.peer.SendMessage(&lnwire.CommitSig{
			ChanID:    c.ChanID,
			CommitSig: commitSig,
			HtlcSigs:  htlcSigs,
		}); err != nil {
			d.fail(NewInternalError("retransmitting commitment_signed: %v", err))
		}
	}

	if c.lastWasRevoke {
		sendRevoke()
		sendCommit()
	} else {
		sendCommit()
		sendRevoke()
	}
}

// resendOutboundResolutions re-sends the fail/fulfill message for every
// HTLC that has a resolution staged (a preimage, a fail reason or code, or
// the malformed flag). No per-HTLC record of whether the resolution was
// already sent to the peer is kept, so every staged resolution is resent.
func (d *Dispatcher) resendOutboundResolutions() {
	c := d.channel
	for id, bk := range c.htlcs {
		if bk.settlePreimage == nil && bk.failReason == nil &&
			bk.failCode == 0 && !bk.malformed {

			continue
		}
		msg := sendFailOrFulfill(c.ChanID, id, bk, d.gossip)
		if err := d.peer.SendMessage(msg); err != nil {
			d.fail(NewInternalError("resending HTLC resolution after reconnect: %v", err))
			return
		}
	}
}

// maybeSendShutdown re-sends our shutdown message on reconnect if we'd
// already committed to sending one before the disconnect.
func (d *Dispatcher) maybeSendShutdown() {
	c := d.channel
	if !c.sendShutdown || c.side[Local].shutdownSent {
		return
	}
	if err := d.peer.SendMessage(&lnwire.Shutdown{
		ChanID:  c.ChanID,
		Address: c.shutdownScript,
	}); err != nil {
		d.fail(NewInternalError("resending shutdown after reconnect: %v", err))
		return
	}
	c.side[Local].shutdownSent = true
}
