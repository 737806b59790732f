package channeld

import (
	"time"

	"github.com/roasbeef/btcutil"

	"github.com/lightningnetwork/channeld/lnwallet"
	"github.com/lightningnetwork/channeld/lnwire"
)

// sendCommit implements spec §4.3's send_commit: the local side stages
// whatever has accumulated in the update log into a new commitment_signed,
// subject to the guard clauses below. It is invoked both by the commit
// timer firing and, directly, by any handler that just staged a change and
// wants the timer's delay skipped (graceful shutdown, for instance).
func (d *Dispatcher) sendCommit() error {
	c := d.channel

	// Guard 1: nothing to do before the peer has told us the channel is
	// usable.
	if !c.side[Remote].fundingLocked {
		return nil
	}

	// Guard 2: at most one unrevoked commitment may be outstanding. If
	// the peer still owes us a revoke_and_ack for the last one, rearm
	// the timer and wait; sending a second would desynchronize the
	// per-commitment counters. Spec §4.3 step 1 calls for a single log
	// line after 100 consecutive such aborts, not one per abort.
	if !c.quiescent() {
		c.emptyRetries++
		if c.emptyRetries == d.cfg.MaxEmptyCommitRetries {
			log.Warnf("ChannelId(%v): send_commit blocked on an "+
				"unrevoked commitment for %d consecutive "+
				"attempts", c.ChanID, c.emptyRetries)
		}
		c.commitTimer.Arm()
		return nil
	}
	c.emptyRetries = 0

	// Guard 3: never emit an empty commitment_signed — no staged HTLC or
	// fee change, and no shutdown to piggyback.
	if !c.pendingChanges && !(c.sendShutdown && !c.side[Local].shutdownSent) {
		return nil
	}

	// Guard 4: if nothing has been received from the peer within the
	// liveness window, abort and rearm rather than commit into a possibly
	// dead connection; Dispatcher.Run's commit-timer case opportunistically
	// pings the peer in the same situation.
	if d.cfg.LivenessTimeout > 0 && !c.lastRecvFromPeer.IsZero() &&
		time.Since(c.lastRecvFromPeer) > d.cfg.LivenessTimeout {

		c.commitTimer.Arm()
		return nil
	}

	// Guard 5: a funder's pending fee update is staged into the update
	// log before the commitment is assembled, same as any HTLC change.
	// The rate is clamped to approx_max_feerate first: the funder must
	// never propose a rate it could not itself afford on the next
	// commitment, however aggressively the master asked for one.
	if c.Engine.IsInitiator() && c.desiredFeerate != 0 &&
		c.desiredFeerate != c.Engine.CommitFeeRate() {

		feerate := c.desiredFeerate
		if max := c.Engine.ApproxMaxFeerate(); max != 0 && feerate > max {
			feerate = max
		}

		if err := c.Engine.UpdateFee(feerate); err != nil {
			return NewInternalError("staging update_fee: %v", err)
		}
		if err := d.peer.SendMessage(&lnwire.UpdateFee{
			ChanID:   c.ChanID,
			FeePerKw: uint32(feerate),
		}); err != nil {
			return NewInternalError("sending update_fee: %v", err)
		}
	}

	commitSig, htlcSigs, err := c.Engine.SignNextCommitment()
	if err != nil {
		return NewInternalError("signing next commitment: %v", err)
	}

	nextHeight := c.side[Remote].nextIndex

	if err := d.master.SendingCommitSig(&SendingCommitSig{
		CommitHeight: nextHeight,
		CommitSig:    commitSig,
		HTLCSigs:     htlcSigs,
	}); err != nil {
		return NewInternalError("master round trip on sending_commitsig: %v", err)
	}

	wireMsg := &lnwire.CommitSig{
		ChanID:    c.ChanID,
		CommitSig: commitSig,
		HtlcSigs:  htlcSigs,
	}
	if err := d.peer.SendMessage(wireMsg); err != nil {
		return NewInternalError("sending commitment_signed: %v", err)
	}

	if c.sendShutdown && !c.side[Local].shutdownSent {
		if err := d.peer.SendMessage(&lnwire.Shutdown{
			ChanID:  c.ChanID,
			Address: c.shutdownScript,
		}); err != nil {
			return NewInternalError("sending shutdown: %v", err)
		}
		c.side[Local].shutdownSent = true
	}

	c.side[Remote].nextIndex++
	c.lastWasRevoke = false
	c.pendingChanges = false

	return nil
}

// assertCanAffordFeerate implements spec §4.3 step 2: before accepting a
// commitment built at the peer's most recently staged feerate, re-derive
// the fee it pays and confirm the funder's settled balance still clears
// its channel reserve afterward. Grounded on lnwallet's own validateFeeRate
// (the funder-side check UpdateFee already runs), applied here from the
// non-funder's point of view since ReceiveUpdateFee runs no such check.
func assertCanAffordFeerate(c *Channel) error {
	rate := c.lastRemoteFeerate
	if rate == 0 {
		rate = c.Engine.CommitFeeRate()
	}

	remoteBalance, remoteReserve := c.Engine.RemoteBalance()
	fee := btcutil.Amount(c.Engine.CalcFee(uint64(rate)))
	if remoteBalance.ToSatoshis()-fee < remoteReserve {
		return NewProtocolError("funder can't afford feerate %d sat/kw: "+
			"balance=%v reserve=%v fee=%v", rate, remoteBalance,
			remoteReserve, fee)
	}
	return nil
}

// handlePeerCommitSig implements spec §4.3's handle_peer_commit_sig: apply
// the peer's offered commitment as the new local commitment, validate it,
// report it to the master, and revoke the prior one.
func (d *Dispatcher) handlePeerCommitSig(m *lnwire.CommitSig) {
	c := d.channel

	// A non-funder must re-check the funder can still afford the
	// feerate before accepting a new commitment built at that rate;
	// lnwallet's ReceiveUpdateFee (unlike its funder-side UpdateFee)
	// never runs this check on its own, so it has to happen here.
	if !c.Engine.IsInitiator() {
		if err := assertCanAffordFeerate(c); err != nil {
			d.fail(err)
			return
		}
	}

	// A commitment_signed that covers no new changes at all is a BOLT
	// violation; one known peer implementation sends exactly one of
	// these anyway, so the first is tolerated and logged, and only a
	// second empty one at the very next height fails the channel (spec
	// §4.3 step 1, scenario 2).
	newHeight := c.side[Local].nextIndex
	if !c.remoteChanges {
		if c.haveEmptyCommitment && c.lastEmptyCommitment == newHeight-1 {
			d.fail(NewProtocolError("commit_sig with no changes (again!)"))
			return
		}
		log.Warnf("ChannelId(%v): empty commitment_signed at height %d",
			c.ChanID, newHeight)
		c.haveEmptyCommitment = true
		c.lastEmptyCommitment = newHeight
	}

	if err := c.Engine.ReceiveNewCommitment(m.CommitSig, m.HtlcSigs); err != nil {
		d.fail(NewProtocolError("invalid commitment_signed: %v", err))
		return
	}
	c.remoteChanges = false

	gotSig := &GotCommitSig{
		CommitHeight: newHeight,
	}
	for id, bk := range c.htlcs {
		if bk.settlePreimage != nil {
			if gotSig.Fulfilled == nil {
				gotSig.Fulfilled = make(map[uint64][32]byte)
			}
			gotSig.Fulfilled[id] = *bk.settlePreimage
		} else if bk.failReason != nil || bk.malformed {
			if gotSig.Failed == nil {
				gotSig.Failed = make(map[uint64][]byte)
			}
			gotSig.Failed[id] = bk.failReason
		}
	}

	if err := d.master.GotCommitSig(gotSig); err != nil {
		d.fail(NewInternalError("master round trip on got_commitsig: %v", err))
		return
	}

	c.side[Local].nextIndex++

	revoke, err := c.Engine.RevokeCurrentCommitment()
	if err != nil {
		d.fail(NewInternalError("revoking prior commitment: %v", err))
		return
	}
	if err := d.peer.SendMessage(revoke); err != nil {
		d.fail(NewInternalError("sending revoke_and_ack: %v", err))
		return
	}
	c.lastWasRevoke = true

	d.maybeSendAnnouncementSigs()
	c.commitTimer.Arm()
}

// handleRevokeAndAck implements the second half of spec §4.3: the peer's
// revocation of its own prior commitment, accepted in reply to a
// commitment_signed we sent.
func (d *Dispatcher) handleRevokeAndAck(m *lnwire.RevokeAndAck) {
	c := d.channel

	if !c.owesRevocation() {
		d.fail(NewProtocolError("unexpected revoke_and_ack: no commitment outstanding"))
		return
	}

	resolved, err := c.Engine.ReceiveRevocation(m)
	if err != nil {
		d.fail(NewProtocolError("invalid revoke_and_ack: %v", err))
		return
	}

	c.oldRemotePerCommit = c.remotePerCommit
	c.remotePerCommit = m.NextRevocationKey
	c.revocationsReceived++

	if err := d.master.GotRevoke(&GotRevoke{
		RevokedHeight: c.revocationsReceived,
	}); err != nil {
		d.fail(NewInternalError("master round trip on got_revoke: %v", err))
		return
	}

	for _, desc := range resolved {
		d.resolveSettledHTLC(desc)
	}

	c.haveEmptyCommitment = false
	d.maybeSendAnnouncementSigs()
	c.commitTimer.Arm()
}

// resolveSettledHTLC sends the peer the fail/fulfill message for an HTLC
// that has just become irrevocably committed on both sides, and drops its
// bookkeeping entry.
func (d *Dispatcher) resolveSettledHTLC(desc *lnwallet.PaymentDescriptor) {
	c := d.channel
	bk, ok := c.htlcs[desc.HtlcIndex]
	if !ok || (bk.settlePreimage == nil && bk.failReason == nil &&
		bk.failCode == 0 && !bk.malformed) {

		return
	}

	msg := sendFailOrFulfill(c.ChanID, desc.HtlcIndex, bk, d.gossip)
	if err := d.peer.SendMessage(msg); err != nil {
		d.fail(NewInternalError("sending HTLC resolution: %v", err))
		return
	}
	delete(c.htlcs, desc.HtlcIndex)
}
