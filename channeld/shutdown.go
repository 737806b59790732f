package channeld

import (
	"bytes"
	"time"

	"github.com/roasbeef/btcd/txscript"

	"github.com/lightningnetwork/channeld/lnwire"
)

// handleShutdown implements spec §4.7: receiving a shutdown message
// disables new channel_update traffic and, once we've answered in kind,
// leaves the channel draining its remaining HTLCs before Dispatcher.Run's
// shutdownComplete check lets the process exit.
func (d *Dispatcher) handleShutdown(m *lnwire.Shutdown) {
	c := d.channel

	if c.side[Remote].shutdownSent {
		// Idempotent: a retransmitted shutdown after a reconnect is
		// not a protocol violation.
		return
	}

	if err := validateShutdownScript(c, m.Address); err != nil {
		d.fail(err)
		return
	}

	c.side[Remote].shutdownSent = true
	d.disableChannelUpdate()

	if err := d.master.Notify(GotShutdown{Script: m.Address}); err != nil {
		d.fail(NewInternalError("master I/O error on got_shutdown: %v", err))
		return
	}

	if !c.side[Local].shutdownSent {
		c.sendShutdown = true
		c.commitTimer.Arm()
		if err := d.sendCommit(); err != nil {
			d.fail(err)
			return
		}
	}
}

// validateShutdownScript implements the BOLT #2 upfront-shutdown check
// channeld.c's handle_peer_shutdown runs before anything else: the
// scriptpubkey must parse as a recognized pay-to script, and if the remote
// party committed to one at open time, it must match exactly.
func validateShutdownScript(c *Channel, scriptPubKey lnwire.PkScript) error {
	if txscript.GetScriptClass(scriptPubKey) == txscript.NonStandardTy {
		return NewProtocolError("shutdown scriptpubkey %x is non-standard",
			[]byte(scriptPubKey))
	}

	if len(c.remoteUpfrontShutdownScript) > 0 &&
		!bytes.Equal(scriptPubKey, c.remoteUpfrontShutdownScript) {

		return NewProtocolError("shutdown scriptpubkey %x doesn't match "+
			"upfront-negotiated %x", []byte(scriptPubKey),
			[]byte(c.remoteUpfrontShutdownScript))
	}

	return nil
}

// disableChannelUpdate implements spec §4.7/§4.2: a channel entering
// shutdown stops advertising itself as usable. It fetches the last
// channel_update we published, flips the disabled bit, and pushes it back
// to gossipd for re-signing and rebroadcast. Grounded on channeld.c's
// send_channel_update(peer, ROUTING_FLAGS_DISABLED), called on both sending
// and receiving shutdown. Best-effort: a private or not-yet-announced
// channel has nothing to disable, and a gossip I/O error here shouldn't
// abort the shutdown itself.
func (d *Dispatcher) disableChannelUpdate() {
	c := d.channel
	if !c.announceChannel || c.side[Local].shortChanID.ToUint64() == 0 {
		return
	}

	update, err := d.gossip.GetChannelUpdate(c.side[Local].shortChanID)
	if err != nil {
		log.Warnf("ChannelId(%v): couldn't fetch channel_update to "+
			"disable: %v", c.ChanID, err)
		return
	}

	update.ChannelFlags |= lnwire.ChanUpdateDisabled
	update.Timestamp = uint32(time.Now().Unix())

	if err := d.gossip.LocalChannelUpdate(update); err != nil {
		log.Warnf("ChannelId(%v): couldn't push disabling channel_update: %v",
			c.ChanID, err)
	}
}
