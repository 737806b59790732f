package channeld

import (
	"bytes"
	"crypto/sha256"

	"github.com/roasbeef/btcd/btcec"

	"github.com/lightningnetwork/channeld/lnwire"
)

const announcementDepth = 6

// handleAnnounceSignatures implements one leg of spec §4.5: the peer's half
// of the announcement_signatures exchange. It is stashed until our own half
// is ready (computed by maybeSendAnnouncementSigs), at which point the two
// are combined into a channel_announcement.
func (d *Dispatcher) handleAnnounceSignatures(m *lnwire.AnnounceSignatures) {
	c := d.channel

	if !c.announceChannel {
		d.fail(NewProtocolError("received announcement_signatures on a private channel"))
		return
	}
	if m.ShortChannelID.ToUint64() != c.side[Local].shortChanID.ToUint64() &&
		c.side[Local].shortChanID.ToUint64() != 0 {

		d.fail(NewProtocolError("announcement_signatures short_channel_id mismatch"))
		return
	}

	c.side[Remote].shortChanID = m.ShortChannelID
	c.announcementNodeSig[Remote] = m.NodeSignature
	c.announcementBitcoinSig[Remote] = m.BitcoinSignature
	c.side[Remote].haveAnnouncementSigs = true

	d.maybeSendAnnouncementSigs()
	d.maybeBroadcastAnnouncement()
}

// maybeSendAnnouncementSigs implements the gating of spec §4.5: both sides
// must have exchanged funding_locked, we must not have sent (or be about to
// send) shutdown, the channel must be public, and the funding transaction must have reached
// the required confirmation depth.
func (d *Dispatcher) maybeSendAnnouncementSigs() {
	c := d.channel

	if !c.announceChannel {
		return
	}
	if c.side[Local].shutdownSent || c.sendShutdown {
		return
	}
	if !c.side[Local].fundingLocked || !c.side[Remote].fundingLocked {
		return
	}
	if c.fundingDepth < announcementDepth {
		return
	}
	if c.side[Local].haveAnnouncementSigs {
		return
	}

	digest := announcementDigest(c)

	nodeSig, bitcoinSig, err := d.signer.AnnouncementSigs(digest)
	if err != nil {
		d.fail(NewInternalError("signer rejected announcement digest: %v", err))
		return
	}

	c.announcementNodeSig[Local] = nodeSig
	c.announcementBitcoinSig[Local] = bitcoinSig
	c.side[Local].haveAnnouncementSigs = true

	if err := d.gossip.LocalAddChannel(*c.Engine.ChannelPoint(), c.side[Local].shortChanID); err != nil {
		d.fail(NewInternalError("local_add_channel: %v", err))
		return
	}

	if err := d.peer.SendMessage(&lnwire.AnnounceSignatures{
		ChannelID:        c.ChanID,
		ShortChannelID:   c.side[Local].shortChanID,
		NodeSignature:    nodeSig,
		BitcoinSignature: bitcoinSig,
	}); err != nil {
		d.fail(NewInternalError("sending announcement_signatures: %v", err))
		return
	}

	d.maybeBroadcastAnnouncement()
}

// maybeBroadcastAnnouncement assembles and broadcasts the completed
// channel_announcement once both halves of the signature pair are in hand,
// and notifies the master that the channel is now public.
func (d *Dispatcher) maybeBroadcastAnnouncement() {
	c := d.channel

	if !c.side[Local].haveAnnouncementSigs || !c.side[Remote].haveAnnouncementSigs {
		return
	}
	if c.side[Local].shortChanID.ToUint64() != c.side[Remote].shortChanID.ToUint64() {
		d.fail(NewProtocolError(
			"short_channel_id mismatch between local (%v) and remote (%v) announcement sigs",
			c.side[Local].shortChanID, c.side[Remote].shortChanID))
		return
	}

	ann := buildChannelAnnouncement(c)
	if err := d.gossip.AnnounceChannel(ann); err != nil {
		d.fail(NewInternalError("broadcasting channel_announcement: %v", err))
		return
	}

	if err := d.master.Notify(GotAnnouncement{Short: c.side[Local].shortChanID}); err != nil {
		d.fail(NewInternalError("master I/O error on got_announcement: %v", err))
		return
	}
}

// announcementDigest computes the double-sha256 hash signed over by both
// parties' node and bitcoin keys: the remote node's compressed public key
// followed by the 8-byte big-endian short_channel_id. Neither funding key
// nor the serialized channel_announcement is part of the hashed bytes.
func announcementDigest(c *Channel) [32]byte {
	var buf bytes.Buffer
	buf.Write(c.NodeID.SerializeCompressed())
	var short [8]byte
	id := c.side[Local].shortChanID.ToUint64()
	for i := 0; i < 8; i++ {
		short[7-i] = byte(id >> (8 * uint(i)))
	}
	buf.Write(short[:])

	first := sha256.Sum256(buf.Bytes())
	second := sha256.Sum256(first[:])
	return second
}

// buildChannelAnnouncement assembles the two-sided proof once both
// signature halves are present. Node/bitcoin key ordering follows the
// lexicographic convention the gossip network expects; which side is
// "first" depends on which node ID sorts lower.
func buildChannelAnnouncement(c *Channel) *lnwire.ChannelAnnouncement {
	localFirst := isLexicographicallyFirst(c.selfNodeKey(), c.NodeID)

	ann := &lnwire.ChannelAnnouncement{
		ShortChannelID: c.side[Local].shortChanID,
	}

	if localFirst {
		ann.NodeID1, ann.NodeID2 = c.selfNodeKey(), c.NodeID
		ann.NodeSig1, ann.NodeSig2 = c.announcementNodeSig[Local], c.announcementNodeSig[Remote]
		ann.BitcoinSig1, ann.BitcoinSig2 = c.announcementBitcoinSig[Local], c.announcementBitcoinSig[Remote]
	} else {
		ann.NodeID1, ann.NodeID2 = c.NodeID, c.selfNodeKey()
		ann.NodeSig1, ann.NodeSig2 = c.announcementNodeSig[Remote], c.announcementNodeSig[Local]
		ann.BitcoinSig1, ann.BitcoinSig2 = c.announcementBitcoinSig[Remote], c.announcementBitcoinSig[Local]
	}

	return ann
}

func isLexicographicallyFirst(a, b *btcec.PublicKey) bool {
	return bytes.Compare(a.SerializeCompressed(), b.SerializeCompressed()) < 0
}

// selfNodeKey reports our own node identity public key, as stored on
// Channel at construction time.
func (c *Channel) selfNodeKey() *btcec.PublicKey {
	return c.localNodeID
}
