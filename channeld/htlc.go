package channeld

import (
	"bytes"
	"crypto/sha256"

	"github.com/roasbeef/btcd/btcec"

	sphinx "github.com/lightningnetwork/lightning-onion"

	"github.com/lightningnetwork/channeld/lnwire"
)

// OnionRouter decodes a single hop of a routing onion. It is the
// "onion-processing primitive" of spec §4.2, reused verbatim from the
// lightning-onion library; channeld only adds the ECDH round trip to the
// signer that the library itself doesn't make, since the signer — not this
// process — holds the node's private key.
type OnionRouter interface {
	Decode(onion [lnwire.OnionPacketSize]byte, paymentHash [32]byte,
		sharedSecret [32]byte) (*sphinx.ProcessedPacket, error)
}

// sphinxRouter adapts a *sphinx.Router to OnionRouter.
type sphinxRouter struct {
	router *sphinx.Router
}

// NewOnionRouter wraps router as an OnionRouter.
func NewOnionRouter(router *sphinx.Router) OnionRouter {
	return &sphinxRouter{router: router}
}

func (s *sphinxRouter) Decode(onion [lnwire.OnionPacketSize]byte, paymentHash [32]byte,
	_ [32]byte) (*sphinx.ProcessedPacket, error) {

	pkt := &sphinx.OnionPacket{}
	if err := pkt.Decode(bytes.NewReader(onion[:])); err != nil {
		return nil, err
	}
	return s.router.ProcessOnionPacket(pkt, paymentHash[:])
}

// handleUpdateAddHTLC implements spec §4.2's update_add_htlc case: the HTLC
// is added to the commitment bookkeeping immediately, then onion decryption
// is attempted right away. Any failure discovered here (bad HMAC, no route
// onward) is stashed on the HTLC and reported only once the HTLC is
// irrevocably committed — reporting it now would leak information about
// in-flight HTLCs to an observer racing the commitment.
func (c *Channel) handleUpdateAddHTLC(msg *lnwire.UpdateAddHTLC, signer SignerClient,
	onion OnionRouter) error {

	index, err := c.Engine.ReceiveHTLC(msg)
	if err != nil {
		return NewProtocolError("rejecting update_add_htlc: %v", err)
	}

	bk := &htlcBookkeeping{}
	c.htlcs[index] = bk

	ephemeral, err := ephemeralKeyFromOnion(msg.OnionBlob)
	if err != nil {
		bk.malformed = true
		bk.whyBad = lnwire.CodeInvalidOnionKey
		bk.shaOnion = sha256.Sum256(msg.OnionBlob[:])
		return nil
	}

	secret, err := signer.ECDH(ephemeral)
	if err != nil {
		return NewInternalError("signer ECDH failed: %v", err)
	}

	processed, err := onion.Decode(msg.OnionBlob, msg.PaymentHash, secret)
	if err != nil {
		bk.malformed = true
		bk.whyBad = lnwire.CodeInvalidOnionHmac
		bk.shaOnion = sha256.Sum256(msg.OnionBlob[:])
		return nil
	}

	bk.circuit = processed
	return nil
}

// ephemeralKeyFromOnion pulls the per-hop ephemeral key out of a serialized
// onion packet so the signer can be asked for the ECDH shared secret before
// the packet is handed to the onion-processing primitive. The onion
// packet's version byte and 33-byte key occupy its first 34 bytes.
func ephemeralKeyFromOnion(onion [lnwire.OnionPacketSize]byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(onion[1:34], btcec.S256())
}

// handleOfferHTLC answers the master's offer_htlc request (spec §6, §7
// error kind 4): transient validation only, channel state untouched on
// rejection.
func (c *Channel) handleOfferHTLC(req *OfferHTLC) *OfferHTLCReply {
	if req.CltvExpiry < minFinalCltvExpiry {
		return &OfferHTLCReply{
			Ok: false, Code: lnwire.CodeIncorrectCltvExpiry,
			Message: "cltv expiry too small",
		}
	}
	if req.Amount < minHTLCMsat {
		return &OfferHTLCReply{
			Ok: false, Code: lnwire.CodeAmountBelowMinimum,
			Message: "amount below channel minimum",
		}
	}
	if len(c.htlcs) >= maxAcceptedHTLCs {
		return &OfferHTLCReply{
			Ok: false, Code: lnwire.CodeTemporaryChannelFailure,
			Message: "too many HTLCs in flight",
		}
	}

	htlc := &lnwire.UpdateAddHTLC{
		ChanID:      c.ChanID,
		Amount:      req.Amount,
		PaymentHash: req.PaymentHash,
		Expiry:      req.CltvExpiry,
		OnionBlob:   req.OnionBlob,
	}

	id, err := c.Engine.AddHTLC(htlc)
	if err != nil {
		return &OfferHTLCReply{
			Ok: false, Code: lnwire.CodeTemporaryChannelFailure,
			Message: err.Error(),
		}
	}

	c.pendingChanges = true
	c.commitTimer.Arm()

	return &OfferHTLCReply{Ok: true, ID: id}
}

const (
	minFinalCltvExpiry = 9
	minHTLCMsat         = lnwire.MilliSatoshi(1000)
	maxAcceptedHTLCs    = 483
)

// makeFailMsg builds the on-wire failure payload for an irrevocably
// committed HTLC that must be failed, fetching a fresh channel_update from
// gossip for the codes that require one embedded (spec §4.6). A known
// interop wart: some gossip implementations prefix the returned update with
// its own two-byte message-type tag, which is stripped here since the
// failure payload encodes the update as a raw, type-less blob.
func makeFailMsg(code lnwire.FailCode, short lnwire.ShortChannelID, gossip GossipLink) ([]byte, error) {
	switch code {
	case lnwire.CodeTemporaryChannelFailure, lnwire.CodeAmountBelowMinimum,
		lnwire.CodeFeeInsufficient, lnwire.CodeIncorrectCltvExpiry,
		lnwire.CodeExpiryTooSoon:

		update, err := gossip.GetChannelUpdate(short)
		if err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := update.Encode(&buf, 0); err != nil {
			return nil, err
		}
		raw := buf.Bytes()
		if len(raw) >= 2 {
			raw = raw[2:]
		}

		payload := make([]byte, 2)
		payload[0] = byte(code >> 8)
		payload[1] = byte(code)
		return append(payload, raw...), nil

	default:
		payload := make([]byte, 2)
		payload[0] = byte(code >> 8)
		payload[1] = byte(code)
		return payload, nil
	}
}

// sendFailOrFulfill picks the correct removal message for an HTLC that has
// reached resolution, per spec §4.6: malformed when the onion never parsed
// (no shared secret to wrap a reason in), fulfill when a preimage is staged,
// and otherwise fail — either forwarding an already-wrapped reason verbatim,
// or, when the master staged a local failCode instead (spec §4.6's "make
// failmsg"), building the reason here via makeFailMsg. Which branch applies
// is fully determined by the HTLC's stored fields. Grounded on channeld.c's
// send_fail_or_fulfill.
func sendFailOrFulfill(chanID lnwire.ChannelID, id uint64, bk *htlcBookkeeping,
	gossip GossipLink) lnwire.Message {

	switch {
	case bk.settlePreimage != nil:
		return &lnwire.UpdateFufillHTLC{
			ChanID:          chanID,
			ID:              id,
			PaymentPreimage: *bk.settlePreimage,
		}
	case bk.malformed:
		return &lnwire.UpdateFailMalformedHTLC{
			ChanID:       chanID,
			ID:           id,
			ShaOnionBlob: bk.shaOnion,
			FailureCode:  bk.whyBad | lnwire.BadonionFlag,
		}
	case bk.failCode != 0:
		reason, err := makeFailMsg(bk.failCode, bk.failShort, gossip)
		if err != nil {
			// The embedded channel_update couldn't be fetched; fall
			// back to a bare failcode rather than blocking the
			// HTLC's resolution on a gossip round trip.
			reason = []byte{byte(bk.failCode >> 8), byte(bk.failCode)}
		}
		return &lnwire.UpdateFailHTLC{
			ChanID: chanID,
			ID:     id,
			Reason: reason,
		}
	default:
		return &lnwire.UpdateFailHTLC{
			ChanID: chanID,
			ID:     id,
			Reason: bk.failReason,
		}
	}
}

// coerceFailCode maps an unrecognized failure code received from the
// peer into temporary_channel_failure, per spec §4.2's
// update_fail_malformed_htlc handling.
func coerceFailCode(code lnwire.FailCode) lnwire.FailCode {
	switch code {
	case lnwire.CodeInvalidOnionVersion, lnwire.CodeInvalidOnionHmac,
		lnwire.CodeInvalidOnionKey:
		return code | lnwire.BadonionFlag
	default:
		return lnwire.CodeTemporaryChannelFailure
	}
}
