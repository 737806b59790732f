package channeld

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/channeld/lnwire"
)

// TestHandleUpdateAddHTLCMalformedOnion exercises scenario 6: an onion blob
// whose ephemeral key can't even be parsed is bookkept as malformed rather
// than rejected outright — the HTLC still has to reach resolution on the
// commitment chain, it just can never be settled.
func TestHandleUpdateAddHTLCMalformedOnion(t *testing.T) {
	c, engine := newTestChannel(t)
	signer := newFakeSigner()

	var badOnion [lnwire.OnionPacketSize]byte // all-zero: not a valid pubkey prefix

	msg := &lnwire.UpdateAddHTLC{
		ChanID:      c.ChanID,
		Amount:      50000,
		PaymentHash: [32]byte{0x01},
		OnionBlob:   badOnion,
	}

	err := c.handleUpdateAddHTLC(msg, signer, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), engine.nextHTLCIndex)

	bk, ok := c.htlcs[0]
	require.True(t, ok)
	require.True(t, bk.malformed)
	require.Equal(t, lnwire.CodeInvalidOnionKey, bk.whyBad)
}

// TestHandleOfferHTLCRejectsShortExpiry exercises the transient-failure path
// of spec §7 error kind 4: a bad offer is refused without touching the
// commitment engine at all.
func TestHandleOfferHTLCRejectsShortExpiry(t *testing.T) {
	c, engine := newTestChannel(t)

	reply := c.handleOfferHTLC(&OfferHTLC{
		Amount:     50000,
		CltvExpiry: 1,
	})

	require.False(t, reply.Ok)
	require.Equal(t, lnwire.CodeIncorrectCltvExpiry, reply.Code)
	require.Equal(t, uint64(0), engine.nextHTLCIndex)
	require.False(t, c.pendingChanges)
}

// TestHandleOfferHTLCAcceptsValidOffer exercises the happy path: a valid
// offer stages an HTLC and arms the commit timer.
func TestHandleOfferHTLCAcceptsValidOffer(t *testing.T) {
	c, engine := newTestChannel(t)

	reply := c.handleOfferHTLC(&OfferHTLC{
		Amount:      50000,
		CltvExpiry:  144,
		PaymentHash: [32]byte{0x02},
	})

	require.True(t, reply.Ok)
	require.Equal(t, uint64(0), reply.ID)
	require.Equal(t, uint64(1), engine.nextHTLCIndex)
	require.True(t, c.pendingChanges)
	require.True(t, c.commitTimer.armed)
}

// TestHandleOfferHTLCRejectsTooManyInFlight exercises the capacity guard.
func TestHandleOfferHTLCRejectsTooManyInFlight(t *testing.T) {
	c, _ := newTestChannel(t)
	for i := 0; i < maxAcceptedHTLCs; i++ {
		c.htlcs[uint64(i)] = &htlcBookkeeping{}
	}

	reply := c.handleOfferHTLC(&OfferHTLC{
		Amount:      50000,
		CltvExpiry:  144,
		PaymentHash: [32]byte{0x03},
	})

	require.False(t, reply.Ok)
	require.Equal(t, lnwire.CodeTemporaryChannelFailure, reply.Code)
}

// TestCoerceFailCode exercises the failcode table spec §4.2 defines for
// update_fail_malformed_htlc: the three onion-layer codes pass through with
// the badonion bit, anything else collapses to temporary_channel_failure.
func TestCoerceFailCode(t *testing.T) {
	tests := []struct {
		in   lnwire.FailCode
		want lnwire.FailCode
	}{
		{lnwire.CodeInvalidOnionVersion, lnwire.CodeInvalidOnionVersion | lnwire.BadonionFlag},
		{lnwire.CodeInvalidOnionHmac, lnwire.CodeInvalidOnionHmac | lnwire.BadonionFlag},
		{lnwire.CodeInvalidOnionKey, lnwire.CodeInvalidOnionKey | lnwire.BadonionFlag},
		{lnwire.CodeAmountBelowMinimum, lnwire.CodeTemporaryChannelFailure},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, coerceFailCode(tc.in))
	}
}

// TestSendFailOrFulfillPicksCorrectMessage exercises the four-way switch
// over an HTLC's stored disposition.
func TestSendFailOrFulfillPicksCorrectMessage(t *testing.T) {
	chanID := lnwire.ChannelID{0x01}
	gossip := newFakeGossip()

	preimage := [32]byte{0xaa}
	msg := sendFailOrFulfill(chanID, 1, &htlcBookkeeping{settlePreimage: &preimage}, gossip)
	require.IsType(t, &lnwire.UpdateFufillHTLC{}, msg)

	msg = sendFailOrFulfill(chanID, 2, &htlcBookkeeping{malformed: true, whyBad: lnwire.CodeInvalidOnionKey}, gossip)
	require.IsType(t, &lnwire.UpdateFailMalformedHTLC{}, msg)

	msg = sendFailOrFulfill(chanID, 3, &htlcBookkeeping{failReason: []byte("no")}, gossip)
	require.IsType(t, &lnwire.UpdateFailHTLC{}, msg)

	msg = sendFailOrFulfill(chanID, 4, &htlcBookkeeping{failCode: lnwire.CodeTemporaryChannelFailure}, gossip)
	require.IsType(t, &lnwire.UpdateFailHTLC{}, msg)
	failMsg := msg.(*lnwire.UpdateFailHTLC)
	require.NotEmpty(t, failMsg.Reason)
}
