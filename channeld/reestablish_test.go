package channeld

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/channeld/lnwire"
)

// TestHandleChannelReestablishRetransmitsOwedRevoke exercises scenario 3:
// the peer says it's still waiting on the revoke_and_ack for our last
// commitment, which is resent alongside no new commitment since the
// commit-side table is in sync.
func TestHandleChannelReestablishRetransmitsOwedRevoke(t *testing.T) {
	d, c, _, _, peer := newTestDispatcher(t)
	c.side[Local].nextIndex = 2 // peer's view (1) is one behind ours

	d.handleChannelReestablish(&lnwire.ChannelReestablish{
		ChanID:                 c.ChanID,
		NextLocalCommitHeight:  c.side[Remote].nextIndex,
		RemoteCommitTailHeight: 1,
	})

	require.Nil(t, d.fatal)
	require.True(t, d.reestablished)
	require.Len(t, peer.sent, 1)
	require.IsType(t, &lnwire.RevokeAndAck{}, peer.sent[0])
}

// TestHandleChannelReestablishFailsOnInconsistentCounters exercises the
// default branch of the revoke-side table: a remote_commit_tail_height that
// matches neither "in sync" nor "one behind" is a protocol violation.
func TestHandleChannelReestablishFailsOnInconsistentCounters(t *testing.T) {
	d, c, _, _, _ := newTestDispatcher(t)
	c.side[Local].nextIndex = 5

	d.handleChannelReestablish(&lnwire.ChannelReestablish{
		ChanID:                 c.ChanID,
		NextLocalCommitHeight:  c.side[Remote].nextIndex,
		RemoteCommitTailHeight: 1, // neither 5 nor 4
	})

	require.NotNil(t, d.fatal)
	require.False(t, d.reestablished)
}

// TestCheckDataLossProtectFallenBehind exercises scenario 4: the peer claims
// a commitment height beyond what we believe we've sent, and the signer
// confirms the claimed secret is one we actually produced — proof we've
// lost state relative to the peer.
func TestCheckDataLossProtectFallenBehind(t *testing.T) {
	d, c, _, master, peer := newTestDispatcher(t)
	signer := d.signer.(*fakeSigner)
	signer.futureSecretOk = true

	err := d.checkDataLossProtect(&lnwire.ChannelReestablish{
		NextLocalCommitHeight:     c.side[Remote].nextIndex + 5,
		LocalUnrevokedCommitPoint: testRemoteNodeKey,
		LastRemoteCommitSecret:    [32]byte{0x01},
	})

	require.Error(t, err)
	_, ok := err.(*FallenBehindError)
	require.True(t, ok)

	// The dispatcher-level handler must route this into FailFallenBehind
	// rather than a plain peer_failed.
	d.fail(err)
	require.Equal(t, testRemoteNodeKey, master.fallenBehind)
	require.NotEmpty(t, peer.failedWith)
}

// TestCheckDataLossProtectRejectsUnverifiableFutureClaim exercises the
// "lying peer" branch: a future commitment height claim the signer can't
// confirm is a protocol violation, not a data-loss event.
func TestCheckDataLossProtectRejectsUnverifiableFutureClaim(t *testing.T) {
	d, c, _, _, _ := newTestDispatcher(t)
	signer := d.signer.(*fakeSigner)
	signer.futureSecretOk = false

	err := d.checkDataLossProtect(&lnwire.ChannelReestablish{
		NextLocalCommitHeight:     c.side[Remote].nextIndex + 5,
		LocalUnrevokedCommitPoint: testRemoteNodeKey,
	})

	require.Error(t, err)
	_, ok := err.(*FallenBehindError)
	require.False(t, ok)
}

// TestCheckDataLossProtectSkippedWithoutClaim exercises the case where the
// peer doesn't speak data-loss-protect at all.
func TestCheckDataLossProtectSkippedWithoutClaim(t *testing.T) {
	d, _, _, _, _ := newTestDispatcher(t)

	err := d.checkDataLossProtect(&lnwire.ChannelReestablish{})
	require.NoError(t, err)
}
