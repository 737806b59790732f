package channeld

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/channeld/lnwire"
)

func newTestChannel(t *testing.T) (*Channel, *fakeEngine) {
	t.Helper()

	engine := newFakeEngine()
	cfg := DefaultConfig()
	chanID := lnwire.ChannelID{0x01}

	c := NewChannel(engine, chanID, testRemoteNodeKey, testLocalNodeKey, true, cfg)
	return c, engine
}

func TestQuiescentInvariant(t *testing.T) {
	c, _ := newTestChannel(t)

	// A freshly-built channel has never exchanged a commitment: next
	// index 1 on both sides, zero revocations received, which is
	// quiescent (1-1=0) and not owesRevocation (1-2 underflows, never
	// equal to 0 for a uint64 other than by wraparound).
	require.True(t, c.quiescent())
	require.False(t, c.owesRevocation())

	c.side[Remote].nextIndex = 2
	require.False(t, c.quiescent())
	require.True(t, c.owesRevocation())

	c.revocationsReceived = 1
	require.True(t, c.quiescent())
	require.False(t, c.owesRevocation())
}

func TestCommitTimerArmOnce(t *testing.T) {
	timer := newCommitTimer(0)

	timer.Arm()
	require.True(t, timer.armed)

	// Arming twice in a row must not reset the already-running timer; it
	// fires exactly once per round.
	timer.Arm()
	require.True(t, timer.armed)

	<-timer.C()
	timer.armed = false

	timer.Disarm()
	require.False(t, timer.armed)
}

func TestCommitTimerDisarmDrainsPendingFire(t *testing.T) {
	timer := newCommitTimer(0)
	timer.Arm()

	// Give the timer a moment to actually fire before disarming, so
	// Disarm exercises the "already ticked" drain branch rather than
	// always winning the Stop race.
	time.Sleep(10 * time.Millisecond)

	timer.Disarm()
	require.False(t, timer.armed)
	require.Len(t, timer.C(), 0)
}

func TestNewChannelFromInitRestoresDurableFields(t *testing.T) {
	engine := newFakeEngine()
	cfg := DefaultConfig()
	chanID := lnwire.ChannelID{0x02}

	preimage := [32]byte{0xaa}
	init := &ChannelInit{
		NodeID:                    testRemoteNodeKey,
		IsFunder:                  true,
		LastWasRevoke:             true,
		AnnounceChannel:           true,
		NextLocalCommitHeight:     5,
		NextRemoteCommitHeight:    7,
		RevocationsReceived:       6,
		LocalFundingLocked:        true,
		RemoteFundingLocked:       true,
		LocalShortChanID:          1234,
		RemoteShortChanID:         1234,
		FeerateMin:                253,
		FeerateMax:                10000,
		PendingFulfilled:          map[uint64][32]byte{7: preimage},
		PendingFailed:             map[uint64][]byte{8: []byte("nope")},
	}

	c := NewChannelFromInit(engine, chanID, testLocalNodeKey, init, cfg)

	require.True(t, c.lastWasRevoke)
	require.True(t, c.announceChannel)
	require.Equal(t, uint64(5), c.side[Local].nextIndex)
	require.Equal(t, uint64(7), c.side[Remote].nextIndex)
	require.Equal(t, uint64(6), c.revocationsReceived)
	require.True(t, c.side[Local].fundingLocked)
	require.True(t, c.side[Remote].fundingLocked)
	require.Equal(t, uint64(1234), c.side[Local].shortChanID.ToUint64())
	require.Equal(t, uint64(1234), c.side[Remote].shortChanID.ToUint64())

	require.Contains(t, c.htlcs, uint64(7))
	require.Equal(t, preimage, *c.htlcs[7].settlePreimage)
	require.Contains(t, c.htlcs, uint64(8))
	require.Equal(t, []byte("nope"), c.htlcs[8].failReason)
}
