package channeld

import (
	"crypto/sha256"
	"time"

	"github.com/roasbeef/btcd/btcec"
	"github.com/roasbeef/btcd/wire"
	"github.com/roasbeef/btcutil"

	"github.com/lightningnetwork/channeld/lnwallet"
	"github.com/lightningnetwork/channeld/lnwire"
)

// CommitmentEngine is the narrow slice of lnwallet.LightningChannel the
// dispatcher drives. The spec treats the commitment-transaction builder and
// HTLC bookkeeping library as a primitive reused verbatim (§1); this
// interface is that primitive's boundary, kept narrow so tests can swap in
// a fake without standing up a full channel database.
type CommitmentEngine interface {
	SignNextCommitment() (*btcec.Signature, []*btcec.Signature, error)
	ReceiveNewCommitment(commitSig *btcec.Signature, htlcSigs []*btcec.Signature) error
	RevokeCurrentCommitment() (*lnwire.RevokeAndAck, error)
	ReceiveRevocation(rev *lnwire.RevokeAndAck) ([]*lnwallet.PaymentDescriptor, error)

	AddHTLC(htlc *lnwire.UpdateAddHTLC) (uint64, error)
	ReceiveHTLC(htlc *lnwire.UpdateAddHTLC) (uint64, error)
	SettleHTLC(preimage [32]byte, htlcIndex uint64) error
	ReceiveHTLCSettle(preimage [32]byte, htlcIndex uint64) error
	FailHTLC(htlcIndex uint64, reason []byte) error
	MalformedFailHTLC(htlcIndex uint64, failCode lnwire.FailCode, shaOnionBlob [sha256.Size]byte) error
	ReceiveFailHTLC(htlcIndex uint64, reason []byte) error

	UpdateFee(feePerKw btcutil.Amount) error
	ReceiveUpdateFee(feePerKw btcutil.Amount) error

	NextRevocationKey() (*btcec.PublicKey, error)
	InitNextRevocation(revKey *btcec.PublicKey) error

	ChanSyncMsg() (*lnwire.ChannelReestablish, error)

	ChannelPoint() *wire.OutPoint
	IsInitiator() bool
	CommitFeeRate() btcutil.Amount
	AvailableBalance() lnwire.MilliSatoshi

	// RemoteBalance returns the remote party's present settled balance
	// and its channel reserve, used to independently re-check the
	// funder can still afford a feerate before accepting its commitment
	// (spec §4.3 step 2).
	RemoteBalance() (lnwire.MilliSatoshi, btcutil.Amount)

	// CalcFee returns the commitment fee a given fee-per-kw rate would
	// produce on this channel's commitment transaction.
	CalcFee(feePerKw uint64) uint64

	// ApproxMaxFeerate returns the highest fee-per-kw the funder could
	// apply to the next commitment without dipping below its channel
	// reserve, used to clamp update_fee before it is sent (spec §4.3
	// guard 4).
	ApproxMaxFeerate() btcutil.Amount
}

// Channel is the dispatcher's working copy of the spec's "Channel handle"
// (§3): the commitment engine plus everything tracked per side, per
// commitment point, and per HTLC. All durable fields are owned by the
// master; this struct only ever mirrors them.
type Channel struct {
	Engine CommitmentEngine
	ChanID lnwire.ChannelID
	NodeID *btcec.PublicKey

	// localNodeID is our own node identity key, needed to order the two
	// sides of a channel_announcement's node/bitcoin key pairs.
	localNodeID *btcec.PublicKey

	// side holds the monotone booleans and the next-commitment-height
	// counters independently for Local and Remote.
	side [2]sideState

	// announcementNodeSig and announcementBitcoinSig are valid only once
	// side[i].haveAnnouncementSigs is set.
	announcementNodeSig    [2]*btcec.Signature
	announcementBitcoinSig [2]*btcec.Signature

	// nextLocalPerCommit is the point the remote will use to sign our
	// next commitment.
	nextLocalPerCommit *btcec.PublicKey

	// remotePerCommit and oldRemotePerCommit are the current and
	// previous points we use to validate an incoming revoke_and_ack,
	// per the invariant in spec §3.
	remotePerCommit    *btcec.PublicKey
	oldRemotePerCommit *btcec.PublicKey

	// revocationsReceived is the count of remote revocations accepted.
	// Invariant: revocationsReceived ∈ {nextIndex[Remote]-1, -2}.
	revocationsReceived uint64

	// lastWasRevoke records whether the last state transition we
	// completed ended with us sending revoke_and_ack (true) or
	// commitment_signed (false) — the ordering fact retransmission
	// needs after a reconnect (spec §4.4). Persisted via the master.
	lastWasRevoke bool

	// haveEmptyCommitment and lastEmptyCommitment implement the
	// "tolerate one empty commitment_signed" interop carve-out of
	// spec §4.3.
	haveEmptyCommitment bool
	lastEmptyCommitment uint64

	htlcs map[uint64]*htlcBookkeeping

	// pendingChanges is set whenever a change is staged against the
	// local update log (an offer, settle, fail, or fee update) and
	// cleared once send_commit successfully ships it. It is the
	// dispatcher's own bookkeeping: the commitment engine itself will
	// happily sign an unchanged state, so the "don't send an empty
	// commitment_signed" rule (spec §8) has to live here.
	pendingChanges bool

	// remoteChanges is set whenever an inbound peer message stages
	// something into the log the peer's next commitment_signed will
	// cover (an add, settle, fail, or fee update), and cleared once a
	// commitment_signed from the peer has been processed. It lets
	// handlePeerCommitSig recognize a commitment_signed that covers no
	// new changes at all, per spec §4.3 step 1.
	remoteChanges bool

	isFunder               bool
	feerateMin, feerateMax btcutil.Amount
	desiredFeerate         btcutil.Amount

	// lastRemoteFeerate is the rate carried by the most recent update_fee
	// accepted from the peer, staged but not yet reflected in
	// Engine.CommitFeeRate() until the next commitment is signed. Zero
	// until the first update_fee arrives, in which case the currently
	// committed rate applies.
	lastRemoteFeerate btcutil.Amount

	sendShutdown   bool
	shutdownScript lnwire.PkScript

	// remoteUpfrontShutdownScript is the scriptpubkey the remote party
	// committed to at channel-open time, if any; handleShutdown validates
	// an incoming shutdown's scriptpubkey against it (spec §4.2).
	remoteUpfrontShutdownScript lnwire.PkScript

	announceChannel bool
	fundingDepth    uint32

	commitTimer      *commitTimer
	emptyRetries     int
	lastRecvFromPeer time.Time

	cfg *Config
}

// NewChannel builds the dispatcher's working copy from the master's
// channel_init snapshot.
func NewChannel(engine CommitmentEngine, chanID lnwire.ChannelID, nodeID, localNodeID *btcec.PublicKey,
	isFunder bool, cfg *Config) *Channel {

	c := &Channel{
		Engine:      engine,
		ChanID:      chanID,
		NodeID:      nodeID,
		localNodeID: localNodeID,
		htlcs:       make(map[uint64]*htlcBookkeeping),
		isFunder:    isFunder,
		commitTimer: newCommitTimer(cfg.CommitInterval),
		cfg:         cfg,
	}
	c.side[Local].nextIndex = 1
	c.side[Remote].nextIndex = 1
	c.revocationsReceived = 0

	return c
}

// NewChannelFromInit builds the dispatcher's working copy from the
// master's channel_init snapshot (spec §6), restoring every durable field
// the master sent so a process restart mid-channel-lifetime resumes with
// the same invariants a freshly-opened channel starts with.
func NewChannelFromInit(engine CommitmentEngine, chanID lnwire.ChannelID,
	localNodeID *btcec.PublicKey, init *ChannelInit, cfg *Config) *Channel {

	c := NewChannel(engine, chanID, init.NodeID, localNodeID, init.IsFunder, cfg)

	c.side[Local].fundingLocked = init.LocalFundingLocked
	c.side[Remote].fundingLocked = init.RemoteFundingLocked
	c.side[Local].shutdownSent = init.LocalShutdownSent
	c.side[Remote].shutdownSent = init.RemoteShutdownSent
	c.side[Local].haveAnnouncementSigs = init.LocalHaveAnnouncementSigs
	c.side[Remote].haveAnnouncementSigs = init.RemoteHaveAnnouncementSigs
	if init.LocalShortChanID != 0 {
		c.side[Local].shortChanID = lnwire.NewShortChanIDFromInt(init.LocalShortChanID)
	}
	if init.RemoteShortChanID != 0 {
		c.side[Remote].shortChanID = lnwire.NewShortChanIDFromInt(init.RemoteShortChanID)
	}
	if init.NextLocalCommitHeight != 0 {
		c.side[Local].nextIndex = init.NextLocalCommitHeight
	}
	if init.NextRemoteCommitHeight != 0 {
		c.side[Remote].nextIndex = init.NextRemoteCommitHeight
	}

	c.announcementNodeSig[Local] = init.LocalAnnouncementNodeSig
	c.announcementNodeSig[Remote] = init.RemoteAnnouncementNodeSig
	c.announcementBitcoinSig[Local] = init.LocalAnnouncementBitcoinSig
	c.announcementBitcoinSig[Remote] = init.RemoteAnnouncementBitcoinSig

	c.remotePerCommit = init.RemotePerCommitPoint
	c.oldRemotePerCommit = init.OldRemotePerCommitPoint
	c.nextLocalPerCommit = init.NextLocalPerCommitPoint

	c.revocationsReceived = init.RevocationsReceived
	c.lastWasRevoke = init.LastWasRevoke

	c.announceChannel = init.AnnounceChannel
	c.feerateMin = btcutil.Amount(init.FeerateMin)
	c.feerateMax = btcutil.Amount(init.FeerateMax)
	c.fundingDepth = init.FundingDepth
	c.sendShutdown = init.SendShutdown
	c.shutdownScript = init.ShutdownScript
	c.remoteUpfrontShutdownScript = init.RemoteUpfrontShutdownScript

	for id, preimage := range init.PendingFulfilled {
		preimage := preimage
		c.htlcs[id] = &htlcBookkeeping{settlePreimage: &preimage}
	}
	for id, reason := range init.PendingFailed {
		if _, ok := c.htlcs[id]; ok {
			continue
		}
		c.htlcs[id] = &htlcBookkeeping{failReason: reason}
	}

	return c
}

// sideState is declared in types.go; see that file for its fields.

// quiescent reports whether every revocation owed to us has been received:
// revocationsReceived == nextIndex[Remote]-1 (spec §3).
func (c *Channel) quiescent() bool {
	return c.revocationsReceived == c.side[Remote].nextIndex-1
}

// owesRevocation reports the other leg of the invariant: the peer has sent
// a commitment we haven't yet revoked in reply to.
func (c *Channel) owesRevocation() bool {
	return c.revocationsReceived == c.side[Remote].nextIndex-2
}
