package channeld

import (
	"github.com/roasbeef/btcd/btcec"
	"github.com/roasbeef/btcd/wire"

	"github.com/lightningnetwork/channeld/lnwallet"
	"github.com/lightningnetwork/channeld/lnwire"
)

// PeerLink is the transport-layer primitive described in spec §6: framing
// and encryption already done, the core only ever sees decoded messages in
// and fully-formed messages out. The peer process is the lower layer
// reused verbatim; channeld only ever speaks through this interface.
type PeerLink interface {
	// SendMessage writes msg to the remote peer. Outbound writes are
	// serialized by the caller; the link never interleaves two partial
	// messages.
	SendMessage(msg lnwire.Message) error

	// Fail sends a wire-error to the peer carrying reason, then tears
	// down the connection. This is the "peer_failed" primitive of §6;
	// every fatal path in the dispatcher funnels through it exactly
	// once.
	Fail(chanID lnwire.ChannelID, reason string) error
}

// GossipLink models the gossip service collaborator of §6: channel_update
// lookups for failure messages, local channel announcements, and the
// broadcast of the completed channel_announcement. All other gossip
// broadcasts are forwarded bidirectionally unchanged and never reach this
// interface.
type GossipLink interface {
	// GetChannelUpdate fetches the current channel_update for short, so
	// it can be embedded in a failure message that requires one.
	GetChannelUpdate(short lnwire.ShortChannelID) (*lnwire.ChannelUpdate, error)

	// LocalAddChannel tells gossip this channel now exists, so local
	// payments can route across it before it's publicly announced.
	LocalAddChannel(chanPoint wire.OutPoint, short lnwire.ShortChannelID) error

	// LocalChannelUpdate pushes a channel_update (enabled or disabling)
	// for the channel to gossip, without requiring a counter-signature
	// from the peer.
	LocalChannelUpdate(update *lnwire.ChannelUpdate) error

	// AnnounceChannel broadcasts the fully cosigned channel_announcement
	// once both sides' announcement_signatures have been collected.
	AnnounceChannel(ann *lnwire.ChannelAnnouncement) error
}

// MasterLink is the supervising-process collaborator of §6. Every method
// that corresponds to a message the spec says must be "acknowledged by its
// paired reply type before the core continues" blocks until that reply
// arrives; any unrelated master traffic received while blocked is queued on
// the dispatcher's deferred queue and replayed at the top of the next loop
// iteration (spec §5, idiom 1).
type MasterLink interface {
	// Init blocks for the one-time channel_init snapshot the master
	// sends before any other traffic flows.
	Init() (*ChannelInit, error)

	// SendingCommitSig persists a commitment about to go out on the
	// wire. It must return only after the master's paired reply
	// arrives; the wire send happens after, never before.
	SendingCommitSig(msg *SendingCommitSig) error

	// GotCommitSig reports a commitment we just accepted from the peer:
	// its height, settles, and fails. It carries no signatures, and
	// handlePeerCommitSig does not fill NewHTLCs. Blocks for the ack.
	GotCommitSig(msg *GotCommitSig) error

	// GotRevoke reports an accepted revoke_and_ack. Blocks for the ack.
	GotRevoke(msg *GotRevoke) error

	// Notify sends a one-way notification (got_funding_locked, got_
	// announcement, got_shutdown) that needs no reply.
	Notify(msg MasterNotification) error

	// FailFallenBehind is the terminal notification sent when data-
	// loss-protect proves the remote party is ahead of us.
	FailFallenBehind(point *btcec.PublicKey) error

	// ShutdownComplete is the final message to the master; after it's
	// sent the core exits and the peer/gossip/gossip-store descriptors
	// are handed back by the transport layer.
	ShutdownComplete() error

	// Recv reads the next message not already consumed by a blocking
	// call above. Used by the dispatcher's main loop (via
	// masterChannels) for links that don't expose envelopes().
	Recv() (interface{}, error)

	// Reply answers an inbound offer_htlc request; the dispatcher calls
	// it synchronously once handleOfferHTLC has decided.
	Reply(req *OfferHTLC, reply *OfferHTLCReply) error
}

// ChannelInit is the one-time snapshot the master sends before any other
// traffic, sufficient to reconstruct the core's working copy of the
// channel (spec §6). Everything here mirrors a durable field the master
// owns; NewChannelFromInit does nothing but copy it onto a fresh Channel.
type ChannelInit struct {
	Channel     *lnwallet.LightningChannel
	NodeID      *btcec.PublicKey
	IsFunder    bool
	Reconnected bool

	// LastWasRevoke is the persisted retransmission-order fact spec
	// §4.4 requires the master to remember across restarts.
	LastWasRevoke bool

	FeerateMin, FeerateMax uint32

	// AnnounceChannel is the channel-flag "announce" bit (spec §4.5's
	// first gating condition).
	AnnounceChannel bool

	// NextLocalCommitHeight/NextRemoteCommitHeight/RevocationsReceived
	// restore the three counters spec §3 defines the quiescent/owed-
	// revocation invariant over.
	NextLocalCommitHeight  uint64
	NextRemoteCommitHeight uint64
	RevocationsReceived    uint64

	// RemotePerCommitPoint/OldRemotePerCommitPoint/NextLocalPerCommitPoint
	// restore the three per-commit points spec §3 tracks.
	RemotePerCommitPoint    *btcec.PublicKey
	OldRemotePerCommitPoint *btcec.PublicKey
	NextLocalPerCommitPoint *btcec.PublicKey

	LocalFundingLocked, RemoteFundingLocked bool
	LocalShutdownSent, RemoteShutdownSent   bool
	SendShutdown                            bool
	ShutdownScript                          lnwire.PkScript

	// RemoteUpfrontShutdownScript is the scriptpubkey the remote party
	// committed to at open_channel/accept_channel time, if the
	// option_upfront_shutdown_script feature was negotiated. Empty means
	// no upfront commitment was made and any scriptpubkey is acceptable.
	RemoteUpfrontShutdownScript lnwire.PkScript

	LocalShortChanID, RemoteShortChanID uint64
	FundingDepth                        uint32

	LocalHaveAnnouncementSigs, RemoteHaveAnnouncementSigs bool
	LocalAnnouncementNodeSig, RemoteAnnouncementNodeSig   *btcec.Signature
	LocalAnnouncementBitcoinSig, RemoteAnnouncementBitcoinSig *btcec.Signature

	// PendingFulfilled/PendingFailed carry the disposition the master
	// already decided for surviving HTLCs the core has not yet told the
	// peer about (restored into htlcBookkeeping so the next commit or
	// reestablish still resolves them).
	PendingFulfilled map[uint64][32]byte
	PendingFailed    map[uint64][]byte

	// FundingSigned, when non-nil, is a pre-built initial commitment
	// signature the master needs forwarded to the peer before any other
	// traffic — the case where the funding flow completed but the
	// signature was never acked on the wire before a restart. It uses
	// the same wire shape as commitment_signed (no HTLC signatures).
	FundingSigned *lnwire.CommitSig
}

// SendingCommitSig is sent to the master immediately before a
// commitment_signed is emitted on the wire (spec §4.3 step 7).
type SendingCommitSig struct {
	CommitHeight uint64
	CommitSig    *btcec.Signature
	HTLCSigs     []*btcec.Signature
}

// GotCommitSig is sent to the master immediately before a revoke_and_ack is
// emitted in response to the peer's commitment_signed (spec §4.3 step 5).
type GotCommitSig struct {
	CommitHeight uint64
	NewHTLCs     []*lnwire.UpdateAddHTLC
	Fulfilled    map[uint64][32]byte
	Failed       map[uint64][]byte
}

// GotRevoke is sent to the master immediately after incrementing
// revocations_received and before rearming the commit timer (spec §4.2,
// revoke_and_ack); RevokedHeight is the incremented count.
type GotRevoke struct {
	RevokedHeight uint64
}

// MasterNotification is the closed sum type of one-way master
// notifications: got_funding_locked, got_announcement, got_shutdown.
type MasterNotification interface {
	isMasterNotification()
}

type GotFundingLocked struct{}
type GotAnnouncement struct{ Short lnwire.ShortChannelID }
type GotShutdown struct{ Script lnwire.PkScript }

func (GotFundingLocked) isMasterNotification() {}
func (GotAnnouncement) isMasterNotification()  {}
func (GotShutdown) isMasterNotification()      {}

// OfferHTLC is the master's request to add an outbound HTLC.
type OfferHTLC struct {
	Amount      lnwire.MilliSatoshi
	PaymentHash [32]byte
	CltvExpiry  uint32
	OnionBlob   [lnwire.OnionPacketSize]byte
}

// OfferHTLCReply answers an OfferHTLC request: either the allocated HTLC id,
// or a failcode/message pair describing why it was refused (spec §7, error
// kind 4 — transient, channel state untouched).
type OfferHTLCReply struct {
	ID      uint64
	Ok      bool
	Code    lnwire.FailCode
	Message string
}

// FulfillHTLC is the master supplying the preimage to settle an inbound
// HTLC it originated the settlement decision for.
type FulfillHTLC struct {
	ID       uint64
	Preimage [32]byte
}

// FailHTLC is the master supplying the failure for an inbound HTLC this
// core must reject. Exactly one of Reason or Code is set: Reason carries an
// already-wrapped onion failure blob (the failure originated downstream and
// is merely being relayed back through this hop's shared secret); Code
// carries a failure this node must construct itself (spec §4.6's
// "make failmsg"), in which case Short names the channel whose
// channel_update, if any, the constructed failure should embed.
type FailHTLC struct {
	ID     uint64
	Reason []byte

	Code  lnwire.FailCode
	Short lnwire.ShortChannelID
}

// FeerateUpdate carries the allowable feerate band the non-funder enforces
// and the funder's desired feerate to push toward.
type FeerateUpdate struct {
	Min, Max, Desired uint32
}

// RoutingFeeUpdate carries the per-channel routing fee parameters used when
// constructing channel_update messages. The core does not interpret these;
// it only threads them through to gossip.
type RoutingFeeUpdate struct {
	BaseFeeMsat       uint32
	FeeRatePPM        uint32
	TimeLockDelta     uint16
	HTLCMinimumMsat   lnwire.MilliSatoshi
}

// SendShutdown is the master's command to begin cooperative close.
type SendShutdown struct {
	Script lnwire.PkScript
}
