package lnwire

import (
	"io"

	"github.com/roasbeef/btcd/btcec"
)

// ChanUpdateChanFlags is the bitfield carried in the channel_flags field of
// a ChannelUpdate.
type ChanUpdateChanFlags uint8

const (
	// ChanUpdateDirection indicates which node originated the update.
	ChanUpdateDirection ChanUpdateChanFlags = 1 << 0

	// ChanUpdateDisabled is set if the channel is considered disabled;
	// it must not be used for routing.
	ChanUpdateDisabled ChanUpdateChanFlags = 1 << 1
)

// ChannelUpdate is sent whenever a node wishes to broadcast new information
// concerning a channel, such as its routing fees, or its disabled status.
type ChannelUpdate struct {
	// Signature signs the double-sha256 hash of the remaining fields.
	Signature *btcec.Signature

	// ChainHash denotes the target chain that this channel was opened
	// within.
	ChainHash [32]byte

	// ShortChannelID is the unique description of the funding
	// transaction.
	ShortChannelID ShortChannelID

	// Timestamp allows ordering in the case of multiple announcements.
	Timestamp uint32

	// ChannelFlags is a bitfield that describes additional meta-data
	// concerning how the update is to be interpreted.
	ChannelFlags ChanUpdateChanFlags

	// TimeLockDelta is the minimum number of blocks this node requires
	// to be added to the expiry of HTLCs. This is a security parameter
	// determined by the node operator.
	TimeLockDelta uint16

	// HtlcMinimumMsat is the minimum HTLC value which will be accepted
	// over this channel.
	HtlcMinimumMsat MilliSatoshi

	// BaseFee is the base fee that must be used for any payment that is
	// forwarded.
	BaseFee uint32

	// FeeRate is the fee rate that will be charged per milli-satoshi for
	// payments forwarded over this channel.
	FeeRate uint32
}

// A compile time check to ensure ChannelUpdate implements the lnwire.Message
// interface.
var _ Message = (*ChannelUpdate)(nil)

// Decode deserializes a serialized ChannelUpdate stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (a *ChannelUpdate) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&a.Signature,
		a.ChainHash[:],
		&a.ShortChannelID,
		&a.Timestamp,
		&a.ChannelFlags,
		&a.TimeLockDelta,
		&a.HtlcMinimumMsat,
		&a.BaseFee,
		&a.FeeRate,
	)
}

// Encode serializes the target ChannelUpdate into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (a *ChannelUpdate) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		a.Signature,
		a.ChainHash[:],
		a.ShortChannelID,
		a.Timestamp,
		a.ChannelFlags,
		a.TimeLockDelta,
		a.HtlcMinimumMsat,
		a.BaseFee,
		a.FeeRate,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (a *ChannelUpdate) MsgType() MessageType {
	return MsgChannelUpdate
}

// MaxPayloadLength returns the maximum allowed payload size.
//
// This is part of the lnwire.Message interface.
func (a *ChannelUpdate) MaxPayloadLength(uint32) uint32 {
	return 8192
}

// ChannelUpdateAnnouncement is a backwards-compatible alias kept for call
// sites written against an earlier draft of the gossip messages.
type ChannelUpdateAnnouncement = ChannelUpdate
