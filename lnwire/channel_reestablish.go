package lnwire

import (
	"io"

	"github.com/roasbeef/btcd/btcec"
)

// ChannelReestablish is sent by both peers of a channel upon reconnection
// before any other channel messages are sent. It allows both sides to
// determine if they're in sync, or if one side needs to retransmit
// messages they believe were lost by the other party.
//
// LastRemoteCommitSecret and LocalUnrevokedCommitPoint are the
// data-loss-protect fields: older implementations may not set them, in which
// case LocalUnrevokedCommitPoint will be nil.
type ChannelReestablish struct {
	// ChanID is the ChannelID of the channel this message refers to.
	ChanID ChannelID

	// NextLocalCommitHeight is the commitment height the sender next
	// expects to receive a commitment_signed for.
	NextLocalCommitHeight uint64

	// RemoteCommitTailHeight is the commitment height the sender next
	// expects to receive a revoke_and_ack for.
	RemoteCommitTailHeight uint64

	// LastRemoteCommitSecret is the last commitment secret that the
	// sender received from its channel peer.
	LastRemoteCommitSecret [32]byte

	// LocalUnrevokedCommitPoint is the sender's current, un-revoked
	// commitment point. It is nil if the sender does not support the
	// data-loss-protect option.
	LocalUnrevokedCommitPoint *btcec.PublicKey
}

// A compile time check to ensure ChannelReestablish implements the
// lnwire.Message interface.
var _ Message = (*ChannelReestablish)(nil)

// Decode deserializes a serialized ChannelReestablish stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (a *ChannelReestablish) Decode(r io.Reader, pver uint32) error {
	err := readElements(r,
		&a.ChanID,
		&a.NextLocalCommitHeight,
		&a.RemoteCommitTailHeight,
	)
	if err != nil {
		return err
	}

	if err := readElement(r, a.LastRemoteCommitSecret[:]); err != nil {
		// The data-loss-protect fields are optional; an older peer
		// may simply close the connection here instead of sending
		// them. We treat a short read as "fields absent".
		return nil
	}

	if err := readElement(r, &a.LocalUnrevokedCommitPoint); err != nil {
		return nil
	}

	return nil
}

// Encode serializes the target ChannelReestablish into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (a *ChannelReestablish) Encode(w io.Writer, pver uint32) error {
	err := writeElements(w,
		a.ChanID,
		a.NextLocalCommitHeight,
		a.RemoteCommitTailHeight,
	)
	if err != nil {
		return err
	}

	if a.LocalUnrevokedCommitPoint == nil {
		return nil
	}

	return writeElements(w,
		a.LastRemoteCommitSecret[:],
		a.LocalUnrevokedCommitPoint,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (a *ChannelReestablish) MsgType() MessageType {
	return MsgChannelReestablish
}

// MaxPayloadLength returns the maximum allowed payload size for a
// ChannelReestablish complete message.
//
// This is part of the lnwire.Message interface.
func (a *ChannelReestablish) MaxPayloadLength(uint32) uint32 {
	// 32 + 8 + 8 + 32 + 33
	return 113
}
