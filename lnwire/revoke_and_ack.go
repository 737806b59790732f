package lnwire

import (
	"io"

	"github.com/roasbeef/btcd/btcec"
)

// RevokeAndAck is sent by either side once they receive a CommitSig message
// and validate the revised commitment state. Sending this message revokes
// the prior commitment transaction as well as replacing it with the
// newly built commitment, and supplies the per-commitment point that will
// be used for the next commitment transaction.
type RevokeAndAck struct {
	// ChanID uniquely identifies the channel to which this RevokeAndAck
	// belongs.
	ChanID ChannelID

	// Revocation is the pre-image to the revocation hash of the *prior*
	// commitment transaction.
	Revocation [32]byte

	// NextRevocationKey is the next commitment point to be used for the
	// sender's commitment transaction.
	NextRevocationKey *btcec.PublicKey
}

// A compile time check to ensure RevokeAndAck implements the lnwire.Message
// interface.
var _ Message = (*RevokeAndAck)(nil)

// Decode deserializes a serialized RevokeAndAck stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (r *RevokeAndAck) Decode(reader io.Reader, pver uint32) error {
	return readElements(reader,
		&r.ChanID,
		r.Revocation[:],
		&r.NextRevocationKey,
	)
}

// Encode serializes the target RevokeAndAck into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (r *RevokeAndAck) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		r.ChanID,
		r.Revocation[:],
		r.NextRevocationKey,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (r *RevokeAndAck) MsgType() MessageType {
	return MsgRevokeAndAck
}

// MaxPayloadLength returns the maximum allowed payload size for a
// RevokeAndAck complete message observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (r *RevokeAndAck) MaxPayloadLength(uint32) uint32 {
	// 32 + 32 + 33
	return 97
}
