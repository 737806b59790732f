package lnwire

import "io"

// UpdateFailMalformedHTLC is sent by Bob to Alice when he is unable to even
// parse the onion blob sufficiently to wrap a proper failure reason for it
// (e.g. the onion HMAC didn't check out). It carries the sha256 of the raw
// onion blob so the originating node can still build a correctly-signed
// error out of it.
type UpdateFailMalformedHTLC struct {
	// ChanID references an active channel which holds the HTLC to be
	// cancelled.
	ChanID ChannelID

	// ID references which HTLC on the remote node's commitment
	// transaction has timed out, or been refused subsequent forwarding.
	ID uint64

	// ShaOnionBlob is the sha256 sum of the onion blob that could not be
	// parsed.
	ShaOnionBlob [32]byte

	// FailureCode the exact reason the onion blob could not be parsed.
	// The BADONION bit is always set on this value.
	FailureCode FailCode
}

// A compile time check to ensure UpdateFailMalformedHTLC implements the
// lnwire.Message interface.
var _ Message = (*UpdateFailMalformedHTLC)(nil)

// Decode deserializes a serialized UpdateFailMalformedHTLC stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.ChanID,
		&c.ID,
		c.ShaOnionBlob[:],
		&c.FailureCode,
	)
}

// Encode serializes the target UpdateFailMalformedHTLC into the passed
// io.Writer observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.ChanID,
		c.ID,
		c.ShaOnionBlob[:],
		c.FailureCode,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) MsgType() MessageType {
	return MsgUpdateFailMalformedHTLC
}

// MaxPayloadLength returns the maximum allowed payload size for an
// UpdateFailMalformedHTLC complete message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailMalformedHTLC) MaxPayloadLength(uint32) uint32 {
	// 32 + 8 + 32 + 2
	return 74
}
