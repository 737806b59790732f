package lnwire

import "io"

// UpdateFailHTLC is sent by Bob to Alice when he wishes to cancel an
// outstanding HTLC. The reason field is an opaque, onion-encrypted blob
// that only the original sender of the HTLC can decode.
type UpdateFailHTLC struct {
	// ChanID references an active channel which holds the HTLC to be
	// cancelled.
	ChanID ChannelID

	// ID references which HTLC on the remote node's commitment
	// transaction has timed out, or been refused subsequent forwarding.
	ID uint64

	// Reason is an opaque encrypted blob for the HTLC failure allowing
	// the node that initially opened the HTLC to determine why it was
	// cancelled.
	Reason []byte
}

// A compile time check to ensure UpdateFailHTLC implements the
// lnwire.Message interface.
var _ Message = (*UpdateFailHTLC)(nil)

// Decode deserializes a serialized UpdateFailHTLC stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.ChanID,
		&c.ID,
		&c.Reason,
	)
}

// Encode serializes the target UpdateFailHTLC into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.ChanID,
		c.ID,
		c.Reason,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) MsgType() MessageType {
	return MsgUpdateFailHTLC
}

// MaxPayloadLength returns the maximum allowed payload size for an
// UpdateFailHTLC complete message observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFailHTLC) MaxPayloadLength(uint32) uint32 {
	return 65531
}
