package lnwire

import (
	"io"
)

// OnionPacketSize is the size in bytes of the serialized onion packet
// carried by every UpdateAddHTLC.
const OnionPacketSize = 1366

// UpdateAddHTLC is sent by either side to stage an outgoing HTLC addition
// during the next commitment update. It carries the routing onion that will
// tell the receiving node how to forward the payment, or that it is the
// final destination.
type UpdateAddHTLC struct {
	// ChanID references an active channel which will be used to
	// complete the current pending HTLC.
	ChanID ChannelID

	// ID is the particular HTLC being added to the sender's commitment
	// transaction, and as well the receiver's commitment transaction,
	// this value is chosen by the sender.
	ID uint64

	// Amount is the number of milli-satoshis this HTLC is worth.
	Amount MilliSatoshi

	// PaymentHash is the payment hash to be included in the HTLC this
	// request creates. The pre-image to this HTLC must be revealed by
	// the HTLC final recipient to fully settle the HTLC.
	PaymentHash [32]byte

	// Expiry is the number of blocks after which this HTLC should expire.
	// It is the receiving peer's duty to ensure that the expiry value is
	// sufficient by the time the HTLC reaches the next hop.
	Expiry uint32

	// OnionBlob is the raw serialized mix header used to route an HTLC
	// to its destination in a privacy preserving manner.
	OnionBlob [OnionPacketSize]byte
}

// A compile time check to ensure UpdateAddHTLC implements the lnwire.Message
// interface.
var _ Message = (*UpdateAddHTLC)(nil)

// Decode deserializes a serialized UpdateAddHTLC stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.ChanID,
		&c.ID,
		&c.Amount,
		c.PaymentHash[:],
		&c.Expiry,
		c.OnionBlob[:],
	)
}

// Encode serializes the target UpdateAddHTLC into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.ChanID,
		c.ID,
		c.Amount,
		c.PaymentHash[:],
		c.Expiry,
		c.OnionBlob[:],
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) MsgType() MessageType {
	return MsgUpdateAddHTLC
}

// MaxPayloadLength returns the maximum allowed payload size for an
// UpdateAddHTLC complete message observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *UpdateAddHTLC) MaxPayloadLength(uint32) uint32 {
	// 32 + 8 + 8 + 32 + 4 + 1366
	return 1450
}
