package lnwire

import "io"

// UpdateFee is sent by the channel funder to update the fee rate used in
// calculating on-chain fees for the commitment transaction's resolution on
// chain, should it need to be broadcast. Only the funder of the channel is
// permitted to send this message.
type UpdateFee struct {
	// ChanID is the channel that this fee update applies to.
	ChanID ChannelID

	// FeePerKw is the fee-per-kilo-weight for the target commitment
	// transaction, expressed in satoshis.
	FeePerKw uint32
}

// A compile time check to ensure UpdateFee implements the lnwire.Message
// interface.
var _ Message = (*UpdateFee)(nil)

// Decode deserializes a serialized UpdateFee stored in the passed io.Reader
// observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFee) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &c.ChanID, &c.FeePerKw)
}

// Encode serializes the target UpdateFee into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFee) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, c.ChanID, c.FeePerKw)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFee) MsgType() MessageType {
	return MsgUpdateFee
}

// MaxPayloadLength returns the maximum allowed payload size for an UpdateFee
// complete message.
//
// This is part of the lnwire.Message interface.
func (c *UpdateFee) MaxPayloadLength(uint32) uint32 {
	// 32 + 4
	return 36
}
