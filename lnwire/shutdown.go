package lnwire

import "io"

// Shutdown is sent by either side to initiate a cooperative close of the
// channel. It carries the scriptPubKey the sender wants the final closing
// transaction to pay them out to; this must match any upfront-shutdown
// script negotiated at channel open.
type Shutdown struct {
	// ChanID is the channel that the sender wishes to close.
	ChanID ChannelID

	// Address is the script to which the channel funds should be paid
	// when cooperatively closing the channel.
	Address PkScript
}

// NewShutdown creates a new Shutdown message.
func NewShutdown(cid ChannelID, addr PkScript) *Shutdown {
	return &Shutdown{
		ChanID:  cid,
		Address: addr,
	}
}

// A compile time check to ensure Shutdown implements the lnwire.Message
// interface.
var _ Message = (*Shutdown)(nil)

// Decode deserializes a serialized Shutdown message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (s *Shutdown) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &s.ChanID, &s.Address)
}

// Encode serializes the target Shutdown into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (s *Shutdown) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, s.ChanID, s.Address)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (s *Shutdown) MsgType() MessageType {
	return MsgShutdown
}

// MaxPayloadLength returns the maximum allowed payload size for a Shutdown
// complete message.
//
// This is part of the lnwire.Message interface.
func (s *Shutdown) MaxPayloadLength(uint32) uint32 {
	return 34 + 32 + 2
}
