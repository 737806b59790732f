package lnwire

import "io"

// Pong is the response to a received Ping message, and carries an
// arbitrary amount of padding requested by the sender of the Ping.
type Pong struct {
	// PongBytes is a set of opaque bytes ignored by the receiver.
	PongBytes []byte
}

// NewPong returns a new Pong carrying pongBytes as its padding.
func NewPong(pongBytes []byte) *Pong {
	return &Pong{PongBytes: pongBytes}
}

// A compile time check to ensure Pong implements the lnwire.Message
// interface.
var _ Message = (*Pong)(nil)

// Decode deserializes a serialized Pong message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (p *Pong) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &p.PongBytes)
}

// Encode serializes the target Pong into the passed io.Writer observing the
// protocol version specified.
//
// This is part of the lnwire.Message interface.
func (p *Pong) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, p.PongBytes)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (p *Pong) MsgType() MessageType {
	return MsgPong
}

// MaxPayloadLength returns the maximum allowed payload size.
//
// This is part of the lnwire.Message interface.
func (p *Pong) MaxPayloadLength(uint32) uint32 {
	return 65535
}
