package lnwire

import "io"

// Ping is sent to the remote node to check liveness and optionally pad the
// connection with discardable traffic.
type Ping struct {
	// NumPongBytes is the number of bytes the sender is requesting the
	// receiver include in the corresponding Pong.
	NumPongBytes uint16

	// PaddingBytes is a set of opaque bytes ignored by the receiver.
	PaddingBytes []byte
}

// NewPing returns a new Ping requesting numPongBytes back in the Pong.
func NewPing(numPongBytes uint16) *Ping {
	return &Ping{NumPongBytes: numPongBytes}
}

// A compile time check to ensure Ping implements the lnwire.Message
// interface.
var _ Message = (*Ping)(nil)

// Decode deserializes a serialized Ping message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (p *Ping) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &p.NumPongBytes, &p.PaddingBytes)
}

// Encode serializes the target Ping into the passed io.Writer observing the
// protocol version specified.
//
// This is part of the lnwire.Message interface.
func (p *Ping) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, p.NumPongBytes, p.PaddingBytes)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (p *Ping) MsgType() MessageType {
	return MsgPing
}

// MaxPayloadLength returns the maximum allowed payload size.
//
// This is part of the lnwire.Message interface.
func (p *Ping) MaxPayloadLength(uint32) uint32 {
	return 65535
}
