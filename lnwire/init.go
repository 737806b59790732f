package lnwire

import "io"

// Init is the first message reveal the features supported or required by
// this node. Nodes wait for receipt of the other's Init message before
// sending any other messages on the connection.
type Init struct {
	// GlobalFeatures is a legacy feature vector used to advertise
	// features relevant outside the scope of a single channel.
	GlobalFeatures []byte

	// LocalFeatures is a feature vector used to advertise the features
	// supported by the sender that are relevant in the context of
	// direct peer-to-peer communication.
	LocalFeatures []byte
}

// NewInitMessage creates a new Init message.
func NewInitMessage(gf, lf []byte) *Init {
	return &Init{
		GlobalFeatures: gf,
		LocalFeatures:  lf,
	}
}

// A compile time check to ensure Init implements the lnwire.Message
// interface.
var _ Message = (*Init)(nil)

// Decode deserializes a serialized Init message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (msg *Init) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &msg.GlobalFeatures, &msg.LocalFeatures)
}

// Encode serializes the target Init into the passed io.Writer observing the
// protocol version specified.
//
// This is part of the lnwire.Message interface.
func (msg *Init) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, msg.GlobalFeatures, msg.LocalFeatures)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (msg *Init) MsgType() MessageType {
	return MsgInit
}

// MaxPayloadLength returns the maximum allowed payload size.
//
// This is part of the lnwire.Message interface.
func (msg *Init) MaxPayloadLength(uint32) uint32 {
	return 65535
}
