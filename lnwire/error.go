package lnwire

import "io"

// Error represents a generic error bound to a channel. The channel is
// queried by ChanID; if ChanID is all-zero the error applies to the entire
// connection and the receiver should disconnect.
type Error struct {
	// ChanID references the active channel that this error is bound to.
	ChanID ChannelID

	// Data is the reason for the error; it need not be human-readable.
	Data []byte
}

// NewError returns a new Error message bound to chanID.
func NewError(chanID ChannelID, data []byte) *Error {
	return &Error{ChanID: chanID, Data: data}
}

// A compile time check to ensure Error implements the lnwire.Message
// interface.
var _ Message = (*Error)(nil)

// Decode deserializes a serialized Error message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *Error) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &c.ChanID, &c.Data)
}

// Encode serializes the target Error into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *Error) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, c.ChanID, c.Data)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *Error) MsgType() MessageType {
	return MsgError
}

// MaxPayloadLength returns the maximum allowed payload size.
//
// This is part of the lnwire.Message interface.
func (c *Error) MaxPayloadLength(uint32) uint32 {
	return 65535
}

// Error returns the Error message rendered as a plain Go error, satisfying
// the error interface for callers that want to propagate it as such.
func (c *Error) Error() string {
	return string(c.Data)
}
