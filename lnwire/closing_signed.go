package lnwire

import (
	"io"

	"github.com/roasbeef/btcd/btcec"
	"github.com/roasbeef/btcutil"
)

// ClosingSigned is sent by either side once they wish to settle the final
// closing transaction fee during a cooperative channel close. It lives
// outside the scope of the per-channel daemon's commitment engine; the
// daemon only initiates the handoff via Shutdown.
type ClosingSigned struct {
	// ChannelID identifies the particular channel being closed.
	ChannelID ChannelID

	// FeeSatoshis is the total fee, in satoshis, that the party to the
	// channel would like to propose for the close transaction.
	FeeSatoshis btcutil.Amount

	// Signature is the signature of the channel initiator if this
	// message is sent by the funder, or the non-initiator's signature
	// otherwise.
	Signature *btcec.Signature
}

// A compile time check to ensure ClosingSigned implements the
// lnwire.Message interface.
var _ Message = (*ClosingSigned)(nil)

// Decode deserializes a serialized ClosingSigned message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *ClosingSigned) Decode(r io.Reader, pver uint32) error {
	return readElements(r, &c.ChannelID, &c.FeeSatoshis, &c.Signature)
}

// Encode serializes the target ClosingSigned into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *ClosingSigned) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, c.ChannelID, c.FeeSatoshis, c.Signature)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *ClosingSigned) MsgType() MessageType {
	return MsgClosingSigned
}

// MaxPayloadLength returns the maximum allowed payload size.
//
// This is part of the lnwire.Message interface.
func (c *ClosingSigned) MaxPayloadLength(uint32) uint32 {
	// 32 + 8 + 64
	return 104
}
