package lnwire

import (
	"io"

	"github.com/roasbeef/btcd/btcec"
)

// ChannelAnnouncement is the message used to announce the existence of a
// channel between two nodes to the rest of the network. It proves that the
// channel was opened by both parties by including signatures over the
// message from each side's node key and each side's bitcoin key.
type ChannelAnnouncement struct {
	NodeSig1    *btcec.Signature
	NodeSig2    *btcec.Signature
	ShortChannelID ShortChannelID
	BitcoinSig1 *btcec.Signature
	BitcoinSig2 *btcec.Signature

	// NodeID1, NodeID2 are the node identity public keys of the channel
	// endpoints in ascending lexicographic order.
	NodeID1 *btcec.PublicKey
	NodeID2 *btcec.PublicKey

	// BitcoinKey1, BitcoinKey2 are the bitcoin keys used to fund the
	// channel, in the same order as the node keys above.
	BitcoinKey1 *btcec.PublicKey
	BitcoinKey2 *btcec.PublicKey

	// ChainHash denotes the target chain that this channel was opened
	// within.
	ChainHash [32]byte
}

// A compile time check to ensure ChannelAnnouncement implements the
// lnwire.Message interface.
var _ Message = (*ChannelAnnouncement)(nil)

// Decode deserializes a serialized ChannelAnnouncement stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *ChannelAnnouncement) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&c.NodeSig1,
		&c.NodeSig2,
		&c.BitcoinSig1,
		&c.BitcoinSig2,
		&c.ShortChannelID,
		&c.NodeID1,
		&c.NodeID2,
		&c.BitcoinKey1,
		&c.BitcoinKey2,
		c.ChainHash[:],
	)
}

// Encode serializes the target ChannelAnnouncement into the passed
// io.Writer observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *ChannelAnnouncement) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		c.NodeSig1,
		c.NodeSig2,
		c.BitcoinSig1,
		c.BitcoinSig2,
		c.ShortChannelID,
		c.NodeID1,
		c.NodeID2,
		c.BitcoinKey1,
		c.BitcoinKey2,
		c.ChainHash[:],
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *ChannelAnnouncement) MsgType() MessageType {
	return MsgChannelAnnouncement
}

// MaxPayloadLength returns the maximum allowed payload size.
//
// This is part of the lnwire.Message interface.
func (c *ChannelAnnouncement) MaxPayloadLength(uint32) uint32 {
	return 8192
}
