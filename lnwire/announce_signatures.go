package lnwire

import (
	"io"

	"github.com/roasbeef/btcd/btcec"
)

// AnnounceSignatures is the message used to exchange the node and bitcoin
// signatures that cosign a channel_announcement, so that each side can
// independently assemble and broadcast the completed channel_announcement
// to the gossip network.
type AnnounceSignatures struct {
	// ChannelID is used to identify the channel that these signatures
	// refer to. It can also be used to tie the signatures to the exact
	// funding transaction identified by ShortChannelID.
	ChannelID ChannelID

	// ShortChannelID is the final short channel id used to identify the
	// channel across the network.
	ShortChannelID ShortChannelID

	// NodeSignature is the signature made with the node's long term
	// identity key, signing over the channel announcement proof.
	NodeSignature *btcec.Signature

	// BitcoinSignature is the signature made with the bitcoin key that
	// was used to fund the channel, signing over the channel
	// announcement proof.
	BitcoinSignature *btcec.Signature
}

// A compile time check to ensure AnnounceSignatures implements the
// lnwire.Message interface.
var _ Message = (*AnnounceSignatures)(nil)

// Decode deserializes a serialized AnnounceSignatures message stored in the
// passed io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (a *AnnounceSignatures) Decode(r io.Reader, pver uint32) error {
	return readElements(r,
		&a.ChannelID,
		&a.ShortChannelID,
		&a.NodeSignature,
		&a.BitcoinSignature,
	)
}

// Encode serializes the target AnnounceSignatures into the passed io.Writer
// observing the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (a *AnnounceSignatures) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		a.ChannelID,
		a.ShortChannelID,
		a.NodeSignature,
		a.BitcoinSignature,
	)
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (a *AnnounceSignatures) MsgType() MessageType {
	return MsgAnnounceSignatures
}

// MaxPayloadLength returns the maximum allowed payload size for an
// AnnounceSignatures complete message.
//
// This is part of the lnwire.Message interface.
func (a *AnnounceSignatures) MaxPayloadLength(uint32) uint32 {
	// 32 + 8 + 64 + 64
	return 168
}
