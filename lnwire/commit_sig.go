package lnwire

import (
	"io"

	"github.com/roasbeef/btcd/btcec"
)

// CommitSig is sent by either side to stage a change in the remote node's
// commitment chain. The remote peer can accept the new commitment and
// broadcast it if it is irrevocable, or decline and close the channel.
type CommitSig struct {
	// ChanID uniquely identifies to the recipient the channel that the
	// commitment signature is intended for.
	ChanID ChannelID

	// CommitSig is Alice's signature for Bob's new commitment transaction.
	CommitSig *btcec.Signature

	// HtlcSigs is a signature for each relevant HTLC output within the
	// created commitment, in the canonical output order.
	HtlcSigs []*btcec.Signature
}

// NewCommitSig creates a new commitSig message.
func NewCommitSig() *CommitSig {
	return &CommitSig{}
}

// A compile time check to ensure CommitSig implements the lnwire.Message
// interface.
var _ Message = (*CommitSig)(nil)

// Decode deserializes a serialized CommitSig message stored in the passed
// io.Reader observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *CommitSig) Decode(r io.Reader, pver uint32) error {
	if err := readElements(r, &c.ChanID, &c.CommitSig); err != nil {
		return err
	}

	var numSigs uint16
	if err := readElement(r, &numSigs); err != nil {
		return err
	}

	c.HtlcSigs = make([]*btcec.Signature, numSigs)
	for i := 0; i < int(numSigs); i++ {
		if err := readElement(r, &c.HtlcSigs[i]); err != nil {
			return err
		}
	}

	return nil
}

// Encode serializes the target CommitSig into the passed io.Writer observing
// the protocol version specified.
//
// This is part of the lnwire.Message interface.
func (c *CommitSig) Encode(w io.Writer, pver uint32) error {
	if err := writeElements(w, c.ChanID, c.CommitSig); err != nil {
		return err
	}

	if err := writeElement(w, uint16(len(c.HtlcSigs))); err != nil {
		return err
	}

	for _, sig := range c.HtlcSigs {
		if err := writeElement(w, sig); err != nil {
			return err
		}
	}

	return nil
}

// MsgType returns the integer uniquely identifying this message type on the
// wire.
//
// This is part of the lnwire.Message interface.
func (c *CommitSig) MsgType() MessageType {
	return MsgCommitSig
}

// MaxPayloadLength returns the maximum allowed payload size for a CommitSig
// complete message observing the specified protocol version.
//
// This is part of the lnwire.Message interface.
func (c *CommitSig) MaxPayloadLength(uint32) uint32 {
	return 65533
}
