package lnwire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"net"

	"github.com/roasbeef/btcd/btcec"
	"github.com/roasbeef/btcd/wire"
	"github.com/roasbeef/btcutil"
)

// ChannelID is a series of 32 bytes that uniquely identifies all channels
// within the network. The ChannelID is computed using the outpoint of the
// funding transaction (the txid, and output index). Given a funding output
// the ChannelID can be calculated by XOR'ing the big-endian transaction hash
// with the big-endian transaction output.
type ChannelID [32]byte

// NewChanIDFromOutPoint generates a new ChannelID by XOR'ing the outpoint's
// txid with the outpoint's output index.
func NewChanIDFromOutPoint(op *wire.OutPoint) ChannelID {
	var chanID [32]byte
	copy(chanID[:], op.Hash[:])

	indexSlice := make([]byte, 4)
	binary.BigEndian.PutUint32(indexSlice, uint32(op.Index))

	chanID[30] ^= indexSlice[2]
	chanID[31] ^= indexSlice[3]

	return chanID
}

// String returns the string representation of the ChannelID.
func (c ChannelID) String() string {
	return fmt.Sprintf("%x", c[:])
}

// ShortChannelID represents the set of data which is needed to retrieve all
// necessary data to validate the channel existence.
type ShortChannelID struct {
	BlockHeight uint32
	TxIndex     uint32
	TxPosition  uint16
}

// NewShortChanIDFromInt converts the uint64 encoding of a short channel id
// into the ShortChannelID struct representation.
func NewShortChanIDFromInt(chanID uint64) ShortChannelID {
	return ShortChannelID{
		BlockHeight: uint32(chanID >> 40),
		TxIndex:     uint32(chanID>>16) & 0xFFFFFF,
		TxPosition:  uint16(chanID),
	}
}

// ToUint64 converts the ShortChannelID into a single uint64 value, compact
// enough to be used for on-disk storage.
func (c ShortChannelID) ToUint64() uint64 {
	return ((uint64(c.BlockHeight) << 40) | (uint64(c.TxIndex) << 16) |
		uint64(c.TxPosition))
}

// String returns a human-readable string describing the short channel id.
func (c ShortChannelID) String() string {
	return fmt.Sprintf("%d:%d:%d", c.BlockHeight, c.TxIndex, c.TxPosition)
}

// MilliSatoshi is a thousandth of a Bitcoin satoshi, the unit used to
// express amounts within the wire protocol to allow for sub-satoshi routing
// fee accumulation.
type MilliSatoshi uint64

// ToSatoshis converts an amount in MilliSatoshi to Satoshi, rounding down.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(m / 1000)
}

// PkScript is a byte wrapper around a Bitcoin public key script, with a max
// length of 34 bytes (the longest a standard script can be).
type PkScript []byte

func isValidPkScript(script PkScript) bool {
	return len(script) <= 34
}

// FailCode identifies the advertised failure type for an HTLC failure
// message.
type FailCode uint16

// These failure codes are defined by the lightning BOLT specifications; a
// handful are referenced directly by the channeld package.
const (
	CodeNone                    FailCode = 0
	CodeInvalidOnionVersion     FailCode = 0x8000 | 4
	CodeInvalidOnionHmac        FailCode = 0x8000 | 5
	CodeInvalidOnionKey         FailCode = 0x8000 | 6
	CodeAmountBelowMinimum      FailCode = 0x1000 | 11
	CodeFeeInsufficient         FailCode = 0x1000 | 12
	CodeIncorrectCltvExpiry     FailCode = 0x1000 | 13
	CodeExpiryTooSoon           FailCode = 0x1000 | 14
	CodeChannelDisabled         FailCode = 0x1000 | 20
	CodeTemporaryChannelFailure FailCode = 0x1000 | 7
	CodeUnknownPaymentHash      FailCode = 0x4000 | 15
	CodeIncorrectPaymentAmount  FailCode = 0x4000 | 16
)

// BadonionFlag is set on all malformed-onion failure codes.
const BadonionFlag FailCode = 0x8000

// Box of helpers that let message Encode/Decode implementations describe
// their fields as a flat call, mirroring the way the rest of the pack's
// wire packages serialize messages.

func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case ChannelID:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}
	case ShortChannelID:
		return writeElements(w, e.ToUint64())
	case MilliSatoshi:
		return binary.Write(w, binary.BigEndian, uint64(e))
	case btcutil.Amount:
		return binary.Write(w, binary.BigEndian, uint64(e))
	case uint64:
		return binary.Write(w, binary.BigEndian, e)
	case uint32:
		return binary.Write(w, binary.BigEndian, e)
	case uint16:
		return binary.Write(w, binary.BigEndian, e)
	case uint8:
		_, err := w.Write([]byte{e})
		return err
	case bool:
		var b [1]byte
		if e {
			b[0] = 1
		}
		_, err := w.Write(b[:])
		return err
	case FailCode:
		return binary.Write(w, binary.BigEndian, uint16(e))
	case ChanUpdateChanFlags:
		_, err := w.Write([]byte{uint8(e)})
		return err
	case []byte:
		return wire.WriteVarBytes(w, 0, e)
	case PkScript:
		return wire.WriteVarBytes(w, 0, e)
	case wire.OutPoint:
		return writeOutPoint(w, e)
	case *btcec.PublicKey:
		if e == nil {
			return fmt.Errorf("cannot write nil public key")
		}
		_, err := w.Write(e.SerializeCompressed())
		return err
	case **btcec.PublicKey:
		return writeElement(w, *e)
	case *btcec.Signature:
		if e == nil {
			return fmt.Errorf("cannot write nil signature")
		}
		sig := e.Serialize()
		var buf [64]byte
		copy(buf[:], sig)
		_, err := w.Write(buf[:])
		return err
	case RGB:
		_, err := w.Write([]byte{e.red, e.green, e.blue})
		return err
	case Alias:
		_, err := w.Write(e.data[:])
		return err
	case []net.Addr:
		return writeNetAddrs(w, e)
	default:
		return fmt.Errorf("unknown type %T in writeElement", e)
	}
	return nil
}

func writeOutPoint(w io.Writer, op wire.OutPoint) error {
	if op.Index > 0xffff {
		return fmt.Errorf("outpoint index %d exceeds 16 bits", op.Index)
	}
	if _, err := w.Write(op.Hash[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, op.Index)
}

func writeNetAddrs(w io.Writer, addrs []net.Addr) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(addrs))); err != nil {
		return err
	}
	for _, addr := range addrs {
		tcpAddr, ok := addr.(*net.TCPAddr)
		if !ok {
			return fmt.Errorf("unsupported address type %T", addr)
		}
		ip4 := tcpAddr.IP.To4()
		if ip4 != nil {
			if _, err := w.Write([]byte{1}); err != nil {
				return err
			}
			if _, err := w.Write(ip4); err != nil {
				return err
			}
		} else {
			if _, err := w.Write([]byte{2}); err != nil {
				return err
			}
			if _, err := w.Write(tcpAddr.IP.To16()); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.BigEndian, uint16(tcpAddr.Port)); err != nil {
			return err
		}
	}
	return nil
}

func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *ChannelID:
		_, err := io.ReadFull(r, e[:])
		return err
	case *ShortChannelID:
		var chanID uint64
		if err := readElement(r, &chanID); err != nil {
			return err
		}
		*e = NewShortChanIDFromInt(chanID)
		return nil
	case *MilliSatoshi:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return err
		}
		*e = MilliSatoshi(v)
		return nil
	case *btcutil.Amount:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return err
		}
		*e = btcutil.Amount(v)
		return nil
	case *uint64:
		return binary.Read(r, binary.BigEndian, e)
	case *uint32:
		return binary.Read(r, binary.BigEndian, e)
	case *uint16:
		return binary.Read(r, binary.BigEndian, e)
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]
		return nil
	case *bool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0] == 1
		return nil
	case *FailCode:
		var v uint16
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return err
		}
		*e = FailCode(v)
		return nil
	case *ChanUpdateChanFlags:
		var buf [1]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = ChanUpdateChanFlags(buf[0])
		return nil
	case *[]byte:
		b, err := wire.ReadVarBytes(r, 0, 65535, "bytes")
		if err != nil {
			return err
		}
		*e = b
		return nil
	case []byte:
		_, err := io.ReadFull(r, e)
		return err
	case *PkScript:
		b, err := wire.ReadVarBytes(r, 0, 34, "pkscript")
		if err != nil {
			return err
		}
		*e = PkScript(b)
		return nil
	case *wire.OutPoint:
		return readOutPoint(r, e)
	case **btcec.PublicKey:
		var buf [33]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		pubKey, err := btcec.ParsePubKey(buf[:], btcec.S256())
		if err != nil {
			return err
		}
		*e = pubKey
		return nil
	case **btcec.Signature:
		var buf [64]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*e = &btcec.Signature{
			R: new(big.Int).SetBytes(buf[:32]),
			S: new(big.Int).SetBytes(buf[32:]),
		}
		return nil
	case *RGB:
		var buf [3]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		e.red, e.green, e.blue = buf[0], buf[1], buf[2]
		return nil
	case *Alias:
		var buf [32]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		alias, err := newAlias(buf[:])
		if err != nil {
			return err
		}
		*e = alias
		return nil
	case *[]net.Addr:
		addrs, err := readNetAddrs(r)
		if err != nil {
			return err
		}
		*e = addrs
		return nil
	default:
		return fmt.Errorf("unknown type %T in readElement", e)
	}
}

func readOutPoint(r io.Reader, op *wire.OutPoint) error {
	if _, err := io.ReadFull(r, op.Hash[:]); err != nil {
		return err
	}
	return binary.Read(r, binary.BigEndian, &op.Index)
}

func readNetAddrs(r io.Reader) ([]net.Addr, error) {
	var numAddrs uint16
	if err := binary.Read(r, binary.BigEndian, &numAddrs); err != nil {
		return nil, err
	}

	addrs := make([]net.Addr, 0, numAddrs)
	for i := uint16(0); i < numAddrs; i++ {
		var kind [1]byte
		if _, err := io.ReadFull(r, kind[:]); err != nil {
			return nil, err
		}

		var ip net.IP
		switch kind[0] {
		case 1:
			var buf [4]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return nil, err
			}
			ip = net.IP(buf[:])
		case 2:
			var buf [16]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return nil, err
			}
			ip = net.IP(buf[:])
		default:
			return nil, fmt.Errorf("unknown address descriptor %d", kind[0])
		}

		var port uint16
		if err := binary.Read(r, binary.BigEndian, &port); err != nil {
			return nil, err
		}

		addrs = append(addrs, &net.TCPAddr{IP: ip, Port: int(port)})
	}

	return addrs, nil
}
