package channeld

import (
	"io"
	"sync"

	"github.com/lightningnetwork/channeld/lnwire"
)

// wireProtocolVersion is the lnwire protocol version this package speaks on
// the peer link; the transport layer below it already terminated Noise
// encryption, so this is purely a framing constant.
const wireProtocolVersion = 0

// peerConn is the concrete PeerLink: the already-decrypted, already-framed
// transport described in spec §6. Reads happen on a caller-owned goroutine
// that feeds Dispatcher.peerMsgs directly (see ReadLoop); this type only
// ever serializes writes.
type peerConn struct {
	rw      io.ReadWriteCloser
	writeMu sync.Mutex
}

// NewPeerLink wraps rw, the peer process's stdio-like descriptor, as a
// PeerLink.
func NewPeerLink(rw io.ReadWriteCloser) PeerLink {
	return &peerConn{rw: rw}
}

func (p *peerConn) SendMessage(msg lnwire.Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_, err := lnwire.WriteMessage(p.rw, msg, wireProtocolVersion)
	return err
}

func (p *peerConn) Fail(chanID lnwire.ChannelID, reason string) error {
	err := p.SendMessage(lnwire.NewError(chanID, []byte(reason)))
	if closeErr := p.rw.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// ReadLoop reads wire messages from rw until it errs, pushing each onto
// msgs. It is meant to be run on its own goroutine by whoever owns the peer
// transport; Dispatcher.Run only ever receives from msgs, never reads rw
// itself, so there is exactly one reader of the peer transport at a time.
func ReadLoop(rw io.Reader, msgs chan<- lnwire.Message, errs chan<- error) {
	for {
		msg, err := lnwire.ReadMessage(rw, wireProtocolVersion)
		if err != nil {
			errs <- err
			return
		}
		msgs <- msg
	}
}
