package channeld

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"github.com/roasbeef/btcd/wire"

	"github.com/lightningnetwork/channeld/lnwire"
)

// gossipEnvelope frames gossip-service traffic the same way masterEnvelope
// frames master traffic: a type tag plus a gob payload, length-prefixed.
type gossipEnvelope struct {
	Kind    string
	Payload []byte
}

// forwardSink receives gossip broadcasts that arrive while the dispatcher
// is blocked inside a gossipd_wait_sync_reply (spec §5, idiom 2). Unlike
// the master's deferred queue, these are processed inline rather than
// stashed, since gossip forwards carry no ordering dependency on the
// channel's own state machine.
type forwardSink interface {
	Forward(msg interface{})
}

// gossipConn is the concrete GossipLink.
type gossipConn struct {
	rw      io.ReadWriteCloser
	forward forwardSink
	mu      sync.Mutex
}

// NewGossipLink wraps rw as a GossipLink. forward receives any broadcast
// read while a synchronous request is outstanding.
func NewGossipLink(rw io.ReadWriteCloser, forward forwardSink) GossipLink {
	return &gossipConn{rw: rw, forward: forward}
}

func (g *gossipConn) write(kind string, payload interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}
	env := gossipEnvelope{Kind: kind, Payload: buf.Bytes()}

	var full bytes.Buffer
	if err := gob.NewEncoder(&full).Encode(env); err != nil {
		return err
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(full.Len()))
	if _, err := g.rw.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := g.rw.Write(full.Bytes())
	return err
}

func (g *gossipConn) read() (*gossipEnvelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(g.rw, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(g.rw, body); err != nil {
		return nil, err
	}
	var env gossipEnvelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (g *gossipConn) waitFor(kind string, request, reply interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.write(kind, request); err != nil {
		return err
	}

	wantKind := kind + "_reply"
	for {
		env, err := g.read()
		if err != nil {
			return fmt.Errorf("gossip I/O error awaiting %s: %w", wantKind, err)
		}
		if env.Kind == wantKind {
			return gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(reply)
		}
		g.forward.Forward(env)
	}
}

func (g *gossipConn) GetChannelUpdate(short lnwire.ShortChannelID) (*lnwire.ChannelUpdate, error) {
	var reply lnwire.ChannelUpdate
	if err := g.waitFor("get_update", short.ToUint64(), &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (g *gossipConn) LocalAddChannel(chanPoint wire.OutPoint, short lnwire.ShortChannelID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.write("local_add_channel", struct {
		ChanPoint wire.OutPoint
		Short     uint64
	}{chanPoint, short.ToUint64()})
}

func (g *gossipConn) LocalChannelUpdate(update *lnwire.ChannelUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.write("local_channel_update", update)
}

func (g *gossipConn) AnnounceChannel(ann *lnwire.ChannelAnnouncement) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.write("channel_announcement", ann)
}
