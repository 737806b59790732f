// Package main is the per-channel daemon's process entrypoint: a thin
// wrapper that parses the operator-tunable configuration, wires fd 0
// (master), fd 3 (peer), fd 4 (gossip), and fd 6 (signer) into their
// respective links, blocks for the master's one-time channel_init
// snapshot, and then hands control to channeld.Dispatcher.Run until the
// channel either reaches shutdown_complete or fails fatally.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/roasbeef/btcd/btcec"
	"github.com/roasbeef/btcd/chaincfg"

	sphinx "github.com/lightningnetwork/lightning-onion"

	"github.com/lightningnetwork/channeld/channeld"
	"github.com/lightningnetwork/channeld/lnwire"
)

// fdMaster, fdPeer, fdGossip, fdSigner are the descriptor numbers the
// master process hands this daemon at exec time, per spec §6.
const (
	fdMaster = 0
	fdPeer   = 3
	fdGossip = 4
	fdSigner = 6
)

// launchOpts adds the one flag this binary needs that isn't a channeld.Config
// knob: the hex-encoded node identity private key used for onion decoding,
// which the out-of-process signer is not asked to do.
type launchOpts struct {
	*channeld.Config
	IdentityKeyHex string `long:"identity-key" description:"hex-encoded node identity private key, used for onion decoding only" required:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "channeld: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &launchOpts{Config: channeld.DefaultConfig()}
	if _, err := flags.Parse(opts); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	cfg := opts.Config

	identityKey, err := parseIdentityKey(opts.IdentityKeyHex)
	if err != nil {
		return fmt.Errorf("loading identity key: %w", err)
	}

	masterSink := newFanoutSink()
	gossipSink := newFanoutSink()

	master := channeld.NewMasterLink(dupFD(fdMaster), masterSink)
	gossipLink := channeld.NewGossipLink(dupFD(fdGossip), gossipSink)
	peerLink := channeld.NewPeerLink(dupFD(fdPeer))
	signer := channeld.NewRemoteSigner(dupFD(fdSigner))

	init, err := master.Init()
	if err != nil {
		return fmt.Errorf("reading channel_init: %w", err)
	}

	chanID := lnwire.NewChanIDFromOutPoint(init.Channel.ChannelPoint())
	onionRouter := channeld.NewOnionRouter(sphinx.NewRouter(identityKey, &chaincfg.MainNetParams))

	ch := channeld.NewChannelFromInit(init.Channel, chanID, identityKey.PubKey(), init, cfg)

	peerMsgs := make(chan lnwire.Message, 16)
	peerErrs := make(chan error, 1)
	go channeld.ReadLoop(dupFD(fdPeer), peerMsgs, peerErrs)

	d := channeld.NewDispatcher(ch, master, peerLink, gossipLink, signer,
		onionRouter, cfg, peerMsgs, peerErrs)
	masterSink.target = d
	gossipSink.target = d

	if init.FundingSigned != nil {
		if err := peerLink.SendMessage(init.FundingSigned); err != nil {
			return fmt.Errorf("forwarding pending funding_signed: %w", err)
		}
	}

	return d.Run()
}

// dupFD wraps one of the descriptors the master handed this process at exec
// time as a ReadWriteCloser. fd is already open and already the right kind
// of stream (master/peer/gossip/signer); this process never opens it itself.
func dupFD(fd int) *os.File {
	return os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd))
}

// parseIdentityKey decodes the hex-encoded node identity private key passed
// on the command line.
func parseIdentityKey(s string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), raw)
	return priv, nil
}

// fanoutSink is handed to NewMasterLink (as a deferredSink) and NewGossipLink
// (as a forwardSink) before the Dispatcher that ultimately implements both
// interfaces exists; target is filled in immediately after NewDispatcher
// returns, which happens before Run ever calls back into either link.
type fanoutSink struct {
	target interface {
		Defer(msg interface{})
		Forward(msg interface{})
	}
}

func newFanoutSink() *fanoutSink { return &fanoutSink{} }

func (s *fanoutSink) Defer(msg interface{}) {
	if s.target != nil {
		s.target.Defer(msg)
	}
}

func (s *fanoutSink) Forward(msg interface{}) {
	if s.target != nil {
		s.target.Forward(msg)
	}
}
