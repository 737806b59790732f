package channeld

import (
	"time"

	"github.com/roasbeef/btcutil"

	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightningnetwork/channeld/lnwire"
)

// Dispatcher is the single-threaded event loop of spec §4.1: it selects
// among the master, peer, and gossip descriptors plus the commit timer,
// processes exactly one event per iteration, and reassesses timers
// afterward. There are no background goroutines driving channel state —
// every transition happens inside Run's own call stack, including the
// nested, synchronous master round trips commitment.go makes — so there is
// never more than one reader of any given transport at a time.
type Dispatcher struct {
	channel *Channel

	master MasterLink
	peer   PeerLink
	gossip GossipLink
	signer SignerClient
	onion  OnionRouter

	cfg *Config

	// peerMsgs is fed by a single reader goroutine started by whoever
	// owns the peer transport (cmd/channeld's main loop); Run only ever
	// receives from it. peerErrs carries that goroutine's terminal read
	// error, if any.
	peerMsgs chan lnwire.Message
	peerErrs chan error

	// deferred holds master messages read during a blocking waitFor that
	// didn't match the reply being awaited (spec §5, idiom 1). Drained
	// one per iteration, ahead of fresh peer or gossip traffic, per the
	// master > peer > gossip-store priority.
	deferred *queue.ConcurrentQueue

	// gossipTick paces how often a quiescent loop iteration checks the
	// gossip-store descriptor, the lowest-priority wait in §4.1.
	gossipTick ticker.Ticker

	// reestablished is false until channel_reestablish has been
	// exchanged; it gates the "premature message" tolerance of §4.4.
	reestablished bool
	prematureMsgs []lnwire.Message

	// pendingDecoded carries the result of the test-fake fallback path
	// in masterChannels: a message already decoded by a fake's Recv(),
	// signaled through the envelope channel with the "__decoded" kind.
	pendingDecoded interface{}

	// fatal is non-nil once a terminal condition has fired; Run exits
	// its loop the iteration after fatal is observed.
	fatal error
}

const gossipStoreTickInterval = 250 * time.Millisecond

// NewDispatcher wires the external collaborators together into a running
// per-channel daemon. peerMsgs is the channel a caller's own peer-read
// goroutine feeds; Run treats it as read-only.
func NewDispatcher(channel *Channel, master MasterLink, peer PeerLink,
	gossip GossipLink, signer SignerClient, onion OnionRouter, cfg *Config,
	peerMsgs chan lnwire.Message, peerErrs chan error) *Dispatcher {

	d := &Dispatcher{
		channel:    channel,
		master:     master,
		peer:       peer,
		gossip:     gossip,
		signer:     signer,
		onion:      onion,
		cfg:        cfg,
		peerMsgs:   peerMsgs,
		peerErrs:   peerErrs,
		deferred:   queue.NewConcurrentQueue(16),
		gossipTick: ticker.New(gossipStoreTickInterval),
	}
	d.deferred.Start()
	d.gossipTick.Resume()
	return d
}

// Defer implements deferredSink: it is handed to the MasterLink so that any
// message read while awaiting a specific reply type lands here instead of
// being dropped.
func (d *Dispatcher) Defer(msg interface{}) {
	d.deferred.ChanIn() <- msg
}

// Forward implements forwardSink: a gossip message that arrives while the
// dispatcher is blocked in a gossip round trip is processed inline, per
// spec §5 idiom 2, by handing it straight to the peer link.
func (d *Dispatcher) Forward(msg interface{}) {
	if wireMsg, ok := msg.(lnwire.Message); ok {
		_ = d.peer.SendMessage(wireMsg)
	}
}

// envelopeSource is satisfied by the real masterConn; it lets Run select
// directly on the master's envelope channel instead of spawning a reader
// goroutine that could race with a nested, synchronous waitFor call made
// from deeper in the same call stack.
type envelopeSource interface {
	envelopes() (<-chan *masterEnvelope, <-chan error)
}

// Run drives the loop until shutdown_complete or a fatal error.
func (d *Dispatcher) Run() error {
	envCh, errCh := d.masterChannels()

	for {
		if d.fatal != nil {
			return d.fatal
		}
		if d.shutdownComplete() {
			return d.master.ShutdownComplete()
		}
		if d.stepDeferred() {
			continue
		}

		// Priority: master first, then peer, checked non-blocking so
		// a busy master link can't be starved by peer traffic before
		// falling into the blocking select below.
		select {
		case env := <-envCh:
			d.handleMasterEnvelope(env)
			continue
		case err := <-errCh:
			d.fail(NewInternalError("master connection lost: %v", err))
			continue
		default:
		}

		select {
		case msg := <-d.peerMsgs:
			d.HandlePeerMessage(msg)
			continue
		case err := <-d.peerErrs:
			d.fail(NewInternalError("peer connection lost: %v", err))
			continue
		default:
		}

		select {
		case env := <-envCh:
			d.handleMasterEnvelope(env)
		case err := <-errCh:
			d.fail(NewInternalError("master connection lost: %v", err))
		case msg := <-d.peerMsgs:
			d.HandlePeerMessage(msg)
		case err := <-d.peerErrs:
			d.fail(NewInternalError("peer connection lost: %v", err))
		case <-d.channel.commitTimer.C():
			d.channel.commitTimer.armed = false

			// Spec §4.1: opportunistically ping when the commit
			// timer fires and the peer has been silent past the
			// liveness window. sendCommit's own guard defers the
			// commit itself in the same situation.
			if d.cfg.LivenessTimeout > 0 &&
				!d.channel.lastRecvFromPeer.IsZero() &&
				time.Since(d.channel.lastRecvFromPeer) > d.cfg.LivenessTimeout {

				_ = d.peer.SendMessage(lnwire.NewPing(0))
			}

			if err := d.sendCommit(); err != nil {
				d.fail(err)
			}
		case <-d.gossipTick.Ticks():
			// Lowest priority: nothing to do but give the
			// gossip-store descriptor a chance to be drained by
			// the transport layer in a real deployment.
		}
	}
}

// masterChannels returns the channel pair Run selects master readiness on.
// A test double that doesn't implement envelopeSource gets a goroutine
// that loops Recv(), signaling readiness with a sentinel "__decoded"
// envelope; that's only safe because such fakes are simple in-memory
// queues with no concurrent reader to race against.
func (d *Dispatcher) masterChannels() (<-chan *masterEnvelope, <-chan error) {
	if es, ok := d.master.(envelopeSource); ok {
		return es.envelopes()
	}

	envCh := make(chan *masterEnvelope)
	errCh := make(chan error, 1)
	go func() {
		for {
			msg, err := d.master.Recv()
			if err != nil {
				errCh <- err
				return
			}
			d.pendingDecoded = msg
			envCh <- &masterEnvelope{Kind: "__decoded"}
		}
	}()
	return envCh, errCh
}

// stepDeferred drains exactly one already-queued deferred master message,
// if any, honoring the "master > peer > gossip-store" priority of §4.1
// without blocking when the queue is empty.
func (d *Dispatcher) stepDeferred() bool {
	select {
	case raw := <-d.deferred.ChanOut():
		if env, ok := raw.(*masterEnvelope); ok {
			d.handleMasterEnvelope(env)
			return true
		}
		d.dispatchMasterRaw(raw)
		return true
	default:
		return false
	}
}

func (d *Dispatcher) shutdownComplete() bool {
	c := d.channel
	return c.side[Local].shutdownSent && c.side[Remote].shutdownSent &&
		len(c.htlcs) == 0 && c.quiescent()
}

func (d *Dispatcher) handleMasterEnvelope(env *masterEnvelope) {
	if env.Kind == "__decoded" {
		d.dispatchMasterRaw(d.pendingDecoded)
		return
	}
	msg, err := decodeMasterMessage(env)
	if err != nil {
		d.fail(NewInternalError("decoding master message: %v", err))
		return
	}
	d.dispatchMasterRaw(msg)
}

// dispatchMasterRaw type-switches a decoded master message to its handler.
// Unknown kinds are a fatal protocol error, per spec §9's closed sum type.
func (d *Dispatcher) dispatchMasterRaw(raw interface{}) {
	switch msg := raw.(type) {
	case *OfferHTLC:
		reply := d.channel.handleOfferHTLC(msg)
		if err := d.master.Reply(msg, reply); err != nil {
			d.fail(NewInternalError("master I/O error replying to offer_htlc: %v", err))
		}
	case *FulfillHTLC:
		d.handleMasterFulfill(msg)
	case *FailHTLC:
		d.handleMasterFail(msg)
	case *FeerateUpdate:
		d.channel.feerateMin = btcutil.Amount(msg.Min)
		d.channel.feerateMax = btcutil.Amount(msg.Max)
		d.channel.desiredFeerate = btcutil.Amount(msg.Desired)
	case *RoutingFeeUpdate:
		// Routing-fee policy is threaded through to gossip by the
		// announcement path; the core itself doesn't interpret it.
	case *SendShutdown:
		d.channel.sendShutdown = true
		d.channel.shutdownScript = msg.Script
		d.channel.pendingChanges = true
		d.channel.commitTimer.Arm()
		d.disableChannelUpdate()
	case *FundingDepth:
		d.handleFundingDepth(msg)
	default:
		d.fail(NewInternalError("unknown master message %T", raw))
	}
}

func (d *Dispatcher) handleMasterFulfill(msg *FulfillHTLC) {
	bk, ok := d.channel.htlcs[msg.ID]
	if !ok {
		d.fail(NewInternalError("fulfill_htlc for unknown id %d", msg.ID))
		return
	}
	preimage := msg.Preimage
	bk.settlePreimage = &preimage

	if err := d.channel.Engine.SettleHTLC(msg.Preimage, msg.ID); err != nil {
		d.fail(NewInternalError("settle rejected by commitment engine: %v", err))
		return
	}
	d.channel.pendingChanges = true
	d.channel.commitTimer.Arm()
}

func (d *Dispatcher) handleMasterFail(msg *FailHTLC) {
	bk, ok := d.channel.htlcs[msg.ID]
	if !ok {
		d.fail(NewInternalError("fail_htlc for unknown id %d", msg.ID))
		return
	}

	// Exactly one of Reason (a pre-wrapped onion blob forwarded from
	// downstream) or Code (a failure originated locally, which
	// sendFailOrFulfill must still build via makeFailMsg) is set, per
	// channeld.c's send_fail_or_fulfill: "h->failcode" means "make a
	// message", "h->fail" means "forward as-is".
	if msg.Code != 0 {
		bk.failCode = msg.Code
		bk.failShort = msg.Short
	} else {
		bk.failReason = msg.Reason
	}

	if err := d.channel.Engine.FailHTLC(msg.ID, msg.Reason); err != nil {
		d.fail(NewInternalError("fail rejected by commitment engine: %v", err))
		return
	}
	d.channel.pendingChanges = true
	d.channel.commitTimer.Arm()
}

func (d *Dispatcher) handleFundingDepth(msg *FundingDepth) {
	d.channel.fundingDepth = msg.Confirmations
	if msg.ShortChanID != 0 {
		d.channel.side[Local].shortChanID = lnwire.NewShortChanIDFromInt(msg.ShortChanID)
	}
	d.maybeSendAnnouncementSigs()
}

// HandlePeerMessage dispatches a single inbound peer message, per spec
// §4.2. It is the core of the protocol state machine: every branch either
// advances a monotone flag, stages a change for the next commitment, or
// fails the channel.
func (d *Dispatcher) HandlePeerMessage(msg lnwire.Message) {
	if !d.reestablished {
		if !allowedBeforeReestablish(msg) {
			if len(d.prematureMsgs) >= d.cfg.MaxPrematureMessages {
				d.fail(NewProtocolError("too many premature messages before channel_reestablish"))
				return
			}
			d.prematureMsgs = append(d.prematureMsgs, msg)
			return
		}
	}

	switch m := msg.(type) {
	case *lnwire.FundingLocked:
		d.handleFundingLocked(m)
	case *lnwire.AnnounceSignatures:
		d.handleAnnounceSignatures(m)
	case *lnwire.UpdateAddHTLC:
		d.handleUpdateAddHTLCWire(m)
	case *lnwire.UpdateFee:
		d.handleUpdateFee(m)
	case *lnwire.CommitSig:
		d.handlePeerCommitSig(m)
	case *lnwire.RevokeAndAck:
		d.handleRevokeAndAck(m)
	case *lnwire.UpdateFufillHTLC:
		d.handleUpdateFulfill(m)
	case *lnwire.UpdateFailHTLC:
		d.handleUpdateFail(m)
	case *lnwire.UpdateFailMalformedHTLC:
		d.handleUpdateFailMalformed(m)
	case *lnwire.Shutdown:
		d.handleShutdown(m)
	case *lnwire.ChannelReestablish:
		d.handleChannelReestablish(m)
	case *lnwire.Ping:
		_ = d.peer.SendMessage(&lnwire.Pong{
			PongBytes: make([]byte, 0),
		})
	case *lnwire.Pong:
		// No action required; receipt alone satisfies liveness.
	default:
		d.fail(NewProtocolError("unexpected message type %T", msg))
		return
	}

	d.channel.lastRecvFromPeer = time.Now()
}

// allowedBeforeReestablish is the strict allowlist of message kinds that
// may arrive before channel_reestablish has been exchanged (spec §4.2);
// every other kind received that early is stashed, and fatal once the
// stash overflows.
func allowedBeforeReestablish(msg lnwire.Message) bool {
	switch msg.(type) {
	case *lnwire.ChannelReestablish, *lnwire.FundingLocked, *lnwire.Shutdown,
		*lnwire.UpdateFee, *lnwire.AnnounceSignatures, *lnwire.Pong, *lnwire.Ping:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) handleFundingLocked(m *lnwire.FundingLocked) {
	c := d.channel
	if c.side[Remote].fundingLocked || c.side[Local].shutdownSent {
		return
	}

	c.oldRemotePerCommit = c.remotePerCommit
	c.remotePerCommit = m.NextPerCommitmentPoint
	c.side[Remote].fundingLocked = true

	if err := d.master.Notify(GotFundingLocked{}); err != nil {
		d.fail(NewInternalError("master I/O error on got_funding_locked: %v", err))
		return
	}

	d.maybeSendAnnouncementSigs()
}

func (d *Dispatcher) handleUpdateAddHTLCWire(m *lnwire.UpdateAddHTLC) {
	if err := d.channel.handleUpdateAddHTLC(m, d.signer, d.onion); err != nil {
		d.fail(err)
		return
	}
	d.channel.pendingChanges = true
	d.channel.remoteChanges = true
}

func (d *Dispatcher) handleUpdateFee(m *lnwire.UpdateFee) {
	c := d.channel
	if c.Engine.IsInitiator() {
		d.fail(NewProtocolError("received update_fee as funder"))
		return
	}

	rate := btcutil.Amount(m.FeePerKw)
	if rate < c.feerateMin || rate > c.feerateMax {
		d.fail(NewProtocolError("update_fee %d outside allowed band [%d,%d]",
			m.FeePerKw, c.feerateMin, c.feerateMax))
		return
	}

	if err := c.Engine.ReceiveUpdateFee(rate); err != nil {
		d.fail(NewProtocolError("update_fee unaffordable: %v", err))
		return
	}
	c.lastRemoteFeerate = rate
	c.pendingChanges = true
	c.remoteChanges = true
}

func (d *Dispatcher) handleUpdateFulfill(m *lnwire.UpdateFufillHTLC) {
	if err := d.channel.Engine.ReceiveHTLCSettle(m.PaymentPreimage, m.ID); err != nil {
		d.fail(NewProtocolError("update_fulfill_htlc rejected: %v", err))
		return
	}
	d.channel.remoteChanges = true
	d.channel.commitTimer.Arm()
}

func (d *Dispatcher) handleUpdateFail(m *lnwire.UpdateFailHTLC) {
	if err := d.channel.Engine.ReceiveFailHTLC(m.ID, m.Reason); err != nil {
		d.fail(NewProtocolError("update_fail_htlc rejected: %v", err))
		return
	}
	d.channel.remoteChanges = true
	d.channel.commitTimer.Arm()
}

func (d *Dispatcher) handleUpdateFailMalformed(m *lnwire.UpdateFailMalformedHTLC) {
	if m.FailureCode&lnwire.BadonionFlag == 0 {
		d.fail(NewProtocolError("update_fail_malformed_htlc missing BADONION bit"))
		return
	}
	code := coerceFailCode(m.FailureCode)

	if err := d.channel.Engine.ReceiveFailHTLC(m.ID, []byte{byte(code >> 8), byte(code)}); err != nil {
		d.fail(NewProtocolError("update_fail_malformed_htlc rejected: %v", err))
		return
	}
	d.channel.remoteChanges = true
	d.channel.commitTimer.Arm()
}

// fail records the terminal error, tells the peer, and notifies the master
// where applicable, per the error-kind dispositions of spec §7.
func (d *Dispatcher) fail(err error) {
	if d.fatal != nil {
		return
	}
	d.fatal = err

	if fb, ok := err.(*FallenBehindError); ok {
		_ = d.master.FailFallenBehind(fb.CommitPoint)
		_ = d.peer.Fail(d.channel.ChanID, err.Error())
		return
	}

	_ = d.peer.Fail(d.channel.ChanID, err.Error())
}
