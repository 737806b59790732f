package channeld

import (
	"crypto/sha256"

	"github.com/roasbeef/btcd/btcec"
	"github.com/roasbeef/btcd/wire"
	"github.com/roasbeef/btcutil"

	"github.com/lightningnetwork/channeld/lnwallet"
	"github.com/lightningnetwork/channeld/lnwire"
)

var (
	testLocalNodePriv, testLocalNodeKey   = btcec.PrivKeyFromBytes(btcec.S256(), []byte{0x01, 0x01, 0x01, 0x01})
	_, testRemoteNodeKey                  = btcec.PrivKeyFromBytes(btcec.S256(), []byte{0x02, 0x02, 0x02, 0x02})

	testSig, _ = testLocalNodePriv.Sign([]byte("test"))
)

// fakeEngine is a hand-rolled CommitmentEngine double: it tracks just enough
// state (an outstanding-signature counter and a feerate) to exercise the
// dispatcher's guard clauses without standing up a full channeldb-backed
// lnwallet.LightningChannel.
type fakeEngine struct {
	isInitiator    bool
	feeRate        btcutil.Amount
	nextHTLCIndex  uint64
	signCalls      int
	receiveCalls   int
	revokeCalls    int
	failNextSign   error
	failNextRecv   error
	chanPoint      wire.OutPoint

	// remoteBalance/remoteReserve back RemoteBalance; defaulted generous
	// enough that assertCanAffordFeerate passes unless a test narrows them.
	remoteBalance lnwire.MilliSatoshi
	remoteReserve btcutil.Amount

	// maxFeerate backs ApproxMaxFeerate; zero means "no clamp" per that
	// method's documented zero-value convention.
	maxFeerate btcutil.Amount
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		feeRate:       253,
		remoteBalance: lnwire.MilliSatoshi(1000000000),
		remoteReserve: btcutil.Amount(1000),
	}
}

func (f *fakeEngine) SignNextCommitment() (*btcec.Signature, []*btcec.Signature, error) {
	f.signCalls++
	if f.failNextSign != nil {
		err := f.failNextSign
		f.failNextSign = nil
		return nil, nil, err
	}
	return testSig, nil, nil
}

func (f *fakeEngine) ReceiveNewCommitment(commitSig *btcec.Signature, htlcSigs []*btcec.Signature) error {
	f.receiveCalls++
	if f.failNextRecv != nil {
		err := f.failNextRecv
		f.failNextRecv = nil
		return err
	}
	return nil
}

func (f *fakeEngine) RevokeCurrentCommitment() (*lnwire.RevokeAndAck, error) {
	f.revokeCalls++
	return &lnwire.RevokeAndAck{}, nil
}

func (f *fakeEngine) ReceiveRevocation(rev *lnwire.RevokeAndAck) ([]*lnwallet.PaymentDescriptor, error) {
	return nil, nil
}

func (f *fakeEngine) AddHTLC(htlc *lnwire.UpdateAddHTLC) (uint64, error) {
	id := f.nextHTLCIndex
	f.nextHTLCIndex++
	return id, nil
}

func (f *fakeEngine) ReceiveHTLC(htlc *lnwire.UpdateAddHTLC) (uint64, error) {
	id := f.nextHTLCIndex
	f.nextHTLCIndex++
	return id, nil
}

func (f *fakeEngine) SettleHTLC(preimage [32]byte, htlcIndex uint64) error { return nil }
func (f *fakeEngine) ReceiveHTLCSettle(preimage [32]byte, htlcIndex uint64) error {
	return nil
}
func (f *fakeEngine) FailHTLC(htlcIndex uint64, reason []byte) error { return nil }
func (f *fakeEngine) MalformedFailHTLC(htlcIndex uint64, failCode lnwire.FailCode,
	shaOnionBlob [sha256.Size]byte) error {
	return nil
}
func (f *fakeEngine) ReceiveFailHTLC(htlcIndex uint64, reason []byte) error { return nil }

func (f *fakeEngine) UpdateFee(feePerKw btcutil.Amount) error {
	f.feeRate = feePerKw
	return nil
}
func (f *fakeEngine) ReceiveUpdateFee(feePerKw btcutil.Amount) error {
	f.feeRate = feePerKw
	return nil
}

func (f *fakeEngine) NextRevocationKey() (*btcec.PublicKey, error) {
	return testRemoteNodeKey, nil
}
func (f *fakeEngine) InitNextRevocation(revKey *btcec.PublicKey) error { return nil }

func (f *fakeEngine) ChanSyncMsg() (*lnwire.ChannelReestablish, error) {
	return &lnwire.ChannelReestablish{}, nil
}

func (f *fakeEngine) ChannelPoint() *wire.OutPoint { return &f.chanPoint }
func (f *fakeEngine) IsInitiator() bool            { return f.isInitiator }
func (f *fakeEngine) CommitFeeRate() btcutil.Amount { return f.feeRate }
func (f *fakeEngine) AvailableBalance() lnwire.MilliSatoshi {
	return lnwire.MilliSatoshi(1000000)
}

func (f *fakeEngine) RemoteBalance() (lnwire.MilliSatoshi, btcutil.Amount) {
	return f.remoteBalance, f.remoteReserve
}

func (f *fakeEngine) CalcFee(feePerKw uint64) uint64 {
	return (feePerKw * 724) / 1000
}

func (f *fakeEngine) ApproxMaxFeerate() btcutil.Amount {
	return f.maxFeerate
}

// fakeMaster is a MasterLink double that records every call made on it and
// never blocks, so tests can drive the dispatcher synchronously.
type fakeMaster struct {
	commitSigsSent []*SendingCommitSig
	commitSigsGot  []*GotCommitSig
	revokesGot     []*GotRevoke
	notifications  []MasterNotification
	fallenBehind   *btcec.PublicKey
	shutdownDone   bool
}

func newFakeMaster() *fakeMaster { return &fakeMaster{} }

func (m *fakeMaster) Init() (*ChannelInit, error) { return nil, nil }

func (m *fakeMaster) SendingCommitSig(msg *SendingCommitSig) error {
	m.commitSigsSent = append(m.commitSigsSent, msg)
	return nil
}

func (m *fakeMaster) GotCommitSig(msg *GotCommitSig) error {
	m.commitSigsGot = append(m.commitSigsGot, msg)
	return nil
}

func (m *fakeMaster) GotRevoke(msg *GotRevoke) error {
	m.revokesGot = append(m.revokesGot, msg)
	return nil
}

func (m *fakeMaster) Notify(msg MasterNotification) error {
	m.notifications = append(m.notifications, msg)
	return nil
}

func (m *fakeMaster) FailFallenBehind(point *btcec.PublicKey) error {
	m.fallenBehind = point
	return nil
}

func (m *fakeMaster) ShutdownComplete() error {
	m.shutdownDone = true
	return nil
}

func (m *fakeMaster) Recv() (interface{}, error) {
	return nil, nil
}

func (m *fakeMaster) Reply(req *OfferHTLC, reply *OfferHTLCReply) error { return nil }

// fakePeer is a PeerLink double recording every message sent, and the reason
// given to a Fail call, if any.
type fakePeer struct {
	sent      []lnwire.Message
	failedWith string
}

func newFakePeer() *fakePeer { return &fakePeer{} }

func (p *fakePeer) SendMessage(msg lnwire.Message) error {
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePeer) Fail(chanID lnwire.ChannelID, reason string) error {
	p.failedWith = reason
	return nil
}

// fakeGossip is a GossipLink double.
type fakeGossip struct {
	announced *lnwire.ChannelAnnouncement
	added     bool
}

func newFakeGossip() *fakeGossip { return &fakeGossip{} }

func (g *fakeGossip) GetChannelUpdate(short lnwire.ShortChannelID) (*lnwire.ChannelUpdate, error) {
	return &lnwire.ChannelUpdate{}, nil
}

func (g *fakeGossip) LocalAddChannel(chanPoint wire.OutPoint, short lnwire.ShortChannelID) error {
	g.added = true
	return nil
}

func (g *fakeGossip) LocalChannelUpdate(update *lnwire.ChannelUpdate) error { return nil }

func (g *fakeGossip) AnnounceChannel(ann *lnwire.ChannelAnnouncement) error {
	g.announced = ann
	return nil
}

// fakeSigner is a SignerClient double whose CheckFutureSecret answer is
// controlled by the test.
type fakeSigner struct {
	futureSecretOk bool
}

func newFakeSigner() *fakeSigner { return &fakeSigner{} }

func (s *fakeSigner) ECDH(ephemeral *btcec.PublicKey) ([32]byte, error) {
	return [32]byte{}, nil
}

func (s *fakeSigner) CommitPoint(index uint64) (*btcec.PublicKey, *[32]byte, error) {
	return testRemoteNodeKey, nil, nil
}

func (s *fakeSigner) AnnouncementSigs(digest [32]byte) (*btcec.Signature, *btcec.Signature, error) {
	return testSig, testSig, nil
}

func (s *fakeSigner) CheckFutureSecret(index uint64, secret [32]byte) (bool, error) {
	return s.futureSecretOk, nil
}

// newTestDispatcher wires a fresh Channel backed by fakeEngine to fake
// collaborators, returning the pieces a test needs to drive and inspect it.
func newTestDispatcher(t testingT) (*Dispatcher, *Channel, *fakeEngine, *fakeMaster, *fakePeer) {
	engine := newFakeEngine()
	cfg := DefaultConfig()
	c := NewChannel(engine, lnwire.ChannelID{0x01}, testRemoteNodeKey, testLocalNodeKey, true, cfg)
	c.side[Local].fundingLocked = true
	c.side[Remote].fundingLocked = true

	master := newFakeMaster()
	peer := newFakePeer()
	gossip := newFakeGossip()
	signer := newFakeSigner()

	d := NewDispatcher(c, master, peer, gossip, signer, nil, cfg,
		make(chan lnwire.Message, 1), make(chan error, 1))

	return d, c, engine, master, peer
}

// testingT is the minimal subset of *testing.T this file's helpers need,
// avoiding an import of "testing" outside of the _test.go files that use it
// directly.
type testingT interface {
	Helper()
}
