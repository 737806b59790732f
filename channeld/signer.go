package channeld

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	"github.com/roasbeef/btcd/btcec"

	"github.com/lightningnetwork/channeld/lnwallet"
)

// SignerClient is the isolated signing oracle of spec §6. It holds the
// channel's long-term keys and answers sign requests; it never reveals a
// private key and, per spec §5, every call is strictly synchronous — no
// interleaving with other traffic is possible while the dispatcher is
// waiting on it.
type SignerClient interface {
	// ECDH returns the shared secret derived from our node key and the
	// remote ephemeral key found in an onion packet, used to decrypt a
	// single hop of an update_add_htlc's onion (spec §4.2).
	ECDH(ephemeral *btcec.PublicKey) ([32]byte, error)

	// CommitPoint returns the per-commitment point for commitment
	// height index, and, when index >= 2, the secret for index-2 — the
	// coincidence spec §4.3 calls out explicitly.
	CommitPoint(index uint64) (point *btcec.PublicKey, pastSecret *[32]byte, err error)

	// AnnouncementSigs signs the supplied announcement digest (as built
	// by announcementDigest) with both the node key and the funding
	// bitcoin key.
	AnnouncementSigs(digest [32]byte) (nodeSig, bitcoinSig *btcec.Signature, err error)

	// CheckFutureSecret reports whether secret is the correct
	// per-commitment secret for commitment height index, used to
	// validate a peer's data-loss-protect claim in channel_reestablish
	// (spec §4.4).
	CheckFutureSecret(index uint64, secret [32]byte) (bool, error)
}

// localSigner is the reference SignerClient used when no out-of-process
// oracle is configured — e.g. in tests, or a single-process deployment. It
// derives per-commitment points the same way lnwallet.ComputeCommitmentPoint
// does, keeping it consistent with the commitment engine's own view of the
// channel, and holds the node and funding keys directly rather than
// proxying them to a separate process.
type localSigner struct {
	nodeKey    *btcec.PrivateKey
	fundingKey *btcec.PrivateKey

	// commitSeed derives a per-height secret as sha256(seed || index),
	// a toy stand-in for the production shachain kept by the
	// channel's RevocationProducer. It exists only so this package has
	// a self-contained SignerClient to exercise in tests; the real
	// revocation secrets always come from lnwallet's own producer.
	commitSeed [32]byte
}

// NewLocalSigner builds a SignerClient backed by in-process keys. Production
// deployments should instead dial an actual out-of-process oracle that
// implements SignerClient over its own transport.
func NewLocalSigner(nodeKey, fundingKey *btcec.PrivateKey, seed [32]byte) SignerClient {
	return &localSigner{
		nodeKey:    nodeKey,
		fundingKey: fundingKey,
		commitSeed: seed,
	}
}

func (s *localSigner) ECDH(ephemeral *btcec.PublicKey) ([32]byte, error) {
	var secret [32]byte

	x, _ := btcec.S256().ScalarMult(ephemeral.X, ephemeral.Y, s.nodeKey.D.Bytes())
	secret = sha256.Sum256(x.Bytes())

	return secret, nil
}

func (s *localSigner) secretAt(index uint64) [32]byte {
	var buf [40]byte
	copy(buf[:32], s.commitSeed[:])
	buf[32] = byte(index >> 56)
	buf[33] = byte(index >> 48)
	buf[34] = byte(index >> 40)
	buf[35] = byte(index >> 32)
	buf[36] = byte(index >> 24)
	buf[37] = byte(index >> 16)
	buf[38] = byte(index >> 8)
	buf[39] = byte(index)
	return sha256.Sum256(buf[:])
}

func (s *localSigner) CommitPoint(index uint64) (*btcec.PublicKey, *[32]byte, error) {
	secret := s.secretAt(index)
	point := lnwallet.ComputeCommitmentPoint(secret[:])

	var pastSecret *[32]byte
	if index >= 2 {
		past := s.secretAt(index - 2)
		pastSecret = &past
	}

	return point, pastSecret, nil
}

func (s *localSigner) AnnouncementSigs(digest [32]byte) (*btcec.Signature, *btcec.Signature, error) {
	nodeSig, err := s.nodeKey.Sign(digest[:])
	if err != nil {
		return nil, nil, err
	}
	btcSig, err := s.fundingKey.Sign(digest[:])
	if err != nil {
		return nil, nil, err
	}
	return nodeSig, btcSig, nil
}

func (s *localSigner) CheckFutureSecret(index uint64, secret [32]byte) (bool, error) {
	want := s.secretAt(index)
	return want == secret, nil
}

// remoteSigner is a SignerClient that proxies every call to an isolated
// signing process over fd6, using the same length-prefixed gob framing as
// the master and gossip links. This is the production configuration: the
// channel's private keys never enter this process's address space.
type remoteSigner struct {
	rw io.ReadWriteCloser
	mu sync.Mutex
}

// NewRemoteSigner wraps rw as a SignerClient backed by an out-of-process
// signing oracle.
func NewRemoteSigner(rw io.ReadWriteCloser) SignerClient {
	return &remoteSigner{rw: rw}
}

type signerEnvelope struct {
	Kind    string
	Payload []byte
}

func (s *remoteSigner) call(kind string, request, reply interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reqBuf bytes.Buffer
	if err := gob.NewEncoder(&reqBuf).Encode(request); err != nil {
		return fmt.Errorf("encode signer request %s: %w", kind, err)
	}
	env := signerEnvelope{Kind: kind, Payload: reqBuf.Bytes()}

	var full bytes.Buffer
	if err := gob.NewEncoder(&full).Encode(env); err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(full.Len()))
	if _, err := s.rw.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := s.rw.Write(full.Bytes()); err != nil {
		return err
	}

	if _, err := io.ReadFull(s.rw, lenPrefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(s.rw, body); err != nil {
		return err
	}
	var respEnv signerEnvelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&respEnv); err != nil {
		return err
	}
	if respEnv.Kind != kind+"_reply" {
		return fmt.Errorf("signer replied with unexpected kind %q for %s", respEnv.Kind, kind)
	}
	return gob.NewDecoder(bytes.NewReader(respEnv.Payload)).Decode(reply)
}

func (s *remoteSigner) ECDH(ephemeral *btcec.PublicKey) ([32]byte, error) {
	var reply [32]byte
	err := s.call("ecdh", ephemeral.SerializeCompressed(), &reply)
	return reply, err
}

func (s *remoteSigner) CommitPoint(index uint64) (*btcec.PublicKey, *[32]byte, error) {
	var reply struct {
		Point      []byte
		PastSecret *[32]byte
	}
	if err := s.call("commit_point", index, &reply); err != nil {
		return nil, nil, err
	}
	point, err := btcec.ParsePubKey(reply.Point, btcec.S256())
	if err != nil {
		return nil, nil, err
	}
	return point, reply.PastSecret, nil
}

func (s *remoteSigner) AnnouncementSigs(digest [32]byte) (*btcec.Signature, *btcec.Signature, error) {
	var reply struct {
		NodeSig    []byte
		BitcoinSig []byte
	}
	if err := s.call("announcement_sigs", digest, &reply); err != nil {
		return nil, nil, err
	}
	nodeSig, err := btcec.ParseSignature(reply.NodeSig, btcec.S256())
	if err != nil {
		return nil, nil, err
	}
	btcSig, err := btcec.ParseSignature(reply.BitcoinSig, btcec.S256())
	if err != nil {
		return nil, nil, err
	}
	return nodeSig, btcSig, nil
}

func (s *remoteSigner) CheckFutureSecret(index uint64, secret [32]byte) (bool, error) {
	var reply bool
	req := struct {
		Index  uint64
		Secret [32]byte
	}{index, secret}
	err := s.call("check_future_secret", req, &reply)
	return reply, err
}
