package lnwallet

import (
	"github.com/roasbeef/btcd/btcec"
)

// ComputeCommitmentPoint derives the per-commitment point from a
// per-commitment secret. The per-commitment point is the public half of the
// secret and is handed to the remote party so they can derive the keys
// needed to build our next commitment transaction without ever seeing the
// secret itself.
func ComputeCommitmentPoint(revocationSecret []byte) *btcec.PublicKey {
	_, pubKey := btcec.PrivKeyFromBytes(btcec.S256(), revocationSecret)
	return pubKey
}
