// Package testutil holds deterministic fixtures and in-process fakes of the
// IPFS gateway and the proof verification service.
package testutil

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/algorank/algorank-node/crypto/signatures/ethereum"
	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const (
	// AppID is the application id used by tests.
	AppID = 1015

	validProofPrefix   = "valid-proof:"
	invalidProofPrefix = "invalid-proof:"
)

// DeterministicAddress returns an address derived from n.
func DeterministicAddress(n uint64) common.Address {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)

	prefix := []byte("deterministic-address:")
	h := crypto.Keccak256(append(prefix, b[:]...))
	return common.BytesToAddress(h[12:])
}

// DeterministicSigner returns a signer derived from n.
func DeterministicSigner(n uint64) *ethereum.Signer {
	s, err := ethereum.NewSignerFromSeed([]byte(fmt.Sprintf("deterministic-signer:%d", n)))
	if err != nil {
		panic(err)
	}
	return s
}

// ValidArtifact returns a proof artifact that the fake verifier accepts.
func ValidArtifact(seed string) *types.ProofArtifact {
	return artifact(seed, validProofPrefix)
}

// InvalidArtifact returns a proof artifact that the fake verifier rejects.
func InvalidArtifact(seed string) *types.ProofArtifact {
	return artifact(seed, invalidProofPrefix)
}

func artifact(seed, proofPrefix string) *types.ProofArtifact {
	return &types.ProofArtifact{
		Log2N:                3,
		CommittedBallot:      []byte("ballot:" + seed),
		CommittedPermutation: []byte("permutation:" + seed),
		Proof:                []byte(proofPrefix + seed),
	}
}

// ArtifactJSON encodes a proof artifact the way it is pinned to IPFS.
func ArtifactJSON(tb testing.TB, a *types.ProofArtifact) []byte {
	tb.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		tb.Fatalf("marshal artifact: %v", err)
	}
	return data
}

// RawCID returns the CIDv1 (raw codec, sha2-256) of data.
func RawCID(data []byte) string {
	return newCID(cid.Raw, data)
}

// DagCID returns a CIDv1 with the dag-pb codec over data. Gateways serve the
// file behind it, so its content is not checked against the hash.
func DagCID(data []byte) string {
	return newCID(cid.DagProtobuf, data)
}

func newCID(codec uint64, data []byte) string {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(codec, mh).String()
}
