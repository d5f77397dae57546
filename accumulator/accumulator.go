// Package accumulator derives the 64-bit digest of a proof artifact and folds
// digests into the registry aggregate. Folding is addition modulo 2^64, so the
// aggregate does not depend on the order in which ballots are verified.
package accumulator

import (
	"encoding/binary"

	"github.com/algorank/algorank-node/types"
	"github.com/zeebo/blake3"
)

// DigestSize is the number of bytes read from the BLAKE3 output stream.
const DigestSize = 8

// Digest returns the first 8 bytes of the BLAKE3 extendable output over
// committed_ballot || committed_permutation || proof, read big-endian.
func Digest(artifact *types.ProofArtifact) uint64 {
	return DigestParts(artifact.CommittedBallot, artifact.CommittedPermutation, artifact.Proof)
}

// DigestParts hashes the concatenation of parts like Digest does.
func DigestParts(parts ...[]byte) uint64 {
	h := blake3.New()
	for _, p := range parts {
		// blake3 hasher writes never fail
		_, _ = h.Write(p)
	}
	var out [DigestSize]byte
	_, _ = h.Digest().Read(out[:])
	return binary.BigEndian.Uint64(out[:])
}

// CombineAggregate folds digest into old, wrapping modulo 2^64.
func CombineAggregate(old, digest uint64) uint64 {
	return old + digest
}

// Sum folds all digests into a zero aggregate.
func Sum(digests ...uint64) uint64 {
	var agg uint64
	for _, d := range digests {
		agg = CombineAggregate(agg, d)
	}
	return agg
}

// Contribution returns the delta between two aggregates modulo 2^64, which is
// the digest that turned from into to.
func Contribution(from, to uint64) uint64 {
	return to - from
}
