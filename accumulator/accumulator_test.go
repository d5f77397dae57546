package accumulator

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/algorank/algorank-node/types"
	qt "github.com/frankban/quicktest"
	"github.com/zeebo/blake3"
)

func artifact(ballot, perm, proof string) *types.ProofArtifact {
	return &types.ProofArtifact{
		CommittedBallot:      []byte(ballot),
		CommittedPermutation: []byte(perm),
		Proof:                []byte(proof),
	}
}

func TestDigestIsBlake3Prefix(t *testing.T) {
	c := qt.New(t)

	a := artifact("ballot", "perm", "proof")
	sum := blake3.Sum256([]byte("ballotpermproof"))
	c.Assert(Digest(a), qt.Equals, binary.BigEndian.Uint64(sum[:8]))
}

func TestDigestDeterministic(t *testing.T) {
	c := qt.New(t)

	a := artifact("b", "p", "x")
	c.Assert(Digest(a), qt.Equals, Digest(artifact("b", "p", "x")))
	// only the concatenation matters
	c.Assert(Digest(a), qt.Equals, Digest(artifact("", "bp", "x")))
	c.Assert(Digest(&types.ProofArtifact{}), qt.Equals, DigestParts())
}

func TestDigestSingleBitSensitivity(t *testing.T) {
	c := qt.New(t)

	proof := make([]byte, 64)
	base := DigestParts([]byte("ballot"), []byte("perm"), proof)
	for i := range proof {
		flipped := append([]byte{}, proof...)
		flipped[i] ^= 0x01
		c.Assert(DigestParts([]byte("ballot"), []byte("perm"), flipped), qt.Not(qt.Equals), base)
	}
}

func TestCombineCommutative(t *testing.T) {
	c := qt.New(t)

	d1 := Digest(artifact("one", "1", "p1"))
	d2 := Digest(artifact("two", "2", "p2"))
	d3 := Digest(artifact("three", "3", "p3"))

	a := CombineAggregate(CombineAggregate(CombineAggregate(0, d1), d2), d3)
	b := CombineAggregate(CombineAggregate(CombineAggregate(0, d3), d1), d2)
	c.Assert(a, qt.Equals, b)
	c.Assert(Sum(d2, d3, d1), qt.Equals, a)
}

func TestCombineWraps(t *testing.T) {
	c := qt.New(t)

	c.Assert(CombineAggregate(math.MaxUint64, 2), qt.Equals, uint64(1))
	c.Assert(Contribution(math.MaxUint64, 1), qt.Equals, uint64(2))
	c.Assert(Contribution(10, 25), qt.Equals, uint64(15))
}
