package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
)

func TestCallSigningPayload(t *testing.T) {
	c := qt.New(t)

	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	agg := uint64(42)
	call := Call{
		AppID:        1015,
		Method:       MethodVerifyBallot,
		Sender:       common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		Target:       &target,
		NewAggregate: &agg,
	}
	p1, err := call.SigningPayload()
	c.Assert(err, qt.IsNil)
	p2, err := call.SigningPayload()
	c.Assert(err, qt.IsNil)
	c.Assert(p1, qt.DeepEquals, p2)

	agg2 := uint64(43)
	call.NewAggregate = &agg2
	p3, err := call.SigningPayload()
	c.Assert(err, qt.IsNil)
	c.Assert(p3, qt.Not(qt.DeepEquals), p1)
}

func TestCallMethodValid(t *testing.T) {
	c := qt.New(t)

	for _, m := range []CallMethod{MethodRegister, MethodCastBallot, MethodSetVerifier, MethodVerifyBallot} {
		c.Assert(m.Valid(), qt.IsTrue)
	}
	c.Assert(CallMethod("optin").Valid(), qt.IsFalse)
}

func TestBallotStatusLocalState(t *testing.T) {
	c := qt.New(t)

	for _, s := range []BallotStatus{BallotStatusUnset, BallotStatusPending, BallotStatusVerified} {
		v, ok := s.LocalStateValue()
		c.Assert(BallotStatusFromLocalState(v, ok), qt.Equals, s)
	}
	c.Assert(BallotStatus(9).String(), qt.Equals, "unknown(9)")
}
