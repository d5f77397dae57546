package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/algorank/algorank-node/accumulator"
	"github.com/algorank/algorank-node/db"
	"github.com/algorank/algorank-node/db/inmemory"
	"github.com/algorank/algorank-node/db/metadb"
	"github.com/algorank/algorank-node/db/pebbledb"
	"github.com/algorank/algorank-node/internal/testutil"
	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
)

var fixedNow = time.Unix(1700000000, 0)

func newTestRegistry(c *qt.C, opts ...Option) *Registry {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	r, err := New(metadb.NewTest(c), testutil.AppID, opts...)
	c.Assert(err, qt.IsNil)
	return r
}

func TestRegister(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)
	alice := testutil.DeterministicAddress(1)

	status, err := r.Register(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, StatusRegistered)
	_, err = r.Register(alice)
	c.Assert(err, qt.IsNil)

	rec, err := r.Voter(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Status, qt.Equals, types.BallotStatusUnset)
	c.Assert(rec.RegisteredAt, qt.Equals, fixedNow.Unix())

	gs, err := r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.RegisteredCount, qt.Equals, uint64(1))
	c.Assert(gs.AppID, qt.Equals, uint64(testutil.AppID))
}

func TestSubmitBallot(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)
	alice := testutil.DeterministicAddress(1)

	status, err := r.SubmitBallot(alice, []byte("bafkrei-first"))
	c.Assert(err, qt.ErrorIs, ErrNotRegistered)
	c.Assert(status, qt.Equals, StatusNotRegistered)

	_, err = r.Register(alice)
	c.Assert(err, qt.IsNil)

	_, err = r.SubmitBallot(alice, nil)
	c.Assert(err, qt.ErrorIs, ErrEmptyReference)

	status, err = r.SubmitBallot(alice, []byte("bafkrei-first"))
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, StatusBallotCast)

	// a second cast is rejected and the record keeps the first reference
	status, err = r.SubmitBallot(alice, []byte("bafkrei-second"))
	c.Assert(err, qt.ErrorIs, ErrAlreadySubmitted)
	c.Assert(status, qt.Equals, StatusAlreadySent)

	// the already-submitted guard wins over the empty reference check
	status, err = r.SubmitBallot(alice, nil)
	c.Assert(err, qt.ErrorIs, ErrAlreadySubmitted)
	c.Assert(status, qt.Equals, StatusAlreadySent)

	rec, err := r.Voter(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(string(rec.BallotRef), qt.Equals, "bafkrei-first")
	c.Assert(rec.Status, qt.Equals, types.BallotStatusPending)
	c.Assert(rec.SubmittedAt, qt.Equals, fixedNow.Unix())

	gs, err := r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.SubmittedCount, qt.Equals, uint64(1))
}

func TestVerifyBallotGuards(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)
	verifier := testutil.DeterministicAddress(100)
	mallory := testutil.DeterministicAddress(666)
	alice := testutil.DeterministicAddress(1)
	bob := testutil.DeterministicAddress(2)

	for _, voter := range []common.Address{alice, bob} {
		_, err := r.Register(voter)
		c.Assert(err, qt.IsNil)
	}
	_, err := r.SubmitBallot(alice, []byte("ref-alice"))
	c.Assert(err, qt.IsNil)

	// no verifier assigned yet
	status, err := r.VerifyBallot(verifier, alice, 42)
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)
	c.Assert(status, qt.Equals, StatusUnauthorized)

	status, err = r.AssignVerifier(verifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, StatusVerifierSet)

	status, err = r.VerifyBallot(mallory, alice, 42)
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)
	c.Assert(status, qt.Equals, StatusUnauthorized)

	// unauthorized takes precedence over missing submissions
	_, err = r.VerifyBallot(mallory, bob, 42)
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)

	status, err = r.VerifyBallot(verifier, bob, 42)
	c.Assert(err, qt.ErrorIs, ErrNoSubmission)
	c.Assert(status, qt.Equals, StatusNoSubmission)
	_, err = r.VerifyBallot(verifier, testutil.DeterministicAddress(3), 42)
	c.Assert(err, qt.ErrorIs, ErrNoSubmission)

	gs, err := r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.Aggregate, qt.Equals, uint64(0))

	status, err = r.VerifyBallot(verifier, alice, 42)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, StatusVerified)

	// a second verification changes nothing
	status, err = r.VerifyBallot(verifier, alice, 99)
	c.Assert(err, qt.ErrorIs, ErrAlreadyVerified)
	c.Assert(status, qt.Equals, StatusAlreadyVerified)

	gs, err = r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.Aggregate, qt.Equals, uint64(42))
	c.Assert(gs.VerifiedCount, qt.Equals, uint64(1))

	rec, err := r.Voter(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.Status, qt.Equals, types.BallotStatusVerified)
	c.Assert(rec.Contribution, qt.Equals, uint64(42))
	c.Assert(rec.VerifiedAt, qt.Equals, fixedNow.Unix())

	// a verified ballot cannot be replaced
	_, err = r.SubmitBallot(alice, []byte("ref-other"))
	c.Assert(err, qt.ErrorIs, ErrAlreadySubmitted)
}

func TestVerifierPolicyLocked(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)
	first := testutil.DeterministicAddress(100)
	second := testutil.DeterministicAddress(101)

	_, err := r.AssignVerifier(first)
	c.Assert(err, qt.IsNil)
	_, err = r.AssignVerifier(first)
	c.Assert(err, qt.IsNil)

	status, err := r.AssignVerifier(second)
	c.Assert(err, qt.ErrorIs, ErrVerifierLocked)
	c.Assert(status, qt.Equals, StatusVerifierLocked)

	gs, err := r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.Verifier, qt.Equals, types.VerifierAssignment{Mode: types.VerifierLocked, Identity: first})
}

func TestVerifierPolicyReassignable(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c, WithVerifierPolicy(VerifierPolicyReassignable))
	first := testutil.DeterministicAddress(100)
	second := testutil.DeterministicAddress(101)
	alice := testutil.DeterministicAddress(1)

	_, err := r.Register(alice)
	c.Assert(err, qt.IsNil)
	_, err = r.SubmitBallot(alice, []byte("ref"))
	c.Assert(err, qt.IsNil)

	_, err = r.AssignVerifier(first)
	c.Assert(err, qt.IsNil)
	_, err = r.AssignVerifier(second)
	c.Assert(err, qt.IsNil)

	gs, err := r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.Verifier, qt.Equals, types.VerifierAssignment{Mode: types.VerifierUnlocked, Identity: second})

	_, err = r.VerifyBallot(first, alice, 1)
	c.Assert(err, qt.ErrorIs, ErrUnauthorized)
	_, err = r.VerifyBallot(second, alice, 1)
	c.Assert(err, qt.IsNil)
}

func TestAggregateIndependentOfOrder(t *testing.T) {
	c := qt.New(t)
	verifier := testutil.DeterministicAddress(100)
	artifacts := map[common.Address]*types.ProofArtifact{
		testutil.DeterministicAddress(1): testutil.ValidArtifact("one"),
		testutil.DeterministicAddress(2): testutil.ValidArtifact("two"),
		testutil.DeterministicAddress(3): testutil.ValidArtifact("three"),
	}
	orders := [][]common.Address{
		{testutil.DeterministicAddress(1), testutil.DeterministicAddress(2), testutil.DeterministicAddress(3)},
		{testutil.DeterministicAddress(3), testutil.DeterministicAddress(1), testutil.DeterministicAddress(2)},
	}

	var aggregates []uint64
	for _, order := range orders {
		r := newTestRegistry(c)
		_, err := r.AssignVerifier(verifier)
		c.Assert(err, qt.IsNil)
		for voter := range artifacts {
			_, err := r.Register(voter)
			c.Assert(err, qt.IsNil)
			_, err = r.SubmitBallot(voter, []byte("ref"))
			c.Assert(err, qt.IsNil)
		}
		for _, voter := range order {
			gs, err := r.GlobalState()
			c.Assert(err, qt.IsNil)
			next := accumulator.CombineAggregate(gs.Aggregate, accumulator.Digest(artifacts[voter]))
			_, err = r.VerifyBallot(verifier, voter, next)
			c.Assert(err, qt.IsNil)
		}
		gs, err := r.GlobalState()
		c.Assert(err, qt.IsNil)
		aggregates = append(aggregates, gs.Aggregate)
	}
	c.Assert(aggregates[0], qt.Equals, aggregates[1])

	var digests []uint64
	for _, a := range artifacts {
		digests = append(digests, accumulator.Digest(a))
	}
	c.Assert(aggregates[0], qt.Equals, accumulator.Sum(digests...))
}

func TestListVoters(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)

	voters, next, err := r.ListVoters("", 10)
	c.Assert(err, qt.IsNil)
	c.Assert(voters, qt.HasLen, 0)
	c.Assert(next, qt.Equals, "")

	for i := uint64(1); i <= 7; i++ {
		_, err := r.Register(testutil.DeterministicAddress(i))
		c.Assert(err, qt.IsNil)
	}

	var all []common.Address
	cursor := ""
	pages := 0
	for {
		page, next, err := r.ListVoters(cursor, 3)
		c.Assert(err, qt.IsNil)
		c.Assert(len(page) <= 3, qt.IsTrue)
		all = append(all, page...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	c.Assert(pages, qt.Equals, 3)
	c.Assert(all, qt.HasLen, 7)
	for i := 1; i < len(all); i++ {
		c.Assert(all[i-1].Cmp(all[i]) < 0, qt.IsTrue)
	}

	// exactly one page
	page, next, err := r.ListVoters("", 7)
	c.Assert(err, qt.IsNil)
	c.Assert(page, qt.HasLen, 7)
	c.Assert(next, qt.Equals, "")

	_, _, err = r.ListVoters("nope", 3)
	c.Assert(err, qt.ErrorIs, ErrInvalidCursor)
}

func TestKeyValueViews(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)
	verifier := testutil.DeterministicAddress(100)
	alice := testutil.DeterministicAddress(1)

	kv, registered, err := r.LocalState(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(registered, qt.IsFalse)
	c.Assert(kv, qt.HasLen, 0)

	_, err = r.Register(alice)
	c.Assert(err, qt.IsNil)
	kv, registered, err = r.LocalState(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(registered, qt.IsTrue)
	c.Assert(kv, qt.HasLen, 0)

	_, err = r.SubmitBallot(alice, []byte("bafkrei"))
	c.Assert(err, qt.IsNil)
	kv, _, err = r.LocalState(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(kv, qt.DeepEquals, types.KeyValues{
		types.KeyBallotRef: types.BytesValue([]byte("bafkrei")),
		types.KeyVerified:  types.UintValue(0),
	})

	gkv, err := r.GlobalKeyValues()
	c.Assert(err, qt.IsNil)
	c.Assert(gkv, qt.DeepEquals, types.KeyValues{types.KeyAggregate: types.UintValue(0)})

	_, err = r.AssignVerifier(verifier)
	c.Assert(err, qt.IsNil)
	_, err = r.VerifyBallot(verifier, alice, 7)
	c.Assert(err, qt.IsNil)

	kv, _, err = r.LocalState(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(kv[types.KeyVerified], qt.DeepEquals, types.UintValue(1))
	gkv, err = r.GlobalKeyValues()
	c.Assert(err, qt.IsNil)
	c.Assert(gkv, qt.DeepEquals, types.KeyValues{
		types.KeyAggregate:  types.UintValue(7),
		types.KeyVerifierPK: types.BytesValue(verifier.Bytes()),
	})
}

func TestExecute(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)
	verifier := testutil.DeterministicAddress(100)
	alice := testutil.DeterministicAddress(1)
	agg := uint64(5)

	calls := []struct {
		call   types.Call
		status string
	}{
		{types.Call{Method: types.MethodRegister, Sender: alice}, StatusRegistered},
		{types.Call{Method: types.MethodCastBallot, Sender: alice, Reference: "bafk"}, StatusBallotCast},
		{types.Call{Method: types.MethodSetVerifier, Sender: verifier}, StatusVerifierSet},
		{types.Call{Method: types.MethodVerifyBallot, Sender: verifier, Target: &alice, NewAggregate: &agg}, StatusVerified},
	}
	for _, tc := range calls {
		tc.call.AppID = testutil.AppID
		status, err := r.Execute(&tc.call)
		c.Assert(err, qt.IsNil, qt.Commentf("%s", tc.call.Method))
		c.Assert(status, qt.Equals, tc.status)
	}

	_, err := r.Execute(&types.Call{AppID: testutil.AppID, Method: types.MethodVerifyBallot, Sender: verifier})
	c.Assert(err, qt.ErrorIs, ErrInvalidCall)
	_, err = r.Execute(&types.Call{AppID: testutil.AppID, Method: "delete", Sender: verifier})
	c.Assert(err, qt.ErrorIs, ErrInvalidCall)
	_, err = r.Execute(&types.Call{AppID: 1, Method: types.MethodRegister, Sender: alice})
	c.Assert(err, qt.ErrorIs, ErrInvalidCall)
}

func TestGuardCodes(t *testing.T) {
	c := qt.New(t)

	for code, guard := range guardErrors {
		c.Assert(Code(fmt.Errorf("wrapped: %w", guard)), qt.Equals, code)
		c.Assert(ErrorFromCode(code), qt.Equals, guard)
		c.Assert(IsGuardError(guard), qt.IsTrue)
	}
	c.Assert(Code(db.ErrKeyNotFound), qt.Equals, "")
	c.Assert(ErrorFromCode("nope"), qt.IsNil)
}

func TestAppsShareDatabase(t *testing.T) {
	c := qt.New(t)
	database := metadb.NewTest(c)
	alice := testutil.DeterministicAddress(1)

	r1, err := New(database, 1)
	c.Assert(err, qt.IsNil)
	r2, err := New(database, 2)
	c.Assert(err, qt.IsNil)

	_, err = r1.Register(alice)
	c.Assert(err, qt.IsNil)
	_, registered, err := r2.LocalState(alice)
	c.Assert(err, qt.IsNil)
	c.Assert(registered, qt.IsFalse)
}

func TestReopen(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	verifier := testutil.DeterministicAddress(100)
	alice := testutil.DeterministicAddress(1)

	database, err := pebbledb.New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	r, err := New(database, testutil.AppID)
	c.Assert(err, qt.IsNil)
	_, err = r.Register(alice)
	c.Assert(err, qt.IsNil)
	_, err = r.SubmitBallot(alice, []byte("ref"))
	c.Assert(err, qt.IsNil)
	_, err = r.AssignVerifier(verifier)
	c.Assert(err, qt.IsNil)
	_, err = r.VerifyBallot(verifier, alice, 11)
	c.Assert(err, qt.IsNil)
	c.Assert(database.Close(), qt.IsNil)

	database, err = pebbledb.New(db.Options{Path: dir})
	c.Assert(err, qt.IsNil)
	defer database.Close()
	r, err = New(database, testutil.AppID)
	c.Assert(err, qt.IsNil)
	gs, err := r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.Aggregate, qt.Equals, uint64(11))
	c.Assert(gs.Verifier.Identity, qt.Equals, verifier)
	_, err = r.VerifyBallot(verifier, alice, 12)
	c.Assert(err, qt.ErrorIs, ErrAlreadyVerified)
}

func TestConcurrentSubmissions(t *testing.T) {
	c := qt.New(t)
	database, err := inmemory.New(db.Options{})
	c.Assert(err, qt.IsNil)
	r, err := New(database, testutil.AppID)
	c.Assert(err, qt.IsNil)

	const voters = 32
	var wg sync.WaitGroup
	for i := range voters {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			addr := testutil.DeterministicAddress(n)
			if _, err := r.Register(addr); err != nil {
				t.Error(err)
				return
			}
			if _, err := r.SubmitBallot(addr, []byte(fmt.Sprintf("ref-%d", n))); err != nil {
				t.Error(err)
			}
		}(uint64(i))
	}
	wg.Wait()

	gs, err := r.GlobalState()
	c.Assert(err, qt.IsNil)
	c.Assert(gs.RegisteredCount, qt.Equals, uint64(voters))
	c.Assert(gs.SubmittedCount, qt.Equals, uint64(voters))
}

func TestAuditAggregate(t *testing.T) {
	c := qt.New(t)
	r := newTestRegistry(c)
	verifier := testutil.DeterministicAddress(100)
	_, err := r.AssignVerifier(verifier)
	c.Assert(err, qt.IsNil)

	sum, ok, err := r.AuditAggregate()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(sum, qt.Equals, uint64(0))

	var digests []uint64
	for i := range uint64(3) {
		voter := testutil.DeterministicAddress(i + 1)
		_, err := r.Register(voter)
		c.Assert(err, qt.IsNil)
		_, err = r.SubmitBallot(voter, []byte(fmt.Sprintf("ref-%d", i)))
		c.Assert(err, qt.IsNil)
		d := accumulator.Digest(testutil.ValidArtifact(fmt.Sprint(i)))
		digests = append(digests, d)
		_, err = r.VerifyBallot(verifier, voter, accumulator.Sum(digests...))
		c.Assert(err, qt.IsNil)
	}
	// a pending ballot contributes nothing
	pending := testutil.DeterministicAddress(50)
	_, err = r.Register(pending)
	c.Assert(err, qt.IsNil)
	_, err = r.SubmitBallot(pending, []byte("ref-pending"))
	c.Assert(err, qt.IsNil)

	sum, ok, err = r.AuditAggregate()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(sum, qt.Equals, accumulator.Sum(digests...))

	// overwrite the aggregate behind the registry
	wTx := r.db.WriteTx()
	gs, err := getGlobal(wTx)
	c.Assert(err, qt.IsNil)
	gs.Aggregate++
	c.Assert(setGlobal(wTx, gs), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	_, ok, err = r.AuditAggregate()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}
