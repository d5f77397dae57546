/*
Package registry implements the ballot registry application: the ledger state
machine that records each voter's ballot reference, the verification status of
every ballot and the global aggregate of verified ballot digests.

# Storage Organization

Every application lives under its own namespace (a/<appID>/) of the shared
database:

  - g/state : GlobalState (aggregate, verifier assignment, counters)
  - v/      : voter address (20 bytes) → VoterRecord

Records are CBOR encoded. Voter records are never removed and a verified
record never changes again.

# Calls

All mutations are serialized by a mutex and applied in a single write
transaction. Guard failures return a status string plus one of the sentinel
errors below and write nothing.
*/
package registry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/algorank/algorank-node/accumulator"
	"github.com/algorank/algorank-node/db"
	"github.com/algorank/algorank-node/db/prefixeddb"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrAlreadySubmitted = errors.New("ballot already submitted")
	ErrNoSubmission     = errors.New("account has not cast a ballot")
	ErrAlreadyVerified  = errors.New("ballot already verified")
	ErrUnauthorized     = errors.New("caller is not the verifier")
	ErrNotRegistered    = errors.New("account is not registered")
	ErrVerifierLocked   = errors.New("verifier already assigned")
	ErrEmptyReference   = errors.New("empty ballot reference")

	appPrefix    = []byte("a/")
	globalKey    = []byte("g/state")
	voterPrefix  = []byte("v/")
	defaultLimit = 100
	maxLimit     = 1000
)

// Status strings returned by the application calls.
const (
	StatusRegistered        = "Account registered!"
	StatusBallotCast        = "Ballot cast!"
	StatusAlreadySent       = "Ballot already sent!"
	StatusNotRegistered     = "Account is not registered!"
	StatusEmptyReference    = "Ballot reference is empty!"
	StatusNoSubmission      = "Account has not cast a ballot!"
	StatusAlreadyVerified   = "This ballot is already verified!"
	StatusVerified          = "Verified ballot!"
	StatusUnauthorized      = "Caller is not the verifier!"
	StatusVerifierSet       = "Verifier set!"
	StatusVerifierLocked    = "Verifier already set!"
	statusUnexpectedFailure = "Internal error!"
)

// VerifierPolicy decides how set_verifier behaves once a verifier exists.
type VerifierPolicy int

const (
	// VerifierPolicyLocked assigns the verifier once. Repeated calls by the
	// same identity succeed, calls by any other identity fail.
	VerifierPolicyLocked VerifierPolicy = iota
	// VerifierPolicyReassignable lets every set_verifier call replace the
	// verifier with the caller.
	VerifierPolicyReassignable
)

// Option configures a Registry.
type Option func(*Registry)

// WithVerifierPolicy sets the verifier assignment policy.
func WithVerifierPolicy(p VerifierPolicy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry is a ballot registry application bound to a database.
type Registry struct {
	appID  uint64
	db     db.Database
	policy VerifierPolicy
	now    func() time.Time
	mu     sync.Mutex
}

// New opens the registry application appID stored in database, creating its
// global state if it does not exist yet.
func New(database db.Database, appID uint64, opts ...Option) (*Registry, error) {
	if database == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	r := &Registry{
		appID:  appID,
		db:     prefixeddb.NewPrefixedDatabase(database, AppPrefix(appID)),
		policy: VerifierPolicyLocked,
		now:    time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if _, err := r.GlobalState(); errors.Is(err, db.ErrKeyNotFound) {
		wTx := r.db.WriteTx()
		defer wTx.Discard()
		if err := setGlobal(wTx, &types.GlobalState{AppID: appID}); err != nil {
			return nil, err
		}
		if err := wTx.Commit(); err != nil {
			return nil, fmt.Errorf("commit global state: %w", err)
		}
		log.Infow("registry application created", "appID", appID)
	} else if err != nil {
		return nil, err
	}
	return r, nil
}

// AppPrefix returns the database namespace of application appID.
func AppPrefix(appID uint64) []byte {
	p := make([]byte, 0, len(appPrefix)+9)
	p = append(p, appPrefix...)
	p = binary.BigEndian.AppendUint64(p, appID)
	return append(p, '/')
}

// AppID returns the application id.
func (r *Registry) AppID() uint64 {
	return r.appID
}

// Register opts identity into the application. It is idempotent.
func (r *Registry) Register(identity common.Address) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wTx := r.db.WriteTx()
	defer wTx.Discard()
	if _, err := getVoter(wTx, identity); err == nil {
		return StatusRegistered, nil
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return statusUnexpectedFailure, err
	}
	gs, err := getGlobal(wTx)
	if err != nil {
		return statusUnexpectedFailure, err
	}
	rec := &types.VoterRecord{Address: identity, RegisteredAt: r.now().Unix()}
	gs.RegisteredCount++
	if err := setVoter(wTx, rec); err != nil {
		return statusUnexpectedFailure, err
	}
	if err := setGlobal(wTx, gs); err != nil {
		return statusUnexpectedFailure, err
	}
	if err := wTx.Commit(); err != nil {
		return statusUnexpectedFailure, fmt.Errorf("commit register: %w", err)
	}
	log.Debugw("voter registered", "appID", r.appID, "voter", identity.Hex())
	return StatusRegistered, nil
}

// SubmitBallot records the ballot reference of identity. A reference can
// only be submitted once.
func (r *Registry) SubmitBallot(identity common.Address, reference []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wTx := r.db.WriteTx()
	defer wTx.Discard()
	rec, err := getVoter(wTx, identity)
	if errors.Is(err, db.ErrKeyNotFound) {
		return StatusNotRegistered, ErrNotRegistered
	} else if err != nil {
		return statusUnexpectedFailure, err
	}
	if rec.Status != types.BallotStatusUnset {
		return StatusAlreadySent, ErrAlreadySubmitted
	}
	if len(reference) == 0 {
		return StatusEmptyReference, ErrEmptyReference
	}
	gs, err := getGlobal(wTx)
	if err != nil {
		return statusUnexpectedFailure, err
	}
	rec.BallotRef = append([]byte(nil), reference...)
	rec.Status = types.BallotStatusPending
	rec.SubmittedAt = r.now().Unix()
	gs.SubmittedCount++
	if err := setVoter(wTx, rec); err != nil {
		return statusUnexpectedFailure, err
	}
	if err := setGlobal(wTx, gs); err != nil {
		return statusUnexpectedFailure, err
	}
	if err := wTx.Commit(); err != nil {
		return statusUnexpectedFailure, fmt.Errorf("commit ballot: %w", err)
	}
	log.Infow("ballot submitted", "appID", r.appID, "voter", identity.Hex(), "reference", string(reference))
	return StatusBallotCast, nil
}

// AssignVerifier makes caller the verifier, following the registry policy.
func (r *Registry) AssignVerifier(caller common.Address) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wTx := r.db.WriteTx()
	defer wTx.Discard()
	gs, err := getGlobal(wTx)
	if err != nil {
		return statusUnexpectedFailure, err
	}
	switch r.policy {
	case VerifierPolicyReassignable:
		gs.Verifier = types.VerifierAssignment{Mode: types.VerifierUnlocked, Identity: caller}
	default:
		if gs.Verifier.Assigned() {
			if gs.Verifier.Identity == caller {
				return StatusVerifierSet, nil
			}
			return StatusVerifierLocked, ErrVerifierLocked
		}
		gs.Verifier = types.VerifierAssignment{Mode: types.VerifierLocked, Identity: caller}
	}
	if err := setGlobal(wTx, gs); err != nil {
		return statusUnexpectedFailure, err
	}
	if err := wTx.Commit(); err != nil {
		return statusUnexpectedFailure, fmt.Errorf("commit verifier: %w", err)
	}
	log.Infow("verifier assigned", "appID", r.appID, "verifier", caller.Hex(), "mode", gs.Verifier.Mode.String())
	return StatusVerifierSet, nil
}

// VerifyBallot marks the ballot of target as verified and stores
// newAggregate as the global aggregate. Only the verifier may call it. The
// aggregate is taken verbatim; the implied contribution is recorded on the
// voter record for auditing.
func (r *Registry) VerifyBallot(caller, target common.Address, newAggregate uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wTx := r.db.WriteTx()
	defer wTx.Discard()
	gs, err := getGlobal(wTx)
	if err != nil {
		return statusUnexpectedFailure, err
	}
	if !gs.Verifier.Authorizes(caller) {
		return StatusUnauthorized, ErrUnauthorized
	}
	rec, err := getVoter(wTx, target)
	if errors.Is(err, db.ErrKeyNotFound) {
		return StatusNoSubmission, ErrNoSubmission
	} else if err != nil {
		return statusUnexpectedFailure, err
	}
	switch rec.Status {
	case types.BallotStatusUnset:
		return StatusNoSubmission, ErrNoSubmission
	case types.BallotStatusVerified:
		return StatusAlreadyVerified, ErrAlreadyVerified
	}
	rec.Contribution = accumulator.Contribution(gs.Aggregate, newAggregate)
	rec.Status = types.BallotStatusVerified
	rec.VerifiedAt = r.now().Unix()
	gs.Aggregate = newAggregate
	gs.VerifiedCount++
	if err := setVoter(wTx, rec); err != nil {
		return statusUnexpectedFailure, err
	}
	if err := setGlobal(wTx, gs); err != nil {
		return statusUnexpectedFailure, err
	}
	if err := wTx.Commit(); err != nil {
		return statusUnexpectedFailure, fmt.Errorf("commit verification: %w", err)
	}
	log.Infow("ballot verified",
		"appID", r.appID,
		"voter", target.Hex(),
		"aggregate", newAggregate,
		"contribution", rec.Contribution)
	return StatusVerified, nil
}

func voterKey(identity common.Address) []byte {
	return append(append([]byte{}, voterPrefix...), identity.Bytes()...)
}

func getVoter(r db.Reader, identity common.Address) (*types.VoterRecord, error) {
	data, err := r.Get(voterKey(identity))
	if err != nil {
		return nil, err
	}
	rec := &types.VoterRecord{}
	if err := decode(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func setVoter(wTx db.WriteTx, rec *types.VoterRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return wTx.Set(voterKey(rec.Address), data)
}

func getGlobal(r db.Reader) (*types.GlobalState, error) {
	data, err := r.Get(globalKey)
	if err != nil {
		return nil, err
	}
	gs := &types.GlobalState{}
	if err := decode(data, gs); err != nil {
		return nil, err
	}
	return gs, nil
}

func setGlobal(wTx db.WriteTx, gs *types.GlobalState) error {
	data, err := encode(gs)
	if err != nil {
		return err
	}
	return wTx.Set(globalKey, data)
}
