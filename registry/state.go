package registry

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/algorank/algorank-node/accumulator"
	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidCursor is returned by ListVoters for a malformed cursor.
var ErrInvalidCursor = errors.New("invalid cursor")

// GlobalState returns the application global state.
func (r *Registry) GlobalState() (*types.GlobalState, error) {
	gs, err := getGlobal(r.db)
	if err != nil {
		return nil, fmt.Errorf("get global state: %w", err)
	}
	return gs, nil
}

// Voter returns the record of identity, or an error wrapping
// db.ErrKeyNotFound if it never registered.
func (r *Registry) Voter(identity common.Address) (*types.VoterRecord, error) {
	rec, err := getVoter(r.db, identity)
	if err != nil {
		return nil, fmt.Errorf("get voter %s: %w", identity.Hex(), err)
	}
	return rec, nil
}

// ListVoters returns up to limit registered addresses in lexicographic order,
// starting after cursor (an address in hex, empty for the first page). The
// returned cursor is empty when there are no more voters.
func (r *Registry) ListVoters(cursor string, limit int) ([]common.Address, string, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	var after []byte
	if cursor != "" {
		if !common.IsHexAddress(cursor) {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
		}
		after = common.HexToAddress(cursor).Bytes()
	}
	var (
		voters []common.Address
		more   bool
	)
	if err := r.db.Iterate(voterPrefix, func(key, _ []byte) bool {
		if after != nil && bytes.Compare(key, after) <= 0 {
			return true
		}
		if len(voters) == limit {
			more = true
			return false
		}
		voters = append(voters, common.BytesToAddress(key))
		return true
	}); err != nil {
		return nil, "", fmt.Errorf("iterate voters: %w", err)
	}
	next := ""
	if more {
		next = voters[len(voters)-1].Hex()
	}
	return voters, next, nil
}

// LocalState returns the key-value view of a voter: ballot_ipfs and verified
// once a ballot was submitted, nothing before. The second value is false if
// identity never registered.
func (r *Registry) LocalState(identity common.Address) (types.KeyValues, bool, error) {
	rec, err := r.Voter(identity)
	if err != nil {
		if isNotFound(err) {
			return types.KeyValues{}, false, nil
		}
		return nil, false, err
	}
	return LocalKeyValues(rec), true, nil
}

// LocalKeyValues converts a voter record to its key-value view.
func LocalKeyValues(rec *types.VoterRecord) types.KeyValues {
	kv := types.KeyValues{}
	if rec.HasSubmission() {
		kv[types.KeyBallotRef] = types.BytesValue(rec.BallotRef)
	}
	if v, ok := rec.Status.LocalStateValue(); ok {
		kv[types.KeyVerified] = types.UintValue(v)
	}
	return kv
}

// GlobalKeyValues returns the key-value view of the global state:
// commitment_sum always, verifier_pk once a verifier is assigned.
func (r *Registry) GlobalKeyValues() (types.KeyValues, error) {
	gs, err := r.GlobalState()
	if err != nil {
		return nil, err
	}
	kv := types.KeyValues{
		types.KeyAggregate: types.UintValue(gs.Aggregate),
	}
	if gs.Verifier.Assigned() {
		kv[types.KeyVerifierPK] = types.BytesValue(gs.Verifier.Identity.Bytes())
	}
	return kv, nil
}

// AuditAggregate sums the contributions recorded on verified ballots and
// reports whether the sum matches the stored aggregate. A mismatch means the
// records or the global state were written outside the registry.
func (r *Registry) AuditAggregate() (uint64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gs, err := getGlobal(r.db)
	if err != nil {
		return 0, false, fmt.Errorf("get global state: %w", err)
	}
	var (
		contributions []uint64
		decodeErr     error
	)
	if err := r.db.Iterate(voterPrefix, func(key, value []byte) bool {
		rec := &types.VoterRecord{}
		if decodeErr = decode(value, rec); decodeErr != nil {
			decodeErr = fmt.Errorf("decode voter %x: %w", key, decodeErr)
			return false
		}
		if rec.Status == types.BallotStatusVerified {
			contributions = append(contributions, rec.Contribution)
		}
		return true
	}); err != nil {
		return 0, false, fmt.Errorf("iterate voters: %w", err)
	}
	if decodeErr != nil {
		return 0, false, decodeErr
	}
	sum := accumulator.Sum(contributions...)
	return sum, sum == gs.Aggregate, nil
}
