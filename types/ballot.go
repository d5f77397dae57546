package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// BallotStatus is the verification state of a voter's ballot.
type BallotStatus uint8

const (
	// BallotStatusUnset means the voter has not submitted a ballot yet.
	BallotStatusUnset BallotStatus = iota
	// BallotStatusPending means a ballot reference was submitted and waits
	// for the oracle.
	BallotStatusPending
	// BallotStatusVerified means the oracle verified the ballot proof and
	// folded its digest into the aggregate. Terminal.
	BallotStatusVerified
)

var ballotStatusNames = map[BallotStatus]string{
	BallotStatusUnset:    "unset",
	BallotStatusPending:  "pending",
	BallotStatusVerified: "verified",
}

func (s BallotStatus) String() string {
	if name, ok := ballotStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// LocalStateValue returns the value stored under the "verified" local state
// key: absent for Unset, 0 for Pending and 1 for Verified.
func (s BallotStatus) LocalStateValue() (uint64, bool) {
	switch s {
	case BallotStatusPending:
		return 0, true
	case BallotStatusVerified:
		return 1, true
	default:
		return 0, false
	}
}

// BallotStatusFromLocalState is the inverse of LocalStateValue.
func BallotStatusFromLocalState(value uint64, present bool) BallotStatus {
	switch {
	case !present:
		return BallotStatusUnset
	case value == 1:
		return BallotStatusVerified
	default:
		return BallotStatusPending
	}
}

// VoterRecord is the registry entry of a registered identity.
type VoterRecord struct {
	Address      common.Address `json:"address" cbor:"0,keyasint"`
	BallotRef    []byte         `json:"ballotRef,omitempty" cbor:"1,keyasint,omitempty"`
	Status       BallotStatus   `json:"status" cbor:"2,keyasint"`
	RegisteredAt int64          `json:"registeredAt" cbor:"3,keyasint"`
	SubmittedAt  int64          `json:"submittedAt,omitempty" cbor:"4,keyasint,omitempty"`
	VerifiedAt   int64          `json:"verifiedAt,omitempty" cbor:"5,keyasint,omitempty"`
	// Contribution is newAggregate-oldAggregate (mod 2^64) observed when the
	// ballot was verified. Informational only.
	Contribution uint64 `json:"contribution,omitempty" cbor:"6,keyasint,omitempty"`
}

// HasSubmission reports whether a ballot reference has been submitted.
func (r *VoterRecord) HasSubmission() bool {
	return len(r.BallotRef) > 0
}
