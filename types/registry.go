package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// VerifierMode tags the state of the verifier assignment.
type VerifierMode uint8

const (
	// VerifierUnassigned means no identity may verify ballots yet.
	VerifierUnassigned VerifierMode = iota
	// VerifierUnlocked means a verifier is set and any identity may replace
	// it by calling set_verifier again.
	VerifierUnlocked
	// VerifierLocked means a verifier is set and cannot be replaced.
	VerifierLocked
)

func (m VerifierMode) String() string {
	switch m {
	case VerifierUnassigned:
		return "unassigned"
	case VerifierUnlocked:
		return "unlocked"
	case VerifierLocked:
		return "locked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// VerifierAssignment is the tagged verifier configuration of the registry.
// Identity is meaningful only when Mode is not VerifierUnassigned.
type VerifierAssignment struct {
	Mode     VerifierMode   `json:"mode" cbor:"0,keyasint"`
	Identity common.Address `json:"identity" cbor:"1,keyasint"`
}

// Assigned reports whether a verifier identity has been set.
func (v VerifierAssignment) Assigned() bool {
	return v.Mode != VerifierUnassigned
}

// Authorizes reports whether caller is the assigned verifier.
func (v VerifierAssignment) Authorizes(caller common.Address) bool {
	return v.Assigned() && v.Identity == caller
}

// GlobalState is the singleton state of a registry application.
type GlobalState struct {
	AppID           uint64             `json:"appId" cbor:"0,keyasint"`
	Aggregate       uint64             `json:"aggregate" cbor:"1,keyasint"`
	Verifier        VerifierAssignment `json:"verifier" cbor:"2,keyasint"`
	RegisteredCount uint64             `json:"registeredCount" cbor:"3,keyasint"`
	SubmittedCount  uint64             `json:"submittedCount" cbor:"4,keyasint"`
	VerifiedCount   uint64             `json:"verifiedCount" cbor:"5,keyasint"`
}
