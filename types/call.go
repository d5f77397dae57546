package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

// CallMethod names a registry application method.
type CallMethod string

const (
	MethodRegister     CallMethod = "register"
	MethodCastBallot   CallMethod = "cast_ballot"
	MethodSetVerifier  CallMethod = "set_verifier"
	MethodVerifyBallot CallMethod = "verify_ballot"
)

// Valid reports whether m is a known method.
func (m CallMethod) Valid() bool {
	switch m {
	case MethodRegister, MethodCastBallot, MethodSetVerifier, MethodVerifyBallot:
		return true
	}
	return false
}

// Call is an application call issued by Sender. Reference is used by
// cast_ballot, Target and NewAggregate by verify_ballot.
type Call struct {
	AppID        uint64          `json:"appId" cbor:"0,keyasint"`
	Method       CallMethod      `json:"method" cbor:"1,keyasint"`
	Sender       common.Address  `json:"sender" cbor:"2,keyasint"`
	Reference    string          `json:"reference,omitempty" cbor:"3,keyasint,omitempty"`
	Target       *common.Address `json:"target,omitempty" cbor:"4,keyasint,omitempty"`
	NewAggregate *uint64         `json:"newAggregate,omitempty" cbor:"5,keyasint,omitempty"`
}

var callEncMode cbor.EncMode

func init() {
	var err error
	callEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %v", err))
	}
}

// SigningPayload returns the deterministic CBOR encoding of the call, which is
// the message signed by the sender.
func (c *Call) SigningPayload() ([]byte, error) {
	return callEncMode.Marshal(c)
}

// SignedCall is a call plus the sender's Ethereum personal-message signature
// over Call.SigningPayload.
type SignedCall struct {
	Call      Call     `json:"call"`
	Signature HexBytes `json:"signature"`
}

// CallResult is the outcome of an application call. Guard failures are
// reported with OK false, the contract status string and a machine code.
type CallResult struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
}

// StateValueType distinguishes byte and integer state values.
type StateValueType string

const (
	StateValueBytes StateValueType = "bytes"
	StateValueUint  StateValueType = "uint"
)

// StateValue is a typed value of the application key-value state.
type StateValue struct {
	Type  StateValueType `json:"type"`
	Bytes []byte         `json:"bytes,omitempty"`
	Uint  uint64         `json:"uint,omitempty"`
}

// BytesValue builds a byte state value.
func BytesValue(b []byte) StateValue {
	return StateValue{Type: StateValueBytes, Bytes: b}
}

// UintValue builds an integer state value.
func UintValue(v uint64) StateValue {
	return StateValue{Type: StateValueUint, Uint: v}
}

// KeyValues is a key-value state view, keyed by the state key name.
type KeyValues map[string]StateValue

// State keys exposed by the registry application.
const (
	KeyBallotRef  = "ballot_ipfs"
	KeyVerified   = "verified"
	KeyAggregate  = "commitment_sum"
	KeyVerifierPK = "verifier_pk"
)
