package ethereum

import (
	"errors"
	"fmt"

	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
)

// ErrSenderMismatch is returned when a call is signed by an identity other
// than its declared sender.
var ErrSenderMismatch = errors.New("call not signed by its sender")

// SignCall sets the signer as the sender of call and signs its deterministic
// encoding.
func (s *Signer) SignCall(call types.Call) (*types.SignedCall, error) {
	call.Sender = s.Address()
	payload, err := call.SigningPayload()
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}
	sig, err := s.Sign(payload)
	if err != nil {
		return nil, err
	}
	return &types.SignedCall{Call: call, Signature: sig.Bytes()}, nil
}

// CallSender authenticates a signed call and returns its sender.
func CallSender(sc *types.SignedCall) (common.Address, error) {
	payload, err := sc.Call.SigningPayload()
	if err != nil {
		return common.Address{}, fmt.Errorf("encode call: %w", err)
	}
	sig, err := New(sc.Signature)
	if err != nil {
		return common.Address{}, err
	}
	signer, err := sig.Signer(payload)
	if err != nil {
		return common.Address{}, err
	}
	if signer != sc.Call.Sender {
		return common.Address{}, fmt.Errorf("%w: signed by %s, sender is %s",
			ErrSenderMismatch, signer.Hex(), sc.Call.Sender.Hex())
	}
	return signer, nil
}
