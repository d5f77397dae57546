package registry

import (
	"errors"
	"fmt"

	"github.com/algorank/algorank-node/types"
)

// ErrInvalidCall is returned by Execute for calls missing required arguments
// or naming an unknown method.
var ErrInvalidCall = errors.New("invalid call")

// Execute dispatches an authenticated call to the application method it
// names. The caller is call.Sender.
func (r *Registry) Execute(call *types.Call) (string, error) {
	if call.AppID != r.appID {
		return "", fmt.Errorf("%w: call for app %d sent to app %d", ErrInvalidCall, call.AppID, r.appID)
	}
	switch call.Method {
	case types.MethodRegister:
		return r.Register(call.Sender)
	case types.MethodCastBallot:
		return r.SubmitBallot(call.Sender, []byte(call.Reference))
	case types.MethodSetVerifier:
		return r.AssignVerifier(call.Sender)
	case types.MethodVerifyBallot:
		if call.Target == nil || call.NewAggregate == nil {
			return "", fmt.Errorf("%w: verify_ballot requires target and newAggregate", ErrInvalidCall)
		}
		return r.VerifyBallot(call.Sender, *call.Target, *call.NewAggregate)
	default:
		return "", fmt.Errorf("%w: unknown method %q", ErrInvalidCall, call.Method)
	}
}
