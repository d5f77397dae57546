package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/algorank/algorank-node/crypto/signatures/ethereum"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/registry"
	"github.com/algorank/algorank-node/types"
)

// call handles POST /apps/{appId}/call. The call is authenticated by the
// sender's signature over its CBOR encoding and executed on the registry.
// Rejected calls are answered with a CallResult with OK false.
func (a *API) call(w http.ResponseWriter, r *http.Request) {
	signed := &types.SignedCall{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(signed); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	call := &signed.Call
	if call.AppID != a.registry.AppID() {
		ErrAppMismatch.Withf("call for app %d", call.AppID).Write(w)
		return
	}
	if !call.Method.Valid() {
		ErrUnknownMethod.With(string(call.Method)).Write(w)
		return
	}
	if _, err := ethereum.CallSender(signed); err != nil {
		ErrInvalidSignature.WithErr(err).Write(w)
		return
	}

	status, err := a.registry.Execute(call)
	switch {
	case err == nil:
		httpWriteJSON(w, &types.CallResult{OK: true, Status: status})
	case errors.Is(err, registry.ErrInvalidCall):
		ErrInvalidCall.WithErr(err).Write(w)
	case registry.IsGuardError(err):
		log.Debugw("application call rejected",
			"method", string(call.Method),
			"sender", call.Sender.Hex(),
			"status", status)
		httpWriteJSON(w, &types.CallResult{OK: false, Status: status, Code: registry.Code(err)})
	default:
		log.Errorw(err, "application call failed", "method", string(call.Method))
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
