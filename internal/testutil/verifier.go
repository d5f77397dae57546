package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/algorank/algorank-node/types"
)

// VerifyRequest is the body received by the fake verifier.
type VerifyRequest struct {
	Proof     types.ProofArtifact `json:"proof"`
	SetupSeed uint64              `json:"setup_seed"`
	ProofSeed uint64              `json:"proof_seed"`
}

// Verifier is a fake proof verification service serving POST /verify. By
// default it accepts the proofs built by ValidArtifact and rejects any other.
type Verifier struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	requests []VerifyRequest
}

// NewVerifier starts a fake verification service.
func NewVerifier(tb testing.TB) *Verifier {
	v := &Verifier{}
	v.Server = httptest.NewServer(http.HandlerFunc(v.serve))
	tb.Cleanup(v.Close)
	return v
}

// SetStatus makes every following request answer with the given HTTP status.
// Zero restores normal operation.
func (v *Verifier) SetStatus(status int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = status
}

// Requests returns a copy of the received requests.
func (v *Verifier) Requests() []VerifyRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]VerifyRequest{}, v.requests...)
}

func (v *Verifier) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/verify" {
		http.NotFound(w, r)
		return
	}
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	v.mu.Lock()
	v.requests = append(v.requests, req)
	status := v.status
	v.mu.Unlock()

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	resp := map[string]any{"ok": true}
	if !bytes.HasPrefix(req.Proof.Proof, []byte(validProofPrefix)) {
		resp = map[string]any{"ok": false, "error": "proof verification failed"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
