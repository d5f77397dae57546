// Package verifier is the client of the proof verification service. A
// verification either accepts or rejects the artifact: transport failures,
// non 2xx statuses and malformed answers all count as a rejection.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/types"
)

const (
	// DefaultURL is the verification service address.
	DefaultURL = "http://127.0.0.1:8000"
	// DefaultSetupSeed is the seed of the proving setup.
	DefaultSetupSeed = 42
	// DefaultProofSeed is the seed of the proof transcript.
	DefaultProofSeed = 7
	// DefaultTimeout bounds a verification request.
	DefaultTimeout = 60 * time.Second

	verifyPath      = "/verify"
	maxResponseSize = 1 << 20
)

// Request is the body of a verification call.
type Request struct {
	Proof     *types.ProofArtifact `json:"proof"`
	SetupSeed uint64               `json:"setup_seed"`
	ProofSeed uint64               `json:"proof_seed"`
}

// Response is the answer of the verification service.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a verification. Unavailable is set when the
// service could not judge the proof (transport error or non 2xx status); the
// proof is then rejected as well.
type Result struct {
	Accepted    bool
	Message     string
	Unavailable bool
}

// Client talks to a verification service.
type Client struct {
	endpoint string
	client   *http.Client
}

// New returns a client for the service at baseURL. A nil httpClient uses one
// with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid verifier url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid verifier url %q: unsupported scheme", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{endpoint: u.String() + verifyPath, client: httpClient}, nil
}

// VerifyArtifact submits artifact for verification with the given seeds.
func (c *Client) VerifyArtifact(ctx context.Context, artifact *types.ProofArtifact, setupSeed, proofSeed uint64) Result {
	body, err := json.Marshal(&Request{Proof: artifact, SetupSeed: setupSeed, ProofSeed: proofSeed})
	if err != nil {
		return Result{Message: fmt.Sprintf("encode request: %v", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Message: fmt.Sprintf("build request: %v", err), Unavailable: true}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		log.Warnw("verification service unreachable", "endpoint", c.endpoint, "error", err.Error())
		return Result{Message: err.Error(), Unavailable: true}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Result{Message: fmt.Sprintf("read response: %v", err), Unavailable: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Message:     fmt.Sprintf("verification service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			Unavailable: true,
		}
	}
	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{Message: fmt.Sprintf("malformed verification response: %v", err)}
	}
	return Result{Accepted: out.OK, Message: out.Error}
}
