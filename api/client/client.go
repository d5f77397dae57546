// Package client is the HTTP client of the ledger API. Calls are signed with
// the client's Ethereum key and rejected calls are mapped back to the
// registry sentinel errors, so errors.Is works across the wire.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/algorank/algorank-node/api"
	"github.com/algorank/algorank-node/crypto/signatures/ethereum"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/registry"
	"github.com/algorank/algorank-node/types"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// APIError is returned when the ledger API answers with an error status.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// Client talks to the ledger API of one application.
type Client struct {
	base   *url.URL
	appID  uint64
	signer *ethereum.Signer
	http   *http.Client
}

// New returns a client for application appID served at baseURL. The signer
// authenticates application calls; it may be nil for read-only use.
func New(baseURL string, appID uint64, signer *ethereum.Signer) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ledger url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid ledger url %q: unsupported scheme", baseURL)
	}
	return &Client{
		base:   u,
		appID:  appID,
		signer: signer,
		http:   &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// Address returns the identity of the client signer.
func (c *Client) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// AppID returns the application the client is bound to.
func (c *Client) AppID() uint64 {
	return c.appID
}

// Ping checks that the ledger API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodGet, api.PingEndpoint, nil, nil)
	return err
}

// Register opts the client identity into the application.
func (c *Client) Register(ctx context.Context) (string, error) {
	return c.Call(ctx, &types.Call{Method: types.MethodRegister})
}

// CastBallot submits the ballot reference of the client identity.
func (c *Client) CastBallot(ctx context.Context, reference string) (string, error) {
	return c.Call(ctx, &types.Call{Method: types.MethodCastBallot, Reference: reference})
}

// SetVerifier asks the application to make the client identity its verifier.
func (c *Client) SetVerifier(ctx context.Context) (string, error) {
	return c.Call(ctx, &types.Call{Method: types.MethodSetVerifier})
}

// VerifyBallot marks the ballot of target as verified with the given new
// aggregate.
func (c *Client) VerifyBallot(ctx context.Context, target common.Address, newAggregate uint64) (string, error) {
	return c.Call(ctx, &types.Call{Method: types.MethodVerifyBallot, Target: &target, NewAggregate: &newAggregate})
}

// Call signs and submits an application call, filling in the application id
// and sender. A rejected call returns its status string together with the
// registry sentinel error of its code.
func (c *Client) Call(ctx context.Context, call *types.Call) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("client has no signer")
	}
	call.AppID = c.appID
	signed, err := c.signer.SignCall(*call)
	if err != nil {
		return "", fmt.Errorf("sign call: %w", err)
	}
	result := &types.CallResult{}
	if _, err := c.request(ctx, http.MethodPost, api.AppRoute(api.CallEndpoint, c.appID), signed, result); err != nil {
		return "", err
	}
	if result.OK {
		return result.Status, nil
	}
	if guard := registry.ErrorFromCode(result.Code); guard != nil {
		return result.Status, fmt.Errorf("%s: %w", call.Method, guard)
	}
	return result.Status, fmt.Errorf("%s rejected: %s (%s)", call.Method, result.Status, result.Code)
}

// ListAccounts returns a page of registered accounts starting after next.
// The returned cursor is empty on the last page.
func (c *Client) ListAccounts(ctx context.Context, next string, limit int) ([]common.Address, string, error) {
	q := url.Values{}
	if next != "" {
		q.Set(api.NextQueryParam, next)
	}
	if limit > 0 {
		q.Set(api.LimitQueryParam, strconv.Itoa(limit))
	}
	resp := &api.AccountsResponse{}
	if _, err := c.request(ctx, http.MethodGet, api.AppRoute(api.AccountsEndpoint, c.appID), nil, resp, q); err != nil {
		return nil, "", err
	}
	return resp.Accounts, resp.NextToken, nil
}

// LocalState returns the key-value state of account and whether it is
// registered.
func (c *Client) LocalState(ctx context.Context, account common.Address) (types.KeyValues, bool, error) {
	path := api.AppRoute(api.AccountEndpoint, c.appID, api.AddressURLParam, account.Hex())
	resp := &api.AccountResponse{}
	if _, err := c.request(ctx, http.MethodGet, path, nil, resp); err != nil {
		return nil, false, err
	}
	if resp.LocalState == nil {
		resp.LocalState = types.KeyValues{}
	}
	return resp.LocalState, resp.Registered, nil
}

// GlobalState returns the global key-value state of the application.
func (c *Client) GlobalState(ctx context.Context) (types.KeyValues, error) {
	resp := &api.AppStateResponse{}
	if _, err := c.request(ctx, http.MethodGet, api.AppRoute(api.StateEndpoint, c.appID), nil, resp); err != nil {
		return nil, err
	}
	if resp.GlobalState == nil {
		resp.GlobalState = types.KeyValues{}
	}
	return resp.GlobalState, nil
}

// request performs an HTTP request against path, JSON encoding body and
// decoding the answer into out when they are not nil.
func (c *Client) request(ctx context.Context, method, path string, body, out any, query ...url.Values) (int, error) {
	u := *c.base
	u.Path = u.Path + path
	if len(query) > 0 {
		u.RawQuery = query[0].Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var errBody struct {
			Code  int    `json:"code"`
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errBody) == nil && errBody.Code != 0 {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Error
		}
		return resp.StatusCode, apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
