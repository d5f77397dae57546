// Package ipfs fetches proof artifacts from an IPFS HTTP gateway. Requests are
// retried with a linear backoff on transient failures, references are
// validated as CIDs before any network call and raw-codec content is checked
// against its multihash.
package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/types"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/sethvargo/go-retry"
)

const (
	// DefaultGatewayURL is the public Pinata gateway.
	DefaultGatewayURL = "https://gateway.pinata.cloud"
	// DefaultMaxAttempts is the total number of requests per fetch.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is multiplied by the attempt number between retries.
	DefaultBaseDelay = 750 * time.Millisecond
	// DefaultMaxDelay caps the delay between retries.
	DefaultMaxDelay = 10 * time.Second
	// DefaultAttemptTimeout bounds every single request.
	DefaultAttemptTimeout = 20 * time.Second
	// DefaultMaxBodySize bounds the artifact size.
	DefaultMaxBodySize = 32 << 20

	tokenQueryParam = "pinataGatewayToken"
)

var errTooLarge = errors.New("artifact too large")

// retryableStatus lists the HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooEarly:            true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Config holds the gateway settings. Zero values take the defaults.
type Config struct {
	GatewayURL     string
	Token          string
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	MaxBodySize    int64
	HTTPClient     *http.Client
}

// Fetcher downloads content addressed artifacts from a gateway.
type Fetcher struct {
	base   *url.URL
	cfg    Config
	client *http.Client
}

// New returns a Fetcher for the given configuration.
func New(cfg Config) (*Fetcher, error) {
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.GatewayURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url %q: %w", cfg.GatewayURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid gateway url %q: unsupported scheme", cfg.GatewayURL)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{base: base, cfg: cfg, client: client}, nil
}

// backoff returns the retry policy of a single fetch: attempt*BaseDelay,
// capped at MaxDelay, for at most MaxAttempts requests.
func (f *Fetcher) backoff() retry.Backoff {
	attempt := 0
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * f.cfg.BaseDelay, false
	})
	return retry.WithMaxRetries(uint64(f.cfg.MaxAttempts-1), retry.WithCappedDuration(f.cfg.MaxDelay, linear))
}

// Fetch downloads the raw bytes behind reference. References are opaque
// gateway path segments; when one parses as a raw-codec CID the content is
// also checked against its multihash.
func (f *Fetcher) Fetch(ctx context.Context, reference string) ([]byte, error) {
	if err := checkReference(reference); err != nil {
		return nil, &FetchError{Kind: FetchErrorInvalidReference, Reference: reference, Err: err}
	}
	endpoint := f.endpoint(reference)

	attempts := 0
	var lastErr error
	var body []byte
	err := retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		attempts++
		data, status, err := f.get(ctx, endpoint)
		switch {
		case errors.Is(err, errTooLarge):
			return &FetchError{Kind: FetchErrorParse, Reference: reference, Attempts: attempts, Err: err}
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
		case status >= 200 && status < 300:
			body = data
			return nil
		case retryableStatus[status]:
			lastErr = fmt.Errorf("gateway returned status %d", status)
		default:
			return &FetchError{
				Kind:       FetchErrorStatus,
				Reference:  reference,
				StatusCode: status,
				Attempts:   attempts,
				Err:        fmt.Errorf("gateway returned status %d", status),
			}
		}
		log.Debugw("artifact fetch attempt failed",
			"reference", reference,
			"attempt", attempts,
			"error", lastErr.Error())
		return retry.RetryableError(lastErr)
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &FetchError{Kind: FetchErrorTransient, Reference: reference, Attempts: attempts, Err: lastErr}
	}
	if c, err := cid.Decode(reference); err == nil {
		if err := verifyContent(c, body); err != nil {
			return nil, &FetchError{Kind: FetchErrorIntegrity, Reference: reference, Attempts: attempts, Err: err}
		}
	}
	return body, nil
}

// FetchJSON downloads reference and decodes it as a proof artifact.
func (f *Fetcher) FetchJSON(ctx context.Context, reference string) (*types.ProofArtifact, error) {
	data, err := f.Fetch(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, &FetchError{Kind: FetchErrorParse, Reference: reference, Err: errors.New("content is not valid UTF-8")}
	}
	artifact := &types.ProofArtifact{}
	if err := json.Unmarshal(data, artifact); err != nil {
		return nil, &FetchError{Kind: FetchErrorParse, Reference: reference, Err: err}
	}
	return artifact, nil
}

// checkReference rejects references that cannot be used as a single path
// segment of the gateway URL.
func checkReference(reference string) error {
	switch {
	case reference == "", reference == ".", reference == "..":
		return fmt.Errorf("reference %q is not a path segment", reference)
	case strings.ContainsRune(reference, '/'):
		return errors.New("reference contains a slash")
	case strings.ContainsFunc(reference, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }):
		return errors.New("reference contains spaces or control characters")
	}
	return nil
}

func (f *Fetcher) endpoint(reference string) string {
	u := *f.base
	u.Path = u.Path + "/ipfs/" + reference
	if f.cfg.Token != "" {
		q := url.Values{}
		q.Set(tokenQueryParam, f.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// get performs a single request bounded by the attempt timeout.
func (f *Fetcher) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resp.StatusCode, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.cfg.MaxBodySize {
		return nil, resp.StatusCode, fmt.Errorf("%w: more than %d bytes", errTooLarge, f.cfg.MaxBodySize)
	}
	return data, resp.StatusCode, nil
}

// verifyContent checks raw-codec content against the CID multihash. Other
// codecs address a DAG whose root block is not the served file, so they are
// trusted to the gateway.
func verifyContent(c cid.Cid, data []byte) error {
	if c.Type() != cid.Raw {
		return nil
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return fmt.Errorf("decode multihash: %w", err)
	}
	sum, err := multihash.Sum(data, decoded.Code, decoded.Length)
	if err != nil {
		return fmt.Errorf("hash content: %w", err)
	}
	if !bytes.Equal(sum, c.Hash()) {
		return fmt.Errorf("content hash mismatch for %s", c)
	}
	return nil
}
