package ipfs

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/algorank/algorank-node/internal/testutil"
	qt "github.com/frankban/quicktest"
)

func newTestFetcher(c *qt.C, gw *testutil.Gateway, token string) *Fetcher {
	f, err := New(Config{
		GatewayURL:  gw.URL,
		Token:       token,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
	c.Assert(err, qt.IsNil)
	return f
}

func TestFetchJSON(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "secret")
	f := newTestFetcher(c, gw, "secret")

	want := testutil.ValidArtifact("alice")
	ref := gw.PutArtifact(t, want)

	got, err := f.FetchJSON(context.Background(), ref)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)
	c.Assert(gw.Requests(ref), qt.Equals, 1)
}

func TestFetchMissingToken(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "secret")
	f := newTestFetcher(c, gw, "")

	ref := gw.Put([]byte("{}"))
	_, err := f.Fetch(context.Background(), ref)
	var fe *FetchError
	c.Assert(errors.As(err, &fe), qt.IsTrue)
	c.Assert(fe.Kind, qt.Equals, FetchErrorStatus)
	c.Assert(fe.StatusCode, qt.Equals, http.StatusUnauthorized)
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f := newTestFetcher(c, gw, "")

	ref := gw.PutArtifact(t, testutil.ValidArtifact("bob"))
	gw.Fail(ref, http.StatusServiceUnavailable, -1)

	_, err := f.FetchJSON(context.Background(), ref)
	var fe *FetchError
	c.Assert(errors.As(err, &fe), qt.IsTrue)
	c.Assert(fe.Kind, qt.Equals, FetchErrorTransient)
	c.Assert(fe.Terminal(), qt.IsFalse)
	c.Assert(fe.Attempts, qt.Equals, 3)
	c.Assert(gw.Requests(ref), qt.Equals, 3)
	c.Assert(IsTerminal(err), qt.IsFalse)
}

func TestFetchRecoversAfterTransientStatus(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f := newTestFetcher(c, gw, "")

	ref := gw.PutArtifact(t, testutil.ValidArtifact("carol"))
	gw.Fail(ref, http.StatusTooManyRequests, 2)

	_, err := f.FetchJSON(context.Background(), ref)
	c.Assert(err, qt.IsNil)
	c.Assert(gw.Requests(ref), qt.Equals, 3)
}

func TestFetchTerminalStatus(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f := newTestFetcher(c, gw, "")

	ref := testutil.RawCID([]byte("never pinned"))
	_, err := f.Fetch(context.Background(), ref)
	var fe *FetchError
	c.Assert(errors.As(err, &fe), qt.IsTrue)
	c.Assert(fe.Kind, qt.Equals, FetchErrorStatus)
	c.Assert(fe.StatusCode, qt.Equals, http.StatusNotFound)
	c.Assert(fe.Terminal(), qt.IsTrue)
	c.Assert(gw.Requests(ref), qt.Equals, 1)
}

func TestFetchInvalidReference(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f := newTestFetcher(c, gw, "")

	for _, ref := range []string{"", "..", "a/b", "cid A", "cid\nA"} {
		_, err := f.Fetch(context.Background(), ref)
		var fe *FetchError
		c.Assert(errors.As(err, &fe), qt.IsTrue, qt.Commentf("reference %q", ref))
		c.Assert(fe.Kind, qt.Equals, FetchErrorInvalidReference)
		c.Assert(IsTerminal(err), qt.IsTrue)
	}
	c.Assert(gw.TotalRequests(), qt.Equals, 0)
}

func TestFetchOpaqueReference(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f := newTestFetcher(c, gw, "")

	gw.PutAt("cidA", []byte("not hashed"))
	data, err := f.Fetch(context.Background(), "cidA")
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "not hashed")
	c.Assert(gw.Requests("cidA"), qt.Equals, 1)
}

func TestFetchIntegrity(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f := newTestFetcher(c, gw, "")

	ref := testutil.RawCID([]byte("original"))
	gw.PutAt(ref, []byte("tampered"))
	_, err := f.Fetch(context.Background(), ref)
	var fe *FetchError
	c.Assert(errors.As(err, &fe), qt.IsTrue)
	c.Assert(fe.Kind, qt.Equals, FetchErrorIntegrity)

	// dag-pb references are not checked
	dag := testutil.DagCID([]byte("original"))
	gw.PutAt(dag, []byte("served file"))
	data, err := f.Fetch(context.Background(), dag)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "served file")
}

func TestFetchJSONParseErrors(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f := newTestFetcher(c, gw, "")

	for name, doc := range map[string][]byte{
		"not json":      []byte("hello"),
		"missing proof": []byte(`{"committed_ballot":"AQ==","committed_permutation":"AQ=="}`),
		"bad utf8":      {0xff, 0xfe, '{', '}'},
	} {
		ref := gw.Put(doc)
		_, err := f.FetchJSON(context.Background(), ref)
		var fe *FetchError
		c.Assert(errors.As(err, &fe), qt.IsTrue, qt.Commentf(name))
		c.Assert(fe.Kind, qt.Equals, FetchErrorParse, qt.Commentf(name))
		c.Assert(fe.Terminal(), qt.IsTrue)
	}
}

func TestFetchContextCanceled(t *testing.T) {
	c := qt.New(t)
	gw := testutil.NewGateway(t, "")
	f, err := New(Config{GatewayURL: gw.URL, BaseDelay: time.Hour})
	c.Assert(err, qt.IsNil)

	ref := gw.Put([]byte("x"))
	gw.Fail(ref, http.StatusBadGateway, -1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, ref)
	c.Assert(errors.Is(err, context.DeadlineExceeded), qt.IsTrue)
	c.Assert(gw.Requests(ref), qt.Equals, 1)
}

func TestBackoffIsLinearAndCapped(t *testing.T) {
	c := qt.New(t)

	f, err := New(Config{
		GatewayURL:  "http://127.0.0.1:1",
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    3 * time.Second,
	})
	c.Assert(err, qt.IsNil)

	b := f.backoff()
	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}
	c.Assert(delays, qt.DeepEquals, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second})
}

func TestNewRejectsBadGateway(t *testing.T) {
	c := qt.New(t)

	_, err := New(Config{GatewayURL: "ftp://example.com"})
	c.Assert(err, qt.IsNotNil)
}
