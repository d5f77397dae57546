package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/algorank/algorank-node/types"
)

// Gateway is a fake IPFS HTTP gateway serving GET /ipfs/{ref}.
type Gateway struct {
	*httptest.Server

	token    string
	mu       sync.Mutex
	content  map[string][]byte
	failures map[string]*failure
	requests map[string]int
}

type failure struct {
	status    int
	remaining int // negative means forever
}

// NewGateway starts a fake gateway. If token is not empty every request must
// carry it in the pinataGatewayToken query parameter.
func NewGateway(tb testing.TB, token string) *Gateway {
	g := &Gateway{
		token:    token,
		content:  make(map[string][]byte),
		failures: make(map[string]*failure),
		requests: make(map[string]int),
	}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serve))
	tb.Cleanup(g.Close)
	return g
}

// Put stores data under its raw CID and returns the CID.
func (g *Gateway) Put(data []byte) string {
	ref := RawCID(data)
	g.PutAt(ref, data)
	return ref
}

// PutAt stores data under an arbitrary reference.
func (g *Gateway) PutAt(ref string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.content[ref] = data
}

// PutArtifact stores the JSON encoding of a and returns its CID.
func (g *Gateway) PutArtifact(tb testing.TB, a *types.ProofArtifact) string {
	return g.Put(ArtifactJSON(tb, a))
}

// Fail makes the next times requests for ref answer with status. A negative
// times fails forever.
func (g *Gateway) Fail(ref string, status, times int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[ref] = &failure{status: status, remaining: times}
}

// Requests returns how many requests were received for ref.
func (g *Gateway) Requests(ref string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[ref]
}

// TotalRequests returns how many requests were received overall.
func (g *Gateway) TotalRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.requests {
		total += n
	}
	return total
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	ref, ok := strings.CutPrefix(r.URL.Path, "/ipfs/")
	if r.Method != http.MethodGet || !ok {
		http.NotFound(w, r)
		return
	}
	g.mu.Lock()
	g.requests[ref]++
	data, found := g.content[ref]
	status := 0
	if f := g.failures[ref]; f != nil && f.remaining != 0 {
		status = f.status
		if f.remaining > 0 {
			f.remaining--
		}
	}
	g.mu.Unlock()

	switch {
	case g.token != "" && r.URL.Query().Get("pinataGatewayToken") != g.token:
		http.Error(w, "invalid gateway token", http.StatusUnauthorized)
	case status != 0:
		http.Error(w, http.StatusText(status), status)
	case !found:
		http.NotFound(w, r)
	default:
		_, _ = w.Write(data)
	}
}
