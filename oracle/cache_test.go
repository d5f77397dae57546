package oracle

import (
	"testing"

	"github.com/algorank/algorank-node/internal/testutil"
	qt "github.com/frankban/quicktest"
)

func TestParseCachePolicy(t *testing.T) {
	c := qt.New(t)
	for in, want := range map[string]CachePolicy{
		"":         CachePolicyTerminal,
		"terminal": CachePolicyTerminal,
		"ALL":      CachePolicyAllOutcomes,
	} {
		got, err := ParseCachePolicy(in)
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Equals, want)
	}
	_, err := ParseCachePolicy("sometimes")
	c.Assert(err, qt.ErrorMatches, `unknown cache policy "sometimes".*`)
}

func TestCachePolicyCaches(t *testing.T) {
	c := qt.New(t)
	for _, tc := range []struct {
		outcome  Outcome
		terminal bool
		all      bool
	}{
		{OutcomeVerified, true, true},
		{OutcomeLedgerVerified, true, true},
		{OutcomeInvalidContent, true, false},
		{OutcomeRejected, false, true},
		{OutcomeFailed, false, false},
	} {
		c.Assert(CachePolicyTerminal.Caches(tc.outcome), qt.Equals, tc.terminal, qt.Commentf("%s", tc.outcome))
		c.Assert(CachePolicyAllOutcomes.Caches(tc.outcome), qt.Equals, tc.all, qt.Commentf("%s", tc.outcome))
	}
}

func TestObservationCache(t *testing.T) {
	c := qt.New(t)
	cache, err := NewObservationCache(2)
	c.Assert(err, qt.IsNil)

	a, b, d := testutil.DeterministicAddress(1), testutil.DeterministicAddress(2), testutil.DeterministicAddress(3)
	ref := []byte("bafkrei-a")
	cache.Record(a, ref, OutcomeVerified)
	ref[0] = 'X' // the cache keeps its own copy
	c.Assert(cache.Seen(a, []byte("bafkrei-a")), qt.IsTrue)
	c.Assert(cache.Seen(a, []byte("bafkrei-b")), qt.IsFalse)

	cache.Record(b, []byte("b"), OutcomeRejected)
	cache.Record(d, []byte("d"), OutcomeRejected)
	c.Assert(cache.Len(), qt.Equals, 2)
	_, ok := cache.Get(a)
	c.Assert(ok, qt.IsFalse)
}
