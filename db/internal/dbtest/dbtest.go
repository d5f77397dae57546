// Package dbtest holds conformance checks shared by every db.Database
// backend.
package dbtest

import (
	"testing"

	"github.com/algorank/algorank-node/db"
	qt "github.com/frankban/quicktest"
)

// TestWriteTx checks read-your-writes, commit visibility and discard.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// not visible before commit
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// discarded writes are dropped
	wTx = database.WriteTx()
	c.Assert(wTx.Set([]byte("x"), []byte("y")), qt.IsNil)
	wTx.Discard()
	_, err = database.Get([]byte("x"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	// delete
	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	_, err = wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix filtering, ordering, prefix stripping, early
// stop and the transaction overlay.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	for _, k := range []string{"v/03", "v/01", "v/02", "g/aggregate", "w/00"} {
		c.Assert(wTx.Set([]byte(k), []byte("val-"+k)), qt.IsNil)
	}
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	var keys []string
	c.Assert(database.Iterate([]byte("v/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		c.Assert(string(v), qt.Equals, "val-v/"+string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"01", "02", "03"})

	keys = nil
	c.Assert(database.Iterate([]byte("v/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return len(keys) < 2
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"01", "02"})

	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Delete([]byte("v/01")), qt.IsNil)
	c.Assert(wTx.Set([]byte("v/04"), []byte("val-v/04")), qt.IsNil)
	keys = nil
	c.Assert(wTx.Iterate([]byte("v/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"02", "03", "04"})
}
