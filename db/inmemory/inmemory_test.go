package inmemory

import (
	"testing"

	"github.com/algorank/algorank-node/db"
	"github.com/algorank/algorank-node/db/internal/dbtest"
	qt "github.com/frankban/quicktest"
)

func TestWriteTx(t *testing.T) {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)

	dbtest.TestWriteTx(t, database)
}

func TestIterate(t *testing.T) {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)

	dbtest.TestIterate(t, database)
}

func TestConcurrentWriteTx(t *testing.T) {
	c := qt.New(t)
	database, err := New(db.Options{})
	c.Assert(err, qt.IsNil)

	key := []byte("g/aggregate")
	tx1 := database.WriteTx()
	tx2 := database.WriteTx()
	defer tx1.Discard()
	defer tx2.Discard()

	_, err = tx1.Get(key)
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = tx2.Get(key)
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx1.Set(key, []byte{1}), qt.IsNil)
	c.Assert(tx2.Set(key, []byte{2}), qt.IsNil)

	c.Assert(tx1.Commit(), qt.IsNil)
	c.Assert(tx2.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte{1})
}

func TestCommitAfterDiscard(t *testing.T) {
	c := qt.New(t)
	database, err := New(db.Options{})
	c.Assert(err, qt.IsNil)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
	wTx.Discard()
	c.Assert(wTx.Commit(), qt.ErrorMatches, ".*already committed or discarded")
	_, err = database.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

func TestDeleteConflictsAfterCompact(t *testing.T) {
	c := qt.New(t)
	database, err := New(db.Options{})
	c.Assert(err, qt.IsNil)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("v")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	reader := database.WriteTx()
	defer reader.Discard()
	_, err = reader.Get([]byte("k"))
	c.Assert(err, qt.IsNil)

	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("k")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	c.Assert(database.Compact(), qt.IsNil)

	c.Assert(reader.Set([]byte("k"), []byte("w")), qt.IsNil)
	c.Assert(reader.Commit(), qt.ErrorIs, db.ErrConflict)
}
