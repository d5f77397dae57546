package leveldb

import (
	"testing"

	"github.com/algorank/algorank-node/db"
	"github.com/algorank/algorank-node/db/internal/dbtest"
	qt "github.com/frankban/quicktest"
)

func TestWriteTx(t *testing.T) {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	defer database.Close()

	dbtest.TestWriteTx(t, database)
}

func TestIterate(t *testing.T) {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	defer database.Close()

	dbtest.TestIterate(t, database)
	qt.Assert(t, database.Compact(), qt.IsNil)
}
