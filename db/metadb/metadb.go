// Package metadb opens a db.Database by backend type name.
package metadb

import (
	"fmt"
	"testing"

	"github.com/algorank/algorank-node/db"
	"github.com/algorank/algorank-node/db/inmemory"
	"github.com/algorank/algorank-node/db/leveldb"
	"github.com/algorank/algorank-node/db/pebbledb"
)

// New opens a database of the given type at dir. dir is ignored for the
// in-memory backend.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeLevelDB:
		return leveldb.New(opts)
	case db.TypeInMemory:
		return inmemory.New(opts)
	default:
		return nil, fmt.Errorf("invalid db type %q, available types: %s, %s, %s",
			typ, db.TypePebble, db.TypeLevelDB, db.TypeInMemory)
	}
}

// NewTest returns a pebble database in a temporary directory that is closed
// when the test finishes.
func NewTest(tb testing.TB) db.Database {
	database, err := New(db.TypePebble, tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { _ = database.Close() })
	return database
}
