// Package inmemory implements an ephemeral db.Database on a map. Write
// transactions are optimistic: every key a transaction touches is stamped
// with the revision it observed and Commit fails with db.ErrConflict when one
// of them moved on in the meantime.
package inmemory

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/algorank/algorank-node/db"
)

var errTxFinished = errors.New("inmemory: transaction already committed or discarded")

// record is the stored state of a key. Deleted keys stay as tombstones until
// Compact so their revision keeps detecting conflicts.
type record struct {
	value    []byte
	revision uint64
	removed  bool
}

// Database is the in-memory backend.
type Database struct {
	mu       sync.RWMutex
	records  map[string]record
	revision uint64
}

var _ db.Database = (*Database)(nil)

// New returns an empty database. Options are ignored.
func New(_ db.Options) (*Database, error) {
	return &Database{records: make(map[string]record)}, nil
}

func (d *Database) Close() error { return nil }

// Compact drops tombstones.
func (d *Database) Compact() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	maps.DeleteFunc(d.records, func(_ string, r record) bool { return r.removed })
	return nil
}

func (d *Database) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.records[string(key)]
	if !ok || r.removed {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(r.value), nil
}

func (d *Database) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	walk(d.snapshot(prefix, nil), len(prefix), callback)
	return nil
}

// snapshot copies the live values under prefix. observe, if set, sees the
// revision of every key under prefix, tombstones included.
func (d *Database) snapshot(prefix []byte, observe func(key string, revision uint64)) map[string][]byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	values := make(map[string][]byte)
	for k, r := range d.records {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		if observe != nil {
			observe(k, r.revision)
		}
		if !r.removed {
			values[k] = bytes.Clone(r.value)
		}
	}
	return values
}

func (d *Database) WriteTx() db.WriteTx {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &writeTx{
		db:      d,
		start:   d.revision,
		pending: make(map[string]pendingWrite),
		seen:    make(map[string]uint64),
	}
}

type pendingWrite struct {
	value  []byte
	remove bool
}

type writeTx struct {
	db      *Database
	start   uint64
	pending map[string]pendingWrite
	seen    map[string]uint64
	done    bool
}

func (tx *writeTx) observe(key string) {
	if _, ok := tx.seen[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.seen[key] = tx.db.records[key].revision
	tx.db.mu.RUnlock()
}

func (tx *writeTx) Get(key []byte) ([]byte, error) {
	if w, ok := tx.pending[string(key)]; ok {
		if w.remove {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(w.value), nil
	}
	tx.observe(string(key))
	return tx.db.Get(key)
}

func (tx *writeTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	values := tx.db.snapshot(prefix, func(k string, revision uint64) {
		if _, ok := tx.seen[k]; !ok {
			tx.seen[k] = revision
		}
	})
	for k, w := range tx.pending {
		switch {
		case !strings.HasPrefix(k, string(prefix)):
		case w.remove:
			delete(values, k)
		default:
			values[k] = bytes.Clone(w.value)
		}
	}
	walk(values, len(prefix), callback)
	return nil
}

func (tx *writeTx) Set(key, value []byte) error {
	tx.observe(string(key))
	tx.pending[string(key)] = pendingWrite{value: bytes.Clone(value)}
	return nil
}

func (tx *writeTx) Delete(key []byte) error {
	tx.observe(string(key))
	tx.pending[string(key)] = pendingWrite{remove: true}
	return nil
}

func (tx *writeTx) Commit() error {
	if tx.done {
		return errTxFinished
	}
	d := tx.db
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, revision := range tx.seen {
		if revision > tx.start || d.records[k].revision != revision {
			return db.ErrConflict
		}
	}
	for k, w := range tx.pending {
		d.revision++
		d.records[k] = record{value: w.value, revision: d.revision, removed: w.remove}
	}
	tx.done = true
	return nil
}

func (tx *writeTx) Discard() {
	clear(tx.pending)
	clear(tx.seen)
	tx.done = true
}

func walk(values map[string][]byte, prefixLen int, callback func(key, value []byte) bool) {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if !callback([]byte(k[prefixLen:]), values[k]) {
			return
		}
	}
}
