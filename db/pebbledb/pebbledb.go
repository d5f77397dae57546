// Package pebbledb implements db.Database on top of cockroachdb/pebble.
package pebbledb

import (
	"errors"
	"fmt"
	"os"

	"github.com/algorank/algorank-node/db"
	"github.com/cockroachdb/pebble"
)

// PebbleDB is a persistent db.Database. Write transactions are indexed
// pebble batches, so they see their own writes but do not detect conflicts;
// callers that need serializability must lock around them.
type PebbleDB struct {
	db *pebble.DB
}

var _ db.Database = (*PebbleDB)(nil)

// New opens (or creates) a pebble database at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("pebbledb: empty path")
	}
	if err := os.MkdirAll(opts.Path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("pebbledb: create dir: %w", err)
	}
	pdb, err := pebble.Open(opts.Path, &pebble.Options{
		Levels: []pebble.LevelOptions{{Compression: pebble.SnappyCompression}},
	})
	if err != nil {
		return nil, fmt.Errorf("pebbledb: open %s: %w", opts.Path, err)
	}
	return &PebbleDB{db: pdb}, nil
}

func (d *PebbleDB) Close() error {
	return d.db.Close()
}

func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	return get(d.db, key)
}

func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := d.db.NewIter(iterOptions(prefix))
	if err != nil {
		return err
	}
	return iterate(iter, len(prefix), callback)
}

func (d *PebbleDB) WriteTx() db.WriteTx {
	return &WriteTx{batch: d.db.NewIndexedBatch()}
}

// Compact triggers a manual compaction of the whole key space.
func (d *PebbleDB) Compact() error {
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	var first, last []byte
	if iter.First() {
		first = append(first, iter.Key()...)
	}
	if iter.Last() {
		last = append(last, iter.Key()...)
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if first == nil {
		return nil
	}
	return d.db.Compact(first, append(last, 0x00), true)
}

// WriteTx wraps an indexed pebble batch.
type WriteTx struct {
	batch *pebble.Batch
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	return get(tx.batch, key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter, err := tx.batch.NewIter(iterOptions(prefix))
	if err != nil {
		return err
	}
	return iterate(iter, len(prefix), callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

func (tx *WriteTx) Delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

func (tx *WriteTx) Commit() error {
	return tx.batch.Commit(pebble.Sync)
}

func (tx *WriteTx) Discard() {
	// Close returns an error only when the batch was already closed.
	_ = tx.batch.Close()
}

func get(r pebble.Reader, key []byte) ([]byte, error) {
	value, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	// value is only valid until closer.Close()
	return append([]byte(nil), value...), nil
}

func iterOptions(prefix []byte) *pebble.IterOptions {
	if len(prefix) == 0 {
		return nil
	}
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: db.PrefixEnd(prefix),
	}
}

func iterate(iter *pebble.Iterator, prefixLen int, callback func(key, value []byte) bool) (err error) {
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()
	for valid := iter.First(); valid; valid = iter.Next() {
		value, verr := iter.ValueAndErr()
		if verr != nil {
			return verr
		}
		if !callback(iter.Key()[prefixLen:], value) {
			break
		}
	}
	return nil
}
