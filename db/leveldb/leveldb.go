// Package leveldb implements db.Database on top of syndtr/goleveldb.
package leveldb

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/algorank/algorank-node/db"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a persistent db.Database. Like pebbledb, write transactions do
// not detect conflicts.
type LevelDB struct {
	db *leveldb.DB
}

var _ db.Database = (*LevelDB)(nil)

// New opens (or creates) a leveldb database at opts.Path.
func New(opts db.Options) (*LevelDB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("leveldb: empty path")
	}
	ldb, err := leveldb.OpenFile(opts.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", opts.Path, err)
	}
	return &LevelDB{db: ldb}, nil
}

func (d *LevelDB) Close() error {
	return d.db.Close()
}

func (d *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	return v, err
}

func (d *LevelDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func (d *LevelDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:      d,
		batch:   new(leveldb.Batch),
		pending: make(map[string]*[]byte),
	}
}

func (d *LevelDB) Compact() error {
	return d.db.CompactRange(util.Range{})
}

// WriteTx accumulates writes in a leveldb.Batch and keeps an overlay so reads
// within the transaction observe them.
type WriteTx struct {
	db      *LevelDB
	batch   *leveldb.Batch
	pending map[string]*[]byte
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.pending[string(key)]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(*v), nil
	}
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	if err := tx.db.Iterate(prefix, func(k, v []byte) bool {
		merged[string(prefix)+string(k)] = bytes.Clone(v)
		return true
	}); err != nil {
		return err
	}
	for k, v := range tx.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k[len(prefix):]), merged[k]) {
			break
		}
	}
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	v := bytes.Clone(value)
	tx.pending[string(key)] = &v
	tx.batch.Put(key, value)
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	tx.pending[string(key)] = nil
	tx.batch.Delete(key)
	return nil
}

func (tx *WriteTx) Commit() error {
	return tx.db.db.Write(tx.batch, &opt.WriteOptions{Sync: true})
}

func (tx *WriteTx) Discard() {
	tx.batch.Reset()
	clear(tx.pending)
}
