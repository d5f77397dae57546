// Package db defines the key-value database abstraction used to persist the
// registry, together with the backend type names understood by metadb.
package db

import (
	"errors"
	"io"
)

const (
	TypePebble   = "pebble"
	TypeLevelDB  = "leveldb"
	TypeInMemory = "inmemory"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when a concurrent transaction
	// modified a key read or written by this one.
	ErrConflict = errors.New("transaction conflict")
)

// Options holds the backend settings.
type Options struct {
	Path string
}

// Reader is the read side shared by databases and transactions.
type Reader interface {
	// Get returns a copy of the value stored at key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key starting with prefix, in
	// lexicographic order. The key passed to callback has the prefix
	// removed. Iteration stops when callback returns false. The slices are
	// only valid during the call.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a batch of writes that is applied atomically on Commit. Reads
// on a WriteTx observe its own pending writes.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	// Discard releases the transaction. It is safe to call after Commit.
	Discard()
}

// Database is a key-value store supporting atomic write transactions.
type Database interface {
	io.Closer
	Reader
	WriteTx() WriteTx
	Compact() error
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if there is none (empty or all-0xff prefix).
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
