// Package store holds the badger-backed persistence collaborators sitting
// at the relay's boundary: chat/forum history written before relaying, and
// notifications parked for offline users. Nothing in here is called while a
// core lock is held.
package store

import (
	"github.com/dgraph-io/badger/v4"
)

// Open opens the on-disk database used by both stores.
func Open(dir string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
}

// OpenInMemory is for tests and relay-only deployments that still want the
// store interfaces wired.
func OpenInMemory() (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}
