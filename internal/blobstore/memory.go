package blobstore

import (
	"gocloud.dev/blob/memblob"
)

// NewMemory creates an in-memory store for testing.
func NewMemory(prefix string) *Store {
	s := New(memblob.OpenBucket(nil), prefix)
	s.owns = true
	return s
}
