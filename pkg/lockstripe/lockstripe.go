// Package lockstripe serializes per-blob operations without taking a
// single global lock. Each blob_id hashes to one of a fixed number of
// mutex stripes; two different blobs usually land on different
// stripes and never contend.
package lockstripe

import (
	"hash/fnv"
	"sync"
)

// Stripes is a fixed-size array of mutexes indexed by a hash of the
// key being locked.
type Stripes struct {
	locks []sync.Mutex
}

// New creates a striped lock with n stripes. n is clamped to at least 1.
func New(n int) *Stripes {
	if n < 1 {
		n = 1
	}
	return &Stripes{locks: make([]sync.Mutex, n)}
}

func (s *Stripes) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(s.locks))
}

// Lock acquires the stripe for key.
func (s *Stripes) Lock(key string) {
	s.locks[s.index(key)].Lock()
}

// Unlock releases the stripe for key.
func (s *Stripes) Unlock(key string) {
	s.locks[s.index(key)].Unlock()
}

// With runs fn while holding the stripe for key.
func (s *Stripes) With(key string, fn func()) {
	s.Lock(key)
	defer s.Unlock(key)
	fn()
}
