package lockstripe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClampsMinimumStripes(t *testing.T) {
	s := New(0)
	assert.Len(t, s.locks, 1)

	s = New(-5)
	assert.Len(t, s.locks, 1)
}

func TestWithSerializesSameKey(t *testing.T) {
	s := New(4)
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.With("blob-a", func() {
				counter++
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestLockUnlockRoundTrip(t *testing.T) {
	s := New(8)
	s.Lock("x")
	s.Unlock("x")

	// Different key on a different stripe should not deadlock either.
	s.Lock("y")
	s.Unlock("y")
}

func TestDifferentKeysCanRunConcurrently(t *testing.T) {
	s := New(16)
	started := make(chan struct{})
	release := make(chan struct{})

	go s.With("blob-1", func() {
		close(started)
		<-release
	})
	<-started

	done := make(chan struct{})
	go func() {
		s.With("blob-2", func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-release:
		t.Fatal("unreachable")
	}
	close(release)
}
