package helpers

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicError(t *testing.T) {
	t.Parallel()
	var a AtomicError
	err, set := a.Load()
	assert.Nil(t, err)
	assert.False(t, set)

	first := errors.New("first")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = a.StoreOnce(first)
	}()
	wg.Wait()
	prev, found := a.StoreOnce(errors.New("second"))
	assert.True(t, found)
	assert.Equal(t, first, prev)
	err, set = a.Load()
	assert.Equal(t, first, err)
	assert.True(t, set)
}

func TestWithLock(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			WithLock(&mu, func() { n++ })
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, n)
}
