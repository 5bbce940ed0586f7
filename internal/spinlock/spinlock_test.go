package spinlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryLockFailsWhileHeld(t *testing.T) {
	var l Spinlock
	require := assert.New(t)
	require.True(l.TryLock())
	require.False(l.TryLock())
	l.Unlock()
	require.True(l.TryLock())
	l.Unlock()
}

func TestUnlockOfUnlockedPanics(t *testing.T) {
	var l Spinlock
	defer func() {
		assert.NotNil(t, recover())
	}()
	l.Unlock()
}

func TestLockSerializesConcurrentIncrements(t *testing.T) {
	var l Spinlock
	counter := 0
	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			l.Lock()
			counter++
			l.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, counter)
}
