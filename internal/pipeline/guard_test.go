package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	var g Guard
	assert.False(t, g.Busy())

	release, ok := g.TryAcquire()
	require.True(t, ok)
	assert.True(t, g.Busy())

	_, ok = g.TryAcquire()
	assert.False(t, ok)

	release()
	release()
	assert.False(t, g.Busy())

	_, ok = g.TryAcquire()
	assert.True(t, ok)
}

func TestGuard_Concurrent(t *testing.T) {
	var g Guard
	var won atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := g.TryAcquire(); ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
}
