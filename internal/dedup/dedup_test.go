package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenTwice(t *testing.T) {
	s := New(16)

	assert.False(t, s.Seen("0xabc:3"))
	assert.True(t, s.Seen("0xabc:3"))
}

func TestDistinctKeys(t *testing.T) {
	s := New(16)

	assert.False(t, s.Seen("0xabc:3"))
	assert.False(t, s.Seen("0xabc:7"))
	assert.False(t, s.Seen("0xdef:3"))
	assert.Equal(t, 3, s.Len())
}

func TestContainsDoesNotRecord(t *testing.T) {
	s := New(16)

	assert.False(t, s.Contains("0xabc:3"))
	assert.False(t, s.Contains("0xabc:3"))
	assert.Zero(t, s.Len())

	s.Add("0xabc:3")
	assert.True(t, s.Contains("0xabc:3"))
	assert.Equal(t, 1, s.Len())

	// Re-adding does not consume a second slot.
	s.Add("0xabc:3")
	assert.Equal(t, 1, s.Len())
}

func TestEvictionWindow(t *testing.T) {
	s := New(3)

	s.Seen("a")
	s.Seen("b")
	s.Seen("c")
	assert.Equal(t, 3, s.Len())

	// "d" evicts "a", the oldest key.
	assert.False(t, s.Seen("d"))
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Seen("a"))

	// Keys inside the window are still suppressed.
	assert.True(t, s.Seen("c"))
	assert.True(t, s.Seen("d"))
}

func TestConcurrentSeenIsAtomic(t *testing.T) {
	s := New(1024)

	const workers = 8
	const keys = 100

	var mu sync.Mutex
	firstSightings := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				k := fmt.Sprintf("key-%d", i)
				if !s.Seen(k) {
					mu.Lock()
					firstSightings[k]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// Each key must be reported unseen exactly once across all workers.
	assert.Len(t, firstSightings, keys)
	for k, n := range firstSightings {
		assert.Equal(t, 1, n, "key %s reported new %d times", k, n)
	}
}
