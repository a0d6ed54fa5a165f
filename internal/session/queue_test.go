package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOKeepsOrder(t *testing.T) {
	q := newFIFO[int]()

	var wg sync.WaitGroup
	var got []int
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			item, ok := q.pop()
			if !ok {
				return
			}
			got = append(got, item)
		}
	}()

	for i := 0; i < 1000; i++ {
		require.True(t, q.push(i))
	}
	q.close()
	wg.Wait()

	require.Len(t, got, 1000)
	for i, item := range got {
		assert.Equal(t, i, item)
	}
}

func TestFIFODrainsAfterClose(t *testing.T) {
	q := newFIFO[string]()
	q.push("a")
	q.push("b")
	q.close()

	assert.False(t, q.push("c"))

	item, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, "a", item)
	item, ok = q.pop()
	assert.True(t, ok)
	assert.Equal(t, "b", item)
	_, ok = q.pop()
	assert.False(t, ok)
}
