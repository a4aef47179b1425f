package syncmap_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"oss.terrastruct.com/d2render/lib/syncmap"
)

func TestSyncMap(t *testing.T) {
	t.Parallel()

	m := syncmap.New[uint64, string]()
	m.Set(1, "a")
	m.Set(1, "b")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "b", m.Get(1))

	assert.False(t, m.SetIfAbsent(1, "c"))
	assert.True(t, m.SetIfAbsent(2, "c"))
	assert.Equal(t, 2, m.Len())

	v, ok := m.Lookup(3)
	assert.False(t, ok)
	assert.Equal(t, "", v)

	m.Delete(1)
	m.Delete(1)
	assert.Equal(t, 1, m.Len())
}

func TestSyncMapConcurrent(t *testing.T) {
	t.Parallel()

	m := syncmap.New[int, int]()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(i%8, i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, m.Len())
}
