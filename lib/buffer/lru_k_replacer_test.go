package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUKReplacer(t *testing.T) {
	t.Run("test lru-k replacer", func(t *testing.T) {
		lru := NewLRUKReplacer(7, 2)

		for i := 1; i <= 6; i++ {
			lru.RecordAccess(i)
		}
		for i := 1; i <= 5; i++ {
			lru.SetEvictable(i, true)
		}
		lru.SetEvictable(6, false)
		assert.Equal(t, 5, lru.Size())

		// frame 1 punya 2 akses, sisanya +inf
		lru.RecordAccess(1)

		for _, expected := range []int{2, 3, 4} {
			frameID, ok := lru.Evict()
			assert.True(t, ok)
			assert.Equal(t, expected, frameID)
		}
		assert.Equal(t, 2, lru.Size())

		lru.RecordAccess(3)
		lru.RecordAccess(4)
		lru.RecordAccess(5)
		lru.RecordAccess(4)
		lru.SetEvictable(3, true)
		lru.SetEvictable(4, true)
		assert.Equal(t, 4, lru.Size())

		frameID, ok := lru.Evict()
		assert.True(t, ok)
		assert.Equal(t, 3, frameID)
		assert.Equal(t, 3, lru.Size())

		lru.SetEvictable(6, true)
		assert.Equal(t, 4, lru.Size())
		frameID, _ = lru.Evict()
		assert.Equal(t, 6, frameID)
		assert.Equal(t, 3, lru.Size())

		lru.SetEvictable(1, false)
		assert.Equal(t, 2, lru.Size())
		frameID, _ = lru.Evict()
		assert.Equal(t, 5, frameID)
		assert.Equal(t, 1, lru.Size())

		lru.RecordAccess(1)
		lru.RecordAccess(1)
		lru.SetEvictable(1, true)
		assert.Equal(t, 2, lru.Size())

		frameID, _ = lru.Evict()
		assert.Equal(t, 4, frameID)
		frameID, _ = lru.Evict()
		assert.Equal(t, 1, frameID)
		assert.Equal(t, 0, lru.Size())

		_, ok = lru.Evict()
		assert.False(t, ok)
	})

	t.Run("frame under k accesses evicted before frame with k accesses", func(t *testing.T) {
		lru := NewLRUKReplacer(2, 2)

		// A akses di t=1 dan t=3, B sekali di t=2
		lru.RecordAccess(0)
		lru.RecordAccess(1)
		lru.RecordAccess(0)
		lru.SetEvictable(0, true)
		lru.SetEvictable(1, true)

		frameID, ok := lru.Evict()
		assert.True(t, ok)
		assert.Equal(t, 1, frameID)
	})

	t.Run("cold frames tie broken by oldest most recent access", func(t *testing.T) {
		lru := NewLRUKReplacer(3, 3)
		lru.RecordAccess(0)
		lru.RecordAccess(1)
		lru.RecordAccess(2)
		lru.RecordAccess(0) // frame 0 lebih baru dari 1 & 2
		for i := 0; i < 3; i++ {
			lru.SetEvictable(i, true)
		}

		for _, expected := range []int{1, 2, 0} {
			frameID, ok := lru.Evict()
			assert.True(t, ok)
			assert.Equal(t, expected, frameID)
		}
	})

	t.Run("k equals one behaves as lru", func(t *testing.T) {
		lru := NewLRUKReplacer(4, 1)
		for i := 0; i < 4; i++ {
			lru.RecordAccess(i)
			lru.SetEvictable(i, true)
		}
		lru.RecordAccess(0)

		for _, expected := range []int{1, 2, 3, 0} {
			frameID, _ := lru.Evict()
			assert.Equal(t, expected, frameID)
		}
	})

	t.Run("non evictable frame never chosen", func(t *testing.T) {
		lru := NewLRUKReplacer(3, 2)
		lru.RecordAccess(0)
		lru.RecordAccess(1)
		lru.SetEvictable(1, true)

		frameID, ok := lru.Evict()
		assert.True(t, ok)
		assert.Equal(t, 1, frameID)

		_, ok = lru.Evict()
		assert.False(t, ok)
	})

	t.Run("remove clears history", func(t *testing.T) {
		lru := NewLRUKReplacer(3, 2)
		lru.RecordAccess(0)
		lru.RecordAccess(0)
		lru.RecordAccess(1)
		lru.SetEvictable(0, true)
		lru.SetEvictable(1, true)
		assert.Equal(t, 2, lru.Size())

		lru.Remove(1)
		assert.Equal(t, 1, lru.Size())
		lru.Remove(2) // frame tanpa history

		// frame 1 mulai dari nol lagi, non-evictable sampai diset
		lru.RecordAccess(1)
		frameID, ok := lru.Evict()
		assert.True(t, ok)
		assert.Equal(t, 0, frameID)
		_, ok = lru.Evict()
		assert.False(t, ok)
	})

	t.Run("invalid frame id panics", func(t *testing.T) {
		lru := NewLRUKReplacer(2, 2)
		assert.Panics(t, func() { lru.RecordAccess(2) })
		assert.Panics(t, func() { lru.SetEvictable(-1, true) })
		assert.Panics(t, func() { lru.Remove(5) })
	})
}
