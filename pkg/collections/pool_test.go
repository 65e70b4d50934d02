package collections

import (
	"sync"
	"testing"
)

func TestSlicePool_GetPut(t *testing.T) {
	pool := NewSlicePool[int](16)

	s := pool.Get()
	if len(*s) != 0 {
		t.Errorf("Expected empty slice from pool, got len %d", len(*s))
	}

	*s = append(*s, 1, 2, 3)
	pool.Put(s)

	s2 := pool.Get()
	if len(*s2) != 0 {
		t.Errorf("Expected slice to be cleared on Put, got len %d", len(*s2))
	}
}

func TestSlicePool_DefaultCapacity(t *testing.T) {
	pool := NewSlicePool[byte](0)
	s := pool.Get()
	if cap(*s) < 256 {
		t.Errorf("Expected default capacity >= 256, got %d", cap(*s))
	}
	pool.Put(s)
}

func TestByteSlicePool(t *testing.T) {
	b := GetByteSlice()
	*b = append(*b, []byte("hello")...)
	PutByteSlice(b)

	b2 := GetByteSlice()
	if len(*b2) != 0 {
		t.Errorf("Expected cleared buffer, got len %d", len(*b2))
	}
	PutByteSlice(b2)
}

func TestSlicePool_Concurrent(t *testing.T) {
	pool := NewSlicePool[uint64](64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				s := pool.Get()
				*s = append(*s, uint64(j))
				pool.Put(s)
			}
		}()
	}
	wg.Wait()
}
