// Package collections provides generic data structures for efficient data processing.
package collections

import (
	"sync"
)

// SlicePool is a generic pool for slices of any type.
type SlicePool[T any] struct {
	pool       sync.Pool
	initialCap int
}

// NewSlicePool creates a new slice pool with the given initial capacity.
func NewSlicePool[T any](initialCap int) *SlicePool[T] {
	if initialCap <= 0 {
		initialCap = 256
	}
	return &SlicePool[T]{
		initialCap: initialCap,
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]T, 0, initialCap)
				return &s
			},
		},
	}
}

// Get gets a slice from the pool.
func (p *SlicePool[T]) Get() *[]T {
	return p.pool.Get().(*[]T)
}

// Put returns a slice to the pool after clearing it.
func (p *SlicePool[T]) Put(s *[]T) {
	*s = (*s)[:0]
	p.pool.Put(s)
}

// ByteSlicePool is a pool for []byte buffers used during record encoding.
var ByteSlicePool = NewSlicePool[byte](4096)

// GetByteSlice gets a byte buffer from the pool.
func GetByteSlice() *[]byte {
	return ByteSlicePool.Get()
}

// PutByteSlice returns a byte buffer to the pool after clearing it.
func PutByteSlice(s *[]byte) {
	ByteSlicePool.Put(s)
}
