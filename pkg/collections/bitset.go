// Package collections provides generic data structures for efficient data processing.
package collections

import (
	"encoding/binary"
	"math/bits"
)

// Bitset is a memory-efficient boolean set using bit manipulation.
// It uses 1 bit per element instead of 1 byte (bool) or 8+ bytes (map entry).
//
// Memory comparison for 1M elements:
//   - map[uint64]bool: ~32MB (key 8B + value 1B + bucket overhead ~23B)
//   - []bool: ~1MB
//   - Bitset: ~128KB (8x smaller than []bool)
type Bitset struct {
	bits []uint64
	size int
}

// NewBitset creates a new bitset with the given size.
func NewBitset(size int) *Bitset {
	if size <= 0 {
		size = 64
	}
	numWords := (size + 63) / 64
	return &Bitset{
		bits: make([]uint64, numWords),
		size: size,
	}
}

// NewBitsetFromBytes restores a bitset from its serialized form.
// The size is the logical bit count; surplus bytes are ignored.
func NewBitsetFromBytes(data []byte, size int) *Bitset {
	b := NewBitset(size)
	for i := 0; i < len(b.bits); i++ {
		start := i * 8
		if start >= len(data) {
			break
		}
		end := start + 8
		if end > len(data) {
			var word [8]byte
			copy(word[:], data[start:])
			b.bits[i] = binary.LittleEndian.Uint64(word[:])
			break
		}
		b.bits[i] = binary.LittleEndian.Uint64(data[start:end])
	}
	return b
}

// Set sets the bit at index i.
func (b *Bitset) Set(i int) {
	if i < 0 {
		return
	}
	wordIdx := i / 64
	if wordIdx >= len(b.bits) {
		b.grow(i + 1)
	}
	b.bits[wordIdx] |= 1 << (i % 64)
	if i >= b.size {
		b.size = i + 1
	}
}

// Clear clears the bit at index i.
func (b *Bitset) Clear(i int) {
	if i < 0 || i/64 >= len(b.bits) {
		return
	}
	b.bits[i/64] &^= 1 << (i % 64)
}

// Test returns true if the bit at index i is set.
func (b *Bitset) Test(i int) bool {
	if i < 0 || i/64 >= len(b.bits) {
		return false
	}
	return b.bits[i/64]&(1<<(i%64)) != 0
}

// ClearAll clears all bits to 0.
func (b *Bitset) ClearAll() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// Count returns the number of set bits (population count).
func (b *Bitset) Count() int {
	count := 0
	for _, word := range b.bits {
		count += bits.OnesCount64(word)
	}
	return count
}

// Size returns the size of the bitset.
func (b *Bitset) Size() int {
	return b.size
}

// Or performs bitwise OR with another bitset (union).
func (b *Bitset) Or(other *Bitset) {
	if other == nil {
		return
	}
	if len(other.bits) > len(b.bits) {
		b.grow(other.size)
	}
	for i := 0; i < len(other.bits) && i < len(b.bits); i++ {
		b.bits[i] |= other.bits[i]
	}
	if other.size > b.size {
		b.size = other.size
	}
}

// Bytes returns the bitset contents as little-endian words.
// The result is suitable for NewBitsetFromBytes.
func (b *Bitset) Bytes() []byte {
	out := make([]byte, len(b.bits)*8)
	for i, word := range b.bits {
		binary.LittleEndian.PutUint64(out[i*8:], word)
	}
	return out
}

// grow expands the bitset to accommodate at least newSize elements.
func (b *Bitset) grow(newSize int) {
	numWords := (newSize + 63) / 64
	if numWords <= len(b.bits) {
		return
	}
	// Grow by at least 2x to amortize allocation cost
	newCap := len(b.bits) * 2
	if newCap < numWords {
		newCap = numWords
	}
	newBits := make([]uint64, newCap)
	copy(newBits, b.bits)
	b.bits = newBits
}
