// Package binindex builds and serves the compact index over binary
// allocation logs: per-record offsets and sizes, batch-granular quick
// filters and the on-disk index cache.
package binindex

import (
	"github.com/cespare/xxhash/v2"

	"github.com/alloctrace/pkg/collections"
)

// BloomFilterParams describes a filter's construction so a reader can
// reconstruct membership semantics from the serialized bits alone.
type BloomFilterParams struct {
	HashFunctions     uint32  `json:"hash_functions"`
	FilterSizeBits    uint32  `json:"filter_size_bits"`
	ExpectedElements  uint32  `json:"expected_elements"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// DefaultBloomParams returns the standard quick-filter parameters.
func DefaultBloomParams() BloomFilterParams {
	return BloomFilterParams{
		HashFunctions:     3,
		FilterSizeBits:    8192,
		ExpectedElements:  1000,
		FalsePositiveRate: 0.01,
	}
}

// BloomFilter is a fixed-size bloom filter over strings using xxhash
// double hashing. It may report false positives but never false negatives.
type BloomFilter struct {
	bits   *collections.Bitset
	params BloomFilterParams
}

// NewBloomFilter creates an empty filter with the given parameters.
func NewBloomFilter(params BloomFilterParams) *BloomFilter {
	if params.FilterSizeBits == 0 {
		params = DefaultBloomParams()
	}
	return &BloomFilter{
		bits:   collections.NewBitset(int(params.FilterSizeBits)),
		params: params,
	}
}

// BloomFilterFromBytes restores a filter from its serialized bit array.
func BloomFilterFromBytes(data []byte, params BloomFilterParams) *BloomFilter {
	if params.FilterSizeBits == 0 {
		params = DefaultBloomParams()
	}
	return &BloomFilter{
		bits:   collections.NewBitsetFromBytes(data, int(params.FilterSizeBits)),
		params: params,
	}
}

// positions derives the k bit positions for s via double hashing: the two
// 32-bit halves of one xxhash sum seed the probe sequence.
func (f *BloomFilter) positions(s string) []int {
	h := xxhash.Sum64String(s)
	h1 := h & 0xFFFFFFFF
	h2 := (h >> 32) | 1 // odd step so probes cover the bit space

	m := uint64(f.params.FilterSizeBits)
	out := make([]int, f.params.HashFunctions)
	for i := range out {
		out[i] = int((h1 + uint64(i)*h2) % m)
	}
	return out
}

// Add inserts s into the filter.
func (f *BloomFilter) Add(s string) {
	for _, pos := range f.positions(s) {
		f.bits.Set(pos)
	}
}

// MightContain reports whether s may have been inserted. A false result is
// definitive; a true result may be a false positive.
func (f *BloomFilter) MightContain(s string) bool {
	for _, pos := range f.positions(s) {
		if !f.bits.Test(pos) {
			return false
		}
	}
	return true
}

// Bytes serializes the filter's bit array.
func (f *BloomFilter) Bytes() []byte {
	return f.bits.Bytes()
}

// Params returns the filter's construction parameters.
func (f *BloomFilter) Params() BloomFilterParams {
	return f.params
}
