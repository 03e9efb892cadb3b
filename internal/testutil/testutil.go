package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/pagestore/core"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed)) //nolint:gosec // deterministic test data
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Page returns a page image filled with pseudo-random bytes.
func (r *RNG) Page() *core.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := new(core.Page)
	_, _ = r.rand.Read(p[:])
	return p
}

// CompressiblePage returns a page made of a few repeated runs, so that the
// lz4 and zstd codecs actually shrink it.
func (r *RNG) CompressiblePage() *core.Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := new(core.Page)
	runs := 1 + r.rand.Intn(8)
	width := core.PageSize / runs
	for i := range runs {
		b := byte(r.rand.Intn(256))
		for j := i * width; j < (i+1)*width; j++ {
			p[j] = b
		}
	}
	return p
}
