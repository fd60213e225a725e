package randutil

import (
	"encoding/binary"
	"io"
	rand "math/rand/v2"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// Autoplay strategies and simulations share it so a run can be replayed.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Source hands out deck-seed words from a deterministic stream. It satisfies
// dealer.RandomSource for simulations and tests that need repeatable rounds;
// live tables use crypto/rand instead.
type Source struct {
	r *rand.Rand
}

// NewSource returns a Source seeded from seed.
func NewSource(seed int64) *Source {
	return &Source{r: New(seed)}
}

func (s *Source) Uint32() (uint32, error) {
	return s.r.Uint32(), nil
}

// NewReader returns a deterministic byte stream seeded from seed, for ids
// that must repeat across runs.
func NewReader(seed int64) io.Reader {
	var key [32]byte
	u := uint64(seed)
	for i := range 4 {
		binary.LittleEndian.PutUint64(key[i*8:], mix(u+uint64(i)*goldenRatio64))
	}
	return rand.NewChaCha8(key)
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
