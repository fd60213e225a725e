package dealer

// Fallback words substituted for zero seed components.
const (
	fallback0 uint32 = 0xDEADBEEF
	fallback1 uint32 = 0x41C64E6D
	fallback2 uint32 = 0x6073
	fallback3 uint32 = 0x12345678
)

// XorShift is the 128-bit xorshift stream used to shuffle a round's deck.
//
// The state update must stay bit-for-bit identical across every client that
// verifies a deal: s2 is never rotated, only s0, s1 and s3 move.
type XorShift struct {
	s0, s1, s2, s3 uint32
}

// NewXorShift seeds the stream. Zero words are replaced with fixed fallback
// constants; the second return value reports whether that happened.
func NewXorShift(seed Seed) (*XorShift, bool) {
	x := &XorShift{s0: seed[0], s1: seed[1], s2: seed[2], s3: seed[3]}
	fellBack := false
	if x.s0 == 0 {
		x.s0, fellBack = fallback0, true
	}
	if x.s1 == 0 {
		x.s1, fellBack = fallback1, true
	}
	if x.s2 == 0 {
		x.s2, fellBack = fallback2, true
	}
	if x.s3 == 0 {
		x.s3, fellBack = fallback3, true
	}
	return x, fellBack
}

// Uint32 advances the stream and returns the next word.
func (x *XorShift) Uint32() uint32 {
	t := x.s0
	s := x.s1
	x.s0 = x.s2
	x.s1 = x.s3
	t ^= t << 11
	t ^= t >> 8
	x.s3 = t ^ s ^ (s >> 19) ^ (t >> 19)
	return x.s3
}

// Float64 returns the next value in [0,1).
func (x *XorShift) Float64() float64 {
	return float64(x.Uint32()) / (1 << 32)
}
