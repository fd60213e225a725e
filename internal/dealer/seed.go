package dealer

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Seed is the shared deck seed: four 32-bit words. Anyone holding it can
// rebuild the shuffled deck for a round.
type Seed [4]uint32

// DefaultSeedString is used when a game document carries no seed at all.
const DefaultSeedString = "12345-67890-11111-22222"

// String joins the words with dashes, the form stored in games/{room}.deckSeed.
func (s Seed) String() string {
	return fmt.Sprintf("%d-%d-%d-%d", s[0], s[1], s[2], s[3])
}

// IsZero reports whether every word is zero.
func (s Seed) IsZero() bool {
	return s == Seed{}
}

// ParseSeed decodes a dash-joined seed. Missing or malformed words decode as
// zero and are later replaced by the generator's fallback constants, so a
// damaged seed still yields a deterministic deck. An empty string decodes as
// DefaultSeedString.
func ParseSeed(str string) Seed {
	if str == "" {
		str = DefaultSeedString
	}
	var s Seed
	parts := strings.Split(str, "-")
	for i := 0; i < len(s) && i < len(parts); i++ {
		v, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			continue
		}
		s[i] = uint32(v)
	}
	return s
}

// RandomSource supplies cryptographically strong 32-bit draws for seed generation.
type RandomSource interface {
	Uint32() (uint32, error)
}

// CryptoSource reads from crypto/rand.
type CryptoSource struct{}

func (CryptoSource) Uint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// GenerateSeed draws four independent words from src.
func GenerateSeed(src RandomSource) (Seed, error) {
	var s Seed
	for i := range s {
		v, err := src.Uint32()
		if err != nil {
			return Seed{}, fmt.Errorf("generate seed: %w", err)
		}
		s[i] = v
	}
	return s, nil
}
