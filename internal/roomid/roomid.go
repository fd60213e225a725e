// Package roomid mints room identifiers: UUIDv7 values written as 26
// lowercase Crockford base32 characters, so ids sort by creation time.
package roomid

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Crockford's base32, as used by TypeID.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length of an encoded id.
const Length = 26

// Generator mints ids from a byte source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a Generator reading randomness from r. A nil r uses
// crypto/rand.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

// Generate returns a new id.
func (g *Generator) Generate() (string, error) {
	id, err := uuid.NewV7FromReader(g.rand)
	if err != nil {
		return "", fmt.Errorf("generate room id: %w", err)
	}
	return Encode(id), nil
}

// New returns an id from crypto/rand. It panics if the system source fails.
func New() string {
	id, err := NewGenerator(nil).Generate()
	if err != nil {
		panic(err)
	}
	return id
}

// Encode writes u as 26 base32 characters. The 128 bits are left-padded to
// 130, so the first character is always 0-7.
func Encode(u uuid.UUID) string {
	hi := binary.BigEndian.Uint64(u[:8])
	lo := binary.BigEndian.Uint64(u[8:])
	out := make([]byte, Length)
	for i := Length - 1; i >= 0; i-- {
		out[i] = alphabet[lo&0x1f]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out)
}

// Parse decodes an id produced by Encode.
func Parse(id string) (uuid.UUID, error) {
	if err := Validate(id); err != nil {
		return uuid.Nil, err
	}
	var hi, lo uint64
	for i := 0; i < Length; i++ {
		v := uint64(strings.IndexByte(alphabet, id[i]))
		hi = hi<<5 | lo>>59
		lo = lo<<5 | v
	}
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[:8], hi)
	binary.BigEndian.PutUint64(u[8:], lo)
	return u, nil
}

// Validate checks an id is 26 characters of the alphabet with a first
// character no greater than 7.
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("room ID must be exactly %d characters, got %d", Length, len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("room ID first character must be 0-7, got %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(alphabet, id[i]) < 0 {
			return fmt.Errorf("invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}

// CreatedAt returns the millisecond timestamp embedded in a version 7 id.
func CreatedAt(id string) (time.Time, error) {
	u, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("room ID is version %d, not 7", u.Version())
	}
	var ms [8]byte
	copy(ms[2:], u[:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(ms[:]))), nil
}
