package orm

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/blazeorm/internal/codec"
)

// KeyGenerator produces keys for new reference records.
type KeyGenerator interface {
	Generate() ([]byte, error)
}

// TimeKeyGenerator generates time-ordered keys in the UUID version 6
// layout: 60 bits of 100ns ticks since 1582-10-15 (most significant first),
// a random 14-bit clock sequence and a per-generator random node id with
// the multicast bit set.
//
// Keys from one generator are strictly increasing.
type TimeKeyGenerator struct {
	mu   sync.Mutex
	last int64
	node [6]byte
}

// NewTimeKeyGenerator returns a generator with a random node id.
func NewTimeKeyGenerator() *TimeKeyGenerator {
	g := &TimeKeyGenerator{}
	if _, err := rand.Read(g.node[:]); err != nil {
		panic(fmt.Sprintf("read random node id: %v", err))
	}
	g.node[0] |= 0x01
	return g
}

// Generate returns a new 16-byte key.
func (g *TimeKeyGenerator) Generate() ([]byte, error) {
	now, _, err := uuid.GetTime()
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}

	g.mu.Lock()
	ticks := int64(now)
	if ticks <= g.last {
		ticks = g.last + 1
	}
	g.last = ticks
	g.mu.Unlock()

	var seq [2]byte
	if _, err := rand.Read(seq[:]); err != nil {
		return nil, fmt.Errorf("read clock sequence: %w", err)
	}

	key := make([]byte, codec.KeySize)
	binary.BigEndian.PutUint64(key[0:8], uint64(ticks)<<4)
	// Bytes 0-5 now hold the top 48 bits of the timestamp; the low 12 bits
	// go after the version nibble.
	binary.BigEndian.PutUint16(key[6:8], 0x6000|uint16(ticks&0x0fff))
	key[8] = 0x80 | seq[0]&0x3f
	key[9] = seq[1]
	copy(key[10:], g.node[:])
	return key, nil
}

// FormatKey returns the hyphenated hex form of a 16-byte key.
func FormatKey(key []byte) (string, error) {
	id, err := uuid.FromBytes(key)
	if err != nil {
		return "", NewError(CodeInvalidKey, "", "key of %d bytes", len(key))
	}
	return id.String(), nil
}

// ParseKey decodes a 36-character hyphenated hex key.
func ParseKey(s string) ([]byte, error) {
	if len(s) != 36 {
		return nil, NewError(CodeInvalidKey, "", "key %q is not 36 characters", s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, NewError(CodeInvalidKey, "", "key %q: %v", s, err)
	}
	return id[:], nil
}
