// Package testutil provides deterministic key generators and the shared
// record schema used across package tests.
package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
)

// SequenceKeys generates keys from a counter for tests.
//
// Key n has the version 6 layout with a zero timestamp and n in the node
// bits, so keys sort in generation order:
//
//	00000000-0000-6000-8000-000000000001
//
// Thread-safety: all methods are safe for concurrent use.
type SequenceKeys struct {
	mu  sync.Mutex
	seq uint64
}

// NewSequenceKeys returns a generator whose first key is Key(1).
func NewSequenceKeys() *SequenceKeys {
	return &SequenceKeys{}
}

// Generate returns the next key.
func (g *SequenceKeys) Generate() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return Key(g.seq), nil
}

// Current returns the number of keys generated so far.
func (g *SequenceKeys) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence at Key(1).
func (g *SequenceKeys) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// Key returns the n-th sequence key.
func Key(n uint64) []byte {
	key := make([]byte, 16)
	key[6] = 0x60
	binary.BigEndian.PutUint64(key[8:], n)
	key[8] |= 0x80
	return key
}

// FixedKeys returns predetermined keys.
//
// Thread-safety: FixedKeys is safe for concurrent use via internal mutex.
type FixedKeys struct {
	mu   sync.Mutex
	keys [][]byte
	idx  int
}

// NewFixedKeys returns a generator producing the given hyphenated keys in
// order. It panics on a malformed key.
func NewFixedKeys(keys ...string) *FixedKeys {
	g := &FixedKeys{}
	for _, k := range keys {
		id := uuid.MustParse(k)
		g.keys = append(g.keys, id[:])
	}
	return g
}

// Generate returns the next predetermined key.
//
// Panics if all keys have been consumed, to catch a test creating more
// records than it declared.
func (g *FixedKeys) Generate() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.keys) {
		panic("FixedKeys: all keys exhausted")
	}
	key := g.keys[g.idx]
	g.idx++
	return key, nil
}
