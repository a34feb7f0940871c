package common

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// RandInt63 returns a uniformly random non-negative int64 from crypto/rand.
// Used to draw wordlist identifiers; collisions are handled by the caller.
func RandInt63() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("rand read: %w", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:]) >> 1), nil
}
