// internal/rng/source.go
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Source supplies uniform variates in [0, 1). *Stream and *rand.Rand both
// satisfy it.
type Source interface {
	Float64() float64
}

// golden is the splitmix64 increment (2^64 / phi).
const golden = 0x9e3779b97f4a7c15

// Stream is a reseedable PCG random stream. A Stream is not safe for
// concurrent use; give every worker its own.
type Stream struct {
	pcg *rand.PCG
	*rand.Rand
}

// NewStream returns a stream positioned at trial 0 of seed.
func NewStream(seed uint64) *Stream {
	pcg := rand.NewPCG(0, 0)
	s := &Stream{pcg: pcg, Rand: rand.New(pcg)}
	s.Reseed(seed, 0)
	return s
}

// Reseed moves the stream to the state reserved for one trial of a run.
// The state depends only on (seed, trial), so the numbers a trial sees do
// not depend on which worker runs it or in what order.
func (s *Stream) Reseed(seed, trial uint64) {
	hi := mix64(seed ^ mix64(trial))
	lo := mix64(hi)
	s.pcg.Seed(hi, lo)
}

// RandomSeed reads a fresh 64-bit seed from crypto/rand.
func RandomSeed() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(crand.Reader, b[:]); err != nil {
		return 0, errors.Wrap(err, "rng: failed to get seed from crypto/rand")
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// mix64 is the splitmix64 step: a bijection on uint64 with good avalanche.
func mix64(x uint64) uint64 {
	z := x + golden
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
