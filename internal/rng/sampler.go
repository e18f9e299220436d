// internal/rng/sampler.go

package rng

import (
	"math"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/pkg/errors"
)

// Sampler draws indices without replacement. Every pick is weighted against
// the indices still in the pool only.
//
// Weights live in a Fenwick tree of running sums, so one pick is:
//  1. Take the current total weight (prefix sum over the whole tree).
//  2. Scale a uniform variate in [0, 1) by that total.
//  3. Descend the tree to the first index whose running sum exceeds it.
//  4. Subtract that index's weight from the tree (it now weighs zero).
//
// Both the search and the removal are O(log n).
type Sampler struct {
	weights []float64
	tree    []float64 // 1-based
	drawn   []bool
	left    int
	top     int // highest power of two <= len(weights)
}

// NewSampler builds a sampler over a copy of weights. Every weight must be a
// positive finite number.
func NewSampler(weights []float64) (*Sampler, error) {
	for i, w := range weights {
		if !(w > 0) || math.IsInf(w, 1) {
			return nil, errors.Wrapf(models.ErrInvalidEntrant, "weight %v at index %d must be positive and finite", w, i)
		}
	}
	n := len(weights)
	s := &Sampler{
		weights: append([]float64(nil), weights...),
		tree:    make([]float64, n+1),
		drawn:   make([]bool, n),
	}
	if n > 0 {
		s.top = 1
		for s.top<<1 <= n {
			s.top <<= 1
		}
	}
	s.Reset()
	return s, nil
}

// Reset puts every index back into the pool.
func (s *Sampler) Reset() {
	n := len(s.weights)
	copy(s.tree[1:], s.weights)
	for i := 1; i <= n; i++ {
		if j := i + (i & -i); j <= n {
			s.tree[j] += s.tree[i]
		}
	}
	for i := range s.drawn {
		s.drawn[i] = false
	}
	s.left = n
}

// Remaining is the number of indices not yet drawn.
func (s *Sampler) Remaining() int {
	return s.left
}

// Next draws one index. ok is false once the pool is exhausted.
func (s *Sampler) Next(src Source) (idx int, ok bool) {
	if s.left == 0 {
		return 0, false
	}
	idx = s.search(src.Float64() * s.total())
	if idx >= len(s.weights) || s.drawn[idx] {
		// Only reachable through float rounding on fractional weights.
		idx = s.nearestLive(idx)
	}
	s.remove(idx)
	return idx, true
}

func (s *Sampler) total() float64 {
	var sum float64
	for i := len(s.weights); i > 0; i -= i & -i {
		sum += s.tree[i]
	}
	return sum
}

// search returns the 0-based index of the first entry whose running sum
// exceeds target.
func (s *Sampler) search(target float64) int {
	pos := 0
	for step := s.top; step > 0; step >>= 1 {
		next := pos + step
		if next <= len(s.weights) && s.tree[next] <= target {
			pos = next
			target -= s.tree[next]
		}
	}
	return pos
}

func (s *Sampler) remove(idx int) {
	w := s.weights[idx]
	for i := idx + 1; i <= len(s.weights); i += i & -i {
		s.tree[i] -= w
	}
	s.drawn[idx] = true
	s.left--
}

func (s *Sampler) nearestLive(idx int) int {
	if idx >= len(s.weights) {
		idx = len(s.weights) - 1
	}
	for i := idx; i >= 0; i-- {
		if !s.drawn[i] {
			return i
		}
	}
	for i := idx + 1; i < len(s.weights); i++ {
		if !s.drawn[i] {
			return i
		}
	}
	panic("rng: sampler has remaining entries but none are live")
}
