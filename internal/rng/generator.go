package rng

import (
	"math"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/pkg/errors"
)

// Selection is one filled spot: 1-based draw position, the entrant drawn
// into it, and whether the position falls inside the main allocation.
type Selection struct {
	Position int            `json:"position"`
	Entrant  models.Entrant `json:"entrant"`
	IsMain   bool           `json:"is_main"`
}

// Engine runs complete draws over a fixed pool. It keeps its own copy of
// the pool and reuses one sampler across draws, so an Engine must not be
// shared between goroutines.
type Engine struct {
	pool    []models.Entrant
	sampler *Sampler
}

// NewEngine prepares an engine for pool. Every entrant needs a positive,
// finite ticket count.
func NewEngine(pool []models.Entrant) (*Engine, error) {
	weights := make([]float64, len(pool))
	for i, e := range pool {
		if !(e.Tickets > 0) || math.IsInf(e.Tickets, 1) {
			return nil, errors.Wrapf(models.ErrInvalidEntrant, "entrant %q has %v tickets", e.Name, e.Tickets)
		}
		weights[i] = e.Tickets
	}
	sampler, err := NewSampler(weights)
	if err != nil {
		return nil, err
	}
	return &Engine{
		pool:    append([]models.Entrant(nil), pool...),
		sampler: sampler,
	}, nil
}

// Size is the number of entrants in the pool.
func (e *Engine) Size() int {
	return len(e.pool)
}

// Each performs one draw and calls fn for every filled spot in draw order,
// passing the entrant's index in the pool. Drawing stops once
// mainSpots+waitlistSpots spots are filled or the pool runs out; a short pool
// is not an error.
func (e *Engine) Each(mainSpots, waitlistSpots int, src Source, fn func(position, index int, isMain bool)) error {
	if mainSpots < 0 || waitlistSpots < 0 {
		return errors.Wrapf(models.ErrInvalidParameter, "spot counts must not be negative (main=%d, waitlist=%d)", mainSpots, waitlistSpots)
	}
	e.sampler.Reset()
	total := mainSpots + waitlistSpots
	for position := 1; position <= total; position++ {
		idx, ok := e.sampler.Next(src)
		if !ok {
			break
		}
		fn(position, idx, position <= mainSpots)
	}
	return nil
}

// Draw performs one draw and returns the filled spots in draw order.
func (e *Engine) Draw(mainSpots, waitlistSpots int, src Source) ([]Selection, error) {
	n := mainSpots + waitlistSpots
	if n > len(e.pool) {
		n = len(e.pool)
	}
	if n < 0 {
		n = 0
	}
	out := make([]Selection, 0, n)
	err := e.Each(mainSpots, waitlistSpots, src, func(position, index int, isMain bool) {
		out = append(out, Selection{Position: position, Entrant: e.pool[index], IsMain: isMain})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Draw is a one-off draw over pool. Callers drawing repeatedly from the same
// pool should keep an Engine instead.
func Draw(pool []models.Entrant, mainSpots, waitlistSpots int, src Source) ([]Selection, error) {
	engine, err := NewEngine(pool)
	if err != nil {
		return nil, err
	}
	return engine.Draw(mainSpots, waitlistSpots, src)
}
