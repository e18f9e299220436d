package models

import "github.com/pkg/errors"

var (
	// ErrInvalidEntrant is returned for a pool record that cannot take part
	// in a draw: unparseable or sub-1 ticket count, or a duplicate name.
	ErrInvalidEntrant = errors.New("invalid entrant")

	// ErrInvalidParameter is returned for bad simulation parameters.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrRunNotFound is returned by run stores for an unknown run id.
	ErrRunNotFound = errors.New("simulation run not found")
)
