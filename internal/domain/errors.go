package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")

	// ErrMalformedQuote marks a quote with a missing or non-numeric rate.
	ErrMalformedQuote = errors.New("malformed quote")

	// ErrUnknownBroker marks a quote or record naming a broker outside every
	// configured group.
	ErrUnknownBroker = errors.New("unknown broker")

	// ErrArithmeticInvariant is returned when a crossing is computed from
	// unset book sides. The detector guards against this, so seeing it means
	// the tracker state is corrupt.
	ErrArithmeticInvariant = errors.New("arithmetic invariant violated")
)
