package model

import "errors"

var (
	// ErrInvalidBar is returned when OHLCV values violate bar invariants.
	ErrInvalidBar = errors.New("invalid bar")

	// ErrOutOfOrder is returned when a bar does not strictly follow the last one in time.
	ErrOutOfOrder = errors.New("bar out of order")

	// ErrUnsupportedProvider is returned when a sink receives a payload from a provider it does not accept.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrNotFound is returned by readers when nothing matches.
	ErrNotFound = errors.New("not found")
)
