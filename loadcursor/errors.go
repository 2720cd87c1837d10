package loadcursor

import "errors"

var (
	// ErrOutOfWindow is returned when an Alloc would run past the end of
	// the mapped slice-RAM window.
	ErrOutOfWindow = errors.New("loadcursor: allocation exceeds mapped window")

	// ErrInvariant is the panic value when the physical/virtual offset
	// invariant is violated; this should be unreachable and indicates a
	// bug in the caller.
	ErrInvariant = errors.New("loadcursor: physical/virtual offset invariant violated")
)
