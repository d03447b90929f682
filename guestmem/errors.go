package guestmem

import "errors"

var (
	// ErrOutOfRange is returned when an access falls outside the
	// mapped guest address space.
	ErrOutOfRange = errors.New("guestmem: address out of range")

	// ErrOverflow is returned by CheckedAdd when addr+len wraps past
	// the 64-bit address space.
	ErrOverflow = errors.New("guestmem: address overflow")
)
