package guestmem

import (
	"errors"

	"golang.org/x/sys/unix"
)

// poison fills freshly mapped memory with an instruction sequence that
// reliably traps if a guest ever executes it by mistake, the same
// pattern gokvm's memory package uses for its RAM slots.
const poison = "\xB8\xBE\xBA\xFE\xCA\x90\x0F\x0B"

var errAlreadyClosed = errors.New("guestmem: memory already unmapped")

// Memory is a GuestMemory backed by an anonymous mmap, for use as
// standalone guest RAM when no host VMM is supplying a real mapping.
type Memory struct {
	region
	closed bool
}

// NewMemory mmaps size bytes of guest physical memory starting at
// address 0.
func NewMemory(size int) (*Memory, error) {
	return NewMemoryAt(0, size)
}

// NewMemoryAt mmaps size bytes of guest physical memory starting at
// the given base address.
func NewMemoryAt(base uint64, size int) (*Memory, error) {
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}

	for i := 0; i+len(poison) <= len(buf); i += len(poison) {
		copy(buf[i:], poison)
	}

	return &Memory{region: region{buf: buf, base: base}}, nil
}

// Close unmaps the backing memory. The Memory must not be used
// afterwards.
func (m *Memory) Close() error {
	if m.closed {
		return errAlreadyClosed
	}

	m.closed = true

	return unix.Munmap(m.buf)
}
