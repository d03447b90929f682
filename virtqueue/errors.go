package virtqueue

import "errors"

// Error values returned by Queue operations. DescriptorChain and its
// Readable/Writable iterators can't propagate these through their
// Scanner-style Next() bool surface, so they stop the walk and stash the
// cause for DescriptorChain.Err instead.
var (
	// ErrInvalidDescriptorIndex is returned by AddUsed when head is
	// out of bounds for the queue's current size.
	ErrInvalidDescriptorIndex = errors.New("virtqueue: descriptor index out of bounds")

	// ErrInvalidChain indicates a chain link points past the current
	// ring size, or the ttl bound ran out while the chain still
	// claimed more descriptors were coming. Surfaced through
	// DescriptorChain.Err once Next returns false.
	ErrInvalidChain = errors.New("virtqueue: invalid descriptor chain")

	// ErrInvalidIndirectDescriptor is returned when an indirect
	// descriptor is encountered while already inside an indirect
	// table (nesting is not allowed).
	ErrInvalidIndirectDescriptor = errors.New("virtqueue: nested indirect descriptor")

	// ErrInvalidIndirectDescriptorTable is returned when an indirect
	// descriptor's address or length violates alignment or size
	// bounds.
	ErrInvalidIndirectDescriptorTable = errors.New("virtqueue: invalid indirect descriptor table")
)
