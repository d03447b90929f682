package virtqueue

// RWIter adapts a DescriptorChain to yield only the descriptors whose
// IsWriteOnly matches a fixed direction. It terminates exactly when the
// underlying chain does.
type RWIter struct {
	chain    *DescriptorChain
	writable bool
}

// Next advances to the next descriptor matching this iterator's
// direction.
func (it *RWIter) Next() bool {
	for it.chain.Next() {
		if it.chain.Descriptor().IsWriteOnly() == it.writable {
			return true
		}
	}

	return false
}

// Descriptor returns the descriptor produced by the most recent call to
// Next that returned true.
func (it *RWIter) Descriptor() Descriptor { return it.chain.Descriptor() }
