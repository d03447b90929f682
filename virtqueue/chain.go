package virtqueue

import (
	"github.com/bobuhiro11/govirtqueue/guestmem"
)

// DescriptorChain walks the linked list of descriptors beginning at a
// head index, following DescFNext and expanding at most one level of
// indirect table. It's a Scanner-shaped iterator: call Next until it
// returns false, then check Err to tell a clean end of chain (Err
// returns nil) from a guest memory fault or a malformed chain (Err
// returns the cause).
//
// The ttl counter is the only defense against an attacker-crafted cycle
// in the next chain; it must never be bypassed by recursing into an
// indirect table or by following next without decrementing it.
type DescriptorChain struct {
	mem guestmem.GuestMemory

	descTable uint64
	queueSize uint16
	headIndex uint16
	nextIndex uint16
	ttl       uint16

	isIndirect bool
	truncated  bool

	cur Descriptor
	err error
}

func newDescriptorChain(mem guestmem.GuestMemory, descTable uint64, queueSize, headIndex uint16) *DescriptorChain {
	return newDescriptorChainWithTTL(mem, descTable, queueSize, queueSize, headIndex)
}

func newDescriptorChainWithTTL(mem guestmem.GuestMemory, descTable uint64, queueSize, ttl, headIndex uint16) *DescriptorChain {
	return &DescriptorChain{
		mem:       mem,
		descTable: descTable,
		queueSize: queueSize,
		headIndex: headIndex,
		nextIndex: headIndex,
		ttl:       ttl,
	}
}

// HeadIndex is the descriptor index the chain started at.
func (c *DescriptorChain) HeadIndex() uint16 { return c.headIndex }

// Memory returns the guest memory this chain reads buffers from.
func (c *DescriptorChain) Memory() guestmem.GuestMemory { return c.mem }

// IsIndirect reports whether the chain has descended into an indirect
// descriptor table.
func (c *DescriptorChain) IsIndirect() bool { return c.isIndirect }

// Readable returns an iterator over only the device-readable
// descriptors in the chain.
func (c *DescriptorChain) Readable() *RWIter {
	return &RWIter{chain: c, writable: false}
}

// Writable returns an iterator over only the device-writable
// descriptors in the chain.
func (c *DescriptorChain) Writable() *RWIter {
	return &RWIter{chain: c, writable: true}
}

// Next advances the chain to its next descriptor and reports whether
// one was produced. False means the chain is done; Err distinguishes a
// clean end (the last descriptor had no NEXT flag) from a fault or a
// chain the ttl bound cut short.
func (c *DescriptorChain) Next() bool {
	for {
		if c.ttl == 0 {
			if c.truncated {
				c.err = ErrInvalidChain
			}

			return false
		}

		if c.nextIndex >= c.queueSize {
			c.err = ErrInvalidChain
			return false
		}

		descAddr := c.descTable + uint64(c.nextIndex)*descriptorSize

		desc, err := c.readDescriptor(descAddr)
		if err != nil {
			c.err = err
			return false
		}

		if desc.IsIndirect() {
			if err := c.processIndirectDescriptor(desc); err != nil {
				c.err = err
				return false
			}

			continue
		}

		if desc.HasNext() {
			c.nextIndex = desc.Next()
			c.ttl--

			if c.ttl == 0 {
				c.truncated = true
			}
		} else {
			c.ttl = 0
		}

		c.cur = desc

		return true
	}
}

// Descriptor returns the descriptor produced by the most recent call to
// Next that returned true.
func (c *DescriptorChain) Descriptor() Descriptor { return c.cur }

// Err returns the error that ended the most recent Next call, or nil if
// the chain ended cleanly or Next hasn't returned false yet.
func (c *DescriptorChain) Err() error { return c.err }

func (c *DescriptorChain) readDescriptor(addr uint64) (Descriptor, error) {
	var buf [descriptorSize]byte
	if err := c.mem.ReadAt(addr, buf[:]); err != nil {
		return Descriptor{}, err
	}

	return decodeDescriptor(buf[:]), nil
}

// processIndirectDescriptor switches the chain to walk the indirect
// table d points to. No nesting is allowed: an indirect descriptor
// found while already inside an indirect table is rejected.
func (c *DescriptorChain) processIndirectDescriptor(d Descriptor) error {
	if c.isIndirect {
		return ErrInvalidIndirectDescriptor
	}

	if d.addr&(descriptorSize-1) != 0 || d.len&(descriptorSize-1) != 0 {
		return ErrInvalidIndirectDescriptorTable
	}

	tableLen := d.len / descriptorSize
	if tableLen > 65535 {
		return ErrInvalidIndirectDescriptorTable
	}

	c.descTable = d.addr
	c.queueSize = uint16(tableLen)
	c.nextIndex = 0
	c.ttl = c.queueSize
	c.isIndirect = true

	return nil
}
