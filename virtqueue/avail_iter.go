package virtqueue

import (
	"encoding/binary"
	"log"

	"github.com/bobuhiro11/govirtqueue/guestmem"
)

// availRingHeaderSize is flags(u16) + idx(u16).
const availRingHeaderSize = 4

// availElementSize is the width of one avail.ring[] entry.
const availElementSize = 2

// AvailIter is a consuming iterator over every available descriptor
// chain head the driver has published since the device's cursor. It is
// constructed by Queue.Iter; the snapshot of the driver's published idx
// it was built from is frozen for the lifetime of one AvailIter.
type AvailIter struct {
	mem       guestmem.GuestMemory
	descTable uint64
	availRing uint64
	lastIndex uint16
	queueSize uint16
	nextAvail *uint16

	chain *DescriptorChain
}

// Next advances to the next available chain head and reports whether
// one was produced.
func (it *AvailIter) Next() bool {
	if *it.nextAvail == it.lastIndex {
		return false
	}

	offset := availRingHeaderSize + uint64(*it.nextAvail%it.queueSize)*availElementSize
	addr := it.availRing + offset

	var buf [2]byte
	if err := it.mem.ReadAt(addr, buf[:]); err != nil {
		log.Printf("virtqueue: failed to read available ring entry at %#x: %v", addr, err)
		return false
	}

	head := binary.LittleEndian.Uint16(buf[:])
	*it.nextAvail++

	it.chain = newDescriptorChain(it.mem, it.descTable, it.queueSize, head)

	return true
}

// Chain returns the DescriptorChain produced by the most recent call to
// Next that returned true.
func (it *AvailIter) Chain() *DescriptorChain { return it.chain }
