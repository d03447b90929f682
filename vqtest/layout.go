// Package vqtest builds a flat, directly-pokeable guest memory layout
// for exercising virtqueue.Queue in tests, the way a real driver's ring
// layout would sit in a guest's physical address space. It plays the
// role the rust-vmm crate this package's sibling is grounded on gives
// to its own test_utils::MockSplitQueue, and the role gokvm's tests
// play by writing directly into the struct layout at a known address.
package vqtest

import (
	"encoding/binary"

	"github.com/bobuhiro11/govirtqueue/guestmem"
)

const (
	descSize       = 16
	availElemSize  = 2
	availHeaderLen = 4 // flags + idx
	usedElemSize   = 8
	usedHeaderLen  = 4 // flags + idx
)

// Layout lays out a descriptor table, an available ring and a used ring
// back to back in a single guestmem.Slice, in that order, each aligned
// to a 16-byte boundary so every ring satisfies Queue.IsValid's
// alignment checks by construction. Tests poke fields directly through
// its Set*/Used* methods rather than through the production encode/
// decode path, so a bug in that path can't mask itself from its own
// tests.
type Layout struct {
	Mem *guestmem.Slice

	QueueSize uint16

	DescTableAddr uint64
	AvailRingAddr uint64
	UsedRingAddr  uint64

	// ScratchAddr is the start of a reserved region past the three
	// rings, for tests that need to place an indirect descriptor table
	// or other out-of-band data.
	ScratchAddr uint64
}

func align16(n uint64) uint64 { return (n + 15) &^ 15 }

// scratchLen is extra room reserved past the three rings for tests that
// need somewhere to put an indirect descriptor table or other
// out-of-band data without growing the buffer themselves.
const scratchLen = 4096

// NewLayout allocates a buffer sized to hold a queue of qsize plus a
// scratch region, and lays out the three rings within it.
func NewLayout(qsize uint16) *Layout {
	descTableAddr := uint64(0)
	descTableLen := uint64(qsize) * descSize

	availRingAddr := align16(descTableAddr + descTableLen)
	availRingLen := availHeaderLen + uint64(qsize)*availElemSize + 2 // + used_event

	usedRingAddr := align16(availRingAddr + availRingLen)
	usedRingLen := usedHeaderLen + uint64(qsize)*usedElemSize + 2 // + avail_event

	scratchAddr := align16(usedRingAddr + usedRingLen)
	total := scratchAddr + scratchLen

	return &Layout{
		Mem:           guestmem.NewSlice(make([]byte, total)),
		QueueSize:     qsize,
		DescTableAddr: descTableAddr,
		AvailRingAddr: availRingAddr,
		UsedRingAddr:  usedRingAddr,
		ScratchAddr:   scratchAddr,
	}
}

// Configure wires this layout's addresses and size into q and marks it
// ready, the minimum a driver must do before IsValid can pass.
func (l *Layout) Configure(q interface {
	SetSize(uint16)
	SetAddresses(uint64, uint64, uint64)
	SetReady(bool)
}) {
	q.SetSize(l.QueueSize)
	q.SetAddresses(l.DescTableAddr, l.AvailRingAddr, l.UsedRingAddr)
	q.SetReady(true)
}

// SetDesc writes descriptor i of the table.
func (l *Layout) SetDesc(i uint16, addr uint64, length uint32, flags, next uint16) {
	buf := l.Mem.Bytes()[l.DescTableAddr+uint64(i)*descSize:]
	binary.LittleEndian.PutUint64(buf[0:8], addr)
	binary.LittleEndian.PutUint32(buf[8:12], length)
	binary.LittleEndian.PutUint16(buf[12:14], flags)
	binary.LittleEndian.PutUint16(buf[14:16], next)
}

// SetAvailFlags and SetAvailIdx write the available ring's header
// fields.
func (l *Layout) SetAvailFlags(flags uint16) {
	binary.LittleEndian.PutUint16(l.Mem.Bytes()[l.AvailRingAddr:], flags)
}

func (l *Layout) SetAvailIdx(idx uint16) {
	binary.LittleEndian.PutUint16(l.Mem.Bytes()[l.AvailRingAddr+2:], idx)
}

// SetAvailRing writes the head descriptor index published at available
// ring slot i (i.e. ring[i % qsize], unwrapped by the caller).
func (l *Layout) SetAvailRing(i uint16, head uint16) {
	off := l.AvailRingAddr + availHeaderLen + uint64(i)*availElemSize
	binary.LittleEndian.PutUint16(l.Mem.Bytes()[off:], head)
}

// UsedEvent reads the used_event field trailing the available ring,
// the field a driver writes under EVENT_IDX to ask the device for a
// notification once the device's used-ring production passes it.
func (l *Layout) UsedEvent() uint16 {
	off := l.AvailRingAddr + availHeaderLen + uint64(l.QueueSize)*availElemSize
	return binary.LittleEndian.Uint16(l.Mem.Bytes()[off:])
}

// UsedFlags and UsedIdx read the used ring's header fields.
func (l *Layout) UsedFlags() uint16 {
	return binary.LittleEndian.Uint16(l.Mem.Bytes()[l.UsedRingAddr:])
}

func (l *Layout) UsedIdx() uint16 {
	return binary.LittleEndian.Uint16(l.Mem.Bytes()[l.UsedRingAddr+2:])
}

// UsedElem reads the used ring element published at slot i.
func (l *Layout) UsedElem(i uint16) (id uint32, length uint32) {
	off := l.UsedRingAddr + usedHeaderLen + uint64(i)*usedElemSize
	buf := l.Mem.Bytes()[off:]
	return binary.LittleEndian.Uint32(buf[0:4]), binary.LittleEndian.Uint32(buf[4:8])
}

// SetAvailEvent sets the avail_event field trailing the used ring, the
// field a device writes under EVENT_IDX to ask the driver for a
// notification once the driver's available-ring production passes it.
func (l *Layout) SetAvailEvent(val uint16) {
	off := l.UsedRingAddr + usedHeaderLen + uint64(l.QueueSize)*usedElemSize
	binary.LittleEndian.PutUint16(l.Mem.Bytes()[off:], val)
}
