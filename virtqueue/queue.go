package virtqueue

import (
	"log"

	"github.com/bobuhiro11/govirtqueue/guestmem"
)

// Ring layout constants used by IsValid's bounds math. usedRingHeaderSize
// is flags(u16) + idx(u16); each ring additionally carries a trailing
// u16 event field (avail_event / used_event) once EVENT_IDX is
// negotiated, which is why the size formulas below add 2 even when the
// feature isn't in use — the field is always reserved in the layout.
const usedRingHeaderSize = 4

// usedFNoNotify suppresses driver notifications when flag-based
// suppression (rather than EVENT_IDX) is in effect.
const usedFNoNotify uint16 = 0x1

// Queue is the device-side handle for one virtqueue: its configuration
// (sizes, ring addresses), its two cursors into the shared rings, and
// the EVENT_IDX bookkeeping needed to decide when the driver must be
// notified. It owns no goroutines and does no I/O beyond reads/writes
// against its GuestMemory; callers drive it from their own device loop.
type Queue struct {
	mem guestmem.GuestMemory

	maxSize uint16
	size    uint16
	ready   bool

	descTable uint64
	availRing uint64
	usedRing  uint64

	eventIdxEnabled bool

	nextAvail uint16
	nextUsed  uint16

	hasSignalledUsed bool
	signalledUsed    uint16
}

// NewQueue creates a queue bound to mem with the given maximum size. It
// starts not ready, with size defaulted to maxSize and every address at
// zero — the driver must configure it through the Set* methods before
// IsValid reports true.
func NewQueue(mem guestmem.GuestMemory, maxSize uint16) *Queue {
	return &Queue{mem: mem, maxSize: maxSize, size: maxSize}
}

// MaxSize is the largest size this queue can be configured to.
func (q *Queue) MaxSize() uint16 { return q.maxSize }

// Size is the size the driver has configured, which may exceed MaxSize
// until validated — ActualSize is what traversal and bounds checks
// actually use.
func (q *Queue) Size() uint16 { return q.size }

// ActualSize is the size effective for ring math: min(Size, MaxSize).
func (q *Queue) ActualSize() uint16 {
	if q.size > q.maxSize {
		return q.maxSize
	}

	return q.size
}

// SetSize configures the queue's driver-selected size.
func (q *Queue) SetSize(size uint16) { q.size = size }

// Ready reports whether the driver has marked the queue ready.
func (q *Queue) Ready() bool { return q.ready }

// SetReady marks the queue ready or not.
func (q *Queue) SetReady(ready bool) { q.ready = ready }

// SetAddresses configures the guest-physical addresses of the
// descriptor table, available ring and used ring.
func (q *Queue) SetAddresses(descTable, availRing, usedRing uint64) {
	q.descTable = descTable
	q.availRing = availRing
	q.usedRing = usedRing
}

// DescTable, AvailRing and UsedRing return the currently configured
// ring addresses.
func (q *Queue) DescTable() uint64 { return q.descTable }
func (q *Queue) AvailRing() uint64 { return q.availRing }
func (q *Queue) UsedRing() uint64  { return q.usedRing }

// EventIdxEnabled reports whether EVENT_IDX-based notification
// suppression was negotiated.
func (q *Queue) EventIdxEnabled() bool { return q.eventIdxEnabled }

// SetEventIdx records whether EVENT_IDX was negotiated with the driver.
// It also clears the signalled-used bookkeeping, since that state is
// only meaningful under one EVENT_IDX regime at a time.
func (q *Queue) SetEventIdx(enabled bool) {
	q.eventIdxEnabled = enabled
	q.hasSignalledUsed = false
	q.signalledUsed = 0
}

// Reset returns the queue to its just-created configuration: not ready,
// size back to maxSize, every address and cursor zeroed.
func (q *Queue) Reset() {
	q.ready = false
	q.size = q.maxSize
	q.descTable = 0
	q.availRing = 0
	q.usedRing = 0
	q.eventIdxEnabled = false
	q.nextAvail = 0
	q.nextUsed = 0
	q.hasSignalledUsed = false
	q.signalledUsed = 0
}

// NextAvail and SetNextAvail expose the device's consumer cursor into
// the available ring, for save/restore across migration or snapshot.
func (q *Queue) NextAvail() uint16     { return q.nextAvail }
func (q *Queue) SetNextAvail(v uint16) { q.nextAvail = v }

// GoToPreviousPosition rewinds the available-ring cursor by one. It's
// used when a chain was popped from the iterator but the device could
// not act on it (for example, it ran out of an internal resource) and
// wants to see it again on the next Iter call.
func (q *Queue) GoToPreviousPosition() {
	q.nextAvail--
}

// inBounds reports whether the half-open byte range [base, base+size)
// lies entirely within mem. It checks the last byte of the range, not
// one past it, so a ring that exactly fills the end of guest memory is
// accepted rather than spuriously rejected.
func inBounds(mem guestmem.GuestMemory, base, size uint64) bool {
	if size == 0 {
		return mem.AddressInRange(base)
	}

	last, err := mem.CheckedAdd(base, size-1)
	if err != nil {
		return false
	}

	return mem.AddressInRange(last)
}

// IsValid reports whether the queue's current configuration is safe to
// use: ready, a nonzero power-of-two size not exceeding maxSize, and
// three correctly aligned rings that fit entirely within guest memory.
// Every failure is logged with its reason, mirroring how a real device
// would report a misconfigured queue to its driver.
func (q *Queue) IsValid() bool {
	size := uint64(q.ActualSize())

	switch {
	case !q.ready:
		log.Printf("virtqueue: queue is not ready")
		return false
	case q.size == 0 || q.size > q.maxSize || q.size&(q.size-1) != 0:
		log.Printf("virtqueue: invalid queue size %d (max %d)", q.size, q.maxSize)
		return false
	case !inBounds(q.mem, q.descTable, size*descriptorSize):
		log.Printf("virtqueue: descriptor table %#x size %d out of bounds", q.descTable, size)
		return false
	case !inBounds(q.mem, q.availRing, availRingHeaderSize+availElementSize*size+2):
		log.Printf("virtqueue: available ring %#x size %d out of bounds", q.availRing, size)
		return false
	case !inBounds(q.mem, q.usedRing, usedRingHeaderSize+usedElementSize*size+2):
		log.Printf("virtqueue: used ring %#x size %d out of bounds", q.usedRing, size)
		return false
	case q.descTable&0xf != 0:
		log.Printf("virtqueue: descriptor table %#x is not 16-byte aligned", q.descTable)
		return false
	case q.availRing&0x1 != 0:
		log.Printf("virtqueue: available ring %#x is not 2-byte aligned", q.availRing)
		return false
	case q.usedRing&0x3 != 0:
		log.Printf("virtqueue: used ring %#x is not 4-byte aligned", q.usedRing)
		return false
	default:
		return true
	}
}

// availIdx loads the driver-published idx field of the available ring.
//
// The field sits at availRing+2 (flags occupies the first two bytes) —
// not, as one upstream snapshot of this logic mistakenly read it, at an
// offset into the used ring. Getting this wrong would have the device
// reading the wrong driver entirely.
func (q *Queue) availIdx(order guestmem.Ordering) (uint16, error) {
	return q.mem.Load16(q.availRing+2, order)
}

// Iter snapshots the driver's published avail.idx with acquire ordering
// and returns an iterator over every chain head available since the
// device's own cursor.
func (q *Queue) Iter() (*AvailIter, error) {
	idx, err := q.availIdx(guestmem.Acquire)
	if err != nil {
		return nil, err
	}

	return &AvailIter{
		mem:       q.mem,
		descTable: q.descTable,
		availRing: q.availRing,
		lastIndex: idx,
		queueSize: q.ActualSize(),
		nextAvail: &q.nextAvail,
	}, nil
}

// AddUsed publishes completion of the chain headed at head, having
// written length bytes into it. The used element is written first and
// the ring's idx is bumped with a release store second, so a driver
// that observes the new idx is guaranteed to see the element behind it.
func (q *Queue) AddUsed(head uint16, length uint32) error {
	size := q.ActualSize()
	if head >= size {
		return ErrInvalidDescriptorIndex
	}

	slot := q.nextUsed % size
	addr := q.usedRing + usedRingHeaderSize + uint64(slot)*usedElementSize

	var buf [usedElementSize]byte
	NewUsedElement(head, length).encode(buf[:])

	if err := q.mem.WriteAt(addr, buf[:]); err != nil {
		return err
	}

	q.nextUsed++

	return q.mem.Store16(q.usedRing+2, q.nextUsed, guestmem.Release)
}

// setUsedFlags stores the used ring's flags field.
func (q *Queue) setUsedFlags(val uint16, order guestmem.Ordering) error {
	return q.mem.Store16(q.usedRing, val, order)
}

// setAvailEvent stores the avail_event field the driver polls when
// EVENT_IDX is enabled, which lives just past the used ring's elements.
func (q *Queue) setAvailEvent(val uint16, order guestmem.Ordering) error {
	addr := q.usedRing + usedRingHeaderSize + uint64(q.ActualSize())*usedElementSize
	return q.mem.Store16(addr, val, order)
}

// usedEvent loads the used_event field the device polls when EVENT_IDX
// is enabled, which lives just past the available ring's elements.
func (q *Queue) usedEvent(order guestmem.Ordering) (uint16, error) {
	addr := q.availRing + availRingHeaderSize + uint64(q.ActualSize())*availElementSize
	return q.mem.Load16(addr, order)
}

// setNotification implements one direction of EnableNotification /
// DisableNotification: under EVENT_IDX it publishes where the device's
// cursor currently sits so the driver can compare against it; otherwise
// it flips VIRTQ_USED_F_NO_NOTIFY directly.
func (q *Queue) setNotification(enable bool) error {
	if enable {
		if q.eventIdxEnabled {
			return q.setAvailEvent(q.nextAvail, guestmem.Relaxed)
		}

		return q.setUsedFlags(0, guestmem.Relaxed)
	}

	if !q.eventIdxEnabled {
		return q.setUsedFlags(usedFNoNotify, guestmem.Relaxed)
	}

	return nil
}

// EnableNotification asks for the next available-ring notification and
// reports whether a chain has already arrived since the last time the
// caller observed the ring — in which case the caller must not wait for
// a notification that may never come and should poll Iter directly.
//
// The fence between the write and the re-check read is required by the
// protocol even though it compiles to nothing extra on top of Go's
// already sequentially consistent atomics: without it a compiler or CPU
// would be free to read avail.idx before the notification request is
// visible to the driver, recreating the lost-notification race this
// call exists to close.
func (q *Queue) EnableNotification() (bool, error) {
	if err := q.setNotification(true); err != nil {
		return false, err
	}

	fence()

	idx, err := q.availIdx(guestmem.Relaxed)
	if err != nil {
		return false, err
	}

	return idx != q.nextAvail, nil
}

// DisableNotification tells the driver it need not notify the device
// until EnableNotification is called again.
func (q *Queue) DisableNotification() error {
	return q.setNotification(false)
}

// NeedsNotification reports whether the driver must be kicked after a
// batch of AddUsed calls, and records the used index this call
// signalled the driver up to. Under EVENT_IDX this is the exact wrapped
// window test from the protocol; without it, every call needs a
// notification (suppression is the flag the driver manages itself).
func (q *Queue) NeedsNotification() (bool, error) {
	usedIdx := q.nextUsed

	fence()

	if !q.eventIdxEnabled {
		return true, nil
	}

	oldIdx := q.signalledUsed
	hadOld := q.hasSignalledUsed

	q.signalledUsed = usedIdx
	q.hasSignalledUsed = true

	if !hadOld {
		return true, nil
	}

	event, err := q.usedEvent(guestmem.Relaxed)
	if err != nil {
		return false, err
	}

	lhs := wrapDiff(wrapDiff(usedIdx, event), 1)
	rhs := wrapDiff(usedIdx, oldIdx)

	return lhs < rhs, nil
}
