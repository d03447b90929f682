package virtqueue

import "encoding/binary"

// Flag bits carried in a Descriptor's flags field.
const (
	// DescFNext marks a descriptor as continued via its next field.
	DescFNext uint16 = 0x1
	// DescFWrite marks a descriptor as device-writable (device to
	// driver). If unset, the descriptor is device-readable.
	DescFWrite uint16 = 0x2
	// DescFIndirect marks a descriptor's buffer as itself a table of
	// descriptors.
	DescFIndirect uint16 = 0x4
)

// descriptorSize is the wire size of a Descriptor: addr(8) + len(4) +
// flags(2) + next(2).
const descriptorSize = 16

// Descriptor is the fixed 16-byte, little-endian record describing one
// buffer in a descriptor chain.
type Descriptor struct {
	addr  uint64
	len   uint32
	flags uint16
	next  uint16
}

// Addr is the guest physical address of the buffer.
func (d Descriptor) Addr() uint64 { return d.addr }

// Len is the length of the buffer in bytes.
func (d Descriptor) Len() uint32 { return d.len }

// Flags returns the raw flag bits (next, write, indirect).
func (d Descriptor) Flags() uint16 { return d.flags }

// Next is the index of the next descriptor in the chain; only
// meaningful when HasNext is true.
func (d Descriptor) Next() uint16 { return d.next }

// HasNext reports whether DescFNext is set.
func (d Descriptor) HasNext() bool { return d.flags&DescFNext != 0 }

// IsWriteOnly reports whether the driver marked this buffer
// device-writable. If false, the buffer is device-readable.
func (d Descriptor) IsWriteOnly() bool { return d.flags&DescFWrite != 0 }

// IsIndirect reports whether DescFIndirect is set.
//
// The virtio spec restricts which flag combinations are legal on an
// indirect descriptor (e.g. INDIRECT alongside NEXT); this traversal
// does not enforce those restrictions, matching the reference
// implementation it's grounded on.
func (d Descriptor) IsIndirect() bool { return d.flags&DescFIndirect != 0 }

// NewDescriptor builds a Descriptor from its wire fields. It exists for
// tests; production code only ever reads descriptors off guest memory
// via decodeDescriptor, and this package exports no encoder for writing
// a Descriptor back out.
func NewDescriptor(addr uint64, length uint32, flags, next uint16) Descriptor {
	return Descriptor{addr: addr, len: length, flags: flags, next: next}
}

func decodeDescriptor(buf []byte) Descriptor {
	return Descriptor{
		addr:  binary.LittleEndian.Uint64(buf[0:8]),
		len:   binary.LittleEndian.Uint32(buf[8:12]),
		flags: binary.LittleEndian.Uint16(buf[12:14]),
		next:  binary.LittleEndian.Uint16(buf[14:16]),
	}
}

func (d Descriptor) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], d.addr)
	binary.LittleEndian.PutUint32(buf[8:12], d.len)
	binary.LittleEndian.PutUint16(buf[12:14], d.flags)
	binary.LittleEndian.PutUint16(buf[14:16], d.next)
}
