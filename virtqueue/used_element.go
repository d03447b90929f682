package virtqueue

import "encoding/binary"

// usedElementSize is the wire size of a UsedElement: id(4) + len(4).
const usedElementSize = 8

// UsedElement is the fixed 8-byte record the device publishes to the
// used ring for each completed descriptor chain.
type UsedElement struct {
	// ID is the head descriptor index of the completed chain,
	// zero-extended from 16 bits.
	ID uint32
	// Len is the number of bytes the device wrote into the chain's
	// buffers.
	Len uint32
}

// NewUsedElement builds a UsedElement for the chain headed at head,
// zero-extending it to 32 bits as the wire format requires.
func NewUsedElement(head uint16, length uint32) UsedElement {
	return UsedElement{ID: uint32(head), Len: length}
}

func (e UsedElement) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.ID)
	binary.LittleEndian.PutUint32(buf[4:8], e.Len)
}

func decodeUsedElement(buf []byte) UsedElement {
	return UsedElement{
		ID:  binary.LittleEndian.Uint32(buf[0:4]),
		Len: binary.LittleEndian.Uint32(buf[4:8]),
	}
}
