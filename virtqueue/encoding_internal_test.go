package virtqueue

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/bobuhiro11/govirtqueue/guestmem"
)

// TestDescriptorEncodeDecodeRoundTrip lives inside the package (not
// _test) because decodeDescriptor/encode are unexported — they're wire
// plumbing, not part of the public surface, so only the tests in this
// file exercise them directly rather than through a Layout.
func TestDescriptorEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	want := NewDescriptor(0x1234_5678_9abc_def0, 0xcafef00d, DescFNext|DescFWrite, 0x42)

	var buf [descriptorSize]byte
	want.encode(buf[:])

	got := decodeDescriptor(buf[:])

	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("descriptor round trip changed fields:\n%s", diff)
	}
}

func TestUsedElementEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	want := NewUsedElement(0xbeef, 0x1000)

	var buf [usedElementSize]byte
	want.encode(buf[:])

	got := decodeUsedElement(buf[:])

	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("used element round trip changed fields:\n%s", diff)
	}
}

// TestDescriptorChainErrOnMemoryFault builds a descriptor table sized
// for only one entry, so that a chain claiming a second descriptor
// faults reading past the backing buffer instead of just seeing zeroed
// memory. Err must surface that fault rather than reporting a clean end
// of chain. Lives inside the package so it can reach the unexported
// chain constructor directly, without a full Queue/Layout around it.
func TestDescriptorChainErrOnMemoryFault(t *testing.T) {
	t.Parallel()

	mem := guestmem.NewSlice(make([]byte, descriptorSize))

	var buf [descriptorSize]byte
	NewDescriptor(0x1000, 16, DescFNext, 1).encode(buf[:])

	if err := mem.WriteAt(0, buf[:]); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	chain := newDescriptorChain(mem, 0, 4, 0)

	if !chain.Next() {
		t.Fatalf("expected the head descriptor to be produced")
	}

	if chain.Next() {
		t.Fatalf("expected traversal to stop once descriptor 1 reads past guest memory")
	}

	if chain.Err() == nil {
		t.Fatalf("expected Err() to report the memory fault reading descriptor 1")
	}
}
