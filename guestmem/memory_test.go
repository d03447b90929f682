package guestmem_test

import (
	"testing"

	"github.com/bobuhiro11/govirtqueue/guestmem"
)

func TestMemoryPoisonedOnCreate(t *testing.T) {
	t.Parallel()

	m, err := guestmem.NewMemory(64)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	defer m.Close()

	buf := make([]byte, 8)
	if err := m.ReadAt(0, buf); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	allZero := true
	for _, b := range buf {
		if b != 0 {
			allZero = false
		}
	}

	if allZero {
		t.Fatalf("expected freshly mapped memory to carry a non-zero poison pattern")
	}
}

func TestMemoryReadWriteAtRoundTrip(t *testing.T) {
	t.Parallel()

	m, err := guestmem.NewMemory(64)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	defer m.Close()

	want := []byte{0xde, 0xad, 0xbe, 0xef}
	if err := m.WriteAt(16, want); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	got := make([]byte, len(want))
	if err := m.ReadAt(16, got); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReadAt = %v, want %v", got, want)
		}
	}
}

func TestMemoryDoubleCloseErrors(t *testing.T) {
	t.Parallel()

	m, err := guestmem.NewMemory(16)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	if err := m.Close(); err == nil {
		t.Fatalf("expected second Close to error")
	}
}

func TestMemoryAtBaseAddress(t *testing.T) {
	t.Parallel()

	m, err := guestmem.NewMemoryAt(0x10_0000, 32)
	if err != nil {
		t.Fatalf("NewMemoryAt: %v", err)
	}
	defer m.Close()

	if !m.AddressInRange(0x10_0000) {
		t.Fatalf("expected base address to be in range")
	}

	if m.AddressInRange(0x0) {
		t.Fatalf("address 0 should be out of range for a region based at 0x100000")
	}
}
