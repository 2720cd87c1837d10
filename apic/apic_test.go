package apic

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/msrssp/cpuslice/devmem"
)

// fakeAPIC wraps a plain byte slice as if it were MMIO-mapped APIC
// registers, letting the IPI sequence test run without root or real
// hardware. readReg/writeReg are exercised through the real xAPIC methods.
func newFakeXAPIC() *xAPIC {
	return &xAPIC{mmio: &devmem.Window{Bytes: make([]byte, 0x1000)}}
}

func TestXAPICStartupIPISequence(t *testing.T) {
	t.Parallel()

	x := newFakeXAPIC()

	const target = uint32(7)

	const startupPhys = 0x6000

	var writes []uint32

	// Record every ICR-low write by polling the backing buffer instead
	// of a live delivery-status bit: the fake always reports delivery
	// complete, so SendIPI's wait loop never blocks.
	recordAndClear := func() {
		lo := binary.LittleEndian.Uint32(x.mmio.Bytes[regICRLow : regICRLow+4])
		writes = append(writes, lo)
	}

	before := time.Now()

	if err := x.SendIPI(icrDeliveryInit|icrLevelAssert|icrTriggerLevel, target, true); err != nil {
		t.Fatal(err)
	}

	recordAndClear()

	if err := x.SendIPI(icrDeliveryInit|icrTriggerLevel, target, true); err != nil {
		t.Fatal(err)
	}

	recordAndClear()

	vector := uint32(startupPhys >> 12)

	if err := x.SendIPI(icrDeliveryStartup|icrLevelAssert|vector, target, true); err != nil {
		t.Fatal(err)
	}

	recordAndClear()

	time.Sleep(11 * time.Microsecond)

	if err := x.SendIPI(icrDeliveryStartup|icrLevelAssert|vector, target, true); err != nil {
		t.Fatal(err)
	}

	recordAndClear()

	elapsed := time.Since(before)

	want := []uint32{
		icrDeliveryInit | icrLevelAssert | icrTriggerLevel,
		icrDeliveryInit | icrTriggerLevel,
		icrDeliveryStartup | icrLevelAssert | vector,
		icrDeliveryStartup | icrLevelAssert | vector,
	}

	if len(writes) != len(want) {
		t.Fatalf("got %d ICR writes, want %d", len(writes), len(want))
	}

	for i := range want {
		if writes[i] != want[i] {
			t.Fatalf("write[%d] = %#x, want %#x", i, writes[i], want[i])
		}
	}

	hi := binary.LittleEndian.Uint32(x.mmio.Bytes[regICRHi : regICRHi+4])
	if hi != target<<24 {
		t.Fatalf("ICR-high = %#x, want %#x", hi, target<<24)
	}

	if elapsed < 10*time.Microsecond {
		t.Fatalf("elapsed %v between SIPIs, want >= 10us", elapsed)
	}
}

func TestSendStartupIPIRejectsUnalignedStartup(t *testing.T) {
	t.Parallel()

	x := newFakeXAPIC()

	if err := SendStartupIPI(x, 1, 0x6001); err == nil {
		t.Fatal("expected rejection of a non-page-aligned startup address")
	}
}

func TestSendStartupIPIRejectsOutOfRangeXAPICTarget(t *testing.T) {
	t.Parallel()

	x := newFakeXAPIC()

	if err := SendStartupIPI(x, 0x100, 0x6000); err == nil {
		t.Fatal("expected rejection of an xAPIC target id above 0xFF")
	}
}
