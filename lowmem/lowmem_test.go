package lowmem

import (
	"encoding/binary"
	"testing"

	"github.com/msrssp/cpuslice/acpi"
)

func TestPatchTrampolineOverwritesEntryAndArg(t *testing.T) {
	t.Parallel()

	blob := append([]byte(nil), DefaultTrampoline()...)

	patched, err := patchTrampoline(blob, 0x1000000, 0x9000)
	if err != nil {
		t.Fatal(err)
	}

	if got := binary.LittleEndian.Uint64(patched[8:16]); got != 0x1000000 {
		t.Fatalf("kernel_entry = %#x, want 0x1000000", got)
	}

	if got := binary.LittleEndian.Uint64(patched[16:24]); got != 0x9000 {
		t.Fatalf("kernel_arg = %#x, want 0x9000", got)
	}

	// Original blob must be untouched; patchTrampoline must not alias it.
	if binary.LittleEndian.Uint64(blob[8:16]) != trampolineKernelEntrySentinel {
		t.Fatal("patchTrampoline mutated its input blob in place")
	}
}

func TestPatchTrampolineRejectsSentinelMismatch(t *testing.T) {
	t.Parallel()

	blob := append([]byte(nil), DefaultTrampoline()...)
	binary.LittleEndian.PutUint64(blob[8:16], 0xdeadbeef)

	if _, err := patchTrampoline(blob, 1, 2); err != ErrSentinelMismatch {
		t.Fatalf("got %v, want ErrSentinelMismatch", err)
	}
}

func TestPatchTrampolineRejectsTooSmallBlob(t *testing.T) {
	t.Parallel()

	if _, err := patchTrampoline(make([]byte, 8), 1, 2); err != ErrTrampolineTooSmall {
		t.Fatalf("got %v, want ErrTrampolineTooSmall", err)
	}
}

// TestScrubMPSignatures exercises spec.md Scenario 5's exact literals: a
// "_MP_" signature at offset 0x300 (within [0,1KiB)) and another at 0x9FC00
// (== 639*1024, within [639KiB,640KiB)), both of which must become "-MP-".
func TestScrubMPSignatures(t *testing.T) {
	t.Parallel()

	mem := make([]byte, 640*1024)

	binary.LittleEndian.PutUint32(mem[0x300:0x304], acpi.MPFloatingPointerSignature)
	binary.LittleEndian.PutUint32(mem[0x9FC00:0x9FC04], acpi.MPFloatingPointerSignature)

	addr1, found1 := scrubMPSignatures(mem, lowRangeStart, lowRangeLen)
	addr2, found2 := scrubMPSignatures(mem, highRangeStart, highRangeLen)

	if !found1 || addr1 != 0x300 {
		t.Fatalf("low-range first occurrence = %#x, found=%v, want 0x300, true", addr1, found1)
	}

	if !found2 || addr2 != 0x9FC00 {
		t.Fatalf("high-range first occurrence = %#x, found=%v, want 0x9FC00, true", addr2, found2)
	}

	if got := binary.LittleEndian.Uint32(mem[0x300:0x304]); got != acpi.MPScrubSignature {
		t.Fatalf("mem[0x300] = %#x, want scrub signature", got)
	}

	if got := binary.LittleEndian.Uint32(mem[0x9FC00:0x9FC04]); got != acpi.MPScrubSignature {
		t.Fatalf("mem[0x9FC00] = %#x, want scrub signature", got)
	}
}

func TestScrubMPSignaturesReturnsNotFoundWhenAbsent(t *testing.T) {
	t.Parallel()

	mem := make([]byte, 1024)

	if addr, found := scrubMPSignatures(mem, lowRangeStart, lowRangeLen); found {
		t.Fatalf("found = true, addr = %#x, want false", addr)
	}
}
