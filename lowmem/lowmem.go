// Package lowmem prepares the host's first megabyte of physical RAM for a
// waking CPU: it patches the real-mode trampoline blob with the kernel's
// entry point and argument, scrubs any MP-table pointers the host firmware
// left behind so the awakening kernel can't find them, and plants a fresh
// synthetic MP table for the slice's own CPUs. Grounded on
// original_source/lowmem.cpp (obliterate_mptable_range / write_mptable),
// adapted from "build a fixed layout" into a scan-scrub-replant operation
// over package acpi's generalized MPFloatingPointer/MPConfigHeader types.
package lowmem

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/msrssp/cpuslice/acpi"
	"github.com/msrssp/cpuslice/devmem"
)

const (
	kib = 1024

	firstMiB = 0x100000

	lowRangeStart = 0
	lowRangeLen   = 1 * kib

	highRangeStart = 639 * kib
	highRangeLen   = 1 * kib

	fallbackMPTableAddr = 639 * kib

	// trampolineKernelEntrySentinel is the known-value original_source's
	// realmode blob carries in its kernel_entry field until patched;
	// mismatch means a build/link mismatch per spec.md §7.
	trampolineKernelEntrySentinel = 0x5c3921544fd4ae2d
)

//go:embed testdata/trampoline.bin
var defaultTrampoline []byte

// ErrTrampolineTooSmall is returned when the trampoline blob is smaller
// than its own 24-byte header.
var ErrTrampolineTooSmall = errors.New("lowmem: trampoline blob smaller than its header")

// ErrSentinelMismatch is returned when the trampoline's kernel_entry field
// does not carry the expected build sentinel.
var ErrSentinelMismatch = errors.New("lowmem: trampoline kernel_entry sentinel mismatch, blob/build mismatch")

// DefaultTrampoline returns the repo's shipped trampoline blob.
func DefaultTrampoline() []byte {
	return defaultTrampoline
}

// patchTrampoline verifies the sentinel and overwrites bytes 8..23 with
// kernelEntry/kernelArg, per spec.md §4.E / §6's trampoline contract.
func patchTrampoline(blob []byte, kernelEntry, kernelArg uint64) ([]byte, error) {
	const headerLen = 24

	if len(blob) < headerLen {
		return nil, ErrTrampolineTooSmall
	}

	patched := append([]byte(nil), blob...)

	if binary.LittleEndian.Uint64(patched[8:16]) != trampolineKernelEntrySentinel {
		return nil, ErrSentinelMismatch
	}

	binary.LittleEndian.PutUint64(patched[8:16], kernelEntry)
	binary.LittleEndian.PutUint64(patched[16:24], kernelArg)

	return patched, nil
}

// scrubMPSignatures overwrites every 32-bit-aligned occurrence of the
// legacy "_MP_" floating-pointer signature within mem[base:base+length]
// with the "-MP-" sentinel, returning the physical address of the first
// occurrence found. found is false when no occurrence exists, since offset
// 0 is itself a valid address within [0,1KiB).
func scrubMPSignatures(mem []byte, base, length uint32) (addr uint32, found bool) {
	for off := base; off+4 <= base+length; off += 4 {
		if binary.LittleEndian.Uint32(mem[off:off+4]) == acpi.MPFloatingPointerSignature {
			if !found {
				addr = off
				found = true
			}

			binary.LittleEndian.PutUint32(mem[off:off+4], acpi.MPScrubSignature)
		}
	}

	return addr, found
}

// Init maps the host's first MiB, patches trampoline with kernelEntry/
// kernelArg and copies it to lowMemAddr, scrubs stale MP-table signatures
// from the ranges Linux itself scans, writes a fresh synthetic MP table for
// apicIDs (BSP first) at the chosen address, and returns the boot_ip the
// APIC driver should target (== lowMemAddr). Per spec.md §4.E, the window
// is unmapped before returning.
func Init(lowMemAddr uint64, trampoline []byte, kernelEntry, kernelArg uint64,
	apicIDs []uint32, familyModelStepping uint16, featureFlags uint32,
) (uint64, error) {
	patched, err := patchTrampoline(trampoline, kernelEntry, kernelArg)
	if err != nil {
		return 0, err
	}

	w, err := devmem.Open(0, firstMiB)
	if err != nil {
		return 0, fmt.Errorf("lowmem: map first MiB: %w", err)
	}
	defer w.Close()

	copy(w.Bytes[lowMemAddr:], patched)

	mp1, found1 := scrubMPSignatures(w.Bytes, lowRangeStart, lowRangeLen)
	mp2, found2 := scrubMPSignatures(w.Bytes, highRangeStart, highRangeLen)

	var mptablePA uint32

	switch {
	case found1:
		mptablePA = mp1
	case found2:
		mptablePA = mp2
	default:
		mptablePA = fallbackMPTableAddr
	}

	table, err := acpi.BuildMPTable(mptablePA, apicIDs, familyModelStepping, featureFlags)
	if err != nil {
		return 0, err
	}

	data, err := table.ToBytes()
	if err != nil {
		return 0, err
	}

	copy(w.Bytes[mptablePA:], data)

	return lowMemAddr, nil
}
