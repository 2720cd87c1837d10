// Package apic drives the Boot Processor's local APIC to deliver the
// INIT/INIT/SIPI sequence that wakes a target CPU into the slice's
// trampoline. Grounded on original_source/lapic.cpp's LocalApic class (xAPIC
// MMIO register layout, ICR split, wait-for-delivery polling) and extended
// per spec.md §4.F with an x2APIC MSR-backed variant, expressed as gokvm's
// package style favors: a small interface with two concrete
// implementations dispatched by a constructor, the same "sum type, not
// inheritance" shape spec.md §9 calls for.
package apic

import (
	"errors"
	"fmt"
	"time"

	"github.com/msrssp/cpuslice/devmem"
	"github.com/msrssp/cpuslice/msr"
)

// xAPIC MMIO register offsets (reg_index << 4 from the APIC base).
const (
	regID     = 0x020
	regESR    = 0x280
	regICRLow = 0x300
	regICRHi  = 0x310
)

// ICR command-register bit fields, shared by xAPIC (low 32 bits) and
// x2APIC (low 32 bits of the unified 64-bit MSR).
const (
	icrDeliveryStatus  = 1 << 12
	icrLevelAssert     = 1 << 14
	icrTriggerLevel    = 1 << 15
	icrDeliveryInit    = 0x500
	icrDeliveryStartup = 0x600
)

const (
	iaApicBaseBSP     = 1 << 8
	iaApicBaseEnabled = 1 << 11
	iaApicBaseX2APIC  = 1 << 10
	iaApicBaseMask    = ^uint64(0xFFF)

	apicMMIOPageSize = 0x1000
	startupPhysLimit = 0x10_0000

	startupSleep = 10 * time.Microsecond
)

// ErrNotBSP is returned by Open when IA32_APIC_BASE's BSP bit is clear.
var ErrNotBSP = errors.New("apic: IA32_APIC_BASE BSP bit is clear on the only visible CPU")

// ErrAPICDisabled is returned by Open when IA32_APIC_BASE's global-enable
// bit is clear.
var ErrAPICDisabled = errors.New("apic: local APIC is globally disabled")

// ErrIDMismatch is returned by Open when the driver's own APIC_ID read
// disagrees with the caller-supplied expected ID (spec.md §4.A
// local_apic_id cross-check).
var ErrIDMismatch = errors.New("apic: driver's APIC_ID read disagrees with CPUID-derived local_apic_id")

// ErrTargetOutOfRange is returned by SendStartupIPI when targetAPICID
// exceeds 0xFF in xAPIC mode.
var ErrTargetOutOfRange = errors.New("apic: target APIC id exceeds 0xFF, not addressable in xAPIC mode")

// ErrStartupNotPageAligned is returned by SendStartupIPI when startupPhys
// isn't page-aligned or falls at/above 1 MiB.
var ErrStartupNotPageAligned = errors.New("apic: startup physical address must be page-aligned and below 0x100000")

// Driver is the shared operation set for both register layouts (spec.md
// §9's polymorphic APIC note).
type Driver interface {
	ReadID() (uint32, error)
	SendIPI(cmd uint32, dest uint32, wait bool) error
	Close() error
}

// Open reads IA32_APIC_BASE on the host's sole CPU and constructs the
// matching Driver: x2APIC (MSR-backed) if bit 10 is set, otherwise xAPIC
// (MMIO-backed via devmem). expectAPICID is the CPUID-derived
// local_apic_id the driver's own ID register read must match.
func Open(expectAPICID uint32) (Driver, error) {
	m, err := msr.OpenBSP()
	if err != nil {
		return nil, err
	}

	base, err := m.Read(msr.IA32ApicBase)
	if err != nil {
		m.Close()

		return nil, err
	}

	if base&iaApicBaseBSP == 0 {
		m.Close()

		return nil, ErrNotBSP
	}

	if base&iaApicBaseEnabled == 0 {
		m.Close()

		return nil, ErrAPICDisabled
	}

	var d Driver

	if base&iaApicBaseX2APIC != 0 {
		d = &x2APIC{msr: m}
	} else {
		mmioBase := base & iaApicBaseMask

		w, err := devmem.Open(mmioBase, apicMMIOPageSize)
		if err != nil {
			m.Close()

			return nil, err
		}

		d = &xAPIC{mmio: w, msrFallback: m}
	}

	id, err := d.ReadID()
	if err != nil {
		d.Close()

		return nil, err
	}

	if id != expectAPICID {
		d.Close()

		return nil, fmt.Errorf("%w: driver=%#x cpuid=%#x", ErrIDMismatch, id, expectAPICID)
	}

	return d, nil
}

// SendStartupIPI emits the documented INIT-assert, INIT-deassert, SIPI,
// sleep(>=10us), SIPI sequence to targetAPICID pointing at startupPhys.
func SendStartupIPI(d Driver, targetAPICID uint32, startupPhys uint64) error {
	if startupPhys%0x1000 != 0 || startupPhys >= startupPhysLimit {
		return ErrStartupNotPageAligned
	}

	if _, ok := d.(*xAPIC); ok && targetAPICID > 0xFF {
		return ErrTargetOutOfRange
	}

	vector := uint32(startupPhys >> 12)

	if err := d.SendIPI(icrDeliveryInit|icrLevelAssert|icrTriggerLevel, targetAPICID, true); err != nil {
		return fmt.Errorf("apic: INIT assert: %w", err)
	}

	if err := d.SendIPI(icrDeliveryInit|icrTriggerLevel, targetAPICID, true); err != nil {
		return fmt.Errorf("apic: INIT deassert: %w", err)
	}

	if err := d.SendIPI(icrDeliveryStartup|icrLevelAssert|vector, targetAPICID, true); err != nil {
		return fmt.Errorf("apic: first SIPI: %w", err)
	}

	time.Sleep(startupSleep)

	if err := d.SendIPI(icrDeliveryStartup|icrLevelAssert|vector, targetAPICID, true); err != nil {
		return fmt.Errorf("apic: second SIPI: %w", err)
	}

	return nil
}
