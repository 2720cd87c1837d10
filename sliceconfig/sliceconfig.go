// Package sliceconfig holds the frozen description of one slice boot: the
// kernel/initrd/cmdline/DSDT paths, the slice RAM window, the low-memory
// trampoline address, and the ordered list of host APIC IDs to hand the
// slice, BSP first. Grounded on gokvm's vmm.Config plain-struct-plus-
// validation idiom (github.com/bobuhiro11/gokvm/vmm), adapted from a VM's
// memory/CPU-count knobs to the slice's physical-address knobs.
package sliceconfig

import (
	"errors"
	"fmt"
)

const (
	pageSize        = 0x1000
	defaultLowMem   = 0x6000
	lowMemCeiling   = 640 * 1024
)

var (
	// ErrNoKernel is returned when no kernel path was supplied.
	ErrNoKernel = errors.New("sliceconfig: -kernel is required")

	// ErrRAMUnaligned is returned when rambase or ramsize is not a
	// multiple of the page size.
	ErrRAMUnaligned = errors.New("sliceconfig: rambase/ramsize must be page-aligned")

	// ErrNoRAM is returned when rambase or ramsize is zero.
	ErrNoRAM = errors.New("sliceconfig: rambase and ramsize are required")

	// ErrNoCPUs is returned when the CPU list is empty.
	ErrNoCPUs = errors.New("sliceconfig: -cpus must name at least one APIC id")

	// ErrDuplicateCPU is returned when the CPU list names the same APIC
	// ID twice.
	ErrDuplicateCPU = errors.New("sliceconfig: -cpus lists the same APIC id more than once")

	// ErrLowMemUnaligned is returned when the trampoline address is not
	// page-aligned or is at or above the 640 KiB ceiling. The trampoline's
	// own size is not taken into account.
	ErrLowMemUnaligned = errors.New("sliceconfig: -lowmem must be page-aligned and below 640KiB")

	// ErrCPUCollidesWithBSP is returned by Validate when a configured
	// slice CPU equals the host's own BSP APIC ID.
	ErrCPUCollidesWithBSP = errors.New("sliceconfig: a slice CPU equals the host BSP APIC id")

	// ErrCPUNotOnHost is returned by Validate when a configured slice
	// CPU is not among the host's enumerated APIC IDs.
	ErrCPUNotOnHost = errors.New("sliceconfig: a slice CPU id is not present on the host")
)

// Config is the frozen SliceConfig: immutable once returned by New.
type Config struct {
	KernelPath string
	InitrdPath string
	Cmdline    string
	DSDTPath   string
	RAMBase    uint64
	RAMSize    uint64
	LowMem     uint64
	CPUs       []uint32 // CPUs[0] is the slice BSP
}

// New builds and structurally validates a Config; it does not yet know the
// host's BSP APIC ID or APIC ID set, so the host-dependent checks are left
// to Validate.
func New(kernelPath, initrdPath, cmdline, dsdtPath string, rambase, ramsize, lowmem uint64, cpus []uint32) (*Config, error) {
	if kernelPath == "" {
		return nil, ErrNoKernel
	}

	if rambase == 0 || ramsize == 0 {
		return nil, ErrNoRAM
	}

	if rambase%pageSize != 0 || ramsize%pageSize != 0 {
		return nil, ErrRAMUnaligned
	}

	if lowmem == 0 {
		lowmem = defaultLowMem
	}

	if lowmem%pageSize != 0 || lowmem >= lowMemCeiling {
		return nil, ErrLowMemUnaligned
	}

	if len(cpus) == 0 {
		return nil, ErrNoCPUs
	}

	seen := make(map[uint32]bool, len(cpus))
	for _, id := range cpus {
		if seen[id] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateCPU, id)
		}

		seen[id] = true
	}

	return &Config{
		KernelPath: kernelPath,
		InitrdPath: initrdPath,
		Cmdline:    cmdline,
		DSDTPath:   dsdtPath,
		RAMBase:    rambase,
		RAMSize:    ramsize,
		LowMem:     lowmem,
		CPUs:       cpus,
	}, nil
}

// Validate cross-checks the slice CPU list against the host's BSP APIC ID
// and enumerated APIC ID set, per spec.md §4.G.
func (c *Config) Validate(bspAPICID uint32, hostAPICIDs []uint32) error {
	onHost := make(map[uint32]bool, len(hostAPICIDs))
	for _, id := range hostAPICIDs {
		onHost[id] = true
	}

	for _, id := range c.CPUs {
		if id == bspAPICID {
			return fmt.Errorf("%w: %d", ErrCPUCollidesWithBSP, id)
		}

		if !onHost[id] {
			return fmt.Errorf("%w: %d", ErrCPUNotOnHost, id)
		}
	}

	return nil
}
