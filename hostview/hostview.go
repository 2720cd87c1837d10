// Package hostview builds the one-shot, read-only picture of the host this
// tool needs before it can carve a slice out of it: every APIC ID the host
// firmware enumerates, the APIC ID of the CPU running this process, and the
// host's validated MCFG bytes (whose allocation entry package acpi re-emits
// into the slice under its own MCFG header). Grounded on spec.md §4.A and the original's acpi_get_host_apic_ids
// (original_source/acpi.cpp's fill_header / emit_madt mirror on the read
// side), realized with package acpi's new parse.go and package cpuid.
package hostview

import (
	"fmt"
	"os"

	"github.com/msrssp/cpuslice/acpi"
	"github.com/msrssp/cpuslice/cpuid"
)

const (
	hostMADTPath = "/sys/firmware/acpi/tables/APIC"
	hostMCFGPath = "/sys/firmware/acpi/tables/MCFG"
)

// View is the lazily constructed, read-only host picture; spec.md §3's
// HostView.
type View struct {
	hostAPICIDs []uint32
	bspAPICID   uint32
	mcfgBytes   []byte
}

// Build reads and validates the host's MADT and MCFG firmware tables and
// this process's own APIC ID, per spec.md §4.A.
func Build() (*View, error) {
	madtRaw, err := os.ReadFile(hostMADTPath)
	if err != nil {
		return nil, fmt.Errorf("hostview: read %s: %w", hostMADTPath, err)
	}

	ids, err := acpi.ParseHostMADT(madtRaw)
	if err != nil {
		return nil, fmt.Errorf("hostview: parse host MADT: %w", err)
	}

	mcfgRaw, err := os.ReadFile(hostMCFGPath)
	if err != nil {
		return nil, fmt.Errorf("hostview: read %s: %w", hostMCFGPath, err)
	}

	mcfg, err := acpi.ReadHostMCFG(mcfgRaw)
	if err != nil {
		return nil, fmt.Errorf("hostview: validate host MCFG: %w", err)
	}

	bsp, err := cpuid.LocalAPICID()
	if err != nil {
		return nil, fmt.Errorf("hostview: local APIC id: %w", err)
	}

	return &View{
		hostAPICIDs: ids,
		bspAPICID:   bsp,
		mcfgBytes:   mcfg,
	}, nil
}

// HostAPICIDs returns every enabled APIC ID the host's MADT enumerates.
func (v *View) HostAPICIDs() []uint32 {
	return v.hostAPICIDs
}

// BSPAPICID returns the APIC ID of the CPU currently running this process.
func (v *View) BSPAPICID() uint32 {
	return v.bspAPICID
}

// MCFGBytes returns the host's validated, verbatim MCFG payload.
func (v *View) MCFGBytes() []byte {
	return v.mcfgBytes
}
