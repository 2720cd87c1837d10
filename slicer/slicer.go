// Package slicer is the top-level orchestrator: it sequences host
// introspection, config validation, slice-RAM loading, low-memory prep, and
// the APIC startup handoff behind a single entry point. Grounded on
// machine.New's staged-construction idiom
// (github.com/bobuhiro11/gokvm/machine/machine.go) — sequential steps that
// bail out on the first error — re-aimed at spec.md §4.G's orchestrator
// sequence instead of KVM VM construction.
package slicer

import (
	"fmt"
	"log"
	"os"

	"github.com/msrssp/cpuslice/apic"
	"github.com/msrssp/cpuslice/bootimage"
	"github.com/msrssp/cpuslice/cpuid"
	"github.com/msrssp/cpuslice/devmem"
	"github.com/msrssp/cpuslice/hostview"
	"github.com/msrssp/cpuslice/lowmem"
	"github.com/msrssp/cpuslice/sliceconfig"
)

// Orchestrate runs one full slice boot: build the host view, validate cfg
// against it, map and load the slice's RAM, prep low memory and the
// trampoline, and send the INIT/INIT/SIPI sequence that wakes cfg.CPUs[0]
// (the slice's BSP) into the loaded kernel. The MADT and MP tables this
// produces enumerate every CPU in cfg.CPUs, so the kernel that boots on
// cfg.CPUs[0] can bring the rest of the slice's CPUs up itself — this
// loader only ever issues one startup IPI per invocation, per spec.md
// §4.F/§4.G.
func Orchestrate(cfg *sliceconfig.Config) error {
	view, err := hostview.Build()
	if err != nil {
		return fmt.Errorf("slicer: host introspection: %w", err)
	}

	if err := cfg.Validate(view.BSPAPICID(), view.HostAPICIDs()); err != nil {
		return fmt.Errorf("slicer: config validation: %w", err)
	}

	log.Printf("slicer: carving %d MiB at %#x for CPUs %v", cfg.RAMSize>>20, cfg.RAMBase, cfg.CPUs)

	ram, err := devmem.Open(cfg.RAMBase, cfg.RAMSize)
	if err != nil {
		return fmt.Errorf("slicer: map slice RAM: %w", err)
	}

	var dsdtAML []byte

	if cfg.DSDTPath != "" {
		dsdtAML, err = os.ReadFile(cfg.DSDTPath)
		if err != nil {
			ram.Close()

			return fmt.Errorf("slicer: read DSDT: %w", err)
		}
	}

	result, err := bootimage.Load(cfg, ram.Bytes, cfg.CPUs, view.MCFGBytes(), dsdtAML)
	if err != nil {
		ram.Close()

		return fmt.Errorf("slicer: load kernel image: %w", err)
	}

	if err := ram.Close(); err != nil {
		return fmt.Errorf("slicer: unmap slice RAM: %w", err)
	}

	log.Printf("slicer: kernel entry=%#x arg=%#x", result.EntryPhys, result.EntryArg)

	fms := cpuid.FamilyModelStepping()
	features := cpuid.FeatureFlagsEDX()

	bootIP, err := lowmem.Init(cfg.LowMem, lowmem.DefaultTrampoline(), result.EntryPhys, result.EntryArg,
		cfg.CPUs, fms, features)
	if err != nil {
		return fmt.Errorf("slicer: low-memory prep: %w", err)
	}

	bspID, err := cpuid.LocalAPICID()
	if err != nil {
		return fmt.Errorf("slicer: re-read local APIC id: %w", err)
	}

	driver, err := apic.Open(bspID)
	if err != nil {
		return fmt.Errorf("slicer: open local APIC: %w", err)
	}
	defer driver.Close()

	target := cfg.CPUs[0]

	log.Printf("slicer: sending startup IPI to APIC id %d, boot_ip=%#x", target, bootIP)

	if err := apic.SendStartupIPI(driver, target, bootIP); err != nil {
		return fmt.Errorf("slicer: startup IPI: %w", err)
	}

	return nil
}
