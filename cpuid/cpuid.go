// Package cpuid wraps the CPUID instruction and decodes the leaves this
// project needs to describe the Boot Processor and its siblings: vendor
// string, family/model/stepping, feature flags, and the x2APIC ID exposed
// via leaf 0x0B/0x1F. Grounded on the teacher's cpuid_low/CPUID split
// (github.com/bobuhiro11/gokvm/cpuid/cpuid.go); the CPUIDPatch/Patch
// hypervisor-guest-CPUID-masking feature was dropped along with the kvm
// package it patched (see DESIGN.md).
package cpuid

import "errors"

func cpuid_low(arg1, arg2 uint32) (eax, ebx, ecx, edx uint32) // implemented in cpuid.s

// CPUID executes the CPUID instruction for leaf with subleaf 0.
func CPUID(leaf uint32) (uint32, uint32, uint32, uint32) {
	return cpuid_low(leaf, 0)
}

// CPUIDEx executes the CPUID instruction for leaf/subleaf, as required by
// the topology leaves (0x0B, 0x1F) whose sub-leaves are selected by ECX on
// entry.
func CPUIDEx(leaf, subleaf uint32) (uint32, uint32, uint32, uint32) {
	return cpuid_low(leaf, subleaf)
}

// MaxLeaf returns the highest standard CPUID leaf the host supports, from
// leaf 0's EAX.
func MaxLeaf() uint32 {
	eax, _, _, _ := CPUID(0)

	return eax
}

// ErrNoTopologyLeaf is returned by LocalAPICID when the host advertises
// neither the legacy Extended Topology leaf (0x0B).
var ErrNoTopologyLeaf = errors.New("cpuid: host does not expose topology leaf 0x0B")

// ErrTopologyLeafMismatch is returned by LocalAPICID when leaf 0x1F is
// present but its x2APIC ID disagrees with leaf 0x0B's.
var ErrTopologyLeafMismatch = errors.New("cpuid: leaf 0x1F x2APIC id disagrees with leaf 0x0B")

// LocalAPICID returns the running CPU's x2APIC ID: leaf 0x0B sub-leaf 0's
// EDX, cross-checked against leaf 0x1F sub-leaf 0 when the host also
// advertises the V2 Extended Topology leaf.
func LocalAPICID() (uint32, error) {
	if MaxLeaf() < 0x0B {
		return 0, ErrNoTopologyLeaf
	}

	_, _, _, id := CPUIDEx(0x0B, 0)

	if MaxLeaf() >= 0x1F {
		_, _, _, id1F := CPUIDEx(0x1F, 0)
		if id1F != id {
			return 0, ErrTopologyLeafMismatch
		}
	}

	return id, nil
}

// FamilyModelStepping packs leaf 1's EAX (the CPU signature) into the
// 16-bit field the legacy MP table's cpu_signature expects, matching
// original_source/lowmem.cpp's cpu_signature derivation: the low 12 bits of
// EAX taken as-is, with no extended-family/extended-model folding.
func FamilyModelStepping() uint16 {
	eax, _, _, _ := CPUID(1)

	return uint16(eax & 0xFFF)
}

// FeatureFlagsEDX returns leaf 1's EDX, the legacy feature-flag bitmask the
// MP table's MPProcessorEntry.FeatureFlags field carries verbatim.
func FeatureFlagsEDX() uint32 {
	_, _, _, edx := CPUID(1)

	return edx
}

// HasF1Edx reports whether the host's leaf 1 EDX advertises feature bit f,
// e.g. cpuid.HasF1Edx(cpuid.APIC) before an apic.Driver trusts the local
// APIC base MSR to be meaningful.
func HasF1Edx(f F1Edx) bool {
	return FeatureFlagsEDX()&(1<<uint32(f)) != 0
}
