package apic

import "github.com/msrssp/cpuslice/msr"

// x2APIC register MSR bases: logical register index (the xAPIC MMIO offset
// divided by 16) maps to MSR 0x800+index, per spec.md §4.F.
const x2APICMSRBase = 0x800

const (
	x2ApicIDReg  = regID >> 4
	x2ApicESRReg = regESR >> 4
	x2ApicICRReg = regICRLow >> 4 // x2APIC's ICR is a single unified 64-bit MSR
)

// x2APIC drives the local APIC's MSR-backed registers: unified 64-bit ICR
// (high 32 bits destination, low 32 bits command) written in a single
// atomic MSR write, per spec.md §4.F / §5.
type x2APIC struct {
	msr *msr.Device
}

func (x *x2APIC) ReadID() (uint32, error) {
	v, err := x.msr.Read(x2APICMSRBase + x2ApicIDReg)
	if err != nil {
		return 0, err
	}

	return uint32(v), nil
}

func (x *x2APIC) SendIPI(cmd uint32, dest uint32, wait bool) error {
	if err := x.msr.Write(x2APICMSRBase+x2ApicESRReg, 0); err != nil {
		return err
	}

	value := uint64(dest)<<32 | uint64(cmd)

	return x.msr.Write(x2APICMSRBase+x2ApicICRReg, value)
}

func (x *x2APIC) Close() error {
	return x.msr.Close()
}
