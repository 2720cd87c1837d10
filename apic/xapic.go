package apic

import (
	"encoding/binary"

	"github.com/msrssp/cpuslice/devmem"
	"github.com/msrssp/cpuslice/msr"
)

// xAPIC drives the local APIC's MMIO register window: 32-bit registers at
// base+(reg_index<<4), ICR split across two registers with the high
// (destination) half written first, matching
// original_source/lapic.cpp's LocalApic::send_ipi.
type xAPIC struct {
	mmio *devmem.Window
	// msrFallback is kept open only so Close releases the BSP msr
	// device acquired by Open to read IA32_APIC_BASE; xAPIC mode never
	// issues further MSR accesses.
	msrFallback *msr.Device
}

func (x *xAPIC) readReg(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(x.mmio.Bytes[offset : offset+4])
}

func (x *xAPIC) writeReg(offset uint32, v uint32) {
	binary.LittleEndian.PutUint32(x.mmio.Bytes[offset:offset+4], v)
}

func (x *xAPIC) ReadID() (uint32, error) {
	return x.readReg(regID) >> 24, nil
}

func (x *xAPIC) SendIPI(cmd uint32, dest uint32, wait bool) error {
	x.writeReg(regESR, 0)

	x.writeReg(regICRHi, dest<<24)
	x.writeReg(regICRLow, cmd)

	for wait && x.readReg(regICRLow)&icrDeliveryStatus != 0 {
	}

	return nil
}

func (x *xAPIC) Close() error {
	err := x.mmio.Close()
	if cerr := x.msrFallback.Close(); err == nil {
		err = cerr
	}

	return err
}
