// Package msr provides direct read/write access to one CPU's model-specific
// registers through /dev/cpu/<n>/msr, the same device file the original
// sliceloader's lapic.cpp opens to read IA32_APIC_BASE before deciding
// whether to drive the xAPIC or x2APIC. Grounded on gokvm's kvm package
// idiom of one small purpose-built type per device file
// (kvm.DevKVM/kvm.VMFd-style thin fd wrappers), adapted from ioctls to
// pread/pwrite since an MSR device file is seeked-and-read, not ioctl'd.
package msr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// IA32_APIC_BASE is the MSR the BSP's APIC_BASE and APIC global-enable bit
// live in (bit 11) and, for x2APIC mode, the x2APIC-enable bit (bit 10).
const IA32ApicBase = 0x1B

// ErrMultipleCPUDevices is returned by OpenBSP when /dev/cpu exposes more than
// one CPU, since this tool assumes a uniprocessor host (spec's known gap:
// restrict CPU visibility via cpuset/isolcpus before running it).
var ErrMultipleCPUDevices = errors.New("msr: multiple /dev/cpu/N entries found, this tool assumes a uniprocessor host")

// ErrNoCPUDevices is returned by OpenBSP when /dev/cpu has no numbered entries
// at all (the msr kernel module is very likely not loaded).
var ErrNoCPUDevices = errors.New("msr: no /dev/cpu/N entries found (is the msr kernel module loaded?)")

// Device is an open /dev/cpu/<n>/msr file.
type Device struct {
	f *os.File
}

// OpenBSP locates the sole CPU under /dev/cpu and opens its msr device,
// failing fast if more than one CPU is visible.
func OpenBSP() (*Device, error) {
	entries, err := os.ReadDir("/dev/cpu")
	if err != nil {
		return nil, fmt.Errorf("msr: %w", err)
	}

	var cpu string

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		if _, err := strconv.Atoi(e.Name()); err != nil {
			continue
		}

		if cpu != "" {
			return nil, ErrMultipleCPUDevices
		}

		cpu = e.Name()
	}

	if cpu == "" {
		return nil, ErrNoCPUDevices
	}

	f, err := os.OpenFile(filepath.Join("/dev/cpu", cpu, "msr"), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("msr: open %s: %w", cpu, err)
	}

	return &Device{f: f}, nil
}

// Close releases the underlying device file.
func (d *Device) Close() error {
	return d.f.Close()
}

// Read returns the 64-bit value of msr reg.
func (d *Device) Read(reg uint32) (uint64, error) {
	var buf [8]byte

	if _, err := d.f.ReadAt(buf[:], int64(reg)); err != nil {
		return 0, fmt.Errorf("msr: read %#x: %w", reg, err)
	}

	return binary.LittleEndian.Uint64(buf[:]), nil
}

// Write sets msr reg to value.
func (d *Device) Write(reg uint32, value uint64) error {
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], value)

	if _, err := d.f.WriteAt(buf[:], int64(reg)); err != nil {
		return fmt.Errorf("msr: write %#x: %w", reg, err)
	}

	return nil
}
