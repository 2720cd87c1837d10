// Package bootimage places one slice's kernel, zero page, ACPI tables,
// cmdline, and initrd into a mapped window of slice RAM, and fills its E820
// map. Grounded directly on original_source/loader.cpp's load_linux: the
// same "bump a (phys,virt) pointer pair through setup-header validation,
// kernel body, zero page, ACPI, cmdline, initrd" sequence, re-expressed over
// package loadcursor's bump allocator instead of raw pointer arithmetic.
package bootimage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/msrssp/cpuslice/acpi"
	"github.com/msrssp/cpuslice/bootparam"
	"github.com/msrssp/cpuslice/loadcursor"
	"github.com/msrssp/cpuslice/sliceconfig"
)

// setup_header.xloadflags bits this loader requires.
const (
	xlfKernel64           uint16 = 1 << 0
	xlfCanBeLoadedAbove4G uint16 = 1 << 1
)

// minSetupVersion is the oldest boot-protocol version carrying the
// relocatable-64-bit-entry fields this loader depends on.
const minSetupVersion = 0x20c

// bounceChunk caps how much of the kernel/initrd file is read into a
// temporary buffer at a time before being copied into the /dev/mem
// mapping, matching original_source/loader.cpp's read_to_devmem: Linux
// forbids direct read(2) into an mmap of /dev/mem.
const bounceChunk = 0x8000

const lowMemRAMSize = 639 * 1024

// ErrTooOld is returned when the kernel's boot-protocol version predates
// 64-bit relocatable entry support.
var ErrTooOld = errors.New("bootimage: kernel image predates boot protocol 2.12 (relocatable 64-bit entry)")

// ErrNotRelocatable is returned when the kernel lacks the relocatable or
// 64-bit-entry xloadflags.
var ErrNotRelocatable = errors.New("bootimage: kernel image is not a relocatable 64-bit-entry image")

// ErrTruncated is returned when the file is shorter than its own declared
// setup-sector count implies.
var ErrTruncated = errors.New("bootimage: kernel image file has been truncated")

// Result carries the two values the Boot Processor needs to wake the
// target CPU: where 64-bit kernel code starts, and what to pass it in RSI.
type Result struct {
	EntryPhys uint64
	EntryArg  uint64
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}

	return (v + align - 1) &^ (align - 1)
}

// copyFileRange bounce-copies n bytes from r (already positioned, or read
// from the start for initrd) into dst, bounded to bounceChunk at a time.
func copyFileRange(r io.Reader, dst []byte, n int64) error {
	if int64(len(dst)) < n {
		return fmt.Errorf("bootimage: destination window is %d bytes, need %d", len(dst), n)
	}

	buf := make([]byte, bounceChunk)

	var off int64

	for off < n {
		chunk := n - off
		if chunk > bounceChunk {
			chunk = bounceChunk
		}

		if _, err := io.ReadFull(r, buf[:chunk]); err != nil {
			return err
		}

		copy(dst[off:off+chunk], buf[:chunk])
		off += chunk
	}

	return nil
}

// Load places cfg's kernel, zero page, ACPI tables, cmdline, and initrd
// into mapping (a window of slice RAM starting at cfg.RAMBase), and
// returns the kernel's 64-bit entry point and its RSI argument. apicIDs is
// the slice's ordered CPU list (BSP first) baked into the MADT; hostMCFG is
// the host's validated MCFG payload; dsdtAML is the raw AML of a -dsdt file,
// or nil if none was supplied.
func Load(cfg *sliceconfig.Config, mapping []byte, apicIDs []uint32, hostMCFG, dsdtAML []byte) (Result, error) {
	f, err := os.Open(cfg.KernelPath)
	if err != nil {
		return Result{}, fmt.Errorf("bootimage: open kernel: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Result{}, err
	}

	fileSize := fi.Size()

	bp, err := bootparam.New(f)
	if err != nil {
		return Result{}, err
	}

	hdr := &bp.Hdr

	if hdr.Version < minSetupVersion || hdr.SetupSects == 0 {
		return Result{}, ErrTooOld
	}

	if hdr.RelocatableKernel == 0 || hdr.XloadFlags&(xlfKernel64|xlfCanBeLoadedAbove4G) == 0 {
		return Result{}, ErrNotRelocatable
	}

	setupSects := uint32(hdr.SetupSects)

	kernelImageOffset := int64(512 * (setupSects + 1))
	if kernelImageOffset >= fileSize {
		return Result{}, ErrTruncated
	}

	cursor := loadcursor.New(mapping, cfg.RAMBase, alignUp(cfg.RAMBase, uint64(hdr.KernelAlignment)))

	kernelLen := fileSize - kernelImageOffset

	loadPhys, loadDst, err := cursor.Alloc(uint64(kernelLen), 0)
	if err != nil {
		return Result{}, err
	}

	if _, err := f.Seek(kernelImageOffset, io.SeekStart); err != nil {
		return Result{}, err
	}

	if err := copyFileRange(f, loadDst, kernelLen); err != nil {
		return Result{}, fmt.Errorf("bootimage: read kernel body: %w", err)
	}

	result := Result{EntryPhys: loadPhys + 0x200}

	cursor.Advance(alignUp(uint64(hdr.InitSize), 0x1000) - uint64(kernelLen))

	result.EntryArg = cursor.Phys()

	_, zeroPageDst, err := cursor.Alloc(4096, 0)
	if err != nil {
		return Result{}, err
	}

	zp := &bootparam.BootParam{Hdr: *hdr}

	rsdpPhys, err := acpi.BuildACPI(cursor, apicIDs, hostMCFG, dsdtAML)
	if err != nil {
		return Result{}, err
	}

	zp.ACPIRSDPAddr = rsdpPhys

	if cfg.Cmdline != "" {
		cmdline := append([]byte(cfg.Cmdline), 0)

		cmdlinePhys, cmdlineDst, err := cursor.Alloc(alignUp(uint64(len(cmdline)), 8), 0)
		if err != nil {
			return Result{}, err
		}

		copy(cmdlineDst, cmdline)

		zp.Hdr.CmdlinePtr = uint32(cmdlinePhys)
		zp.ExtCmdLinePtr = uint32(cmdlinePhys >> 32)
	}

	if cfg.InitrdPath != "" {
		initrdFile, err := os.Open(cfg.InitrdPath)
		if err != nil {
			return Result{}, fmt.Errorf("bootimage: open initrd: %w", err)
		}
		defer initrdFile.Close()

		initrdInfo, err := initrdFile.Stat()
		if err != nil {
			return Result{}, err
		}

		initrdSize := initrdInfo.Size()

		initrdPhys, initrdDst, err := cursor.Alloc(uint64(initrdSize), 0)
		if err != nil {
			return Result{}, err
		}

		if err := copyFileRange(initrdFile, initrdDst, initrdSize); err != nil {
			return Result{}, fmt.Errorf("bootimage: read initrd: %w", err)
		}

		zp.Hdr.RamdiskSize = uint32(initrdSize)
		zp.Hdr.RamdiskImage = uint32(initrdPhys)
		zp.ExtRamdiskImage = uint32(initrdPhys >> 32)
	}

	zp.Hdr.TypeOfLoader = 0xff

	zp.AddE820Entry(0, lowMemRAMSize, bootparam.E820Ram)
	zp.AddE820Entry(cfg.RAMBase, cfg.RAMSize, bootparam.E820Ram)

	zpData, err := zp.Bytes()
	if err != nil {
		return Result{}, err
	}

	copy(zeroPageDst, zpData)

	return result, nil
}
