// Package bootparam implements the Linux x86 boot protocol's "zero page"
// (struct boot_params): a fixed 4 KiB structure passed to the 64-bit kernel
// entry point via RSI, carrying the setup header, the E820 memory map, and
// the ACPI RSDP address. Field layout and offsets are ported from
// arch/x86/include/uapi/asm/bootparam.h, confirmed against the retrieved
// original_source/linuxboot.h.
package bootparam

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/msrssp/cpuslice/bootproto"
)

// E820 entry types.
const (
	E820Ram      uint32 = 1
	E820Reserved uint32 = 2
	E820ACPI     uint32 = 3
	E820NVS      uint32 = 4
	E820Unusable uint32 = 5
)

// setup_header.loadflags bits.
const (
	LoadedHigh   uint8 = 1 << 0
	KeepSegments uint8 = 1 << 6
	CanUseHeap   uint8 = 1 << 7
)

// E820MaxEntries is the fixed capacity of boot_params.e820_table.
const E820MaxEntries = 128

// E820Entry is one boot_e820_entry: addr(8) + size(8) + type(4) = 20 bytes.
type E820Entry struct {
	Addr uint64
	Size uint64
	Type uint32
}

type efiInfo struct {
	LoaderSignature uint32
	Systab          uint32
	MemdescSize     uint32
	MemdescVersion  uint32
	Memmap          uint32
	MemmapSize      uint32
	SystabHi        uint32
	MemmapHi        uint32
}

// BootParam is the full 4 KiB zero page.
type BootParam struct {
	ScreenInfo     [0x40]byte
	APMBiosInfo    [0x14]byte
	_              [4]byte
	TbootAddr      uint64
	ISTInfo        [0x10]byte
	ACPIRSDPAddr   uint64
	_              [8]byte
	HD0Info        [16]byte
	HD1Info        [16]byte
	SysDescTable   [0x10]byte
	OLPCOFWHeader  [0x10]byte
	ExtRamdiskImage uint32
	ExtRamdiskSize  uint32
	ExtCmdLinePtr   uint32
	_               [116]byte
	EDIDInfo        [0x80]byte
	EFIInfo         efiInfo
	AltMemK         uint32
	Scratch         uint32
	E820Entries     uint8
	EDDBufEntries   uint8
	EDDMBRSigBufEntries uint8
	KbdStatus       uint8
	SecureBoot      uint8
	_               [2]byte
	Sentinel        uint8
	_               [1]byte
	Hdr             bootproto.BootProto
	_               [0x290 - 0x1f1 - 123]byte
	EDDMBRSigBuffer [16]uint32
	E820Table       [E820MaxEntries]E820Entry
	_               [48]byte
	EDDBuf          [0x1ec]byte
	_               [276]byte
}

var (
	// ErrTooSmall is returned by New when the image is smaller than the
	// setup header's file offset plus its size.
	ErrTooSmall = errors.New("bootparam: kernel image too small to contain a setup header")
)

// New reads and validates the x86 boot-protocol setup header from r at its
// documented file offset (0x1F1) and returns a freshly zeroed boot_params
// with that header copied in verbatim, per §4.D step 3.
func New(r io.ReaderAt) (*BootParam, error) {
	const headerOffset = 0x1F1

	const headerSize = 123

	buf := make([]byte, headerSize)

	n, err := r.ReadAt(buf, headerOffset)
	if err != nil && err != io.EOF {
		return nil, err
	}

	if n < headerSize {
		return nil, ErrTooSmall
	}

	b := &BootParam{}

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &b.Hdr); err != nil {
		return nil, err
	}

	if b.Hdr.Header != bootproto.BootProtoMagicSignature {
		return nil, bootproto.ErrorSignatureNotMatch
	}

	return b, nil
}

// Bytes serializes the zero page to its exact 4096-byte wire
// representation.
func (b *BootParam) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.LittleEndian, b); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// AddE820Entry appends one entry to the E820 table and bumps E820Entries.
// The caller is responsible for keeping the total below E820MaxEntries.
func (b *BootParam) AddE820Entry(addr, size uint64, typ uint32) {
	b.E820Table[b.E820Entries] = E820Entry{Addr: addr, Size: size, Type: typ}
	b.E820Entries++
}
