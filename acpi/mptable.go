package acpi

import (
	"bytes"
	"encoding/binary"
)

// MPFloatingPointerSignature is the ASCII "_MP_" magic the host's mpparse
// code scans for in the first KiB and the last KiB of base memory.
const MPFloatingPointerSignature uint32 = ('_' << 24) | ('P' << 16) | ('M' << 8) | '_'

// MPScrubSignature replaces MPFloatingPointerSignature wherever the
// low-memory scanner finds it, so the awakening kernel cannot find the
// host's own MP table.
const MPScrubSignature uint32 = ('-' << 24) | ('P' << 16) | ('M' << 8) | '-'

// MPConfigSignature is the ASCII "PCMP" magic of the MP configuration
// table header.
const MPConfigSignature uint32 = ('P' << 24) | ('M' << 16) | ('C' << 8) | 'P'

// MPFloatingPointer is the 16-byte Intel MP 1.4 floating pointer structure.
type MPFloatingPointer struct {
	Signature uint32
	PhysAddr  uint32
	Length    uint8
	SpecRev   uint8
	CheckSum  uint8
	Features  [5]uint8
}

func (m *MPFloatingPointer) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, m); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// NewMPFloatingPointer builds the floating pointer for an MP config table
// placed immediately afterward at physAddr+16.
func NewMPFloatingPointer(physAddr uint32) (*MPFloatingPointer, error) {
	m := &MPFloatingPointer{
		Signature: MPFloatingPointerSignature,
		PhysAddr:  physAddr + 16,
		Length:    1,
		SpecRev:   4,
	}

	data, err := m.ToBytes()
	if err != nil {
		return nil, err
	}

	m.CheckSum = negate(checksum8(data))

	return m, nil
}

// MPConfigHeader is the 44-byte Intel MP 1.4 configuration table header.
type MPConfigHeader struct {
	Signature   uint32
	BaseLength  uint16
	SpecRev     uint8
	CheckSum    uint8
	OEMID       [8]uint8
	ProductID   [12]uint8
	OEMTableAddr uint32
	OEMTableSize uint16
	Entries     uint16
	LapicAddr   uint32
	ExtLength   uint16
	ExtCheckSum uint8
	_           uint8
}

const mpOEMID = "SLICER  "
const mpProductID = "SLICER      "

// MPProcessorEntry is a type-0 MP configuration table entry describing one
// CPU.
type MPProcessorEntry struct {
	Type         uint8
	APICID       uint8
	APICVer      uint8
	CPUFlags     uint8
	CPUSignature uint32
	FeatureFlags uint32
	_            [2]uint32
}

const (
	MPEntryProcessor       uint8 = 0
	MPEntryBus             uint8 = 1
	MPEntryIOAPIC          uint8 = 2
	MPEntryIOInterrupt     uint8 = 3
	MPEntryLocalInterrupt  uint8 = 4
)

const (
	MPProcessorEnabled uint8 = 1 << 0
	MPProcessorBSP     uint8 = 1 << 1
)

// MPInterruptEntry is a type-3/4 MP configuration table entry describing
// I/O or local interrupt routing.
type MPInterruptEntry struct {
	Type        uint8
	IntType     uint8
	Flags       uint16
	SourceBus   uint8
	SourceIRQ   uint8
	DestAPICID  uint8
	DestAPICInt uint8
}

const (
	MPIntTypeINT uint8 = 0
	MPIntTypeNMI uint8 = 1
	MPIntTypeSMI uint8 = 2
	MPIntTypeExtINT uint8 = 3
)

// MPTable is the in-memory form of a complete legacy MP 1.4 table: floating
// pointer, config header, one processor entry per slice CPU, and one
// LocalInterrupt (NMI) entry, matching the original slicer's write_mptable.
type MPTable struct {
	FloatingPointer MPFloatingPointer
	ConfigHeader    MPConfigHeader
	Processors      []MPProcessorEntry
	Interrupt       MPInterruptEntry
}

// BuildMPTable lays out a floating pointer + config table at physAddr for
// apicIDs[0] as BSP and the rest as APs, using familyModelStepping/
// featureFlags from the host's CPUID leaf 1 (the original assumes uniform
// CPUs across the slice).
func BuildMPTable(physAddr uint32, apicIDs []uint32, familyModelStepping uint16, featureFlags uint32) (*MPTable, error) {
	fp, err := NewMPFloatingPointer(physAddr)
	if err != nil {
		return nil, err
	}

	t := &MPTable{FloatingPointer: *fp}

	t.ConfigHeader.Signature = MPConfigSignature
	t.ConfigHeader.SpecRev = 4
	copy(t.ConfigHeader.OEMID[:], mpOEMID)
	copy(t.ConfigHeader.ProductID[:], mpProductID)
	t.ConfigHeader.LapicAddr = MADTAddress

	for i, id := range apicIDs {
		p := MPProcessorEntry{
			Type:         MPEntryProcessor,
			APICID:       uint8(id),
			APICVer:      0x14,
			CPUFlags:     MPProcessorEnabled,
			CPUSignature: uint32(familyModelStepping),
			FeatureFlags: featureFlags,
		}

		if i == 0 {
			p.CPUFlags |= MPProcessorBSP
		}

		t.Processors = append(t.Processors, p)
	}

	t.Interrupt = MPInterruptEntry{
		Type:        MPEntryLocalInterrupt,
		IntType:     MPIntTypeNMI,
		DestAPICID:  0xFF,
		DestAPICInt: 1,
	}

	t.ConfigHeader.Entries = uint16(len(t.Processors)) + 1

	if err := t.finalizeConfigHeader(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *MPTable) configBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, t.ConfigHeader); err != nil {
		return nil, err
	}

	for i := range t.Processors {
		if err := binary.Write(&buf, binary.LittleEndian, t.Processors[i]); err != nil {
			return nil, err
		}
	}

	if err := binary.Write(&buf, binary.LittleEndian, t.Interrupt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (t *MPTable) finalizeConfigHeader() error {
	t.ConfigHeader.CheckSum = 0
	t.ConfigHeader.BaseLength = 0

	data, err := t.configBytes()
	if err != nil {
		return err
	}

	t.ConfigHeader.BaseLength = uint16(len(data))

	data, err = t.configBytes()
	if err != nil {
		return err
	}

	t.ConfigHeader.CheckSum = negate(checksum8(data))

	return nil
}

// ToBytes returns the floating pointer immediately followed by the
// configuration table and its entries, ready to be copied verbatim into
// low memory at FloatingPointer's physical address.
func (t *MPTable) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	fpData, err := t.FloatingPointer.ToBytes()
	if err != nil {
		return nil, err
	}

	buf.Write(fpData)

	cfgData, err := t.configBytes()
	if err != nil {
		return nil, err
	}

	buf.Write(cfgData)

	return buf.Bytes(), nil
}
