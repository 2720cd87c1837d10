package acpi

import (
	"bytes"
	"encoding/binary"
)

const (
	TypeLocalAPIC uint8 = 0 + iota
	TypeIOAPIC
	TypeInterruptSourceOverride
)

// TypeLocalX2APIC is the MADT sub-table type for a Processor Local x2APIC
// Structure (ACPI 6.x table 5.2.12.12).
const TypeLocalX2APIC uint8 = 9

// LocalAPICEnabled marks a Local APIC / Local x2APIC structure as usable by
// the OS; it is the only LapicFlags bit this emitter ever sets.
const LocalAPICEnabled uint32 = 1 << 0

type APIC interface {
	Len() uint8
	ToBytes() ([]byte, error)
}

type LocalAPIC struct {
	Type        uint8
	Length      uint8
	ProcessorID uint8
	APICId      uint8
	Flags       uint32
}

func (l *LocalAPIC) Len() uint8 {
	return l.Length
}

func (l *LocalAPIC) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, l); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// LocalX2APIC is a Processor Local x2APIC Structure: the only kind of CPU
// sub-table this emitter writes, since the slice firmware contract mandates
// x2APIC enumeration regardless of whether the target actually runs in
// x2APIC mode.
type LocalX2APIC struct {
	Type        uint8
	Length      uint8
	_           uint16 // reserved, must be zero
	LocalApicId uint32
	LapicFlags  uint32
	Uid         uint32
}

func NewLocalX2APIC(apicID, uid uint32) *LocalX2APIC {
	return &LocalX2APIC{
		Type:        TypeLocalX2APIC,
		Length:      localX2APICLen,
		LocalApicId: apicID,
		LapicFlags:  LocalAPICEnabled,
		Uid:         uid,
	}
}

// localX2APICLen is sizeof(LocalX2APIC): Type+Length+reserved+LocalApicId+LapicFlags+Uid.
const localX2APICLen = 1 + 1 + 2 + 4 + 4 + 4

func (l *LocalX2APIC) Len() uint8 {
	return l.Length
}

func (l *LocalX2APIC) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, l); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

type IOAPIC struct {
	Type        uint8
	Length      uint8
	IOAPICID    uint8
	_           uint8
	APICAddress uint32
	GSIBase     uint32
}

func (i *IOAPIC) Len() uint8 {
	return i.Length
}

func (i *IOAPIC) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, i); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

type InterruptSourceOverride struct {
	Type   uint8
	Length uint8
	Bus    uint8
	Source uint8
	GSI    uint32
	Flags  uint16
}

func (i *InterruptSourceOverride) Len() uint8 {
	return i.Length
}

func (i *InterruptSourceOverride) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, i); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// MADTAddress is the legacy LAPIC MMIO base the MADT header field carries
// regardless of whether the target CPU ends up running in x2APIC mode.
const MADTAddress uint32 = 0xFEE0_0000

type MADT struct {
	Header
	Address uint32
	Flags   uint32
	APICS   []APIC
}

// NewMADT builds a revision-5 MADT with one LocalX2APIC sub-table per slice
// CPU APIC ID, in the order supplied. apicIDs[0] is the slice BSP by
// SliceConfig convention, but the MADT itself does not distinguish it.
func NewMADT(apicIDs []uint32) *MADT {
	m := &MADT{
		Header:  newHeader(SigAPIC, 0, 5),
		Address: MADTAddress,
		Flags:   0,
	}

	for i, id := range apicIDs {
		m.AddAPIC(NewLocalX2APIC(id, uint32(i)))
	}

	return m
}

func (m *MADT) AddAPIC(apic APIC) {
	m.APICS = append(m.APICS, apic)
}

func (m *MADT) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, m.Header); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.LittleEndian, m.Address); err != nil {
		return nil, err
	}

	if err := binary.Write(&buf, binary.LittleEndian, m.Flags); err != nil {
		return nil, err
	}

	for _, apic := range m.APICS {
		data, err := apic.ToBytes()
		if err != nil {
			return nil, err
		}

		if _, err := buf.Write(data); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Finalize sets Header.Length to the actual emitted size and recomputes the
// checksum. Must be called after all AddAPIC calls and before ToBytes is
// used for anything other than measuring length.
func (m *MADT) Finalize() error {
	m.Header.Checksum = 0
	m.Header.Length = 0

	data, err := m.ToBytes()
	if err != nil {
		return err
	}

	m.Header.Length = uint32(len(data))

	data, err = m.ToBytes()
	if err != nil {
		return err
	}

	m.Header.Checksum = negate(checksum8(data))

	return nil
}
