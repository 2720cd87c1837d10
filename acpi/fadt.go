package acpi

import (
	"bytes"
	"encoding/binary"
)

type FADTFeatureFlag uint32

const (
	WBINVD FADTFeatureFlag = 1 << iota
	WBINVDFlush
	ProcC1
	PLvL2Up
	PwrButton
	SleepButton
	FixRTC
	RTCS4
	TmrValExt
	DCKCap
	ResetRegSup
	SealedCase
	Headless
	CPUSwSleep
	PCIExpWak
	UsePlatformClock
	S4RTCSTSValid
	RemotePowerOnCapable
	ForceAPICCluterModel
	ForceAPICPhysicalDestMode
	HwReducedACPI
	LowPowerS0IdleCapable
)

// IAPC boot architecture flags (FADT word at offset 109, 0x6D).
type IAPCBootArchFlag uint16

const (
	Legacy8042       IAPCBootArchFlag = 1 << 0
	VGANotPresent    IAPCBootArchFlag = 1 << 2
	MSINotSupported  IAPCBootArchFlag = 1 << 3
	CMOSRTCNotPresent IAPCBootArchFlag = 1 << 5
)

type FADT struct {
	Header
	FirmwareCTRL  uint32
	DSDTAddr      uint32
	_             uint8
	PrefPMProfile uint8
	SCIInt        uint16
	SMICmd        uint32
	ACPIEnable    uint8
	ACPIDisable   uint8
	S4BIOSReq     uint8
	PStateCnt     uint8
	PM1aEvtBlk    uint32
	PM1bEvtBlk    uint32
	PM1aCntBlk    uint32
	PM1bCntBlk    uint32
	PM2CntBlk     uint32
	PMTmrBlk      uint32
	GPE0Blk       uint32
	GPE1Blk       uint32
	PM1EvtLen     uint8
	PM1CntLen     uint8
	PM2CntLen     uint8
	PMTmrLen      uint8
	GPE0BlkLen    uint8
	GPE1BlkLen    uint8
	GPE1Base      uint8
	CstCnt        uint8
	PLvL2Lat      uint16
	PLvL3Lat      uint16
	FlushSize     uint16
	FlushStride   uint16
	DutyOffset    uint8
	DutyWidth     uint8
	DayALRM       uint8
	MonALRM       uint8
	Century       uint8
	IAPCBootArch  uint16
	_             uint8
	FADTFeatureFlag
	ResetReg      [12]uint8
	ResetValue    uint8
	ARMBootArch   uint16
	MinorVersion  uint8
	XFirmwareCntl uint64
	XDSDT         uint64
	XPM1aEvtBlk   [12]uint8
	XPM1bEvtBlk   [12]uint8
	XPM1aCntBlk   [12]uint8
	XPM1bCntBlk   [12]uint8
	XPM2CntBlk    [12]uint8
	XPMTmrBlk     [12]uint8
	XGPE0Blk      [12]uint8
	XGPE1Blk      [12]uint8
	SleepCtlReg   [12]uint8
	SleepStatReg  [12]uint8
	HyperVendorID [8]uint8
}

// FADTLength is the fixed size of the revision-6 FADT this emitter writes.
const FADTLength = 276

// FADTIncludeAPICPhysicalDestMode resolves the physical-vs-logical
// destination mode open question in favor of always advertising physical
// destination mode, since the slice's MADT only ever carries x2APIC
// sub-tables addressed by physical APIC ID. Flip to false (and drop
// ForceAPICPhysicalDestMode below) if a future CLI flag needs to offer
// logical-mode slices.
const FADTIncludeAPICPhysicalDestMode = true

// NewFADT builds a revision-6, minor-revision-4 FADT with the slice's fixed
// boot-architecture and feature flags, pointing XDSDT at the caller's DSDT
// (BuildACPI always supplies one, synthesizing a default when none is given).
func NewFADT(dsdtPhys uint64) FADT {
	h := newHeader(SigFACP, FADTLength, 6)

	flags := WBINVD | HwReducedACPI
	if FADTIncludeAPICPhysicalDestMode {
		flags |= ForceAPICPhysicalDestMode
	}

	return FADT{
		Header:          h,
		MinorVersion:    4,
		IAPCBootArch:    uint16(VGANotPresent | CMOSRTCNotPresent),
		FADTFeatureFlag: flags,
		XDSDT:           dsdtPhys,
	}
}

func (f *FADT) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Checksum recomputes and sets Header.Checksum so the unsigned byte-wise sum
// over the whole table is zero mod 256.
func (f *FADT) Checksum() error {
	f.Header.Checksum = 0

	data, err := f.ToBytes()
	if err != nil {
		return err
	}

	f.Header.Checksum = negate(checksum8(data))

	return nil
}
