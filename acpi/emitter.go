package acpi

import (
	"github.com/msrssp/cpuslice/loadcursor"
)

// alignment for every descriptive table; ACPI does not require any
// particular alignment for these tables, but word-aligning keeps struct
// reads cheap and matches what real firmware does.
const tableAlign = 8

func writeTable(cursor *loadcursor.Cursor, data []byte) (uint64, error) {
	phys, dst, err := cursor.Alloc(uint64(len(data)), tableAlign)
	if err != nil {
		return 0, err
	}

	copy(dst, data)

	return phys, nil
}

// BuildACPI writes, in order, a DSDT, the FADT, MADT, MCFG, XSDT, and RSDP
// into cursor's backing mapping, and returns the RSDP's physical address.
// apicIDs is the slice's ordered CPU list (index 0 is the BSP); hostMCFG is
// the host's MCFG payload already validated by ValidateHostMCFG, whose first
// allocation entry is re-emitted under this emitter's own MCFG header;
// dsdtAML is the complete DSDT table read from a -dsdt file, copied
// verbatim, or nil when no -dsdt file was supplied, in which case a minimal
// default DSDT is synthesized instead of leaving the FADT's Dsdt field unset.
func BuildACPI(cursor *loadcursor.Cursor, apicIDs []uint32, hostMCFG []byte, dsdtAML []byte) (uint64, error) {
	dsdtData := dsdtAML
	if dsdtData == nil {
		dsdt := NewDefaultDSDT()
		if err := dsdt.Finalize(); err != nil {
			return 0, err
		}

		var err error
		if dsdtData, err = dsdt.ToBytes(); err != nil {
			return 0, err
		}
	}

	dsdtPhys, err := writeTable(cursor, dsdtData)
	if err != nil {
		return 0, err
	}

	fadt := NewFADT(dsdtPhys)
	if err := fadt.Checksum(); err != nil {
		return 0, err
	}

	fadtData, err := fadt.ToBytes()
	if err != nil {
		return 0, err
	}

	fadtPhys, err := writeTable(cursor, fadtData)
	if err != nil {
		return 0, err
	}

	madt := NewMADT(apicIDs)
	if err := madt.Finalize(); err != nil {
		return 0, err
	}

	madtData, err := madt.ToBytes()
	if err != nil {
		return 0, err
	}

	madtPhys, err := writeTable(cursor, madtData)
	if err != nil {
		return 0, err
	}

	mcfg := NewMCFG()

	const mcfgEntryOff = mcfgHeaderLen

	if len(hostMCFG) >= mcfgEntryOff+pciSegmentWireLen {
		entry := hostMCFG[mcfgEntryOff : mcfgEntryOff+pciSegmentWireLen]

		var seg PCISegment

		seg.BaseAddress = leUint64(entry[0:8])
		seg.Segment = leUint16(entry[8:10])
		seg.Start = entry[10]
		seg.End = entry[11]

		mcfg.AddSegment(seg)
	}

	if err := mcfg.Finalize(); err != nil {
		return 0, err
	}

	mcfgData, err := mcfg.ToBytes()
	if err != nil {
		return 0, err
	}

	mcfgPhys, err := writeTable(cursor, mcfgData)
	if err != nil {
		return 0, err
	}

	xsdt := NewXSDT()
	xsdt.AddEntry(fadtPhys)
	xsdt.AddEntry(madtPhys)
	xsdt.AddEntry(mcfgPhys)

	if err := xsdt.Finalize(); err != nil {
		return 0, err
	}

	xsdtData, err := xsdt.ToBytes()
	if err != nil {
		return 0, err
	}

	xsdtPhys, err := writeTable(cursor, xsdtData)
	if err != nil {
		return 0, err
	}

	rsdp := NewRSDP(xsdtPhys)
	if err := rsdp.Finalize(); err != nil {
		return 0, err
	}

	rsdpData, err := rsdp.ToBytes()
	if err != nil {
		return 0, err
	}

	rsdpPhys, err := writeTable(cursor, rsdpData)
	if err != nil {
		return 0, err
	}

	return rsdpPhys, nil
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}

	return v
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
