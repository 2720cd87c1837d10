package acpi

import (
	"encoding/binary"
	"errors"
)

// ErrHostTable is returned by ParseHostMADT when the host's APIC table does
// not parse as a well-formed MADT: wrong signature, outer length mismatch,
// nonzero outer checksum, or an inconsistent sub-table length.
var ErrHostTable = errors.New("malformed host firmware table")

const headerLen = 36

// ParseHostMADT walks a raw host MADT (APIC) table, as read verbatim from
// /sys/firmware/acpi/tables/APIC, and returns the APIC ID of every entry
// with the enabled bit set: 8-bit IDs from Local APIC (type 0) sub-tables,
// 32-bit IDs from Local x2APIC (type 9) sub-tables. All other sub-table
// types are skipped. Order matches the table's own sub-table order.
func ParseHostMADT(raw []byte) ([]uint32, error) {
	if len(raw) < headerLen {
		return nil, ErrHostTable
	}

	if string(raw[0:4]) != string(SigAPIC) {
		return nil, ErrHostTable
	}

	length := binary.LittleEndian.Uint32(raw[4:8])
	if int(length) != len(raw) {
		return nil, ErrHostTable
	}

	if checksum8(raw) != 0 {
		return nil, ErrHostTable
	}

	// headerLen(36) + Address(4) + Flags(4) precede the sub-table stream.
	const fixedLen = headerLen + 8

	var ids []uint32

	for off := fixedLen; off < len(raw); {
		if off+2 > len(raw) {
			return nil, ErrHostTable
		}

		typ := raw[off]
		subLen := int(raw[off+1])

		if subLen < 2 || off+subLen > len(raw) {
			return nil, ErrHostTable
		}

		entry := raw[off : off+subLen]

		switch typ {
		case TypeLocalAPIC:
			if subLen < 8 {
				return nil, ErrHostTable
			}

			apicID := uint32(entry[3])
			flags := binary.LittleEndian.Uint32(entry[4:8])

			if flags&LocalAPICEnabled != 0 {
				ids = append(ids, apicID)
			}
		case TypeLocalX2APIC:
			if subLen < 16 {
				return nil, ErrHostTable
			}

			apicID := binary.LittleEndian.Uint32(entry[4:8])
			flags := binary.LittleEndian.Uint32(entry[8:12])

			if flags&LocalAPICEnabled != 0 {
				ids = append(ids, apicID)
			}
		}

		off += subLen
	}

	return ids, nil
}

// ReadHostMCFG validates a raw host MCFG table per ValidateHostMCFG and
// returns it unmodified, ready for BuildACPI to take its allocation entry
// from.
func ReadHostMCFG(raw []byte) ([]byte, error) {
	if err := ValidateHostMCFG(raw); err != nil {
		return nil, err
	}

	return raw, nil
}
