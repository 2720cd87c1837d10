package acpi

import (
	"bytes"
	"encoding/binary"
)

// RSDP is the ACPI 2.0+ Root System Description Pointer. Unlike the other
// tables it has no common 36-byte Header and carries two independent
// checksums.
type RSDP struct {
	Signature           [8]byte
	Checksum            uint8
	OEMId               [6]byte
	Revision            uint8
	RSDTAddress         uint32
	Length              uint32
	XSDTAddress         uint64
	ExtendedChecksum    uint8
	_                   [3]uint8
}

// rsdpFirstChecksumLen is the span the first (ACPI 1.0-compatible) checksum
// covers: Signature..RSDTAddress inclusive.
const rsdpFirstChecksumLen = 20

func NewRSDP(xsdtAddr uint64) RSDP {
	r := RSDP{
		OEMId:       convertOEMID(OEMID),
		Revision:    2,
		XSDTAddress: xsdtAddr,
	}

	copy(r.Signature[:], "RSD PTR ")

	r.Length = rsdpLen()

	return r
}

func rsdpLen() uint32 {
	return uint32(binary.Size(RSDP{}))
}

func (r *RSDP) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Finalize computes both checksums: the first covers only the first 20
// bytes (up through RSDTAddress), the extended checksum covers the full
// structure.
func (r *RSDP) Finalize() error {
	r.Checksum = 0
	r.ExtendedChecksum = 0

	data, err := r.ToBytes()
	if err != nil {
		return err
	}

	r.Checksum = negate(checksum8(data[:rsdpFirstChecksumLen]))

	data, err = r.ToBytes()
	if err != nil {
		return err
	}

	r.ExtendedChecksum = negate(checksum8(data))

	return nil
}
