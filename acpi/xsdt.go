package acpi

import (
	"bytes"
	"encoding/binary"
)

type XSDT struct {
	Header
	Entries []uint64
}

func NewXSDT() XSDT {
	h := newHeader(SigXSDT, 36, 1)

	return XSDT{Header: h}
}

func (x *XSDT) ToBytes() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, x.Header); err != nil {
		return nil, err
	}

	for _, addr := range x.Entries {
		if err := binary.Write(&buf, binary.LittleEndian, addr); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func (x *XSDT) AddEntry(entry uint64) {
	x.Entries = append(x.Entries, entry)
}

// Finalize sets Header.Length to the actual emitted size and recomputes the
// checksum. Must be called after all AddEntry calls.
func (x *XSDT) Finalize() error {
	x.Header.Checksum = 0
	x.Header.Length = 0

	data, err := x.ToBytes()
	if err != nil {
		return err
	}

	x.Header.Length = uint32(len(data))

	data, err = x.ToBytes()
	if err != nil {
		return err
	}

	x.Header.Checksum = negate(checksum8(data))

	return nil
}
