package acpi

import (
	"bytes"
	"encoding/binary"
)

type DSDT struct {
	Header
	*AML
}

func NewDSDT() DSDT {
	h := newHeader(SigDSDT, 36, 6)
	a := NewAML()

	return DSDT{h, a}
}

// NewDSDTFromAML wraps a bare AML body (no table header of its own) in a
// fresh DSDT header carrying this emitter's fixed OEM identity, leaving the
// AML itself untouched.
func NewDSDTFromAML(aml []byte) DSDT {
	h := newHeader(SigDSDT, uint32(36+len(aml)), 6)
	a := NewAML()
	a.buf.Write(aml)

	return DSDT{h, a}
}

// NewDefaultDSDT synthesizes the minimal DSDT a slice needs when the
// operator doesn't supply one via -dsdt: a bare \_SB scope containing one
// Processor-less placeholder device, just enough for an ACPI-aware kernel
// to find a well-formed namespace root instead of an empty table. Real
// platform description (power buttons, PCI routing, ...) is what -dsdt is
// for; this is a fallback, not a general DSDT compiler output.
func NewDefaultDSDT() DSDT {
	a := NewAML()
	a.Scope("\\_SB_", NewAML().Device("SLC0", NewAML().
		Name("_HID", NewAML().String("ACPI0004")).
		Name("_UID", NewAML().DWord(0))))

	h := newHeader(SigDSDT, uint32(36+len(a.ToBytes())), 6)

	return DSDT{h, a}
}

func (d *DSDT) ToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, d.Header); err != nil {
		return nil, err
	}

	if _, err := buf.Write(d.AML.ToBytes()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Finalize sets Header.Length and the checksum from the current AML body.
func (d *DSDT) Finalize() error {
	d.Header.Checksum = 0
	d.Header.Length = 0

	data, err := d.ToBytes()
	if err != nil {
		return err
	}

	d.Header.Length = uint32(len(data))

	data, err = d.ToBytes()
	if err != nil {
		return err
	}

	d.Header.Checksum = negate(checksum8(data))

	return nil
}
