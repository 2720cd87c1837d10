package acpi

type Header struct {
	Signature  [4]byte
	Length     uint32
	Rev        uint8
	Checksum   uint8
	OEMId      [6]byte
	OEMTableID [8]byte
	OEMRev     uint32
	CreatorID  [4]byte
	CreatorRev uint32
}

func convertOEMID(oemID string) [6]byte {
	var id [6]byte

	for i := 0; i < 6; i++ {
		id[i] = oemID[i]
	}

	return id
}

func convertOEMTableID(oemTableID string) [8]byte {
	var id [8]byte

	for i := 0; i < 8; i++ {
		id[i] = oemTableID[i]
	}

	return id
}

func convertCreatorID(creatorID string) [4]byte {
	var id [4]byte

	for i := 0; i < 4; i++ {
		id[i] = creatorID[i]
	}

	return id
}

// OEMID and OEMTableID are fixed for every table this emitter produces, per
// the slice firmware-table contract.
const (
	OEMID      = "SLICER"
	OEMTableID = "SLICE   "
	CreatorID  = "SLDR"
)

func newHeader(sig Signature, length uint32, rev uint8) Header {
	oid := convertOEMID(OEMID)
	otid := convertOEMTableID(OEMTableID)
	cid := convertCreatorID(CreatorID)

	return Header{
		Signature:  sig.ToBytes(),
		Length:     length,
		Rev:        rev,
		OEMId:      oid,
		OEMTableID: otid,
		CreatorID:  cid,
		CreatorRev: 1,
	}
}

// checksum8 computes the unsigned byte-wise sum of data.
func checksum8(data []byte) uint8 {
	var sum uint8
	for _, b := range data {
		sum += b
	}

	return sum
}

// negate returns the two's-complement negation of sum, i.e. the byte that
// must be added to make the running sum zero mod 256.
func negate(sum uint8) uint8 {
	return -sum
}
