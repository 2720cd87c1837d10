package bootparam_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"testing"

	"github.com/msrssp/cpuslice/bootparam"
)

func bpnew(n string) (*bootparam.BootParam, error) {
	f, err := os.Open(n)
	if err != nil {
		return nil, fmt.Errorf("skipping this test: %w", err)
	}
	defer f.Close()

	return bootparam.New(f)
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := bpnew("../bzImage"); err != nil {
		t.Skipf("skipping this test: %v", err)
	}
}

func TestNewNotBzImage(t *testing.T) {
	t.Parallel()

	if _, err := bpnew("../SPEC_FULL.md"); err == nil {
		t.Fatal("expected signature mismatch on a non-kernel file")
	}
}

func TestBytes(t *testing.T) {
	t.Parallel()

	b, err := bpnew("../bzImage")
	if err != nil {
		t.Skipf("skipping this test: %v", err)
	}

	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	if len(data) != 4096 {
		t.Fatalf("zero page length = %d, want 4096", len(data))
	}
}

func TestAddE820Entry(t *testing.T) {
	t.Parallel()

	b, err := bpnew("../bzImage")
	if err != nil {
		t.Skipf("skipping this test: %v", err)
	}

	b.AddE820Entry(
		0x1234567812345678,
		0xabcdefabcdefabcd,
		bootparam.E820Ram,
	)

	rawBootParam, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	if rawBootParam[0x1E8] != 1 {
		t.Fatalf("invalid e820_entries: %d", rawBootParam[0x1E8])
	}

	actual := bootparam.E820Entry{}
	reader := bytes.NewReader(rawBootParam[0x2D0:])

	if err := binary.Read(reader, binary.LittleEndian, &actual); err != nil {
		t.Fatal(err)
	}

	if actual.Addr != 0x1234567812345678 {
		t.Fatalf("invalid e820 addr: %v", actual.Addr)
	}

	if actual.Size != 0xabcdefabcdefabcd {
		t.Fatalf("invalid e820 size: %v", actual.Size)
	}

	if actual.Type != bootparam.E820Ram {
		t.Fatalf("invalid e820 type: %v", actual.Type)
	}
}
