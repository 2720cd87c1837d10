package loadcursor_test

import (
	"testing"

	"github.com/msrssp/cpuslice/loadcursor"
)

func TestAllocAdvancesAndAligns(t *testing.T) {
	t.Parallel()

	const rambase = 0x1_0000_0000

	mapping := make([]byte, 0x10000)
	c := loadcursor.New(mapping, rambase, rambase)

	p1, v1, err := c.Alloc(7, 0)
	if err != nil {
		t.Fatal(err)
	}

	if p1 != rambase {
		t.Fatalf("first alloc phys = %#x, want %#x", p1, rambase)
	}

	if len(v1) != 7 {
		t.Fatalf("first alloc len = %d, want 7", len(v1))
	}

	p2, _, err := c.Alloc(8, 0x1000)
	if err != nil {
		t.Fatal(err)
	}

	if p2 != rambase+0x1000 {
		t.Fatalf("second alloc phys = %#x, want %#x", p2, rambase+0x1000)
	}

	if c.Phys() != rambase+0x1000+8 {
		t.Fatalf("cursor phys = %#x, want %#x", c.Phys(), rambase+0x1000+8)
	}
}

func TestAllocZeroesRegion(t *testing.T) {
	t.Parallel()

	const rambase = 0x2000

	mapping := make([]byte, 0x1000)
	for i := range mapping {
		mapping[i] = 0xFF
	}

	c := loadcursor.New(mapping, rambase, rambase)

	_, region, err := c.Alloc(16, 0)
	if err != nil {
		t.Fatal(err)
	}

	for i, b := range region {
		if b != 0 {
			t.Fatalf("region[%d] = %#x, want 0", i, b)
		}
	}
}

func TestAllocOutOfWindow(t *testing.T) {
	t.Parallel()

	const rambase = 0x4000

	mapping := make([]byte, 16)
	c := loadcursor.New(mapping, rambase, rambase)

	if _, _, err := c.Alloc(17, 0); err == nil {
		t.Fatal("expected out-of-window error")
	}
}
