// Package loadcursor implements the slice loader's bump allocator: a single
// growing (physical, virtual) address pair into a mapped window of slice
// RAM, as described by the original slicer's inline cursor arithmetic in
// loader.cpp (loadaddr_phys/loadaddr_virt advanced together throughout
// load_linux).
package loadcursor

import "fmt"

// Cursor is a dual-address linear allocator. It never shrinks; Alloc
// refuses, with ErrOutOfWindow, any allocation that would run past the end
// of its backing mapping.
type Cursor struct {
	rambase uint64
	mapping []byte
	phys    uint64
}

// New creates a cursor over mapping, a slice backed by a mapping of slice
// RAM starting at physical address rambase. phys is the cursor's starting
// physical address and must fall within [rambase, rambase+len(mapping)).
func New(mapping []byte, rambase, phys uint64) *Cursor {
	return &Cursor{
		rambase: rambase,
		mapping: mapping,
		phys:    phys,
	}
}

// Phys returns the cursor's current, un-advanced physical address.
func (c *Cursor) Phys() uint64 {
	return c.phys
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}

	return (v + align - 1) &^ (align - 1)
}

// Alloc advances the cursor to the next multiple of align, reserves n
// bytes, zeroes them, and returns the pre-advance (physical address,
// mapped slice) pair. align of 0 means "no alignment required".
func (c *Cursor) Alloc(n, align uint64) (uint64, []byte, error) {
	c.phys = alignUp(c.phys, align)

	start := c.phys - c.rambase
	end := start + n

	if end > uint64(len(c.mapping)) {
		return 0, nil, fmt.Errorf("%w: need %d bytes at offset %d, mapping is %d bytes",
			ErrOutOfWindow, n, start, len(c.mapping))
	}

	region := c.mapping[start:end]
	for i := range region {
		region[i] = 0
	}

	allocPhys := c.phys
	c.phys += n

	if err := c.checkInvariant(); err != nil {
		panic(err)
	}

	return allocPhys, region, nil
}

// Advance moves the cursor forward by n bytes without zeroing or returning
// anything, e.g. to skip the rest of the kernel's init_size region after
// its body has been placed. It checks neither the window bound nor the
// invariant.
func (c *Cursor) Advance(n uint64) {
	c.phys += n
}

// checkInvariant enforces that phys-rambase, the cursor's offset into
// mapping, stays within bounds. Alloc already checked this before mutating
// the cursor; this method exists so the invariant is explicit and checked
// after every Alloc, not just inferred from the indexing.
func (c *Cursor) checkInvariant() error {
	off := c.phys - c.rambase
	if off > uint64(len(c.mapping)) {
		return fmt.Errorf("%w: phys=%#x rambase=%#x mapping=%d bytes",
			ErrInvariant, c.phys, c.rambase, len(c.mapping))
	}

	return nil
}
