package bootimage

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/msrssp/cpuslice/bootparam"
	"github.com/msrssp/cpuslice/bootproto"
	"github.com/msrssp/cpuslice/sliceconfig"
)

const (
	testRAMBase         = 0x1_0000_0000
	testRAMSize         = 0x400_0000
	testKernelAlignment = 0x20_0000
	testInitSize        = 0x20_0000
	testSetupSects      = 4
)

// writeSyntheticKernel builds a minimal bzImage-shaped file: a setup header
// at the documented 0x1F1 offset, followed by setupSects*512 bytes of
// "setup code" and then a tiny kernel body, matching exactly what
// bootimage.Load needs to see (everything else in the header is zero).
func writeSyntheticKernel(t *testing.T, version uint16, kernelBody []byte) string {
	t.Helper()

	hdr := bootproto.BootProto{
		Header:            bootproto.BootProtoMagicSignature,
		Version:           version,
		SetupSects:        testSetupSects,
		RelocatableKernel: 1,
		XloadFlags:        xlfKernel64 | xlfCanBeLoadedAbove4G,
		KernelAlignment:   testKernelAlignment,
		InitSize:          testInitSize,
	}

	var hdrBuf bytes.Buffer
	if err := binary.Write(&hdrBuf, binary.LittleEndian, hdr); err != nil {
		t.Fatal(err)
	}

	file := make([]byte, 0x1F1+hdrBuf.Len())
	copy(file[0x1F1:], hdrBuf.Bytes())

	kernelImageOffset := 512 * (testSetupSects + 1)
	if len(file) < kernelImageOffset {
		file = append(file, make([]byte, kernelImageOffset-len(file))...)
	}

	file = append(file, kernelBody...)

	path := filepath.Join(t.TempDir(), "bzImage")
	if err := os.WriteFile(path, file, 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func testConfig(t *testing.T, kernelPath, cmdline, initrdPath string) *sliceconfig.Config {
	t.Helper()

	cfg, err := sliceconfig.New(kernelPath, initrdPath, cmdline, "",
		testRAMBase, testRAMSize, 0, []uint32{3, 4})
	if err != nil {
		t.Fatal(err)
	}

	return cfg
}

// TestLoadMinimalTwoCPUSlice exercises spec.md Scenario 1 exactly.
func TestLoadMinimalTwoCPUSlice(t *testing.T) {
	t.Parallel()

	kernelBody := make([]byte, 16)
	kernelPath := writeSyntheticKernel(t, 0x20D, kernelBody)
	cfg := testConfig(t, kernelPath, "", "")

	mapping := make([]byte, testRAMSize)

	result, err := Load(cfg, mapping, cfg.CPUs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if result.EntryPhys != testRAMBase+0x200 {
		t.Fatalf("EntryPhys = %#x, want %#x", result.EntryPhys, uint64(testRAMBase+0x200))
	}

	if result.EntryArg != testRAMBase+0x20_0000 {
		t.Fatalf("EntryArg (zero-page phys) = %#x, want %#x", result.EntryArg, uint64(testRAMBase+0x20_0000))
	}

	zeroPageOff := result.EntryArg - testRAMBase

	var zp bootparam.BootParam

	if err := binary.Read(bytes.NewReader(mapping[zeroPageOff:]), binary.LittleEndian, &zp); err != nil {
		t.Fatal(err)
	}

	if zp.Hdr.TypeOfLoader != 0xFF {
		t.Fatalf("type_of_loader = %#x, want 0xFF", zp.Hdr.TypeOfLoader)
	}

	if zp.ACPIRSDPAddr < testRAMBase || zp.ACPIRSDPAddr >= testRAMBase+testRAMSize {
		t.Fatalf("acpi_rsdp_addr %#x falls outside slice RAM", zp.ACPIRSDPAddr)
	}

	if zp.E820Entries != 2 {
		t.Fatalf("e820_entries = %d, want 2", zp.E820Entries)
	}

	wantE820 := []bootparam.E820Entry{
		{Addr: 0, Size: lowMemRAMSize, Type: bootparam.E820Ram},
		{Addr: testRAMBase, Size: testRAMSize, Type: bootparam.E820Ram},
	}

	for i, want := range wantE820 {
		if zp.E820Table[i] != want {
			t.Fatalf("e820_table[%d] = %+v, want %+v", i, zp.E820Table[i], want)
		}
	}
}

// TestLoadCmdlineAndInitrd exercises spec.md Scenario 2.
func TestLoadCmdlineAndInitrd(t *testing.T) {
	t.Parallel()

	kernelBody := make([]byte, 16)
	kernelPath := writeSyntheticKernel(t, 0x20D, kernelBody)

	initrdData := bytes.Repeat([]byte{0xAB}, 12345)
	initrdPath := filepath.Join(t.TempDir(), "initrd")

	if err := os.WriteFile(initrdPath, initrdData, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t, kernelPath, "console=ttyS0", initrdPath)

	mapping := make([]byte, testRAMSize)

	result, err := Load(cfg, mapping, cfg.CPUs, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	zeroPageOff := result.EntryArg - testRAMBase

	var zp bootparam.BootParam

	if err := binary.Read(bytes.NewReader(mapping[zeroPageOff:]), binary.LittleEndian, &zp); err != nil {
		t.Fatal(err)
	}

	hdr := zp.Hdr

	if hdr.RamdiskSize != uint32(len(initrdData)) {
		t.Fatalf("ramdisk_size = %d, want %d", hdr.RamdiskSize, len(initrdData))
	}

	cmdlinePhys := uint64(zp.ExtCmdLinePtr)<<32 | uint64(hdr.CmdlinePtr)
	cmdlineOff := cmdlinePhys - testRAMBase

	want := append([]byte("console=ttyS0"), 0)
	if !bytes.Equal(mapping[cmdlineOff:cmdlineOff+uint64(len(want))], want) {
		t.Fatalf("cmdline bytes = %q, want %q", mapping[cmdlineOff:cmdlineOff+uint64(len(want))], want)
	}

	initrdPhys := uint64(zp.ExtRamdiskImage)<<32 | uint64(hdr.RamdiskImage)
	initrdOff := initrdPhys - testRAMBase

	if !bytes.Equal(mapping[initrdOff:initrdOff+uint64(len(initrdData))], initrdData) {
		t.Fatal("initrd bytes don't match what was loaded")
	}
}

// TestLoadRejectsTooOldKernel exercises spec.md Scenario 3.
func TestLoadRejectsTooOldKernel(t *testing.T) {
	t.Parallel()

	kernelPath := writeSyntheticKernel(t, 0x20B, make([]byte, 16))
	cfg := testConfig(t, kernelPath, "", "")

	mapping := make([]byte, testRAMSize)

	if _, err := Load(cfg, mapping, cfg.CPUs, nil, nil); err != ErrTooOld {
		t.Fatalf("got %v, want ErrTooOld", err)
	}
}
