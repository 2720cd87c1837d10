package hostview_test

import (
	"testing"

	"github.com/msrssp/cpuslice/hostview"
	"github.com/msrssp/cpuslice/sliceconfig"
)

func TestBuildRequiresHostFirmwareTables(t *testing.T) {
	t.Parallel()

	if _, err := hostview.Build(); err != nil {
		t.Skipf("skipping this test: %v", err)
	}
}

func TestValidateRejectsBSPCollision(t *testing.T) {
	t.Parallel()

	cfg, err := sliceconfig.New("kernel", "", "", "", 0x1_0000_0000, 0x1000, 0, []uint32{3, 4})
	if err != nil {
		t.Fatal(err)
	}

	const bsp = uint32(3)

	err = cfg.Validate(bsp, []uint32{0, 1, 2, 3, 4})
	if err == nil {
		t.Fatal("expected a fatal error when a slice CPU equals the host BSP APIC id")
	}
}

func TestValidateRejectsCPUNotOnHost(t *testing.T) {
	t.Parallel()

	cfg, err := sliceconfig.New("kernel", "", "", "", 0x1_0000_0000, 0x1000, 0, []uint32{9})
	if err != nil {
		t.Fatal(err)
	}

	if err := cfg.Validate(0, []uint32{0, 1, 2}); err == nil {
		t.Fatal("expected a fatal error when a slice CPU is not present on the host")
	}
}
