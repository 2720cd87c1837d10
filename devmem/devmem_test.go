package devmem_test

import (
	"testing"

	"github.com/msrssp/cpuslice/devmem"
)

func TestOpenRequiresRoot(t *testing.T) {
	t.Parallel()

	w, err := devmem.Open(0, 0x1000)
	if err != nil {
		t.Skipf("skipping this test: %v", err)
	}
	defer w.Close()

	if len(w.Bytes) != 0x1000 {
		t.Fatalf("window length = %d, want 0x1000", len(w.Bytes))
	}
}
