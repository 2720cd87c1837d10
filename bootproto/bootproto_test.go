package bootproto_test

import (
	"testing"

	"github.com/msrssp/cpuslice/bootproto"
)

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := bootproto.New("../bzImage"); err != nil {
		t.Skipf("skipping this test: %v", err)
	}
}

func TestBytes(t *testing.T) {
	t.Parallel()

	b, err := bootproto.New("../bzImage")
	if err != nil {
		t.Skipf("skipping this test: %v", err)
	}

	if _, err := b.Bytes(); err != nil {
		t.Fatal(err)
	}
}
