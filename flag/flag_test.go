package flag_test

import (
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/alecthomas/kong"

	"github.com/msrssp/cpuslice/flag"
)

func TestParseCPUList(t *testing.T) { // nolint:paralleltest
	for _, tt := range []struct {
		name string
		in   string
		want []uint32
		err  error
	}{
		{name: "single", in: "3", want: []uint32{3}},
		{name: "list", in: "3,4,9", want: []uint32{3, 4, 9}},
		{name: "range", in: "5-7", want: []uint32{5, 6, 7}},
		{name: "mixed", in: "3,5-7,9", want: []uint32{3, 5, 6, 7, 9}},
		{name: "hex", in: "0x10", want: []uint32{16}},
		{name: "backwards range", in: "7-5", err: flag.ErrBackwardsRange},
		{name: "empty range side", in: "5-", err: flag.ErrEmptyRange},
		{name: "garbage", in: "abc", err: errGarbage},
	} {
		got, err := flag.ParseCPUList(tt.in)
		if tt.err != nil {
			if err == nil {
				t.Errorf("%s: got nil error, want one", tt.name)
			}

			continue
		}

		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)

			continue
		}

		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

var errGarbage = errors.New("sentinel: any non-nil error satisfies the garbage test case")

func TestCmdlineSliceParsing(t *testing.T) {
	t.Parallel()

	args := os.Args
	defer func() { os.Args = args }()

	os.Args = []string{
		"cpuslice",
		"slice",
		"-k", "kernel_path",
		"-i", "initrd_path",
		"-b", "0x100000000",
		"-s", "0x4000000",
		"-c", "3,4",
	}

	var c flag.CLI

	kong.Parse(&c, kong.Exit(func(_ int) { t.Fatal("parsing failed") }))

	if c.Slice.Kernel != "kernel_path" || c.Slice.RAMBase != "0x100000000" {
		t.Fatalf("got %+v", c.Slice)
	}
}

func TestCmdlineProbeParsing(t *testing.T) {
	t.Parallel()

	args := os.Args
	defer func() { os.Args = args }()

	os.Args = []string{"cpuslice", "probe"}

	var c flag.CLI

	kong.Parse(&c, kong.Exit(func(_ int) { t.Fatal("parsing failed") }))
}
