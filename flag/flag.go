// Package flag defines the command-line surface: two subcommands, "slice"
// (carve out RAM/CPUs and boot a kernel into them) and "probe" (report host
// APIC/MCFG introspection without booting anything), parsed with
// github.com/alecthomas/kong the way gokvm's own flag package does
// (github.com/bobuhiro11/gokvm/flag/runs.go), generalized from gokvm's
// VM-sizing flags to this tool's physical-address flags.
package flag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/msrssp/cpuslice/hostview"
	"github.com/msrssp/cpuslice/sliceconfig"
	"github.com/msrssp/cpuslice/slicer"
)

// ErrEmptyRange is returned by ParseCPUList when a "-" range has no digits
// on one side.
var ErrEmptyRange = errors.New("flag: empty number in cpu range")

// ErrBackwardsRange is returned by ParseCPUList when a range's low bound
// exceeds its high bound.
var ErrBackwardsRange = errors.New("flag: cpu range start exceeds its end")

// SliceCmd carves rambase/ramsize out of the host, loads kernel/initrd/
// cmdline into it, and sends the startup IPI that boots cpus[0] into it.
type SliceCmd struct {
	Kernel  string `kong:"short='k',required,help='kernel bzImage path'"`
	Initrd  string `kong:"short='i',help='initrd path'"`
	Cmdline string `kong:"short='p',help='kernel command-line parameters'"`
	DSDT    string `kong:"help='optional DSDT AML file copied verbatim into the slice ACPI tables'"`
	RAMBase string `kong:"short='b',required,help='physical base address of the slice RAM window (e.g. 0x100000000)'"`
	RAMSize string `kong:"short='s',required,help='size of the slice RAM window (e.g. 0x4000000)'"`
	LowMem  string `kong:"help='trampoline physical address below 640KiB, default 0x6000'"`
	CPUs    string `kong:"short='c',required,help='comma-separated host APIC ids and/or A-B ranges; first is the slice BSP'"`
}

// ProbeCmd reports the host's APIC/MCFG view so a caller can pick CPU ids
// for a SliceCmd invocation.
type ProbeCmd struct{}

// CLI is the top-level command tree, parsed by kong.Parse in Parse.
type CLI struct {
	Slice SliceCmd `kong:"cmd,help='carve RAM/CPUs out of the host and boot a kernel into them'"`
	Probe ProbeCmd `kong:"cmd,help='report host APIC ids and MCFG without booting anything'"`
}

// Parse parses os.Args (via kong's default) and runs whichever subcommand
// was selected.
func Parse() error {
	c := CLI{}

	ctx := kong.Parse(&c,
		kong.Name("cpuslice"),
		kong.Description("cpuslice carves a physical CPU/RAM slice out of a host and boots a kernel into it"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	return ctx.Run()
}

// parseUint64 accepts C-style base prefixes: 0x for hexadecimal, a leading
// 0 for octal, otherwise decimal.
func parseUint64(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

// ParseCPUList parses a comma-separated list of APIC ids and/or inclusive
// "A-B" ranges, e.g. "3,5-7,9", preserving the order given (the first id
// named becomes the slice BSP per sliceconfig.Config).
func ParseCPUList(s string) ([]uint32, error) {
	var ids []uint32

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")

		if !isRange {
			id, err := strconv.ParseUint(lo, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("flag: cpu id %q: %w", part, err)
			}

			ids = append(ids, uint32(id))

			continue
		}

		if lo == "" || hi == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyRange, part)
		}

		loN, err := strconv.ParseUint(lo, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("flag: cpu range %q: %w", part, err)
		}

		hiN, err := strconv.ParseUint(hi, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("flag: cpu range %q: %w", part, err)
		}

		if loN > hiN {
			return nil, fmt.Errorf("%w: %q", ErrBackwardsRange, part)
		}

		for n := loN; n <= hiN; n++ {
			ids = append(ids, uint32(n))
		}
	}

	return ids, nil
}

func (s *SliceCmd) Run() error {
	rambase, err := parseUint64(s.RAMBase)
	if err != nil {
		return fmt.Errorf("flag: -rambase: %w", err)
	}

	ramsize, err := parseUint64(s.RAMSize)
	if err != nil {
		return fmt.Errorf("flag: -ramsize: %w", err)
	}

	var lowmem uint64

	if s.LowMem != "" {
		lowmem, err = parseUint64(s.LowMem)
		if err != nil {
			return fmt.Errorf("flag: -lowmem: %w", err)
		}
	}

	cpus, err := ParseCPUList(s.CPUs)
	if err != nil {
		return err
	}

	cfg, err := sliceconfig.New(s.Kernel, s.Initrd, s.Cmdline, s.DSDT, rambase, ramsize, lowmem, cpus)
	if err != nil {
		return err
	}

	return slicer.Orchestrate(cfg)
}

func (p *ProbeCmd) Run() error {
	view, err := hostview.Build()
	if err != nil {
		return err
	}

	fmt.Printf("host BSP APIC id: %d\n", view.BSPAPICID())
	fmt.Printf("host APIC ids (%d): %v\n", len(view.HostAPICIDs()), view.HostAPICIDs())
	fmt.Printf("host MCFG payload: %d bytes\n", len(view.MCFGBytes()))

	return nil
}
