// Package main provides the rvsim command line. It runs an assembly program
// on the out-of-order timing model, or on the functional emulator with
// -emulate, and prints the final state and statistics.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/loader"
	"github.com/sarchlab/rvsim/timing/config"
	"github.com/sarchlab/rvsim/timing/core"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	maxCycles   uint64
	verbosity   int
	emulate     bool
	breakpoints string
	regs        bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("rvsim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Path to a CPU configuration file (.json, .yaml)")
	fs.Uint64Var(&o.maxCycles, "max-cycles", 0, "Stop after this many cycles (0: no limit)")
	fs.IntVar(&o.verbosity, "v", -1, "Log verbosity to stderr: 0 lifecycle, 1 flushes, 2 commits")
	fs.BoolVar(&o.emulate, "emulate", false, "Run the functional emulator instead of the timing model")
	fs.StringVar(&o.breakpoints, "break", "", "Comma-separated labels or addresses to report when committed")
	fs.BoolVar(&o.regs, "regs", true, "Print non-zero registers at the end")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: rvsim [options] <program.s>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return o, fs.Args(), nil
}

// run executes the command and returns the process exit status: the
// program's exit code, or 1 on usage and load errors, or 2 on a fault.
func run(args []string, stdout, stderr io.Writer) int {
	o, rest, err := parseFlags(args, stderr)
	if err != nil {
		return 1
	}
	if len(rest) != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: rvsim [options] <program.s>")
		return 1
	}
	programPath := rest[0]

	prog, err := loader.Load(programPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}

	logger := logr.Discard()
	if o.verbosity >= 0 {
		logger = funcr.New(func(prefix, args string) {
			_, _ = fmt.Fprintln(stderr, prefix, args)
		}, funcr.Options{Verbosity: o.verbosity})
	}

	if o.emulate {
		return runEmulation(prog, programPath, o, logger, stdout, stderr)
	}
	return runTiming(prog, programPath, o, logger, stdout, stderr)
}

// runEmulation runs the program on the functional emulator.
func runEmulation(prog *insts.Program, programPath string, o *options,
	logger logr.Logger, stdout, stderr io.Writer,
) int {
	opts := []emu.EmulatorOption{emu.WithEmulatorLogger(logger)}
	if o.maxCycles > 0 {
		opts = append(opts, emu.WithMaxInstructions(o.maxCycles))
	}
	e, err := emu.NewEmulator(prog, opts...)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	r := e.Run()

	_, _ = fmt.Fprintf(stdout, "\nProgram: %s\n", programPath)
	_, _ = fmt.Fprintf(stdout, "Instructions executed: %d\n", e.InstructionCount())
	if o.regs {
		printRegisters(stdout, e.RegFile().Read)
	}

	switch {
	case r.Err != nil:
		_, _ = fmt.Fprintf(stdout, "Fault: %v\n", r.Err)
		return 2
	case r.Exited:
		_, _ = fmt.Fprintf(stdout, "Exit code: %d\n", r.ExitCode)
		return int(r.ExitCode)
	case r.EndOfCode:
		_, _ = fmt.Fprintln(stdout, "End of code")
	default:
		_, _ = fmt.Fprintln(stdout, "Instruction limit reached")
	}
	return 0
}

// runTiming runs the program on the timing model.
func runTiming(prog *insts.Program, programPath string, o *options,
	logger logr.Logger, stdout, stderr io.Writer,
) int {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading CPU config: %v\n", err)
			return 1
		}
	}

	cpu, err := core.NewCpu(cfg, prog,
		core.WithLogger(logger),
		core.WithCycleBudget(o.maxCycles),
		core.WithHistoryLimit(1))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	breakpoints, err := parseBreakpoints(o.breakpoints, prog)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, pc := range breakpoints {
		cpu.SetBreakpoint(pc)
	}

	reason := cpu.Execute(len(breakpoints) > 0)
	for reason == core.StopBreakpoint {
		for _, c := range cpu.LastReport().Commits {
			_, _ = fmt.Fprintf(stdout, "break: cycle %d  0x%X  %s\n", cpu.Cycle(), c.PC, c.Text)
		}
		reason = cpu.Execute(true)
	}

	printTimingReport(stdout, programPath, cpu, reason)
	if o.regs {
		printRegisters(stdout, func(id insts.RegID) uint64 {
			return cpu.Machine().ArchRegister(id)
		})
	}

	switch reason {
	case core.StopExit:
		return int(cpu.ExitCode())
	case core.StopFault:
		return 2
	}
	return 0
}

func parseBreakpoints(list string, prog *insts.Program) ([]uint64, error) {
	var out []uint64
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if pc, ok := prog.Labels[item]; ok {
			out = append(out, pc)
			continue
		}
		pc, err := strconv.ParseUint(item, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad breakpoint %q", item)
		}
		out = append(out, pc)
	}
	return out, nil
}

func printTimingReport(w io.Writer, programPath string, cpu *core.Cpu, reason core.StopReason) {
	stats := cpu.Stats()

	_, _ = fmt.Fprintf(w, "\n")
	_, _ = fmt.Fprintf(w, "Program: %s\n", programPath)
	_, _ = fmt.Fprintf(w, "Stop reason: %s\n", reason)
	switch reason {
	case core.StopExit:
		_, _ = fmt.Fprintf(w, "Exit code: %d\n", cpu.ExitCode())
	case core.StopFault:
		_, _ = fmt.Fprintf(w, "Fault: %v\n", cpu.Fault())
	}
	_, _ = fmt.Fprintf(w, "Total Instructions: %d\n", stats.Committed)
	_, _ = fmt.Fprintf(w, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "CPI: %.2f\n", stats.CPI())
	_, _ = fmt.Fprintf(w, "\n")

	total := stats.Cycles
	if total == 0 {
		total = 1
	}
	s := stats.Stalls
	_, _ = fmt.Fprintf(w, "Dispatch stalls:\n")
	for _, row := range []struct {
		name string
		n    uint64
	}{
		{"ROB full", s.ROBFull},
		{"Issue window full", s.WindowFull},
		{"Load buffer full", s.LoadBufferFull},
		{"Store buffer full", s.StoreBufferFull},
		{"No free register", s.NoFreeRegister},
		{"Fetch blocked", s.FetchBlocked},
	} {
		_, _ = fmt.Fprintf(w, "  %-18s %6d (%5.1f%%)\n", row.name+":", row.n, 100.0*float64(row.n)/float64(total))
	}
	_, _ = fmt.Fprintf(w, "\n")

	_, _ = fmt.Fprintf(w, "Pipeline Events:\n")
	_, _ = fmt.Fprintf(w, "  Flushes:          %d (%d instructions discarded)\n", stats.Flushes, stats.Flushed)
	_, _ = fmt.Fprintf(w, "  Branches:         %d\n", stats.Branches)
	_, _ = fmt.Fprintf(w, "  Mispredictions:   %d\n", stats.Mispredictions)
	_, _ = fmt.Fprintf(w, "  Load conflicts:   %d\n", stats.LoadConflicts)
	_, _ = fmt.Fprintf(w, "  Bypassed loads:   %d\n", stats.BypassedLoads)
	_, _ = fmt.Fprintf(w, "  Speculative loads: %d\n", stats.SpeculativeLoads)

	units := cpu.Machine().Latencies().Units()
	_, _ = fmt.Fprintf(w, "\nUnit utilization:\n")
	for i, u := range units {
		_, _ = fmt.Fprintf(w, "  %-8s %6d (%5.1f%%)\n", u.Name, stats.UnitBusy[i],
			100.0*float64(stats.UnitBusy[i])/float64(total))
	}

	if stats.CacheEnabled {
		c := stats.Cache
		_, _ = fmt.Fprintf(w, "\nCache:\n")
		_, _ = fmt.Fprintf(w, "  Reads: %d  Writes: %d  Hits: %d  Misses: %d\n", c.Reads, c.Writes, c.Hits, c.Misses)
		_, _ = fmt.Fprintf(w, "  Evictions: %d  Writebacks: %d\n", c.Evictions, c.Writebacks)
	}

	p := stats.Predictor
	_, _ = fmt.Fprintf(w, "\nBranch predictor:\n")
	_, _ = fmt.Fprintf(w, "  Accuracy: %.1f%%  BTB hit rate: %.1f%%\n", p.Accuracy(), p.BTBHitRate())
}

func printRegisters(w io.Writer, read func(insts.RegID) uint64) {
	_, _ = fmt.Fprintf(w, "\nRegisters:\n")
	for _, def := range insts.Registers() {
		v := read(def.ID)
		if v == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %-4s %-5s 0x%016X (%d)\n", def.Name, def.Aliases[0], v, int64(v))
	}
}
