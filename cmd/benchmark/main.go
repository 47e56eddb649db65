// Command benchmark runs the rvsim timing benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-format      Output format: text, json or csv (default: text)
//	-config      CPU configuration file (.json, .yaml)
//	-core        Run only the core subset of benchmarks
//	-max-cycles  Per-benchmark cycle budget
//
// Example:
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -format csv > results.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/rvsim/benchmarks"
	"github.com/sarchlab/rvsim/timing/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "text", "Output format: text, json or csv")
	configPath := fs.String("config", "", "Path to a CPU configuration file")
	coreOnly := fs.Bool("core", false, "Run only the core benchmarks")
	maxCycles := fs.Uint64("max-cycles", 0, "Per-benchmark cycle budget (0: harness default)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	switch *format {
	case "text", "json", "csv":
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown format %q\n", *format)
		return 1
	}

	hc := benchmarks.DefaultConfig()
	hc.Output = stdout
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error loading CPU config: %v\n", err)
			return 1
		}
		hc.CPU = cfg
	}
	if *maxCycles > 0 {
		hc.MaxCycles = *maxCycles
	}

	harness := benchmarks.NewHarness(hc)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if *format == "text" {
		_, _ = fmt.Fprintln(stdout, "rvsim Timing Benchmark Harness")
		_, _ = fmt.Fprintln(stdout, "==============================")
		_, _ = fmt.Fprintf(stdout, "Fetch width: %d  ROB: %d  Cache: %v\n\n",
			hc.CPU.FetchWidth, hc.CPU.ROBSize, hc.CPU.Cache.Enabled)
	}

	results, err := harness.RunAll()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	switch *format {
	case "json":
		if err := harness.PrintJSON(results); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case "csv":
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)
	}

	for _, r := range results {
		if !r.Verified {
			return 1
		}
	}
	return 0
}
