// Package benchmarks provides the timing benchmark harness and the
// micro-benchmark programs used to characterize a configuration.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/config"
	"github.com/sarchlab/rvsim/timing/core"
)

// Version is reported in JSON output.
const Version = "0.3.0"

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// StopReason is how the run ended: exit, end-of-code, fault or budget
	StopReason string `json:"stop_reason"`

	// SimulatedCycles is the total cycle count from the timing simulator
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of committed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// DispatchStalls counts cycles decode could not place an instruction
	DispatchStalls uint64 `json:"dispatch_stalls"`

	// PipelineFlushes is the number of recoveries
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// FlushedInstructions counts instances discarded by recoveries
	FlushedInstructions uint64 `json:"flushed_instructions"`

	// LoadConflicts counts recoveries caused by memory ordering
	LoadConflicts uint64 `json:"load_conflicts"`

	// BypassedLoads counts loads served from the store buffer
	BypassedLoads uint64 `json:"bypassed_loads"`

	// Cache stats (if cache enabled)
	CacheHits       uint64 `json:"cache_hits,omitempty"`
	CacheMisses     uint64 `json:"cache_misses,omitempty"`
	CacheWritebacks uint64 `json:"cache_writebacks,omitempty"`

	// Branch predictor stats
	BranchPredictions     uint64  `json:"branch_predictions,omitempty"`
	BranchCorrect         uint64  `json:"branch_correct,omitempty"`
	BranchMispredictions  uint64  `json:"branch_mispredictions,omitempty"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent,omitempty"`

	// ExitCode is the program's exit code
	ExitCode int64 `json:"exit_code"`

	// Verified is set when the exit code matched the expected value
	Verified bool `json:"verified"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Source is the assembly program
	Source string

	// ExpectedExit is the expected exit code (for validation)
	ExpectedExit int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// CPU is the machine configuration every benchmark runs on
	CPU *config.Config

	// MaxCycles bounds each run; zero means no bound
	MaxCycles uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives per-run lifecycle messages
	Logger logr.Logger
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		CPU:       config.Default(),
		MaxCycles: 1_000_000,
		Output:    os.Stdout,
		Logger:    logr.Discard(),
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.CPU == nil {
		config.CPU = DefaultConfig().CPU
	}
	if config.Logger.GetSink() == nil {
		config.Logger = logr.Discard()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. It stops at the
// first benchmark that cannot be built.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.runBenchmark(bench)
		if err != nil {
			return results, errors.Wrapf(err, "benchmark %s", bench.Name)
		}
		results = append(results, result)
	}

	return results, nil
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) (BenchmarkResult, error) {
	prog, err := insts.Assemble(bench.Source)
	if err != nil {
		return BenchmarkResult{}, err
	}

	cpu, err := core.NewCpu(h.config.CPU, prog,
		core.WithHistoryLimit(1),
		core.WithCycleBudget(h.config.MaxCycles),
		core.WithLogger(h.config.Logger.WithValues("benchmark", bench.Name)))
	if err != nil {
		return BenchmarkResult{}, err
	}

	start := time.Now()
	reason := cpu.Execute(false)
	wallTime := time.Since(start)

	stats := cpu.Stats()
	stalls := stats.Stalls
	result := BenchmarkResult{
		Name:                bench.Name,
		Description:         bench.Description,
		StopReason:          reason.String(),
		SimulatedCycles:     stats.Cycles,
		InstructionsRetired: stats.Committed,
		CPI:                 stats.CPI(),
		DispatchStalls: stalls.ROBFull + stalls.WindowFull + stalls.LoadBufferFull +
			stalls.StoreBufferFull + stalls.NoFreeRegister,
		PipelineFlushes:     stats.Flushes,
		FlushedInstructions: stats.Flushed,
		LoadConflicts:       stats.LoadConflicts,
		BypassedLoads:       stats.BypassedLoads,
		ExitCode:            cpu.ExitCode(),
		WallTime:            wallTime,
	}
	result.Verified = reason == core.StopExit && result.ExitCode == bench.ExpectedExit

	if stats.CacheEnabled {
		result.CacheHits = stats.Cache.Hits
		result.CacheMisses = stats.Cache.Misses
		result.CacheWritebacks = stats.Cache.Writebacks
	}

	result.BranchPredictions = stats.Predictor.Predictions
	result.BranchCorrect = stats.Predictor.Correct
	result.BranchMispredictions = stats.Predictor.Mispredictions
	result.BranchAccuracyPercent = stats.Predictor.Accuracy()

	return result, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== rvsim Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintf(out, "  Stop: %s, Exit Code: %d, Verified: %v\n", r.StopReason, r.ExitCode, r.Verified)
		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(out, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(out, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(out, "  Dispatch Stalls:      %d\n", r.DispatchStalls)
		_, _ = fmt.Fprintf(out, "  Pipeline Flushes:     %d (%d discarded)\n", r.PipelineFlushes, r.FlushedInstructions)
		if r.LoadConflicts > 0 || r.BypassedLoads > 0 {
			_, _ = fmt.Fprintf(out, "  Load Conflicts:       %d\n", r.LoadConflicts)
			_, _ = fmt.Fprintf(out, "  Bypassed Loads:       %d\n", r.BypassedLoads)
		}

		if r.CacheHits > 0 || r.CacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:       %d\n", r.CacheHits)
			_, _ = fmt.Fprintf(out, "  Misses:     %d\n", r.CacheMisses)
			_, _ = fmt.Fprintf(out, "  Writebacks: %d\n", r.CacheWritebacks)
		}

		if r.BranchPredictions > 0 {
			_, _ = fmt.Fprintln(out, "  --- Branch Predictor ---")
			_, _ = fmt.Fprintf(out, "  Predictions:     %d\n", r.BranchPredictions)
			_, _ = fmt.Fprintf(out, "  Correct:         %d\n", r.BranchCorrect)
			_, _ = fmt.Fprintf(out, "  Mispredictions:  %d\n", r.BranchMispredictions)
			_, _ = fmt.Fprintf(out, "  Accuracy:        %.1f%%\n", r.BranchAccuracyPercent)
		}

		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,dispatch_stalls,flushes,flushed,load_conflicts,bypassed_loads,cache_hits,cache_misses,mispredictions,exit_code,verified")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%d,%d,%d,%t\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.DispatchStalls,
			r.PipelineFlushes,
			r.FlushedInstructions,
			r.LoadConflicts,
			r.BypassedLoads,
			r.CacheHits,
			r.CacheMisses,
			r.BranchMispredictions,
			r.ExitCode,
			r.Verified,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Version of the simulator
	Version string `json:"version"`

	// Config is the machine configuration used
	Config *config.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// Verified is the number of benchmarks whose exit code matched
	Verified int `json:"verified"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalInstructions is the sum of all instructions retired
	TotalInstructions uint64 `json:"total_instructions"`

	// AverageCPI is the average cycles per instruction
	AverageCPI float64 `json:"average_cpi"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime
		if r.Verified {
			s.Verified++
		}
	}
	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}
	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config:    h.config.CPU,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
