// Package core provides the cycle-accurate CPU driver.
// It wraps the out-of-order machine with forward and backward stepping,
// breakpoints and telemetry hooks.
package core

import (
	"sort"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/config"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

// Hook positions. Hooks observe; they must not mutate the machine.
var (
	// HookPosCommit fires once per retired instance with a
	// pipeline.CommitRecord as the item.
	HookPosCommit = &sim.HookPos{Name: "Commit"}
	// HookPosFlush fires on recovery with a *pipeline.FlushRecord.
	HookPosFlush = &sim.HookPos{Name: "Flush"}
	// HookPosCycle fires after every forward cycle with the
	// pipeline.CycleReport.
	HookPosCycle = &sim.HookPos{Name: "Cycle"}
)

// StopReason tells why Execute returned.
type StopReason int

// Stop reasons.
const (
	StopEndOfCode StopReason = iota
	StopExit
	StopFault
	StopBreakpoint
	StopBudget
)

var stopReasonNames = [...]string{"end-of-code", "exit", "fault", "breakpoint", "budget"}

func (r StopReason) String() string {
	return stopReasonNames[r]
}

// Stats holds performance statistics for the CPU.
type Stats struct {
	pipeline.Statistics
	Predictor pipeline.BranchPredictorStats
	// Cache is zero when the cache is disabled.
	Cache        cache.Statistics
	CacheEnabled bool
}

// Option configures a Cpu.
type Option func(*Cpu)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logr.Logger) Option {
	return func(c *Cpu) {
		c.logger = l
	}
}

// WithHistoryLimit keeps at most n snapshots for backward stepping. Zero
// means unlimited.
func WithHistoryLimit(n int) Option {
	return func(c *Cpu) {
		c.historyLimit = n
	}
}

// WithCycleBudget makes Execute stop after n cycles. Zero means no budget.
func WithCycleBudget(n uint64) Option {
	return func(c *Cpu) {
		c.budget = n
	}
}

// Cpu drives a pipeline.Machine. Every forward step first saves a snapshot
// of the machine, so StepBack restores the previous state exactly.
type Cpu struct {
	*sim.HookableBase

	machine      *pipeline.Machine
	history      []*pipeline.Machine
	historyLimit int
	budget       uint64
	breakpoints  map[uint64]bool
	lastReport   pipeline.CycleReport
	logger       logr.Logger
}

// NewCpu builds a CPU for program. The configuration is copied; an invalid
// configuration is reported and no Cpu is returned.
func NewCpu(cfg *config.Config, program *insts.Program, opts ...Option) (*Cpu, error) {
	if program == nil {
		return nil, errors.New("no program")
	}
	m, err := pipeline.NewMachine(cfg.Clone(), program)
	if err != nil {
		return nil, err
	}

	c := &Cpu{
		HookableBase: sim.NewHookableBase(),
		machine:      m,
		breakpoints:  make(map[uint64]bool),
		logger:       logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("cpu created",
		"instructions", len(program.Code),
		"entry", program.Entry,
		"units", len(m.Units()))
	return c, nil
}

// Step advances one cycle. It returns false, doing nothing, once the
// machine has halted.
func (c *Cpu) Step() bool {
	if c.Halted() {
		return false
	}

	c.history = append(c.history, c.machine.Clone())
	if c.historyLimit > 0 && len(c.history) > c.historyLimit {
		c.history[0] = nil
		c.history = c.history[1:]
	}

	report := c.machine.Tick()
	c.lastReport = report
	c.observe(report)

	if c.Halted() {
		c.logHalt()
	}
	return true
}

// StepBack undoes the most recent Step. It returns false at the initial
// state or once the history is exhausted.
func (c *Cpu) StepBack() bool {
	n := len(c.history)
	if n == 0 {
		return false
	}
	c.machine = c.history[n-1]
	c.history[n-1] = nil
	c.history = c.history[:n-1]
	c.lastReport = pipeline.CycleReport{}
	c.logger.V(2).Info("step back", "cycle", c.machine.Cycle())
	return true
}

// RunCycles steps up to n cycles and reports whether the machine is still
// running.
func (c *Cpu) RunCycles(n uint64) bool {
	for i := uint64(0); i < n; i++ {
		if !c.Step() {
			break
		}
	}
	return !c.Halted()
}

// Execute runs until the machine halts, the cycle budget is spent or, when
// haltOnBreakpoint is set, an instruction at a breakpoint commits.
func (c *Cpu) Execute(haltOnBreakpoint bool) StopReason {
	for {
		if c.Halted() {
			return c.haltReason()
		}
		if c.budget > 0 && c.machine.Cycle() >= c.budget {
			c.logger.Info("cycle budget exhausted", "cycles", c.machine.Cycle())
			return StopBudget
		}

		c.Step()
		if haltOnBreakpoint && c.hitBreakpoint() {
			c.logger.Info("breakpoint", "cycle", c.machine.Cycle())
			return StopBreakpoint
		}
	}
}

func (c *Cpu) hitBreakpoint() bool {
	for _, r := range c.lastReport.Commits {
		if c.breakpoints[r.PC] {
			return true
		}
	}
	return false
}

func (c *Cpu) haltReason() StopReason {
	switch c.machine.Status() {
	case pipeline.Exited:
		return StopExit
	case pipeline.Faulted:
		return StopFault
	default:
		return StopEndOfCode
	}
}

func (c *Cpu) observe(report pipeline.CycleReport) {
	for _, r := range report.Commits {
		c.logger.V(2).Info("commit", "cycle", report.Cycle, "pc", r.PC, "inst", r.Text)
		c.invoke(HookPosCommit, r)
	}
	if f := report.Flush; f != nil {
		c.logger.V(1).Info("flush",
			"cycle", report.Cycle,
			"reason", f.Reason.String(),
			"pc", f.PC,
			"target", f.Target,
			"discarded", f.Discarded)
		c.invoke(HookPosFlush, f)
	}
	c.invoke(HookPosCycle, report)
}

func (c *Cpu) invoke(pos *sim.HookPos, item interface{}) {
	if c.NumHooks() == 0 {
		return
	}
	c.InvokeHook(sim.HookCtx{Domain: c, Pos: pos, Item: item})
}

func (c *Cpu) logHalt() {
	s := c.machine.Stats()
	switch c.machine.Status() {
	case pipeline.Faulted:
		c.logger.Info("halted on fault", "cycle", s.Cycles, "fault", c.machine.Fault().Error())
	default:
		c.logger.Info("halted",
			"status", c.machine.Status().String(),
			"cycle", s.Cycles,
			"committed", s.Committed,
			"exitCode", c.machine.ExitCode())
	}
}

// SetBreakpoint marks pc as a breakpoint.
func (c *Cpu) SetBreakpoint(pc uint64) {
	c.breakpoints[pc] = true
}

// ClearBreakpoint removes the breakpoint at pc.
func (c *Cpu) ClearBreakpoint(pc uint64) {
	delete(c.breakpoints, pc)
}

// Breakpoints returns the breakpoint addresses in ascending order.
func (c *Cpu) Breakpoints() []uint64 {
	out := make([]uint64, 0, len(c.breakpoints))
	for pc := range c.breakpoints {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Cycle returns the current cycle.
func (c *Cpu) Cycle() uint64 {
	return c.machine.Cycle()
}

// Halted returns true once the machine has stopped.
func (c *Cpu) Halted() bool {
	return c.machine.Status() != pipeline.Running
}

// ExitCode returns a0 at the committed ecall.
func (c *Cpu) ExitCode() int64 {
	return c.machine.ExitCode()
}

// Fault returns the fault that ended the run, or nil.
func (c *Cpu) Fault() error {
	if f := c.machine.Fault(); f != nil {
		return f
	}
	return nil
}

// HistoryLen returns how many steps can be undone.
func (c *Cpu) HistoryLen() int {
	return len(c.history)
}

// LastReport returns the report of the most recent forward step.
func (c *Cpu) LastReport() pipeline.CycleReport {
	return c.lastReport
}

// Machine returns the live machine for inspection.
func (c *Cpu) Machine() *pipeline.Machine {
	return c.machine
}

// Stats returns performance statistics.
func (c *Cpu) Stats() Stats {
	s := Stats{
		Statistics: c.machine.Stats(),
		Predictor:  c.machine.Predictor().Stats(),
	}
	if ch := c.machine.Cache(); ch != nil {
		s.Cache = ch.Stats()
		s.CacheEnabled = true
	}
	return s
}

// Register returns the committed value of the register called name.
func (c *Cpu) Register(name string) (uint64, error) {
	id, ok := insts.LookupRegister(name)
	if !ok {
		return 0, errors.Errorf("unknown register %q", name)
	}
	return c.machine.ArchRegister(id), nil
}

// SetRegister sets an initial register value before the first step.
func (c *Cpu) SetRegister(name string, v uint64) error {
	id, ok := insts.LookupRegister(name)
	if !ok {
		return errors.Errorf("unknown register %q", name)
	}
	return c.machine.SetArchRegister(id, v)
}

// ReadMemory returns size bytes at addr as seen by committed code.
func (c *Cpu) ReadMemory(addr uint64, size int) (uint64, error) {
	return c.machine.ReadMemory(addr, size)
}
