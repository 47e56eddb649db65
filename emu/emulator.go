package emu

import (
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program terminated through ecall.
	Exited bool

	// ExitCode is the value of a0 at the ecall.
	ExitCode int64

	// EndOfCode is true when the PC left the program.
	EndOfCode bool

	// Err is set if the instruction trapped.
	Err error
}

// Done reports whether execution cannot continue.
func (r StepResult) Done() bool {
	return r.Exited || r.EndOfCode || r.Err != nil
}

// Emulator executes a program functionally, one instruction at a time, in
// program order. It shares the semantic interpreter with the timing model
// and serves as its reference.
type Emulator struct {
	program *insts.Program
	regFile *RegFile
	memory  *Memory
	logger  logr.Logger

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMemory replaces the default memory. The program data image is still
// written into it.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithEmulatorLogger sets the logger used for trace output at V(2).
func WithEmulatorLogger(l logr.Logger) EmulatorOption {
	return func(e *Emulator) {
		e.logger = l
	}
}

// NewEmulator creates an emulator positioned at the program entry.
func NewEmulator(program *insts.Program, opts ...EmulatorOption) (*Emulator, error) {
	e := &Emulator{
		program: program,
		regFile: &RegFile{PC: program.Entry},
		logger:  logr.Discard(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewMemory(DefaultMemorySize)
	}
	if err := e.memory.WriteBytes(program.DataBase, program.Data); err != nil {
		return nil, errors.Wrap(err, "loading data image")
	}

	return e, nil
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Step executes the instruction at the current PC.
func (e *Emulator) Step() StepResult {
	pc := e.regFile.PC
	inst := e.program.At(pc)
	if inst == nil {
		return StepResult{EndOfCode: true}
	}

	def := inst.Def
	ops := OperandsOf(inst, pc, e.regFile.Read)
	res, err := Execute(def, ops)
	if err != nil {
		return StepResult{Err: err}
	}
	e.instructionCount++
	e.logger.V(2).Info("execute", "pc", pc, "inst", inst.String())

	if def.Op == insts.OpECALL {
		return StepResult{Exited: true, ExitCode: int64(e.regFile.Read(insts.RegA0))}
	}

	value := res.Value
	switch {
	case def.IsLoad():
		raw, err := e.memory.Load(res.Address, def.MemSize)
		if err != nil {
			return StepResult{Err: errors.Wrapf(err, "load at PC=0x%X", pc)}
		}
		value = ExtendLoad(def, raw)
	case def.IsStore():
		if err := e.memory.Store(res.Address, def.MemSize, res.Value); err != nil {
			return StepResult{Err: errors.Wrapf(err, "store at PC=0x%X", pc)}
		}
	}

	if dest, ok := inst.Reg(insts.RoleDest); ok {
		e.regFile.Write(dest, value)
	}
	e.regFile.PC = NextPC(pc, res)

	return StepResult{}
}

// Run executes until the program exits, leaves the code, traps, or hits the
// instruction limit.
func (e *Emulator) Run() StepResult {
	for {
		if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
			return StepResult{}
		}
		r := e.Step()
		if r.Done() {
			return r
		}
	}
}
