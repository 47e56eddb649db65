package pipeline

import (
	"fmt"
	"math"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// InstanceID is the fetch-order identifier of a dynamic instance. IDs start
// at 1 and increase monotonically; 0 means none.
type InstanceID uint64

// NoReg marks an absent register operand.
const NoReg = insts.RegID(math.MaxUint16)

// UnknownAddress is the address of a buffer item before address generation.
const UnknownAddress = math.MaxUint64

// Instance is one fetched occurrence of a static instruction. Stages refer
// to it by ID; the machine owns the only copy.
type Instance struct {
	ID   InstanceID
	Inst *insts.Instruction
	PC   uint64
	// Padding marks the no-op filler fetch emits past the code or after a
	// taken prediction. Decode drops it.
	Padding bool

	// Renamed operands. ArchDest is the architectural destination.
	Dest     insts.RegID
	ArchDest insts.RegID
	Src1     insts.RegID
	Src2     insts.RegID

	// Prediction made at fetch.
	PredTaken  bool
	PredTarget uint64
	PHTIndex   int

	// Operands read at issue and the evaluated result.
	Ops    emu.Operands
	Result emu.Result
	Fault  *Fault

	// Unit is the index of the unit executing the instance, -1 otherwise.
	Unit int
	// ROBSlot is the reorder buffer slot holding the instance.
	ROBSlot int

	FetchCycle  uint64
	IssueCycle  uint64
	ReadyCycle  uint64
	CommitCycle uint64
}

func newInstance(id InstanceID, inst *insts.Instruction, pc, cycle uint64) *Instance {
	return &Instance{
		ID:         id,
		Inst:       inst,
		PC:         pc,
		Padding:    inst == nil,
		Dest:       NoReg,
		ArchDest:   NoReg,
		Src1:       NoReg,
		Src2:       NoReg,
		Unit:       -1,
		FetchCycle: cycle,
	}
}

// Def returns the static definition, nil for padding.
func (i *Instance) Def() *insts.Definition {
	if i.Inst == nil {
		return nil
	}
	return i.Inst.Def
}

// PredictedNext returns the PC fetch continued at after this instance.
func (i *Instance) PredictedNext() uint64 {
	if i.PredTaken {
		return i.PredTarget
	}
	return i.PC + 4
}

// String renders the instance as "#id pc: text".
func (i *Instance) String() string {
	return fmt.Sprintf("#%d 0x%X: %s", i.ID, i.PC, i.Inst.String())
}

// Fault is an instruction-level exception. It is attached to the instance
// that raised it and ends the run when that instance commits.
type Fault struct {
	PC   uint64
	Inst string
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at PC=0x%X (%s): %v", f.PC, f.Inst, f.Err)
}

// Unwrap returns the underlying cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

func (i *Instance) raise(err error) {
	if i.Fault == nil {
		i.Fault = &Fault{PC: i.PC, Inst: i.Inst.String(), Err: err}
	}
}
