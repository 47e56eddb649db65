// Package emu provides functional emulation of the RISC-V-like instruction
// set: the memory model, the semantic interpreter shared with the timing
// model, and an in-order reference emulator.
package emu

import (
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/insts"
)

var (
	// ErrUnknownInstruction is returned for opcodes without semantics.
	ErrUnknownInstruction = errors.New("unknown instruction")
	// ErrBreakpoint is the trap raised by ebreak.
	ErrBreakpoint = errors.New("breakpoint trap")
)

// Operands carries the values an instruction reads. Src1 and Src2 are raw
// register bits; Imm is the resolved immediate or label value.
type Operands struct {
	Src1 uint64
	Src2 uint64
	Imm  int64
	PC   uint64
}

// Result is the outcome of evaluating one instruction.
type Result struct {
	// Value is written to the destination register, if any.
	Value uint64
	// Taken and Target describe control flow for branches.
	Taken  bool
	Target uint64
	// Address is the effective address of loads and stores.
	Address uint64
}

// Execute evaluates def over ops. It is a pure function: memory is never
// touched, loads only compute their address and stores their address and
// data (returned in Value).
func Execute(def *insts.Definition, ops Operands) (Result, error) {
	if def == nil {
		return Result{}, ErrUnknownInstruction
	}
	switch def.Class {
	case insts.UnitFX:
		return executeInteger(def, ops)
	case insts.UnitFP:
		return executeFloat(def, ops)
	case insts.UnitBranch:
		return executeBranch(def, ops)
	case insts.UnitLoadStore:
		return executeAddress(def, ops), nil
	}
	return Result{}, errors.Wrapf(ErrUnknownInstruction, "%s", def.Name)
}

func executeInteger(def *insts.Definition, ops Operands) (Result, error) {
	a, b, imm := ops.Src1, ops.Src2, uint64(ops.Imm)
	var v uint64

	switch def.Op {
	case insts.OpADD:
		v = a + b
	case insts.OpSUB:
		v = a - b
	case insts.OpADDI:
		v = a + imm
	case insts.OpSUBI:
		v = a - imm
	case insts.OpAND:
		v = a & b
	case insts.OpOR:
		v = a | b
	case insts.OpXOR:
		v = a ^ b
	case insts.OpANDI:
		v = a & imm
	case insts.OpORI:
		v = a | imm
	case insts.OpXORI:
		v = a ^ imm
	case insts.OpSLL:
		v = a << (b & 63)
	case insts.OpSRL:
		v = a >> (b & 63)
	case insts.OpSRA:
		v = uint64(int64(a) >> (b & 63))
	case insts.OpSLLI:
		v = a << (imm & 63)
	case insts.OpSRLI:
		v = a >> (imm & 63)
	case insts.OpSRAI:
		v = uint64(int64(a) >> (imm & 63))
	case insts.OpSLT:
		v = boolToU64(int64(a) < int64(b))
	case insts.OpSLTU:
		v = boolToU64(a < b)
	case insts.OpSLTI:
		v = boolToU64(int64(a) < ops.Imm)
	case insts.OpSLTIU:
		v = boolToU64(a < imm)
	case insts.OpLUI:
		v = upperImmediate(ops.Imm)
	case insts.OpAUIPC:
		v = ops.PC + upperImmediate(ops.Imm)
	case insts.OpMUL:
		v = a * b
	case insts.OpMULH:
		v = mulhSigned(a, b)
	case insts.OpMULHU:
		v, _ = bits.Mul64(a, b)
	case insts.OpDIV:
		v = divSigned(a, b)
	case insts.OpDIVU:
		if b == 0 {
			v = math.MaxUint64
		} else {
			v = a / b
		}
	case insts.OpREM:
		v = remSigned(a, b)
	case insts.OpREMU:
		if b == 0 {
			v = a
		} else {
			v = a % b
		}
	case insts.OpECALL:
		v = 0
	case insts.OpEBREAK:
		return Result{}, errors.Wrapf(ErrBreakpoint, "ebreak at PC=0x%X", ops.PC)
	default:
		return Result{}, errors.Wrapf(ErrUnknownInstruction, "%s", def.Name)
	}
	return Result{Value: v}, nil
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// upperImmediate shifts a 20-bit immediate into bits 31:12 and sign-extends
// the 32-bit result.
func upperImmediate(imm int64) uint64 {
	return uint64(int64(int32(uint32(imm) << 12)))
}

func mulhSigned(a, b uint64) uint64 {
	hi, _ := bits.Mul64(a, b)
	// Correct the unsigned high word for negative operands.
	if int64(a) < 0 {
		hi -= b
	}
	if int64(b) < 0 {
		hi -= a
	}
	return hi
}

// divSigned follows RISC-V: division by zero yields all ones and the
// overflow case MinInt64 / -1 yields the dividend.
func divSigned(a, b uint64) uint64 {
	x, y := int64(a), int64(b)
	switch {
	case y == 0:
		return math.MaxUint64
	case x == math.MinInt64 && y == -1:
		return a
	}
	return uint64(x / y)
}

func remSigned(a, b uint64) uint64 {
	x, y := int64(a), int64(b)
	switch {
	case y == 0:
		return a
	case x == math.MinInt64 && y == -1:
		return 0
	}
	return uint64(x % y)
}
