package emu

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/insts"
)

// executeBranch resolves direction and target. Conditional branches and jal
// carry their absolute target in Imm; jalr computes it from Src1.
func executeBranch(def *insts.Definition, ops Operands) (Result, error) {
	a, b := ops.Src1, ops.Src2
	target := uint64(ops.Imm)
	var taken bool

	switch def.Op {
	case insts.OpBEQ:
		taken = a == b
	case insts.OpBNE:
		taken = a != b
	case insts.OpBLT:
		taken = int64(a) < int64(b)
	case insts.OpBGE:
		taken = int64(a) >= int64(b)
	case insts.OpBLTU:
		taken = a < b
	case insts.OpBGEU:
		taken = a >= b
	case insts.OpJAL:
		return Result{Value: ops.PC + 4, Taken: true, Target: target}, nil
	case insts.OpJALR:
		return Result{Value: ops.PC + 4, Taken: true, Target: (a + uint64(ops.Imm)) &^ 1}, nil
	default:
		return Result{}, errors.Wrapf(ErrUnknownInstruction, "%s", def.Name)
	}

	if !taken {
		target = ops.PC + 4
	}
	return Result{Taken: taken, Target: target}, nil
}

// NextPC returns the address that follows the instruction given its result.
func NextPC(pc uint64, r Result) uint64 {
	if r.Taken {
		return r.Target
	}
	return pc + 4
}
