package emu

import "github.com/sarchlab/rvsim/insts"

// RegFile is the architectural register file: x0-x31 followed by f0-f31,
// indexed by insts.RegID.
type RegFile struct {
	Regs [insts.NumArchRegs]uint64
	PC   uint64
}

// Read returns the value of an architectural register. x0 reads as zero.
func (r *RegFile) Read(id insts.RegID) uint64 {
	if id.IsConstant() || !id.IsArch() {
		return 0
	}
	return r.Regs[id]
}

// Write sets an architectural register. Writes to x0 are discarded.
func (r *RegFile) Write(id insts.RegID, value uint64) {
	if id.IsConstant() || !id.IsArch() {
		return
	}
	r.Regs[id] = value
}

// OperandsOf gathers the values an instruction reads using read to resolve
// register arguments.
func OperandsOf(inst *insts.Instruction, pc uint64, read func(insts.RegID) uint64) Operands {
	ops := Operands{Imm: inst.Imm(), PC: pc}
	if id, ok := inst.Reg(insts.RoleSrc1); ok {
		ops.Src1 = read(id)
	}
	if id, ok := inst.Reg(insts.RoleSrc2); ok {
		ops.Src2 = read(id)
	}
	return ops
}
