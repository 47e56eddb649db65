package emu

import "github.com/sarchlab/rvsim/insts"

// executeAddress computes the effective address. For stores the data
// operand is passed through in Value.
func executeAddress(def *insts.Definition, ops Operands) Result {
	r := Result{Address: ops.Src1 + uint64(ops.Imm)}
	if def.IsStore() {
		r.Value = TruncateStore(def, ops.Src2)
	}
	return r
}

// ExtendLoad converts the raw little-endian bytes of a load into the
// register value: sign or zero extension by width.
func ExtendLoad(def *insts.Definition, raw uint64) uint64 {
	switch def.MemSize {
	case 1:
		if def.Signed {
			return uint64(int64(int8(raw)))
		}
		return raw & 0xFF
	case 2:
		if def.Signed {
			return uint64(int64(int16(raw)))
		}
		return raw & 0xFFFF
	case 4:
		if def.Signed {
			return uint64(int64(int32(raw)))
		}
		return raw & 0xFFFFFFFF
	}
	return raw
}

// TruncateStore keeps the bytes a store of def's width writes.
func TruncateStore(def *insts.Definition, value uint64) uint64 {
	if def.MemSize >= 8 {
		return value
	}
	return value & (uint64(1)<<(8*uint(def.MemSize)) - 1)
}
