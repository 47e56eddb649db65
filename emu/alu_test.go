package emu_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

func def(name string) *insts.Definition {
	d, ok := insts.Lookup(name)
	Expect(ok).To(BeTrue(), name)
	return d
}

func neg(v int64) uint64 { return uint64(v) }

var _ = Describe("Execute", func() {
	DescribeTable("integer operations",
		func(name string, a, b uint64, imm int64, want uint64) {
			r, err := emu.Execute(def(name), emu.Operands{Src1: a, Src2: b, Imm: imm, PC: 0x40})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value).To(Equal(want))
		},
		Entry("add", "add", uint64(25), uint64(6), int64(0), uint64(31)),
		Entry("add wraps", "add", uint64(math.MaxUint64), uint64(2), int64(0), uint64(1)),
		Entry("sub", "sub", uint64(5), uint64(7), int64(0), neg(-2)),
		Entry("addi", "addi", uint64(10), uint64(0), int64(-3), uint64(7)),
		Entry("subi", "subi", uint64(5), uint64(0), int64(1), uint64(4)),
		Entry("and", "and", uint64(0b1100), uint64(0b1010), int64(0), uint64(0b1000)),
		Entry("or", "or", uint64(0b1100), uint64(0b1010), int64(0), uint64(0b1110)),
		Entry("xori -1 is not", "xori", uint64(0), uint64(0), int64(-1), uint64(math.MaxUint64)),
		Entry("sll masks shamt", "sll", uint64(1), uint64(65), int64(0), uint64(2)),
		Entry("srl", "srl", neg(-16), uint64(60), int64(0), uint64(0xF)),
		Entry("sra", "sra", neg(-16), uint64(2), int64(0), neg(-4)),
		Entry("srai", "srai", neg(-16), uint64(0), int64(3), neg(-2)),
		Entry("slt signed", "slt", neg(-1), uint64(0), int64(0), uint64(1)),
		Entry("sltu unsigned", "sltu", neg(-1), uint64(0), int64(0), uint64(0)),
		Entry("sltiu seqz", "sltiu", uint64(0), uint64(0), int64(1), uint64(1)),
		Entry("lui sign extends", "lui", uint64(0), uint64(0), int64(0x80000), neg(-0x80000000)),
		Entry("auipc", "auipc", uint64(0), uint64(0), int64(1), uint64(0x1040)),
		Entry("mul", "mul", uint64(7), neg(-6), int64(0), neg(-42)),
		Entry("mulh", "mulh", neg(-1), neg(-1), int64(0), uint64(0)),
		Entry("mulh negative", "mulh", neg(-2), uint64(math.MaxInt64), int64(0), neg(-1)),
		Entry("mulhu", "mulhu", neg(-1), uint64(2), int64(0), uint64(1)),
		Entry("div", "div", neg(-7), uint64(2), int64(0), neg(-3)),
		Entry("div by zero", "div", uint64(7), uint64(0), int64(0), uint64(math.MaxUint64)),
		Entry("div overflow", "div", uint64(1)<<63, neg(-1), int64(0), uint64(1)<<63),
		Entry("divu by zero", "divu", uint64(7), uint64(0), int64(0), uint64(math.MaxUint64)),
		Entry("rem", "rem", neg(-7), uint64(2), int64(0), neg(-1)),
		Entry("rem by zero", "rem", uint64(7), uint64(0), int64(0), uint64(7)),
		Entry("rem overflow", "rem", uint64(1)<<63, neg(-1), int64(0), uint64(0)),
		Entry("remu", "remu", uint64(7), uint64(4), int64(0), uint64(3)),
	)

	DescribeTable("floating point operations",
		func(name string, a, b, want uint64) {
			r, err := emu.Execute(def(name), emu.Operands{Src1: a, Src2: b})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value).To(Equal(want))
		},
		Entry("fadd.d", "fadd.d", math.Float64bits(1.5), math.Float64bits(2.25), math.Float64bits(3.75)),
		Entry("fmul.s", "fmul.s", uint64(math.Float32bits(3)), uint64(math.Float32bits(-2)), uint64(math.Float32bits(-6))),
		Entry("fdiv.d by zero", "fdiv.d", math.Float64bits(1), math.Float64bits(0), math.Float64bits(math.Inf(1))),
		Entry("fmin.d ignores NaN", "fmin.d", math.Float64bits(math.NaN()), math.Float64bits(2), math.Float64bits(2)),
		Entry("fsgnjn.d negates", "fsgnjn.d", math.Float64bits(4), math.Float64bits(4), math.Float64bits(-4)),
		Entry("fsgnjx.s abs", "fsgnjx.s", uint64(math.Float32bits(-4)), uint64(math.Float32bits(-4)), uint64(math.Float32bits(4))),
		Entry("flt.d", "flt.d", math.Float64bits(1), math.Float64bits(2), uint64(1)),
		Entry("feq.d NaN", "feq.d", math.Float64bits(math.NaN()), math.Float64bits(math.NaN()), uint64(0)),
		Entry("fcvt.w.d truncates", "fcvt.w.d", math.Float64bits(-2.7), uint64(0), neg(-2)),
		Entry("fcvt.w.d saturates", "fcvt.w.d", math.Float64bits(1e20), uint64(0), uint64(math.MaxInt32)),
		Entry("fcvt.w.d saturates low", "fcvt.w.d", math.Float64bits(-1e20), uint64(0), neg(math.MinInt32)),
		Entry("fcvt.d.w", "fcvt.d.w", neg(-3), uint64(0), math.Float64bits(-3)),
		Entry("fcvt.d.s", "fcvt.d.s", uint64(math.Float32bits(0.5)), uint64(0), math.Float64bits(0.5)),
		Entry("fmv.x.w sign extends", "fmv.x.w", uint64(0x80000000), uint64(0), neg(-0x80000000)),
	)

	DescribeTable("branch resolution",
		func(name string, a, b uint64, taken bool, target uint64) {
			r, err := emu.Execute(def(name), emu.Operands{Src1: a, Src2: b, Imm: 0x100, PC: 0x20})
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Taken).To(Equal(taken))
			Expect(r.Target).To(Equal(target))
		},
		Entry("beq taken", "beq", uint64(3), uint64(3), true, uint64(0x100)),
		Entry("beq not taken falls through", "beq", uint64(3), uint64(4), false, uint64(0x24)),
		Entry("blt signed", "blt", neg(-1), uint64(0), true, uint64(0x100)),
		Entry("bltu unsigned", "bltu", neg(-1), uint64(0), false, uint64(0x24)),
		Entry("bge equal", "bge", uint64(2), uint64(2), true, uint64(0x100)),
		Entry("jal", "jal", uint64(0), uint64(0), true, uint64(0x100)),
		Entry("jalr clears bit 0", "jalr", uint64(0x11), uint64(0), true, uint64(0x110)),
	)

	It("should return the link address for jumps", func() {
		r, err := emu.Execute(def("jal"), emu.Operands{Imm: 0x80, PC: 0x20})
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Value).To(Equal(uint64(0x24)))
		Expect(emu.NextPC(0x20, r)).To(Equal(uint64(0x80)))
	})

	It("should compute store addresses and truncate data", func() {
		r, err := emu.Execute(def("sh"), emu.Operands{Src1: 0x100, Src2: 0x12345678, Imm: -4})
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Address).To(Equal(uint64(0xFC)))
		Expect(r.Value).To(Equal(uint64(0x5678)))
	})

	It("should trap on ebreak", func() {
		_, err := emu.Execute(def("ebreak"), emu.Operands{})
		Expect(err).To(MatchError(emu.ErrBreakpoint))
	})

	It("should reject a missing definition", func() {
		_, err := emu.Execute(nil, emu.Operands{})
		Expect(err).To(MatchError(emu.ErrUnknownInstruction))
	})

	DescribeTable("load extension",
		func(name string, raw, want uint64) {
			Expect(emu.ExtendLoad(def(name), raw)).To(Equal(want))
		},
		Entry("lb", "lb", uint64(0x80), neg(-128)),
		Entry("lbu", "lbu", uint64(0x80), uint64(0x80)),
		Entry("lh", "lh", uint64(0xFFFE), neg(-2)),
		Entry("lhu", "lhu", uint64(0xFFFE), uint64(0xFFFE)),
		Entry("lw", "lw", uint64(0x80000000), neg(-0x80000000)),
		Entry("lwu", "lwu", uint64(0x80000000), uint64(0x80000000)),
		Entry("ld", "ld", neg(-5), neg(-5)),
	)
})
