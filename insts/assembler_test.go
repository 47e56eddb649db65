package insts_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/insts"
)

var _ = Describe("Assemble", func() {
	It("should decode register, immediate and label arguments", func() {
		prog, err := insts.Assemble(`
			addi x3, x0, 5      # counter
		loop:
			beq x3, x0, loopEnd
			subi x3, x3, 1
			jal x0, loop
		loopEnd:
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Code).To(HaveLen(4))
		Expect(prog.Labels).To(HaveKeyWithValue("loop", uint64(4)))
		Expect(prog.Labels).To(HaveKeyWithValue("loopEnd", uint64(16)))
		Expect(prog.End()).To(Equal(uint64(16)))

		beq := prog.At(4)
		Expect(beq.CodeID).To(Equal(1))
		Expect(beq.Def.Name).To(Equal("beq"))
		target, ok := beq.Arg(insts.RoleImm)
		Expect(ok).To(BeTrue())
		Expect(target.Kind).To(Equal(insts.ArgLabel))
		Expect(target.Imm).To(Equal(int64(16)))

		addi := prog.At(0)
		dest, ok := addi.Reg(insts.RoleDest)
		Expect(ok).To(BeTrue())
		Expect(dest).To(Equal(insts.RegID(3)))
		Expect(addi.Imm()).To(Equal(int64(5)))
	})

	It("should render instructions canonically", func() {
		prog, err := insts.Assemble("sw a0, -8(sp)\nadd x1, x2, x3\necall")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Code[0].String()).To(Equal("sw x10, -8(x2)"))
		Expect(prog.Code[1].String()).To(Equal("add x1, x2, x3"))
		Expect(prog.Code[2].String()).To(Equal("ecall"))
	})

	It("should return nil outside the code", func() {
		prog, err := insts.Assemble("nop")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.At(4)).To(BeNil())
		Expect(prog.At(2)).To(BeNil())
	})

	DescribeTable("pseudo-instructions",
		func(src, want string) {
			prog, err := insts.Assemble(src)
			Expect(err).NotTo(HaveOccurred())
			Expect(prog.Code).To(HaveLen(1))
			Expect(prog.Code[0].String()).To(Equal(want))
		},
		Entry("li", "li a0, 0x10", "addi x10, x0, 16"),
		Entry("mv", "mv t0, t1", "addi x5, x6, 0"),
		Entry("nop", "nop", "addi x0, x0, 0"),
		Entry("ret", "ret", "jalr x0, x1, 0"),
		Entry("bgt swaps operands", "l: bgt a0, a1, l", "blt x11, x10, l"),
		Entry("fmv.d", "fmv.d fa0, fa1", "fsgnj.d f10, f11, f11"),
	)

	It("should lay out the data section", func() {
		prog, err := insts.Assemble(`
		.data
		b:   .byte 1, 2
		     .align 3
		w:   .word -1
		d:   .double 2.5
		s:   .asciiz "hi"
		.text
		main:
			la a0, w
		`)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Labels).To(HaveKeyWithValue("w", uint64(8)))
		Expect(prog.Labels).To(HaveKeyWithValue("d", uint64(12)))
		Expect(prog.Labels).To(HaveKeyWithValue("s", uint64(20)))
		Expect(prog.Data[:2]).To(Equal([]byte{1, 2}))
		Expect(prog.Data[8:12]).To(Equal([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
		Expect(prog.Data[20:]).To(Equal([]byte{'h', 'i', 0}))
		Expect(prog.Code[0].Imm()).To(Equal(int64(8)))

		bits := uint64(0)
		for i := 7; i >= 0; i-- {
			bits = bits<<8 | uint64(prog.Data[12+i])
		}
		Expect(math.Float64frombits(bits)).To(Equal(2.5))
	})

	It("should start at main when present", func() {
		prog, err := insts.Assemble("nop\nmain: nop")
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Entry).To(Equal(uint64(4)))
	})

	DescribeTable("syntax errors",
		func(src string, line string) {
			_, err := insts.Assemble(src)
			Expect(err).To(MatchError(insts.ErrSyntax))
			Expect(err.Error()).To(ContainSubstring(line))
		},
		Entry("unknown instruction", "nop\nfoo x1", "line 2"),
		Entry("unknown register", "add x1, x2, y3", "line 1"),
		Entry("wrong register file", "fadd.d f1, x2, f3", "line 1"),
		Entry("operand count", "add x1, x2", "line 1"),
		Entry("undefined label", "\n\nj nowhere", "line 3"),
		Entry("duplicate label", "a: nop\na: nop", "line 2"),
		Entry("bad memory operand", "lw a0, a1", "line 1"),
	)
})
