package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("Memory", func() {
	var m *emu.Memory

	BeforeEach(func() {
		m = emu.NewMemory(2 * emu.PageSize)
	})

	It("should read zero from untouched memory", func() {
		v, err := m.Load(0x100, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeZero())
	})

	It("should store little-endian values", func() {
		Expect(m.Store(0x10, 4, 0x11223344)).To(Succeed())
		b, err := m.ReadBytes(0x10, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal([]byte{0x44, 0x33, 0x22, 0x11}))
	})

	It("should handle accesses spanning pages", func() {
		addr := uint64(emu.PageSize - 3)
		Expect(m.Store(addr, 8, 0x0102030405060708)).To(Succeed())
		v, err := m.Load(addr, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(0x0102030405060708)))
	})

	It("should fault outside its size", func() {
		_, err := m.Load(2*emu.PageSize-4, 8)
		Expect(err).To(MatchError(emu.ErrAccessFault))
		Expect(m.Store(1<<40, 1, 0)).To(MatchError(emu.ErrAccessFault))
	})

	Describe("Clone", func() {
		It("should isolate writes in both directions", func() {
			Expect(m.Store(0x20, 8, 1)).To(Succeed())
			c := m.Clone()

			Expect(c.Store(0x20, 8, 2)).To(Succeed())
			Expect(m.Store(0x28, 8, 3)).To(Succeed())

			v, _ := m.Load(0x20, 8)
			Expect(v).To(Equal(uint64(1)))
			v, _ = c.Load(0x20, 8)
			Expect(v).To(Equal(uint64(2)))
			v, _ = c.Load(0x28, 8)
			Expect(v).To(BeZero())
		})

		It("should compare equal until modified", func() {
			Expect(m.Store(0x20, 8, 1)).To(Succeed())
			c := m.Clone()
			Expect(c.Equal(m)).To(BeTrue())

			Expect(c.Store(0x20, 1, 9)).To(Succeed())
			Expect(c.Equal(m)).To(BeFalse())
		})

		It("should treat an all-zero page as equal to a missing one", func() {
			c := m.Clone()
			Expect(c.Store(0x1000, 1, 0)).To(Succeed())
			Expect(c.Equal(m)).To(BeTrue())
		})
	})
})
