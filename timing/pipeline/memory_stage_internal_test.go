package pipeline

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/config"
)

var _ = Describe("Committed stores", func() {
	var m *Machine

	BeforeEach(func() {
		cfg := config.Default()
		cfg.Cache.Enabled = false
		prog, err := insts.Assemble("nop")
		Expect(err).NotTo(HaveOccurred())
		m, err = NewMachine(cfg, prog)
		Expect(err).NotTo(HaveOccurred())
	})

	rejected := func() StoreItem {
		return StoreItem{
			ID:        7,
			PC:        0x20,
			Text:      "sd a1, 0(a1)",
			Address:   m.cfg.Memory.Size,
			Size:      8,
			DataReady: true,
			Reported:  true,
			Committed: true,
		}
	}

	It("should fault when memory rejects a draining store", func() {
		m.stores = []StoreItem{rejected()}

		m.drainStores()

		Expect(m.Status()).To(Equal(Faulted))
		Expect(m.Fault()).To(MatchError(emu.ErrAccessFault))
		Expect(m.Fault().PC).To(Equal(uint64(0x20)))
		Expect(m.StoreBuffer()).To(BeEmpty())
	})

	It("should fault when halting cannot write a store out", func() {
		older := StoreItem{ID: 5, PC: 0x18, Address: 0x10, Size: 8, Data: 99, DataReady: true, Committed: true}
		younger := StoreItem{ID: 9, PC: 0x28, Address: 0x18, Size: 8, Data: 1, DataReady: true, Committed: true}
		m.stores = []StoreItem{older, rejected(), younger}

		m.halt(Exited)

		Expect(m.Status()).To(Equal(Faulted))
		Expect(m.Fault().PC).To(Equal(uint64(0x20)))
		v, err := m.memory.Load(0x10, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint64(99)))
		v, _ = m.memory.Load(0x18, 8)
		Expect(v).To(BeZero())
	})

	It("should keep an earlier fault when halting", func() {
		first := &Fault{PC: 0x4, Inst: "ld a2, 0(a1)", Err: emu.ErrAccessFault}
		m.fault = first
		m.stores = []StoreItem{rejected()}

		m.halt(Faulted)

		Expect(m.Fault()).To(BeIdenticalTo(first))
	})
})
