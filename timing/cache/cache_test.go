package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/config"
)

// Eight 16-byte lines in four 2-way sets: 0x00, 0x40 and 0x80 share set 0.
func testConfig(replacement string, writeBack bool) cache.Config {
	return cache.Config{
		Lines:              8,
		Associativity:      2,
		LineSize:           16,
		Replacement:        replacement,
		WriteBack:          writeBack,
		AccessDelay:        1,
		MemoryLoadLatency:  10,
		MemoryStoreLatency: 10,
		Seed:               7,
	}
}

var _ = Describe("Cache", func() {
	var (
		c      *cache.Cache
		memory *emu.Memory
	)

	BeforeEach(func() {
		memory = emu.NewMemory(4096)
		c = cache.New(testConfig(config.ReplacementLRU, true), memory)
	})

	It("should split addresses into tag, index and offset", func() {
		tag, index, offset := c.SplitAddress(0x1234)
		Expect(offset).To(Equal(uint64(4)))
		Expect(index).To(Equal(uint64(3)))
		Expect(tag).To(Equal(uint64(0x48)))
	})

	Describe("Read operations", func() {
		It("should miss on a cold cache and hit afterwards", func() {
			Expect(memory.Store(0x100, 8, 0xDEADBEEF)).To(Succeed())

			r, err := c.Read(0x100, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Hit).To(BeFalse())
			Expect(r.Latency).To(Equal(uint64(11)))
			Expect(r.Data).To(Equal(uint64(0xDEADBEEF)))

			r, err = c.Read(0x104, 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Hit).To(BeTrue())
			Expect(r.Latency).To(Equal(uint64(1)))

			Expect(c.Stats()).To(Equal(cache.Statistics{Reads: 2, Hits: 1, Misses: 1}))
		})

		It("should fill both lines of a spanning access", func() {
			r, err := c.Read(0x0C, 8)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Hit).To(BeFalse())
			Expect(r.Latency).To(Equal(uint64(21)))

			r, _ = c.Read(0x10, 4)
			Expect(r.Hit).To(BeTrue())
		})

		It("should fault outside memory", func() {
			_, err := c.Read(4092, 8)
			Expect(err).To(MatchError(emu.ErrAccessFault))
			Expect(c.Stats().Reads).To(BeZero())
		})
	})

	Describe("LRU replacement", func() {
		It("should evict the least recently used line", func() {
			c.Read(0x00, 1)
			c.Read(0x40, 1)
			c.Read(0x00, 1)

			r, _ := c.Read(0x80, 1)
			Expect(r.Evicted).To(BeTrue())
			Expect(r.EvictedAddr).To(Equal(uint64(0x40)))

			r, _ = c.Read(0x00, 1)
			Expect(r.Hit).To(BeTrue())
		})

		It("should keep the same order in a clone", func() {
			c.Read(0x40, 1)
			c.Read(0x00, 1)
			c.Read(0x40, 1)

			d := c.Clone(memory.Clone())
			Expect(d.Equal(c)).To(BeTrue())

			r1, _ := c.Read(0x80, 1)
			r2, _ := d.Read(0x80, 1)
			Expect(r1.EvictedAddr).To(Equal(uint64(0x00)))
			Expect(r2.EvictedAddr).To(Equal(r1.EvictedAddr))
			Expect(d.Equal(c)).To(BeTrue())
		})
	})

	Describe("Write-back", func() {
		It("should keep dirty data in the cache until eviction", func() {
			r, err := c.Write(0x08, 4, 0xCAFE)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Latency).To(Equal(uint64(11)))

			v, _ := memory.Load(0x08, 4)
			Expect(v).To(BeZero())
			v, _ = c.Peek(0x08, 4)
			Expect(v).To(Equal(uint64(0xCAFE)))

			c.Read(0x40, 1)
			r, _ = c.Read(0x80, 1)
			Expect(r.Latency).To(Equal(uint64(21)))

			v, _ = memory.Load(0x08, 4)
			Expect(v).To(Equal(uint64(0xCAFE)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})

		It("should write everything back on Flush", func() {
			c.Write(0x20, 8, 0x1122334455667788)
			Expect(c.Flush()).To(Succeed())

			v, _ := memory.Load(0x20, 8)
			Expect(v).To(Equal(uint64(0x1122334455667788)))
			for _, l := range c.Lines() {
				Expect(l.Valid).To(BeFalse())
			}
		})
	})

	Describe("Write-through", func() {
		BeforeEach(func() {
			c = cache.New(testConfig(config.ReplacementLRU, false), memory)
		})

		It("should update memory immediately", func() {
			r, err := c.Write(0x08, 2, 0xBEEF)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Latency).To(Equal(uint64(21)))

			v, _ := memory.Load(0x08, 2)
			Expect(v).To(Equal(uint64(0xBEEF)))
			for _, l := range c.Lines() {
				Expect(l.Dirty).To(BeFalse())
			}
		})
	})

	Describe("Random replacement", func() {
		BeforeEach(func() {
			c = cache.New(testConfig(config.ReplacementRandom, true), memory)
		})

		It("should fill invalid ways first", func() {
			c.Read(0x00, 1)
			r, _ := c.Read(0x40, 1)
			Expect(r.Evicted).To(BeFalse())
		})

		It("should make identical choices after Clone", func() {
			for i := uint64(0); i < 6; i++ {
				c.Read(i*0x40, 1)
			}
			d := c.Clone(memory.Clone())

			for i := uint64(6); i < 30; i++ {
				r1, _ := c.Read(i*0x40%4096, 1)
				r2, _ := d.Read(i*0x40%4096, 1)
				Expect(r2).To(Equal(r1))
			}
			Expect(d.Equal(c)).To(BeTrue())
		})
	})

	Describe("Clone", func() {
		It("should not share lines or memory", func() {
			c.Write(0x10, 4, 1)
			mem2 := memory.Clone()
			d := c.Clone(mem2)

			d.Write(0x10, 4, 2)
			Expect(d.Flush()).To(Succeed())

			v, _ := c.Peek(0x10, 4)
			Expect(v).To(Equal(uint64(1)))
			v, _ = memory.Load(0x10, 4)
			Expect(v).To(BeZero())
			v, _ = mem2.Load(0x10, 4)
			Expect(v).To(Equal(uint64(2)))
			Expect(d.Equal(c)).To(BeFalse())
		})
	})

	Describe("round trip", func() {
		DescribeTable("store then load returns the value",
			func(replacement string, writeBack bool) {
				c = cache.New(testConfig(replacement, writeBack), memory)
				value := uint64(0xF0E1D2C3B4A59687)
				for _, size := range []int{1, 2, 4, 8} {
					mask := ^uint64(0)
					if size < 8 {
						mask = uint64(1)<<(8*size) - 1
					}
					for _, addr := range []uint64{0, 5, 13, 15, 0x3F, 0x7C, 0x101, 4088} {
						_, err := c.Write(addr, size, value)
						Expect(err).NotTo(HaveOccurred())
						r, err := c.Read(addr, size)
						Expect(err).NotTo(HaveOccurred())
						Expect(r.Data).To(Equal(value&mask), "addr %d size %d", addr, size)
						value = value*6364136223846793005 + 1442695040888963407
					}
				}
			},
			Entry("LRU write-back", config.ReplacementLRU, true),
			Entry("LRU write-through", config.ReplacementLRU, false),
			Entry("Random write-back", config.ReplacementRandom, true),
			Entry("Random write-through", config.ReplacementRandom, false),
		)
	})
})
