package pipeline_test

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/config"
	"github.com/sarchlab/rvsim/timing/latency"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

const countdown = `
	addi x3, x0, 5
loop:
	beq x3, x0, loopEnd
	subi x3, x3, 1
	jal x0, loop
loopEnd:
`

const arraySum = `
.data
arr: .dword 3, 1, 4, 1, 5, 9, 2, 6
out: .dword 0
.text
main:
	la a1, arr
	li a2, 8
	li a0, 0
loop:
	ld t0, 0(a1)
	add a0, a0, t0
	addi a1, a1, 8
	subi a2, a2, 1
	bnez a2, loop
	la t1, out
	sd a0, 0(t1)
	ecall
`

const forwarding = `
.data
buf: .dword 0
.text
	la a1, buf
	li t0, 4660
	sh t0, 2(a1)
	lhu a2, 2(a1)
	lb a3, 3(a1)
	ld a4, 0(a1)
	sb t0, 0(a1)
	lw a5, 0(a1)
`

const callReturn = `
main:
	li a0, 5
	call double
	addi a1, a0, 1
	j end
double:
	add a0, a0, a0
	ret
end:
`

const floating = `
.data
x: .double 1.5
y: .double 2.0
z: .float 0.25
.text
	la t0, x
	fld f1, 0(t0)
	fld f2, 8(t0)
	fmul.d f3, f1, f2
	fadd.d f4, f3, f1
	fsd f4, 8(t0)
	flw f5, 16(t0)
	fcvt.w.d a1, f4
	fdiv.d f6, f4, f2
	fcvt.w.d a0, f3
	ecall
`

// storeAfterDivide resolves the store address long after the younger load
// has read the old value.
const storeAfterDivide = `
.data
x: .dword 1
.text
	la a1, x
	li a2, 42
	li t0, 1
	div t1, a1, t0
	sd a2, 0(t1)
	ld a3, 0(a1)
	addi a4, a3, 1
`

func assemble(src string) *insts.Program {
	p, err := insts.Assemble(src)
	Expect(err).NotTo(HaveOccurred())
	return p
}

func newMachine(src string, tweaks ...func(*config.Config)) *pipeline.Machine {
	cfg := config.Default()
	for _, t := range tweaks {
		t(cfg)
	}
	m, err := pipeline.NewMachine(cfg, assemble(src))
	Expect(err).NotTo(HaveOccurred())
	return m
}

func narrow(c *config.Config) {
	c.FetchWidth = 1
	c.CommitWidth = 1
	c.Cache.Enabled = false
}

func writeThroughRandom(c *config.Config) {
	c.Cache.WriteBack = false
	c.Cache.Replacement = config.ReplacementRandom
	c.Cache.Lines = 4
	c.BranchFollowLimit = 2
}

// expectConsistent checks the structural invariants that hold after every
// cycle.
func expectConsistent(m *pipeline.Machine) {
	seen := map[pipeline.InstanceID]bool{}
	for _, u := range m.Units() {
		if !u.Busy() {
			continue
		}
		Expect(seen[u.Occupant]).To(BeFalse(), "instance on two units")
		seen[u.Occupant] = true
	}
	for class := insts.UnitClass(0); class < insts.NumIssueClasses; class++ {
		for _, id := range m.Window(class) {
			inst, ok := m.Instance(id)
			Expect(ok).To(BeTrue())
			Expect(inst.Unit).To(Equal(-1))
		}
	}
	Expect(m.ROB().Len()).To(BeNumerically("<=", m.ROB().Cap()))
	Expect(len(m.LoadBuffer())).To(BeNumerically("<=", m.Config().LoadBufferSize))
	Expect(len(m.StoreBuffer())).To(BeNumerically("<=", m.Config().StoreBufferSize))
}

// runToHalt ticks until the machine stops and returns every report.
func runToHalt(m *pipeline.Machine) []pipeline.CycleReport {
	var reports []pipeline.CycleReport
	var last pipeline.InstanceID
	for i := 0; i < 20000 && m.Status() == pipeline.Running; i++ {
		r := m.Tick()
		for _, c := range r.Commits {
			Expect(c.ID).To(BeNumerically(">", last), "commit out of order")
			last = c.ID
		}
		expectConsistent(m)
		reports = append(reports, r)
	}
	Expect(m.Status()).NotTo(Equal(pipeline.Running))
	return reports
}

func expectMatchesEmulator(src string, tweaks ...func(*config.Config)) *pipeline.Machine {
	prog := assemble(src)
	e, err := emu.NewEmulator(prog)
	Expect(err).NotTo(HaveOccurred())
	want := e.Run()
	Expect(want.Err).NotTo(HaveOccurred())

	m := newMachine(src, tweaks...)
	runToHalt(m)

	if want.Exited {
		Expect(m.Status()).To(Equal(pipeline.Exited))
		Expect(m.ExitCode()).To(Equal(want.ExitCode))
	} else {
		Expect(m.Status()).To(Equal(pipeline.EndOfCode))
	}
	for r := insts.RegID(0); r < insts.NumArchRegs; r++ {
		Expect(m.ArchRegister(r)).To(Equal(e.RegFile().Read(r)), "register %s", r)
	}
	for addr := uint64(0); addr < uint64(len(prog.Data)); addr++ {
		got, err := m.ReadMemory(addr, 1)
		Expect(err).NotTo(HaveOccurred())
		exp, _ := e.Memory().Load(addr, 1)
		Expect(got).To(Equal(exp), "memory at 0x%X", addr)
	}
	Expect(m.Stats().Committed).To(Equal(e.InstructionCount()))
	return m
}

var _ = Describe("Machine", func() {
	It("should commit a lone add on the seventh cycle", func() {
		m := newMachine("addi a0, zero, 5")
		renamed := insts.RegID(insts.NumArchRegs)

		m.Tick()
		Expect(m.Bundle()).To(HaveLen(4))
		m.Tick()
		Expect(m.Registers().Mapping(insts.RegA0)).To(Equal(renamed))
		Expect(m.Registers().Get(renamed).State).To(Equal(pipeline.RegAllocated))

		for i := 0; i < 3; i++ {
			m.Tick()
		}
		Expect(m.Registers().Get(renamed).State).To(Equal(pipeline.RegAllocated))
		m.Tick()
		Expect(m.Registers().Get(renamed).State).To(Equal(pipeline.RegExecuted))
		Expect(m.ArchRegister(insts.RegA0)).To(BeZero())

		r := m.Tick()
		Expect(r.Cycle).To(Equal(uint64(7)))
		Expect(r.Commits).To(HaveLen(1))
		Expect(r.Commits[0].PC).To(BeZero())
		Expect(m.ArchRegister(insts.RegA0)).To(Equal(uint64(5)))
		Expect(m.Registers().Get(renamed).State).To(Equal(pipeline.RegFree))
		Expect(m.Registers().Mapping(insts.RegA0)).To(Equal(insts.RegA0))
		Expect(m.Status()).To(Equal(pipeline.EndOfCode))
	})

	It("should do nothing once halted", func() {
		m := newMachine("ecall")
		runToHalt(m)
		cycle := m.Cycle()
		r := m.Tick()
		Expect(r.Commits).To(BeEmpty())
		Expect(m.Cycle()).To(Equal(cycle))
	})

	configs := []struct {
		name  string
		tweak func(*config.Config)
	}{
		{"default", func(*config.Config) {}},
		{"narrow uncached", narrow},
		{"write-through random cache", writeThroughRandom},
	}
	for _, c := range configs {
		tweak := c.tweak
		Context("with the "+c.name+" configuration", func() {
			DescribeTable("should agree with the reference emulator",
				func(src string) {
					expectMatchesEmulator(src, tweak)
				},
				Entry("countdown loop", countdown),
				Entry("array sum", arraySum),
				Entry("sub-word stores and loads", forwarding),
				Entry("call and return", callReturn),
				Entry("floating point", floating),
				Entry("late store address", storeAfterDivide),
			)
		})
	}

	Describe("branch prediction", func() {
		It("should recover from mispredicted loop branches", func() {
			m := expectMatchesEmulator(countdown)
			s := m.Stats()
			Expect(s.Branches).To(Equal(uint64(11)))
			Expect(s.Mispredictions).To(BeNumerically(">", 0))
			Expect(s.Flushes).To(BeNumerically(">=", s.Mispredictions))
			Expect(m.Predictor().Stats().Mispredictions).To(Equal(s.Mispredictions))
		})

		It("should report flushes", func() {
			m := newMachine(countdown)
			var flushes []*pipeline.FlushRecord
			for _, r := range runToHalt(m) {
				if r.Flush != nil {
					flushes = append(flushes, r.Flush)
				}
			}
			Expect(flushes).NotTo(BeEmpty())
			Expect(flushes[0].Reason).To(Equal(pipeline.FlushMispredict))
		})

		It("should restart fetch in the cycle after a recovery", func() {
			m := newMachine(countdown)
			recoveries := 0
			for i := 0; i < 1000 && m.Status() == pipeline.Running; i++ {
				r := m.Tick()
				if r.Flush == nil || m.Status() != pipeline.Running {
					continue
				}
				recoveries++
				Expect(m.Bundle()).To(BeEmpty())
				Expect(m.PC()).To(Equal(r.Flush.Target))

				m.Tick()
				Expect(m.Bundle()).NotTo(BeEmpty())
				first, ok := m.Instance(m.Bundle()[0])
				Expect(ok).To(BeTrue())
				Expect(first.PC).To(Equal(r.Flush.Target))
			}
			Expect(recoveries).To(BeNumerically(">", 0))
		})

		It("should keep entries behind an uncommitted branch speculative", func() {
			m := newMachine(countdown)
			behindResolved := 0
			for i := 0; i < 1000 && m.Status() == pipeline.Running; i++ {
				m.Tick()
				branchAhead, resolvedAhead := false, false
				for _, e := range m.ROB().Entries() {
					Expect(e.Speculative).To(Equal(branchAhead))
					if resolvedAhead {
						behindResolved++
					}
					inst, ok := m.Instance(e.ID)
					Expect(ok).To(BeTrue())
					if inst.Def().IsBranch() {
						branchAhead = true
						resolvedAhead = resolvedAhead || !e.Busy
					}
				}
			}
			Expect(behindResolved).To(BeNumerically(">", 0))
		})

		It("should not raise faults from the wrong path", func() {
			m := newMachine(`
				li a1, 1048576
				j skip
				ld a0, 0(a1)
			skip:
				li a2, 1
			`)
			runToHalt(m)
			Expect(m.Status()).To(Equal(pipeline.EndOfCode))
			Expect(m.ArchRegister(12)).To(Equal(uint64(1)))
		})
	})

	Describe("memory ordering", func() {
		It("should forward store data to a matching load", func() {
			m := newMachine(`
			.data
			x: .dword 0
			.text
				la a1, x
				li a2, 42
				sd a2, 0(a1)
				ld a3, 0(a1)
			`)
			runToHalt(m)
			Expect(m.ArchRegister(13)).To(Equal(uint64(42)))
			Expect(m.Stats().BypassedLoads).To(Equal(uint64(1)))
		})

		It("should replay a load that read before an older store", func() {
			m := expectMatchesEmulator(storeAfterDivide)
			s := m.Stats()
			Expect(s.SpeculativeLoads).To(BeNumerically(">", 0))
			Expect(s.LoadConflicts).To(Equal(uint64(1)))
			Expect(m.ArchRegister(13)).To(Equal(uint64(42)))
		})
	})

	Describe("faults", func() {
		It("should halt on an out-of-range access at commit", func() {
			m := newMachine(`
				li a0, 7
				li a1, 1048576
				ld a2, 0(a1)
				li a0, 9
			`)
			reports := runToHalt(m)
			Expect(m.Status()).To(Equal(pipeline.Faulted))
			Expect(m.Fault()).To(MatchError(emu.ErrAccessFault))
			Expect(m.Fault().PC).To(Equal(uint64(8)))
			Expect(m.ArchRegister(insts.RegA0)).To(Equal(uint64(7)))

			last := reports[len(reports)-1].Commits
			Expect(last).NotTo(BeEmpty())
			Expect(last[len(last)-1].PC).To(Equal(uint64(8)))
			Expect(m.Stats().Committed).To(Equal(uint64(3)))
		})

		It("should halt on ebreak", func() {
			m := newMachine("li a0, 1\nebreak\nli a0, 2")
			runToHalt(m)
			Expect(m.Status()).To(Equal(pipeline.Faulted))
			Expect(m.Fault()).To(MatchError(emu.ErrBreakpoint))
			Expect(m.ArchRegister(insts.RegA0)).To(Equal(uint64(1)))
		})

		It("should reject programs no unit can run", func() {
			cfg := config.Default()
			cfg.Units = cfg.Units[:2]
			_, err := pipeline.NewMachine(cfg, assemble("fadd.s f1, f2, f3"))
			Expect(err).To(MatchError(config.ErrInvalidConfig))
		})
	})

	Describe("resources", func() {
		It("should stall dispatch when the register pool runs out", func() {
			m := newMachine("li a0, 1\nli a1, 2\nadd a2, a0, a1", func(c *config.Config) {
				c.SpeculativeRegisters = 1
			})
			runToHalt(m)
			Expect(m.Stats().Stalls.NoFreeRegister).To(BeNumerically(">", 0))
			Expect(m.ArchRegister(12)).To(Equal(uint64(3)))
		})

		It("should stall dispatch on a full ROB", func() {
			m := newMachine(arraySum, func(c *config.Config) {
				c.ROBSize = 2
			})
			runToHalt(m)
			Expect(m.Stats().Stalls.ROBFull).To(BeNumerically(">", 0))
			Expect(m.ExitCode()).To(Equal(int64(31)))
		})

		It("should count busy unit cycles", func() {
			m := newMachine("addi a0, zero, 5")
			runToHalt(m)
			Expect(m.Stats().UnitBusy[0]).To(Equal(uint64(2)))
		})
	})

	Describe("Clone", func() {
		opts := cmp.Options{
			cmp.Exporter(func(reflect.Type) bool { return true }),
			cmpopts.EquateEmpty(),
			cmp.Comparer(func(a, b *emu.Memory) bool { return a.Equal(b) }),
			cmp.Comparer(func(a, b *cache.Cache) bool { return a.Equal(b) }),
			cmp.Comparer(func(a, b *insts.Program) bool { return a == b }),
			cmp.Comparer(func(a, b *insts.Instruction) bool { return a == b }),
			cmp.Comparer(func(a, b *config.Config) bool { return a == b }),
			cmp.Comparer(func(a, b *latency.Table) bool { return a == b }),
		}

		It("should evolve exactly like the original", func() {
			m := newMachine(arraySum)
			for i := 0; i < 25; i++ {
				m.Tick()
			}
			c := m.Clone()
			Expect(cmp.Diff(m, c, opts)).To(BeEmpty())

			for i := 0; i < 30; i++ {
				Expect(cmp.Diff(m.Tick(), c.Tick())).To(BeEmpty())
			}
			Expect(cmp.Diff(m, c, opts)).To(BeEmpty())
		})

		It("should not share state with the original", func() {
			m := newMachine(arraySum)
			for i := 0; i < 10; i++ {
				m.Tick()
			}
			c := m.Clone()
			runToHalt(c)
			Expect(m.Cycle()).To(Equal(uint64(10)))
			Expect(m.Status()).To(Equal(pipeline.Running))
			out, _ := m.ReadMemory(64, 8)
			Expect(out).To(BeZero())
		})

		It("should be deterministic across runs", func() {
			a := runToHalt(newMachine(storeAfterDivide, writeThroughRandom))
			b := runToHalt(newMachine(storeAfterDivide, writeThroughRandom))
			Expect(cmp.Diff(a, b)).To(BeEmpty())
		})
	})
})
