package pipeline

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// FlushReason tells why the pipeline was flushed.
type FlushReason uint8

// Flush reasons.
const (
	FlushMispredict FlushReason = iota
	FlushLoadConflict
)

func (r FlushReason) String() string {
	if r == FlushLoadConflict {
		return "load-conflict"
	}
	return "mispredict"
}

// CommitRecord describes one retired instance.
type CommitRecord struct {
	ID   InstanceID
	PC   uint64
	Text string
}

// FlushRecord describes a recovery.
type FlushRecord struct {
	Reason FlushReason
	// PC is the instance that caused the recovery and Target is where
	// fetch restarts.
	PC        uint64
	Target    uint64
	Discarded int
}

// CycleReport summarizes what became architecturally visible in a cycle.
type CycleReport struct {
	Cycle   uint64
	Commits []CommitRecord
	Flush   *FlushRecord
}

// commit retires up to CommitWidth instances from the ROB head in order.
// An instance retires once its result was written back in an earlier
// cycle. A mispredicted branch retires and then flushes; a load that lost a
// memory-ordering race flushes without retiring and is fetched again. A
// faulting instance commits as the last event of the run.
func (m *Machine) commit(report *CycleReport) {
	for n := 0; n < m.cfg.CommitWidth; n++ {
		head, ok := m.rob.Head()
		if !ok || head.Busy || !head.Valid || head.ReadyCycle >= m.cycle {
			return
		}
		inst := m.instances[head.ID]
		def := inst.Def()

		if inst.Fault != nil {
			inst.CommitCycle = m.cycle
			m.stats.Committed++
			report.Commits = append(report.Commits, CommitRecord{
				ID:   inst.ID,
				PC:   inst.PC,
				Text: inst.Inst.String(),
			})
			m.halt(Faulted)
			if m.fault == nil {
				m.fault = inst.Fault
			}
			return
		}

		if def.IsLoad() {
			idx := m.loadIndex(inst.ID)
			if m.loads[idx].Conflict {
				m.stats.LoadConflicts++
				report.Flush = m.recover(FlushLoadConflict, inst.PC, inst.PC)
				return
			}
			m.loads = append(m.loads[:idx], m.loads[idx+1:]...)
		}

		m.retire(inst)
		report.Commits = append(report.Commits, CommitRecord{
			ID:   inst.ID,
			PC:   inst.PC,
			Text: inst.Inst.String(),
		})

		switch {
		case def.Op == insts.OpECALL:
			m.exitCode = int64(m.regs.Arch(insts.RegA0))
			m.halt(Exited)
			return
		case def.IsStore():
			m.stores[m.storeIndex(inst.ID)].Committed = true
		case def.IsBranch():
			if target, wrong := m.resolveBranch(inst); wrong {
				report.Flush = m.recover(FlushMispredict, inst.PC, target)
				return
			}
		}
	}
}

// retire makes the instance's effects architectural and drops its
// register references.
func (m *Machine) retire(inst *Instance) {
	if inst.Dest != NoReg {
		m.regs.retire(inst.Dest, inst.ArchDest)
		m.regs.release(inst.Dest)
	}
	m.regs.release(inst.Src1)
	m.regs.release(inst.Src2)

	inst.CommitCycle = m.cycle
	m.stats.Committed++
	m.rob.pop()
	delete(m.instances, inst.ID)
}

// resolveBranch trains the predictor with the outcome and reports whether
// fetch followed the wrong path.
func (m *Machine) resolveBranch(inst *Instance) (uint64, bool) {
	def := inst.Def()
	actual := emu.NextPC(inst.PC, inst.Result)
	correct := actual == inst.PredictedNext()

	m.predictor.Update(inst.PC, inst.PHTIndex, def.IsConditional(),
		inst.Result.Taken, inst.Result.Target, correct)

	m.stats.Branches++
	if !correct {
		m.stats.Mispredictions++
	}
	return actual, !correct
}

// recover discards every in-flight instance and restarts fetch at target.
func (m *Machine) recover(reason FlushReason, pc, target uint64) *FlushRecord {
	discarded := m.flush()
	m.pc = target
	m.stats.Flushes++
	m.stats.Flushed += uint64(discarded)
	return &FlushRecord{Reason: reason, PC: pc, Target: target, Discarded: discarded}
}

// flush empties the pipeline. Committed stores survive and keep draining.
func (m *Machine) flush() int {
	discarded := 0
	for _, inst := range m.instances {
		if !inst.Padding {
			discarded++
		}
	}

	for u := range m.units {
		if m.unitClass(u) == insts.UnitMemory && m.storeIndex(m.units[u].Occupant) >= 0 {
			continue
		}
		m.units[u] = FunctionalUnit{}
	}

	kept := m.stores[:0]
	for _, s := range m.stores {
		if s.Committed {
			kept = append(kept, s)
		}
	}
	m.stores = kept

	m.bundle = m.bundle[:0]
	for i := range m.windows {
		m.windows[i] = m.windows[i][:0]
	}
	m.resultBus = m.resultBus[:0]
	m.loads = m.loads[:0]
	m.rob.clear()
	m.regs.resetSpeculative()
	m.instances = make(map[InstanceID]*Instance)

	return discarded
}

// halt stops the machine. In-flight work is dropped and committed stores
// are written out so memory shows every retired store. A store that memory
// rejects faults the run and younger stores are not written.
func (m *Machine) halt(status Status) {
	m.flush()
	for _, s := range m.stores {
		if s.Draining {
			continue
		}
		if _, err := m.writeData(s.Address, s.Size, s.Data); err != nil {
			if m.fault == nil {
				m.fault = s.fault(err)
			}
			status = Faulted
			break
		}
	}
	m.stores = m.stores[:0]
	for u := range m.units {
		m.units[u] = FunctionalUnit{}
	}
	m.status = status
}
