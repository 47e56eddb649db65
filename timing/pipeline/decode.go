package pipeline

import (
	"github.com/sarchlab/rvsim/insts"
)

// dispatch decodes and renames the fetch bundle in program order and
// places each instance in its issue window, the ROB and, for memory
// operations, a load or store buffer. It stops at the first instance whose
// resources are not available; the rest of the bundle waits for the next
// cycle.
func (m *Machine) dispatch() {
	n := 0
	for ; n < len(m.bundle); n++ {
		inst := m.instances[m.bundle[n]]
		if inst.Padding {
			delete(m.instances, inst.ID)
			continue
		}
		if !m.canDispatch(inst) {
			break
		}
		m.rename(inst)
		m.allocate(inst)
	}

	if n == len(m.bundle) {
		m.bundle = m.bundle[:0]
		return
	}
	m.bundle = append(m.bundle[:0], m.bundle[n:]...)
}

// canDispatch checks every resource the instance needs and records the
// stall cause.
func (m *Machine) canDispatch(inst *Instance) bool {
	def := inst.Def()
	s := &m.stats.Stalls

	switch {
	case m.rob.Full():
		s.ROBFull++
		return false
	case len(m.windows[def.Class]) >= m.cfg.IssueWindowSize:
		s.WindowFull++
		return false
	case def.IsLoad() && len(m.loads) >= m.cfg.LoadBufferSize:
		s.LoadBufferFull++
		return false
	case def.IsStore() && len(m.stores) >= m.cfg.StoreBufferSize:
		s.StoreBufferFull++
		return false
	}

	if dest, ok := inst.Inst.Reg(insts.RoleDest); ok && !dest.IsConstant() && m.regs.FreeCount() == 0 {
		s.NoFreeRegister++
		return false
	}
	return true
}

// rename resolves sources through the map before allocating the
// destination, so an instance never reads its own result.
func (m *Machine) rename(inst *Instance) {
	if r, ok := inst.Inst.Reg(insts.RoleSrc1); ok {
		inst.Src1 = m.regs.lookup(r)
	}
	if r, ok := inst.Inst.Reg(insts.RoleSrc2); ok {
		inst.Src2 = m.regs.lookup(r)
	}
	if r, ok := inst.Inst.Reg(insts.RoleDest); ok && !r.IsConstant() {
		inst.ArchDest = r
		inst.Dest, _ = m.regs.allocate(r)
	}
}

func (m *Machine) allocate(inst *Instance) {
	def := inst.Def()

	inst.ROBSlot = m.rob.push(ROBEntry{
		ID:          inst.ID,
		Busy:        true,
		Valid:       true,
		Speculative: m.underBranch(),
	})
	m.windows[def.Class] = append(m.windows[def.Class], inst.ID)

	switch {
	case def.IsLoad():
		m.loads = append(m.loads, LoadItem{ID: inst.ID, Address: UnknownAddress, Size: def.MemSize})
	case def.IsStore():
		m.stores = append(m.stores, StoreItem{
			ID:      inst.ID,
			PC:      inst.PC,
			Text:    inst.Inst.String(),
			Address: UnknownAddress,
			Size:    def.MemSize,
		})
	}
}

// underBranch reports whether the ROB holds a branch, which makes a newly
// dispatched instance speculative. Branches resolve only at commit.
func (m *Machine) underBranch() bool {
	found := false
	m.rob.each(func(e *ROBEntry) {
		if m.instances[e.ID].Def().IsBranch() {
			found = true
		}
	})
	return found
}

// refreshSpeculative flags every ROB entry that has an older uncommitted
// branch.
func (m *Machine) refreshSpeculative() {
	pending := false
	m.rob.each(func(e *ROBEntry) {
		e.Speculative = pending
		if m.instances[e.ID].Def().IsBranch() {
			pending = true
		}
	})
}
