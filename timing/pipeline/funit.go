package pipeline

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// execute advances every computing unit by one cycle. A unit whose latency
// runs out evaluates its instance and frees itself. Results go on the
// result bus for writeback in the next cycle; address generation completes
// into the load and store buffers instead.
func (m *Machine) execute() {
	for u := range m.units {
		unit := &m.units[u]
		if !unit.Busy() || m.unitClass(u) == insts.UnitMemory {
			continue
		}
		m.stats.UnitBusy[u]++

		unit.Remaining--
		if unit.Remaining > 0 {
			continue
		}

		inst := m.instances[unit.Occupant]
		*unit = FunctionalUnit{}
		inst.Unit = -1
		m.evaluate(inst)
	}
}

func (m *Machine) evaluate(inst *Instance) {
	def := inst.Def()
	res, err := emu.Execute(def, inst.Ops)
	if err != nil {
		inst.raise(err)
		m.resultBus = append(m.resultBus, inst.ID)
		return
	}
	inst.Result = res

	switch {
	case def.IsLoad():
		m.resolveLoadAddress(inst)
	case def.IsStore():
		m.resolveStoreAddress(inst)
	default:
		m.resultBus = append(m.resultBus, inst.ID)
	}
}

// resolveLoadAddress records the effective address. An address outside
// memory faults without any access.
func (m *Machine) resolveLoadAddress(inst *Instance) {
	item := m.loadItem(inst.ID)
	if !m.memory.Contains(inst.Result.Address, item.Size) {
		inst.raise(errors.Wrapf(emu.ErrAccessFault, "load of %d bytes at 0x%X", item.Size, inst.Result.Address))
		item.State = LoadDone
		m.resultBus = append(m.resultBus, inst.ID)
		return
	}
	item.Address = inst.Result.Address
}

// resolveStoreAddress records the effective address and invalidates
// younger loads that already read the bytes it will write.
func (m *Machine) resolveStoreAddress(inst *Instance) {
	idx := m.storeIndex(inst.ID)
	item := &m.stores[idx]
	if !m.memory.Contains(inst.Result.Address, item.Size) {
		inst.raise(errors.Wrapf(emu.ErrAccessFault, "store of %d bytes at 0x%X", item.Size, inst.Result.Address))
		item.Faulted = true
		return
	}
	item.Address = inst.Result.Address
	m.detectConflicts(item)
}

// writeback delivers the results on the bus: destination registers become
// Executed and ROB entries stop being busy.
func (m *Machine) writeback() {
	for _, id := range m.resultBus {
		inst := m.instances[id]
		if inst.Fault == nil {
			m.regs.complete(inst.Dest, inst.Result.Value)
		}
		inst.ReadyCycle = m.cycle

		e := m.rob.At(inst.ROBSlot)
		e.Busy = false
		e.ReadyCycle = m.cycle
	}
	m.resultBus = m.resultBus[:0]
}
