package pipeline

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// issue moves ready window members into free, capable units. Members are
// visited oldest first, so the oldest ready instance gets the first pick of
// units. A member that finds no unit stays and younger members may still
// issue to other units.
func (m *Machine) issue() {
	for class := range m.windows {
		window := m.windows[class]
		kept := window[:0]
		for _, id := range window {
			inst := m.instances[id]
			if !m.operandsReady(inst) || !m.startOnUnit(inst) {
				kept = append(kept, id)
			}
		}
		m.windows[class] = kept
	}
}

// operandsReady checks the sources the unit needs. A store only needs its
// base: the data is collected by the store buffer.
func (m *Machine) operandsReady(inst *Instance) bool {
	if !m.regs.Ready(inst.Src1) {
		return false
	}
	if inst.Def().IsStore() {
		return true
	}
	return m.regs.Ready(inst.Src2)
}

// startOnUnit places the instance on the first free unit supporting it.
func (m *Machine) startOnUnit(inst *Instance) bool {
	def := inst.Def()
	for u := range m.units {
		if m.units[u].Busy() {
			continue
		}
		lat, ok := m.table.Latency(u, def)
		if !ok {
			continue
		}

		inst.Ops = emu.Operands{
			Src1: m.regs.Value(inst.Src1),
			Imm:  inst.Inst.Imm(),
			PC:   inst.PC,
		}
		if !def.IsStore() {
			inst.Ops.Src2 = m.regs.Value(inst.Src2)
		}
		inst.Unit = u
		inst.IssueCycle = m.cycle
		m.units[u] = FunctionalUnit{Occupant: inst.ID, Remaining: lat}
		return true
	}
	return false
}

// unitClass returns the class of unit u.
func (m *Machine) unitClass(u int) insts.UnitClass {
	return m.table.Unit(u).Class
}
