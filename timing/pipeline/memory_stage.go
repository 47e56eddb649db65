package pipeline

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// memoryStage runs the load and store buffers and the memory access units:
// finishing accesses, collecting store data, draining committed stores and
// starting loads.
func (m *Machine) memoryStage() {
	m.advanceMemoryUnits()
	m.collectStoreData()
	m.drainStores()
	m.startLoads()
}

func (m *Machine) freeMemoryUnit() int {
	for u := range m.units {
		if !m.units[u].Busy() && m.unitClass(u) == insts.UnitMemory {
			return u
		}
	}
	return -1
}

func (m *Machine) advanceMemoryUnits() {
	for u := range m.units {
		unit := &m.units[u]
		if !unit.Busy() || m.unitClass(u) != insts.UnitMemory {
			continue
		}
		m.stats.UnitBusy[u]++

		unit.Remaining--
		if unit.Remaining > 0 {
			continue
		}

		id := unit.Occupant
		*unit = FunctionalUnit{}
		if i := m.loadIndex(id); i >= 0 && m.loads[i].State == LoadAccessing {
			m.loads[i].State = LoadDone
			m.instances[id].Unit = -1
			m.resultBus = append(m.resultBus, id)
			continue
		}
		if i := m.storeIndex(id); i >= 0 {
			m.stores = append(m.stores[:i], m.stores[i+1:]...)
		}
	}
}

// collectStoreData reads the data operand of stores once it is ready and
// reports stores whose address and data are both known.
func (m *Machine) collectStoreData() {
	for i := range m.stores {
		s := &m.stores[i]
		if s.Committed || s.Reported {
			continue
		}
		inst := m.instances[s.ID]
		if !s.DataReady && m.regs.Ready(inst.Src2) {
			s.Data = emu.TruncateStore(inst.Def(), m.regs.Value(inst.Src2))
			s.DataReady = true
		}
		if s.Faulted || (s.DataReady && s.Address != UnknownAddress) {
			s.Reported = true
			m.resultBus = append(m.resultBus, s.ID)
		}
	}
}

// drainStores writes committed stores in order. The write takes effect
// when the unit starts; the item leaves the buffer when it finishes.
func (m *Machine) drainStores() {
	for i := range m.stores {
		s := &m.stores[i]
		if !s.Committed {
			return
		}
		if s.Draining {
			continue
		}
		u := m.freeMemoryUnit()
		if u < 0 {
			return
		}
		delay, err := m.writeData(s.Address, s.Size, s.Data)
		if err != nil {
			m.fault = s.fault(err)
			m.stores = m.stores[:i]
			m.halt(Faulted)
			return
		}
		s.Draining = true
		m.units[u] = FunctionalUnit{Occupant: s.ID, Remaining: delay}
	}
}

// startLoads tries every waiting load with a known address, oldest first.
func (m *Machine) startLoads() {
	for i := range m.loads {
		l := &m.loads[i]
		if l.State != LoadWaiting || l.Address == UnknownAddress {
			continue
		}
		inst := m.instances[l.ID]

		decision, from, speculative := m.checkStores(l)
		switch decision {
		case forwardWait:
			continue
		case forwardBypass:
			inst.Result.Value = emu.ExtendLoad(inst.Def(), from.Data)
			l.State = LoadDone
			l.Bypassed = true
			l.BypassFrom = from.ID
			m.stats.BypassedLoads++
			m.resultBus = append(m.resultBus, l.ID)
			continue
		}

		u := m.freeMemoryUnit()
		if u < 0 {
			return
		}
		raw, delay, err := m.readData(l.Address, l.Size)
		if err != nil {
			inst.raise(err)
			l.State = LoadDone
			m.resultBus = append(m.resultBus, l.ID)
			continue
		}
		inst.Result.Value = emu.ExtendLoad(inst.Def(), raw)
		inst.Unit = u
		l.State = LoadAccessing
		l.Speculative = speculative
		if speculative {
			m.stats.SpeculativeLoads++
		}
		m.units[u] = FunctionalUnit{Occupant: l.ID, Remaining: delay}
	}
}

// readData reads through the cache when enabled and returns the access
// delay.
func (m *Machine) readData(addr uint64, size int) (uint64, uint64, error) {
	if m.cache != nil {
		r, err := m.cache.Read(addr, size)
		if err != nil {
			return 0, 0, err
		}
		return r.Data, r.Latency, nil
	}
	v, err := m.memory.Load(addr, size)
	if err != nil {
		return 0, 0, errors.Wrap(err, "memory read")
	}
	return v, m.cfg.Memory.LoadLatency, nil
}

func (m *Machine) writeData(addr uint64, size int, value uint64) (uint64, error) {
	if m.cache != nil {
		r, err := m.cache.Write(addr, size, value)
		if err != nil {
			return 0, err
		}
		return r.Latency, nil
	}
	if err := m.memory.Store(addr, size, value); err != nil {
		return 0, errors.Wrap(err, "memory write")
	}
	return m.cfg.Memory.StoreLatency, nil
}
