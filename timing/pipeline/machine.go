package pipeline

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/config"
	"github.com/sarchlab/rvsim/timing/latency"
)

// Status tells whether the machine can continue.
type Status uint8

// Machine statuses.
const (
	Running Status = iota
	// EndOfCode means fetch left the program and everything drained.
	EndOfCode
	// Exited means an ecall committed.
	Exited
	// Faulted means an instance with a fault committed or memory rejected
	// a committed store.
	Faulted
)

var statusNames = [...]string{"Running", "EndOfCode", "Exited", "Faulted"}

func (s Status) String() string {
	return statusNames[s]
}

// FunctionalUnit is the dynamic state of one unit: empty, or occupied by an
// instance with the remaining latency.
type FunctionalUnit struct {
	Occupant  InstanceID
	Remaining uint64
}

// Busy reports whether the unit is occupied.
func (u FunctionalUnit) Busy() bool {
	return u.Occupant != 0
}

// Machine is the complete state of the simulated processor. Every stage
// mutates only the parts it owns; Clone copies everything, so a snapshot
// taken before Tick restores the machine exactly.
type Machine struct {
	// Static, shared between clones.
	cfg     *config.Config
	program *insts.Program
	table   *latency.Table

	cycle  uint64
	pc     uint64
	nextID InstanceID

	instances map[InstanceID]*Instance
	bundle    []InstanceID

	regs      *RegisterFile
	predictor *BranchPredictor
	windows   [insts.NumIssueClasses][]InstanceID
	units     []FunctionalUnit
	resultBus []InstanceID
	rob       *ReorderBuffer
	loads     []LoadItem
	stores    []StoreItem

	memory *emu.Memory
	cache  *cache.Cache

	stats    Statistics
	status   Status
	exitCode int64
	fault    *Fault
}

// NewMachine builds a machine for program in its initial state: PC at the
// entry, the data image loaded and every buffer empty.
func NewMachine(cfg *config.Config, program *insts.Program) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := latency.NewTable(cfg.Units)
	if err != nil {
		return nil, err
	}
	if err := table.CheckProgram(program); err != nil {
		return nil, err
	}

	memory := emu.NewMemory(cfg.Memory.Size)
	if err := memory.WriteBytes(program.DataBase, program.Data); err != nil {
		return nil, errors.Wrapf(config.ErrInvalidConfig, "data image does not fit in memory: %v", err)
	}

	m := &Machine{
		cfg:       cfg,
		program:   program,
		table:     table,
		pc:        program.Entry,
		nextID:    1,
		instances: make(map[InstanceID]*Instance),
		regs:      NewRegisterFile(cfg.SpeculativeRegisters),
		predictor: NewBranchPredictor(cfg.Predictor),
		units:     make([]FunctionalUnit, len(table.Units())),
		rob:       NewReorderBuffer(cfg.ROBSize),
		memory:    memory,
	}
	m.stats.UnitBusy = make([]uint64, len(m.units))
	if cfg.Cache.Enabled {
		m.cache = cache.New(cache.ConfigFrom(cfg), memory)
	}
	return m, nil
}

// Clone returns an independent deep copy of the machine.
func (m *Machine) Clone() *Machine {
	n := &Machine{
		cfg:       m.cfg,
		program:   m.program,
		table:     m.table,
		cycle:     m.cycle,
		pc:        m.pc,
		nextID:    m.nextID,
		instances: make(map[InstanceID]*Instance, len(m.instances)),
		bundle:    append([]InstanceID(nil), m.bundle...),
		regs:      m.regs.Clone(),
		predictor: m.predictor.Clone(),
		units:     append([]FunctionalUnit(nil), m.units...),
		resultBus: append([]InstanceID(nil), m.resultBus...),
		rob:       m.rob.Clone(),
		loads:     append([]LoadItem(nil), m.loads...),
		stores:    append([]StoreItem(nil), m.stores...),
		memory:    m.memory.Clone(),
		stats:     m.stats.clone(),
		status:    m.status,
		exitCode:  m.exitCode,
		fault:     m.fault,
	}
	for id, inst := range m.instances {
		c := *inst
		n.instances[id] = &c
	}
	for i, w := range m.windows {
		n.windows[i] = append([]InstanceID(nil), w...)
	}
	if m.cache != nil {
		n.cache = m.cache.Clone(n.memory)
	}
	return n
}

// Tick advances the machine by one cycle. Stages run from the back of the
// pipeline to the front so each consumes what its upstream stage produced
// in an earlier cycle.
func (m *Machine) Tick() CycleReport {
	var report CycleReport
	if m.status != Running {
		return report
	}

	m.cycle++
	m.stats.Cycles++

	m.writeback()
	m.commit(&report)
	if m.status == Running {
		m.memoryStage()
	}
	if m.status == Running {
		m.execute()
		m.issue()
		m.dispatch()
		// After a recovery fetch restarts at the target in the next cycle.
		if report.Flush == nil {
			m.fetch()
		}
		m.refreshSpeculative()
		m.checkEndOfCode()
	}

	report.Cycle = m.cycle
	return report
}

// checkEndOfCode halts once fetch is past the program and nothing is left
// in flight.
func (m *Machine) checkEndOfCode() {
	if m.program.At(m.pc) != nil || m.rob.Len() > 0 || len(m.stores) > 0 || len(m.resultBus) > 0 {
		return
	}
	for _, id := range m.bundle {
		if !m.instances[id].Padding {
			return
		}
	}
	for _, u := range m.units {
		if u.Busy() {
			return
		}
	}
	m.status = EndOfCode
}

func (m *Machine) newInstance(inst *insts.Instruction, pc uint64) *Instance {
	i := newInstance(m.nextID, inst, pc, m.cycle)
	m.nextID++
	m.instances[i.ID] = i
	return i
}

// Cycle returns the number of cycles simulated.
func (m *Machine) Cycle() uint64 {
	return m.cycle
}

// PC returns the fetch PC.
func (m *Machine) PC() uint64 {
	return m.pc
}

// Status returns the run status.
func (m *Machine) Status() Status {
	return m.status
}

// ExitCode returns the value of a0 at the committed ecall.
func (m *Machine) ExitCode() int64 {
	return m.exitCode
}

// Fault returns the fault that ended the run, if any.
func (m *Machine) Fault() *Fault {
	return m.fault
}

// Stats returns the machine statistics.
func (m *Machine) Stats() Statistics {
	return m.stats.clone()
}

// Config returns the configuration the machine was built with.
func (m *Machine) Config() *config.Config {
	return m.cfg
}

// Program returns the program being executed.
func (m *Machine) Program() *insts.Program {
	return m.program
}

// Latencies returns the unit latency table.
func (m *Machine) Latencies() *latency.Table {
	return m.table
}

// Registers returns the register file.
func (m *Machine) Registers() *RegisterFile {
	return m.regs
}

// Predictor returns the branch predictor.
func (m *Machine) Predictor() *BranchPredictor {
	return m.predictor
}

// ROB returns the reorder buffer.
func (m *Machine) ROB() *ReorderBuffer {
	return m.rob
}

// Cache returns the data cache, nil when disabled.
func (m *Machine) Cache() *cache.Cache {
	return m.cache
}

// Memory returns the backing memory.
func (m *Machine) Memory() *emu.Memory {
	return m.memory
}

// Instance returns the in-flight instance with the given ID.
func (m *Machine) Instance(id InstanceID) (*Instance, bool) {
	i, ok := m.instances[id]
	return i, ok
}

// Instances returns the IDs of all in-flight instances in fetch order.
func (m *Machine) Instances() []InstanceID {
	ids := make([]InstanceID, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// Bundle returns the fetch bundle awaiting decode.
func (m *Machine) Bundle() []InstanceID {
	return append([]InstanceID(nil), m.bundle...)
}

// Window returns the members of the issue window of class.
func (m *Machine) Window(class insts.UnitClass) []InstanceID {
	return append([]InstanceID(nil), m.windows[class]...)
}

// Units returns the state of every functional unit.
func (m *Machine) Units() []FunctionalUnit {
	return append([]FunctionalUnit(nil), m.units...)
}

// LoadBuffer returns the load buffer items oldest first.
func (m *Machine) LoadBuffer() []LoadItem {
	return append([]LoadItem(nil), m.loads...)
}

// StoreBuffer returns the store buffer items oldest first.
func (m *Machine) StoreBuffer() []StoreItem {
	return append([]StoreItem(nil), m.stores...)
}

// ArchRegister returns the committed value of an architectural register.
func (m *Machine) ArchRegister(id insts.RegID) uint64 {
	return m.regs.Arch(id)
}

// SetArchRegister sets an initial register value. It is only allowed
// before the first cycle.
func (m *Machine) SetArchRegister(id insts.RegID, v uint64) error {
	if m.cycle != 0 {
		return errors.New("registers can only be set before the first cycle")
	}
	if !id.IsArch() {
		return errors.Errorf("%s is not an architectural register", id)
	}
	m.regs.SetArch(id, v)
	return nil
}

// ReadMemory returns the architectural view of memory: cached lines take
// precedence over the backing store.
func (m *Machine) ReadMemory(addr uint64, size int) (uint64, error) {
	if m.cache != nil {
		return m.cache.Peek(addr, size)
	}
	return m.memory.Load(addr, size)
}
