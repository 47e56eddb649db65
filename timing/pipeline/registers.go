package pipeline

import (
	"github.com/sarchlab/rvsim/insts"
)

// RegState is the readiness state of a register.
type RegState uint8

// Register readiness states. Speculative registers cycle
// Free -> Allocated -> Executed -> Free; architectural registers stay
// Assigned.
const (
	RegFree RegState = iota
	RegAllocated
	RegExecuted
	RegAssigned
)

var regStateNames = [...]string{"Free", "Allocated", "Executed", "Assigned"}

func (s RegState) String() string {
	return regStateNames[s]
}

// Register is one slot of the register arena.
type Register struct {
	Value uint64
	State RegState
	// Refs counts the rename map entry and the in-flight instances that
	// name this register. A speculative register is freed when it drops
	// to zero.
	Refs int
}

// RegisterFile is the register arena: architectural registers first,
// followed by the speculative pool, plus the rename map and the free list.
type RegisterFile struct {
	regs     []Register
	renames  [insts.NumArchRegs]insts.RegID
	freeList []insts.RegID
}

// NewRegisterFile creates a register file with a pool of n speculative
// registers.
func NewRegisterFile(n int) *RegisterFile {
	rf := &RegisterFile{regs: make([]Register, insts.NumArchRegs+n)}
	for i := 0; i < insts.NumArchRegs; i++ {
		rf.regs[i].State = RegAssigned
	}
	rf.resetSpeculative()
	return rf
}

// resetSpeculative frees the whole pool and points every architectural
// register at itself.
func (rf *RegisterFile) resetSpeculative() {
	for i := range rf.renames {
		rf.renames[i] = insts.RegID(i)
	}
	rf.freeList = rf.freeList[:0]
	for i := insts.NumArchRegs; i < len(rf.regs); i++ {
		rf.regs[i] = Register{}
		rf.freeList = append(rf.freeList, insts.RegID(i))
	}
}

// Get returns the register at id.
func (rf *RegisterFile) Get(id insts.RegID) Register {
	return rf.regs[id]
}

// Len returns the arena size.
func (rf *RegisterFile) Len() int {
	return len(rf.regs)
}

// Arch returns the committed value of an architectural register.
func (rf *RegisterFile) Arch(id insts.RegID) uint64 {
	if id.IsConstant() {
		return 0
	}
	return rf.regs[id].Value
}

// SetArch writes an architectural register. Writes to x0 are dropped.
func (rf *RegisterFile) SetArch(id insts.RegID, v uint64) {
	if id.IsConstant() || !id.IsArch() {
		return
	}
	rf.regs[id].Value = v
}

// Mapping returns the register the rename map holds for arch.
func (rf *RegisterFile) Mapping(arch insts.RegID) insts.RegID {
	return rf.renames[arch]
}

// FreeCount returns the number of free speculative registers.
func (rf *RegisterFile) FreeCount() int {
	return len(rf.freeList)
}

// Ready reports whether a register's value is available.
func (rf *RegisterFile) Ready(id insts.RegID) bool {
	if id == NoReg {
		return true
	}
	s := rf.regs[id].State
	return s == RegExecuted || s == RegAssigned
}

// Value returns the current value of a register. x0 reads as zero.
func (rf *RegisterFile) Value(id insts.RegID) uint64 {
	if id == NoReg || id.IsConstant() {
		return 0
	}
	return rf.regs[id].Value
}

// lookup resolves an architectural source through the rename map and takes
// a reference on a speculative result.
func (rf *RegisterFile) lookup(arch insts.RegID) insts.RegID {
	id := rf.renames[arch]
	rf.retain(id)
	return id
}

// allocate takes a fresh register for arch and installs it in the map. It
// returns false when the pool is empty.
func (rf *RegisterFile) allocate(arch insts.RegID) (insts.RegID, bool) {
	if len(rf.freeList) == 0 {
		return NoReg, false
	}
	id := rf.freeList[0]
	rf.freeList = rf.freeList[1:]

	rf.regs[id] = Register{State: RegAllocated, Refs: 2} // map + producer
	rf.release(rf.renames[arch])
	rf.renames[arch] = id
	return id, true
}

// complete writes a produced value.
func (rf *RegisterFile) complete(id insts.RegID, v uint64) {
	if id == NoReg {
		return
	}
	rf.regs[id].Value = v
	rf.regs[id].State = RegExecuted
}

// retire copies a committed speculative value into its architectural
// register and drops the map entry if it still points at it.
func (rf *RegisterFile) retire(id, arch insts.RegID) {
	rf.SetArch(arch, rf.regs[id].Value)
	if rf.renames[arch] == id {
		rf.renames[arch] = arch
		rf.release(id)
	}
}

func (rf *RegisterFile) retain(id insts.RegID) {
	if id != NoReg && !id.IsArch() {
		rf.regs[id].Refs++
	}
}

func (rf *RegisterFile) release(id insts.RegID) {
	if id == NoReg || id.IsArch() {
		return
	}
	r := &rf.regs[id]
	r.Refs--
	if r.Refs == 0 {
		*r = Register{}
		rf.freeList = append(rf.freeList, id)
	}
}

// Clone returns a deep copy.
func (rf *RegisterFile) Clone() *RegisterFile {
	return &RegisterFile{
		regs:     append([]Register(nil), rf.regs...),
		renames:  rf.renames,
		freeList: append([]insts.RegID(nil), rf.freeList...),
	}
}
