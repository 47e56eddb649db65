package insts

import (
	"fmt"
	"strings"
)

// RegID is an index into the register arena. Architectural registers occupy
// the first NumArchRegs slots: x0-x31 followed by f0-f31.
type RegID uint16

const (
	// NumIntRegs is the number of integer registers.
	NumIntRegs = 32
	// NumFloatRegs is the number of floating-point registers.
	NumFloatRegs = 32
	// NumArchRegs is the number of architectural registers.
	NumArchRegs = NumIntRegs + NumFloatRegs
)

// Frequently used registers.
const (
	RegZero RegID = 0
	RegRA   RegID = 1
	RegSP   RegID = 2
	RegA0   RegID = 10
	RegA7   RegID = 17
)

// FloatReg returns the RegID of f<n>.
func FloatReg(n int) RegID {
	return RegID(NumIntRegs + n)
}

// IsFloat reports whether id names a floating-point architectural register.
func (id RegID) IsFloat() bool {
	return id >= NumIntRegs && id < NumArchRegs
}

// IsArch reports whether id is an architectural register.
func (id RegID) IsArch() bool {
	return id < NumArchRegs
}

// IsConstant reports whether writes to the register are discarded.
func (id RegID) IsConstant() bool {
	return id == RegZero
}

// Kind returns the register file the id belongs to.
func (id RegID) Kind() RegKind {
	if id.IsFloat() {
		return RegFloat
	}
	return RegInt
}

// String returns the canonical name (x5, f3) of an architectural register,
// or t<n> for a speculative register.
func (id RegID) String() string {
	switch {
	case id < NumIntRegs:
		return fmt.Sprintf("x%d", id)
	case id < NumArchRegs:
		return fmt.Sprintf("f%d", id-NumIntRegs)
	default:
		return fmt.Sprintf("t%d", id-NumArchRegs)
	}
}

var intABINames = [NumIntRegs]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var floatABINames = [NumFloatRegs]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

// RegisterDef describes one architectural register.
type RegisterDef struct {
	ID       RegID
	Name     string
	Kind     RegKind
	Aliases  []string
	Constant bool
}

var registerDefs, registerByName = func() ([]RegisterDef, map[string]RegID) {
	defs := make([]RegisterDef, 0, NumArchRegs)
	names := make(map[string]RegID, 2*NumArchRegs+1)
	for i := 0; i < NumIntRegs; i++ {
		id := RegID(i)
		def := RegisterDef{
			ID:       id,
			Name:     id.String(),
			Kind:     RegInt,
			Aliases:  []string{intABINames[i]},
			Constant: id.IsConstant(),
		}
		if i == 8 {
			def.Aliases = append(def.Aliases, "fp")
		}
		defs = append(defs, def)
	}
	for i := 0; i < NumFloatRegs; i++ {
		id := FloatReg(i)
		defs = append(defs, RegisterDef{
			ID:      id,
			Name:    id.String(),
			Kind:    RegFloat,
			Aliases: []string{floatABINames[i]},
		})
	}
	for _, d := range defs {
		names[d.Name] = d.ID
		for _, a := range d.Aliases {
			names[a] = d.ID
		}
	}
	return defs, names
}()

// LookupRegister resolves a register name or alias. Aliases resolve to the
// same RegID as the canonical name, so sp and x2 are the same register.
func LookupRegister(name string) (RegID, bool) {
	id, ok := registerByName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// Registers returns the architectural register definitions.
func Registers() []RegisterDef {
	out := make([]RegisterDef, len(registerDefs))
	copy(out, registerDefs)
	return out
}
