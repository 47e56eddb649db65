package insts

import (
	"fmt"
	"strings"
)

// ArgKind tags the variant held by an Arg.
type ArgKind uint8

// Argument kinds.
const (
	ArgRegister ArgKind = iota
	ArgImmediate
	ArgLabel
)

// ArgRole tells how the instruction uses an argument.
type ArgRole uint8

// Argument roles.
const (
	RoleDest ArgRole = iota
	RoleSrc1
	RoleSrc2
	RoleImm
)

// Arg is one instruction argument. Kind selects which fields are meaningful:
// Reg for ArgRegister, Imm for ArgImmediate, Label and its resolved value Imm
// for ArgLabel.
type Arg struct {
	Kind  ArgKind
	Role  ArgRole
	Reg   RegID
	Imm   int64
	Label string
}

// String formats the argument the way it appears in assembly.
func (a Arg) String() string {
	switch a.Kind {
	case ArgRegister:
		return a.Reg.String()
	case ArgLabel:
		return a.Label
	default:
		return fmt.Sprintf("%d", a.Imm)
	}
}

// Instruction is a decoded static instruction. It is immutable once the
// assembler has produced it.
type Instruction struct {
	// CodeID is the position of the instruction in the program.
	CodeID int
	Def    *Definition
	// Args holds the arguments ordered by role: destination, sources,
	// immediate. Absent roles are omitted.
	Args []Arg
	// Line is the 1-based source line.
	Line int
}

// PC returns the instruction address.
func (i *Instruction) PC() uint64 {
	return uint64(i.CodeID) * 4
}

// Arg returns the argument with the given role.
func (i *Instruction) Arg(role ArgRole) (Arg, bool) {
	for _, a := range i.Args {
		if a.Role == role {
			return a, true
		}
	}
	return Arg{}, false
}

// Reg returns the register argument with the given role.
func (i *Instruction) Reg(role ArgRole) (RegID, bool) {
	a, ok := i.Arg(role)
	if !ok || a.Kind != ArgRegister {
		return 0, false
	}
	return a.Reg, true
}

// Imm returns the immediate (or resolved label) value, zero when absent.
func (i *Instruction) Imm() int64 {
	a, _ := i.Arg(RoleImm)
	return a.Imm
}

// String renders the instruction in canonical assembly syntax.
func (i *Instruction) String() string {
	if i == nil || i.Def == nil {
		return "nop"
	}
	parts := make([]string, 0, len(i.Args))
	switch i.Def.Format {
	case FormatLoad, FormatStore:
		var data, base, imm Arg
		for _, a := range i.Args {
			switch a.Role {
			case RoleDest, RoleSrc2:
				data = a
			case RoleSrc1:
				base = a
			case RoleImm:
				imm = a
			}
		}
		parts = append(parts, data.String(), fmt.Sprintf("%s(%s)", imm.String(), base.String()))
	default:
		for _, a := range i.Args {
			parts = append(parts, a.String())
		}
	}
	if len(parts) == 0 {
		return i.Def.Name
	}
	return i.Def.Name + " " + strings.Join(parts, ", ")
}

// Program is the output of the assembler: code, labels and an initial data
// image.
type Program struct {
	Code   []*Instruction
	Labels map[string]uint64
	// Data is the initial memory image placed at DataBase.
	Data     []byte
	DataBase uint64
	// Entry is the PC of the first instruction to execute.
	Entry uint64
}

// At returns the instruction at pc, or nil when pc is outside the code.
func (p *Program) At(pc uint64) *Instruction {
	if pc%4 != 0 {
		return nil
	}
	idx := pc / 4
	if idx >= uint64(len(p.Code)) {
		return nil
	}
	return p.Code[idx]
}

// End returns the first PC past the code.
func (p *Program) End() uint64 {
	return uint64(len(p.Code)) * 4
}
