package insts

import "strings"

// Op represents an opcode.
type Op uint16

// Opcodes.
const (
	OpUnknown Op = iota

	// Integer arithmetic and logic
	OpADD
	OpSUB
	OpADDI
	OpSUBI
	OpAND
	OpOR
	OpXOR
	OpANDI
	OpORI
	OpXORI
	OpSLL
	OpSRL
	OpSRA
	OpSLLI
	OpSRLI
	OpSRAI
	OpSLT
	OpSLTU
	OpSLTI
	OpSLTIU
	OpLUI
	OpAUIPC
	OpMUL
	OpMULH
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU

	// Floating point
	OpFADDS
	OpFSUBS
	OpFMULS
	OpFDIVS
	OpFSQRTS
	OpFMINS
	OpFMAXS
	OpFSGNJS
	OpFSGNJNS
	OpFSGNJXS
	OpFEQS
	OpFLTS
	OpFLES
	OpFCVTWS
	OpFCVTSW
	OpFMVXW
	OpFMVWX
	OpFADDD
	OpFSUBD
	OpFMULD
	OpFDIVD
	OpFSQRTD
	OpFMIND
	OpFMAXD
	OpFSGNJD
	OpFSGNJND
	OpFSGNJXD
	OpFEQD
	OpFLTD
	OpFLED
	OpFCVTWD
	OpFCVTDW
	OpFCVTSD
	OpFCVTDS

	// Control flow
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpJAL
	OpJALR

	// Memory
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU
	OpSB
	OpSH
	OpSW
	OpSD
	OpFLW
	OpFSW
	OpFLD
	OpFSD

	// System
	OpECALL
	OpEBREAK
)

// UnitClass identifies the kind of functional unit that executes an
// instruction. Every class except UnitMemory owns an issue window.
type UnitClass uint8

// Functional unit classes.
const (
	UnitFX UnitClass = iota
	UnitFP
	UnitBranch
	UnitLoadStore
	UnitMemory
)

// NumIssueClasses is the number of classes that have an issue window.
const NumIssueClasses = 4

var unitClassNames = [...]string{"FX", "FP", "Branch", "LS", "Memory"}

// String returns the configuration name of the class.
func (c UnitClass) String() string {
	if int(c) < len(unitClassNames) {
		return unitClassNames[c]
	}
	return "Unknown"
}

// ParseUnitClass converts a configuration name into a UnitClass.
func ParseUnitClass(s string) (UnitClass, bool) {
	for i, name := range unitClassNames {
		if strings.EqualFold(name, s) {
			return UnitClass(i), true
		}
	}
	if strings.EqualFold(s, "LoadStore") {
		return UnitLoadStore, true
	}
	return 0, false
}

// Capability is an operation category a functional unit may support. Each
// capability carries its own latency in the unit configuration.
type Capability uint8

// Capabilities.
const (
	CapAddition Capability = iota
	CapBitwise
	CapMultiplication
	CapDivision
	CapSpecial
)

// NumCapabilities is the number of distinct capabilities.
const NumCapabilities = 5

var capabilityNames = [...]string{"addition", "bitwise", "multiplication", "division", "special"}

// String returns the configuration name of the capability.
func (c Capability) String() string {
	if int(c) < len(capabilityNames) {
		return capabilityNames[c]
	}
	return "unknown"
}

// ParseCapability converts a configuration name into a Capability.
func ParseCapability(s string) (Capability, bool) {
	for i, name := range capabilityNames {
		if strings.EqualFold(name, s) {
			return Capability(i), true
		}
	}
	return 0, false
}

// Format describes the argument shape of an instruction in assembly order.
type Format uint8

// Instruction formats.
const (
	FormatNone   Format = iota // ecall
	FormatR                    // rd, rs1, rs2
	FormatR1                   // rd, rs1
	FormatI                    // rd, rs1, imm
	FormatU                    // rd, imm
	FormatB                    // rs1, rs2, label
	FormatJ                    // rd, label
	FormatJR                   // rd, rs1, imm  (also rd, imm(rs1))
	FormatLoad                 // rd, imm(rs1)
	FormatStore                // rs2, imm(rs1)
)

// RegKind tells which register file an argument addresses.
type RegKind uint8

// Register kinds.
const (
	RegNone RegKind = iota
	RegInt
	RegFloat
)

// Definition is the static description of one instruction name.
type Definition struct {
	Name       string
	Op         Op
	Class      UnitClass
	Capability Capability
	Format     Format

	// Register files of the destination and the two sources.
	Dest, Src1, Src2 RegKind

	// MemSize is the access width in bytes for loads and stores.
	MemSize int
	// Signed reports whether a load sign-extends.
	Signed bool
}

// IsLoad reports whether the instruction reads memory.
func (d *Definition) IsLoad() bool {
	return d.Format == FormatLoad
}

// IsStore reports whether the instruction writes memory.
func (d *Definition) IsStore() bool {
	return d.Format == FormatStore
}

// IsBranch reports whether the instruction may redirect control flow.
func (d *Definition) IsBranch() bool {
	return d.Class == UnitBranch
}

// IsConditional reports whether the instruction is a conditional branch.
func (d *Definition) IsConditional() bool {
	return d.Format == FormatB
}

// IsUnconditional reports whether the instruction is a jump.
func (d *Definition) IsUnconditional() bool {
	return d.Op == OpJAL || d.Op == OpJALR
}

func fx(name string, op Op, cp Capability, f Format) *Definition {
	d := &Definition{Name: name, Op: op, Class: UnitFX, Capability: cp, Format: f}
	switch f {
	case FormatR:
		d.Dest, d.Src1, d.Src2 = RegInt, RegInt, RegInt
	case FormatI, FormatR1:
		d.Dest, d.Src1 = RegInt, RegInt
	case FormatU:
		d.Dest = RegInt
	}
	return d
}

func fp(name string, op Op, cp Capability, f Format, dest, src1, src2 RegKind) *Definition {
	return &Definition{
		Name: name, Op: op, Class: UnitFP, Capability: cp, Format: f,
		Dest: dest, Src1: src1, Src2: src2,
	}
}

func mem(name string, op Op, f Format, data RegKind, size int, signed bool) *Definition {
	d := &Definition{
		Name: name, Op: op, Class: UnitLoadStore, Capability: CapAddition,
		Format: f, Src1: RegInt, MemSize: size, Signed: signed,
	}
	if f == FormatLoad {
		d.Dest = data
	} else {
		d.Src2 = data
	}
	return d
}

var definitions = []*Definition{
	fx("add", OpADD, CapAddition, FormatR),
	fx("sub", OpSUB, CapAddition, FormatR),
	fx("addi", OpADDI, CapAddition, FormatI),
	fx("subi", OpSUBI, CapAddition, FormatI),
	fx("and", OpAND, CapBitwise, FormatR),
	fx("or", OpOR, CapBitwise, FormatR),
	fx("xor", OpXOR, CapBitwise, FormatR),
	fx("andi", OpANDI, CapBitwise, FormatI),
	fx("ori", OpORI, CapBitwise, FormatI),
	fx("xori", OpXORI, CapBitwise, FormatI),
	fx("sll", OpSLL, CapBitwise, FormatR),
	fx("srl", OpSRL, CapBitwise, FormatR),
	fx("sra", OpSRA, CapBitwise, FormatR),
	fx("slli", OpSLLI, CapBitwise, FormatI),
	fx("srli", OpSRLI, CapBitwise, FormatI),
	fx("srai", OpSRAI, CapBitwise, FormatI),
	fx("slt", OpSLT, CapAddition, FormatR),
	fx("sltu", OpSLTU, CapAddition, FormatR),
	fx("slti", OpSLTI, CapAddition, FormatI),
	fx("sltiu", OpSLTIU, CapAddition, FormatI),
	fx("lui", OpLUI, CapAddition, FormatU),
	fx("auipc", OpAUIPC, CapAddition, FormatU),
	fx("mul", OpMUL, CapMultiplication, FormatR),
	fx("mulh", OpMULH, CapMultiplication, FormatR),
	fx("mulhu", OpMULHU, CapMultiplication, FormatR),
	fx("div", OpDIV, CapDivision, FormatR),
	fx("divu", OpDIVU, CapDivision, FormatR),
	fx("rem", OpREM, CapDivision, FormatR),
	fx("remu", OpREMU, CapDivision, FormatR),

	fp("fadd.s", OpFADDS, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsub.s", OpFSUBS, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fmul.s", OpFMULS, CapMultiplication, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fdiv.s", OpFDIVS, CapDivision, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsqrt.s", OpFSQRTS, CapDivision, FormatR1, RegFloat, RegFloat, RegNone),
	fp("fmin.s", OpFMINS, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fmax.s", OpFMAXS, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsgnj.s", OpFSGNJS, CapSpecial, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsgnjn.s", OpFSGNJNS, CapSpecial, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsgnjx.s", OpFSGNJXS, CapSpecial, FormatR, RegFloat, RegFloat, RegFloat),
	fp("feq.s", OpFEQS, CapAddition, FormatR, RegInt, RegFloat, RegFloat),
	fp("flt.s", OpFLTS, CapAddition, FormatR, RegInt, RegFloat, RegFloat),
	fp("fle.s", OpFLES, CapAddition, FormatR, RegInt, RegFloat, RegFloat),
	fp("fcvt.w.s", OpFCVTWS, CapSpecial, FormatR1, RegInt, RegFloat, RegNone),
	fp("fcvt.s.w", OpFCVTSW, CapSpecial, FormatR1, RegFloat, RegInt, RegNone),
	fp("fmv.x.w", OpFMVXW, CapSpecial, FormatR1, RegInt, RegFloat, RegNone),
	fp("fmv.w.x", OpFMVWX, CapSpecial, FormatR1, RegFloat, RegInt, RegNone),
	fp("fadd.d", OpFADDD, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsub.d", OpFSUBD, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fmul.d", OpFMULD, CapMultiplication, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fdiv.d", OpFDIVD, CapDivision, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsqrt.d", OpFSQRTD, CapDivision, FormatR1, RegFloat, RegFloat, RegNone),
	fp("fmin.d", OpFMIND, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fmax.d", OpFMAXD, CapAddition, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsgnj.d", OpFSGNJD, CapSpecial, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsgnjn.d", OpFSGNJND, CapSpecial, FormatR, RegFloat, RegFloat, RegFloat),
	fp("fsgnjx.d", OpFSGNJXD, CapSpecial, FormatR, RegFloat, RegFloat, RegFloat),
	fp("feq.d", OpFEQD, CapAddition, FormatR, RegInt, RegFloat, RegFloat),
	fp("flt.d", OpFLTD, CapAddition, FormatR, RegInt, RegFloat, RegFloat),
	fp("fle.d", OpFLED, CapAddition, FormatR, RegInt, RegFloat, RegFloat),
	fp("fcvt.w.d", OpFCVTWD, CapSpecial, FormatR1, RegInt, RegFloat, RegNone),
	fp("fcvt.d.w", OpFCVTDW, CapSpecial, FormatR1, RegFloat, RegInt, RegNone),
	fp("fcvt.s.d", OpFCVTSD, CapSpecial, FormatR1, RegFloat, RegFloat, RegNone),
	fp("fcvt.d.s", OpFCVTDS, CapSpecial, FormatR1, RegFloat, RegFloat, RegNone),

	{Name: "beq", Op: OpBEQ, Class: UnitBranch, Capability: CapAddition, Format: FormatB, Src1: RegInt, Src2: RegInt},
	{Name: "bne", Op: OpBNE, Class: UnitBranch, Capability: CapAddition, Format: FormatB, Src1: RegInt, Src2: RegInt},
	{Name: "blt", Op: OpBLT, Class: UnitBranch, Capability: CapAddition, Format: FormatB, Src1: RegInt, Src2: RegInt},
	{Name: "bge", Op: OpBGE, Class: UnitBranch, Capability: CapAddition, Format: FormatB, Src1: RegInt, Src2: RegInt},
	{Name: "bltu", Op: OpBLTU, Class: UnitBranch, Capability: CapAddition, Format: FormatB, Src1: RegInt, Src2: RegInt},
	{Name: "bgeu", Op: OpBGEU, Class: UnitBranch, Capability: CapAddition, Format: FormatB, Src1: RegInt, Src2: RegInt},
	{Name: "jal", Op: OpJAL, Class: UnitBranch, Capability: CapAddition, Format: FormatJ, Dest: RegInt},
	{Name: "jalr", Op: OpJALR, Class: UnitBranch, Capability: CapAddition, Format: FormatJR, Dest: RegInt, Src1: RegInt},

	mem("lb", OpLB, FormatLoad, RegInt, 1, true),
	mem("lh", OpLH, FormatLoad, RegInt, 2, true),
	mem("lw", OpLW, FormatLoad, RegInt, 4, true),
	mem("ld", OpLD, FormatLoad, RegInt, 8, true),
	mem("lbu", OpLBU, FormatLoad, RegInt, 1, false),
	mem("lhu", OpLHU, FormatLoad, RegInt, 2, false),
	mem("lwu", OpLWU, FormatLoad, RegInt, 4, false),
	mem("sb", OpSB, FormatStore, RegInt, 1, false),
	mem("sh", OpSH, FormatStore, RegInt, 2, false),
	mem("sw", OpSW, FormatStore, RegInt, 4, false),
	mem("sd", OpSD, FormatStore, RegInt, 8, false),
	mem("flw", OpFLW, FormatLoad, RegFloat, 4, false),
	mem("fsw", OpFSW, FormatStore, RegFloat, 4, false),
	mem("fld", OpFLD, FormatLoad, RegFloat, 8, false),
	mem("fsd", OpFSD, FormatStore, RegFloat, 8, false),

	{Name: "ecall", Op: OpECALL, Class: UnitFX, Capability: CapSpecial, Format: FormatNone},
	{Name: "ebreak", Op: OpEBREAK, Class: UnitFX, Capability: CapSpecial, Format: FormatNone},
}

var definitionsByName = func() map[string]*Definition {
	m := make(map[string]*Definition, len(definitions))
	for _, d := range definitions {
		m[d.Name] = d
	}
	return m
}()

// Lookup returns the definition of the named instruction.
func Lookup(name string) (*Definition, bool) {
	d, ok := definitionsByName[strings.ToLower(name)]
	return d, ok
}

// Definitions returns every instruction definition in table order.
func Definitions() []*Definition {
	out := make([]*Definition, len(definitions))
	copy(out, definitions)
	return out
}
