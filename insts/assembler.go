package insts

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// ErrSyntax is the cause of every error returned by Assemble.
var ErrSyntax = errors.New("syntax error")

// DefaultDataBase is the address where the .data section is placed.
const DefaultDataBase = 0

type section uint8

const (
	sectionText section = iota
	sectionData
)

// statement is one non-empty source line after label extraction.
type statement struct {
	line     int
	section  section
	mnemonic string
	operands []string
	raw      string // rest of line, used by string directives
}

// pseudo rewrites a pseudo-instruction into a real one. Every pseudo expands
// to exactly one instruction so code indices can be assigned in the first
// pass.
type pseudo func(ops []string) (string, []string, bool)

var pseudos = map[string]pseudo{
	"li":      func(o []string) (string, []string, bool) { return "addi", pick(o, 0, "zero", 1), len(o) == 2 },
	"la":      func(o []string) (string, []string, bool) { return "addi", pick(o, 0, "zero", 1), len(o) == 2 },
	"mv":      func(o []string) (string, []string, bool) { return "addi", pick(o, 0, 1, "0"), len(o) == 2 },
	"neg":     func(o []string) (string, []string, bool) { return "sub", pick(o, 0, "zero", 1), len(o) == 2 },
	"not":     func(o []string) (string, []string, bool) { return "xori", pick(o, 0, 1, "-1"), len(o) == 2 },
	"seqz":    func(o []string) (string, []string, bool) { return "sltiu", pick(o, 0, 1, "1"), len(o) == 2 },
	"snez":    func(o []string) (string, []string, bool) { return "sltu", pick(o, 0, "zero", 1), len(o) == 2 },
	"nop":     func(o []string) (string, []string, bool) { return "addi", []string{"zero", "zero", "0"}, len(o) == 0 },
	"j":       func(o []string) (string, []string, bool) { return "jal", pick(o, "zero", 0), len(o) == 1 },
	"jr":      func(o []string) (string, []string, bool) { return "jalr", pick(o, "zero", 0, "0"), len(o) == 1 },
	"ret":     func(o []string) (string, []string, bool) { return "jalr", []string{"zero", "ra", "0"}, len(o) == 0 },
	"call":    func(o []string) (string, []string, bool) { return "jal", pick(o, "ra", 0), len(o) == 1 },
	"beqz":    func(o []string) (string, []string, bool) { return "beq", pick(o, 0, "zero", 1), len(o) == 2 },
	"bnez":    func(o []string) (string, []string, bool) { return "bne", pick(o, 0, "zero", 1), len(o) == 2 },
	"bgt":     func(o []string) (string, []string, bool) { return "blt", pick(o, 1, 0, 2), len(o) == 3 },
	"ble":     func(o []string) (string, []string, bool) { return "bge", pick(o, 1, 0, 2), len(o) == 3 },
	"fmv.s":   func(o []string) (string, []string, bool) { return "fsgnj.s", pick(o, 0, 1, 1), len(o) == 2 },
	"fmv.d":   func(o []string) (string, []string, bool) { return "fsgnj.d", pick(o, 0, 1, 1), len(o) == 2 },
	"fneg.s":  func(o []string) (string, []string, bool) { return "fsgnjn.s", pick(o, 0, 1, 1), len(o) == 2 },
	"fneg.d":  func(o []string) (string, []string, bool) { return "fsgnjn.d", pick(o, 0, 1, 1), len(o) == 2 },
	"fabs.s":  func(o []string) (string, []string, bool) { return "fsgnjx.s", pick(o, 0, 1, 1), len(o) == 2 },
	"fabs.d":  func(o []string) (string, []string, bool) { return "fsgnjx.d", pick(o, 0, 1, 1), len(o) == 2 },
}

// pick builds an operand list from indices into ops and literal strings. It
// tolerates short input; the caller's arity flag reports the mismatch.
func pick(ops []string, items ...interface{}) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case int:
			if v < len(ops) {
				out = append(out, ops[v])
			} else {
				out = append(out, "")
			}
		case string:
			out = append(out, v)
		}
	}
	return out
}

// Assemble translates assembly source into a Program.
func Assemble(source string) (*Program, error) {
	a := &assembler{
		prog: &Program{
			Labels:   make(map[string]uint64),
			DataBase: DefaultDataBase,
		},
	}
	if err := a.firstPass(source); err != nil {
		return nil, err
	}
	if err := a.secondPass(); err != nil {
		return nil, err
	}
	if entry, ok := a.codeLabels["main"]; ok {
		a.prog.Entry = entry
	} else if entry, ok := a.codeLabels["_start"]; ok {
		a.prog.Entry = entry
	}
	return a.prog, nil
}

type assembler struct {
	prog       *Program
	stmts      []statement
	codeLabels map[string]uint64
}

func syntaxErr(line int, format string, args ...interface{}) error {
	return errors.Wrapf(ErrSyntax, "line %d: "+format, append([]interface{}{line}, args...)...)
}

func (a *assembler) firstPass(source string) error {
	a.codeLabels = make(map[string]uint64)
	sec := sectionText
	codeCount := 0

	for i, rawLine := range strings.Split(source, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(stripComment(rawLine))

		for {
			name, rest, ok := splitLabel(line)
			if !ok {
				break
			}
			if _, dup := a.prog.Labels[name]; dup {
				return syntaxErr(lineNo, "duplicate label %q", name)
			}
			if sec == sectionText {
				a.prog.Labels[name] = uint64(codeCount) * 4
				a.codeLabels[name] = uint64(codeCount) * 4
			} else {
				a.prog.Labels[name] = a.prog.DataBase + uint64(len(a.prog.Data))
			}
			line = strings.TrimSpace(rest)
		}
		if line == "" {
			continue
		}

		mnemonic, rest := splitMnemonic(line)
		mnemonic = strings.ToLower(mnemonic)
		st := statement{line: lineNo, section: sec, mnemonic: mnemonic, raw: rest}
		if rest != "" {
			for _, op := range strings.Split(rest, ",") {
				st.operands = append(st.operands, strings.TrimSpace(op))
			}
		}

		if strings.HasPrefix(mnemonic, ".") {
			switch mnemonic {
			case ".text":
				sec = sectionText
				continue
			case ".data":
				sec = sectionData
				continue
			case ".globl", ".global", ".section", ".type", ".size":
				continue
			}
			if err := a.directive(st); err != nil {
				return err
			}
			continue
		}

		if sec != sectionText {
			return syntaxErr(lineNo, "instruction %q outside .text", mnemonic)
		}
		a.stmts = append(a.stmts, st)
		codeCount++
	}
	return nil
}

func (a *assembler) directive(st statement) error {
	if st.section != sectionData && st.mnemonic != ".align" {
		return syntaxErr(st.line, "directive %s outside .data", st.mnemonic)
	}

	emitInts := func(size int) error {
		for _, op := range st.operands {
			v, err := strconv.ParseInt(op, 0, 64)
			if err != nil {
				u, uerr := strconv.ParseUint(op, 0, 64)
				if uerr != nil {
					return syntaxErr(st.line, "bad integer %q", op)
				}
				v = int64(u)
			}
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, uint64(v))
			a.prog.Data = append(a.prog.Data, buf[:size]...)
		}
		return nil
	}

	switch st.mnemonic {
	case ".byte":
		return emitInts(1)
	case ".half", ".short":
		return emitInts(2)
	case ".word", ".int":
		return emitInts(4)
	case ".dword", ".quad":
		return emitInts(8)
	case ".float", ".double":
		for _, op := range st.operands {
			f, err := strconv.ParseFloat(op, 64)
			if err != nil {
				return syntaxErr(st.line, "bad float %q", op)
			}
			if st.mnemonic == ".float" {
				a.prog.Data = binary.LittleEndian.AppendUint32(a.prog.Data, math.Float32bits(float32(f)))
			} else {
				a.prog.Data = binary.LittleEndian.AppendUint64(a.prog.Data, math.Float64bits(f))
			}
		}
	case ".zero", ".space":
		if len(st.operands) != 1 {
			return syntaxErr(st.line, "%s takes one operand", st.mnemonic)
		}
		n, err := strconv.ParseUint(st.operands[0], 0, 32)
		if err != nil {
			return syntaxErr(st.line, "bad size %q", st.operands[0])
		}
		a.prog.Data = append(a.prog.Data, make([]byte, n)...)
	case ".align":
		if st.section != sectionData {
			return nil
		}
		if len(st.operands) != 1 {
			return syntaxErr(st.line, ".align takes one operand")
		}
		n, err := strconv.ParseUint(st.operands[0], 0, 5)
		if err != nil {
			return syntaxErr(st.line, "bad alignment %q", st.operands[0])
		}
		align := uint64(1) << n
		for (a.prog.DataBase+uint64(len(a.prog.Data)))%align != 0 {
			a.prog.Data = append(a.prog.Data, 0)
		}
	case ".ascii", ".asciiz", ".string":
		s, err := strconv.Unquote(strings.TrimSpace(st.raw))
		if err != nil {
			return syntaxErr(st.line, "bad string literal")
		}
		a.prog.Data = append(a.prog.Data, s...)
		if st.mnemonic != ".ascii" {
			a.prog.Data = append(a.prog.Data, 0)
		}
	default:
		return syntaxErr(st.line, "unknown directive %s", st.mnemonic)
	}
	return nil
}

func (a *assembler) secondPass() error {
	a.prog.Code = make([]*Instruction, 0, len(a.stmts))
	for idx, st := range a.stmts {
		name, ops := st.mnemonic, st.operands
		if p, ok := pseudos[name]; ok {
			var arityOK bool
			name, ops, arityOK = p(ops)
			if !arityOK {
				return syntaxErr(st.line, "wrong operand count for %s", st.mnemonic)
			}
		}
		def, ok := Lookup(name)
		if !ok {
			return syntaxErr(st.line, "unknown instruction %q", st.mnemonic)
		}
		args, err := a.parseArgs(def, ops, st.line)
		if err != nil {
			return err
		}
		a.prog.Code = append(a.prog.Code, &Instruction{
			CodeID: idx,
			Def:    def,
			Args:   args,
			Line:   st.line,
		})
	}
	return nil
}

func (a *assembler) parseArgs(def *Definition, ops []string, line int) ([]Arg, error) {
	want := func(n int) error {
		if len(ops) != n {
			return syntaxErr(line, "%s expects %d operands, got %d", def.Name, n, len(ops))
		}
		return nil
	}

	var args []Arg
	reg := func(s string, role ArgRole, kind RegKind) error {
		id, ok := LookupRegister(s)
		if !ok {
			return syntaxErr(line, "unknown register %q", s)
		}
		if id.Kind() != kind {
			return syntaxErr(line, "register %s has the wrong type for %s", s, def.Name)
		}
		args = append(args, Arg{Kind: ArgRegister, Role: role, Reg: id})
		return nil
	}
	imm := func(s string) error {
		arg, err := a.parseImmediate(s, line)
		if err != nil {
			return err
		}
		args = append(args, arg)
		return nil
	}
	memory := func(s string) error {
		open := strings.IndexByte(s, '(')
		if open < 0 || !strings.HasSuffix(s, ")") {
			return syntaxErr(line, "expected offset(register), got %q", s)
		}
		off := strings.TrimSpace(s[:open])
		if off == "" {
			off = "0"
		}
		if err := reg(strings.TrimSpace(s[open+1:len(s)-1]), RoleSrc1, RegInt); err != nil {
			return err
		}
		return imm(off)
	}
	run := func(steps ...func() error) ([]Arg, error) {
		for _, step := range steps {
			if err := step(); err != nil {
				return nil, err
			}
		}
		return args, nil
	}

	switch def.Format {
	case FormatNone:
		return nil, want(0)
	case FormatR:
		if err := want(3); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleDest, def.Dest) },
			func() error { return reg(ops[1], RoleSrc1, def.Src1) },
			func() error { return reg(ops[2], RoleSrc2, def.Src2) },
		)
	case FormatR1:
		if err := want(2); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleDest, def.Dest) },
			func() error { return reg(ops[1], RoleSrc1, def.Src1) },
		)
	case FormatI:
		if err := want(3); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleDest, def.Dest) },
			func() error { return reg(ops[1], RoleSrc1, def.Src1) },
			func() error { return imm(ops[2]) },
		)
	case FormatU:
		if err := want(2); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleDest, def.Dest) },
			func() error { return imm(ops[1]) },
		)
	case FormatB:
		if err := want(3); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleSrc1, def.Src1) },
			func() error { return reg(ops[1], RoleSrc2, def.Src2) },
			func() error { return imm(ops[2]) },
		)
	case FormatJ:
		if len(ops) == 1 {
			ops = []string{"ra", ops[0]}
		}
		if err := want(2); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleDest, def.Dest) },
			func() error { return imm(ops[1]) },
		)
	case FormatJR:
		switch len(ops) {
		case 1:
			ops = []string{"ra", ops[0], "0"}
		case 2:
			return run(
				func() error { return reg(ops[0], RoleDest, def.Dest) },
				func() error { return memory(ops[1]) },
			)
		}
		if err := want(3); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleDest, def.Dest) },
			func() error { return reg(ops[1], RoleSrc1, def.Src1) },
			func() error { return imm(ops[2]) },
		)
	case FormatLoad:
		if err := want(2); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleDest, def.Dest) },
			func() error { return memory(ops[1]) },
		)
	case FormatStore:
		if err := want(2); err != nil {
			return nil, err
		}
		return run(
			func() error { return reg(ops[0], RoleSrc2, def.Src2) },
			func() error { return memory(ops[1]) },
		)
	}
	return nil, syntaxErr(line, "unsupported format for %s", def.Name)
}

func (a *assembler) parseImmediate(s string, line int) (Arg, error) {
	if s == "" {
		return Arg{}, syntaxErr(line, "missing immediate")
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return Arg{Kind: ArgImmediate, Role: RoleImm, Imm: v}, nil
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return Arg{Kind: ArgImmediate, Role: RoleImm, Imm: int64(v)}, nil
	}
	if isIdent(s) {
		addr, ok := a.prog.Labels[s]
		if !ok {
			return Arg{}, syntaxErr(line, "undefined label %q", s)
		}
		return Arg{Kind: ArgLabel, Role: RoleImm, Imm: int64(addr), Label: s}, nil
	}
	return Arg{}, syntaxErr(line, "bad immediate %q", s)
}

func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && (i == 0 || line[i-1] != '\\'):
			inQuote = !inQuote
		case inQuote:
		case c == '#' || c == ';':
			return line[:i]
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

func splitLabel(line string) (name, rest string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return "", line, false
	}
	name = strings.TrimSpace(line[:colon])
	if !isIdent(name) {
		return "", line, false
	}
	return name, line[colon+1:], true
}

func splitMnemonic(line string) (string, string) {
	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return line, ""
	}
	return line[:idx], strings.TrimSpace(line[idx:])
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}
