package asm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"rvgen/pkg/cpu"
)

const (
	// TextBase is the load address of the text section. The data section
	// follows it, aligned to 16 bytes.
	TextBase uint32 = 0x1000
	// EntrySymbol is the label execution starts at when present.
	EntrySymbol = "program"
)

type section int

const (
	sectionText section = iota
	sectionData
)

var rTypeOps = map[string][2]uint32{
	"add":  {cpu.F3AddSub, 0},
	"sub":  {cpu.F3AddSub, cpu.F7Alt},
	"sll":  {cpu.F3Sll, 0},
	"slt":  {cpu.F3Slt, 0},
	"sltu": {cpu.F3Sltu, 0},
	"xor":  {cpu.F3Xor, 0},
	"srl":  {cpu.F3Srl, 0},
	"sra":  {cpu.F3Srl, cpu.F7Alt},
	"or":   {cpu.F3Or, 0},
	"and":  {cpu.F3And, 0},
}

var immOps = map[string]uint32{
	"addi":  cpu.F3AddSub,
	"slti":  cpu.F3Slt,
	"sltiu": cpu.F3Sltu,
	"xori":  cpu.F3Xor,
	"ori":   cpu.F3Or,
	"andi":  cpu.F3And,
}

var shiftOps = map[string][2]uint32{
	"slli": {cpu.F3Sll, 0},
	"srli": {cpu.F3Srl, 0},
	"srai": {cpu.F3Srl, cpu.F7Alt},
}

var loadOps = map[string]uint32{
	"lb":  cpu.F3Lb,
	"lh":  cpu.F3Lh,
	"lw":  cpu.F3Lw,
	"lbu": cpu.F3Lbu,
	"lhu": cpu.F3Lhu,
}

var storeOps = map[string]uint32{
	"sb": cpu.F3Sb,
	"sh": cpu.F3Sh,
	"sw": cpu.F3Sw,
}

var branchOps = map[string]uint32{
	"beq":  cpu.F3Beq,
	"bne":  cpu.F3Bne,
	"blt":  cpu.F3Blt,
	"bge":  cpu.F3Bge,
	"bltu": cpu.F3Bltu,
	"bgeu": cpu.F3Bgeu,
}

// swappedBranchOps are pseudo branches encoded as a base branch with the
// operands exchanged.
var swappedBranchOps = map[string]uint32{
	"bgt":  cpu.F3Blt,
	"ble":  cpu.F3Bge,
	"bgtu": cpu.F3Bltu,
	"bleu": cpu.F3Bgeu,
}

var zeroBranchOps = map[string]uint32{
	"beqz": cpu.F3Beq,
	"bnez": cpu.F3Bne,
}

// Program is an assembled, loadable image.
type Program struct {
	Text     []byte
	Data     []byte
	TextBase uint32
	DataBase uint32
	Entry    uint32
	// Symbols maps every label to its absolute address.
	Symbols map[string]uint32
	// SourceMap maps the address of each emitted item to its source line.
	SourceMap map[uint32]int
}

// Load copies both sections into c and points it at the entry.
func (p *Program) Load(c *cpu.CPU) error {
	if err := c.LoadSegment(p.TextBase, p.Text); err != nil {
		return fmt.Errorf("load text: %w", err)
	}
	if err := c.LoadSegment(p.DataBase, p.Data); err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	c.Reset(p.Entry)
	return nil
}

type symbol struct {
	sec section
	off uint32
}

type Assembler struct {
	labels map[string]symbol
	size   [2]uint32
	base   [2]uint32
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]symbol),
	}
}

func Assemble(code string) (*Program, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Program, error) {
	raw := strings.Split(code, "\n")
	lines := make([]parsedLine, 0, len(raw))
	for i, r := range raw {
		p, err := parseLine(r, i+1)
		if err != nil {
			return nil, err
		}
		lines = append(lines, p)
	}

	if err := a.pass1(lines); err != nil {
		return nil, err
	}
	a.base[sectionText] = TextBase
	a.base[sectionData] = alignUp(TextBase+a.size[sectionText], 16)

	return a.pass2(lines)
}

func (a *Assembler) pass1(lines []parsedLine) error {
	sec := sectionText
	for _, p := range lines {
		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, p.lineNo)
			}
			a.labels[lbl] = symbol{sec: sec, off: a.size[sec]}
		}

		if p.mnemonic == "" {
			continue
		}
		if s, ok := sectionSwitch(p); ok {
			sec = s
			continue
		}

		var length uint32
		var err error
		if strings.HasPrefix(p.mnemonic, ".") {
			length, err = directiveLength(p, a.size[sec])
		} else {
			length, err = instructionLength(p)
		}
		if err != nil {
			return err
		}
		a.size[sec] += length
	}
	return nil
}

func (a *Assembler) pass2(lines []parsedLine) (*Program, error) {
	var out [2][]byte
	sourceMap := make(map[uint32]int)
	sec := sectionText

	for _, p := range lines {
		if p.mnemonic == "" {
			continue
		}
		if s, ok := sectionSwitch(p); ok {
			sec = s
			continue
		}

		addr := a.base[sec] + uint32(len(out[sec]))
		var err error
		before := len(out[sec])
		if strings.HasPrefix(p.mnemonic, ".") {
			out[sec], err = a.emitDirective(out[sec], p)
		} else {
			var words []uint32
			words, err = a.encode(p, addr)
			for _, w := range words {
				out[sec] = binary.LittleEndian.AppendUint32(out[sec], w)
			}
		}
		if err != nil {
			return nil, err
		}
		if len(out[sec]) > before {
			sourceMap[addr] = p.lineNo
		}
	}

	prog := &Program{
		Text:      out[sectionText],
		Data:      out[sectionData],
		TextBase:  a.base[sectionText],
		DataBase:  a.base[sectionData],
		Entry:     a.base[sectionText],
		Symbols:   make(map[string]uint32, len(a.labels)),
		SourceMap: sourceMap,
	}
	for name := range a.labels {
		prog.Symbols[name], _ = a.resolve(name)
	}
	if entry, ok := prog.Symbols[EntrySymbol]; ok {
		prog.Entry = entry
	}
	return prog, nil
}

func (a *Assembler) resolve(name string) (uint32, bool) {
	s, ok := a.labels[name]
	if !ok {
		return 0, false
	}
	return a.base[s.sec] + s.off, true
}

func sectionSwitch(p parsedLine) (section, bool) {
	switch p.mnemonic {
	case ".text":
		return sectionText, true
	case ".data", ".rodata", ".bss":
		return sectionData, true
	case ".section":
		if len(p.operands) == 1 && strings.HasPrefix(p.operands[0], ".text") {
			return sectionText, true
		}
		return sectionData, true
	}
	return 0, false
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// instructionLength returns the byte length of an instruction. Pseudo
// instructions that may need a 32-bit value always take two words.
func instructionLength(p parsedLine) (uint32, error) {
	m := p.mnemonic
	if m == "li" || m == "la" {
		return 8, nil
	}
	if _, ok := loadOps[m]; ok {
		if len(p.operands) == 2 && !strings.Contains(p.operands[1], "(") {
			return 8, nil
		}
		return 4, nil
	}
	if _, ok := storeOps[m]; ok {
		if len(p.operands) == 3 {
			return 8, nil
		}
		return 4, nil
	}
	if !isInstruction(m) {
		return 0, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, m)
	}
	return 4, nil
}

func isInstruction(m string) bool {
	switch m {
	case "ecall", "nop", "ret", "jal", "jalr", "j", "b", "jr", "call",
		"lui", "auipc", "mv", "not", "neg":
		return true
	}
	if _, ok := rTypeOps[m]; ok {
		return true
	}
	if _, ok := immOps[m]; ok {
		return true
	}
	if _, ok := shiftOps[m]; ok {
		return true
	}
	if _, ok := branchOps[m]; ok {
		return true
	}
	if _, ok := swappedBranchOps[m]; ok {
		return true
	}
	_, ok := zeroBranchOps[m]
	return ok
}

func directiveLength(p parsedLine, offset uint32) (uint32, error) {
	switch p.mnemonic {
	case ".word":
		if len(p.operands) == 0 {
			return 0, fmt.Errorf(".word expects at least one operand on line %d", p.lineNo)
		}
		return uint32(4 * len(p.operands)), nil
	case ".space", ".zero":
		n, err := spaceSize(p)
		return n, err
	case ".string", ".asciz", ".ascii":
		s, err := stringOperand(p)
		if err != nil {
			return 0, err
		}
		if p.mnemonic == ".ascii" {
			return uint32(len(s)), nil
		}
		return uint32(len(s) + 1), nil
	case ".align", ".p2align":
		n, err := alignment(p)
		if err != nil {
			return 0, err
		}
		return alignUp(offset, n) - offset, nil
	case ".globl", ".global", ".type", ".size", ".file":
		return 0, nil
	}
	return 0, fmt.Errorf("unknown directive on line %d: %s", p.lineNo, p.mnemonic)
}

func (a *Assembler) emitDirective(buf []byte, p parsedLine) ([]byte, error) {
	switch p.mnemonic {
	case ".word":
		for _, op := range p.operands {
			v, err := a.parseValue(op, p.lineNo)
			if err != nil {
				return buf, err
			}
			if v < -1<<31 || v > 1<<32-1 {
				return buf, fmt.Errorf("word out of range on line %d: %s", p.lineNo, op)
			}
			buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
		}
	case ".space", ".zero":
		n, err := spaceSize(p)
		if err != nil {
			return buf, err
		}
		buf = append(buf, make([]byte, n)...)
	case ".string", ".asciz", ".ascii":
		s, err := stringOperand(p)
		if err != nil {
			return buf, err
		}
		buf = append(buf, s...)
		if p.mnemonic != ".ascii" {
			buf = append(buf, 0)
		}
	case ".align", ".p2align":
		n, err := alignment(p)
		if err != nil {
			return buf, err
		}
		off := uint32(len(buf))
		buf = append(buf, make([]byte, alignUp(off, n)-off)...)
	}
	return buf, nil
}

func spaceSize(p parsedLine) (uint32, error) {
	if len(p.operands) != 1 {
		return 0, fmt.Errorf("%s expects exactly one operand on line %d", p.mnemonic, p.lineNo)
	}
	n, ok := parseNumber(p.operands[0])
	if !ok || n < 0 || n > 1<<24 {
		return 0, fmt.Errorf("invalid %s size on line %d: %s", p.mnemonic, p.lineNo, p.operands[0])
	}
	return uint32(n), nil
}

// alignment returns the byte alignment of a power-of-two .align operand.
func alignment(p parsedLine) (uint32, error) {
	if len(p.operands) != 1 {
		return 0, fmt.Errorf("%s expects exactly one operand on line %d", p.mnemonic, p.lineNo)
	}
	n, ok := parseNumber(p.operands[0])
	if !ok || n < 0 || n > 12 {
		return 0, fmt.Errorf("invalid alignment on line %d: %s", p.lineNo, p.operands[0])
	}
	return 1 << n, nil
}

func stringOperand(p parsedLine) ([]byte, error) {
	if len(p.operands) != 1 {
		return nil, fmt.Errorf("%s expects exactly one string operand on line %d", p.mnemonic, p.lineNo)
	}
	s, err := parseStringLiteral(p.operands[0])
	if err != nil {
		return nil, fmt.Errorf("invalid string literal on line %d: %w", p.lineNo, err)
	}
	return s, nil
}
