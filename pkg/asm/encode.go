package asm

import (
	"fmt"
	"strings"

	"rvgen/pkg/cpu"
)

// encode turns one instruction line at address pc into machine words.
func (a *Assembler) encode(p parsedLine, pc uint32) ([]uint32, error) {
	m, ops, lineNo := p.mnemonic, p.operands, p.lineNo

	switch m {
	case "ecall":
		if err := expectOperands(p, 0); err != nil {
			return nil, err
		}
		return []uint32{cpu.InstrECALL}, nil

	case "nop":
		if err := expectOperands(p, 0); err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpImm, 0, cpu.F3AddSub, 0, 0)}, nil

	case "ret":
		if err := expectOperands(p, 0); err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpJALR, cpu.RegZero, 0, cpu.RegRA, 0)}, nil

	case "mv", "not", "neg":
		if err := expectOperands(p, 2); err != nil {
			return nil, err
		}
		rd, rs, err := twoRegisters(ops, lineNo)
		if err != nil {
			return nil, err
		}
		switch m {
		case "mv":
			return []uint32{cpu.EncodeI(cpu.OpImm, rd, cpu.F3AddSub, rs, 0)}, nil
		case "not":
			return []uint32{cpu.EncodeI(cpu.OpImm, rd, cpu.F3Xor, rs, -1)}, nil
		default:
			return []uint32{cpu.EncodeR(cpu.OpReg, rd, cpu.F3AddSub, cpu.RegZero, rs, cpu.F7Alt)}, nil
		}

	case "li":
		if err := expectOperands(p, 2); err != nil {
			return nil, err
		}
		rd, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		v, err := a.parseValue(ops[1], lineNo)
		if err != nil {
			return nil, err
		}
		if v < -1<<31 || v > 1<<32-1 {
			return nil, fmt.Errorf("immediate out of range on line %d: %s", lineNo, ops[1])
		}
		hi, lo := cpu.SplitImm32(uint32(v))
		return []uint32{
			cpu.EncodeU(cpu.OpLUI, rd, hi),
			cpu.EncodeI(cpu.OpImm, rd, cpu.F3AddSub, rd, lo),
		}, nil

	case "la":
		if err := expectOperands(p, 2); err != nil {
			return nil, err
		}
		rd, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		hi, lo, err := a.pcRelative(ops[1], pc, lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{
			cpu.EncodeU(cpu.OpAUIPC, rd, hi),
			cpu.EncodeI(cpu.OpImm, rd, cpu.F3AddSub, rd, lo),
		}, nil

	case "lui", "auipc":
		if err := expectOperands(p, 2); err != nil {
			return nil, err
		}
		rd, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		v, err := a.parseValue(ops[1], lineNo)
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 0xFFFFF {
			return nil, fmt.Errorf("immediate out of range on line %d: %s", lineNo, ops[1])
		}
		op := cpu.OpLUI
		if m == "auipc" {
			op = cpu.OpAUIPC
		}
		return []uint32{cpu.EncodeU(op, rd, uint32(v))}, nil

	case "jal", "call", "j", "b":
		rd := cpu.RegRA
		target := ""
		switch {
		case (m == "j" || m == "b") && len(ops) == 1:
			rd, target = cpu.RegZero, ops[0]
		case (m == "jal" || m == "call") && len(ops) == 1:
			target = ops[0]
		case m == "jal" && len(ops) == 2:
			r, err := parseRegister(ops[0], lineNo)
			if err != nil {
				return nil, err
			}
			rd, target = r, ops[1]
		default:
			return nil, fmt.Errorf("%s has wrong number of operands on line %d", m, lineNo)
		}
		off, err := a.branchOffset(target, pc, 1<<20, lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeJ(rd, off)}, nil

	case "jr":
		if err := expectOperands(p, 1); err != nil {
			return nil, err
		}
		rs, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpJALR, cpu.RegZero, 0, rs, 0)}, nil

	case "jalr":
		return a.encodeJALR(p)
	}

	if f, ok := rTypeOps[m]; ok {
		if err := expectOperands(p, 3); err != nil {
			return nil, err
		}
		rd, rs1, rs2, err := threeRegisters(ops, lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeR(cpu.OpReg, rd, f[0], rs1, rs2, f[1])}, nil
	}

	if f3, ok := immOps[m]; ok {
		if err := expectOperands(p, 3); err != nil {
			return nil, err
		}
		rd, rs, err := twoRegisters(ops, lineNo)
		if err != nil {
			return nil, err
		}
		imm, err := a.parseImm12(ops[2], lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpImm, rd, f3, rs, imm)}, nil
	}

	if f, ok := shiftOps[m]; ok {
		if err := expectOperands(p, 3); err != nil {
			return nil, err
		}
		rd, rs, err := twoRegisters(ops, lineNo)
		if err != nil {
			return nil, err
		}
		sh, ok := parseNumber(ops[2])
		if !ok || sh < 0 || sh > 31 {
			return nil, fmt.Errorf("invalid shift amount on line %d: %s", lineNo, ops[2])
		}
		return []uint32{cpu.EncodeI(cpu.OpImm, rd, f[0], rs, int32(f[1]<<5)|int32(sh))}, nil
	}

	if f3, ok := loadOps[m]; ok {
		if err := expectOperands(p, 2); err != nil {
			return nil, err
		}
		rd, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(ops[1], "(") {
			hi, lo, err := a.pcRelative(ops[1], pc, lineNo)
			if err != nil {
				return nil, err
			}
			return []uint32{
				cpu.EncodeU(cpu.OpAUIPC, rd, hi),
				cpu.EncodeI(cpu.OpLoad, rd, f3, rd, lo),
			}, nil
		}
		off, base, err := a.parseMemory(ops[1], lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpLoad, rd, f3, base, off)}, nil
	}

	if f3, ok := storeOps[m]; ok {
		rs, err := parseRegister(firstOr(ops), lineNo)
		if err != nil {
			return nil, err
		}
		switch len(ops) {
		case 2:
			off, base, err := a.parseMemory(ops[1], lineNo)
			if err != nil {
				return nil, err
			}
			return []uint32{cpu.EncodeS(f3, base, rs, off)}, nil
		case 3:
			tmp, err := parseRegister(ops[2], lineNo)
			if err != nil {
				return nil, err
			}
			hi, lo, err := a.pcRelative(ops[1], pc, lineNo)
			if err != nil {
				return nil, err
			}
			return []uint32{
				cpu.EncodeU(cpu.OpAUIPC, tmp, hi),
				cpu.EncodeS(f3, tmp, rs, lo),
			}, nil
		}
		return nil, fmt.Errorf("%s expects 2 or 3 operands on line %d", m, lineNo)
	}

	if f3, ok := branchOps[m]; ok {
		return a.encodeBranch(p, pc, f3, false)
	}
	if f3, ok := swappedBranchOps[m]; ok {
		return a.encodeBranch(p, pc, f3, true)
	}
	if f3, ok := zeroBranchOps[m]; ok {
		if err := expectOperands(p, 2); err != nil {
			return nil, err
		}
		rs, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		off, err := a.branchOffset(ops[1], pc, 1<<12, lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeB(f3, rs, cpu.RegZero, off)}, nil
	}

	return nil, fmt.Errorf("unknown instruction on line %d: %s", lineNo, m)
}

func (a *Assembler) encodeBranch(p parsedLine, pc, f3 uint32, swap bool) ([]uint32, error) {
	if err := expectOperands(p, 3); err != nil {
		return nil, err
	}
	rs1, rs2, err := twoRegisters(p.operands, p.lineNo)
	if err != nil {
		return nil, err
	}
	if swap {
		rs1, rs2 = rs2, rs1
	}
	off, err := a.branchOffset(p.operands[2], pc, 1<<12, p.lineNo)
	if err != nil {
		return nil, err
	}
	return []uint32{cpu.EncodeB(f3, rs1, rs2, off)}, nil
}

// encodeJALR accepts "jalr rs", "jalr rd, off(rs)" and "jalr rd, rs, off".
func (a *Assembler) encodeJALR(p parsedLine) ([]uint32, error) {
	ops, lineNo := p.operands, p.lineNo
	switch len(ops) {
	case 1:
		rs, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpJALR, cpu.RegRA, 0, rs, 0)}, nil
	case 2:
		rd, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return nil, err
		}
		off, rs, err := a.parseMemory(ops[1], lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpJALR, rd, 0, rs, off)}, nil
	case 3:
		rd, rs, err := twoRegisters(ops, lineNo)
		if err != nil {
			return nil, err
		}
		off, err := a.parseImm12(ops[2], lineNo)
		if err != nil {
			return nil, err
		}
		return []uint32{cpu.EncodeI(cpu.OpJALR, rd, 0, rs, off)}, nil
	}
	return nil, fmt.Errorf("jalr expects 1 to 3 operands on line %d", lineNo)
}

// pcRelative splits the distance from pc to the address of token into an
// auipc part and a 12-bit low part.
func (a *Assembler) pcRelative(token string, pc uint32, lineNo int) (uint32, int32, error) {
	v, err := a.parseValue(token, lineNo)
	if err != nil {
		return 0, 0, err
	}
	hi, lo := cpu.SplitImm32(uint32(v) - pc)
	return hi, lo, nil
}

// branchOffset returns the pc-relative offset to label, which must lie
// within ±limit bytes.
func (a *Assembler) branchOffset(label string, pc uint32, limit int64, lineNo int) (int32, error) {
	target, ok := a.resolve(label)
	if !ok {
		if isIdentifier(label) {
			return 0, fmt.Errorf("undefined label '%s' on line %d", label, lineNo)
		}
		return 0, fmt.Errorf("invalid branch target '%s' on line %d", label, lineNo)
	}
	off := int64(target) - int64(pc)
	if off < -limit || off >= limit {
		return 0, fmt.Errorf("branch target '%s' out of range on line %d", label, lineNo)
	}
	return int32(off), nil
}

func expectOperands(p parsedLine, n int) error {
	if len(p.operands) != n {
		return fmt.Errorf("%s expects %d operands on line %d", p.mnemonic, n, p.lineNo)
	}
	return nil
}

func firstOr(ops []string) string {
	if len(ops) == 0 {
		return ""
	}
	return ops[0]
}

func twoRegisters(ops []string, lineNo int) (uint32, uint32, error) {
	r1, err := parseRegister(ops[0], lineNo)
	if err != nil {
		return 0, 0, err
	}
	r2, err := parseRegister(ops[1], lineNo)
	if err != nil {
		return 0, 0, err
	}
	return r1, r2, nil
}

func threeRegisters(ops []string, lineNo int) (uint32, uint32, uint32, error) {
	r1, r2, err := twoRegisters(ops, lineNo)
	if err != nil {
		return 0, 0, 0, err
	}
	r3, err := parseRegister(ops[2], lineNo)
	if err != nil {
		return 0, 0, 0, err
	}
	return r1, r2, r3, nil
}
