package cpu

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultMemorySize is the memory of a CPU created with size 0.
const DefaultMemorySize = 1 << 20

// Environment call numbers (value of a7).
const (
	SysPrintInt    uint32 = 1
	SysPrintString uint32 = 4
	SysReadInt     uint32 = 5
	SysExit        uint32 = 10
	SysPrintChar   uint32 = 11
	SysExit2       uint32 = 93
)

var (
	// ErrStepLimit is returned by Run when the program is still going
	// after the step budget.
	ErrStepLimit = errors.New("step limit reached")
	// ErrHalted is returned by Step on a halted CPU.
	ErrHalted = errors.New("cpu halted")
)

// CPU is an RV32I machine with a flat little-endian memory.
type CPU struct {
	Regs [32]uint32
	PC   uint32

	Memory []byte

	Halted   bool
	ExitCode int32
	Steps    uint64

	// Output receives the print services. If nil, os.Stdout is used.
	Output io.Writer
	// Input feeds the read-int service. If nil, os.Stdin is used.
	Input io.Reader

	in *bufio.Reader
}

// NewCPU creates a CPU with memSize bytes of memory (DefaultMemorySize if
// memSize is 0). The stack pointer starts at the top of memory.
func NewCPU(memSize int) *CPU {
	if memSize <= 0 {
		memSize = DefaultMemorySize
	}
	c := &CPU{Memory: make([]byte, memSize)}
	c.Reset(0)
	return c
}

// Reset clears registers and state and starts execution at entry. Memory
// is left as is.
func (c *CPU) Reset(entry uint32) {
	c.Regs = [32]uint32{}
	c.Regs[RegSP] = uint32(len(c.Memory)) &^ 0xF
	c.PC = entry
	c.Halted = false
	c.ExitCode = 0
	c.Steps = 0
	c.in = nil
}

// LoadSegment copies b into memory at addr.
func (c *CPU) LoadSegment(addr uint32, b []byte) error {
	if uint64(addr)+uint64(len(b)) > uint64(len(c.Memory)) {
		return fmt.Errorf("segment at 0x%08X (%d bytes) does not fit in %d bytes of memory", addr, len(b), len(c.Memory))
	}
	copy(c.Memory[addr:], b)
	return nil
}

func (c *CPU) outputSink() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

func (c *CPU) inputSource() *bufio.Reader {
	if c.in == nil {
		if c.Input != nil {
			c.in = bufio.NewReader(c.Input)
		} else {
			c.in = bufio.NewReader(os.Stdin)
		}
	}
	return c.in
}

// Reg returns the value of the register with the given ABI name.
func (c *CPU) Reg(name string) uint32 {
	r, ok := RegNumber(name)
	if !ok {
		return 0
	}
	return c.Regs[r]
}

func (c *CPU) check(addr uint32, size uint32) error {
	if addr%size != 0 {
		return fmt.Errorf("misaligned %d-byte access at 0x%08X (pc=0x%08X)", size, addr, c.PC)
	}
	if uint64(addr)+uint64(size) > uint64(len(c.Memory)) {
		return fmt.Errorf("access at 0x%08X outside memory (pc=0x%08X)", addr, c.PC)
	}
	return nil
}

// Read32 reads a little-endian word.
func (c *CPU) Read32(addr uint32) (uint32, error) {
	if err := c.check(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(c.Memory[addr:]), nil
}

// Write32 writes a little-endian word.
func (c *CPU) Write32(addr uint32, val uint32) error {
	if err := c.check(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(c.Memory[addr:], val)
	return nil
}

// ReadStringFromRAM reads a NUL-terminated string starting at ptr.
func (c *CPU) ReadStringFromRAM(ptr uint32) (string, error) {
	end := ptr
	for {
		if uint64(end) >= uint64(len(c.Memory)) {
			return "", fmt.Errorf("unterminated string at 0x%08X", ptr)
		}
		if c.Memory[end] == 0 {
			return string(c.Memory[ptr:end]), nil
		}
		end++
	}
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return ErrHalted
	}
	instr, err := c.Read32(c.PC)
	if err != nil {
		c.Halted = true
		return fmt.Errorf("fetch: %w", err)
	}
	next := c.PC + 4
	if err := c.execute(instr, &next); err != nil {
		c.Halted = true
		return err
	}
	c.Regs[RegZero] = 0
	c.PC = next
	c.Steps++
	return nil
}

func (c *CPU) execute(in uint32, next *uint32) error {
	op := in & 0x7F
	rd := in >> 7 & 0x1F
	f3 := in >> 12 & 0x7
	rs1 := in >> 15 & 0x1F
	rs2 := in >> 20 & 0x1F
	f7 := in >> 25

	switch op {
	case OpLUI:
		c.Regs[rd] = in & 0xFFFFF000

	case OpAUIPC:
		c.Regs[rd] = c.PC + in&0xFFFFF000

	case OpJAL:
		c.Regs[rd] = c.PC + 4
		*next = c.PC + uint32(immJ(in))

	case OpJALR:
		target := (c.Regs[rs1] + uint32(immI(in))) &^ 1
		c.Regs[rd] = c.PC + 4
		*next = target

	case OpBranch:
		a, b := c.Regs[rs1], c.Regs[rs2]
		var taken bool
		switch f3 {
		case F3Beq:
			taken = a == b
		case F3Bne:
			taken = a != b
		case F3Blt:
			taken = int32(a) < int32(b)
		case F3Bge:
			taken = int32(a) >= int32(b)
		case F3Bltu:
			taken = a < b
		case F3Bgeu:
			taken = a >= b
		default:
			return c.illegal(in)
		}
		if taken {
			*next = c.PC + uint32(immB(in))
		}

	case OpLoad:
		addr := c.Regs[rs1] + uint32(immI(in))
		switch f3 {
		case F3Lw:
			v, err := c.Read32(addr)
			if err != nil {
				return err
			}
			c.Regs[rd] = v
		case F3Lh, F3Lhu:
			if err := c.check(addr, 2); err != nil {
				return err
			}
			v := binary.LittleEndian.Uint16(c.Memory[addr:])
			if f3 == F3Lh {
				c.Regs[rd] = uint32(int32(int16(v)))
			} else {
				c.Regs[rd] = uint32(v)
			}
		case F3Lb, F3Lbu:
			if err := c.check(addr, 1); err != nil {
				return err
			}
			v := c.Memory[addr]
			if f3 == F3Lb {
				c.Regs[rd] = uint32(int32(int8(v)))
			} else {
				c.Regs[rd] = uint32(v)
			}
		default:
			return c.illegal(in)
		}

	case OpStore:
		addr := c.Regs[rs1] + uint32(immS(in))
		switch f3 {
		case F3Sw:
			return c.Write32(addr, c.Regs[rs2])
		case F3Sh:
			if err := c.check(addr, 2); err != nil {
				return err
			}
			binary.LittleEndian.PutUint16(c.Memory[addr:], uint16(c.Regs[rs2]))
		case F3Sb:
			if err := c.check(addr, 1); err != nil {
				return err
			}
			c.Memory[addr] = byte(c.Regs[rs2])
		default:
			return c.illegal(in)
		}

	case OpImm:
		a := c.Regs[rs1]
		imm := immI(in)
		switch f3 {
		case F3AddSub:
			c.Regs[rd] = a + uint32(imm)
		case F3Sll:
			c.Regs[rd] = a << (uint32(imm) & 0x1F)
		case F3Slt:
			c.Regs[rd] = boolWord(int32(a) < imm)
		case F3Sltu:
			c.Regs[rd] = boolWord(a < uint32(imm))
		case F3Xor:
			c.Regs[rd] = a ^ uint32(imm)
		case F3Srl:
			if f7 == F7Alt {
				c.Regs[rd] = uint32(int32(a) >> (uint32(imm) & 0x1F))
			} else {
				c.Regs[rd] = a >> (uint32(imm) & 0x1F)
			}
		case F3Or:
			c.Regs[rd] = a | uint32(imm)
		case F3And:
			c.Regs[rd] = a & uint32(imm)
		}

	case OpReg:
		a, b := c.Regs[rs1], c.Regs[rs2]
		switch f3 {
		case F3AddSub:
			if f7 == F7Alt {
				c.Regs[rd] = a - b
			} else {
				c.Regs[rd] = a + b
			}
		case F3Sll:
			c.Regs[rd] = a << (b & 0x1F)
		case F3Slt:
			c.Regs[rd] = boolWord(int32(a) < int32(b))
		case F3Sltu:
			c.Regs[rd] = boolWord(a < b)
		case F3Xor:
			c.Regs[rd] = a ^ b
		case F3Srl:
			if f7 == F7Alt {
				c.Regs[rd] = uint32(int32(a) >> (b & 0x1F))
			} else {
				c.Regs[rd] = a >> (b & 0x1F)
			}
		case F3Or:
			c.Regs[rd] = a | b
		case F3And:
			c.Regs[rd] = a & b
		}

	case OpSystem:
		if in != InstrECALL {
			return c.illegal(in)
		}
		return c.ecall()

	default:
		return c.illegal(in)
	}
	return nil
}

func (c *CPU) illegal(in uint32) error {
	return fmt.Errorf("illegal instruction 0x%08X at pc=0x%08X", in, c.PC)
}

func (c *CPU) ecall() error {
	a0 := c.Regs[RegA0]
	switch c.Regs[RegA7] {
	case SysPrintInt:
		_, err := fmt.Fprint(c.outputSink(), int32(a0))
		return err
	case SysPrintString:
		s, err := c.ReadStringFromRAM(a0)
		if err != nil {
			return err
		}
		_, err = io.WriteString(c.outputSink(), s)
		return err
	case SysPrintChar:
		_, err := c.outputSink().Write([]byte{byte(a0)})
		return err
	case SysReadInt:
		var v int32
		if _, err := fmt.Fscan(c.inputSource(), &v); err != nil {
			return fmt.Errorf("read int: %w", err)
		}
		c.Regs[RegA0] = uint32(v)
	case SysExit:
		c.Halted = true
	case SysExit2:
		c.Halted = true
		c.ExitCode = int32(a0)
	default:
		return fmt.Errorf("unknown environment call %d at pc=0x%08X", c.Regs[RegA7], c.PC)
	}
	return nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Run steps until the program exits. With maxSteps > 0 it gives up with
// ErrStepLimit after that many instructions.
func (c *CPU) Run(maxSteps uint64) error {
	for !c.Halted {
		if maxSteps > 0 && c.Steps >= maxSteps {
			return ErrStepLimit
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}
