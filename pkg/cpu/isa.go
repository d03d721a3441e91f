package cpu

// RV32I major opcodes.
const (
	OpLUI    uint32 = 0x37
	OpAUIPC  uint32 = 0x17
	OpJAL    uint32 = 0x6F
	OpJALR   uint32 = 0x67
	OpBranch uint32 = 0x63
	OpLoad   uint32 = 0x03
	OpStore  uint32 = 0x23
	OpImm    uint32 = 0x13
	OpReg    uint32 = 0x33
	OpSystem uint32 = 0x73
)

// funct3 values.
const (
	F3Beq  uint32 = 0
	F3Bne  uint32 = 1
	F3Blt  uint32 = 4
	F3Bge  uint32 = 5
	F3Bltu uint32 = 6
	F3Bgeu uint32 = 7

	F3Lb  uint32 = 0
	F3Lh  uint32 = 1
	F3Lw  uint32 = 2
	F3Lbu uint32 = 4
	F3Lhu uint32 = 5

	F3Sb uint32 = 0
	F3Sh uint32 = 1
	F3Sw uint32 = 2

	F3AddSub uint32 = 0
	F3Sll    uint32 = 1
	F3Slt    uint32 = 2
	F3Sltu   uint32 = 3
	F3Xor    uint32 = 4
	F3Srl    uint32 = 5
	F3Or     uint32 = 6
	F3And    uint32 = 7
)

// F7Alt selects sub and sra.
const F7Alt uint32 = 0x20

// Register numbers of the ABI names the generator uses.
const (
	RegZero uint32 = 0
	RegRA   uint32 = 1
	RegSP   uint32 = 2
	RegT0   uint32 = 5
	RegT1   uint32 = 6
	RegFP   uint32 = 8
	RegA0   uint32 = 10
	RegA7   uint32 = 17
)

// InstrECALL is the encoding of ecall.
const InstrECALL uint32 = OpSystem

var regNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegName returns the ABI name of register r.
func RegName(r uint32) string {
	if r < 32 {
		return regNames[r]
	}
	return "?"
}

// RegNumber resolves an ABI name ("a0", "fp", "s0") or a numeric name
// ("x10").
func RegNumber(name string) (uint32, bool) {
	if name == "s0" {
		return RegFP, true
	}
	for i, n := range regNames {
		if n == name {
			return uint32(i), true
		}
	}
	if len(name) >= 2 && name[0] == 'x' {
		var n uint32
		for _, r := range name[1:] {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + uint32(r-'0')
			if n > 31 {
				return 0, false
			}
		}
		return n, true
	}
	return 0, false
}

func EncodeR(op, rd, f3, rs1, rs2, f7 uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func EncodeI(op, rd, f3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20 | rs1<<15 | f3<<12 | rd<<7 | op
}

func EncodeS(f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7F)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (u&0x1F)<<7 | OpStore
}

func EncodeB(f3, rs1, rs2 uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12&1)<<31 | (u>>5&0x3F)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (u>>1&0xF)<<8 | (u>>11&1)<<7 | OpBranch
}

// EncodeU takes the upper 20 bits already shifted down.
func EncodeU(op, rd, imm20 uint32) uint32 {
	return (imm20&0xFFFFF)<<12 | rd<<7 | op
}

func EncodeJ(rd uint32, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20&1)<<31 | (u>>1&0x3FF)<<21 | (u>>11&1)<<20 | (u>>12&0xFF)<<12 | rd<<7 | OpJAL
}

// SplitImm32 splits v into the lui/auipc upper part and the sign-extended
// low 12 bits added after it, so that hi<<12 + lo == v.
func SplitImm32(v uint32) (hi uint32, lo int32) {
	lo = int32(v<<20) >> 20
	hi = (v - uint32(lo)) >> 12
	return hi & 0xFFFFF, lo
}

func immI(in uint32) int32 { return int32(in) >> 20 }

func immS(in uint32) int32 {
	return (int32(in)>>25)<<5 | int32(in>>7&0x1F)
}

func immB(in uint32) int32 {
	return (int32(in)>>31)<<12 | int32(in>>7&1)<<11 | int32(in>>25&0x3F)<<5 | int32(in>>8&0xF)<<1
}

func immJ(in uint32) int32 {
	return (int32(in)>>31)<<20 | int32(in>>12&0xFF)<<12 | int32(in>>20&1)<<11 | int32(in>>21&0x3FF)<<1
}
