package arch

import "sort"

// Register table for linux/amd64.
//
// GDB and LLDB number the general purpose registers differently (most
// visibly, rsi and rdi are swapped) and disagree on the name of the flags
// register. Both numberings index into the same backing store.

func gpReg(name, generic string, gdb, lldb, dwarf int) *RegisterDef {
	typ := "int64"
	switch generic {
	case "pc":
		typ = "code_ptr"
	case "sp", "fp":
		typ = "data_ptr"
	}
	return &RegisterDef{
		Name:                name,
		GenericName:         generic,
		BitSize:             64,
		GCCRegisterNumber:   dwarf,
		DWARFRegisterNumber: dwarf,
		GDBRegisterNumber:   gdb,
		LLDBRegisterNumber:  lldb,
		Encoding:            EncodingUInteger,
		Format:              FormatHexadecimal,
		GDBGroup:            "general",
		GDBType:             typ,
	}
}

func segReg(name string, gdb, dwarf int) *RegisterDef {
	return &RegisterDef{
		Name:                name,
		BitSize:             32,
		GCCRegisterNumber:   dwarf,
		DWARFRegisterNumber: dwarf,
		GDBRegisterNumber:   gdb,
		LLDBRegisterNumber:  gdb,
		Encoding:            EncodingUInteger,
		Format:              FormatHexadecimal,
		GDBGroup:            "general",
		GDBType:             "int32",
	}
}

func stReg(name string, gdb, dwarf int) *RegisterDef {
	return &RegisterDef{
		Name:                name,
		BitSize:             80,
		GCCRegisterNumber:   dwarf,
		DWARFRegisterNumber: dwarf,
		GDBRegisterNumber:   gdb,
		LLDBRegisterNumber:  gdb,
		Encoding:            EncodingIEEEExtended,
		Format:              FormatFloat,
		GDBGroup:            "float",
		GDBType:             "i387_ext",
	}
}

func fpuReg(name string, gdb, dwarf int) *RegisterDef {
	return &RegisterDef{
		Name:                name,
		BitSize:             32,
		GCCRegisterNumber:   dwarf,
		DWARFRegisterNumber: dwarf,
		GDBRegisterNumber:   gdb,
		LLDBRegisterNumber:  gdb,
		Encoding:            EncodingUInteger,
		Format:              FormatHexadecimal,
		GDBGroup:            "float",
		GDBType:             "int32",
	}
}

func xmmReg(name string, gdb, dwarf int) *RegisterDef {
	return &RegisterDef{
		Name:                name,
		BitSize:             128,
		GCCRegisterNumber:   dwarf,
		DWARFRegisterNumber: dwarf,
		GDBRegisterNumber:   gdb,
		LLDBRegisterNumber:  gdb,
		Format:              FormatVector,
		LLDBVectorFormat:    VectorFormatUInt8,
		GDBGroup:            "vector",
		GDBType:             "vec128",
	}
}

var (
	amd64RAX = gpReg("rax", "", 0, 0, 0)
	amd64RBX = gpReg("rbx", "", 1, 1, 3)
	amd64RCX = gpReg("rcx", "arg4", 2, 2, 2)
	amd64RDX = gpReg("rdx", "arg3", 3, 3, 1)
	amd64RSI = gpReg("rsi", "arg2", 4, 5, 4)
	amd64RDI = gpReg("rdi", "arg1", 5, 4, 5)
	amd64RBP = gpReg("rbp", "fp", 6, 6, 6)
	amd64RSP = gpReg("rsp", "sp", 7, 7, 7)
	amd64R8  = gpReg("r8", "arg5", 8, 8, 8)
	amd64R9  = gpReg("r9", "arg6", 9, 9, 9)
	amd64R10 = gpReg("r10", "", 10, 10, 10)
	amd64R11 = gpReg("r11", "", 11, 11, 11)
	amd64R12 = gpReg("r12", "", 12, 12, 12)
	amd64R13 = gpReg("r13", "", 13, 13, 13)
	amd64R14 = gpReg("r14", "", 14, 14, 14)
	amd64R15 = gpReg("r15", "", 15, 15, 15)
	amd64RIP = gpReg("rip", "pc", 16, 16, 16)

	amd64EFLAGS = &RegisterDef{
		Name:                "eflags",
		LLDBName:            "rflags",
		GenericName:         "flags",
		BitSize:             32,
		GCCRegisterNumber:   49,
		DWARFRegisterNumber: 49,
		GDBRegisterNumber:   17,
		LLDBRegisterNumber:  17,
		Encoding:            EncodingUInteger,
		Format:              FormatHexadecimal,
		GDBGroup:            "general",
		GDBType:             "i386_eflags",
	}

	amd64CS = segReg("cs", 18, 51)
	amd64SS = segReg("ss", 19, 52)
	amd64DS = segReg("ds", 20, 53)
	amd64ES = segReg("es", 21, 50)
	amd64FS = segReg("fs", 22, 54)
	amd64GS = segReg("gs", 23, 55)

	amd64ST = [8]*RegisterDef{
		stReg("st0", 24, 33), stReg("st1", 25, 34),
		stReg("st2", 26, 35), stReg("st3", 27, 36),
		stReg("st4", 28, 37), stReg("st5", 29, 38),
		stReg("st6", 30, 39), stReg("st7", 31, 40),
	}

	amd64FCTRL = fpuReg("fctrl", 32, 65)
	amd64FSTAT = fpuReg("fstat", 33, 66)
	amd64FTAG  = fpuReg("ftag", 34, -1)
	amd64FISEG = fpuReg("fiseg", 35, -1)
	amd64FIOFF = fpuReg("fioff", 36, -1)
	amd64FOSEG = fpuReg("foseg", 37, -1)
	amd64FOOFF = fpuReg("fooff", 38, -1)
	amd64FOP   = fpuReg("fop", 39, -1)

	amd64XMM = [16]*RegisterDef{
		xmmReg("xmm0", 40, 17), xmmReg("xmm1", 41, 18),
		xmmReg("xmm2", 42, 19), xmmReg("xmm3", 43, 20),
		xmmReg("xmm4", 44, 21), xmmReg("xmm5", 45, 22),
		xmmReg("xmm6", 46, 23), xmmReg("xmm7", 47, 24),
		xmmReg("xmm8", 48, 25), xmmReg("xmm9", 49, 26),
		xmmReg("xmm10", 50, 27), xmmReg("xmm11", 51, 28),
		xmmReg("xmm12", 52, 29), xmmReg("xmm13", 53, 30),
		xmmReg("xmm14", 54, 31), xmmReg("xmm15", 55, 32),
	}

	amd64MXCSR = &RegisterDef{
		Name:                "mxcsr",
		BitSize:             32,
		GCCRegisterNumber:   64,
		DWARFRegisterNumber: 64,
		GDBRegisterNumber:   56,
		LLDBRegisterNumber:  56,
		Encoding:            EncodingUInteger,
		Format:              FormatHexadecimal,
		GDBGroup:            "vector",
		GDBType:             "int32",
	}
)

// amd64Registers lists every register in GDB numbering order; this is also
// the layout order of the CPUState backing store.
var amd64Registers = buildAMD64Registers()

func buildAMD64Registers() []*RegisterDef {
	regs := []*RegisterDef{
		amd64RAX, amd64RBX, amd64RCX, amd64RDX, amd64RSI, amd64RDI,
		amd64RBP, amd64RSP, amd64R8, amd64R9, amd64R10, amd64R11,
		amd64R12, amd64R13, amd64R14, amd64R15, amd64RIP, amd64EFLAGS,
		amd64CS, amd64SS, amd64DS, amd64ES, amd64FS, amd64GS,
	}
	for _, reg := range amd64ST {
		regs = append(regs, reg)
	}
	regs = append(regs, amd64FCTRL, amd64FSTAT, amd64FTAG, amd64FISEG,
		amd64FIOFF, amd64FOSEG, amd64FOOFF, amd64FOP)
	for _, reg := range amd64XMM {
		regs = append(regs, reg)
	}
	regs = append(regs, amd64MXCSR)
	return regs
}

// amd64GP is the stop-GP subset reported in stop replies and through the
// general register packets.
var amd64GP = amd64Registers[:24]

// AMD64GDB is the GDB register file descriptor for linux/amd64.
var AMD64GDB = &GDBDescriptor{
	Architecture: "i386:x86-64",
	OSABI:        "GNU/Linux",
	Features: []GDBFeature{
		{
			Name:     "org.gnu.gdb.i386.core",
			FileName: "64bit-core.xml",
			Regs:     amd64Registers[:40],
		},
		{
			Name:     "org.gnu.gdb.i386.sse",
			FileName: "64bit-sse.xml",
			Regs:     amd64Registers[40:],
		},
	},
}

// AMD64LLDB is the LLDB register file descriptor for linux/amd64.
var AMD64LLDB = &LLDBDescriptor{
	Sets: []RegisterSet{
		{Name: "General Purpose Registers", Regs: amd64Registers[:24]},
		{Name: "Floating Point Registers", Regs: amd64Registers[24:40]},
		{Name: "Vector Registers", Regs: amd64Registers[40:]},
	},
}

var (
	amd64ByGDB     map[int]*RegisterDef
	amd64ByLLDB    map[int]*RegisterDef
	amd64LLDBOrder []*RegisterDef
	amd64StateSize int
)

func init() {
	amd64ByGDB = make(map[int]*RegisterDef)
	amd64ByLLDB = make(map[int]*RegisterDef)

	offset := 0
	for _, reg := range amd64Registers {
		reg.stateOffset = offset
		reg.GDBOffset = offset
		offset += reg.size()
		amd64ByGDB[reg.GDBRegisterNumber] = reg
		amd64ByLLDB[reg.LLDBRegisterNumber] = reg
	}
	amd64StateSize = offset

	// The LLDB register context is laid out in LLDB numbering order.
	amd64LLDBOrder = make([]*RegisterDef, 0, len(amd64Registers))
	for _, reg := range amd64Registers {
		amd64LLDBOrder = append(amd64LLDBOrder, reg)
	}
	sort.SliceStable(amd64LLDBOrder, func(i, j int) bool {
		return amd64LLDBOrder[i].LLDBRegisterNumber < amd64LLDBOrder[j].LLDBRegisterNumber
	})
	offset = 0
	for _, reg := range amd64LLDBOrder {
		reg.LLDBOffset = offset
		offset += reg.size()
	}

	AMD64GDB.index()
	AMD64LLDB.index()
}
