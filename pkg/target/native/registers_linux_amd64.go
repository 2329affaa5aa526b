//go:build linux && amd64
// +build linux,amd64

package native

import (
	sys "golang.org/x/sys/unix"

	"github.com/vigilo/vigilo/pkg/arch"
)

// Mapping between the PTRACE_GETREGS user_regs_struct layout and the
// protocol level CPU state. Floating point and vector registers are left
// zeroed; fetching them needs PTRACE_GETREGSET with NT_X86_XSTATE.

func ptraceRegsToState(regs *sys.PtraceRegs, state *arch.CPUState) {
	state.SetRegisterUint64("rax", regs.Rax)
	state.SetRegisterUint64("rbx", regs.Rbx)
	state.SetRegisterUint64("rcx", regs.Rcx)
	state.SetRegisterUint64("rdx", regs.Rdx)
	state.SetRegisterUint64("rsi", regs.Rsi)
	state.SetRegisterUint64("rdi", regs.Rdi)
	state.SetRegisterUint64("rbp", regs.Rbp)
	state.SetRegisterUint64("rsp", regs.Rsp)
	state.SetRegisterUint64("r8", regs.R8)
	state.SetRegisterUint64("r9", regs.R9)
	state.SetRegisterUint64("r10", regs.R10)
	state.SetRegisterUint64("r11", regs.R11)
	state.SetRegisterUint64("r12", regs.R12)
	state.SetRegisterUint64("r13", regs.R13)
	state.SetRegisterUint64("r14", regs.R14)
	state.SetRegisterUint64("r15", regs.R15)
	state.SetRegisterUint64("rip", regs.Rip)
	state.SetRegisterUint64("eflags", regs.Eflags)
	state.SetRegisterUint64("cs", regs.Cs)
	state.SetRegisterUint64("ss", regs.Ss)
	state.SetRegisterUint64("ds", regs.Ds)
	state.SetRegisterUint64("es", regs.Es)
	state.SetRegisterUint64("fs", regs.Fs)
	state.SetRegisterUint64("gs", regs.Gs)
}

func stateToPtraceRegs(state *arch.CPUState, regs *sys.PtraceRegs) {
	regs.Rax = state.RegisterUint64("rax")
	regs.Rbx = state.RegisterUint64("rbx")
	regs.Rcx = state.RegisterUint64("rcx")
	regs.Rdx = state.RegisterUint64("rdx")
	regs.Rsi = state.RegisterUint64("rsi")
	regs.Rdi = state.RegisterUint64("rdi")
	regs.Rbp = state.RegisterUint64("rbp")
	regs.Rsp = state.RegisterUint64("rsp")
	regs.R8 = state.RegisterUint64("r8")
	regs.R9 = state.RegisterUint64("r9")
	regs.R10 = state.RegisterUint64("r10")
	regs.R11 = state.RegisterUint64("r11")
	regs.R12 = state.RegisterUint64("r12")
	regs.R13 = state.RegisterUint64("r13")
	regs.R14 = state.RegisterUint64("r14")
	regs.R15 = state.RegisterUint64("r15")
	regs.Rip = state.RegisterUint64("rip")
	regs.Eflags = state.RegisterUint64("eflags")
	regs.Cs = state.RegisterUint64("cs")
	regs.Ss = state.RegisterUint64("ss")
	regs.Ds = state.RegisterUint64("ds")
	regs.Es = state.RegisterUint64("es")
	regs.Fs = state.RegisterUint64("fs")
	regs.Gs = state.RegisterUint64("gs")
}
