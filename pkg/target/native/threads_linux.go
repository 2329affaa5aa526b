//go:build linux && amd64
// +build linux,amd64

package native

import (
	sys "golang.org/x/sys/unix"

	"github.com/vigilo/vigilo/pkg/arch"
	"github.com/vigilo/vigilo/pkg/target"
)

// nativeThread is the linux implementation of target.Thread. The process
// owns the thread; the handle stays valid after the thread dies but every
// ptrace operation on it fails.
type nativeThread struct {
	tid   int
	dbp   *nativeProcess
	state target.ThreadState
	trap  target.TrapInfo
}

func (th *nativeThread) Pid() int { return th.dbp.pid }

func (th *nativeThread) Tid() int { return th.tid }

func (th *nativeThread) Core() int { return threadCore(th.dbp.pid, th.tid) }

func (th *nativeThread) State() target.ThreadState { return th.state }

func (th *nativeThread) TrapInfo() target.TrapInfo { return th.trap }

// Resume continues the thread, optionally delivering a signal and moving
// the program counter first.
func (th *nativeThread) Resume(signal int, addr uint64) error {
	if addr != 0 {
		if err := th.setPC(addr); err != nil {
			return err
		}
	}
	var err error
	th.dbp.execPtraceFunc(func() { err = sys.PtraceCont(th.tid, signal) })
	if err != nil {
		return err
	}
	th.state = target.ThreadRunning
	return nil
}

// Step executes one instruction. The stop it produces is consumed by the
// process wait, not here.
func (th *nativeThread) Step(signal int, addr uint64) error {
	if addr != 0 {
		if err := th.setPC(addr); err != nil {
			return err
		}
	}
	var err error
	th.dbp.execPtraceFunc(func() { err = ptraceSingleStep(th.tid, signal) })
	if err != nil {
		return err
	}
	th.state = target.ThreadStepped
	return nil
}

// stepAndWait single steps the thread and consumes its trap, used for
// stepping over breakpoints while the rest of the process stays put. The
// return value reports whether the step ended in the expected trap.
func (th *nativeThread) stepAndWait() (bool, error) {
	var err error
	th.dbp.execPtraceFunc(func() { err = ptraceSingleStep(th.tid, 0) })
	if err != nil {
		return false, err
	}

	var status sys.WaitStatus
	th.dbp.execPtraceFunc(func() {
		_, err = sys.Wait4(th.tid, &status, sys.WALL, nil)
	})
	if err != nil {
		return false, err
	}

	if status.Stopped() && status.StopSignal() == sys.SIGTRAP {
		th.state = target.ThreadStopped
		return true, nil
	}

	// something else happened mid step; record it as the thread's trap
	// info, which the caller reports as a pending stop
	switch {
	case status.Exited():
		th.state = target.ThreadTerminated
		th.trap = target.TrapInfo{
			Event:  target.EventExit,
			Pid:    th.dbp.pid,
			Tid:    th.tid,
			Status: status.ExitStatus(),
		}
	case status.Signaled():
		th.state = target.ThreadTerminated
		th.trap = target.TrapInfo{
			Event:  target.EventKill,
			Pid:    th.dbp.pid,
			Tid:    th.tid,
			Signal: int(status.Signal()),
		}
	case status.Stopped():
		th.state = target.ThreadStopped
		th.trap = target.TrapInfo{
			Event:  target.EventStop,
			Pid:    th.dbp.pid,
			Tid:    th.tid,
			Core:   threadCore(th.dbp.pid, th.tid),
			Signal: int(status.StopSignal()),
		}
	}
	return false, nil
}

func (th *nativeThread) ReadCPUState() (*arch.CPUState, error) {
	var regs sys.PtraceRegs
	var err error
	th.dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(th.tid, &regs) })
	if err != nil {
		return nil, err
	}
	state := arch.NewCPUState()
	ptraceRegsToState(&regs, state)
	return state, nil
}

func (th *nativeThread) WriteCPUState(state *arch.CPUState) error {
	var regs sys.PtraceRegs
	var err error
	th.dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(th.tid, &regs) })
	if err != nil {
		return err
	}
	stateToPtraceRegs(state, &regs)
	th.dbp.execPtraceFunc(func() { err = sys.PtraceSetRegs(th.tid, &regs) })
	return err
}

func (th *nativeThread) pc() (uint64, error) {
	var regs sys.PtraceRegs
	var err error
	th.dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(th.tid, &regs) })
	if err != nil {
		return 0, err
	}
	return regs.Rip, nil
}

func (th *nativeThread) setPC(pc uint64) error {
	var regs sys.PtraceRegs
	var err error
	th.dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(th.tid, &regs) })
	if err != nil {
		return err
	}
	regs.Rip = pc
	th.dbp.execPtraceFunc(func() { err = sys.PtraceSetRegs(th.tid, &regs) })
	return err
}

// ptraceSingleStep issues PTRACE_SINGLESTEP with an optional signal to
// deliver; x/sys only wraps the signal-less form.
func ptraceSingleStep(tid, signal int) error {
	_, _, errno := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_SINGLESTEP,
		uintptr(tid), 0, uintptr(signal), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
