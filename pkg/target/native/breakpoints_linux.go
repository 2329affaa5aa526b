//go:build linux && amd64
// +build linux,amd64

package native

import (
	"github.com/vigilo/vigilo/pkg/target"
)

var breakpointInstruction = []byte{0xcc}

// breakpoint is one armed software breakpoint.
type breakpoint struct {
	addr      uint64
	orig      []byte
	permanent bool
	size      int
}

// breakpointManager patches INT3 instructions into the inferior text and
// keeps the overwritten bytes for stepping over and for removal.
type breakpointManager struct {
	dbp         *nativeProcess
	breakpoints map[uint64]*breakpoint
}

func (bpm *breakpointManager) Add(addr uint64, permanent bool, size int) error {
	if _, ok := bpm.breakpoints[addr]; ok {
		return target.ErrAlreadyExist
	}
	orig, err := bpm.dbp.ReadMemory(addr, len(breakpointInstruction))
	if err != nil {
		return err
	}
	if _, err := bpm.dbp.WriteMemory(addr, breakpointInstruction); err != nil {
		return err
	}
	bpm.breakpoints[addr] = &breakpoint{addr: addr, orig: orig, permanent: permanent, size: size}
	return nil
}

func (bpm *breakpointManager) Remove(addr uint64) error {
	bp, ok := bpm.breakpoints[addr]
	if !ok {
		return target.ErrNotFound
	}
	if _, err := bpm.dbp.WriteMemory(addr, bp.orig); err != nil {
		return err
	}
	delete(bpm.breakpoints, addr)
	return nil
}

func (bpm *breakpointManager) Clear() error {
	for addr := range bpm.breakpoints {
		if err := bpm.Remove(addr); err != nil {
			return err
		}
	}
	return nil
}

// adjustPC rewinds a thread that executed an INT3 back onto the
// breakpoint address.
func (bpm *breakpointManager) adjustPC(th *nativeThread) {
	pc, err := th.pc()
	if err != nil {
		return
	}
	addr := pc - uint64(len(breakpointInstruction))
	if _, ok := bpm.breakpoints[addr]; !ok {
		return
	}
	th.setPC(addr)
}

// stepOver executes the original instruction under a breakpoint the
// thread is stopped on, leaving the breakpoint armed. A foreign event
// consumed during the step is recorded as a pending stop.
func (bpm *breakpointManager) stepOver(th *nativeThread) error {
	pc, err := th.pc()
	if err != nil {
		return err
	}
	bp, ok := bpm.breakpoints[pc]
	if !ok {
		return nil
	}

	if _, err := bpm.dbp.WriteMemory(bp.addr, bp.orig); err != nil {
		return err
	}
	trapped, err := th.stepAndWait()
	if err != nil {
		return err
	}
	if !trapped {
		bpm.dbp.pendingStop = true
		bpm.dbp.currentThread = th
	}
	if th.state == target.ThreadTerminated {
		return nil
	}
	if _, err := bpm.dbp.WriteMemory(bp.addr, breakpointInstruction); err != nil {
		return err
	}
	return nil
}
