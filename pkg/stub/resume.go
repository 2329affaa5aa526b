package stub

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/vigilo/vigilo/pkg/target"
)

// OnResume executes a batch of per-thread resume actions plus an optional
// global action, waits for the next stop and assembles the stop reply.
//
// While the wait is in flight the session handle is published under
// resumeMu so that the console pump can interleave O-packets with it;
// normal reply encoding cannot race with the pump because the handle is
// cleared, again under the lock, before OnResume returns.
func (d *DebugSession) OnResume(s wireSession, actions []ThreadResumeAction) (StopCode, error) {
	var stop StopCode

	d.resumeMu.Lock()
	if d.resumeSession != nil {
		panic("stub: OnResume called with a resume already in flight")
	}
	d.resumeSession = s
	d.flushConsoleLocked()
	d.resumeMu.Unlock()
	defer func() {
		d.resumeMu.Lock()
		d.resumeSession = nil
		d.resumeMu.Unlock()
	}()

	if err := d.proc.BeforeResume(); err != nil {
		return stop, err
	}

	// First pass: actions that name a thread. The global action, if any,
	// triggers afterwards with these threads excluded.
	var globalAction ThreadResumeAction
	hasGlobalAction := false
	excluded := make(map[target.Thread]bool)

	for _, action := range actions {
		if action.Ptid.Any() {
			if hasGlobalAction {
				d.log.Errorf("more than one global action specified")
				return stop, target.ErrAlreadyExist
			}
			globalAction = action
			hasGlobalAction = true
			continue
		}

		thread := d.findThread(action.Ptid)
		if thread == nil {
			d.log.Warnf("pid %d tid %d not found", action.Ptid.Pid, action.Ptid.Tid)
			continue
		}

		switch action.Action {
		case ResumeActionContinue, ResumeActionContinueWithSignal:
			if err := thread.Resume(action.Signal, action.Address); err != nil {
				d.log.Warnf("cannot resume pid %d tid %d: %v", d.proc.Pid(), thread.Tid(), err)
				continue
			}
			excluded[thread] = true
		case ResumeActionSingleStep, ResumeActionSingleStepWithSignal:
			if err := thread.Step(action.Signal, action.Address); err != nil {
				d.log.Warnf("cannot step pid %d tid %d: %v", d.proc.Pid(), thread.Tid(), err)
				continue
			}
			excluded[thread] = true
		default:
			d.log.Warnf("cannot resume pid %d tid %d, action %d not implemented",
				d.proc.Pid(), thread.Tid(), action.Action)
		}
	}

	// A pending stop makes the global continue return ErrAlreadyExist; in
	// that case the stop is already queued and the wait must be skipped.
	stopPending := false
	if hasGlobalAction {
		switch globalAction.Action {
		case ResumeActionContinue, ResumeActionContinueWithSignal:
			if globalAction.Address != 0 {
				d.log.Warnf("global continue with address")
			}
			err := d.proc.Resume(globalAction.Signal, excluded)
			if err != nil {
				if errors.Is(err, target.ErrAlreadyExist) {
					stopPending = true
				} else {
					d.log.Warnf("cannot resume pid %d: %v", d.proc.Pid(), err)
				}
			}
		case ResumeActionSingleStep, ResumeActionSingleStepWithSignal:
			thread := d.proc.CurrentThread()
			if thread != nil && !excluded[thread] {
				if err := thread.Step(globalAction.Signal, globalAction.Address); err != nil {
					d.log.Warnf("cannot step pid %d tid %d: %v", d.proc.Pid(), thread.Tid(), err)
				}
			}
		default:
			d.log.Warnf("cannot resume pid %d, action %d not implemented",
				d.proc.Pid(), globalAction.Action)
		}
	}

	if !stopPending {
		if err := d.proc.Wait(); err != nil {
			return stop, err
		}
	}

	if err := d.proc.AfterResume(); err != nil {
		return stop, err
	}

	return d.queryStopCode(s, Ptid{Pid: d.proc.Pid(), Tid: d.proc.CurrentThread().Tid()})
}

// queryStopCode shapes a thread's trap info into a stop reply.
func (d *DebugSession) queryStopCode(s wireSession, ptid Ptid) (StopCode, error) {
	var stop StopCode

	thread := d.findThread(ptid)
	if thread == nil {
		return stop, target.ErrProcessNotFound
	}

	trap := thread.TrapInfo()
	stop.Ptid = Ptid{Pid: trap.Pid, Tid: trap.Tid}
	stop.Core = trap.Core
	stop.Reason = StopReasonSignalStop

	readRegisters := true
	switch trap.Event {
	case target.EventNone:
		stop.Reason = StopReasonNone
	case target.EventExit:
		stop.Event = StopEventCleanExit
		stop.Status = trap.Status
		readRegisters = false
	case target.EventKill, target.EventCoreDump:
		stop.Event = StopEventSignalExit
		stop.Signal = trap.Signal
		readRegisters = false
	case target.EventTrap:
		stop.Event = StopEventSignal
		stop.Reason = StopReasonBreakpoint
		stop.Signal = trap.Signal
	case target.EventStop:
		stop.Event = StopEventSignal
		stop.Reason = StopReasonSignalStop
		stop.Signal = trap.Signal
	}

	if readRegisters {
		stop.ThreadName = target.ThreadName(stop.Ptid.Pid, stop.Ptid.Tid)
		state, err := thread.ReadCPUState()
		if err != nil {
			return stop, err
		}
		stop.Registers = state.StopGPState(s.Mode() == ModeLLDB)
	}

	d.proc.EnumerateThreads(func(thread target.Thread) {
		stop.Threads = append(stop.Threads, thread.Tid())
	})

	return stop, nil
}

// consoleOutput is the spawner delegate receiving raw inferior output. On
// every newline the accumulated line is flushed as an O-packet through the
// published resume session; output arriving while no resume is in flight
// stays buffered until the next resume begins.
func (d *DebugSession) consoleOutput(data []byte) {
	d.resumeMu.Lock()
	defer d.resumeMu.Unlock()

	for _, c := range data {
		d.consoleBuf = append(d.consoleBuf, c)
		if c != '\n' {
			continue
		}
		if d.resumeSession == nil {
			d.log.Warnf("inferior output arrived outside a resume")
			continue
		}
		d.sendConsoleLocked(d.consoleBuf)
		d.consoleBuf = d.consoleBuf[:0]
	}
}

// flushConsoleLocked forwards complete lines buffered while no resume was
// in flight; a trailing partial line stays buffered. Callers must hold
// resumeMu with resumeSession published.
func (d *DebugSession) flushConsoleLocked() {
	idx := bytes.LastIndexByte(d.consoleBuf, '\n')
	if idx < 0 {
		return
	}
	d.sendConsoleLocked(d.consoleBuf[:idx+1])
	d.consoleBuf = append(d.consoleBuf[:0], d.consoleBuf[idx+1:]...)
}

func (d *DebugSession) sendConsoleLocked(line []byte) {
	packet := make([]byte, 0, 1+2*len(line))
	packet = append(packet, 'O')
	packet = append(packet, []byte(hex.EncodeToString(line))...)
	if err := d.resumeSession.Send(packet); err != nil {
		d.log.Warnf("cannot forward inferior output: %v", err)
	}
}
