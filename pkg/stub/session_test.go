package stub

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/vigilo/vigilo/pkg/arch"
	"github.com/vigilo/vigilo/pkg/target"
)

// fakeWire records every packet pushed through the session handle.
type fakeWire struct {
	mode Mode
	sent [][]byte
}

func (w *fakeWire) Mode() Mode { return w.mode }

func (w *fakeWire) Send(data []byte) error {
	out := make([]byte, len(data))
	copy(out, data)
	w.sent = append(w.sent, out)
	return nil
}

type fakeThread struct {
	pid, tid, core int
	state          target.ThreadState
	trap           target.TrapInfo
	cpu            *arch.CPUState

	readErr  error
	writeErr error

	resumes []int
	steps   []int
}

func newFakeThread(pid, tid, core int) *fakeThread {
	return &fakeThread{
		pid: pid, tid: tid, core: core,
		state: target.ThreadStopped,
		cpu:   arch.NewCPUState(),
	}
}

func (t *fakeThread) Pid() int                  { return t.pid }
func (t *fakeThread) Tid() int                  { return t.tid }
func (t *fakeThread) Core() int                 { return t.core }
func (t *fakeThread) State() target.ThreadState { return t.state }
func (t *fakeThread) TrapInfo() target.TrapInfo { return t.trap }

func (t *fakeThread) ReadCPUState() (*arch.CPUState, error) {
	if t.readErr != nil {
		return nil, t.readErr
	}
	return t.cpu.Clone(), nil
}

func (t *fakeThread) WriteCPUState(state *arch.CPUState) error {
	if t.writeErr != nil {
		return t.writeErr
	}
	t.cpu = state.Clone()
	return nil
}

func (t *fakeThread) Resume(signal int, addr uint64) error {
	t.resumes = append(t.resumes, signal)
	return nil
}

func (t *fakeThread) Step(signal int, addr uint64) error {
	t.steps = append(t.steps, signal)
	return nil
}

type resumeCall struct {
	signal   int
	excluded map[target.Thread]bool
}

type fakeProcess struct {
	pid      int
	attached bool
	elf      bool
	threads  map[int]*fakeThread
	order    []int
	current  *fakeThread

	bpm *fakeBreakpointManager

	auxv []byte
	libs []target.SharedLibrary

	nextAlloc   uint64
	deallocated []uint64
	allocErr    error

	resumeCalls []resumeCall
	resumeErr   error
	waitCalls   int
	waitFn      func()

	interrupted bool
	suspended   bool
	terminated  bool
	detachedOK  bool
	released    bool
}

func newFakeProcess(pid int, tids ...int) *fakeProcess {
	p := &fakeProcess{
		pid:       pid,
		elf:       true,
		threads:   make(map[int]*fakeThread),
		nextAlloc: 0x7f0000000000,
		bpm:       &fakeBreakpointManager{},
	}
	for i, tid := range tids {
		th := newFakeThread(pid, tid, i%2)
		p.threads[tid] = th
		p.order = append(p.order, tid)
		if p.current == nil {
			p.current = th
		}
	}
	return p
}

func (p *fakeProcess) GetInfo() (target.ProcessInfo, error) {
	return target.ProcessInfo{Pid: p.pid, Name: "inferior", OSType: "linux", Endian: "little", PointerSize: 8}, nil
}

func (p *fakeProcess) Pid() int       { return p.pid }
func (p *fakeProcess) Attached() bool { return p.attached }

func (p *fakeProcess) CurrentThread() target.Thread {
	if p.current == nil {
		return nil
	}
	return p.current
}

func (p *fakeProcess) Thread(tid int) target.Thread {
	th, ok := p.threads[tid]
	if !ok {
		return nil
	}
	return th
}

func (p *fakeProcess) ThreadIDs() []int {
	out := make([]int, len(p.order))
	copy(out, p.order)
	return out
}

func (p *fakeProcess) EnumerateThreads(fn func(target.Thread)) {
	for _, tid := range p.order {
		fn(p.threads[tid])
	}
}

func (p *fakeProcess) ReadMemory(addr uint64, size int) ([]byte, error) {
	return make([]byte, size), nil
}

func (p *fakeProcess) WriteMemory(addr uint64, data []byte) (int, error) {
	return len(data), nil
}

func (p *fakeProcess) AllocateMemory(size int, perms target.MemPerms) (uint64, error) {
	if p.allocErr != nil {
		return 0, p.allocErr
	}
	addr := p.nextAlloc
	p.nextAlloc += 0x1000
	return addr, nil
}

func (p *fakeProcess) DeallocateMemory(addr uint64, size int) error {
	p.deallocated = append(p.deallocated, addr)
	return nil
}

func (p *fakeProcess) AuxiliaryVector() ([]byte, error) { return p.auxv, nil }

func (p *fakeProcess) SharedLibraryInfoAddress() (uint64, error) { return 0xdeadbeef, nil }

func (p *fakeProcess) EnumerateSharedLibraries(fn func(target.SharedLibrary)) error {
	for _, lib := range p.libs {
		fn(lib)
	}
	return nil
}

func (p *fakeProcess) IsELF() bool { return p.elf }

func (p *fakeProcess) BreakpointManager() target.BreakpointManager {
	if p.bpm == nil {
		return nil
	}
	return p.bpm
}

func (p *fakeProcess) GDBRegistersDescriptor() *arch.GDBDescriptor   { return arch.AMD64GDB }
func (p *fakeProcess) LLDBRegistersDescriptor() *arch.LLDBDescriptor { return arch.AMD64LLDB }

func (p *fakeProcess) BeforeResume() error { return nil }
func (p *fakeProcess) AfterResume() error  { return nil }

func (p *fakeProcess) Resume(signal int, excluded map[target.Thread]bool) error {
	p.resumeCalls = append(p.resumeCalls, resumeCall{signal: signal, excluded: excluded})
	return p.resumeErr
}

func (p *fakeProcess) Interrupt() error { p.interrupted = true; return nil }
func (p *fakeProcess) Suspend() error   { p.suspended = true; return nil }
func (p *fakeProcess) Terminate() error { p.terminated = true; return nil }
func (p *fakeProcess) Detach() error    { p.detachedOK = true; return nil }

func (p *fakeProcess) Wait() error {
	p.waitCalls++
	if p.waitFn != nil {
		p.waitFn()
	}
	return nil
}

func (p *fakeProcess) SetSignalPass(signal int, pass bool) {}
func (p *fakeProcess) ResetSignalPass()                    {}

func (p *fakeProcess) Release() { p.released = true }

type fakeBreakpointManager struct {
	added   []uint64
	removed []uint64
	cleared bool
}

func (b *fakeBreakpointManager) Add(addr uint64, permanent bool, size int) error {
	b.added = append(b.added, addr)
	return nil
}

func (b *fakeBreakpointManager) Remove(addr uint64) error {
	b.removed = append(b.removed, addr)
	return nil
}

func (b *fakeBreakpointManager) Clear() error {
	b.cleared = true
	return nil
}

func testSession(p *fakeProcess) *DebugSession {
	d := NewDebugSession(nil, nil)
	d.proc = p
	return d
}

func assertNoError(err error, t *testing.T, context string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", context, err)
	}
}

func featureSet(features []Feature) map[string]string {
	out := make(map[string]string)
	for _, f := range features {
		if f.Flag != 0 {
			out[f.Name] = string(f.Flag)
		} else {
			out[f.Name] = f.Value
		}
	}
	return out
}

func TestQuerySupportedELF(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)
	w := &fakeWire{}

	local, err := d.OnQuerySupported(w, []Feature{{Name: "multiprocess", Flag: '+'}})
	assertNoError(err, t, "OnQuerySupported")

	features := featureSet(local)
	for name, want := range map[string]string{
		"PacketSize":                "3fff",
		"BreakpointCommands":        "+",
		"qXfer:auxv:read":           "+",
		"qXfer:libraries-svr4:read": "+",
		"qXfer:features:read":       "+",
		"QStartNoAckMode":           "+",
		"multiprocess":              "+",
		"ConditionalTracepoints":    "-",
	} {
		if features[name] != want {
			t.Errorf("feature %s = %q, want %q", name, features[name], want)
		}
	}
	if _, ok := features["qXfer:libraries:read"]; ok {
		t.Errorf("qXfer:libraries:read advertised for an ELF inferior")
	}
}

func TestQuerySupportedNonELF(t *testing.T) {
	p := newFakeProcess(10, 2)
	p.elf = false
	p.bpm = nil
	d := testSession(p)

	local, err := d.OnQuerySupported(&fakeWire{}, nil)
	assertNoError(err, t, "OnQuerySupported")

	features := featureSet(local)
	if features["qXfer:libraries:read"] != "+" {
		t.Errorf("qXfer:libraries:read not advertised for a non-ELF inferior")
	}
	if _, ok := features["qXfer:auxv:read"]; ok {
		t.Errorf("qXfer:auxv:read advertised for a non-ELF inferior")
	}
	if features["BreakpointCommands"] != "-" {
		t.Errorf("BreakpointCommands = %q without a breakpoint manager", features["BreakpointCommands"])
	}
}

func TestThreadListCursor(t *testing.T) {
	p := newFakeProcess(10, 2, 3, 5)
	d := testSession(p)
	w := &fakeWire{}

	var got []int
	tid, err := d.OnQueryThreadList(w, 10, AllThreadID)
	assertNoError(err, t, "OnQueryThreadList first")
	got = append(got, tid)

	// a thread born mid-enumeration must not be observed
	p.threads[7] = newFakeThread(10, 7, 0)
	p.order = append(p.order, 7)

	for {
		tid, err = d.OnQueryThreadList(w, 10, AnyThreadID)
		if errors.Is(err, target.ErrNotFound) {
			break
		}
		assertNoError(err, t, "OnQueryThreadList next")
		got = append(got, tid)
	}

	want := []int{2, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("enumerated %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("enumerated %v, want %v", got, want)
		}
	}

	// after a reset the new thread is visible
	tid, err = d.OnQueryThreadList(w, 10, AllThreadID)
	assertNoError(err, t, "OnQueryThreadList reset")
	if tid != 2 {
		t.Fatalf("cursor did not rewind, got tid %d", tid)
	}

	if _, err := d.OnQueryThreadList(w, 10, 7); !errors.Is(err, target.ErrInvalidArgument) {
		t.Fatalf("lastTid=7 returned %v, want ErrInvalidArgument", err)
	}
}

func TestFindThread(t *testing.T) {
	p := newFakeProcess(10, 2, 3)
	d := testSession(p)

	if th := d.findThread(Ptid{Pid: 11, Tid: 2}); th != nil {
		t.Errorf("foreign pid resolved to %v", th)
	}
	if th := d.findThread(Ptid{Pid: 10, Tid: 3}); th == nil || th.Tid() != 3 {
		t.Errorf("explicit tid did not resolve")
	}
	if th := d.findThread(Ptid{}); th == nil || th.Tid() != 2 {
		t.Errorf("implicit selector did not resolve to the current thread")
	}
}

func TestThreadIsAlive(t *testing.T) {
	p := newFakeProcess(10, 2, 3)
	p.threads[3].state = target.ThreadTerminated
	d := testSession(p)
	w := &fakeWire{}

	assertNoError(d.OnThreadIsAlive(w, Ptid{Tid: 2}), t, "live thread")
	if err := d.OnThreadIsAlive(w, Ptid{Tid: 3}); !errors.Is(err, target.ErrInvalidArgument) {
		t.Errorf("terminated thread: got %v, want ErrInvalidArgument", err)
	}
	if err := d.OnThreadIsAlive(w, Ptid{Tid: 9}); !errors.Is(err, target.ErrProcessNotFound) {
		t.Errorf("missing thread: got %v, want ErrProcessNotFound", err)
	}
}

func TestAllocationLedger(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)
	w := &fakeWire{}

	addr, err := d.OnAllocateMemory(w, 0x1000, target.PermRead|target.PermWrite)
	assertNoError(err, t, "OnAllocateMemory")

	assertNoError(d.OnDeallocateMemory(w, addr), t, "first deallocate")
	if len(p.deallocated) != 1 || p.deallocated[0] != addr {
		t.Fatalf("deallocated %v, want [%#x]", p.deallocated, addr)
	}

	if err := d.OnDeallocateMemory(w, addr); !errors.Is(err, target.ErrInvalidArgument) {
		t.Fatalf("second deallocate: got %v, want ErrInvalidArgument", err)
	}
	if err := d.OnDeallocateMemory(w, 0x1234); !errors.Is(err, target.ErrInvalidArgument) {
		t.Fatalf("unknown address: got %v, want ErrInvalidArgument", err)
	}
}

func TestReleaseFreesOutstandingAllocations(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)

	addr, err := d.OnAllocateMemory(&fakeWire{}, 64, target.PermRead)
	assertNoError(err, t, "OnAllocateMemory")

	d.Release()
	if !p.released {
		t.Fatalf("process not released")
	}
	if len(p.deallocated) != 1 || p.deallocated[0] != addr {
		t.Fatalf("survivor allocation not freed: %v", p.deallocated)
	}
}

func TestSaveRestoreRegisters(t *testing.T) {
	p := newFakeProcess(10, 2)
	th := p.threads[2]
	th.cpu.SetRegisterUint64("rax", 0x1122334455667788)
	th.cpu.SetRegisterUint64("rip", 0x400000)
	d := testSession(p)
	w := &fakeWire{}

	saved := th.cpu.Clone()

	id, err := d.OnSaveRegisters(w, Ptid{Tid: 2})
	assertNoError(err, t, "OnSaveRegisters")
	if id != 1 {
		t.Fatalf("first save id = %d, want 1", id)
	}

	id2, err := d.OnSaveRegisters(w, Ptid{Tid: 2})
	assertNoError(err, t, "second OnSaveRegisters")
	if id2 != 2 {
		t.Fatalf("second save id = %d, want 2", id2)
	}

	// clobber the registers
	assertNoError(d.OnWriteGeneralRegisters(w, Ptid{Tid: 2}, []uint64{0xbad, 0xbad, 0xbad}), t, "OnWriteGeneralRegisters")

	assertNoError(d.OnRestoreRegisters(w, Ptid{Tid: 2}, 1), t, "OnRestoreRegisters")
	if !th.cpu.Equal(saved) {
		t.Fatalf("restore did not return the CPU state to the saved snapshot")
	}

	if err := d.OnRestoreRegisters(w, Ptid{Tid: 2}, 1); !errors.Is(err, target.ErrNotFound) {
		t.Fatalf("second restore: got %v, want ErrNotFound", err)
	}
}

func TestAttachAlreadyExist(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)

	if _, err := d.OnAttach(&fakeWire{}, 99, AttachNow); !errors.Is(err, target.ErrAlreadyExist) {
		t.Fatalf("got %v, want ErrAlreadyExist", err)
	}
	if d.proc != target.Process(p) {
		t.Fatalf("session process changed")
	}
}

func TestAttachWrongMode(t *testing.T) {
	d := NewDebugSession(nil, func(pid int) (target.Process, error) {
		t.Fatalf("attach function called")
		return nil, nil
	})

	if _, err := d.OnAttach(&fakeWire{}, 99, AttachWaitForLaunch); !errors.Is(err, target.ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
}

func TestNonStopMode(t *testing.T) {
	d := testSession(newFakeProcess(10, 2))
	if err := d.OnNonStopMode(&fakeWire{}, true); !errors.Is(err, target.ErrUnsupported) {
		t.Fatalf("enable: got %v, want ErrUnsupported", err)
	}
	assertNoError(d.OnNonStopMode(&fakeWire{}, false), t, "disable")
}

func TestInsertBreakpointKinds(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)
	w := &fakeWire{}

	assertNoError(d.OnInsertBreakpoint(w, BreakpointSoftware, 0x400000, 1), t, "software breakpoint")
	if len(p.bpm.added) != 1 || p.bpm.added[0] != 0x400000 {
		t.Fatalf("breakpoint not delegated: %v", p.bpm.added)
	}

	if err := d.OnInsertBreakpoint(w, BreakpointHardware, 0x400000, 1); !errors.Is(err, target.ErrUnsupported) {
		t.Fatalf("hardware breakpoint: got %v, want ErrUnsupported", err)
	}

	p.bpm = nil
	if err := d.OnInsertBreakpoint(w, BreakpointSoftware, 0x400000, 1); !errors.Is(err, target.ErrUnsupported) {
		t.Fatalf("no manager: got %v, want ErrUnsupported", err)
	}
}

func TestDetachClearsBreakpoints(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)

	assertNoError(d.OnDetach(&fakeWire{}, 10, true), t, "OnDetach")
	if !p.bpm.cleared {
		t.Errorf("breakpoints not cleared")
	}
	if !p.suspended {
		t.Errorf("process not suspended before a stopped detach")
	}
	if !p.detachedOK {
		t.Errorf("process not detached")
	}
}

func TestResumeTwoGlobalActions(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)

	any := Ptid{Pid: AllThreadID, Tid: AllThreadID}
	_, err := d.OnResume(&fakeWire{}, []ThreadResumeAction{
		{Ptid: any, Action: ResumeActionContinue},
		{Ptid: any, Action: ResumeActionContinue},
	})
	if !errors.Is(err, target.ErrAlreadyExist) {
		t.Fatalf("got %v, want ErrAlreadyExist", err)
	}
	if d.resumeSession != nil {
		t.Fatalf("resume session still published after failed resume")
	}
}

func TestResumeBatch(t *testing.T) {
	p := newFakeProcess(10, 2, 3, 5)
	d := testSession(p)
	w := &fakeWire{}

	p.waitFn = func() {
		th := p.threads[3]
		th.trap = target.TrapInfo{Event: target.EventStop, Pid: 10, Tid: 3, Core: 1, Signal: 9}
		p.current = th
	}

	stop, err := d.OnResume(w, []ThreadResumeAction{
		{Ptid: Ptid{Pid: 10, Tid: 2}, Action: ResumeActionSingleStep},
		{Ptid: Ptid{Pid: AllThreadID, Tid: AllThreadID}, Action: ResumeActionContinueWithSignal, Signal: 9},
	})
	assertNoError(err, t, "OnResume")

	if len(p.threads[2].steps) != 1 {
		t.Errorf("thread 2 stepped %d times, want 1", len(p.threads[2].steps))
	}
	if len(p.resumeCalls) != 1 {
		t.Fatalf("process resumed %d times, want 1", len(p.resumeCalls))
	}
	call := p.resumeCalls[0]
	if call.signal != 9 {
		t.Errorf("global resume signal = %d, want 9", call.signal)
	}
	if !call.excluded[p.threads[2]] {
		t.Errorf("thread 2 not excluded from the global resume")
	}
	if p.waitCalls != 1 {
		t.Errorf("wait called %d times, want 1", p.waitCalls)
	}

	if stop.Ptid != (Ptid{Pid: 10, Tid: 3}) {
		t.Errorf("stop ptid = %v, want p10.3", stop.Ptid)
	}
	if stop.Signal != 9 || stop.Event != StopEventSignal || stop.Reason != StopReasonSignalStop {
		t.Errorf("stop = %+v", stop)
	}
	if len(stop.Threads) != 3 {
		t.Errorf("stop.Threads = %v, want all three threads", stop.Threads)
	}
}

func TestResumeSkipsWaitOnPendingStop(t *testing.T) {
	p := newFakeProcess(10, 2)
	p.resumeErr = target.ErrAlreadyExist
	p.threads[2].trap = target.TrapInfo{Event: target.EventTrap, Pid: 10, Tid: 2, Signal: 5}
	d := testSession(p)

	stop, err := d.OnResume(&fakeWire{}, []ThreadResumeAction{
		{Ptid: Ptid{Pid: AllThreadID, Tid: AllThreadID}, Action: ResumeActionContinue},
	})
	assertNoError(err, t, "OnResume")
	if p.waitCalls != 0 {
		t.Errorf("wait called %d times with a stop pending, want 0", p.waitCalls)
	}
	if stop.Reason != StopReasonBreakpoint || stop.Signal != 5 {
		t.Errorf("stop = %+v", stop)
	}
}

func TestResumeGlobalStepSkipsExcluded(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)

	_, err := d.OnResume(&fakeWire{}, []ThreadResumeAction{
		{Ptid: Ptid{Pid: 10, Tid: 2}, Action: ResumeActionSingleStep},
		{Ptid: Ptid{Pid: AllThreadID, Tid: AllThreadID}, Action: ResumeActionSingleStep},
	})
	assertNoError(err, t, "OnResume")
	if len(p.threads[2].steps) != 1 {
		t.Errorf("current thread stepped %d times, want 1 (global step must skip excluded)", len(p.threads[2].steps))
	}
}

func TestConsolePump(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)
	w := &fakeWire{}

	p.waitFn = func() {
		d.consoleOutput([]byte("hi\n"))
	}

	_, err := d.OnResume(w, []ThreadResumeAction{
		{Ptid: Ptid{Pid: AllThreadID, Tid: AllThreadID}, Action: ResumeActionContinue},
	})
	assertNoError(err, t, "OnResume")

	want := []byte("O" + hex.EncodeToString([]byte("hi\n")))
	if len(w.sent) != 1 || !bytes.Equal(w.sent[0], want) {
		t.Fatalf("console packets = %q, want [%q]", w.sent, want)
	}
	if len(d.consoleBuf) != 0 {
		t.Fatalf("console buffer not cleared: %q", d.consoleBuf)
	}
}

func TestConsolePumpOutsideResume(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)
	w := &fakeWire{}

	d.consoleOutput([]byte("early\n"))
	if len(w.sent) != 0 {
		t.Fatalf("console packet sent outside a resume: %q", w.sent)
	}

	// the buffered line is flushed as soon as the next resume begins
	_, err := d.OnResume(w, []ThreadResumeAction{
		{Ptid: Ptid{Pid: AllThreadID, Tid: AllThreadID}, Action: ResumeActionContinue},
	})
	assertNoError(err, t, "OnResume")
	want := []byte("O" + hex.EncodeToString([]byte("early\n")))
	if len(w.sent) != 1 || !bytes.Equal(w.sent[0], want) {
		t.Fatalf("buffered console line not flushed: %q", w.sent)
	}
}

func TestQueryStopCodeExit(t *testing.T) {
	p := newFakeProcess(10, 2)
	p.threads[2].trap = target.TrapInfo{Event: target.EventExit, Pid: 10, Tid: 2, Status: 3}
	d := testSession(p)

	stop, err := d.queryStopCode(&fakeWire{}, Ptid{Tid: 2})
	assertNoError(err, t, "queryStopCode")
	if stop.Event != StopEventCleanExit || stop.Status != 3 {
		t.Errorf("stop = %+v, want clean exit with status 3", stop)
	}
	if len(stop.Registers) != 0 {
		t.Errorf("registers read for an exit event")
	}
}

func TestQueryStopCodeTrapRegisters(t *testing.T) {
	p := newFakeProcess(10, 2)
	th := p.threads[2]
	th.trap = target.TrapInfo{Event: target.EventTrap, Pid: 10, Tid: 2, Signal: 5}
	th.cpu.SetRegisterUint64("rsi", 0x11)
	th.cpu.SetRegisterUint64("rdi", 0x22)
	d := testSession(p)

	findReg := func(stop StopCode, regno int) []byte {
		for _, reg := range stop.Registers {
			if reg.Regno == regno {
				return reg.Data
			}
		}
		return nil
	}

	stop, err := d.queryStopCode(&fakeWire{mode: ModeGDB}, Ptid{Tid: 2})
	assertNoError(err, t, "queryStopCode gdb")
	if stop.Reason != StopReasonBreakpoint {
		t.Errorf("reason = %v, want breakpoint", stop.Reason)
	}
	// GDB numbering: rsi is 4
	if got := findReg(stop, 4); len(got) == 0 || got[0] != 0x11 {
		t.Errorf("gdb regno 4 = %v, want rsi (0x11)", got)
	}

	stop, err = d.queryStopCode(&fakeWire{mode: ModeLLDB}, Ptid{Tid: 2})
	assertNoError(err, t, "queryStopCode lldb")
	// LLDB numbering: 4 is rdi
	if got := findReg(stop, 4); len(got) == 0 || got[0] != 0x22 {
		t.Errorf("lldb regno 4 = %v, want rdi (0x22)", got)
	}
}

func TestReadWriteRegisterValue(t *testing.T) {
	p := newFakeProcess(10, 2)
	th := p.threads[2]
	th.cpu.SetRegisterUint64("rsi", 0xcafe)
	d := testSession(p)

	// GDB mode: regno 4 is rsi
	value, err := d.OnReadRegisterValue(&fakeWire{mode: ModeGDB}, Ptid{Tid: 2}, 4)
	assertNoError(err, t, "OnReadRegisterValue")
	if len(value) != 8 || value[0] != 0xfe || value[1] != 0xca {
		t.Fatalf("rsi bytes = %x", value)
	}

	// LLDB mode: regno 4 is rdi
	assertNoError(d.OnWriteRegisterValue(&fakeWire{mode: ModeLLDB}, Ptid{Tid: 2}, 4, value), t, "OnWriteRegisterValue")
	if th.cpu.RegisterUint64("rdi") != 0xcafe {
		t.Fatalf("rdi = %#x, want 0xcafe", th.cpu.RegisterUint64("rdi"))
	}

	if err := d.OnWriteRegisterValue(&fakeWire{mode: ModeGDB}, Ptid{Tid: 2}, 4, []byte{1, 2}); !errors.Is(err, target.ErrInvalidArgument) {
		t.Fatalf("short write: got %v, want ErrInvalidArgument", err)
	}
	if _, err := d.OnReadRegisterValue(&fakeWire{mode: ModeGDB}, Ptid{Tid: 2}, 9999); !errors.Is(err, target.ErrInvalidArgument) {
		t.Fatalf("unknown regno: got %v, want ErrInvalidArgument", err)
	}
}

func TestQueryRegisterInfo(t *testing.T) {
	d := testSession(newFakeProcess(10, 2))

	// LLDB regno 4 is rdi
	info, err := d.OnQueryRegisterInfo(&fakeWire{mode: ModeLLDB}, 4)
	assertNoError(err, t, "OnQueryRegisterInfo")
	if info.RegisterName != "rdi" || info.GenericName != "arg1" {
		t.Errorf("info = %+v, want rdi/arg1", info)
	}
	if info.SetName != "General Purpose Registers" {
		t.Errorf("set name = %q", info.SetName)
	}
	if info.Encoding != RegisterEncodingUInt || info.Format != RegisterFormatHex {
		t.Errorf("encoding/format = %v/%v", info.Encoding, info.Format)
	}

	// xmm0 is a vector register
	info, err = d.OnQueryRegisterInfo(&fakeWire{mode: ModeLLDB}, 40)
	assertNoError(err, t, "OnQueryRegisterInfo xmm0")
	if info.Encoding != RegisterEncodingVector || info.Format != RegisterFormatVectorUInt8 {
		t.Errorf("xmm0 encoding/format = %v/%v", info.Encoding, info.Format)
	}

	if _, err := d.OnQueryRegisterInfo(&fakeWire{mode: ModeLLDB}, 9999); !errors.Is(err, target.ErrInvalidArgument) {
		t.Errorf("unknown regno: got %v, want ErrInvalidArgument", err)
	}
}

func TestInterrupt(t *testing.T) {
	p := newFakeProcess(10, 2)
	d := testSession(p)
	assertNoError(d.OnInterrupt(&fakeWire{}), t, "OnInterrupt")
	if !p.interrupted {
		t.Fatalf("process not interrupted")
	}
}

func TestTerminate(t *testing.T) {
	p := newFakeProcess(10, 2)
	p.waitFn = func() {
		p.threads[2].trap = target.TrapInfo{Event: target.EventKill, Pid: 10, Tid: 2, Signal: 9}
	}
	d := testSession(p)

	stop, err := d.OnTerminate(&fakeWire{}, Ptid{})
	assertNoError(err, t, "OnTerminate")
	if !p.terminated || p.waitCalls != 1 {
		t.Fatalf("terminate/wait not called")
	}
	if stop.Event != StopEventSignalExit || stop.Signal != 9 {
		t.Fatalf("stop = %+v", stop)
	}
}
