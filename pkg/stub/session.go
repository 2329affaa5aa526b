package stub

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vigilo/vigilo/pkg/arch"
	"github.com/vigilo/vigilo/pkg/logflags"
	"github.com/vigilo/vigilo/pkg/target"
)

// LaunchFunc spawns a new inferior from the accumulated launch parameters.
type LaunchFunc func(sp *target.ProcessSpawner) (target.Process, error)

// AttachFunc attaches to a running process by pid.
type AttachFunc func(pid int) (target.Process, error)

// DebugSession owns the inferior and translates protocol operations into
// target process manipulation. All On* operations are serialized by the
// framing layer, with two concurrent callers: the inferior output reader,
// which is confined to the console pump, and the connection's interrupt
// watcher, which calls OnInterrupt while a resume wait is in flight.
type DebugSession struct {
	proc    target.Process
	spawner target.ProcessSpawner
	launch  LaunchFunc
	attach  AttachFunc

	environment []string

	// Thread list cursor. The snapshot taken on a reset does not change
	// until the next reset; threads born mid-enumeration are not observed.
	tids        []int
	threadIndex int

	allocations map[uint64]int

	// featureCache holds generated target description documents, keyed by
	// annex.
	featureCache *lru.Cache

	savedRegisters map[uint64]*arch.CPUState
	nextSavedID    uint64

	// resumeMu guards resumeSession and consoleBuf. resumeSession is
	// non-nil exactly while a resume is in flight; the console pump may
	// send only under the lock and only through a non-nil handle.
	resumeMu      sync.Mutex
	resumeSession wireSession
	consoleBuf    []byte

	log logflags.Logger
}

// NewDebugSession returns a session with no inferior. The launch and attach
// functions bind the session to a platform layer.
func NewDebugSession(launch LaunchFunc, attach AttachFunc) *DebugSession {
	return &DebugSession{
		launch:         launch,
		attach:         attach,
		allocations:    make(map[uint64]int),
		savedRegisters: make(map[uint64]*arch.CPUState),
		nextSavedID:    1,
		log:            logflags.StubLogger(),
	}
}

// SetEnvironment sets the environment block used for every spawned
// inferior.
func (d *DebugSession) SetEnvironment(env []string) {
	d.environment = env
}

// Process returns the current inferior handle, nil when there is none.
func (d *DebugSession) Process() target.Process {
	return d.proc
}

// LaunchProcess spawns the initial inferior from argv.
func (d *DebugSession) LaunchProcess(args []string) error {
	return d.spawnProcess(args)
}

// AttachProcess attaches the session to a running process.
func (d *DebugSession) AttachProcess(pid int) error {
	proc, err := d.attach(pid)
	if err != nil {
		return err
	}
	d.proc = proc
	return nil
}

// Release tears down the session: every outstanding debugger allocation is
// returned to the inferior and the process handle is destroyed.
func (d *DebugSession) Release() {
	if d.proc == nil {
		return
	}
	for addr, size := range d.allocations {
		if err := d.proc.DeallocateMemory(addr, size); err != nil {
			d.log.Warnf("leaking allocation at %#x: %v", addr, err)
		}
		delete(d.allocations, addr)
	}
	d.proc.Release()
	d.proc = nil
}

// GPRSize returns the width in bits of a general purpose register of the
// inferior, 0 when it cannot be determined.
func (d *DebugSession) GPRSize() int {
	if d.proc == nil {
		return 0
	}
	info, err := d.proc.GetInfo()
	if err != nil {
		return 0
	}
	return info.PointerSize << 3
}

// OnInterrupt asks the inferior to stop; the resume engine observes the
// stop through its wait.
func (d *DebugSession) OnInterrupt(s wireSession) error {
	return d.proc.Interrupt()
}

// OnQuerySupported negotiates capabilities with the debugger.
func (d *DebugSession) OnQuerySupported(s wireSession, remote []Feature) ([]Feature, error) {
	for _, feature := range remote {
		d.log.Debugf("peer feature: %s", feature)
	}

	local := []Feature{
		{Name: "PacketSize", Value: "3fff"},
		{Name: "ConditionalBreakpoints", Flag: '-'},
	}
	if d.proc != nil && d.proc.BreakpointManager() != nil {
		local = append(local, Feature{Name: "BreakpointCommands", Flag: '+'})
	} else {
		local = append(local, Feature{Name: "BreakpointCommands", Flag: '-'})
	}
	local = append(local,
		Feature{Name: "QPassSignals", Flag: '+'},
		Feature{Name: "QProgramSignals", Flag: '+'},
		Feature{Name: "QStartNoAckMode", Flag: '+'},
		Feature{Name: "QDisableRandomization", Flag: '+'},
		Feature{Name: "QNonStop", Flag: '+'},
		Feature{Name: "multiprocess", Flag: '+'},
	)
	isELF := d.proc != nil && d.proc.IsELF()
	if isELF {
		local = append(local, Feature{Name: "qXfer:auxv:read", Flag: '+'})
	}
	local = append(local, Feature{Name: "qXfer:features:read", Flag: '+'})
	if isELF {
		local = append(local, Feature{Name: "qXfer:libraries-svr4:read", Flag: '+'})
	} else {
		local = append(local, Feature{Name: "qXfer:libraries:read", Flag: '+'})
	}
	local = append(local,
		Feature{Name: "qXfer:osdata:read", Flag: '+'},
		Feature{Name: "qXfer:siginfo:read", Flag: '+'},
		Feature{Name: "qXfer:siginfo:write", Flag: '+'},
		Feature{Name: "qXfer:threads:read", Flag: '+'},
		// Tracepoints are not implemented.
		Feature{Name: "Qbtrace:bts", Flag: '-'},
		Feature{Name: "Qbtrace:off", Flag: '-'},
		Feature{Name: "tracenz", Flag: '-'},
		Feature{Name: "ConditionalTracepoints", Flag: '-'},
		Feature{Name: "TracepointSource", Flag: '-'},
		Feature{Name: "EnableDisableTracepoints", Flag: '-'},
	)
	return local, nil
}

// OnPassSignals replaces the set of signals delivered to the inferior
// without stopping.
func (d *DebugSession) OnPassSignals(s wireSession, signals []int) error {
	d.proc.ResetSignalPass()
	for _, signo := range signals {
		d.log.Debugf("passing signal %d", signo)
		d.proc.SetSignalPass(signo, true)
	}
	return nil
}

// OnProgramSignals marks signals as program signals; unlike OnPassSignals
// this modifies the existing mask instead of replacing it.
func (d *DebugSession) OnProgramSignals(s wireSession, signals []int) error {
	for _, signo := range signals {
		d.log.Debugf("programming signal %d", signo)
		d.proc.SetSignalPass(signo, false)
	}
	return nil
}

// OnNonStopMode rejects enabling non-stop mode.
func (d *DebugSession) OnNonStopMode(s wireSession, enable bool) error {
	if enable {
		return target.ErrUnsupported
	}
	return nil
}

// findThread resolves a ptid selector to a live thread handle.
func (d *DebugSession) findThread(ptid Ptid) target.Thread {
	if d.proc == nil {
		return nil
	}
	if ptid.Pid > 0 && ptid.Pid != d.proc.Pid() {
		return nil
	}
	if ptid.Tid <= 0 {
		return d.proc.CurrentThread()
	}
	return d.proc.Thread(ptid.Tid)
}

// OnQueryThreadStopInfo reports the stop reason of one thread.
func (d *DebugSession) OnQueryThreadStopInfo(s wireSession, ptid Ptid) (StopCode, error) {
	if d.findThread(ptid) == nil {
		return StopCode{}, target.ErrProcessNotFound
	}
	return d.queryStopCode(s, ptid)
}

// OnQueryThreadList is the thread enumeration cursor: lastTid AllThreadID
// snapshots the thread ids and rewinds, AnyThreadID advances by one.
func (d *DebugSession) OnQueryThreadList(s wireSession, pid, lastTid int) (int, error) {
	if d.proc == nil {
		return 0, target.ErrProcessNotFound
	}

	switch lastTid {
	case AllThreadID:
		d.threadIndex = 0
		d.tids = d.proc.ThreadIDs()
	case AnyThreadID:
		d.threadIndex++
	default:
		return 0, target.ErrInvalidArgument
	}

	if d.threadIndex >= len(d.tids) {
		return 0, target.ErrNotFound
	}
	return d.tids[d.threadIndex], nil
}

// OnQueryCurrentThread reports the thread the process designates as
// default.
func (d *DebugSession) OnQueryCurrentThread(s wireSession) (Ptid, error) {
	if d.proc == nil {
		return Ptid{}, target.ErrProcessNotFound
	}
	thread := d.proc.CurrentThread()
	if thread == nil {
		return Ptid{}, target.ErrProcessNotFound
	}
	return Ptid{Pid: d.proc.Pid(), Tid: thread.Tid()}, nil
}

// OnThreadIsAlive succeeds iff the thread exists and has not terminated.
func (d *DebugSession) OnThreadIsAlive(s wireSession, ptid Ptid) error {
	if d.proc == nil {
		return target.ErrProcessNotFound
	}
	thread := d.findThread(ptid)
	if thread == nil {
		return target.ErrProcessNotFound
	}
	if thread.State() == target.ThreadTerminated {
		return target.ErrInvalidArgument
	}
	return nil
}

// OnQueryAttached reports whether the session attached to a pre-existing
// process.
func (d *DebugSession) OnQueryAttached(s wireSession, pid int) (bool, error) {
	if d.proc == nil {
		return false, target.ErrProcessNotFound
	}
	if pid > 0 && pid != d.proc.Pid() {
		return false, target.ErrProcessNotFound
	}
	return d.proc.Attached(), nil
}

// OnQueryProcessInfo describes the inferior.
func (d *DebugSession) OnQueryProcessInfo(s wireSession) (target.ProcessInfo, error) {
	if d.proc == nil {
		return target.ProcessInfo{}, target.ErrProcessNotFound
	}
	return d.proc.GetInfo()
}

// OnQuerySharedLibrariesInfoAddress reports the address of the dynamic
// loader rendezvous structure.
func (d *DebugSession) OnQuerySharedLibrariesInfoAddress(s wireSession) (uint64, error) {
	if d.proc == nil {
		return 0, target.ErrProcessNotFound
	}
	return d.proc.SharedLibraryInfoAddress()
}

// OnReadMemory reads length bytes of inferior memory.
func (d *DebugSession) OnReadMemory(s wireSession, addr uint64, length int) ([]byte, error) {
	if d.proc == nil {
		return nil, target.ErrProcessNotFound
	}
	return d.proc.ReadMemory(addr, length)
}

// OnWriteMemory writes data to inferior memory and reports the number of
// bytes written.
func (d *DebugSession) OnWriteMemory(s wireSession, addr uint64, data []byte) (int, error) {
	if d.proc == nil {
		return 0, target.ErrProcessNotFound
	}
	return d.proc.WriteMemory(addr, data)
}

// OnAllocateMemory allocates inferior memory on behalf of the debugger and
// records the allocation so that deallocation knows the size.
func (d *DebugSession) OnAllocateMemory(s wireSession, size int, perms target.MemPerms) (uint64, error) {
	addr, err := d.proc.AllocateMemory(size, perms)
	if err != nil {
		return 0, err
	}
	d.allocations[addr] = size
	return addr, nil
}

// OnDeallocateMemory releases a debugger requested allocation.
func (d *DebugSession) OnDeallocateMemory(s wireSession, addr uint64) error {
	size, ok := d.allocations[addr]
	if !ok {
		return target.ErrInvalidArgument
	}
	if err := d.proc.DeallocateMemory(addr, size); err != nil {
		return err
	}
	delete(d.allocations, addr)
	return nil
}

// OnSaveRegisters snapshots the CPU state of a thread under a fresh id.
func (d *DebugSession) OnSaveRegisters(s wireSession, ptid Ptid) (uint64, error) {
	thread := d.findThread(ptid)
	if thread == nil {
		return 0, target.ErrProcessNotFound
	}
	state, err := thread.ReadCPUState()
	if err != nil {
		return 0, err
	}
	id := d.nextSavedID
	d.nextSavedID++
	d.savedRegisters[id] = state
	return id, nil
}

// OnRestoreRegisters writes a saved CPU state back and consumes the entry.
func (d *DebugSession) OnRestoreRegisters(s wireSession, ptid Ptid, id uint64) error {
	thread := d.findThread(ptid)
	if thread == nil {
		return target.ErrProcessNotFound
	}
	state, ok := d.savedRegisters[id]
	if !ok {
		return target.ErrNotFound
	}
	if err := thread.WriteCPUState(state); err != nil {
		return err
	}
	delete(d.savedRegisters, id)
	return nil
}

// OnSetProgramArguments spawns a fresh inferior with args[0] as the
// executable.
func (d *DebugSession) OnSetProgramArguments(s wireSession, args []string) error {
	if err := d.spawnProcess(args); err != nil {
		return err
	}
	if d.proc == nil {
		return target.ErrUnknown
	}
	return nil
}

// OnQueryLaunchSuccess always reports success; a failed launch is reported
// by the error returned from OnSetProgramArguments instead.
func (d *DebugSession) OnQueryLaunchSuccess(s wireSession, pid int) error {
	return nil
}

// OnAttach attaches to a running process and reports its stop state.
func (d *DebugSession) OnAttach(s wireSession, pid int, mode AttachMode) (StopCode, error) {
	if d.proc != nil {
		return StopCode{}, target.ErrAlreadyExist
	}
	if mode != AttachNow {
		return StopCode{}, target.ErrInvalidArgument
	}

	d.log.Infof("attaching to pid %d", pid)
	proc, err := d.attach(pid)
	if err != nil {
		return StopCode{}, err
	}
	if proc == nil {
		return StopCode{}, target.ErrProcessNotFound
	}
	d.proc = proc

	return d.queryStopCode(s, Ptid{Pid: pid})
}

// OnDetach lets the inferior go: breakpoints are cleared first so that no
// trap of ours outlives the session.
func (d *DebugSession) OnDetach(s wireSession, pid int, stopped bool) error {
	if bpm := d.proc.BreakpointManager(); bpm != nil {
		bpm.Clear()
	}

	if stopped {
		if err := d.proc.Suspend(); err != nil {
			return err
		}
	}

	return d.proc.Detach()
}

// OnTerminate kills the inferior and reports the terminal stop.
func (d *DebugSession) OnTerminate(s wireSession, ptid Ptid) (StopCode, error) {
	if err := d.proc.Terminate(); err != nil {
		d.log.Errorf("couldn't terminate process: %v", err)
		return StopCode{}, err
	}

	if err := d.proc.Wait(); err != nil {
		d.log.Errorf("couldn't wait for process termination: %v", err)
		return StopCode{}, err
	}

	return d.queryStopCode(s, Ptid{Pid: d.proc.Pid()})
}

// spawnProcess launches a new inferior, routing its console output through
// the pump.
func (d *DebugSession) spawnProcess(args []string) error {
	if len(args) == 0 {
		return target.ErrInvalidArgument
	}
	d.log.Debugf("spawning process with args: %q env: %q", args, d.environment)

	d.spawner.SetExecutable(args[0])
	d.spawner.SetArguments(args[1:])
	d.spawner.SetEnvironment(d.environment)
	d.spawner.RedirectOutputToDelegate(d.consoleOutput)
	d.spawner.RedirectErrorToDelegate(d.consoleOutput)

	proc, err := d.launch(&d.spawner)
	if err != nil || proc == nil {
		d.log.Errorf("cannot execute %q: %v", args[0], err)
		return target.ErrUnknown
	}
	d.proc = proc
	return nil
}

func (d *DebugSession) String() string {
	if d.proc == nil {
		return "session(no process)"
	}
	return fmt.Sprintf("session(pid %d)", d.proc.Pid())
}
