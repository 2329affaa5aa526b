//go:build linux && amd64
// +build linux,amd64

// Package native controls the inferior with ptrace on linux/amd64.
package native

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/creack/pty"
	sys "golang.org/x/sys/unix"

	"github.com/vigilo/vigilo/pkg/arch"
	"github.com/vigilo/vigilo/pkg/logflags"
	"github.com/vigilo/vigilo/pkg/target"
)

// nativeProcess is the linux implementation of target.Process.
type nativeProcess struct {
	pid      int
	attached bool

	threads       map[int]*nativeThread
	currentThread *nativeThread

	bpm *breakpointManager
	mem *os.File

	// All ptrace requests must come from the same thread that attached;
	// they are funneled through ptraceChan into a locked OS thread.
	ptraceChan     chan func()
	ptraceDoneChan chan interface{}

	signalPass map[int]bool

	// pendingStop is set when an event is consumed outside Wait (during
	// a breakpoint step-over); the next Resume reports it instead of
	// restarting the inferior.
	pendingStop bool

	tty      *os.File
	exePath  string
	released bool

	log logflags.Logger
}

func newProcess(pid int) *nativeProcess {
	dbp := &nativeProcess{
		pid:            pid,
		threads:        make(map[int]*nativeThread),
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
		signalPass:     make(map[int]bool),
		log:            logflags.StubLogger(),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

func (dbp *nativeProcess) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// the execution of dbg. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
}

func (dbp *nativeProcess) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// Launch spawns a new traced inferior from the accumulated launch
// parameters. Standard output and standard error share one pty, and
// everything read from it goes to the spawner's OutputDelegate; the
// ErrorDelegate is not used.
func Launch(sp *target.ProcessSpawner) (target.Process, error) {
	dbp := newProcess(0)

	var (
		cmd *exec.Cmd
		tty *os.File
		err error
	)
	dbp.execPtraceFunc(func() {
		cmd = exec.Command(sp.Executable, sp.Arguments...)
		cmd.Env = append(os.Environ(), sp.Environment...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
		tty, err = pty.Start(cmd)
	})
	if err != nil {
		return nil, err
	}

	dbp.pid = cmd.Process.Pid
	dbp.tty = tty
	dbp.exePath = sp.Executable

	if delegate := sp.OutputDelegate; delegate != nil {
		go func() {
			buf := make([]byte, 4096)
			for {
				n, err := tty.Read(buf)
				if n > 0 {
					delegate(buf[:n])
				}
				if err != nil {
					return
				}
			}
		}()
	}

	// wait for the exec trap
	var status sys.WaitStatus
	dbp.execPtraceFunc(func() {
		_, err = sys.Wait4(dbp.pid, &status, sys.WALL, nil)
	})
	if err != nil {
		return nil, err
	}
	if err := dbp.initialize(); err != nil {
		return nil, err
	}
	return dbp, nil
}

// Attach stops a running process and takes control of every thread it
// already has.
func Attach(pid int) (target.Process, error) {
	dbp := newProcess(pid)
	dbp.attached = true

	var err error
	dbp.execPtraceFunc(func() { err = sys.PtraceAttach(pid) })
	if err != nil {
		return nil, err
	}
	var status sys.WaitStatus
	dbp.execPtraceFunc(func() {
		_, err = sys.Wait4(pid, &status, sys.WALL, nil)
	})
	if err != nil {
		return nil, err
	}
	dbp.exePath, _ = os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err := dbp.initialize(); err != nil {
		return nil, err
	}
	return dbp, nil
}

func (dbp *nativeProcess) initialize() error {
	mem, err := os.OpenFile(fmt.Sprintf("/proc/%d/mem", dbp.pid), os.O_RDWR, 0)
	if err != nil {
		return err
	}
	dbp.mem = mem
	dbp.bpm = &breakpointManager{dbp: dbp, breakpoints: make(map[uint64]*breakpoint)}

	dbp.execPtraceFunc(func() {
		err = sys.PtraceSetOptions(dbp.pid, sys.PTRACE_O_TRACECLONE)
	})
	if err != nil {
		dbp.log.Warnf("cannot set ptrace options: %v", err)
	}

	if err := dbp.updateThreadList(); err != nil {
		return err
	}
	main := dbp.threads[dbp.pid]
	if main == nil {
		return target.ErrProcessNotFound
	}
	main.trap = target.TrapInfo{
		Event:  target.EventStop,
		Pid:    dbp.pid,
		Tid:    dbp.pid,
		Signal: int(sys.SIGTRAP),
	}
	dbp.currentThread = main
	return nil
}

// updateThreadList attaches to every task of the inferior that is not yet
// traced.
func (dbp *nativeProcess) updateThreadList() error {
	tids, err := taskIDs(dbp.pid)
	if err != nil {
		return err
	}
	for _, tid := range tids {
		if _, ok := dbp.threads[tid]; ok {
			continue
		}
		if tid != dbp.pid {
			var err error
			dbp.execPtraceFunc(func() { err = sys.PtraceAttach(tid) })
			if err != nil {
				dbp.log.Warnf("cannot attach to tid %d: %v", tid, err)
				continue
			}
			var status sys.WaitStatus
			dbp.execPtraceFunc(func() {
				_, err = sys.Wait4(tid, &status, sys.WALL, nil)
			})
			if err != nil {
				dbp.log.Warnf("wait for tid %d: %v", tid, err)
			}
		}
		dbp.addThread(tid)
	}
	return nil
}

func (dbp *nativeProcess) addThread(tid int) *nativeThread {
	th := &nativeThread{tid: tid, dbp: dbp, state: target.ThreadStopped}
	dbp.threads[tid] = th
	return th
}

func taskIDs(pid int) ([]int, error) {
	entries, err := ioutil.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(entries))
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids, nil
}

func (dbp *nativeProcess) Pid() int { return dbp.pid }

func (dbp *nativeProcess) Attached() bool { return dbp.attached }

func (dbp *nativeProcess) CurrentThread() target.Thread {
	if dbp.currentThread == nil {
		return nil
	}
	return dbp.currentThread
}

func (dbp *nativeProcess) Thread(tid int) target.Thread {
	th, ok := dbp.threads[tid]
	if !ok {
		return nil
	}
	return th
}

func (dbp *nativeProcess) ThreadIDs() []int {
	tids := make([]int, 0, len(dbp.threads))
	for tid := range dbp.threads {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids
}

func (dbp *nativeProcess) EnumerateThreads(fn func(target.Thread)) {
	for _, tid := range dbp.ThreadIDs() {
		fn(dbp.threads[tid])
	}
}

func (dbp *nativeProcess) GetInfo() (target.ProcessInfo, error) {
	info := target.ProcessInfo{
		Pid:          dbp.pid,
		Architecture: "x86_64",
		OSType:       "linux",
		Endian:       "little",
		PointerSize:  8,
	}
	if comm, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/comm", dbp.pid)); err == nil {
		info.Name = strings.TrimSuffix(string(comm), "\n")
	}
	if stat, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/stat", dbp.pid)); err == nil {
		fields := strings.Fields(string(stat))
		if len(fields) > 3 {
			info.ParentPid, _ = strconv.Atoi(fields[3])
		}
	}
	return info, nil
}

func (dbp *nativeProcess) ReadMemory(addr uint64, size int) ([]byte, error) {
	data := make([]byte, size)
	n, err := dbp.mem.ReadAt(data, int64(addr))
	if err != nil && n == 0 {
		return nil, err
	}
	return data[:n], nil
}

func (dbp *nativeProcess) WriteMemory(addr uint64, data []byte) (int, error) {
	return dbp.mem.WriteAt(data, int64(addr))
}

func (dbp *nativeProcess) AllocateMemory(size int, perms target.MemPerms) (uint64, error) {
	// Allocating inferior memory needs a code injection engine.
	return 0, target.ErrUnsupported
}

func (dbp *nativeProcess) DeallocateMemory(addr uint64, size int) error {
	return target.ErrUnsupported
}

func (dbp *nativeProcess) AuxiliaryVector() ([]byte, error) {
	return ioutil.ReadFile(fmt.Sprintf("/proc/%d/auxv", dbp.pid))
}

func (dbp *nativeProcess) IsELF() bool {
	f, err := os.Open(fmt.Sprintf("/proc/%d/exe", dbp.pid))
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := f.Read(magic); err != nil {
		return false
	}
	return bytes.Equal(magic, []byte("\x7fELF"))
}

// SharedLibraryInfoAddress scans the inferior's dynamic section for the
// DT_DEBUG entry and returns the r_debug address stored there.
func (dbp *nativeProcess) SharedLibraryInfoAddress() (uint64, error) {
	dynAddr, err := dbp.dynamicSection()
	if err != nil {
		return 0, err
	}
	const dtDebug = 21
	entry := make([]byte, 16)
	for addr := dynAddr; ; addr += 16 {
		if _, err := dbp.mem.ReadAt(entry, int64(addr)); err != nil {
			return 0, target.ErrNotFound
		}
		tag := binary.LittleEndian.Uint64(entry[:8])
		val := binary.LittleEndian.Uint64(entry[8:])
		if tag == 0 { // DT_NULL
			return 0, target.ErrNotFound
		}
		if tag == dtDebug {
			if val == 0 {
				return 0, target.ErrNotFound
			}
			return val, nil
		}
	}
}

// dynamicSection locates the runtime address of the main module's
// PT_DYNAMIC segment.
func (dbp *nativeProcess) dynamicSection() (uint64, error) {
	exe, err := elfOpen(fmt.Sprintf("/proc/%d/exe", dbp.pid))
	if err != nil {
		return 0, err
	}
	defer exe.close()

	if exe.dynVaddr == 0 {
		return 0, target.ErrNotFound
	}
	if exe.fixedLoad {
		// non-PIE, vaddrs are absolute
		return exe.dynVaddr, nil
	}
	base, err := dbp.moduleBase(dbp.exePath)
	if err != nil {
		return 0, err
	}
	return base + exe.dynVaddr, nil
}

func (dbp *nativeProcess) moduleBase(path string) (uint64, error) {
	maps, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/maps", dbp.pid))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(maps), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 || fields[5] != path {
			continue
		}
		dash := strings.IndexByte(fields[0], '-')
		base, err := strconv.ParseUint(fields[0][:dash], 16, 64)
		if err != nil {
			return 0, err
		}
		return base, nil
	}
	return 0, target.ErrNotFound
}

// EnumerateSharedLibraries lists the modules mapped into the inferior.
// TODO: walk the r_debug link map instead of /proc/<pid>/maps so that lm
// reports the real link_map node addresses.
func (dbp *nativeProcess) EnumerateSharedLibraries(fn func(target.SharedLibrary)) error {
	maps, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/maps", dbp.pid))
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(maps), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		path := fields[5]
		if !filepath.IsAbs(path) || seen[path] {
			continue
		}
		seen[path] = true
		dash := strings.IndexByte(fields[0], '-')
		base, err := strconv.ParseUint(fields[0][:dash], 16, 64)
		if err != nil {
			continue
		}
		fn(target.SharedLibrary{
			Main:        path == dbp.exePath,
			Path:        path,
			MapAddress:  base,
			BaseAddress: base,
			LDAddress:   base,
		})
	}
	return nil
}

func (dbp *nativeProcess) BreakpointManager() target.BreakpointManager {
	if dbp.bpm == nil {
		return nil
	}
	return dbp.bpm
}

func (dbp *nativeProcess) GDBRegistersDescriptor() *arch.GDBDescriptor {
	return arch.AMD64GDB
}

func (dbp *nativeProcess) LLDBRegistersDescriptor() *arch.LLDBDescriptor {
	return arch.AMD64LLDB
}

// BeforeResume steps the current thread over a breakpoint it is stopped
// on, so that the breakpoint can stay armed while the process runs.
func (dbp *nativeProcess) BeforeResume() error {
	th := dbp.currentThread
	if th == nil || th.state != target.ThreadStopped {
		return nil
	}
	return dbp.bpm.stepOver(th)
}

func (dbp *nativeProcess) AfterResume() error {
	return nil
}

// Resume continues every stopped thread not in excluded. ErrAlreadyExist
// reports a stop consumed during BeforeResume; the caller skips its wait.
func (dbp *nativeProcess) Resume(signal int, excluded map[target.Thread]bool) error {
	if dbp.pendingStop {
		dbp.pendingStop = false
		return target.ErrAlreadyExist
	}
	for _, tid := range dbp.ThreadIDs() {
		th := dbp.threads[tid]
		if excluded[th] || th.state != target.ThreadStopped {
			continue
		}
		sig := 0
		if th == dbp.currentThread {
			sig = signal
		}
		var err error
		dbp.execPtraceFunc(func() { err = sys.PtraceCont(tid, sig) })
		if err != nil {
			dbp.log.Warnf("cannot continue tid %d: %v", tid, err)
			continue
		}
		th.state = target.ThreadRunning
	}
	return nil
}

// Wait blocks until a thread reports an event and shapes it into that
// thread's trap info.
func (dbp *nativeProcess) Wait() error {
	for {
		var status sys.WaitStatus
		var wpid int
		var err error
		dbp.execPtraceFunc(func() {
			wpid, err = sys.Wait4(-1, &status, sys.WALL, nil)
		})
		if err != nil {
			return err
		}

		th := dbp.threads[wpid]
		if th == nil {
			th = dbp.addThread(wpid)
		}

		switch {
		case status.Exited():
			if wpid == dbp.pid {
				th.state = target.ThreadTerminated
				th.trap = target.TrapInfo{
					Event:  target.EventExit,
					Pid:    dbp.pid,
					Tid:    wpid,
					Status: status.ExitStatus(),
				}
				dbp.currentThread = th
				return nil
			}
			delete(dbp.threads, wpid)
			continue

		case status.Signaled():
			event := target.EventKill
			if status.CoreDump() {
				event = target.EventCoreDump
			}
			th.state = target.ThreadTerminated
			th.trap = target.TrapInfo{
				Event:  event,
				Pid:    dbp.pid,
				Tid:    wpid,
				Signal: int(status.Signal()),
			}
			dbp.currentThread = th
			return nil

		case status.Stopped():
			sig := status.StopSignal()

			if sig == sys.SIGTRAP && status.TrapCause() == sys.PTRACE_EVENT_CLONE {
				// a new thread was born; trace it and keep everyone going
				var newTid uint
				dbp.execPtraceFunc(func() { newTid, _ = sys.PtraceGetEventMsg(wpid) })
				newTh := dbp.addThread(int(newTid))
				dbp.execPtraceFunc(func() {
					sys.PtraceCont(int(newTid), 0)
					sys.PtraceCont(wpid, 0)
				})
				newTh.state = target.ThreadRunning
				th.state = target.ThreadRunning
				continue
			}

			if sig != sys.SIGTRAP && sig != sys.SIGSTOP && dbp.signalPass[int(sig)] {
				// pass the signal through without reporting the stop
				dbp.execPtraceFunc(func() { err = sys.PtraceCont(wpid, int(sig)) })
				if err == nil {
					continue
				}
			}

			event := target.EventStop
			if sig == sys.SIGTRAP {
				event = target.EventTrap
				dbp.bpm.adjustPC(th)
			}
			th.state = target.ThreadStopped
			th.trap = target.TrapInfo{
				Event:  event,
				Pid:    dbp.pid,
				Tid:    wpid,
				Core:   threadCore(dbp.pid, wpid),
				Signal: int(sig),
			}
			dbp.currentThread = th
			return nil
		}
	}
}

func (dbp *nativeProcess) Interrupt() error {
	return sys.Kill(dbp.pid, sys.SIGSTOP)
}

func (dbp *nativeProcess) Suspend() error {
	for _, tid := range dbp.ThreadIDs() {
		th := dbp.threads[tid]
		if th.state != target.ThreadRunning {
			continue
		}
		if err := sys.Tgkill(dbp.pid, tid, sys.SIGSTOP); err != nil {
			return err
		}
		var status sys.WaitStatus
		var err error
		dbp.execPtraceFunc(func() {
			_, err = sys.Wait4(tid, &status, sys.WALL, nil)
		})
		if err != nil {
			return err
		}
		th.state = target.ThreadStopped
	}
	return nil
}

func (dbp *nativeProcess) Terminate() error {
	return sys.Kill(dbp.pid, sys.SIGKILL)
}

func (dbp *nativeProcess) Detach() error {
	var err error
	for _, tid := range dbp.ThreadIDs() {
		dbp.execPtraceFunc(func() {
			derr := sys.PtraceDetach(tid)
			if derr != nil && err == nil {
				err = derr
			}
		})
	}
	if err != nil {
		return err
	}
	dbp.attached = false
	return nil
}

func (dbp *nativeProcess) SetSignalPass(signal int, pass bool) {
	if pass {
		dbp.signalPass[signal] = true
	} else {
		delete(dbp.signalPass, signal)
	}
}

func (dbp *nativeProcess) ResetSignalPass() {
	dbp.signalPass = make(map[int]bool)
}

// Release tears down the handle: a spawned inferior is killed, an attached
// one is detached.
func (dbp *nativeProcess) Release() {
	if dbp.released {
		return
	}
	dbp.released = true

	if dbp.attached {
		dbp.Detach()
	} else if dbp.currentThread != nil && dbp.currentThread.state != target.ThreadTerminated {
		sys.Kill(dbp.pid, sys.SIGKILL)
		var status sys.WaitStatus
		dbp.execPtraceFunc(func() {
			sys.Wait4(dbp.pid, &status, sys.WALL, nil)
		})
	}
	if dbp.mem != nil {
		dbp.mem.Close()
	}
	if dbp.tty != nil {
		dbp.tty.Close()
	}
	close(dbp.ptraceChan)
}

// threadCore reads the processor a thread last ran on from its stat file.
func threadCore(pid, tid int) int {
	stat, err := ioutil.ReadFile(fmt.Sprintf("/proc/%d/task/%d/stat", pid, tid))
	if err != nil {
		return -1
	}
	// the command name may contain spaces, skip past it first
	idx := bytes.LastIndexByte(stat, ')')
	if idx < 0 {
		return -1
	}
	fields := strings.Fields(string(stat[idx+1:]))
	const coreField = 36 // field 39; the fields after ')' start at field 3
	if len(fields) <= coreField {
		return -1
	}
	core, err := strconv.Atoi(fields[coreField])
	if err != nil {
		return -1
	}
	return core
}
