// Package target defines the contracts between the debug session core and
// the platform layer controlling the inferior process.
package target

import (
	"errors"

	"github.com/vigilo/vigilo/pkg/arch"
)

// Error taxonomy shared by the session core and the platform layer. The
// session returns these verbatim to the protocol encoder; the platform
// layer wraps system errors only when none of the kinds below applies.
var (
	ErrUnsupported     = errors.New("unsupported")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrProcessNotFound = errors.New("process not found")
	ErrAlreadyExist    = errors.New("already exists")
	ErrUnknown         = errors.New("unknown error")
)

// ThreadState is the execution state of one thread.
type ThreadState uint8

const (
	ThreadInvalid ThreadState = iota
	ThreadRunning
	ThreadStepped
	ThreadStopped
	ThreadTerminated
)

// TrapEvent is the kind of event that last stopped a thread.
type TrapEvent uint8

const (
	EventNone TrapEvent = iota
	EventExit
	EventKill
	EventCoreDump
	EventTrap
	EventStop
)

// TrapInfo is the raw per-thread report of the cause of the last stop.
type TrapInfo struct {
	Event  TrapEvent
	Pid    int
	Tid    int
	Core   int
	Signal int
	Status int
}

// ProcessInfo describes the inferior to the debugger.
type ProcessInfo struct {
	Pid          int
	ParentPid    int
	Name         string
	Architecture string
	OSType       string
	Endian       string
	PointerSize  int
}

// SharedLibrary is one entry of the dynamic loader link map.
type SharedLibrary struct {
	Main        bool
	Path        string
	MapAddress  uint64
	BaseAddress uint64
	LDAddress   uint64
}

// MemPerms are memory protection bits for debugger requested allocations.
type MemPerms uint8

const (
	PermRead MemPerms = 1 << iota
	PermWrite
	PermExec
)

// BreakpointManager owns the software breakpoints set in one process.
type BreakpointManager interface {
	// Add sets a breakpoint of the given instruction size at addr;
	// permanent breakpoints survive hits.
	Add(addr uint64, permanent bool, size int) error
	// Remove deletes the breakpoint at addr.
	Remove(addr uint64) error
	// Clear removes every breakpoint.
	Clear() error
}

// Thread is a weak handle to one thread of the inferior. The process owns
// the thread; holders must tolerate the thread disappearing between
// resolution and use.
type Thread interface {
	Pid() int
	Tid() int
	Core() int
	State() ThreadState
	TrapInfo() TrapInfo
	ReadCPUState() (*arch.CPUState, error)
	WriteCPUState(state *arch.CPUState) error
	// Resume continues the thread, optionally delivering a signal and
	// moving the program counter to addr first (addr 0 means "from here").
	Resume(signal int, addr uint64) error
	// Step executes one instruction, with the same signal and addr
	// semantics as Resume.
	Step(signal int, addr uint64) error
}

// Process is the exclusive handle to the inferior.
type Process interface {
	GetInfo() (ProcessInfo, error)
	Pid() int
	// Attached reports whether the inferior existed before the session
	// (attach) as opposed to being spawned by it.
	Attached() bool
	CurrentThread() Thread
	Thread(tid int) Thread
	ThreadIDs() []int
	EnumerateThreads(fn func(Thread))

	ReadMemory(addr uint64, size int) ([]byte, error)
	WriteMemory(addr uint64, data []byte) (int, error)
	AllocateMemory(size int, perms MemPerms) (uint64, error)
	DeallocateMemory(addr uint64, size int) error

	AuxiliaryVector() ([]byte, error)
	SharedLibraryInfoAddress() (uint64, error)
	EnumerateSharedLibraries(fn func(SharedLibrary)) error
	IsELF() bool

	// BreakpointManager returns nil when the process does not support
	// stub-side breakpoints.
	BreakpointManager() BreakpointManager

	GDBRegistersDescriptor() *arch.GDBDescriptor
	LLDBRegistersDescriptor() *arch.LLDBDescriptor

	// BeforeResume and AfterResume bracket every resume of the process,
	// giving the platform layer a chance to step over breakpoints and to
	// re-arm them.
	BeforeResume() error
	AfterResume() error

	// Resume continues every stopped thread not in excluded. It returns
	// ErrAlreadyExist when a stop is already pending, in which case the
	// caller must not wait.
	Resume(signal int, excluded map[Thread]bool) error
	Interrupt() error
	Suspend() error
	Terminate() error
	Detach() error
	// Wait blocks until a thread of the inferior reports an event and
	// records it as that thread's trap info.
	Wait() error

	SetSignalPass(signal int, pass bool)
	ResetSignalPass()

	// Release tears down the handle and every resource it owns.
	Release()
}
