// Package stub implements the stub side of the GDB Remote Serial Protocol:
// the wire framing, the packet dispatch and the debug session core tying
// the protocol to the target process.
package stub

import (
	"fmt"

	"github.com/vigilo/vigilo/pkg/arch"
)

// Mode selects the dialect of the connected debugger. GDB and LLDB
// interpret several packet families with subtle differences (register
// numbering, stop reply contents, breakpoint ownership).
type Mode uint8

const (
	ModeGDB Mode = iota
	ModeLLDB
)

func (m Mode) String() string {
	if m == ModeLLDB {
		return "lldb"
	}
	return "gdb"
}

// Thread id wildcards of the thread list cursor and of ptid selectors.
const (
	AllThreadID = -1
	AnyThreadID = 0
)

// Ptid selects a thread: either component may be 0 (current/implicit),
// negative (wildcard) or positive (explicit).
type Ptid struct {
	Pid int
	Tid int
}

// Any reports whether the selector matches every thread of every process.
func (p Ptid) Any() bool {
	return p.Pid <= 0 && p.Tid <= 0
}

func (p Ptid) String() string {
	return fmt.Sprintf("p%x.%x", p.Pid, p.Tid)
}

// ResumeAction is the kind of one vCont action.
type ResumeAction uint8

const (
	ResumeActionNone ResumeAction = iota
	ResumeActionContinue
	ResumeActionContinueWithSignal
	ResumeActionSingleStep
	ResumeActionSingleStepWithSignal
	ResumeActionStop
)

// ThreadResumeAction is one entry of a vCont batch.
type ThreadResumeAction struct {
	Ptid    Ptid
	Action  ResumeAction
	Signal  int
	Address uint64
}

// StopReason classifies why a thread halted.
type StopReason uint8

const (
	StopReasonNone StopReason = iota
	StopReasonSignalStop
	StopReasonBreakpoint
	StopReasonWatchpoint
	StopReasonTrace
)

// StopEvent classifies the kind of stop reply to send.
type StopEvent uint8

const (
	StopEventSignal StopEvent = iota
	StopEventSignalExit
	StopEventCleanExit
)

// StopCode is the structured stop reply assembled after every resume.
type StopCode struct {
	Ptid       Ptid
	Core       int
	Reason     StopReason
	Event      StopEvent
	Signal     int
	Status     int
	ThreadName string
	Registers  []arch.StopRegister
	Threads    []int
}

// Feature is one capability of the qSupported handshake.
type Feature struct {
	Name  string
	Value string // raw "name=value" features; empty for flags
	Flag  byte   // '+', '-' or 0 for "name=value" features
}

func (f Feature) String() string {
	if f.Flag != 0 {
		return f.Name + string(f.Flag)
	}
	return f.Name + "=" + f.Value
}

// Register value encodings of qRegisterInfo replies.
type RegisterEncoding uint8

const (
	RegisterEncodingUInt RegisterEncoding = iota
	RegisterEncodingSInt
	RegisterEncodingIEEE754
	RegisterEncodingVector
)

func (e RegisterEncoding) String() string {
	switch e {
	case RegisterEncodingSInt:
		return "sint"
	case RegisterEncodingIEEE754:
		return "ieee754"
	case RegisterEncodingVector:
		return "vector"
	default:
		return "uint"
	}
}

// Register display formats of qRegisterInfo replies.
type RegisterFormat uint8

const (
	RegisterFormatBinary RegisterFormat = iota
	RegisterFormatDecimal
	RegisterFormatHex
	RegisterFormatFloat
	RegisterFormatVectorUInt8
	RegisterFormatVectorSInt8
	RegisterFormatVectorUInt16
	RegisterFormatVectorSInt16
	RegisterFormatVectorUInt32
	RegisterFormatVectorSInt32
	RegisterFormatVectorUInt128
	RegisterFormatVectorFloat32
)

func (f RegisterFormat) String() string {
	switch f {
	case RegisterFormatBinary:
		return "binary"
	case RegisterFormatDecimal:
		return "decimal"
	case RegisterFormatFloat:
		return "float"
	case RegisterFormatVectorUInt8:
		return "vector-uint8"
	case RegisterFormatVectorSInt8:
		return "vector-sint8"
	case RegisterFormatVectorUInt16:
		return "vector-uint16"
	case RegisterFormatVectorSInt16:
		return "vector-sint16"
	case RegisterFormatVectorUInt32:
		return "vector-uint32"
	case RegisterFormatVectorSInt32:
		return "vector-sint32"
	case RegisterFormatVectorUInt128:
		return "vector-uint128"
	case RegisterFormatVectorFloat32:
		return "vector-float32"
	default:
		return "hex"
	}
}

// RegisterInfo is the reply to a qRegisterInfo query.
type RegisterInfo struct {
	SetName             string
	RegisterName        string
	AlternateName       string
	GenericName         string
	BitSize             int
	ByteOffset          int
	GCCRegisterIndex    int
	DWARFRegisterIndex  int
	Encoding            RegisterEncoding
	Format              RegisterFormat
	ContainerRegisters  []int
	InvalidateRegisters []int
}

// BreakpointType is the kind requested by a Z/z packet.
type BreakpointType uint8

const (
	BreakpointSoftware BreakpointType = iota
	BreakpointHardware
	BreakpointWriteWatch
	BreakpointReadWatch
	BreakpointAccessWatch
)

// AttachMode selects how onAttach acquires the inferior.
type AttachMode uint8

const (
	AttachNow AttachMode = iota
	AttachWaitForLaunch
)

// wireSession is the slice of the framing layer visible to the session
// core: the dialect of the peer and the ability to push a packet out of
// band.
type wireSession interface {
	Mode() Mode
	Send(data []byte) error
}
