package stub

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vigilo/vigilo/pkg/target"
)

// handlePacket routes one decoded packet into the session and sends the
// framed reply. Empty replies mean "command not supported" per the
// protocol.
func (c *conn) handlePacket(payload []byte) error {
	cmd := string(payload)
	var reply []byte
	closeAfter := false
	noAckAfter := false

	switch {
	case cmd == "?":
		stop, err := c.ses.OnQueryThreadStopInfo(c, Ptid{})
		reply = c.stopReplyOrError(stop, err)

	case cmd == "!":
		c.extended = true
		reply = okReply

	case strings.HasPrefix(cmd, "qSupported"):
		reply = c.handleQuerySupported(cmd)

	case cmd == "QStartNoAckMode":
		reply = okReply
		noAckAfter = true

	case cmd == "QListThreadsInStopReply":
		c.listThreadsInStopReply = true
		reply = okReply

	case strings.HasPrefix(cmd, "QPassSignals:"):
		signals, ok := parseSignalList(cmd[len("QPassSignals:"):])
		if !ok {
			reply = errReply(target.ErrInvalidArgument)
			break
		}
		reply = okOrError(c.ses.OnPassSignals(c, signals))

	case strings.HasPrefix(cmd, "QProgramSignals:"):
		signals, ok := parseSignalList(cmd[len("QProgramSignals:"):])
		if !ok {
			reply = errReply(target.ErrInvalidArgument)
			break
		}
		reply = okOrError(c.ses.OnProgramSignals(c, signals))

	case strings.HasPrefix(cmd, "QNonStop:"):
		reply = okOrError(c.ses.OnNonStopMode(c, cmd[len("QNonStop:"):] == "1"))

	case strings.HasPrefix(cmd, "QDisableRandomization:"):
		reply = okReply

	case cmd == "qC":
		ptid, err := c.ses.OnQueryCurrentThread(c)
		if err != nil {
			reply = errReply(err)
			break
		}
		reply = []byte(fmt.Sprintf("QCp%x.%x", ptid.Pid, ptid.Tid))

	case cmd == "qfThreadInfo":
		reply = c.handleThreadList(AllThreadID)
	case cmd == "qsThreadInfo":
		reply = c.handleThreadList(AnyThreadID)

	case strings.HasPrefix(cmd, "qThreadStopInfo"):
		tid, ok := parseHexInt(cmd[len("qThreadStopInfo"):])
		if !ok {
			reply = errReply(target.ErrInvalidArgument)
			break
		}
		stop, err := c.ses.OnQueryThreadStopInfo(c, Ptid{Tid: tid})
		reply = c.stopReplyOrError(stop, err)

	case strings.HasPrefix(cmd, "T"):
		reply = okOrError(c.ses.OnThreadIsAlive(c, parseThreadID(cmd[1:])))

	case strings.HasPrefix(cmd, "H"):
		reply = c.handleSetThread(cmd)

	case strings.HasPrefix(cmd, "qAttached"):
		pid := 0
		if strings.HasPrefix(cmd, "qAttached:") {
			pid, _ = parseHexInt(cmd[len("qAttached:"):])
		}
		attached, err := c.ses.OnQueryAttached(c, pid)
		if err != nil {
			reply = errReply(err)
		} else if attached {
			reply = []byte("1")
		} else {
			reply = []byte("0")
		}

	case cmd == "qProcessInfo":
		reply = c.handleProcessInfo()

	case cmd == "qHostInfo":
		reply = []byte("ostype:linux;endian:little;ptrsize:8;")

	case strings.HasPrefix(cmd, "qRegisterInfo"):
		reply = c.handleRegisterInfo(cmd[len("qRegisterInfo"):])

	case cmd == "qShlibInfoAddr":
		addr, err := c.ses.OnQuerySharedLibrariesInfoAddress(c)
		if err != nil {
			reply = errReply(err)
			break
		}
		reply = []byte(strconv.FormatUint(addr, 16))

	case strings.HasPrefix(cmd, "qXfer:"):
		reply = c.handleXfer(cmd)

	case cmd == "qLaunchSuccess":
		reply = okOrError(c.ses.OnQueryLaunchSuccess(c, 0))

	case strings.HasPrefix(cmd, "qSymbol"):
		reply = okReply

	case cmd == "g":
		reply = c.handleReadGeneralRegisters()
	case strings.HasPrefix(cmd, "G"):
		reply = c.handleWriteGeneralRegisters(cmd[1:])

	case cmd == "QSaveRegisterState" || strings.HasPrefix(cmd, "QSaveRegisterState;"):
		id, err := c.ses.OnSaveRegisters(c, c.threadG)
		if err != nil {
			reply = errReply(err)
			break
		}
		reply = []byte(strconv.FormatUint(id, 10))

	case strings.HasPrefix(cmd, "QRestoreRegisterState:"):
		arg := cmd[len("QRestoreRegisterState:"):]
		if idx := strings.IndexByte(arg, ';'); idx >= 0 {
			arg = arg[:idx]
		}
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			reply = errReply(target.ErrInvalidArgument)
			break
		}
		reply = okOrError(c.ses.OnRestoreRegisters(c, c.threadG, id))

	case strings.HasPrefix(cmd, "p"):
		reply = c.handleReadRegister(cmd[1:])
	case strings.HasPrefix(cmd, "P"):
		reply = c.handleWriteRegister(cmd[1:])

	case strings.HasPrefix(cmd, "m"):
		reply = c.handleReadMemory(cmd[1:])
	case strings.HasPrefix(cmd, "M"):
		reply = c.handleWriteMemory(cmd[1:], false)
	case strings.HasPrefix(cmd, "X"):
		reply = c.handleWriteMemory(cmd[1:], true)

	case strings.HasPrefix(cmd, "_M"):
		reply = c.handleAllocate(cmd[2:])
	case strings.HasPrefix(cmd, "_m"):
		addr, ok := parseHexUint(cmd[2:])
		if !ok {
			reply = errReply(target.ErrInvalidArgument)
			break
		}
		reply = okOrError(c.ses.OnDeallocateMemory(c, addr))

	case strings.HasPrefix(cmd, "A"):
		reply = c.handleSetProgramArguments(cmd[1:])

	case strings.HasPrefix(cmd, "Z"):
		reply = c.handleBreakpoint(cmd, true)
	case strings.HasPrefix(cmd, "z"):
		reply = c.handleBreakpoint(cmd, false)

	case strings.HasPrefix(cmd, "vAttach;"):
		pid, ok := parseHexInt(cmd[len("vAttach;"):])
		if !ok {
			reply = errReply(target.ErrInvalidArgument)
			break
		}
		stop, err := c.ses.OnAttach(c, pid, AttachNow)
		reply = c.stopReplyOrError(stop, err)

	case cmd == "vCont?":
		reply = []byte("vCont;c;C;s;S")

	case strings.HasPrefix(cmd, "vCont"):
		reply = c.handleVCont(cmd)

	case strings.HasPrefix(cmd, "c") || strings.HasPrefix(cmd, "C") ||
		strings.HasPrefix(cmd, "s") || strings.HasPrefix(cmd, "S"):
		reply = c.handleLegacyResume(cmd)

	case strings.HasPrefix(cmd, "D"):
		reply = okOrError(c.ses.OnDetach(c, 0, false))
		closeAfter = true

	case strings.HasPrefix(cmd, "vKill"):
		_, err := c.ses.OnTerminate(c, Ptid{})
		reply = okOrError(err)
		closeAfter = true

	case cmd == "k":
		stop, err := c.ses.OnTerminate(c, Ptid{})
		reply = c.stopReplyOrError(stop, err)
		closeAfter = true

	default:
		// not supported
	}

	if err := c.Send(reply); err != nil {
		return err
	}
	if noAckAfter {
		c.ack = false
	}
	if closeAfter {
		c.detached = true
		return errConnDetached
	}
	return nil
}

var okReply = []byte("OK")

// errReply maps the session error taxonomy onto protocol error replies;
// unsupported operations get the canonical empty reply.
func errReply(err error) []byte {
	switch {
	case err == nil:
		return okReply
	case errors.Is(err, target.ErrUnsupported):
		return nil
	case errors.Is(err, target.ErrInvalidArgument):
		return []byte("E16")
	case errors.Is(err, target.ErrNotFound):
		return []byte("E02")
	case errors.Is(err, target.ErrProcessNotFound):
		return []byte("E03")
	case errors.Is(err, target.ErrAlreadyExist):
		return []byte("E11")
	default:
		return []byte("E01")
	}
}

func okOrError(err error) []byte {
	if err != nil {
		return errReply(err)
	}
	return okReply
}

func (c *conn) stopReplyOrError(stop StopCode, err error) []byte {
	if err != nil {
		return errReply(err)
	}
	return c.encodeStopReply(stop)
}

// encodeStopReply serializes a StopCode the way the connected dialect
// expects it.
func (c *conn) encodeStopReply(stop StopCode) []byte {
	var buf bytes.Buffer

	switch stop.Event {
	case StopEventCleanExit:
		fmt.Fprintf(&buf, "W%02x;process:%x", stop.Status, stop.Ptid.Pid)
	case StopEventSignalExit:
		fmt.Fprintf(&buf, "X%02x;process:%x", stop.Signal, stop.Ptid.Pid)
	default:
		fmt.Fprintf(&buf, "T%02x", stop.Signal)
		if stop.Ptid.Tid > 0 {
			fmt.Fprintf(&buf, "thread:p%x.%x;", stop.Ptid.Pid, stop.Ptid.Tid)
		}
		if stop.Core >= 0 {
			fmt.Fprintf(&buf, "core:%x;", stop.Core)
		}
		if c.mode == ModeLLDB && stop.ThreadName != "" {
			fmt.Fprintf(&buf, "name:%s;", stop.ThreadName)
		}
		if (c.mode == ModeLLDB || c.listThreadsInStopReply) && len(stop.Threads) > 0 {
			buf.WriteString("threads:")
			for i, tid := range stop.Threads {
				if i > 0 {
					buf.WriteByte(',')
				}
				fmt.Fprintf(&buf, "%x", tid)
			}
			buf.WriteByte(';')
		}
		if c.mode == ModeLLDB {
			switch stop.Reason {
			case StopReasonBreakpoint:
				buf.WriteString("reason:breakpoint;")
			case StopReasonSignalStop:
				buf.WriteString("reason:signal;")
			}
		}
		for _, reg := range stop.Registers {
			fmt.Fprintf(&buf, "%02x:%s;", reg.Regno, hex.EncodeToString(reg.Data))
		}
	}

	return buf.Bytes()
}

func (c *conn) handleQuerySupported(cmd string) []byte {
	var remote []Feature
	if idx := strings.IndexByte(cmd, ':'); idx >= 0 {
		for _, name := range strings.Split(cmd[idx+1:], ";") {
			if name == "" {
				continue
			}
			feature := Feature{Name: name}
			if eq := strings.IndexByte(name, '='); eq >= 0 {
				feature.Name, feature.Value = name[:eq], name[eq+1:]
			} else if last := name[len(name)-1]; last == '+' || last == '-' || last == '?' {
				feature.Name, feature.Flag = name[:len(name)-1], last
			}
			remote = append(remote, feature)
		}
	}

	local, err := c.ses.OnQuerySupported(c, remote)
	if err != nil {
		return errReply(err)
	}
	parts := make([]string, 0, len(local))
	for _, feature := range local {
		parts = append(parts, feature.String())
	}
	return []byte(strings.Join(parts, ";"))
}

func (c *conn) handleThreadList(lastTid int) []byte {
	tid, err := c.ses.OnQueryThreadList(c, 0, lastTid)
	if err != nil {
		if errors.Is(err, target.ErrNotFound) {
			return []byte("l")
		}
		return errReply(err)
	}
	proc := c.ses.Process()
	return []byte(fmt.Sprintf("mp%x.%x", proc.Pid(), tid))
}

func (c *conn) handleSetThread(cmd string) []byte {
	if len(cmd) < 2 {
		return errReply(target.ErrInvalidArgument)
	}
	op := cmd[1]
	ptid := parseThreadID(cmd[2:])
	switch op {
	case 'g':
		c.threadG = ptid
	case 'c':
		c.threadC = ptid
	default:
		return errReply(target.ErrInvalidArgument)
	}
	return okReply
}

func (c *conn) handleProcessInfo() []byte {
	info, err := c.ses.OnQueryProcessInfo(c)
	if err != nil {
		return errReply(err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "pid:%x;parent-pid:%x;", info.Pid, info.ParentPid)
	if info.Name != "" {
		fmt.Fprintf(&buf, "name:%s;", hex.EncodeToString([]byte(info.Name)))
	}
	fmt.Fprintf(&buf, "ostype:%s;endian:%s;ptrsize:%d;", info.OSType, info.Endian, info.PointerSize)
	return buf.Bytes()
}

func (c *conn) handleRegisterInfo(arg string) []byte {
	regno, ok := parseHexInt(arg)
	if !ok {
		return errReply(target.ErrInvalidArgument)
	}
	info, err := c.ses.OnQueryRegisterInfo(c, regno)
	if err != nil {
		return errReply(err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "name:%s;", info.RegisterName)
	if info.AlternateName != "" {
		fmt.Fprintf(&buf, "alt-name:%s;", info.AlternateName)
	}
	fmt.Fprintf(&buf, "bitsize:%d;offset:%d;encoding:%s;format:%s;",
		info.BitSize, info.ByteOffset, info.Encoding, info.Format)
	if info.SetName != "" {
		fmt.Fprintf(&buf, "set:%s;", info.SetName)
	}
	if info.GCCRegisterIndex >= 0 {
		fmt.Fprintf(&buf, "gcc:%d;", info.GCCRegisterIndex)
	}
	if info.DWARFRegisterIndex >= 0 {
		fmt.Fprintf(&buf, "dwarf:%d;", info.DWARFRegisterIndex)
	}
	if info.GenericName != "" {
		fmt.Fprintf(&buf, "generic:%s;", info.GenericName)
	}
	if len(info.ContainerRegisters) > 0 {
		buf.WriteString("container-regs:")
		writeRegisterList(&buf, info.ContainerRegisters)
		buf.WriteByte(';')
	}
	if len(info.InvalidateRegisters) > 0 {
		buf.WriteString("invalidate-regs:")
		writeRegisterList(&buf, info.InvalidateRegisters)
		buf.WriteByte(';')
	}
	return buf.Bytes()
}

func writeRegisterList(buf *bytes.Buffer, regs []int) {
	for i, regno := range regs {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(buf, "%x", regno)
	}
}

func (c *conn) handleXfer(cmd string) []byte {
	// qXfer:object:read:annex:offset,length
	parts := strings.SplitN(cmd, ":", 5)
	if len(parts) != 5 || parts[2] != "read" {
		return nil
	}
	object, annex := parts[1], parts[3]
	var offset, length uint64
	if n, err := fmt.Sscanf(parts[4], "%x,%x", &offset, &length); n != 2 || err != nil {
		return errReply(target.ErrInvalidArgument)
	}

	buffer, last, err := c.ses.OnXferRead(c, object, annex, offset, length)
	if err != nil {
		return errReply(err)
	}

	marker := byte('l')
	if !last {
		marker = 'm'
	}
	out := make([]byte, 0, len(buffer)+1)
	out = append(out, marker)
	out = append(out, wireescape(buffer)...)
	return out
}

func (c *conn) handleReadGeneralRegisters() []byte {
	regs, err := c.ses.OnReadGeneralRegisters(c, c.threadG)
	if err != nil {
		return errReply(err)
	}
	var buf bytes.Buffer
	for _, reg := range regs {
		size := reg.BitSize / 8
		value := reg.Value
		for i := 0; i < size; i++ {
			fmt.Fprintf(&buf, "%02x", byte(value))
			value >>= 8
		}
	}
	return buf.Bytes()
}

func (c *conn) handleWriteGeneralRegisters(arg string) []byte {
	data, err := hex.DecodeString(arg)
	if err != nil {
		return errReply(target.ErrInvalidArgument)
	}
	// the packet layout follows the register widths of the reply to 'g'
	layout, err := c.ses.OnReadGeneralRegisters(c, c.threadG)
	if err != nil {
		return errReply(err)
	}
	values := make([]uint64, 0, len(layout))
	for _, reg := range layout {
		size := reg.BitSize / 8
		if len(data) < size {
			break
		}
		var value uint64
		for i := size - 1; i >= 0; i-- {
			value = value<<8 | uint64(data[i])
		}
		data = data[size:]
		values = append(values, value)
	}
	return okOrError(c.ses.OnWriteGeneralRegisters(c, c.threadG, values))
}

func (c *conn) handleReadRegister(arg string) []byte {
	regno, ok := parseHexInt(arg)
	if !ok {
		return errReply(target.ErrInvalidArgument)
	}
	value, err := c.ses.OnReadRegisterValue(c, c.threadG, regno)
	if err != nil {
		return errReply(err)
	}
	return []byte(hex.EncodeToString(value))
}

func (c *conn) handleWriteRegister(arg string) []byte {
	eq := strings.IndexByte(arg, '=')
	if eq < 0 {
		return errReply(target.ErrInvalidArgument)
	}
	regno, ok := parseHexInt(arg[:eq])
	if !ok {
		return errReply(target.ErrInvalidArgument)
	}
	value, err := hex.DecodeString(arg[eq+1:])
	if err != nil {
		return errReply(target.ErrInvalidArgument)
	}
	return okOrError(c.ses.OnWriteRegisterValue(c, c.threadG, regno, value))
}

func (c *conn) handleReadMemory(arg string) []byte {
	var addr, length uint64
	if n, err := fmt.Sscanf(arg, "%x,%x", &addr, &length); n != 2 || err != nil {
		return errReply(target.ErrInvalidArgument)
	}
	data, err := c.ses.OnReadMemory(c, addr, int(length))
	if err != nil {
		return errReply(err)
	}
	return []byte(hex.EncodeToString(data))
}

func (c *conn) handleWriteMemory(arg string, binary bool) []byte {
	colon := strings.IndexByte(arg, ':')
	if colon < 0 {
		return errReply(target.ErrInvalidArgument)
	}
	var addr, length uint64
	if n, err := fmt.Sscanf(arg[:colon], "%x,%x", &addr, &length); n != 2 || err != nil {
		return errReply(target.ErrInvalidArgument)
	}
	var data []byte
	if binary {
		data = []byte(arg[colon+1:])
	} else {
		var err error
		data, err = hex.DecodeString(arg[colon+1:])
		if err != nil {
			return errReply(target.ErrInvalidArgument)
		}
	}
	if uint64(len(data)) != length {
		return errReply(target.ErrInvalidArgument)
	}
	if _, err := c.ses.OnWriteMemory(c, addr, data); err != nil {
		return errReply(err)
	}
	return okReply
}

func (c *conn) handleAllocate(arg string) []byte {
	comma := strings.IndexByte(arg, ',')
	if comma < 0 {
		return errReply(target.ErrInvalidArgument)
	}
	size, ok := parseHexUint(arg[:comma])
	if !ok {
		return errReply(target.ErrInvalidArgument)
	}
	var perms target.MemPerms
	for _, ch := range arg[comma+1:] {
		switch ch {
		case 'r':
			perms |= target.PermRead
		case 'w':
			perms |= target.PermWrite
		case 'x':
			perms |= target.PermExec
		default:
			return errReply(target.ErrInvalidArgument)
		}
	}
	addr, err := c.ses.OnAllocateMemory(c, int(size), perms)
	if err != nil {
		return errReply(err)
	}
	return []byte(strconv.FormatUint(addr, 16))
}

func (c *conn) handleSetProgramArguments(arg string) []byte {
	// A arglen,argnum,arg(,arglen,argnum,arg)*
	fields := strings.Split(arg, ",")
	if len(fields)%3 != 0 {
		return errReply(target.ErrInvalidArgument)
	}
	args := make([]string, len(fields)/3)
	for i := 0; i < len(fields); i += 3 {
		argnum, ok := parseHexInt(fields[i+1])
		if !ok || argnum < 0 || argnum >= len(args) {
			return errReply(target.ErrInvalidArgument)
		}
		decoded, err := hex.DecodeString(fields[i+2])
		if err != nil {
			return errReply(target.ErrInvalidArgument)
		}
		args[argnum] = string(decoded)
	}
	return okOrError(c.ses.OnSetProgramArguments(c, args))
}

func (c *conn) handleBreakpoint(cmd string, insert bool) []byte {
	fields := strings.Split(cmd[1:], ",")
	if len(fields) < 3 {
		return errReply(target.ErrInvalidArgument)
	}
	typno, ok1 := parseHexInt(fields[0])
	addr, ok2 := parseHexUint(fields[1])
	kind, ok3 := parseHexInt(fields[2])
	if !ok1 || !ok2 || !ok3 {
		return errReply(target.ErrInvalidArgument)
	}
	typ := BreakpointType(typno)

	var err error
	if insert {
		err = c.ses.OnInsertBreakpoint(c, typ, addr, kind)
	} else {
		err = c.ses.OnRemoveBreakpoint(c, typ, addr, kind)
	}
	return okOrError(err)
}

func (c *conn) handleVCont(cmd string) []byte {
	if !strings.HasPrefix(cmd, "vCont;") {
		return errReply(target.ErrInvalidArgument)
	}
	var actions []ThreadResumeAction
	for _, spec := range strings.Split(cmd[len("vCont;"):], ";") {
		if spec == "" {
			continue
		}
		action := ThreadResumeAction{Ptid: Ptid{Pid: AllThreadID, Tid: AllThreadID}}
		body := spec
		if idx := strings.IndexByte(spec, ':'); idx >= 0 {
			action.Ptid = parseThreadID(spec[idx+1:])
			body = spec[:idx]
		}
		if body == "" {
			return errReply(target.ErrInvalidArgument)
		}
		switch body[0] {
		case 'c':
			action.Action = ResumeActionContinue
		case 'C':
			action.Action = ResumeActionContinueWithSignal
			sig, ok := parseHexInt(body[1:])
			if !ok {
				return errReply(target.ErrInvalidArgument)
			}
			action.Signal = sig
		case 's':
			action.Action = ResumeActionSingleStep
		case 'S':
			action.Action = ResumeActionSingleStepWithSignal
			sig, ok := parseHexInt(body[1:])
			if !ok {
				return errReply(target.ErrInvalidArgument)
			}
			action.Signal = sig
		case 't':
			action.Action = ResumeActionStop
		default:
			return errReply(target.ErrInvalidArgument)
		}
		actions = append(actions, action)
	}
	return c.resume(actions)
}

func (c *conn) handleLegacyResume(cmd string) []byte {
	action := ThreadResumeAction{Ptid: c.threadC}
	var rest string
	switch cmd[0] {
	case 'c':
		action.Action = ResumeActionContinue
		rest = cmd[1:]
	case 's':
		action.Action = ResumeActionSingleStep
		rest = cmd[1:]
	case 'C', 'S':
		action.Action = ResumeActionContinueWithSignal
		if cmd[0] == 'S' {
			action.Action = ResumeActionSingleStepWithSignal
		}
		sigstr := cmd[1:]
		rest = ""
		if idx := strings.IndexByte(sigstr, ';'); idx >= 0 {
			sigstr, rest = sigstr[:idx], sigstr[idx+1:]
		}
		sig, ok := parseHexInt(sigstr)
		if !ok {
			return errReply(target.ErrInvalidArgument)
		}
		action.Signal = sig
	}
	if rest != "" {
		addr, ok := parseHexUint(rest)
		if !ok {
			return errReply(target.ErrInvalidArgument)
		}
		action.Address = addr
	}
	return c.resume([]ThreadResumeAction{action})
}

// resume runs the resume engine with the interrupt watcher attached so
// that an interrupt byte arriving mid-wait reaches the process.
func (c *conn) resume(actions []ThreadResumeAction) []byte {
	c.startInterruptWatcher()
	stop, err := c.ses.OnResume(c, actions)
	return c.stopReplyOrError(stop, err)
}

// parseThreadID parses the wire forms of a thread selector: "p<pid>.<tid>",
// "p<pid>", "<tid>", "-1" and "0".
func parseThreadID(s string) Ptid {
	var ptid Ptid
	if strings.HasPrefix(s, "p") {
		s = s[1:]
		if idx := strings.IndexByte(s, '.'); idx >= 0 {
			ptid.Pid, _ = parseHexInt(s[:idx])
			ptid.Tid, _ = parseHexInt(s[idx+1:])
			return ptid
		}
		ptid.Pid, _ = parseHexInt(s)
		ptid.Tid = AllThreadID
		return ptid
	}
	ptid.Tid, _ = parseHexInt(s)
	return ptid
}

func parseHexUint(s string) (uint64, bool) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseHexInt(s string) (int, bool) {
	if s == "-1" {
		return -1, true
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func parseSignalList(s string) ([]int, bool) {
	if s == "" {
		return nil, true
	}
	var signals []int
	for _, field := range strings.Split(s, ";") {
		sig, ok := parseHexInt(field)
		if !ok {
			return nil, false
		}
		signals = append(signals, sig)
	}
	return signals, true
}
