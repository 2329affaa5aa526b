package stub

import (
	"github.com/vigilo/vigilo/pkg/arch"
	"github.com/vigilo/vigilo/pkg/target"
)

// Register marshalling: all mode dependent register numbering is resolved
// here, the rest of the session deals in CPU state snapshots only.

// OnQueryRegisterInfo describes one register in LLDB numbering.
func (d *DebugSession) OnQueryRegisterInfo(s wireSession, regno int) (RegisterInfo, error) {
	var info RegisterInfo

	desc := d.proc.LLDBRegistersDescriptor()
	def, setName := desc.FindRegister(regno)
	if def == nil {
		return info, target.ErrInvalidArgument
	}

	info.SetName = setName
	info.RegisterName = def.Name
	if def.LLDBName != "" {
		info.RegisterName = def.LLDBName
	}
	info.AlternateName = def.AlternateName
	info.GenericName = def.GenericName
	info.BitSize = def.BitSize
	info.ByteOffset = def.LLDBOffset
	info.GCCRegisterIndex = def.GCCRegisterNumber
	info.DWARFRegisterIndex = def.DWARFRegisterNumber
	info.Encoding, info.Format = registerPresentation(def)
	info.ContainerRegisters = def.ContainerRegisters
	info.InvalidateRegisters = def.InvalidatedRegisters

	return info, nil
}

// registerPresentation maps a descriptor's encoding, format and vector
// format triple onto the wire level presentation.
func registerPresentation(def *arch.RegisterDef) (RegisterEncoding, RegisterFormat) {
	if def.Format == arch.FormatVector {
		format := RegisterFormatVectorUInt8
		switch def.LLDBVectorFormat {
		case arch.VectorFormatSInt8:
			format = RegisterFormatVectorSInt8
		case arch.VectorFormatUInt16:
			format = RegisterFormatVectorUInt16
		case arch.VectorFormatSInt16:
			format = RegisterFormatVectorSInt16
		case arch.VectorFormatUInt32:
			format = RegisterFormatVectorUInt32
		case arch.VectorFormatSInt32:
			format = RegisterFormatVectorSInt32
		case arch.VectorFormatUInt128:
			format = RegisterFormatVectorUInt128
		case arch.VectorFormatFloat32:
			format = RegisterFormatVectorFloat32
		}
		return RegisterEncodingVector, format
	}

	if def.Format == arch.FormatFloat {
		return RegisterEncodingIEEE754, RegisterFormatFloat
	}

	encoding := RegisterEncodingUInt
	switch def.Encoding {
	case arch.EncodingSInteger:
		encoding = RegisterEncodingSInt
	case arch.EncodingIEEESingle, arch.EncodingIEEEDouble, arch.EncodingIEEEExtended:
		encoding = RegisterEncodingIEEE754
	}

	format := RegisterFormatHex
	switch def.Format {
	case arch.FormatBinary:
		format = RegisterFormatBinary
	case arch.FormatDecimal:
		format = RegisterFormatDecimal
	}

	return encoding, format
}

// registerBytes resolves regno through the mode appropriate numbering into
// the storage of the register inside state.
func registerBytes(s wireSession, state *arch.CPUState, regno int) []byte {
	if s.Mode() == ModeLLDB {
		return state.LLDBRegisterBytes(regno)
	}
	return state.GDBRegisterBytes(regno)
}

// OnReadRegisterValue reads one register as raw bytes; hex encoding is the
// framing layer's business.
func (d *DebugSession) OnReadRegisterValue(s wireSession, ptid Ptid, regno int) ([]byte, error) {
	thread := d.findThread(ptid)
	if thread == nil {
		return nil, target.ErrProcessNotFound
	}

	state, err := thread.ReadCPUState()
	if err != nil {
		return nil, err
	}

	b := registerBytes(s, state, regno)
	if b == nil {
		return nil, target.ErrInvalidArgument
	}
	value := make([]byte, len(b))
	copy(value, b)
	return value, nil
}

// OnWriteRegisterValue writes one register; value must match the register
// width exactly.
func (d *DebugSession) OnWriteRegisterValue(s wireSession, ptid Ptid, regno int, value []byte) error {
	thread := d.findThread(ptid)
	if thread == nil {
		return target.ErrProcessNotFound
	}

	state, err := thread.ReadCPUState()
	if err != nil {
		return err
	}

	b := registerBytes(s, state, regno)
	if b == nil {
		return target.ErrInvalidArgument
	}
	if len(value) != len(b) {
		return target.ErrInvalidArgument
	}
	copy(b, value)

	return thread.WriteCPUState(state)
}

// OnReadGeneralRegisters projects the general purpose registers of a
// thread.
func (d *DebugSession) OnReadGeneralRegisters(s wireSession, ptid Ptid) ([]arch.GPRegister, error) {
	thread := d.findThread(ptid)
	if thread == nil {
		return nil, target.ErrProcessNotFound
	}

	state, err := thread.ReadCPUState()
	if err != nil {
		return nil, err
	}

	return state.GPState(), nil
}

// OnWriteGeneralRegisters overwrites the general purpose registers of a
// thread.
func (d *DebugSession) OnWriteGeneralRegisters(s wireSession, ptid Ptid, values []uint64) error {
	thread := d.findThread(ptid)
	if thread == nil {
		return target.ErrProcessNotFound
	}

	state, err := thread.ReadCPUState()
	if err != nil {
		return err
	}

	state.SetGPState(values)

	return thread.WriteCPUState(state)
}

// OnInsertBreakpoint sets a software breakpoint through the process
// breakpoint manager; every other breakpoint kind is unsupported.
//
// LLDB needs stub side breakpoints because it cannot place software
// breakpoints itself; GDB mostly manages its own but may still use Z0.
func (d *DebugSession) OnInsertBreakpoint(s wireSession, typ BreakpointType, addr uint64, size int) error {
	if typ != BreakpointSoftware {
		return target.ErrUnsupported
	}

	bpm := d.proc.BreakpointManager()
	if bpm == nil {
		return target.ErrUnsupported
	}

	return bpm.Add(addr, true, size)
}

// OnRemoveBreakpoint removes a software breakpoint.
func (d *DebugSession) OnRemoveBreakpoint(s wireSession, typ BreakpointType, addr uint64, size int) error {
	if typ != BreakpointSoftware {
		return target.ErrUnsupported
	}

	bpm := d.proc.BreakpointManager()
	if bpm == nil {
		return target.ErrUnsupported
	}

	return bpm.Remove(addr)
}
