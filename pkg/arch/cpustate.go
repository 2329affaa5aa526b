package arch

import "encoding/binary"

// CPUState is a snapshot of the full register file of one thread. Register
// values are stored little-endian at fixed offsets; both the GDB and the
// LLDB register numbering resolve into the same backing store.
type CPUState struct {
	data []byte
}

// GPRegister is one general purpose register value with its wire width.
type GPRegister struct {
	Regnum  int
	BitSize int
	Value   uint64
}

// StopRegister is a register value attached to a stop reply.
type StopRegister struct {
	Regno int
	Data  []byte
}

// NewCPUState returns a zeroed register file snapshot.
func NewCPUState() *CPUState {
	return &CPUState{data: make([]byte, amd64StateSize)}
}

// Bytes exposes the backing store of the snapshot.
func (s *CPUState) Bytes() []byte {
	return s.data
}

// SetBytes replaces the backing store with a copy of data. Short input only
// overwrites a prefix of the register file.
func (s *CPUState) SetBytes(data []byte) {
	copy(s.data, data)
}

// Clone returns an independent copy of the snapshot.
func (s *CPUState) Clone() *CPUState {
	out := NewCPUState()
	copy(out.data, s.data)
	return out
}

// Equal reports whether two snapshots hold the same register values.
func (s *CPUState) Equal(other *CPUState) bool {
	if len(s.data) != len(other.data) {
		return false
	}
	for i := range s.data {
		if s.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

func (s *CPUState) regBytes(def *RegisterDef) []byte {
	if def == nil {
		return nil
	}
	return s.data[def.stateOffset : def.stateOffset+def.size()]
}

// GDBRegisterBytes returns the storage of the register with the given GDB
// register number, nil if the number is unknown.
func (s *CPUState) GDBRegisterBytes(regno int) []byte {
	return s.regBytes(amd64ByGDB[regno])
}

// LLDBRegisterBytes returns the storage of the register with the given LLDB
// register number, nil if the number is unknown.
func (s *CPUState) LLDBRegisterBytes(regno int) []byte {
	return s.regBytes(amd64ByLLDB[regno])
}

// RegisterUint64 reads the named register as an unsigned integer. Registers
// narrower than 64 bits are zero extended.
func (s *CPUState) RegisterUint64(name string) uint64 {
	for _, def := range amd64Registers {
		if def.Name == name {
			return s.readUint(def)
		}
	}
	return 0
}

// SetRegisterUint64 writes the named register as an unsigned integer.
func (s *CPUState) SetRegisterUint64(name string, value uint64) {
	for _, def := range amd64Registers {
		if def.Name == name {
			s.writeUint(def, value)
			return
		}
	}
}

func (s *CPUState) readUint(def *RegisterDef) uint64 {
	b := s.regBytes(def)
	switch len(b) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	default:
		var v uint64
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
}

func (s *CPUState) writeUint(def *RegisterDef, value uint64) {
	b := s.regBytes(def)
	switch len(b) {
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(b, value)
	default:
		for i := 0; i < len(b); i++ {
			b[i] = byte(value)
			value >>= 8
		}
	}
}

// GPState projects the general purpose subset of the register file, in GDB
// wire order.
func (s *CPUState) GPState() []GPRegister {
	regs := make([]GPRegister, 0, len(amd64GP))
	for _, def := range amd64GP {
		regs = append(regs, GPRegister{
			Regnum:  def.GDBRegisterNumber,
			BitSize: def.BitSize,
			Value:   s.readUint(def),
		})
	}
	return regs
}

// SetGPState overwrites the general purpose subset with values, in GDB wire
// order. Extra values are ignored.
func (s *CPUState) SetGPState(values []uint64) {
	for i, def := range amd64GP {
		if i >= len(values) {
			break
		}
		s.writeUint(def, values[i])
	}
}

// StopGPState projects the general purpose subset as raw register bytes,
// numbered per client mode, for inclusion in a stop reply.
func (s *CPUState) StopGPState(lldbMode bool) []StopRegister {
	regs := make([]StopRegister, 0, len(amd64GP))
	for _, def := range amd64GP {
		regno := def.GDBRegisterNumber
		if lldbMode {
			regno = def.LLDBRegisterNumber
		}
		data := make([]byte, def.size())
		copy(data, s.regBytes(def))
		regs = append(regs, StopRegister{Regno: regno, Data: data})
	}
	return regs
}
