//go:build linux && amd64
// +build linux,amd64

package native

import "debug/elf"

// elfFile is the little slice of ELF metadata the process layer needs.
type elfFile struct {
	f *elf.File

	// fixedLoad is true for non-PIE executables whose vaddrs are
	// absolute.
	fixedLoad bool
	// dynVaddr is the vaddr of the PT_DYNAMIC segment, 0 for static
	// executables.
	dynVaddr uint64
}

func elfOpen(path string) (*elfFile, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	out := &elfFile{f: f, fixedLoad: f.Type == elf.ET_EXEC}
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_DYNAMIC {
			out.dynVaddr = prog.Vaddr
			break
		}
	}
	return out, nil
}

func (e *elfFile) close() {
	e.f.Close()
}
