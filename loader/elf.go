// Package loader provides ELF binary loading for RV64I executables.
package loader

import (
	"debug/elf"
	"fmt"
)

// Program is a loaded RV64I ELF, ready for the driver loop: it reports
// the entry point, the text section's virtual address and bytes, and a
// name-to-address lookup for function-mode execution.
type Program struct {
	// EntryPoint is the guest virtual address execution should begin at.
	EntryPoint uint64
	// TextBase is the virtual address the text section is linked at.
	TextBase uint64
	// TextBytes is the raw contents of the text section.
	TextBytes []byte

	symbols map[string]uint64
}

// NewProgram builds a Program directly from already-decoded fields,
// bypassing Load. Useful for tests and for embedders that obtain a
// text section and symbol table some other way.
func NewProgram(entryPoint, textBase uint64, textBytes []byte, symbols map[string]uint64) *Program {
	if symbols == nil {
		symbols = make(map[string]uint64)
	}
	return &Program{EntryPoint: entryPoint, TextBase: textBase, TextBytes: textBytes, symbols: symbols}
}

// TextSize is the length of the text section in bytes.
func (p *Program) TextSize() uint64 {
	return uint64(len(p.TextBytes))
}

// FunctionAddress looks up a named symbol's address. It reports false if
// the symbol is absent, matching the loader contract's
// functionAddress(name) -> u64|0-if-absent.
func (p *Program) FunctionAddress(name string) (uint64, bool) {
	addr, ok := p.symbols[name]
	return addr, ok
}

// Load parses an RV64I ELF64 executable and returns a Program ready for
// the driver loop. The class must be ELF64, the machine must be
// RISC-V, and the type must be ET_EXEC.
func Load(path string) (*Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: failed to open ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("loader: not a 64-bit ELF file")
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("loader: not a RISC-V ELF file (machine type: %v)", f.Machine)
	}
	if f.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("loader: not an executable ELF file (type: %v)", f.Type)
	}

	text := f.Section(".text")
	if text == nil {
		return nil, fmt.Errorf("loader: no .text section")
	}

	data, err := text.Data()
	if err != nil {
		return nil, fmt.Errorf("loader: failed to read .text section: %w", err)
	}

	prog := &Program{
		EntryPoint: f.Entry,
		TextBase:   text.Addr,
		TextBytes:  data,
		symbols:    make(map[string]uint64),
	}

	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("loader: failed to read symbol table: %w", err)
	}
	for _, sym := range syms {
		if sym.Name != "" {
			prog.symbols[sym.Name] = sym.Value
		}
	}

	return prog, nil
}
