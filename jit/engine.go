//go:build linux && arm64

// Package jit allocates executable memory for lifted AArch64 code and
// runs it, following the write-then-make-executable lifecycle from
// original_source/lib/ExecutionEngine.cpp: a block's machine code is
// mmap'd read-write, copied in, and only then mprotect'd to read-execute
// with the write permission dropped (W^X).
package jit

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sarchlab/dinorisc/guest"
	"github.com/sarchlab/dinorisc/jit/asm"
)

// ErrMmapFailed is returned when the host refuses the anonymous
// executable-memory mapping a block needs.
type ErrMmapFailed struct{ Err error }

func (e *ErrMmapFailed) Error() string { return fmt.Sprintf("jit: mmap failed: %v", e.Err) }
func (e *ErrMmapFailed) Unwrap() error { return e.Err }

// ErrMprotectFailed is returned when the write-to-execute permission
// transition fails after code has already been copied in.
type ErrMprotectFailed struct{ Err error }

func (e *ErrMprotectFailed) Error() string { return fmt.Sprintf("jit: mprotect failed: %v", e.Err) }
func (e *ErrMprotectFailed) Unwrap() error { return e.Err }

// region is one mmap allocation backing a compiled block. Engine tracks
// every region it hands out so Close can unmap them all, mirroring
// ExecutionEngine's destructor walking allocatedRegions.
type region struct {
	addr uintptr
	size int
}

// Engine owns the executable memory regions backing translated blocks.
type Engine struct {
	regions []region
	icache  *IcacheModel
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithIcacheModel attaches an instruction-cache occupancy model so Load
// records warm/cold line counts for each installed block, readable
// through IcacheStats. Diagnostic only; omit it and the engine behaves
// exactly the same.
func WithIcacheModel(m *IcacheModel) EngineOption {
	return func(e *Engine) { e.icache = m }
}

// NewEngine returns an Engine with no allocations yet.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IcacheStats reports the attached IcacheModel's running totals, or the
// zero value if none was configured.
func (e *Engine) IcacheStats() IcacheStats {
	return e.icache.Stats()
}

// CompiledBlock is a block's machine code once it has been placed in
// executable memory and is ready to run.
type CompiledBlock struct {
	addr uintptr
	size int
}

// Load allocates a page-rounded executable region, copies code into it,
// flushes the instruction cache over it, and drops write permission.
// The returned CompiledBlock is only valid for the lifetime of e.
func (e *Engine) Load(code []byte) (*CompiledBlock, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("jit: empty machine code block")
	}

	pageSize := unix.Getpagesize()
	allocSize := ((len(code) + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, allocSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, &ErrMmapFailed{Err: err}
	}

	copy(mem, code)

	addr := uintptr(unsafe.Pointer(&mem[0]))
	asm.Flush(addr, uintptr(len(code)))

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, &ErrMprotectFailed{Err: err}
	}

	e.regions = append(e.regions, region{addr: addr, size: allocSize})
	e.icache.Record(addr, len(code))

	return &CompiledBlock{addr: addr, size: len(code)}, nil
}

// Invoke runs block with state's address loaded into X0 and returns
// whatever value the block left in X0 as the next guest PC.
func (e *Engine) Invoke(block *CompiledBlock, state *guest.State) uint64 {
	return asm.Invoke(block.addr, uintptr(unsafe.Pointer(state)))
}

// Close unmaps every region this Engine has allocated. The Engine must
// not be used afterward.
func (e *Engine) Close() error {
	var firstErr error
	for _, r := range e.regions {
		mem := unsafe.Slice((*byte)(unsafe.Pointer(r.addr)), r.size)
		if err := unix.Munmap(mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("jit: munmap: %w", err)
		}
	}
	e.regions = nil
	return firstErr
}
