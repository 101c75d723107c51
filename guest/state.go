// Package guest holds the RISC-V guest CPU state that the driver loop
// carries between translated blocks.
package guest

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ShadowSize is the size of the guest's shadow memory region, mapped as a
// single flat host allocation that guest loads and stores address directly.
const ShadowSize = 8 * 1024 * 1024

// GuestBaseHint is the nominal RV64 virtual address the loader's segments
// are linked against. No guest-to-host address translation is performed;
// this value is informational only (see loader.Program.EntryPoint and
// Open Question 4 in DESIGN.md).
const GuestBaseHint = 0x80000000

// State is the register and memory state of the RV64I guest. A State is
// passed by pointer to translated blocks through the JIT calling
// convention (see jit.Engine.Invoke), even though the current block
// bodies never dereference it directly.
type State struct {
	// X holds general-purpose registers x0-x31. X[0] always reads as 0;
	// writes to X[0] are discarded.
	X [32]uint64

	// PC is the guest program counter.
	PC uint64

	// Shadow is the guest's flat memory region, mmap'd so that Load/Store
	// IR operations resolve to real host virtual addresses.
	Shadow []byte

	// Base is the host virtual address of Shadow[0].
	Base uint64
}

// New allocates a fresh guest state with its shadow memory mapped and the
// stack pointer (x2) initialized near the top of that region.
func New() (*State, error) {
	mem, err := unix.Mmap(-1, 0, ShadowSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("guest: mmap shadow memory: %w", err)
	}

	s := &State{Shadow: mem}
	s.Base = uint64(addrOf(mem))
	s.X[2] = s.Base + ShadowSize - 16

	return s, nil
}

// Close releases the shadow memory mapping. The State must not be used
// afterward.
func (s *State) Close() error {
	if s.Shadow == nil {
		return nil
	}
	err := unix.Munmap(s.Shadow)
	s.Shadow = nil
	return err
}

// ReadReg returns the value of register reg. Register 0 always reads as 0;
// registers beyond 31 also read as 0 (defensive against a malformed
// decode, mirroring the guest's hardwired-zero register convention).
func (s *State) ReadReg(reg uint32) uint64 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return s.X[reg]
}

// WriteReg stores value into register reg. Writes to register 0 are
// silently discarded.
func (s *State) WriteReg(reg uint32, value uint64) {
	if reg == 0 || reg >= 32 {
		return
	}
	s.X[reg] = value
}
