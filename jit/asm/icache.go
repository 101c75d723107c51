//go:build linux && arm64

package asm

// Flush performs the data-cache-clean / instruction-cache-invalidate
// sequence AArch64 requires after writing fresh code bytes and before
// executing them: DC CVAU + DSB ISH for every cache line touched, then
// IC IVAU + DSB ISH + ISB.
//
// original_source/lib/ExecutionEngine.cpp never does this (its target,
// macOS, handles JIT i-cache coherency through pthread_jit_write_protect
// instead); this is a deliberate addition this port needs because Linux
// AArch64 offers no such hook. See DESIGN.md.
func Flush(addr uintptr, size uintptr)
