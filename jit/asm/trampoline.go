//go:build linux && arm64

// Package asm provides the Go assembly routines used to enter and flush
// JIT-compiled AArch64 code without cgo.
package asm

// Invoke calls the AArch64 code at entry with statePtr (a *guest.State)
// loaded into X0, and returns whatever value the code left in X0.
//
// This mirrors the calling convention translated blocks are selected for:
// the guest state pointer in, the next guest PC out, both via X0.
func Invoke(entry uintptr, statePtr uintptr) uint64
