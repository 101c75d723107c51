//go:build !linux || !arm64

// Package jit provides stub types for hosts that cannot run the real
// engine. The real implementation needs a Linux AArch64 host: it maps
// memory executable and jumps directly into it.
package jit

import (
	"fmt"

	"github.com/sarchlab/dinorisc/guest"
)

// Engine is a stub on non-linux/arm64 hosts.
type Engine struct {
	icache *IcacheModel
}

// EngineOption configures a stub Engine. It mirrors the real Engine's
// options so callers compile the same way on every platform.
type EngineOption func(*Engine)

// WithIcacheModel mirrors the real Engine's option; it has no effect
// here since Load never succeeds on this platform.
func WithIcacheModel(m *IcacheModel) EngineOption {
	return func(e *Engine) { e.icache = m }
}

// NewEngine returns a stub Engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IcacheStats mirrors the real Engine's accessor.
func (e *Engine) IcacheStats() IcacheStats {
	return e.icache.Stats()
}

// CompiledBlock is a stub on non-linux/arm64 hosts.
type CompiledBlock struct{}

// ErrMmapFailed mirrors the real engine's error type so callers can
// branch on it uniformly across build targets.
type ErrMmapFailed struct{ Err error }

func (e *ErrMmapFailed) Error() string { return fmt.Sprintf("jit: mmap failed: %v", e.Err) }
func (e *ErrMmapFailed) Unwrap() error { return e.Err }

// ErrMprotectFailed mirrors the real engine's error type.
type ErrMprotectFailed struct{ Err error }

func (e *ErrMprotectFailed) Error() string { return fmt.Sprintf("jit: mprotect failed: %v", e.Err) }
func (e *ErrMprotectFailed) Unwrap() error { return e.Err }

// Load always fails on non-linux/arm64 hosts.
func (e *Engine) Load(code []byte) (*CompiledBlock, error) {
	return nil, &ErrMmapFailed{Err: fmt.Errorf("execution engine requires linux/arm64")}
}

// Invoke is unreachable on non-linux/arm64 hosts since Load always fails
// first. It exists only to satisfy callers written against the real
// Engine's signature.
func (e *Engine) Invoke(block *CompiledBlock, state *guest.State) uint64 {
	panic("jit: Invoke should never be called on non-linux/arm64 hosts")
}

// Close is a no-op on non-linux/arm64 hosts.
func (e *Engine) Close() error {
	return nil
}
