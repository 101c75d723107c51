// Package dbt drives the translate-and-execute loop: assemble a guest
// basic block, lift it to IR, select AArch64 instructions, allocate
// registers, encode, install, and invoke, repeating from whatever PC
// the invoked block returns. See original_source/lib/BinaryTranslator.cpp
// for the algorithm this loop is grounded on.
package dbt

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/dinorisc/arm64"
	"github.com/sarchlab/dinorisc/guest"
	"github.com/sarchlab/dinorisc/isel"
	"github.com/sarchlab/dinorisc/jit"
	"github.com/sarchlab/dinorisc/lift"
	"github.com/sarchlab/dinorisc/loader"
	"github.com/sarchlab/dinorisc/regalloc"
	"github.com/sarchlab/dinorisc/riscv"
)

// Reason identifies which stage of the pipeline a StageError came from,
// matching the enum taxonomy the translator reports failures under.
type Reason string

const (
	ReasonOutOfBounds      Reason = "OUT_OF_BOUNDS"
	ReasonBadEncoding      Reason = "BAD_ENCODING"
	ReasonUnsupportedInstr Reason = "UNSUPPORTED_INSTR"
	ReasonEncodingRange    Reason = "ENCODING_RANGE"
	ReasonOutOfRegisters   Reason = "OUT_OF_REGISTERS"
	ReasonMmapFailed       Reason = "MMAP_FAILED"
	ReasonMprotectFailed   Reason = "MPROTECT_FAILED"
	ReasonIterationLimit   Reason = "ITERATION_LIMIT"
)

// StageError reports which pipeline stage failed, at which guest PC, and
// the underlying cause.
type StageError struct {
	Reason Reason
	PC     uint64
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("dbt: %s at pc=0x%x: %v", e.Reason, e.PC, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// DefaultIterationLimit bounds the number of blocks a single Run executes
// before aborting with ReasonIterationLimit, guarding against a driver
// loop that never returns control (an infinite guest loop, or a
// mistranslated block that never sets next PC to 0).
const DefaultIterationLimit = 1_000_000

// Option configures a Driver.
type Option func(*Driver)

// WithLog directs diagnostic output to w. The default is io.Discard.
func WithLog(w io.Writer) Option {
	return func(d *Driver) { d.log = w }
}

// WithIterationLimit overrides DefaultIterationLimit.
func WithIterationLimit(limit int) Option {
	return func(d *Driver) { d.iterLimit = limit }
}

// Driver owns the translation pipeline's per-run configuration. It holds
// no state between Run/RunFunction calls.
type Driver struct {
	log       io.Writer
	iterLimit int
}

// NewDriver creates a Driver with default configuration, overridden by
// opts.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{log: io.Discard, iterLimit: DefaultIterationLimit}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run loads prog's entry point (or its "main" symbol if the entry point
// is zero and main exists), executes it to completion, and returns
// guest register a0 (x10) as the program's integer result.
func (d *Driver) Run(prog *loader.Program) (int64, error) {
	pc := prog.EntryPoint
	if pc == 0 {
		if addr, ok := prog.FunctionAddress("main"); ok {
			pc = addr
		}
	}
	return d.run(prog, pc, nil)
}

// RunFunction seeds guest argument registers a0..a7 from args and runs
// the named function to completion, mirroring
// BinaryTranslator::executeFunction/setArgumentRegisters in
// original_source/lib/BinaryTranslator.cpp. found is false, with a nil
// error, if name is not present in prog's symbol table.
func (d *Driver) RunFunction(prog *loader.Program, name string, args []uint64) (result int64, found bool, err error) {
	addr, ok := prog.FunctionAddress(name)
	if !ok {
		return 0, false, nil
	}
	result, err = d.run(prog, addr, args)
	return result, true, err
}

func (d *Driver) run(prog *loader.Program, pc uint64, args []uint64) (int64, error) {
	state, err := guest.New()
	if err != nil {
		return 0, err
	}
	defer func() { _ = state.Close() }()

	for i, a := range args {
		if i >= 8 {
			break
		}
		state.WriteReg(uint32(10+i), a) // a0..a7 = x10..x17
	}
	state.PC = pc

	engine := jit.NewEngine(jit.WithIcacheModel(jit.NewIcacheModel(jit.DefaultIcacheConfig())))
	defer func() { _ = engine.Close() }()

	decoder := riscv.NewDecoder()
	textEnd := prog.TextBase + prog.TextSize()

	for iter := 0; ; iter++ {
		if iter >= d.iterLimit {
			return 0, &StageError{Reason: ReasonIterationLimit, PC: state.PC, Err: errors.New("exceeded bounded iteration count")}
		}
		if state.PC < prog.TextBase || state.PC >= textEnd {
			return 0, &StageError{Reason: ReasonOutOfBounds, PC: state.PC, Err: fmt.Errorf("pc outside text range [0x%x, 0x%x)", prog.TextBase, textEnd)}
		}

		nextPC, err := d.translateAndRun(engine, decoder, prog, state)
		if err != nil {
			return 0, err
		}

		fmt.Fprintf(d.log, "dbt: block at pc=0x%x -> next pc=0x%x\n", state.PC, nextPC)

		if nextPC == 0 {
			break
		}
		state.PC = nextPC
	}

	icache := engine.IcacheStats()
	fmt.Fprintf(d.log, "dbt: decoded %d words (%d invalid); icache lines warm=%d cold=%d\n",
		decoder.TotalDecoded(), decoder.InvalidCount(), icache.LinesWarm, icache.LinesCold)

	return int64(state.X[10]), nil
}

func (d *Driver) translateAndRun(engine *jit.Engine, decoder *riscv.Decoder, prog *loader.Program, state *guest.State) (uint64, error) {
	pc := state.PC

	guestInsts, err := riscv.Assemble(decoder, prog.TextBytes, prog.TextBase, pc)
	if err != nil {
		reason := ReasonOutOfBounds
		var badEnc *riscv.ErrBadEncoding
		if errors.As(err, &badEnc) {
			reason = ReasonBadEncoding
		}
		return 0, &StageError{Reason: reason, PC: pc, Err: err}
	}

	block, err := lift.NewLifter().LiftBlock(guestInsts)
	if err != nil {
		return 0, &StageError{Reason: ReasonUnsupportedInstr, PC: pc, Err: err}
	}

	vregInsts := isel.NewSelector().SelectBlock(block)

	allocated, err := regalloc.Allocate(vregInsts)
	if err != nil {
		return 0, &StageError{Reason: ReasonOutOfRegisters, PC: pc, Err: err}
	}

	code, err := encode(allocated)
	if err != nil {
		return 0, &StageError{Reason: ReasonEncodingRange, PC: pc, Err: err}
	}

	compiled, err := engine.Load(code)
	if err != nil {
		reason := ReasonMmapFailed
		var mprotectErr *jit.ErrMprotectFailed
		if errors.As(err, &mprotectErr) {
			reason = ReasonMprotectFailed
		}
		return 0, &StageError{Reason: reason, PC: pc, Err: err}
	}

	return engine.Invoke(compiled, state), nil
}

func encode(insts []arm64.Instruction) ([]byte, error) {
	var out []byte
	for _, inst := range insts {
		word, err := arm64.Encode(inst)
		if err != nil {
			return nil, err
		}
		out = append(out, word[:]...)
	}
	return out, nil
}
