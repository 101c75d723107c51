// Package lift turns one assembled RV64I basic block into a block-local
// SSA ir.BasicBlock.
package lift

import (
	"fmt"

	"github.com/sarchlab/dinorisc/ir"
	"github.com/sarchlab/dinorisc/riscv"
)

// ErrUnsupportedInstr is returned when a block contains an opcode the
// lifter does not know how to translate (system instructions, or an
// opcode absent from the covered RV64I subset).
type ErrUnsupportedInstr struct {
	Opcode  riscv.Opcode
	Address uint64
}

func (e *ErrUnsupportedInstr) Error() string {
	return fmt.Sprintf("lift: unsupported instruction (opcode %d) at 0x%x", e.Opcode, e.Address)
}

// Lifter converts RV64I instructions into IR, tracking which IR value
// currently represents each guest register within the block being
// lifted.
type Lifter struct {
	nextValueID ir.ValueId
	registers   [32]ir.ValueId
	bound       [32]bool
	zeroConst   ir.ValueId
	zeroBound   bool
	insts       []ir.Instruction
}

// NewLifter creates a lifter with a fresh value-id counter.
func NewLifter() *Lifter {
	return &Lifter{nextValueID: 0}
}

// LiftBlock lifts an assembled sequence of RV64I instructions into one
// ir.BasicBlock. The input is expected to end in a terminator (as
// riscv.Assemble guarantees); if it does not, a synthesized unconditional
// branch to the address immediately following the last instruction
// closes the block.
func (l *Lifter) LiftBlock(instructions []riscv.Instruction) (ir.BasicBlock, error) {
	l.insts = nil

	for i, inst := range instructions {
		if inst.IsTerminator() {
			fallThrough := inst.Address + 4
			if i+1 < len(instructions) {
				fallThrough = instructions[i+1].Address
			}
			term, err := l.liftTerminator(inst, fallThrough)
			if err != nil {
				return ir.BasicBlock{}, err
			}
			return ir.BasicBlock{Instructions: l.insts, Terminator: term}, nil
		}

		if err := l.liftSingle(inst); err != nil {
			return ir.BasicBlock{}, err
		}
	}

	var next uint64
	if len(instructions) > 0 {
		next = instructions[len(instructions)-1].Address + 4
	}
	return ir.BasicBlock{
		Instructions: l.insts,
		Terminator:   ir.Terminator{Kind: ir.TermBranch, Target: next},
	}, nil
}

// getRegister returns the IR value currently bound to a guest register,
// lazily materializing a Const(i64, 0) for any register not yet written
// in this block. Register 0 is bound once to a single shared Const and
// always resolves to it, regardless of how many times it's read.
func (l *Lifter) getRegister(reg uint32) ir.ValueId {
	if reg == 0 {
		if !l.zeroBound {
			l.zeroConst = l.emit(ir.Instruction{Op: ir.OpConst, Type: ir.I64, ConstValue: 0})
			l.zeroBound = true
		}
		return l.zeroConst
	}
	if !l.bound[reg] {
		l.registers[reg] = l.emit(ir.Instruction{Op: ir.OpConst, Type: ir.I64, ConstValue: 0})
		l.bound[reg] = true
	}
	return l.registers[reg]
}

// setRegister binds a guest register to an IR value. Writes to register
// 0 are discarded.
func (l *Lifter) setRegister(reg uint32, v ir.ValueId) {
	if reg == 0 {
		return
	}
	l.registers[reg] = v
	l.bound[reg] = true
}

func (l *Lifter) emit(inst ir.Instruction) ir.ValueId {
	inst.ID = l.nextValueID
	l.nextValueID++
	l.insts = append(l.insts, inst)
	return inst.ID
}

func (l *Lifter) constant(t ir.Type, value uint64) ir.ValueId {
	return l.emit(ir.Instruction{Op: ir.OpConst, Type: t, ConstValue: value})
}

func (l *Lifter) binary(op ir.BinaryOpcode, t ir.Type, lhs, rhs ir.ValueId) ir.ValueId {
	return l.emit(ir.Instruction{Op: ir.OpBinary, Type: t, BinOp: op, Operands: [2]ir.ValueId{lhs, rhs}})
}

func (l *Lifter) trunc(from, to ir.Type, v ir.ValueId) ir.ValueId {
	return l.emit(ir.Instruction{Op: ir.OpTrunc, Type: to, FromType: from, Operands: [2]ir.ValueId{v}})
}

func (l *Lifter) sext(from, to ir.Type, v ir.ValueId) ir.ValueId {
	return l.emit(ir.Instruction{Op: ir.OpSext, Type: to, FromType: from, Operands: [2]ir.ValueId{v}})
}

func (l *Lifter) zext(from, to ir.Type, v ir.ValueId) ir.ValueId {
	return l.emit(ir.Instruction{Op: ir.OpZext, Type: to, FromType: from, Operands: [2]ir.ValueId{v}})
}

func (l *Lifter) load(t ir.Type, addr ir.ValueId) ir.ValueId {
	return l.emit(ir.Instruction{Op: ir.OpLoad, Type: t, Operands: [2]ir.ValueId{addr}})
}

func (l *Lifter) store(t ir.Type, value, addr ir.ValueId) {
	l.emit(ir.Instruction{Op: ir.OpStore, Type: t, Operands: [2]ir.ValueId{value, addr}})
}

func (l *Lifter) liftSingle(inst riscv.Instruction) error {
	switch inst.Opcode {
	case riscv.OpADD:
		l.binOpReg(inst, ir.Add, ir.I64)
	case riscv.OpSUB:
		l.binOpReg(inst, ir.Sub, ir.I64)
	case riscv.OpADDI:
		l.binOpImm(inst, ir.Add, ir.I64)
	case riscv.OpAND:
		l.binOpReg(inst, ir.And, ir.I64)
	case riscv.OpANDI:
		l.binOpImm(inst, ir.And, ir.I64)
	case riscv.OpOR:
		l.binOpReg(inst, ir.Or, ir.I64)
	case riscv.OpORI:
		l.binOpImm(inst, ir.Or, ir.I64)
	case riscv.OpXOR:
		l.binOpReg(inst, ir.Xor, ir.I64)
	case riscv.OpXORI:
		l.binOpImm(inst, ir.Xor, ir.I64)
	case riscv.OpSLL:
		l.binOpReg(inst, ir.Shl, ir.I64)
	case riscv.OpSLLI:
		l.binOpImm(inst, ir.Shl, ir.I64)
	case riscv.OpSRL:
		l.binOpReg(inst, ir.Shr, ir.I64)
	case riscv.OpSRLI:
		l.binOpImm(inst, ir.Shr, ir.I64)
	case riscv.OpSRA:
		l.binOpReg(inst, ir.Sar, ir.I64)
	case riscv.OpSRAI:
		l.binOpImm(inst, ir.Sar, ir.I64)
	case riscv.OpSLT:
		l.binOpReg(inst, ir.Lt, ir.I64)
	case riscv.OpSLTI:
		l.binOpImm(inst, ir.Lt, ir.I64)
	case riscv.OpSLTU:
		l.binOpReg(inst, ir.LtU, ir.I64)
	case riscv.OpSLTIU:
		l.binOpImm(inst, ir.LtU, ir.I64)

	case riscv.OpADDW:
		l.binOpReg32(inst, ir.Add)
	case riscv.OpSUBW:
		l.binOpReg32(inst, ir.Sub)
	case riscv.OpADDIW:
		l.binOpImm32(inst, ir.Add)
	case riscv.OpSLLW:
		l.binOpReg32(inst, ir.Shl)
	case riscv.OpSLLIW:
		l.binOpImm32(inst, ir.Shl)
	case riscv.OpSRLW:
		l.binOpReg32(inst, ir.Shr)
	case riscv.OpSRLIW:
		l.binOpImm32(inst, ir.Shr)
	case riscv.OpSRAW:
		l.binOpReg32(inst, ir.Sar)
	case riscv.OpSRAIW:
		l.binOpImm32(inst, ir.Sar)

	case riscv.OpLB:
		l.loadSext(inst, ir.I8)
	case riscv.OpLH:
		l.loadSext(inst, ir.I16)
	case riscv.OpLW:
		l.loadSext(inst, ir.I32)
	case riscv.OpLD:
		l.loadPlain(inst, ir.I64)
	case riscv.OpLBU:
		l.loadZext(inst, ir.I8)
	case riscv.OpLHU:
		l.loadZext(inst, ir.I16)
	case riscv.OpLWU:
		l.loadZext(inst, ir.I32)

	case riscv.OpSB:
		l.storeTrunc(inst, ir.I8)
	case riscv.OpSH:
		l.storeTrunc(inst, ir.I16)
	case riscv.OpSW:
		l.storeTrunc(inst, ir.I32)
	case riscv.OpSD:
		l.storeTrunc(inst, ir.I64)

	case riscv.OpLUI:
		v := uint64(inst.Immediate(1))
		l.setRegister(inst.Register(0), l.constant(ir.I64, v))

	case riscv.OpAUIPC:
		v := inst.Address + uint64(inst.Immediate(1))
		l.setRegister(inst.Register(0), l.constant(ir.I64, v))

	default:
		return &ErrUnsupportedInstr{Opcode: inst.Opcode, Address: inst.Address}
	}

	return nil
}

func (l *Lifter) binOpReg(inst riscv.Instruction, op ir.BinaryOpcode, t ir.Type) {
	rs1 := l.getRegister(inst.Register(1))
	rs2 := l.getRegister(inst.Register(2))
	l.setRegister(inst.Register(0), l.binary(op, t, rs1, rs2))
}

func (l *Lifter) binOpImm(inst riscv.Instruction, op ir.BinaryOpcode, t ir.Type) {
	rs1 := l.getRegister(inst.Register(1))
	imm := l.constant(t, uint64(inst.Immediate(2)))
	l.setRegister(inst.Register(0), l.binary(op, t, rs1, imm))
}

func (l *Lifter) binOpReg32(inst riscv.Instruction, op ir.BinaryOpcode) {
	rs1 := l.trunc(ir.I64, ir.I32, l.getRegister(inst.Register(1)))
	rs2 := l.trunc(ir.I64, ir.I32, l.getRegister(inst.Register(2)))
	res32 := l.binary(op, ir.I32, rs1, rs2)
	l.setRegister(inst.Register(0), l.sext(ir.I32, ir.I64, res32))
}

func (l *Lifter) binOpImm32(inst riscv.Instruction, op ir.BinaryOpcode) {
	rs1 := l.trunc(ir.I64, ir.I32, l.getRegister(inst.Register(1)))
	imm := l.constant(ir.I32, uint64(inst.Immediate(2)))
	res32 := l.binary(op, ir.I32, rs1, imm)
	l.setRegister(inst.Register(0), l.sext(ir.I32, ir.I64, res32))
}

func (l *Lifter) address(inst riscv.Instruction) ir.ValueId {
	rs1 := l.getRegister(inst.Register(1))
	imm := l.constant(ir.I64, uint64(inst.Immediate(2)))
	return l.binary(ir.Add, ir.I64, rs1, imm)
}

func (l *Lifter) loadSext(inst riscv.Instruction, width ir.Type) {
	addr := l.address(inst)
	v := l.load(width, addr)
	l.setRegister(inst.Register(0), l.sext(width, ir.I64, v))
}

func (l *Lifter) loadZext(inst riscv.Instruction, width ir.Type) {
	addr := l.address(inst)
	v := l.load(width, addr)
	l.setRegister(inst.Register(0), l.zext(width, ir.I64, v))
}

func (l *Lifter) loadPlain(inst riscv.Instruction, width ir.Type) {
	addr := l.address(inst)
	l.setRegister(inst.Register(0), l.load(width, addr))
}

func (l *Lifter) storeTrunc(inst riscv.Instruction, width ir.Type) {
	rs1 := l.getRegister(inst.Register(0))
	rs2 := l.getRegister(inst.Register(1))
	imm := l.constant(ir.I64, uint64(inst.Immediate(2)))
	addr := l.binary(ir.Add, ir.I64, rs1, imm)
	value := rs2
	if width != ir.I64 {
		value = l.trunc(ir.I64, width, rs2)
	}
	l.store(width, value, addr)
}

func (l *Lifter) liftTerminator(inst riscv.Instruction, fallThrough uint64) (ir.Terminator, error) {
	switch inst.Opcode {
	case riscv.OpBEQ:
		return l.condBranch(inst, ir.Eq, fallThrough), nil
	case riscv.OpBNE:
		return l.condBranch(inst, ir.Ne, fallThrough), nil
	case riscv.OpBLT:
		return l.condBranch(inst, ir.Lt, fallThrough), nil
	case riscv.OpBGE:
		return l.condBranch(inst, ir.Ge, fallThrough), nil
	case riscv.OpBLTU:
		return l.condBranch(inst, ir.LtU, fallThrough), nil
	case riscv.OpBGEU:
		return l.condBranch(inst, ir.GeU, fallThrough), nil

	case riscv.OpJAL:
		l.setRegister(inst.Register(0), l.constant(ir.I64, inst.Address+4))
		target := uint64(int64(inst.Address) + inst.Immediate(1))
		return ir.Terminator{Kind: ir.TermBranch, Target: target}, nil

	case riscv.OpJALR:
		l.setRegister(inst.Register(0), l.constant(ir.I64, inst.Address+4))
		zero := l.constant(ir.I64, 0)
		return ir.Terminator{Kind: ir.TermReturn, HasValue: true, Value: zero}, nil

	default:
		return ir.Terminator{}, &ErrUnsupportedInstr{Opcode: inst.Opcode, Address: inst.Address}
	}
}

func (l *Lifter) condBranch(inst riscv.Instruction, op ir.BinaryOpcode, fallThrough uint64) ir.Terminator {
	rs1 := l.getRegister(inst.Register(0))
	rs2 := l.getRegister(inst.Register(1))
	cond := l.binary(op, ir.I1, rs1, rs2)
	target := uint64(int64(inst.Address) + inst.Immediate(2))
	return ir.Terminator{Kind: ir.TermCondBranch, Condition: cond, Target: target, Alt: fallThrough}
}
