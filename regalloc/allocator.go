package regalloc

import (
	"fmt"
	"sort"

	"github.com/sarchlab/dinorisc/arm64"
)

// ErrOutOfRegisters is returned when a block's live intervals need more
// simultaneous physical registers than the allocator's pool holds.
// This allocator never spills.
type ErrOutOfRegisters struct {
	VReg arm64.VirtualRegister
}

func (e *ErrOutOfRegisters) Error() string {
	return fmt.Sprintf("regalloc: out of physical registers allocating v%d", e.VReg)
}

// pool is the set of general-purpose registers available to the
// allocator. X29 (frame pointer), X30 (link register), and XSP are
// reserved for the JIT's own calling convention and are never handed
// out.
var pool = []arm64.Register{
	arm64.X0, arm64.X1, arm64.X2, arm64.X3, arm64.X4, arm64.X5, arm64.X6, arm64.X7,
	arm64.X8, arm64.X9, arm64.X10, arm64.X11, arm64.X12, arm64.X13, arm64.X14, arm64.X15,
	arm64.X16, arm64.X17, arm64.X18, arm64.X19, arm64.X20, arm64.X21, arm64.X22, arm64.X23,
	arm64.X24, arm64.X25, arm64.X26, arm64.X27, arm64.X28,
}

type active struct {
	interval LiveInterval
	reg      arm64.Register
}

// Allocate runs a single forward linear-scan pass over insts' live
// intervals and returns a new instruction sequence with every virtual
// register operand replaced by the physical register it was assigned.
func Allocate(insts []arm64.Instruction) ([]arm64.Instruction, error) {
	intervals := ComputeLiveIntervals(insts)
	assignment, err := allocateIntervals(intervals)
	if err != nil {
		return nil, err
	}
	return substitute(insts, assignment), nil
}

func allocateIntervals(intervals []LiveInterval) (map[arm64.VirtualRegister]arm64.Register, error) {
	assignment := make(map[arm64.VirtualRegister]arm64.Register, len(intervals))

	free := make([]arm64.Register, len(pool))
	copy(free, pool)

	var activeList []active

	for _, in := range intervals {
		var stillActive []active
		for _, a := range activeList {
			if a.interval.End < in.Start {
				free = append(free, a.reg)
			} else {
				stillActive = append(stillActive, a)
			}
		}
		activeList = stillActive

		if len(free) == 0 {
			return nil, &ErrOutOfRegisters{VReg: in.VReg}
		}

		sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
		reg := free[0]
		free = free[1:]

		assignment[in.VReg] = reg
		activeList = append(activeList, active{interval: in, reg: reg})
	}

	return assignment, nil
}

func resolve(op arm64.Operand, assignment map[arm64.VirtualRegister]arm64.Register) arm64.Operand {
	if !op.IsVReg() {
		return op
	}
	return arm64.Reg(assignment[op.VReg])
}

func substitute(insts []arm64.Instruction, assignment map[arm64.VirtualRegister]arm64.Register) []arm64.Instruction {
	out := make([]arm64.Instruction, len(insts))
	for i, inst := range insts {
		switch inst.Kind {
		case arm64.KindThreeOperand:
			inst.Dest = resolve(inst.Dest, assignment)
			inst.Src1 = resolve(inst.Src1, assignment)
			inst.Src2 = resolve(inst.Src2, assignment)
		case arm64.KindTwoOperand:
			inst.Dest = resolve(inst.Dest, assignment)
			inst.Src = resolve(inst.Src, assignment)
		case arm64.KindMemory:
			inst.Reg = resolve(inst.Reg, assignment)
			inst.Base = resolve(inst.Base, assignment)
		case arm64.KindBranch:
			inst.Src = resolve(inst.Src, assignment)
		}
		out[i] = inst
	}
	return out
}
