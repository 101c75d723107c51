// Package regalloc computes virtual-register live intervals over a
// selected AArch64 instruction sequence and assigns physical registers
// to them with a single linear-scan pass.
package regalloc

import (
	"sort"

	"github.com/sarchlab/dinorisc/arm64"
)

// LiveInterval is the index range over the selected instruction
// sequence during which a virtual register's value must survive in a
// register.
type LiveInterval struct {
	VReg  arm64.VirtualRegister
	Start int
	End   int
}

// ComputeLiveIntervals returns one LiveInterval per virtual register
// used in insts, sorted ascending by Start.
func ComputeLiveIntervals(insts []arm64.Instruction) []LiveInterval {
	defSite := make(map[arm64.VirtualRegister]int)
	useSites := make(map[arm64.VirtualRegister][]int)

	for i, inst := range insts {
		for _, v := range definedVRegs(inst) {
			defSite[v] = i
		}
		for _, v := range usedVRegs(inst) {
			useSites[v] = append(useSites[v], i)
		}
	}

	intervals := make([]LiveInterval, 0, len(defSite))
	for vreg, start := range defSite {
		end := start
		for _, use := range useSites[vreg] {
			if use > end {
				end = use
			}
		}
		intervals = append(intervals, LiveInterval{VReg: vreg, Start: start, End: end})
	}

	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start != intervals[j].Start {
			return intervals[i].Start < intervals[j].Start
		}
		return intervals[i].VReg < intervals[j].VReg
	})

	return intervals
}

// LiveAt reports which virtual registers are live at the given
// instruction index: defined at or before it, used at or after it.
func LiveAt(insts []arm64.Instruction, index int) []arm64.VirtualRegister {
	intervals := ComputeLiveIntervals(insts)
	var live []arm64.VirtualRegister
	for _, in := range intervals {
		if in.Start <= index && in.End >= index {
			live = append(live, in.VReg)
		}
	}
	return live
}

func vregFromOperand(op arm64.Operand) (arm64.VirtualRegister, bool) {
	if op.IsVReg() {
		return op.VReg, true
	}
	return 0, false
}

func definedVRegs(inst arm64.Instruction) []arm64.VirtualRegister {
	switch inst.Kind {
	case arm64.KindThreeOperand, arm64.KindTwoOperand:
		if v, ok := vregFromOperand(inst.Dest); ok {
			return []arm64.VirtualRegister{v}
		}
	case arm64.KindMemory:
		if inst.Op == arm64.LDR {
			if v, ok := vregFromOperand(inst.Reg); ok {
				return []arm64.VirtualRegister{v}
			}
		}
	}
	return nil
}

func usedVRegs(inst arm64.Instruction) []arm64.VirtualRegister {
	var out []arm64.VirtualRegister
	switch inst.Kind {
	case arm64.KindThreeOperand:
		if v, ok := vregFromOperand(inst.Src1); ok {
			out = append(out, v)
		}
		if v, ok := vregFromOperand(inst.Src2); ok {
			out = append(out, v)
		}
	case arm64.KindTwoOperand:
		if v, ok := vregFromOperand(inst.Src); ok {
			out = append(out, v)
		}
	case arm64.KindMemory:
		if v, ok := vregFromOperand(inst.Base); ok {
			out = append(out, v)
		}
		if inst.Op == arm64.STR {
			if v, ok := vregFromOperand(inst.Reg); ok {
				out = append(out, v)
			}
		}
	case arm64.KindBranch:
		if v, ok := vregFromOperand(inst.Src); ok {
			out = append(out, v)
		}
	}
	return out
}
