package arm64

// Decode recovers an Instruction from a 4-byte little-endian machine
// word produced by Encode. It exists purely to round-trip the encoder
// under test; it does not aim to decode arbitrary AArch64 binaries, and
// it inverts exactly the bit patterns Encode emits, quirks included
// (e.g. MOV and ORR share an opcode field and are distinguished only by
// whether Rn names the zero register).
func Decode(word [4]byte) (Instruction, error) {
	raw := uint32(word[0]) | uint32(word[1])<<8 | uint32(word[2])<<16 | uint32(word[3])<<24
	return decodeWord(raw)
}

func sizeFromSF(sf uint32) DataSize {
	if sf == 1 {
		return SizeX
	}
	return SizeW
}

func fields(raw uint32) (rd, rn, rm Register, sf uint32) {
	return Register(raw & 0x1F), Register((raw >> 5) & 0x1F), Register((raw >> 16) & 0x1F), (raw >> 31) & 1
}

func decodeWord(raw uint32) (Instruction, error) {
	if raw == 0xD65F03C0 {
		return ReturnLR(), nil
	}
	if raw&0xFFFFFC1F == 0xD6400000 {
		rn := Register((raw >> 5) & 0x1F)
		return ReturnReg(Reg(rn)), nil
	}

	if (raw>>24)&0x1F == 0b01011 {
		switch (raw >> 29) & 0x3 {
		case 0b00:
			return decodeThreeReg(raw, ADD), nil
		case 0b10:
			return decodeThreeReg(raw, SUB), nil
		case 0b11:
			if raw&0x1F == 31 {
				return decodeCompare(raw), nil
			}
		}
	}
	if (raw>>24)&0x1F == 0b01010 {
		switch (raw >> 29) & 0x3 {
		case 0b00:
			return decodeThreeReg(raw, AND), nil
		case 0b01:
			rd, rn, rm, sf := fields(raw)
			if rn == 31 {
				return TwoOperand(MOV, sizeFromSF(sf), Reg(rd), Reg(rm)), nil
			}
			return ThreeOperand(ORR, sizeFromSF(sf), Reg(rd), Reg(rn), Reg(rm)), nil
		case 0b10:
			return decodeThreeReg(raw, EOR), nil
		}
	}
	if (raw>>24)&0x1F == 0b11011 {
		return decodeThreeReg(raw, MUL), nil
	}

	switch (raw >> 23) & 0xFF {
	case 0b00100010:
		return decodeAddSubImm(raw, ADD), nil
	case 0b10100010:
		return decodeAddSubImm(raw, SUB), nil
	case 0b11100010:
		return decodeCompareImm(raw), nil
	case 0b10100101:
		rd := Register(raw & 0x1F)
		imm := (raw >> 5) & 0xFFFF
		return TwoOperand(MOV, sizeFromSF(raw>>31), Reg(rd), Imm(uint64(imm))), nil
	}

	if (raw>>23)&0x3F == 0b100110 {
		rd := Register(raw & 0x1F)
		rn := Register((raw >> 5) & 0x1F)
		opc := (raw >> 29) & 0x3
		imms := (raw >> 10) & 0x3F
		switch {
		case opc == 0b00 && imms == 7:
			return TwoOperand(SXTB, sizeFromSF(raw>>31), Reg(rd), Reg(rn)), nil
		case opc == 0b00 && imms == 15:
			return TwoOperand(SXTH, sizeFromSF(raw>>31), Reg(rd), Reg(rn)), nil
		case opc == 0b00 && imms == 31:
			return TwoOperand(SXTW, SizeW, Reg(rd), Reg(rn)), nil
		case opc == 0b10 && imms == 7:
			return TwoOperand(UXTB, SizeW, Reg(rd), Reg(rn)), nil
		case opc == 0b10 && imms == 15:
			return TwoOperand(UXTH, SizeW, Reg(rd), Reg(rn)), nil
		}
	}

	if (raw>>24)&0x3F == 0b111001 {
		op := LDR
		if (raw>>22)&1 == 0 {
			op = STR
		}
		return decodeMemScaled(raw, op), nil
	}
	switch (raw >> 21) & 0x1FF {
	case 0b111000010:
		return decodeMemUnscaled(raw, LDR), nil
	case 0b111000000:
		return decodeMemUnscaled(raw, STR), nil
	}

	if (raw>>26)&0x3F == 0b000101 {
		imm26 := raw & 0x3FFFFFF
		return BranchTo(B, branchOffset(imm26, 26)), nil
	}
	if (raw>>25)&0x7F == 0b0101010 {
		imm19 := (raw >> 5) & 0x7FFFF
		cond := raw & 0xF
		return BranchTo(condFromCode(cond), branchOffset(imm19, 19)), nil
	}

	return Instruction{}, &ErrEncodingRange{Reason: "unrecognized AArch64 word"}
}

func decodeThreeReg(raw uint32, op Opcode) Instruction {
	rd, rn, rm, sf := fields(raw)
	return ThreeOperand(op, sizeFromSF(sf), Reg(rd), Reg(rn), Reg(rm))
}

func decodeCompare(raw uint32) Instruction {
	_, rn, rm, sf := fields(raw)
	return Compare(sizeFromSF(sf), Reg(rn), Reg(rm))
}

func decodeCompareImm(raw uint32) Instruction {
	rn := Register((raw >> 5) & 0x1F)
	imm := (raw >> 10) & 0xFFF
	return Compare(sizeFromSF(raw>>31), Reg(rn), Imm(uint64(imm)))
}

func decodeAddSubImm(raw uint32, op Opcode) Instruction {
	rd := Register(raw & 0x1F)
	rn := Register((raw >> 5) & 0x1F)
	imm := (raw >> 10) & 0xFFF
	return ThreeOperand(op, sizeFromSF(raw>>31), Reg(rd), Reg(rn), Imm(uint64(imm)))
}

func decodeMemScaled(raw uint32, op Opcode) Instruction {
	size := raw >> 30
	rt := Register(raw & 0x1F)
	rn := Register((raw >> 5) & 0x1F)
	scaled := (raw >> 10) & 0xFFF
	offset := int32(scaled) << size
	return Memory(op, dataSizeFromBits(size), Reg(rt), Reg(rn), offset)
}

func decodeMemUnscaled(raw uint32, op Opcode) Instruction {
	size := raw >> 30
	rt := Register(raw & 0x1F)
	rn := Register((raw >> 5) & 0x1F)
	imm9 := (raw >> 12) & 0x1FF
	offset := signExtendBits(imm9, 9)
	return Memory(op, dataSizeFromBits(size), Reg(rt), Reg(rn), offset)
}

func dataSizeFromBits(size uint32) DataSize {
	switch size {
	case 0b00:
		return SizeB
	case 0b01:
		return SizeH
	case 0b10:
		return SizeW
	default:
		return SizeX
	}
}

func condFromCode(cond uint32) Opcode {
	for op, c := range condCodes {
		if c == cond {
			return op
		}
	}
	return OpInvalid
}

// branchOffset sign-extends an n-bit instruction-word count and scales
// it to a byte displacement, inverting Encode's offset>>2 step.
func branchOffset(v uint32, bits uint) uint64 {
	return uint64(int64(signExtendBits(v, bits))) << 2
}

func signExtendBits(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
