package riscv

import "fmt"

// ErrOutOfBounds is returned by Assemble when a basic block runs past
// the end of the text section without encountering a terminator.
type ErrOutOfBounds struct {
	Address uint64
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("riscv: block starting at 0x%x ran past the end of the text section", e.Address)
}

// ErrBadEncoding is returned by Assemble when a word in the block fails
// to decode.
type ErrBadEncoding struct {
	Address uint64
	Raw     uint32
}

func (e *ErrBadEncoding) Error() string {
	return fmt.Sprintf("riscv: word 0x%08x at 0x%x is not a valid RV64I instruction", e.Raw, e.Address)
}

// Assemble decodes instructions from text (whose first byte lives at
// guest address textBase) starting at guest address pc, stopping as soon
// as a decoded instruction is a terminator (branch, jump, or return-like
// JALR). If no terminator is found before the text section is exhausted,
// Assemble reports ErrOutOfBounds. Any word that fails to decode reports
// ErrBadEncoding immediately.
func Assemble(d *Decoder, text []byte, textBase uint64, pc uint64) ([]Instruction, error) {
	if pc < textBase || pc >= textBase+uint64(len(text)) {
		return nil, &ErrOutOfBounds{Address: pc}
	}

	var block []Instruction
	addr := pc
	for {
		off := addr - textBase
		if off+4 > uint64(len(text)) {
			return nil, &ErrOutOfBounds{Address: pc}
		}

		raw := uint32(text[off]) | uint32(text[off+1])<<8 |
			uint32(text[off+2])<<16 | uint32(text[off+3])<<24

		inst := d.Decode(raw, addr)
		if !inst.IsValid() {
			return nil, &ErrBadEncoding{Address: addr, Raw: raw}
		}

		block = append(block, inst)
		if inst.IsTerminator() {
			return block, nil
		}

		addr += 4
	}
}
