package riscv_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dinorisc/riscv"
)

var _ = Describe("Assemble", func() {
	var decoder *riscv.Decoder

	BeforeEach(func() {
		decoder = riscv.NewDecoder()
	})

	It("should stop at the first terminator", func() {
		text := []byte{
			0x93, 0x02, 0xA0, 0x00, // addi x5, x0, 10
			0x63, 0x84, 0x20, 0x00, // beq x1, x2, 8
			0x93, 0x02, 0xA0, 0x00, // addi x5, x0, 10 (never reached)
		}

		block, err := riscv.Assemble(decoder, text, 0x1000, 0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(block).To(HaveLen(2))
		Expect(block[1].Opcode).To(Equal(riscv.OpBEQ))
	})

	It("should report out-of-bounds when no terminator is found", func() {
		text := []byte{
			0x93, 0x02, 0xA0, 0x00, // addi x5, x0, 10
		}

		_, err := riscv.Assemble(decoder, text, 0x1000, 0x1000)
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(&riscv.ErrOutOfBounds{}))
	})

	It("should report bad encoding immediately", func() {
		text := []byte{0xFF, 0xFF, 0xFF, 0xFF}

		_, err := riscv.Assemble(decoder, text, 0x1000, 0x1000)
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(&riscv.ErrBadEncoding{}))
	})

	It("should reject a starting pc outside the text section", func() {
		text := []byte{0x93, 0x02, 0xA0, 0x00}

		_, err := riscv.Assemble(decoder, text, 0x1000, 0x2000)
		Expect(err).To(HaveOccurred())
		Expect(err).To(BeAssignableToTypeOf(&riscv.ErrOutOfBounds{}))
	})
})
