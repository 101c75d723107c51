package riscv_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dinorisc/riscv"
)

var _ = Describe("Decoder", func() {
	var decoder *riscv.Decoder

	BeforeEach(func() {
		decoder = riscv.NewDecoder()
	})

	Describe("OP-IMM", func() {
		// addi x5, x0, 10 -> 0x00A00293
		It("should decode ADDI x5, x0, 10", func() {
			inst := decoder.Decode(0x00A00293, 0x1000)

			Expect(inst.Opcode).To(Equal(riscv.OpADDI))
			Expect(inst.Register(0)).To(Equal(uint32(5)))
			Expect(inst.Register(1)).To(Equal(uint32(0)))
			Expect(inst.Immediate(2)).To(Equal(int64(10)))
			Expect(inst.Address).To(Equal(uint64(0x1000)))
		})

		It("should sign-extend a negative immediate", func() {
			// addi x5, x0, -1 -> 0xFFF00293
			inst := decoder.Decode(0xFFF00293, 0)
			Expect(inst.Opcode).To(Equal(riscv.OpADDI))
			Expect(inst.Immediate(2)).To(Equal(int64(-1)))
		})
	})

	Describe("OP", func() {
		// add x3, x1, x2 -> 0x002081B3
		It("should decode ADD x3, x1, x2", func() {
			inst := decoder.Decode(0x002081B3, 0)

			Expect(inst.Opcode).To(Equal(riscv.OpADD))
			Expect(inst.Register(0)).To(Equal(uint32(3)))
			Expect(inst.Register(1)).To(Equal(uint32(1)))
			Expect(inst.Register(2)).To(Equal(uint32(2)))
		})
	})

	Describe("BRANCH", func() {
		// beq x1, x2, 8 -> 0x00208463
		It("should decode BEQ x1, x2, 8", func() {
			inst := decoder.Decode(0x00208463, 0x2000)

			Expect(inst.Opcode).To(Equal(riscv.OpBEQ))
			Expect(inst.Register(0)).To(Equal(uint32(1)))
			Expect(inst.Register(1)).To(Equal(uint32(2)))
			Expect(inst.Immediate(2)).To(Equal(int64(8)))
			Expect(inst.IsTerminator()).To(BeTrue())
		})
	})

	Describe("JAL", func() {
		// jal x1, 16 -> 0x010000EF
		It("should decode JAL x1, 16", func() {
			inst := decoder.Decode(0x010000EF, 0)

			Expect(inst.Opcode).To(Equal(riscv.OpJAL))
			Expect(inst.Register(0)).To(Equal(uint32(1)))
			Expect(inst.Immediate(1)).To(Equal(int64(16)))
			Expect(inst.IsTerminator()).To(BeTrue())
		})
	})

	Describe("JALR", func() {
		// jalr x1, 4(x2) -> 0x004100E7
		It("should decode JALR x1, 4(x2)", func() {
			inst := decoder.Decode(0x004100E7, 0)

			Expect(inst.Opcode).To(Equal(riscv.OpJALR))
			Expect(inst.Register(0)).To(Equal(uint32(1)))
			Expect(inst.Register(1)).To(Equal(uint32(2)))
			Expect(inst.Immediate(2)).To(Equal(int64(4)))
			Expect(inst.IsTerminator()).To(BeTrue())
		})
	})

	Describe("LUI", func() {
		// lui x5, 0x12345 -> 0x123452B7
		It("should decode LUI x5, 0x12345", func() {
			inst := decoder.Decode(0x123452B7, 0)

			Expect(inst.Opcode).To(Equal(riscv.OpLUI))
			Expect(inst.Register(0)).To(Equal(uint32(5)))
			Expect(inst.Immediate(1)).To(Equal(int64(0x12345000)))
		})
	})

	Describe("invalid encodings", func() {
		It("should report an invalid opcode byte", func() {
			inst := decoder.Decode(0xFFFFFFFF, 0)
			Expect(inst.IsValid()).To(BeFalse())
			Expect(decoder.InvalidCount()).To(Equal(uint64(1)))
		})
	})

	Describe("statistics", func() {
		It("should count every decoded word", func() {
			decoder.Decode(0x00A00293, 0)
			decoder.Decode(0x002081B3, 0)
			Expect(decoder.TotalDecoded()).To(Equal(uint64(2)))
		})
	})
})
