package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dinorisc/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid RV64I ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				writeMinimalRV64ELF(elfPath, 0x10000, 0x10000, []byte{
					0x13, 0x05, 0xa0, 0x02, // addi a0, zero, 42
					0x67, 0x80, 0x00, 0x00, // jalr zero, 0(ra)
				}, nil)
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint64(0x10000)))
			})

			It("should report the text section's base address and bytes", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.TextBase).To(Equal(uint64(0x10000)))
				Expect(prog.TextSize()).To(Equal(uint64(8)))
				Expect(prog.TextBytes).To(HaveLen(8))
			})
		})

		Context("with a named symbol", func() {
			It("should resolve the symbol's address", func() {
				elfPath := filepath.Join(tempDir, "sym.elf")
				writeMinimalRV64ELF(elfPath, 0x10000, 0x10000, []byte{
					0x13, 0x05, 0xa0, 0x02,
					0x67, 0x80, 0x00, 0x00,
				}, map[string]uint64{"myFunc": 0x10004})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())

				addr, ok := prog.FunctionAddress("myFunc")
				Expect(ok).To(BeTrue())
				Expect(addr).To(Equal(uint64(0x10004)))
			})

			It("should report absence for an unknown symbol", func() {
				elfPath := filepath.Join(tempDir, "nosym.elf")
				writeMinimalRV64ELF(elfPath, 0x10000, 0x10000, []byte{0x13, 0x00, 0x00, 0x00}, nil)

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())

				_, ok := prog.FunctionAddress("missing")
				Expect(ok).To(BeFalse())
			})
		})

		Context("with an invalid file", func() {
			It("should return error for non-existent file", func() {
				_, err := loader.Load("/nonexistent/path/to/file.elf")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return error for non-ELF file", func() {
				notElfPath := filepath.Join(tempDir, "not-elf.bin")
				err := os.WriteFile(notElfPath, []byte("not an elf file"), 0644)
				Expect(err).NotTo(HaveOccurred())

				_, err = loader.Load(notElfPath)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a non-RISC-V ELF", func() {
			It("should return error for an x86-64 ELF", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				writeMinimalELFWithMachine(elfPath, 62) // EM_X86_64

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})
		})

		Context("with a non-executable ELF", func() {
			It("should return error for an ET_REL object file", func() {
				elfPath := filepath.Join(tempDir, "rel.elf")
				writeMinimalELFWithType(elfPath, 1) // ET_REL

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not an executable"))
			})
		})
	})
})

// sectionStringTable accumulates null-terminated names and reports the
// byte offset each name was stored at, the way an ELF string table works.
type sectionStringTable struct {
	data []byte
}

func newSectionStringTable() *sectionStringTable {
	return &sectionStringTable{data: []byte{0}}
}

func (t *sectionStringTable) add(name string) uint32 {
	offset := uint32(len(t.data))
	t.data = append(t.data, []byte(name)...)
	t.data = append(t.data, 0)
	return offset
}

const (
	shtNull    = 0
	shtProgbits = 1
	shtSymtab  = 2
	shtStrtab  = 3

	shfAlloc     = 0x2
	shfExecinstr = 0x4
)

func putShdr(buf []byte, name, shType uint32, flags, addr, offset, size uint64, link, info uint32, addralign, entsize uint64) {
	binary.LittleEndian.PutUint32(buf[0:4], name)
	binary.LittleEndian.PutUint32(buf[4:8], shType)
	binary.LittleEndian.PutUint64(buf[8:16], flags)
	binary.LittleEndian.PutUint64(buf[16:24], addr)
	binary.LittleEndian.PutUint64(buf[24:32], offset)
	binary.LittleEndian.PutUint64(buf[32:40], size)
	binary.LittleEndian.PutUint32(buf[40:44], link)
	binary.LittleEndian.PutUint32(buf[44:48], info)
	binary.LittleEndian.PutUint64(buf[48:56], addralign)
	binary.LittleEndian.PutUint64(buf[56:64], entsize)
}

func putElfHeader(buf []byte, entry, shoff uint64, machine, etype uint16, shnum, shstrndx uint16) {
	copy(buf[0:4], []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // little endian
	buf[6] = 1 // version
	binary.LittleEndian.PutUint16(buf[16:18], etype)
	binary.LittleEndian.PutUint16(buf[18:20], machine)
	binary.LittleEndian.PutUint32(buf[20:24], 1) // version
	binary.LittleEndian.PutUint64(buf[24:32], entry)
	binary.LittleEndian.PutUint64(buf[32:40], 0)     // phoff
	binary.LittleEndian.PutUint64(buf[40:48], shoff) // shoff
	binary.LittleEndian.PutUint16(buf[52:54], 64)    // ehsize
	binary.LittleEndian.PutUint16(buf[54:56], 56)    // phentsize
	binary.LittleEndian.PutUint16(buf[56:58], 0)     // phnum
	binary.LittleEndian.PutUint16(buf[58:60], 64)    // shentsize
	binary.LittleEndian.PutUint16(buf[60:62], shnum)
	binary.LittleEndian.PutUint16(buf[62:64], shstrndx)
}

// writeMinimalRV64ELF writes an ET_EXEC, EM_RISCV ELF64 file with a
// single .text section and, if symbols is non-empty, a .symtab/.strtab
// pair naming addresses within it.
func writeMinimalRV64ELF(path string, entryPoint, textAddr uint64, text []byte, symbols map[string]uint64) {
	const emRISCV = 243
	const etExec = 2

	strtab := newSectionStringTable()
	var symData []byte
	symData = append(symData, make([]byte, 24)...) // mandatory null symbol

	for name, addr := range symbols {
		nameOff := strtab.add(name)
		entry := make([]byte, 24)
		binary.LittleEndian.PutUint32(entry[0:4], nameOff)
		entry[4] = 0x12 // STB_GLOBAL<<4 | STT_FUNC
		entry[5] = 0
		binary.LittleEndian.PutUint16(entry[6:8], 1) // shndx of .text
		binary.LittleEndian.PutUint64(entry[8:16], addr)
		symData = append(symData, entry...)
	}

	shstrtab := newSectionStringTable()
	nameText := shstrtab.add(".text")
	var nameSymtab, nameStrtab uint32
	hasSymbols := len(symbols) > 0
	if hasSymbols {
		nameSymtab = shstrtab.add(".symtab")
		nameStrtab = shstrtab.add(".strtab")
	}
	nameShstrtab := shstrtab.add(".shstrtab")

	textOff := uint64(64)
	cursor := textOff + uint64(len(text))

	var symtabOff, strtabOff uint64
	if hasSymbols {
		symtabOff = cursor
		cursor += uint64(len(symData))
		strtabOff = cursor
		cursor += uint64(len(strtab.data))
	}
	shstrtabOff := cursor
	cursor += uint64(len(shstrtab.data))
	shoff := cursor

	var shdrs []byte
	shdrs = append(shdrs, make([]byte, 64)...) // NULL section

	textShdr := make([]byte, 64)
	putShdr(textShdr, nameText, shtProgbits, shfAlloc|shfExecinstr, textAddr, textOff, uint64(len(text)), 0, 0, 4, 0)
	shdrs = append(shdrs, textShdr...)

	// Section indices: 0=NULL, 1=.text, then either
	// [2=.symtab, 3=.strtab, 4=.shstrtab] or just [2=.shstrtab].
	var shnum, shstrndx uint16

	if hasSymbols {
		symtabShdr := make([]byte, 64)
		putShdr(symtabShdr, nameSymtab, shtSymtab, 0, 0, symtabOff, uint64(len(symData)), 3, 1, 8, 24)
		shdrs = append(shdrs, symtabShdr...)

		strtabShdr := make([]byte, 64)
		putShdr(strtabShdr, nameStrtab, shtStrtab, 0, 0, strtabOff, uint64(len(strtab.data)), 0, 0, 1, 0)
		shdrs = append(shdrs, strtabShdr...)

		shnum = 5
		shstrndx = 4
	} else {
		shnum = 3
		shstrndx = 2
	}

	shstrtabShdr := make([]byte, 64)
	putShdr(shstrtabShdr, nameShstrtab, shtStrtab, 0, 0, shstrtabOff, uint64(len(shstrtab.data)), 0, 0, 1, 0)
	shdrs = append(shdrs, shstrtabShdr...)

	header := make([]byte, 64)
	putElfHeader(header, entryPoint, shoff, emRISCV, etExec, shnum, shstrndx)

	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = f.Close() }()

	_, _ = f.Write(header)
	_, _ = f.Write(text)
	if hasSymbols {
		_, _ = f.Write(symData)
		_, _ = f.Write(strtab.data)
	}
	_, _ = f.Write(shstrtab.data)
	_, _ = f.Write(shdrs)
}

func writeMinimalELFWithMachine(path string, machine uint16) {
	writeMinimalRV64ELFRaw(path, machine, 2)
}

func writeMinimalELFWithType(path string, etype uint16) {
	writeMinimalRV64ELFRaw(path, 243, etype)
}

// writeMinimalRV64ELFRaw writes a header-and-section-table-only ELF used
// to exercise class/machine/type validation failures before the loader
// ever looks at section contents.
func writeMinimalRV64ELFRaw(path string, machine, etype uint16) {
	shstrtab := newSectionStringTable()
	nameShstrtab := shstrtab.add(".shstrtab")

	shoff := uint64(64)
	shdrsSize := uint64(2 * 64)
	shstrtabOff := shoff + shdrsSize

	var shdrs []byte
	shdrs = append(shdrs, make([]byte, 64)...) // NULL section
	shstrtabShdr := make([]byte, 64)
	putShdr(shstrtabShdr, nameShstrtab, shtStrtab, 0, 0, shstrtabOff, uint64(len(shstrtab.data)), 0, 0, 1, 0)
	shdrs = append(shdrs, shstrtabShdr...)

	header := make([]byte, 64)
	putElfHeader(header, 0, shoff, machine, etype, 2, 1)

	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = f.Close() }()

	_, _ = f.Write(header)
	_, _ = f.Write(shdrs)
	_, _ = f.Write(shstrtab.data)
}
