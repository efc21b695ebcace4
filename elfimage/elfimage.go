// Package elfimage loads a 32-bit ARM ELF executable and exposes it as an
// armrecon.Loader: random-access instruction reads and symbol lookups in
// both directions.
package elfimage

import (
	"debug/elf"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"

	"armrecon"
)

// section is one SHF_ALLOC section's contents, mapped to its load address.
// SHT_NOBITS (.bss) sections are allocated as zero-filled data of the
// right size so ReadInstruction never special-cases them.
type section struct {
	vaddr Address
	data  []byte
}

// Address is a local alias kept for readability inside this package;
// identical in representation to armrecon.Address.
type Address = armrecon.Address

// Image is a loaded program: its allocatable sections and symbol table.
// It implements armrecon.Loader.
type Image struct {
	entry     Address
	byteOrder binary.ByteOrder
	sections  []section

	symByAddr map[Address]string
	symByName map[string]Address
}

// Open reads filename, validates it is a 32-bit ARM ELF executable, and
// loads its allocatable sections and symbol table into memory. Mirrors
// vm_open_program / vm_check_elf32bitarm / vm_load_sections_elf32bitarm
// from the original implementation.
func Open(filename string) (*Image, error) {
	f, err := elf.Open(filename)
	if err != nil {
		return nil, &armrecon.UsageError{Message: "not an ELF object: " + err.Error()}
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return nil, &armrecon.UsageError{Message: "not a 32-bit ELF object"}
	}
	if f.Machine != elf.EM_ARM {
		return nil, &armrecon.UsageError{Message: "not an ARM ELF object"}
	}
	if f.Type != elf.ET_EXEC {
		return nil, &armrecon.UsageError{Message: "not an executable ELF object"}
	}

	img := &Image{
		entry:     Address(f.Entry),
		byteOrder: f.ByteOrder,
		symByAddr: make(map[Address]string),
		symByName: make(map[string]Address),
	}

	for _, sh := range f.Sections {
		if sh.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		if sh.Type == elf.SHT_NOBITS {
			img.sections = append(img.sections, section{
				vaddr: Address(sh.Addr),
				data:  make([]byte, sh.Size),
			})
			continue
		}
		if sh.Type != elf.SHT_PROGBITS {
			continue
		}
		data, err := sh.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "reading section %s", sh.Name)
		}
		img.sections = append(img.sections, section{vaddr: Address(sh.Addr), data: data})
	}

	sort.Slice(img.sections, func(i, j int) bool {
		return img.sections[i].vaddr < img.sections[j].vaddr
	})

	if err := img.loadSymbols(f); err != nil {
		return nil, err
	}

	return img, nil
}

func (img *Image) loadSymbols(f *elf.File) error {
	load := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if sym.Name == "" {
				continue
			}
			img.setSymbolName(Address(sym.Value), sym.Name)
		}
	}

	if syms, err := f.Symbols(); err == nil {
		load(syms)
	}
	if syms, err := f.DynamicSymbols(); err == nil {
		load(syms)
	}

	return nil
}

// setSymbolName records name at addr, replacing any previous name at the
// same address — mirrors vm_set_symbol_name's replace-on-duplicate
// behavior.
func (img *Image) setSymbolName(addr Address, name string) {
	img.symByAddr[addr] = name
	img.symByName[name] = addr
}

// ReadInstruction returns the 32-bit word at addr, or an
// *armrecon.FatalMemoryError if addr falls outside every loaded section.
func (img *Image) ReadInstruction(addr Address) (uint32, error) {
	for _, s := range img.sections {
		end := s.vaddr + Address(len(s.data))
		if addr >= s.vaddr && addr < end {
			off := addr - s.vaddr
			if off+4 > Address(len(s.data)) {
				return 0, &armrecon.FatalMemoryError{Addr: addr}
			}
			return img.byteOrder.Uint32(s.data[off : off+4]), nil
		}
	}
	return 0, &armrecon.FatalMemoryError{Addr: addr}
}

// EntryPoint returns the ELF header's entry address.
func (img *Image) EntryPoint() Address {
	return img.entry
}

// SymbolName returns the symbol name at addr, if one exists.
func (img *Image) SymbolName(addr Address) (string, bool) {
	name, ok := img.symByAddr[addr]
	return name, ok
}

// SymbolAddress returns the address of symbol name, if one exists.
func (img *Image) SymbolAddress(name string) (Address, bool) {
	addr, ok := img.symByName[name]
	return addr, ok
}
