package local

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/shaw-baobao/go-anisette/internal/anisette"
)

// image is a loaded copy of libstoreservicescore.so mapped into this
// process's address space at an arbitrary base, with its own relocations
// applied and its imports bound to our hook table.
type image struct {
	base    uintptr
	size    int
	mapping []byte

	symbols map[string]uintptr
	imports []importSlot
}

// importSlot is a GOT/PLT entry left unresolved by applyRelocations because
// it names an imported symbol (one of our POSIX hooks) rather than an
// internal relative address.
type importSlot struct {
	offset uint64 // byte offset into mapping
	name   string
}

// loadImage maps path (an ELF shared object built for Android/ARM or x86_64,
// depending on the distribution channel) into memory, processes its
// relocations, and resolves the obfuscated entry points. The library's
// own imports are NOT bound here; bindImports binds them once the
// image is mapped, since relocations must already be in place before any
// GOT/PLT entry is considered valid.
func loadImage(path string) (*image, error) {
	f, err := elf.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &anisette.ErrMissingLibraries{Path: path}
		}
		return nil, fmt.Errorf("local: open library: %w", err)
	}
	defer f.Close()

	if f.Type != elf.ET_DYN {
		return nil, &anisette.ErrInvalidLibraryFormat{Symbol: "<ET_DYN required>"}
	}

	var minAddr, maxAddr uint64
	first := true
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if first {
			minAddr = prog.Vaddr
			first = false
		}
		if prog.Vaddr < minAddr {
			minAddr = prog.Vaddr
		}
		end := prog.Vaddr + prog.Memsz
		if end > maxAddr {
			maxAddr = end
		}
	}
	if first {
		return nil, &anisette.ErrInvalidLibraryFormat{Symbol: "<no PT_LOAD segments>"}
	}

	span := int(maxAddr - minAddr)
	mapping, err := unix.Mmap(-1, 0, span, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("local: reserve image memory: %w", err)
	}

	base := uintptr(unsafe.Pointer(&mapping[0]))

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		off := prog.Vaddr - minAddr
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil {
			unix.Munmap(mapping)
			return nil, fmt.Errorf("local: read segment: %w", err)
		}
		copy(mapping[off:], data)
	}

	img := &image{base: base, size: span, mapping: mapping, symbols: map[string]uintptr{}}

	if err := img.applyRelocations(f, minAddr); err != nil {
		unix.Munmap(mapping)
		return nil, err
	}

	syms, err := f.DynamicSymbols()
	if err != nil {
		syms, err = f.Symbols()
	}
	if err != nil {
		unix.Munmap(mapping)
		return nil, fmt.Errorf("local: read symbol table: %w", err)
	}
	for _, sym := range syms {
		if sym.Value == 0 {
			continue
		}
		img.symbols[sym.Name] = base + uintptr(sym.Value-minAddr)
	}

	for _, name := range requiredSymbols {
		if _, ok := img.symbols[name]; !ok {
			unix.Munmap(mapping)
			return nil, &anisette.ErrInvalidLibraryFormat{Symbol: name}
		}
	}

	if err := unix.Mprotect(mapping, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		unix.Munmap(mapping)
		return nil, fmt.Errorf("local: mark image executable: %w", err)
	}

	return img, nil
}

// applyRelocations processes R_X86_64_RELATIVE-class entries (the only kind
// a position-independent library needs before its imports are bound by the
// hook table); GLOB_DAT/JUMP_SLOT entries targeting our hooked POSIX
// symbols are left for bindImports to fill in.
func (img *image) applyRelocations(f *elf.File, minAddr uint64) error {
	dynSyms, err := f.DynamicSymbols()
	if err != nil {
		dynSyms = nil
	}

	sections := []string{".rela.dyn", ".rela.plt"}
	for _, name := range sections {
		sec := f.Section(name)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return fmt.Errorf("local: read %s: %w", name, err)
		}
		const relaEntrySize = 24
		for off := 0; off+relaEntrySize <= len(data); off += relaEntrySize {
			r_offset := binary.LittleEndian.Uint64(data[off : off+8])
			r_info := binary.LittleEndian.Uint64(data[off+8 : off+16])
			r_addend := int64(binary.LittleEndian.Uint64(data[off+16 : off+24]))

			relType := r_info & 0xffffffff
			symIdx := r_info >> 32
			const rX8664Relative = 8

			dest := r_offset - minAddr
			if int(dest)+8 > img.size {
				continue
			}
			switch relType {
			case rX8664Relative:
				value := uint64(int64(img.base) + r_addend)
				binary.LittleEndian.PutUint64(img.mapping[dest:dest+8], value)
			default:
				// GLOB_DAT/JUMP_SLOT: resolve to an imported symbol name;
				// bindImports fills in the actual address once the hook
				// stub table exists.
				var symName string
				if dynSyms != nil && symIdx > 0 && int(symIdx) <= len(dynSyms) {
					symName = dynSyms[symIdx-1].Name
				}
				if symName != "" {
					img.imports = append(img.imports, importSlot{offset: dest, name: symName})
				}
			}
		}
	}
	return nil
}

// bindImports writes resolved hook stub addresses into every GOT/PLT slot
// that names one of our hooked POSIX imports. Must run after the image's
// own relative relocations are applied and before any call into the image.
func bindImports(img *image, addrs map[string]uintptr) error {
	for _, slot := range img.imports {
		addr, ok := addrs[slot.name]
		if !ok {
			// Not one of our hooks (e.g. an intra-library PLT stub already
			// satisfied by applyRelocations); leave as-is.
			continue
		}
		binary.LittleEndian.PutUint64(img.mapping[slot.offset:slot.offset+8], uint64(addr))
	}
	return nil
}

func (img *image) symbol(name string) (uintptr, bool) {
	addr, ok := img.symbols[name]
	return addr, ok
}

func (img *image) close() error {
	return unix.Munmap(img.mapping)
}
