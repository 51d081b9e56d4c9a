//go:build amd64

package local

import (
	"fmt"
	"reflect"
	"unsafe"

	"golang.org/x/sys/unix"
)

// callSysV6 and hookEntry are implemented in call_amd64.s.
func callSysV6(fn uintptr, a0, a1, a2, a3, a4, a5 uintptr) uintptr

func hookEntry()

// dispatchHook is called (via hookEntry) whenever the foreign image invokes
// one of its hooked POSIX imports. index identifies which hook; the six
// generic uintptr arguments are the SysV64 call arguments, reinterpreted by
// each hook according to its real C signature (no hook reads the sixth).
//
//go:nosplit
func dispatchHook(index, a0, a1, a2, a3, a4, a5 uintptr) uintptr {
	h := activeHooks()
	if h == nil || int(index) >= len(h.table) {
		return ^uintptr(0)
	}
	return h.table[index](a0, a1, a2, a3, a4)
}

// hookFunc is the signature every POSIX hook implements once lowered to raw
// uintptr arguments.
type hookFunc func(a0, a1, a2, a3, a4 uintptr) uintptr

// stubSize is the length in bytes of each generated machine-code landing
// stub: movabs rax, hookEntry; movabs r10, index; jmp rax.
const stubSize = 22

// buildStubs allocates one executable trampoline per hook name, each of
// which loads its index into R10 and jumps to the shared hookEntry, so the
// foreign image's GOT/PLT entries can point directly at real, callable
// addresses.
func buildStubs(names []string) (map[string]uintptr, []byte, error) {
	region, err := unix.Mmap(-1, 0, stubSize*len(names), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("local: allocate hook stubs: %w", err)
	}

	entryAddr := reflect.ValueOf(hookEntry).Pointer()

	addrs := make(map[string]uintptr, len(names))
	for i, name := range names {
		off := i * stubSize
		stub := region[off : off+stubSize]

		// movabs rax, entryAddr
		stub[0], stub[1] = 0x48, 0xb8
		putUintptr(stub[2:10], entryAddr)
		// movabs r10, index
		stub[10], stub[11] = 0x49, 0xba
		putUintptr(stub[12:20], uintptr(i))
		// jmp rax
		stub[20], stub[21] = 0xff, 0xe0

		addrs[name] = uintptr(unsafe.Pointer(&region[off]))
	}

	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(region)
		return nil, nil, fmt.Errorf("local: mark hook stubs executable: %w", err)
	}
	return addrs, region, nil
}

func putUintptr(dst []byte, v uintptr) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}
