package local

import (
	"encoding/binary"
	"unsafe"
)

// The foreign image only ever hands us raw addresses into its own mapped
// segments or into buffers it allocated through our malloc hook; these
// helpers translate between that address space and Go-visible memory. This
// process maps the image itself, so the addresses are always valid for the
// lifetime of the image.

func memAt(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// addrOf returns the address of b's backing array, the form the SysV64
// trampoline expects for a `const char *`/`uint8_t *` argument.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// addrOf2 returns the address of an out-parameter slot (e.g. `char **out`)
// so the foreign call can write a pointer-sized result into it.
func addrOf2(p *uintptr) uintptr {
	return uintptr(unsafe.Pointer(p))
}

func readPtr(p *int32) uintptr {
	return uintptr(unsafe.Pointer(p))
}

func readUintptr(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func writeUintptr(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

func readCString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	n := 0
	for {
		b := *(*byte)(unsafe.Pointer(addr + uintptr(n)))
		if b == 0 {
			break
		}
		n++
	}
	return string(memAt(addr, n))
}

func writeCString(addr uintptr, s string) {
	buf := memAt(addr, len(s)+1)
	copy(buf, s)
	buf[len(s)] = 0
}

// writeTimeval writes a Linux-layout `struct timeval { long tv_sec; long
// tv_usec; }` (16 bytes on x86_64) at addr, since the foreign image expects
// that layout regardless of host OS.
func writeTimeval(addr uintptr, sec, usec int64) {
	buf := memAt(addr, 16)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(usec))
}

// linuxStat is the subset of Linux's x86_64 `struct stat` the image reads:
// size, mtime. Offsets match the real 144-byte layout; unused fields are
// left zero, matching how posix_macos.rs's StatLinux translator behaves.
type linuxStat struct {
	raw [144]byte
}

func (s *linuxStat) setSize(n int64) {
	binary.LittleEndian.PutUint64(s.raw[48:56], uint64(n))
}

func (s *linuxStat) setMtime(sec, nsec int64) {
	binary.LittleEndian.PutUint64(s.raw[88:96], uint64(sec))
	binary.LittleEndian.PutUint64(s.raw[96:104], uint64(nsec))
}

func writeLinuxStat(addr uintptr, size, mtimeSec, mtimeNsec int64) {
	var s linuxStat
	s.setSize(size)
	s.setMtime(mtimeSec, mtimeNsec)
	copy(memAt(addr, len(s.raw)), s.raw[:])
}
