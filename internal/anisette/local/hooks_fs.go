package local

import (
	"os"
	"strings"
)

// fdTable tracks host *os.File handles by the fd number we hand back to the
// foreign image, since its fd numbers are meaningless to the host kernel
// once we've translated open()/close() ourselves.
var (
	fdTable   = map[int32]*os.File{}
	fdCounter int32 = 1000
)

func (h *hooks) open(pathAddr, flags, mode, a3, a4 uintptr) uintptr {
	path := translatePath(readCString(pathAddr))
	goFlags := translateOpenFlags(int32(flags))

	f, err := os.OpenFile(path, goFlags, os.FileMode(mode&0o777))
	if err != nil {
		h.setErrno(6) // ENXIO as a generic "could not open" signal
		return ^uintptr(0)
	}
	fdCounter++
	fd := fdCounter
	fdTable[fd] = f
	return uintptr(fd)
}

func (h *hooks) close(fd, a1, a2, a3, a4 uintptr) uintptr {
	f, ok := fdTable[int32(fd)]
	if !ok {
		h.setErrno(9) // EBADF
		return ^uintptr(0)
	}
	delete(fdTable, int32(fd))
	if err := f.Close(); err != nil {
		return ^uintptr(0)
	}
	return 0
}

func (h *hooks) read(fd, bufAddr, count, a3, a4 uintptr) uintptr {
	f, ok := fdTable[int32(fd)]
	if !ok {
		h.setErrno(9)
		return ^uintptr(0)
	}
	buf := memAt(bufAddr, int(count))
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return 0
	}
	return uintptr(n)
}

func (h *hooks) write(fd, bufAddr, count, a3, a4 uintptr) uintptr {
	f, ok := fdTable[int32(fd)]
	if !ok {
		h.setErrno(9)
		return ^uintptr(0)
	}
	buf := memAt(bufAddr, int(count))
	n, err := f.Write(buf)
	if err != nil {
		return ^uintptr(0)
	}
	return uintptr(n)
}

func (h *hooks) fstat(fd, statAddr, a2, a3, a4 uintptr) uintptr {
	f, ok := fdTable[int32(fd)]
	if !ok {
		h.setErrno(9)
		return ^uintptr(0)
	}
	info, err := f.Stat()
	if err != nil {
		return ^uintptr(0)
	}
	m := info.ModTime()
	writeLinuxStat(statAddr, info.Size(), m.Unix(), int64(m.Nanosecond()))
	return 0
}

func (h *hooks) lstat(pathAddr, statAddr, a2, a3, a4 uintptr) uintptr {
	path := translatePath(readCString(pathAddr))
	info, err := os.Lstat(path)
	if err != nil {
		h.setErrno(2) // ENOENT
		return ^uintptr(0)
	}
	m := info.ModTime()
	writeLinuxStat(statAddr, info.Size(), m.Unix(), int64(m.Nanosecond()))
	return 0
}

func (h *hooks) mkdir(pathAddr, mode, a2, a3, a4 uintptr) uintptr {
	path := translatePath(readCString(pathAddr))
	if err := os.Mkdir(path, os.FileMode(mode&0o777)); err != nil {
		if os.IsExist(err) {
			h.setErrno(17) // EEXIST
		}
		return ^uintptr(0)
	}
	return 0
}

func (h *hooks) chmod(pathAddr, mode, a2, a3, a4 uintptr) uintptr {
	path := translatePath(readCString(pathAddr))
	if err := os.Chmod(path, os.FileMode(mode&0o777)); err != nil {
		return ^uintptr(0)
	}
	return 0
}

func (h *hooks) ftruncate(fd, length, a2, a3, a4 uintptr) uintptr {
	f, ok := fdTable[int32(fd)]
	if !ok {
		h.setErrno(9)
		return ^uintptr(0)
	}
	if err := f.Truncate(int64(length)); err != nil {
		return ^uintptr(0)
	}
	return 0
}

func (h *hooks) umask(mask, a1, a2, a3, a4 uintptr) uintptr {
	return uintptr(osUmask(int(mask)))
}

func (h *hooks) strncpy(dst, src, n, a3, a4 uintptr) uintptr {
	s := readCString(src)
	if len(s) > int(n) {
		s = s[:n]
	}
	buf := memAt(dst, int(n))
	copy(buf, s)
	for i := len(s); i < int(n); i++ {
		buf[i] = 0
	}
	return dst
}

func (h *hooks) malloc(size, a1, a2, a3, a4 uintptr) uintptr {
	h.allocsMu.Lock()
	defer h.allocsMu.Unlock()
	buf := make([]byte, size)
	addr := uintptr(0)
	if len(buf) > 0 {
		addr = uintptrOf(buf)
	}
	h.allocs[addr] = buf
	return addr
}

func (h *hooks) free(addr, a1, a2, a3, a4 uintptr) uintptr {
	h.allocsMu.Lock()
	defer h.allocsMu.Unlock()
	delete(h.allocs, addr)
	return 0
}

// translatePath normalizes a slash-style path the foreign image expects
// into a host-native one; on POSIX hosts this is already correct, Windows
// hosts would additionally rewrite drive-relative segments.
func translatePath(p string) string {
	return strings.TrimPrefix(p, "./")
}

func translateOpenFlags(flags int32) int {
	const (
		oRDONLY = 0x0000
		oWRONLY = 0x0001
		oRDWR   = 0x0002
		oCREAT  = 0x0040
		oTRUNC  = 0x0200
		oAPPEND = 0x0400
	)
	var out int
	switch flags & 0x3 {
	case oWRONLY:
		out |= os.O_WRONLY
	case oRDWR:
		out |= os.O_RDWR
	default:
		out |= os.O_RDONLY
	}
	if flags&oCREAT != 0 {
		out |= os.O_CREATE
	}
	if flags&oTRUNC != 0 {
		out |= os.O_TRUNC
	}
	if flags&oAPPEND != 0 {
		out |= os.O_APPEND
	}
	return out
}
