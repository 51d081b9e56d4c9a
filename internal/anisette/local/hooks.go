package local

import (
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"
)

// hooks is the installed, immutable-once-built table of POSIX replacements
// the foreign image's imports are bound to, keyed by the generic dispatch
// index assigned at install time. Per §5 concurrency rules the registry
// itself never mutates after install; only the per-call state (errno,
// allocations) is touched at call time.
type hooks struct {
	table []hookFunc

	mu        sync.Mutex // not locked here; Backend.mu serializes calls into the foreign image
	lastErrno int32

	allocs   map[uintptr][]byte
	allocsMu sync.Mutex
}

var current atomic.Pointer[hooks]

func activeHooks() *hooks {
	return current.Load()
}

// hookNames is the fixed order every stub/table entry agrees on.
var hookNames = []string{
	"arc4random",
	"chmod",
	"close",
	"__errno_location",
	"free",
	"fstat",
	"ftruncate",
	"gettimeofday",
	"lstat",
	"malloc",
	"mkdir",
	"open",
	"read",
	"strncpy",
	"umask",
	"write",
	"__system_property_get",
}

func newHooks() *hooks {
	h := &hooks{allocs: map[uintptr][]byte{}}
	h.table = []hookFunc{
		h.arc4random,
		h.chmod,
		h.close,
		h.errnoLocation,
		h.free,
		h.fstat,
		h.ftruncate,
		h.gettimeofday,
		h.lstat,
		h.malloc,
		h.mkdir,
		h.open,
		h.read,
		h.strncpy,
		h.umask,
		h.write,
		h.systemPropertyGet,
	}
	return h
}

// install makes h the active hook table for the process. Only one LocalADI
// instance may be active at a time, matching the foreign library's
// not-re-entrant, single-instance contract.
func (h *hooks) install() {
	current.Store(h)
}

func (h *hooks) setErrno(v int32) {
	atomic.StoreInt32(&h.lastErrno, v)
}

// --- hook implementations, lowered to uintptr in/out per the SysV64 ABI ---

func (h *hooks) arc4random(a0, a1, a2, a3, a4 uintptr) uintptr {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return uintptr(buf[0]) | uintptr(buf[1])<<8 | uintptr(buf[2])<<16 | uintptr(buf[3])<<24
}

func (h *hooks) errnoLocation(a0, a1, a2, a3, a4 uintptr) uintptr {
	return uintptr(readPtr(&h.lastErrno))
}

func (h *hooks) systemPropertyGet(a0, a1, a2, a3, a4 uintptr) uintptr {
	// Android's __system_property_get is only ever probed for capability;
	// the host always reports absence by writing "0" and returning 1, per
	// the documented contract.
	writeCString(a1, "0")
	return 1
}

func (h *hooks) gettimeofday(a0, a1, a2, a3, a4 uintptr) uintptr {
	now := time.Now()
	writeTimeval(a0, now.Unix(), int64(now.Nanosecond()/1000))
	return 0
}
