package guest

import "unsafe"

// addrOf returns the host virtual address of a mapped byte slice's backing
// array. Used once at allocation time; the slice is never reallocated or
// moved afterward (it is backed by an mmap region, not the Go heap).
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
