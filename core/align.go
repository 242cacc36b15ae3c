// Package core provides the fundamental primitives of the arcsys ECS runtime:
// the per-cell semaphore protocol, the boxed-cell memory representation, the
// indirection record that gives every handle a stable address, and the
// best-fit coalescing chunk list used by the arena allocator.
package core

import "unsafe"

const (
	// CacheLineSize is the assumed cache line width. AlignedBytes starts
	// an arena's backing buffer on a boundary of this width; the cells
	// inside the buffer are packed at 8-byte alignment, so adjacent
	// small cells can share a cache line.
	CacheLineSize = 64
)

// IsAligned reports whether addr falls on a cache line boundary.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// AlignedSize rounds size up to the nearest cache line multiple.
func AlignedSize(size uintptr) uintptr {
	return (size + uintptr(CacheLineSize-1)) & ^uintptr(CacheLineSize-1)
}

// AlignedBytes allocates a byte slice whose backing array starts on a cache
// line boundary. Extra bytes beyond size are reserved for the alignment
// shift and are not part of the returned slice.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size+CacheLineSize-1)
	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}
	return buf[offset : offset+uintptr(size)]
}

// Align32 rounds n up to the nearest 32-byte boundary.
func Align32(n int) int { return (n + 31) &^ 31 }
