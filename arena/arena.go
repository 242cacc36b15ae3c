// Package arena implements the growable, heterogeneous memory arena that
// backs every component cell in the runtime. It owns a single byte buffer,
// a best-fit coalescing free list, and the stable-address vector of
// indirection records that let handles survive the buffer growing or
// being relocated underneath them.
//
// Allocation and growth are not safe for concurrent use: the contract,
// matched to the original allocator's single-owner discipline, is that
// only the runner thread calls Allocate, Free, or triggers growth, and
// only between ticks. Readers and writers on worker threads only ever
// touch cells through handle.Ref/handle.Mut, which is safe for concurrent
// use by construction.
package arena

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/rs/zerolog"
	"github.com/sbl8/arcsys/core"
	"github.com/sbl8/arcsys/handle"
)

// DefaultAlignment is the byte alignment applied to every cell offset.
const DefaultAlignment = 8

// Arena owns the backing buffer, free list, and indirection records for a
// single runtime instance.
type Arena struct {
	buffer  []byte
	free    *core.ChunkList
	records []*core.IndirectionRecord
	logger  zerolog.Logger
}

// SetLogger attaches a logger used to report arena growth. Growth is not
// an error, but it is host-visible enough to be worth a log line; the
// zero-value Arena logs nowhere until this is called.
func (a *Arena) SetLogger(l zerolog.Logger) { a.logger = l }

// New creates an arena with the given initial capacity, rounded up to a
// page boundary. A zero or negative capacity is rejected.
func New(initialCapacity int) (*Arena, error) {
	if initialCapacity <= 0 {
		return nil, fmt.Errorf("arena: initial capacity must be positive, got %d", initialCapacity)
	}
	cap := core.AlignPage(initialCapacity)
	buf := core.AlignedBytes(cap)

	a := &Arena{
		buffer: buf,
		free:   core.NewChunkList(),
		logger: zerolog.Nop(),
	}
	a.free.Add(core.Chunk{Start: 0, Len: uintptr(cap)})
	return a, nil
}

// Capacity returns the total size of the backing buffer.
func (a *Arena) Capacity() uintptr { return uintptr(len(a.buffer)) }

// BytesUsed returns the number of bytes currently committed to live
// allocations (capacity minus free space).
func (a *Arena) BytesUsed() uintptr {
	return a.Capacity() - a.free.TotalFree()
}

// RecordCount returns the number of indirection records ever allocated,
// including freed ones.
func (a *Arena) RecordCount() int { return len(a.records) }

func cellSize[T any](value T) uintptr {
	var size uintptr = core.ValueOffset + unsafe.Sizeof(value)
	return uintptr(core.AlignSize(int(size), DefaultAlignment))
}

// Allocate places value in the arena and returns an exclusive handle to
// it. Allocate is a free function rather than a method because Go methods
// cannot carry their own type parameters.
func Allocate[T any](a *Arena, value T) (handle.Mut[T], error) {
	size := cellSize(value)

	chunk, ok := a.free.BestFit(size)
	if !ok {
		if err := a.grow(size); err != nil {
			return handle.Mut[T]{}, err
		}
		chunk, ok = a.free.BestFit(size)
		if !ok {
			return handle.Mut[T]{}, fmt.Errorf("arena: no chunk of size %d available after growth", size)
		}
	}
	if remainder := chunk.Len - size; remainder > 0 {
		a.free.Add(core.Chunk{Start: chunk.Start + size, Len: remainder})
	}

	base := &a.buffer[chunk.Start]
	*(*T)(unsafe.Pointer(uintptr(unsafe.Pointer(base)) + core.ValueOffset)) = value

	rec := &core.IndirectionRecord{Offset: chunk.Start, Size: size, Type: reflect.TypeOf(value)}
	rec.Rebase(base)
	a.records = append(a.records, rec)

	return handle.NewMut[T](rec), nil
}

// Free releases the cell backing handle rec back to the free list.
// Freeing an already-freed record is an error.
func (a *Arena) Free(rec *core.IndirectionRecord) error {
	if rec.Freed.Load() {
		return fmt.Errorf("arena: double free at offset %d", rec.Offset)
	}
	rec.MarkFreed()
	a.free.Add(core.Chunk{Start: rec.Offset, Len: rec.Size})
	return nil
}

// grow doubles the backing buffer (or grows enough to satisfy need,
// whichever is larger), copies the existing contents across, and rebases
// every live indirection record's data pointer at its unchanged offset in
// the new buffer. The IndirectionRecord values themselves are never
// reallocated; only the slice of *IndirectionRecord pointers may be
// appended to elsewhere, which does not affect their addresses.
func (a *Arena) grow(need uintptr) error {
	oldCap := len(a.buffer)
	newCap := oldCap * 2
	if uintptr(newCap) < uintptr(oldCap)+need {
		newCap = oldCap + int(need)
	}
	newCap = core.AlignPage(newCap)

	a.logger.Debug().Int("old_capacity", oldCap).Int("new_capacity", newCap).Msg("arena growth")

	newBuf := core.AlignedBytes(newCap)
	copy(newBuf, a.buffer)

	for _, rec := range a.records {
		if rec.Freed.Load() {
			continue
		}
		rec.Rebase(&newBuf[rec.Offset])
	}

	a.free.Add(core.Chunk{Start: uintptr(oldCap), Len: uintptr(newCap - oldCap)})
	a.buffer = newBuf
	return nil
}
