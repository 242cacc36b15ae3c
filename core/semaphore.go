package core

import (
	"runtime"
	"sync/atomic"
)

// MaxThreads is the number of distinct thread identifiers the semaphore word
// can track. Thread 0 is reserved for the runner; threads 1..MaxThreads-1
// are available to workers.
const MaxThreads = 15

const (
	writerActiveBit uint32 = 1 << 31
	pendingShift           = 16
	pendingMask     uint32 = ((1 << MaxThreads) - 1) << pendingShift
	readerMask      uint32 = (1 << MaxThreads) - 1
)

// Semaphore is the non-blocking 32-bit reader/writer access word embedded at
// the head of every boxed cell. Bit 31 marks an active writer, bits 16-30
// record pending writers by thread id, and bits 0-14 record active readers
// by thread id. All transitions are a single sequentially-consistent
// read-modify-write on the word; there is no blocking primitive underneath.
type Semaphore struct {
	word atomic.Uint32
}

func pendingBit(thread int) uint32 { return 1 << (pendingShift + thread) }
func readerBit(thread int) uint32  { return 1 << thread }

// higherPending reports whether any thread numbered above `thread` has its
// pending-writer bit set in word. Ties are broken in favor of the
// higher-numbered pending writer, so a lower-numbered writer backs off.
func higherPending(word uint32, thread int) bool {
	mask := pendingMask &^ ((uint32(1) << (pendingShift + thread + 1)) - 1)
	return word&mask != 0
}

// casOr atomically ORs bits into word and returns the value the word held
// immediately before the update.
func casOr(word *atomic.Uint32, bits uint32) uint32 {
	for {
		old := word.Load()
		if word.CompareAndSwap(old, old|bits) {
			return old
		}
	}
}

// casXor atomically XORs bits into word and returns the value the word held
// immediately before the update.
func casXor(word *atomic.Uint32, bits uint32) uint32 {
	for {
		old := word.Load()
		if word.CompareAndSwap(old, old^bits) {
			return old
		}
	}
}

// AcquireReader blocks (via cooperative spin) until thread holds a read
// lease on the cell. Multiple threads may hold a read lease concurrently;
// a set writer-active bit excludes new readers. A writer whose only mark
// on the word is its pending bit does not hold readers off.
func (s *Semaphore) AcquireReader(thread int) {
	bit := readerBit(thread)
	for {
		prev := casOr(&s.word, bit)
		if prev&writerActiveBit == 0 {
			return
		}
		casXor(&s.word, bit)
		runtime.Gosched()
	}
}

// ReleaseReader drops thread's read lease.
func (s *Semaphore) ReleaseReader(thread int) {
	casXor(&s.word, readerBit(thread))
}

// AcquireWriter blocks until thread holds the exclusive write lease.
// A writer announces itself by setting its pending bit and immediately
// attempting the writer-active bit; it backs off (keeping the pending bit
// set) whenever another writer already holds the writer-active bit, a
// reader is active, or a higher-numbered thread is also pending, and
// retries.
func (s *Semaphore) AcquireWriter(thread int) {
	pending := pendingBit(thread)
	for {
		prev := casOr(&s.word, pending|writerActiveBit)
		if prev&writerActiveBit != 0 {
			// The bit belongs to another writer; leave it set.
			runtime.Gosched()
			continue
		}
		if !higherPending(prev, thread) && prev&readerMask == 0 {
			return
		}
		casXor(&s.word, writerActiveBit)
		runtime.Gosched()
	}
}

// ReleaseWriter drops thread's exclusive write lease and its pending
// announcement in a single atomic step.
func (s *Semaphore) ReleaseWriter(thread int) {
	casXor(&s.word, pendingBit(thread)|writerActiveBit)
}

// Downgrade converts thread's write lease into a read lease without an
// intervening release/acquire window: the pending bit, the writer-active
// bit, and the reader bit for thread all flip in one atomic XOR.
func (s *Semaphore) Downgrade(thread int) {
	casXor(&s.word, pendingBit(thread)|writerActiveBit|readerBit(thread))
}

// Idle reports whether no thread holds or awaits a lease. Intended for
// diagnostics and tests, not for synchronization decisions.
func (s *Semaphore) Idle() bool {
	return s.word.Load() == 0
}
