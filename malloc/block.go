/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package malloc

import (
	"fmt"
	"unsafe"

	"github.com/JohnCGriffin/overflow"
	"github.com/bytedance/gopkg/util/logger"
	"github.com/dustin/go-humanize"
)

const (
	// SmallMaxSize is the largest request served by the small tier.
	SmallMaxSize = SmallSlotSize

	// MediumMaxSize is the largest request served by the medium tier.
	MediumMaxSize = MediumBlockSize

	// MaxAlign is the largest alignment a BlockAllocator serves.
	MaxAlign = 4096
)

// Desc configures a BlockAllocator.
type Desc struct {
	// SmallBytes, MediumBytes and LargeBytes are the sizes of the three
	// sub-pools carved from the start of the arena, in that order.
	SmallBytes  int
	MediumBytes int
	LargeBytes  int

	// GranuleSize is the large tier unit. DefaultGranuleSize if zero.
	GranuleSize int

	// PoolSize is set by NewBlockAllocator to the bytes consumed from the arena.
	PoolSize int
}

// DefaultDesc returns the pool sizes used for engine block memory.
func DefaultDesc() *Desc {
	return &Desc{
		SmallBytes:  64 << 20,
		MediumBytes: 64 << 20,
		LargeBytes:  512 << 20,
		GranuleSize: DefaultGranuleSize,
	}
}

// BlockAllocator composes the small, medium and large tiers over one arena.
//
// Malloc routes by size: small for up to 64 bytes, medium for up to 2048,
// large otherwise, falling through to the next tier when one is exhausted.
// Free routes by the tier tag of the handle; Release routes a slice by which
// tier's address range contains it.
//
// A BlockAllocator is not safe for concurrent use. Use one per goroutine or
// serialise access.
type BlockAllocator struct {
	arena      []byte
	arenaStart unsafe.Pointer

	// cumulative end offsets of the three sub-ranges
	smallEnd  int
	mediumEnd int
	largeEnd  int

	small  *SmallBlockAllocator
	medium *MediumBlockAllocator
	large  *LargeBlockAllocator
}

// NewBlockAllocator partitions arena into the sub-pools described by desc
// and initialises every tier over its own range. desc.PoolSize is set to the
// total size consumed.
func NewBlockAllocator(arena []byte, desc *Desc) (*BlockAllocator, error) {
	if desc.SmallBytes < 0 || desc.MediumBytes < 0 || desc.LargeBytes < 0 {
		return nil, fmt.Errorf("pool sizes must be >= 0, got %d/%d/%d: %w",
			desc.SmallBytes, desc.MediumBytes, desc.LargeBytes, ErrInvalidSize)
	}
	pool, ok := overflow.Add(desc.SmallBytes, desc.MediumBytes)
	if ok {
		pool, ok = overflow.Add(pool, desc.LargeBytes)
	}
	if !ok {
		return nil, fmt.Errorf("pool sizes %d/%d/%d overflow: %w",
			desc.SmallBytes, desc.MediumBytes, desc.LargeBytes, ErrInvalidSize)
	}
	if pool == 0 {
		return nil, fmt.Errorf("empty pool: %w", ErrInvalidSize)
	}
	if len(arena) < pool {
		return nil, fmt.Errorf("arena of %d bytes, pools need %d: %w", len(arena), pool, ErrArenaTooSmall)
	}
	granule := desc.GranuleSize
	if granule == 0 {
		granule = DefaultGranuleSize
	}
	if granule < MaxAlign {
		return nil, fmt.Errorf("granule size must be >= %d, got %d: %w", MaxAlign, granule, ErrInvalidSize)
	}

	a := &BlockAllocator{
		arena:      arena[:pool:pool],
		arenaStart: unsafe.Pointer(&arena[0]),
		smallEnd:   desc.SmallBytes,
		mediumEnd:  desc.SmallBytes + desc.MediumBytes,
		largeEnd:   pool,
	}
	var err error
	if a.small, err = NewSmallBlockAllocator(a.arena[:a.smallEnd]); err != nil {
		return nil, err
	}
	if a.medium, err = NewMediumBlockAllocator(a.arena[a.smallEnd:a.mediumEnd]); err != nil {
		return nil, err
	}
	if a.large, err = NewLargeBlockAllocator(a.arena[a.mediumEnd:a.largeEnd], granule); err != nil {
		return nil, err
	}
	desc.PoolSize = pool

	logger.Debugf("malloc: block allocator pool=%s small=[0,%d) %d slots, medium=[%d,%d) %d blocks, large=[%d,%d) %d granules",
		humanize.IBytes(uint64(pool)), a.smallEnd, a.small.Cap(),
		a.smallEnd, a.mediumEnd, a.medium.Cap(),
		a.mediumEnd, a.largeEnd, a.large.Cap())
	return a, nil
}

// Malloc allocates at least size bytes and returns the handle of the
// allocation. It returns an error wrapping ErrOutOfMemory when no tier able
// to serve the request has room left.
func (a *BlockAllocator) Malloc(size int) (Handle, error) {
	if size <= 0 {
		return 0, ErrInvalidSize
	}
	return a.malloc(size, StateAllocated)
}

func (a *BlockAllocator) malloc(size int, flags State) (Handle, error) {
	if size <= SmallMaxSize {
		if idx, ok := a.small.malloc(flags); ok {
			return makeHandle(TierSmall, idx), nil
		}
	}
	if size <= MediumMaxSize {
		if idx, ok := a.medium.malloc(flags); ok {
			return makeHandle(TierMedium, idx), nil
		}
	}
	if idx, ok := a.large.malloc(size, flags); ok {
		return makeHandle(TierLarge, idx), nil
	}
	logger.Warnf("malloc: block allocator exhausted: request of %d bytes, largest free run %s",
		size, humanize.IBytes(uint64(a.large.LargestFreeRun()*a.large.granule)))
	return 0, fmt.Errorf("%w: request of %d bytes", ErrOutOfMemory, size)
}

// Free releases the allocation referenced by h.
// Panics if h does not reference a unit of this allocator.
func (a *BlockAllocator) Free(h Handle) {
	switch h.Tier() {
	case TierSmall:
		a.small.Free(h.Index())
	case TierMedium:
		a.medium.Free(h.Index())
	case TierLarge:
		a.large.Free(h.Index())
	default:
		panic("malloc: invalid handle")
	}
}

// Bytes returns the whole unit referenced by h: a 64 byte slot, a 2048 byte
// block or a run of granules.
func (a *BlockAllocator) Bytes(h Handle) []byte {
	switch h.Tier() {
	case TierSmall:
		return a.small.Bytes(h.Index())
	case TierMedium:
		return a.medium.Bytes(h.Index())
	case TierLarge:
		return a.large.Bytes(h.Index())
	}
	panic("malloc: invalid handle")
}

// State returns the state flags of the unit referenced by h.
func (a *BlockAllocator) State(h Handle) State {
	switch h.Tier() {
	case TierSmall:
		return a.small.State(h.Index())
	case TierMedium:
		return a.medium.State(h.Index())
	case TierLarge:
		return a.large.State(h.Index())
	}
	panic("malloc: invalid handle")
}

// Alloc allocates size bytes and returns them as a slice whose capacity
// extends to the end of the owning unit. It returns nil if size <= 0 or
// the allocator is exhausted.
func (a *BlockAllocator) Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	h, err := a.malloc(size, StateAllocated)
	if err != nil {
		return nil
	}
	return a.Bytes(h)[:size]
}

// AllocAligned allocates size bytes starting at an address that is a
// multiple of align and returns nil if no tier can serve the request.
// Panics if align is not a power of two.
func (a *BlockAllocator) AllocAligned(size, align int) []byte {
	if align <= 0 || align&(align-1) != 0 {
		panic("malloc: alignment must be a power of two")
	}
	b, _, err := a.MallocAligned(size, align)
	if err != nil {
		return nil
	}
	return b
}

// MallocAligned allocates size bytes starting at an address that is a
// multiple of align and returns them with the handle of the owning unit,
// which is flagged StateAligned. align must be a power of two no larger
// than MaxAlign.
func (a *BlockAllocator) MallocAligned(size, align int) ([]byte, Handle, error) {
	if size <= 0 {
		return nil, 0, ErrInvalidSize
	}
	if align <= 0 || align&(align-1) != 0 || align > MaxAlign {
		return nil, 0, fmt.Errorf("%w: got %d", ErrInvalidAlign, align)
	}
	total, ok := overflow.Add(size, align)
	if !ok {
		return nil, 0, fmt.Errorf("%w: request of %d bytes", ErrTooLarge, size)
	}
	h, err := a.malloc(total, StateAllocated|StateAligned)
	if err != nil {
		return nil, 0, err
	}
	unit := a.Bytes(h)
	pad := 0
	if m := int(uintptr(unsafe.Pointer(&unit[0])) & uintptr(align-1)); m != 0 {
		pad = align - m
	}
	return unit[pad : pad+size], h, nil
}

// Release returns the memory of b, a slice obtained from Alloc,
// AllocAligned or MallocAligned, to the tier whose address range contains it.
// Panics if b does not point into the arena.
//
// Do not reslice past the owning unit before calling Release: the unit is
// resolved from the slice's data pointer.
func (a *BlockAllocator) Release(b []byte) {
	if cap(b) == 0 {
		return
	}
	off, ok := a.offsetOf(b)
	if !ok {
		panic("malloc: block not in arena")
	}
	switch {
	case a.inSmallRange(off):
		a.small.FreeAt(off)
	case a.inMediumRange(off):
		a.medium.FreeAt(off - a.smallEnd)
	case a.inLargeRange(off):
		a.large.FreeAt(off - a.mediumEnd)
	}
}

// HandleOf returns the handle of the unit containing the data of b.
// It reports false if b does not point at the data of a unit of this arena.
func (a *BlockAllocator) HandleOf(b []byte) (Handle, bool) {
	if cap(b) == 0 {
		return 0, false
	}
	off, ok := a.offsetOf(b)
	if !ok {
		return 0, false
	}
	switch {
	case a.inSmallRange(off):
		if !a.small.IsValidOffset(off) {
			return 0, false
		}
		return makeHandle(TierSmall, off/SmallBlockFootprint*SmallSlotsPerBlock+off%SmallBlockFootprint/SmallSlotSize), true
	case a.inMediumRange(off):
		off -= a.smallEnd
		if !a.medium.IsValidOffset(off) {
			return 0, false
		}
		return makeHandle(TierMedium, off/MediumBlockSize), true
	default:
		off -= a.mediumEnd
		if !a.large.IsValidOffset(off) {
			return 0, false
		}
		return makeHandle(TierLarge, off/a.large.granule), true
	}
}

// Owner returns the tier whose address range contains b.
func (a *BlockAllocator) Owner(b []byte) (Tier, bool) {
	if cap(b) == 0 {
		return TierNone, false
	}
	off, ok := a.offsetOf(b)
	switch {
	case !ok:
		return TierNone, false
	case a.inSmallRange(off):
		return TierSmall, true
	case a.inMediumRange(off):
		return TierMedium, true
	}
	return TierLarge, true
}

func (a *BlockAllocator) offsetOf(b []byte) (int, bool) {
	p := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	base := uintptr(a.arenaStart)
	if p < base || p >= base+uintptr(a.largeEnd) {
		return 0, false
	}
	return int(p - base), true
}

func (a *BlockAllocator) inSmallRange(off int) bool {
	return off >= 0 && off < a.smallEnd
}

func (a *BlockAllocator) inMediumRange(off int) bool {
	return off >= a.smallEnd && off < a.mediumEnd
}

func (a *BlockAllocator) inLargeRange(off int) bool {
	return off >= a.mediumEnd && off < a.largeEnd
}

// PoolSize returns the bytes of the arena managed by a.
func (a *BlockAllocator) PoolSize() int { return a.largeEnd }

// Small returns the small tier.
func (a *BlockAllocator) Small() *SmallBlockAllocator { return a.small }

// Medium returns the medium tier.
func (a *BlockAllocator) Medium() *MediumBlockAllocator { return a.medium }

// Large returns the large tier.
func (a *BlockAllocator) Large() *LargeBlockAllocator { return a.large }

// Available returns the total free bytes over all tiers.
func (a *BlockAllocator) Available() int {
	return a.small.Available() + a.medium.Available() + a.large.Available()
}

// Reset clears all allocations of every tier.
func (a *BlockAllocator) Reset() {
	a.small.Reset()
	a.medium.Reset()
	a.large.Reset()
}
