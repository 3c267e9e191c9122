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

	"github.com/cloudwego/blockalloc/internal/debug"
)

const (
	// SmallSlotSize is the size of one small tier slot.
	SmallSlotSize = 64

	// SmallSlotsPerBlock is the number of slots grouped in one block.
	SmallSlotsPerBlock = 7

	// SmallBlockFootprint is the arena bytes used by one block:
	// 7 slots, 7 state bytes and the full flag, padded to 8 cache lines.
	SmallBlockFootprint = 512

	smallStateOffset = SmallSlotSize * SmallSlotsPerBlock
)

// SmallBlockAllocator hands out fixed 64 byte slots.
//
// The state bytes and the "block full" flag of each block are stored in the
// arena right after the block's slots, so the tier carries no metadata
// outside the arena. A block is flagged full the first time a scan finds no
// free slot in it and skipped by later scans until one of its slots is freed.
type SmallBlockAllocator struct {
	arena     []byte
	numBlocks int
	inUse     int
}

// NewSmallBlockAllocator creates a small tier over arena.
// The block count is len(arena) / SmallBlockFootprint; trailing bytes are unused.
// An empty arena gives a tier with no capacity.
func NewSmallBlockAllocator(arena []byte) (*SmallBlockAllocator, error) {
	n := len(arena) / SmallBlockFootprint
	if len(arena) > 0 && n == 0 {
		return nil, fmt.Errorf("small: arena of %d bytes holds no %d byte block: %w",
			len(arena), SmallBlockFootprint, ErrArenaTooSmall)
	}
	sz := n * SmallBlockFootprint
	a := &SmallBlockAllocator{
		arena:     arena[:sz:sz],
		numBlocks: n,
	}
	a.Reset()
	return a, nil
}

// Malloc allocates one slot for a request of size bytes and returns its index.
// It returns ErrOutOfMemory when every slot is taken.
func (a *SmallBlockAllocator) Malloc(size int) (int, error) {
	if size <= 0 {
		return -1, ErrInvalidSize
	}
	if size > SmallSlotSize {
		return -1, ErrTooLarge
	}
	idx, ok := a.malloc(StateAllocated)
	if !ok {
		return -1, ErrOutOfMemory
	}
	return idx, nil
}

func (a *SmallBlockAllocator) malloc(flags State) (int, bool) {
	for b := 0; b < a.numBlocks; b++ {
		meta := a.meta(b)
		if meta[SmallSlotsPerBlock] != 0 {
			continue
		}
		for s := 0; s < SmallSlotsPerBlock; s++ {
			if State(meta[s]) == StateFree {
				meta[s] = byte(flags)
				a.inUse++
				return b*SmallSlotsPerBlock + s, true
			}
		}
		meta[SmallSlotsPerBlock] = 1
	}
	return -1, false
}

// Free releases the slot at idx.
// Panics if idx is out of range. Freeing a free slot is only detected when
// built with the assert tag.
func (a *SmallBlockAllocator) Free(idx int) {
	if idx < 0 || idx >= a.numBlocks*SmallSlotsPerBlock {
		panic("small: slot out of range")
	}
	a.free(idx/SmallSlotsPerBlock, idx%SmallSlotsPerBlock)
}

// FreeAt releases the slot containing the byte at offset, relative to the
// start of the tier's arena. Interior offsets resolve to their slot.
func (a *SmallBlockAllocator) FreeAt(offset int) {
	if offset < 0 || offset >= len(a.arena) {
		panic("small: offset out of range")
	}
	slot := offset % SmallBlockFootprint / SmallSlotSize
	if slot >= SmallSlotsPerBlock {
		panic("small: offset in block metadata")
	}
	a.free(offset/SmallBlockFootprint, slot)
}

func (a *SmallBlockAllocator) free(block, slot int) {
	meta := a.meta(block)
	debug.Assert(State(meta[slot]).IsAllocated(), "small: double free or invalid slot")
	if meta[slot] != byte(StateFree) {
		a.inUse--
	}
	meta[slot] = byte(StateFree)
	// cleared even if the block was not full
	meta[SmallSlotsPerBlock] = 0
}

// IsValidOffset reports whether offset falls inside the data of some slot.
// It does not check the allocation state.
func (a *SmallBlockAllocator) IsValidOffset(offset int) bool {
	if offset < 0 || offset >= len(a.arena) {
		return false
	}
	return offset%SmallBlockFootprint < smallStateOffset
}

// Bytes returns the 64 byte slot at idx.
func (a *SmallBlockAllocator) Bytes(idx int) []byte {
	off := a.offset(idx)
	return a.arena[off : off+SmallSlotSize : off+SmallSlotSize]
}

// State returns the state flags of the slot at idx.
func (a *SmallBlockAllocator) State(idx int) State {
	if idx < 0 || idx >= a.numBlocks*SmallSlotsPerBlock {
		panic("small: slot out of range")
	}
	return State(a.meta(idx / SmallSlotsPerBlock)[idx%SmallSlotsPerBlock])
}

// BlockFull reports whether block is currently flagged full.
func (a *SmallBlockAllocator) BlockFull(block int) bool {
	return a.meta(block)[SmallSlotsPerBlock] != 0
}

// NumBlocks returns the number of blocks.
func (a *SmallBlockAllocator) NumBlocks() int { return a.numBlocks }

// Cap returns the number of slots.
func (a *SmallBlockAllocator) Cap() int { return a.numBlocks * SmallSlotsPerBlock }

// InUse returns the number of allocated slots.
func (a *SmallBlockAllocator) InUse() int { return a.inUse }

// Available returns the total free bytes available for allocation.
func (a *SmallBlockAllocator) Available() int {
	return (a.Cap() - a.inUse) * SmallSlotSize
}

// Reset clears all allocations and returns the allocator to its initial state.
func (a *SmallBlockAllocator) Reset() {
	for b := 0; b < a.numBlocks; b++ {
		clear(a.meta(b)[:SmallSlotsPerBlock+1])
	}
	a.inUse = 0
}

func (a *SmallBlockAllocator) offset(idx int) int {
	if idx < 0 || idx >= a.numBlocks*SmallSlotsPerBlock {
		panic("small: slot out of range")
	}
	return idx/SmallSlotsPerBlock*SmallBlockFootprint + idx%SmallSlotsPerBlock*SmallSlotSize
}

// meta returns the state bytes of block followed by its full flag.
func (a *SmallBlockAllocator) meta(block int) []byte {
	off := block*SmallBlockFootprint + smallStateOffset
	return a.arena[off : off+SmallSlotsPerBlock+1 : off+SmallSlotsPerBlock+1]
}
