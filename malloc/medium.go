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
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/cloudwego/blockalloc/internal/debug"
)

const (
	// MediumBlockSize is the size of one medium tier block.
	MediumBlockSize = 2048

	// mediumFootprint is the block plus its state byte in the block table.
	mediumFootprint = MediumBlockSize + 1
)

const (
	zeroScanLo = 0x0101010101010101
	zeroScanHi = 0x8080808080808080
)

// MediumBlockAllocator hands out whole 2048 byte blocks, one per allocation.
// The arena holds all blocks first, followed by the block table of one state
// byte per block.
type MediumBlockAllocator struct {
	blocks []byte
	table  []byte
	inUse  int
}

// NewMediumBlockAllocator creates a medium tier over arena.
// The block count is len(arena) / 2049; trailing bytes are unused.
// An empty arena gives a tier with no capacity.
func NewMediumBlockAllocator(arena []byte) (*MediumBlockAllocator, error) {
	n := len(arena) / mediumFootprint
	if len(arena) > 0 && n == 0 {
		return nil, fmt.Errorf("medium: arena of %d bytes holds no %d byte block: %w",
			len(arena), mediumFootprint, ErrArenaTooSmall)
	}
	dataEnd := n * MediumBlockSize
	a := &MediumBlockAllocator{
		blocks: arena[:dataEnd:dataEnd],
		table:  arena[dataEnd : dataEnd+n : dataEnd+n],
	}
	a.Reset()
	return a, nil
}

// Malloc allocates one block for a request of size bytes and returns its index.
// The whole block is granted regardless of size.
func (a *MediumBlockAllocator) Malloc(size int) (int, error) {
	if size <= 0 {
		return -1, ErrInvalidSize
	}
	if size > MediumBlockSize {
		return -1, ErrTooLarge
	}
	idx, ok := a.malloc(StateAllocated)
	if !ok {
		return -1, ErrOutOfMemory
	}
	return idx, nil
}

func (a *MediumBlockAllocator) malloc(flags State) (int, bool) {
	idx := a.findFree()
	if idx == -1 {
		return -1, false
	}
	a.table[idx] = byte(flags)
	a.inUse++
	return idx, true
}

// findFree returns the first free entry of the block table, or -1.
// Scans 8 entries per step: a word with a zero byte holds a free entry.
func (a *MediumBlockAllocator) findFree() int {
	t := a.table
	i := 0
	for ; i+8 <= len(t); i += 8 {
		w := binary.LittleEndian.Uint64(t[i:])
		// the lowest flagged byte is always a real zero byte
		if z := (w - zeroScanLo) &^ w & zeroScanHi; z != 0 {
			return i + bits.TrailingZeros64(z)>>3
		}
	}
	for ; i < len(t); i++ {
		if t[i] == byte(StateFree) {
			return i
		}
	}
	return -1
}

// Free releases the block at idx. Panics if idx is out of range.
func (a *MediumBlockAllocator) Free(idx int) {
	if idx < 0 || idx >= len(a.table) {
		panic("medium: block out of range")
	}
	debug.Assert(State(a.table[idx]).IsAllocated(), "medium: double free or invalid block")
	if a.table[idx] != byte(StateFree) {
		a.inUse--
	}
	a.table[idx] = byte(StateFree)
}

// FreeAt releases the block containing the byte at offset, relative to the
// start of the tier's arena.
func (a *MediumBlockAllocator) FreeAt(offset int) {
	if offset < 0 || offset >= len(a.blocks) {
		panic("medium: offset out of range")
	}
	a.Free(offset / MediumBlockSize)
}

// IsValidOffset reports whether offset falls inside some block.
func (a *MediumBlockAllocator) IsValidOffset(offset int) bool {
	return offset >= 0 && offset < len(a.blocks)
}

// Bytes returns the 2048 byte block at idx.
func (a *MediumBlockAllocator) Bytes(idx int) []byte {
	if idx < 0 || idx >= len(a.table) {
		panic("medium: block out of range")
	}
	off := idx * MediumBlockSize
	return a.blocks[off : off+MediumBlockSize : off+MediumBlockSize]
}

// State returns the state flags of the block at idx.
func (a *MediumBlockAllocator) State(idx int) State {
	if idx < 0 || idx >= len(a.table) {
		panic("medium: block out of range")
	}
	return State(a.table[idx])
}

// Cap returns the number of blocks.
func (a *MediumBlockAllocator) Cap() int { return len(a.table) }

// InUse returns the number of allocated blocks.
func (a *MediumBlockAllocator) InUse() int { return a.inUse }

// Available returns the total free bytes available for allocation.
func (a *MediumBlockAllocator) Available() int {
	return (len(a.table) - a.inUse) * MediumBlockSize
}

// Reset clears all allocations and returns the allocator to its initial state.
func (a *MediumBlockAllocator) Reset() {
	clear(a.table)
	a.inUse = 0
}
