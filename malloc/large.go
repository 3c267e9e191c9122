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
	"math"

	"github.com/cloudwego/blockalloc/internal/debug"
)

const (
	// DefaultGranuleSize is the default large tier unit (1MB).
	DefaultGranuleSize = 1 << 20

	// MaxGranules is the largest granule count a large tier can manage.
	// Run lengths are 16 bit.
	MaxGranules = math.MaxUint16
)

// runEntry is one slot of the large tier block table.
//
// It is either a run header (head == true) carrying the state and length of
// the run starting at its index, or a continuation slot inside a run.
// The last slot of a multi-granule run records the index of its header in
// owner so the run preceding any index is found in O(1).
type runEntry struct {
	head   bool
	state  State
	length uint16
	owner  uint16
}

// Run describes one run of the large tier block table.
type Run struct {
	Index  int   `json:"index"`
	Length int   `json:"length"`
	State  State `json:"state"`
}

// LargeBlockAllocator grants contiguous runs of fixed size granules.
//
// The block table is a run-length encoded partition of [0, n): every run has
// exactly one header at its first index. Malloc walks headers only (first
// fit) and splits the run it takes; Free merges the released run with free
// neighbours on both sides, so two free runs are never adjacent.
type LargeBlockAllocator struct {
	arena   []byte
	granule int
	table   []runEntry
	inUse   int // granules
}

// NewLargeBlockAllocator creates a large tier over arena with the given
// granule size. The granule count is len(arena) / granule and must not
// exceed MaxGranules. An empty arena gives a tier with no capacity.
func NewLargeBlockAllocator(arena []byte, granule int) (*LargeBlockAllocator, error) {
	if granule <= 0 {
		return nil, fmt.Errorf("large: granule size must be > 0, got %d: %w", granule, ErrInvalidSize)
	}
	n := len(arena) / granule
	if len(arena) > 0 && n == 0 {
		return nil, fmt.Errorf("large: arena of %d bytes holds no %d byte granule: %w",
			len(arena), granule, ErrArenaTooSmall)
	}
	if n > MaxGranules {
		return nil, fmt.Errorf("large: %d granules of %d bytes, max %d: %w",
			n, granule, MaxGranules, ErrTooManyGranules)
	}
	sz := n * granule
	a := &LargeBlockAllocator{
		arena:   arena[:sz:sz],
		granule: granule,
		table:   make([]runEntry, n),
	}
	a.Reset()
	return a, nil
}

// Malloc allocates a run of ceil(size / granule) granules and returns the
// index of its first granule. It returns ErrOutOfMemory when no free run is
// large enough.
func (a *LargeBlockAllocator) Malloc(size int) (int, error) {
	if size <= 0 {
		return -1, ErrInvalidSize
	}
	idx, ok := a.malloc(size, StateAllocated)
	if !ok {
		return -1, ErrOutOfMemory
	}
	return idx, nil
}

func (a *LargeBlockAllocator) malloc(size int, flags State) (int, bool) {
	if size > len(a.arena) {
		return -1, false
	}
	need := (size + a.granule - 1) / a.granule
	for i := 0; i < len(a.table); i += int(a.table[i].length) {
		e := a.table[i]
		debug.Assert(e.head && e.length > 0, "large: corrupted block table")
		if e.state != StateFree || int(e.length) < need {
			continue
		}
		if int(e.length) > need {
			a.setRun(i+need, int(e.length)-need, StateFree)
		}
		a.setRun(i, need, flags)
		a.inUse += need
		return i, true
	}
	return -1, false
}

// Free releases the run whose header is at idx.
// Panics if idx is out of range or not a run header.
func (a *LargeBlockAllocator) Free(idx int) {
	if idx < 0 || idx >= len(a.table) {
		panic("large: granule out of range")
	}
	e := &a.table[idx]
	if !e.head {
		panic("large: granule is not a run header")
	}
	debug.Assert(e.state.IsAllocated(), "large: double free or invalid run")
	if e.state.IsAllocated() {
		a.inUse -= int(e.length)
	}
	e.state = StateFree

	a.collapse(idx)
	if idx > 0 {
		if prev := a.headOf(idx - 1); a.table[prev].state == StateFree {
			a.merge(prev, idx)
		}
	}
}

// FreeAt releases the run starting in the granule containing offset,
// relative to the start of the tier's arena.
func (a *LargeBlockAllocator) FreeAt(offset int) {
	if offset < 0 || offset >= len(a.arena) {
		panic("large: offset out of range")
	}
	a.Free(offset / a.granule)
}

// IsValidOffset reports whether offset falls in the first granule of a run.
// It does not check the allocation state.
func (a *LargeBlockAllocator) IsValidOffset(offset int) bool {
	if offset < 0 || offset >= len(a.arena) {
		return false
	}
	return a.table[offset/a.granule].head
}

// collapse merges the free run at idx with the free runs following it.
func (a *LargeBlockAllocator) collapse(idx int) {
	for {
		next := idx + int(a.table[idx].length)
		if next >= len(a.table) {
			return
		}
		if e := a.table[next]; !e.head || e.state != StateFree {
			return
		}
		a.merge(idx, next)
	}
}

// merge absorbs the run at q into the run at p, which must precede it directly.
func (a *LargeBlockAllocator) merge(p, q int) {
	n := int(a.table[p].length) + int(a.table[q].length)
	a.table[q] = runEntry{}
	a.setRun(p, n, a.table[p].state)
}

// setRun writes the header of a run and the boundary tag on its last slot.
func (a *LargeBlockAllocator) setRun(head, length int, state State) {
	a.table[head] = runEntry{head: true, state: state, length: uint16(length)}
	if length > 1 {
		a.table[head+length-1] = runEntry{owner: uint16(head)}
	}
}

// headOf returns the header index of the run whose last slot is at idx.
func (a *LargeBlockAllocator) headOf(idx int) int {
	if a.table[idx].head {
		return idx
	}
	return int(a.table[idx].owner)
}

// Bytes returns the memory of the run whose header is at idx.
func (a *LargeBlockAllocator) Bytes(idx int) []byte {
	n := a.RunLength(idx)
	off := idx * a.granule
	end := off + n*a.granule
	return a.arena[off:end:end]
}

// RunLength returns the length in granules of the run whose header is at idx.
func (a *LargeBlockAllocator) RunLength(idx int) int {
	if idx < 0 || idx >= len(a.table) || !a.table[idx].head {
		panic("large: granule is not a run header")
	}
	return int(a.table[idx].length)
}

// State returns the state flags of the run whose header is at idx.
func (a *LargeBlockAllocator) State(idx int) State {
	if idx < 0 || idx >= len(a.table) || !a.table[idx].head {
		panic("large: granule is not a run header")
	}
	return a.table[idx].state
}

// Runs returns a snapshot of every run in index order.
func (a *LargeBlockAllocator) Runs() []Run {
	var runs []Run
	for i := 0; i < len(a.table); i += int(a.table[i].length) {
		e := a.table[i]
		runs = append(runs, Run{Index: i, Length: int(e.length), State: e.state})
	}
	return runs
}

// LargestFreeRun returns the length in granules of the largest free run.
func (a *LargeBlockAllocator) LargestFreeRun() int {
	largest := 0
	for i := 0; i < len(a.table); i += int(a.table[i].length) {
		if e := a.table[i]; e.state == StateFree && int(e.length) > largest {
			largest = int(e.length)
		}
	}
	return largest
}

// Check validates the block table: runs partition [0, n), every slot inside
// a run is a continuation, boundary tags point at their header, no two free
// runs are adjacent and the allocated granule count matches InUse.
func (a *LargeBlockAllocator) Check() error {
	allocated := 0
	prevFree := false
	for i := 0; i < len(a.table); {
		e := a.table[i]
		if !e.head {
			return fmt.Errorf("large: slot %d: expected run header", i)
		}
		n := int(e.length)
		if n == 0 || i+n > len(a.table) {
			return fmt.Errorf("large: run %d: bad length %d", i, n)
		}
		for j := i + 1; j < i+n; j++ {
			if a.table[j].head {
				return fmt.Errorf("large: run %d: slot %d is a header inside the run", i, j)
			}
		}
		if n > 1 && int(a.table[i+n-1].owner) != i {
			return fmt.Errorf("large: run %d: boundary tag points at %d", i, a.table[i+n-1].owner)
		}
		free := e.state == StateFree
		if free && prevFree {
			return fmt.Errorf("large: run %d: adjacent free runs not coalesced", i)
		}
		if !free {
			allocated += n
		}
		prevFree = free
		i += n
	}
	if allocated != a.inUse {
		return fmt.Errorf("large: %d granules allocated, accounted %d", allocated, a.inUse)
	}
	return nil
}

// Granule returns the granule size in bytes.
func (a *LargeBlockAllocator) Granule() int { return a.granule }

// Cap returns the number of granules.
func (a *LargeBlockAllocator) Cap() int { return len(a.table) }

// InUse returns the number of allocated granules.
func (a *LargeBlockAllocator) InUse() int { return a.inUse }

// Available returns the total free bytes, not necessarily contiguous.
func (a *LargeBlockAllocator) Available() int {
	return (len(a.table) - a.inUse) * a.granule
}

// Reset clears all allocations and returns the allocator to its initial state.
func (a *LargeBlockAllocator) Reset() {
	clear(a.table)
	a.inUse = 0
	if len(a.table) > 0 {
		a.setRun(0, len(a.table), StateFree)
	}
}
