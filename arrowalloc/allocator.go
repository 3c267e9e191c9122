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

// Package arrowalloc exposes a malloc.Allocator as an Apache Arrow
// memory.Allocator so Arrow buffers and builders can be carved from a
// block allocator's arena, or from a stack allocator released in bulk.
package arrowalloc

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/cloudwego/blockalloc/malloc"
)

// alignment of every buffer, matching memory.GoAllocator.
const alignment = 64

var _ memory.Allocator = (*Allocator)(nil)

// unitAllocator is implemented by allocators that hand out whole units and
// can resolve a slice to its unit, which allows growing buffers in place.
type unitAllocator interface {
	HandleOf(b []byte) (malloc.Handle, bool)
	Bytes(h malloc.Handle) []byte
}

type statser interface {
	Stats() malloc.Stats
}

// Allocator adapts a malloc.Allocator to memory.Allocator.
// It is safe for concurrent use; calls are serialised with a mutex.
//
// memory.Allocator has no error return, so Allocate and Reallocate panic
// when the underlying allocator is exhausted.
type Allocator struct {
	mu    sync.Mutex
	mem   malloc.Allocator
	units unitAllocator
}

// New creates an Allocator over mem. mem must not be used directly while
// the Allocator is in use.
func New(mem malloc.Allocator) *Allocator {
	a := &Allocator{mem: mem}
	a.units, _ = mem.(unitAllocator)
	return a
}

// Allocate returns size zeroed bytes aligned to 64 bytes.
func (a *Allocator) Allocate(size int) []byte {
	if size == 0 {
		return []byte{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocate(size)
}

func (a *Allocator) allocate(size int) []byte {
	var b []byte
	if a.units != nil {
		// units are usually 64 byte aligned already; padding a request by
		// the alignment would push every small buffer into the next tier
		if b = a.mem.Alloc(size); b != nil && !aligned(b) {
			a.mem.Release(b)
			b = nil
		}
	}
	if b == nil {
		b = a.mem.AllocAligned(size, alignment)
	}
	if b == nil {
		panic(fmt.Sprintf("arrowalloc: out of memory allocating %d bytes", size))
	}
	clear(b)
	return b[:size:size]
}

func aligned(b []byte) bool {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))%alignment == 0
}

// Reallocate resizes b to size bytes. It grows in place when the unit
// owning b has room, otherwise it moves the data to a new allocation.
func (a *Allocator) Reallocate(size int, b []byte) []byte {
	if size == len(b) {
		return b
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if cap(b) == 0 {
		if size == 0 {
			return b
		}
		return a.allocate(size)
	}
	if size == 0 {
		a.mem.Release(b)
		return []byte{}
	}

	if a.units != nil {
		h, ok := a.units.HandleOf(b)
		if !ok {
			panic("arrowalloc: reallocate of a buffer not owned by this allocator")
		}
		unit := a.units.Bytes(h)
		pad := int(uintptr(unsafe.Pointer(unsafe.SliceData(b))) - uintptr(unsafe.Pointer(unsafe.SliceData(unit))))
		if pad+size <= len(unit) {
			out := unit[pad : pad+size : pad+size]
			if size > len(b) {
				clear(out[len(b):])
			}
			return out
		}
	} else if size < len(b) {
		return b[:size:size]
	}

	out := a.allocate(size)
	copy(out, b)
	a.mem.Release(b)
	return out
}

// Free releases b.
func (a *Allocator) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	a.mu.Lock()
	a.mem.Release(b)
	a.mu.Unlock()
}

// Reset releases every buffer at once. Buffers still referenced by Arrow
// arrays must not be used afterwards.
func (a *Allocator) Reset() {
	a.mu.Lock()
	a.mem.Reset()
	a.mu.Unlock()
}

// Stats returns the counters of the underlying allocator, if it keeps any.
func (a *Allocator) Stats() (malloc.Stats, bool) {
	s, ok := a.mem.(statser)
	if !ok {
		return malloc.Stats{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return s.Stats(), true
}
