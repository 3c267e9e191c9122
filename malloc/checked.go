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
	"runtime"
)

// CheckedAllocator wraps a BlockAllocator and validates every free against
// the set of live allocations, panicking on double frees and foreign
// handles. It also records the caller of every allocation so leaks can be
// reported with their origin.
//
// It trades the zero-overhead hot path for validation and is meant for
// tests and debugging sessions.
type CheckedAllocator struct {
	mem  *BlockAllocator
	sz   int
	live map[Handle]*liveAlloc
}

type liveAlloc struct {
	pc   uintptr
	line int
	sz   int
}

// NewCheckedAllocator wraps mem.
func NewCheckedAllocator(mem *BlockAllocator) *CheckedAllocator {
	return &CheckedAllocator{mem: mem, live: make(map[Handle]*liveAlloc)}
}

// Malloc allocates size bytes, see BlockAllocator.Malloc.
func (c *CheckedAllocator) Malloc(size int) (Handle, error) {
	h, err := c.mem.Malloc(size)
	if err != nil {
		return 0, err
	}
	c.track(h, size)
	return h, nil
}

// Alloc allocates size bytes, see BlockAllocator.Alloc.
func (c *CheckedAllocator) Alloc(size int) []byte {
	b := c.mem.Alloc(size)
	if b == nil {
		return nil
	}
	h, _ := c.mem.HandleOf(b)
	c.track(h, size)
	return b
}

// AllocAligned allocates size bytes aligned to align, see BlockAllocator.AllocAligned.
func (c *CheckedAllocator) AllocAligned(size, align int) []byte {
	if align <= 0 || align&(align-1) != 0 {
		panic("malloc: alignment must be a power of two")
	}
	b, h, err := c.mem.MallocAligned(size, align)
	if err != nil {
		return nil
	}
	c.track(h, size)
	return b
}

// MallocAligned allocates size bytes aligned to align, see BlockAllocator.MallocAligned.
func (c *CheckedAllocator) MallocAligned(size, align int) ([]byte, Handle, error) {
	b, h, err := c.mem.MallocAligned(size, align)
	if err != nil {
		return nil, 0, err
	}
	c.track(h, size)
	return b, h, nil
}

// Free releases h. Panics if h is not a live allocation of this allocator.
func (c *CheckedAllocator) Free(h Handle) {
	c.untrack(h)
	c.mem.Free(h)
}

// Release releases b. Panics if b is not a live allocation of this allocator.
func (c *CheckedAllocator) Release(b []byte) {
	if cap(b) == 0 {
		return
	}
	h, ok := c.mem.HandleOf(b)
	if !ok {
		panic("malloc: release of a block not in arena")
	}
	c.untrack(h)
	c.mem.Release(b)
}

// Bytes returns the unit referenced by h.
func (c *CheckedAllocator) Bytes(h Handle) []byte {
	if _, ok := c.live[h]; !ok {
		panic(fmt.Sprintf("malloc: access to %s which is not allocated", h))
	}
	return c.mem.Bytes(h)
}

// HandleOf returns the handle of the live allocation containing the data of b.
func (c *CheckedAllocator) HandleOf(b []byte) (Handle, bool) {
	h, ok := c.mem.HandleOf(b)
	if !ok {
		return 0, false
	}
	_, live := c.live[h]
	return h, live
}

// Reset releases every allocation and forgets the live set.
func (c *CheckedAllocator) Reset() {
	c.mem.Reset()
	clear(c.live)
	c.sz = 0
}

// CurrentAlloc returns the requested bytes of all live allocations.
func (c *CheckedAllocator) CurrentAlloc() int { return c.sz }

// Live returns the number of live allocations.
func (c *CheckedAllocator) Live() int { return len(c.live) }

// Unwrap returns the wrapped allocator.
func (c *CheckedAllocator) Unwrap() *BlockAllocator { return c.mem }

func (c *CheckedAllocator) track(h Handle, size int) {
	if _, ok := c.live[h]; ok {
		panic(fmt.Sprintf("malloc: %s handed out twice", h))
	}
	d := &liveAlloc{sz: size}
	if pc, _, l, ok := runtime.Caller(2); ok {
		d.pc, d.line = pc, l
	}
	c.live[h] = d
	c.sz += size
}

func (c *CheckedAllocator) untrack(h Handle) {
	d, ok := c.live[h]
	if !ok {
		panic(fmt.Sprintf("malloc: double free or foreign handle %s", h))
	}
	delete(c.live, h)
	c.sz -= d.sz
}

// TestingT is the subset of testing.T used by AssertSize.
type TestingT interface {
	Errorf(format string, args ...interface{})
	Helper()
}

// AssertSize fails t if the live bytes differ from sz, reporting every live
// allocation with its caller.
func (c *CheckedAllocator) AssertSize(t TestingT, sz int) {
	t.Helper()
	if c.sz == sz {
		return
	}
	for h, d := range c.live {
		name := "unknown"
		if f := runtime.FuncForPC(d.pc); f != nil {
			name = f.Name()
		}
		t.Errorf("LEAK of %d bytes (%s) FROM %s line %d", d.sz, h, name, d.line)
	}
	t.Errorf("invalid memory size exp=%d, got=%d", sz, c.sz)
}
