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
	"sync"
	"unsafe"

	"github.com/bytedance/gopkg/util/logger"

	"github.com/cloudwego/blockalloc/internal/debug"
)

// StackAllocator is a bump allocator over a fixed buffer.
// Individual allocations are never freed; Reset releases everything at once.
//
// Alloc and AllocAligned are not synchronised. AllocSync and
// AllocAlignedSync take a mutex and may be called from several goroutines.
type StackAllocator struct {
	mu   sync.Mutex
	buf  []byte
	used int
}

// NewStackAllocator creates a stack allocator over buf.
func NewStackAllocator(buf []byte) *StackAllocator {
	return &StackAllocator{buf: buf}
}

// Alloc returns the next size bytes of the buffer, or nil if they don't fit.
func (s *StackAllocator) Alloc(size int) []byte {
	return s.alloc(size, 1)
}

// AllocAligned returns size bytes starting at a multiple of align, or nil if
// they don't fit. align must be a power of two.
func (s *StackAllocator) AllocAligned(size, align int) []byte {
	if align <= 0 || align&(align-1) != 0 {
		panic("stack: alignment must be a power of two")
	}
	return s.alloc(size, align)
}

// AllocSync is Alloc guarded by the allocator's mutex.
func (s *StackAllocator) AllocSync(size int) []byte {
	s.mu.Lock()
	b := s.alloc(size, 1)
	s.mu.Unlock()
	return b
}

// AllocAlignedSync is AllocAligned guarded by the allocator's mutex.
func (s *StackAllocator) AllocAlignedSync(size, align int) []byte {
	s.mu.Lock()
	b := s.AllocAligned(size, align)
	s.mu.Unlock()
	return b
}

func (s *StackAllocator) alloc(size, align int) []byte {
	if size < 0 {
		return nil
	}
	pad := 0
	if align > 1 && s.used < len(s.buf) {
		p := uintptr(unsafe.Pointer(&s.buf[s.used]))
		if m := int(p & uintptr(align-1)); m != 0 {
			pad = align - m
		}
	}
	if size > len(s.buf)-s.used-pad {
		logger.Warnf("malloc: stack allocator exhausted: request of %d bytes, %d of %d used",
			size, s.used, len(s.buf))
		return nil
	}
	start := s.used + pad
	end := start + size
	s.used = end
	b := s.buf[start:end:end]
	if debug.Enabled {
		clear(b)
	}
	return b
}

// Release is a no-op: a stack allocator only frees in bulk with Reset.
func (s *StackAllocator) Release(b []byte) {}

// Reset releases every allocation and zeroes the used part of the buffer.
func (s *StackAllocator) Reset() {
	s.mu.Lock()
	clear(s.buf[:s.used])
	s.used = 0
	s.mu.Unlock()
}

// Used returns the bytes handed out, padding included.
func (s *StackAllocator) Used() int { return s.used }

// Cap returns the size of the buffer.
func (s *StackAllocator) Cap() int { return len(s.buf) }

// Available returns the bytes left.
func (s *StackAllocator) Available() int { return len(s.buf) - s.used }
