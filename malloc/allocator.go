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

// Allocator is the memory API shared by the allocators of this package.
type Allocator interface {
	// Alloc returns size bytes, or nil if the request cannot be served.
	Alloc(size int) []byte

	// AllocAligned returns size bytes starting at a multiple of align, or nil
	// if the request cannot be served. align must be a power of two;
	// implementations panic otherwise.
	AllocAligned(size, align int) []byte

	// Release returns b, a slice obtained from Alloc or AllocAligned.
	// Allocators that only free in bulk ignore it.
	Release(b []byte)

	// Reset releases every allocation at once.
	Reset()
}

var (
	_ Allocator = (*BlockAllocator)(nil)
	_ Allocator = (*CheckedAllocator)(nil)
	_ Allocator = (*StackAllocator)(nil)
)
