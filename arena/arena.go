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

// Package arena provisions the contiguous memory handed to a
// malloc.BlockAllocator.
package arena

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/bytedance/gopkg/lang/mcache"
)

// ErrInvalidSize is returned for arenas of size <= 0.
var ErrInvalidSize = errors.New("arena: size must be > 0")

// Kind selects where an arena's memory comes from.
type Kind uint8

const (
	// KindHeap allocates from the Go heap.
	KindHeap Kind = iota
	// KindPooled borrows from the mcache size class pools.
	KindPooled
	// KindMmap maps anonymous private memory outside the Go heap.
	KindMmap
)

func (k Kind) String() string {
	switch k {
	case KindHeap:
		return "heap"
	case KindPooled:
		return "pooled"
	case KindMmap:
		return "mmap"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "heap", "":
		return KindHeap, nil
	case "pooled":
		return KindPooled, nil
	case "mmap":
		return KindMmap, nil
	}
	return 0, fmt.Errorf("arena: unknown kind %q", s)
}

// Arena is a block of memory for an allocator. Only mmap arenas start
// zeroed; heap and pooled arenas hold whatever the memory held before.
// Bytes must not be used after Close.
type Arena struct {
	Bytes []byte
	Kind  Kind

	release func([]byte) error
}

// Close returns the memory to where it came from. It is safe to call more
// than once.
func (a *Arena) Close() error {
	if a.Bytes == nil {
		return nil
	}
	b := a.Bytes
	a.Bytes = nil
	if a.release == nil {
		return nil
	}
	return a.release(b)
}

// New provisions an arena of size bytes of the given kind.
func New(kind Kind, size int) (*Arena, error) {
	switch kind {
	case KindHeap:
		return Heap(size)
	case KindPooled:
		return Pooled(size)
	case KindMmap:
		return Mmap(size)
	}
	return nil, fmt.Errorf("arena: unknown kind %s", kind)
}

// Heap allocates an arena on the Go heap without zeroing it.
func Heap(size int) (*Arena, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	b := dirtmake.Bytes(size, size)
	return &Arena{Bytes: b, Kind: KindHeap}, nil
}

// Pooled borrows an arena from mcache. Close hands it back. The memory may
// hold data from a previous borrower.
func Pooled(size int) (*Arena, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	b := mcache.Malloc(size)
	return &Arena{Bytes: b, Kind: KindPooled, release: freePooled}, nil
}

func freePooled(b []byte) error {
	mcache.Free(b)
	return nil
}
