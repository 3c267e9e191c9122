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

package arrowalloc

import (
	"testing"
	"unsafe"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/blockalloc/malloc"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	desc := &malloc.Desc{
		SmallBytes:  8 * malloc.SmallBlockFootprint,
		MediumBytes: 64 << 10,
		LargeBytes:  1 << 20,
		GranuleSize: 4096,
	}
	mem, err := malloc.NewBlockAllocator(make([]byte, desc.SmallBytes+desc.MediumBytes+desc.LargeBytes), desc)
	require.NoError(t, err)
	return New(mem)
}

func inUse(t *testing.T, a *Allocator) int {
	t.Helper()
	s, ok := a.Stats()
	require.True(t, ok)
	return s.Small.InUse + s.Medium.InUse + s.Large.InUse
}

func TestAllocate(t *testing.T) {
	a := newTestAllocator(t)
	for _, size := range []int{1, 63, 64, 1000, 5000, 100 << 10} {
		b := a.Allocate(size)
		require.Len(t, b, size)
		assert.Equal(t, size, cap(b))
		assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%alignment, "size=%d", size)
		for i := range b {
			b[i] = 0xFF
		}
		a.Free(b)
	}
	assert.Zero(t, inUse(t, a))

	// reused memory comes back zeroed
	b := a.Allocate(1000)
	for _, c := range b {
		require.Zero(t, c)
	}
	a.Free(b)

	assert.NotNil(t, a.Allocate(0))
	a.Free(nil)
	assert.Panics(t, func() { a.Allocate(16 << 20) })
}

func TestReallocate(t *testing.T) {
	a := newTestAllocator(t)
	b := a.Allocate(128)
	for i := range b {
		b[i] = byte(i)
	}

	// the medium block has room
	grown := a.Reallocate(1024, b)
	require.Len(t, grown, 1024)
	assert.Equal(t, unsafe.SliceData(b), unsafe.SliceData(grown))
	assert.Zero(t, grown[500])

	moved := a.Reallocate(20000, grown)
	require.Len(t, moved, 20000)
	assert.NotEqual(t, unsafe.SliceData(grown), unsafe.SliceData(moved))
	for i := 0; i < 128; i++ {
		require.Equal(t, byte(i), moved[i])
	}
	assert.Zero(t, moved[19999])
	stats, _ := a.Stats()
	assert.Zero(t, stats.Medium.InUse)

	shrunk := a.Reallocate(10, moved)
	assert.Len(t, shrunk, 10)
	assert.Equal(t, unsafe.SliceData(moved), unsafe.SliceData(shrunk))

	empty := a.Reallocate(0, shrunk)
	assert.Len(t, empty, 0)
	assert.Zero(t, inUse(t, a))

	fresh := a.Reallocate(32, empty)
	assert.Len(t, fresh, 32)
	a.Free(fresh)
	assert.Zero(t, inUse(t, a))
}

func TestResizableBuffer(t *testing.T) {
	mem := memory.NewCheckedAllocator(newTestAllocator(t))
	defer mem.AssertSize(t, 0)

	buf := memory.NewResizableBuffer(mem)
	buf.Resize(100)
	copy(buf.Bytes(), "arrow")
	buf.Resize(1000)
	buf.Resize(50000)
	assert.Equal(t, "arrow", string(buf.Bytes()[:5]))
	assert.Equal(t, 50000, buf.Len())
	buf.Release()
}

func TestArrayBuilder(t *testing.T) {
	a := newTestAllocator(t)
	mem := memory.NewCheckedAllocator(a)
	defer mem.AssertSize(t, 0)

	bldr := array.NewInt64Builder(mem)
	defer bldr.Release()
	for i := int64(0); i < 5000; i++ {
		if i%7 == 0 {
			bldr.AppendNull()
			continue
		}
		bldr.Append(i * 3)
	}
	arr := bldr.NewInt64Array()
	defer arr.Release()

	assert.Equal(t, 5000, arr.Len())
	assert.True(t, arr.IsNull(14))
	assert.Equal(t, int64(15*3), arr.Value(15))
	assert.Equal(t, int64(4999*3), arr.Value(4999))
	assert.NotZero(t, inUse(t, a))
}

func TestConcurrentUse(t *testing.T) {
	a := newTestAllocator(t)
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				b := a.Allocate(16 + (i*w)%3000)
				b[0] = byte(w)
				b = a.Reallocate(len(b)*2, b)
				if b[0] != byte(w) {
					t.Errorf("worker %d: lost data", w)
				}
				a.Free(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Zero(t, inUse(t, a))
}

func TestAllocateSmallBuffersUseSmallTier(t *testing.T) {
	a := newTestAllocator(t)
	var bufs [][]byte
	for _, size := range []int{1, 8, 40, malloc.SmallSlotSize} {
		b := a.Allocate(size)
		assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%alignment, "size=%d", size)
		bufs = append(bufs, b)
	}
	stats, _ := a.Stats()
	assert.Equal(t, len(bufs), stats.Small.InUse)
	assert.Zero(t, stats.Medium.InUse)

	b := a.Allocate(1984)
	stats, _ = a.Stats()
	assert.Equal(t, 1, stats.Medium.InUse)
	a.Free(b)
	for _, b := range bufs {
		a.Free(b)
	}
	assert.Zero(t, inUse(t, a))
}

func TestStackBackedBuilder(t *testing.T) {
	stack := malloc.NewStackAllocator(make([]byte, 1<<20))
	a := New(stack)
	_, ok := a.Stats()
	assert.False(t, ok)

	b := a.Allocate(100)
	assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%alignment)
	copy(b, "batch")
	b = a.Reallocate(40, b)
	assert.Equal(t, "batch", string(b[:5]))
	b = a.Reallocate(5000, b)
	assert.Equal(t, "batch", string(b[:5]))
	a.Free(b)

	bldr := array.NewFloat64Builder(a)
	for i := 0; i < 1000; i++ {
		bldr.Append(float64(i) / 2)
	}
	arr := bldr.NewFloat64Array()
	assert.Equal(t, 499.5, arr.Value(999))
	arr.Release()
	bldr.Release()

	used := stack.Used()
	assert.Positive(t, used)
	a.Reset()
	assert.Zero(t, stack.Used())
}
