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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackAllocatorAlloc(t *testing.T) {
	s := NewStackAllocator(make([]byte, 100))
	assert.Equal(t, 100, s.Cap())

	a := s.Alloc(10)
	require.Len(t, a, 10)
	assert.Equal(t, 10, s.Used())
	b := s.Alloc(20)
	require.Len(t, b, 20)
	assert.Equal(t, 30, s.Used())
	assert.False(t, overlap(a, b))

	// a full fit succeeds
	rest := s.Alloc(s.Available())
	require.NotNil(t, rest)
	assert.Equal(t, 0, s.Available())
	assert.Nil(t, s.Alloc(1))

	// slices are capped so appends can't run into the next allocation
	assert.Equal(t, 10, cap(a))

	s.Reset()
	assert.Equal(t, 0, s.Used())
	assert.NotNil(t, s.Alloc(100))
	assert.Nil(t, s.Alloc(-1))
}

func TestStackAllocatorAllocAligned(t *testing.T) {
	s := NewStackAllocator(make([]byte, 4096))
	s.Alloc(3)
	for _, align := range []int{1, 2, 8, 64, 256} {
		b := s.AllocAligned(24, align)
		require.NotNil(t, b, "align=%d", align)
		assert.Zero(t, uintptr(unsafe.Pointer(&b[0]))%uintptr(align), "align=%d", align)
	}
	assert.Panics(t, func() { s.AllocAligned(8, 0) })
	assert.Panics(t, func() { s.AllocAligned(8, 12) })

	small := NewStackAllocator(make([]byte, 64))
	small.Alloc(1)
	assert.Nil(t, small.AllocAligned(64, 8))
	assert.Equal(t, 1, small.Used())
}

func TestStackAllocatorSync(t *testing.T) {
	const workers, per, size = 8, 100, 16
	s := NewStackAllocator(make([]byte, workers*per*size*2))
	results := make([][][]byte, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				var b []byte
				if i%2 == 0 {
					b = s.AllocSync(size)
				} else {
					b = s.AllocAlignedSync(size, 8)
				}
				if b != nil {
					fill(b, byte(w))
					results[w] = append(results[w], b)
				}
			}
		}(w)
	}
	wg.Wait()
	for w, bs := range results {
		assert.Len(t, bs, per)
		for _, b := range bs {
			assert.True(t, filledWith(b, byte(w)), "worker %d", w)
		}
	}
}
