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
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

const testGranule = 4096

// testDesc describes a pool of 2 small blocks (14 slots), 4 medium blocks
// and 8 large granules of 4KB.
func testDesc() *Desc {
	return &Desc{
		SmallBytes:  2 * SmallBlockFootprint,
		MediumBytes: 4 * mediumFootprint,
		LargeBytes:  8 * testGranule,
		GranuleSize: testGranule,
	}
}

func newTestBlockAllocator(t testing.TB) *BlockAllocator {
	t.Helper()
	desc := testDesc()
	a, err := NewBlockAllocator(make([]byte, desc.SmallBytes+desc.MediumBytes+desc.LargeBytes), desc)
	require.NoError(t, err)
	return a
}

func newTestSmallAllocator(t testing.TB, size int) *SmallBlockAllocator {
	t.Helper()
	a, err := NewSmallBlockAllocator(make([]byte, size))
	require.NoError(t, err)
	return a
}

func newTestMediumAllocator(t testing.TB, blocks int) *MediumBlockAllocator {
	t.Helper()
	a, err := NewMediumBlockAllocator(make([]byte, blocks*mediumFootprint))
	require.NoError(t, err)
	return a
}

func newTestLargeAllocator(t testing.TB, granules, granule int) *LargeBlockAllocator {
	t.Helper()
	a, err := NewLargeBlockAllocator(make([]byte, granules*granule), granule)
	require.NoError(t, err)
	return a
}

func overlap(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart := uintptr(unsafe.Pointer(&a[0]))
	aEnd := aStart + uintptr(len(a))
	bStart := uintptr(unsafe.Pointer(&b[0]))
	bEnd := bStart + uintptr(len(b))
	return !(aEnd <= bStart || bEnd <= aStart)
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

func filledWith(b []byte, v byte) bool {
	for _, c := range b {
		if c != v {
			return false
		}
	}
	return true
}
