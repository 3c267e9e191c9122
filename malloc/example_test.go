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

package malloc_test

import (
	"fmt"

	"github.com/cloudwego/blockalloc/malloc"
)

func ExampleBlockAllocator() {
	desc := &malloc.Desc{
		SmallBytes:  4096,
		MediumBytes: 16 << 10,
		LargeBytes:  1 << 20,
		GranuleSize: 64 << 10,
	}
	arena := make([]byte, desc.SmallBytes+desc.MediumBytes+desc.LargeBytes)
	a, err := malloc.NewBlockAllocator(arena, desc)
	if err != nil {
		panic(err)
	}

	small, _ := a.Malloc(24)
	medium, _ := a.Malloc(1500)
	large, _ := a.Malloc(200 << 10)
	fmt.Println(small, medium, large, len(a.Bytes(large)))

	a.Free(large)
	a.Free(medium)
	a.Free(small)
	fmt.Println(a.Large().LargestFreeRun())
	// Output:
	// small#0 medium#0 large#0 262144
	// 16
}

func ExampleStackAllocator() {
	s := malloc.NewStackAllocator(make([]byte, 256))
	header := s.Alloc(10)
	body := s.AllocAligned(64, 16)
	fmt.Println(len(header), len(body), s.Used() >= 74)
	s.Reset()
	fmt.Println(s.Used())
	// Output:
	// 10 64 true
	// 0
}
