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

//go:build !unix

package arena

import "github.com/bytedance/gopkg/util/logger"

// Mmap falls back to a zeroed heap arena where anonymous mappings are
// unavailable.
func Mmap(size int) (*Arena, error) {
	logger.Warnf("arena: mmap not supported on this platform, using the heap")
	a, err := Heap(size)
	if err != nil {
		return nil, err
	}
	clear(a.Bytes)
	return a, nil
}
