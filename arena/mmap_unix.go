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

//go:build unix

package arena

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Mmap maps an anonymous private arena outside the Go heap. Pages are zero
// filled by the kernel on first touch.
func Mmap(size int) (*Arena, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	return &Arena{Bytes: b, Kind: KindMmap, release: munmap}, nil
}

func munmap(b []byte) error {
	err := unix.Munmap(b)
	if errors.Is(err, unix.EINVAL) {
		return nil
	}
	return err
}
