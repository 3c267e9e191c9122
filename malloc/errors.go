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

import "errors"

var (
	// ErrOutOfMemory indicates that no free slot, block or run large enough
	// was found. It is the only recoverable failure of Malloc.
	ErrOutOfMemory = errors.New("malloc: out of memory")

	// ErrInvalidSize indicates a request for zero or negative bytes.
	ErrInvalidSize = errors.New("malloc: invalid size")

	// ErrTooLarge indicates a request exceeding the maximum size of a tier.
	ErrTooLarge = errors.New("malloc: size exceeds tier maximum")

	// ErrInvalidAlign indicates an alignment that is not a positive power of two.
	ErrInvalidAlign = errors.New("malloc: alignment must be a power of two")

	// ErrArenaTooSmall indicates the arena cannot hold the configured pools.
	ErrArenaTooSmall = errors.New("malloc: arena too small")

	// ErrTooManyGranules indicates a large pool whose granule count does not
	// fit a 16 bit run length.
	ErrTooManyGranules = errors.New("malloc: too many granules")

	// ErrExists indicates a registry name that is already taken.
	ErrExists = errors.New("malloc: allocator already exists")

	// ErrNotFound indicates a registry name that is not registered.
	ErrNotFound = errors.New("malloc: allocator not found")
)
