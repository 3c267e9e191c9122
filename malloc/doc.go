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

// Package malloc implements a segregated size-class block allocator over a
// caller supplied arena.
//
// The arena is split into three sub-pools. The small tier hands out 64 byte
// slots, seven per 512 byte block, with the slot states and a "block full"
// flag kept in the block's tail. The medium tier hands out 2048 byte blocks
// tracked by a one byte per block table placed after the blocks. The large
// tier hands out runs of fixed size granules, first fit, and coalesces
// adjacent free runs on free.
//
// BlockAllocator composes the tiers: requests are routed by size and freed
// either by Handle or by the address of the returned slice.
//
// Build with the assert tag to turn on double free and table consistency
// checks. CheckedAllocator offers the same validation at run time, with
// leak reporting.
package malloc
