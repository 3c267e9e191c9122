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

import "strconv"

// Tier identifies one of the three size-class sub-allocators.
type Tier uint8

const (
	TierNone Tier = iota
	TierSmall
	TierMedium
	TierLarge
)

func (t Tier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	case TierLarge:
		return "large"
	}
	return "none"
}

const (
	handleTierShift = 56
	handleIndexMask = 1<<32 - 1
)

// Handle references a live allocation of a BlockAllocator.
// The top byte holds the owning Tier and the low 32 bits the unit index
// inside that tier: the slot for small, the block for medium and the run
// header granule for large. The zero Handle is never returned by Malloc.
type Handle uint64

func makeHandle(t Tier, idx int) Handle {
	return Handle(uint64(t)<<handleTierShift | uint64(idx)&handleIndexMask)
}

// Tier returns the tier that owns h.
func (h Handle) Tier() Tier {
	return Tier(h >> handleTierShift)
}

// Index returns the unit index of h inside its tier.
func (h Handle) Index() int {
	return int(uint64(h) & handleIndexMask)
}

// IsZero reports whether h is the invalid zero handle.
func (h Handle) IsZero() bool {
	return h == 0
}

func (h Handle) String() string {
	return h.Tier().String() + "#" + strconv.Itoa(h.Index())
}

// State is the per-unit flag byte kept in every block table.
type State uint8

const (
	StateFree      State = 0x00
	StateAllocated State = 0x01
	// StateAligned is set together with StateAllocated for units handed out
	// by AllocAligned.
	StateAligned State = 0x02
)

// IsAllocated reports whether s marks a live allocation.
func (s State) IsAllocated() bool {
	return s&StateAllocated != 0
}

func (s State) String() string {
	switch {
	case s&StateAligned != 0:
		return "aligned"
	case s&StateAllocated != 0:
		return "allocated"
	}
	return "free"
}

// MarshalText renders s with its String form.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
