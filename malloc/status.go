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
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// TierStats are the counters of one tier.
type TierStats struct {
	Tier     string `json:"tier"`
	Units    int    `json:"units"`
	InUse    int    `json:"in_use"`
	UnitSize int    `json:"unit_size"`

	CapacityBytes int `json:"capacity_bytes"`
	FreeBytes     int `json:"free_bytes"`
	// LargestFree is the largest single request the tier can serve now.
	LargestFree int `json:"largest_free"`
}

// Stats are the counters of a BlockAllocator.
type Stats struct {
	PoolSize int       `json:"pool_size"`
	Small    TierStats `json:"small"`
	Medium   TierStats `json:"medium"`
	Large    TierStats `json:"large"`
}

// Stats returns the counters of the small tier.
func (a *SmallBlockAllocator) Stats() TierStats {
	s := TierStats{
		Tier:          TierSmall.String(),
		Units:         a.Cap(),
		InUse:         a.inUse,
		UnitSize:      SmallSlotSize,
		CapacityBytes: a.Cap() * SmallSlotSize,
		FreeBytes:     a.Available(),
	}
	if s.InUse < s.Units {
		s.LargestFree = SmallSlotSize
	}
	return s
}

// Stats returns the counters of the medium tier.
func (a *MediumBlockAllocator) Stats() TierStats {
	s := TierStats{
		Tier:          TierMedium.String(),
		Units:         a.Cap(),
		InUse:         a.inUse,
		UnitSize:      MediumBlockSize,
		CapacityBytes: a.Cap() * MediumBlockSize,
		FreeBytes:     a.Available(),
	}
	if s.InUse < s.Units {
		s.LargestFree = MediumBlockSize
	}
	return s
}

// Stats returns the counters of the large tier.
func (a *LargeBlockAllocator) Stats() TierStats {
	return TierStats{
		Tier:          TierLarge.String(),
		Units:         a.Cap(),
		InUse:         a.inUse,
		UnitSize:      a.granule,
		CapacityBytes: len(a.arena),
		FreeBytes:     a.Available(),
		LargestFree:   a.LargestFreeRun() * a.granule,
	}
}

// Stats returns the counters of every tier.
func (a *BlockAllocator) Stats() Stats {
	return Stats{
		PoolSize: a.PoolSize(),
		Small:    a.small.Stats(),
		Medium:   a.medium.Stats(),
		Large:    a.large.Stats(),
	}
}

type statusWriter struct {
	w   io.Writer
	err error
}

func (sw *statusWriter) printf(format string, args ...interface{}) {
	if sw.err == nil {
		_, sw.err = fmt.Fprintf(sw.w, format, args...)
	}
}

func bytesOf(n int) string {
	return humanize.IBytes(uint64(n))
}

// WriteStatus writes a human readable dump of every allocated unit:
// small slots grouped by block, medium blocks and every large run.
func (a *BlockAllocator) WriteStatus(w io.Writer) error {
	sw := &statusWriter{w: w}

	s := a.small
	sw.printf("small blocks allocated: %d/%d slots (%s in use)\n",
		s.inUse, s.Cap(), bytesOf(s.inUse*SmallSlotSize))
	for b := 0; b < s.numBlocks; b++ {
		meta := s.meta(b)
		headed := false
		for slot := 0; slot < SmallSlotsPerBlock; slot++ {
			st := State(meta[slot])
			if st == StateFree {
				continue
			}
			if !headed {
				headed = true
				sw.printf("block %d", b)
				if s.BlockFull(b) {
					sw.printf(" (full)")
				}
				sw.printf("\n")
			}
			sw.printf("\t%d: %s\n", slot, st)
		}
	}

	m := a.medium
	sw.printf("medium blocks allocated: %d/%d blocks (%s in use)\n",
		m.inUse, m.Cap(), bytesOf(m.inUse*MediumBlockSize))
	for i := range m.table {
		if st := State(m.table[i]); st != StateFree {
			sw.printf("block %d: %s\n", i, st)
		}
	}

	l := a.large
	sw.printf("large runs: %d/%d granules of %s allocated\n",
		l.inUse, l.Cap(), bytesOf(l.granule))
	for _, r := range l.Runs() {
		sw.printf("run %d: %d granules %s (%s)\n", r.Index, r.Length, r.State, bytesOf(r.Length*l.granule))
	}
	return sw.err
}
