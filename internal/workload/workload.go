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

// Package workload drives BlockAllocators with a randomized mix of
// allocations and frees and verifies that no live block is overwritten.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bytedance/gopkg/util/logger"
	"github.com/bytedance/gopkg/util/xxhash3"
	"golang.org/x/sync/errgroup"

	"github.com/cloudwego/blockalloc/arena"
	"github.com/cloudwego/blockalloc/container/fixedlist"
	"github.com/cloudwego/blockalloc/malloc"
)

// Config describes a workload run.
type Config struct {
	// Workers is the number of goroutines, each owning one BlockAllocator.
	Workers int
	// Ops is the number of malloc or free operations per worker.
	Ops int
	// MaxLive bounds the live allocations of a worker.
	MaxLive int
	// Seed makes runs reproducible; worker i uses Seed+i.
	Seed int64

	Desc      malloc.Desc
	ArenaKind arena.Kind
}

// DefaultConfig returns a configuration small enough for a laptop.
func DefaultConfig() Config {
	return Config{
		Workers: 4,
		Ops:     100000,
		MaxLive: 1024,
		Seed:    1,
		Desc: malloc.Desc{
			SmallBytes:  1 << 20,
			MediumBytes: 4 << 20,
			LargeBytes:  64 << 20,
			GranuleSize: 64 << 10,
		},
		ArenaKind: arena.KindHeap,
	}
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workload: workers must be > 0, got %d", c.Workers)
	}
	if c.Ops < 0 {
		return fmt.Errorf("workload: ops must be >= 0, got %d", c.Ops)
	}
	if c.MaxLive <= 0 {
		return fmt.Errorf("workload: max live must be > 0, got %d", c.MaxLive)
	}
	return nil
}

// WorkerReport holds the counters of one worker.
type WorkerReport struct {
	Worker   int   `json:"worker"`
	Allocs   int   `json:"allocs"`
	Frees    int   `json:"frees"`
	Failures int   `json:"failures"`
	Bytes    int64 `json:"bytes_requested"`
	PeakLive int   `json:"peak_live"`

	// PerTier counts successful allocations by the tier that served them.
	PerTier map[string]int `json:"per_tier"`
	// Stats are taken before the remaining live blocks are drained.
	Stats malloc.Stats `json:"stats"`
}

// Report is the result of Run.
type Report struct {
	Workers  []WorkerReport `json:"workers"`
	Allocs   int            `json:"allocs"`
	Frees    int            `json:"frees"`
	Failures int            `json:"failures"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
}

// Run executes cfg and returns the merged report. It fails on the first
// worker error, including a canary mismatch, and stops early when ctx is
// cancelled.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	reports := make([]WorkerReport, cfg.Workers)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		i := i
		g.Go(func() error {
			w, err := newWorker(i, &cfg)
			if err != nil {
				return err
			}
			defer w.close()
			if err := w.run(ctx); err != nil {
				return err
			}
			reports[i] = w.report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Report{Workers: reports, Elapsed: time.Since(start)}
	for _, w := range reports {
		r.Allocs += w.Allocs
		r.Frees += w.Frees
		r.Failures += w.Failures
	}
	return r, nil
}

type liveBlock struct {
	h    malloc.Handle
	size int
	sum  uint64
}

type worker struct {
	id     int
	cfg    *Config
	arena  *arena.Arena
	mem    *malloc.BlockAllocator
	live   *fixedlist.List[liveBlock]
	rng    *rand.Rand
	report WorkerReport
}

func newWorker(id int, cfg *Config) (*worker, error) {
	desc := cfg.Desc
	ar, err := arena.New(cfg.ArenaKind, desc.SmallBytes+desc.MediumBytes+desc.LargeBytes)
	if err != nil {
		return nil, fmt.Errorf("worker %d: %w", id, err)
	}
	mem, err := malloc.NewBlockAllocator(ar.Bytes, &desc)
	if err != nil {
		ar.Close()
		return nil, fmt.Errorf("worker %d: %w", id, err)
	}
	return &worker{
		id:     id,
		cfg:    cfg,
		arena:  ar,
		mem:    mem,
		live:   fixedlist.New[liveBlock](cfg.MaxLive),
		rng:    rand.New(rand.NewSource(cfg.Seed + int64(id))),
		report: WorkerReport{Worker: id, PerTier: make(map[string]int, 3)},
	}, nil
}

func (w *worker) close() {
	if err := w.arena.Close(); err != nil {
		logger.Warnf("workload: worker %d: close arena: %v", w.id, err)
	}
}

func (w *worker) run(ctx context.Context) error {
	logger.Debugf("workload: worker %d: %d ops over %d byte pool", w.id, w.cfg.Ops, w.mem.PoolSize())
	for op := 0; op < w.cfg.Ops; op++ {
		if op&63 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if w.live.Full() || (w.live.Len() > 0 && w.rng.Intn(2) == 0) {
			if err := w.free(w.rng.Intn(w.live.Len())); err != nil {
				return err
			}
			continue
		}
		if err := w.malloc(); err != nil {
			return err
		}
	}

	w.report.Stats = w.mem.Stats()
	for w.live.Len() > 0 {
		if err := w.free(w.live.Len() - 1); err != nil {
			return err
		}
	}
	if err := w.mem.Large().Check(); err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	logger.Debugf("workload: worker %d: done, %d allocs, %d failures", w.id, w.report.Allocs, w.report.Failures)
	return nil
}

// nextSize picks a request size: half small, a third medium, the rest large.
func (w *worker) nextSize() int {
	switch r := w.rng.Intn(100); {
	case r < 50:
		return 1 + w.rng.Intn(malloc.SmallMaxSize)
	case r < 85:
		return malloc.SmallMaxSize + 1 + w.rng.Intn(malloc.MediumMaxSize-malloc.SmallMaxSize)
	default:
		return malloc.MediumMaxSize + 1 + w.rng.Intn(4*w.mem.Large().Granule())
	}
}

func (w *worker) malloc() error {
	size := w.nextSize()
	h, err := w.mem.Malloc(size)
	if errors.Is(err, malloc.ErrOutOfMemory) {
		w.report.Failures++
		return nil
	}
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	b := w.mem.Bytes(h)[:size]
	w.rng.Read(b)
	w.live.Push(liveBlock{h: h, size: size, sum: xxhash3.Hash(b)})

	w.report.Allocs++
	w.report.Bytes += int64(size)
	w.report.PerTier[h.Tier().String()]++
	if n := w.live.Len(); n > w.report.PeakLive {
		w.report.PeakLive = n
	}
	return nil
}

func (w *worker) free(i int) error {
	blk := w.live.RemoveAt(i)
	if sum := xxhash3.Hash(w.mem.Bytes(blk.h)[:blk.size]); sum != blk.sum {
		return fmt.Errorf("worker %d: %s of %d bytes corrupted: checksum %#x, want %#x",
			w.id, blk.h, blk.size, sum, blk.sum)
	}
	w.mem.Free(blk.h)
	w.report.Frees++
	return nil
}
