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

// Command blockalloc stresses the block allocator and dumps its state.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bytedance/gopkg/util/logger"
	"github.com/docopt/docopt-go"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/cloudwego/blockalloc/arena"
	"github.com/cloudwego/blockalloc/internal/workload"
	"github.com/cloudwego/blockalloc/malloc"
)

const usage = `Block allocator stress and inspection tool.

Usage:
  blockalloc stress [--workers=N] [--ops=N] [--max-live=N] [--seed=N]
                    [--small=SIZE] [--medium=SIZE] [--large=SIZE]
                    [--granule=SIZE] [--arena=KIND] [--json] [--verbose]
  blockalloc status [--small=SIZE] [--medium=SIZE] [--large=SIZE]
                    [--granule=SIZE] [--arena=KIND] [--align=N] [--json]
                    [--verbose] [<size>...]
  blockalloc -h | --help

Options:
  -h --help        Show this screen.
  --workers=N      Worker goroutines, each with its own allocator [default: 4].
  --ops=N          Operations per worker [default: 100000].
  --max-live=N     Live allocations per worker [default: 1024].
  --seed=N         Random seed [default: 1].
  --small=SIZE     Small tier pool size [default: 1MiB].
  --medium=SIZE    Medium tier pool size [default: 4MiB].
  --large=SIZE     Large tier pool size [default: 64MiB].
  --granule=SIZE   Large tier granule size [default: 64KiB].
  --arena=KIND     Arena memory: heap, pooled or mmap. Defaults to $BLOCKALLOC_ARENA, then heap.
  --align=N        Allocate the status sizes aligned to N bytes [default: 0].
  --json           Print the result as JSON.
  --verbose        Log debug messages.`

type options struct {
	Help    bool     `docopt:"--help"`
	Stress  bool     `docopt:"stress"`
	Status  bool     `docopt:"status"`
	Workers string   `docopt:"--workers"`
	Ops     string   `docopt:"--ops"`
	MaxLive string   `docopt:"--max-live"`
	Seed    string   `docopt:"--seed"`
	Small   string   `docopt:"--small"`
	Medium  string   `docopt:"--medium"`
	Large   string   `docopt:"--large"`
	Granule string   `docopt:"--granule"`
	Arena   string   `docopt:"--arena"`
	Align   string   `docopt:"--align"`
	JSON    bool     `docopt:"--json"`
	Verbose bool     `docopt:"--verbose"`
	Sizes   []string `docopt:"<size>"`
}

func main() {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		fail(err)
	}
	var o options
	if err := opts.Bind(&o); err != nil {
		fail(err)
	}
	if o.Verbose {
		logger.SetLevel(logger.LevelDebug)
	}

	desc, err := parseDesc(&o)
	if err != nil {
		fail(err)
	}
	switch {
	case o.Stress:
		err = stress(os.Stdout, &o, desc)
	case o.Status:
		err = status(os.Stdout, &o, desc)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "blockalloc:", err)
	os.Exit(1)
}

func parseDesc(o *options) (malloc.Desc, error) {
	var desc malloc.Desc
	for _, f := range []struct {
		name string
		in   string
		out  *int
	}{
		{"--small", o.Small, &desc.SmallBytes},
		{"--medium", o.Medium, &desc.MediumBytes},
		{"--large", o.Large, &desc.LargeBytes},
		{"--granule", o.Granule, &desc.GranuleSize},
	} {
		n, err := humanize.ParseBytes(f.in)
		if err != nil {
			return desc, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.out = int(n)
	}
	return desc, nil
}

func intOpt(name, in string) (int, error) {
	n, err := strconv.Atoi(in)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func arenaKind(o *options) (arena.Kind, error) {
	kind := o.Arena
	if kind == "" {
		kind = os.Getenv("BLOCKALLOC_ARENA")
	}
	return arena.ParseKind(kind)
}

func stress(w io.Writer, o *options, desc malloc.Desc) error {
	cfg := workload.Config{Desc: desc}
	var err error
	if cfg.Workers, err = intOpt("--workers", o.Workers); err != nil {
		return err
	}
	if cfg.Ops, err = intOpt("--ops", o.Ops); err != nil {
		return err
	}
	if cfg.MaxLive, err = intOpt("--max-live", o.MaxLive); err != nil {
		return err
	}
	seed, err := intOpt("--seed", o.Seed)
	if err != nil {
		return err
	}
	cfg.Seed = int64(seed)

	if cfg.ArenaKind, err = arenaKind(o); err != nil {
		return err
	}
	if !o.Verbose {
		// exhaustion is counted in the report
		logger.SetLevel(logger.LevelError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	report, err := workload.Run(ctx, cfg)
	if err != nil {
		return err
	}
	if o.JSON {
		return writeJSON(w, report)
	}
	return writeReport(w, &cfg, report)
}

func writeReport(w io.Writer, cfg *workload.Config, r *workload.Report) error {
	fmt.Fprintf(w, "%d workers, %s ops each, %s arena of %s, %s\n",
		cfg.Workers, humanize.Comma(int64(cfg.Ops)), cfg.ArenaKind,
		humanize.IBytes(uint64(cfg.Desc.SmallBytes+cfg.Desc.MediumBytes+cfg.Desc.LargeBytes)), r.Elapsed)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "worker\tallocs\tfrees\tfailures\trequested\tpeak live\tsmall\tmedium\tlarge")
	for _, wr := range r.Workers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			wr.Worker, humanize.Comma(int64(wr.Allocs)), humanize.Comma(int64(wr.Frees)),
			humanize.Comma(int64(wr.Failures)), humanize.IBytes(uint64(wr.Bytes)), wr.PeakLive,
			wr.PerTier[malloc.TierSmall.String()], wr.PerTier[malloc.TierMedium.String()],
			wr.PerTier[malloc.TierLarge.String()])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "total: %s allocs, %s failures\n",
		humanize.Comma(int64(r.Allocs)), humanize.Comma(int64(r.Failures)))
	return err
}

func status(w io.Writer, o *options, desc malloc.Desc) error {
	align, err := intOpt("--align", o.Align)
	if err != nil {
		return err
	}
	kind, err := arenaKind(o)
	if err != nil {
		return err
	}
	ar, err := arena.New(kind, desc.SmallBytes+desc.MediumBytes+desc.LargeBytes)
	if err != nil {
		return err
	}
	defer ar.Close()
	mem, err := malloc.NewBlockAllocator(ar.Bytes, &desc)
	if err != nil {
		return err
	}
	for _, s := range o.Sizes {
		n, err := humanize.ParseBytes(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("size %q: %w", s, err)
		}
		if align > 0 {
			_, _, err = mem.MallocAligned(int(n), align)
		} else {
			_, err = mem.Malloc(int(n))
		}
		if err != nil {
			return fmt.Errorf("size %q: %w", s, err)
		}
	}
	if o.JSON {
		return writeJSON(w, mem.Stats())
	}
	return mem.WriteStatus(w)
}

func writeJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
