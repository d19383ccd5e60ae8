// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pileup

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"strings"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/polypolish/encoding/fasta"
	"gonum.org/v1/gonum/stat"
)

// Suffix is appended to the name of each polished sequence.
const Suffix = "_polypolish"

// Stats summarizes the polishing of one sequence.
type Stats struct {
	Name string
	// Len is the length of the unpolished sequence.
	Len       int
	MeanDepth float64
	// ZeroDepth counts positions no alignment covers.
	ZeroDepth int
	// Coverage is the percentage of positions with nonzero depth.
	Coverage float64
	// Changed counts positions with status Changed.
	Changed int
	// EstimatedAccuracy is 100 minus the percentage of changed positions.
	EstimatedAccuracy float64
	PolishedLen       int
	// Checksum is the seahash of the polished sequence.
	Checksum uint64
}

// Log prints the stats.
func (s Stats) Log() {
	log.Printf("%s: %d bp, mean depth %.1f, %d bp zero depth (%.2f%% coverage)",
		s.Name, s.Len, s.MeanDepth, s.ZeroDepth, s.Coverage)
	log.Printf("%s: %d positions changed (%.6f%% estimated accuracy), polished %d bp, checksum %016x",
		s.Name, s.Changed, s.EstimatedAccuracy, s.PolishedLen, s.Checksum)
}

// Polish calls every position of p and returns the polished sequence.  When
// debug is non-nil, one row per position is written to it.
func (p *Pileup) Polish(opts Opts, debug *DebugWriter) (fasta.Record, Stats, error) {
	var (
		out    strings.Builder
		depths = make([]float64, len(p.cols))
		st     = Stats{Name: p.Name, Len: len(p.cols)}
	)
	out.Grow(len(p.Seq))
	for pos := range p.cols {
		c := p.Call(pos, opts)
		depths[pos] = c.Depth
		if c.Depth == 0 {
			st.ZeroDepth++
		}
		if c.Status == Changed {
			st.Changed++
		}
		out.WriteString(c.Bases())
		if debug != nil {
			if err := debug.Write(p, c); err != nil {
				return fasta.Record{}, Stats{}, err
			}
		}
	}
	if st.Len > 0 {
		st.MeanDepth = stat.Mean(depths, nil)
		st.Coverage = 100 * float64(st.Len-st.ZeroDepth) / float64(st.Len)
		st.EstimatedAccuracy = 100 * (1 - float64(st.Changed)/float64(st.Len))
	}
	rec := fasta.Record{Name: p.Name + Suffix, Seq: out.String()}
	st.PolishedLen = len(rec.Seq)
	h := seahash.New()
	h.Write([]byte(rec.Seq)) // nolint: errcheck
	st.Checksum = h.Sum64()
	return rec, st, nil
}

// PolishAll polishes every pileup, up to opts.Parallelism at a time.  The
// records and stats follow the order of piles.  Debug rows, when debug is
// non-nil, are written one sequence after another in the same order.
// Nothing is returned unless every sequence succeeds.
func PolishAll(ctx context.Context, piles []*Pileup, opts Opts, debug io.Writer) ([]fasta.Record, []Stats, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	var (
		recs  = make([]fasta.Record, len(piles))
		stats = make([]Stats, len(piles))
		bufs  = make([]bytes.Buffer, len(piles))
	)
	if parallelism > len(piles) {
		parallelism = len(piles)
	}
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(piles)) / parallelism
		endIdx := ((jobIdx + 1) * len(piles)) / parallelism
		for i := startIdx; i < endIdx; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			var dw *DebugWriter
			if debug != nil {
				dw = NewDebugWriter(&bufs[i])
			}
			var err error
			if recs[i], stats[i], err = piles[i].Polish(opts, dw); err != nil {
				return errors.E(piles[i].Name, err)
			}
			if dw != nil {
				if err := dw.Flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if debug != nil {
		dw := NewDebugWriter(debug)
		if err := dw.WriteHeader(); err != nil {
			return nil, nil, err
		}
		if err := dw.Flush(); err != nil {
			return nil, nil, err
		}
		for i := range bufs {
			if _, err := bufs[i].WriteTo(debug); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, s := range stats {
		s.Log()
	}
	return recs, stats, nil
}
