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

// Package filter flags alignments that are not part of a concordant read
// pair.  Flagged lines get a ZP:Z:fail tag, which the alignment loader
// honours by skipping them.
package filter

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/insertsize"
	"github.com/grailbio/polypolish/util"
)

// FailTag is appended to alignments that fail the filter.
const FailTag = "ZP:Z:fail"

// Opts controls the pair filter.
type Opts struct {
	// Orientation is the expected pair orientation; insertsize.Auto picks
	// the most common one.
	Orientation insertsize.Orientation
	// Low and High are the percentiles of the insert size distribution used
	// as bounds for good pairs.
	Low, High float64
}

// DefaultOpts are the default filter options.
var DefaultOpts = Opts{
	Orientation: insertsize.Auto,
	Low:         0.1,
	High:        99.9,
}

// Validate checks that the percentiles are in range.
func (o Opts) Validate() error {
	if o.Low <= 0 || o.Low >= 50 {
		return errors.E(errors.Invalid, fmt.Sprintf("low percentile must be in (0, 50), got %v", o.Low))
	}
	if o.High <= 50 || o.High >= 100 {
		return errors.E(errors.Invalid, fmt.Sprintf("high percentile must be in (50, 100), got %v", o.High))
	}
	return nil
}

// Stats counts the aligned records of each mate file.
type Stats struct {
	Pass, Fail [2]int
}

// Total returns the number of aligned records read.
func (s Stats) Total() int { return s.Pass[0] + s.Pass[1] + s.Fail[0] + s.Fail[1] }

// loadAligned reads every aligned record of both files, with no quality
// filtering, into a paired set.
func loadAligned(ctx context.Context, in [2]string) (*alignment.Set, error) {
	mates := [2]alignment.Mate{alignment.Mate1, alignment.Mate2}
	var byKey [2]map[alignment.ReadKey][]*alignment.Record
	err := traverse.Each(2, func(i int) error {
		byKey[i] = map[alignment.ReadKey][]*alignment.Record{}
		n := 0
		err := alignment.ScanLines(ctx, in[i], func(line string) error {
			if alignment.IsHeader(line) {
				return nil
			}
			r, err := alignment.ParseRecord(line, mates[i])
			if err != nil {
				return err
			}
			if r.IsAligned() {
				byKey[i][r.Key] = append(byKey[i][r.Key], r)
				n++
			}
			return nil
		})
		if err != nil {
			return err
		}
		log.Printf("%s: %d alignments from %d reads", in[i], n, len(byKey[i]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	set := alignment.NewSet(true)
	for i := range byKey {
		for k, recs := range byKey[i] {
			if err := set.Add(&alignment.Read{Key: k, Placement: alignment.NewPlacement(recs)}); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

// Pass reports whether rec, one of the aligned records of its read, is kept.
// It is kept when its mate has no alignments, when it is the read's only
// alignment, or when it forms an accepted pair with any mate alignment.
func Pass(set *alignment.Set, rec *alignment.Record, t insertsize.Thresholds) bool {
	mates := set.Placement(alignment.ReadKey{Name: rec.Key.Name, Mate: rec.Key.Mate.Other()}).Candidates()
	if len(mates) == 0 || set.Placement(rec.Key).Len() == 1 {
		return true
	}
	for _, m := range mates {
		if t.Accepts(rec, m) {
			return true
		}
	}
	return false
}

// rewrite copies in to out, appending FailTag to aligned records that do not
// pass.
func rewrite(ctx context.Context, in, out string, mate alignment.Mate, set *alignment.Set, t insertsize.Thresholds) (pass, fail int, err error) {
	err = util.WriteFile(ctx, out, func(w io.Writer) error {
		return alignment.ScanLines(ctx, in, func(line string) error {
			if !alignment.IsHeader(line) {
				r, err := alignment.ParseRecord(line, mate)
				if err != nil {
					return err
				}
				if r.IsAligned() {
					if Pass(set, r, t) {
						pass++
					} else {
						fail++
						line += "\t" + FailTag
					}
				}
			}
			_, err := io.WriteString(w, line+"\n")
			return err
		})
	})
	return pass, fail, err
}

// Run filters the mate 1 and mate 2 SAM files in into out.  Insert size
// thresholds and the expected orientation are learned from the uniquely
// aligned pairs.  Header lines and unaligned records are copied unchanged.
func Run(ctx context.Context, in, out [2]string, opts Opts) (Stats, error) {
	if err := opts.Validate(); err != nil {
		return Stats{}, err
	}
	seen := map[string]bool{}
	for _, p := range append(in[:], out[:]...) {
		if seen[p] {
			return Stats{}, errors.E(errors.Invalid, fmt.Sprintf("input and output paths must be distinct, %s repeats", p))
		}
		seen[p] = true
	}
	set, err := loadAligned(ctx, in)
	if err != nil {
		return Stats{}, err
	}
	t, err := insertsize.FindThresholds(set, opts.Orientation, opts.Low, opts.High)
	if err != nil {
		return Stats{}, err
	}
	var (
		stats Stats
		mates = [2]alignment.Mate{alignment.Mate1, alignment.Mate2}
	)
	err = traverse.Each(2, func(i int) error {
		var err error
		stats.Pass[i], stats.Fail[i], err = rewrite(ctx, in[i], out[i], mates[i], set, t)
		if err != nil {
			return errors.E(out[i], err)
		}
		log.Printf("%s: %d pass, %d fail", in[i], stats.Pass[i], stats.Fail[i])
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return stats, nil
}
