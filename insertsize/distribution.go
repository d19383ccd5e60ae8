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

// Package insertsize estimates the empirical insert size distribution of a
// paired read set and scores candidate pairings against it.
package insertsize

import (
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/polypolish/alignment"
)

// MaxInsertSize is the largest insert size used to build a distribution.
// Larger sizes usually come from assembly misjoins.
const MaxInsertSize = 10000

// Percentiles are the points at which a Distribution is sampled, in
// increasing order.
var Percentiles = []float64{0.001, 0.01, 0.1, 1, 10, 50, 90, 99, 99.9, 99.99, 99.999}

// Percentile returns the p-th percentile (0 < p <= 100) of sorted using the
// nearest rank method.  It returns 0 for an empty slice.
func Percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Size returns the insert size of two alignments: the distance between the
// outermost of their four endpoints.
func Size(a, b *alignment.Record) int {
	lo, hi := a.Pos, a.End()
	for _, p := range []int{b.Pos, b.End()} {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return hi - lo
}

// Distribution holds the insert size at each of Percentiles.  It is
// immutable once built.
type Distribution struct {
	values []int
	n      int
}

// New builds a Distribution from a sample of insert sizes.  sizes is not
// modified.
func New(sizes []int) (*Distribution, error) {
	if len(sizes) == 0 {
		return nil, errors.E(errors.Precondition, "no insert sizes to build a distribution from")
	}
	sorted := append([]int(nil), sizes...)
	sort.Ints(sorted)
	d := &Distribution{values: make([]int, len(Percentiles)), n: len(sorted)}
	for i, p := range Percentiles {
		d.values[i] = Percentile(sorted, p)
	}
	return d, nil
}

// N returns the sample size.
func (d *Distribution) N() int { return d.n }

// Value returns the insert size at percentile p, which must be one of
// Percentiles.
func (d *Distribution) Value(p float64) int {
	for i, q := range Percentiles {
		if q == p {
			return d.values[i]
		}
	}
	log.Panicf("insertsize: %v is not a sampled percentile", p)
	return 0
}

// Score rates an insert size from 5 (between the 10th and 90th percentiles)
// down through the 1/99, 0.1/99.9, 0.01/99.99 and 0.001/99.999 bands to 0
// (outside all of them).
func (d *Distribution) Score(size int) int {
	last := len(d.values) - 1
	for score := 5; score >= 1; score-- {
		if d.values[score-1] <= size && size <= d.values[last+1-score] {
			return score
		}
	}
	return 0
}

// PairScore scores the pairing of two alignments.  Alignments on different
// reference sequences score 0.
func (d *Distribution) PairScore(a, b *alignment.Record) int {
	if a.Ref != b.Ref {
		return 0
	}
	return d.Score(Size(a, b))
}

// Proper reports whether a pairing is good enough to be flagged as a proper
// pair.
func (d *Distribution) Proper(a, b *alignment.Record) bool {
	return d.PairScore(a, b) >= 3
}

// Log prints the distribution table.
func (d *Distribution) Log() {
	log.Printf("insert size distribution from %d pairs", d.n)
	log.Printf("percentile\tinsert size")
	for i, p := range Percentiles {
		log.Printf("%10.3f\t%d", p, d.values[i])
	}
}

// clean reports whether a uniquely aligned pair can contribute to the
// distribution: both mates ungapped, on the same sequence and on opposite
// strands.
func clean(a, b *alignment.Record) bool {
	return a.Ungapped() && b.Ungapped() && a.Ref == b.Ref && a.IsReverse() != b.IsReverse()
}

// Sample collects the insert sizes of cleanly and uniquely aligned pairs
// of set, dropping sizes above MaxInsertSize.
func Sample(set *alignment.Set) ([]int, error) {
	if !set.Paired {
		return nil, errors.E(errors.Precondition, "insert sizes need a paired alignment set")
	}
	var (
		sizes  []int
		unique int
	)
	for _, name := range set.Names() {
		k1, k2 := set.Mates(name)
		a, b := set.Placement(k1).Unique(), set.Placement(k2).Unique()
		if a == nil || b == nil {
			continue
		}
		unique++
		if !clean(a, b) {
			continue
		}
		if size := Size(a, b); size <= MaxInsertSize {
			sizes = append(sizes, size)
		}
	}
	log.Debug.Printf("insert size: %d uniquely aligned pairs, %d usable", unique, len(sizes))
	return sizes, nil
}

// Estimate builds the insert size distribution of set.  It fails when no
// pair qualifies.
func Estimate(set *alignment.Set) (*Distribution, error) {
	sizes, err := Sample(set)
	if err != nil {
		return nil, err
	}
	d, err := New(sizes)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("none of %d read pairs is cleanly aligned", len(set.Names())), err)
	}
	return d, nil
}
