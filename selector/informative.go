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

package selector

import (
	"math"
	"sort"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/encoding/fasta"
	"github.com/willf/bitset"
	"gonum.org/v1/gonum/stat"
)

// InformativeDepthDivisor sets the ambiguity threshold of the informative
// policy: a repetitive position is informative when its second most common
// base group is seen at least mean-depth/InformativeDepthDivisor times.
const InformativeDepthDivisor = 10

type informativePolicy struct {
	ref         *reference
	informative map[string]*bitset.BitSet
}

// NewInformativePolicy returns a policy that finds informative positions in
// the repetitive parts of the reference, those covered by alignments of
// ambiguous reads where the pileup shows real disagreement, and prefers the
// candidates with the fewest read errors at the read bases aligned to them.
func NewInformativePolicy(fa fasta.Fasta) Policy {
	return &informativePolicy{ref: newReference(fa)}
}

// secondBest returns the second highest count.
func secondBest(counts map[string]int) int {
	if len(counts) < 2 {
		return 0
	}
	c := make([]int, 0, len(counts))
	for _, n := range counts {
		c = append(c, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(c)))
	return c[1]
}

func (p *informativePolicy) Prepare(set *alignment.Set) error {
	repetitive := map[string]*bitset.BitSet{}
	err := set.Each(func(read *alignment.Read) error {
		if read.Kind() != alignment.Ambiguous {
			return nil
		}
		for _, c := range read.Candidates() {
			ref, err := p.ref.seq(c.Ref)
			if err != nil {
				return err
			}
			if _, err = p.ref.span(c); err != nil {
				return err
			}
			bs := repetitive[c.Ref]
			if bs == nil {
				bs = bitset.New(uint(len(ref)))
				repetitive[c.Ref] = bs
			}
			for pos := c.Pos; pos < c.End(); pos++ {
				bs.Set(uint(pos))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var (
		depth  = map[string]map[int]int{}
		pileup = map[string]map[int]map[string]int{}
	)
	err = set.Each(func(read *alignment.Read) error {
		for _, c := range read.Candidates() {
			if _, err := p.ref.span(c); err != nil {
				return err
			}
			groups, err := c.BaseGroups()
			if err != nil {
				return err
			}
			rep := repetitive[c.Ref]
			for i, g := range groups {
				if strings.Contains(g, "N") {
					continue
				}
				pos := c.Pos + i
				if rep == nil || !rep.Test(uint(pos)) {
					if depth[c.Ref] == nil {
						depth[c.Ref] = map[int]int{}
					}
					depth[c.Ref][pos]++
					continue
				}
				if pileup[c.Ref] == nil {
					pileup[c.Ref] = map[int]map[string]int{}
				}
				if pileup[c.Ref][pos] == nil {
					pileup[c.Ref][pos] = map[string]int{}
				}
				pileup[c.Ref][pos][g]++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.informative = map[string]*bitset.BitSet{}
	for name, rep := range repetitive {
		var depths []float64
		for _, d := range depth[name] {
			depths = append(depths, float64(d))
		}
		var mean float64
		if len(depths) > 0 {
			mean = stat.Mean(depths, nil)
		}
		threshold := int(math.Ceil(mean / InformativeDepthDivisor))
		if threshold < 1 {
			threshold = 1
		}
		bs := bitset.New(rep.Len())
		for pos, counts := range pileup[name] {
			if secondBest(counts) >= threshold {
				bs.Set(uint(pos))
			}
		}
		p.informative[name] = bs
		log.Debug.Printf("%s: %d repetitive positions, mean non-repeat depth %.1f, threshold %d, %d informative",
			name, rep.Count(), mean, threshold, bs.Count())
	}
	return nil
}

// Best keeps the candidates with the fewest read errors at read offsets
// aligned to an informative position by any candidate.
func (p *informativePolicy) Best(cands []*alignment.Record) ([]*alignment.Record, error) {
	var informative *bitset.BitSet
	for _, c := range cands {
		if informative == nil {
			informative = bitset.New(uint(len(c.Seq)))
		}
		info := p.informative[c.Ref]
		if info == nil {
			continue
		}
		corr, err := c.Correspondence()
		if err != nil {
			return nil, err
		}
		for pos := c.Pos; pos < c.End(); pos++ {
			if !info.Test(uint(pos)) {
				continue
			}
			for _, off := range corr.ReadOffsets(pos) {
				informative.Set(forward(c, off))
			}
		}
	}
	return fewest(cands, func(c *alignment.Record) (int, error) {
		errs, err := p.ref.errorOffsets(c)
		if err != nil {
			return 0, err
		}
		return int(errs.IntersectionCardinality(informative)), nil
	})
}
