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
	"github.com/grailbio/base/log"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/cigar"
	"github.com/grailbio/polypolish/encoding/fasta"
	"github.com/willf/bitset"
)

// MinMatchFraction is the fraction of alignments that must agree with the
// reference base for a position to stay unmasked.
const MinMatchFraction = 0.5

type maskPolicy struct {
	ref    *reference
	masked map[string]*bitset.BitSet
}

// NewMaskPolicy returns a policy that masks the reference positions where
// most alignments disagree with the assembly, and prefers the candidates
// with the fewest disagreements at the remaining positions.
//
// Each alignment adds 1/N depth to the positions it covers, where N is the
// number of candidates of its read.  A position is masked when fewer than
// MinMatchFraction of its depth is made up of alignments matching the
// reference base.  Read bases that disagree with the reference at every
// candidate of a read are taken to be read errors and are not counted as
// matches anywhere.
func NewMaskPolicy(fa fasta.Fasta) Policy {
	return &maskPolicy{ref: newReference(fa)}
}

type maskCounts struct {
	depth []float64
	match []int
}

// readMask returns the forward read offsets that are errors in every
// candidate, or nil if there are none.
func (p *maskPolicy) readMask(cands []*alignment.Record) (*bitset.BitSet, error) {
	var mask *bitset.BitSet
	for _, c := range cands {
		errs, err := p.ref.errorOffsets(c)
		if err != nil {
			return nil, err
		}
		if mask == nil {
			mask = errs
		} else {
			mask.InPlaceIntersection(errs)
		}
	}
	if mask == nil || !mask.Any() {
		return nil, nil
	}
	return mask, nil
}

func (p *maskPolicy) Prepare(set *alignment.Set) error {
	counts := map[string]*maskCounts{}
	var maskedReadBases uint
	err := set.Each(func(read *alignment.Read) error {
		cands := read.Candidates()
		if len(cands) == 0 {
			return nil
		}
		var (
			mask *bitset.BitSet
			err  error
		)
		if len(cands) > 1 {
			if mask, err = p.readMask(cands); err != nil {
				return err
			}
			if mask != nil {
				maskedReadBases += mask.Count()
			}
		}
		w := 1 / float64(len(cands))
		for _, c := range cands {
			ref, err := p.ref.seq(c.Ref)
			if err != nil {
				return err
			}
			if _, err = p.ref.span(c); err != nil {
				return err
			}
			mc := counts[c.Ref]
			if mc == nil {
				mc = &maskCounts{depth: make([]float64, len(ref)), match: make([]int, len(ref))}
				counts[c.Ref] = mc
			}
			groups, err := c.BaseGroups()
			if err != nil {
				return err
			}
			var corr *cigar.Correspondence
			if mask != nil {
				if corr, err = c.Correspondence(); err != nil {
					return err
				}
			}
			for i, g := range groups {
				pos := c.Pos + i
				mc.depth[pos] += w
				if g != ref[pos:pos+1] || (corr != nil && anyMasked(c, corr.ReadOffsets(pos), mask)) {
					continue
				}
				mc.match[pos]++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.masked = map[string]*bitset.BitSet{}
	for name, mc := range counts {
		bs := bitset.New(uint(len(mc.depth)))
		for pos, d := range mc.depth {
			if d > 0 && float64(mc.match[pos])/d < MinMatchFraction {
				bs.Set(uint(pos))
			}
		}
		p.masked[name] = bs
		log.Debug.Printf("%s: %d of %d positions masked", name, bs.Count(), len(mc.depth))
	}
	log.Debug.Printf("masked %d read bases in ambiguous reads", maskedReadBases)
	return nil
}

func anyMasked(rec *alignment.Record, offs []int, mask *bitset.BitSet) bool {
	for _, off := range offs {
		if mask.Test(forward(rec, off)) {
			return true
		}
	}
	return false
}

// Best keeps the candidates with the fewest disagreements with the reference
// at unmasked positions.
func (p *maskPolicy) Best(cands []*alignment.Record) ([]*alignment.Record, error) {
	return fewest(cands, func(c *alignment.Record) (int, error) {
		span, err := p.ref.span(c)
		if err != nil {
			return 0, err
		}
		groups, err := c.BaseGroups()
		if err != nil {
			return 0, err
		}
		masked := p.masked[c.Ref]
		n := 0
		for i, g := range groups {
			if g != span[i:i+1] && (masked == nil || !masked.Test(uint(c.Pos+i))) {
				n++
			}
		}
		return n, nil
	})
}
