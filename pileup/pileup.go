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
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/cigar"
	"github.com/grailbio/polypolish/encoding/fasta"
)

// Column holds the base groups observed at one reference position.
type Column struct {
	counts [NBase]int
	other  map[string]int
	// Depth is the sum of the weights of the contributing alignments.
	Depth float64
}

func (c *Column) add(group string, weight float64) {
	if e := baseEnum(group); e != BaseX {
		c.counts[e]++
	} else {
		if c.other == nil {
			c.other = make(map[string]int)
		}
		c.other[group]++
	}
	c.Depth += weight
}

// Count returns the number of alignments that reported group here.
func (c *Column) Count(group string) int {
	if e := baseEnum(group); e != BaseX {
		return c.counts[e]
	}
	return c.other[group]
}

// Each calls fn for every group with a nonzero count.  Single bases are
// visited first, in ACGT order.
func (c *Column) Each(fn func(group string, count int)) {
	for e := BaseA; e < BaseX; e++ {
		if n := c.counts[e]; n > 0 {
			fn(string(EnumToASCIITable[e]), n)
		}
	}
	for g, n := range c.other {
		fn(g, n)
	}
}

// CountString renders the column as "Ax8,Tx2": one "<group>x<count>" entry
// per observed group, sorted lexically.
func (c *Column) CountString() string {
	var entries []string
	c.Each(func(g string, n int) {
		entries = append(entries, fmt.Sprintf("%sx%d", g, n))
	})
	sort.Strings(entries)
	return strings.Join(entries, ",")
}

// Pileup accumulates aligned base groups over one reference sequence.
type Pileup struct {
	// Name is the reference sequence name.
	Name string
	// Seq is the reference sequence.
	Seq  string
	cols []Column
}

// New creates an empty pileup over seq.
func New(name, seq string) *Pileup {
	return &Pileup{Name: name, Seq: seq, cols: make([]Column, len(seq))}
}

// Len is the reference length.
func (p *Pileup) Len() int { return len(p.cols) }

// Column returns the column at 0-based pos.
func (p *Pileup) Column(pos int) *Column { return &p.cols[pos] }

// Add adds one alignment of rec with the given weight.  The trailing
// homopolymer groups of the alignment are dropped first.
func (p *Pileup) Add(rec *alignment.Record, weight float64) error {
	if rec.Ref != p.Name {
		return errors.E(errors.Precondition, fmt.Sprintf("alignment %v is not on %s", rec, p.Name))
	}
	groups, err := rec.BaseGroups()
	if err != nil {
		return err
	}
	if rec.Pos < 0 || rec.Pos+len(groups) > len(p.cols) {
		return errors.E(errors.Precondition,
			fmt.Sprintf("alignment %v extends past the end of %s (length %d)", rec, p.Name, len(p.cols)))
	}
	for i, g := range cigar.TrimHomopolymerTail(groups) {
		p.cols[rec.Pos+i].add(g, weight)
	}
	return nil
}

// Build piles up every surviving alignment in set against the sequences in
// fa.  A read with N candidate alignments adds each with weight 1/N.  With
// opts.Careful, reads that still have more than one alignment are skipped.
// The result follows the order of fa.SeqNames().
func Build(set *alignment.Set, fa fasta.Fasta, opts Opts) ([]*Pileup, error) {
	names := fa.SeqNames()
	var (
		piles  = make([]*Pileup, len(names))
		byName = make(map[string]*Pileup, len(names))
	)
	for i, name := range names {
		seq, err := fasta.Seq(fa, name)
		if err != nil {
			return nil, err
		}
		piles[i] = New(name, seq)
		byName[name] = piles[i]
	}
	var skipped int
	err := set.Each(func(r *alignment.Read) error {
		cands := r.Candidates()
		if len(cands) == 0 {
			return nil
		}
		if opts.Careful && len(cands) > 1 {
			skipped++
			return nil
		}
		weight := 1 / float64(len(cands))
		for _, rec := range cands {
			p, ok := byName[rec.Ref]
			if !ok {
				return errors.E(errors.Precondition,
					fmt.Sprintf("alignment %v: reference %q is not in the assembly", rec, rec.Ref))
			}
			if err := p.Add(rec, weight); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Careful {
		log.Printf("careful: skipped %d reads with multiple alignments", skipped)
	}
	return piles, nil
}
