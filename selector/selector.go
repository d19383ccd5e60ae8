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

// Package selector reduces every read of an alignment set to at most one
// alignment.  Three rounds run in order: pairings with implausible insert
// sizes are discarded, a reference Policy ranks the remaining candidates,
// and the leftover ties are broken by insert size or at random.
package selector

import (
	"fmt"
	"math/rand"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/insertsize"
)

// Slack is how far below the best pairing score a pairing may score and
// still keep its alignments in the insert size round.
const Slack = 2

// Stats counts the decisions of the final round.
type Stats struct {
	// InsertDecisions counts pairs whose tie was broken by a single best
	// insert size score.
	InsertDecisions int
	// RandomDecisions counts pairs chosen at random among equally scored
	// pairings.
	RandomDecisions int
}

// Selector runs the selection rounds over one alignment set.
type Selector struct {
	set    *alignment.Set
	dist   *insertsize.Distribution
	policy Policy
	rng    *rand.Rand
	Stats  Stats
}

// New creates a selector.  dist may be nil for an unpaired set.  rng is the
// only source of randomness; the same seed and input reproduce the same
// choices.
func New(set *alignment.Set, dist *insertsize.Distribution, policy Policy, rng *rand.Rand) *Selector {
	if policy == nil {
		policy = KeepAll
	}
	return &Selector{set: set, dist: dist, policy: policy, rng: rng}
}

func (s *Selector) paired() bool { return s.set.Paired && s.dist != nil }

// bestScore returns the highest insert size score over all pairings of a
// and b.
func (s *Selector) bestScore(a, b []*alignment.Record) int {
	best := 0
	for _, r1 := range a {
		for _, r2 := range b {
			if score := s.dist.PairScore(r1, r2); score > best {
				best = score
			}
		}
	}
	return best
}

// good returns the alignments of a that pair with some alignment of b with a
// score of at least min.
func (s *Selector) good(a, b []*alignment.Record, min int) []*alignment.Record {
	var out []*alignment.Record
	for _, r1 := range a {
		for _, r2 := range b {
			if s.dist.PairScore(r1, r2) >= min {
				out = append(out, r1)
				break
			}
		}
	}
	return out
}

// FilterByInsertSize discards, for every pair with at least one alignment
// per mate and three or more in total, the alignments that take part in no
// pairing scoring within Slack of the pair's best pairing.
func (s *Selector) FilterByInsertSize() {
	if !s.paired() {
		return
	}
	changed := 0
	for _, name := range s.set.Names() {
		k1, k2 := s.set.Mates(name)
		a, b := s.set.Placement(k1).Candidates(), s.set.Placement(k2).Candidates()
		if len(a) < 1 || len(b) < 1 || len(a)+len(b) < 3 {
			continue
		}
		min := s.bestScore(a, b) - Slack
		goodA, goodB := s.good(a, b, min), s.good(b, a, min)
		if len(goodA) != len(a) || len(goodB) != len(b) {
			changed++
		}
		s.set.SetPlacement(k1, alignment.NewPlacement(goodA))
		s.set.SetPlacement(k2, alignment.NewPlacement(goodB))
	}
	log.Debug.Printf("insert size round: %d pairs trimmed", changed)
}

// FilterByPolicy replaces the candidates of every ambiguous read with the
// policy's best ones.
func (s *Selector) FilterByPolicy() error {
	if err := s.policy.Prepare(s.set); err != nil {
		return err
	}
	for _, k := range s.set.Keys() {
		p := s.set.Placement(k)
		if p.Kind() != alignment.Ambiguous {
			continue
		}
		best, err := s.policy.Best(p.Candidates())
		if err != nil {
			return errors.E(fmt.Sprintf("read %v", k), err)
		}
		if len(best) == 0 {
			return errors.E(errors.Integrity, fmt.Sprintf("read %v: policy kept none of %d alignments", k, p.Len()))
		}
		s.set.SetPlacement(k, alignment.NewPlacement(best))
	}
	return nil
}

func (s *Selector) pick(recs []*alignment.Record) alignment.Placement {
	return alignment.NewPlacement([]*alignment.Record{recs[s.rng.Intn(len(recs))]})
}

// Resolve reduces every read to at most one alignment.  Pairs where only one
// mate is aligned, and ambiguous unpaired reads, get a random candidate.
// Pairs with candidates on both mates keep the best scoring pairing; ties
// are broken at random.
func (s *Selector) Resolve() error {
	if !s.paired() {
		for _, k := range s.set.Keys() {
			if p := s.set.Placement(k); p.Len() > 1 {
				s.set.SetPlacement(k, s.pick(p.Candidates()))
			}
		}
		return s.set.CheckResolved()
	}
	for _, name := range s.set.Names() {
		k1, k2 := s.set.Mates(name)
		a, b := s.set.Placement(k1).Candidates(), s.set.Placement(k2).Candidates()
		c1, c2 := len(a), len(b)
		switch {
		case c1 <= 1 && c2 <= 1:
		case c1 > 1 && c2 == 0:
			s.set.SetPlacement(k1, s.pick(a))
		case c2 > 1 && c1 == 0:
			s.set.SetPlacement(k2, s.pick(b))
		case c1 >= 1 && c2 >= 1 && c1+c2 >= 3:
			best := s.bestScore(a, b)
			var pairs [][2]*alignment.Record
			for _, r1 := range a {
				for _, r2 := range b {
					if s.dist.PairScore(r1, r2) == best {
						pairs = append(pairs, [2]*alignment.Record{r1, r2})
					}
				}
			}
			var chosen [2]*alignment.Record
			if len(pairs) == 1 {
				s.Stats.InsertDecisions++
				chosen = pairs[0]
			} else {
				s.Stats.RandomDecisions++
				chosen = pairs[s.rng.Intn(len(pairs))]
			}
			s.set.SetPlacement(k1, alignment.NewPlacement([]*alignment.Record{chosen[0]}))
			s.set.SetPlacement(k2, alignment.NewPlacement([]*alignment.Record{chosen[1]}))
		default:
			return errors.E(errors.Integrity,
				fmt.Sprintf("pair %s: unexpected alignment counts %d and %d", name, c1, c2))
		}
	}
	log.Printf("ties broken with insert size: %d", s.Stats.InsertDecisions)
	log.Printf("ties broken with random choice: %d", s.Stats.RandomDecisions)
	return s.set.CheckResolved()
}

// Run performs all three rounds, logging a summary after each.
func (s *Selector) Run() error {
	s.set.Summarize().Log("loaded")
	s.FilterByInsertSize()
	if s.paired() {
		s.set.Summarize().Log("after insert size filter")
	}
	if err := s.FilterByPolicy(); err != nil {
		return err
	}
	s.set.Summarize().Log("after reference filter")
	if err := s.Resolve(); err != nil {
		return err
	}
	s.set.Summarize().Log("resolved")
	return nil
}
