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

package alignment

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Read is one sequenced read and its candidate alignments.
type Read struct {
	Key ReadKey
	// Seq and Qual are in the orientation the read was sequenced in.
	Seq  string
	Qual string
	Placement
}

// Set maps every read of a run to its candidate alignments.
type Set struct {
	// Paired is true when the set was loaded from two mate files.
	Paired bool
	// Headers holds the SAM header lines of each input file.
	Headers map[Mate][]string

	reads map[ReadKey]*Read
	names []string
}

// NewSet returns an empty set.
func NewSet(paired bool) *Set {
	return &Set{
		Paired:  paired,
		Headers: map[Mate][]string{},
		reads:   map[ReadKey]*Read{},
	}
}

// Add inserts r.  It is an error to add the same key twice.
func (s *Set) Add(r *Read) error {
	if _, ok := s.reads[r.Key]; ok {
		return errors.E(errors.Precondition, fmt.Sprintf("read %v added twice", r.Key))
	}
	s.reads[r.Key] = r
	s.names = nil
	return nil
}

// Get returns the read with the given key, or nil.
func (s *Set) Get(k ReadKey) *Read { return s.reads[k] }

// Placement returns the candidate alignments of k.  Unknown keys are
// Unaligned.
func (s *Set) Placement(k ReadKey) Placement {
	if r := s.reads[k]; r != nil {
		return r.Placement
	}
	return Placement{}
}

// SetPlacement replaces the candidates of an existing read.
func (s *Set) SetPlacement(k ReadKey, p Placement) {
	s.reads[k].Placement = p
}

// Len returns the number of reads.
func (s *Set) Len() int { return len(s.reads) }

// Names returns the sorted template names in the set.
func (s *Set) Names() []string {
	if s.names == nil {
		seen := map[string]bool{}
		names := make([]string, 0, len(s.reads))
		for k := range s.reads {
			if !seen[k.Name] {
				seen[k.Name] = true
				names = append(names, k.Name)
			}
		}
		sort.Strings(names)
		s.names = names
	}
	return s.names
}

// Keys returns every read key, sorted by name and mate.
func (s *Set) Keys() []ReadKey {
	keys := make([]ReadKey, 0, len(s.reads))
	for k := range s.reads {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Mates returns the keys of both mates of the named template.  Unpaired sets
// return the single unpaired key twice.
func (s *Set) Mates(name string) (ReadKey, ReadKey) {
	if !s.Paired {
		k := ReadKey{Name: name}
		return k, k
	}
	return ReadKey{Name: name, Mate: Mate1}, ReadKey{Name: name, Mate: Mate2}
}

// Each calls fn for every read in key order.
func (s *Set) Each(fn func(*Read) error) error {
	for _, k := range s.Keys() {
		if err := fn(s.reads[k]); err != nil {
			return err
		}
	}
	return nil
}

// CheckResolved verifies that no read has more than one candidate.
func (s *Set) CheckResolved() error {
	for _, k := range s.Keys() {
		if n := s.reads[k].Len(); n > 1 {
			return errors.E(errors.Integrity,
				fmt.Sprintf("read %v has %d alignments after resolution", k, n))
		}
	}
	return nil
}

// Summary counts reads and pairs by placement kind.
type Summary struct {
	Reads   [3]int
	Records int
	// Pair counts are only filled for paired sets.  Incomplete pairs have at
	// least one unaligned mate; unique pairs have one alignment per mate.
	IncompletePairs, UniquePairs, MultiPairs int
}

// Summarize computes the Summary of s.
func (s *Set) Summarize() Summary {
	var sum Summary
	for _, r := range s.reads {
		sum.Reads[r.Kind()]++
		sum.Records += r.Len()
	}
	if !s.Paired {
		return sum
	}
	for _, name := range s.Names() {
		k1, k2 := s.Mates(name)
		p1, p2 := s.Placement(k1), s.Placement(k2)
		switch {
		case p1.Kind() == Unaligned || p2.Kind() == Unaligned:
			sum.IncompletePairs++
		case p1.Kind() == Unique && p2.Kind() == Unique:
			sum.UniquePairs++
		default:
			sum.MultiPairs++
		}
	}
	return sum
}

// Log prints the summary.
func (sum Summary) Log(stage string) {
	log.Printf("%s: %d alignments; reads unaligned %d, unique %d, ambiguous %d",
		stage, sum.Records, sum.Reads[Unaligned], sum.Reads[Unique], sum.Reads[Ambiguous])
	if sum.IncompletePairs+sum.UniquePairs+sum.MultiPairs > 0 {
		log.Printf("%s: pairs incomplete %d, unique %d, multi %d",
			stage, sum.IncompletePairs, sum.UniquePairs, sum.MultiPairs)
	}
}
