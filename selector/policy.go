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
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/polypolish/cigar"
	"github.com/grailbio/polypolish/encoding/fasta"
	"github.com/willf/bitset"
)

// Policy ranks the candidate alignments of an ambiguous read using the
// reference and the whole alignment set.
type Policy interface {
	// Prepare is called once, before any call to Best, with the set in its
	// current state.
	Prepare(set *alignment.Set) error
	// Best returns the best of cands.  Ties keep every tied alignment.
	Best(cands []*alignment.Record) ([]*alignment.Record, error)
}

type keepAll struct{}

func (keepAll) Prepare(*alignment.Set) error { return nil }

func (keepAll) Best(cands []*alignment.Record) ([]*alignment.Record, error) { return cands, nil }

// KeepAll is the policy that never discards a candidate.
var KeepAll Policy = keepAll{}

// Policy names accepted by ParsePolicy.
const (
	PolicyMask        = "mask"
	PolicyInformative = "informative"
	PolicyNone        = "none"
)

// ParsePolicy returns the named policy over the reference fa.
func ParsePolicy(name string, fa fasta.Fasta) (Policy, error) {
	switch name {
	case PolicyMask:
		return NewMaskPolicy(fa), nil
	case PolicyInformative:
		return NewInformativePolicy(fa), nil
	case PolicyNone:
		return KeepAll, nil
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("unknown selection policy %q", name))
}

// reference serves whole sequences of an assembly and the spans that
// alignments cover.
type reference struct {
	fa   fasta.Fasta
	mu   sync.Mutex
	seqs map[string]string
}

func newReference(fa fasta.Fasta) *reference {
	return &reference{fa: fa, seqs: map[string]string{}}
}

func (r *reference) seq(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.seqs[name]; ok {
		return s, nil
	}
	s, err := fasta.Seq(r.fa, name)
	if err != nil {
		return "", errors.E(errors.Precondition, fmt.Sprintf("reference sequence %s", name), err)
	}
	r.seqs[name] = s
	return s, nil
}

// span returns the reference bases covered by rec.
func (r *reference) span(rec *alignment.Record) (string, error) {
	s, err := r.seq(rec.Ref)
	if err != nil {
		return "", err
	}
	if rec.Pos < 0 {
		return "", errors.E(errors.Precondition, fmt.Sprintf("alignment %v has a negative position", rec))
	}
	if rec.End() > len(s) {
		return "", errors.E(errors.Precondition,
			fmt.Sprintf("alignment %v extends past the end of %s (length %d)", rec, rec.Ref, len(s)))
	}
	return s[rec.Pos:rec.End()], nil
}

// forward converts an offset in rec's read sequence, which is reverse
// complemented for reverse-strand alignments, to an offset in the read as
// sequenced.
func forward(rec *alignment.Record, off int) uint {
	if rec.IsReverse() {
		return uint(len(rec.Seq) - 1 - off)
	}
	return uint(off)
}

// errorOffsets returns the forward read offsets at which rec disagrees with
// the reference.
func (r *reference) errorOffsets(rec *alignment.Record) (*bitset.BitSet, error) {
	span, err := r.span(rec)
	if err != nil {
		return nil, err
	}
	offs, err := cigar.ReadErrorOffsets(rec.Cigar, rec.Seq, span)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("alignment %v", rec), err)
	}
	bs := bitset.New(uint(len(rec.Seq)))
	for _, off := range offs {
		bs.Set(forward(rec, off))
	}
	return bs, nil
}

// fewest returns the candidates with the lowest count.
func fewest(cands []*alignment.Record, count func(*alignment.Record) (int, error)) ([]*alignment.Record, error) {
	var (
		best []*alignment.Record
		min  = -1
	)
	for _, c := range cands {
		n, err := count(c)
		if err != nil {
			return nil, err
		}
		switch {
		case min < 0 || n < min:
			min, best = n, []*alignment.Record{c}
		case n == min:
			best = append(best, c)
		}
	}
	return best, nil
}
