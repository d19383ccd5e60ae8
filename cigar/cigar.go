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

// Package cigar maps CIGAR operations of end-to-end alignments onto read
// offsets and reference positions.
//
// For every reference position an alignment covers, BaseGroups yields the read
// bases aligned there: one base for a match, the base followed by the inserted
// bases when an insertion follows it, or Gap when the position is deleted from
// the read.  Clipping is rejected: only end-to-end alignments are accepted.
package cigar

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Gap is the base group emitted at a reference position deleted from the read.
const Gap = "-"

// Parse parses a CIGAR string.  "*" yields an empty Cigar.
func Parse(s string) (sam.Cigar, error) {
	c, err := sam.ParseCigar([]byte(s))
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid CIGAR %q", s), err)
	}
	return c, nil
}

// consumesRef reports whether op advances along the reference.
func consumesRef(t sam.CigarOpType) bool {
	switch t {
	case sam.CigarMatch, sam.CigarDeletion, sam.CigarSkipped, sam.CigarEqual, sam.CigarMismatch:
		return true
	}
	return false
}

// isMatch reports whether op aligns read bases to reference bases one to one.
func isMatch(t sam.CigarOpType) bool {
	return t == sam.CigarMatch || t == sam.CigarEqual || t == sam.CigarMismatch
}

// RefEnd returns the 0-based exclusive reference end of an alignment starting
// at start.  Only M/D/N/=/X lengths contribute.
func RefEnd(start int, c sam.Cigar) int {
	end := start
	for _, op := range c {
		if consumesRef(op.Type()) {
			end += op.Len()
		}
	}
	return end
}

// ReadLen returns the number of read bases consumed by c.
func ReadLen(c sam.Cigar) int {
	n := 0
	for _, op := range c {
		if op.Type().Consumes().Query > 0 {
			n += op.Len()
		}
	}
	return n
}

// StartsAndEndsWithMatch reports whether the first and last operations of c
// are alignment matches, i.e. the alignment is end-to-end.
func StartsAndEndsWithMatch(c sam.Cigar) bool {
	if len(c) == 0 {
		return false
	}
	return isMatch(c[0].Type()) && isMatch(c[len(c)-1].Type())
}

// Ungapped reports whether c is a single match operation.
func Ungapped(c sam.Cigar) bool {
	return len(c) == 1 && c[0].Type() == sam.CigarMatch
}

func clipError(c sam.Cigar) error {
	return errors.E(errors.Invalid, fmt.Sprintf("clipped alignment %v: only end-to-end alignments are accepted", c))
}

func lengthError(c sam.Cigar, consumed, seqLen int) error {
	return errors.E(errors.Integrity,
		fmt.Sprintf("CIGAR %v consumes %d read bases, but the read has %d", c, consumed, seqLen))
}

// BaseGroups returns, for each reference position covered by c, the read bases
// aligned to it.  An insertion extends the group of the preceding reference
// position; a deletion (or skip) contributes Gap.  If a deletion is directly
// followed by an insertion, the inserted bases replace the gap.
//
// The returned strings are substrings of seq.
func BaseGroups(c sam.Cigar, seq string) ([]string, error) {
	groups := make([]string, 0, RefEnd(0, c))
	i := 0         // read offset
	lastStart := 0 // read offset at which the last group starts
	for _, op := range c {
		n := op.Len()
		switch t := op.Type(); {
		case isMatch(t):
			if i+n > len(seq) {
				return nil, lengthError(c, ReadLen(c), len(seq))
			}
			for k := 0; k < n; k++ {
				groups = append(groups, seq[i:i+1])
				lastStart = i
				i++
			}
		case t == sam.CigarInsertion:
			if len(groups) == 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("CIGAR %v begins with an insertion", c))
			}
			if i+n > len(seq) {
				return nil, lengthError(c, ReadLen(c), len(seq))
			}
			groups[len(groups)-1] = seq[lastStart : i+n]
			i += n
		case t == sam.CigarDeletion || t == sam.CigarSkipped:
			for k := 0; k < n; k++ {
				groups = append(groups, Gap)
				lastStart = i
			}
		case t == sam.CigarSoftClipped || t == sam.CigarHardClipped:
			return nil, clipError(c)
		case t == sam.CigarPadded:
		default:
			return nil, errors.E(errors.Invalid, fmt.Sprintf("unsupported CIGAR operation in %v", c))
		}
	}
	if i != len(seq) {
		return nil, lengthError(c, i, len(seq))
	}
	return groups, nil
}

// TrimHomopolymerTail drops the trailing groups equal to the last group, then
// one more.  An alignment ending inside a homopolymer run can align cleanly
// where an indel belongs, so its last run is not trusted.
func TrimHomopolymerTail(groups []string) []string {
	n := len(groups)
	if n == 0 {
		return groups
	}
	last := groups[n-1]
	for n > 0 && groups[n-1] == last {
		n--
	}
	if n > 0 {
		n--
	}
	return groups[:n]
}
