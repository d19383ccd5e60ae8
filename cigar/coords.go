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

package cigar

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// Correspondence relates the read offsets and reference positions of one
// alignment.  Indels break the one-to-one mapping: an inserted read base maps
// to the two reference positions flanking the insertion, and a deleted
// reference position maps to the two read offsets flanking the deletion.
// Positions outside the alignment's own span are omitted.
type Correspondence struct {
	refStart  int
	readToRef [][]int
	refToRead [][]int
}

// NewCorrespondence builds the read/reference correspondence of an alignment
// starting at refStart.
func NewCorrespondence(refStart int, c sam.Cigar, readLen int) (*Correspondence, error) {
	refLen := RefEnd(0, c)
	m := &Correspondence{
		refStart:  refStart,
		readToRef: make([][]int, readLen),
		refToRead: make([][]int, refLen),
	}
	link := func(i, j int) {
		if i < 0 || i >= readLen || j < 0 || j >= refLen {
			return
		}
		m.readToRef[i] = append(m.readToRef[i], refStart+j)
		m.refToRead[j] = append(m.refToRead[j], i)
	}
	i, j := 0, 0
	for _, op := range c {
		n := op.Len()
		switch t := op.Type(); {
		case isMatch(t):
			for k := 0; k < n; k++ {
				link(i, j)
				i++
				j++
			}
		case t == sam.CigarInsertion:
			for k := 0; k < n; k++ {
				link(i, j-1)
				link(i, j)
				i++
			}
		case t == sam.CigarDeletion || t == sam.CigarSkipped:
			for k := 0; k < n; k++ {
				link(i-1, j)
				link(i, j)
				j++
			}
		case t == sam.CigarSoftClipped || t == sam.CigarHardClipped:
			return nil, clipError(c)
		case t == sam.CigarPadded:
		default:
			return nil, errors.E(errors.Invalid, fmt.Sprintf("unsupported CIGAR operation in %v", c))
		}
	}
	if i != readLen {
		return nil, lengthError(c, i, readLen)
	}
	return m, nil
}

// RefPositions returns the reference positions aligned to read offset i.
func (m *Correspondence) RefPositions(i int) []int {
	if i < 0 || i >= len(m.readToRef) {
		return nil
	}
	return m.readToRef[i]
}

// ReadOffsets returns the read offsets aligned to reference position pos.
func (m *Correspondence) ReadOffsets(pos int) []int {
	j := pos - m.refStart
	if j < 0 || j >= len(m.refToRead) {
		return nil
	}
	return m.refToRead[j]
}

// ReadErrorOffsets returns the sorted read offsets at which the read disagrees
// with the reference: mismatched bases, inserted bases, and the two bases
// flanking each deletion.  ref must hold the reference bases of the
// alignment's span.
func ReadErrorOffsets(c sam.Cigar, seq, ref string) ([]int, error) {
	if RefEnd(0, c) != len(ref) {
		return nil, errors.E(errors.Integrity,
			fmt.Sprintf("CIGAR %v spans %d reference bases, but %d were given", c, RefEnd(0, c), len(ref)))
	}
	bad := make([]bool, len(seq))
	mark := func(i int) {
		if i >= 0 && i < len(bad) {
			bad[i] = true
		}
	}
	i, j := 0, 0
	for _, op := range c {
		n := op.Len()
		switch t := op.Type(); {
		case isMatch(t):
			if i+n > len(seq) {
				return nil, lengthError(c, ReadLen(c), len(seq))
			}
			for k := 0; k < n; k++ {
				if seq[i] != ref[j] {
					mark(i)
				}
				i++
				j++
			}
		case t == sam.CigarInsertion:
			for k := 0; k < n; k++ {
				mark(i)
				i++
			}
		case t == sam.CigarDeletion || t == sam.CigarSkipped:
			mark(i - 1)
			mark(i)
			j += n
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
	var offsets []int
	for i, b := range bad {
		if b {
			offsets = append(offsets, i)
		}
	}
	return offsets, nil
}
