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

// Kind classifies how many usable alignments a read has.
type Kind uint8

const (
	// Unaligned reads have no usable alignment.
	Unaligned Kind = iota
	// Unique reads have exactly one alignment.
	Unique
	// Ambiguous reads have two or more candidate alignments.
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Unaligned:
		return "unaligned"
	case Unique:
		return "unique"
	}
	return "ambiguous"
}

// Placement is the set of candidate alignments of one read.  The zero value
// is Unaligned.
type Placement struct {
	recs []*Record
}

// NewPlacement wraps recs.  The slice is owned by the placement.
func NewPlacement(recs []*Record) Placement {
	if len(recs) == 0 {
		return Placement{}
	}
	return Placement{recs: recs}
}

// Kind returns the placement kind.
func (p Placement) Kind() Kind {
	switch len(p.recs) {
	case 0:
		return Unaligned
	case 1:
		return Unique
	}
	return Ambiguous
}

// Len returns the number of candidate alignments.
func (p Placement) Len() int { return len(p.recs) }

// Unique returns the single alignment of a Unique placement, and nil
// otherwise.
func (p Placement) Unique() *Record {
	if len(p.recs) != 1 {
		return nil
	}
	return p.recs[0]
}

// Candidates returns the candidate alignments.  Callers must not modify the
// returned slice.
func (p Placement) Candidates() []*Record { return p.recs }

// Keep returns the placement restricted to the candidates for which keep
// returns true, preserving order.
func (p Placement) Keep(keep func(*Record) bool) Placement {
	var out []*Record
	for _, r := range p.recs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return NewPlacement(out)
}
