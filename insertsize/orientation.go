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

package insertsize

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/polypolish/alignment"
)

// Orientation is the relative placement of the two mates of a pair, read
// from each mate's 5' end: "fr" means the upstream mate is forward and the
// downstream one reverse.
type Orientation uint8

const (
	RR Orientation = iota
	RF
	FR
	FF
	// Auto asks FindThresholds to use the most common orientation.
	Auto
)

var orientationNames = [...]string{"rr", "rf", "fr", "ff", "auto"}

// classes lists the concrete orientations in reporting order.
var classes = []Orientation{FR, RF, FF, RR}

func (o Orientation) String() string {
	if int(o) < len(orientationNames) {
		return orientationNames[o]
	}
	return fmt.Sprintf("Orientation(%d)", o)
}

// ParseOrientation parses "fr", "rf", "ff", "rr" or "auto".
func ParseOrientation(s string) (Orientation, error) {
	for i, n := range orientationNames {
		if n == s {
			return Orientation(i), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("invalid orientation %q", s))
}

// fivePrime returns the reference position of the 5' end of an alignment.
func fivePrime(r *alignment.Record) int {
	if r.IsReverse() {
		return r.End()
	}
	return r.Pos
}

// Classify returns the orientation of a pairing.  The result does not
// depend on which alignment is passed first unless both 5' ends coincide.
func Classify(a, b *alignment.Record) Orientation {
	var code uint8
	if !a.IsReverse() {
		code |= 2
	}
	if !b.IsReverse() {
		code |= 1
	}
	if fivePrime(a) >= fivePrime(b) {
		code ^= 3
	}
	return Orientation(code)
}

// Thresholds bounds the insert sizes of good pairs.
type Thresholds struct {
	Low, High   int
	Orientation Orientation
}

// Accepts reports whether a pairing is on one sequence, in the expected
// orientation and within the size bounds.
func (t Thresholds) Accepts(a, b *alignment.Record) bool {
	if a.Ref != b.Ref || Classify(a, b) != t.Orientation {
		return false
	}
	size := Size(a, b)
	return t.Low <= size && size <= t.High
}

// pickOrientation returns the orientation with the most pairs.  A tie for
// the maximum is an error.
func pickOrientation(sizes map[Orientation][]int) (Orientation, error) {
	best, n, ties := Auto, -1, 0
	for _, o := range classes {
		switch c := len(sizes[o]); {
		case c > n:
			best, n, ties = o, c, 1
		case c == n:
			ties++
		}
	}
	if ties > 1 {
		return Auto, errors.E(errors.Precondition, "could not determine read pair orientation automatically")
	}
	return best, nil
}

// FindThresholds classifies the same-sequence, uniquely aligned pairs of
// set by orientation, picks the expected orientation (orient, or the most
// common one for Auto) and returns the insert sizes at the low and high
// percentiles of that class.
func FindThresholds(set *alignment.Set, orient Orientation, low, high float64) (Thresholds, error) {
	if !set.Paired {
		return Thresholds{}, errors.E(errors.Precondition, "insert size thresholds need a paired alignment set")
	}
	sizes := map[Orientation][]int{}
	for _, name := range set.Names() {
		k1, k2 := set.Mates(name)
		a, b := set.Placement(k1).Unique(), set.Placement(k2).Unique()
		if a == nil || b == nil || a.Ref != b.Ref {
			continue
		}
		o := Classify(a, b)
		sizes[o] = append(sizes[o], Size(a, b))
	}
	for _, o := range classes {
		log.Printf("%v: %d pairs", o, len(sizes[o]))
	}
	if orient == Auto {
		var err error
		if orient, err = pickOrientation(sizes); err != nil {
			return Thresholds{}, err
		}
		log.Printf("automatically determined orientation: %v", orient)
	}
	s := sizes[orient]
	if len(s) == 0 {
		return Thresholds{}, errors.E(errors.Precondition,
			fmt.Sprintf("no %v read pairs to determine insert size thresholds", orient))
	}
	sort.Ints(s)
	t := Thresholds{Low: Percentile(s, low), High: Percentile(s, high), Orientation: orient}
	log.Printf("insert size thresholds: low %d (percentile %v), high %d (percentile %v)", t.Low, low, t.High, high)
	return t, nil
}
