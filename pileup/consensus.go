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
	"math"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/polypolish/cigar"
)

// Opts controls consensus calling.
type Opts struct {
	// MinDepth is the smallest weighted depth a position needs before it can
	// change, and the smallest count a base group needs to be adopted.
	MinDepth int
	// MinFraction is the fraction of the position's depth a base group needs
	// to be adopted.
	MinFraction float64
	// FractionInvalid, when positive, makes a position too_close if a second
	// group reaches this fraction of the depth next to the single valid one.
	// Only groups observed at the position are compared; an unobserved base
	// never counts as close, even when the fraction rounds down to zero.
	FractionInvalid float64
	// Careful ignores reads with more than one alignment.
	Careful bool
	// Parallelism bounds the number of sequences polished at once.  0 means
	// runtime.NumCPU().
	Parallelism int
}

// DefaultOpts are the default consensus options.
var DefaultOpts = Opts{
	MinDepth:    5,
	MinFraction: 0.5,
}

// Validate checks that the options are in range.
func (o Opts) Validate() error {
	switch {
	case o.MinDepth < 0:
		return errors.E(errors.Invalid, "min depth must be non-negative")
	case o.MinFraction < 0 || o.MinFraction > 1:
		return errors.E(errors.Invalid, "min fraction must be in [0, 1]")
	case o.FractionInvalid < 0 || o.FractionInvalid > 1:
		return errors.E(errors.Invalid, "invalid fraction must be in [0, 1]")
	case o.FractionInvalid > 0 && o.FractionInvalid >= o.MinFraction:
		return errors.E(errors.Invalid, "invalid fraction must be below min fraction")
	case o.Parallelism < 0:
		return errors.E(errors.Invalid, "parallelism must be non-negative")
	}
	return nil
}

// Status describes the decision made at one position.
type Status uint8

const (
	// Kept means the only valid group is the reference base.
	Kept Status = iota
	// Changed means the only valid group differs from the reference base.
	Changed
	// None means no group reached the threshold.
	None
	// Multiple means more than one group reached the threshold.
	Multiple
	// TooClose means a single group reached the threshold but another came
	// within FractionInvalid of the depth.
	TooClose
	// LowDepth means the weighted depth is below MinDepth.
	LowDepth
)

var statusNames = [...]string{"kept", "changed", "none", "multiple", "too_close", "low_depth"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Threshold returns round(fraction*depth), rounding halves to even.
func Threshold(depth, fraction float64) int {
	return int(math.RoundToEven(depth * fraction))
}

// Call is the consensus decision at one position.
type Call struct {
	Pos int
	// Base is the reference base.
	Base string
	// Depth is the weighted depth.
	Depth float64
	// Threshold is the count a group needed to be valid.
	Threshold int
	Status    Status
	// Group is the chosen base group; for a deletion it is cigar.Gap.
	Group string
}

// Call decides the consensus at 0-based pos. The reference base is kept
// whenever the status is not Changed.
func (p *Pileup) Call(pos int, opts Opts) Call {
	col := &p.cols[pos]
	c := Call{
		Pos:       pos,
		Base:      p.Seq[pos : pos+1],
		Depth:     col.Depth,
		Threshold: Threshold(col.Depth, opts.MinFraction),
	}
	if c.Threshold < opts.MinDepth {
		c.Threshold = opts.MinDepth
	}
	c.Group = c.Base
	if col.Depth < float64(opts.MinDepth) {
		c.Status = LowDepth
		return c
	}
	invalid := Threshold(col.Depth, opts.FractionInvalid)
	var (
		valid     []string
		closeSeen bool
	)
	col.Each(func(g string, n int) {
		switch {
		case n >= c.Threshold:
			valid = append(valid, g)
		case opts.FractionInvalid > 0 && n >= invalid:
			closeSeen = true
		}
	})
	switch {
	case len(valid) == 0:
		c.Status = None
	case len(valid) > 1:
		c.Status = Multiple
	case closeSeen:
		c.Status = TooClose
	case valid[0] == c.Base:
		c.Status = Kept
	default:
		c.Status = Changed
		c.Group = valid[0]
	}
	return c
}

// Bases returns the bases the call contributes to the polished sequence.
func (c Call) Bases() string {
	return strings.Replace(c.Group, cigar.Gap, "", -1)
}
