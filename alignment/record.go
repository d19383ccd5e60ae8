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
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/polypolish/cigar"
	"github.com/grailbio/polypolish/util"
)

const (
	nmTag   = "NM:i:"
	failTag = "ZP:Z:fail"

	minFields = 11
)

// Record is one line of aligner output.  Geometry is fixed once parsed; only
// the sequence and quality of secondary records are filled in later, by
// Backfill, which produces a new Record.
type Record struct {
	Key   ReadKey
	QName string
	Flags sam.Flags
	Ref   string
	// Pos is the 0-based reference start.
	Pos   int
	MapQ  int
	Cigar sam.Cigar
	Seq   string
	Qual  string
	// NM is the edit distance reported by the aligner, or -1 when the record
	// carries no NM tag.
	NM int
	// Tags holds the optional fields, verbatim.
	Tags []string

	cigar  string
	rnext  string
	pnext  string
	tlen   string
	end    int
	failed bool
}

func parseInt(field, name string) (int, error) {
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("bad %s field %q", name, field), err)
	}
	return v, nil
}

// ParseRecord parses a SAM text line read from the alignment file of the
// given mate.
func ParseRecord(line string, mate Mate) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < minFields {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("expected at least %d tab-separated fields, found %d", minFields, len(fields)))
	}
	key, err := ParseReadKey(fields[0], mate)
	if err != nil {
		return nil, err
	}
	flags, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bad flag field %q", fields[1]), err)
	}
	pos, err := parseInt(fields[3], "position")
	if err != nil {
		return nil, err
	}
	switch {
	case pos < 0:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("negative position %d", pos))
	case pos == 0 && sam.Flags(flags)&sam.Unmapped == 0:
		return nil, errors.E(errors.Invalid, "aligned record has position 0")
	case pos > 0:
		pos--
	}
	mapq, err := parseInt(fields[4], "mapping quality")
	if err != nil {
		return nil, err
	}
	c, err := cigar.Parse(fields[5])
	if err != nil {
		return nil, err
	}
	r := &Record{
		Key:   key,
		QName: fields[0],
		Flags: sam.Flags(flags),
		Ref:   fields[2],
		Pos:   pos,
		MapQ:  mapq,
		Cigar: c,
		Seq:   strings.ToUpper(fields[9]),
		Qual:  fields[10],
		NM:    -1,
		cigar: fields[5],
		rnext: fields[6],
		pnext: fields[7],
		tlen:  fields[8],
	}
	if len(fields) > minFields {
		r.Tags = fields[minFields:]
	}
	for _, tag := range r.Tags {
		switch {
		case strings.HasPrefix(tag, nmTag):
			if r.NM, err = parseInt(tag[len(nmTag):], "NM tag"); err != nil {
				return nil, err
			}
		case strings.EqualFold(tag, failTag):
			r.failed = true
		}
	}
	r.end = cigar.RefEnd(pos, c)
	return r, nil
}

// HasFlag reports whether any of the bits in f are set.
func (r *Record) HasFlag(f sam.Flags) bool { return r.Flags&f != 0 }

// IsAligned reports whether the record places the read on the reference.
func (r *Record) IsAligned() bool { return !r.HasFlag(sam.Unmapped) }

// IsSecondary reports whether the record is a secondary alignment.
func (r *Record) IsSecondary() bool { return r.HasFlag(sam.Secondary) }

// IsSupplementary reports whether the record is a supplementary alignment.
func (r *Record) IsSupplementary() bool { return r.HasFlag(sam.Supplementary) }

// IsPrimary reports whether the record is neither secondary nor
// supplementary.
func (r *Record) IsPrimary() bool { return !r.HasFlag(sam.Secondary | sam.Supplementary) }

// IsReverse reports whether the read aligned to the reverse strand.
func (r *Record) IsReverse() bool { return r.HasFlag(sam.Reverse) }

// End returns the 0-based exclusive reference end.
func (r *Record) End() int { return r.end }

// PassedQC is false for records tagged ZP:Z:fail by the pair filter.
func (r *Record) PassedQC() bool { return !r.failed }

// StartsAndEndsWithMatch reports whether the alignment is end-to-end with a
// match operation at both ends.
func (r *Record) StartsAndEndsWithMatch() bool { return cigar.StartsAndEndsWithMatch(r.Cigar) }

// Ungapped reports whether the CIGAR is a single match operation.
func (r *Record) Ungapped() bool { return cigar.Ungapped(r.Cigar) }

// HasSequence is false when the aligner left SEQ as "*".
func (r *Record) HasSequence() bool { return r.Seq != "*" && r.Seq != "" }

// BaseGroups returns the read bases aligned at each reference position in
// [Pos, End).
func (r *Record) BaseGroups() ([]string, error) {
	g, err := cigar.BaseGroups(r.Cigar, r.Seq)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("read %v at %s:%d", r.Key, r.Ref, r.Pos+1), err)
	}
	return g, nil
}

// Correspondence maps read offsets to reference positions for this record.
func (r *Record) Correspondence() (*cigar.Correspondence, error) {
	return cigar.NewCorrespondence(r.Pos, r.Cigar, len(r.Seq))
}

// String returns the CIGAR placement in "ref:pos[+-] cigar" form, 1-based.
func (r *Record) String() string {
	if !r.IsAligned() {
		return r.Key.String() + " unaligned"
	}
	strand := "+"
	if r.IsReverse() {
		strand = "-"
	}
	return fmt.Sprintf("%v %s:%d%s %s", r.Key, r.Ref, r.Pos+1, strand, r.cigar)
}

// withSequence returns a copy of r carrying the given forward-strand read
// sequence and quality, oriented to r's strand.
func (r *Record) withSequence(fwdSeq, fwdQual string) *Record {
	c := *r
	c.Seq, c.Qual = fwdSeq, fwdQual
	if r.IsReverse() {
		c.Seq = util.ReverseComplement(fwdSeq)
		if fwdQual != "*" {
			c.Qual = util.Reverse(fwdQual)
		}
	}
	return &c
}

// forward returns the record's sequence and quality in the orientation of
// the read as sequenced.
func (r *Record) forward() (seq, qual string) {
	if !r.IsReverse() {
		return r.Seq, r.Qual
	}
	qual = r.Qual
	if qual != "*" {
		qual = util.Reverse(qual)
	}
	return util.ReverseComplement(r.Seq), qual
}
