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
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/polypolish/util"
)

// Resolved is the final form of one read after selection: its single
// alignment (nil when unaligned), its mate's, and the rebuilt flags.
type Resolved struct {
	Key   ReadKey
	Rec   *Record
	Mate  *Record
	Flags sam.Flags
	Seq   string
	Qual  string
}

// Resolve converts a fully resolved set into Resolved reads, in key order.
// proper reports whether two aligned mates form a proper pair.
func Resolve(set *Set, proper func(a, b *Record) bool) ([]*Resolved, error) {
	if err := set.CheckResolved(); err != nil {
		return nil, err
	}
	keys := set.Keys()
	out := make([]*Resolved, 0, len(keys))
	for _, k := range keys {
		read := set.Get(k)
		res := &Resolved{Key: k, Rec: read.Unique(), Seq: read.Seq, Qual: read.Qual}
		if set.Paired {
			res.Mate = set.Placement(ReadKey{Name: k.Name, Mate: k.Mate.Other()}).Unique()
		}
		isProper := res.Rec != nil && res.Mate != nil && proper(res.Rec, res.Mate)
		res.Flags = FinalFlags(k.Mate, res.Rec, res.Mate, isProper)
		out = append(out, res)
	}
	return out, nil
}

// templateLen returns the signed observed template length of two aligned
// mates on the same reference: positive for the leftmost mate.
func templateLen(rec, mate *Record) int {
	start, end := rec.Pos, rec.End()
	if mate.Pos < start {
		start = mate.Pos
	}
	if mate.End() > end {
		end = mate.End()
	}
	n := end - start
	if rec.Pos > mate.Pos || (rec.Pos == mate.Pos && rec.IsReverse()) {
		n = -n
	}
	return n
}

// Line renders the read as a SAM text line.  Unaligned reads with an aligned
// mate are placed at the mate's position.
func (r *Resolved) Line() string {
	var (
		qname        = r.Key.Name
		ref          = "*"
		pos, mapq    = 0, 0
		cig          = "*"
		rnext, pnext = "*", 0
		tlen         = 0
		seq, qual    = r.Seq, r.Qual
		tags         []string
	)
	if r.Rec != nil {
		ref, pos, mapq, cig = r.Rec.Ref, r.Rec.Pos+1, r.Rec.MapQ, r.Rec.cigar
		seq, qual, tags = r.Rec.Seq, r.Rec.Qual, r.Rec.Tags
	}
	if r.Mate != nil {
		pnext = r.Mate.Pos + 1
		switch {
		case r.Rec == nil:
			ref, pos, rnext = r.Mate.Ref, r.Mate.Pos+1, "="
		case r.Rec.Ref == r.Mate.Ref:
			rnext, tlen = "=", templateLen(r.Rec, r.Mate)
		default:
			rnext = r.Mate.Ref
		}
	} else if r.Rec != nil && r.Flags&sam.Paired != 0 {
		// The unaligned mate is placed here.
		rnext, pnext = "=", r.Rec.Pos+1
	}
	if seq == "" {
		seq = "*"
	}
	if qual == "" {
		qual = "*"
	}
	fields := []string{
		qname, strconv.Itoa(int(r.Flags)), ref, strconv.Itoa(pos), strconv.Itoa(mapq), cig,
		rnext, strconv.Itoa(pnext), strconv.Itoa(tlen), seq, qual,
	}
	fields = append(fields, tags...)
	return strings.Join(fields, "\t")
}

// WriteSAM writes headers followed by the lines of reads to path, gzip
// compressed when path ends in ".gz".
func WriteSAM(ctx context.Context, path string, headers []string, reads []*Resolved) error {
	return util.WriteFile(ctx, path, func(w io.Writer) error {
		for _, h := range headers {
			if _, err := fmt.Fprintln(w, h); err != nil {
				return err
			}
		}
		for _, r := range reads {
			if _, err := fmt.Fprintln(w, r.Line()); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteResolved writes the resolved reads of each mate to the corresponding
// path: one path for an unpaired set, two (mate 1, mate 2) for a paired one.
func WriteResolved(ctx context.Context, set *Set, reads []*Resolved, paths []string) error {
	mates := []Mate{Unpaired}
	if set.Paired {
		mates = []Mate{Mate1, Mate2}
	}
	if len(paths) != len(mates) {
		return errors.E(errors.Invalid, fmt.Sprintf("expected %d output paths, got %d", len(mates), len(paths)))
	}
	byMate := map[Mate][]*Resolved{}
	for _, r := range reads {
		byMate[r.Key.Mate] = append(byMate[r.Key.Mate], r)
	}
	var once errors.Once
	_ = traverse.Each(len(paths), func(i int) error {
		once.Set(WriteSAM(ctx, paths[i], set.Headers[mates[i]], byMate[mates[i]]))
		return nil
	})
	return once.Err()
}
