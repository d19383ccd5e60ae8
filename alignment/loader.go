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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// LoadOpts configures Load.
type LoadOpts struct {
	// MaxErrors is the largest NM value of an alignment kept as a candidate.
	MaxErrors int
}

// DefaultLoadOpts are the default loader options.
var DefaultLoadOpts = LoadOpts{
	MaxErrors: 10,
}

// Validate checks the options.
func (o LoadOpts) Validate() error {
	if o.MaxErrors < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("max errors must be >= 0, got %d", o.MaxErrors))
	}
	return nil
}

// fileRecords holds the records of one input file, grouped by read.
type fileRecords struct {
	mate    Mate
	headers []string
	keys    []ReadKey
	byKey   map[ReadKey][]*Record
}

func readFile(ctx context.Context, path string, mate Mate) (*fileRecords, error) {
	fr := &fileRecords{mate: mate, byKey: map[ReadKey][]*Record{}}
	primaries := map[ReadKey]bool{}
	err := ScanLines(ctx, path, func(line string) error {
		if IsHeader(line) {
			fr.headers = append(fr.headers, line)
			return nil
		}
		r, err := ParseRecord(line, mate)
		if err != nil {
			return err
		}
		if r.IsPrimary() {
			if primaries[r.Key] {
				return errors.E(errors.Precondition, fmt.Sprintf("duplicate primary record for read %v", r.Key))
			}
			primaries[r.Key] = true
		}
		if _, ok := fr.byKey[r.Key]; !ok {
			fr.keys = append(fr.keys, r.Key)
		}
		fr.byKey[r.Key] = append(fr.byKey[r.Key], r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("%s: %d reads, %d header lines", path, len(fr.keys), len(fr.headers))
	return fr, nil
}

// Backfill returns recs with the sequence and quality of the read filled in
// on records that lack them.  Aligners omit SEQ and QUAL on secondary
// records; they are taken from the first record that carries them and
// re-oriented to each record's strand.  The returned forward-strand sequence
// and quality are those of the read as sequenced.
func Backfill(recs []*Record) (out []*Record, seq, qual string, err error) {
	var src *Record
	for _, r := range recs {
		if r.HasSequence() {
			src = r
			break
		}
	}
	if src == nil {
		if len(recs) == 0 {
			return nil, "", "", nil
		}
		return nil, "", "", errors.E(errors.Invalid,
			fmt.Sprintf("read %v: no record carries the read sequence", recs[0].Key))
	}
	seq, qual = src.forward()
	out = make([]*Record, len(recs))
	for i, r := range recs {
		if r.HasSequence() {
			out[i] = r
			continue
		}
		out[i] = r.withSequence(seq, qual)
	}
	return out, seq, qual, nil
}

// usable reports whether r is kept as a candidate alignment.
func usable(r *Record, opts LoadOpts) (bool, error) {
	if !r.IsAligned() || !r.PassedQC() {
		return false, nil
	}
	if r.NM < 0 {
		return false, errors.E(errors.Invalid, fmt.Sprintf("aligned record %v has no NM tag", r))
	}
	return r.StartsAndEndsWithMatch() && r.NM <= opts.MaxErrors, nil
}

func buildRead(key ReadKey, recs []*Record, opts LoadOpts) (*Read, error) {
	recs, seq, qual, err := Backfill(recs)
	if err != nil {
		return nil, err
	}
	var keep []*Record
	for _, r := range recs {
		ok, err := usable(r, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			keep = append(keep, r)
		}
	}
	return &Read{Key: key, Seq: seq, Qual: qual, Placement: NewPlacement(keep)}, nil
}

func checkMates(f1, f2 *fileRecords) error {
	if len(f1.keys) != len(f2.keys) {
		return errors.E(errors.Precondition,
			fmt.Sprintf("mate files hold different numbers of reads: %d and %d", len(f1.keys), len(f2.keys)))
	}
	for _, k := range f1.keys {
		if _, ok := f2.byKey[ReadKey{Name: k.Name, Mate: Mate2}]; !ok {
			return errors.E(errors.Precondition,
				fmt.Sprintf("read %s is present in the first mate file but not the second", k.Name))
		}
	}
	return nil
}

// Load reads one (unpaired) or two (mate 1, mate 2) SAM text files into a
// Set.  Records are grouped by read, secondary records are backfilled, and
// alignments that are unaligned, tagged ZP:Z:fail, not end-to-end matches
// or have more than opts.MaxErrors edits are dropped.  Reads left without a
// candidate are kept as Unaligned.
func Load(ctx context.Context, paths []string, opts LoadOpts) (*Set, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	var mates []Mate
	switch len(paths) {
	case 1:
		mates = []Mate{Unpaired}
	case 2:
		mates = []Mate{Mate1, Mate2}
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("expected one or two alignment files, got %d", len(paths)))
	}
	files := make([]*fileRecords, len(paths))
	err := traverse.Each(len(paths), func(i int) error {
		var err error
		files[i], err = readFile(ctx, paths[i], mates[i])
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 2 {
		if err = checkMates(files[0], files[1]); err != nil {
			return nil, err
		}
	}
	set := NewSet(len(files) == 2)
	for i, fr := range files {
		set.Headers[fr.mate] = fr.headers
		for _, k := range fr.keys {
			r, err := buildRead(k, fr.byKey[k], opts)
			if err != nil {
				return nil, errors.E(paths[i], err)
			}
			if err = set.Add(r); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}
