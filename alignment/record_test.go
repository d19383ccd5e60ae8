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

package alignment_test

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/polypolish/alignment"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, line string, m alignment.Mate) *alignment.Record {
	r, err := alignment.ParseRecord(line, m)
	require.NoError(t, err, line)
	return r
}

func TestParseRecord(t *testing.T) {
	r := mustParse(t, "read1/1\t0\tchr1\t101\t60\t5M\t*\t0\t0\tacgta\tIIIII\tNM:i:1\tAS:i:3", alignment.Mate1)
	expect.EQ(t, r.Key, alignment.ReadKey{Name: "read1", Mate: alignment.Mate1})
	expect.EQ(t, r.QName, "read1/1")
	expect.EQ(t, r.Ref, "chr1")
	expect.EQ(t, r.Pos, 100)
	expect.EQ(t, r.End(), 105)
	expect.EQ(t, r.MapQ, 60)
	expect.EQ(t, r.Seq, "ACGTA")
	expect.EQ(t, r.Qual, "IIIII")
	expect.EQ(t, r.NM, 1)
	expect.EQ(t, r.Tags, []string{"NM:i:1", "AS:i:3"})
	assert.True(t, r.IsAligned())
	assert.True(t, r.IsPrimary())
	assert.False(t, r.IsReverse())
	assert.True(t, r.PassedQC())
	assert.True(t, r.StartsAndEndsWithMatch())
	assert.True(t, r.Ungapped())
	expect.EQ(t, r.String(), "read1/1 chr1:101+ 5M")

	groups, err := r.BaseGroups()
	require.NoError(t, err)
	expect.EQ(t, groups, []string{"A", "C", "G", "T", "A"})

	r = mustParse(t, "read1\t272\tchr2\t1\t0\t2M1D3M\t*\t0\t0\t*\t*\tNM:i:1\tZP:Z:FAIL", alignment.Mate2)
	expect.EQ(t, r.Key, alignment.ReadKey{Name: "read1", Mate: alignment.Mate2})
	expect.EQ(t, r.Pos, 0)
	expect.EQ(t, r.End(), 6)
	assert.True(t, r.IsSecondary())
	assert.False(t, r.IsPrimary())
	assert.True(t, r.IsReverse())
	assert.False(t, r.HasSequence())
	assert.False(t, r.PassedQC())
	assert.False(t, r.Ungapped())

	r = mustParse(t, "read2\t4\t*\t0\t0\t*\t*\t0\t0\tACGT\tIIII", alignment.Unpaired)
	assert.False(t, r.IsAligned())
	expect.EQ(t, r.NM, -1)
	expect.EQ(t, r.End(), 0)
	expect.EQ(t, r.String(), "read2 unaligned")
}

func TestParseRecordErrors(t *testing.T) {
	for _, tt := range []struct {
		line string
		kind errors.Kind
	}{
		{"r\t0\tchr1\t1\t60\t4M\t*\t0\t0\tACGT", errors.Invalid},
		{"r\tx\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII", errors.Invalid},
		{"r\t0\tchr1\tx\t60\t4M\t*\t0\t0\tACGT\tIIII", errors.Invalid},
		{"r\t0\tchr1\t1\tx\t4M\t*\t0\t0\tACGT\tIIII", errors.Invalid},
		{"r\t0\tchr1\t1\t60\t4Q\t*\t0\t0\tACGT\tIIII", errors.Invalid},
		{"r\t0\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII\tNM:i:x", errors.Invalid},
		{"r\t256\tchr1\t-3\t60\t10M\t*\t0\t0\t*\t*\tNM:i:0", errors.Invalid},
		{"r\t4\t*\t-1\t0\t*\t*\t0\t0\tACGT\tIIII", errors.Invalid},
		{"r\t0\tchr1\t0\t60\t4M\t*\t0\t0\tACGT\tIIII\tNM:i:0", errors.Invalid},
		{"r/2\t0\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII", errors.Precondition},
	} {
		_, err := alignment.ParseRecord(tt.line, alignment.Mate1)
		require.Error(t, err, tt.line)
		assert.True(t, errors.Is(tt.kind, err), "%q: %v", tt.line, err)
	}
}

func TestFlagBits(t *testing.T) {
	bits := []sam.Flags{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048}
	for _, tt := range []struct {
		flags string
		set   []sam.Flags
	}{
		{"345", []sam.Flags{1, 8, 16, 64, 256}},
		{"1044", []sam.Flags{4, 16, 1024}},
		{"0", nil},
	} {
		r := mustParse(t, "r\t"+tt.flags+"\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII\tNM:i:0", alignment.Unpaired)
		want := map[sam.Flags]bool{}
		for _, b := range tt.set {
			want[b] = true
		}
		for _, b := range bits {
			expect.EQ(t, r.HasFlag(b), want[b], "flags %s bit %d", tt.flags, b)
		}
	}
}

func TestReadKey(t *testing.T) {
	for _, tt := range []struct {
		qname string
		mate  alignment.Mate
		want  alignment.ReadKey
		str   string
	}{
		{"a/1", alignment.Mate1, alignment.ReadKey{Name: "a", Mate: alignment.Mate1}, "a/1"},
		{"a", alignment.Mate2, alignment.ReadKey{Name: "a", Mate: alignment.Mate2}, "a/2"},
		{"a/1", alignment.Unpaired, alignment.ReadKey{Name: "a/1"}, "a/1"},
		{"a/3", alignment.Mate1, alignment.ReadKey{Name: "a/3", Mate: alignment.Mate1}, "a/3/1"},
	} {
		got, err := alignment.ParseReadKey(tt.qname, tt.mate)
		require.NoError(t, err)
		expect.EQ(t, got, tt.want)
		expect.EQ(t, got.String(), tt.str)
	}
	_, err := alignment.ParseReadKey("a/1", alignment.Mate2)
	assert.True(t, errors.Is(errors.Precondition, err))

	a := alignment.ReadKey{Name: "a", Mate: alignment.Mate2}
	b := alignment.ReadKey{Name: "b", Mate: alignment.Mate1}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, alignment.ReadKey{Name: "a", Mate: alignment.Mate1}.Less(a))
	expect.EQ(t, alignment.Mate1.Other(), alignment.Mate2)
	expect.EQ(t, alignment.Mate2.Other(), alignment.Mate1)
	expect.EQ(t, alignment.Unpaired.Other(), alignment.Unpaired)
}

func TestPlacement(t *testing.T) {
	var p alignment.Placement
	expect.EQ(t, p.Kind(), alignment.Unaligned)
	assert.Nil(t, p.Unique())

	r1 := mustParse(t, "r\t0\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII\tNM:i:0", alignment.Unpaired)
	r2 := mustParse(t, "r\t256\tchr1\t51\t60\t4M\t*\t0\t0\tACGT\tIIII\tNM:i:2", alignment.Unpaired)
	p = alignment.NewPlacement([]*alignment.Record{r1, r2})
	expect.EQ(t, p.Kind(), alignment.Ambiguous)
	expect.EQ(t, p.Len(), 2)
	assert.Nil(t, p.Unique())

	q := p.Keep(func(r *alignment.Record) bool { return r.NM == 0 })
	expect.EQ(t, q.Kind(), alignment.Unique)
	assert.True(t, q.Unique() == r1)
	expect.EQ(t, p.Len(), 2)

	q = p.Keep(func(*alignment.Record) bool { return false })
	expect.EQ(t, q.Kind(), alignment.Unaligned)
	expect.EQ(t, alignment.Ambiguous.String(), "ambiguous")
}
